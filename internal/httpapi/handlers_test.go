package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voiceagent-platform/internal/response"
	"voiceagent-platform/internal/session"
	"voiceagent-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

type stubGateway struct{ err error }

func (g stubGateway) CreateCall(context.Context, telephony.CreateCallRequest) (telephony.CreateCallResult, error) {
	if g.err != nil {
		return telephony.CreateCallResult{}, g.err
	}
	return telephony.CreateCallResult{CallID: "CA100", Status: "queued"}, nil
}

type stubReplies struct{}

func (stubReplies) GenerateReply(context.Context, response.Request) (response.Reply, error) {
	return response.Reply{Text: "Okay.", Provider: "stub"}, nil
}

func newTestRouter(t *testing.T, gw telephony.Gateway) (*gin.Engine, *session.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, err := session.NewService(session.Options{
		Gateway:       gw,
		Replies:       stubReplies{},
		PublicBaseURL: "https://voice.example.com",
		FromNumber:    "+911234500000",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	h := Handlers{Sessions: svc}
	r := gin.New()
	r.POST("/v1/calls", h.InitiateCall)
	r.GET("/v1/calls", h.ListActiveCalls)
	r.GET("/v1/calls/:session_id/history", h.CallHistory)
	return r, svc
}

func doJSON(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestInitiateCallEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, stubGateway{})

	w := doJSON(r, http.MethodPost, "/v1/calls", `{
		"phone_number": "+910000000001",
		"purpose": "order update",
		"initial_message": "Hello, this is a confirmation call"
	}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var got struct {
		SessionID      string `json:"session_id"`
		ProviderCallID string `json:"provider_call_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.SessionID == "" || got.ProviderCallID != "CA100" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	w = doJSON(r, http.MethodGet, "/v1/calls", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list struct {
		Count    int                   `json:"count"`
		Sessions []session.CallSession `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if list.Count != 1 || len(list.Sessions) != 1 {
		t.Fatalf("unexpected list: %s", w.Body.String())
	}
	if list.Sessions[0].Status != session.StatusActive {
		t.Fatalf("expected an active session, got %q", list.Sessions[0].Status)
	}
}

func TestInitiateCallEndpointRejectsBadInput(t *testing.T) {
	r, _ := newTestRouter(t, stubGateway{})

	w := doJSON(r, http.MethodPost, "/v1/calls", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/v1/calls", `{"initial_message": "Hello"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "phone_number") {
		t.Fatalf("expected the missing field to be named: %s", w.Body.String())
	}
}

func TestInitiateCallEndpointGatewayFailure(t *testing.T) {
	r, _ := newTestRouter(t, stubGateway{err: errors.New("carrier rejected the number")})

	w := doJSON(r, http.MethodPost, "/v1/calls", `{
		"phone_number": "+910000000001",
		"initial_message": "Hello"
	}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "CALL_INITIATION_FAILED") {
		t.Fatalf("expected the failure code: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "carrier rejected the number") {
		t.Fatalf("expected the gateway message: %s", w.Body.String())
	}

	w = doJSON(r, http.MethodGet, "/v1/calls", "")
	if !strings.Contains(w.Body.String(), `"count":0`) {
		t.Fatalf("no session should survive a rejected call: %s", w.Body.String())
	}
}

func TestCallHistoryEndpoint(t *testing.T) {
	r, svc := newTestRouter(t, stubGateway{})

	res, err := svc.InitiateCall(context.Background(), session.InitiateCallRequest{
		PhoneNumber:    "+910000000001",
		InitialMessage: "Hello",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	svc.HandleSpeechEvent(context.Background(), telephony.SpeechEvent{
		SessionID:  res.SessionID,
		Text:       "Yes that's correct",
		Confidence: 0.94,
	})

	w := doJSON(r, http.MethodGet, "/v1/calls/"+res.SessionID+"/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got struct {
		SessionID string                     `json:"session_id"`
		Count     int                        `json:"count"`
		Turns     []session.ConversationTurn `json:"turns"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.SessionID != res.SessionID || got.Count != 2 || len(got.Turns) != 2 {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if got.Turns[0].Role != session.TurnUser || got.Turns[1].Role != session.TurnAssistant {
		t.Fatalf("unexpected turn roles: %s", w.Body.String())
	}
}

func TestCallHistoryEndpointNotFound(t *testing.T) {
	r, _ := newTestRouter(t, stubGateway{})

	w := doJSON(r, http.MethodGet, "/v1/calls/call_nope/history", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

type stubProvider struct{ id string }

func (p stubProvider) ID() string { return p.id }

func (p stubProvider) Complete(context.Context, string, []response.Message) (string, error) {
	return "hi", nil
}

func TestProviderHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	orch, err := response.NewOrchestrator(
		[]response.Provider{stubProvider{id: "anthropic"}, stubProvider{id: "groq"}},
		response.Mode{},
		time.Second,
		response.NewHealthTracker(5*time.Minute),
	)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	h := Handlers{Providers: orch}
	r := gin.New()
	r.GET("/v1/providers/health", h.ProviderHealth)

	w := doJSON(r, http.MethodGet, "/v1/providers/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got struct {
		Providers []response.ProviderHealth `json:"providers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got.Providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(got.Providers))
	}
	if got.Providers[0].Provider != "anthropic" || !got.Providers[0].Available {
		t.Fatalf("unexpected health: %+v", got.Providers)
	}
}

func TestHandlersGuardMissingServices(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := Handlers{}
	r := gin.New()
	r.POST("/v1/calls", h.InitiateCall)
	r.GET("/v1/providers/health", h.ProviderHealth)

	if w := doJSON(r, http.MethodPost, "/v1/calls", `{}`); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/v1/providers/health", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
