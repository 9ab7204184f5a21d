package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTwilioBaseURL = "https://api.twilio.com/2010-04-01"

// TwilioGateway places outbound calls through the Twilio REST API.
type TwilioGateway struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

// NewTwilioGateway builds a gateway for the given account. baseURL may be
// empty to use the public API; tests point it at a local server.
func NewTwilioGateway(accountSID, authToken, baseURL string, httpClient *http.Client) (*TwilioGateway, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("telephony: twilio account sid and auth token required")
	}
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &TwilioGateway{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}, nil
}

func (g *TwilioGateway) CreateCall(ctx context.Context, req CreateCallRequest) (CreateCallResult, error) {
	if req.To == "" || req.From == "" {
		return CreateCallResult{}, errors.New("telephony: to and from numbers required")
	}
	if req.VoiceURL == "" {
		return CreateCallResult{}, errors.New("telephony: voice url required")
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	form.Set("Url", req.VoiceURL)
	form.Set("Method", http.MethodPost)
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", req.StatusCallbackURL)
		form.Set("StatusCallbackMethod", http.MethodPost)
		for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
			form.Add("StatusCallbackEvent", ev)
		}
	}
	if req.RingTimeout > 0 {
		form.Set("Timeout", strconv.Itoa(int(req.RingTimeout.Seconds())))
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", g.baseURL, g.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return CreateCallResult{}, fmt.Errorf("telephony: build request: %w", err)
	}
	httpReq.SetBasicAuth(g.accountSID, g.authToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return CreateCallResult{}, fmt.Errorf("telephony: create call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CreateCallResult{}, fmt.Errorf("telephony: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return CreateCallResult{}, fmt.Errorf("telephony: create call: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return CreateCallResult{}, fmt.Errorf("telephony: decode response: %w", err)
	}
	if parsed.SID == "" {
		return CreateCallResult{}, errors.New("telephony: create call: response missing call sid")
	}
	return CreateCallResult{CallID: parsed.SID, Status: parsed.Status}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
