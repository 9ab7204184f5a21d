package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultElevenLabsBaseURL = "https://api.elevenlabs.io"

	// Rachel, ElevenLabs' stock voice.
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

	defaultModelID      = "eleven_turbo_v2_5"
	defaultOutputFormat = "mp3_44100_128"

	defaultStability       = 0.5
	defaultSimilarityBoost = 0.75
)

// ElevenLabsClient synthesizes speech through the ElevenLabs API.
type ElevenLabsClient struct {
	apiKey       string
	voiceID      string
	modelID      string
	outputFormat string
	baseURL      string
	httpClient   *http.Client
}

// ElevenLabsOptions tunes the client. Zero values select the defaults
// above.
type ElevenLabsOptions struct {
	VoiceID      string
	ModelID      string
	OutputFormat string

	// BaseURL overrides the public API; tests point it at a local server.
	BaseURL string

	HTTPClient *http.Client
}

func NewElevenLabsClient(apiKey string, opts ElevenLabsOptions) (*ElevenLabsClient, error) {
	if apiKey == "" {
		return nil, errors.New("speech: elevenlabs api key required")
	}
	if opts.VoiceID == "" {
		opts.VoiceID = defaultVoiceID
	}
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.OutputFormat == "" {
		opts.OutputFormat = defaultOutputFormat
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultElevenLabsBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &ElevenLabsClient{
		apiKey:       apiKey,
		voiceID:      opts.VoiceID,
		modelID:      opts.ModelID,
		outputFormat: opts.OutputFormat,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		httpClient:   opts.HTTPClient,
	}, nil
}

func (c *ElevenLabsClient) Synthesize(ctx context.Context, text, voiceProfile string) (Clip, error) {
	if strings.TrimSpace(text) == "" {
		return Clip{}, errors.New("speech: text required")
	}
	voiceID := c.voiceID
	if voiceProfile != "" {
		voiceID = voiceProfile
	}

	payload := struct {
		Text          string `json:"text"`
		ModelID       string `json:"model_id"`
		VoiceSettings struct {
			Stability       float64 `json:"stability"`
			SimilarityBoost float64 `json:"similarity_boost"`
		} `json:"voice_settings"`
	}{Text: text, ModelID: c.modelID}
	payload.VoiceSettings.Stability = defaultStability
	payload.VoiceSettings.SimilarityBoost = defaultSimilarityBoost

	body, err := json.Marshal(payload)
	if err != nil {
		return Clip{}, fmt.Errorf("speech: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", c.baseURL, voiceID, c.outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Clip{}, fmt.Errorf("speech: build request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return Clip{}, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Clip{}, fmt.Errorf("%w: read audio: %v", ErrUnavailable, err)
	}
	if len(audio) == 0 {
		return Clip{}, fmt.Errorf("%w: empty audio", ErrUnavailable)
	}

	return Clip{Data: audio, ContentType: contentTypeFor(c.outputFormat)}, nil
}

func contentTypeFor(outputFormat string) string {
	switch {
	case strings.HasPrefix(outputFormat, "mp3_"):
		return "audio/mpeg"
	case strings.HasPrefix(outputFormat, "ulaw_"):
		return "audio/basic"
	case strings.HasPrefix(outputFormat, "pcm_"):
		return "audio/wave"
	default:
		return "audio/mpeg"
	}
}
