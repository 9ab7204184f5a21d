package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Twilio   TwilioConfig
	Response ResponseConfig
	Speech   SpeechConfig
	Calls    CallsConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable origin (scheme://host[:port],
	// no trailing slash) that webhook callbacks and audio clip URLs are
	// addressed under. The telephony gateway must be able to reach it.
	PublicBaseURL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	// BaseURL overrides the Twilio API endpoint (tests, regional endpoints).
	BaseURL string

	// ValidateWebhooks turns on X-Twilio-Signature checking for inbound
	// webhooks. Forced on in production.
	ValidateWebhooks bool

	// RingTimeout is how long the gateway lets the callee's phone ring.
	RingTimeout time.Duration
}

type ResponseConfig struct {
	// Mode is "auto" (tier-1 then tier-2 with circuit breaking) or
	// "forced:<provider>" (single provider, raw failures surfaced).
	Mode string

	// Timeout bounds one provider invocation. Unbounded waits are not
	// permitted: concurrent calls share the process.
	Timeout time.Duration

	// Cooldown is how long a failed provider is skipped before re-probing.
	Cooldown time.Duration

	MaxReplyTokens int

	AnthropicAPIKey string
	AnthropicModel  string

	GroqAPIKey  string
	GroqModel   string
	GroqBaseURL string
}

type SpeechConfig struct {
	ElevenLabsAPIKey string

	// VoiceID is the default synthesis voice used when a call does not
	// specify a voice profile.
	VoiceID      string
	ModelID      string
	OutputFormat string

	// Timeout bounds one synthesis request; on expiry the reply falls back
	// to the gateway's built-in voice.
	Timeout time.Duration

	// ClipTTL is how long synthesized audio stays fetchable by the gateway.
	ClipTTL time.Duration
}

type CallsConfig struct {
	// MaxConcurrent caps simultaneously active outbound calls across the
	// process family. 0 disables the cap (and the Redis requirement).
	MaxConcurrent int

	// SlotTTL expires leaked call slots; must exceed the longest call.
	SlotTTL time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.PublicBaseURL = strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = intOr("REDIS_PORT", 6379, &parseErrs)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))
	c.Twilio.BaseURL = strings.TrimSpace(os.Getenv("TWILIO_BASE_URL"))
	c.Twilio.ValidateWebhooks = boolOr("TWILIO_VALIDATE_WEBHOOKS", false, &parseErrs)
	c.Twilio.RingTimeout = durationOr("CALL_RING_TIMEOUT", 30*time.Second, &parseErrs)

	c.Response.Mode = strings.TrimSpace(os.Getenv("RESPONSE_MODE"))
	c.Response.Timeout = durationOr("RESPONSE_TIMEOUT", 30*time.Second, &parseErrs)
	c.Response.Cooldown = durationOr("PROVIDER_COOLDOWN", 5*time.Minute, &parseErrs)
	c.Response.MaxReplyTokens = intOr("MAX_REPLY_TOKENS", 256, &parseErrs)
	c.Response.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.Response.AnthropicModel = strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL"))
	c.Response.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	c.Response.GroqModel = strings.TrimSpace(os.Getenv("GROQ_MODEL"))
	c.Response.GroqBaseURL = strings.TrimSpace(os.Getenv("GROQ_BASE_URL"))

	c.Speech.ElevenLabsAPIKey = os.Getenv("ELEVENLABS_API_KEY")
	c.Speech.VoiceID = strings.TrimSpace(os.Getenv("ELEVENLABS_VOICE_ID"))
	c.Speech.ModelID = strings.TrimSpace(os.Getenv("ELEVENLABS_MODEL_ID"))
	c.Speech.OutputFormat = strings.TrimSpace(os.Getenv("ELEVENLABS_OUTPUT_FORMAT"))
	c.Speech.Timeout = durationOr("SPEECH_TIMEOUT", 5*time.Second, &parseErrs)
	c.Speech.ClipTTL = durationOr("CLIP_TTL", 10*time.Minute, &parseErrs)

	c.Calls.MaxConcurrent = intOr("MAX_CONCURRENT_CALLS", 0, &parseErrs)
	c.Calls.SlotTTL = durationOr("CALL_SLOT_TTL", time.Hour, &parseErrs)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate applies defaults and checks cross-field rules. Pointer receiver:
// defaults must stick on the instance the caller keeps.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("PUBLIC_BASE_URL is required in production"))
		} else {
			c.App.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.App.Port)
		}
	}
	c.App.PublicBaseURL = strings.TrimRight(c.App.PublicBaseURL, "/")

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	// Redis backs the concurrent-call cap only; without a cap it is unused.
	if c.Calls.MaxConcurrent > 0 {
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when MAX_CONCURRENT_CALLS is set"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
		if c.Calls.SlotTTL <= 0 {
			errs = append(errs, errors.New("CALL_SLOT_TTL must be positive"))
		}
	}

	if c.IsProduction() {
		if c.Twilio.AccountSID == "" {
			errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required in production"))
		}
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required in production"))
		}
		if c.Twilio.FromNumber == "" {
			errs = append(errs, errors.New("TWILIO_FROM_NUMBER is required in production"))
		}
		// Unsigned webhooks in production would let anyone drive call state.
		c.Twilio.ValidateWebhooks = true

		if c.Response.AnthropicAPIKey == "" && c.Response.GroqAPIKey == "" {
			errs = append(errs, errors.New("at least one of ANTHROPIC_API_KEY, GROQ_API_KEY is required in production"))
		}
	}
	if c.Twilio.RingTimeout <= 0 {
		c.Twilio.RingTimeout = 30 * time.Second
	}

	if c.Response.Mode == "" {
		c.Response.Mode = "auto"
	}
	if !isValidResponseMode(c.Response.Mode) {
		errs = append(errs, fmt.Errorf("RESPONSE_MODE must be auto or forced:<provider>, got %q", c.Response.Mode))
	}
	if c.Response.Timeout <= 0 {
		errs = append(errs, errors.New("RESPONSE_TIMEOUT must be positive"))
	}
	if c.Response.Cooldown <= 0 {
		errs = append(errs, errors.New("PROVIDER_COOLDOWN must be positive"))
	}
	if c.Response.MaxReplyTokens <= 0 {
		c.Response.MaxReplyTokens = 256
	}
	if c.Response.AnthropicModel == "" {
		c.Response.AnthropicModel = "claude-sonnet-4-20250514"
	}
	if c.Response.GroqModel == "" {
		c.Response.GroqModel = "llama-3.3-70b-versatile"
	}
	if c.Response.GroqBaseURL == "" {
		c.Response.GroqBaseURL = "https://api.groq.com/openai/v1"
	}

	if c.Speech.VoiceID == "" {
		c.Speech.VoiceID = "21m00Tcm4TlvDq8ikWAM"
	}
	if c.Speech.ModelID == "" {
		c.Speech.ModelID = "eleven_turbo_v2_5"
	}
	if c.Speech.OutputFormat == "" {
		c.Speech.OutputFormat = "mp3_44100_128"
	}
	if c.Speech.Timeout <= 0 {
		c.Speech.Timeout = 5 * time.Second
	}
	if c.Speech.ClipTTL <= 0 {
		c.Speech.ClipTTL = 10 * time.Minute
	}

	if c.Calls.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_CALLS must be >= 0, got %d", c.Calls.MaxConcurrent))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func intOr(key string, def int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return def
	}
	return n
}

func durationOr(key string, def time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a duration like 30s or 5m, got %q", key, v))
		return def
	}
	return d
}

func boolOr(key string, def bool, errs *[]error) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
		return def
	}
	return b
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func isValidResponseMode(v string) bool {
	if v == "auto" {
		return true
	}
	rest, ok := strings.CutPrefix(v, "forced:")
	return ok && strings.TrimSpace(rest) != ""
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
