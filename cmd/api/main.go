package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voiceagent-platform/internal/callrecord"
	"voiceagent-platform/internal/config"
	"voiceagent-platform/internal/limits"
	"voiceagent-platform/internal/response"
	"voiceagent-platform/internal/session"
	"voiceagent-platform/internal/speech"
	"voiceagent-platform/internal/telephony"
	"voiceagent-platform/pkg/logger"
	"voiceagent-platform/pkg/storage"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := storage.OpenPostgres(rootCtx, cfg.PostgresDSN(), storage.PostgresOptions{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	records, err := callrecord.NewPostgresStore(db)
	if err != nil {
		log.Error("call record store init failed", "err", err)
		os.Exit(1)
	}

	// Redis backs the concurrent-call cap only; without a cap the process
	// runs without it.
	var limiter session.CallLimiter
	if cfg.Calls.MaxConcurrent > 0 {
		rdb, err := storage.OpenRedis(rootCtx, storage.RedisOptions{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
		})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()

		l, err := limits.NewLimiter(rdb, "voice:active_calls", cfg.Calls.MaxConcurrent, cfg.Calls.SlotTTL)
		if err != nil {
			log.Error("call limiter init failed", "err", err)
			os.Exit(1)
		}
		limiter = l
		log.Info("call cap enabled", "max_concurrent", cfg.Calls.MaxConcurrent)
	}

	// Reply providers, tier-1 first.
	var providers []response.Provider
	if cfg.Response.AnthropicAPIKey != "" {
		p, err := response.NewAnthropicProvider(cfg.Response.AnthropicAPIKey, cfg.Response.AnthropicModel, int64(cfg.Response.MaxReplyTokens))
		if err != nil {
			log.Error("anthropic init failed", "err", err)
			os.Exit(1)
		}
		providers = append(providers, p)
	}
	if cfg.Response.GroqAPIKey != "" {
		p, err := response.NewGroqProvider(cfg.Response.GroqAPIKey, cfg.Response.GroqModel, cfg.Response.GroqBaseURL, cfg.Response.MaxReplyTokens)
		if err != nil {
			log.Error("groq init failed", "err", err)
			os.Exit(1)
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		log.Error("no reply providers configured; set ANTHROPIC_API_KEY or GROQ_API_KEY")
		os.Exit(1)
	}

	mode, err := response.ParseMode(cfg.Response.Mode)
	if err != nil {
		log.Error("response mode invalid", "err", err)
		os.Exit(1)
	}
	orchestrator, err := response.NewOrchestrator(providers, mode, cfg.Response.Timeout, response.NewHealthTracker(cfg.Response.Cooldown))
	if err != nil {
		log.Error("response orchestrator init failed", "err", err)
		os.Exit(1)
	}

	// Speech synthesis is optional; without a key the gateway's built-in
	// voice reads every line.
	var synth speech.Synthesizer
	var clips *speech.ClipStore
	if cfg.Speech.ElevenLabsAPIKey != "" {
		el, err := speech.NewElevenLabsClient(cfg.Speech.ElevenLabsAPIKey, speech.ElevenLabsOptions{
			VoiceID:      cfg.Speech.VoiceID,
			ModelID:      cfg.Speech.ModelID,
			OutputFormat: cfg.Speech.OutputFormat,
			HTTPClient:   &http.Client{Timeout: cfg.Speech.Timeout},
		})
		if err != nil {
			log.Error("elevenlabs init failed", "err", err)
			os.Exit(1)
		}
		synth = el
		clips = speech.NewClipStore(cfg.Speech.ClipTTL)
		log.Info("speech synthesis enabled", "voice_id", cfg.Speech.VoiceID)
	}

	gateway, err := telephony.NewTwilioGateway(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.BaseURL, nil)
	if err != nil {
		log.Error("telephony gateway init failed", "err", err)
		os.Exit(1)
	}

	sessions, err := session.NewService(session.Options{
		Gateway:       gateway,
		Replies:       orchestrator,
		Records:       records,
		Synthesizer:   synth,
		Clips:         clips,
		Limiter:       limiter,
		PublicBaseURL: cfg.App.PublicBaseURL,
		FromNumber:    cfg.Twilio.FromNumber,
		RingTimeout:   cfg.Twilio.RingTimeout,
	})
	if err != nil {
		log.Error("session service init failed", "err", err)
		os.Exit(1)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, cfg, sessions, orchestrator, clips)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
