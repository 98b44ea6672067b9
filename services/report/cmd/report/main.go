package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"sinapsisdata/internal/util"
	"sinapsisdata/pkg/ai"
	"sinapsisdata/pkg/generation"
	"sinapsisdata/pkg/queue"
	"sinapsisdata/pkg/storage"
	"sinapsisdata/pkg/store"
	"sinapsisdata/services/report/internal/app"
	"sinapsisdata/services/report/internal/config"
	"sinapsisdata/services/report/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := util.InitLogger(cfg.LogLevel)

	leeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		fatal(logger, "failed to parse jwt leeway", err)
	}
	verifyKeys, err := config.ParseVerifyKeyFiles(cfg.JWTVerifyPublicKeys)
	if err != nil {
		fatal(logger, "failed to parse jwt verify keys", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		fatal(logger, "invalid trusted proxy list", err)
	}

	var st store.Store
	switch cfg.StoreBackend {
	case "memory":
		st = store.NewMemoryStore()
	default:
		gs, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			fatal(logger, "failed to open database", err)
		}
		st = gs
	}

	var objects storage.ObjectStore
	switch cfg.StorageBackend {
	case "file":
		objects, err = storage.NewFileStore(cfg.DataDir)
	default:
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	}
	if err != nil {
		fatal(logger, "failed to init object storage", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer redisClient.Close()

	sessions, err := store.NewJWTSessionStore(store.JWTConfig{
		PrivateKeyPath: cfg.JWTPrivateKeyPath,
		PublicKeyPath:  cfg.JWTPublicKeyPath,
		KeyID:          cfg.JWTKeyID,
		VerifyKeyFiles: verifyKeys,
		TTL:            cfg.SessionTTL(),
		Issuer:         cfg.JWTIssuer,
		Audience:       cfg.JWTAudience,
		Leeway:         leeway,
	}, store.NewRedisTokenRevoker(redisClient, "sinapsis:report:auth", cfg.SessionTTL()))
	if err != nil {
		fatal(logger, "failed to init sessions", err)
	}

	generator, err := ai.NewGenerator(ai.Options{
		Provider:            cfg.GenerationProvider,
		Model:               cfg.GenerationModel,
		MaxTokens:           cfg.GenerationMaxTokens,
		Timeout:             cfg.GenerationTimeout(),
		AnthropicAPIKey:     cfg.AnthropicAPIKey,
		AnthropicBaseURL:    cfg.AnthropicBaseURL,
		OpenAICompatBaseURL: cfg.OpenAICompatBaseURL,
		OpenAICompatAPIKey:  cfg.OpenAICompatAPIKey,
		GeminiAPIKey:        cfg.GeminiAPIKey,
		OllamaBaseURL:       cfg.OllamaBaseURL,
	})
	if err != nil {
		fatal(logger, "failed to init generator", err)
	}

	var jobs *queue.RedisJobQueue
	if cfg.DispatchMode == "queue" {
		jobs, err = queue.NewRedisJobQueue(redisClient, queue.RedisQueueConfig{
			Stream:     cfg.QueueName,
			Group:      cfg.QueueGroup,
			MaxRetries: cfg.QueueMaxRetries,
			ClaimIdle:  cfg.QueueClaimIdle(),
		})
		if err != nil {
			fatal(logger, "failed to init job queue", err)
		}
	}

	appCore, err := app.New(app.Config{
		Store:                  st,
		Objects:                objects,
		Generator:              generator,
		Sessions:               sessions,
		Policy:                 policyFrom(cfg),
		Queue:                  jobs,
		GenerationTimeout:      cfg.GenerationTimeout(),
		BootstrapAdminEmail:    cfg.BootstrapAdminEmail,
		BootstrapAdminPassword: cfg.BootstrapAdminPassword,
	})
	if err != nil {
		fatal(logger, "failed to init app", err)
	}

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		Redis:                      redisClient,
		GenerateRateLimitPerMinute: cfg.GenerateRateLimitPerMinute,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		MaxUploadBytes:             cfg.MaxUploadBytes,
		AllowedExtensions:          cfg.AllowedExtensions,
		TrustedProxies:             trusted,
		CORSOrigins:                cfg.CORSOrigins,
	})
	if err != nil {
		fatal(logger, "failed to init server", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if _, err := appCore.RecoverStale(ctx); err != nil {
		fatal(logger, "failed to recover stale reports", err)
	}
	go appCore.StartWorkers(ctx, cfg.QueueConcurrency)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "err", err)
		}
	}()

	slog.Info("report server listening", "addr", addr, "dispatch", cfg.DispatchMode, "provider", cfg.GenerationProvider)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		stop()
	}
	<-shutdownDone

	drainCtx, cancel := context.WithTimeout(context.Background(), appCore.StaleAfter())
	defer cancel()
	if err := appCore.Drain(drainCtx); err != nil {
		logger.Error("inline jobs still running at exit", "err", err)
	}
}

func policyFrom(cfg config.FileConfig) generation.Policy {
	p := generation.DefaultPolicy()
	if cfg.MaxPromptRows > 0 {
		p.MaxPromptRows = cfg.MaxPromptRows
	}
	if cfg.MaxOverviewHTMLChars > 0 {
		p.MaxOverviewHTMLChars = cfg.MaxOverviewHTMLChars
	}
	if cfg.OverviewMaxKPIs > 0 {
		p.OverviewMaxKPIs = cfg.OverviewMaxKPIs
	}
	if cfg.OverviewMaxHighlights > 0 {
		p.OverviewMaxHighlights = cfg.OverviewMaxHighlights
	}
	if len(cfg.OverviewSections) > 0 {
		p.OverviewSections = cfg.OverviewSections
	}
	if cfg.ReportLanguage != "" {
		p.Language = cfg.ReportLanguage
	}
	return p
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
