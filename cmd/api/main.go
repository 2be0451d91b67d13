// Package main is the entrypoint for the SmartDiet API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/lib/pq"

	"github.com/smartdiet/smartdiet/internal/assistant"
	"github.com/smartdiet/smartdiet/internal/cache"
	"github.com/smartdiet/smartdiet/internal/config"
	"github.com/smartdiet/smartdiet/internal/document"
	"github.com/smartdiet/smartdiet/internal/handler"
	"github.com/smartdiet/smartdiet/internal/mealstream"
	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/repository"
	"github.com/smartdiet/smartdiet/internal/server"
	"github.com/smartdiet/smartdiet/internal/service"
	"github.com/smartdiet/smartdiet/internal/tracing"
	"github.com/smartdiet/smartdiet/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stdout, cfg.Tracing.ServiceName)
	slog.SetDefault(logger)

	box, err := newSecretBox(cfg, logger)
	if err != nil {
		return err
	}
	vault, err := newVault(cfg, logger)
	if err != nil {
		return err
	}

	// Closes what was opened so far if startup fails; the server's shutdown
	// hooks take over once it runs.
	var startup closeStack
	defer startup.release()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Env,
		SampleRatio: 1,
	})
	if err != nil {
		return err
	}
	startup.push(func() { _ = shutdownTracing(context.Background()) })

	// Database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", config.Scrub(err, cfg.DatabaseURL)),
			slog.String("database_url", config.RedactURL(cfg.DatabaseURL)),
		)
		return errors.New("database unavailable")
	}
	logger.Info("connected to database")
	startup.push(repo.Close)

	// The delivery worker keeps its own database/sql pool.
	webhookDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open webhook database: %s", config.Scrub(err, cfg.DatabaseURL))
	}
	startup.push(func() { _ = webhookDB.Close() })

	// Cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", config.Scrub(err, cfg.RedisURL)),
			slog.String("redis_url", config.RedactURL(cfg.RedisURL)),
		)
		return errors.New("redis unavailable")
	}
	logger.Info("connected to Redis")
	startup.push(func() { _ = cacheClient.Close() })

	recorder := metrics.NewInMemory()

	// Webhooks
	webhookRepo := webhook.NewRepository(webhookDB)
	webhookPublisher := webhook.NewPublisher(webhookRepo, logger)
	webhookWorker := webhook.NewWorker(webhookRepo, box, logger, recorder, webhook.WorkerOptions{
		AllowPrivate: cfg.Webhooks.AllowPrivate,
	})

	// Meal log stream
	mealRepo := repository.NewMealLogRepository(repo)
	mealPublisher := mealstream.NewPublisher(cacheClient.Client(), logger, recorder)
	mealWorker := mealstream.NewWorker(cacheClient.Client(), mealRepo, logger, mealstream.NewConsumerID(), recorder)
	if err := mealWorker.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("ensure meal log consumer group: %w", err)
	}

	// Assistant
	assistantCfg := assistant.Config{
		Cache:        cacheClient,
		Logger:       logger,
		Metrics:      recorder,
		CacheTTL:     cfg.Assistant.MealPlanTTL,
		CacheKeySalt: cfg.Assistant.Model,
	}
	if cfg.Assistant.APIKey != "" {
		assistantCfg.Generator = assistant.NewGeminiClient(cfg.Assistant.APIKey, cfg.Assistant.Model, cfg.Assistant.Timeout)
		logger.Info("assistant using Gemini", "model", cfg.Assistant.Model)
	} else {
		logger.Warn("GEMINI_API_KEY not set, assistant answers from local rules only")
	}
	assistantService := assistant.NewService(assistantCfg)

	// Services
	accountService := service.NewAccountService(repo, cacheClient, logger, recorder, cfg.Session.TTL, cfg.TokenEnv())
	profileService := service.NewProfileService(repo, cacheClient, logger)
	verificationService := service.NewVerificationService(repo, cacheClient, vault, logger, recorder, cfg.Documents.MaxSize)
	careService := service.NewCareService(repo, webhookPublisher, logger, recorder)
	dietPlanService := service.NewDietPlanService(repo, careService, logger, recorder)
	chatService := service.NewChatService(repo, cacheClient, careService, webhookPublisher, logger, recorder)
	progressService := service.NewProgressService(mealRepo, careService, mealPublisher, logger, recorder)
	reviewService := service.NewReviewService(repo, careService, logger, recorder)
	consultationService := service.NewConsultationService(repo, careService, webhookPublisher, logger, recorder)

	health := handler.NewHealthHandler(repo, cacheClient).WithCheck("webhooks", webhookRepo)

	// Handlers
	handlers := server.Handlers{
		Root:         handler.New(),
		Health:       health,
		Metrics:      handler.NewMetricsHandler(recorder),
		Account:      handler.NewAccountHandler(accountService, logger),
		Profile:      handler.NewProfileHandler(profileService, logger),
		Verification: handler.NewVerificationHandler(verificationService, logger),
		Admin:        handler.NewAdminHandler(verificationService, logger),
		Care:         handler.NewCareHandler(careService, logger),
		DietPlan:     handler.NewDietPlanHandler(dietPlanService, logger),
		Chat:         handler.NewChatHandler(chatService, logger),
		Progress:     handler.NewProgressHandler(progressService, logger),
		Review:       handler.NewReviewHandler(reviewService, logger),
		Consultation: handler.NewConsultationHandler(consultationService, logger),
		Assistant:    handler.NewAssistantHandler(assistantService, logger),
		Webhook:      handler.NewWebhookHandler(webhookRepo, box, logger, cfg.Webhooks.AllowPrivate),
	}

	router := server.NewRouter(handlers, server.RouterConfig{
		Logger:               logger,
		Sessions:             repo,
		Cache:                cacheClient,
		Limiter:              cacheClient,
		Metrics:              recorder,
		CORSAllowedOrigins:   cfg.HTTP.CORSOrigins,
		IsDevelopment:        cfg.IsDevelopment(),
		MaxBodySize:          cfg.HTTP.MaxBodySize,
		UserRateLimitEnabled: cfg.RateLimit.UserEnabled,
		IPRateLimitEnabled:   cfg.RateLimit.IPEnabled,
		IPRPS:                cfg.RateLimit.IPRPS,
		IPBurst:              cfg.RateLimit.IPBurst,
	})

	srv := server.New(router, server.Options{
		Port:            cfg.HTTP.Port,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, logger)

	srv.OnDrain(health.Drain)

	// Registered first, closed last.
	srv.OnShutdown("tracing", server.ShutdownFunc(shutdownTracing))
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("webhook-db", func(context.Context) error { return webhookDB.Close() })
	srv.OnShutdown("redis", func(context.Context) error { return cacheClient.Close() })
	srv.OnShutdown("mealstream", mealWorker.Shutdown)

	srv.Go("mealstream", mealWorker.Run)
	srv.Go("webhooks", webhookWorker.Run)
	startup.disarm()

	logger.Info("starting server",
		"port", cfg.HTTP.Port,
		"base_url", cfg.HTTP.BaseURL,
		"env", cfg.Env,
	)

	return srv.Run(ctx)
}

// closeStack runs cleanup functions in reverse order of registration.
type closeStack struct {
	fns []func()
}

func (c *closeStack) push(fn func()) {
	c.fns = append(c.fns, fn)
}

// release runs every pending function once.
func (c *closeStack) release() {
	for i := len(c.fns) - 1; i >= 0; i-- {
		c.fns[i]()
	}
	c.fns = nil
}

// disarm hands ownership elsewhere; release becomes a no-op.
func (c *closeStack) disarm() {
	c.fns = nil
}

// newSecretBox seals webhook secrets. Development falls back to a
// per-process key, so secrets do not survive a restart.
func newSecretBox(cfg *config.Config, logger *slog.Logger) (*webhook.SecretBox, error) {
	key := cfg.Webhooks.EncryptionKey
	if key == "" {
		if !cfg.IsDevelopment() {
			return nil, errors.New("WEBHOOK_ENCRYPTION_KEY is required outside development")
		}
		secret, err := webhook.GenerateSecret()
		if err != nil {
			return nil, err
		}
		key = secret
		logger.Warn("WEBHOOK_ENCRYPTION_KEY not set, using an ephemeral key")
	}
	return webhook.NewSecretBox(key)
}

// newVault opens the document vault. Development falls back to an
// ephemeral identity.
func newVault(cfg *config.Config, logger *slog.Logger) (*document.Vault, error) {
	opts := document.Options{
		Recipient:   cfg.Documents.Recipient,
		Identity:    cfg.Documents.Identity,
		Compression: cfg.Documents.Compression,
	}
	if opts.Recipient == "" && opts.Identity == "" {
		if !cfg.IsDevelopment() {
			return nil, errors.New("DOCUMENT_AGE_RECIPIENT is required outside development")
		}
		identity, _, err := document.GenerateIdentity()
		if err != nil {
			return nil, err
		}
		opts.Identity = identity
		logger.Warn("document keys not set, using an ephemeral age identity")
	}
	vault, err := document.NewVault(opts)
	if err != nil {
		return nil, fmt.Errorf("document vault: %w", err)
	}
	if !vault.CanOpen() {
		logger.Info("document vault is seal-only, admin downloads are disabled")
	}
	return vault, nil
}
