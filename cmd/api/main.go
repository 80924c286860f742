package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pageforge/api/internal/app"
	"pageforge/api/internal/blob"
	"pageforge/api/internal/config"
	"pageforge/api/internal/email"
	"pageforge/api/internal/export"
	"pageforge/api/internal/generate"
	"pageforge/api/internal/gitrepo"
	"pageforge/api/internal/live"
	"pageforge/api/internal/logger"
	"pageforge/api/internal/rewards"
	"pageforge/api/internal/search"
	"pageforge/api/internal/session"
	"pageforge/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	log := logger.Setup(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		log.Error("configuration invalid", slog.Any("error", err))
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("pageforge api stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// run owns every process-wide resource; each one is closed by its defer
// before run returns, including on startup and listen failures.
func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.Pool{MaxOpen: cfg.DBMaxOpen, MaxIdle: cfg.DBMaxIdle})
	if err != nil {
		return fmt.Errorf("database connection: %w", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db.DB); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		return fmt.Errorf("create repos dir: %w", err)
	}

	sessions, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis connection: %w", err)
	}
	defer sessions.Close()

	dataStore := store.NewPostgresStore(db)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPgFTS(db), log)
	go searchService.ReindexAll(ctx, dataStore)

	var blobs *blob.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobs, err = blob.New(blob.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return fmt.Errorf("object storage client: %w", err)
		}
		if err := blobs.EnsureBucket(ctx); err != nil {
			log.Warn("object storage unavailable, originals will not be kept", slog.Any("error", err))
			blobs = nil
		}
	}

	hub := live.NewHub(log)
	go hub.Run(ctx)

	ai := generate.New(generate.Config{
		APIKey:  cfg.OpenAIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
		Timeout: cfg.OpenAITimeout,
	}, log)
	if !ai.Configured() {
		log.Info("OPENAI_API_KEY not set, AI routes disabled")
	}

	service := app.New(cfg, app.Deps{
		Store:    dataStore,
		Sessions: sessions,
		Git:      gitrepo.New(cfg.ReposDir),
		Search:   searchService,
		Blobs:    blobs,
		Exporter: export.NewService(log),
		Mailer: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
		Live:    hub,
		AI:      ai,
		Rewards: rewards.NewService(dataStore),
		Logger:  log,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigins).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("pageforge api listening", slog.String("addr", cfg.Addr))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		// the hub and reindex goroutines watch ctx
		stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
