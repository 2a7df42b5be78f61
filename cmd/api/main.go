package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/application"
	appai "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/application/ai"
	appanalysis "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/application/analysis"
	appfeedback "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/application/feedback"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/config"
	domai "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/ai"
	domain "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/infra/ai/openai"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/infra/db"
	infrafeedback "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/infra/feedback"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/infra/httpserver"
	ghregistry "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/infra/registry/github"
	minioStore "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/infra/storage"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/logger"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/metrics"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func newCompletionClient(cfg *config.Config) (domai.Client, error) {
	switch cfg.AI.Provider {
	case "azure":
		return openai.NewAzureClient(cfg.AI.APIKey, cfg.AI.Endpoint, cfg.AI.Model, cfg.AI.APIVersion), nil
	case "openai":
		return openai.NewClient(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Endpoint), nil
	}
	return nil, fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}
	defer store.Close()
	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil && !errors.Is(err, db.ErrNoMigration) {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	domain.ConflictHook = func(string) { metrics.StoreConflicts.Inc() }

	blobs, err := minioStore.New(cfg.Minio.Endpoint, cfg.Minio.Region, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL)
	if err != nil {
		return fmt.Errorf("minio init: %w", err)
	}

	client, err := newCompletionClient(cfg)
	if err != nil {
		return err
	}
	gen := appai.NewService(client, cfg.AI.MaxRetries, cfg.AI.Timeout, log.Named("ai"))

	registry, err := ghregistry.New(cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.GitHub.Token, cfg.GitHub.BaseURL)
	if err != nil {
		return fmt.Errorf("github init: %w", err)
	}

	svc := &appanalysis.Service{
		Repo:     store.Repo,
		Blobs:    blobs,
		AI:       gen,
		Registry: registry,
		Clock:    application.SystemClock{},
		Log:      log.Named("analysis"),
		Config: appanalysis.Config{
			ImageContainer:    cfg.Minio.Containers.Images,
			TemplateContainer: cfg.Minio.Containers.Templates,
			PackageContainer:  cfg.Minio.Containers.Packages,
			CallTimeout:       cfg.Workflow.CallTimeout,
			ImageURLExpiry:    cfg.Workflow.ImageURLExpiry,
			TemplateURLExpiry: cfg.Workflow.TemplateURLExpiry,
			PackageURLExpiry:  cfg.Workflow.PackageURLExpiry,
			Branch:            cfg.GitHub.Branch,
			PathPrefix:        cfg.GitHub.PathPrefix,
			FileName:          cfg.GitHub.FileName,
			CommitMessage:     cfg.GitHub.CommitMessage,
			RegistryURL:       cfg.GitHub.RegistryURL,
			Demo: appanalysis.DemoDefaults{
				Author:     cfg.Demo.Author,
				Source:     cfg.Demo.Source,
				Website:    cfg.Demo.Website,
				DemoGuide:  cfg.Demo.DemoGuide,
				Prereqs:    cfg.Demo.Prereqs,
				Cost:       cfg.Demo.Cost,
				DeployTime: cfg.Demo.DeployTime,
			},
		},
	}
	feedback := &appfeedback.Service{
		Repo:  infrafeedback.NewFileRepository(afero.NewOsFs(), cfg.Feedback.Path),
		Clock: application.SystemClock{},
	}

	handler := httpserver.NewRouter(httpserver.Deps{
		Analysis: svc,
		Feedback: feedback,
		Log:      log.Named("http"),
		Checkers: map[string]middleware.HealthChecker{
			"store": middleware.CheckFunc(store.Check),
			"minio": middleware.CheckFunc(blobs.Check),
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		APIKeys:        cfg.Auth.APIKeys,
		Limiter:        middleware.NewRateLimiter(ctx, cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate),
		TrustedHosts:   []string{cfg.Minio.Endpoint},
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", addr),
			zap.String("store", store.Driver),
			zap.String("ai", cfg.AI.Provider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
