package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/practice/internal/api"
	"example.com/practice/internal/auth"
	"example.com/practice/internal/config"
	"example.com/practice/internal/domain"
	persistence "example.com/practice/internal/persistence/postgres"
	"example.com/practice/internal/scheduler"
	httptransport "example.com/practice/internal/transport/http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	service := domain.NewService(repo, domain.WithLogger(logger))

	opts := []api.Option{api.WithLogger(logger), api.WithPreferences(repo)}
	if err := cfg.ValidateScheduler(); err != nil {
		// The trigger endpoint answers with configuration_error until this is fixed.
		logger.Warn("notification trigger disabled", "error", err)
	} else {
		rt, err := scheduler.Build(cfg, repo, logger)
		if err != nil {
			logger.Error("failed to build notification runner", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := rt.Close(); err != nil {
				logger.Warn("close delivery connections", "error", err)
			}
		}()
		opts = append(opts, api.WithTrigger(rt.Runner, cfg.SchedulerSecret))
	}

	handler := api.NewHandler(service, opts...)
	router := api.NewRouter(handler, api.RouterConfig{
		Auth:             auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		CORSAllowOrigins: cfg.CORSAllowOrigins,
		Logger:           logger,
	})

	if err := httptransport.Serve(ctx, httptransport.DefaultServerConfig(cfg.HTTPAddress), router, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("practice api stopped")
}
