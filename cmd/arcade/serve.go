package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"arcadeops/internal/app"
	"arcadeops/internal/engine"
	"arcadeops/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long:  "Serves the REST API used by kiosks and remote clients. Settings come from ARCADE_* environment variables; --addr and --base-path override them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := app.LoadServeSettings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				settings.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				settings.BasePath = basePath
			}
			if settings.JWTSecret == "" && !settings.AllowActorHeader {
				return fmt.Errorf("ARCADE_JWT_SECRET is required when ARCADE_ALLOW_ACTOR_HEADER is off")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withDB(ctx, func(ctx context.Context, conn *sql.DB) error {
				cfg, err := app.ResolveFacilityAndConfig(ctx, conn, viper.GetString("facility"), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return serve(ctx, engine.New(conn, cfg), settings)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func serve(ctx context.Context, e engine.Engine, settings app.ServeSettings) error {
	logger := slog.Default().With("facility", e.FacilityID())
	handler, err := server.New(server.Config{
		Engine:   e,
		BasePath: settings.BasePath,
		Logger:   logger,
		Auth: server.AuthConfig{
			JWTSecret:              settings.JWTSecret,
			AllowLegacyActorHeader: settings.AllowActorHeader,
			Logger:                 logger,
		},
	})
	if err != nil {
		return err
	}
	if settings.Webhooks {
		server.StartWebhooks(ctx, e, logger)
	}
	srv := &http.Server{Addr: settings.Addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "err", err)
		}
	}()
	logger.Info("serving", "addr", settings.Addr, "base_path", settings.BasePath)
	fmt.Printf("Serving arcade API on http://%s%s (OpenAPI at %s/openapi.json)\n", settings.Addr, settings.BasePath, settings.BasePath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
