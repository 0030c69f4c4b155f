package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"portfolio/internal/app"
	"portfolio/internal/archive"
	"portfolio/internal/config"
	"portfolio/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var noArchive bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Settings come from PORTFOLIO_* environment variables; --addr overrides PORTFOLIO_ADDR.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.LoadEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				env.Addr = addr
			}
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: env.SlogLevel()}))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ws, err := app.Open(ctx, viper.GetString("workspace"), viper.GetString("actor-id"), logger)
			if err != nil {
				return err
			}
			defer ws.Close()

			cfg := server.Config{
				Engine:   ws.Engine,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: env.JWTSecret},
				Logger:   logger,
			}
			if !noArchive {
				store, err := archive.New(ctx, workspaceArchive(env.ArchiveEnv))
				if err != nil {
					return err
				}
				cfg.Archive = &archive.Exporter{Storage: store}
			}
			if env.JWTSecret == "" {
				logger.Warn("PORTFOLIO_JWT_SECRET not set; trusting X-Actor-Id header")
			}
			handler, err := server.New(cfg)
			if err != nil {
				return err
			}
			if hooks := server.NewWebhookDispatcher(ws.Engine, logger); hooks != nil {
				go hooks.Run(ctx)
				logger.Info("webhook delivery enabled", "webhooks", len(ws.Config.Webhooks))
			}
			srv := &http.Server{Addr: env.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving portfolio API", "addr", env.Addr, "base_path", basePath, "archive", env.ArchiveEnv.Type)
			fmt.Printf("Serving portfolio API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", env.Addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "disable the export endpoint")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with PORTFOLIO_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.LoadEnv()
			if err != nil {
				return err
			}
			if subject == "" {
				subject = viper.GetString("actor-id")
			}
			tok, err := server.IssueToken(env.JWTSecret, subject, ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": tok, "subject": subject})
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "actor id to embed (defaults to --actor-id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime; 0 for no expiry")
	return cmd
}

// workspaceArchive anchors a relative local archive dir at the workspace.
func workspaceArchive(a config.ArchiveEnv) config.ArchiveEnv {
	if a.Type == "local" && !filepath.IsAbs(a.Dir) {
		a.Dir = filepath.Join(viper.GetString("workspace"), a.Dir)
	}
	return a
}
