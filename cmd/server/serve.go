package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"punchclock/internal/admin"
	biometrichandler "punchclock/internal/biometric/handler"
	httpapi "punchclock/internal/http"
	jwttoken "punchclock/internal/jwt_token"
	"punchclock/internal/platform/httpserver"
	"punchclock/internal/platform/metrics"
	punchhandler "punchclock/internal/punch/handler"
)

const (
	tokenIssuer   = "punchclock"
	tokenAudience = "punchclock-api"
)

func serveCmd(envFile *string) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API with kiosk and administrator routes.

Examples:
  punchclock serve
  punchclock serve --migrate --env-file deploy/.env`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *envFile, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	return cmd
}

func runServe(parent context.Context, envFile string, migrate bool) error {
	cfg, log, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if migrate {
		if err := runMigrations(ctx, a); err != nil {
			return err
		}
	}

	var broker httpapi.EventsProbe
	if a.kafka != nil {
		broker = a.kafka
	}
	tokens := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, tokenIssuer, tokenAudience)
	router := httpapi.NewRouter(httpapi.Deps{
		Logger:    log,
		Metrics:   metrics.New(),
		Tokens:    jwttoken.NewValidator(tokens),
		Health:    httpapi.NewHealth(a.db, a.biometric, broker, log),
		Biometric: biometrichandler.New(a.biometric, log),
		Punch:     punchhandler.New(a.punch, log),
		Admin:     admin.New(a.biometric, a.schedules, a.settings, log),
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	if n, err := a.biometric.WarmCache(ctx); err != nil {
		log.WarnContext(ctx, "initial template cache warm-up failed", "error", err)
	} else {
		log.InfoContext(ctx, "template cache warmed", "enrolled", n)
	}
	go warmPeriodically(ctx, a, cfg.Biometric.WarmUpInterval)

	serveErr := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "starting punchclock", "addr", cfg.Server.Addr, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// warmPeriodically repopulates the template cache on a fixed interval until
// ctx ends. A zero interval disables it.
func warmPeriodically(ctx context.Context, a *app, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.biometric.WarmCache(ctx)
			if err != nil {
				a.logger.WarnContext(ctx, "periodic template cache warm-up failed", "error", err)
				continue
			}
			a.logger.DebugContext(ctx, "periodic template cache warm-up", "enrolled", n)
		}
	}
}
