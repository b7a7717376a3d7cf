package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	kratosecho "github.com/atjeff/kratos-echo"
	"github.com/atjeff/kratos-echo/config"
	"github.com/atjeff/kratos-echo/internal/app"
	appmiddleware "github.com/atjeff/kratos-echo/middleware"
	"github.com/atjeff/kratos-echo/utils/logger"
	"github.com/atjeff/kratos-echo/utils/otel"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var providerWait time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the example application",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	serveCmd.Flags().DurationVar(&providerWait, "provider-wait", 30*time.Second, "how long to wait for the identity provider at startup")
}

// setupTelemetry installs the OTel providers and the default logger.
func setupTelemetry(ctx context.Context, service string) (otel.Config, otel.ShutdownFunc) {
	otelCfg := otel.ConfigFromEnv(service)
	otelShutdown, err := otel.InitProvider(ctx, otelCfg)
	if err != nil {
		slog.Warn("failed to initialize OpenTelemetry, continuing without tracing", "error", err)
		otelCfg.Enabled = false
		otelShutdown = func(context.Context) error { return nil }
	}
	logger.Init(otelCfg.Enabled)
	return otelCfg, otelShutdown
}

// edgeMiddleware is the tracing and request logging every server gets.
func edgeMiddleware(otelCfg otel.Config, skip ...string) []echo.MiddlewareFunc {
	var mws []echo.MiddlewareFunc
	if otelCfg.Enabled {
		mws = append(mws, otelecho.Middleware(otelCfg.ServiceName), appmiddleware.OTelStatusMiddleware())
	}
	return append(mws, logger.RequestLogger(slog.Default(), skip...))
}

func runServe(ctx context.Context) error {
	otelCfg, otelShutdown := setupTelemetry(ctx, "kratos-echo")

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load configuration", "error", err)
		return err
	}
	slog.InfoContext(ctx, "configuration loaded",
		"port", cfg.Port,
		"protected_paths", cfg.ProtectedPaths,
		"redis", cfg.RedisURL != "",
		"session_ttl", cfg.SessionTTL)

	waitCtx, cancel := context.WithTimeout(ctx, providerWait)
	defer cancel()
	client, err := kratosecho.Initialize(waitCtx, cfg.KratosKey, &kratosecho.Options{
		AppName:        cfg.AppName,
		AfterSignInURL: "/admin",
		SecureCookies:  cfg.SecureCookies,
		SessionTTL:     cfg.SessionTTL,
		SessionSecret:  cfg.SessionSecret,
		ProtectedPaths: cfg.ProtectedPaths,
		CacheTTL:       cfg.CacheTTL,
		RedisURL:       cfg.RedisURL,
		SignInRate:     rate.Limit(cfg.SignInRate),
		Logger:         slog.Default(),
	})
	if err != nil {
		slog.ErrorContext(ctx, "identity provider not reachable", "error", err)
		return err
	}
	defer client.Close()

	e, err := app.New(client, app.Config{
		AppName:      cfg.AppName,
		ServerSecret: cfg.ServerSecret,
		HSTS:         cfg.SecureCookies,
		Middleware:   edgeMiddleware(otelCfg, "/healthz", "/metrics"),
	})
	if err != nil {
		return err
	}

	return serve(ctx, e, net.JoinHostPort("", cfg.Port), otelShutdown)
}

// serve runs e until ctx ends, then shuts it and telemetry down.
func serve(ctx context.Context, e *echo.Echo, address string, otelShutdown otel.ShutdownFunc) error {
	slog.InfoContext(ctx, "starting server", "address", address)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return otelShutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("shutdown error", "error", err)
		return err
	}

	slog.Info("server exited properly")
	return nil
}
