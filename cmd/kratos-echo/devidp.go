package main

import (
	"context"
	"log/slog"
	"net"
	"os/signal"
	"syscall"

	"github.com/atjeff/kratos-echo/config"
	"github.com/atjeff/kratos-echo/internal/devidp"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var (
	devidpIdentities []string
	devidpLoginRate  float64
)

var devidpCmd = &cobra.Command{
	Use:   "devidp",
	Short: "Run the development identity provider",
	Long: `devidp speaks the parts of the Kratos public API kratos-echo uses: native
login flows with email codes, whoami and logout. Addresses whose local part
ends in "_test" (for example tester+clerk_test@example.com) always get the
code 424242; other codes are written to the log.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()
		return runDevIDP(ctx)
	},
}

func init() {
	devidpCmd.Flags().StringSliceVar(&devidpIdentities, "identity", []string{"tester+clerk_test@example.com"}, "email addresses to register at startup")
	devidpCmd.Flags().Float64Var(&devidpLoginRate, "login-rate", 5, "login submissions per second and client IP; 0 disables the limit")
}

func runDevIDP(ctx context.Context) error {
	otelCfg, otelShutdown := setupTelemetry(ctx, "kratos-echo-devidp")

	cfg, err := config.LoadDevIDP()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load configuration", "error", err)
		return err
	}

	var store devidp.Store = devidp.NewMemoryStore()
	if cfg.RedisURL != "" {
		rs, err := devidp.NewRedisStoreWithURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rs.Close()
		store = rs
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = "http://" + net.JoinHostPort("127.0.0.1", cfg.Port)
	}

	s := devidp.New(devidp.Config{
		PublicURL:    publicURL,
		FlowTTL:      cfg.FlowTTL,
		SessionTTL:   cfg.SessionTTL,
		AutoRegister: cfg.AutoRegister,
		LoginRate:    rate.Limit(devidpLoginRate),
	}, store, nil, slog.Default())
	defer s.Close()

	seed := &devidp.Seed{}
	if cfg.SeedFile != "" {
		if seed, err = devidp.LoadSeed(cfg.SeedFile); err != nil {
			return err
		}
	}
	for _, email := range devidpIdentities {
		seed.Identities = append(seed.Identities, devidp.SeedIdentity{Email: email})
	}
	if err := s.ApplySeed(ctx, seed); err != nil {
		return err
	}
	slog.InfoContext(ctx, "devidp ready", "public_url", publicURL, "identities", len(seed.Identities))

	e := s.Echo()
	for _, mw := range edgeMiddleware(otelCfg, "/health/alive", "/health/ready") {
		e.Use(mw)
	}
	return serve(ctx, e, net.JoinHostPort("", cfg.Port), otelShutdown)
}
