// Package main is the entry point for the contact relay service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shineum/contact-relay/internal/compose"
	"github.com/shineum/contact-relay/internal/config"
	"github.com/shineum/contact-relay/internal/delivery"
	"github.com/shineum/contact-relay/internal/logging"
	"github.com/shineum/contact-relay/internal/provider"
	"github.com/shineum/contact-relay/internal/server"
	certs "github.com/shineum/contact-relay/internal/tls"
)

// options are the command-line flags.
type options struct {
	configPath string
	envFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "contact-relay",
		Short: "Relay website contact-form submissions to email",
		Long: `contact-relay accepts contact-form submissions over HTTP, validates them,
and delivers a notification to the site owner plus a confirmation to the
submitter through a primary email provider with a single fallback.

Configuration comes from environment variables, optionally layered over a
YAML file (--config) and a .env file (--env-file).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
			defer signal.Stop(sigCh)

			go func() {
				select {
				case sig := <-sigCh:
					slog.Info("received signal, initiating shutdown", "signal", sig)
					cancel()
				case <-ctx.Done():
				}
			}()

			if err := run(ctx, opts); err != nil {
				slog.Error("contact-relay failed", "error", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML configuration file (optional)")
	cmd.Flags().StringVar(&opts.envFile, "env-file", "", "path to .env file (default .env if present)")
	return cmd
}

// run wires every component and serves until ctx is cancelled.
func run(ctx context.Context, opts options) error {
	if err := config.LoadEnvFile(opts.envFile); err != nil {
		return err
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	// Startup continues without recipients; requests answer "misconfigured".
	if err := cfg.RequireRecipients(); err != nil {
		slog.Error("contact form is not fully configured", "error", err)
	}

	chain, err := provider.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	primary, fallback := chain.Names()

	composer, err := compose.New(compose.Settings{
		From:                cfg.Contact.From,
		Owner:               cfg.Contact.To,
		Cc:                  cfg.Contact.Cc,
		SiteName:            cfg.Contact.SiteName,
		ConfirmationSubject: cfg.Contact.ConfirmationSubject,
	})
	if err != nil {
		return err
	}

	tlsConfig, err := certs.ServerConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.SelfSigned)
	if err != nil {
		return fmt.Errorf("failed to setup TLS: %w", err)
	}

	tlsMode := "off"
	switch {
	case cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "":
		tlsMode = "file"
	case cfg.TLS.SelfSigned:
		tlsMode = "self-signed"
	}

	handler := server.NewHandler(server.Options{
		Config:    cfg,
		Composer:  composer,
		Deliverer: delivery.New(chain, cfg.Delivery.Timeout),
		Primary:   primary,
		Fallback:  fallback,
	})

	srv := server.New(server.Config{
		ListenAddr:   cfg.Server.Listen,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		TLSConfig:    tlsConfig,
	}, handler)

	slog.Info("starting contact-relay",
		"listen", cfg.Server.Listen,
		"path", cfg.Server.Path,
		"provider", primary,
		"fallback", fallback,
		"cors_origins", len(cfg.Server.AllowedOrigins),
		"tls_mode", tlsMode,
	)

	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("contact-relay stopped")
	return nil
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
