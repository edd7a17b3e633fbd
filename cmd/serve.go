package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailpeek/mailpeek/internal/classifier"
	"github.com/mailpeek/mailpeek/internal/config"
	"github.com/mailpeek/mailpeek/internal/credentials"
	"github.com/mailpeek/mailpeek/internal/google"
	"github.com/mailpeek/mailpeek/internal/instrumentation"
	"github.com/mailpeek/mailpeek/internal/logging"
	"github.com/mailpeek/mailpeek/internal/server"
	"github.com/mailpeek/mailpeek/internal/store"
	"github.com/mailpeek/mailpeek/internal/tokencipher"
)

const metricsStartupTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var (
		debugMode      bool
		httpAddr       string
		metricsAddr    string
		metricsEnabled bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mailpeek HTTP API server",
		Long: `Serve starts the mailpeek API: /login and /oauth2callback drive the
Google OAuth flow, /emails returns recent messages annotated with a
category and priority score. Credentials are stored AES-encrypted in
PostgreSQL and Prometheus metrics are exposed on a dedicated port.

Configuration is read from environment variables (ENCRYPTION_KEY,
GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET, OAUTH_REDIRECT_URL,
DATABASE_DSN, OPENAI_API_KEY, ...); flags override the corresponding
environment settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			if cmd.Flags().Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if cmd.Flags().Changed("metrics-enabled") {
				cfg.MetricsEnabled = metricsEnabled
			}
			if debugMode {
				cfg.Debug = true
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			return runServe(cfg)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&httpAddr, "http-addr", config.DefaultHTTPAddr, "Address for the API server")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", config.DefaultMetricsAddr, "Address for the Prometheus metrics server")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the Prometheus metrics server")

	return cmd
}

func runServe(cfg *config.Config) error {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := logging.Setup(level)

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if cfg.MetricsEnabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		// Use ready channel to confirm metrics server started successfully
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		select {
		case <-metricsReady:
			logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(metricsStartupTimeout):
			return fmt.Errorf("metrics server startup timed out")
		}
	}

	// Open storage and run migrations
	db, err := store.Open(shutdownCtx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("failed to open credential storage: %w", err)
	}
	defer func() { _ = db.Close() }()

	cipher, err := tokencipher.New(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize token cipher: %w", err)
	}
	credStore := store.New(db, cipher)

	oauthConf := google.OAuthConfig(google.ClientCredentials{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
	})

	apiServer, err := server.New(server.Config{
		Addr:     cfg.HTTPAddr,
		OAuth:    oauthConf,
		Store:    credStore,
		Resolver: credentials.NewResolver(credStore, oauthConf),
		Annotator: classifier.New(cfg.CompletionAPIKey,
			classifier.WithBaseURL(cfg.CompletionBaseURL),
			classifier.WithModel(cfg.CompletionModel),
			classifier.WithLogger(logger),
		),
		PingDB:  db.PingContext,
		Metrics: provider.Metrics(),
		Audit:   instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
	}

	// Drain in-flight requests, metrics last so the final scrape works
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancelDrain()

	if err := apiServer.Shutdown(drainCtx); err != nil {
		logger.Error("error during API server shutdown", logging.Err(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(drainCtx); err != nil {
			logger.Error("error during metrics server shutdown", logging.Err(err))
		}
	}

	return nil
}
