package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"github.com/mailpeek/mailpeek/internal/classifier"
	"github.com/mailpeek/mailpeek/internal/credentials"
	"github.com/mailpeek/mailpeek/internal/gmail"
	"github.com/mailpeek/mailpeek/internal/google"
	"github.com/mailpeek/mailpeek/internal/instrumentation"
	"github.com/mailpeek/mailpeek/internal/store"
)

const (
	// DefaultAddr is the default bind address for the API server.
	DefaultAddr = ":8080"

	defaultReadHeaderTimeout = 10 * time.Second
	defaultWriteTimeout      = 60 * time.Second
	defaultIdleTimeout       = 120 * time.Second
)

// MessageLister is the Gmail surface consumed by the /emails handler.
type MessageLister interface {
	ListMessageIDs(ctx context.Context, query string, maxResults int64) ([]string, error)
	FetchDetails(ctx context.Context, ids []string) ([]gmail.Summary, error)
}

// GmailClientFactory builds a Gmail client bound to a live credential.
type GmailClientFactory func(ctx context.Context, live *credentials.Live) (MessageLister, error)

// CredentialResolver turns the stored credential into a usable one.
type CredentialResolver interface {
	Resolve(ctx context.Context) (*credentials.Live, error)
}

// Annotator labels one message with a category and priority.
type Annotator interface {
	Classify(ctx context.Context, subject, snippet string) classifier.Result
}

// Config wires the dependencies of the API server.
type Config struct {
	// Addr is the bind address (default ":8080").
	Addr string

	// OAuth is the Google OAuth client configuration.
	OAuth *oauth2.Config

	// Store persists exchanged credentials.
	Store *store.CredentialStore

	// Resolver loads and refreshes the stored credential.
	Resolver CredentialResolver

	// Annotator classifies fetched messages.
	Annotator Annotator

	// EmailResolver determines the account email after token exchange.
	EmailResolver *google.EmailResolver

	// GmailFactory builds Gmail clients. Defaults to the real client;
	// tests substitute fakes here.
	GmailFactory GmailClientFactory

	// PingDB checks storage connectivity for the readiness probe.
	PingDB func(ctx context.Context) error

	// Metrics records observability metrics. Optional.
	Metrics *instrumentation.Metrics

	// Audit records per-operation audit events. Optional.
	Audit *instrumentation.AuditLogger

	// Logger is the structured logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the mailpeek HTTP API server.
type Server struct {
	addr      string
	oauth     *oauth2.Config
	store     *store.CredentialStore
	resolver  CredentialResolver
	annotator Annotator
	emails    *google.EmailResolver
	newGmail  GmailClientFactory
	states    *stateStore
	metrics   *instrumentation.Metrics
	audit     *instrumentation.AuditLogger
	logger    *slog.Logger
	health    *HealthChecker

	httpServer *http.Server
	shutdown   atomic.Bool
}

// New creates an API server from the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.OAuth == nil {
		return nil, fmt.Errorf("OAuth configuration is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("credential resolver is required")
	}
	if cfg.Annotator == nil {
		return nil, fmt.Errorf("annotator is required")
	}

	s := &Server{
		addr:      cfg.Addr,
		oauth:     cfg.OAuth,
		store:     cfg.Store,
		resolver:  cfg.Resolver,
		annotator: cfg.Annotator,
		emails:    cfg.EmailResolver,
		newGmail:  cfg.GmailFactory,
		states:    newStateStore(),
		metrics:   cfg.Metrics,
		audit:     cfg.Audit,
		logger:    cfg.Logger,
	}
	if s.addr == "" {
		s.addr = DefaultAddr
	}
	if s.emails == nil {
		s.emails = google.NewEmailResolver()
	}
	if s.newGmail == nil {
		s.newGmail = func(ctx context.Context, live *credentials.Live) (MessageLister, error) {
			return gmail.NewClient(ctx, live.TokenSource(), gmail.WithLogger(s.logger))
		}
	}
	if s.metrics == nil {
		s.metrics = &instrumentation.Metrics{}
	}
	if s.audit == nil {
		s.audit = instrumentation.NewAuditLogger(cfg.Logger)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.health = NewHealthChecker(cfg.PingDB, s.shutdown.Load)
	return s, nil
}

// Handler returns the complete route table of the API server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /login", s.instrumented("login", s.handleLogin))
	mux.Handle("GET /oauth2callback", s.instrumented("oauth_callback", s.handleCallback))
	mux.Handle("GET /emails", s.instrumented("list_emails", s.handleEmails))

	s.health.RegisterHealthEndpoints(mux)

	return mux
}

// Start runs the API server until Shutdown is called or the listener
// fails. It blocks; run it in a goroutine for non-blocking operation.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	s.logger.Info("starting API server", slog.String("addr", s.addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new requests and drains in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Store(true)
	s.health.SetReady(false)

	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured bind address.
func (s *Server) Addr() string {
	return s.addr
}
