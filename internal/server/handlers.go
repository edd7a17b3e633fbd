package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mailpeek/mailpeek/internal/common"
	"github.com/mailpeek/mailpeek/internal/gmail"
	"github.com/mailpeek/mailpeek/internal/google"
	"github.com/mailpeek/mailpeek/internal/instrumentation"
	"github.com/mailpeek/mailpeek/internal/logging"
)

// Query parameter bounds for /emails.
const (
	DefaultDays       = 3
	MaxDays           = 30
	DefaultMaxResults = 10
	MaxMaxResults     = 50
)

type errorResponse struct {
	Error string `json:"error"`
}

type emailListResponse struct {
	User   string          `json:"user"`
	Count  int             `json:"count"`
	Emails []gmail.Summary `json:"emails"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusForError maps the error taxonomy onto HTTP statuses. The same
// mapping applies on every endpoint.
func statusForError(err error) int {
	switch {
	case errors.Is(err, common.ErrNoCredential), errors.Is(err, common.ErrAuthExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, common.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)

	var msg string
	switch {
	case errors.Is(err, common.ErrNoCredential):
		msg = "not authenticated: visit /login first"
	case errors.Is(err, common.ErrAuthExpired):
		msg = "credentials expired: re-authentication via /login required"
	case errors.Is(err, common.ErrUpstream):
		msg = "upstream service failure"
	case errors.Is(err, common.ErrStorage):
		msg = "storage unavailable"
	default:
		msg = "internal error"
	}

	s.logger.Warn("request failed",
		slog.Int("status", status),
		logging.Err(err),
	)
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleLogin starts the OAuth flow by redirecting the browser to
// Google's consent screen with a single-use state value.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := s.states.Issue()
	http.Redirect(w, r, google.AuthCodeURL(s.oauth, state), http.StatusFound)
}

// handleCallback completes the OAuth flow: the code is exchanged for
// tokens, the account email resolved, and the credential persisted
// encrypted. The session becomes the active one for /emails.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record := instrumentation.NewOperationRecord("oauth_callback").
		WithService(instrumentation.ServiceOAuth2).
		WithSpanContext(ctx)

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.audit.LogOperation(record.CompleteWithError(fmt.Errorf("consent denied: %s", errParam)))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "authorization was denied"})
		return
	}

	if !s.states.Consume(r.URL.Query().Get("state")) {
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.audit.LogOperation(record.CompleteWithError(errors.New("unknown or expired state")))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid OAuth state"})
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.audit.LogOperation(record.CompleteWithError(errors.New("missing code parameter")))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing authorization code"})
		return
	}

	start := time.Now()
	token, err := s.oauth.Exchange(ctx, code)
	s.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth2, instrumentation.OperationExchange,
		statusOf(err), time.Since(start))
	if err != nil {
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.audit.LogOperation(record.CompleteWithError(err))
		s.writeError(w, fmt.Errorf("%w: token exchange: %v", common.ErrUpstream, err))
		return
	}

	email, err := s.emails.ResolveEmail(ctx, token)
	if err != nil {
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.audit.LogOperation(record.CompleteWithError(err))
		// A consent response without a resolvable email is a client-side
		// problem; only tokeninfo transport failures count as upstream.
		if errors.Is(err, google.ErrEmailUndetermined) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to determine user email"})
			return
		}
		s.writeError(w, fmt.Errorf("%w: resolving account email: %v", common.ErrUpstream, err))
		return
	}

	var refresh *string
	if token.RefreshToken != "" {
		refresh = &token.RefreshToken
	}
	if err := s.store.Save(ctx, email, token.AccessToken, refresh, token.Expiry); err != nil {
		s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.audit.LogOperation(record.WithUser(email).CompleteWithError(err))
		s.writeError(w, err)
		return
	}

	s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	s.audit.LogOperation(record.WithUser(email).CompleteSuccess())
	s.logger.Info("credential stored",
		logging.Operation("oauth_callback"),
		logging.UserHash(email),
		slog.String("access_token", logging.SanitizeToken(token.AccessToken)),
	)

	// Land the browser on the list it just authorized access to.
	http.Redirect(w, r, "/emails", http.StatusFound)
}

// handleEmails returns recent messages for the active session,
// annotated with a category and priority score.
func (s *Server) handleEmails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days, err := boundedQueryInt(r, "days", DefaultDays, 1, MaxDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	maxResults, err := boundedQueryInt(r, "max_results", DefaultMaxResults, 1, MaxMaxResults)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	record := instrumentation.NewOperationRecord("list_emails").
		WithService(instrumentation.ServiceGmail).
		WithSpanContext(ctx)

	live, err := s.resolver.Resolve(ctx)
	if err != nil {
		s.audit.LogOperation(record.CompleteWithError(err))
		s.writeError(w, err)
		return
	}
	record.WithUser(live.UserEmail)

	client, err := s.newGmail(ctx, live)
	if err != nil {
		s.audit.LogOperation(record.CompleteWithError(err))
		s.writeError(w, fmt.Errorf("%w: creating Gmail client: %v", common.ErrUpstream, err))
		return
	}

	start := time.Now()
	ids, err := client.ListMessageIDs(ctx, gmail.BuildRecencyQuery(days), int64(maxResults))
	s.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, instrumentation.OperationList,
		statusOf(err), time.Since(start))
	if err != nil {
		s.audit.LogOperation(record.CompleteWithError(err))
		s.writeError(w, err)
		return
	}

	start = time.Now()
	summaries, err := client.FetchDetails(ctx, ids)
	s.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, instrumentation.OperationBatchGet,
		statusOf(err), time.Since(start))
	if err != nil {
		s.audit.LogOperation(record.CompleteWithError(err))
		s.writeError(w, err)
		return
	}
	s.metrics.RecordBatchItemFailures(ctx, int64(len(ids)-len(summaries)))

	s.annotate(ctx, summaries)

	s.audit.LogOperation(record.CompleteSuccess())
	writeJSON(w, http.StatusOK, emailListResponse{
		User:   live.UserEmail,
		Count:  len(summaries),
		Emails: summaries,
	})
}

// annotate classifies each summary in place. Fallback results still
// annotate the message; they are counted but never fail the request.
func (s *Server) annotate(ctx context.Context, summaries []gmail.Summary) {
	for i := range summaries {
		start := time.Now()
		result := s.annotator.Classify(ctx, summaries[i].Subject, summaries[i].Snippet)
		summaries[i].CategoryPred = result.Category
		summaries[i].PriorityScore = result.Priority

		outcome := instrumentation.ClassificationSuccess
		if result.Fallback {
			outcome = instrumentation.ClassificationFallback
		}
		s.metrics.RecordClassification(ctx, outcome, result.Category, time.Since(start))
	}
}

func boundedQueryInt(r *http.Request, name string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be between %d and %d", name, min, max)
	}
	return v, nil
}

func statusOf(err error) string {
	if err != nil {
		return instrumentation.StatusError
	}
	return instrumentation.StatusSuccess
}
