// Package credentials reconstructs a usable OAuth credential from its
// encrypted-at-rest form.
//
// A resolved Live credential exists in memory only and is owned by the
// request that resolved it. The provider's authoritative expiry is not
// trusted; instead the access token is assumed valid for a short fixed
// window after it was stored, and the oauth2 TokenSource performs a
// just-in-time refresh once that window has passed. Tokens renewed by that
// refresh are written back to the store so the next resolution starts
// inside a fresh window.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/mailpeek/mailpeek/internal/common"
	"github.com/mailpeek/mailpeek/internal/logging"
	"github.com/mailpeek/mailpeek/internal/store"
)

// ValidityWindow is the conservative lifetime assumed for a stored access
// token, measured from the moment it was written. Google access tokens live
// for one hour; 55 minutes leaves headroom for clock skew.
const ValidityWindow = 55 * time.Minute

// CredentialStorage is the subset of the store used by the resolver. Save
// receives tokens renewed during a refresh.
type CredentialStorage interface {
	LoadLatest(ctx context.Context) (*store.StoredCredential, error)
	DecryptAccessToken(cred *store.StoredCredential) (string, error)
	DecryptRefreshToken(cred *store.StoredCredential) (string, error)
	Save(ctx context.Context, userEmail, accessToken string, refreshToken *string, expiry time.Time) error
}

// Live is a decrypted, usable-in-memory credential.
type Live struct {
	// UserEmail identifies the session owner.
	UserEmail string

	ts oauth2.TokenSource
}

// TokenSource returns the refreshing token source for this credential.
func (l *Live) TokenSource() oauth2.TokenSource {
	return l.ts
}

// HTTPClient returns an HTTP client that attaches (and transparently
// refreshes) the credential on every request.
func (l *Live) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, l.ts)
}

// Resolver converts stored credentials into live ones.
type Resolver struct {
	storage CredentialStorage
	conf    *oauth2.Config
}

// NewResolver constructs a Resolver. conf carries the token endpoint and
// client identity used for refresh.
func NewResolver(storage CredentialStorage, conf *oauth2.Config) *Resolver {
	return &Resolver{storage: storage, conf: conf}
}

// Resolve loads the latest stored credential, decrypts it and validates
// that it can produce a live token.
//
// Errors:
//   - common.ErrNoCredential: no session stored; the user must authenticate.
//   - common.ErrAuthExpired: the refresh token was rejected or is missing
//     while the access token's validity window has passed; the user must
//     re-authenticate.
//   - common.ErrUpstream: the token endpoint failed transiently.
func (r *Resolver) Resolve(ctx context.Context) (*Live, error) {
	cred, err := r.storage.LoadLatest(ctx)
	if err != nil {
		return nil, err
	}

	accessToken, err := r.storage.DecryptAccessToken(cred)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refreshToken, err := r.storage.DecryptRefreshToken(cred)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	token := &oauth2.Token{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		RefreshToken: refreshToken,
		Expiry:       cred.UpdatedAt.Add(ValidityWindow),
	}

	ts := &persistingTokenSource{
		ctx:     ctx,
		base:    r.conf.TokenSource(ctx, token),
		storage: r.storage,
		email:   cred.UserEmail,
		last:    accessToken,
	}

	// Validate the credential up front. The call is free while the token is
	// inside its validity window; past the window it forces the refresh and
	// surfaces a revoked refresh token here instead of deep in the fetch
	// path.
	if _, err := ts.Token(); err != nil {
		if isAuthRevoked(err) {
			return nil, fmt.Errorf("%w: %v", common.ErrAuthExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrUpstream, err)
	}

	return &Live{
		UserEmail: cred.UserEmail,
		ts:        ts,
	}, nil
}

// persistingTokenSource writes tokens renewed by the wrapped source back to
// the store. Without the write-back, every request after the validity
// window repeats the refresh round trip until the next login.
type persistingTokenSource struct {
	ctx     context.Context
	base    oauth2.TokenSource
	storage CredentialStorage
	email   string

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken == p.last {
		return tok, nil
	}

	var refresh *string
	if tok.RefreshToken != "" {
		refresh = &tok.RefreshToken
	}
	if err := p.storage.Save(p.ctx, p.email, tok.AccessToken, refresh, tok.Expiry); err != nil {
		// The renewed token is still usable; a later token fetch retries
		// the write-back.
		slog.Warn("failed to persist refreshed token",
			logging.UserHash(p.email),
			logging.Err(err),
		)
		return tok, nil
	}
	p.last = tok.AccessToken

	return tok, nil
}

// isAuthRevoked reports whether a token fetch failure means the stored
// session can no longer be renewed, as opposed to a transient endpoint
// failure.
func isAuthRevoked(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "invalid_grant" {
			return true
		}
		if retrieveErr.Response != nil {
			code := retrieveErr.Response.StatusCode
			return code == http.StatusBadRequest || code == http.StatusUnauthorized
		}
		return false
	}

	// x/oauth2 reports a missing refresh token as a plain error before any
	// network call is made.
	return err.Error() == `oauth2: token expired and refresh token is not set`
}
