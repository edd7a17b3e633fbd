package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mailpeek/mailpeek/internal/common"
)

const defaultBatchURL = "https://gmail.googleapis.com/batch/gmail/v1"

// Client wraps an authenticated Gmail service for a single user.
type Client struct {
	svc      *gmailapi.Service
	http     *http.Client
	batchURL string
	endpoint string
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for per-item batch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithEndpoint points both the Gmail service and the batch request at an
// alternative base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
		c.batchURL = endpoint + "/batch/gmail/v1"
	}
}

// NewClient builds a Gmail client around the given token source. The
// token source is expected to be valid; token refresh failures surface
// on first use.
func NewClient(ctx context.Context, ts oauth2.TokenSource, opts ...Option) (*Client, error) {
	c := &Client{
		http:     oauth2.NewClient(ctx, ts),
		batchURL: defaultBatchURL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(c.http)}
	if c.endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(c.endpoint))
	}
	svc, err := gmailapi.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	c.svc = svc
	return c, nil
}

// ListMessageIDs runs a Gmail search and returns the matching message
// ids, newest first, up to maxResults.
func (c *Client) ListMessageIDs(ctx context.Context, query string, maxResults int64) ([]string, error) {
	resp, err := c.svc.Users.Messages.List("me").
		Q(query).
		MaxResults(maxResults).
		Fields("messages/id").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapAPIError("list messages", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func wrapAPIError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden {
			return fmt.Errorf("%w: %s: %v", common.ErrAuthExpired, op, err)
		}
		return fmt.Errorf("%w: %s: %v", common.ErrUpstream, op, err)
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: %s: %v", common.ErrAuthExpired, op, err)
	}
	return fmt.Errorf("%w: %s: %v", common.ErrUpstream, op, err)
}
