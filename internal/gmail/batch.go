package gmail

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/mailpeek/mailpeek/internal/common"
)

var metadataHeaders = []string{"Subject", "From", "Date"}

const messageFields = "id,threadId,snippet,payload(headers,mimeType,parts(filename,mimeType,body/attachmentId,parts),body/attachmentId,filename)"

// FetchDetails retrieves the given messages in a single batch request
// and returns their summaries in the order the ids were supplied.
//
// Each id is fetched as an independent sub-request. A sub-request that
// fails is logged and its slot dropped from the result, so one broken
// message never discards the rest of the page. Only a failure of the
// batch call itself returns an error: 401 or 403 means the credential
// is no longer accepted and the caller must re-authenticate.
func (c *Client) FetchDetails(ctx context.Context, ids []string) ([]Summary, error) {
	if len(ids) == 0 {
		return []Summary{}, nil
	}

	body, boundary, err := buildBatchBody(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build batch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.batchURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build batch request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/mixed; boundary="+boundary)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, wrapAPIError("batch get messages", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: batch request returned %s", common.ErrAuthExpired, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: batch request returned %s", common.ErrUpstream, resp.Status)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("%w: unexpected batch content type %q", common.ErrUpstream, resp.Header.Get("Content-Type"))
	}

	// One result slot per requested id, matched by Content-ID. Slots
	// keep the output in request order no matter how the parts arrive.
	slots := make([]*Summary, len(ids))

	mr := multipart.NewReader(resp.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading batch response: %v", common.ErrUpstream, err)
		}

		idx, ok := partIndex(part.Header.Get("Content-ID"))
		if !ok || idx < 0 || idx >= len(ids) {
			c.logger.Warn("discarding batch part with unknown content id",
				slog.String("content_id", part.Header.Get("Content-ID")))
			continue
		}

		msg, err := decodePart(part)
		if err != nil {
			c.logger.Error("failed to fetch message in batch",
				slog.String("message_id", ids[idx]),
				slog.String("error", err.Error()))
			continue
		}
		summary := buildSummary(msg)
		slots[idx] = &summary
	}

	summaries := make([]Summary, 0, len(ids))
	for _, s := range slots {
		if s != nil {
			summaries = append(summaries, *s)
		}
	}
	return summaries, nil
}

func buildBatchBody(ids []string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	query := url.Values{}
	query.Set("format", "full")
	query.Set("fields", messageFields)
	for _, h := range metadataHeaders {
		query.Add("metadataHeaders", h)
	}
	encoded := query.Encode()

	for i, id := range ids {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Type", "application/http")
		header.Set("Content-ID", fmt.Sprintf("<item-%d>", i))
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		fmt.Fprintf(part, "GET /gmail/v1/users/me/messages/%s?%s HTTP/1.1\r\n\r\n", url.PathEscape(id), encoded)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.Boundary(), nil
}

// partIndex extracts the request position from a batch response
// Content-ID. The API echoes "<item-N>" back as "<response-item-N>".
func partIndex(contentID string) (int, bool) {
	id := strings.Trim(contentID, "<>")
	id = strings.TrimPrefix(id, "response-")
	num, ok := strings.CutPrefix(id, "item-")
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(num)
	if err != nil {
		return 0, false
	}
	return idx, true
}

func decodePart(part *multipart.Part) (*gmailapi.Message, error) {
	if ct := part.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/http") {
		return nil, fmt.Errorf("unexpected part content type %q", ct)
	}

	resp, err := http.ReadResponse(bufio.NewReader(part), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded response: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("sub-request returned %s: %s", resp.Status, bytes.TrimSpace(detail))
	}

	var msg gmailapi.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &msg, nil
}
