package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices": [{"message": {"content": %q}}]}`, content)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClassify(t *testing.T) {
	srv := completionServer(t, `{"category": "Billing/Payments", "priority": 4}`)
	c := New("test-key", WithBaseURL(srv.URL))

	result := c.Classify(context.Background(), "Your invoice", "Invoice #42 is due")
	assert.Equal(t, "Billing/Payments", result.Category)
	assert.Equal(t, 4, result.Priority)
	assert.False(t, result.Fallback)
}

func TestClassifyClampsPriority(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected int
	}{
		{"above range", `{"category": "Newsletters", "priority": 9}`, 5},
		{"below range", `{"category": "Newsletters", "priority": 0}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := completionServer(t, tt.content)
			c := New("test-key", WithBaseURL(srv.URL))

			result := c.Classify(context.Background(), "Weekly digest", "news")
			assert.Equal(t, "Newsletters", result.Category)
			assert.Equal(t, tt.expected, result.Priority)
			assert.False(t, result.Fallback)
		})
	}
}

func TestClassifyFallback(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed answer", `not json at all`},
		{"unknown category", `{"category": "Spam Folder", "priority": 2}`},
		{"empty category", `{"priority": 2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := completionServer(t, tt.content)
			c := New("test-key", WithBaseURL(srv.URL))

			result := c.Classify(context.Background(), "subject", "snippet")
			assert.Equal(t, FallbackCategory, result.Category)
			assert.Equal(t, FallbackPriority, result.Priority)
			assert.True(t, result.Fallback)
		})
	}
}

func TestClassifyFallbackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	c := New("test-key", WithBaseURL(srv.URL))
	result := c.Classify(context.Background(), "subject", "snippet")
	assert.True(t, result.Fallback)
}

func TestClassifyFallbackOnTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New("test-key", WithBaseURL(srv.URL))
	result := c.Classify(context.Background(), "subject", "snippet")
	assert.True(t, result.Fallback)
}

func TestClassifyTruncatesSnippet(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotPrompt = req.Messages[1].Content

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices": [{"message": {"content": "{\"category\": \"Other\", \"priority\": 2}"}}]}`)
	}))
	t.Cleanup(srv.Close)

	c := New("test-key", WithBaseURL(srv.URL))
	long := strings.Repeat("x", 4000)
	result := c.Classify(context.Background(), "subject", long)

	require.False(t, result.Fallback)
	assert.Contains(t, gotPrompt, strings.Repeat("x", maxSnippetChars))
	assert.NotContains(t, gotPrompt, strings.Repeat("x", maxSnippetChars+1))
}

func TestValidCategory(t *testing.T) {
	assert.True(t, ValidCategory("Work/Internship"))
	assert.True(t, ValidCategory("  Other  "))
	assert.False(t, ValidCategory("unclassified"))
	assert.False(t, ValidCategory(""))
}
