package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"

	maxSnippetChars = 1500
)

var systemPrompt = "You are an AI that sorts emails into 25 categories and rates their importance from 1 to 5.\n" +
	"Pick exactly one category from this list:\n" + strings.Join(Categories, ", ") + "\n" +
	"Always answer as JSON of the form {\"category\": <category>, \"priority\": <number>}."

// Result is the outcome of classifying one message. Fallback is set
// when the model could not be consulted or returned something unusable.
type Result struct {
	Category string
	Priority int
	Fallback bool
}

var fallbackResult = Result{Category: FallbackCategory, Priority: FallbackPriority, Fallback: true}

// Classifier calls an OpenAI-compatible chat completion endpoint.
type Classifier struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithBaseURL overrides the completion API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Classifier) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithModel selects the completion model.
func WithModel(model string) Option {
	return func(c *Classifier) {
		c.model = model
	}
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Classifier) {
		c.http = client
	}
}

// WithLogger sets the logger used for fallback diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// New builds a Classifier with the given API key.
func New(apiKey string, opts ...Option) *Classifier {
	c := &Classifier{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		model:   DefaultModel,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify labels a single message from its subject and snippet. It
// never returns an error: when the model cannot be reached, answers
// with malformed JSON, or picks a label outside the allowed set, the
// fallback result is returned and the cause logged.
func (c *Classifier) Classify(ctx context.Context, subject, snippet string) Result {
	result, err := c.complete(ctx, subject, snippet)
	if err != nil {
		c.logger.Warn("classification failed, using fallback",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
		return fallbackResult
	}
	return result
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat format        `json:"response_format"`
	MaxTokens      int           `json:"max_tokens"`
	Temperature    float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type format struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type verdict struct {
	Category string `json:"category"`
	Priority int    `json:"priority"`
}

func (c *Classifier) complete(ctx context.Context, subject, snippet string) (Result, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Subject: %s\nBody summary: %s", subject, truncate(snippet, maxSnippetChars))},
		},
		ResponseFormat: format{Type: "json_object"},
		MaxTokens:      20,
		Temperature:    0.3,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("completion API returned %s: %s", resp.Status, bytes.TrimSpace(detail))
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return Result{}, fmt.Errorf("failed to decode completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Result{}, fmt.Errorf("completion contained no choices")
	}

	var v verdict
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &v); err != nil {
		return Result{}, fmt.Errorf("model answer is not valid JSON: %w", err)
	}

	v.Category = strings.TrimSpace(v.Category)
	if !ValidCategory(v.Category) {
		return Result{}, fmt.Errorf("model picked unknown category %q", v.Category)
	}

	return Result{Category: v.Category, Priority: clampPriority(v.Priority)}, nil
}

func clampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
