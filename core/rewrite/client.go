// Package rewrite implements the language-model client: it builds the
// request for one batch, sends it to a chat-completions endpoint and
// recovers an id→text map from whatever the model answers.
package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/gaurav-prasanna/easyread/core"
)

const (
	DefaultEndpoint    = "https://api.llama.com/v1/chat/completions"
	DefaultModel       = "Llama-4-Maverick-17B-128E-Instruct-FP8"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 4000
	DefaultTimeout     = 90 * time.Second
	DefaultMaxRetries  = 2
	defaultBackoff     = time.Second
)

var (
	// ErrNoAPIKey is a configuration error: nothing can be sent without a key.
	ErrNoAPIKey = errors.Base("API key not set")
	// ErrStatus wraps non-2xx responses.
	ErrStatus = errors.Base("API error status")
)

// StatusError carries the HTTP status of a failed call.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("%s %d: %s", ErrStatus, e.Code, msg)
}

// Is makes every StatusError match ErrStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Retryable reports whether a later attempt could succeed.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Options configures a Client.
type Options struct {
	Endpoint    string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// MaxRetries bounds extra attempts on 429, 5xx and transport errors.
	// Negative disables retries.
	MaxRetries int
	// Backoff is the first retry delay; it doubles per attempt.
	Backoff time.Duration
	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
}

// Client talks to the chat-completions endpoint.
type Client struct {
	opts   Options
	client *http.Client
	parser *Parser
}

// New creates a Client, filling unset options with defaults.
func New(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{opts: opts, client: client, parser: &Parser{}}
}

// HasKey reports whether an API key is configured.
func (c *Client) HasKey() bool {
	return strings.TrimSpace(c.opts.APIKey) != ""
}

// Parser exposes the response parser so callers can observe stages.
func (c *Client) Parser() *Parser {
	return c.parser
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the chat-completions request body.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

// BuildRequest assembles the request for one batch.
func (c *Client) BuildRequest(batch core.Batch, t core.Transform) (*Request, error) {
	user, err := UserMessage(t, Items(batch))
	if err != nil {
		return nil, errors.Errorf("encoding batch payload: %w", err)
	}
	return &Request{
		Model: c.opts.Model,
		Messages: []Message{
			{Role: "system", Content: SystemPrompt(t)},
			{Role: "user", Content: user},
		},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
		Stream:      false,
	}, nil
}

// Rewrite sends batch and returns replacement text keyed by batch-local id.
// Transport failures, non-2xx statuses and unknown response shapes are
// errors; malformed model text is recovered by the Parser.
func (c *Client) Rewrite(ctx context.Context, batch core.Batch, t core.Transform) (map[string]string, error) {
	if !c.HasKey() {
		return nil, errors.WithStack(ErrNoAPIKey)
	}
	logger := zerolog.Ctx(ctx).With().Int("batch", batch.Index).Int("units", len(batch.Units)).Logger()

	req, err := c.BuildRequest(batch, t)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Errorf("marshaling request: %w", err)
	}

	raw, err := c.postWithRetry(ctx, &logger, body)
	if err != nil {
		return nil, err
	}

	parsed, kind, err := c.parser.ParseBody(ctx, raw, batch)
	if err != nil {
		return nil, err
	}
	logger.Debug().
		Stringer("envelope", kind).
		Stringer("stage", parsed.Stage).
		Int("replies", len(parsed.Texts)).
		Msg("batch response parsed")
	return parsed.Texts, nil
}

func (c *Client) postWithRetry(ctx context.Context, logger *zerolog.Logger, body []byte) ([]byte, error) {
	delay := c.opts.Backoff
	for attempt := 0; ; attempt++ {
		raw, err := c.post(ctx, body)
		if err == nil {
			return raw, nil
		}
		if attempt >= c.opts.MaxRetries || !retryable(ctx, err) {
			return nil, err
		}

		logger.Warn().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("request failed, retrying")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Errorf("waiting to retry: %w", ctx.Err())
		case <-timer.C:
		}
		delay *= 2
	}
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	// Transport-level failure.
	return true
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Errorf("calling %s: %w", c.opts.Endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.WithStack(&StatusError{Code: resp.StatusCode, Message: errorMessage(raw)})
	}
	return raw, nil
}

// errorMessage pulls a human-readable message out of an error body, which
// may be {"error":"..."}, {"error":{"message":"..."}} or plain text.
func errorMessage(raw []byte) string {
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Error) > 0 {
		var s string
		if json.Unmarshal(body.Error, &s) == nil {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
