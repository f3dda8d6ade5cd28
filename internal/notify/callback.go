// Package notify tells a workflow that a batch result is ready.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"doctools/internal/logger"
)

const (
	DefaultRetryMax = 3
	DefaultTimeout  = 30 * time.Second
)

// Payload is the JSON body posted to the callback URL.
type Payload struct {
	BucketName string `json:"bucket_name"`
	FileName   string `json:"file_name"`
	Success    bool   `json:"success"`
	Result     string `json:"result,omitempty"`
}

// Callback posts batch results to a workflow callback URL. A Callback with an
// empty URL does nothing.
type Callback struct {
	url    string
	client *http.Client
	tokens oauth2.TokenSource
	log    zerolog.Logger
}

// Option configures a Callback.
type Option func(*Callback)

// WithTokenSource adds a bearer token from ts to every request.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Callback) {
		c.tokens = ts
	}
}

// WithHTTPClient replaces the retrying client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Callback) {
		c.client = client
	}
}

// NewCallback creates a Callback for url.
func NewCallback(url string, opts ...Option) *Callback {
	c := &Callback{
		url: url,
		log: logger.WithComponent("callback"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = NewRetryableHTTPClient(DefaultRetryMax, DefaultTimeout, c.log)
	}
	return c
}

// NewRetryableHTTPClient returns an http.Client that retries connection
// errors and 5xx responses with exponential backoff.
func NewRetryableHTTPClient(retryMax int, timeout time.Duration, log zerolog.Logger) *http.Client {
	retryableHTTPClient := retryablehttp.NewClient()
	retryableHTTPClient.RetryMax = retryMax
	retryableHTTPClient.HTTPClient.Timeout = timeout
	retryableHTTPClient.Logger = leveledLogger{log}
	retryableHTTPClient.Backoff = retryablehttp.DefaultBackoff
	retryableHTTPClient.CheckRetry = retryablehttp.DefaultRetryPolicy
	return retryableHTTPClient.StandardClient()
}

// Notify reports a successful batch whose summary is stored at bucket/file.
func (c *Callback) Notify(ctx context.Context, bucket, file string) error {
	return c.Send(ctx, Payload{BucketName: bucket, FileName: file, Success: true})
}

// Send posts payload to the callback URL. Non-2xx responses are errors.
func (c *Callback) Send(ctx context.Context, payload Payload) error {
	if c.url == "" {
		c.log.Warn().Msg("No callback URL provided")
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("callback: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("callback: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("callback: get token: %w", err)
		}
		token.SetAuthHeader(req)
	}

	c.log.Info().
		Str("url", c.url).
		Str("bucket", payload.BucketName).
		Str("file", payload.FileName).
		Bool("success", payload.Success).
		Msg("Sending callback")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback: post %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("callback: %s returned %d: %s", c.url, resp.StatusCode, bytes.TrimSpace(msg))
	}

	c.log.Info().Msg("Callback successful")
	return nil
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Trace().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}
