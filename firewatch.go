// Package firewatch provides the Go SDK for the wildfire watch cloud API.
//
// It covers the point-in-time snapshot endpoint and a resilient stream client
// that keeps a local copy of the watched areas and wind readings fresh over a
// long-lived websocket.
//
// Example:
//
//	client := firewatch.NewClient("https://watch.example.org")
//
//	// Snapshot API
//	doc, _ := client.Snapshot(ctx)
//
//	// Stream API
//	stream := client.Stream(nil)
//	stream.Start(ctx, func(s firewatch.Snapshot) { render(s.Areas, s.Wind) })
//	defer stream.Stop()
package firewatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL      = "http://localhost:8080"
	DefaultSnapshotPath = "/api/watch"
	DefaultStreamPath   = "/api/ws"
	DefaultTimeout      = 30 * time.Second

	tracerName = "github.com/firewatch-dev/firewatch-go"

	// maxErrorBody bounds the part of a failed response kept in APIError.
	maxErrorBody = 512
)

// ============================================================================
// Client
// ============================================================================

type Client struct {
	baseURL      string
	snapshotPath string
	streamPath   string
	httpClient   *http.Client
	logger       zerolog.Logger
}

type ClientOption func(*Client)

// WithBaseURL overrides the base URL passed to NewClient.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithSnapshotPath(p string) ClientOption {
	return func(c *Client) { c.snapshotPath = p }
}

func WithStreamPath(p string) ClientOption {
	return func(c *Client) { c.streamPath = p }
}

// WithLogger sets the logger used by the client and every stream it creates.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a new client for the API served at baseURL.
// An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		snapshotPath: DefaultSnapshotPath,
		streamPath:   DefaultStreamPath,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SnapshotURL returns the URL of the snapshot endpoint.
func (c *Client) SnapshotURL() (string, error) {
	u, err := c.resolve(c.snapshotPath)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// StreamURL returns the websocket URL. The scheme follows the base URL:
// https maps to wss and http maps to ws.
func (c *Client) StreamURL() (string, error) {
	u, err := c.resolve(c.streamPath)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return u.String(), nil
}

func (c *Client) resolve(p string) (*url.URL, error) {
	if c.baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrUnsupportedScheme
	}
	u.Path = path.Join("/", u.Path, p)
	return u, nil
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// ============================================================================
// Snapshot API
// ============================================================================

// Snapshot fetches the current areas document from the snapshot endpoint.
// The document is returned as-is; any valid JSON value is accepted.
func (c *Client) Snapshot(ctx context.Context) (json.RawMessage, error) {
	target, err := c.SnapshotURL()
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "firewatch.snapshot",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", target)),
	)
	defer span.End()

	doc, err := c.fetchSnapshot(ctx, target, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("firewatch.document_bytes", len(doc)))
	return doc, nil
}

func (c *Client) fetchSnapshot(ctx context.Context, target string, span trace.Span) (json.RawMessage, error) {
	body, status, err := c.doRequest(ctx, http.MethodGet, target)
	if status != 0 {
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		return nil, &APIError{StatusCode: status, Message: msg}
	}
	if !json.Valid(body) {
		return nil, ErrInvalidDocument
	}
	return json.RawMessage(body), nil
}
