// Package apiclient is the typed gateway to the external store API. Every
// call made on behalf of a session carries its bearer token, and a 401
// response logs that session out before the error is handed back.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/storedesk/storedesk/internal/observability"
)

// Credentials is the session view the gateway needs: the token to send and a
// way to drop it once the API rejects it.
type Credentials interface {
	Token() string
	ClearAuth()
}

// Observer is notified about calls and forced logouts.
type Observer interface {
	RecordAPICall(method, route string, status int, elapsed time.Duration)
	RecordAuthRejected(route string)
}

// Config configures a Client.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger
	Observer Observer
	HTTP     *http.Client
}

// Client performs requests against the store API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
}

// NewClient constructs a new client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTP
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		observer:   cfg.Observer,
	}
}

// request describes one API call.
type request struct {
	method string
	path   string
	route  string
	query  url.Values
	body   any
}

// do executes req, decoding a 2xx body into out when out is non-nil. creds may
// be nil for anonymous calls.
func (c *Client) do(ctx context.Context, creds Credentials, req request, out any) error {
	route := req.route
	if route == "" {
		route = req.path
	}
	ctx, span := observability.StartAPISpan(ctx, req.method, route)
	defer span.End()

	var payload io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("apiclient: encode %s %s: %w", req.method, route, err)
		}
		payload = bytes.NewReader(data)
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, payload)
	if err != nil {
		return fmt.Errorf("apiclient: build %s %s: %w", req.method, route, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if creds != nil {
		if token := creds.Token(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		c.logger.Warn("store api unreachable", slog.String("method", req.method), slog.String("route", route), slog.Any("error", err))
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, req.method, route, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if c.observer != nil {
		c.observer.RecordAPICall(req.method, route, resp.StatusCode, time.Since(start))
	}
	observability.EndAPISpan(span, resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %v", ErrUnavailable, req.method, route, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Method: req.method, Path: route, Status: resp.StatusCode, Detail: parseDetail(body)}
		if resp.StatusCode == http.StatusUnauthorized {
			c.rejectCredentials(creds, route)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("apiclient: decode %s %s: %w", req.method, route, err)
	}
	return nil
}

// rejectCredentials logs the session out after a 401.
func (c *Client) rejectCredentials(creds Credentials, route string) {
	if creds == nil {
		return
	}
	creds.ClearAuth()
	if c.observer != nil {
		c.observer.RecordAuthRejected(route)
	}
	c.logger.Info("store api rejected credential, session cleared", slog.String("route", route))
}
