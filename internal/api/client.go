// Package api is the REST client for the Aether campaign server.
//
// Every command endpoint answers with the events it produced. Command methods
// return those events unmodified so the caller can feed them through the
// reconciler, where the ledger drops the copies that later arrive on the
// live stream.
//
// Typical usage:
//
//	c, err := api.New("http://localhost:8000", token,
//	    api.WithRole(api.RoleHost),
//	    api.WithTimeout(10*time.Second),
//	)
//	events, err := c.GrantXP(ctx, 150)
//	rec.ApplyBatch(ctx, events)
//
// Inputs the server would reject are caught before any request is sent and
// reported as [ErrInvalidInput]. Server-side failures are returned as *[Error].
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/aether/internal/observe"
	"github.com/MrWong99/aether/internal/resilience"
	"github.com/MrWong99/aether/internal/snapshot"
	"github.com/MrWong99/aether/pkg/event"
)

// ---- constants ----

const (
	defaultTimeout = 30 * time.Second

	// maxErrorBody bounds how much of a failed response is read for its
	// detail message.
	maxErrorBody = 64 << 10
)

// ErrInvalidInput is returned, wrapped, when a command's arguments are
// rejected before any request is made.
var ErrInvalidInput = errors.New("api: invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Error is a non-2xx response from the server.
type Error struct {
	// Op is the client operation that failed, e.g. "GrantXP".
	Op     string
	Status int
	// Detail is the server's "detail" message, or the raw body when the
	// response was not in the expected shape.
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: %s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %s: %d %s", e.Op, e.Status, e.Detail)
}

// Forbidden reports whether the token's role may not call the endpoint.
func (e *Error) Forbidden() bool { return e.Status == http.StatusForbidden }

// Unauthorized reports whether the token was missing or rejected.
func (e *Error) Unauthorized() bool { return e.Status == http.StatusUnauthorized }

// ServerFault reports whether err means the server is unreachable or
// failing, as opposed to a request it understood and refused.
func ServerFault(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrInvalidInput) {
		return false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return errors.Is(err, errTransport)
}

// errTransport marks failures below HTTP: refused connections, resets and
// request timeouts.
var errTransport = errors.New("transport")

// Role selects which side of the API role-scoped endpoints are called on.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleHost || r == RolePlayer }

// ---- options ----

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The timeout set by
// [WithTimeout] is ignored when a client is supplied.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRole sets the role used for role-scoped paths. Defaults to RoleHost.
func WithRole(r Role) Option {
	return func(c *Client) { c.role = r }
}

// WithBreaker guards every request with b. While b is open, requests fail
// with an error wrapping [resilience.ErrOpen] without reaching the server.
// Build b with [ServerFault] as its classifier so rejected commands do not
// count as outages.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// ---- client ----

// Client talks to one campaign server with one bearer token. It is safe for
// concurrent use.
type Client struct {
	baseURL    string
	role       Role
	timeout    time.Duration
	httpClient *http.Client
	metrics    *observe.Metrics
	breaker    *resilience.Breaker

	mu    sync.RWMutex
	token string
}

// New creates a Client for baseURL. The token may be empty for servers
// without authentication and can be replaced later with [Client.SetToken].
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("api: baseURL must not be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("api: parse baseURL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api: baseURL scheme must be http or https, got %q", u.Scheme)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		role:    RoleHost,
		timeout: defaultTimeout,
		token:   token,
	}
	for _, o := range opts {
		o(c)
	}
	if !c.role.Valid() {
		return nil, fmt.Errorf("api: unknown role %q", c.role)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// BaseURL returns the server base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Role returns the role used for role-scoped paths.
func (c *Client) Role() Role { return c.role }

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ---- transport ----

type eventsResponse struct {
	Events []event.Event `json:"events"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// command sends body to path and returns the events from the response.
func (c *Client) command(ctx context.Context, op, method, path string, query url.Values, body any) ([]event.Event, error) {
	var resp eventsResponse
	if err := c.do(ctx, op, method, path, query, body, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// do performs one request. body, if non-nil, is JSON-encoded; out, if
// non-nil, receives the decoded response.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (err error) {
	ctx, span := observe.StartSpan(ctx, "api."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		),
	)
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	status := "error"
	defer func() {
		c.metrics.RecordAPIRequest(ctx, op, status, time.Since(start))
	}()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			c.metrics.RecordAPIError(ctx, op, "encode")
			return fmt.Errorf("api: %s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("api: %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	send := func(context.Context) error {
		var code int
		code, err = c.roundTrip(ctx, op, req, out)
		if code != 0 {
			status = strconv.Itoa(code)
			span.SetAttributes(attribute.Int("http.status_code", code))
		}
		return err
	}
	if c.breaker == nil {
		return send(ctx)
	}
	if berr := c.breaker.Do(ctx, send); errors.Is(berr, resilience.ErrOpen) {
		status = "rejected"
		c.metrics.RecordAPIError(ctx, op, "breaker")
		return fmt.Errorf("api: %s: %w", op, berr)
	}
	return err
}

// roundTrip sends req and decodes a 2xx body into out. It returns the HTTP
// status code, or 0 when no response arrived.
func (c *Client) roundTrip(ctx context.Context, op string, req *http.Request, out any) (int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("api: %s: %w", op, err)
		}
		c.metrics.RecordAPIError(ctx, op, "transport")
		return 0, fmt.Errorf("api: %s: %w: %w", op, errTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.RecordAPIError(ctx, op, "status")
		return resp.StatusCode, decodeError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.RecordAPIError(ctx, op, "decode")
		return resp.StatusCode, fmt.Errorf("api: %s: decode response: %w", op, err)
	}
	return resp.StatusCode, nil
}

// decodeError builds an *Error from a failed response. The detail is taken
// from a {"detail": ...} body when present; a non-string detail (such as a
// list of validation problems) is kept as compact JSON.
func decodeError(op string, resp *http.Response) *Error {
	apiErr := &Error{Op: op, Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return apiErr
	}

	var er errorResponse
	if json.Unmarshal(raw, &er) != nil || len(er.Detail) == 0 {
		apiErr.Detail = strings.TrimSpace(string(raw))
		return apiErr
	}
	var s string
	if json.Unmarshal(er.Detail, &s) == nil {
		apiErr.Detail = s
		return apiErr
	}
	var compact bytes.Buffer
	if json.Compact(&compact, er.Detail) == nil {
		apiErr.Detail = compact.String()
	} else {
		apiErr.Detail = string(er.Detail)
	}
	return apiErr
}

// ---- reads ----

// Snapshot fetches the full campaign snapshot and its cursor.
func (c *Client) Snapshot(ctx context.Context) (snapshot.Response, error) {
	var resp snapshot.Response
	if err := c.do(ctx, "Snapshot", http.MethodGet, "/api/snapshot", nil, nil, &resp); err != nil {
		return snapshot.Response{}, err
	}
	return resp, nil
}

// Events fetches the event history after afterSeq, in sequence order.
func (c *Client) Events(ctx context.Context, afterSeq int64) ([]event.Event, error) {
	q := url.Values{}
	q.Set("after_seq", strconv.FormatInt(afterSeq, 10))
	return c.command(ctx, "Events", http.MethodGet, "/api/events", q, nil)
}

// rolePath prefixes p with the client's role segment.
func (c *Client) rolePath(p string) string {
	return "/api/" + string(c.role) + p
}

// escape encodes an id for use as a single path segment.
func escape(id string) string { return url.PathEscape(id) }
