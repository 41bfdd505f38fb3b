package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/log"
	"github.com/opencall/opencall/internal/session"
	"github.com/opencall/opencall/internal/telemetry"
)

// Refresher obtains a fresh access token. An empty token means the
// session could not be refreshed; the error is reserved for the caller's
// context being done.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Client is the authenticated request pipeline.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	store         *session.Store
	refresher     Refresher
	registry      *Registry
	logger        *log.Logger
	tracer        trace.TracerProvider
	now           func() time.Time
	timeout       time.Duration
	refreshBuffer time.Duration
	userAgent     string
}

// New creates a pipeline against baseURL that reads tokens from store.
func New(baseURL string, store *session.Store, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{},
		store:         store,
		now:           time.Now,
		timeout:       DefaultTimeout,
		refreshBuffer: DefaultRefreshBuffer,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.OrDefault(c.logger).With("component", "api")
	if c.registry == nil {
		c.registry = NewRegistry(c.logger)
	}
	if c.store == nil {
		c.store = session.NewStore(nil, session.WithLogger(c.logger))
	}
	return c
}

// BaseURL returns the API root every endpoint is appended to
func (c *Client) BaseURL() string { return c.baseURL }

// Registry returns the interceptor registry
func (c *Client) Registry() *Registry { return c.registry }

// Store returns the session store tokens are read from
func (c *Client) Store() *session.Store { return c.store }

// call is a prepared request, reusable across attempts.
type call struct {
	method    string
	endpoint  string
	url       string
	body      []byte
	bodyLabel string
	opts      Options
	timeout   time.Duration
	started   time.Time
}

// response is what one attempt produced.
type response struct {
	status     int
	statusText string
	headers    http.Header
	raw        []byte
	data       any
	json       bool
	attempt    int
	requestID  string
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// Request performs a call and decodes the unwrapped result into T.
func Request[T any](ctx context.Context, c *Client, endpoint string, opts Options) (T, error) {
	var out T
	err := c.Do(ctx, endpoint, opts, &out)
	return out, err
}

// Do performs one pipeline call. A 2xx JSON body is unwrapped from its
// {"data": ...} envelope and decoded into out, which may be nil. Every
// other outcome is returned as an *errors.APIError.
func (c *Client) Do(ctx context.Context, endpoint string, opts Options, out any) (err error) {
	ctx, span := telemetry.StartRequestSpan(ctx, c.tracer, opts.method(), endpoint)
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}()

	cl, err := c.prepare(endpoint, opts)
	if err != nil {
		return err
	}

	token, err := c.resolveToken(ctx, opts)
	if err != nil {
		return c.fail(ctx, cl, ocerrors.NewTransportError(err))
	}

	res, apiErr := c.attempt(ctx, cl, token, 1)
	if apiErr != nil {
		return c.fail(ctx, cl, apiErr)
	}
	telemetry.RecordAttempt(span, res.attempt, res.status)

	if res.status == http.StatusUnauthorized && c.retryable(opts) {
		newToken, err := c.refresh(ctx)
		if err != nil {
			return c.fail(ctx, cl, ocerrors.NewTransportError(err))
		}
		if newToken == "" {
			return c.fail(ctx, cl, ocerrors.NewAuthenticationError("", res.data))
		}

		c.logger.DebugContext(ctx, "retrying after token refresh", "method", cl.method, "endpoint", endpoint)
		res, apiErr = c.attempt(ctx, cl, newToken, 2)
		if apiErr != nil {
			return c.fail(ctx, cl, apiErr)
		}
		telemetry.RecordAttempt(span, res.attempt, res.status)
	}

	c.registry.runResponse(ctx, ResponseInfo{
		Method:     cl.method,
		URL:        cl.url,
		Endpoint:   endpoint,
		Status:     res.status,
		StatusText: res.statusText,
		Headers:    res.headers,
		Data:       res.data,
		Attempt:    res.attempt,
		RequestID:  res.requestID,
		Duration:   c.now().Sub(cl.started),
	})

	if !res.ok() {
		return c.fail(ctx, cl, classify(res.status, res.data))
	}

	span.SetAttributes(attribute.Int("http.status_code", res.status))
	return decodeInto(res, out)
}

// retryable reports whether a 401 may be answered with refresh-and-retry.
func (c *Client) retryable(opts Options) bool {
	return c.refresher != nil && !opts.SkipAuth && opts.Token == ""
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	if c.refresher == nil {
		return "", nil
	}
	return c.refresher.Refresh(ctx)
}

// resolveToken picks the bearer token for the first attempt, refreshing a
// stored token that is about to expire.
func (c *Client) resolveToken(ctx context.Context, opts Options) (string, error) {
	if opts.SkipAuth {
		return "", nil
	}
	if opts.Token != "" {
		return opts.Token, nil
	}

	rec := c.store.Read(ctx)
	if rec.AccessToken == "" || c.refresher == nil {
		return rec.AccessToken, nil
	}
	if !rec.ExpiresWithin(c.now(), c.refreshBuffer) {
		return rec.AccessToken, nil
	}

	c.logger.DebugContext(ctx, "access token near expiry, refreshing", "expires_at", rec.ExpiresAt)
	return c.refresher.Refresh(ctx)
}

func (c *Client) prepare(endpoint string, opts Options) (*call, error) {
	cl := &call{
		method:   opts.method(),
		endpoint: endpoint,
		url:      c.baseURL + endpoint,
		opts:     opts,
		timeout:  opts.Timeout,
		started:  c.now(),
	}
	if cl.timeout <= 0 {
		cl.timeout = c.timeout
	}

	switch b := opts.Body.(type) {
	case nil:
	case []byte:
		cl.body = b
		cl.bodyLabel = "[binary]"
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, ocerrors.Wrap(ocerrors.ErrCodeAPIEncode, "failed to read request body", err)
		}
		cl.body = data
		cl.bodyLabel = "[multipart]"
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, ocerrors.Wrap(ocerrors.ErrCodeAPIEncode, "failed to marshal request body", err)
		}
		cl.body = data
		cl.bodyLabel = string(data)
	}
	return cl, nil
}

func (c *Client) headers(cl *call, token, requestID string) http.Header {
	h := make(http.Header)
	if !cl.opts.SkipContentType {
		h.Set("Content-Type", "application/json")
	}
	h.Set("Accept", "application/json")
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	h.Set("X-Request-ID", requestID)
	if c.userAgent != "" {
		h.Set("User-Agent", c.userAgent)
	}
	for k, v := range cl.opts.Headers {
		h.Set(k, v)
	}
	return h
}

// attempt runs request interceptors, dispatches once under the call
// timeout and reads the response. Only transport failures and timeouts
// are returned as errors; HTTP statuses are left to the caller.
func (c *Client) attempt(ctx context.Context, cl *call, token string, n int) (*response, *ocerrors.APIError) {
	requestID := uuid.NewString()
	headers := c.headers(cl, token, requestID)

	c.registry.runRequest(ctx, RequestInfo{
		Method:    cl.method,
		URL:       cl.url,
		Endpoint:  cl.endpoint,
		Headers:   headers,
		Body:      cl.bodyLabel,
		Attempt:   n,
		RequestID: requestID,
	})

	attemptCtx, cancel := context.WithTimeout(ctx, cl.timeout)
	defer cancel()

	var body io.Reader
	if cl.body != nil {
		body = bytes.NewReader(cl.body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, cl.method, cl.url, body)
	if err != nil {
		return nil, ocerrors.NewTransportError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header = headers

	c.logger.DebugContext(ctx, "dispatching request",
		"method", cl.method, "endpoint", cl.endpoint, "attempt", n, "request_id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, cl, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, cl, err)
	}

	res := &response{
		status:     resp.StatusCode,
		statusText: http.StatusText(resp.StatusCode),
		headers:    resp.Header,
		raw:        raw,
		json:       isJSON(resp.Header.Get("Content-Type")),
		attempt:    n,
		requestID:  requestID,
	}
	if res.json {
		res.data = parseBody(raw)
	}
	return res, nil
}

// transportError separates our own deadline from every other failure.
func (c *Client) transportError(ctx, attemptCtx context.Context, cl *call, err error) *ocerrors.APIError {
	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return ocerrors.NewTimeoutError(cl.timeout.Milliseconds(), err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ocerrors.NewTransportError(ctxErr)
	}
	return ocerrors.NewTransportError(err)
}

// fail hands err to the error interceptors and returns it.
func (c *Client) fail(ctx context.Context, cl *call, err *ocerrors.APIError) error {
	c.registry.runError(ctx, ErrorInfo{
		Method:   cl.method,
		URL:      cl.url,
		Endpoint: cl.endpoint,
		Duration: c.now().Sub(cl.started),
		Err:      err,
	})
	return err
}

func decodeInto(res *response, out any) error {
	if out == nil || !res.json || res.data == nil {
		return nil
	}
	if err := json.Unmarshal(unwrapRaw(res.raw), out); err != nil {
		return ocerrors.Wrap(ocerrors.ErrCodeAPIDecode, "failed to decode response", err)
	}
	return nil
}
