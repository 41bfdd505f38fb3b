package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/opencall/opencall/internal/api"
	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/log"
	"github.com/opencall/opencall/internal/session"
	"github.com/opencall/opencall/internal/telemetry"
)

// DefaultRefreshTimeout bounds one refresh exchange.
const DefaultRefreshTimeout = 15 * time.Second

const refreshKey = "refresh"

// Option configures a Coordinator or a Controller
type Option func(*options)

type options struct {
	httpClient     *http.Client
	logger         *log.Logger
	tracer         trace.TracerProvider
	now            func() time.Time
	refreshTimeout time.Duration
}

func newOptions(opts []Option) options {
	o := options{
		httpClient:     &http.Client{},
		now:            time.Now,
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = log.OrDefault(o.logger).With("component", "auth")
	return o
}

// WithHTTPClient sets the client used for the refresh exchange.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		if hc != nil {
			o.httpClient = hc
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracerProvider sets where refresh spans go
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRefreshTimeout bounds one refresh exchange.
func WithRefreshTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.refreshTimeout = d
		}
	}
}

// Coordinator exchanges the stored refresh token for a new token pair.
// Concurrent callers share a single in-flight exchange.
type Coordinator struct {
	baseURL string
	store   *session.Store
	group   singleflight.Group
	options
}

var _ api.Refresher = (*Coordinator)(nil)

// NewCoordinator creates a coordinator that posts to baseURL/auth/refresh.
// It talks to the server directly, never through the request pipeline, so
// a refresh can not trigger another refresh.
func NewCoordinator(baseURL string, store *session.Store, opts ...Option) *Coordinator {
	if baseURL == "" {
		baseURL = api.DefaultBaseURL
	}
	return &Coordinator{
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		options: newOptions(opts),
	}
}

// Refresh returns a fresh access token, or "" when the session could not
// be refreshed. A failed exchange clears the session. Callers that arrive
// while an exchange is running wait for its result. The exchange itself
// is not cancelled when a caller gives up; the only error returned is
// ctx.Err() for that caller.
//
// Single-flight covers overlapping callers only: a call made after an
// exchange has finished starts a new one with the rotated token.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()
		return c.exchange(rctx), nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		token, _ := res.Val.(string)
		if res.Shared {
			c.logger.DebugContext(ctx, "joined in-flight refresh")
		}
		return token, nil
	}
}

func (c *Coordinator) exchange(ctx context.Context) (token string) {
	ctx, span := telemetry.StartRefreshSpan(ctx, c.tracer)
	defer func() {
		span.SetAttributes(attribute.Bool("auth.refreshed", token != ""))
		span.End()
	}()

	rec := c.store.Read(ctx)
	if rec.RefreshToken == "" {
		c.logger.DebugContext(ctx, "no refresh token stored")
		return ""
	}

	resp, err := c.post(ctx, rec.RefreshToken)
	if err != nil {
		telemetry.RecordError(span, err)
		c.invalidate(ctx, rec.RefreshToken, err)
		return ""
	}

	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		refreshToken = rec.RefreshToken
	}
	exp := expiresAt(c.now(), resp.ExpiresIn, resp.AccessToken)
	written, err := c.store.CompareAndWrite(ctx, rec.RefreshToken, session.TokenPatch(resp.AccessToken, refreshToken, exp))
	if err != nil {
		telemetry.RecordError(span, err)
		c.invalidate(ctx, rec.RefreshToken, err)
		return ""
	}
	if !written {
		// Logged out or logged in again while the exchange ran.
		c.logger.DebugContext(ctx, "session changed during refresh, discarding new tokens")
		span.SetAttributes(attribute.Bool("auth.superseded", true))
		return ""
	}

	telemetry.RecordSuccess(span)
	c.logger.DebugContext(ctx, "access token refreshed", "expires_at", exp)
	return resp.AccessToken
}

// invalidate clears the session that failed to refresh. A session that
// was replaced while the exchange ran is kept.
func (c *Coordinator) invalidate(ctx context.Context, refreshToken string, cause error) {
	c.logger.WithError(cause).WarnContext(ctx, "token refresh failed, clearing session")
	_, _ = c.store.CompareAndClear(ctx, refreshToken, session.ReasonRefreshFailed)
}

func (c *Coordinator) post(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	body, err := json.Marshal(RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, ocerrors.Wrap(ocerrors.ErrCodeAPIEncode, "failed to marshal refresh request", err)
	}

	url := c.baseURL + "/auth/refresh"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, ocerrors.NewTransportError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ocerrors.NewTransportError(err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, ocerrors.NewTransportError(err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &ocerrors.APIError{
			Kind:    ocerrors.KindAuthentication,
			Status:  res.StatusCode,
			Message: refreshErrorMessage(raw),
		}
	}

	var out RefreshResponse
	if err := json.Unmarshal(api.UnwrapJSON(raw), &out); err != nil {
		return nil, ocerrors.Wrap(ocerrors.ErrCodeAPIDecode, "failed to decode refresh response", err)
	}
	if out.AccessToken == "" {
		return nil, ocerrors.New(ocerrors.ErrCodeAPIDecode, "refresh response has no access token")
	}
	return &out, nil
}

func refreshErrorMessage(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return "Token refresh failed"
}
