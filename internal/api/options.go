package api

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/opencall/opencall/internal/log"
)

// Defaults
const (
	DefaultBaseURL       = "http://localhost:8080/api"
	DefaultTimeout       = 30 * time.Second
	DefaultRefreshBuffer = 60 * time.Second
)

// Options controls a single pipeline call.
type Options struct {
	// Method defaults to GET
	Method string

	// Body is JSON-encoded unless it is an io.Reader or []byte, which are
	// sent as is.
	Body any

	// Headers are applied last and override the defaults.
	Headers map[string]string

	// SkipAuth disables token injection and the 401 refresh-and-retry.
	SkipAuth bool

	// Token is used instead of the stored token. Explicitly tokened calls
	// are never refreshed or retried.
	Token string

	// Timeout bounds each dispatch; zero means the client default.
	Timeout time.Duration

	// SkipContentType omits the JSON Content-Type header, for multipart
	// bodies that set their own.
	SkipContentType bool
}

func (o Options) method() string {
	if o.Method == "" {
		return http.MethodGet
	}
	return o.Method
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRefresher sets the token refresher used for proactive refresh and
// the 401 retry.
func WithRefresher(r Refresher) Option {
	return func(c *Client) {
		c.refresher = r
	}
}

// WithRegistry injects the interceptor registry.
func WithRegistry(r *Registry) Option {
	return func(c *Client) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithLogger sets the client logger
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithTracerProvider sets where request spans go
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = tp
	}
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTimeout sets the default per-dispatch timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRefreshBuffer sets how close to expiry a stored token is refreshed
// before use.
func WithRefreshBuffer(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.refreshBuffer = d
		}
	}
}

// WithUserAgent sets the User-Agent header of every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}
