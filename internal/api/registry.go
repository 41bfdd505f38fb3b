package api

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"time"

	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/log"
)

// RequestInfo describes an outgoing attempt. Interceptors receive a copy;
// changing it has no effect on the request.
type RequestInfo struct {
	Method    string
	URL       string
	Endpoint  string
	Headers   http.Header
	Body      string
	Attempt   int
	RequestID string
}

// ResponseInfo describes the definitive response of a call.
type ResponseInfo struct {
	Method     string
	URL        string
	Endpoint   string
	Status     int
	StatusText string
	Headers    http.Header
	Data       any
	Attempt    int
	RequestID  string
	Duration   time.Duration
}

// ErrorInfo describes a failed call.
type ErrorInfo struct {
	Method   string
	URL      string
	Endpoint string
	Duration time.Duration
	Err      *ocerrors.APIError
}

type (
	RequestInterceptor  func(ctx context.Context, req RequestInfo) error
	ResponseInterceptor func(ctx context.Context, resp ResponseInfo) error
	ErrorInterceptor    func(ctx context.Context, info ErrorInfo) error
)

// Registry holds the interceptors of one or more clients. Interceptors run
// in registration order. A panic or error from an interceptor is logged
// and otherwise ignored.
type Registry struct {
	mu       sync.RWMutex
	request  []RequestInterceptor
	response []ResponseInterceptor
	errors   []ErrorInterceptor
	logger   *log.Logger
}

// NewRegistry creates an empty registry. A nil logger uses the default.
func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{logger: log.OrDefault(logger).With("component", "interceptors")}
}

func (r *Registry) AddRequestInterceptor(fn RequestInterceptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.request = append(r.request, fn)
}

func (r *Registry) AddResponseInterceptor(fn ResponseInterceptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.response = append(r.response, fn)
}

func (r *Registry) AddErrorInterceptor(fn ErrorInterceptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, fn)
}

// ClearAll removes every interceptor
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.request = nil
	r.response = nil
	r.errors = nil
}

// Counts returns the number of request, response and error interceptors
func (r *Registry) Counts() (request, response, errors int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.request), len(r.response), len(r.errors)
}

func (r *Registry) runRequest(ctx context.Context, info RequestInfo) {
	r.mu.RLock()
	fns := append([]RequestInterceptor(nil), r.request...)
	r.mu.RUnlock()

	for i, fn := range fns {
		cp := info
		cp.Headers = info.Headers.Clone()
		r.isolate(ctx, "request", i, func() error { return fn(ctx, cp) })
	}
}

func (r *Registry) runResponse(ctx context.Context, info ResponseInfo) {
	r.mu.RLock()
	fns := append([]ResponseInterceptor(nil), r.response...)
	r.mu.RUnlock()

	for i, fn := range fns {
		cp := info
		cp.Headers = info.Headers.Clone()
		r.isolate(ctx, "response", i, func() error { return fn(ctx, cp) })
	}
}

func (r *Registry) runError(ctx context.Context, info ErrorInfo) {
	r.mu.RLock()
	fns := append([]ErrorInterceptor(nil), r.errors...)
	r.mu.RUnlock()

	for i, fn := range fns {
		cp := info
		errCopy := *info.Err
		errCopy.Fields = maps.Clone(info.Err.Fields)
		cp.Err = &errCopy
		r.isolate(ctx, "error", i, func() error { return fn(ctx, cp) })
	}
}

func (r *Registry) isolate(ctx context.Context, stage string, index int, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.WarnContext(ctx, "interceptor panicked",
				"stage", stage, "index", index, "panic", fmt.Sprint(p))
		}
	}()
	if err := fn(); err != nil {
		r.logger.WithError(err).WarnContext(ctx, "interceptor failed", "stage", stage, "index", index)
	}
}
