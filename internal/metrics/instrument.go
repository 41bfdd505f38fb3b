package metrics

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/opencall/opencall/internal/api"
	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/session"
)

// Route reduces an endpoint to its first path segment so that usernames
// and IDs do not become label values: /mentors/ada/services -> /mentors.
func Route(endpoint string) string {
	path, _, _ := strings.Cut(endpoint, "?")
	path = strings.TrimPrefix(path, "/")
	first, _, _ := strings.Cut(path, "/")
	return "/" + first
}

// Instrument registers interceptors on r that record every API call.
func (m *Metrics) Instrument(r *api.Registry) {
	r.AddResponseInterceptor(func(_ context.Context, resp api.ResponseInfo) error {
		route := Route(resp.Endpoint)
		m.Requests.WithLabelValues(resp.Method, route, strconv.Itoa(resp.Status)).Inc()
		m.RequestDuration.WithLabelValues(resp.Method, route).Observe(resp.Duration.Seconds())
		if resp.Attempt > 1 {
			m.RequestRetries.WithLabelValues(route).Inc()
		}
		return nil
	})

	r.AddErrorInterceptor(func(_ context.Context, info api.ErrorInfo) error {
		route := Route(info.Endpoint)
		m.RequestErrors.WithLabelValues(route, info.Err.Kind.String()).Inc()
		m.Errors.WithLabelValues(string(info.Err.Code()), "api").Inc()
		// Transport failures and timeouts never produce a response.
		if ocerrors.IsTransient(info.Err) {
			m.RequestDuration.WithLabelValues(info.Method, route).Observe(info.Duration.Seconds())
		}
		return nil
	})
}

// WatchSession counts session-invalidated events. The returned function
// stops counting.
func (m *Metrics) WatchSession(store *session.Store) (unsubscribe func()) {
	return store.Subscribe(func(e session.Event) {
		m.SessionInvalidations.WithLabelValues(string(e.Reason)).Inc()
	})
}

// RecordError counts err under its structured code.
func (m *Metrics) RecordError(component string, err error) {
	if err == nil {
		return
	}
	code := "unknown"
	var apiErr *ocerrors.APIError
	var ocErr *ocerrors.OpenCallError
	switch {
	case errors.As(err, &apiErr):
		code = string(apiErr.Code())
	case errors.As(err, &ocErr):
		code = string(ocErr.Code)
	}
	m.Errors.WithLabelValues(code, component).Inc()
}

// RecordCommand records one command execution.
func (m *Metrics) RecordCommand(command string, seconds float64, err error) {
	m.CommandExecutions.WithLabelValues(command, strconv.FormatBool(err == nil)).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(seconds)
	if err != nil {
		m.RecordError("cmd", err)
	}
}
