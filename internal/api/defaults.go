package api

import (
	"context"
	"fmt"
	"net/http"

	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/log"
)

// Interceptor modes
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
	ModeNone        = "none"
)

// Notifier shows a short user-facing message, e.g. on a terminal.
type Notifier func(message string)

// RedactHeaders returns a copy of h safe to log.
func RedactHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}
	if out.Get("Authorization") != "" {
		out.Set("Authorization", "Bearer ***")
	}
	return out
}

// userFacing reports whether err should be shown to the user. 401s are
// left to the session flow.
func userFacing(err *ocerrors.APIError) bool {
	return err.Status != http.StatusUnauthorized
}

func notifyError(notify Notifier, err *ocerrors.APIError) {
	if notify == nil || !userFacing(err) {
		return
	}
	msg := err.Message
	if msg == "" {
		msg = "An error occurred"
	}
	notify(msg)
}

// DevelopmentInterceptors logs every request, response and error at
// debug level and notifies the user of non-auth failures.
func DevelopmentInterceptors(r *Registry, logger *log.Logger, notify Notifier) {
	logger = log.OrDefault(logger).With("component", "api")

	r.AddRequestInterceptor(func(ctx context.Context, req RequestInfo) error {
		logger.DebugContext(ctx, fmt.Sprintf("API Request: %s %s", req.Method, req.Endpoint),
			"url", req.URL,
			"headers", RedactHeaders(req.Headers),
			"body", req.Body,
			"attempt", req.Attempt,
			"request_id", req.RequestID,
		)
		return nil
	})

	r.AddResponseInterceptor(func(ctx context.Context, resp ResponseInfo) error {
		logger.DebugContext(ctx, fmt.Sprintf("API Response: %d %s", resp.Status, resp.StatusText),
			"endpoint", resp.Endpoint,
			"data", resp.Data,
			"attempt", resp.Attempt,
			"duration_ms", resp.Duration.Milliseconds(),
		)
		return nil
	})

	r.AddErrorInterceptor(func(ctx context.Context, info ErrorInfo) error {
		logger.WithError(info.Err).DebugContext(ctx, fmt.Sprintf("API Error: %d %s", info.Err.Status, info.Err.Message),
			"endpoint", info.Endpoint,
			"data", info.Err.Data,
		)
		notifyError(notify, info.Err)
		return nil
	})
}

// ProductionInterceptors reports server errors and authentication
// failures and notifies the user of non-auth failures.
func ProductionInterceptors(r *Registry, logger *log.Logger, notify Notifier) {
	logger = log.OrDefault(logger).With("component", "api")

	r.AddErrorInterceptor(func(ctx context.Context, info ErrorInfo) error {
		if info.Err.Status >= 500 || info.Err.Status == http.StatusUnauthorized {
			logger.WithError(info.Err).ErrorContext(ctx, "API Error",
				"method", info.Method,
				"endpoint", info.Endpoint,
				"data", info.Err.Data,
			)
		}
		notifyError(notify, info.Err)
		return nil
	})
}

// InstallDefaults installs the interceptors for mode. Unknown modes are
// rejected.
func InstallDefaults(r *Registry, mode string, logger *log.Logger, notify Notifier) error {
	switch mode {
	case ModeDevelopment:
		DevelopmentInterceptors(r, logger, notify)
	case ModeProduction:
		ProductionInterceptors(r, logger, notify)
	case ModeNone, "":
	default:
		return ocerrors.NewConfigInvalidError("interceptors.mode", fmt.Sprintf("unknown mode %q (want development, production or none)", mode))
	}
	return nil
}
