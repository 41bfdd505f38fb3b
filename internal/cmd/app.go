package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/opencall/opencall/internal/api"
	"github.com/opencall/opencall/internal/auth"
	"github.com/opencall/opencall/internal/config"
	"github.com/opencall/opencall/internal/log"
	"github.com/opencall/opencall/internal/metrics"
	"github.com/opencall/opencall/internal/platform"
	"github.com/opencall/opencall/internal/session"
	"github.com/opencall/opencall/internal/telemetry"
	"github.com/opencall/opencall/internal/ux"
	"github.com/opencall/opencall/internal/version"
)

const shutdownTimeout = 5 * time.Second

type appKey struct{}

// appHolder carries the app from PersistentPreRunE back to execute, which
// finishes it whether or not the command failed.
type appHolder struct {
	app *app
}

// app is everything a command needs, built once per invocation.
type app struct {
	cc     *CommandContext
	cfg    *config.Config
	logger *log.Logger

	store    *session.Store
	client   *api.Client
	ctrl     *auth.Controller
	platform *platform.Client

	promRegistry *prometheus.Registry
	metrics      *metrics.Metrics

	out    io.Writer
	errOut io.Writer

	// live enables the interceptor notifier; one-shot commands report
	// failures through their returned error instead.
	live atomic.Bool

	started         time.Time
	span            trace.Span
	closers         []func()
	shutdownTracing func(context.Context) error
}

func newApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()

	cc, err := NewCommandContext(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to create command context: %w", err)
	}
	if _, err := ux.NewFormatter(cc.Format, nil); err != nil {
		return nil, fmt.Errorf("invalid flag --output: %w", err)
	}

	cfg, err := config.Load(cc.ConfigPath)
	if err != nil {
		return nil, err
	}
	if cc.BaseURL != "" {
		cfg.API.BaseURL = cc.BaseURL
	}
	if cc.LogLevel != "" {
		cfg.Log.Level = cc.LogLevel
	}
	if cc.Interceptors != "" {
		cfg.Interceptors.Mode = cc.Interceptors
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logCfg, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	logger := log.New(logCfg)
	log.SetDefaultLogger(logger)

	a := &app{
		cc:      cc,
		cfg:     cfg,
		logger:  logger,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
		started: time.Now(),
	}

	a.shutdownTracing, err = telemetry.InitProvider(ctx, cfg.Tracing(version.GetInfo().Version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	tp := telemetry.GetTracerProvider()

	store, closer, err := cfg.OpenSessionStore(ctx, logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, func() {
		if err := closer.Close(); err != nil {
			logger.Debug("failed to close session backend", "error", err)
		}
	})

	a.promRegistry, a.metrics = metrics.NewRegistry()

	registry := api.NewRegistry(logger)
	if err := api.InstallDefaults(registry, cfg.Interceptors.Mode, logger, a.notify); err != nil {
		a.close(ctx)
		return nil, err
	}
	a.metrics.Instrument(registry)
	a.closers = append(a.closers, a.metrics.WatchSession(store))

	coordinator := auth.NewCoordinator(cfg.API.BaseURL, store,
		auth.WithLogger(logger),
		auth.WithTracerProvider(tp),
		auth.WithRefreshTimeout(cfg.API.RefreshTimeout),
	)

	a.client = api.New(cfg.API.BaseURL, store,
		api.WithRegistry(registry),
		api.WithRefresher(coordinator),
		api.WithLogger(logger),
		api.WithTracerProvider(tp),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRefreshBuffer(cfg.API.RefreshBuffer),
		api.WithUserAgent(version.GetInfo().UserAgent()),
	)

	a.ctrl = auth.NewController(a.client, coordinator,
		auth.WithLogger(logger),
		auth.WithTracerProvider(tp),
	)
	a.closers = append(a.closers, a.ctrl.Close)
	a.ctrl.HydrateFromStore(ctx)

	a.platform = platform.NewClient(a.client)

	spanCtx, span := telemetry.StartCommandSpan(ctx, cmd.CommandPath())
	a.span = span
	cmd.SetContext(spanCtx)

	logger.Debug("command initialized",
		"command", cmd.CommandPath(),
		"config", cfg.File,
		"base_url", cfg.API.BaseURL,
		"session_backend", store.Backend().Name(),
	)
	return a, nil
}

// finish records the command outcome and releases every resource.
func (a *app) finish(cmd *cobra.Command, err error) {
	a.metrics.RecordCommand(cmd.Name(), time.Since(a.started).Seconds(), err)
	if a.span != nil {
		if err != nil {
			telemetry.RecordError(a.span, err)
		} else {
			telemetry.RecordSuccess(a.span)
		}
		a.span.End()
	}
	a.close(cmd.Context())
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil

	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.Debug("failed to flush traces", "error", err)
		}
		a.shutdownTracing = nil
	}
}

func (a *app) notify(message string) {
	if !a.live.Load() || a.cc.Quiet {
		return
	}
	fmt.Fprintf(a.errOut, "⚠ %s\n", message)
}

func (a *app) formatter() (ux.Formatter, error) {
	return ux.NewFormatter(a.cc.Format, &ux.FormatterOptions{
		Writer:  a.out,
		NoColor: a.cc.NoColor,
	})
}

// print writes v in the selected output format.
func (a *app) print(v any) error {
	f, err := a.formatter()
	if err != nil {
		return err
	}
	return f.Format(v)
}

// textMode reports whether human-readable output was requested.
func (a *app) textMode() bool {
	return a.cc.Format == "" || a.cc.Format == ux.FormatText
}

func appFrom(cmd *cobra.Command) (*app, error) {
	h, _ := cmd.Context().Value(appKey{}).(*appHolder)
	if h == nil || h.app == nil {
		return nil, errors.New("command was not initialized")
	}
	return h.app, nil
}
