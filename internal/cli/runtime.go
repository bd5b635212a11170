package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"github.com/Gurpartap/carecompanion/conversation"
	"github.com/Gurpartap/carecompanion/internal/config"
	"github.com/Gurpartap/carecompanion/internal/telemetry"
	"github.com/Gurpartap/carecompanion/observe"
	"github.com/Gurpartap/carecompanion/policy/breaker"
	"github.com/Gurpartap/carecompanion/policy/retry"
	"github.com/Gurpartap/carecompanion/session"
	"github.com/Gurpartap/carecompanion/threadstore/sqlite"
	"github.com/Gurpartap/carecompanion/transport/langgraph"
)

// runtime is the composition root: the HTTP transport wrapped in
// instrumentation, a circuit breaker and optional retries, feeding one
// session client.
type runtime struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *observe.Metrics
	events   session.EventSink

	agent     *langgraph.Client
	transport session.Transport
	client    *session.Client

	store             *sqlite.Store
	shutdownTelemetry telemetry.Shutdown
}

func newRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	tracer, shutdownTelemetry, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint, logger)
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}

	agent, err := langgraph.New(cfg.AgentURL, langgraph.Options{
		APIKey:    cfg.APIKey,
		Timeout:   cfg.RequestTimeout,
		UserAgent: "carecompanion/" + version,
	})
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("new agent client: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observe.NewMetrics(registry)

	var transport session.Transport = observe.WrapTransport(agent, observe.Options{
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
	})
	if cfg.BreakerEnabled {
		transport = breaker.Wrap(transport, breaker.Config{
			Name:                "agent",
			ConsecutiveFailures: cfg.BreakerFailures,
			Cooldown:            cfg.BreakerCooldown,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		})
	}
	if cfg.RetryAttempts > 1 {
		transport = retry.WrapTransport(transport, retry.Config{
			MaxAttempts:     cfg.RetryAttempts,
			InitialInterval: cfg.RetryInitialInterval,
			OnRetry: func(op string, err error, wait time.Duration) {
				logger.Warn("retrying agent call",
					slog.String("op", op),
					slog.Duration("wait", wait),
					slog.Any("error", err),
				)
			},
		})
	}

	events := observe.NewEventSink(logger, metrics, nil)
	client, err := session.New(transport, session.Options{
		AssistantID:  cfg.AssistantID,
		EventSink:    events,
		Logger:       logger,
		RequireReply: cfg.RequireReply,
	})
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("new session client: %w", err)
	}

	return &runtime{
		cfg:               cfg,
		logger:            logger,
		registry:          registry,
		metrics:           metrics,
		events:            events,
		agent:             agent,
		transport:         transport,
		client:            client,
		shutdownTelemetry: shutdownTelemetry,
	}, nil
}

// threadStore opens the conversation thread database on first use.
func (r *runtime) threadStore() (*sqlite.Store, error) {
	if r.store != nil {
		return r.store, nil
	}
	store, err := sqlite.New(r.cfg.ThreadDB)
	if err != nil {
		return nil, fmt.Errorf("open thread db %s: %w", r.cfg.ThreadDB, err)
	}
	r.store = store
	return store, nil
}

func (r *runtime) conversation(key string) (*conversation.Conversation, error) {
	store, err := r.threadStore()
	if err != nil {
		return nil, err
	}
	return conversation.New(r.client, conversation.Options{
		Key:       key,
		Store:     store,
		Logger:    r.logger,
		EventSink: r.events,
	})
}

func (r *runtime) Close(ctx context.Context) error {
	var errs []error
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close thread db: %w", err))
		}
	}
	if r.shutdownTelemetry != nil {
		if err := r.shutdownTelemetry(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
