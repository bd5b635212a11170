package observe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Gurpartap/carecompanion/session"
)

const tracerName = "github.com/Gurpartap/carecompanion/observe"

// Options selects the instrumentation applied by WrapTransport. Nil fields
// are skipped, except Tracer which defaults to the global provider.
type Options struct {
	Logger  *slog.Logger
	Metrics *Metrics
	Tracer  trace.Tracer
}

// WrapTransport instruments every call with a span, metrics and a debug log
// line. Results and errors pass through unchanged.
func WrapTransport(next session.Transport, opts Options) session.Transport {
	if next == nil {
		return nil
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &transport{next: next, logger: opts.Logger, metrics: opts.Metrics, tracer: tracer}
}

type transport struct {
	next    session.Transport
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

func (t *transport) CreateThread(ctx context.Context) (session.ThreadID, error) {
	ctx, call := t.start(ctx, "create_thread", session.NoThread)
	threadID, err := t.next.CreateThread(ctx)
	call.span.SetAttributes(attribute.String("thread.id", string(threadID)))
	call.end(err)
	return threadID, err
}

func (t *transport) Wait(ctx context.Context, request session.TurnRequest) (session.Values, error) {
	ctx, call := t.start(ctx, "wait", request.ThreadID)
	values, err := t.next.Wait(ctx, request)
	call.span.SetAttributes(attribute.Int("messages.count", len(values.Messages)))
	call.end(err)
	return values, err
}

func (t *transport) ThreadState(ctx context.Context, threadID session.ThreadID) (session.ThreadState, error) {
	ctx, call := t.start(ctx, "thread_state", threadID)
	state, err := t.next.ThreadState(ctx, threadID)
	call.span.SetAttributes(attribute.Int("messages.count", len(state.Values.Messages)))
	call.end(err)
	return state, err
}

// Stream keeps its span open until the stream is closed.
func (t *transport) Stream(ctx context.Context, request session.TurnRequest) (session.EventStream, error) {
	ctx, call := t.start(ctx, "stream", request.ThreadID)
	call.span.SetAttributes(attribute.Bool("turn.stateless", request.ThreadID == session.NoThread))
	stream, err := t.next.Stream(ctx, request)
	if err != nil {
		call.end(err)
		return nil, err
	}
	return &observedStream{next: stream, call: call, metrics: t.metrics}, nil
}

type call struct {
	operation string
	threadID  session.ThreadID
	started   time.Time
	span      trace.Span
	logger    *slog.Logger
	metrics   *Metrics
	ctx       context.Context
}

func (t *transport) start(ctx context.Context, operation string, threadID session.ThreadID) (context.Context, *call) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := t.tracer.Start(ctx, "agent."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("agent.operation", operation)),
	)
	if threadID != session.NoThread {
		span.SetAttributes(attribute.String("thread.id", string(threadID)))
	}
	return ctx, &call{
		operation: operation,
		threadID:  threadID,
		started:   time.Now(),
		span:      span,
		logger:    t.logger,
		metrics:   t.metrics,
		ctx:       ctx,
	}
}

func (c *call) end(err error) {
	elapsed := time.Since(c.started)
	outcome := Outcome(err)

	if err != nil {
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
	}
	c.span.SetAttributes(attribute.String("agent.outcome", outcome))
	c.span.End()

	if c.metrics != nil {
		c.metrics.CallsTotal.WithLabelValues(c.operation, outcome).Inc()
		c.metrics.CallDuration.WithLabelValues(c.operation).Observe(elapsed.Seconds())
	}
	if c.logger != nil {
		attrs := []any{
			slog.String("operation", c.operation),
			slog.String("outcome", outcome),
			slog.Duration("duration", elapsed),
		}
		if c.threadID != session.NoThread {
			attrs = append(attrs, slog.String("thread_id", string(c.threadID)))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			c.logger.WarnContext(c.ctx, "agent call failed", attrs...)
			return
		}
		c.logger.DebugContext(c.ctx, "agent call", attrs...)
	}
}

// Outcome classifies an agent call result for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, session.ErrThreadNotFound):
		return "not_found"
	default:
		return "error"
	}
}

type observedStream struct {
	next    session.EventStream
	call    *call
	metrics *Metrics

	mu     sync.Mutex
	events int
	err    error
	once   sync.Once
}

func (s *observedStream) Next() (session.StreamEvent, error) {
	event, err := s.next.Next()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.err = err
		}
		return event, err
	}
	s.events++
	if s.metrics != nil {
		s.metrics.StreamEvents.WithLabelValues(event.Event).Inc()
	}
	return event, nil
}

func (s *observedStream) Close() error {
	err := s.next.Close()
	s.once.Do(func() {
		s.mu.Lock()
		events, streamErr := s.events, s.err
		s.mu.Unlock()
		s.call.span.SetAttributes(attribute.Int("stream.events", events))
		s.call.end(streamErr)
	})
	return err
}
