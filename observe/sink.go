package observe

import (
	"context"
	"log/slog"

	"github.com/Gurpartap/carecompanion/session"
)

// EventSink logs and counts turn transitions, then forwards them to next.
type EventSink struct {
	logger  *slog.Logger
	metrics *Metrics
	next    session.EventSink
}

var _ session.EventSink = (*EventSink)(nil)

func NewEventSink(logger *slog.Logger, metrics *Metrics, next session.EventSink) *EventSink {
	return &EventSink{logger: logger, metrics: metrics, next: next}
}

func (s *EventSink) Publish(ctx context.Context, event session.TurnEvent) error {
	if s.metrics != nil {
		s.metrics.TurnTransitions.WithLabelValues(string(event.From), string(event.To)).Inc()
		if event.To == session.TurnIdle {
			s.metrics.TurnsTotal.WithLabelValues(turnMode(event), turnOutcome(event)).Inc()
		}
	}
	if s.logger != nil {
		attrs := []any{
			slog.String("from", string(event.From)),
			slog.String("to", string(event.To)),
			slog.Bool("stateless", event.Stateless),
		}
		if event.ThreadID != session.NoThread {
			attrs = append(attrs, slog.String("thread_id", string(event.ThreadID)))
		}
		if event.Error != "" {
			attrs = append(attrs, slog.String("error", event.Error))
		}
		s.logger.DebugContext(ctx, "turn transition", attrs...)
	}
	if s.next != nil {
		return s.next.Publish(ctx, event)
	}
	return nil
}

func turnMode(event session.TurnEvent) string {
	if event.Stateless {
		return "stateless"
	}
	return "thread"
}

func turnOutcome(event session.TurnEvent) string {
	switch {
	case event.Error != "":
		return "failed"
	case event.From == session.TurnNormalizing:
		return "completed"
	default:
		return "abandoned"
	}
}
