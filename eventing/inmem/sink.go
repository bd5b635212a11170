package inmem

import (
	"context"
	"errors"
	"sync"

	"github.com/Gurpartap/carecompanion/session"
)

var ErrContextNil = errors.New("context is nil")

// Sink captures turn lifecycle events in memory and exposes snapshots.
// A positive limit keeps only the most recent events.
type Sink struct {
	mu     sync.RWMutex
	limit  int
	events []session.TurnEvent
}

var _ session.EventSink = (*Sink)(nil)

func New() *Sink {
	return &Sink{events: make([]session.TurnEvent, 0)}
}

// NewBounded returns a sink that retains at most limit events.
func NewBounded(limit int) *Sink {
	sink := New()
	if limit > 0 {
		sink.limit = limit
	}
	return sink
}

func (s *Sink) Publish(ctx context.Context, event session.TurnEvent) error {
	if ctx == nil {
		return ErrContextNil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err := session.ValidateEvent(event); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	if s.limit > 0 && len(s.events) > s.limit {
		s.events = append(s.events[:0:0], s.events[len(s.events)-s.limit:]...)
	}
	return nil
}

func (s *Sink) Events() []session.TurnEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]session.TurnEvent, len(s.events))
	copy(out, s.events)
	return out
}

// ThreadEvents returns the events of turns bound to threadID.
func (s *Sink) ThreadEvents(threadID session.ThreadID) []session.TurnEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]session.TurnEvent, 0)
	for _, event := range s.events {
		if event.ThreadID == threadID && !event.Stateless {
			out = append(out, event)
		}
	}
	return out
}
