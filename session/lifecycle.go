package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// TurnState is the position of one conversational turn.
type TurnState string

const (
	TurnIdle             TurnState = "idle"
	TurnAwaitingThread   TurnState = "awaiting_thread"
	TurnSending          TurnState = "sending"
	TurnAwaitingResponse TurnState = "awaiting_response"
	TurnNormalizing      TurnState = "normalizing"
)

var allowedTurnTransitions = map[TurnState]map[TurnState]struct{}{
	TurnIdle: {
		TurnAwaitingThread: {},
		TurnSending:        {},
	},
	TurnAwaitingThread: {
		TurnSending: {},
		TurnIdle:    {},
	},
	TurnSending: {
		TurnAwaitingResponse: {},
		TurnIdle:             {},
	},
	TurnAwaitingResponse: {
		TurnNormalizing: {},
		TurnIdle:        {},
	},
	TurnNormalizing: {
		TurnIdle: {},
	},
}

func validateTurnTransition(from, to TurnState) error {
	allowed, ok := allowedTurnTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown source state %q", ErrInvalidTurnTransition, from)
	}
	if _, ok := allowed[to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTurnTransition, from, to)
	}
	return nil
}

// TurnEvent records one turn state transition.
type TurnEvent struct {
	ThreadID  ThreadID  `json:"thread_id,omitempty"`
	Stateless bool      `json:"stateless,omitempty"`
	From      TurnState `json:"from"`
	To        TurnState `json:"to"`
	Error     string    `json:"error,omitempty"`
}

// ValidateEvent checks event invariants before publish boundaries.
func ValidateEvent(event TurnEvent) error {
	if event.From == "" || event.To == "" {
		return fmt.Errorf("%w: field=state reason=empty from=%q to=%q", ErrEventInvalid, event.From, event.To)
	}
	if event.Stateless && event.ThreadID != NoThread {
		return fmt.Errorf("%w: field=thread_id reason=stateless thread_id=%q", ErrEventInvalid, event.ThreadID)
	}
	return nil
}

// Turn tracks the lifecycle of a single turn and publishes every transition.
// A failed publish never fails the turn.
type Turn struct {
	mu        sync.Mutex
	state     TurnState
	threadID  ThreadID
	stateless bool
	sink      EventSink
}

// NewTurn starts a turn in the idle state.
func NewTurn(sink EventSink) *Turn {
	if sink == nil {
		sink = noopEventSink{}
	}
	return &Turn{state: TurnIdle, sink: sink}
}

func (t *Turn) State() TurnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Bind records the thread the turn targets.
func (t *Turn) Bind(threadID ThreadID, stateless bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threadID = threadID
	t.stateless = stateless
}

// Advance moves the turn to the next state.
func (t *Turn) Advance(ctx context.Context, to TurnState) error {
	return t.transition(ctx, to, nil)
}

// Fail returns the turn to idle and records cause. An idle turn is left alone.
func (t *Turn) Fail(ctx context.Context, cause error) {
	if t.State() == TurnIdle {
		return
	}
	_ = t.transition(ctx, TurnIdle, cause)
}

func (t *Turn) transition(ctx context.Context, to TurnState, cause error) error {
	t.mu.Lock()
	from := t.state
	if err := validateTurnTransition(from, to); err != nil {
		t.mu.Unlock()
		return err
	}
	event := TurnEvent{
		ThreadID:  t.threadID,
		Stateless: t.stateless,
		From:      from,
		To:        to,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if err := ValidateEvent(event); err != nil {
		t.mu.Unlock()
		return errors.Join(err, fmt.Errorf("turn %s -> %s", from, to))
	}
	t.state = to
	sink := t.sink
	t.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	_ = sink.Publish(context.WithoutCancel(ctx), event)
	return nil
}

type turnContextKey struct{}

// ContextWithTurn hands an in-progress turn to the client so that its
// lifecycle continues from the caller's state instead of idle.
func ContextWithTurn(ctx context.Context, turn *Turn) context.Context {
	return context.WithValue(ctx, turnContextKey{}, turn)
}

func turnFromContext(ctx context.Context, sink EventSink) *Turn {
	if turn, ok := ctx.Value(turnContextKey{}).(*Turn); ok && turn != nil {
		return turn
	}
	return NewTurn(sink)
}

type noopEventSink struct{}

func (noopEventSink) Publish(context.Context, TurnEvent) error { return nil }
