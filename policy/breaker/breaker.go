package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Gurpartap/carecompanion/session"
)

// Config controls when the breaker opens and how long it stays open.
type Config struct {
	Name string
	// ConsecutiveFailures opens the breaker. Defaults to 5.
	ConsecutiveFailures uint32
	// Cooldown is how long the breaker stays open before letting a probe
	// through. Defaults to 30s.
	Cooldown time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
	OnStateChange    func(name string, from, to gobreaker.State)
}

// Transport fails fast while the agent service keeps failing. Every call
// counts, but only transport failures trip the breaker: caller cancellation
// and unknown threads do not.
type Transport struct {
	next session.Transport
	cb   *gobreaker.CircuitBreaker
}

var _ session.Transport = (*Transport)(nil)

// Wrap decorates next with a circuit breaker. A nil next yields a nil
// transport.
func Wrap(next session.Transport, cfg Config) session.Transport {
	wrapped, err := New(next, cfg)
	if err != nil {
		return nil
	}
	return wrapped
}

// New builds the breaker around next and exposes its state.
func New(next session.Transport, cfg Config) (*Transport, error) {
	if next == nil {
		return nil, fmt.Errorf("new breaker: %w", session.ErrMissingTransport)
	}
	name := cfg.Name
	if name == "" {
		name = "agent-service"
	}
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: isSuccessful,
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = cfg.OnStateChange
	}
	return &Transport{next: next, cb: gobreaker.NewCircuitBreaker(settings)}, nil
}

func (t *Transport) State() gobreaker.State {
	return t.cb.State()
}

func (t *Transport) CreateThread(ctx context.Context) (session.ThreadID, error) {
	result, err := t.cb.Execute(func() (interface{}, error) {
		return t.next.CreateThread(ctx)
	})
	if err != nil {
		return session.NoThread, openError("create thread", err)
	}
	threadID, _ := result.(session.ThreadID)
	return threadID, nil
}

func (t *Transport) Wait(ctx context.Context, request session.TurnRequest) (session.Values, error) {
	result, err := t.cb.Execute(func() (interface{}, error) {
		return t.next.Wait(ctx, request)
	})
	if err != nil {
		return session.Values{}, openError("wait", err)
	}
	values, _ := result.(session.Values)
	return values, nil
}

// Stream counts only the opening of the stream.
func (t *Transport) Stream(ctx context.Context, request session.TurnRequest) (session.EventStream, error) {
	result, err := t.cb.Execute(func() (interface{}, error) {
		return t.next.Stream(ctx, request)
	})
	if err != nil {
		return nil, openError("stream", err)
	}
	stream, _ := result.(session.EventStream)
	return stream, nil
}

func (t *Transport) ThreadState(ctx context.Context, threadID session.ThreadID) (session.ThreadState, error) {
	result, err := t.cb.Execute(func() (interface{}, error) {
		return t.next.ThreadState(ctx, threadID)
	})
	if err != nil {
		return session.ThreadState{}, openError("thread state", err)
	}
	state, _ := result.(session.ThreadState)
	return state, nil
}

func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, session.ErrThreadNotFound) ||
		errors.Is(err, session.ErrThreadRequired)
}

// openError turns a rejection by the breaker into a transport failure and
// leaves errors from the wrapped transport untouched.
func openError(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return session.NewTransportError(op, err)
	}
	return err
}
