package breaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Gurpartap/carecompanion/policy/breaker"
	"github.com/Gurpartap/carecompanion/session"
	"github.com/Gurpartap/carecompanion/transport/inmem"
)

type failingTransport struct {
	session.Transport
	calls int
	err   error
}

func (f *failingTransport) CreateThread(context.Context) (session.ThreadID, error) {
	f.calls++
	if f.err != nil {
		return session.NoThread, f.err
	}
	return "thread-ok", nil
}

func newBreaker(t *testing.T, next session.Transport, cfg breaker.Config) *breaker.Transport {
	t.Helper()
	wrapped, err := breaker.New(next, cfg)
	if err != nil {
		t.Fatalf("new breaker: %v", err)
	}
	return wrapped
}

func TestBreakerRejectsMissingTransport(t *testing.T) {
	t.Parallel()

	if _, err := breaker.New(nil, breaker.Config{}); !errors.Is(err, session.ErrMissingTransport) {
		t.Fatalf("expected ErrMissingTransport, got %v", err)
	}
	if _, err := session.New(breaker.Wrap(nil, breaker.Config{}), session.Options{}); !errors.Is(err, session.ErrMissingTransport) {
		t.Fatalf("session client must reject a wrapped nil transport, got %v", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	downstream := session.NewTransportError("create thread", errors.New("connection refused"))
	next := &failingTransport{err: downstream}
	var transitions []gobreaker.State
	wrapped := newBreaker(t, next, breaker.Config{
		ConsecutiveFailures: 2,
		Cooldown:            time.Hour,
		OnStateChange: func(_ string, _, to gobreaker.State) {
			transitions = append(transitions, to)
		},
	})

	for i := 0; i < 2; i++ {
		if _, err := wrapped.CreateThread(context.Background()); err != downstream {
			t.Fatalf("attempt %d: expected downstream error itself, got %v", i+1, err)
		}
	}
	if wrapped.State() != gobreaker.StateOpen {
		t.Fatalf("breaker should be open, got %s", wrapped.State())
	}

	_, err := wrapped.CreateThread(context.Background())
	if !errors.Is(err, gobreaker.ErrOpenState) || !errors.Is(err, session.ErrTransport) {
		t.Fatalf("expected open-state transport error, got %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("open breaker must not call downstream, calls=%d", next.calls)
	}
	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
}

func TestBreakerIgnoresCallerErrors(t *testing.T) {
	t.Parallel()

	next := &failingTransport{err: session.NewTransportError("create thread", context.Canceled)}
	wrapped := newBreaker(t, next, breaker.Config{ConsecutiveFailures: 1})

	for i := 0; i < 3; i++ {
		if _, err := wrapped.CreateThread(context.Background()); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	}
	if wrapped.State() != gobreaker.StateClosed {
		t.Fatalf("caller cancellation must not open the breaker, got %s", wrapped.State())
	}
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	t.Parallel()

	next := &failingTransport{err: errors.New("down")}
	wrapped := newBreaker(t, next, breaker.Config{ConsecutiveFailures: 1, Cooldown: 20 * time.Millisecond})

	if _, err := wrapped.CreateThread(context.Background()); err == nil {
		t.Fatal("expected failure")
	}
	if wrapped.State() != gobreaker.StateOpen {
		t.Fatalf("breaker should be open, got %s", wrapped.State())
	}

	time.Sleep(40 * time.Millisecond)
	next.err = nil
	threadID, err := wrapped.CreateThread(context.Background())
	if err != nil {
		t.Fatalf("probe after cooldown: %v", err)
	}
	if threadID != "thread-ok" || wrapped.State() != gobreaker.StateClosed {
		t.Fatalf("breaker did not recover: id=%q state=%s", threadID, wrapped.State())
	}
}

func TestBreakerPassesTurnsThrough(t *testing.T) {
	t.Parallel()

	service, err := inmem.NewService(inmem.EchoAgent{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	client, err := session.New(breaker.Wrap(service, breaker.Config{}), session.Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	threadID, err := client.CreateThread(context.Background())
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if reply, err := client.SendMessage(context.Background(), threadID, "ping"); err != nil || reply != "ping" {
		t.Fatalf("send message: reply=%q err=%v", reply, err)
	}
	if reply, err := client.SendStatelessMessage(context.Background(), "pong"); err != nil || reply != "pong" {
		t.Fatalf("send stateless message: reply=%q err=%v", reply, err)
	}
}
