package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Gurpartap/carecompanion/session"
)

// Config controls retry behavior for wrapped transport calls.
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	ShouldRetry     func(error) bool
	// OnRetry is called before each wait between attempts.
	OnRetry func(op string, err error, wait time.Duration)
}

// WrapTransport retries thread creation and thread state reads with
// exponential backoff. Turn submissions (Wait and Stream) are forwarded once,
// since resubmitting a turn would append the user message twice.
func WrapTransport(next session.Transport, cfg Config) session.Transport {
	if next == nil {
		return nil
	}
	return &transportWrapper{next: next, cfg: cfg}
}

type transportWrapper struct {
	next session.Transport
	cfg  Config
}

func (w *transportWrapper) CreateThread(ctx context.Context) (session.ThreadID, error) {
	var threadID session.ThreadID
	err := w.do(ctx, "create thread", func() error {
		created, err := w.next.CreateThread(ctx)
		if err != nil {
			return err
		}
		threadID = created
		return nil
	})
	return threadID, err
}

func (w *transportWrapper) ThreadState(ctx context.Context, threadID session.ThreadID) (session.ThreadState, error) {
	var state session.ThreadState
	err := w.do(ctx, "thread state", func() error {
		loaded, err := w.next.ThreadState(ctx, threadID)
		if err != nil {
			return err
		}
		state = loaded
		return nil
	})
	return state, err
}

func (w *transportWrapper) Wait(ctx context.Context, request session.TurnRequest) (session.Values, error) {
	return w.next.Wait(ctx, request)
}

func (w *transportWrapper) Stream(ctx context.Context, request session.TurnRequest) (session.EventStream, error) {
	return w.next.Stream(ctx, request)
}

func (w *transportWrapper) do(ctx context.Context, op string, call func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	attempts := normalizedAttempts(w.cfg.MaxAttempts)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(newExponential(w.cfg), uint64(attempts-1)),
		ctx,
	)

	var lastErr error
	operation := func() error {
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if !shouldRetry(ctx, w.cfg, err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if w.cfg.OnRetry != nil {
			w.cfg.OnRetry(op, err, wait)
		}
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if lastErr != nil && errors.Is(err, ctx.Err()) {
			return lastErr
		}
		return err
	}
	return nil
}

func newExponential(cfg Config) *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	// Attempt count bounds the retries, not elapsed time.
	policy.MaxElapsedTime = 0
	policy.Reset()
	return policy
}

func normalizedAttempts(maxAttempts int) int {
	if maxAttempts < 1 {
		return 1
	}
	return maxAttempts
}

func shouldRetry(ctx context.Context, cfg Config, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if cfg.ShouldRetry == nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		if errors.Is(err, session.ErrThreadNotFound) || errors.Is(err, session.ErrThreadRequired) {
			return false
		}
		return true
	}
	return cfg.ShouldRetry(err)
}
