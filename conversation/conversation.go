// Package conversation adapts the session client to a UI-facing chat: it
// owns the thread id of one conversation, serializes its turns, and turns
// failures into a friendly reply.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/Gurpartap/carecompanion/session"
)

// DefaultFallback is shown when a turn cannot be completed.
const DefaultFallback = "I couldn't reach the assistant right now. Please try again in a moment."

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrKeyRequired    = errors.New("conversation key is required")
	ErrStoreRequired  = errors.New("thread store is required")
	ErrSenderRequired = errors.New("session client is required")
)

// Sender is the part of session.Client a conversation drives.
type Sender interface {
	CreateThread(ctx context.Context) (session.ThreadID, error)
	SendMessage(ctx context.Context, threadID session.ThreadID, userText string) (string, error)
	SendStatelessMessage(ctx context.Context, userText string) (string, error)
}

// ThreadStore persists the thread id of each conversation key.
type ThreadStore interface {
	Load(ctx context.Context, key string) (session.ThreadID, bool, error)
	Save(ctx context.Context, key string, threadID session.ThreadID) error
	Delete(ctx context.Context, key string) error
}

type Options struct {
	Key       string
	Store     ThreadStore
	Fallback  string
	Logger    *slog.Logger
	EventSink session.EventSink
}

// Reply is the outcome of one turn. A degraded reply carries the fallback
// text and the error that caused it.
type Reply struct {
	Text     string
	Degraded bool
	Err      error
}

type Conversation struct {
	mu       sync.Mutex
	sender   Sender
	store    ThreadStore
	key      string
	fallback string
	logger   *slog.Logger
	events   session.EventSink
}

func New(sender Sender, opts Options) (*Conversation, error) {
	if sender == nil {
		return nil, ErrSenderRequired
	}
	if opts.Store == nil {
		return nil, ErrStoreRequired
	}
	key := strings.TrimSpace(opts.Key)
	if key == "" {
		return nil, ErrKeyRequired
	}
	fallback := opts.Fallback
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultFallback
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Conversation{
		sender:   sender,
		store:    opts.Store,
		key:      key,
		fallback: fallback,
		logger:   logger.With(slog.String("conversation", key)),
		events:   opts.EventSink,
	}, nil
}

func (c *Conversation) Key() string {
	return c.key
}

// ThreadID returns the thread currently backing the conversation.
func (c *Conversation) ThreadID(ctx context.Context) (session.ThreadID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Load(ctx, c.key)
}

// Send submits text on the conversation's thread, creating the thread on
// first use. Only empty input is returned as an error; every other failure
// becomes a degraded reply and leaves the stored thread in place.
func (c *Conversation) Send(ctx context.Context, text string) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		return Reply{}, ErrEmptyMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	turn := session.NewTurn(c.events)
	ctx = session.ContextWithTurn(ctx, turn)

	threadID, err := c.ensureThread(ctx, turn)
	if err != nil {
		return c.degrade(ctx, "create thread", err), nil
	}

	reply, err := c.sender.SendMessage(ctx, threadID, text)
	if err != nil {
		if errors.Is(err, session.ErrThreadNotFound) {
			c.forgetThread(ctx, threadID)
		}
		return c.degrade(ctx, "send message", err), nil
	}
	return Reply{Text: reply}, nil
}

// Ask submits text as a stateless turn. The conversation's thread is neither
// read nor written.
func (c *Conversation) Ask(ctx context.Context, text string) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		return Reply{}, ErrEmptyMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx = session.ContextWithTurn(ctx, session.NewTurn(c.events))
	reply, err := c.sender.SendStatelessMessage(ctx, text)
	if err != nil {
		return c.degrade(ctx, "send stateless message", err), nil
	}
	return Reply{Text: reply}, nil
}

// Reset drops the stored thread so that the next Send starts a new one.
func (c *Conversation) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Delete(ctx, c.key); err != nil {
		return fmt.Errorf("reset conversation %q: %w", c.key, err)
	}
	return nil
}

func (c *Conversation) ensureThread(ctx context.Context, turn *session.Turn) (session.ThreadID, error) {
	threadID, ok, err := c.store.Load(ctx, c.key)
	if err != nil {
		return session.NoThread, fmt.Errorf("load thread: %w", err)
	}
	if ok {
		return threadID, nil
	}

	if err := turn.Advance(ctx, session.TurnAwaitingThread); err != nil {
		return session.NoThread, err
	}
	threadID, err = c.sender.CreateThread(ctx)
	if err != nil {
		turn.Fail(ctx, err)
		return session.NoThread, err
	}
	if err := c.store.Save(ctx, c.key, threadID); err != nil {
		turn.Fail(ctx, err)
		return session.NoThread, fmt.Errorf("save thread: %w", err)
	}

	c.logger.InfoContext(ctx, "conversation thread created", slog.String("thread_id", string(threadID)))
	return threadID, nil
}

func (c *Conversation) forgetThread(ctx context.Context, threadID session.ThreadID) {
	if err := c.store.Delete(ctx, c.key); err != nil {
		c.logger.WarnContext(ctx, "drop unknown thread failed", slog.String("thread_id", string(threadID)), slog.Any("error", err))
		return
	}
	c.logger.WarnContext(ctx, "agent service lost thread; next message starts a new one", slog.String("thread_id", string(threadID)))
}

func (c *Conversation) degrade(ctx context.Context, op string, err error) Reply {
	c.logger.WarnContext(ctx, "turn failed", slog.String("op", op), slog.Any("error", err))
	return Reply{Text: c.fallback, Degraded: true, Err: err}
}
