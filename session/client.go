package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Options configures a Client.
type Options struct {
	// AssistantID is the agent targeted by every turn. Defaults to
	// DefaultAssistantID.
	AssistantID string
	// EventSink receives turn lifecycle events. Optional.
	EventSink EventSink
	Logger    *slog.Logger
	// RequireReply turns a turn without any assistant message into
	// ErrNoAssistantMessage instead of an empty reply.
	RequireReply bool
}

// Client submits conversational turns to a remote agent. It keeps no state
// between calls; callers own thread ids and must serialize turns per thread.
type Client struct {
	transport    Transport
	assistantID  string
	events       EventSink
	logger       *slog.Logger
	requireReply bool
}

func New(transport Transport, opts Options) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("new session client: %w", ErrMissingTransport)
	}
	assistantID := strings.TrimSpace(opts.AssistantID)
	if assistantID == "" {
		assistantID = DefaultAssistantID
	}
	events := opts.EventSink
	if events == nil {
		events = noopEventSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		transport:    transport,
		assistantID:  assistantID,
		events:       events,
		logger:       logger,
		requireReply: opts.RequireReply,
	}, nil
}

func (c *Client) AssistantID() string {
	return c.assistantID
}

// CreateThread creates an empty thread on the agent service.
func (c *Client) CreateThread(ctx context.Context) (ThreadID, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	threadID, err := c.transport.CreateThread(ctx)
	if err != nil {
		return NoThread, err
	}
	if strings.TrimSpace(string(threadID)) == "" {
		return NoThread, NewTransportError("create thread", errors.New("service returned an empty thread id"))
	}

	c.logger.DebugContext(ctx, "thread created", slog.String("thread_id", string(threadID)))
	return threadID, nil
}

// SendMessage appends userText to the thread, waits for the agent to finish,
// and returns the text of the latest assistant message in the thread state.
func (c *Client) SendMessage(ctx context.Context, threadID ThreadID, userText string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	turn := turnFromContext(ctx, c.events)
	turn.Bind(threadID, false)
	if err := turn.Advance(ctx, TurnSending); err != nil {
		return "", err
	}
	if strings.TrimSpace(string(threadID)) == "" {
		turn.Fail(ctx, ErrThreadRequired)
		return "", fmt.Errorf("send message: %w", ErrThreadRequired)
	}

	request := TurnRequest{
		ThreadID:    threadID,
		AssistantID: c.assistantID,
		Input:       TurnInput{Messages: []Message{UserMessage(userText)}},
	}

	if err := turn.Advance(ctx, TurnAwaitingResponse); err != nil {
		return "", err
	}
	if _, err := c.transport.Wait(ctx, request); err != nil {
		turn.Fail(ctx, err)
		return "", err
	}
	state, err := c.transport.ThreadState(ctx, threadID)
	if err != nil {
		turn.Fail(ctx, err)
		return "", err
	}

	if err := turn.Advance(ctx, TurnNormalizing); err != nil {
		return "", err
	}
	message, ok := state.Values.LastReply()
	if !ok {
		return c.finishWithoutReply(ctx, turn, threadID)
	}
	reply := c.normalize(ctx, message.Content, threadID)
	if err := turn.Advance(ctx, TurnIdle); err != nil {
		return "", err
	}

	c.logger.DebugContext(ctx, "turn completed",
		slog.String("thread_id", string(threadID)),
		slog.Int("messages", len(state.Values.Messages)),
		slog.Int("reply_bytes", len(reply)),
	)
	return reply, nil
}

// SendStatelessMessage runs a turn without a thread, so no history exists
// before or after the call. The reply is the last assistant message seen
// across the turn's full-state stream events.
func (c *Client) SendStatelessMessage(ctx context.Context, userText string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	turn := turnFromContext(ctx, c.events)
	turn.Bind(NoThread, true)
	if err := turn.Advance(ctx, TurnSending); err != nil {
		return "", err
	}

	request := TurnRequest{
		ThreadID:    NoThread,
		AssistantID: c.assistantID,
		Input:       TurnInput{Messages: []Message{UserMessage(userText)}},
		StreamMode:  StreamModeValues,
	}

	if err := turn.Advance(ctx, TurnAwaitingResponse); err != nil {
		return "", err
	}
	stream, err := c.transport.Stream(ctx, request)
	if err != nil {
		turn.Fail(ctx, err)
		return "", err
	}
	defer stream.Close()

	reduced, err := ReduceStream(stream)
	if err != nil {
		turn.Fail(ctx, err)
		return "", err
	}

	if err := turn.Advance(ctx, TurnNormalizing); err != nil {
		return "", err
	}
	if !reduced.Observed {
		return c.finishWithoutReply(ctx, turn, NoThread)
	}
	if reduced.Fallback {
		c.logger.WarnContext(ctx, "assistant content coerced to string", slog.Bool("stateless", true))
	}
	if err := turn.Advance(ctx, TurnIdle); err != nil {
		return "", err
	}

	c.logger.DebugContext(ctx, "stateless turn completed",
		slog.Int("events", reduced.Events),
		slog.Int("reply_bytes", len(reduced.Text)),
	)
	return reduced.Text, nil
}

// Reduction is the outcome of consuming a full-state event stream.
type Reduction struct {
	Text     string
	Observed bool
	Fallback bool
	Events   int
}

// ReduceStream consumes stream to the end. Each values snapshot supersedes
// the previous one; when its last message is assistant output it replaces
// the running reply.
func ReduceStream(stream EventStream) (Reduction, error) {
	var out Reduction
	for {
		event, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return Reduction{}, AsTransportError("read stream", err)
		}
		out.Events++

		values, ok, err := event.Values()
		if err != nil {
			return Reduction{}, NewTransportError("read stream", err)
		}
		if !ok {
			continue
		}
		last, ok := values.LastMessage()
		if !ok || !last.IsAssistant() {
			continue
		}
		out.Text, out.Fallback = normalize(last.Content)
		out.Observed = true
	}
}

func (c *Client) normalize(ctx context.Context, content Content, threadID ThreadID) string {
	text, fallback := normalize(content)
	if fallback {
		c.logger.WarnContext(ctx, "assistant content coerced to string",
			slog.String("thread_id", string(threadID)),
			slog.String("kind", content.Kind().String()),
		)
	}
	return text
}

func (c *Client) finishWithoutReply(ctx context.Context, turn *Turn, threadID ThreadID) (string, error) {
	if c.requireReply {
		turn.Fail(ctx, ErrNoAssistantMessage)
		return "", fmt.Errorf("thread %q: %w", threadID, ErrNoAssistantMessage)
	}
	c.logger.DebugContext(ctx, "turn produced no assistant message", slog.String("thread_id", string(threadID)))
	if err := turn.Advance(ctx, TurnIdle); err != nil {
		return "", err
	}
	return "", nil
}
