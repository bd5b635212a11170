package chat

import (
	"context"
	"fmt"

	"github.com/Gurpartap/carecompanion/conversation"
	"github.com/Gurpartap/carecompanion/session"
)

// Conversation is the caller adapter the chat loop drives.
type Conversation interface {
	Send(ctx context.Context, text string) (conversation.Reply, error)
	Ask(ctx context.Context, text string) (conversation.Reply, error)
	Reset(ctx context.Context) error
	ThreadID(ctx context.Context) (session.ThreadID, bool, error)
}

// ConversationHandlers binds the chat commands to conv and prints replies
// through renderer.
func ConversationHandlers(conv Conversation, renderer *Renderer) Handlers {
	printReply := func(reply conversation.Reply) error {
		if reply.Degraded {
			return renderer.PrintLine("assistant (unavailable): " + reply.Text)
		}
		if reply.Text == "" {
			return renderer.PrintLine("assistant: (no reply)")
		}
		return renderer.PrintReply(reply.Text)
	}

	return Handlers{
		Send: func(ctx context.Context, text string) error {
			reply, err := conv.Send(ctx, text)
			if err != nil {
				return err
			}
			return printReply(reply)
		},
		Ask: func(ctx context.Context, text string) error {
			reply, err := conv.Ask(ctx, text)
			if err != nil {
				return err
			}
			return printReply(reply)
		},
		NewThread: func(ctx context.Context) error {
			if err := conv.Reset(ctx); err != nil {
				return err
			}
			return renderer.PrintLine("started a new thread; the next message opens it")
		},
		Thread: func(ctx context.Context) error {
			threadID, ok, err := conv.ThreadID(ctx)
			if err != nil {
				return fmt.Errorf("load thread: %w", err)
			}
			if !ok {
				return renderer.PrintLine("no thread yet")
			}
			return renderer.PrintLine("thread: " + string(threadID))
		},
	}
}

