package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrQuit = errors.New("quit chat")

type Handlers struct {
	Send      func(ctx context.Context, text string) error
	Ask       func(ctx context.Context, text string) error
	NewThread func(ctx context.Context) error
	Thread    func(ctx context.Context) error
}

const helpText = `free text   send on the conversation thread
/ask <text> ask without touching the thread
/new        start a fresh thread
/thread     show the current thread id
/quit       leave the chat`

type REPL struct {
	in       *bufio.Reader
	renderer *Renderer
	handlers Handlers
}

func NewREPL(in io.Reader, renderer *Renderer, handlers Handlers) *REPL {
	if in == nil {
		in = strings.NewReader("")
	}
	if renderer == nil {
		renderer = NewRenderer(io.Discard, defaultPrompt)
	}
	return &REPL{
		in:       bufio.NewReader(in),
		renderer: renderer,
		handlers: handlers,
	}
}

func (r *REPL) Run(ctx context.Context) error {
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil
		}

		if err := r.renderer.ShowPrompt(); err != nil {
			return err
		}
		line, err := r.in.ReadString('\n')
		r.renderer.HidePrompt()
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if errors.Is(err, io.EOF) {
				return nil
			}
			continue
		}

		dispatchErr := r.dispatch(ctx, trimmed)
		switch {
		case dispatchErr == nil:
		case errors.Is(dispatchErr, ErrQuit):
			return nil
		default:
			if writeErr := r.renderer.PrintLine("error: " + dispatchErr.Error()); writeErr != nil {
				return writeErr
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

func (r *REPL) dispatch(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, "/") {
		return r.send(ctx, line)
	}

	commandWithPrefix := line
	args := ""
	if i := strings.IndexByte(line, ' '); i >= 0 {
		commandWithPrefix = line[:i]
		args = strings.TrimSpace(line[i+1:])
	}
	command := strings.TrimPrefix(commandWithPrefix, "/")

	switch command {
	case "ask":
		if args == "" {
			return errors.New("/ask requires message text")
		}
		if r.handlers.Ask == nil {
			return errors.New("ask command is not configured")
		}
		return r.handlers.Ask(ctx, args)
	case "new":
		if r.handlers.NewThread == nil {
			return errors.New("new command is not configured")
		}
		return r.handlers.NewThread(ctx)
	case "thread":
		if r.handlers.Thread == nil {
			return errors.New("thread command is not configured")
		}
		return r.handlers.Thread(ctx)
	case "help":
		return r.renderer.PrintLine(helpText)
	case "quit", "exit":
		return ErrQuit
	default:
		return fmt.Errorf("unsupported command %q", commandWithPrefix)
	}
}

func (r *REPL) send(ctx context.Context, text string) error {
	if r.handlers.Send == nil {
		return errors.New("send command is not configured")
	}
	return r.handlers.Send(ctx, text)
}
