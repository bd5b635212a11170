package session

import "context"

// Transport submits turns to the remote agent service. Implementations hold
// no session state and never retry internally.
type Transport interface {
	CreateThread(ctx context.Context) (ThreadID, error)
	// Wait submits a turn against an existing thread and blocks until the
	// service reports it complete.
	Wait(ctx context.Context, request TurnRequest) (Values, error)
	// Stream submits a turn and returns its events. request.ThreadID may be
	// NoThread.
	Stream(ctx context.Context, request TurnRequest) (EventStream, error)
	ThreadState(ctx context.Context, threadID ThreadID) (ThreadState, error)
}

// EventStream is a single-pass, finite source of stream events. Next returns
// io.EOF once the stream ends. Close releases the producer and may be called
// at any point.
type EventStream interface {
	Next() (StreamEvent, error)
	Close() error
}

// EventSink receives turn lifecycle events.
type EventSink interface {
	Publish(ctx context.Context, event TurnEvent) error
}
