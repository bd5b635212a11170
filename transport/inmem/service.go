package inmem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Gurpartap/carecompanion/session"
)

var (
	ErrAgentRequired     = errors.New("agent is required")
	ErrAssistantNotFound = errors.New("assistant not found")
)

// Option configures a Service.
type Option func(*Service)

// WithAssistant sets the single assistant served. Defaults to
// session.DefaultAssistantID.
func WithAssistant(assistant session.Assistant) Option {
	return func(s *Service) {
		if strings.TrimSpace(assistant.AssistantID) != "" {
			s.assistant = assistant
		}
	}
}

// WithIDGenerator replaces the uuid generator used for thread, message and
// run ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service is an in-process agent service. It satisfies session.Transport.
type Service struct {
	agent     Agent
	store     *ThreadStore
	assistant session.Assistant
	newID     func() string
	now       func() time.Time
}

var _ session.Transport = (*Service)(nil)

func NewService(agent Agent, opts ...Option) (*Service, error) {
	if agent == nil {
		return nil, ErrAgentRequired
	}
	s := &Service{
		agent: agent,
		store: NewThreadStore(),
		assistant: session.Assistant{
			AssistantID: session.DefaultAssistantID,
			GraphID:     session.DefaultAssistantID,
			Name:        session.DefaultAssistantID,
		},
		newID: func() string { return uuid.NewString() },
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Assistants lists the assistants served.
func (s *Service) Assistants() []session.Assistant {
	return []session.Assistant{s.assistant}
}

func (s *Service) CreateThread(ctx context.Context) (session.ThreadID, error) {
	if err := ctx.Err(); err != nil {
		return session.NoThread, session.NewTransportError("create thread", err)
	}

	now := s.now().UTC()
	thread := Thread{
		ID:        session.ThreadID(s.newID()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Save(ctx, thread); err != nil {
		return session.NoThread, session.NewTransportError("create thread", err)
	}
	return thread.ID, nil
}

func (s *Service) ThreadState(ctx context.Context, threadID session.ThreadID) (session.ThreadState, error) {
	if err := ctx.Err(); err != nil {
		return session.ThreadState{}, session.NewTransportError("thread state", err)
	}

	thread, err := s.store.Load(ctx, threadID)
	if err != nil {
		return session.ThreadState{}, session.NewTransportError("thread state", err)
	}
	return session.ThreadState{
		ThreadID: thread.ID,
		Values:   session.Values{Messages: thread.Messages},
	}, nil
}

// Wait runs a turn on an existing thread and returns the resulting state.
func (s *Service) Wait(ctx context.Context, request session.TurnRequest) (session.Values, error) {
	if request.ThreadID == session.NoThread {
		return session.Values{}, session.NewTransportError("wait", session.ErrThreadRequired)
	}
	result, err := s.run(ctx, request)
	if err != nil {
		return session.Values{}, session.NewTransportError("wait", err)
	}
	return result.final(), nil
}

// Stream runs a turn and emits a metadata event followed by one values
// snapshot per appended message. A NoThread request runs on an ephemeral
// transcript that is discarded afterwards.
func (s *Service) Stream(ctx context.Context, request session.TurnRequest) (session.EventStream, error) {
	if request.StreamMode != "" && request.StreamMode != session.StreamModeValues {
		return nil, session.NewTransportError("stream", fmt.Errorf("unsupported stream mode %q", request.StreamMode))
	}
	result, err := s.run(ctx, request)
	if err != nil {
		return nil, session.NewTransportError("stream", err)
	}

	events := make([]session.StreamEvent, 0, len(result.snapshots)+1)
	metadata, err := metadataEvent(result.runID)
	if err != nil {
		return nil, session.NewTransportError("stream", err)
	}
	events = append(events, metadata)
	for _, snapshot := range result.snapshots {
		event, err := session.ValuesEvent(snapshot)
		if err != nil {
			return nil, session.NewTransportError("stream", err)
		}
		events = append(events, event)
	}
	return newChannelStream(ctx, events), nil
}

type turnResult struct {
	runID     string
	snapshots []session.Values
}

func (r turnResult) final() session.Values {
	if len(r.snapshots) == 0 {
		return session.Values{}
	}
	return r.snapshots[len(r.snapshots)-1]
}

func (s *Service) run(ctx context.Context, request session.TurnRequest) (turnResult, error) {
	if err := ctx.Err(); err != nil {
		return turnResult{}, err
	}
	if request.AssistantID != "" && request.AssistantID != s.assistant.AssistantID {
		return turnResult{}, fmt.Errorf("%w: %q", ErrAssistantNotFound, request.AssistantID)
	}

	var thread Thread
	if request.ThreadID != session.NoThread {
		loaded, err := s.store.Load(ctx, request.ThreadID)
		if err != nil {
			return turnResult{}, err
		}
		thread = loaded
	}

	transcript := thread.Messages
	snapshots := make([]session.Values, 0, 2)
	for _, message := range request.Input.Messages {
		transcript = append(transcript, s.stamp(message, session.RoleUser, session.TypeHuman))
	}
	snapshots = append(snapshots, session.Values{Messages: session.CloneMessages(transcript)})

	replies, err := s.agent.Respond(ctx, session.CloneMessages(transcript))
	if err != nil {
		return turnResult{}, fmt.Errorf("agent: %w", err)
	}
	for _, reply := range replies {
		transcript = append(transcript, s.stamp(reply, session.RoleAssistant, session.TypeAI))
		snapshots = append(snapshots, session.Values{Messages: session.CloneMessages(transcript)})
	}

	if request.ThreadID != session.NoThread {
		thread.Messages = transcript
		thread.UpdatedAt = s.now().UTC()
		if err := s.store.Save(ctx, thread); err != nil {
			return turnResult{}, err
		}
	}
	return turnResult{runID: s.newID(), snapshots: snapshots}, nil
}

func (s *Service) stamp(message session.Message, role session.Role, kind string) session.Message {
	if message.ID == "" {
		message.ID = s.newID()
	}
	if message.Role == "" && message.Type == "" {
		message.Role = role
		message.Type = kind
	}
	return message
}

func metadataEvent(runID string) (session.StreamEvent, error) {
	data, err := json.Marshal(map[string]string{"run_id": runID})
	if err != nil {
		return session.StreamEvent{}, err
	}
	return session.StreamEvent{Event: session.EventMetadata, Data: data}, nil
}

// channelStream hands events to the consumer over an unbuffered channel, so
// the producer only advances when Next is called.
type channelStream struct {
	events    chan session.StreamEvent
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func newChannelStream(ctx context.Context, events []session.StreamEvent) *channelStream {
	streamCtx, cancel := context.WithCancel(ctx)
	stream := &channelStream{
		events: make(chan session.StreamEvent),
		cancel: cancel,
	}
	go stream.produce(streamCtx, events)
	return stream
}

func (s *channelStream) produce(ctx context.Context, events []session.StreamEvent) {
	defer close(s.events)
	for _, event := range events {
		select {
		case s.events <- event:
		case <-ctx.Done():
			s.mu.Lock()
			s.err = ctx.Err()
			s.mu.Unlock()
			return
		}
	}
}

func (s *channelStream) Next() (session.StreamEvent, error) {
	event, ok := <-s.events
	if ok {
		return event, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return session.StreamEvent{}, session.NewTransportError("stream", s.err)
	}
	return session.StreamEvent{}, io.EOF
}

func (s *channelStream) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}
