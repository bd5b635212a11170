package inmem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gurpartap/carecompanion/session"
)

var (
	ErrThreadVersionConflict = errors.New("thread version conflict")
	ErrThreadIDRequired      = errors.New("thread id is required")
)

// Thread is the stored transcript of one conversation.
type Thread struct {
	ID        session.ThreadID
	Messages  []session.Message
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func cloneThread(in Thread) Thread {
	out := in
	out.Messages = session.CloneMessages(in.Messages)
	return out
}

// ThreadStore persists threads in memory with optimistic version checks.
type ThreadStore struct {
	mu      sync.RWMutex
	threads map[session.ThreadID]Thread
}

func NewThreadStore() *ThreadStore {
	return &ThreadStore{threads: map[session.ThreadID]Thread{}}
}

// Save creates a thread at version 1 when thread.Version is 0, and otherwise
// replaces it only if thread.Version matches the stored version.
func (s *ThreadStore) Save(_ context.Context, thread Thread) error {
	if thread.ID == session.NoThread {
		return ErrThreadIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.threads[thread.ID]
	switch {
	case !exists:
		if thread.Version != 0 {
			return fmt.Errorf(
				"%w: thread %q expected version 0 on create, got %d",
				ErrThreadVersionConflict,
				thread.ID,
				thread.Version,
			)
		}
		next := cloneThread(thread)
		next.Version = 1
		s.threads[thread.ID] = next
		return nil
	case thread.Version != current.Version:
		return fmt.Errorf(
			"%w: thread %q expected version %d, got %d",
			ErrThreadVersionConflict,
			thread.ID,
			current.Version,
			thread.Version,
		)
	default:
		next := cloneThread(thread)
		next.Version = current.Version + 1
		s.threads[thread.ID] = next
		return nil
	}
}

func (s *ThreadStore) Load(_ context.Context, threadID session.ThreadID) (Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread, ok := s.threads[threadID]
	if !ok {
		return Thread{}, fmt.Errorf("%w: %q", session.ErrThreadNotFound, threadID)
	}
	return cloneThread(thread), nil
}

func (s *ThreadStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}
