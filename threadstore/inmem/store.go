package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Gurpartap/carecompanion/session"
	"github.com/Gurpartap/carecompanion/threadstore"
)

// Store keeps conversation thread ids in memory.
type Store struct {
	mu      sync.RWMutex
	records map[string]threadstore.Record
	now     func() time.Time
}

func New() *Store {
	return &Store{records: map[string]threadstore.Record{}, now: time.Now}
}

func (s *Store) Load(_ context.Context, key string) (session.ThreadID, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return session.NoThread, false, threadstore.ErrKeyRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key]
	if !ok {
		return session.NoThread, false, nil
	}
	return record.ThreadID, true, nil
}

func (s *Store) Save(_ context.Context, key string, threadID session.ThreadID) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return threadstore.ErrKeyRequired
	}
	if threadID == session.NoThread {
		return threadstore.ErrThreadIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = threadstore.Record{Key: key, ThreadID: threadID, UpdatedAt: s.now().UTC()}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return threadstore.ErrKeyRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// List returns all records, most recently updated first.
func (s *Store) List(_ context.Context) ([]threadstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]threadstore.Record, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}
