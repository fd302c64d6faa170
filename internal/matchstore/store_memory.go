package matchstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps matches in process. It is used when no Redis is
// configured.
type MemoryStore struct {
	mu      sync.Mutex
	matches map[string]*Match
	current string
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{matches: make(map[string]*Match), now: time.Now}
}

func (s *MemoryStore) Open(_ context.Context, white, black string) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	m := &Match{
		ID:        uuid.NewString(),
		Status:    StatusActive,
		White:     strings.TrimSpace(white),
		Black:     strings.TrimSpace(black),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.matches[m.ID] = m
	s.current = m.ID
	return m.clone(), nil
}

func (s *MemoryStore) Current(context.Context) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches[s.current].clone(), nil
}

func (s *MemoryStore) CommitSnapshot(_ context.Context, id string, version uint64, board string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	if m.Status != StatusActive {
		return false, ErrFinished
	}
	return m.accept(version, board, s.now()), nil
}

func (s *MemoryStore) Finish(_ context.Context, id, result string) (*Match, error) {
	if strings.TrimSpace(result) == "" {
		return nil, ErrInvalidArgs
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if m.Status == StatusFinished {
		return nil, ErrFinished
	}
	m.finish(result, s.now())
	return m.clone(), nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) lookup(id string) (*Match, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidArgs
	}
	m, ok := s.matches[id]
	if !ok {
		return nil, ErrMatchGone
	}
	return m, nil
}
