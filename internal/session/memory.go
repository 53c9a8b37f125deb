// Package session implements the in-memory conversation store: one bounded,
// ordered turn window per user.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"recordchat-agent/internal/domain"
)

const defaultMaxTurns = 20

type conversation struct {
	turns      []domain.Turn
	totalTurns int
	startedAt  time.Time
}

// MemoryStore keeps sessions keyed by user ID. Retention is a sliding
// window: appending beyond the configured maximum evicts the oldest turn.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*conversation
	maxTurns int
	now      func() time.Time
}

// NewMemoryStore creates a store retaining at most maxTurns turns per user.
// maxTurns <= 0 selects the default window.
func NewMemoryStore(maxTurns int) *MemoryStore {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &MemoryStore{
		sessions: make(map[string]*conversation),
		maxTurns: maxTurns,
		now:      time.Now,
	}
}

// Append records a turn, creating the session lazily on first use and
// evicting FIFO once the window is full.
func (s *MemoryStore) Append(_ context.Context, turn domain.Turn) error {
	userID := strings.TrimSpace(turn.UserID)
	if userID == "" {
		return errors.New("session: turn user id must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.sessions[userID]
	if !ok {
		conv = &conversation{startedAt: s.now()}
		s.sessions[userID] = conv
	}
	conv.turns = append(conv.turns, turn)
	conv.totalTurns++
	if len(conv.turns) > s.maxTurns {
		overflow := len(conv.turns) - s.maxTurns
		conv.turns = append([]domain.Turn(nil), conv.turns[overflow:]...)
	}
	return nil
}

// History returns the surviving window for a user in chronological order.
// Unknown users get an empty history.
func (s *MemoryStore) History(_ context.Context, userID string) ([]domain.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	out := make([]domain.Turn, len(conv.turns))
	copy(out, conv.turns)
	return out, nil
}

// Stats reports session counters. MessageCount is monotonic across
// evictions. Unknown users get zero-value stats, not an error.
func (s *MemoryStore) Stats(_ context.Context, userID string) (domain.SessionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.sessions[userID]
	if !ok {
		return domain.SessionStats{}, nil
	}
	return domain.SessionStats{
		MessageCount: conv.totalTurns,
		Duration:     s.now().Sub(conv.startedAt),
		StartedAt:    conv.startedAt,
	}, nil
}

// Reset drops one user's session entirely.
func (s *MemoryStore) Reset(_ context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}
