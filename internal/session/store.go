package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/complai/complai/internal/config"
)

// entry is the store-internal mutable session state.
type entry struct {
	id           uuid.UUID
	owner        string
	history      []Message
	createdAt    time.Time
	lastActiveAt time.Time
	messageCount int
}

// Config contains the store's tunable limits. Zero values fall back to the
// package defaults from internal/config.
type Config struct {
	// WindowSize is the number of message pairs retained; history length is
	// bounded to 2*WindowSize.
	WindowSize int

	// Timeout is the idle duration after which a session expires.
	Timeout time.Duration

	// MaxSessions caps the number of live sessions.
	MaxSessions int

	Logger *slog.Logger
}

// Store is the in-memory session table.
//
// Store is safe for concurrent use by multiple goroutines. The mutex is held
// only for map and history mutations, never across external I/O.
type Store struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entry

	windowSize  int
	timeout     time.Duration
	maxSessions int

	logger *slog.Logger
	now    func() time.Time // injectable for expiry tests
}

// NewStore creates a session store.
func NewStore(cfg Config) *Store {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = config.DefaultWindowSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultSessionTimeout
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = config.DefaultMaxSessions
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Store{
		sessions:    make(map[uuid.UUID]*entry),
		windowSize:  cfg.WindowSize,
		timeout:     cfg.Timeout,
		maxSessions: cfg.MaxSessions,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// GetOrCreate resolves id to a live session owned by owner, refreshing its
// last-active time. An unknown, expired, or nil id yields a brand-new session
// with a fresh ID; a stale id is never silently reused. An id owned by a
// different identity fails with ErrNotAuthorized.
//
// The returned bool is true when a new session was created.
func (s *Store) GetOrCreate(id uuid.UUID, owner string) (Session, bool, error) {
	if owner == "" {
		return Session{}, false, ErrEmptyOwner
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if id != uuid.Nil {
		if e, ok := s.sessions[id]; ok {
			if e.owner != owner {
				return Session{}, false, fmt.Errorf("%w: %s", ErrNotAuthorized, id)
			}
			if !s.expiredLocked(e, now) {
				e.lastActiveAt = now
				return e.snapshot(), false, nil
			}
			// Expired: drop it and fall through to create.
			delete(s.sessions, id)
			s.logger.Debug("expired session replaced", "session_id", id)
		}
	}

	s.sweepLocked(now)
	s.evictIfFullLocked()

	e := &entry{
		id:           uuid.New(),
		owner:        owner,
		createdAt:    now,
		lastActiveAt: now,
	}
	s.sessions[e.id] = e

	s.logger.Info("created session", "session_id", e.id, "owner", owner)
	return e.snapshot(), true, nil
}

// Append adds a message and enforces the sliding-window bound, evicting the
// oldest entries first. It bumps the last-active time and the monotonic
// message counter. Unknown or expired ids fail with ErrSessionNotFound.
func (s *Store) Append(id uuid.UUID, role Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.sessions[id]
	if !ok || s.expiredLocked(e, now) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	e.history = append(e.history, Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})

	// Sliding window: keep only the most recent 2*windowSize entries.
	if maxLen := 2 * s.windowSize; len(e.history) > maxLen {
		trimmed := make([]Message, maxLen)
		copy(trimmed, e.history[len(e.history)-maxLen:])
		e.history = trimmed
	}

	e.lastActiveAt = now
	e.messageCount++
	return nil
}

// History returns an ownership-checked snapshot of the session's retained
// messages plus the monotonic total message count.
func (s *Store) History(id uuid.UUID, owner string) ([]Message, int, error) {
	if owner == "" {
		return nil, 0, ErrEmptyOwner
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.sessions[id]
	if !ok || s.expiredLocked(e, now) {
		return nil, 0, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if e.owner != owner {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotAuthorized, id)
	}

	e.lastActiveAt = now

	out := make([]Message, len(e.history))
	copy(out, e.history)
	return out, e.messageCount, nil
}

// Delete removes the session. Deleting a non-existent session is not an
// error; deleting another owner's session is.
func (s *Store) Delete(id uuid.UUID, owner string) error {
	if owner == "" {
		return ErrEmptyOwner
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if e.owner != owner {
		return fmt.Errorf("%w: %s", ErrNotAuthorized, id)
	}

	delete(s.sessions, id)
	s.logger.Debug("deleted session", "session_id", id)
	return nil
}

// List returns snapshots of the owner's live sessions, most recently active
// first.
func (s *Store) List(owner string) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []Session
	for _, e := range s.sessions {
		if e.owner != owner || s.expiredLocked(e, now) {
			continue
		}
		out = append(out, e.snapshot())
	}

	// Newest activity first.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].LastActiveAt.After(out[j-1].LastActiveAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// SweepExpired removes all sessions idle longer than the timeout and returns
// how many were removed. GetOrCreate also sweeps lazily, so calling this is
// optional.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

// Len returns the number of live (non-expired) sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, e := range s.sessions {
		if !s.expiredLocked(e, now) {
			n++
		}
	}
	return n
}

// Stats summarizes store occupancy.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := Stats{
		MaxSessions: s.maxSessions,
		WindowSize:  s.windowSize,
	}
	for _, e := range s.sessions {
		if s.expiredLocked(e, now) {
			continue
		}
		st.ActiveSessions++
		st.TotalMessages += e.messageCount
	}
	return st
}

// expiredLocked reports whether e has been idle longer than the timeout.
func (s *Store) expiredLocked(e *entry, now time.Time) bool {
	return now.Sub(e.lastActiveAt) > s.timeout
}

// sweepLocked removes expired sessions. Caller holds s.mu.
func (s *Store) sweepLocked(now time.Time) int {
	removed := 0
	for id, e := range s.sessions {
		if s.expiredLocked(e, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("swept expired sessions", "count", removed)
	}
	return removed
}

// evictIfFullLocked makes room for one insert by evicting the single session
// with the oldest last-active time. Caller holds s.mu.
func (s *Store) evictIfFullLocked() {
	if len(s.sessions) < s.maxSessions {
		return
	}

	var oldest *entry
	for _, e := range s.sessions {
		if oldest == nil || e.lastActiveAt.Before(oldest.lastActiveAt) {
			oldest = e
		}
	}
	if oldest != nil {
		delete(s.sessions, oldest.id)
		s.logger.Info("evicted session at capacity",
			"session_id", oldest.id,
			"last_active_at", oldest.lastActiveAt,
		)
	}
}

func (e *entry) snapshot() Session {
	return Session{
		ID:           e.id,
		Owner:        e.owner,
		CreatedAt:    e.createdAt,
		LastActiveAt: e.lastActiveAt,
		MessageCount: e.messageCount,
	}
}
