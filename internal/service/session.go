package service

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bbureau12/echonet/internal/domain"
)

// SessionManager keeps the in-memory per-source session table. The table
// is keyed by source id, which enforces at most one live session per
// source. Expiry is lazy: it is checked on every access against the
// injected clock, never by a background sweep.
type SessionManager struct {
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	bySource map[string]*domain.Session
}

func NewSessionManager(timeout time.Duration) *SessionManager {
	return &SessionManager{
		timeout:  timeout,
		now:      time.Now,
		bySource: make(map[string]*domain.Session),
	}
}

// SetClock overrides the wall clock, for tests.
func (sm *SessionManager) SetClock(now func() time.Time) {
	sm.now = now
}

// Timeout returns the configured session timeout.
func (sm *SessionManager) Timeout() time.Duration {
	return sm.timeout
}

func (sm *SessionManager) expired(s *domain.Session) bool {
	return sm.now().Unix()-s.LastTS > int64(sm.timeout/time.Second)
}

// Get returns the live session for sourceID, evicting it first if it has
// expired.
func (sm *SessionManager) Get(sourceID string) *domain.Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.getLocked(sourceID)
}

func (sm *SessionManager) getLocked(sourceID string) *domain.Session {
	s, ok := sm.bySource[sourceID]
	if !ok {
		return nil
	}
	if sm.expired(s) {
		delete(sm.bySource, sourceID)
		return nil
	}
	copied := *s
	return &copied
}

// Open creates a fresh session for sourceID, unconditionally replacing
// any prior one. Switching targets is implemented as a reopen.
func (sm *SessionManager) Open(sourceID, target, room string, ts int64) *domain.Session {
	s := &domain.Session{
		ID:       "sess-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Target:   target,
		SourceID: sourceID,
		Room:     room,
		LastTS:   ts,
	}
	sm.mu.Lock()
	sm.bySource[sourceID] = s
	sm.mu.Unlock()
	copied := *s
	return &copied
}

// Touch refreshes the session's activity timestamp, updating the room
// only when the new room is non-empty. Returns nil when no live session
// exists; callers must treat that as a lost session.
func (sm *SessionManager) Touch(sourceID string, ts int64, room string) *domain.Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.bySource[sourceID]
	if !ok || sm.expired(s) {
		delete(sm.bySource, sourceID)
		return nil
	}
	s.LastTS = ts
	if room != "" {
		s.Room = room
	}
	copied := *s
	return &copied
}

// End removes the session; no-op if absent.
func (sm *SessionManager) End(sourceID string) {
	sm.mu.Lock()
	delete(sm.bySource, sourceID)
	sm.mu.Unlock()
}

// All returns the non-expired sessions, evicting expired ones as it goes.
func (sm *SessionManager) All() []domain.Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]domain.Session, 0, len(sm.bySource))
	for sourceID := range sm.bySource {
		if s := sm.getLocked(sourceID); s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// ExpiresIn computes the remaining lifetime of a session, floored at zero.
func (sm *SessionManager) ExpiresIn(s domain.Session) int64 {
	left := int64(sm.timeout/time.Second) - (sm.now().Unix() - s.LastTS)
	if left < 0 {
		return 0
	}
	return left
}
