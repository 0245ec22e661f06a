package service

import (
	"testing"
	"time"
)

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func TestSessionManager_OpenAndGet(t *testing.T) {
	sm := NewSessionManager(25 * time.Second)
	sm.SetClock(fixedClock(100))

	opened := sm.Open("mic1", "astraea", "kitchen", 100)
	if opened.ID == "" {
		t.Fatal("expected a session id")
	}

	got := sm.Get("mic1")
	if got == nil {
		t.Fatal("expected a live session")
	}
	if got.Target != "astraea" || got.Room != "kitchen" || got.LastTS != 100 {
		t.Errorf("unexpected session %+v", got)
	}
}

func TestSessionManager_OneSessionPerSource(t *testing.T) {
	sm := NewSessionManager(25 * time.Second)
	sm.SetClock(fixedClock(100))

	first := sm.Open("mic1", "astraea", "", 100)
	second := sm.Open("mic1", "jarvis", "", 101)
	if first.ID == second.ID {
		t.Error("reopen must mint a fresh id")
	}

	all := sm.All()
	if len(all) != 1 {
		t.Fatalf("expected exactly one session for the source, got %d", len(all))
	}
	if all[0].Target != "jarvis" {
		t.Errorf("expected the replacement session, got target %q", all[0].Target)
	}
}

func TestSessionManager_LazyExpiry(t *testing.T) {
	sm := NewSessionManager(25 * time.Second)
	sm.SetClock(fixedClock(100))
	sm.Open("mic1", "astraea", "", 100)

	// exactly at the boundary: still live
	sm.SetClock(fixedClock(125))
	if sm.Get("mic1") == nil {
		t.Fatal("session must survive until strictly past the timeout")
	}

	sm.SetClock(fixedClock(126))
	if sm.Get("mic1") != nil {
		t.Fatal("session must be evicted past the timeout")
	}
	// eviction is permanent
	sm.SetClock(fixedClock(100))
	if sm.Get("mic1") != nil {
		t.Fatal("evicted session must not come back")
	}
}

func TestSessionManager_Touch(t *testing.T) {
	sm := NewSessionManager(25 * time.Second)
	sm.SetClock(fixedClock(100))
	sm.Open("mic1", "astraea", "kitchen", 100)

	s := sm.Touch("mic1", 110, "")
	if s == nil {
		t.Fatal("expected the session to survive a touch")
	}
	if s.LastTS != 110 {
		t.Errorf("LastTS = %d, want 110", s.LastTS)
	}
	if s.Room != "kitchen" {
		t.Errorf("empty room must not overwrite, got %q", s.Room)
	}

	s = sm.Touch("mic1", 111, "lounge")
	if s.Room != "lounge" {
		t.Errorf("non-empty room must overwrite, got %q", s.Room)
	}

	if sm.Touch("mic2", 111, "") != nil {
		t.Error("touching an absent source must return nil")
	}

	sm.SetClock(fixedClock(200))
	if sm.Touch("mic1", 200, "") != nil {
		t.Error("touching an expired session must return nil")
	}
}

func TestSessionManager_End(t *testing.T) {
	sm := NewSessionManager(25 * time.Second)
	sm.SetClock(fixedClock(100))
	sm.Open("mic1", "astraea", "", 100)

	sm.End("mic1")
	if sm.Get("mic1") != nil {
		t.Fatal("session must be gone after End")
	}
	// ending again is a no-op
	sm.End("mic1")
}

func TestSessionManager_AllEvictsExpired(t *testing.T) {
	sm := NewSessionManager(25 * time.Second)
	sm.SetClock(fixedClock(100))
	sm.Open("mic1", "astraea", "", 100)
	sm.Open("mic2", "jarvis", "", 90)

	sm.SetClock(fixedClock(120))
	all := sm.All()
	if len(all) != 1 {
		t.Fatalf("expected one live session, got %d", len(all))
	}
	if all[0].SourceID != "mic1" {
		t.Errorf("expected mic1 to survive, got %q", all[0].SourceID)
	}
}

func TestSessionManager_ExpiresIn(t *testing.T) {
	sm := NewSessionManager(25 * time.Second)
	sm.SetClock(fixedClock(110))
	s := sm.Open("mic1", "astraea", "", 100)

	if got := sm.ExpiresIn(*s); got != 15 {
		t.Errorf("ExpiresIn = %d, want 15", got)
	}

	sm.SetClock(fixedClock(1000))
	if got := sm.ExpiresIn(*s); got != 0 {
		t.Errorf("ExpiresIn must floor at zero, got %d", got)
	}
}
