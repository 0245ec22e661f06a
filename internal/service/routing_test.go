package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bbureau12/echonet/internal/domain"
	"github.com/bbureau12/echonet/internal/repository"
)

type listenCapture struct {
	mu     sync.Mutex
	events []domain.OutboundEvent
	status int
}

func (lc *listenCapture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev domain.OutboundEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		lc.mu.Lock()
		lc.events = append(lc.events, ev)
		status := lc.status
		lc.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}
}

func (lc *listenCapture) last(t *testing.T) domain.OutboundEvent {
	t.Helper()
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if len(lc.events) == 0 {
		t.Fatal("no events were forwarded")
	}
	return lc.events[len(lc.events)-1]
}

type routerFixture struct {
	router   *Router
	targets  *repository.TargetRepository
	sessions *SessionManager
	capture  *listenCapture
	baseURL  string
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	capture := &listenCapture{}
	mux := http.NewServeMux()
	mux.Handle("/listen", capture.handler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	targets := repository.NewTargetRepository(testDB(t))
	sessions := NewSessionManager(25 * time.Second)
	sessions.SetClock(fixedClock(100))
	matcher := NewMatcher([]string{"cancel", "never mind"}, true)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	forwarder := NewForwarder(2*time.Second, logger)

	return &routerFixture{
		router:   NewRouter(targets, sessions, matcher, forwarder, logger),
		targets:  targets,
		sessions: sessions,
		capture:  capture,
		baseURL:  srv.URL,
	}
}

func (f *routerFixture) register(t *testing.T, name string, phrases ...string) {
	t.Helper()
	err := f.targets.Upsert(context.Background(), domain.Target{
		Name: name, BaseURL: f.baseURL, Phrases: phrases,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRouter_TriggerOpensSession(t *testing.T) {
	f := newRouterFixture(t)
	f.register(t, "astraea", "hey astraea")

	decision, err := f.router.Route(context.Background(), domain.TextEvent{
		SourceID: "mic1", Text: "hey astraea turn on the lights", TS: 100,
	})
	if err != nil {
		t.Fatal(err)
	}

	if !decision.Handled || decision.Mode != domain.ModeSessionOpen {
		t.Errorf("decision = %+v, want handled session_open", decision)
	}
	if decision.RoutedTo != "astraea" {
		t.Errorf("routed_to = %q, want astraea", decision.RoutedTo)
	}
	if !decision.Forwarded {
		t.Error("expected forwarded=true")
	}
	if decision.Reason != "trigger_phrase:hey astraea" {
		t.Errorf("reason = %q", decision.Reason)
	}
	if decision.Session == nil || decision.Session.ExpiresInS != 25 {
		t.Errorf("session snapshot = %+v", decision.Session)
	}

	forwarded := f.capture.last(t)
	if forwarded.Text != "turn on the lights" {
		t.Errorf("forwarded text = %q, want stripped text", forwarded.Text)
	}
	if forwarded.Mode != domain.OutboundTriggered {
		t.Errorf("forwarded mode = %q, want triggered", forwarded.Mode)
	}
}

func TestRouter_SessionContinuation(t *testing.T) {
	f := newRouterFixture(t)
	f.register(t, "astraea", "hey astraea")
	ctx := context.Background()

	if _, err := f.router.Route(ctx, domain.TextEvent{SourceID: "mic1", Text: "hey astraea turn on the lights", TS: 100}); err != nil {
		t.Fatal(err)
	}

	f.sessions.SetClock(fixedClock(110))
	decision, err := f.router.Route(ctx, domain.TextEvent{SourceID: "mic1", Text: "now dim them", TS: 110})
	if err != nil {
		t.Fatal(err)
	}

	if decision.Mode != domain.ModeSessionContinue || !decision.Handled {
		t.Errorf("decision = %+v, want session_continue", decision)
	}
	if decision.Reason != "session_active" {
		t.Errorf("reason = %q", decision.Reason)
	}

	forwarded := f.capture.last(t)
	if forwarded.Text != "now dim them" {
		t.Errorf("continuation text must be untouched, got %q", forwarded.Text)
	}
	if forwarded.Mode != domain.OutboundOpenListen {
		t.Errorf("forwarded mode = %q, want open_listen", forwarded.Mode)
	}
}

func TestRouter_CancelEndsSession(t *testing.T) {
	f := newRouterFixture(t)
	f.register(t, "astraea", "hey astraea")
	ctx := context.Background()

	if _, err := f.router.Route(ctx, domain.TextEvent{SourceID: "mic1", Text: "hey astraea hello", TS: 100}); err != nil {
		t.Fatal(err)
	}

	decision, err := f.router.Route(ctx, domain.TextEvent{SourceID: "mic1", Text: "cancel", TS: 111})
	if err != nil {
		t.Fatal(err)
	}
	if decision.Mode != domain.ModeSessionEnd || decision.Reason != "cancel_phrase" {
		t.Errorf("decision = %+v, want session_end/cancel_phrase", decision)
	}
	if f.sessions.Get("mic1") != nil {
		t.Error("session must be gone after cancel")
	}
}

func TestRouter_CancelBeatsTrigger(t *testing.T) {
	f := newRouterFixture(t)
	f.register(t, "astraea", "hey astraea")

	decision, err := f.router.Route(context.Background(), domain.TextEvent{
		SourceID: "mic1", Text: "hey astraea never mind", TS: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if decision.Mode != domain.ModeSessionEnd {
		t.Errorf("cancel must dominate trigger, got mode %q", decision.Mode)
	}
	if decision.Forwarded {
		t.Error("cancelled events must not be forwarded")
	}
}

func TestRouter_SwitchReportedOnlyForDifferentTarget(t *testing.T) {
	f := newRouterFixture(t)
	f.register(t, "astraea", "hey astraea")
	f.register(t, "jarvis", "hey jarvis")
	ctx := context.Background()

	first, err := f.router.Route(ctx, domain.TextEvent{SourceID: "mic1", Text: "hey astraea hello", TS: 100})
	if err != nil {
		t.Fatal(err)
	}
	if first.Mode != domain.ModeSessionOpen {
		t.Fatalf("first trigger mode = %q", first.Mode)
	}

	again, err := f.router.Route(ctx, domain.TextEvent{SourceID: "mic1", Text: "hey astraea again", TS: 105})
	if err != nil {
		t.Fatal(err)
	}
	if again.Mode != domain.ModeSessionOpen {
		t.Errorf("same-target retrigger mode = %q, want session_open", again.Mode)
	}
	if again.Session.ID == first.Session.ID {
		t.Error("retrigger must reopen with a fresh id")
	}

	switched, err := f.router.Route(ctx, domain.TextEvent{SourceID: "mic1", Text: "hey jarvis help", TS: 110})
	if err != nil {
		t.Fatal(err)
	}
	if switched.Mode != domain.ModeSessionSwitch {
		t.Errorf("different-target trigger mode = %q, want session_switch", switched.Mode)
	}
	if switched.RoutedTo != "jarvis" {
		t.Errorf("routed_to = %q, want jarvis", switched.RoutedTo)
	}
}

func TestRouter_RegistrationOrderWinsForSharedPhrase(t *testing.T) {
	f := newRouterFixture(t)
	f.register(t, "a", "hey")
	f.register(t, "b", "hey")

	decision, err := f.router.Route(context.Background(), domain.TextEvent{
		SourceID: "mic1", Text: "hey", TS: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if decision.RoutedTo != "a" {
		t.Errorf("routed_to = %q, want the first-registered target", decision.RoutedTo)
	}
}

func TestRouter_IdleWhenNothingMatches(t *testing.T) {
	f := newRouterFixture(t)
	f.register(t, "astraea", "hey astraea")

	decision, err := f.router.Route(context.Background(), domain.TextEvent{
		SourceID: "mic1", Text: "what a lovely day", TS: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if decision.Handled || decision.Mode != domain.ModeIdle || decision.Reason != "no_trigger_no_session" {
		t.Errorf("decision = %+v, want idle", decision)
	}
}

func TestRouter_TriggerForMissingTargetStaysIdle(t *testing.T) {
	f := newRouterFixture(t)
	// phrase map entry outlives its target: the trigger matches but
	// nothing can be routed
	ev := domain.TextEvent{SourceID: "mic1", Text: "hey ghost lights", TS: 100}

	p, err := f.router.decideTrigger(context.Background(), ev, nil, "hey ghost", "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if p.decision.Handled || p.decision.Mode != domain.ModeIdle {
		t.Errorf("decision = %+v, want unhandled idle", p.decision)
	}
	if p.decision.Reason != "trigger_target_missing" {
		t.Errorf("reason = %q, want trigger_target_missing", p.decision.Reason)
	}
	if p.forward {
		t.Error("missing target must not forward")
	}
	if f.sessions.Get("mic1") != nil {
		t.Error("missing target must not open a session")
	}
}

func TestRouter_ContinuationAfterTargetUnregistered(t *testing.T) {
	f := newRouterFixture(t)
	f.register(t, "astraea", "hey astraea")
	ctx := context.Background()

	if _, err := f.router.Route(ctx, domain.TextEvent{SourceID: "mic1", Text: "hey astraea hello", TS: 100}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.targets.Delete(ctx, "astraea"); err != nil {
		t.Fatal(err)
	}

	decision, err := f.router.Route(ctx, domain.TextEvent{SourceID: "mic1", Text: "still there?", TS: 105})
	if err != nil {
		t.Fatal(err)
	}
	if decision.Mode != domain.ModeSessionEnd || decision.Reason != "target_unregistered" {
		t.Errorf("decision = %+v, want session_end/target_unregistered", decision)
	}
	if f.sessions.Get("mic1") != nil {
		t.Error("session must be ended when its target disappears")
	}
}

func TestRouter_ForwardFailureReported(t *testing.T) {
	f := newRouterFixture(t)
	f.register(t, "astraea", "hey astraea")
	f.capture.status = http.StatusInternalServerError

	decision, err := f.router.Route(context.Background(), domain.TextEvent{
		SourceID: "mic1", Text: "hey astraea hello", TS: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !decision.Handled || decision.Mode != domain.ModeSessionOpen {
		t.Errorf("local decision must still succeed, got %+v", decision)
	}
	if decision.Forwarded {
		t.Error("non-2xx delivery must report forwarded=false")
	}
}

func TestRouter_RoomFallsBackToSession(t *testing.T) {
	f := newRouterFixture(t)
	f.register(t, "astraea", "hey astraea")
	ctx := context.Background()

	if _, err := f.router.Route(ctx, domain.TextEvent{SourceID: "mic1", Room: "kitchen", Text: "hey astraea hello", TS: 100}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.router.Route(ctx, domain.TextEvent{SourceID: "mic1", Text: "louder please", TS: 101}); err != nil {
		t.Fatal(err)
	}

	forwarded := f.capture.last(t)
	if forwarded.Room != "kitchen" {
		t.Errorf("continuation without a room must reuse the session room, got %q", forwarded.Room)
	}
}
