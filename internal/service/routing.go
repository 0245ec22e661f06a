package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bbureau12/echonet/internal/domain"
	"github.com/bbureau12/echonet/internal/repository"
)

// Router decides, for each incoming text event, whether and where to
// forward it. Precedence is strict: cancel beats trigger beats session
// continuation beats idle.
//
// Events for the same source id are serialized by a per-source lock so
// the session read-modify-write cannot race; events for different
// sources proceed in parallel. The lock is released before the outbound
// forwarding call.
type Router struct {
	targets   *repository.TargetRepository
	sessions  *SessionManager
	matcher   *Matcher
	forwarder *Forwarder
	logger    *slog.Logger

	mu    sync.Mutex
	byKey map[string]*sync.Mutex
}

func NewRouter(targets *repository.TargetRepository, sessions *SessionManager, matcher *Matcher, forwarder *Forwarder, logger *slog.Logger) *Router {
	return &Router{
		targets:   targets,
		sessions:  sessions,
		matcher:   matcher,
		forwarder: forwarder,
		logger:    logger,
		byKey:     make(map[string]*sync.Mutex),
	}
}

func (r *Router) sourceLock(sourceID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byKey[sourceID]
	if !ok {
		l = &sync.Mutex{}
		r.byKey[sourceID] = l
	}
	return l
}

// plan is everything decided under the per-source lock; forwarding
// happens after it is released.
type plan struct {
	decision  domain.RouteDecision
	forward   bool
	listenURL string
	payload   domain.OutboundEvent
}

// Route runs the decision pipeline for one event.
func (r *Router) Route(ctx context.Context, ev domain.TextEvent) (domain.RouteDecision, error) {
	lock := r.sourceLock(ev.SourceID)
	lock.Lock()
	p, err := r.decide(ctx, ev)
	lock.Unlock()
	if err != nil {
		return domain.RouteDecision{}, err
	}

	if p.forward {
		p.decision.Forwarded = r.forwarder.Forward(ctx, p.listenURL, p.payload)
	}
	r.logger.Info("routed event",
		slog.String("source_id", ev.SourceID),
		slog.String("mode", p.decision.Mode),
		slog.String("routed_to", p.decision.RoutedTo),
		slog.Bool("forwarded", p.decision.Forwarded),
		slog.String("reason", p.decision.Reason))
	return p.decision, nil
}

func (r *Router) decide(ctx context.Context, ev domain.TextEvent) (plan, error) {
	// Cancellation always wins, even over a simultaneous trigger match.
	if r.matcher.IsCancel(ev.Text) {
		r.sessions.End(ev.SourceID)
		return plan{decision: domain.RouteDecision{
			Handled: true,
			Mode:    domain.ModeSessionEnd,
			Reason:  "cancel_phrase",
		}}, nil
	}

	// The phrase map is computed fresh on every event so registration
	// changes take effect immediately.
	phraseMap, err := r.targets.PhraseMap(ctx)
	if err != nil {
		return plan{}, fmt.Errorf("load phrase map: %w", err)
	}

	active := r.sessions.Get(ev.SourceID)

	if phrase, targetName, ok := r.matcher.FindTrigger(ev.Text, phraseMap); ok {
		return r.decideTrigger(ctx, ev, active, phrase, targetName)
	}

	if active != nil {
		return r.decideContinue(ctx, ev, active)
	}

	return plan{decision: domain.RouteDecision{
		Handled: false,
		Mode:    domain.ModeIdle,
		Reason:  "no_trigger_no_session",
	}}, nil
}

func (r *Router) decideTrigger(ctx context.Context, ev domain.TextEvent, active *domain.Session, phrase, targetName string) (plan, error) {
	target, err := r.targets.Get(ctx, targetName)
	if errors.Is(err, sql.ErrNoRows) {
		// Target vanished between phrase-map read and now; do not open
		// or touch any session.
		return plan{decision: domain.RouteDecision{
			Handled: false,
			Mode:    domain.ModeIdle,
			Reason:  "trigger_target_missing",
		}}, nil
	}
	if err != nil {
		return plan{}, fmt.Errorf("resolve target %q: %w", targetName, err)
	}

	mode := domain.ModeSessionOpen
	if active != nil && active.Target != targetName {
		mode = domain.ModeSessionSwitch
	}
	session := r.sessions.Open(ev.SourceID, targetName, ev.Room, ev.TS)

	return plan{
		decision: domain.RouteDecision{
			Handled:  true,
			RoutedTo: targetName,
			Mode:     mode,
			Session:  r.snapshot(*session),
			Reason:   "trigger_phrase:" + phrase,
		},
		forward:   true,
		listenURL: target.ListenURL(),
		payload: domain.OutboundEvent{
			EventID:    NewEventID(),
			TS:         ev.TS,
			SourceID:   ev.SourceID,
			Room:       ev.Room,
			SessionID:  session.ID,
			Mode:       domain.OutboundTriggered,
			Text:       r.matcher.StripTrigger(ev.Text, phrase),
			Confidence: ev.Confidence,
		},
	}, nil
}

func (r *Router) decideContinue(ctx context.Context, ev domain.TextEvent, active *domain.Session) (plan, error) {
	session := r.sessions.Touch(ev.SourceID, ev.TS, ev.Room)
	if session == nil {
		// Expired between Get and Touch; treat as idle.
		return plan{decision: domain.RouteDecision{
			Handled: false,
			Mode:    domain.ModeIdle,
			Reason:  "no_trigger_no_session",
		}}, nil
	}

	target, err := r.targets.Get(ctx, session.Target)
	if errors.Is(err, sql.ErrNoRows) {
		r.sessions.End(ev.SourceID)
		return plan{decision: domain.RouteDecision{
			Handled: false,
			Mode:    domain.ModeSessionEnd,
			Reason:  "target_unregistered",
		}}, nil
	}
	if err != nil {
		return plan{}, fmt.Errorf("resolve target %q: %w", session.Target, err)
	}

	room := ev.Room
	if room == "" {
		room = session.Room
	}

	return plan{
		decision: domain.RouteDecision{
			Handled:  true,
			RoutedTo: session.Target,
			Mode:     domain.ModeSessionContinue,
			Session:  r.snapshot(*session),
			Reason:   "session_active",
		},
		forward:   true,
		listenURL: target.ListenURL(),
		payload: domain.OutboundEvent{
			EventID:    NewEventID(),
			TS:         ev.TS,
			SourceID:   ev.SourceID,
			Room:       room,
			SessionID:  session.ID,
			Mode:       domain.OutboundOpenListen,
			Text:       ev.Text, // continuation text is never stripped
			Confidence: ev.Confidence,
		},
	}, nil
}

func (r *Router) snapshot(s domain.Session) *domain.SessionSnapshot {
	return &domain.SessionSnapshot{
		ID:         s.ID,
		Target:     s.Target,
		SourceID:   s.SourceID,
		Room:       s.Room,
		LastTS:     s.LastTS,
		ExpiresInS: r.sessions.ExpiresIn(s),
	}
}
