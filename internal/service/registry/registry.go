package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mgarridoc/orienta/backend/internal/config"
	"github.com/mgarridoc/orienta/backend/internal/model/conversation"
	"github.com/mgarridoc/orienta/backend/internal/model/graph"
)

var (
	ErrUnknownContext    = errors.New("unknown graph context")
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidSequencing = errors.New("invalid turn sequencing")
	ErrRegistryClosed    = errors.New("session registry closed")
)

// Registry is the sole mutator of session state. Map access is guarded by
// an RWMutex; each session additionally carries its own mutex so one
// session's turn (including the gateway round-trip performed inside
// Update) never blocks unrelated sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	graphs   graph.Store
	idle     time.Duration
	sweep    time.Duration
	closed   atomic.Bool
	logger   *zap.Logger
}

type entry struct {
	mu      sync.Mutex
	session conversation.Session
	expired bool
}

// New builds a registry over the given graph store.
func New(graphs graph.Store, cfg config.SessionConfig, logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		graphs:   graphs,
		idle:     cfg.IdleTimeout,
		sweep:    cfg.SweepInterval,
		logger:   logger,
	}
}

// Create allocates a session with empty history for the given graph.
func (r *Registry) Create(_ context.Context, graphID string, role conversation.Role) (conversation.Session, error) {
	if r.closed.Load() {
		return conversation.Session{}, ErrRegistryClosed
	}

	if _, ok := r.graphs.FindByID(graphID); !ok {
		return conversation.Session{}, ErrUnknownContext
	}

	now := time.Now().UTC()
	session := conversation.Session{
		ID:             uuid.NewString(),
		GraphID:        graphID,
		Role:           role,
		History:        make([]conversation.Turn, 0, 8),
		CreatedAt:      now,
		LastActivityAt: now,
	}

	r.mu.Lock()
	r.sessions[session.ID] = &entry{session: session}
	r.mu.Unlock()

	r.logger.Info("session created",
		zap.String("session", session.ID),
		zap.String("graph", graphID),
		zap.String("role", string(role)))

	return snapshot(session), nil
}

// Get retrieves a copy of a session. Expiry is also enforced here, so an
// idle session reads as missing even between sweeps.
func (r *Registry) Get(_ context.Context, sessionID string) (conversation.Session, error) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return conversation.Session{}, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	if r.expireIfIdleLocked(e, now) {
		return conversation.Session{}, ErrSessionNotFound
	}
	e.session.LastActivityAt = now
	return snapshot(e.session), nil
}

// Update runs fn under the session's exclusive lock. fn is the single
// writer for the session while it runs; the orchestrator performs the
// whole compose-invoke-append sequence inside it so a concurrent caller
// can never compose a prompt against stale history. Activity is touched
// even when fn fails, so a failed turn does not shorten the session's
// remaining lifetime.
func (r *Registry) Update(_ context.Context, sessionID string, fn func(*conversation.Session) error) error {
	if r.closed.Load() {
		return ErrRegistryClosed
	}

	e, ok := r.lookup(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if r.expireIfIdleLocked(e, time.Now().UTC()) {
		return ErrSessionNotFound
	}

	err := fn(&e.session)
	e.session.LastActivityAt = time.Now().UTC()
	return err
}

// AppendTurn atomically appends one turn, enforcing the alternation
// invariant.
func (r *Registry) AppendTurn(ctx context.Context, sessionID string, turn conversation.Turn) error {
	return r.Update(ctx, sessionID, func(s *conversation.Session) error {
		return Append(s, turn)
	})
}

// Append validates and applies one turn against the session invariant:
// exactly one system opening turn first, then strict user/assistant
// alternation.
func Append(s *conversation.Session, turn conversation.Turn) error {
	last, opened := s.LastTurn()

	switch turn.Speaker {
	case conversation.SpeakerSystem:
		if opened {
			return ErrInvalidSequencing
		}
	case conversation.SpeakerUser:
		if !opened || last.Speaker == conversation.SpeakerUser {
			return ErrInvalidSequencing
		}
	case conversation.SpeakerAssistant:
		if !opened || last.Speaker != conversation.SpeakerUser {
			return ErrInvalidSequencing
		}
	default:
		return ErrInvalidSequencing
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	s.History = append(s.History, turn)
	return nil
}

// Expire soft-deletes a session immediately.
func (r *Registry) Expire(sessionID string) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return
	}

	e.mu.Lock()
	e.expired = true
	e.mu.Unlock()
}

// Run drives the periodic expiry sweep until ctx is cancelled. The sweep
// takes each session's own lock, so it never reclaims a session that is
// mid-turn.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.sweepOnce(time.Now().UTC()); n > 0 {
				r.logger.Info("expired idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Close rejects new work while letting in-flight turns finish.
func (r *Registry) Close() {
	r.closed.Store(true)
}

func (r *Registry) sweepOnce(now time.Time) int {
	r.mu.RLock()
	entries := make(map[string]*entry, len(r.sessions))
	for id, e := range r.sessions {
		entries[id] = e
	}
	r.mu.RUnlock()

	reclaimed := make([]string, 0)
	for id, e := range entries {
		e.mu.Lock()
		if !e.expired {
			r.expireIfIdleLocked(e, now)
		}
		if e.expired {
			reclaimed = append(reclaimed, id)
		}
		e.mu.Unlock()
	}

	if len(reclaimed) == 0 {
		return 0
	}

	r.mu.Lock()
	for _, id := range reclaimed {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	return len(reclaimed)
}

func (r *Registry) lookup(sessionID string) (*entry, bool) {
	r.mu.RLock()
	e, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e, true
}

// expireIfIdleLocked marks an idle session expired. Caller holds e.mu.
func (r *Registry) expireIfIdleLocked(e *entry, now time.Time) bool {
	if e.expired {
		return true
	}
	if r.idle > 0 && now.Sub(e.session.LastActivityAt) > r.idle {
		e.expired = true
		r.logger.Debug("session idle-expired", zap.String("session", e.session.ID))
	}
	return e.expired
}

func snapshot(s conversation.Session) conversation.Session {
	out := s
	out.History = append([]conversation.Turn(nil), s.History...)
	return out
}
