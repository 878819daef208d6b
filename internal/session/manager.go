package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager is the process-wide {session_id -> actor} registry (§4.9,
// Session Manager). It lazily spawns an Actor on first use, rehydrates
// one from the State Store and relational roster when it isn't already
// resident, and evicts idle actors after IdleTimeout to bound memory
// across a fleet of concurrently running classrooms.
type Manager struct {
	mu      sync.Mutex
	actors  map[string]*actorEntry
	storage Storage
	store   StateStore
	log     zerolog.Logger

	idleTimeout time.Duration
	rootCtx     context.Context
}

type actorEntry struct {
	actor  *Actor
	cancel context.CancelFunc
}

// NewManager builds a Manager. rootCtx is the parent context every spawned
// actor's Run loop derives from; cancelling it shuts every session down.
func NewManager(rootCtx context.Context, storage Storage, store StateStore, idleTimeout time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		actors:      make(map[string]*actorEntry),
		storage:     storage,
		store:       store,
		log:         log,
		idleTimeout: idleTimeout,
		rootCtx:     rootCtx,
	}
}

// Spawn creates a brand-new session in the lobby phase and starts its
// actor (§4.4, "Initialize session" precursor — the session row itself is
// assumed already created by the calling service; Spawn only builds the
// in-memory/runtime side).
func (m *Manager) Spawn(sessionID, tenantID string, teams []*Team, questionIDs []string) *Actor {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := NewRuntimeState(sessionID, tenantID, teams)
	state.QuestionIDs = questionIDs
	return m.start(state)
}

// Get returns the resident actor for sessionID, rehydrating it from the
// State Store and relational roster if it is not already in memory
// (§4.9, "Lookup or rehydrate").
func (m *Manager) Get(ctx context.Context, sessionID string) (*Actor, error) {
	m.mu.Lock()
	if entry, ok := m.actors[sessionID]; ok {
		m.mu.Unlock()
		return entry.actor, nil
	}
	m.mu.Unlock()

	blob, found, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, ErrStorage(err, true)
	}
	if !found {
		return nil, ErrSessionNotFound()
	}
	persisted, err := UnmarshalBlob(blob)
	if err != nil {
		return nil, ErrStateStore(err)
	}
	roster, err := m.storage.LoadRoster(ctx, sessionID)
	if err != nil {
		return nil, ErrStorage(err, true)
	}
	state := RestoreFromBlob(persisted, roster)

	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.actors[sessionID]; ok {
		return entry.actor, nil
	}
	return m.start(state), nil
}

// start wires a freshly built RuntimeState into an Actor, launches its
// loop, and registers it. Caller must hold m.mu.
func (m *Manager) start(state *RuntimeState) *Actor {
	actor := NewActor(state, m.storage, m.store, m.log)
	ctx, cancel := context.WithCancel(m.rootCtx)
	m.actors[state.SessionID] = &actorEntry{actor: actor, cancel: cancel}
	go actor.Run(ctx)
	actor.RecoverDeadline()
	return actor
}

// Evict stops and removes a session's actor, e.g. after it completes or
// an idle sweep selects it (§4.9).
func (m *Manager) Evict(sessionID string) {
	m.mu.Lock()
	entry, ok := m.actors[sessionID]
	if ok {
		delete(m.actors, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	entry.cancel()
	entry.actor.Stop()
}

// SweepIdle evicts every resident actor whose last processed command is
// older than the configured idle timeout, hibernating it back to just the
// State Store blob + relational roster (§4.9, §9 design notes: 10-minute
// idle hibernation). Completed sessions are always evicted immediately
// regardless of timeout, since no further mutation is possible.
func (m *Manager) SweepIdle() {
	now := time.Now()
	var victims []string

	m.mu.Lock()
	for id, entry := range m.actors {
		idle := now.Sub(entry.actor.LastActivity())
		if entry.actor.IsCompleted() || idle >= m.idleTimeout {
			victims = append(victims, id)
		}
	}
	m.mu.Unlock()

	for _, id := range victims {
		m.log.Info().Str("sessionId", id).Msg("evicting idle session actor")
		m.Evict(id)
	}
}

// RunIdleSweeper blocks, sweeping idle actors on a fixed interval until
// ctx is cancelled. Intended to be launched as its own goroutine by the
// daemon's main loop.
func (m *Manager) RunIdleSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.SweepIdle()
		case <-ctx.Done():
			return
		}
	}
}
