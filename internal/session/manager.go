// Package session owns the authoritative mapping from session id to
// session record, classifies buffer snapshots on every output event, and
// turns state differences into hook dispatches and subscriber
// notifications.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/worktree-tools/ccmanager/internal/detector"
	"github.com/worktree-tools/ccmanager/internal/logging"
	"github.com/worktree-tools/ccmanager/internal/preset"
)

var sessionLog = logging.ForComponent(logging.CompSession)

// HookDispatcher receives transitions for hook execution. Implementations
// must not block (hook launch is fire-and-forget).
type HookDispatcher interface {
	StatusTransition(sessionID, worktree, branch string, oldState, newState detector.State)
}

// TransitionSink records dispatched transitions (e.g. the history
// database). Advisory: sink failures are logged, never propagated.
type TransitionSink interface {
	RecordTransition(change StateChange) error
}

// OverrideSource supplies user pattern overrides at detector construction.
type OverrideSource interface {
	DetectionOverrides(strategy detector.Strategy) *detector.RawPatterns
}

// Manager owns all session records. Create/OnOutput/Remove are safe under
// concurrent invocation from independent session event sources; events for
// one session are serialized against each other, events for different
// sessions proceed concurrently.
type Manager struct {
	dispatcher HookDispatcher
	overrides  OverrideSource
	sink       TransitionSink

	mu      sync.RWMutex
	records map[string]*record

	subMu       sync.Mutex
	subscribers map[int]chan StateChange
	nextSubID   int
}

// NewManager creates a Manager. overrides and sink may be nil; dispatcher
// must not be.
func NewManager(dispatcher HookDispatcher, overrides OverrideSource, sink TransitionSink) *Manager {
	return &Manager{
		dispatcher:  dispatcher,
		overrides:   overrides,
		sink:        sink,
		records:     make(map[string]*record),
		subscribers: make(map[int]chan StateChange),
	}
}

// Create allocates a new session record for a worktree, bound to the
// resolved preset. Initial state is idle. It does not spawn the underlying
// process; the caller wires the process's output events to OnOutput.
func (m *Manager) Create(worktree, branch, baseBranch string, res preset.Resolution) (Record, error) {
	var ov *detector.RawPatterns
	if m.overrides != nil {
		ov = m.overrides.DetectionOverrides(res.Strategy)
	}
	det, err := detector.New(res.Strategy, ov)
	if err != nil {
		return Record{}, fmt.Errorf("create session: %w", err)
	}

	now := time.Now()
	rec := &record{
		data: Record{
			ID:             uuid.NewString(),
			Worktree:       worktree,
			Branch:         branch,
			BaseBranch:     baseBranch,
			PresetID:       res.PresetID,
			Command:        res.Command,
			Args:           append([]string(nil), res.Args...),
			Strategy:       res.Strategy,
			State:          detector.StateIdle,
			LastTransition: now,
			CreatedAt:      now,
		},
		det: det,
	}

	m.mu.Lock()
	m.records[rec.data.ID] = rec
	m.mu.Unlock()

	sessionLog.Info("session_created",
		slog.String("session", rec.data.ID),
		slog.String("worktree", worktree),
		slog.String("branch", branch),
		slog.String("strategy", string(res.Strategy)))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshotLocked(), nil
}

// OnOutput feeds a buffer snapshot for a session. Unknown ids are a no-op:
// the underlying process may emit trailing output after teardown began.
// For a known session it runs detection, and on a state difference updates
// the record, dispatches the matching hook, records the transition, and
// notifies subscribers - exactly once per transition.
func (m *Manager) OnOutput(sessionID string, lines []string) {
	m.mu.RLock()
	rec, ok := m.records[sessionID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.removed {
		return
	}

	newState := rec.det.Detect(lines)
	if newState == rec.data.State {
		return
	}

	oldState := rec.data.State
	now := time.Now()
	rec.data.State = newState
	rec.data.LastTransition = now

	change := StateChange{
		SessionID: rec.data.ID,
		Worktree:  rec.data.Worktree,
		Branch:    rec.data.Branch,
		OldState:  oldState,
		NewState:  newState,
		At:        now,
	}

	sessionLog.Debug("session_transition",
		slog.String("session", rec.data.ID),
		slog.String("old", string(oldState)),
		slog.String("new", string(newState)))

	m.dispatcher.StatusTransition(rec.data.ID, rec.data.Worktree, rec.data.Branch, oldState, newState)

	if m.sink != nil {
		if err := m.sink.RecordTransition(change); err != nil {
			sessionLog.Warn("transition_record_failed",
				slog.String("session", rec.data.ID),
				slog.String("error", err.Error()))
		}
	}

	m.notify(change)
}

// Remove deregisters a session. Subsequent output events for the id are
// ignored. Idempotent. In-flight hook processes are not killed.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	rec, ok := m.records[sessionID]
	delete(m.records, sessionID)
	m.mu.Unlock()
	if !ok {
		return
	}

	// Waits out an in-flight OnOutput for this session so no dispatch can
	// happen after Remove returns.
	rec.mu.Lock()
	rec.removed = true
	rec.mu.Unlock()

	sessionLog.Info("session_removed", slog.String("session", sessionID))
}

// Get returns a copy of the record for id.
func (m *Manager) Get(sessionID string) (Record, bool) {
	m.mu.RLock()
	rec, ok := m.records[sessionID]
	m.mu.RUnlock()
	if !ok {
		return Record{}, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshotLocked(), true
}

// Sessions returns a copy of all current records.
func (m *Manager) Sessions() []Record {
	m.mu.RLock()
	recs := make([]*record, 0, len(m.records))
	for _, rec := range m.records {
		recs = append(recs, rec)
	}
	m.mu.RUnlock()

	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.snapshotLocked())
		rec.mu.Unlock()
	}
	return out
}

// Subscribe registers a state-change listener (for UI display). The
// returned cancel func releases the subscription. Slow subscribers drop
// notifications rather than stalling dispatch.
func (m *Manager) Subscribe() (<-chan StateChange, func()) {
	m.subMu.Lock()
	id := m.nextSubID
	m.nextSubID++
	ch := make(chan StateChange, 16)
	m.subscribers[id] = ch
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		if sub, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(sub)
		}
		m.subMu.Unlock()
	}
	return ch, cancel
}

func (m *Manager) notify(change StateChange) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- change:
		default:
			// Subscriber lagging; state display catches up on the next change.
		}
	}
}
