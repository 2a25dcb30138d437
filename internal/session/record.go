package session

import (
	"sync"
	"time"

	"github.com/worktree-tools/ccmanager/internal/detector"
)

// Record is the tracked state of one session. The Manager owns all
// records exclusively; callers only ever see copies.
type Record struct {
	ID         string
	Worktree   string
	Branch     string
	BaseBranch string
	PresetID   string
	Command    string
	Args       []string
	Strategy   detector.Strategy

	State          detector.State
	LastTransition time.Time
	CreatedAt      time.Time
}

// StateChange describes one detected transition, delivered to subscribers
// and the transition sink.
type StateChange struct {
	SessionID string
	Worktree  string
	Branch    string
	OldState  detector.State
	NewState  detector.State
	At        time.Time
}

// record is the Manager's internal, mutable session entry. Its mutex
// serializes the detect-compare-update-dispatch step for one session;
// records of different sessions never contend.
type record struct {
	mu      sync.Mutex
	data    Record
	det     detector.Detector
	removed bool
}

// snapshot returns a copy safe to hand out. Caller must hold r.mu.
func (r *record) snapshotLocked() Record {
	out := r.data
	out.Args = append([]string(nil), r.data.Args...)
	return out
}
