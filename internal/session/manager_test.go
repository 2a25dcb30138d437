package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worktree-tools/ccmanager/internal/config"
	"github.com/worktree-tools/ccmanager/internal/detector"
	"github.com/worktree-tools/ccmanager/internal/hooks"
	"github.com/worktree-tools/ccmanager/internal/preset"
)

var (
	busyWindow    = []string{"Processing...", "Press ESC to interrupt"}
	waitingWindow = []string{"Do you want to continue? (y/n)", "> "}
	idleWindow    = []string{"Command completed successfully", "> "}
)

// recordingDispatcher captures StatusTransition calls.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls []transitionCall
}

type transitionCall struct {
	sessionID string
	worktree  string
	branch    string
	oldState  detector.State
	newState  detector.State
}

func (r *recordingDispatcher) StatusTransition(sessionID, worktree, branch string, oldState, newState detector.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, transitionCall{sessionID, worktree, branch, oldState, newState})
}

func (r *recordingDispatcher) transitions() []transitionCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transitionCall(nil), r.calls...)
}

// recordingSink captures RecordTransition calls.
type recordingSink struct {
	mu      sync.Mutex
	changes []StateChange
	err     error
}

func (r *recordingSink) RecordTransition(change StateChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.changes = append(r.changes, change)
	return nil
}

func claudeResolution() preset.Resolution {
	return preset.Resolution{
		PresetID: "p1",
		Command:  "claude",
		Strategy: detector.StrategyClaude,
	}
}

func newTestManager(t *testing.T) (*Manager, *recordingDispatcher, Record) {
	t.Helper()
	disp := &recordingDispatcher{}
	m := NewManager(disp, nil, nil)
	rec, err := m.Create("/work/feature", "feature", "main", claudeResolution())
	require.NoError(t, err)
	return m, disp, rec
}

func TestCreateInitialState(t *testing.T) {
	m, _, rec := newTestManager(t)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, detector.StateIdle, rec.State)
	assert.Equal(t, "/work/feature", rec.Worktree)
	assert.Equal(t, "feature", rec.Branch)
	assert.Equal(t, "main", rec.BaseBranch)

	got, ok := m.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, rec.ID, got.ID)
}

func TestCreateUnknownStrategyFails(t *testing.T) {
	m := NewManager(&recordingDispatcher{}, nil, nil)
	_, err := m.Create("/w", "b", "", preset.Resolution{Strategy: "cursor"})
	assert.Error(t, err)
}

func TestOnOutputDispatchesOncePerTransition(t *testing.T) {
	m, disp, rec := newTestManager(t)

	// idle -> busy
	m.OnOutput(rec.ID, busyWindow)
	// Repeated identical classification: no re-dispatch.
	m.OnOutput(rec.ID, busyWindow)
	m.OnOutput(rec.ID, busyWindow)
	// busy -> waiting_input
	m.OnOutput(rec.ID, waitingWindow)

	calls := disp.transitions()
	require.Len(t, calls, 2)
	assert.Equal(t, detector.StateIdle, calls[0].oldState)
	assert.Equal(t, detector.StateBusy, calls[0].newState)
	assert.Equal(t, detector.StateBusy, calls[1].oldState)
	assert.Equal(t, detector.StateWaitingInput, calls[1].newState)
	assert.Equal(t, "feature", calls[1].branch)

	got, _ := m.Get(rec.ID)
	assert.Equal(t, detector.StateWaitingInput, got.State)
}

func TestOnOutputNoTransitionOnSameState(t *testing.T) {
	m, disp, rec := newTestManager(t)

	// Already idle; idle output is not a transition.
	m.OnOutput(rec.ID, idleWindow)
	assert.Empty(t, disp.transitions())

	before, _ := m.Get(rec.ID)
	m.OnOutput(rec.ID, idleWindow)
	after, _ := m.Get(rec.ID)
	assert.Equal(t, before.LastTransition, after.LastTransition)
}

func TestOnOutputUnknownSessionIsNoOp(t *testing.T) {
	m, disp, _ := newTestManager(t)
	m.OnOutput("no-such-session", busyWindow)
	assert.Empty(t, disp.transitions())
}

func TestRemoveStopsMonitoring(t *testing.T) {
	m, disp, rec := newTestManager(t)

	m.Remove(rec.ID)
	m.Remove(rec.ID) // idempotent

	// Trailing output after teardown is ignored, not an error.
	m.OnOutput(rec.ID, busyWindow)
	assert.Empty(t, disp.transitions())

	_, ok := m.Get(rec.ID)
	assert.False(t, ok)
}

func TestTransitionTimestampAdvances(t *testing.T) {
	m, _, rec := newTestManager(t)

	created := rec.LastTransition
	time.Sleep(5 * time.Millisecond)
	m.OnOutput(rec.ID, busyWindow)

	got, _ := m.Get(rec.ID)
	assert.True(t, got.LastTransition.After(created))
}

// Full path through the real hook dispatcher: idle -> busy -> waiting_input
// with the waiting_input hook enabled and the busy hook disabled launches
// exactly one hook process, for the busy -> waiting_input edge.
func TestStatusHookFiredExactlyOnce(t *testing.T) {
	spawner := &countingSpawner{}
	disp := hooks.NewDispatcher(&staticHooks{
		status: map[string]*config.HookCommand{
			"waiting_input": {Command: "notify-send waiting", Enabled: true},
			"busy":          {Command: "true", Enabled: false},
		},
	}, spawner)

	m := NewManager(disp, nil, nil)
	rec, err := m.Create("/work/feature", "feature", "main", claudeResolution())
	require.NoError(t, err)

	m.OnOutput(rec.ID, busyWindow)
	m.OnOutput(rec.ID, waitingWindow)

	calls := spawner.snapshot()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].env, "CCMANAGER_OLD_STATE=busy")
	assert.Contains(t, calls[0].env, "CCMANAGER_NEW_STATE=waiting_input")
	assert.Contains(t, calls[0].env, "CCMANAGER_SESSION_ID="+rec.ID)
}

type staticHooks struct {
	status map[string]*config.HookCommand
}

func (s *staticHooks) StatusHooks() map[string]*config.HookCommand { return s.status }
func (s *staticHooks) WorktreeHooks() config.WorktreeHooks         { return config.WorktreeHooks{} }

type countingSpawner struct {
	mu    sync.Mutex
	calls []spawned
}

type spawned struct {
	command string
	env     []string
}

func (c *countingSpawner) Spawn(command, dir string, extraEnv []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, spawned{command: command, env: extraEnv})
	return nil
}

func (c *countingSpawner) snapshot() []spawned {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]spawned(nil), c.calls...)
}

func TestSinkRecordsTransitions(t *testing.T) {
	sink := &recordingSink{}
	m := NewManager(&recordingDispatcher{}, nil, sink)
	rec, err := m.Create("/w", "b", "", claudeResolution())
	require.NoError(t, err)

	m.OnOutput(rec.ID, busyWindow)
	m.OnOutput(rec.ID, idleWindow)

	require.Len(t, sink.changes, 2)
	assert.Equal(t, detector.StateBusy, sink.changes[0].NewState)
	assert.Equal(t, detector.StateIdle, sink.changes[1].NewState)
}

func TestSinkFailureDoesNotStopMonitoring(t *testing.T) {
	sink := &recordingSink{err: errors.New("db locked")}
	disp := &recordingDispatcher{}
	m := NewManager(disp, nil, sink)
	rec, err := m.Create("/w", "b", "", claudeResolution())
	require.NoError(t, err)

	m.OnOutput(rec.ID, busyWindow)
	m.OnOutput(rec.ID, waitingWindow)

	assert.Len(t, disp.transitions(), 2, "sink errors must not suppress dispatch")
}

func TestSubscribeReceivesChanges(t *testing.T) {
	m, _, rec := newTestManager(t)

	ch, cancel := m.Subscribe()
	defer cancel()

	m.OnOutput(rec.ID, busyWindow)

	select {
	case change := <-ch:
		assert.Equal(t, rec.ID, change.SessionID)
		assert.Equal(t, detector.StateBusy, change.NewState)
	case <-time.After(time.Second):
		t.Fatal("no state change delivered")
	}

	cancel()
	cancel() // double-cancel is safe
}

// Events for one session are serialized; the observed dispatch sequence is
// always a chain (each old state equals the previous new state).
func TestConcurrentOutputSameSessionIsSerialized(t *testing.T) {
	m, disp, rec := newTestManager(t)

	windows := [][]string{busyWindow, waitingWindow, idleWindow}
	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.OnOutput(rec.ID, windows[i%len(windows)])
		}(i)
	}
	wg.Wait()

	calls := disp.transitions()
	prev := detector.StateIdle
	for i, call := range calls {
		assert.Equalf(t, prev, call.oldState, "call %d broke the transition chain", i)
		prev = call.newState
	}
}

// Sessions are independent: a slow hook for one session must not block
// transitions on another.
func TestSessionsProceedIndependently(t *testing.T) {
	blocker := make(chan struct{})
	disp := &blockingDispatcher{block: blocker, blockSession: make(chan string, 1)}
	m := NewManager(disp, nil, nil)

	a, err := m.Create("/w/a", "a", "", claudeResolution())
	require.NoError(t, err)
	b, err := m.Create("/w/b", "b", "", claudeResolution())
	require.NoError(t, err)

	disp.blockSession <- a.ID
	go m.OnOutput(a.ID, busyWindow) // blocks inside dispatch

	done := make(chan struct{})
	go func() {
		m.OnOutput(b.ID, busyWindow)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session b blocked behind session a's dispatch")
	}
	close(blocker)

	got, _ := m.Get(b.ID)
	assert.Equal(t, detector.StateBusy, got.State)
}

type blockingDispatcher struct {
	block        chan struct{}
	blockSession chan string
}

func (d *blockingDispatcher) StatusTransition(sessionID, _, _ string, _, _ detector.State) {
	select {
	case id := <-d.blockSession:
		if id == sessionID {
			<-d.block
			return
		}
		d.blockSession <- id
	default:
	}
}

func TestSessionsListing(t *testing.T) {
	m := NewManager(&recordingDispatcher{}, nil, nil)
	for i := 0; i < 3; i++ {
		_, err := m.Create(fmt.Sprintf("/w/%d", i), fmt.Sprintf("b%d", i), "", claudeResolution())
		require.NoError(t, err)
	}
	assert.Len(t, m.Sessions(), 3)
}
