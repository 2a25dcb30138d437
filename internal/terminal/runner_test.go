//go:build !windows

package terminal

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// collector gathers output events from a runner.
type collector struct {
	mu     sync.Mutex
	events [][]string
}

func (c *collector) onOutput(_ string, lines []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, append([]string(nil), lines...))
}

func (c *collector) lastEvent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh on this system")
	}
}

func TestRunnerEmitsOutputEvents(t *testing.T) {
	requireSh(t)

	c := &collector{}
	r, err := Start("sess-1", "/bin/sh", []string{"-c", "echo hello; echo world"}, t.TempDir(), nil, c.onOutput)
	require.NoError(t, err)
	defer r.Stop()

	require.Eventually(t, func() bool {
		last := c.lastEvent()
		return len(last) > 0 && strings.Contains(strings.Join(last, "\n"), "world")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRunnerFinalSnapshotOnExit(t *testing.T) {
	requireSh(t)

	c := &collector{}
	r, err := Start("sess-2", "/bin/sh", []string{"-c", "printf 'final state'"}, t.TempDir(), nil, c.onOutput)
	require.NoError(t, err)

	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	// The read loop emits a last snapshot after EOF.
	last := c.lastEvent()
	require.Contains(t, strings.Join(last, "\n"), "final state")
	require.NoError(t, r.Wait())
}

func TestRunnerPassesEnv(t *testing.T) {
	requireSh(t)

	c := &collector{}
	r, err := Start("sess-3", "/bin/sh", []string{"-c", "echo marker=$CCMANAGER_TEST_VAR"}, t.TempDir(),
		[]string{"CCMANAGER_TEST_VAR=on"}, c.onOutput)
	require.NoError(t, err)
	defer r.Stop()

	require.Eventually(t, func() bool {
		return strings.Contains(strings.Join(c.lastEvent(), "\n"), "marker=on")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRunnerStartFailure(t *testing.T) {
	_, err := Start("sess-4", "/no/such/binary", nil, t.TempDir(), nil, nil)
	require.Error(t, err)
}

func TestRunnerRecentLinesCapped(t *testing.T) {
	requireSh(t)

	c := &collector{}
	r, err := Start("sess-5", "/bin/sh", []string{"-c", "seq 1 100"}, t.TempDir(), nil, c.onOutput)
	require.NoError(t, err)
	defer r.Stop()

	<-r.Done()

	lines := r.RecentLines(30)
	require.LessOrEqual(t, len(lines), 30)
	require.Contains(t, strings.Join(lines, "\n"), "100")
}
