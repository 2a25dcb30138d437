package terminal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/worktree-tools/ccmanager/internal/detector"
	"github.com/worktree-tools/ccmanager/internal/logging"
)

var termLog = logging.ForComponent(logging.CompTerminal)

// notifyInterval rate-limits output events per session. Assistant TUIs
// redraw dozens of times a second; classification on every write is
// wasted work.
const notifyInterval = 50 * time.Millisecond

// trailingFlush guarantees the final quiet state after a burst is still
// classified even though the limiter swallowed the burst's tail.
const trailingFlush = 120 * time.Millisecond

// OutputFunc receives coalesced output events with a buffer snapshot of
// the most recent rendered lines.
type OutputFunc func(sessionID string, lines []string)

// Runner owns one assistant process under a PTY: it feeds the process's
// output into a tail buffer and emits coalesced output events. The zero
// value is not usable; use Start.
type Runner struct {
	sessionID string
	cmd       *exec.Cmd
	ptmx      *os.File
	buf       *Buffer
	onOutput  OutputFunc

	limiter *rate.Limiter
	sf      singleflight.Group

	mu         sync.Mutex
	mirror     io.Writer // non-nil while attached
	flushTimer *time.Timer

	done     chan struct{}
	waitOnce sync.Once
	waitErr  error
}

// Start launches command under a new PTY in dir with extraEnv appended to
// the inherited environment. Output events are delivered to onOutput from
// background goroutines until the process exits.
func Start(sessionID, command string, args []string, dir string, extraEnv []string, onOutput OutputFunc) (*Runner, error) {
	cmd := exec.Command(command, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), extraEnv...)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start %s under pty: %w", command, err)
	}
	// A sane default size; Attach resizes to the real terminal.
	_ = pty.Setsize(ptmx, &pty.Winsize{Rows: 40, Cols: 120})

	r := &Runner{
		sessionID: sessionID,
		cmd:       cmd,
		ptmx:      ptmx,
		buf:       NewBuffer(DefaultMaxLines),
		onOutput:  onOutput,
		limiter:   rate.NewLimiter(rate.Every(notifyInterval), 1),
		done:      make(chan struct{}),
	}

	go r.readLoop()

	termLog.Info("process_started",
		slog.String("session", sessionID),
		slog.String("command", command),
		slog.Int("pid", cmd.Process.Pid))
	return r, nil
}

// SessionID returns the session this runner is bound to.
func (r *Runner) SessionID() string {
	return r.sessionID
}

// RecentLines exposes the tail buffer (the buffer-access interface other
// components consume). Concurrent callers share one snapshot via
// singleflight: the monitor and an attached UI frequently ask at once.
func (r *Runner) RecentLines(maxLines int) []string {
	v, _, _ := r.sf.Do("snapshot", func() (interface{}, error) {
		return r.buf.RecentLines(maxLines), nil
	})
	return v.([]string)
}

// Done is closed when the process has exited and the read loop drained.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until process exit and returns its exit error, if any.
func (r *Runner) Wait() error {
	<-r.done
	r.waitOnce.Do(func() { r.waitErr = r.cmd.Wait() })
	return r.waitErr
}

// Stop terminates the process. Closing the PTY delivers a hangup; the
// process gets a moment to exit cleanly before being killed.
func (r *Runner) Stop() {
	_ = r.ptmx.Close()

	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		if r.cmd.Process != nil {
			_ = r.cmd.Process.Kill()
		}
		<-r.done
	}
	_ = r.Wait()
}

func (r *Runner) readLoop() {
	defer close(r.done)

	chunk := make([]byte, 4096)
	for {
		n, err := r.ptmx.Read(chunk)
		if n > 0 {
			_, _ = r.buf.Write(chunk[:n])
			r.mirrorWrite(chunk[:n])
			r.scheduleNotify()
		}
		if err != nil {
			// EOF / EIO mean the process side of the PTY closed.
			break
		}
	}

	r.cancelFlushTimer()
	// Final snapshot so the last rendered state is always classified.
	r.notify()

	termLog.Debug("process_output_closed", slog.String("session", r.sessionID))
}

// scheduleNotify emits an output event, rate-limited with a trailing
// flush: bursts collapse to one leading and one trailing event.
func (r *Runner) scheduleNotify() {
	if r.limiter.Allow() {
		r.cancelFlushTimer()
		r.notify()
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flushTimer == nil {
		r.flushTimer = time.AfterFunc(trailingFlush, func() {
			r.mu.Lock()
			r.flushTimer = nil
			r.mu.Unlock()
			r.notify()
		})
	}
}

func (r *Runner) cancelFlushTimer() {
	r.mu.Lock()
	if r.flushTimer != nil {
		r.flushTimer.Stop()
		r.flushTimer = nil
	}
	r.mu.Unlock()
}

func (r *Runner) notify() {
	if r.onOutput == nil {
		return
	}
	r.onOutput(r.sessionID, r.RecentLines(detector.WindowLines))
}

func (r *Runner) mirrorWrite(p []byte) {
	r.mu.Lock()
	w := r.mirror
	r.mu.Unlock()
	if w != nil {
		_, _ = w.Write(p)
	}
}

func (r *Runner) setMirror(w io.Writer) {
	r.mu.Lock()
	r.mirror = w
	r.mu.Unlock()
}
