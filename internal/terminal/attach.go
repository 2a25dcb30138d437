//go:build !windows

package terminal

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// detachKey is Ctrl+Q (ASCII 17): pressed while attached, it returns
// control to the caller. Whether the session keeps running is the
// caller's decision.
const detachKey = 0x11

// Attach connects the calling terminal to the session interactively:
// stdin is forwarded to the process, process output is mirrored to stdout,
// and the PTY tracks the terminal's size. Returns when the user presses
// Ctrl+Q or the process exits; the session itself is left running.
func (r *Runner) Attach() error {
	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return fmt.Errorf("attach: stdin is not a terminal")
	}

	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return fmt.Errorf("attach: set raw mode: %w", err)
	}
	defer func() { _ = term.Restore(stdinFd, oldState) }()

	// Track window size changes while attached.
	sigwinch := make(chan os.Signal, 1)
	signal.Notify(sigwinch, syscall.SIGWINCH)
	winchDone := make(chan struct{})
	defer func() {
		signal.Stop(sigwinch)
		close(winchDone)
	}()
	go func() {
		for {
			select {
			case <-winchDone:
				return
			case <-sigwinch:
				if ws, err := pty.GetsizeFull(os.Stdin); err == nil {
					_ = pty.Setsize(r.ptmx, ws)
				}
			}
		}
	}()
	sigwinch <- syscall.SIGWINCH

	r.setMirror(os.Stdout)
	defer r.setMirror(nil)

	detached := make(chan struct{})
	go func() {
		defer close(detached)
		buf := make([]byte, 256)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			for i := 0; i < n; i++ {
				if buf[i] == detachKey {
					if i > 0 {
						_, _ = r.ptmx.Write(buf[:i])
					}
					return
				}
			}
			if _, err := r.ptmx.Write(buf[:n]); err != nil {
				if err != io.EOF {
					return
				}
			}
		}
	}()

	select {
	case <-detached:
	case <-r.done:
	}
	return nil
}
