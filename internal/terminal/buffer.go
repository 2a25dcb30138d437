// Package terminal spawns assistant processes under a pseudo-terminal and
// maintains a bounded tail of their rendered output for state detection.
// It is deliberately not a terminal emulator: the tail is a line-based
// approximation of recent screen content, which is all detection reads.
package terminal

import (
	"strings"
	"sync"

	"github.com/worktree-tools/ccmanager/internal/detector"
)

// DefaultMaxLines bounds how much rendered history a buffer retains.
// Detection only ever reads the last detector.WindowLines of it.
const DefaultMaxLines = 200

// Buffer accumulates PTY output and exposes the most recent rendered
// lines as plain text. Implements io.Writer; safe for concurrent use.
type Buffer struct {
	mu    sync.Mutex
	lines []string
	cur   []byte
	max   int
}

// NewBuffer creates a buffer retaining at most maxLines finished lines.
func NewBuffer(maxLines int) *Buffer {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Buffer{max: maxLines}
}

// Write ingests raw PTY bytes. Newlines finalize the current line; a bare
// carriage return rewinds it, which collapses spinner redraws into the
// final rendering of the line.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range p {
		switch c {
		case '\n':
			b.finishLine()
		case '\r':
			b.cur = b.cur[:0]
		case '\b':
			if len(b.cur) > 0 {
				b.cur = b.cur[:len(b.cur)-1]
			}
		default:
			b.cur = append(b.cur, c)
		}
	}
	return len(p), nil
}

// finishLine strips escape codes, trims trailing space and appends the
// finished line. Caller must hold b.mu.
func (b *Buffer) finishLine() {
	line := strings.TrimRight(detector.StripANSI(string(b.cur)), " \t")
	b.cur = b.cur[:0]

	b.lines = append(b.lines, line)
	if len(b.lines) >= b.max*2 {
		// Compact in chunks so appends stay amortized O(1).
		b.lines = append(b.lines[:0], b.lines[len(b.lines)-b.max:]...)
	}
}

// RecentLines returns up to max trailing lines, newest last. The current
// unfinished line is included: prompts usually sit on it.
func (b *Buffer) RecentLines(max int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, max)
	start := len(b.lines) - max
	if start < 0 {
		start = 0
	}
	out = append(out, b.lines[start:]...)

	if cur := strings.TrimRight(detector.StripANSI(string(b.cur)), " \t"); cur != "" {
		out = append(out, cur)
		if len(out) > max {
			out = out[len(out)-max:]
		}
	}
	return out
}
