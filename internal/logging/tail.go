package logging

import (
	"bytes"
	"os"
	"sync"
)

// defaultTailBytes bounds the retained tail when no size is configured.
const defaultTailBytes = 1 << 20

// LogTail retains the most recent log records in memory so a crash dump
// can show what led up to a failure. It implements io.Writer for the
// handler's JSONL stream: input is split into records on newlines, and
// once the byte budget is exceeded the oldest records are dropped whole,
// so a dump never starts mid-record.
type LogTail struct {
	mu      sync.Mutex
	limit   int
	used    int
	records [][]byte
	partial []byte
}

// NewLogTail creates a tail bounded to limit bytes of retained records.
func NewLogTail(limit int) *LogTail {
	if limit <= 0 {
		limit = defaultTailBytes
	}
	return &LogTail{limit: limit}
}

// Write implements io.Writer. Writes need not align with record
// boundaries; an unterminated trailing fragment is held until its
// newline arrives.
func (t *LogTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rest := p
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			break
		}
		rec := make([]byte, 0, len(t.partial)+i)
		rec = append(rec, t.partial...)
		rec = append(rec, rest[:i]...)
		t.partial = nil
		t.appendLocked(rec)
		rest = rest[i+1:]
	}
	if len(rest) > 0 {
		t.partial = append(t.partial, rest...)
		// A single record larger than the whole budget keeps only its
		// head; enough survives to identify it in a dump.
		if len(t.partial) > t.limit {
			t.partial = t.partial[:t.limit]
		}
	}
	return len(p), nil
}

func (t *LogTail) appendLocked(rec []byte) {
	if len(rec) > t.limit {
		rec = rec[:t.limit]
	}
	t.records = append(t.records, rec)
	t.used += len(rec)
	for t.used > t.limit && len(t.records) > 1 {
		t.used -= len(t.records[0])
		t.records[0] = nil
		t.records = t.records[1:]
	}
}

// Records returns copies of the retained records, oldest first, including
// any unterminated trailing fragment.
func (t *LogTail) Records() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([][]byte, 0, len(t.records)+1)
	for _, rec := range t.records {
		out = append(out, append([]byte(nil), rec...))
	}
	if len(t.partial) > 0 {
		out = append(out, append([]byte(nil), t.partial...))
	}
	return out
}

// DumpToFile writes the retained records to path, one per line, oldest
// first.
func (t *LogTail) DumpToFile(path string) error {
	var buf bytes.Buffer
	for _, rec := range t.Records() {
		buf.Write(rec)
		buf.WriteByte('\n')
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
