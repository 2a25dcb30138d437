package statedb

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/worktree-tools/ccmanager/internal/detector"
	"github.com/worktree-tools/ccmanager/internal/session"
)

func newTestDB(t *testing.T) *StateDB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), FileName)
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func change(id string, old, next detector.State, at time.Time) session.StateChange {
	return session.StateChange{
		SessionID: id,
		Worktree:  "/work/" + id,
		Branch:    "feature/" + id,
		OldState:  old,
		NewState:  next,
		At:        at,
	}
}

func TestRecordAndHistory(t *testing.T) {
	db := newTestDB(t)

	base := time.Now().Add(-time.Minute)
	changes := []session.StateChange{
		change("a", detector.StateIdle, detector.StateBusy, base),
		change("a", detector.StateBusy, detector.StateWaitingInput, base.Add(time.Second)),
		change("b", detector.StateIdle, detector.StateBusy, base.Add(2*time.Second)),
	}
	for _, c := range changes {
		if err := db.RecordTransition(c); err != nil {
			t.Fatalf("RecordTransition: %v", err)
		}
	}

	rows, err := db.History("", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	// Newest first
	if rows[0].SessionID != "b" {
		t.Errorf("expected newest row for session b, got %s", rows[0].SessionID)
	}
	if rows[0].OldState != "idle" || rows[0].NewState != "busy" {
		t.Errorf("unexpected states: %s -> %s", rows[0].OldState, rows[0].NewState)
	}
	if rows[0].Worktree != "/work/b" || rows[0].Branch != "feature/b" {
		t.Errorf("unexpected worktree/branch: %s %s", rows[0].Worktree, rows[0].Branch)
	}
	if !rows[0].At.Equal(base.Add(2 * time.Second)) {
		t.Errorf("timestamp not preserved: %v", rows[0].At)
	}
}

func TestHistoryFilterAndLimit(t *testing.T) {
	db := newTestDB(t)

	base := time.Now()
	for i := 0; i < 5; i++ {
		c := change("a", detector.StateIdle, detector.StateBusy, base.Add(time.Duration(i)*time.Second))
		if err := db.RecordTransition(c); err != nil {
			t.Fatalf("RecordTransition: %v", err)
		}
	}
	if err := db.RecordTransition(change("b", detector.StateIdle, detector.StateBusy, base)); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}

	rows, err := db.History("a", 3)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.SessionID != "a" {
			t.Errorf("filter leaked session %s", r.SessionID)
		}
	}
	// Limit keeps the newest entries
	if !rows[0].At.Equal(base.Add(4 * time.Second)) {
		t.Errorf("expected newest entry first, got %v", rows[0].At)
	}
}

func TestHistoryEmpty(t *testing.T) {
	db := newTestDB(t)

	rows, err := db.History("", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestPruneBefore(t *testing.T) {
	db := newTestDB(t)

	base := time.Now()
	old := change("a", detector.StateIdle, detector.StateBusy, base.Add(-time.Hour))
	fresh := change("a", detector.StateBusy, detector.StateIdle, base)
	if err := db.RecordTransition(old); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}
	if err := db.RecordTransition(fresh); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}

	removed, err := db.PruneBefore(base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 row pruned, got %d", removed)
	}

	rows, err := db.History("", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(rows) != 1 || rows[0].NewState != "idle" {
		t.Errorf("expected only the fresh row to survive, got %+v", rows)
	}
}

func TestReopenPersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), FileName)

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db1.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := db1.RecordTransition(change("a", detector.StateIdle, detector.StateBusy, time.Now())); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}
	db1.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	defer db2.Close()
	if err := db2.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	rows, err := db2.History("", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after reopen, got %d", len(rows))
	}
}

func TestConcurrentWrites(t *testing.T) {
	db := newTestDB(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c := change("a", detector.StateIdle, detector.StateBusy, time.Now())
			if err := db.RecordTransition(c); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent RecordTransition: %v", err)
	}

	rows, err := db.History("a", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(rows) != 20 {
		t.Errorf("expected 20 rows, got %d", len(rows))
	}
}

func TestMeta(t *testing.T) {
	db := newTestDB(t)

	v, err := db.GetMeta("schema_version")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if v != "1" {
		t.Errorf("expected schema_version 1, got %q", v)
	}

	missing, err := db.GetMeta("nonexistent")
	if err != nil {
		t.Fatalf("GetMeta missing: %v", err)
	}
	if missing != "" {
		t.Errorf("expected empty value for missing key, got %q", missing)
	}
}
