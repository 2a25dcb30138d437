package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/worktree-tools/ccmanager/internal/config"
	"github.com/worktree-tools/ccmanager/internal/statedb"
)

// handleHistory prints recorded state transitions, newest first.
func handleHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	sessionID := fs.String("session", "", "Filter by session id")
	limit := fs.Int("limit", 50, "Max transitions to show (0 = all)")
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Println("Usage: ccmanager history [options]")
		fmt.Println()
		fmt.Println("Show recorded state transitions, newest first.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  ccmanager history")
		fmt.Println("  ccmanager history --limit 10")
		fmt.Println("  ccmanager history --session abc123 --json")
	}

	args = normalizeArgs(fs, args)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)

	dir, err := config.Dir()
	if err != nil {
		out.Error(fmt.Sprintf("failed to resolve config directory: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}
	db, err := statedb.Open(filepath.Join(dir, statedb.FileName))
	if err != nil {
		out.Error(fmt.Sprintf("failed to open history database: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		out.Error(fmt.Sprintf("failed to migrate history database: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	rows, err := db.History(*sessionID, *limit)
	if err != nil {
		out.Error(fmt.Sprintf("failed to read history: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	if *jsonOutput {
		type transitionJSON struct {
			SessionID string `json:"session_id"`
			Worktree  string `json:"worktree"`
			Branch    string `json:"branch,omitempty"`
			OldState  string `json:"old_state"`
			NewState  string `json:"new_state"`
			At        string `json:"at"`
		}
		list := make([]transitionJSON, len(rows))
		for i, r := range rows {
			list[i] = transitionJSON{
				SessionID: r.SessionID,
				Worktree:  r.Worktree,
				Branch:    r.Branch,
				OldState:  r.OldState,
				NewState:  r.NewState,
				At:        r.At.Format("2006-01-02T15:04:05Z07:00"),
			}
		}
		out.Print("", map[string]interface{}{
			"success":     true,
			"transitions": list,
			"total":       len(list),
		})
		return
	}

	if len(rows) == 0 {
		fmt.Println("No transitions recorded.")
		return
	}

	fmt.Printf("%-20s %-12s %-24s %s\n", "TIME", "SESSION", "TRANSITION", "WORKTREE")
	for _, r := range rows {
		fmt.Printf("%-20s %-12s %-24s %s\n",
			r.At.Format("2006-01-02 15:04:05"),
			TruncateID(r.SessionID),
			fmt.Sprintf("%s → %s", r.OldState, r.NewState),
			FormatPath(r.Worktree))
	}
	fmt.Printf("\nTotal: %d transitions\n", len(rows))
}
