package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/worktree-tools/ccmanager/internal/config"
	"github.com/worktree-tools/ccmanager/internal/git"
	"github.com/worktree-tools/ccmanager/internal/hooks"
	"github.com/worktree-tools/ccmanager/internal/logging"
	"github.com/worktree-tools/ccmanager/internal/preset"
	"github.com/worktree-tools/ccmanager/internal/session"
	"github.com/worktree-tools/ccmanager/internal/statedb"
	"github.com/worktree-tools/ccmanager/internal/terminal"
)

// handleRun launches a monitored session in a worktree and attaches to it.
func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	presetFlag := fs.String("preset", "", "Preset to launch (name or id, defaults to the default preset)")
	presetShort := fs.String("P", "", "Preset to launch (short)")
	resume := fs.Bool("resume", false, "Launch with the preset's fallback arguments (e.g. --resume)")
	debug := fs.Bool("debug", false, "Enable debug logging to the config directory")

	fs.Usage = func() {
		fmt.Println("Usage: ccmanager run [path] [options]")
		fmt.Println()
		fmt.Println("Launch the configured assistant in a worktree, monitor its state")
		fmt.Println("and fire status hooks on transitions. Ctrl+Q ends the session.")
		fmt.Println()
		fmt.Println("Arguments:")
		fmt.Println("  [path]    Worktree directory (defaults to current directory)")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  ccmanager run                        # Default preset in current directory")
		fmt.Println("  ccmanager run ~/work/feature-x")
		fmt.Println("  ccmanager run -P \"Claude resume\" .")
		fmt.Println("  ccmanager run --resume .             # Use fallback args")
	}

	args = normalizeArgs(fs, args)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(false, false)

	dir := trimQuotes(fs.Arg(0))
	if dir == "" || dir == "." {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			out.Error(fmt.Sprintf("failed to get current directory: %v", err), ErrCodeInvalidOperation)
			os.Exit(1)
		}
	} else {
		var err error
		dir, err = filepath.Abs(dir)
		if err != nil {
			out.Error(fmt.Sprintf("failed to resolve path: %v", err), ErrCodeInvalidOperation)
			os.Exit(1)
		}
	}
	info, err := os.Stat(dir)
	if err != nil {
		out.Error(fmt.Sprintf("path does not exist: %s", dir), ErrCodeNotFound)
		os.Exit(1)
	}
	if !info.IsDir() {
		out.Error(fmt.Sprintf("path is not a directory: %s", dir), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	store := openStore(out)
	initLogging(store, *debug)
	defer logging.Shutdown()

	// Pick up config edits while the session is running
	watcher, err := config.NewWatcher(store, func() {
		logging.ForComponent(logging.CompConfig).Info("config_reloaded")
	})
	if err == nil {
		if err := watcher.Start(); err == nil {
			defer watcher.Stop()
		}
	}

	// Transition history is advisory: a broken database must not block the session
	var sink session.TransitionSink
	if db := openHistoryDB(); db != nil {
		sink = db
		defer db.Close()
	}

	mgr := session.NewManager(hooks.NewDispatcher(store, nil), store, sink)

	presetID := resolvePresetID(out, store, firstNonEmpty(*presetFlag, *presetShort))
	res, err := preset.Resolve(store, presetID, *resume)
	if err != nil {
		out.Error(fmt.Sprintf("failed to resolve preset: %v", err), ErrCodeNotFound)
		os.Exit(1)
	}

	branch, baseBranch := worktreeBranches(dir)

	rec, err := mgr.Create(dir, branch, baseBranch, res)
	if err != nil {
		out.Error(fmt.Sprintf("failed to create session: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}
	defer mgr.Remove(rec.ID)

	runner, err := terminal.Start(rec.ID, rec.Command, rec.Args, dir,
		[]string{"CCMANAGER_SESSION_ID=" + rec.ID}, mgr.OnOutput)
	if err != nil {
		out.Error(fmt.Sprintf("failed to start %s: %v", rec.Command, err), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		runner.Stop()
	}()

	logging.ForComponent(logging.CompSession).Info("run_started",
		slog.String("session", rec.ID),
		slog.String("worktree", dir),
		slog.String("branch", branch),
		slog.String("command", rec.Command))

	var g errgroup.Group
	g.Go(func() error {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return runner.Attach()
		}
		return runner.Wait()
	})
	err = g.Wait()
	runner.Stop()
	if err != nil {
		out.Error(fmt.Sprintf("session ended with error: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}
}

// openHistoryDB opens the transition history database, returning nil on failure.
func openHistoryDB() *statedb.StateDB {
	dir, err := config.Dir()
	if err != nil {
		return nil
	}
	db, err := statedb.Open(filepath.Join(dir, statedb.FileName))
	if err != nil {
		logging.ForComponent(logging.CompDB).Warn("history_db_unavailable",
			slog.String("error", err.Error()))
		return nil
	}
	if err := db.Migrate(); err != nil {
		logging.ForComponent(logging.CompDB).Warn("history_db_migrate_failed",
			slog.String("error", err.Error()))
		db.Close()
		return nil
	}
	return db
}

// resolvePresetID maps a user-supplied identifier (name or id) to a preset id.
// Empty input selects the configured default.
func resolvePresetID(out *CLIOutput, store *config.Store, identifier string) string {
	if identifier == "" {
		_, defaultID := store.Presets()
		return defaultID
	}
	if p := store.Preset(identifier); p != nil {
		return p.ID
	}
	if p := store.PresetByName(identifier); p != nil {
		return p.ID
	}
	out.Error(fmt.Sprintf("preset not found: %s", identifier), ErrCodeNotFound)
	os.Exit(1)
	return "" // unreachable
}

// worktreeBranches returns the checked-out branch and the repo's default
// branch for dir. Both are empty when dir is not inside a git repository;
// monitoring works the same, the hook env vars are just blank.
func worktreeBranches(dir string) (branch, baseBranch string) {
	if !git.IsRepo(dir) {
		return "", ""
	}
	branch, _ = git.CurrentBranch(dir)
	if root, err := git.RepoRoot(dir); err == nil {
		baseBranch, _ = git.DefaultBranch(root)
	}
	return branch, baseBranch
}

// trimQuotes removes surrounding quotes users sometimes paste around
// paths with spaces.
func trimQuotes(s string) string {
	return strings.Trim(s, "'\"")
}
