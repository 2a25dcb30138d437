package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/worktree-tools/ccmanager/internal/config"
	"github.com/worktree-tools/ccmanager/internal/logging"
)

const Version = "0.3.0"

func main() {
	args := os.Args[1:]

	if len(args) == 0 {
		printHelp()
		return
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Printf("ccmanager v%s\n", Version)
	case "help", "--help", "-h":
		printHelp()
	case "run":
		handleRun(args[1:])
	case "preset":
		handlePreset(args[1:])
	case "history":
		handleHistory(args[1:])
	case "worktree", "wt":
		handleWorktree(args[1:])
	case "hooks":
		handleHooks(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", args[0])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("Usage: ccmanager <command> [options]")
	fmt.Println()
	fmt.Println("Monitor coding-assistant sessions across git worktrees and fire")
	fmt.Println("hooks on state transitions.")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run [path]          Launch a monitored session in a worktree")
	fmt.Println("  preset              Manage command presets (list, add, rm, default)")
	fmt.Println("  history             Show recorded state transitions")
	fmt.Println("  worktree, wt        Manage git worktrees (add)")
	fmt.Println("  hooks               Inspect and test configured hooks")
	fmt.Println("  version             Print version")
	fmt.Println()
	fmt.Println("Run 'ccmanager <command> --help' for command details.")
}

// openStore opens the config store, creating the config directory and a
// default config on first use.
func openStore(out *CLIOutput) *config.Store {
	dir, err := config.Dir()
	if err != nil {
		out.Error(fmt.Sprintf("failed to resolve config directory: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}
	store, err := config.Open(filepath.Join(dir, config.FileName))
	if err != nil {
		out.Error(fmt.Sprintf("failed to load config: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}
	return store
}

// initLogging sets up structured logging (JSONL with rotation).
// When debug mode is off, logs are discarded so they never interfere
// with the mirrored session terminal.
func initLogging(store *config.Store, debug bool) {
	if !debug {
		debug = os.Getenv("CCMANAGER_DEBUG") != ""
	}

	logCfg := logging.Config{
		Debug:      debug,
		Level:      "info",
		Format:     "json",
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 10,
		Compress:   true,
	}
	if debug {
		logCfg.Level = "debug"
		if dir, err := config.Dir(); err == nil {
			logCfg.LogDir = dir
		}
	}

	ls := store.LogSettings()
	if ls.Level != "" {
		logCfg.Level = ls.Level
	}
	if ls.Format != "" {
		logCfg.Format = ls.Format
	}

	logging.Init(logCfg)

	// SIGUSR1 dumps the in-memory log tail for post-mortem debugging
	if debug {
		usr1Chan := make(chan os.Signal, 1)
		signal.Notify(usr1Chan, syscall.SIGUSR1)
		go func() {
			for range usr1Chan {
				dir, err := config.Dir()
				if err != nil {
					continue
				}
				dumpPath := filepath.Join(dir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
				_ = logging.DumpTail(dumpPath)
			}
		}()
	}
}
