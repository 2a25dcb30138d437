package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/worktree-tools/ccmanager/internal/config"
	"github.com/worktree-tools/ccmanager/internal/detector"
	"github.com/worktree-tools/ccmanager/internal/hooks"
	"github.com/worktree-tools/ccmanager/internal/logging"
)

// handleHooks inspects and tests configured hooks
func handleHooks(args []string) {
	if len(args) == 0 {
		printHooksUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "show", "list", "ls":
		handleHooksShow(args[1:])
	case "test":
		handleHooksTest(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown hooks command: %s\n\n", args[0])
		printHooksUsage()
		os.Exit(1)
	}
}

func printHooksUsage() {
	fmt.Println("Usage: ccmanager hooks <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  show           Show configured hooks")
	fmt.Println("  test <state>   Fire the hook for a state with sample env vars")
	fmt.Println()
	fmt.Println("States: idle, busy, waiting_input, post_creation")
}

func handleHooksShow(args []string) {
	fs := flag.NewFlagSet("hooks show", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)
	store := openStore(out)

	statusHooks := store.StatusHooks()
	worktreeHooks := store.WorktreeHooks()

	if *jsonOutput {
		hookJSON := func(h *config.HookCommand) map[string]interface{} {
			if h == nil {
				return nil
			}
			return map[string]interface{}{
				"command": h.Command,
				"enabled": h.Enabled,
			}
		}
		statuses := make(map[string]interface{})
		for state, h := range statusHooks {
			statuses[state] = hookJSON(h)
		}
		out.Print("", map[string]interface{}{
			"success":       true,
			"status_hooks":  statuses,
			"post_creation": hookJSON(worktreeHooks.PostCreation),
		})
		return
	}

	printHook := func(label string, h *config.HookCommand) {
		if h == nil {
			fmt.Printf("  %-15s (not configured)\n", label)
			return
		}
		state := "enabled"
		if !h.Enabled {
			state = "disabled"
		}
		fmt.Printf("  %-15s [%s] %s\n", label, state, h.Command)
	}

	fmt.Println("Status hooks:")
	for _, state := range []string{
		string(detector.StateIdle),
		string(detector.StateBusy),
		string(detector.StateWaitingInput),
	} {
		printHook(state, statusHooks[state])
	}
	fmt.Println()
	fmt.Println("Worktree hooks:")
	printHook("post_creation", worktreeHooks.PostCreation)
}

// handleHooksTest fires a configured hook with sample environment values so
// users can verify their hook command before relying on it.
func handleHooksTest(args []string) {
	fs := flag.NewFlagSet("hooks test", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Println("Usage: ccmanager hooks test <state>")
		fmt.Println()
		fmt.Println("Fire the configured hook for a state with sample env vars.")
		fmt.Println("States: idle, busy, waiting_input, post_creation")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  ccmanager hooks test waiting_input")
		fmt.Println("  ccmanager hooks test post_creation")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(false, false)

	state := fs.Arg(0)
	if state == "" {
		out.Error("state is required", ErrCodeInvalidOperation)
		fs.Usage()
		os.Exit(1)
	}

	store := openStore(out)
	initLogging(store, false)
	defer logging.Shutdown()

	cwd, err := os.Getwd()
	if err != nil {
		out.Error(fmt.Sprintf("failed to get current directory: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	dispatcher := hooks.NewDispatcher(store, nil)

	switch state {
	case "post_creation":
		h := store.WorktreeHooks().PostCreation
		if h == nil || !h.Enabled {
			out.Error("no enabled post_creation hook configured", ErrCodeNotFound)
			os.Exit(1)
		}
		dispatcher.WorktreeCreated(cwd, "test-branch", "main", cwd)
	case string(detector.StateIdle), string(detector.StateBusy), string(detector.StateWaitingInput):
		h := store.StatusHooks()[state]
		if h == nil || !h.Enabled {
			out.Error(fmt.Sprintf("no enabled hook configured for state: %s", state), ErrCodeNotFound)
			os.Exit(1)
		}
		dispatcher.StatusTransition("test-session", cwd, "test-branch",
			detector.StateIdle, detector.State(state))
	default:
		out.Error(fmt.Sprintf("unknown state: %s", state), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	// Hooks are fire-and-forget; give a short spawn a moment to surface
	// startup errors in the log before the process exits.
	time.Sleep(200 * time.Millisecond)
	out.Success(fmt.Sprintf("Fired %s hook", state), nil)
}
