package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/worktree-tools/ccmanager/internal/git"
	"github.com/worktree-tools/ccmanager/internal/hooks"
	"github.com/worktree-tools/ccmanager/internal/logging"
)

// handleWorktree manages git worktrees (add, list, rm)
func handleWorktree(args []string) {
	if len(args) == 0 {
		printWorktreeUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "add":
		handleWorktreeAdd(args[1:])
	case "list", "ls":
		handleWorktreeList(args[1:])
	case "rm", "remove":
		handleWorktreeRemove(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown worktree command: %s\n\n", args[0])
		printWorktreeUsage()
		os.Exit(1)
	}
}

func printWorktreeUsage() {
	fmt.Println("Usage: ccmanager worktree <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  add <branch> [options]    Create a worktree for a branch")
	fmt.Println("  list                      List worktrees of the current repo")
	fmt.Println("  rm <path>                 Remove a worktree")
}

// handleWorktreeAdd creates a worktree and fires the post-creation hook.
func handleWorktreeAdd(args []string) {
	fs := flag.NewFlagSet("worktree add", flag.ExitOnError)
	base := fs.String("base", "", "Base branch for a new branch (defaults to the repo's default branch)")
	baseShort := fs.String("b", "", "Base branch (short)")
	pathFlag := fs.String("path", "", "Worktree directory (defaults to a sibling of the repo)")
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Println("Usage: ccmanager worktree add <branch> [options]")
		fmt.Println()
		fmt.Println("Create a git worktree for a branch. Missing branches are created")
		fmt.Println("from the base branch. Fires the configured post-creation hook.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  ccmanager worktree add feature/login")
		fmt.Println("  ccmanager worktree add fix/bug-123 -b develop")
		fmt.Println("  ccmanager worktree add feature/x --path /tmp/feature-x")
	}

	args = normalizeArgs(fs, args)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)

	branch := trimQuotes(fs.Arg(0))
	if branch == "" {
		out.Error("branch name is required", ErrCodeInvalidOperation)
		if !*jsonOutput {
			fs.Usage()
		}
		os.Exit(1)
	}
	if err := git.ValidateBranchName(branch); err != nil {
		out.Error(fmt.Sprintf("invalid branch name: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		out.Error(fmt.Sprintf("failed to get current directory: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}
	if !git.IsRepo(cwd) {
		out.Error(fmt.Sprintf("%s is not a git repository", cwd), ErrCodeInvalidOperation)
		os.Exit(1)
	}
	repoRoot, err := git.RepoRoot(cwd)
	if err != nil {
		out.Error(fmt.Sprintf("failed to get repo root: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	baseBranch := firstNonEmpty(*base, *baseShort)
	if baseBranch == "" {
		baseBranch, err = git.DefaultBranch(repoRoot)
		if err != nil {
			out.Error(fmt.Sprintf("failed to determine default branch: %v", err), ErrCodeInvalidOperation)
			os.Exit(1)
		}
	}

	wtPath := *pathFlag
	if wtPath == "" {
		wtPath = git.WorktreePath(repoRoot, branch)
	} else {
		wtPath, err = filepath.Abs(wtPath)
		if err != nil {
			out.Error(fmt.Sprintf("failed to resolve path: %v", err), ErrCodeInvalidOperation)
			os.Exit(1)
		}
	}
	if _, err := os.Stat(wtPath); err == nil {
		out.Error(fmt.Sprintf("worktree already exists at %s", wtPath), ErrCodeAlreadyExists)
		os.Exit(1)
	}

	if err := git.CreateWorktree(repoRoot, wtPath, branch, baseBranch); err != nil {
		out.Error(fmt.Sprintf("failed to create worktree: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	// Fire the post-creation hook (setup scripts, dependency installs).
	// The hook runs in the new worktree and never blocks or fails the add.
	store := openStore(out)
	initLogging(store, false)
	defer logging.Shutdown()
	hooks.NewDispatcher(store, nil).WorktreeCreated(wtPath, branch, baseBranch, repoRoot)

	out.Success(fmt.Sprintf("Created worktree: %s", FormatPath(wtPath)), map[string]interface{}{
		"success":     true,
		"path":        wtPath,
		"branch":      branch,
		"base_branch": baseBranch,
		"repo_root":   repoRoot,
	})
	if !*jsonOutput {
		fmt.Printf("  Branch:  %s (base: %s)\n", branch, baseBranch)
		fmt.Printf("  Next:    ccmanager run %s\n", FormatPath(wtPath))
	}
}

func handleWorktreeList(args []string) {
	fs := flag.NewFlagSet("worktree list", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)

	cwd, err := os.Getwd()
	if err != nil {
		out.Error(fmt.Sprintf("failed to get current directory: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}
	root, err := git.RepoRoot(cwd)
	if err != nil {
		out.Error(fmt.Sprintf("not a git repository: %s", cwd), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	worktrees, err := git.ListWorktrees(root)
	if err != nil {
		out.Error(fmt.Sprintf("failed to list worktrees: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	if *jsonOutput {
		var list []map[string]interface{}
		for _, wt := range worktrees {
			list = append(list, map[string]interface{}{
				"path":   wt.Path,
				"branch": wt.Branch,
				"commit": wt.Commit,
			})
		}
		out.Print("", map[string]interface{}{
			"success":   true,
			"worktrees": list,
			"total":     len(list),
		})
		return
	}

	fmt.Printf("%-50s %s\n", "PATH", "BRANCH")
	for _, wt := range worktrees {
		fmt.Printf("%-50s %s\n", FormatPath(wt.Path), wt.Branch)
	}
	fmt.Printf("\nTotal: %d worktrees\n", len(worktrees))
}

func handleWorktreeRemove(args []string) {
	fs := flag.NewFlagSet("worktree rm", flag.ExitOnError)
	force := fs.Bool("force", false, "Remove even with uncommitted changes")
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Println("Usage: ccmanager worktree rm <path> [options]")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	args = normalizeArgs(fs, args)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput, false)

	wtPath := trimQuotes(fs.Arg(0))
	if wtPath == "" {
		out.Error("worktree path is required", ErrCodeInvalidOperation)
		os.Exit(1)
	}
	wtPath, err := filepath.Abs(wtPath)
	if err != nil {
		out.Error(fmt.Sprintf("failed to resolve path: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		out.Error(fmt.Sprintf("failed to get current directory: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}
	root, err := git.RepoRoot(cwd)
	if err != nil {
		out.Error(fmt.Sprintf("not a git repository: %s", cwd), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	if err := git.RemoveWorktree(root, wtPath, *force); err != nil {
		out.Error(fmt.Sprintf("failed to remove worktree: %v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	out.Success(fmt.Sprintf("Removed worktree: %s", FormatPath(wtPath)), map[string]interface{}{
		"success": true,
		"path":    wtPath,
		"removed": true,
	})
}
