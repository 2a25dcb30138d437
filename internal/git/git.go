// Package git provides the worktree operations ccmanager needs: enough to
// create a worktree per session and fire the post-creation hook with the
// right branch context.
package git

import (
	"bufio"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Worktree describes one entry from `git worktree list`.
type Worktree struct {
	Path   string
	Branch string
	Commit string
	Bare   bool
}

// IsRepo reports whether dir is inside a git repository.
func IsRepo(dir string) bool {
	return exec.Command("git", "-C", dir, "rev-parse", "--git-dir").Run() == nil
}

// RepoRoot returns the root directory of the repository containing dir.
func RepoRoot(dir string) (string, error) {
	out, err := exec.Command("git", "-C", dir, "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CurrentBranch returns the branch checked out in dir.
func CurrentBranch(dir string) (string, error) {
	out, err := exec.Command("git", "-C", dir, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return "", fmt.Errorf("resolve current branch: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// DefaultBranch returns the repository's default branch, falling back to
// main when origin/HEAD is not set.
func DefaultBranch(repoDir string) (string, error) {
	out, err := exec.Command("git", "-C", repoDir, "symbolic-ref", "refs/remotes/origin/HEAD", "--short").Output()
	if err == nil {
		ref := strings.TrimSpace(string(out))
		if i := strings.LastIndex(ref, "/"); i >= 0 {
			return ref[i+1:], nil
		}
	}
	for _, candidate := range []string{"main", "master"} {
		if BranchExists(repoDir, candidate) {
			return candidate, nil
		}
	}
	return "", errors.New("cannot determine default branch")
}

// BranchExists reports whether a local branch exists.
func BranchExists(repoDir, branch string) bool {
	return exec.Command("git", "-C", repoDir, "show-ref", "--verify", "--quiet", "refs/heads/"+branch).Run() == nil
}

// ValidateBranchName checks name against git's branch naming rules.
func ValidateBranchName(name string) error {
	switch {
	case name == "":
		return errors.New("branch name cannot be empty")
	case strings.TrimSpace(name) != name:
		return errors.New("branch name cannot have leading or trailing spaces")
	case strings.Contains(name, ".."):
		return errors.New("branch name cannot contain '..'")
	case strings.HasPrefix(name, "."):
		return errors.New("branch name cannot start with '.'")
	case strings.HasSuffix(name, ".lock"):
		return errors.New("branch name cannot end with '.lock'")
	case strings.Contains(name, "@{"):
		return errors.New("branch name cannot contain '@{'")
	case name == "@":
		return errors.New("branch name cannot be just '@'")
	}
	for _, ch := range []string{" ", "\t", "~", "^", ":", "?", "*", "[", "\\"} {
		if strings.Contains(name, ch) {
			return fmt.Errorf("branch name cannot contain %q", ch)
		}
	}
	return nil
}

// SanitizeBranchName converts a branch name into a filesystem-safe
// directory name.
func SanitizeBranchName(name string) string {
	s := strings.ReplaceAll(name, "/", "-")
	return strings.ReplaceAll(s, " ", "-")
}

// WorktreePath derives the default worktree location for a branch: a
// sibling directory of the repository named <repo>-<branch>.
func WorktreePath(repoDir, branch string) string {
	parent := filepath.Dir(repoDir)
	return filepath.Join(parent, filepath.Base(repoDir)+"-"+SanitizeBranchName(branch))
}

// CreateWorktree adds a worktree at path. For an existing branch it checks
// that branch out; otherwise it creates the branch from baseBranch (or
// HEAD when baseBranch is empty).
func CreateWorktree(repoDir, path, branch, baseBranch string) error {
	if err := ValidateBranchName(branch); err != nil {
		return fmt.Errorf("invalid branch name: %w", err)
	}
	if !IsRepo(repoDir) {
		return errors.New("not a git repository")
	}

	var cmd *exec.Cmd
	switch {
	case BranchExists(repoDir, branch):
		cmd = exec.Command("git", "-C", repoDir, "worktree", "add", path, branch)
	case baseBranch != "":
		cmd = exec.Command("git", "-C", repoDir, "worktree", "add", "-b", branch, path, baseBranch)
	default:
		cmd = exec.Command("git", "-C", repoDir, "worktree", "add", "-b", branch, path)
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("create worktree: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// RemoveWorktree removes the worktree at path.
func RemoveWorktree(repoDir, path string, force bool) error {
	args := []string{"-C", repoDir, "worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)

	if out, err := exec.Command("git", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("remove worktree: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// ListWorktrees returns all worktrees of the repository at repoDir.
func ListWorktrees(repoDir string) ([]Worktree, error) {
	if !IsRepo(repoDir) {
		return nil, errors.New("not a git repository")
	}

	out, err := exec.Command("git", "-C", repoDir, "worktree", "list", "--porcelain").Output()
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}
	return parseWorktreeList(string(out)), nil
}

// parseWorktreeList parses `git worktree list --porcelain` output.
func parseWorktreeList(output string) []Worktree {
	var worktrees []Worktree
	var current Worktree

	flush := func() {
		if current.Path != "" {
			worktrees = append(worktrees, current)
		}
		current = Worktree{}
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			current.Commit = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			current.Branch = strings.TrimPrefix(ref, "refs/heads/")
		case line == "bare":
			current.Bare = true
		}
	}
	flush()
	return worktrees
}
