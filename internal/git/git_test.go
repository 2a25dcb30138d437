package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initTestRepo creates a git repo with one commit and returns its path.
func initTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := filepath.Join(t.TempDir(), "repo")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test",
		)
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hi\n"), 0o644))
	run("add", "README")
	run("commit", "-m", "initial")
	return dir
}

func TestIsRepoAndRoot(t *testing.T) {
	repo := initTestRepo(t)

	assert.True(t, IsRepo(repo))
	assert.False(t, IsRepo(t.TempDir()))

	root, err := RepoRoot(repo)
	require.NoError(t, err)
	assert.Equal(t, resolvePath(t, repo), resolvePath(t, root))
}

func TestCurrentBranch(t *testing.T) {
	repo := initTestRepo(t)

	branch, err := CurrentBranch(repo)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestDefaultBranchFallback(t *testing.T) {
	repo := initTestRepo(t)

	branch, err := DefaultBranch(repo)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestCreateAndRemoveWorktree(t *testing.T) {
	repo := initTestRepo(t)
	wtPath := filepath.Join(filepath.Dir(repo), "repo-feature")

	require.NoError(t, CreateWorktree(repo, wtPath, "feature", "main"))
	assert.True(t, BranchExists(repo, "feature"))

	wts, err := ListWorktrees(repo)
	require.NoError(t, err)
	require.Len(t, wts, 2)

	var found bool
	for _, wt := range wts {
		if wt.Branch == "feature" {
			found = true
			assert.Equal(t, resolvePath(t, wtPath), resolvePath(t, wt.Path))
		}
	}
	assert.True(t, found, "worktree for feature branch not listed")

	require.NoError(t, RemoveWorktree(repo, wtPath, false))
	wts, err = ListWorktrees(repo)
	require.NoError(t, err)
	assert.Len(t, wts, 1)
}

func TestCreateWorktreeExistingBranch(t *testing.T) {
	repo := initTestRepo(t)

	run := exec.Command("git", "-C", repo, "branch", "existing")
	require.NoError(t, run.Run())

	wtPath := filepath.Join(filepath.Dir(repo), "repo-existing")
	require.NoError(t, CreateWorktree(repo, wtPath, "existing", ""))
}

func TestCreateWorktreeInvalidBranch(t *testing.T) {
	repo := initTestRepo(t)
	err := CreateWorktree(repo, t.TempDir(), "bad..name", "")
	assert.Error(t, err)
}

func TestValidateBranchName(t *testing.T) {
	valid := []string{"feature", "feature/login", "fix-123", "v1.2.3"}
	for _, name := range valid {
		assert.NoErrorf(t, ValidateBranchName(name), "%q should be valid", name)
	}

	invalid := []string{"", " padded", "double..dot", ".hidden", "x.lock", "with space", "col:on", "ast*", "@", "a@{b}"}
	for _, name := range invalid {
		assert.Errorf(t, ValidateBranchName(name), "%q should be invalid", name)
	}
}

func TestSanitizeBranchName(t *testing.T) {
	assert.Equal(t, "feature-login-form", SanitizeBranchName("feature/login form"))
}

func TestWorktreePath(t *testing.T) {
	got := WorktreePath("/home/dev/proj", "feature/x")
	assert.Equal(t, "/home/dev/proj-feature-x", got)
}

func TestParseWorktreeList(t *testing.T) {
	output := `worktree /repo
HEAD 1111111111111111111111111111111111111111
branch refs/heads/main

worktree /repo-feature
HEAD 2222222222222222222222222222222222222222
branch refs/heads/feature

worktree /repo.git
bare
`
	wts := parseWorktreeList(output)
	require.Len(t, wts, 3)
	assert.Equal(t, "main", wts[0].Branch)
	assert.Equal(t, "/repo-feature", wts[1].Path)
	assert.Equal(t, "feature", wts[1].Branch)
	assert.True(t, wts[2].Bare)
}

// resolvePath follows symlinks so macOS /private/tmp paths compare equal.
func resolvePath(t *testing.T, path string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}
	return resolved
}
