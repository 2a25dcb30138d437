// Package hooks executes user-configured external commands in response to
// session state transitions and worktree lifecycle events. Dispatch is
// fire-and-forget: a hook that hangs or fails never stalls monitoring.
package hooks

import (
	"log/slog"

	"github.com/worktree-tools/ccmanager/internal/config"
	"github.com/worktree-tools/ccmanager/internal/detector"
	"github.com/worktree-tools/ccmanager/internal/logging"
)

var hookLog = logging.ForComponent(logging.CompHooks)

// Environment variables set on a status-hook invocation.
const (
	EnvOldState       = "CCMANAGER_OLD_STATE"
	EnvNewState       = "CCMANAGER_NEW_STATE"
	EnvWorktree       = "CCMANAGER_WORKTREE"
	EnvWorktreeBranch = "CCMANAGER_WORKTREE_BRANCH"
	EnvSessionID      = "CCMANAGER_SESSION_ID"
)

// Environment variables set on the worktree-creation hook invocation.
const (
	EnvBaseBranch = "CCMANAGER_BASE_BRANCH"
	EnvGitRoot    = "CCMANAGER_GIT_ROOT"
)

// HookSource is the narrow view of configuration the dispatcher reads.
// Hook config is owned by the config collaborator; the dispatcher never
// writes it.
type HookSource interface {
	StatusHooks() map[string]*config.HookCommand
	WorktreeHooks() config.WorktreeHooks
}

// Spawner launches a hook command as an independent external process.
// Implementations must return quickly once the process has started (or
// failed to start); they never wait for completion on the caller's
// goroutine.
type Spawner interface {
	Spawn(command string, dir string, extraEnv []string) error
}

// Dispatcher fires configured hooks for transitions and worktree events.
type Dispatcher struct {
	cfg     HookSource
	spawner Spawner
}

// NewDispatcher creates a dispatcher reading hook config from cfg. A nil
// spawner uses the default shell spawner.
func NewDispatcher(cfg HookSource, spawner Spawner) *Dispatcher {
	if spawner == nil {
		spawner = NewShellSpawner()
	}
	return &Dispatcher{cfg: cfg, spawner: spawner}
}

// StatusTransition fires the hook configured for newState, if any. Absent
// or disabled entries are a no-op, not an error. Launch failures are
// logged and swallowed; they never affect the session's tracked state.
func (d *Dispatcher) StatusTransition(sessionID, worktree, branch string, oldState, newState detector.State) {
	hook, ok := d.cfg.StatusHooks()[string(newState)]
	if !ok || hook == nil || !hook.Enabled || hook.Command == "" {
		return
	}

	env := []string{
		EnvOldState + "=" + string(oldState),
		EnvNewState + "=" + string(newState),
		EnvWorktree + "=" + worktree,
		EnvWorktreeBranch + "=" + branch,
		EnvSessionID + "=" + sessionID,
	}

	if err := d.spawner.Spawn(hook.Command, worktree, env); err != nil {
		hookLog.Error("status_hook_launch_failed",
			slog.String("session", sessionID),
			slog.String("state", string(newState)),
			slog.String("command", hook.Command),
			slog.String("error", err.Error()))
		return
	}

	hookLog.Debug("status_hook_dispatched",
		slog.String("session", sessionID),
		slog.String("old", string(oldState)),
		slog.String("new", string(newState)))
}

// WorktreeCreated fires the post-creation hook, if configured and enabled.
func (d *Dispatcher) WorktreeCreated(worktree, branch, baseBranch, gitRoot string) {
	hook := d.cfg.WorktreeHooks().PostCreation
	if hook == nil || !hook.Enabled || hook.Command == "" {
		return
	}

	env := []string{
		EnvWorktree + "=" + worktree,
		EnvWorktreeBranch + "=" + branch,
		EnvBaseBranch + "=" + baseBranch,
		EnvGitRoot + "=" + gitRoot,
	}

	if err := d.spawner.Spawn(hook.Command, worktree, env); err != nil {
		hookLog.Error("worktree_hook_launch_failed",
			slog.String("worktree", worktree),
			slog.String("command", hook.Command),
			slog.String("error", err.Error()))
		return
	}

	hookLog.Debug("worktree_hook_dispatched",
		slog.String("worktree", worktree),
		slog.String("branch", branch))
}
