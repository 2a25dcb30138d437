package hooks

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// ShellSpawner runs hook commands through the shell so operators can use
// pipes and env expansion in hook config. The child is reaped by a
// goroutine whose only job is logging the outcome; the dispatch path never
// joins it.
type ShellSpawner struct {
	shell string
}

// NewShellSpawner creates a spawner using $SHELL, falling back to sh.
func NewShellSpawner() *ShellSpawner {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "sh"
	}
	return &ShellSpawner{shell: shell}
}

// Spawn starts the command and returns once it is running. The returned
// error covers launch failures only (e.g. shell not found); the command's
// own exit status is observed asynchronously.
func (s *ShellSpawner) Spawn(command, dir string, extraEnv []string) error {
	cmd := exec.Command(s.shell, "-c", command)
	cmd.Env = append(os.Environ(), extraEnv...)
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			cmd.Dir = dir
		}
	}
	// Hook output must not bleed into the interactive session's terminal.
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start hook command: %w", err)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			hookLog.Warn("hook_command_failed",
				slog.String("command", command),
				slog.String("error", err.Error()))
			return
		}
		hookLog.Debug("hook_command_finished", slog.String("command", command))
	}()

	return nil
}
