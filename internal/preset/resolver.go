// Package preset derives concrete launch commands from stored command
// presets. Resolution is a pure lookup: presets are never mutated here.
package preset

import (
	"errors"
	"fmt"

	"github.com/worktree-tools/ccmanager/internal/config"
	"github.com/worktree-tools/ccmanager/internal/detector"
)

// ErrPresetNotFound is returned when resolving an id absent from the
// preset mapping. Callers must handle it; it never crashes the monitor.
var ErrPresetNotFound = errors.New("preset not found")

// Source is the narrow view of the preset store the resolver needs.
type Source interface {
	Preset(id string) *config.CommandPreset
}

// Resolution is a concrete launch plan for one session.
type Resolution struct {
	PresetID string
	Command  string
	Args     []string
	Strategy detector.Strategy
}

// Resolve derives the executable, argument list and detector strategy for
// a preset. When useFallback is set the preset's fallback argument list is
// used instead of the primary one; that selection is always the caller's
// decision (e.g. a fresh session with no history to resume).
func Resolve(src Source, id string, useFallback bool) (Resolution, error) {
	p := src.Preset(id)
	if p == nil {
		return Resolution{}, fmt.Errorf("%w: %q", ErrPresetNotFound, id)
	}

	command := p.Command
	if command == "" {
		command = config.DefaultCommand
	}

	args := p.Args
	if useFallback {
		args = p.FallbackArgs
	}

	return Resolution{
		PresetID: p.ID,
		Command:  command,
		Args:     append([]string(nil), args...),
		Strategy: detector.Strategy(p.DetectionStrategy),
	}, nil
}
