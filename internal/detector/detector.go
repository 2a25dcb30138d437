// Package detector classifies a session's recent terminal output into a
// small session state set. One detector variant exists per supported
// assistant tool; variants differ only in their pattern sets.
package detector

import (
	"fmt"
	"strings"
)

// State represents the detected state of a session.
type State string

const (
	StateIdle         State = "idle"          // No activity, waiting for user
	StateBusy         State = "busy"          // Actively working
	StateWaitingInput State = "waiting_input" // Showing a prompt, needs a decision
)

// Strategy identifies which detector variant a session uses.
type Strategy string

const (
	StrategyClaude Strategy = "claude"
	StrategyGemini Strategy = "gemini"
)

// WindowLines caps how many trailing rendered lines influence classification.
// Anything older than this never affects the result.
const WindowLines = 30

// Detector classifies a window of rendered terminal lines into a State.
type Detector interface {
	Strategy() Strategy
	Detect(lines []string) State
}

// New returns the detector variant for the given strategy. The optional
// overrides replace or extend the variant's built-in pattern sets (config
// surface for new tool releases that change their prompt text).
func New(strategy Strategy, overrides *RawPatterns) (Detector, error) {
	defaults := DefaultRawPatterns(strategy)
	if defaults == nil {
		return nil, fmt.Errorf("unknown detection strategy %q", strategy)
	}
	compiled, err := CompilePatterns(MergeRawPatterns(defaults, overrides))
	if err != nil {
		return nil, fmt.Errorf("compile %s patterns: %w", strategy, err)
	}
	return &patternDetector{strategy: strategy, patterns: compiled}, nil
}

// patternDetector is the shared classifier shape. Each variant is an
// instance with its own compiled pattern set.
type patternDetector struct {
	strategy Strategy
	patterns *Patterns
}

func (d *patternDetector) Strategy() Strategy {
	return d.strategy
}

// Detect scans the trailing window for the variant's patterns.
// Waiting patterns win over busy patterns regardless of line order.
func (d *patternDetector) Detect(lines []string) State {
	if len(lines) > WindowLines {
		lines = lines[len(lines)-WindowLines:]
	}
	if len(lines) == 0 {
		return StateIdle
	}

	window := strings.ToLower(StripANSI(strings.Join(lines, "\n")))
	if strings.TrimSpace(window) == "" {
		return StateIdle
	}

	if d.patterns.MatchWaiting(window) {
		return StateWaitingInput
	}
	if d.patterns.MatchBusy(window) {
		return StateBusy
	}
	return StateIdle
}
