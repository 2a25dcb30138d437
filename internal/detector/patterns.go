package detector

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/worktree-tools/ccmanager/internal/logging"
)

var patternLog = logging.ForComponent(logging.CompStatus)

// RawPatterns holds string-form patterns before compilation.
// Patterns prefixed with "re:" are compiled as regex; everything else uses
// a case-insensitive strings.Contains match.
type RawPatterns struct {
	// WaitingPatterns mark a confirmation/choice prompt. Highest priority.
	WaitingPatterns []string
	// BusyPatterns mark in-progress work (interrupt-key hints and the like).
	BusyPatterns []string
}

// Patterns holds the compiled, ready-to-use patterns for one variant.
// Plain strings are stored lowercased and matched against a lowercased window.
type Patterns struct {
	WaitingStrings []string
	WaitingRegexps []*regexp.Regexp
	BusyStrings    []string
	BusyRegexps    []*regexp.Regexp
}

// DefaultRawPatterns returns the built-in detection patterns for a strategy.
// Returns nil for unknown strategies (they have no defaults).
func DefaultRawPatterns(strategy Strategy) *RawPatterns {
	switch strategy {
	case StrategyClaude:
		return &RawPatterns{
			WaitingPatterns: []string{
				"do you want",
				"would you like",
				"do you trust the files in this folder?",
				"(y/n)",
				"(yes/no)",
			},
			BusyPatterns: []string{
				"esc to interrupt",    // PRIMARY: shown with the spinner while working
				"ctrl+c to interrupt", // newer Claude Code builds
			},
		}
	case StrategyGemini:
		return &RawPatterns{
			WaitingPatterns: []string{
				"waiting for user confirmation",
				"apply this change?",
				"allow execution of",
				"yes, allow once",
			},
			BusyPatterns: []string{
				"esc to cancel",
			},
		}
	default:
		return nil
	}
}

// CompilePatterns compiles raw string patterns into ready-to-use Patterns.
// Patterns prefixed with "re:" are compiled as case-insensitive regex.
// Invalid regex patterns are logged as warnings and skipped (never crash).
func CompilePatterns(raw *RawPatterns) (*Patterns, error) {
	if raw == nil {
		return nil, fmt.Errorf("nil RawPatterns")
	}

	compiled := &Patterns{}
	compiled.WaitingStrings, compiled.WaitingRegexps = splitPatterns(raw.WaitingPatterns, "waiting")
	compiled.BusyStrings, compiled.BusyRegexps = splitPatterns(raw.BusyPatterns, "busy")
	return compiled, nil
}

// splitPatterns separates plain substrings from "re:" regex patterns.
func splitPatterns(patterns []string, kind string) ([]string, []*regexp.Regexp) {
	var plain []string
	var regexps []*regexp.Regexp
	for _, p := range patterns {
		if strings.HasPrefix(p, "re:") {
			re, err := regexp.Compile("(?i)" + p[3:])
			if err != nil {
				patternLog.Warn("invalid_pattern_regex",
					slog.String("kind", kind),
					slog.String("pattern", p),
					slog.String("error", err.Error()))
				continue
			}
			regexps = append(regexps, re)
		} else {
			plain = append(plain, strings.ToLower(p))
		}
	}
	return plain, regexps
}

// MatchWaiting reports whether any waiting pattern occurs in the window.
// The window must already be lowercased.
func (p *Patterns) MatchWaiting(window string) bool {
	return matchAny(window, p.WaitingStrings, p.WaitingRegexps)
}

// MatchBusy reports whether any busy pattern occurs in the window.
func (p *Patterns) MatchBusy(window string) bool {
	return matchAny(window, p.BusyStrings, p.BusyRegexps)
}

func matchAny(window string, plain []string, regexps []*regexp.Regexp) bool {
	for _, s := range plain {
		if strings.Contains(window, s) {
			return true
		}
	}
	for _, re := range regexps {
		if re.MatchString(window) {
			return true
		}
	}
	return false
}

// MergeRawPatterns merges variant defaults with user overrides.
//   - If overrides has a field set (non-nil slice, even if empty), it
//     replaces the default.
//   - If defaults is nil, only overrides are used.
func MergeRawPatterns(defaults, overrides *RawPatterns) *RawPatterns {
	result := &RawPatterns{}

	if defaults != nil {
		result.WaitingPatterns = copySlice(defaults.WaitingPatterns)
		result.BusyPatterns = copySlice(defaults.BusyPatterns)
	}
	if overrides != nil {
		if overrides.WaitingPatterns != nil {
			result.WaitingPatterns = copySlice(overrides.WaitingPatterns)
		}
		if overrides.BusyPatterns != nil {
			result.BusyPatterns = copySlice(overrides.BusyPatterns)
		}
	}

	return result
}

func copySlice(s []string) []string {
	if s == nil {
		return nil
	}
	c := make([]string, len(s))
	copy(c, s)
	return c
}
