// Package config owns the on-disk ccmanager configuration: status and
// worktree hooks, command presets, and detection pattern overrides.
// The file is TOML, written atomically, and safe for concurrent access
// within one process.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/worktree-tools/ccmanager/internal/detector"
	"github.com/worktree-tools/ccmanager/internal/logging"
)

var configLog = logging.ForComponent(logging.CompConfig)

// FileName is the TOML config file name.
const FileName = "config.toml"

// ReservedPresetName denotes "no preset selected" in the UI and can never
// be used as a preset name (compared case-insensitively).
const ReservedPresetName = "none"

// DefaultCommand is used when a preset's command field is empty.
const DefaultCommand = "claude"

// HookCommand is one configured hook entry. A missing entry means "not
// configured"; Enabled=false means configured but suppressed.
type HookCommand struct {
	Command string `toml:"command"`
	Enabled bool   `toml:"enabled"`
}

// WorktreeHooks holds hooks fired on worktree lifecycle events.
type WorktreeHooks struct {
	PostCreation *HookCommand `toml:"post_creation"`
}

// CommandPreset is a named, reusable launch configuration.
type CommandPreset struct {
	ID                string   `toml:"id"`
	Name              string   `toml:"name"`
	Command           string   `toml:"command"`
	Args              []string `toml:"args,omitempty"`
	FallbackArgs      []string `toml:"fallback_args,omitempty"`
	DetectionStrategy string   `toml:"detection_strategy"`
}

// PatternOverrides mirrors detector.RawPatterns in TOML form.
type PatternOverrides struct {
	WaitingPatterns []string `toml:"waiting_patterns"`
	BusyPatterns    []string `toml:"busy_patterns"`
}

// LogSettings configures the debug log.
type LogSettings struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the full persisted configuration.
type Config struct {
	// StatusHooks maps a session state name (idle, busy, waiting_input)
	// to the hook fired when a session enters that state.
	StatusHooks map[string]*HookCommand `toml:"status_hooks"`

	// WorktreeHooks are fired on worktree lifecycle events.
	WorktreeHooks WorktreeHooks `toml:"worktree_hooks"`

	// Presets maps preset id to preset. Exactly one is the default.
	Presets         map[string]*CommandPreset `toml:"presets"`
	DefaultPresetID string                    `toml:"default_preset"`

	// Detection holds per-strategy pattern overrides, keyed by strategy name.
	Detection map[string]*PatternOverrides `toml:"detection"`

	Log LogSettings `toml:"log"`
}

// Store owns the config file and serializes access to it.
type Store struct {
	path string

	mu  sync.RWMutex
	cfg *Config
}

// Dir returns the ccmanager config directory, honoring CCMANAGER_CONFIG_DIR.
func Dir() (string, error) {
	if dir := os.Getenv("CCMANAGER_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", "ccmanager"), nil
}

// Open loads the config file at path, creating a seeded default config if
// the file does not exist. A config with no presets gets a default preset
// seeded so the default preset id always resolves.
func Open(path string) (*Store, error) {
	s := &Store{path: path, cfg: &Config{}}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the config file from disk.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := &Config{}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("read config: %w", err)
		}
	} else if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	changed := normalize(cfg)
	s.cfg = cfg

	if changed {
		if err := s.saveLocked(); err != nil {
			// Seeding is best-effort; an unwritable config dir must not
			// stop session monitoring.
			configLog.Warn("config_seed_save_failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// normalize repairs invariants after a load: at least one preset exists and
// the default preset id references an existing preset. Reports whether the
// config was modified.
func normalize(cfg *Config) bool {
	changed := false

	if cfg.Presets == nil {
		cfg.Presets = make(map[string]*CommandPreset)
	}
	if cfg.StatusHooks == nil {
		cfg.StatusHooks = make(map[string]*HookCommand)
	}

	if len(cfg.Presets) == 0 {
		p := &CommandPreset{
			ID:                uuid.NewString(),
			Name:              "Claude",
			Command:           DefaultCommand,
			FallbackArgs:      []string{"--resume"},
			DetectionStrategy: string(detector.StrategyClaude),
		}
		cfg.Presets[p.ID] = p
		cfg.DefaultPresetID = p.ID
		changed = true
	}

	for id, p := range cfg.Presets {
		if p.ID == "" {
			p.ID = id
			changed = true
		}
		if p.DetectionStrategy == "" {
			p.DetectionStrategy = string(detector.StrategyClaude)
			changed = true
		}
	}

	if _, ok := cfg.Presets[cfg.DefaultPresetID]; !ok {
		cfg.DefaultPresetID = anyPresetID(cfg.Presets)
		changed = true
	}

	return changed
}

// anyPresetID picks a deterministic preset id (lowest id) for default
// reassignment.
func anyPresetID(presets map[string]*CommandPreset) string {
	ids := make([]string, 0, len(presets))
	for id := range presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// Save persists the config atomically (tmp file + rename).
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s.cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// StatusHooks returns the configured status hooks, keyed by state name.
func (s *Store) StatusHooks() map[string]*HookCommand {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*HookCommand, len(s.cfg.StatusHooks))
	for state, hook := range s.cfg.StatusHooks {
		if hook == nil {
			continue
		}
		h := *hook
		out[state] = &h
	}
	return out
}

// SetStatusHook configures the hook for a session state.
func (s *Store) SetStatusHook(state string, hook HookCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.StatusHooks[state] = &hook
	return s.saveLocked()
}

// WorktreeHooks returns the configured worktree lifecycle hooks.
func (s *Store) WorktreeHooks() WorktreeHooks {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := WorktreeHooks{}
	if s.cfg.WorktreeHooks.PostCreation != nil {
		h := *s.cfg.WorktreeHooks.PostCreation
		out.PostCreation = &h
	}
	return out
}

// SetPostCreationHook configures the worktree post-creation hook.
func (s *Store) SetPostCreationHook(hook HookCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.WorktreeHooks.PostCreation = &hook
	return s.saveLocked()
}

// DetectionOverrides returns the pattern overrides for a strategy, or nil.
func (s *Store) DetectionOverrides(strategy detector.Strategy) *detector.RawPatterns {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.cfg.Detection[string(strategy)]
	if !ok || o == nil {
		return nil
	}
	return &detector.RawPatterns{
		WaitingPatterns: append([]string(nil), o.WaitingPatterns...),
		BusyPatterns:    append([]string(nil), o.BusyPatterns...),
	}
}

// LogSettings returns the logging section.
func (s *Store) LogSettings() LogSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Log
}
