package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/worktree-tools/ccmanager/internal/detector"
)

// ErrLastPreset is returned when deleting the only remaining preset.
var ErrLastPreset = errors.New("cannot delete the last remaining preset")

// Presets returns a copy of all presets plus the default preset id.
func (s *Store) Presets() (map[string]*CommandPreset, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*CommandPreset, len(s.cfg.Presets))
	for id, p := range s.cfg.Presets {
		out[id] = clonePreset(p)
	}
	return out, s.cfg.DefaultPresetID
}

// Preset returns the preset with the given id, or nil.
func (s *Store) Preset(id string) *CommandPreset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePreset(s.cfg.Presets[id])
}

// DefaultPreset returns the default preset. The normalize step guarantees
// the default id always resolves.
func (s *Store) DefaultPreset() *CommandPreset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePreset(s.cfg.Presets[s.cfg.DefaultPresetID])
}

// PresetByName looks up a preset by its unique name (case-insensitive).
func (s *Store) PresetByName(name string) *CommandPreset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.cfg.Presets {
		if strings.EqualFold(p.Name, name) {
			return clonePreset(p)
		}
	}
	return nil
}

// SortedPresets returns presets ordered by name for stable listings.
func (s *Store) SortedPresets() []*CommandPreset {
	presets, _ := s.Presets()
	out := make([]*CommandPreset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddPreset creates a new preset with a generated id and persists it.
func (s *Store) AddPreset(p CommandPreset) (*CommandPreset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validatePresetLocked(&p, ""); err != nil {
		return nil, err
	}

	p.ID = uuid.NewString()
	s.cfg.Presets[p.ID] = &p
	if err := s.saveLocked(); err != nil {
		delete(s.cfg.Presets, p.ID)
		return nil, err
	}
	return clonePreset(&p), nil
}

// UpdatePreset mutates an existing preset in place (the id is stable).
func (s *Store) UpdatePreset(p CommandPreset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.cfg.Presets[p.ID]
	if !ok {
		return fmt.Errorf("preset %q not found", p.ID)
	}
	if err := s.validatePresetLocked(&p, p.ID); err != nil {
		return err
	}

	prev := *existing
	*existing = p
	if err := s.saveLocked(); err != nil {
		*existing = prev
		return err
	}
	return nil
}

// DeletePreset removes a preset. The last remaining preset is undeletable.
// Deleting the default reassigns the default to a remaining preset.
func (s *Store) DeletePreset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.cfg.Presets[id]
	if !ok {
		return fmt.Errorf("preset %q not found", id)
	}
	if len(s.cfg.Presets) <= 1 {
		return ErrLastPreset
	}

	prevDefault := s.cfg.DefaultPresetID
	delete(s.cfg.Presets, id)
	if s.cfg.DefaultPresetID == id {
		s.cfg.DefaultPresetID = anyPresetID(s.cfg.Presets)
	}

	if err := s.saveLocked(); err != nil {
		s.cfg.Presets[id] = p
		s.cfg.DefaultPresetID = prevDefault
		return err
	}
	return nil
}

// SetDefaultPreset marks an existing preset as the default.
func (s *Store) SetDefaultPreset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cfg.Presets[id]; !ok {
		return fmt.Errorf("preset %q not found", id)
	}

	prev := s.cfg.DefaultPresetID
	s.cfg.DefaultPresetID = id
	if err := s.saveLocked(); err != nil {
		s.cfg.DefaultPresetID = prev
		return err
	}
	return nil
}

// validatePresetLocked enforces the preset naming invariants. selfID is the
// preset's own id on updates so its current name does not collide with itself.
func (s *Store) validatePresetLocked(p *CommandPreset, selfID string) error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return errors.New("preset name cannot be empty")
	}
	if strings.EqualFold(name, ReservedPresetName) {
		return fmt.Errorf("preset name %q is reserved", ReservedPresetName)
	}
	for id, other := range s.cfg.Presets {
		if id != selfID && strings.EqualFold(other.Name, name) {
			return fmt.Errorf("preset name %q already in use", name)
		}
	}
	p.Name = name

	if p.DetectionStrategy == "" {
		p.DetectionStrategy = string(detector.StrategyClaude)
	}
	if detector.DefaultRawPatterns(detector.Strategy(p.DetectionStrategy)) == nil {
		return fmt.Errorf("unknown detection strategy %q", p.DetectionStrategy)
	}
	return nil
}

func clonePreset(p *CommandPreset) *CommandPreset {
	if p == nil {
		return nil
	}
	c := *p
	c.Args = append([]string(nil), p.Args...)
	c.FallbackArgs = append([]string(nil), p.FallbackArgs...)
	return &c
}
