// Package scenario composes fault conditions into named, repeatable
// situations that play out across many devices at once: outages, RF
// degradation, load spikes, flapping and cascades. Definitions persist
// as JSON files so the same situation can be replayed between runs.
package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Scenario types.
const (
	TypeNetworkOutage     = "network_outage"
	TypeSignalDegradation = "signal_degradation"
	TypeHighLoad          = "high_load"
	TypeDeviceFlapping    = "device_flapping"
	TypeCascadingFailure  = "cascading_failure"
	TypeEnvironmental     = "environmental"
)

// Environmental severities.
const (
	SeverityMild     = "mild"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
)

// modesByType lists accepted mode values per type, first entry the
// default. A nil entry means the type takes no mode.
var modesByType = map[string][]string{
	TypeNetworkOutage:     {"immediate", "gradual", "sporadic"},
	TypeSignalDegradation: {"steady", "fluctuating", "progressive"},
	TypeHighLoad:          {"steady", "bursty", "cascade"},
	TypeDeviceFlapping:    {"regular", "irregular", "degrading"},
	TypeCascadingFailure:  nil,
	TypeEnvironmental:     {"weather", "power", "temperature", "interference"},
}

// Types lists the scenario types in a stable order.
func Types() []string {
	return []string{
		TypeNetworkOutage,
		TypeSignalDegradation,
		TypeHighLoad,
		TypeDeviceFlapping,
		TypeCascadingFailure,
		TypeEnvironmental,
	}
}

// Definition is one stored scenario. Targets resolve in order: an
// explicit Ports list, else the PortStart..PortEnd range over running
// devices, else every running device.
type Definition struct {
	Name         string    `json:"name" yaml:"name"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	Type         string    `json:"type" yaml:"type"`
	Mode         string    `json:"mode,omitempty" yaml:"mode,omitempty"`
	Severity     string    `json:"severity,omitempty" yaml:"severity,omitempty"` // environmental only
	Ports        []int     `json:"ports,omitempty" yaml:"ports,omitempty"`
	PortStart    int       `json:"port_start,omitempty" yaml:"port_start,omitempty"`
	PortEnd      int       `json:"port_end,omitempty" yaml:"port_end,omitempty"`
	DurationMS   int64     `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
	GrowthFactor float64   `json:"growth_factor,omitempty" yaml:"growth_factor,omitempty"` // cascading_failure
	MaxShare     float64   `json:"max_share,omitempty" yaml:"max_share,omitempty"`         // cascading_failure
	CreatedAt    time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Validate checks a definition and fills defaulted fields in place.
func (d *Definition) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return errors.New("scenario: name is required")
	}
	// The name doubles as the storage file name.
	if strings.ContainsAny(d.Name, `/\`) || strings.Contains(d.Name, "..") {
		return fmt.Errorf("scenario %q: name must be a plain file name", d.Name)
	}
	modes, ok := modesByType[d.Type]
	if !ok {
		return fmt.Errorf("scenario %q: unknown type %q", d.Name, d.Type)
	}
	switch {
	case d.Mode == "" && len(modes) > 0:
		d.Mode = modes[0]
	case d.Mode != "" && !containsString(modes, d.Mode):
		return fmt.Errorf("scenario %q: type %s has no mode %q", d.Name, d.Type, d.Mode)
	}
	if d.Type == TypeEnvironmental {
		switch d.Severity {
		case "":
			d.Severity = SeverityModerate
		case SeverityMild, SeverityModerate, SeveritySevere:
		default:
			return fmt.Errorf("scenario %q: unknown severity %q", d.Name, d.Severity)
		}
	} else if d.Severity != "" {
		return fmt.Errorf("scenario %q: severity only applies to %s", d.Name, TypeEnvironmental)
	}
	for _, p := range d.Ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("scenario %q: port %d out of range", d.Name, p)
		}
	}
	if d.PortStart != 0 || d.PortEnd != 0 {
		if len(d.Ports) > 0 {
			return fmt.Errorf("scenario %q: ports and port_start/port_end are exclusive", d.Name)
		}
		if d.PortStart < 1 || d.PortEnd > 65535 || d.PortEnd < d.PortStart {
			return fmt.Errorf("scenario %q: bad port range %d-%d", d.Name, d.PortStart, d.PortEnd)
		}
	}
	if d.DurationMS < 0 {
		return fmt.Errorf("scenario %q: negative duration", d.Name)
	}
	if d.Type == TypeCascadingFailure {
		if d.GrowthFactor == 0 {
			d.GrowthFactor = 2
		}
		if d.GrowthFactor < 1 {
			return fmt.Errorf("scenario %q: growth factor %v below 1", d.Name, d.GrowthFactor)
		}
		if d.MaxShare == 0 {
			d.MaxShare = 0.5
		}
		if d.MaxShare < 0 || d.MaxShare > 1 {
			return fmt.Errorf("scenario %q: max share %v outside (0,1]", d.Name, d.MaxShare)
		}
	}
	return nil
}

// Duration returns the configured window or the 5 minute default.
func (d *Definition) Duration() time.Duration {
	if d.DurationMS > 0 {
		return time.Duration(d.DurationMS) * time.Millisecond
	}
	return 5 * time.Minute
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Store keeps definitions in memory and mirrors them to a directory of
// JSON files, one per scenario.
type Store struct {
	mu   sync.RWMutex
	dir  string
	defs map[string]*Definition
}

// NewStore opens (creating if needed) the scenario directory and loads
// every definition in it. Unparsable files are skipped with a log line.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("scenario: create %s: %w", dir, err)
	}
	s := &Store{dir: dir, defs: make(map[string]*Definition)}
	s.loadFromDisk()
	return s, nil
}

func (s *Store) loadFromDisk() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Printf("scenario: read %s: %v", s.dir, err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			log.Printf("scenario: read %s: %v", e.Name(), err)
			continue
		}
		var def Definition
		if err := json.Unmarshal(raw, &def); err != nil {
			log.Printf("scenario: parse %s: %v", e.Name(), err)
			continue
		}
		if err := def.Validate(); err != nil {
			log.Printf("scenario: skip %s: %v", e.Name(), err)
			continue
		}
		s.defs[def.Name] = &def
	}
	if len(s.defs) > 0 {
		log.Printf("scenario: loaded %d definitions from %s", len(s.defs), s.dir)
	}
}

// Save validates and persists a definition, replacing any previous one
// with the same name.
func (s *Store) Save(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if prev, ok := s.defs[def.Name]; ok && !prev.CreatedAt.IsZero() {
		def.CreatedAt = prev.CreatedAt
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now

	raw, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("scenario %q: %w", def.Name, err)
	}
	if err := os.WriteFile(s.path(def.Name), raw, 0o644); err != nil {
		return fmt.Errorf("scenario %q: %w", def.Name, err)
	}
	cp := *def
	cp.Ports = append([]int(nil), def.Ports...)
	s.defs[def.Name] = &cp
	log.Printf("scenario: saved %q", def.Name)
	return nil
}

// Get returns a copy of one definition.
func (s *Store) Get(name string) (*Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[name]
	if !ok {
		return nil, false
	}
	cp := *def
	cp.Ports = append([]int(nil), def.Ports...)
	return &cp, true
}

// Delete removes a definition and its file.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[name]; !ok {
		return fmt.Errorf("scenario %q: %w", name, os.ErrNotExist)
	}
	delete(s.defs, name)
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("scenario %q: %w", name, err)
	}
	log.Printf("scenario: deleted %q", name)
	return nil
}

// List returns all definitions sorted by name.
func (s *Store) List() []Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Definition, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, *def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// SeedDefaults saves the builtin templates that are not already defined,
// returning how many were added.
func (s *Store) SeedDefaults() int {
	added := 0
	for _, def := range DefaultDefinitions() {
		if _, ok := s.Get(def.Name); ok {
			continue
		}
		def := def
		if err := s.Save(&def); err != nil {
			log.Printf("scenario: seed %q: %v", def.Name, err)
			continue
		}
		added++
	}
	return added
}

// DefaultDefinitions are ready-made situations over the default port map.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Name:        "node-outage",
			Description: "A fiber node goes dark and every modem behind it drops",
			Type:        TypeNetworkOutage,
			Mode:        "immediate",
			PortStart:   30000,
			PortEnd:     30499,
			DurationMS:  (3 * time.Minute).Milliseconds(),
		},
		{
			Name:        "rain-fade",
			Description: "Wet-weather SNR slump across the cable plant",
			Type:        TypeSignalDegradation,
			Mode:        "fluctuating",
			PortStart:   30000,
			PortEnd:     31999,
			DurationMS:  (10 * time.Minute).Milliseconds(),
		},
		{
			Name:        "evening-peak",
			Description: "Prime-time traffic surge on the access network",
			Type:        TypeHighLoad,
			Mode:        "bursty",
			PortStart:   30000,
			PortEnd:     31999,
			DurationMS:  (15 * time.Minute).Milliseconds(),
		},
		{
			Name:        "flaky-drop",
			Description: "A corroded drop cable makes one street of modems flap",
			Type:        TypeDeviceFlapping,
			Mode:        "irregular",
			PortStart:   30100,
			PortEnd:     30131,
			DurationMS:  (10 * time.Minute).Milliseconds(),
		},
		{
			Name:         "amplifier-cascade",
			Description:  "An amplifier failure ripples downstream",
			Type:         TypeCascadingFailure,
			PortStart:    30000,
			PortEnd:      30999,
			GrowthFactor: 2,
			MaxShare:     0.4,
			DurationMS:   (5 * time.Minute).Milliseconds(),
		},
		{
			Name:        "summer-storm",
			Description: "Severe weather over the whole footprint",
			Type:        TypeEnvironmental,
			Mode:        "weather",
			Severity:    SeveritySevere,
			DurationMS:  (20 * time.Minute).Milliseconds(),
		},
	}
}
