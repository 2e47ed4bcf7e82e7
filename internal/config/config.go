// Package config loads the simulator's YAML configuration file and folds
// in SNMP_SIM_EX_* environment overrides. Validation errors name the
// offending field so a bad deployment fails with something actionable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/awksedgreep/snmpherd/internal/pool"
)

// Duration accepts "30m" style strings in YAML, or a bare integer of
// seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("bad duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("bad duration %q", value.Value)
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// Global is the top-level block shared by every device group.
type Global struct {
	MaxDevices  int      `yaml:"max_devices"`
	MaxMemoryMB int      `yaml:"max_memory_mb"`
	Host        string   `yaml:"host"`
	Community   string   `yaml:"community"`
	IdleTimeout Duration `yaml:"idle_timeout"`
}

// PortRange is an inclusive UDP port span for one device group.
type PortRange struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// ErrorInjection is the baseline fault floor applied to every device of
// a group at creation.
type ErrorInjection struct {
	PacketLossRate float64 `yaml:"packet_loss_rate"`
	TimeoutRate    float64 `yaml:"timeout_rate"`
}

// DeviceGroup declares one homogeneous slice of the population.
// Behaviors is a free-form tag list kept for config compatibility;
// simulation behavior is derived from the walk data itself, so unknown
// tags are ignored.
type DeviceGroup struct {
	Name           string         `yaml:"name"`
	DeviceType     string         `yaml:"device_type"`
	Count          int            `yaml:"count"`
	PortRange      PortRange      `yaml:"port_range"`
	Community      string         `yaml:"community"`
	WalkFile       string         `yaml:"walk_file"`
	Behaviors      []string       `yaml:"behaviors"`
	ErrorInjection ErrorInjection `yaml:"error_injection"`
}

type Config struct {
	Global Global        `yaml:"global"`
	Groups []DeviceGroup `yaml:"device_groups"`
}

// knownTypes is the device-type vocabulary of the stock port map.
var knownTypes = func() map[string]bool {
	m := make(map[string]bool)
	for _, t := range pool.DefaultAssignments().DeviceTypes() {
		m[t] = true
	}
	return m
}()

// Default returns the configuration used when no file is given: the
// stock port map, no pre-spawned devices, no preloaded walk profiles.
func Default() *Config {
	return &Config{Global: Global{Community: "public"}}
}

// Load reads and validates a configuration file. A missing file is an
// error; an empty device_groups list falls back to the default port map.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv folds SNMP_SIM_EX_* overrides into the global block. Env wins
// over the file; command-line flags win over both.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("SNMP_SIM_EX_HOST"); v != "" {
		c.Global.Host = v
	}
	if v := os.Getenv("SNMP_SIM_EX_COMMUNITY"); v != "" {
		c.Global.Community = v
	}
	if raw := os.Getenv("SNMP_SIM_EX_MAX_DEVICES"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fmt.Errorf("SNMP_SIM_EX_MAX_DEVICES: invalid count %q", raw)
		}
		c.Global.MaxDevices = n
	}
	if raw := os.Getenv("SNMP_SIM_EX_MAX_MEMORY_MB"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fmt.Errorf("SNMP_SIM_EX_MAX_MEMORY_MB: invalid size %q", raw)
		}
		c.Global.MaxMemoryMB = n
	}
	if raw := os.Getenv("SNMP_SIM_EX_IDLE_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("SNMP_SIM_EX_IDLE_TIMEOUT: %w", err)
		}
		c.Global.IdleTimeout = Duration(d)
	}
	return nil
}

// Validate checks the whole tree and returns the first problem found,
// naming the offending field.
func (c *Config) Validate() error {
	if c.Global.MaxDevices < 0 {
		return fmt.Errorf("global.max_devices: %d is negative", c.Global.MaxDevices)
	}
	if c.Global.MaxMemoryMB < 0 {
		return fmt.Errorf("global.max_memory_mb: %d is negative", c.Global.MaxMemoryMB)
	}
	if c.Global.IdleTimeout < 0 {
		return fmt.Errorf("global.idle_timeout: negative duration")
	}

	names := make(map[string]int, len(c.Groups))
	perType := make(map[string]int, len(c.Groups))
	for i, g := range c.Groups {
		field := func(f string) string { return fmt.Sprintf("device_groups[%d].%s", i, f) }
		if g.Name == "" {
			return fmt.Errorf("%s: name is required", field("name"))
		}
		if prev, ok := names[g.Name]; ok {
			return fmt.Errorf("%s: duplicate name %q (first used by device_groups[%d])", field("name"), g.Name, prev)
		}
		names[g.Name] = i
		if !knownTypes[g.DeviceType] {
			return fmt.Errorf("%s: unknown device type %q", field("device_type"), g.DeviceType)
		}
		pr := g.PortRange
		if pr.Start == 0 && pr.End == 0 {
			return fmt.Errorf("%s: port_range is required", field("port_range"))
		}
		if pr.Start < 1 || pr.End > 65535 {
			return fmt.Errorf("%s: %d-%d outside 1..65535", field("port_range"), pr.Start, pr.End)
		}
		if pr.End < pr.Start {
			return fmt.Errorf("%s: end %d < start %d", field("port_range"), pr.End, pr.Start)
		}
		capacity := pr.End - pr.Start + 1
		if g.Count < 0 {
			return fmt.Errorf("%s: %d is negative", field("count"), g.Count)
		}
		if g.Count > capacity {
			return fmt.Errorf("%s: count %d exceeds port_range capacity %d", field("count"), g.Count, capacity)
		}
		if r := g.ErrorInjection.PacketLossRate; r < 0 || r > 1 {
			return fmt.Errorf("%s: %v outside 0..1", field("error_injection.packet_loss_rate"), r)
		}
		if r := g.ErrorInjection.TimeoutRate; r < 0 || r > 1 {
			return fmt.Errorf("%s: %v outside 0..1", field("error_injection.timeout_rate"), r)
		}

		// Community, walk file and fault floor resolve per device type, so
		// groups sharing a type must agree on them.
		if prev, ok := perType[g.DeviceType]; ok {
			pg := c.Groups[prev]
			if pg.Community != g.Community {
				return fmt.Errorf("%s: community %q conflicts with group %q for device_type %s",
					field("community"), g.Community, pg.Name, g.DeviceType)
			}
			if pg.WalkFile != g.WalkFile {
				return fmt.Errorf("%s: walk_file %q conflicts with group %q for device_type %s",
					field("walk_file"), g.WalkFile, pg.Name, g.DeviceType)
			}
			if pg.ErrorInjection != g.ErrorInjection {
				return fmt.Errorf("%s: error_injection conflicts with group %q for device_type %s",
					field("error_injection"), pg.Name, g.DeviceType)
			}
		} else {
			perType[g.DeviceType] = i
		}
	}

	// Range overlap across groups is caught by the port-map build.
	if len(c.Groups) > 0 {
		if _, err := c.Assignments(); err != nil {
			return err
		}
	}
	return nil
}

// Assignments builds the port map from the configured groups. With no
// groups it returns nil and the pool falls back to its stock map.
func (c *Config) Assignments() (*pool.Assignments, error) {
	if len(c.Groups) == 0 {
		return nil, nil
	}
	byType := make(map[string][]pool.Range)
	for _, g := range c.Groups {
		byType[g.DeviceType] = append(byType[g.DeviceType], pool.Range{Start: g.PortRange.Start, End: g.PortRange.End})
	}
	return pool.NewAssignments(byType)
}

// Communities maps device types to their group community override.
func (c *Config) Communities() map[string]string {
	out := make(map[string]string)
	for _, g := range c.Groups {
		if g.Community != "" {
			out[g.DeviceType] = g.Community
		}
	}
	return out
}

// GroupFaults maps device types to their configured fault floor.
func (c *Config) GroupFaults() map[string]pool.GroupFaults {
	out := make(map[string]pool.GroupFaults)
	for _, g := range c.Groups {
		ei := g.ErrorInjection
		if ei.PacketLossRate > 0 || ei.TimeoutRate > 0 {
			out[g.DeviceType] = pool.GroupFaults{
				PacketLossRate: ei.PacketLossRate,
				TimeoutRate:    ei.TimeoutRate,
			}
		}
	}
	return out
}

// Warmups maps device types to the number of devices to pre-spawn,
// summed across groups.
func (c *Config) Warmups() map[string]int {
	out := make(map[string]int)
	for _, g := range c.Groups {
		if g.Count > 0 {
			out[g.DeviceType] += g.Count
		}
	}
	return out
}

// WalkFiles maps device types to the walk capture backing their profile.
func (c *Config) WalkFiles() map[string]string {
	out := make(map[string]string)
	for _, g := range c.Groups {
		if g.WalkFile != "" {
			out[g.DeviceType] = g.WalkFile
		}
	}
	return out
}

// PoolConfig assembles the pool side of the file. Profiles and the trap
// notifier are runtime objects the caller supplies afterwards.
func (c *Config) PoolConfig() (pool.Config, error) {
	assign, err := c.Assignments()
	if err != nil {
		return pool.Config{}, err
	}
	return pool.Config{
		Host:        c.Global.Host,
		Community:   c.Global.Community,
		MaxDevices:  c.Global.MaxDevices,
		IdleTimeout: time.Duration(c.Global.IdleTimeout),
		Assignments: assign,
		Communities: c.Communities(),
		Faults:      c.GroupFaults(),
	}, nil
}
