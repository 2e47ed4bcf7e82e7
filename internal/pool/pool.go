package pool

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/awksedgreep/snmpherd/internal/device"
	"github.com/awksedgreep/snmpherd/internal/faults"
	"github.com/awksedgreep/snmpherd/internal/metrics"
	"github.com/awksedgreep/snmpherd/internal/store"
	"github.com/awksedgreep/snmpherd/internal/traps"
)

var (
	// ErrMaxDevices means the pool is full and nothing was evictable.
	ErrMaxDevices = errors.New("pool: max devices reached")
	// ErrPoolStopped rejects creation after Stop.
	ErrPoolStopped = errors.New("pool: stopped")
)

// Tier classifies device activity. Tiering only drives eviction order
// and the tier gauge; a cold device answers exactly like a hot one.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// GroupFaults are baseline error rates installed on every new device of
// a type, from the config file's error_injection block.
type GroupFaults struct {
	PacketLossRate float64
	TimeoutRate    float64
}

// Config sets up a pool.
type Config struct {
	Host        string
	Community   string
	MaxDevices  int           // default 10000
	IdleTimeout time.Duration // default 30m
	InboxSize   int
	Assignments *Assignments   // nil uses DefaultAssignments
	Profiles    *store.Registry // required
	Notifier    *traps.Manager
	// Communities overrides Community per device type.
	Communities map[string]string
	// Faults holds per-type baseline conditions.
	Faults map[string]GroupFaults
}

// Pool owns every running device, keyed by port.
type Pool struct {
	cfg      Config
	assign   *Assignments
	profiles *store.Registry
	bufPool  *sync.Pool

	mu      sync.RWMutex
	devices map[int]*device.Device
	// reqMarks remembers each device's request count at the previous
	// tier scan, so the scan sees a per-interval rate.
	reqMarks map[int]int64
	tiers    map[int]Tier

	cron    *cron.Cron
	stopped atomic.Bool
}

// Stats is a population snapshot for the status endpoint.
type Stats struct {
	Devices       int            `json:"devices"`
	MaxDevices    int            `json:"max_devices"`
	ByType        map[string]int `json:"by_type"`
	ByTier        map[Tier]int   `json:"by_tier"`
	AssignedPorts int            `json:"assigned_ports"`
}

// New validates the config and prepares a pool. Start launches the
// maintenance jobs.
func New(cfg Config) (*Pool, error) {
	if cfg.Profiles == nil {
		return nil, errors.New("pool: nil profile registry")
	}
	if cfg.Assignments == nil {
		cfg.Assignments = DefaultAssignments()
	}
	if cfg.MaxDevices <= 0 {
		cfg.MaxDevices = 10000
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.Community == "" {
		cfg.Community = "public"
	}

	p := &Pool{
		cfg:      cfg,
		assign:   cfg.Assignments,
		profiles: cfg.Profiles,
		bufPool:  device.NewBufferPool(),
		devices:  make(map[int]*device.Device),
		reqMarks: make(map[int]int64),
		tiers:    make(map[int]Tier),
	}
	// Every assigned type needs something to serve before its first
	// device spawns.
	for _, t := range p.assign.DeviceTypes() {
		p.profiles.EnsureDefaults(t)
	}
	return p, nil
}

// Start launches the idle reaper and the tier scan.
func (p *Pool) Start() {
	p.cron = cron.New()
	p.cron.AddFunc("@every 5m", p.reapIdle)
	p.cron.AddFunc("@every 1m", p.rescanTiers)
	p.cron.Start()
	log.Printf("pool: up (max %d devices, idle timeout %v, %d assigned ports)",
		p.cfg.MaxDevices, p.cfg.IdleTimeout, p.assign.TotalPorts())
}

// Stop halts maintenance and shuts the whole population down.
func (p *Pool) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	if p.cron != nil {
		p.cron.Stop()
	}
	n := p.ShutdownAll()
	log.Printf("pool: stopped %d devices", n)
}

// Get returns the device on port without creating one.
func (p *Pool) Get(port int) (*device.Device, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	d, ok := p.devices[port]
	return d, ok
}

// GetOrCreate returns the device on port, spawning it on first use.
// Concurrent callers for the same port converge on one device.
func (p *Pool) GetOrCreate(port int) (*device.Device, error) {
	p.mu.RLock()
	d, ok := p.devices[port]
	p.mu.RUnlock()
	if ok {
		return d, nil
	}
	if p.stopped.Load() {
		return nil, ErrPoolStopped
	}

	deviceType, err := p.assign.DeviceTypeFor(port)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if d, ok := p.devices[port]; ok {
		p.mu.Unlock()
		return d, nil
	}

	// At capacity only a cold device gives way; hot and warm stay.
	var victim *device.Device
	if len(p.devices) >= p.cfg.MaxDevices {
		if victim = p.coldestLocked(); victim == nil {
			p.mu.Unlock()
			return nil, fmt.Errorf("%w (%d)", ErrMaxDevices, p.cfg.MaxDevices)
		}
		p.forgetLocked(victim.Port())
	}

	d, err = p.spawnLocked(port, deviceType)
	p.mu.Unlock()

	if victim != nil {
		victim.Stop()
		metrics.RecordDeviceRemoved("capacity")
		log.Printf("pool: evicted cold device %d to make room for %d", victim.Port(), port)
	}
	if err != nil {
		return nil, err
	}
	if gf, ok := p.cfg.Faults[deviceType]; ok {
		p.installGroupFaults(d, gf)
	}
	return d, nil
}

func (p *Pool) spawnLocked(port int, deviceType string) (*device.Device, error) {
	d, err := device.New(device.Config{
		Port:       port,
		DeviceType: deviceType,
		Host:       p.cfg.Host,
		Community:  p.communityFor(deviceType),
		Profiles:   p.profiles,
		Notifier:   p.cfg.Notifier,
		InboxSize:  p.cfg.InboxSize,
		BufPool:    p.bufPool,
		OnExit:     p.forget,
	})
	if err != nil {
		return nil, err
	}
	if err := d.Start(); err != nil {
		return nil, fmt.Errorf("pool: device %d: %w", port, err)
	}
	p.devices[port] = d
	p.reqMarks[port] = 0
	p.tiers[port] = TierWarm
	metrics.RecordDeviceCreated(deviceType)
	return d, nil
}

// EnsureGroup brings the first count ports of a device type up. Ports
// already running count toward the target.
func (p *Pool) EnsureGroup(deviceType string, count int) (int, error) {
	remaining := count
	for _, r := range p.assign.RangesFor(deviceType) {
		for port := r.Start; port <= r.End && remaining > 0; port++ {
			if _, err := p.GetOrCreate(port); err != nil {
				return count - remaining, err
			}
			remaining--
		}
		if remaining == 0 {
			break
		}
	}
	return count - remaining, nil
}

// Shutdown stops one device and removes it from the pool.
func (p *Pool) Shutdown(port int) bool {
	p.mu.Lock()
	d, ok := p.devices[port]
	if ok {
		p.forgetLocked(port)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	d.Stop()
	metrics.RecordDeviceRemoved("manual")
	return true
}

// ShutdownAll stops every device; the pool stays usable.
func (p *Pool) ShutdownAll() int {
	p.mu.Lock()
	victims := make([]*device.Device, 0, len(p.devices))
	for _, d := range p.devices {
		victims = append(victims, d)
	}
	p.devices = make(map[int]*device.Device)
	p.reqMarks = make(map[int]int64)
	p.tiers = make(map[int]Tier)
	p.mu.Unlock()

	for _, d := range victims {
		d.Stop()
		metrics.RecordDeviceRemoved("shutdown")
	}
	return len(victims)
}

// Len is the live device count.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.devices)
}

// Devices snapshots the population sorted by port.
func (p *Pool) Devices() []*device.Device {
	p.mu.RLock()
	out := make([]*device.Device, 0, len(p.devices))
	for _, d := range p.devices {
		out = append(out, d)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Port() < out[j].Port() })
	return out
}

// Assignments exposes the port map for listings.
func (p *Pool) Assignments() *Assignments { return p.assign }

// Stats snapshots population counts.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := Stats{
		Devices:       len(p.devices),
		MaxDevices:    p.cfg.MaxDevices,
		ByType:        make(map[string]int),
		ByTier:        make(map[Tier]int),
		AssignedPorts: p.assign.TotalPorts(),
	}
	for port, d := range p.devices {
		s.ByType[d.Type()]++
		s.ByTier[p.tiers[port]]++
	}
	return s
}

// forget drops the pool entry when a device stops, if it is still the
// registered one.
func (p *Pool) forget(d *device.Device) {
	p.mu.Lock()
	if cur, ok := p.devices[d.Port()]; ok && cur == d {
		p.forgetLocked(d.Port())
	}
	p.mu.Unlock()
}

func (p *Pool) forgetLocked(port int) {
	delete(p.devices, port)
	delete(p.reqMarks, port)
	delete(p.tiers, port)
}

func (p *Pool) communityFor(deviceType string) string {
	if c, ok := p.cfg.Communities[deviceType]; ok && c != "" {
		return c
	}
	return p.cfg.Community
}

func (p *Pool) installGroupFaults(d *device.Device, gf GroupFaults) {
	if gf.PacketLossRate > 0 {
		cfg := faults.PacketLossConfig{LossRate: gf.PacketLossRate}
		if _, err := d.InstallCondition(cfg); err != nil {
			log.Printf("pool: device %d: baseline packet loss: %v", d.Port(), err)
		}
	}
	if gf.TimeoutRate > 0 {
		cfg := faults.TimeoutConfig{Probability: gf.TimeoutRate}
		if _, err := d.InstallCondition(cfg); err != nil {
			log.Printf("pool: device %d: baseline timeout: %v", d.Port(), err)
		}
	}
}

// reapIdle shuts down devices idle past the timeout.
func (p *Pool) reapIdle() {
	cutoff := time.Now().Add(-p.cfg.IdleTimeout)
	p.mu.Lock()
	var victims []*device.Device
	for port, d := range p.devices {
		if d.LastSeen().Before(cutoff) {
			victims = append(victims, d)
			p.forgetLocked(port)
		}
	}
	p.mu.Unlock()

	for _, d := range victims {
		d.Stop()
		metrics.RecordDeviceRemoved("idle")
	}
	if len(victims) > 0 {
		log.Printf("pool: reaped %d idle devices", len(victims))
	}
}

// rescanTiers reclassifies devices by recent request rate.
func (p *Pool) rescanTiers() {
	now := time.Now()
	var hot, warm, cold int
	p.mu.Lock()
	for port, d := range p.devices {
		total := d.Requests()
		recent := total - p.reqMarks[port]
		p.reqMarks[port] = total
		idle := now.Sub(d.LastSeen())
		switch {
		case idle < time.Minute && recent >= 10:
			p.tiers[port] = TierHot
			hot++
		case idle > 10*time.Minute:
			p.tiers[port] = TierCold
			cold++
		default:
			p.tiers[port] = TierWarm
			warm++
		}
	}
	p.mu.Unlock()
	metrics.SetTierCounts(hot, warm, cold)
}

// coldestLocked picks the stalest cold-tier device, or nil when nothing
// is evictable.
func (p *Pool) coldestLocked() *device.Device {
	var (
		victim *device.Device
		oldest time.Time
	)
	for port, d := range p.devices {
		if p.tiers[port] != TierCold {
			continue
		}
		if seen := d.LastSeen(); victim == nil || seen.Before(oldest) {
			victim, oldest = d, seen
		}
	}
	return victim
}
