package scenario

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/awksedgreep/snmpherd/internal/device"
	"github.com/awksedgreep/snmpherd/internal/faults"
	"github.com/awksedgreep/snmpherd/internal/pool"
)

// ErrNoTargets means a scenario resolved to zero devices.
var ErrNoTargets = errors.New("scenario: no target devices")

// The RF scenarios pivot on the builtin DOCSIS rows; devices whose
// profile lacks them are skipped with a log line.
const (
	oidSignalNoise      = "1.3.6.1.2.1.10.127.1.1.4.1.5.3"
	oidMicroreflections = "1.3.6.1.2.1.10.127.1.1.4.1.6.3"
	oidInOctets1        = "1.3.6.1.2.1.2.2.1.10.1"
	oidOutOctets1       = "1.3.6.1.2.1.2.2.1.16.1"
)

// conditionGrace pads cleanup behind the nominal window so recovery
// transitions land before their condition is removed.
const conditionGrace = 5 * time.Second

// Descriptor reports what a run set in motion. ConditionsApplied counts
// conditions installed or scheduled; staggered modes keep working after
// Run returns.
type Descriptor struct {
	ScenarioID          string    `json:"scenario_id"`
	Name                string    `json:"name"`
	Type                string    `json:"type"`
	Mode                string    `json:"mode,omitempty"`
	Severity            string    `json:"severity,omitempty"`
	StartTime           time.Time `json:"start_time"`
	DevicesAffected     int       `json:"devices_affected"`
	ConditionsApplied   int       `json:"conditions_applied"`
	EstimatedDurationMS int64     `json:"estimated_duration_ms"`
}

// Runner turns definitions into installed conditions across the pool.
// Delayed waves and cleanups run on timers the runner owns; Close
// cancels everything still pending.
type Runner struct {
	pool *pool.Pool

	mu      sync.Mutex
	rng     *rand.Rand
	seq     int
	tseq    int
	timers  map[int]*time.Timer
	stopped bool
}

// NewRunner wires a runner to the device pool.
func NewRunner(p *pool.Pool) *Runner {
	return &Runner{
		pool:   p,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		timers: make(map[int]*time.Timer),
	}
}

// Close stops pending waves and cleanups. Conditions already installed
// stay installed; clearing devices is the pool's business.
func (r *Runner) Close() {
	r.mu.Lock()
	r.stopped = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	r.mu.Unlock()
}

// Run starts a scenario and reports what it touched.
func (r *Runner) Run(def *Definition) (*Descriptor, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	targets := r.targets(def)
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w for %q", ErrNoTargets, def.Name)
	}

	dur := def.Duration()
	desc := &Descriptor{
		ScenarioID:          r.nextID(def.Type),
		Name:                def.Name,
		Type:                def.Type,
		Mode:                def.Mode,
		Severity:            def.Severity,
		StartTime:           time.Now(),
		DevicesAffected:     len(targets),
		EstimatedDurationMS: dur.Milliseconds(),
	}

	switch def.Type {
	case TypeNetworkOutage:
		desc.ConditionsApplied = r.runOutage(def, targets, dur)
	case TypeSignalDegradation:
		desc.ConditionsApplied = r.runDegradation(def, targets, dur)
	case TypeHighLoad:
		desc.ConditionsApplied = r.runHighLoad(def, targets, dur)
	case TypeDeviceFlapping:
		desc.ConditionsApplied = r.runFlapping(def, targets, dur)
	case TypeCascadingFailure:
		desc.ConditionsApplied = r.runCascade(def, targets, dur)
	case TypeEnvironmental:
		desc.ConditionsApplied = r.runEnvironmental(def, targets, dur)
	}

	log.Printf("scenario: %s (%q) started: %d devices, %d conditions, ~%v",
		desc.ScenarioID, def.Name, desc.DevicesAffected, desc.ConditionsApplied, dur)
	return desc, nil
}

// targets resolves a definition to live devices. Explicit ports are
// created on demand; a range or an empty selector only reaches devices
// that already exist.
func (r *Runner) targets(def *Definition) []*device.Device {
	if len(def.Ports) > 0 {
		out := make([]*device.Device, 0, len(def.Ports))
		for _, port := range def.Ports {
			d, err := r.pool.GetOrCreate(port)
			if err != nil {
				log.Printf("scenario: port %d skipped: %v", port, err)
				continue
			}
			out = append(out, d)
		}
		return out
	}
	all := r.pool.Devices()
	if def.PortStart == 0 && def.PortEnd == 0 {
		return all
	}
	var out []*device.Device
	for _, d := range all {
		if d.Port() >= def.PortStart && d.Port() <= def.PortEnd {
			out = append(out, d)
		}
	}
	return out
}

func (r *Runner) runOutage(def *Definition, targets []*device.Device, dur time.Duration) int {
	applied := 0
	switch def.Mode {
	case "gradual":
		// Failures roll in across the first quarter of the window and
		// everything recovers together at the end.
		ramp := dur / 4
		for i, d := range targets {
			d := d
			var delay time.Duration
			if len(targets) > 1 {
				delay = ramp * time.Duration(i) / time.Duration(len(targets)-1)
			}
			remain := dur - delay
			r.after(delay, func() {
				if id, ok := r.install(d, faults.DeviceFailureConfig{
					Type:     faults.FailDisconnect,
					Duration: remain,
				}); ok {
					r.removeLater(d, id, remain+conditionGrace)
				}
			})
			applied++
		}
	case "sporadic":
		window := clampDuration(dur/10, 5*time.Second, time.Minute)
		for _, d := range targets {
			id, ok := r.install(d, faults.DeviceFailureConfig{
				Type:        faults.FailDisconnect,
				Duration:    window,
				Probability: 0.25,
			})
			if !ok {
				continue
			}
			applied++
			r.removeLater(d, id, dur)
		}
	default: // immediate
		for _, d := range targets {
			id, ok := r.install(d, faults.DeviceFailureConfig{
				Type:     faults.FailDisconnect,
				Duration: dur,
			})
			if !ok {
				continue
			}
			applied++
			r.removeLater(d, id, dur+conditionGrace)
		}
	}
	return applied
}

func (r *Runner) runDegradation(def *Definition, targets []*device.Device, dur time.Duration) int {
	applied := 0
	for _, d := range targets {
		d := d
		switch def.Mode {
		case "fluctuating":
			if !r.pin(d, oidSignalNoise, r.between(200, 240)) {
				continue
			}
			step := dur / 8
			for k := 1; k < 8; k++ {
				level := r.between(200, 240)
				if k%2 == 1 {
					level = r.between(280, 320)
				}
				r.after(step*time.Duration(k), func() { r.pin(d, oidSignalNoise, level) })
			}
		case "progressive":
			if !r.pin(d, oidSignalNoise, 320) {
				continue
			}
			step := dur / 6
			for k := 1; k < 6; k++ {
				level := 320 - float64(k)*30 // down to 170 tenth-dB
				r.after(step*time.Duration(k), func() { r.pin(d, oidSignalNoise, level) })
			}
		default: // steady
			if !r.pin(d, oidSignalNoise, 220) {
				continue
			}
		}
		applied++
		r.clearLater(d, oidSignalNoise, dur)
	}
	return applied
}

func (r *Runner) runHighLoad(def *Definition, targets []*device.Device, dur time.Duration) int {
	applied := 0
	latency := func() faults.TimeoutConfig {
		switch def.Mode {
		case "bursty":
			return faults.TimeoutConfig{
				Probability:      0.05,
				Duration:         250 * time.Millisecond,
				BurstProbability: 0.2,
				BurstDuration:    8 * time.Second,
			}
		default:
			return faults.TimeoutConfig{Probability: 0.15, Duration: 120 * time.Millisecond}
		}
	}

	load := func(d *device.Device, startDelay time.Duration) {
		span := dur - startDelay
		switch def.Mode {
		case "bursty":
			for k := 0; k < 6; k++ {
				offset := startDelay + time.Duration(r.between(0, float64(span)))
				r.after(offset, func() { r.pump(d, 120_000_000, 40_000_000) })
			}
		default:
			tick := clampDuration(span/10, 2*time.Second, 30*time.Second)
			r.pumpAt(d, startDelay, tick, int(span/tick), 25_000_000, 8_000_000)
		}
		cfg := latency()
		if startDelay == 0 {
			if id, ok := r.install(d, cfg); ok {
				r.removeLater(d, id, dur)
			}
			return
		}
		r.after(startDelay, func() {
			if id, ok := r.install(d, cfg); ok {
				r.removeLater(d, id, span)
			}
		})
	}

	if def.Mode == "cascade" {
		// Load starts on a third of the devices and spreads in two more
		// waves.
		third := (len(targets) + 2) / 3
		for i, d := range targets {
			wave := i / third
			if wave > 2 {
				wave = 2
			}
			load(d, dur/3*time.Duration(wave))
			applied += 2
		}
		return applied
	}
	for _, d := range targets {
		load(d, 0)
		applied += 2
	}
	return applied
}

func (r *Runner) runFlapping(def *Definition, targets []*device.Device, dur time.Duration) int {
	applied := 0
	for _, d := range targets {
		cfg := faults.DeviceFailureConfig{Type: faults.FailDisconnect}
		switch def.Mode {
		case "irregular":
			cfg.Probability = r.between(0.2, 0.7)
			cfg.Duration = time.Duration(r.between(float64(5*time.Second), float64(45*time.Second)))
		case "degrading":
			// Every recovery leaves the device unhealthier than before.
			cfg.Probability = 0.4
			cfg.Duration = clampDuration(dur/8, 5*time.Second, 30*time.Second)
			cfg.Recovery = faults.RecoverGradual
		default: // regular
			cfg.Probability = 0.5
			cfg.Duration = clampDuration(dur/10, 5*time.Second, 30*time.Second)
		}
		id, ok := r.install(d, cfg)
		if !ok {
			continue
		}
		applied++
		r.removeLater(d, id, dur)
	}
	return applied
}

func (r *Runner) runCascade(def *Definition, targets []*device.Device, dur time.Duration) int {
	limit := int(def.MaxShare * float64(len(targets)))
	if limit < 1 {
		limit = 1
	}
	seeds := len(targets) / 20
	if seeds < 1 {
		seeds = 1
	}

	// Wave sizes grow geometrically until the share cap.
	var waves []int
	for total, size := 0, seeds; total < limit; size = int(float64(size) * def.GrowthFactor) {
		if size < 1 {
			size = 1
		}
		if total+size > limit {
			size = limit - total
		}
		waves = append(waves, size)
		total += size
	}
	spacing := dur / time.Duration(len(waves)+1)

	order := r.perm(len(targets))
	applied, idx := 0, 0
	for w, size := range waves {
		delay := spacing * time.Duration(w)
		remain := dur - delay
		for k := 0; k < size; k++ {
			d := targets[order[idx]]
			idx++
			cfg := faults.DeviceFailureConfig{Type: faults.FailPower, Duration: remain}
			if w == 0 {
				if id, ok := r.install(d, cfg); ok {
					r.removeLater(d, id, remain+conditionGrace)
				}
			} else {
				d := d
				r.after(delay, func() {
					if id, ok := r.install(d, cfg); ok {
						r.removeLater(d, id, remain+conditionGrace)
					}
				})
			}
			applied++
		}
	}
	return applied
}

func (r *Runner) runEnvironmental(def *Definition, targets []*device.Device, dur time.Duration) int {
	scale := 0.6
	switch def.Severity {
	case SeverityMild:
		scale = 0.3
	case SeveritySevere:
		scale = 1.0
	}

	applied := 0
	for _, d := range targets {
		switch def.Mode {
		case "power":
			id, ok := r.install(d, faults.DeviceFailureConfig{
				Type:        faults.FailPower,
				Probability: 0.15 + 0.35*scale,
				Duration:    10*time.Second + time.Duration(scale*float64(20*time.Second)),
			})
			if !ok {
				continue
			}
			applied++
			r.removeLater(d, id, dur)
		case "temperature":
			id, ok := r.install(d, faults.DeviceFailureConfig{
				Type:        faults.FailOverload,
				Probability: 0.2 + 0.5*scale,
				Duration:    20*time.Second + time.Duration(scale*float64(40*time.Second)),
			})
			if ok {
				applied++
				r.removeLater(d, id, dur)
			}
			if id, ok := r.install(d, faults.SNMPErrorConfig{
				Status:      gosnmp.ResourceUnavailable,
				Probability: 0.05 * scale,
			}); ok {
				applied++
				r.removeLater(d, id, dur)
			}
		case "interference":
			if r.pin(d, oidSignalNoise, 350-100*scale) {
				applied++
				r.clearLater(d, oidSignalNoise, dur)
			}
			if r.pin(d, oidMicroreflections, 12+88*scale) {
				applied++
				r.clearLater(d, oidMicroreflections, dur)
			}
			if id, ok := r.install(d, faults.MalformedConfig{
				Mode:        faults.CorruptVarbinds,
				Probability: 0.08 * scale,
			}); ok {
				applied++
				r.removeLater(d, id, dur)
			}
		default: // weather
			if r.pin(d, oidSignalNoise, 350-180*scale) {
				applied++
				r.clearLater(d, oidSignalNoise, dur)
			}
			if id, ok := r.install(d, faults.PacketLossConfig{LossRate: 0.15 * scale}); ok {
				applied++
				r.removeLater(d, id, dur)
			}
		}
	}
	return applied
}

// install wraps InstallCondition with logging; stopped devices are
// skipped quietly.
func (r *Runner) install(d *device.Device, cfg interface{}) (string, bool) {
	id, err := d.InstallCondition(cfg)
	if err != nil {
		if !errors.Is(err, device.ErrStopped) {
			log.Printf("scenario: device %d: install: %v", d.Port(), err)
		}
		return "", false
	}
	return id, true
}

func (r *Runner) pin(d *device.Device, oid string, value float64) bool {
	if err := d.SetGauge(oid, value); err != nil {
		if !errors.Is(err, device.ErrStopped) {
			log.Printf("scenario: device %d: pin %s: %v", d.Port(), oid, err)
		}
		return false
	}
	return true
}

func (r *Runner) pump(d *device.Device, in, out uint64) {
	if err := d.UpdateCounter(oidInOctets1, in); err != nil {
		if !errors.Is(err, device.ErrStopped) {
			log.Printf("scenario: device %d: pump: %v", d.Port(), err)
		}
		return
	}
	if err := d.UpdateCounter(oidOutOctets1, out); err != nil && !errors.Is(err, device.ErrStopped) {
		log.Printf("scenario: device %d: pump: %v", d.Port(), err)
	}
}

// pumpAt schedules count traffic bumps spaced tick apart, the first
// after startDelay.
func (r *Runner) pumpAt(d *device.Device, startDelay, tick time.Duration, count int, in, out uint64) {
	if count < 1 {
		count = 1
	}
	for k := 0; k < count; k++ {
		r.after(startDelay+tick*time.Duration(k), func() { r.pump(d, in, out) })
	}
}

func (r *Runner) removeLater(d *device.Device, id string, delay time.Duration) {
	r.after(delay, func() {
		if _, err := d.RemoveCondition(id); err != nil && !errors.Is(err, device.ErrStopped) {
			log.Printf("scenario: device %d: remove %s: %v", d.Port(), id, err)
		}
	})
}

func (r *Runner) clearLater(d *device.Device, oid string, delay time.Duration) {
	r.after(delay, func() {
		if err := d.ClearGauge(oid); err != nil && !errors.Is(err, device.ErrStopped) {
			log.Printf("scenario: device %d: clear %s: %v", d.Port(), oid, err)
		}
	})
}

// after runs f once delay passes, unless the runner closes first.
func (r *Runner) after(delay time.Duration, f func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.tseq++
	id := r.tseq
	t := time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.timers, id)
		stopped := r.stopped
		r.mu.Unlock()
		if !stopped {
			f()
		}
	})
	r.timers[id] = t
}

func (r *Runner) nextID(scenarioType string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return fmt.Sprintf("%s-%d", scenarioType, r.seq)
}

func (r *Runner) between(lo, hi float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.rng.Float64()*(hi-lo)
}

func (r *Runner) perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Perm(n)
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
