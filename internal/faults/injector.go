package faults

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/gosnmp/gosnmp"
)

// Change is a scheduled condition transition.
type Change string

const (
	BurstOn  Change = "burst_on"
	BurstOff Change = "burst_off"
	Recover  Change = "recover"
)

// Event is a timer-fired transition. Timers run on their own goroutines;
// the owner's Notify forwards events into the device inbox and the device
// calls Deliver, so the transition applies on the owning goroutine.
type Event struct {
	ConditionID string
	Change      Change
}

// Notify forwards a fired event to the owning goroutine. Timers run it
// on their own goroutines, so blocking against the owner's inbox is
// safe; blocking forever is not.
type Notify func(Event)

// Recovered reports a device-failure condition clearing, so the owner can
// apply the configured recovery behavior.
type Recovered struct {
	Type     FailureType
	Behavior RecoveryBehavior
}

// Verdict is the outcome of evaluating one request against all installed
// conditions. Drop short-circuits; error status and corruption can apply
// together (an error response can still go out damaged).
type Verdict struct {
	Drop       bool
	Delay      time.Duration
	Status     gosnmp.SNMPError
	ErrorIndex uint8
	Corrupt    *MalformedConfig
	FailedNow  bool // a flapping failure tripped on this request
}

// Statistics is a snapshot of injector activity.
type Statistics struct {
	TotalInjections  int64          `json:"total_injections"`
	ByKind           map[Kind]int64 `json:"by_kind"`
	ActiveConditions int            `json:"active_conditions"`
	BurstEvents      int64          `json:"burst_events"`
	DeviceFailures   int64          `json:"device_failures"`
	LastInjection    time.Time      `json:"last_injection,omitempty"`
}

// ConditionInfo describes one installed condition for listings.
type ConditionInfo struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Installed time.Time `json:"installed"`
	Active    bool      `json:"active"` // bursting or currently failed
}

type condition struct {
	id        string
	kind      Kind
	installed time.Time

	timeout   *TimeoutConfig
	loss      *PacketLossConfig
	snmpErr   *SNMPErrorConfig
	malformed *MalformedConfig
	failure   *DeviceFailureConfig

	burstActive bool
	lossStreak  int
	latentUntil time.Time
	failed      bool
	timer       *time.Timer
}

// Injector holds one device's fault conditions. Not safe for concurrent
// use; the owning goroutine is the only caller.
type Injector struct {
	rng    *rand.Rand
	notify Notify

	conditions map[string]*condition
	order      []string
	seq        int

	totalInjections int64
	byKind          map[Kind]int64
	burstEvents     int64
	deviceFailures  int64
	lastInjection   time.Time
}

// NewInjector creates an empty injector. notify may be nil when no owner
// loop exists (tests evaluating pure probability paths).
func NewInjector(rng *rand.Rand, notify Notify) *Injector {
	return &Injector{
		rng:        rng,
		notify:     notify,
		conditions: make(map[string]*condition),
		byKind:     make(map[Kind]int64),
	}
}

func (inj *Injector) install(c *condition) string {
	inj.seq++
	c.id = fmt.Sprintf("%s-%d", c.kind, inj.seq)
	inj.conditions[c.id] = c
	inj.order = append(inj.order, c.id)
	inj.totalInjections++
	inj.byKind[c.kind]++
	inj.lastInjection = c.installed
	return c.id
}

// InjectTimeout installs a timeout condition and returns its id.
func (inj *Injector) InjectTimeout(cfg TimeoutConfig, now time.Time) string {
	cfg.normalize()
	c := &condition{kind: Timeout, installed: now, timeout: &cfg}
	id := inj.install(c)
	if cfg.BurstProbability > 0 {
		inj.scheduleChange(c, inj.latentDelay(&cfg), BurstOn)
	}
	return id
}

// InjectPacketLoss installs a packet-loss condition.
func (inj *Injector) InjectPacketLoss(cfg PacketLossConfig, now time.Time) string {
	cfg.normalize()
	return inj.install(&condition{kind: PacketLoss, installed: now, loss: &cfg})
}

// InjectSNMPError installs an error-response condition.
func (inj *Injector) InjectSNMPError(cfg SNMPErrorConfig, now time.Time) string {
	cfg.normalize()
	return inj.install(&condition{kind: SNMPError, installed: now, snmpErr: &cfg})
}

// InjectMalformed installs a response-corruption condition.
func (inj *Injector) InjectMalformed(cfg MalformedConfig, now time.Time) string {
	cfg.normalize()
	return inj.install(&condition{kind: Malformed, installed: now, malformed: &cfg})
}

// InjectDeviceFailure installs a failure condition. With probability 1 the
// device fails right away and recovery is scheduled; smaller probabilities
// make it flap, tripping per request. Returns the id and whether the
// device just went down.
func (inj *Injector) InjectDeviceFailure(cfg DeviceFailureConfig, now time.Time) (string, bool) {
	cfg.normalize()
	c := &condition{kind: DeviceFailure, installed: now, failure: &cfg}
	id := inj.install(c)
	if cfg.Probability >= 1 {
		inj.trip(c)
		return id, true
	}
	return id, false
}

func (inj *Injector) trip(c *condition) {
	c.failed = true
	inj.deviceFailures++
	inj.scheduleChange(c, c.failure.Duration, Recover)
}

// latentDelay spaces burst windows so the duty cycle approximates the
// configured burst probability.
func (inj *Injector) latentDelay(cfg *TimeoutConfig) time.Duration {
	p := cfg.BurstProbability
	if p >= 1 {
		return 100 * time.Millisecond
	}
	latent := float64(cfg.BurstDuration) * (1/p - 1) * (0.5 + inj.rng.Float64())
	if latent < float64(100*time.Millisecond) {
		latent = float64(100 * time.Millisecond)
	}
	return time.Duration(latent)
}

func (inj *Injector) scheduleChange(c *condition, delay time.Duration, ch Change) {
	if inj.notify == nil {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	id := c.id
	notify := inj.notify
	c.timer = time.AfterFunc(delay, func() {
		notify(Event{ConditionID: id, Change: ch})
	})
}

// Deliver applies a scheduled transition. Events for removed conditions
// are ignored (the timer raced the removal). Returns recovery details
// when a device failure just cleared.
func (inj *Injector) Deliver(ev Event, now time.Time) *Recovered {
	c, ok := inj.conditions[ev.ConditionID]
	if !ok {
		return nil
	}
	switch ev.Change {
	case BurstOn:
		if c.kind != Timeout || c.timeout == nil {
			return nil
		}
		c.burstActive = true
		inj.burstEvents++
		inj.scheduleChange(c, c.timeout.BurstDuration, BurstOff)
	case BurstOff:
		if c.kind != Timeout || c.timeout == nil {
			return nil
		}
		c.burstActive = false
		inj.scheduleChange(c, inj.latentDelay(c.timeout), BurstOn)
	case Recover:
		if c.kind != DeviceFailure || !c.failed {
			return nil
		}
		c.failed = false
		return &Recovered{Type: c.failure.Type, Behavior: c.failure.Recovery}
	}
	return nil
}

// Evaluate runs one request's OIDs through every installed condition.
// Failures dominate, then packet loss, then timeouts; error status and
// corruption stack on an otherwise surviving response.
func (inj *Injector) Evaluate(oids []string, now time.Time) Verdict {
	var v Verdict
	for _, id := range inj.order {
		c := inj.conditions[id]
		if c.kind != DeviceFailure {
			continue
		}
		f := c.failure
		if !c.failed && f.Probability < 1 && inj.rng.Float64() < f.Probability {
			inj.trip(c)
			v.FailedNow = true
		}
		if !c.failed {
			continue
		}
		if f.Type == FailOverload {
			d := 200*time.Millisecond + time.Duration(inj.rng.Int63n(int64(600*time.Millisecond)))
			if d > v.Delay {
				v.Delay = d
			}
			continue
		}
		v.Drop = true
		return v
	}

	for _, id := range inj.order {
		c := inj.conditions[id]
		if c.kind != PacketLoss || !matchesTargets(oids, c.loss.TargetOIDs) {
			continue
		}
		if c.loss.Burst {
			if c.burstActive {
				c.lossStreak++
				if c.lossStreak >= c.loss.BurstSize {
					c.burstActive = false
					c.lossStreak = 0
					c.latentUntil = now.Add(c.loss.RecoveryTime)
				}
				v.Drop = true
				return v
			}
			if now.After(c.latentUntil) && inj.rng.Float64() < c.loss.LossRate {
				c.burstActive = true
				c.lossStreak = 1
				inj.burstEvents++
				v.Drop = true
				return v
			}
			continue
		}
		if inj.rng.Float64() < c.loss.LossRate {
			v.Drop = true
			return v
		}
	}

	for _, id := range inj.order {
		c := inj.conditions[id]
		if c.kind != Timeout || !matchesTargets(oids, c.timeout.TargetOIDs) {
			continue
		}
		p := c.timeout.Probability
		if c.burstActive {
			p = 1
		}
		if inj.rng.Float64() >= p {
			continue
		}
		if c.timeout.Duration <= 0 {
			v.Drop = true
			return v
		}
		if c.timeout.Duration > v.Delay {
			v.Delay = c.timeout.Duration
		}
	}

	for _, id := range inj.order {
		c := inj.conditions[id]
		switch c.kind {
		case SNMPError:
			if v.Status == gosnmp.NoError && matchesTargets(oids, c.snmpErr.TargetOIDs) && inj.rng.Float64() < c.snmpErr.Probability {
				v.Status = c.snmpErr.Status
				v.ErrorIndex = uint8(c.snmpErr.ErrorIndex)
			}
		case Malformed:
			if v.Corrupt == nil && matchesTargets(oids, c.malformed.TargetOIDs) && inj.rng.Float64() < c.malformed.Probability {
				cfg := *c.malformed
				v.Corrupt = &cfg
			}
		}
	}
	return v
}

// Failed reports whether any failure condition currently holds the device
// down (overload counts as up but slow).
func (inj *Injector) Failed() bool {
	for _, c := range inj.conditions {
		if c.kind == DeviceFailure && c.failed && c.failure.Type != FailOverload {
			return true
		}
	}
	return false
}

// Remove drops every condition of one kind, returning how many went.
func (inj *Injector) Remove(kind Kind) int {
	removed := 0
	for _, id := range append([]string(nil), inj.order...) {
		if inj.conditions[id].kind == kind {
			inj.RemoveID(id)
			removed++
		}
	}
	return removed
}

// RemoveID drops a single condition by id.
func (inj *Injector) RemoveID(id string) bool {
	c, ok := inj.conditions[id]
	if !ok {
		return false
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	delete(inj.conditions, id)
	for i, o := range inj.order {
		if o == id {
			inj.order = append(inj.order[:i], inj.order[i+1:]...)
			break
		}
	}
	return true
}

// ClearAll removes every condition.
func (inj *Injector) ClearAll() int {
	n := len(inj.order)
	for _, id := range append([]string(nil), inj.order...) {
		inj.RemoveID(id)
	}
	return n
}

// Active returns the number of installed conditions.
func (inj *Injector) Active() int { return len(inj.conditions) }

// Conditions lists installed conditions in install order.
func (inj *Injector) Conditions() []ConditionInfo {
	out := make([]ConditionInfo, 0, len(inj.order))
	for _, id := range inj.order {
		c := inj.conditions[id]
		out = append(out, ConditionInfo{
			ID:        c.id,
			Kind:      c.kind,
			Installed: c.installed,
			Active:    c.burstActive || c.failed,
		})
	}
	return out
}

// Statistics snapshots injector activity.
func (inj *Injector) Statistics() Statistics {
	byKind := make(map[Kind]int64, len(inj.byKind))
	for k, n := range inj.byKind {
		byKind[k] = n
	}
	return Statistics{
		TotalInjections:  inj.totalInjections,
		ByKind:           byKind,
		ActiveConditions: len(inj.conditions),
		BurstEvents:      inj.burstEvents,
		DeviceFailures:   inj.deviceFailures,
		LastInjection:    inj.lastInjection,
	}
}
