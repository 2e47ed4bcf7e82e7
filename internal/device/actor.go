// Package device runs one simulated SNMP agent per UDP port. Each device
// is a single goroutine that owns all mutable state; the socket read loop
// and the control surface only post messages into its inbox, so request
// handling, fault timers, upgrade transitions and management commands all
// serialize without locks.
package device

import (
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/awksedgreep/snmpherd/internal/faults"
	"github.com/awksedgreep/snmpherd/internal/metrics"
	"github.com/awksedgreep/snmpherd/internal/pdu"
	"github.com/awksedgreep/snmpherd/internal/sim"
	"github.com/awksedgreep/snmpherd/internal/store"
	"github.com/awksedgreep/snmpherd/internal/traps"
)

const (
	defaultInboxSize    = 256
	defaultUpgradeDelay = 2 * time.Second
	controlTimeout      = 5 * time.Second
)

const oidSwCurrentVers = "1.3.6.1.2.1.69.1.3.5.0"

var (
	// ErrStopped rejects control calls against a stopped device.
	ErrStopped = errors.New("device: stopped")
	// ErrBusy means the actor did not answer within the control timeout,
	// usually because a fault delay is sleeping the loop.
	ErrBusy = errors.New("device: control timeout")
)

// Config describes one device. Profiles is the only required field
// besides Port and DeviceType.
type Config struct {
	Port       int
	DeviceType string
	Host       string // bind address; empty binds every interface
	Community  string
	Profiles   *store.Registry
	Notifier   *traps.Manager // nil disables traps
	Seed       int64          // 0 derives the seed from the port
	InboxSize  int
	// UpgradeDelay is how long a triggered software upgrade takes to
	// reach completeFromMgt.
	UpgradeDelay time.Duration
	BufPool      *sync.Pool    // shared read buffers; nil allocates one
	OnExit       func(*Device) // runs after Stop finishes
}

// message is the inbox union. Exactly one field is set.
type message struct {
	packet     *gosnmp.SnmpPacket
	addr       *net.UDPAddr
	event      *faults.Event
	transition *pdu.Transition
	ctrl       *control
}

type ctrlOp int

const (
	opInfo ctrlOp = iota
	opReboot
	opUpdateCounter
	opSetGauge
	opClearGauge
	opInject
	opRemoveFault
	opClearFaults
	opFaultStats
	opConditions
)

type ctrlReply struct {
	data interface{}
	err  error
}

type control struct {
	op    ctrlOp
	oid   string
	id    string // condition id for opRemoveFault
	delta uint64
	value float64
	cfg   interface{}
	reply chan ctrlReply
}

// Device is one simulated agent bound to one UDP port.
type Device struct {
	port       int
	deviceType string
	host       string
	community  string
	mac        string

	profile  *store.Profile
	env      *sim.Env
	sets     *pdu.SetState
	injector *faults.Injector
	notifier *traps.Manager
	// gauges holds set_gauge overrides: the simulator runs with the
	// pinned value as its base, so jitter and correlations continue
	// around the new level.
	gauges map[string]float64

	conn    *net.UDPConn
	dec     *gosnmp.GoSNMP
	bufPool *sync.Pool
	inbox   chan message
	done    chan struct{}
	wg      sync.WaitGroup
	stopped atomic.Bool

	bootAt   time.Time
	lastSeen atomic.Int64 // unix nanos
	stats    Stats
	onExit   func(*Device)
}

// New builds a device and acquires its profile reference. The socket is
// not bound until Start.
func New(cfg Config) (*Device, error) {
	if cfg.Profiles == nil {
		return nil, errors.New("device: nil profile registry")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("device: port %d out of range", cfg.Port)
	}
	if cfg.Community == "" {
		cfg.Community = "public"
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	if cfg.UpgradeDelay <= 0 {
		cfg.UpgradeDelay = defaultUpgradeDelay
	}
	if cfg.BufPool == nil {
		cfg.BufPool = NewBufferPool()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = int64(cfg.Port)
	}
	prof, ok := cfg.Profiles.Acquire(cfg.DeviceType)
	if !ok {
		return nil, fmt.Errorf("device: no profile for device type %q", cfg.DeviceType)
	}

	d := &Device{
		port:       cfg.Port,
		deviceType: cfg.DeviceType,
		host:       cfg.Host,
		community:  cfg.Community,
		mac:        macForPort(cfg.Port),
		profile:    prof,
		env:        sim.NewEnv(cfg.DeviceType, seed),
		sets:       pdu.NewSetState(firmwareVersion(prof), cfg.UpgradeDelay),
		notifier:   cfg.Notifier,
		gauges:     make(map[string]float64),
		dec:        &gosnmp.GoSNMP{},
		bufPool:    cfg.BufPool,
		inbox:      make(chan message, cfg.InboxSize),
		done:       make(chan struct{}),
		onExit:     cfg.OnExit,
	}
	d.injector = faults.NewInjector(d.env.Rand, d.notifyFault)
	return d, nil
}

// NewBufferPool makes a read-buffer pool sized for SNMP datagrams. One
// pool is shared safely by every device.
func NewBufferPool() *sync.Pool {
	return &sync.Pool{New: func() interface{} { return make([]byte, 4096) }}
}

// Start binds the UDP socket and launches the actor and read loops.
func (d *Device) Start() error {
	if err := d.bind(); err != nil {
		d.profile.Release()
		return err
	}
	d.bootAt = time.Now()
	d.lastSeen.Store(d.bootAt.UnixNano())
	d.wg.Add(2)
	go d.run()
	go d.readLoop()
	d.notifier.DeviceBooted(d.deviceType, d.port)
	return nil
}

// Stop shuts the device down and releases its profile reference.
// Safe to call more than once and before Start.
func (d *Device) Stop() {
	if !d.stopped.CompareAndSwap(false, true) {
		return
	}
	close(d.done)
	if d.conn != nil {
		d.conn.Close()
	}
	d.wg.Wait()
	// Both goroutines are gone; cancel remaining fault timers.
	d.injector.ClearAll()
	d.profile.Release()
	if d.onExit != nil {
		d.onExit(d)
	}
}

// Port returns the device's UDP port.
func (d *Device) Port() int { return d.port }

// Type returns the device type the profile was resolved for.
func (d *Device) Type() string { return d.deviceType }

// LastSeen is the time of the most recent handled request.
func (d *Device) LastSeen() time.Time {
	return time.Unix(0, d.lastSeen.Load())
}

// Requests is the lifetime datagram count, used for activity tiering.
func (d *Device) Requests() int64 {
	return d.stats.packetsReceived.Load()
}

// Snapshot returns the traffic counters without going through the actor.
func (d *Device) Snapshot() StatsSnapshot {
	return d.stats.snapshot()
}

// Info asks the actor for a full description.
func (d *Device) Info() (Info, error) {
	r, err := d.post(&control{op: opInfo})
	if err != nil {
		return Info{}, err
	}
	return r.data.(Info), nil
}

// Reboot resets the device as a power cycle would.
func (d *Device) Reboot() error {
	_, err := d.post(&control{op: opReboot})
	return err
}

// UpdateCounter adds delta to one counter OID.
func (d *Device) UpdateCounter(oid string, delta uint64) error {
	_, err := d.post(&control{op: opUpdateCounter, oid: oid, delta: delta})
	return err
}

// SetGauge rebases one gauge (or status) OID to value. The simulator
// keeps running, so readings drift around the new level.
func (d *Device) SetGauge(oid string, value float64) error {
	_, err := d.post(&control{op: opSetGauge, oid: oid, value: value})
	return err
}

// ClearGauge drops the rebase override on one OID, returning it to the
// profile baseline.
func (d *Device) ClearGauge(oid string) error {
	_, err := d.post(&control{op: opClearGauge, oid: oid})
	return err
}

// InstallCondition adds a fault condition; cfg is one of the
// faults.*Config structs. Returns the generated condition id.
func (d *Device) InstallCondition(cfg interface{}) (string, error) {
	r, err := d.post(&control{op: opInject, cfg: cfg})
	if err != nil {
		return "", err
	}
	if r.err != nil {
		return "", r.err
	}
	return r.data.(string), nil
}

// RemoveCondition removes one fault condition by id. False means the id
// was not installed.
func (d *Device) RemoveCondition(id string) (bool, error) {
	r, err := d.post(&control{op: opRemoveFault, id: id})
	if err != nil {
		return false, err
	}
	return r.data.(bool), nil
}

// ClearConditions removes every installed fault condition.
func (d *Device) ClearConditions() (int, error) {
	r, err := d.post(&control{op: opClearFaults})
	if err != nil {
		return 0, err
	}
	return r.data.(int), nil
}

// FaultStatistics snapshots the injector counters.
func (d *Device) FaultStatistics() (faults.Statistics, error) {
	r, err := d.post(&control{op: opFaultStats})
	if err != nil {
		return faults.Statistics{}, err
	}
	return r.data.(faults.Statistics), nil
}

// Conditions lists installed fault conditions.
func (d *Device) Conditions() ([]faults.ConditionInfo, error) {
	r, err := d.post(&control{op: opConditions})
	if err != nil {
		return nil, err
	}
	return r.data.([]faults.ConditionInfo), nil
}

func (d *Device) post(c *control) (ctrlReply, error) {
	c.reply = make(chan ctrlReply, 1)
	select {
	case d.inbox <- message{ctrl: c}:
	case <-d.done:
		return ctrlReply{}, ErrStopped
	case <-time.After(controlTimeout):
		return ctrlReply{}, ErrBusy
	}
	select {
	case r := <-c.reply:
		if r.err != nil {
			return r, r.err
		}
		return r, nil
	case <-d.done:
		return ctrlReply{}, ErrStopped
	case <-time.After(controlTimeout):
		return ctrlReply{}, ErrBusy
	}
}

func (d *Device) run() {
	defer d.wg.Done()
	for {
		select {
		case msg := <-d.inbox:
			d.dispatch(msg)
		case <-d.done:
			return
		}
	}
}

func (d *Device) dispatch(msg message) {
	switch {
	case msg.packet != nil:
		d.handleRequest(msg.packet, msg.addr)
	case msg.event != nil:
		d.handleEvent(*msg.event)
	case msg.transition != nil:
		d.sets.ApplyTransition(*msg.transition)
	case msg.ctrl != nil:
		d.handleControl(msg.ctrl)
	}
}

func (d *Device) handleRequest(req *gosnmp.SnmpPacket, addr *net.UDPAddr) {
	start := time.Now()
	d.lastSeen.Store(start.UnixNano())

	// A panic in one handler must not kill the device.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("device %d: panic in %s handler: %v", d.port, pdu.OpName(req.PDUType), r)
			d.reply(pdu.ErrorResponse(req, gosnmp.GenErr, 0), addr, nil)
		}
	}()

	verdict := d.injector.Evaluate(requestOIDs(req), start)
	if verdict.FailedNow {
		d.failDevice("intermittent failure")
	}
	if verdict.Drop {
		d.stats.dropped.Add(1)
		return
	}
	if verdict.Delay > 0 {
		// Sleeping the actor serializes everything behind the delay,
		// which is what a slow device looks like.
		time.Sleep(verdict.Delay)
	}

	var resp *gosnmp.SnmpPacket
	if verdict.Status != gosnmp.NoError {
		// Auth still comes first; a bad community never learns the
		// device exists, injected errors included.
		if req.Community != d.community {
			d.stats.authFailures.Add(1)
			metrics.RecordAuthFailure()
			return
		}
		idx := int(verdict.ErrorIndex)
		if idx == 0 && len(req.Variables) > 0 {
			idx = 1
		}
		resp = pdu.ErrorResponse(req, verdict.Status, idx)
	} else {
		d.env.Uptime = start.Sub(d.bootAt)
		var err error
		resp, err = pdu.Process(req, d.view(), start)
		if err != nil {
			switch {
			case errors.Is(err, pdu.ErrBadCommunity):
				d.stats.authFailures.Add(1)
				metrics.RecordAuthFailure()
			case errors.Is(err, pdu.ErrUnsupportedVersion):
				d.stats.versionRejects.Add(1)
				metrics.RecordVersionReject()
			}
			return
		}
	}

	d.reply(resp, addr, verdict.Corrupt)

	op := pdu.OpName(req.PDUType)
	elapsed := time.Since(start)
	d.stats.processNanos.Add(elapsed.Nanoseconds())
	metrics.RecordPacket(op)
	metrics.RecordLatency(op, elapsed.Seconds())
}

func (d *Device) reply(resp *gosnmp.SnmpPacket, addr *net.UDPAddr, corrupt *faults.MalformedConfig) {
	if resp == nil {
		return
	}
	out, err := resp.MarshalMsg()
	if err != nil {
		log.Printf("device %d: marshal response: %v", d.port, err)
		return
	}
	if corrupt != nil {
		out = faults.Corrupt(out, *corrupt, d.env.Rand)
	}
	if _, err := d.conn.WriteToUDP(out, addr); err != nil {
		log.Printf("device %d: write response: %v", d.port, err)
		return
	}
	d.stats.responsesSent.Add(1)
	if resp.Error != gosnmp.NoError {
		d.stats.errorResponses.Add(1)
	}
}

func (d *Device) view() pdu.View {
	return pdu.View{
		Community: d.community,
		Profile:   d.profile,
		Simulate:  d.simulate,
		Sets:      d.sets,
		Schedule:  d.schedule,
	}
}

func (d *Device) simulate(n store.Node, now time.Time) (gosnmp.Asn1BER, interface{}) {
	if v, ok := d.gauges[n.Key]; ok {
		e := *n.Entry
		e.Value = pinBase(e.Type, v)
		n.Entry = &e
	}
	return sim.Value(n, d.profile, d.env, now)
}

// pinBase renders a pinned base value in the entry's natural Go type.
// Static entries pass their value straight to the wire, so a raw float
// must never reach the marshaler.
func pinBase(ber gosnmp.Asn1BER, v float64) interface{} {
	n := int64(math.Round(v))
	switch ber {
	case gosnmp.Counter64:
		if n < 0 {
			n = 0
		}
		return uint64(n)
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Uinteger32:
		if n < 0 {
			n = 0
		}
		return uint32(n)
	default:
		return int(n)
	}
}

// schedule posts an upgrade transition back into the inbox after its
// delay, so it applies on the actor goroutine.
func (d *Device) schedule(tr pdu.Transition) {
	time.AfterFunc(tr.After, func() {
		select {
		case d.inbox <- message{transition: &tr}:
		case <-d.done:
		}
	})
}

// notifyFault is the injector's Notify: it moves timer firings onto the
// actor goroutine.
func (d *Device) notifyFault(ev faults.Event) {
	select {
	case d.inbox <- message{event: &ev}:
	case <-d.done:
	}
}

func (d *Device) handleEvent(ev faults.Event) {
	rec := d.injector.Deliver(ev, time.Now())
	if rec == nil {
		return
	}
	d.applyRecovery(*rec, time.Now())
}

func (d *Device) applyRecovery(rec faults.Recovered, now time.Time) {
	// Power loss and reboot failures come back as a fresh boot; the
	// others keep their uptime and just restore health.
	rebooted := rec.Type == faults.FailPower || rec.Type == faults.FailReboot
	if rebooted {
		d.bootAt = now
		d.env.Reset()
	}
	switch rec.Behavior {
	case faults.RecoverGradual:
		d.env.SetHealth(0.7)
	case faults.RecoverResetCounters:
		d.env.SetHealth(1.0)
		d.env.ResetCounters()
	default:
		d.env.SetHealth(1.0)
	}
	if rebooted {
		d.notifier.DeviceBooted(d.deviceType, d.port)
	} else {
		d.notifier.DeviceRecovered(d.deviceType, d.port)
	}
	log.Printf("device %d (%s): recovered from %s failure (%s)",
		d.port, d.deviceType, rec.Type, rec.Behavior)
}

func (d *Device) handleControl(c *control) {
	switch c.op {
	case opInfo:
		c.reply <- ctrlReply{data: d.info()}
	case opReboot:
		d.reboot(time.Now())
		c.reply <- ctrlReply{}
	case opUpdateCounter:
		c.reply <- ctrlReply{err: d.updateCounter(c.oid, c.delta)}
	case opSetGauge:
		c.reply <- ctrlReply{err: d.setGauge(c.oid, c.value)}
	case opClearGauge:
		c.reply <- ctrlReply{err: d.clearGauge(c.oid)}
	case opInject:
		id, err := d.install(c.cfg, time.Now())
		c.reply <- ctrlReply{data: id, err: err}
	case opRemoveFault:
		c.reply <- ctrlReply{data: d.injector.RemoveID(c.id)}
	case opClearFaults:
		c.reply <- ctrlReply{data: d.injector.ClearAll()}
	case opFaultStats:
		c.reply <- ctrlReply{data: d.injector.Statistics()}
	case opConditions:
		c.reply <- ctrlReply{data: d.injector.Conditions()}
	}
}

func (d *Device) reboot(now time.Time) {
	d.bootAt = now
	d.env.Reset()
	d.sets.Reset()
	d.gauges = make(map[string]float64)
	d.injector.ClearAll()
	d.notifier.DeviceBooted(d.deviceType, d.port)
	log.Printf("device %d (%s): rebooted", d.port, d.deviceType)
}

func (d *Device) updateCounter(oid string, delta uint64) error {
	poid, err := store.ParseOID(oid)
	if err != nil {
		return err
	}
	e, ok := d.profile.Get(poid)
	if !ok {
		return fmt.Errorf("device %d: no such oid %s", d.port, poid)
	}
	if !e.Behavior.IsCounter() {
		return fmt.Errorf("device %d: %s is not a counter", d.port, poid)
	}
	d.env.AddOffset(poid.String(), delta)
	return nil
}

func (d *Device) setGauge(oid string, value float64) error {
	poid, err := store.ParseOID(oid)
	if err != nil {
		return err
	}
	e, ok := d.profile.Get(poid)
	if !ok {
		return fmt.Errorf("device %d: no such oid %s", d.port, poid)
	}
	if e.Behavior.IsCounter() {
		return fmt.Errorf("device %d: %s is a counter, use update-counter", d.port, poid)
	}
	d.gauges[poid.String()] = value
	return nil
}

// clearGauge is idempotent: clearing an OID that was never pinned is
// not an error, only an unparsable OID is.
func (d *Device) clearGauge(oid string) error {
	poid, err := store.ParseOID(oid)
	if err != nil {
		return err
	}
	delete(d.gauges, poid.String())
	return nil
}

func (d *Device) install(cfg interface{}, now time.Time) (string, error) {
	var (
		id   string
		kind faults.Kind
	)
	switch c := cfg.(type) {
	case faults.TimeoutConfig:
		id, kind = d.injector.InjectTimeout(c, now), faults.Timeout
	case faults.PacketLossConfig:
		id, kind = d.injector.InjectPacketLoss(c, now), faults.PacketLoss
	case faults.SNMPErrorConfig:
		id, kind = d.injector.InjectSNMPError(c, now), faults.SNMPError
	case faults.MalformedConfig:
		id, kind = d.injector.InjectMalformed(c, now), faults.Malformed
	case faults.DeviceFailureConfig:
		var down bool
		id, down = d.injector.InjectDeviceFailure(c, now)
		kind = faults.DeviceFailure
		if down {
			d.failDevice(string(c.Type))
		}
	default:
		return "", fmt.Errorf("device %d: unsupported condition type %T", d.port, cfg)
	}
	metrics.RecordFault(string(kind))
	log.Printf("device %d (%s): condition %s installed", d.port, d.deviceType, id)
	return id, nil
}

func (d *Device) failDevice(reason string) {
	d.env.SetHealth(0.1)
	d.notifier.DeviceDown(d.deviceType, d.port, reason)
	log.Printf("device %d (%s): down (%s)", d.port, d.deviceType, reason)
}

func (d *Device) info() Info {
	return Info{
		Port:       d.port,
		DeviceType: d.deviceType,
		Community:  d.community,
		MAC:        d.mac,
		Source:     d.profile.Source,
		OIDs:       d.profile.Len(),
		BootedAt:   d.bootAt,
		UptimeSec:  int64(time.Since(d.bootAt).Seconds()),
		LastSeen:   d.LastSeen(),
		Health:     d.env.Health(),
		Failed:     d.injector.Failed(),
		Conditions: d.injector.Active(),
		Stats:      d.stats.snapshot(),
	}
}

func requestOIDs(req *gosnmp.SnmpPacket) []string {
	oids := make([]string, 0, len(req.Variables))
	for _, vb := range req.Variables {
		oids = append(oids, strings.TrimPrefix(vb.Name, "."))
	}
	return oids
}

// macForPort derives a stable locally-administered MAC from the port, so
// the same port always presents the same hardware address.
func macForPort(port int) string {
	return fmt.Sprintf("02:53:48:44:%02x:%02x", (port>>8)&0xff, port&0xff)
}

// firmwareVersion seeds docsDevSwCurrentVers from the profile when the
// walk captured one.
func firmwareVersion(p *store.Profile) string {
	if e, ok := p.Get(store.MustParseOID(oidSwCurrentVers)); ok {
		if s, ok := e.Value.(string); ok && s != "" {
			return s
		}
	}
	return "1.0.0"
}
