// Package traps delivers v2c lifecycle notifications for the device
// population: coldStart on boot, linkDown/linkUp around failures, and an
// optional periodic heartbeat. Notifications are fire-and-forget; a
// bounded queue decouples device goroutines from slow receivers, and
// overflow drops rather than blocks.
package traps

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/robfig/cron/v3"
)

// Standard notification OIDs (SNMPv2-MIB), plus the simulator's private
// enterprise arc for heartbeat and detail varbinds.
const (
	oidSysUpTime   = "1.3.6.1.2.1.1.3.0"
	oidSnmpTrapOID = "1.3.6.1.6.3.1.1.4.1.0"
	oidIfIndex     = "1.3.6.1.2.1.2.2.1.1.1"

	OIDColdStart = "1.3.6.1.6.3.1.1.5.1"
	OIDLinkDown  = "1.3.6.1.6.3.1.1.5.3"
	OIDLinkUp    = "1.3.6.1.6.3.1.1.5.4"

	OIDHeartbeat      = "1.3.6.1.4.1.55555.0.1"
	oidHerdDeviceType = "1.3.6.1.4.1.55555.1.1"
	oidHerdPort       = "1.3.6.1.4.1.55555.1.2"
	oidHerdReason     = "1.3.6.1.4.1.55555.1.3"
	oidHerdDevices    = "1.3.6.1.4.1.55555.1.4"
)

const queueSize = 1024

// Config says where notifications go.
type Config struct {
	Targets   []string // receiver host:port list; empty disables traps
	Community string
	Heartbeat time.Duration // 0 disables the heartbeat
	Timeout   time.Duration
	Retries   int
}

// Normalize fills defaults and validates targets.
func (c *Config) Normalize() error {
	if c.Community == "" {
		c.Community = "public"
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Heartbeat > 0 && c.Heartbeat < time.Second {
		return fmt.Errorf("traps: heartbeat %v below 1s", c.Heartbeat)
	}
	for _, t := range c.Targets {
		if _, _, err := parseTarget(t); err != nil {
			return err
		}
	}
	return nil
}

type event struct {
	trapOID  string
	varbinds []gosnmp.SnmpPDU
}

// Stats is a delivery snapshot.
type Stats struct {
	Sent    int64 `json:"sent"`
	Dropped int64 `json:"dropped"`
	Errors  int64 `json:"errors"`
	Queued  int   `json:"queued"`
}

// Manager owns the notification queue and sender. A nil Manager is valid
// and ignores everything, so callers never branch on traps being enabled.
type Manager struct {
	cfg     Config
	queue   chan event
	stop    chan struct{}
	wg      sync.WaitGroup
	cron    *cron.Cron
	started time.Time

	// DeviceCount feeds the heartbeat varbinds when set.
	DeviceCount func() int

	sent    atomic.Int64
	dropped atomic.Int64
	errors  atomic.Int64
}

// NewManager builds a manager, or nil when no targets are configured.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Targets) == 0 {
		return nil, nil
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &Manager{
		cfg:     cfg,
		queue:   make(chan event, queueSize),
		stop:    make(chan struct{}),
		started: time.Now(),
	}, nil
}

// Start launches the sender and, when configured, the heartbeat job.
func (m *Manager) Start() {
	if m == nil {
		return
	}
	m.wg.Add(1)
	go m.sendLoop()
	if m.cfg.Heartbeat > 0 {
		m.cron = cron.New()
		if _, err := m.cron.AddFunc(fmt.Sprintf("@every %s", m.cfg.Heartbeat), m.Heartbeat); err != nil {
			log.Printf("traps: heartbeat schedule: %v", err)
		} else {
			m.cron.Start()
		}
	}
	log.Printf("traps: sending to %s (heartbeat %v)", strings.Join(m.cfg.Targets, ","), m.cfg.Heartbeat)
}

// Stop halts the heartbeat and flushes what is already queued.
func (m *Manager) Stop() {
	if m == nil {
		return
	}
	if m.cron != nil {
		m.cron.Stop()
	}
	close(m.stop)
	m.wg.Wait()
}

// DeviceBooted emits coldStart.
func (m *Manager) DeviceBooted(deviceType string, port int) {
	m.enqueue(event{trapOID: OIDColdStart, varbinds: deviceVars(deviceType, port, "")})
}

// DeviceDown emits linkDown with the failure reason.
func (m *Manager) DeviceDown(deviceType string, port int, reason string) {
	vars := append([]gosnmp.SnmpPDU{
		{Name: oidIfIndex, Type: gosnmp.Integer, Value: 1},
	}, deviceVars(deviceType, port, reason)...)
	m.enqueue(event{trapOID: OIDLinkDown, varbinds: vars})
}

// DeviceRecovered emits linkUp.
func (m *Manager) DeviceRecovered(deviceType string, port int) {
	vars := append([]gosnmp.SnmpPDU{
		{Name: oidIfIndex, Type: gosnmp.Integer, Value: 1},
	}, deviceVars(deviceType, port, "")...)
	m.enqueue(event{trapOID: OIDLinkUp, varbinds: vars})
}

// Heartbeat emits the periodic liveness notification.
func (m *Manager) Heartbeat() {
	if m == nil {
		return
	}
	devices := 0
	if m.DeviceCount != nil {
		devices = m.DeviceCount()
	}
	m.enqueue(event{trapOID: OIDHeartbeat, varbinds: []gosnmp.SnmpPDU{
		{Name: oidHerdDevices, Type: gosnmp.Gauge32, Value: uint32(devices)},
	}})
}

// Statistics snapshots delivery counters.
func (m *Manager) Statistics() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		Sent:    m.sent.Load(),
		Dropped: m.dropped.Load(),
		Errors:  m.errors.Load(),
		Queued:  len(m.queue),
	}
}

func deviceVars(deviceType string, port int, reason string) []gosnmp.SnmpPDU {
	vars := []gosnmp.SnmpPDU{
		{Name: oidHerdDeviceType, Type: gosnmp.OctetString, Value: deviceType},
		{Name: oidHerdPort, Type: gosnmp.Integer, Value: port},
	}
	if reason != "" {
		vars = append(vars, gosnmp.SnmpPDU{Name: oidHerdReason, Type: gosnmp.OctetString, Value: reason})
	}
	return vars
}

func (m *Manager) enqueue(ev event) {
	if m == nil {
		return
	}
	select {
	case m.queue <- ev:
	default:
		if n := m.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Printf("traps: queue full, %d notifications dropped", n)
		}
	}
}

func (m *Manager) sendLoop() {
	defer m.wg.Done()
	for {
		select {
		case ev := <-m.queue:
			m.send(ev)
		case <-m.stop:
			// Flush whatever made it into the queue before shutdown.
			for {
				select {
				case ev := <-m.queue:
					m.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) send(ev event) {
	ticks := uint32((time.Since(m.started) / (10 * time.Millisecond)) & 0xffffffff)
	vars := append([]gosnmp.SnmpPDU{
		{Name: oidSysUpTime, Type: gosnmp.TimeTicks, Value: ticks},
		{Name: oidSnmpTrapOID, Type: gosnmp.ObjectIdentifier, Value: ev.trapOID},
	}, ev.varbinds...)

	for _, target := range m.cfg.Targets {
		if err := m.sendTo(target, vars); err != nil {
			m.errors.Add(1)
			log.Printf("traps: send to %s: %v", target, err)
			continue
		}
		m.sent.Add(1)
	}
}

func (m *Manager) sendTo(target string, vars []gosnmp.SnmpPDU) error {
	host, port, err := parseTarget(target)
	if err != nil {
		return err
	}
	client := &gosnmp.GoSNMP{
		Target:    host,
		Port:      port,
		Version:   gosnmp.Version2c,
		Community: m.cfg.Community,
		Timeout:   m.cfg.Timeout,
		Retries:   m.cfg.Retries,
	}
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Conn.Close()

	_, err = client.SendTrap(gosnmp.SnmpTrap{Variables: vars})
	return err
}

// parseTarget splits host:port, defaulting to the standard trap port.
func parseTarget(target string) (string, uint16, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", 0, fmt.Errorf("traps: empty target")
	}
	if !strings.Contains(target, ":") {
		return target, 162, nil
	}
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return "", 0, fmt.Errorf("traps: target %q: %w", target, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("traps: target %q: bad port %q", target, portStr)
	}
	return host, uint16(port), nil
}
