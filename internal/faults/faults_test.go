package faults

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
)

var sysDescr = []string{"1.3.6.1.2.1.1.1.0"}

func newTestInjector(notify Notify) *Injector {
	return NewInjector(rand.New(rand.NewSource(1)), notify)
}

func TestInstallCountsAndRemoveClears(t *testing.T) {
	inj := newTestInjector(nil)
	now := time.Now()

	id := inj.InjectTimeout(TimeoutConfig{Probability: 0.5}, now)
	if id != "timeout-1" {
		t.Fatalf("id = %q, want timeout-1", id)
	}
	id2 := inj.InjectPacketLoss(PacketLossConfig{LossRate: 0.1}, now)
	if id2 != "packet_loss-2" {
		t.Fatalf("id = %q, want packet_loss-2", id2)
	}

	s := inj.Statistics()
	if s.TotalInjections != 2 || s.ActiveConditions != 2 {
		t.Fatalf("stats after install: %+v", s)
	}
	if s.ByKind[Timeout] != 1 || s.ByKind[PacketLoss] != 1 {
		t.Fatalf("by-kind counts wrong: %+v", s.ByKind)
	}

	if n := inj.ClearAll(); n != 2 {
		t.Fatalf("ClearAll removed %d, want 2", n)
	}
	s = inj.Statistics()
	if s.ActiveConditions != 0 {
		t.Fatalf("conditions left after clear: %d", s.ActiveConditions)
	}
	if s.TotalInjections != 2 {
		t.Fatalf("removal rewrote injection history: %d", s.TotalInjections)
	}
}

func TestPacketLossAlwaysAndNever(t *testing.T) {
	inj := newTestInjector(nil)
	now := time.Now()
	inj.InjectPacketLoss(PacketLossConfig{LossRate: 1}, now)
	for i := 0; i < 50; i++ {
		if v := inj.Evaluate(sysDescr, now); !v.Drop {
			t.Fatalf("request %d survived full loss", i)
		}
	}

	inj.ClearAll()
	inj.InjectPacketLoss(PacketLossConfig{LossRate: 0}, now)
	for i := 0; i < 50; i++ {
		if v := inj.Evaluate(sysDescr, now); v.Drop {
			t.Fatalf("request %d dropped at zero loss", i)
		}
	}
}

func TestTimeoutDelaysResponse(t *testing.T) {
	inj := newTestInjector(nil)
	now := time.Now()
	inj.InjectTimeout(TimeoutConfig{Probability: 1, Duration: 250 * time.Millisecond}, now)

	v := inj.Evaluate(sysDescr, now)
	if v.Drop {
		t.Fatal("timeout with duration should delay, not drop")
	}
	if v.Delay != 250*time.Millisecond {
		t.Fatalf("delay = %v, want 250ms", v.Delay)
	}

	inj.ClearAll()
	inj.InjectTimeout(TimeoutConfig{Probability: 1}, now)
	if v := inj.Evaluate(sysDescr, now); !v.Drop {
		t.Fatal("zero-duration timeout should swallow the request")
	}
}

func TestSNMPErrorVerdict(t *testing.T) {
	inj := newTestInjector(nil)
	now := time.Now()
	inj.InjectSNMPError(SNMPErrorConfig{Status: gosnmp.TooBig, Probability: 1, ErrorIndex: 2}, now)

	v := inj.Evaluate(sysDescr, now)
	if v.Status != gosnmp.TooBig || v.ErrorIndex != 2 {
		t.Fatalf("verdict %+v, want tooBig at index 2", v)
	}
	if v.Drop {
		t.Fatal("error condition must still respond")
	}
}

func TestTargetOIDFilter(t *testing.T) {
	inj := newTestInjector(nil)
	now := time.Now()
	inj.InjectSNMPError(SNMPErrorConfig{
		Status:      gosnmp.GenErr,
		Probability: 1,
		TargetOIDs:  []string{".1.3.6.1.2.1.2"},
	}, now)

	if v := inj.Evaluate([]string{"1.3.6.1.2.1.2.2.1.10.1"}, now); v.Status != gosnmp.GenErr {
		t.Fatal("targeted OID escaped injection")
	}
	if v := inj.Evaluate(sysDescr, now); v.Status != gosnmp.NoError {
		t.Fatal("untargeted OID got injected")
	}
	// Prefix match is on component boundaries, not string prefixes.
	if v := inj.Evaluate([]string{"1.3.6.1.2.1.25.1.1.0"}, now); v.Status != gosnmp.NoError {
		t.Fatal("sibling subtree matched the target prefix")
	}
}

func TestDeviceFailureLifecycle(t *testing.T) {
	inj := newTestInjector(nil)
	now := time.Now()

	id, down := inj.InjectDeviceFailure(DeviceFailureConfig{
		Type:     FailPower,
		Duration: time.Minute,
		Recovery: RecoverResetCounters,
	}, now)
	if !down {
		t.Fatal("probability-1 failure should trip at install")
	}
	if !inj.Failed() {
		t.Fatal("injector does not report the device down")
	}
	if v := inj.Evaluate(sysDescr, now); !v.Drop {
		t.Fatal("failed device answered a request")
	}

	rec := inj.Deliver(Event{ConditionID: id, Change: Recover}, now.Add(time.Minute))
	if rec == nil || rec.Behavior != RecoverResetCounters || rec.Type != FailPower {
		t.Fatalf("recovery = %+v", rec)
	}
	if inj.Failed() {
		t.Fatal("device still down after recovery")
	}
	if v := inj.Evaluate(sysDescr, now.Add(time.Minute)); v.Drop {
		t.Fatal("recovered device still dropping")
	}
	if inj.Statistics().DeviceFailures != 1 {
		t.Fatalf("failure count = %d", inj.Statistics().DeviceFailures)
	}
}

func TestOverloadSlowsInsteadOfDropping(t *testing.T) {
	inj := newTestInjector(nil)
	now := time.Now()
	inj.InjectDeviceFailure(DeviceFailureConfig{Type: FailOverload, Duration: time.Minute}, now)

	v := inj.Evaluate(sysDescr, now)
	if v.Drop {
		t.Fatal("overloaded device went dark")
	}
	if v.Delay < 200*time.Millisecond || v.Delay > 800*time.Millisecond {
		t.Fatalf("overload delay %v outside 200..800ms", v.Delay)
	}
}

func TestBurstLossRuns(t *testing.T) {
	inj := newTestInjector(nil)
	now := time.Now()
	inj.InjectPacketLoss(PacketLossConfig{
		LossRate:     1, // enter a burst on the first request
		Burst:        true,
		BurstSize:    3,
		RecoveryTime: time.Hour,
	}, now)

	drops := 0
	for i := 0; i < 10; i++ {
		if inj.Evaluate(sysDescr, now).Drop {
			drops++
		}
	}
	// One burst of exactly BurstSize, then latent for an hour.
	if drops != 3 {
		t.Fatalf("dropped %d requests, want one burst of 3", drops)
	}
	if s := inj.Statistics(); s.BurstEvents != 1 {
		t.Fatalf("burst events = %d, want 1", s.BurstEvents)
	}
}

func TestScheduledRecoveryNotifies(t *testing.T) {
	events := make(chan Event, 1)
	inj := newTestInjector(func(ev Event) { events <- ev })
	now := time.Now()

	id, _ := inj.InjectDeviceFailure(DeviceFailureConfig{Type: FailReboot, Duration: 20 * time.Millisecond}, now)

	select {
	case ev := <-events:
		if ev.ConditionID != id || ev.Change != Recover {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recovery event never fired")
	}
}

func TestRemoveCancelsTimers(t *testing.T) {
	events := make(chan Event, 1)
	inj := newTestInjector(func(ev Event) { events <- ev })
	now := time.Now()

	id, _ := inj.InjectDeviceFailure(DeviceFailureConfig{Type: FailReboot, Duration: 50 * time.Millisecond}, now)
	if !inj.RemoveID(id) {
		t.Fatal("remove failed")
	}
	select {
	case ev := <-events:
		t.Fatalf("cancelled timer still fired: %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestStaleEventIgnored(t *testing.T) {
	inj := newTestInjector(nil)
	if rec := inj.Deliver(Event{ConditionID: "device_failure-9", Change: Recover}, time.Now()); rec != nil {
		t.Fatalf("stale event produced %+v", rec)
	}
}

func TestCorruptModes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	// A plausible little BER frame: SEQUENCE, version, community, PDU.
	frame := []byte{
		0x30, 0x1a, 0x02, 0x01, 0x01, 0x04, 0x06, 'p', 'u', 'b', 'l', 'i', 'c',
		0xa2, 0x0d, 0x02, 0x01, 0x2a, 0x02, 0x01, 0x00, 0x02, 0x01, 0x00, 0x30, 0x00,
	}

	trunc := Corrupt(frame, MalformedConfig{Mode: CorruptTruncated, Severity: 0.5}, rng)
	if len(trunc) >= len(frame) {
		t.Fatalf("truncation kept %d of %d bytes", len(trunc), len(frame))
	}

	ber := Corrupt(frame, MalformedConfig{Mode: CorruptInvalidBER}, rng)
	if ber[0] != 0xff {
		t.Fatalf("sequence tag survived: %#x", ber[0])
	}

	comm := Corrupt(frame, MalformedConfig{Mode: CorruptWrongCommunity}, rng)
	if bytes.Contains(comm, []byte("public")) {
		t.Fatal("community string survived corruption")
	}

	pdu := Corrupt(frame, MalformedConfig{Mode: CorruptInvalidPDUType}, rng)
	if pdu[13] != 0xaf {
		t.Fatalf("pdu tag = %#x, want 0xaf", pdu[13])
	}

	vb := Corrupt(frame, MalformedConfig{Mode: CorruptVarbinds, Severity: 1}, rng)
	if bytes.Equal(vb[len(vb)/2:], frame[len(frame)/2:]) {
		t.Fatal("varbind bytes untouched")
	}
	if !bytes.Equal(frame[:5], []byte{0x30, 0x1a, 0x02, 0x01, 0x01}) {
		t.Fatal("corruption mutated the caller's frame")
	}
}

func TestParseCondition(t *testing.T) {
	kind, cfg, err := ParseCondition("snmp_error", []byte(`{"error":"noSuchName","probability":0.5,"target_oids":["1.3.6.1.2.1.2"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if kind != SNMPError {
		t.Fatalf("kind = %q", kind)
	}
	ec, ok := cfg.(SNMPErrorConfig)
	if !ok {
		t.Fatalf("config type %T", cfg)
	}
	if ec.Status != gosnmp.NoSuchName || ec.Probability != 0.5 || len(ec.TargetOIDs) != 1 {
		t.Fatalf("config = %+v", ec)
	}

	kind, cfg, err = ParseCondition("device_failure", []byte(`{"failure_type":"overload","duration_ms":5000,"recovery_behavior":"gradual"}`))
	if err != nil {
		t.Fatal(err)
	}
	fc := cfg.(DeviceFailureConfig)
	if kind != DeviceFailure || fc.Type != FailOverload || fc.Duration != 5*time.Second || fc.Recovery != RecoverGradual {
		t.Fatalf("config = %+v", fc)
	}

	if _, _, err := ParseCondition("gremlins", nil); err == nil {
		t.Fatal("unknown kind accepted")
	}
}
