package store

import (
	"strings"

	"github.com/gosnmp/gosnmp"
)

var docsIfSubtree = MustParseOID("1.3.6.1.2.1.10.127")

// AnalyzeBehavior assigns a default behavior to a walk record. Name-based
// rules fire on the record's own symbolic name when the line was
// MIB-qualified, falling back to a reverse lookup of the numeric OID.
// Anything unrecognized stays static.
func AnalyzeBehavior(rec WalkRecord) Behavior {
	name := strings.ToLower(objectName(rec))

	if rec.Type == gosnmp.TimeTicks || strings.Contains(name, "uptime") {
		return DefaultBehavior(UptimeCounter)
	}

	if strings.Contains(name, "octets") {
		return widen(DefaultBehavior(TrafficCounter), rec.Type)
	}
	if strings.Contains(name, "pkts") || strings.Contains(name, "packets") {
		b := widen(DefaultBehavior(PacketCounter), rec.Type)
		b.CounterpartOID = counterpartOctets(rec.OID, name)
		return b
	}
	if strings.Contains(name, "error") || strings.Contains(name, "discard") || strings.Contains(name, "drop") {
		return widen(DefaultBehavior(ErrorCounter), rec.Type)
	}

	if rec.OID.HasPrefix(docsIfSubtree) && (rec.Type == gosnmp.Gauge32 || rec.Type == gosnmp.Integer) {
		switch {
		case strings.Contains(name, "signalnoise"):
			return DefaultBehavior(SNRGauge)
		case strings.Contains(name, "power"):
			return DefaultBehavior(PowerGauge)
		case strings.Contains(name, "microreflections"):
			return DefaultBehavior(SignalGauge)
		}
	}

	if strings.Contains(name, "cpu") || strings.Contains(name, "processorload") {
		return DefaultBehavior(CPUGauge)
	}
	if strings.Contains(name, "temperature") {
		return DefaultBehavior(TemperatureGauge)
	}
	if strings.Contains(name, "utilization") {
		return DefaultBehavior(UtilizationGauge)
	}

	if rec.Type == gosnmp.Integer && statusEnumNames[name] {
		return DefaultBehavior(StatusEnum)
	}

	if rec.Type == gosnmp.Counter32 || rec.Type == gosnmp.Counter64 {
		return widen(conservativeCounter(), rec.Type)
	}

	return DefaultBehavior(StaticValue)
}

func widen(b Behavior, ber gosnmp.Asn1BER) Behavior {
	if ber == gosnmp.Counter64 {
		b.WrapBits = 64
	}
	return b
}

// packetOctetsColumns pairs each packet column with the octets column on the
// same ifTable/ifXTable row, so packet counters can track byte counters.
var packetOctetsColumns = map[string][2]string{
	"ifinucastpkts":      {"ifInUcastPkts", "ifInOctets"},
	"ifinnucastpkts":     {"ifInNUcastPkts", "ifInOctets"},
	"ifinmulticastpkts":  {"ifInMulticastPkts", "ifInOctets"},
	"ifinbroadcastpkts":  {"ifInBroadcastPkts", "ifInOctets"},
	"ifoutucastpkts":     {"ifOutUcastPkts", "ifOutOctets"},
	"ifoutnucastpkts":    {"ifOutNUcastPkts", "ifOutOctets"},
	"ifoutmulticastpkts": {"ifOutMulticastPkts", "ifOutOctets"},
	"ifoutbroadcastpkts": {"ifOutBroadcastPkts", "ifOutOctets"},
	"ifhcinucastpkts":    {"ifHCInUcastPkts", "ifHCInOctets"},
	"ifhcoutucastpkts":   {"ifHCOutUcastPkts", "ifHCOutOctets"},
}

func counterpartOctets(oid OID, name string) string {
	pair, ok := packetOctetsColumns[name]
	if !ok {
		return ""
	}
	pktBase, ok := LookupMIB("IF-MIB", pair[0])
	if !ok || !oid.HasPrefix(pktBase) {
		return ""
	}
	octBase, ok := LookupMIB("IF-MIB", pair[1])
	if !ok {
		return ""
	}
	return octBase.Append(oid[len(pktBase):]...).String()
}

// statusEnumNames lists operational-status objects whose value should track
// device health. Admin status and firmware status stay static: the first is
// operator-set, the second is driven by the upgrade state machine.
var statusEnumNames = map[string]bool{
	"ifoperstatus":        true,
	"docsifcmstatusvalue": true,
}

func objectName(rec WalkRecord) string {
	if rec.Name != "" {
		if i := strings.Index(rec.Name, "::"); i >= 0 {
			return rec.Name[i+2:]
		}
		return rec.Name
	}
	if _, object, ok := ResolveObject(rec.OID); ok {
		return object
	}
	return ""
}
