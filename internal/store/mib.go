package store

// Built-in object dictionary for the MIB modules the walk parser recognizes.
// This is deliberately a small table of the objects that show up in device
// walks, not a MIB compiler: unknown names fail resolution and the owning
// line is dropped by the parser.

type mibModule struct {
	base    string            // module base prefix
	objects map[string]string // object name -> full numeric OID (no instance)
}

var mibModules = map[string]mibModule{
	"SNMPv2-SMI": {
		base: "1.3.6.1",
		objects: map[string]string{
			"internet":     "1.3.6.1",
			"directory":    "1.3.6.1.1",
			"mgmt":         "1.3.6.1.2",
			"mib-2":        "1.3.6.1.2.1",
			"experimental": "1.3.6.1.3",
			"private":      "1.3.6.1.4",
			"enterprises":  "1.3.6.1.4.1",
			"snmpV2":       "1.3.6.1.6",
		},
	},
	"SNMPv2-MIB": {
		base: "1.3.6.1.2.1.1",
		objects: map[string]string{
			"sysDescr":                "1.3.6.1.2.1.1.1",
			"sysObjectID":             "1.3.6.1.2.1.1.2",
			"sysUpTime":               "1.3.6.1.2.1.1.3",
			"sysContact":              "1.3.6.1.2.1.1.4",
			"sysName":                 "1.3.6.1.2.1.1.5",
			"sysLocation":             "1.3.6.1.2.1.1.6",
			"sysServices":             "1.3.6.1.2.1.1.7",
			"sysORLastChange":         "1.3.6.1.2.1.1.8",
			"sysORID":                 "1.3.6.1.2.1.1.9.1.2",
			"sysORDescr":              "1.3.6.1.2.1.1.9.1.3",
			"sysORUpTime":             "1.3.6.1.2.1.1.9.1.4",
			"snmpInPkts":              "1.3.6.1.2.1.11.1",
			"snmpOutPkts":             "1.3.6.1.2.1.11.2",
			"snmpInBadVersions":       "1.3.6.1.2.1.11.3",
			"snmpInBadCommunityNames": "1.3.6.1.2.1.11.4",
			"snmpInASNParseErrs":      "1.3.6.1.2.1.11.6",
			"snmpInGetRequests":       "1.3.6.1.2.1.11.15",
			"snmpInGetNexts":          "1.3.6.1.2.1.11.16",
			"snmpInSetRequests":       "1.3.6.1.2.1.11.17",
			"snmpOutGetResponses":     "1.3.6.1.2.1.11.28",
			"snmpOutTraps":            "1.3.6.1.2.1.11.29",
		},
	},
	"IF-MIB": {
		base: "1.3.6.1.2.1.2",
		objects: map[string]string{
			"ifNumber":           "1.3.6.1.2.1.2.1",
			"ifIndex":            "1.3.6.1.2.1.2.2.1.1",
			"ifDescr":            "1.3.6.1.2.1.2.2.1.2",
			"ifType":             "1.3.6.1.2.1.2.2.1.3",
			"ifMtu":              "1.3.6.1.2.1.2.2.1.4",
			"ifSpeed":            "1.3.6.1.2.1.2.2.1.5",
			"ifPhysAddress":      "1.3.6.1.2.1.2.2.1.6",
			"ifAdminStatus":      "1.3.6.1.2.1.2.2.1.7",
			"ifOperStatus":       "1.3.6.1.2.1.2.2.1.8",
			"ifLastChange":       "1.3.6.1.2.1.2.2.1.9",
			"ifInOctets":         "1.3.6.1.2.1.2.2.1.10",
			"ifInUcastPkts":      "1.3.6.1.2.1.2.2.1.11",
			"ifInNUcastPkts":     "1.3.6.1.2.1.2.2.1.12",
			"ifInDiscards":       "1.3.6.1.2.1.2.2.1.13",
			"ifInErrors":         "1.3.6.1.2.1.2.2.1.14",
			"ifInUnknownProtos":  "1.3.6.1.2.1.2.2.1.15",
			"ifOutOctets":        "1.3.6.1.2.1.2.2.1.16",
			"ifOutUcastPkts":     "1.3.6.1.2.1.2.2.1.17",
			"ifOutNUcastPkts":    "1.3.6.1.2.1.2.2.1.18",
			"ifOutDiscards":      "1.3.6.1.2.1.2.2.1.19",
			"ifOutErrors":        "1.3.6.1.2.1.2.2.1.20",
			"ifOutQLen":          "1.3.6.1.2.1.2.2.1.21",
			"ifName":             "1.3.6.1.2.1.31.1.1.1.1",
			"ifInMulticastPkts":  "1.3.6.1.2.1.31.1.1.1.2",
			"ifInBroadcastPkts":  "1.3.6.1.2.1.31.1.1.1.3",
			"ifOutMulticastPkts": "1.3.6.1.2.1.31.1.1.1.4",
			"ifOutBroadcastPkts": "1.3.6.1.2.1.31.1.1.1.5",
			"ifHCInOctets":       "1.3.6.1.2.1.31.1.1.1.6",
			"ifHCInUcastPkts":    "1.3.6.1.2.1.31.1.1.1.7",
			"ifHCOutOctets":      "1.3.6.1.2.1.31.1.1.1.10",
			"ifHCOutUcastPkts":   "1.3.6.1.2.1.31.1.1.1.11",
			"ifHighSpeed":        "1.3.6.1.2.1.31.1.1.1.15",
			"ifAlias":            "1.3.6.1.2.1.31.1.1.1.18",
		},
	},
	"IP-MIB": {
		base: "1.3.6.1.2.1.4",
		objects: map[string]string{
			"ipForwarding":      "1.3.6.1.2.1.4.1",
			"ipDefaultTTL":      "1.3.6.1.2.1.4.2",
			"ipInReceives":      "1.3.6.1.2.1.4.3",
			"ipInHdrErrors":     "1.3.6.1.2.1.4.4",
			"ipInAddrErrors":    "1.3.6.1.2.1.4.5",
			"ipForwDatagrams":   "1.3.6.1.2.1.4.6",
			"ipInUnknownProtos": "1.3.6.1.2.1.4.7",
			"ipInDiscards":      "1.3.6.1.2.1.4.8",
			"ipInDelivers":      "1.3.6.1.2.1.4.9",
			"ipOutRequests":     "1.3.6.1.2.1.4.10",
			"ipOutDiscards":     "1.3.6.1.2.1.4.11",
			"ipOutNoRoutes":     "1.3.6.1.2.1.4.12",
			"ipReasmTimeout":    "1.3.6.1.2.1.4.13",
			"ipReasmReqds":      "1.3.6.1.2.1.4.14",
			"ipReasmOKs":        "1.3.6.1.2.1.4.15",
			"ipReasmFails":      "1.3.6.1.2.1.4.16",
			"ipFragOKs":         "1.3.6.1.2.1.4.17",
			"ipFragFails":       "1.3.6.1.2.1.4.18",
			"ipFragCreates":     "1.3.6.1.2.1.4.19",
			"ipAdEntAddr":       "1.3.6.1.2.1.4.20.1.1",
			"ipAdEntIfIndex":    "1.3.6.1.2.1.4.20.1.2",
			"ipAdEntNetMask":    "1.3.6.1.2.1.4.20.1.3",
		},
	},
	"TCP-MIB": {
		base: "1.3.6.1.2.1.6",
		objects: map[string]string{
			"tcpRtoAlgorithm": "1.3.6.1.2.1.6.1",
			"tcpRtoMin":       "1.3.6.1.2.1.6.2",
			"tcpRtoMax":       "1.3.6.1.2.1.6.3",
			"tcpMaxConn":      "1.3.6.1.2.1.6.4",
			"tcpActiveOpens":  "1.3.6.1.2.1.6.5",
			"tcpPassiveOpens": "1.3.6.1.2.1.6.6",
			"tcpAttemptFails": "1.3.6.1.2.1.6.7",
			"tcpEstabResets":  "1.3.6.1.2.1.6.8",
			"tcpCurrEstab":    "1.3.6.1.2.1.6.9",
			"tcpInSegs":       "1.3.6.1.2.1.6.10",
			"tcpOutSegs":      "1.3.6.1.2.1.6.11",
			"tcpRetransSegs":  "1.3.6.1.2.1.6.12",
			"tcpInErrs":       "1.3.6.1.2.1.6.14",
			"tcpOutRsts":      "1.3.6.1.2.1.6.15",
		},
	},
	"UDP-MIB": {
		base: "1.3.6.1.2.1.7",
		objects: map[string]string{
			"udpInDatagrams":  "1.3.6.1.2.1.7.1",
			"udpNoPorts":      "1.3.6.1.2.1.7.2",
			"udpInErrors":     "1.3.6.1.2.1.7.3",
			"udpOutDatagrams": "1.3.6.1.2.1.7.4",
		},
	},
	"HOST-RESOURCES-MIB": {
		base: "1.3.6.1.2.1.25",
		objects: map[string]string{
			"hrSystemUptime":    "1.3.6.1.2.1.25.1.1",
			"hrSystemDate":      "1.3.6.1.2.1.25.1.2",
			"hrSystemNumUsers":  "1.3.6.1.2.1.25.1.5",
			"hrSystemProcesses": "1.3.6.1.2.1.25.1.6",
			"hrMemorySize":      "1.3.6.1.2.1.25.2.2",
			"hrStorageDescr":    "1.3.6.1.2.1.25.2.3.1.3",
			"hrStorageSize":     "1.3.6.1.2.1.25.2.3.1.5",
			"hrStorageUsed":     "1.3.6.1.2.1.25.2.3.1.6",
			"hrDeviceDescr":     "1.3.6.1.2.1.25.3.2.1.3",
			"hrProcessorLoad":   "1.3.6.1.2.1.25.3.3.1.2",
		},
	},
	"BRIDGE-MIB": {
		base: "1.3.6.1.2.1.17",
		objects: map[string]string{
			"dot1dBaseBridgeAddress": "1.3.6.1.2.1.17.1.1",
			"dot1dBaseNumPorts":      "1.3.6.1.2.1.17.1.2",
			"dot1dStpPriority":       "1.3.6.1.2.1.17.2.2",
			"dot1dStpPortState":      "1.3.6.1.2.1.17.2.15.1.3",
			"dot1dTpFdbAddress":      "1.3.6.1.2.1.17.4.3.1.1",
			"dot1dTpFdbPort":         "1.3.6.1.2.1.17.4.3.1.2",
		},
	},
	"ENTITY-MIB": {
		base: "1.3.6.1.2.1.47",
		objects: map[string]string{
			"entPhysicalDescr":     "1.3.6.1.2.1.47.1.1.1.1.2",
			"entPhysicalName":      "1.3.6.1.2.1.47.1.1.1.1.7",
			"entPhysicalSerialNum": "1.3.6.1.2.1.47.1.1.1.1.11",
			"entPhysicalMfgName":   "1.3.6.1.2.1.47.1.1.1.1.12",
			"entPhysicalModelName": "1.3.6.1.2.1.47.1.1.1.1.13",
		},
	},
	"DOCS-CABLE-DEVICE-MIB": {
		base: "1.3.6.1.2.1.69",
		objects: map[string]string{
			"docsDevRole":          "1.3.6.1.2.1.69.1.1.1",
			"docsDevDateTime":      "1.3.6.1.2.1.69.1.1.2",
			"docsDevSerialNumber":  "1.3.6.1.2.1.69.1.1.4",
			"docsDevSwServer":      "1.3.6.1.2.1.69.1.3.1",
			"docsDevSwFilename":    "1.3.6.1.2.1.69.1.3.2",
			"docsDevSwAdminStatus": "1.3.6.1.2.1.69.1.3.3",
			"docsDevSwOperStatus":  "1.3.6.1.2.1.69.1.3.4",
			"docsDevSwCurrentVers": "1.3.6.1.2.1.69.1.3.5",
		},
	},
	"DOCS-IF-MIB": {
		base: "1.3.6.1.2.1.10.127",
		objects: map[string]string{
			"docsIfDownChannelId":        "1.3.6.1.2.1.10.127.1.1.1.1.1",
			"docsIfDownChannelFrequency": "1.3.6.1.2.1.10.127.1.1.1.1.2",
			"docsIfDownChannelPower":     "1.3.6.1.2.1.10.127.1.1.1.1.6",
			"docsIfUpChannelId":          "1.3.6.1.2.1.10.127.1.1.2.1.1",
			"docsIfUpChannelFrequency":   "1.3.6.1.2.1.10.127.1.1.2.1.2",
			"docsIfSigQUnerroreds":       "1.3.6.1.2.1.10.127.1.1.4.1.2",
			"docsIfSigQCorrecteds":       "1.3.6.1.2.1.10.127.1.1.4.1.3",
			"docsIfSigQUncorrectables":   "1.3.6.1.2.1.10.127.1.1.4.1.4",
			"docsIfSigQSignalNoise":      "1.3.6.1.2.1.10.127.1.1.4.1.5",
			"docsIfSigQMicroreflections": "1.3.6.1.2.1.10.127.1.1.4.1.6",
			"docsIfCmStatusValue":        "1.3.6.1.2.1.10.127.1.2.2.1.1",
			"docsIfCmStatusTxPower":      "1.3.6.1.2.1.10.127.1.2.2.1.3",
			"docsIfCmStatusResets":       "1.3.6.1.2.1.10.127.1.2.2.1.4",
			"docsIfCmStatusLostSyncs":    "1.3.6.1.2.1.10.127.1.2.2.1.5",
		},
	},
}

// LookupMIB resolves MODULE + object name to the object's numeric OID.
func LookupMIB(module, object string) (OID, bool) {
	m, ok := mibModules[module]
	if !ok {
		return nil, false
	}
	s, ok := m.objects[object]
	if !ok {
		return nil, false
	}
	oid, err := ParseOID(s)
	if err != nil {
		return nil, false
	}
	return oid, true
}

// ModuleBase returns the base prefix registered for a module.
func ModuleBase(module string) (OID, bool) {
	m, ok := mibModules[module]
	if !ok {
		return nil, false
	}
	oid, err := ParseOID(m.base)
	if err != nil {
		return nil, false
	}
	return oid, true
}

type mibRef struct {
	oid    OID
	module string
	object string
}

var mibReverse = buildMIBReverse()

func buildMIBReverse() []mibRef {
	var refs []mibRef
	for modName, mod := range mibModules {
		for objName, s := range mod.objects {
			oid, err := ParseOID(s)
			if err != nil {
				continue
			}
			refs = append(refs, mibRef{oid: oid, module: modName, object: objName})
		}
	}
	return refs
}

// ResolveObject finds the longest dictionary prefix covering oid and returns
// its module and object name. Used by the behavior analyzer to classify
// numeric-only walk lines.
func ResolveObject(oid OID) (module, object string, ok bool) {
	bestLen := 0
	for _, ref := range mibReverse {
		if len(ref.oid) > bestLen && oid.HasPrefix(ref.oid) {
			module, object = ref.module, ref.object
			bestLen = len(ref.oid)
		}
	}
	return module, object, bestLen > 0
}
