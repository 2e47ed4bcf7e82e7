// Package metrics exposes the simulator's prometheus collectors. Everything
// registers on the default registry at init; the control API mounts
// promhttp.Handler to serve it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	devicesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "snmpherd_devices_active",
			Help: "Number of live device actors",
		},
	)

	devicesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snmpherd_devices_created_total",
			Help: "Devices spawned, by device type",
		},
		[]string{"device_type"},
	)

	devicesEvicted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snmpherd_devices_evicted_total",
			Help: "Devices removed from the pool, by reason",
		},
		[]string{"reason"},
	)

	devicesByTier = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snmpherd_devices_tier",
			Help: "Devices per activity tier",
		},
		[]string{"tier"},
	)

	packetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snmpherd_packets_total",
			Help: "SNMP requests processed, by operation",
		},
		[]string{"operation"},
	)

	decodeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snmpherd_decode_errors_total",
			Help: "Datagrams that failed SNMP decoding",
		},
	)

	versionRejects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snmpherd_version_rejects_total",
			Help: "Datagrams dropped for unsupported SNMP versions",
		},
	)

	authFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snmpherd_auth_failures_total",
			Help: "Requests dropped for community mismatch",
		},
	)

	queueDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snmpherd_queue_drops_total",
			Help: "Datagrams dropped on a full device inbox",
		},
	)

	faultsInjected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snmpherd_faults_injected_total",
			Help: "Fault conditions installed, by kind",
		},
		[]string{"kind"},
	)

	responseLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snmpherd_response_seconds",
			Help:    "Request handling latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(devicesActive)
	prometheus.MustRegister(devicesCreated)
	prometheus.MustRegister(devicesEvicted)
	prometheus.MustRegister(devicesByTier)
	prometheus.MustRegister(packetsTotal)
	prometheus.MustRegister(decodeErrors)
	prometheus.MustRegister(versionRejects)
	prometheus.MustRegister(authFailures)
	prometheus.MustRegister(queueDrops)
	prometheus.MustRegister(faultsInjected)
	prometheus.MustRegister(responseLatency)
}

// RecordDeviceCreated counts a spawn and bumps the active gauge.
func RecordDeviceCreated(deviceType string) {
	devicesCreated.WithLabelValues(deviceType).Inc()
	devicesActive.Inc()
}

// RecordDeviceRemoved counts an eviction/shutdown and drops the active gauge.
func RecordDeviceRemoved(reason string) {
	devicesEvicted.WithLabelValues(reason).Inc()
	devicesActive.Dec()
}

// SetTierCounts publishes the tier scan result.
func SetTierCounts(hot, warm, cold int) {
	devicesByTier.WithLabelValues("hot").Set(float64(hot))
	devicesByTier.WithLabelValues("warm").Set(float64(warm))
	devicesByTier.WithLabelValues("cold").Set(float64(cold))
}

// RecordPacket counts one handled request.
func RecordPacket(operation string) {
	packetsTotal.WithLabelValues(operation).Inc()
}

// RecordDecodeError counts an undecodable datagram.
func RecordDecodeError() { decodeErrors.Inc() }

// RecordVersionReject counts a dropped unsupported-version packet.
func RecordVersionReject() { versionRejects.Inc() }

// RecordAuthFailure counts a community mismatch.
func RecordAuthFailure() { authFailures.Inc() }

// RecordQueueDrop counts a datagram lost to inbox backpressure.
func RecordQueueDrop() { queueDrops.Inc() }

// RecordFault counts an installed fault condition.
func RecordFault(kind string) { faultsInjected.WithLabelValues(kind).Inc() }

// RecordLatency records request handling time.
func RecordLatency(operation string, seconds float64) {
	responseLatency.WithLabelValues(operation).Observe(seconds)
}
