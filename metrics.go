// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus collectors created by [NewMetrics].
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "rcon").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for command round trips.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry the collectors are registered with.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures [NewMetrics].
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the command duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "rcon",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors updated by [Conn] and [Session]. A nil *Metrics records
// nothing.
//
// Collectors are registered when the Metrics is created, so only one Metrics may exist per registry
// and namespace.
type Metrics struct {
	packetsSent     *prometheus.CounterVec
	packetsReceived *prometheus.CounterVec
	bytesSent       prometheus.Counter
	bytesReceived   prometheus.Counter
	errors          *prometheus.CounterVec
	auths           *prometheus.CounterVec
	commandDuration prometheus.Histogram
}

// NewMetrics creates and registers the collectors:
//   - rcon_packets_sent_total: Counter of packets written, by type
//   - rcon_packets_received_total: Counter of packets decoded, by type
//   - rcon_bytes_sent_total: Counter of bytes written to the socket
//   - rcon_bytes_received_total: Counter of bytes read from the socket
//   - rcon_errors_total: Counter of errors, by kind
//   - rcon_auth_total: Counter of authentication attempts, by result
//   - rcon_command_duration_seconds: Histogram of command round trips
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "packets_sent_total",
			Help:        "Total number of RCON packets written",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "packets_received_total",
			Help:        "Total number of RCON packets decoded",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "bytes_sent_total",
			Help:        "Total number of bytes written to RCON connections",
			ConstLabels: config.ConstLabels,
		}),

		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "bytes_received_total",
			Help:        "Total number of bytes read from RCON connections",
			ConstLabels: config.ConstLabels,
		}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "errors_total",
			Help:        "Total number of RCON errors by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		auths: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "auth_total",
			Help:        "Total number of authentication attempts by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		commandDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "command_duration_seconds",
			Help:        "Command request to response duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
	}
}

func (m *Metrics) recordSent(p Packet, n int64) {
	if m == nil {
		return
	}
	m.packetsSent.WithLabelValues(p.Type.String()).Inc()
	m.bytesSent.Add(float64(n))
}

func (m *Metrics) recordReceived(p Packet, n int64) {
	if m == nil {
		return
	}
	m.packetsReceived.WithLabelValues(p.Type.String()).Inc()
	m.bytesReceived.Add(float64(n))
}

// recordBytesReceived accounts for bytes of a packet that failed to decode.
func (m *Metrics) recordBytesReceived(n int64) {
	if m == nil {
		return
	}
	m.bytesReceived.Add(float64(n))
}

func (m *Metrics) recordError(err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(KindOf(err).String()).Inc()
}

func (m *Metrics) recordAuth(result string) {
	if m == nil {
		return
	}
	m.auths.WithLabelValues(result).Inc()
}

func (m *Metrics) recordCommand(d time.Duration) {
	if m == nil {
		return
	}
	m.commandDuration.Observe(d.Seconds())
}
