// Package metrics exposes Prometheus collectors for the connection core and
// the loopback server. A nil *Metrics is valid and records nothing.
package metrics

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "minesync").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry receives the collectors.
	// Default: a fresh registry per Metrics.
	Registry *prometheus.Registry
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "minesync",
	}
}

// Metrics holds the collectors.
type Metrics struct {
	registry *prometheus.Registry

	framesReceived    *prometheus.CounterVec
	framesSent        *prometheus.CounterVec
	frameBytes        *prometheus.HistogramVec
	decodeErrors      *prometheus.CounterVec
	droppedSends      *prometheus.CounterVec
	reconnectAttempts prometheus.Counter
	reconnectGiveUps  prometheus.Counter
	keepaliveTimeouts prometheus.Counter
	cursorCoalesced   prometheus.Counter
	connectionState   prometheus.Gauge
	peers             prometheus.Gauge
}

// New registers the collectors and returns them.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}

	factory := promauto.With(config.Registry)
	counterOpts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}
	}
	gaugeOpts := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}
	}

	return &Metrics{
		registry: config.Registry,

		framesReceived: factory.NewCounterVec(
			counterOpts("frames_received_total", "Frames decoded from the transport"),
			[]string{"type"}),

		framesSent: factory.NewCounterVec(
			counterOpts("frames_sent_total", "Frames written to the transport"),
			[]string{"type"}),

		frameBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frame_bytes",
			Help:        "Size of frames on the wire",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(8, 4, 8),
		}, []string{"direction"}),

		decodeErrors: factory.NewCounterVec(
			counterOpts("decode_errors_total", "Inbound frames dropped because they could not be decoded"),
			[]string{"format"}),

		droppedSends: factory.NewCounterVec(
			counterOpts("dropped_sends_total", "Outbound messages dropped before reaching the transport"),
			[]string{"reason"}),

		reconnectAttempts: factory.NewCounter(
			counterOpts("reconnect_attempts_total", "Automatic reconnect attempts")),

		reconnectGiveUps: factory.NewCounter(
			counterOpts("reconnect_exhausted_total", "Times the reconnect attempt cap was reached")),

		keepaliveTimeouts: factory.NewCounter(
			counterOpts("keepalive_timeouts_total", "Connections closed because a ping went unanswered")),

		cursorCoalesced: factory.NewCounter(
			counterOpts("cursor_coalesced_total", "Local cursor positions dropped or replaced by the throttler")),

		connectionState: factory.NewGauge(
			gaugeOpts("connection_state", "Current connection state (0 idle, 1 connecting, 2 open, 3 closing, 4 closed)")),

		peers: factory.NewGauge(
			gaugeOpts("server_peers", "Peers connected to the loopback server")),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FrameReceived(kind string, size int) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind).Inc()
	m.frameBytes.WithLabelValues("in").Observe(float64(size))
}

func (m *Metrics) FrameSent(kind string, size int) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(kind).Inc()
	m.frameBytes.WithLabelValues("out").Observe(float64(size))
}

func (m *Metrics) DecodeError(format string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(format).Inc()
}

// DroppedSend counts an outbound message that was not written. Reasons
// used by the client are "not_connected" and "rate_limited".
func (m *Metrics) DroppedSend(reason string) {
	if m == nil {
		return
	}
	m.droppedSends.WithLabelValues(reason).Inc()
}

func (m *Metrics) ReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

func (m *Metrics) ReconnectGiveUp() {
	if m == nil {
		return
	}
	m.reconnectGiveUps.Inc()
}

func (m *Metrics) KeepaliveTimeout() {
	if m == nil {
		return
	}
	m.keepaliveTimeouts.Inc()
}

func (m *Metrics) CursorCoalesced() {
	if m == nil {
		return
	}
	m.cursorCoalesced.Inc()
}

func (m *Metrics) SetState(state int) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(state))
}

func (m *Metrics) PeerConnected() {
	if m == nil {
		return
	}
	m.peers.Inc()
}

func (m *Metrics) PeerDisconnected() {
	if m == nil {
		return
	}
	m.peers.Dec()
}

// Snapshot gathers every counter and gauge into a flat map keyed by
// metric name and labels, e.g. `minesync_frames_sent_total{type="ping"}`.
// Histograms report their sample count.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	if m == nil {
		return nil, nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			out[seriesName(mf.GetName(), metric)] = sampleValue(mf.GetType(), metric)
		}
	}
	return out, nil
}

func seriesName(name string, metric *dto.Metric) string {
	pairs := metric.GetLabel()
	if len(pairs) == 0 {
		return name
	}
	labels := make([]string, 0, len(pairs))
	for _, lp := range pairs {
		labels = append(labels, lp.GetName()+`="`+lp.GetValue()+`"`)
	}
	sort.Strings(labels)
	return name + "{" + strings.Join(labels, ",") + "}"
}

func sampleValue(typ dto.MetricType, metric *dto.Metric) float64 {
	switch typ {
	case dto.MetricType_COUNTER:
		return metric.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return metric.GetGauge().GetValue()
	case dto.MetricType_HISTOGRAM:
		return float64(metric.GetHistogram().GetSampleCount())
	default:
		return metric.GetUntyped().GetValue()
	}
}
