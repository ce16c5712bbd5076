package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all Prometheus metrics
type Registry struct {
	framesReceived    prometheus.Counter
	bytesReceived     prometheus.Counter
	parseErrors       prometheus.Counter
	unsupportedFrames prometheus.Counter
	normalizeErrors   prometheus.Counter
	recordsNormalized prometheus.Counter
	recordsApplied    prometheus.Counter
	recordsCoalesced  prometheus.Counter
	eventsEmitted     prometheus.Counter
	eventsDropped     prometheus.Counter
	alarmTransitions  *prometheus.CounterVec
	alarmEvalSkipped  prometheus.Counter
	persistErrors     prometheus.Counter
	persistDuration   prometheus.Histogram
	commandsSent      prometheus.Counter
	commandsRejected  prometheus.Counter
	reconnects        prometheus.Counter
	connectionState   prometheus.Gauge
	sensorsTracked    prometheus.Gauge
	websocketClients  prometheus.Gauge
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{
		framesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marine_gateway_frames_received_total",
			Help: "Total number of frames received from the bridge",
		}),
		bytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marine_gateway_bytes_received_total",
			Help: "Total number of bytes received from the bridge",
		}),
		parseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marine_gateway_parse_errors_total",
			Help: "Total number of frames rejected by checksum, CRC or field validation",
		}),
		unsupportedFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marine_gateway_unsupported_frames_total",
			Help: "Total number of frames carrying unknown sentence types or parameter groups",
		}),
		normalizeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marine_gateway_normalize_errors_total",
			Help: "Total number of decoded records rejected during normalization",
		}),
		recordsNormalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marine_gateway_records_normalized_total",
			Help: "Total number of canonical sensor records produced",
		}),
		recordsApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marine_gateway_records_applied_total",
			Help: "Total number of records applied to the state store",
		}),
		recordsCoalesced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marine_gateway_records_coalesced_total",
			Help: "Total number of records merged into a pending update within a throttle window",
		}),
		eventsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marine_gateway_change_events_total",
			Help: "Total number of change notifications emitted",
		}),
		eventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marine_gateway_change_events_dropped_total",
			Help: "Total number of change notifications dropped due to slow consumers",
		}),
		alarmTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marine_gateway_alarm_transitions_total",
			Help: "Total number of alarm state transitions by resulting level",
		}, []string{"level"}),
		alarmEvalSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marine_gateway_alarm_evaluations_skipped_total",
			Help: "Total number of alarm evaluations skipped due to an unresolved reference",
		}),
		persistErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marine_gateway_persist_errors_total",
			Help: "Total number of threshold and alarm state persistence errors",
		}),
		persistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "marine_gateway_persist_duration_seconds",
			Help:    "Duration of threshold and alarm state persistence operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		commandsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marine_gateway_commands_sent_total",
			Help: "Total number of autopilot commands transmitted to the bridge",
		}),
		commandsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marine_gateway_commands_rejected_total",
			Help: "Total number of autopilot commands rejected by validation or a full queue",
		}),
		reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marine_gateway_reconnects_total",
			Help: "Total number of bridge reconnection attempts",
		}),
		connectionState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "marine_gateway_connection_state",
			Help: "Bridge connection state (0 disconnected, 1 connecting, 2 connected, 3 error)",
		}),
		sensorsTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "marine_gateway_sensors_tracked",
			Help: "Number of sensor instances currently present in the state store",
		}),
		websocketClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "marine_gateway_websocket_clients",
			Help: "Number of connected WebSocket clients",
		}),
	}
}

// IncFramesReceived increments the frames received counter
func (r *Registry) IncFramesReceived() {
	r.framesReceived.Inc()
}

// AddBytesReceived adds to the bytes received counter
func (r *Registry) AddBytesReceived(n int64) {
	r.bytesReceived.Add(float64(n))
}

// IncParseErrors increments the parse errors counter
func (r *Registry) IncParseErrors() {
	r.parseErrors.Inc()
}

// IncUnsupportedFrames increments the unsupported frames counter
func (r *Registry) IncUnsupportedFrames() {
	r.unsupportedFrames.Inc()
}

// IncNormalizeErrors increments the normalization errors counter
func (r *Registry) IncNormalizeErrors() {
	r.normalizeErrors.Inc()
}

// IncRecordsNormalized increments the records normalized counter
func (r *Registry) IncRecordsNormalized() {
	r.recordsNormalized.Inc()
}

// IncRecordsApplied increments the records applied counter
func (r *Registry) IncRecordsApplied() {
	r.recordsApplied.Inc()
}

// IncRecordsCoalesced increments the records coalesced counter
func (r *Registry) IncRecordsCoalesced() {
	r.recordsCoalesced.Inc()
}

// IncEventsEmitted increments the change events counter
func (r *Registry) IncEventsEmitted() {
	r.eventsEmitted.Inc()
}

// IncEventsDropped increments the dropped change events counter
func (r *Registry) IncEventsDropped() {
	r.eventsDropped.Inc()
}

// IncAlarmTransitions increments the alarm transition counter for a level
func (r *Registry) IncAlarmTransitions(level string) {
	r.alarmTransitions.WithLabelValues(level).Inc()
}

// IncAlarmEvalSkipped increments the skipped alarm evaluations counter
func (r *Registry) IncAlarmEvalSkipped() {
	r.alarmEvalSkipped.Inc()
}

// IncPersistErrors increments the persistence errors counter
func (r *Registry) IncPersistErrors() {
	r.persistErrors.Inc()
}

// ObservePersistDuration records a persistence operation duration
func (r *Registry) ObservePersistDuration(seconds float64) {
	r.persistDuration.Observe(seconds)
}

// IncCommandsSent increments the commands sent counter
func (r *Registry) IncCommandsSent() {
	r.commandsSent.Inc()
}

// IncCommandsRejected increments the commands rejected counter
func (r *Registry) IncCommandsRejected() {
	r.commandsRejected.Inc()
}

// IncReconnects increments the reconnect attempts counter
func (r *Registry) IncReconnects() {
	r.reconnects.Inc()
}

// SetConnectionState sets the bridge connection state gauge
func (r *Registry) SetConnectionState(state float64) {
	r.connectionState.Set(state)
}

// SetSensorsTracked sets the tracked sensors gauge
func (r *Registry) SetSensorsTracked(n float64) {
	r.sensorsTracked.Set(n)
}

// SetWebsocketClients sets the connected WebSocket clients gauge
func (r *Registry) SetWebsocketClients(n float64) {
	r.websocketClients.Set(n)
}
