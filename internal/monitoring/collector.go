package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes relay and API metrics.
type Collector struct {
	meetingsActive    prometheus.Gauge
	participantsTotal prometheus.Gauge
	connectionsTotal  prometheus.Counter
	envelopesRelayed  *prometheus.CounterVec
	envelopesDropped  *prometheus.CounterVec
	recordingsStored  prometheus.Counter
	recordingBytes    prometheus.Counter
	sessionDuration   prometheus.Histogram
}

func NewCollector() *Collector {
	return &Collector{
		meetingsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "studylink_meetings_active",
			Help: "Number of meetings with at least one connected participant",
		}),

		participantsTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "studylink_participants_connected",
			Help: "Number of participants connected to the relay",
		}),

		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "studylink_relay_connections_total",
			Help: "Total number of WebSocket connections accepted",
		}),

		envelopesRelayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "studylink_envelopes_relayed_total",
			Help: "Envelopes forwarded by the relay, by kind",
		}, []string{"kind"}),

		envelopesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "studylink_envelopes_dropped_total",
			Help: "Envelopes dropped by the relay, by reason",
		}, []string{"reason"}),

		recordingsStored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "studylink_recordings_stored_total",
			Help: "Recording uploads persisted by the API",
		}),

		recordingBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "studylink_recording_bytes_total",
			Help: "Total recording bytes persisted by the API",
		}),

		sessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "studylink_session_duration_seconds",
			Help:    "Duration of participant relay sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
	}
}

func (c *Collector) SetMeetingsActive(n int)      { c.meetingsActive.Set(float64(n)) }
func (c *Collector) SetParticipants(n int)        { c.participantsTotal.Set(float64(n)) }
func (c *Collector) ConnectionAccepted()          { c.connectionsTotal.Inc() }
func (c *Collector) EnvelopeRelayed(kind string)  { c.envelopesRelayed.WithLabelValues(kind).Inc() }
func (c *Collector) EnvelopeDropped(reason string) {
	c.envelopesDropped.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordingStored(bytes int) {
	c.recordingsStored.Inc()
	c.recordingBytes.Add(float64(bytes))
}

func (c *Collector) ObserveSessionDuration(seconds float64) {
	c.sessionDuration.Observe(seconds)
}

// Handler returns the metrics scrape endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.Handler()
}
