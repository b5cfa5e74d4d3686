package backend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"git.sr.ht/~whereswaldon/sensorview/sensors"
)

// Metrics instruments view loading. A nil *Metrics records nothing.
type Metrics struct {
	loadsTotal   *prometheus.CounterVec
	loadDuration *prometheus.HistogramVec
	sensors      prometheus.Gauge
	channels     prometheus.Gauge
	samples      prometheus.Gauge
	lastLoadUnix prometheus.Gauge
}

// NewMetrics registers the loader metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		loadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorview_loads_total",
			Help: "Sensor view loads by source and result.",
		}, []string{"source", "result"}),
		loadDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sensorview_load_duration_seconds",
			Help:    "Time taken to load a sensor view.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		sensors: f.NewGauge(prometheus.GaugeOpts{
			Name: "sensorview_sensors",
			Help: "Sensors in the most recently loaded view.",
		}),
		channels: f.NewGauge(prometheus.GaugeOpts{
			Name: "sensorview_channels",
			Help: "Channels in the most recently loaded view.",
		}),
		samples: f.NewGauge(prometheus.GaugeOpts{
			Name: "sensorview_samples",
			Help: "Readings in the most recently loaded view.",
		}),
		lastLoadUnix: f.NewGauge(prometheus.GaugeOpts{
			Name: "sensorview_last_load_timestamp_seconds",
			Help: "Unix time of the last successful load.",
		}),
	}
}

func (m *Metrics) observe(source string, started time.Time, view *sensors.MemoryView, err error) {
	if m == nil {
		return
	}
	m.loadDuration.WithLabelValues(source).Observe(time.Since(started).Seconds())
	if err != nil {
		m.loadsTotal.WithLabelValues(source, "error").Inc()
		return
	}
	m.loadsTotal.WithLabelValues(source, "ok").Inc()
	m.sensors.Set(float64(view.Sensors().Len()))
	m.channels.Set(float64(view.Channels().Len()))
	m.samples.Set(float64(view.SampleCount()))
	m.lastLoadUnix.SetToCurrentTime()
}
