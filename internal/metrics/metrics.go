// Package metrics publishes sync-run outcomes and archive aggregates
// as Prometheus gauges. A dedicated registry keeps the exported set to
// exactly these metrics, with no runtime noise, which matters for the
// textfile collector path.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/nhle/mail-archiver/internal/model"
)

// Recorder holds the gauge set for one archiver process.
type Recorder struct {
	registry *prometheus.Registry

	lastRun     prometheus.Gauge
	lastSuccess prometheus.Gauge
	duration    prometheus.Gauge
	archived    prometheus.Gauge
	errors      prometheus.Gauge
	success     prometheus.Gauge

	totalMessages prometheus.Gauge
	totalBytes    prometheus.Gauge
	uniqueSenders prometheus.Gauge

	senderMessages *prometheus.GaugeVec
	domainMessages *prometheus.GaugeVec
}

// NewRecorder creates a recorder with all gauges registered on a fresh
// registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailarch_last_run_timestamp_seconds",
			Help: "Unix time of the last sync run, successful or not.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailarch_last_success_timestamp_seconds",
			Help: "Unix time of the last successful sync run.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailarch_run_duration_seconds",
			Help: "Wall-clock duration of the last sync run.",
		}),
		archived: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailarch_run_archived_messages",
			Help: "Messages newly archived by the last sync run.",
		}),
		errors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailarch_run_errors",
			Help: "Per-message and per-folder errors in the last sync run.",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailarch_run_success",
			Help: "Whether the last sync run completed (1) or aborted (0).",
		}),
		totalMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailarch_messages_total",
			Help: "Messages in the archive index.",
		}),
		totalBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailarch_archive_bytes_total",
			Help: "Raw message bytes in the archive index.",
		}),
		uniqueSenders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailarch_unique_senders",
			Help: "Distinct sender addresses in the archive index.",
		}),
		senderMessages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mailarch_sender_messages",
			Help: "Message count for the most frequent senders.",
		}, []string{"sender"}),
		domainMessages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mailarch_domain_messages",
			Help: "Message count for the most frequent sender domains.",
		}, []string{"domain"}),
	}

	r.registry.MustRegister(
		r.lastRun, r.lastSuccess, r.duration,
		r.archived, r.errors, r.success,
		r.totalMessages, r.totalBytes, r.uniqueSenders,
		r.senderMessages, r.domainMessages,
	)
	return r
}

// Registry exposes the underlying registry for an HTTP /metrics handler.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordRun sets the per-run gauges from an aggregated sync result.
func (r *Recorder) RecordRun(archived, errors int, duration time.Duration, success bool) {
	now := float64(time.Now().Unix())
	r.lastRun.Set(now)
	r.duration.Set(duration.Seconds())
	r.archived.Set(float64(archived))
	r.errors.Set(float64(errors))
	if success {
		r.success.Set(1)
		r.lastSuccess.Set(now)
	} else {
		r.success.Set(0)
	}
}

// RecordTotals sets the archive-wide aggregate gauges.
func (r *Recorder) RecordTotals(t model.Totals) {
	r.totalMessages.Set(float64(t.Messages))
	r.totalBytes.Set(float64(t.Bytes))
	r.uniqueSenders.Set(float64(t.UniqueSenders))
}

// RecordTopSenders sets one labeled gauge per top sender. Previous
// label values are dropped first so senders that fell out of the top
// list do not linger.
func (r *Recorder) RecordTopSenders(senders []model.SenderCount) {
	r.senderMessages.Reset()
	for _, s := range senders {
		r.senderMessages.WithLabelValues(s.Sender).Set(float64(s.Count))
	}
}

// RecordTopDomains sets one labeled gauge per top sender domain.
func (r *Recorder) RecordTopDomains(domains []model.DomainCount) {
	r.domainMessages.Reset()
	for _, d := range domains {
		r.domainMessages.WithLabelValues(d.Domain).Set(float64(d.Count))
	}
}

// WriteTextfile writes the registry in the node_exporter textfile
// collector format. The write is atomic on the prometheus side.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}

// Push replaces this job's metric group on a Pushgateway.
func (r *Recorder) Push(url, job, instance string) error {
	p := push.New(url, job).Gatherer(r.registry)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.Push(); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
