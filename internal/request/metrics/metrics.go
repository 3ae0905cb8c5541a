package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for blood requests and the contact ledger.
type Metrics struct {
	RequestsCreated  *prometheus.CounterVec
	SnapshotSize     prometheus.Histogram
	NumberCollisions prometheus.Counter
	LedgerUpdates    *prometheus.CounterVec
	BatchSkipped     prometheus.Counter
	Completions      *prometheus.CounterVec
	PageViews        *prometheus.CounterVec
}

// New creates and registers the request metrics.
func New() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "donorlink_blood_requests_created_total",
			Help: "Blood requests created, by urgency",
		}, []string{"urgency"}),
		SnapshotSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "donorlink_blood_request_snapshot_size",
			Help:    "Number of donors frozen into each new request",
			Buckets: []float64{0, 1, 5, 10, 20, 30, 40, 50},
		}),
		NumberCollisions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "donorlink_blood_request_number_collisions_total",
			Help: "Request number collisions retried at creation",
		}),
		LedgerUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "donorlink_blood_request_ledger_updates_total",
			Help: "Contact ledger transitions, by new status",
		}, []string{"status"}),
		BatchSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "donorlink_blood_request_batch_skipped_total",
			Help: "Batch ledger entries skipped because the donor is not in the snapshot",
		}),
		Completions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "donorlink_blood_requests_completed_total",
			Help: "Requests closed, by final status",
		}, []string{"status"}),
		PageViews: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "donorlink_blood_request_page_views_total",
			Help: "Snapshot pages served, split by whether the page was in range",
		}, []string{"in_range"}),
	}
}

func (m *Metrics) IncrementCreated(urgency string, snapshot int) {
	m.RequestsCreated.WithLabelValues(urgency).Inc()
	m.SnapshotSize.Observe(float64(snapshot))
}

func (m *Metrics) IncrementCollision() {
	m.NumberCollisions.Inc()
}

func (m *Metrics) IncrementLedgerUpdate(status string) {
	m.LedgerUpdates.WithLabelValues(status).Inc()
}

func (m *Metrics) AddBatchSkipped(n int) {
	m.BatchSkipped.Add(float64(n))
}

func (m *Metrics) IncrementCompleted(status string) {
	m.Completions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementPageView(inRange bool) {
	m.PageViews.WithLabelValues(strconv.FormatBool(inRange)).Inc()
}
