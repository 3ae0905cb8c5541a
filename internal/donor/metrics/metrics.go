package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the donor directory.
type Metrics struct {
	DonorsRegistered      prometheus.Counter
	RegistrationConflicts prometheus.Counter
	ContactsRecorded      *prometheus.CounterVec
	AvailabilityChanges   *prometheus.CounterVec
	SearchDuration        *prometheus.HistogramVec
}

// New creates and registers the donor metrics.
func New() *Metrics {
	return &Metrics{
		DonorsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "donorlink_donors_registered_total",
			Help: "Total number of donors registered",
		}),
		RegistrationConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "donorlink_donor_registration_conflicts_total",
			Help: "Registrations rejected because the email or phone was already registered",
		}),
		ContactsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "donorlink_donor_contacts_recorded_total",
			Help: "Request-independent donor contact outcomes",
		}, []string{"outcome"}),
		AvailabilityChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "donorlink_donor_availability_changes_total",
			Help: "Availability write-backs from the contact ledger",
		}, []string{"availability"}),
		SearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "donorlink_donor_search_duration_seconds",
			Help:    "Duration of directory queries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncrementRegistered() {
	m.DonorsRegistered.Inc()
}

func (m *Metrics) IncrementConflict() {
	m.RegistrationConflicts.Inc()
}

func (m *Metrics) IncrementContact(outcome string) {
	m.ContactsRecorded.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementAvailability(availability string) {
	m.AvailabilityChanges.WithLabelValues(availability).Inc()
}

// ObserveSearch records a directory query duration.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSearch(kind string, start time.Time) {
	m.SearchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
