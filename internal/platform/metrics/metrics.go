package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Backends records which storage, lock, and relay backends the process wired.
var Backends = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "donorlink_backend_info",
	Help: "Configured backend per concern (value is always 1)",
}, []string{"concern", "backend"})

// RecordBackend marks the backend chosen for a concern such as "store" or "locker".
func RecordBackend(concern, backend string) {
	Backends.WithLabelValues(concern, backend).Set(1)
}

// Handler exposes the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
