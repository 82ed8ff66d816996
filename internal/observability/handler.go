package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns a Prometheus exposition handler over the default
// registry, for mounting at /metrics. Neither cmd/server nor cmd/worker
// mounts it.
func Handler() http.Handler {
	return promhttp.Handler()
}
