package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the standard Prometheus exposition handler, wired by
// pkg/rpc onto a shared echo instance's GET /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
