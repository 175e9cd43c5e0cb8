package handlers

import (
	"fmt"
	"net/http"

	"openfeedback/internal/engine/tenant"
)

type StatsSource interface {
	Stats() tenant.Stats
}

type MetricsHandler struct {
	resolver StatsSource
}

func NewMetricsHandler(resolver StatsSource) *MetricsHandler {
	return &MetricsHandler{resolver: resolver}
}

// Export writes resolver counters in the Prometheus text format.
func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	stats := h.resolver.Stats()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP openfeedback_up Is the server up\n")
	fmt.Fprintf(w, "# TYPE openfeedback_up gauge\n")
	fmt.Fprintf(w, "openfeedback_up 1\n")

	counters := []struct {
		name, help string
		value      uint64
	}{
		{"openfeedback_tenant_cache_hits_total", "Team lookups answered from the cache", stats.Hits},
		{"openfeedback_tenant_cache_misses_total", "Team lookups that went to the database", stats.Misses},
		{"openfeedback_tenant_cache_negative_hits_total", "Cache hits for subdomains without a team", stats.Negative},
		{"openfeedback_tenant_cache_corrupt_total", "Cache entries discarded as undecodable", stats.Corrupt},
		{"openfeedback_tenant_cache_errors_total", "Cache operations that failed", stats.Errors},
	}
	for _, c := range counters {
		fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", c.name)
		fmt.Fprintf(w, "%s %d\n", c.name, c.value)
	}
}
