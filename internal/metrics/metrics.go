// Package metrics exposes Prometheus counters and gauges for the server's
// request surface (SPEC_FULL.md §4.6 DOMAIN STACK addition), served at
// /debug/metrics alongside the teacher's existing /debug/pprof/ mount.
// Grounded on rclone-rclone's go.mod, which carries
// github.com/prometheus/client_golang as a dependency of the broader
// retrieval pack.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every counter/gauge the server updates, so call sites
// take one struct instead of package-level globals.
type Registry struct {
	BrowseRequests      prometheus.Counter
	SearchRequests      prometheus.Counter
	RangeRequestsServed prometheus.Counter
	SsdpAnnouncesSent   prometheus.Counter
	SystemUpdateID      prometheus.Gauge
}

// NewRegistry constructs and registers every metric against its own fresh
// prometheus.Registry, so multiple Server instances in the same process
// (as in tests) don't collide on the default global registry.
func NewRegistry() (*Registry, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	r := &Registry{
		BrowseRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dlnasrv_content_directory_browse_total",
			Help: "Total ContentDirectory Browse SOAP actions served.",
		}),
		SearchRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dlnasrv_content_directory_search_total",
			Help: "Total ContentDirectory Search SOAP actions served.",
		}),
		RangeRequestsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dlnasrv_http_range_requests_total",
			Help: "Total byte-range media GET/HEAD requests served.",
		}),
		SsdpAnnouncesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dlnasrv_ssdp_announces_total",
			Help: "Total ssdp:alive NOTIFY datagrams sent.",
		}),
		SystemUpdateID: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dlnasrv_system_update_id",
			Help: "Current ContentDirectory SystemUpdateID.",
		}),
	}
	reg.MustRegister(r.BrowseRequests, r.SearchRequests, r.RangeRequestsServed, r.SsdpAnnouncesSent, r.SystemUpdateID)
	return r, reg
}

// Handler returns the promhttp handler for reg, mountable at /debug/metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
