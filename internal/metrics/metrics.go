// Package metrics exposes the Prometheus collectors for the core subsystems.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps every Prometheus collector the core updates.
type Registry struct {
	ActiveClients     prometheus.Gauge
	CommandsProcessed prometheus.Counter
	ProtocolErrors    prometheus.Counter
	PubSubChannels    prometheus.Gauge
	PubSubPatterns    prometheus.Gauge
	ReactorIterations prometheus.Counter
	ReactorFired      prometheus.Counter
	BgJobsPending     *prometheus.GaugeVec
	BgJobsProcessed   *prometheus.CounterVec
	ClientsClosedAsync prometheus.Counter
	ProcessRSSBytes   prometheus.Gauge
	ProcessCPUPercent prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Registry {
	return &Registry{
		ActiveClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kvstore_clients_active",
			Help: "Number of connected clients, including pubsub and replica clients.",
		}),
		CommandsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_commands_processed_total",
			Help: "Total number of commands dispatched by the protocol layer.",
		}),
		ProtocolErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_protocol_errors_total",
			Help: "Total number of malformed requests rejected by the parser.",
		}),
		PubSubChannels: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kvstore_pubsub_channels",
			Help: "Number of channels with at least one subscriber.",
		}),
		PubSubPatterns: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kvstore_pubsub_patterns",
			Help: "Number of active pattern subscriptions.",
		}),
		ReactorIterations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_reactor_iterations_total",
			Help: "Total number of event loop iterations.",
		}),
		ReactorFired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_reactor_events_fired_total",
			Help: "Total number of file and time events fired.",
		}),
		BgJobsPending: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kvstore_bgjobs_pending",
			Help: "Number of jobs queued or running for a background job type.",
		}, []string{"type"}),
		BgJobsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kvstore_bgjobs_processed_total",
			Help: "Total number of background jobs executed by type.",
		}, []string{"type"}),
		ClientsClosedAsync: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_clients_closed_async_total",
			Help: "Total number of clients scheduled for async close (output-buffer limits, errors).",
		}),
		ProcessRSSBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kvstore_process_rss_bytes",
			Help: "Resident set size of the server process.",
		}),
		ProcessCPUPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kvstore_process_cpu_percent",
			Help: "CPU percent sampled over the last collection interval.",
		}),
	}
}

// Handler returns an HTTP handler exposing the registry in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}
