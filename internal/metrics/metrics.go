// Registers:
//
//	#tradersentiment_pipeline_runs_total
//	#tradersentiment_stage_duration_seconds
//	#tradersentiment_panel_rows
//	#tradersentiment_http_requests_total
//	#tradersentiment_live_fetches_total
//	#tradersentiment_event_value
//	#go_* and process_* system metrics
//
// Exposes them through Handler, which the dashboard mounts on /metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once          sync.Once
	registry      *prometheus.Registry
	pipelineRuns  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	panelRows     prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	liveFetches   *prometheus.CounterVec
	eventValues   *prometheus.GaugeVec
)

func Init() {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		pipelineRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradersentiment_pipeline_runs_total",
				Help: "Number of panel builds by outcome",
			},
			[]string{"status"},
		)

		stageDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradersentiment_stage_duration_seconds",
				Help:    "Duration of pipeline and analytics stages",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"stage"},
		)

		panelRows = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradersentiment_panel_rows",
			Help: "Rows in the most recently built panel",
		})

		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradersentiment_http_requests_total",
				Help: "Dashboard requests by route and status code",
			},
			[]string{"route", "code"},
		)

		liveFetches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradersentiment_live_fetches_total",
				Help: "Live feed fetches by outcome",
			},
			[]string{"status"},
		)

		eventValues = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradersentiment_event_value",
				Help: "Last value of each gauge event emitted by the pipeline",
			},
			[]string{"component", "name"},
		)

		registry.MustRegister(pipelineRuns, stageDuration, panelRows, httpRequests, liveFetches, eventValues)
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Registry returns the registry backing Handler.
func Registry() *prometheus.Registry {
	Init()
	return registry
}

// ObservePipelineRun records a panel build and, on success, its size.
func ObservePipelineRun(rows int, err error) {
	Init()
	if err != nil {
		pipelineRuns.WithLabelValues("error").Inc()
		return
	}
	pipelineRuns.WithLabelValues("ok").Inc()
	panelRows.Set(float64(rows))
}

// ObserveStage records how long a named stage took.
func ObserveStage(stage string, d time.Duration) {
	Init()
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncrementRequest counts a dashboard response.
func IncrementRequest(route, code string) {
	Init()
	httpRequests.WithLabelValues(route, code).Inc()
}

// IncrementLiveFetch counts a live feed fetch by outcome.
func IncrementLiveFetch(ok bool) {
	Init()
	status := "ok"
	if !ok {
		status = "error"
	}
	liveFetches.WithLabelValues(status).Inc()
}

func setEventGauge(component, name string, v float64) {
	Init()
	eventValues.WithLabelValues(component, name).Set(v)
}
