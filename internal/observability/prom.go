package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eventreg"

var (
	httpBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
	dbBuckets   = []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	jobBuckets  = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
)

// Prom holds every collector the API and the worker export. A nil *Prom is
// valid and records nothing.
type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec

	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// result label is done, retry or failed
	JobDuration  *prometheus.HistogramVec
	JobResults   *prometheus.CounterVec
	JobsInFlight prometheus.Gauge

	RegistrationOutcomes *prometheus.CounterVec
}

func counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func histogramVec(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: counterVec("", "http_requests_total",
			"HTTP requests by method, route template and status.",
			"method", "route", "status"),
		RequestsDuration: histogramVec("", "http_request_duration_seconds",
			"HTTP request latency.", httpBuckets,
			"method", "route", "status"),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "HTTP requests currently being served.",
		}, []string{"method", "route"}),

		DbQueryDuration: histogramVec("db", "query_duration_seconds",
			"Store operation latency by logical op. Includes time spent waiting on row locks.", dbBuckets,
			"op", "status"),
		DbErrorsTotal: counterVec("db", "errors_total",
			"Store errors by logical op and class.",
			"op", "class"),

		JobDuration: histogramVec("jobs", "duration_seconds",
			"Outbox job execution time by type and result.", jobBuckets,
			"job_type", "result"),
		JobResults: counterVec("jobs", "results_total",
			"Outbox job attempts by type and result.",
			"job_type", "result"),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "in_flight",
			Help:      "Outbox jobs executing in this process.",
		}),

		RegistrationOutcomes: counterVec("registrations", "outcomes_total",
			"Register and cancel calls by operation and outcome.",
			"op", "outcome"),
	}

	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.DbQueryDuration, p.DbErrorsTotal,
		p.JobDuration, p.JobResults, p.JobsInFlight,
		p.RegistrationOutcomes,
	)

	return p
}

// GinHandleMiddleware labels requests by route template so ids in paths do
// not create new series. Requests that matched no route share one label.
func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if p == nil {
			ctx.Next()
			return
		}

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method

		inFlight := p.InFlight.WithLabelValues(method, route)
		inFlight.Inc()
		defer inFlight.Dec()

		start := time.Now()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
	}
}

// RegistrationOutcome counts one coordinator decision.
func (p *Prom) RegistrationOutcome(op, outcome string) {
	if p == nil {
		return
	}
	p.RegistrationOutcomes.WithLabelValues(op, outcome).Inc()
}

// TrackJob marks one job as executing until the returned func is called.
func (p *Prom) TrackJob() func() {
	if p == nil {
		return func() {}
	}
	p.JobsInFlight.Inc()
	return p.JobsInFlight.Dec
}

func (p *Prom) ObserveJob(jobType, result string, d time.Duration) {
	if p == nil {
		return
	}
	p.JobResults.WithLabelValues(jobType, result).Inc()
	p.JobDuration.WithLabelValues(jobType, result).Observe(d.Seconds())
}

// Handler serves the exposition format for g.
func Handler(g prometheus.Gatherer) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
