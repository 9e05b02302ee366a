package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-wide metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service considers itself ready, 0 otherwise.",
	})
)

// Contract lifecycle metrics.
var (
	contractTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_transitions_total",
			Help: "Contract status transitions applied.",
		},
		[]string{"from", "to"},
	)

	contractSignaturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_signatures_total",
			Help: "Signatures captured, by signer role.",
		},
		[]string{"role"},
	)

	contractPaymentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "contract_payments_total",
		Help: "Payment records appended to contract ledgers.",
	})
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
		contractTransitionsTotal, contractSignaturesTotal, contractPaymentsTotal,
	)
}

// SetReady reports readiness as a gauge so probes and dashboards agree.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// ObserveTransition counts an applied status transition.
func ObserveTransition(from, to string) {
	contractTransitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveSignature counts a captured signature.
func ObserveSignature(role string) {
	contractSignaturesTotal.WithLabelValues(role).Inc()
}

// ObservePayment counts an appended payment record.
func ObservePayment() {
	contractPaymentsTotal.Inc()
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CanonicalPath collapses entity identifiers out of request paths so the
// path label stays low-cardinality.
func CanonicalPath(raw string) string {
	if raw == "" {
		return "/"
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if !strings.HasPrefix(raw, "/v1/contracts/") {
		return raw
	}
	rest := strings.TrimPrefix(raw, "/v1/contracts/")
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		if parts[0] == "events" || parts[0] == "" {
			return raw
		}
		return "/v1/contracts/:id"
	case 2:
		switch parts[1] {
		case "terms", "transition", "messages", "sign", "payments", "timeline":
			return "/v1/contracts/:id/" + parts[1]
		}
	}
	return raw
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter records the response code for labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE responses streamable through the instrumentation wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
