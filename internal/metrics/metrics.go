package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. It satisfies booking.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	bookings      *prometheus.CounterVec
	recurringRows prometheus.Counter
	httpDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		bookings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barbershop",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome.",
		}, []string{"outcome"}),
		recurringRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: "barbershop",
			Name:      "recurring_appointments_total",
			Help:      "Appointment rows created by weekly recurrence.",
		}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "barbershop",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

func (m *Metrics) BookingOutcome(outcome string) {
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecurringRows(n int) {
	if n > 0 {
		m.recurringRows.Add(float64(n))
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request latency labelled with the route template so that
// path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.httpDuration.
			WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
