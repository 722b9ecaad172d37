package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketplace"

// Checkout holds the engine's business collectors. A nil *Checkout is a valid no-op.
type Checkout struct {
	Placed    *prometheus.CounterVec
	Failures  *prometheus.CounterVec
	Cancelled *prometheus.CounterVec
	Restocked prometheus.Counter
	Payments  *prometheus.CounterVec
	Duration  *prometheus.HistogramVec
}

func NewCheckout(reg prometheus.Registerer) *Checkout {
	m := &Checkout{
		Placed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "orders_placed_total",
			Help:      "Orders committed, by item source.",
		}, []string{"source"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "failures_total",
			Help:      "Rolled back checkouts, by item source and failure kind.",
		}, []string{"source", "kind"}),
		Cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "cancelled_total",
			Help:      "Orders cancelled, by actor capability.",
		}, []string{"actor"}),
		Restocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "restocked_units_total",
			Help:      "Units credited back to the ledger by cancellations.",
		}),
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "recorded_total",
			Help:      "Payment records created, by status.",
		}, []string{"status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "unit_of_work_duration_ms",
			Help:      "Unit of work latency in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(m.Placed, m.Failures, m.Cancelled, m.Restocked, m.Payments, m.Duration)
	return m
}

func (m *Checkout) OrderPlaced(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.Placed.WithLabelValues(source).Inc()
	m.Duration.WithLabelValues("place_order", "ok").Observe(ms(d))
}

func (m *Checkout) CheckoutFailed(source, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(source, kind).Inc()
	m.Duration.WithLabelValues("place_order", "error").Observe(ms(d))
}

func (m *Checkout) OrderCancelled(byAdmin bool, units int) {
	if m == nil {
		return
	}
	actor := "owner"
	if byAdmin {
		actor = "admin"
	}
	m.Cancelled.WithLabelValues(actor).Inc()
	m.Restocked.Add(float64(units))
}

func (m *Checkout) PaymentRecorded(status string) {
	if m == nil {
		return
	}
	m.Payments.WithLabelValues(status).Inc()
}

func (m *Checkout) Observe(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Duration.WithLabelValues(operation, outcome).Observe(ms(d))
}

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// Middleware records every request under the route label returned by route(r).
func (s *ServerMetrics) Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)
			h := route(r)
			s.Requests.WithLabelValues(h, strconv.Itoa(sr.status)).Inc()
			s.LatencyMS.WithLabelValues(h).Observe(ms(time.Since(start)))
		})
	}
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }

// Relay counts outbox traffic. A nil *Relay is a valid no-op.
type Relay struct {
	Published prometheus.Counter
	Failures  prometheus.Counter
	Backlog   prometheus.Gauge
}

func NewRelay(reg prometheus.Registerer) *Relay {
	m := &Relay{
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox records acknowledged by the broker.",
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "relay_failures_total",
			Help:      "Relay rounds that failed to fetch, publish or mark records.",
		}),
		Backlog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "last_batch_size",
			Help:      "Records fetched by the latest relay round.",
		}),
	}
	reg.MustRegister(m.Published, m.Failures, m.Backlog)
	return m
}

func (m *Relay) Round(fetched, published int, err error) {
	if m == nil {
		return
	}
	m.Backlog.Set(float64(fetched))
	m.Published.Add(float64(published))
	if err != nil {
		m.Failures.Inc()
	}
}
