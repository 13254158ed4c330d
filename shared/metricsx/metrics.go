package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	requestTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "request_transitions_total",
			Help: "Total request status transitions.",
		},
		[]string{"from", "to"},
	)
	slaBreaches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sla_breaches_total",
			Help: "Total requests first observed past their deadline.",
		},
	)
	kafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag by topic.",
		},
		[]string{"topic", "group"},
	)
	influxWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influx_write_failures_total",
			Help: "Total InfluxDB write failures.",
		},
	)
	geocodeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "geocode_failures_total",
			Help: "Total reverse geocoding failures.",
		},
	)
	geocodeSuccess = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "geocode_success_total",
			Help: "Total reverse geocoding successes.",
		},
	)
	geocodeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geocode_latency_seconds",
			Help:    "Reverse geocoding latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	outboxDispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_dispatch_latency_seconds",
			Help:    "Outbox event dispatch latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	outboxDead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_dead_total",
			Help: "Total outbox events marked dead after exhausting retries.",
		},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
)

func Register() {
	prometheus.MustRegister(httpRequests, httpLatency, requestTransitions, slaBreaches, kafkaConsumerLag, influxWriteFailures, geocodeFailures, geocodeSuccess, geocodeLatency, outboxDispatchLatency, outboxDead, asynqQueueDepth)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

func IncRequestTransition(from string, to string) {
	requestTransitions.WithLabelValues(from, to).Inc()
}

func IncSLABreach() {
	slaBreaches.Inc()
}

func SetKafkaLag(topic string, group string, lag int64) {
	kafkaConsumerLag.WithLabelValues(topic, group).Set(float64(lag))
}

func IncInfluxWriteFailure() {
	influxWriteFailures.Inc()
}

func IncGeocodeFailure() {
	geocodeFailures.Inc()
}

func IncGeocodeSuccess() {
	geocodeSuccess.Inc()
}

func ObserveGeocodeLatency(d time.Duration) {
	geocodeLatency.Observe(d.Seconds())
}

func ObserveOutboxDispatchLatency(d time.Duration) {
	outboxDispatchLatency.Observe(d.Seconds())
}

func IncOutboxDead() {
	outboxDead.Inc()
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
