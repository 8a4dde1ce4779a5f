package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notespad",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "notespad",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "notespad",
		Name:      "http_in_flight_requests",
		Help:      "Current number of in-flight HTTP requests",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "notespad",
		Name:      "active_sessions",
		Help:      "Currently attached WebSocket sessions",
	})

	wsMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notespad",
		Name:      "ws_messages_total",
		Help:      "Inbound WebSocket messages by type",
	}, []string{"type"})

	broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "notespad",
		Name:      "broadcasts_total",
		Help:      "Room broadcasts attempted",
	})

	noteSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notespad",
		Name:      "note_saves_total",
		Help:      "Debounced note persistence attempts by result",
	}, []string{"result"})
)

func SessionOpened()             { activeSessions.Inc() }
func SessionClosed()             { activeSessions.Dec() }
func MessageReceived(typ string) { wsMessages.WithLabelValues(typ).Inc() }
func BroadcastSent()             { broadcasts.Inc() }
func NoteSaved(result string)    { noteSaves.WithLabelValues(result).Inc() }

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack must pass through for the WebSocket upgrade to work behind the
// middleware.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics with Prometheus labels.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}
