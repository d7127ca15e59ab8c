package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	chatMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apptchat",
			Name:      "chat_messages_total",
			Help:      "Processed chat messages by source.",
		},
		[]string{"source"},
	)

	functionCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apptchat",
			Name:      "function_calls_total",
			Help:      "Engine function calls requested by the model, by name and outcome.",
		},
		[]string{"function", "outcome"},
	)

	llmRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apptchat",
			Name:      "llm_requests_total",
			Help:      "Provider completions by outcome.",
		},
		[]string{"provider", "outcome"},
	)

	llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apptchat",
			Name:      "llm_request_duration_seconds",
			Help:      "Provider completion latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apptchat",
			Name:      "bookings_total",
			Help:      "Booking operations by status.",
		},
		[]string{"status"},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "apptchat",
			Name:      "booking_conflicts_total",
			Help:      "Create attempts rejected because the slot was taken.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apptchat",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			chatMessages,
			functionCalls,
			llmRequests,
			llmLatency,
			bookings,
			bookingConflicts,
			httpRequests,
		)
	})
}

func IncChatMessage(source string) {
	chatMessages.WithLabelValues(source).Inc()
}

func IncFunctionCall(function, outcome string) {
	functionCalls.WithLabelValues(function, outcome).Inc()
}

func ObserveLLMRequest(provider, outcome string, elapsed time.Duration) {
	llmRequests.WithLabelValues(provider, outcome).Inc()
	llmLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func IncBooking(status string) {
	bookings.WithLabelValues(status).Inc()
}

func IncConflict() {
	bookingConflicts.Inc()
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
