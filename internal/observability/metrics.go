package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	cyclesTotal *prometheus.CounterVec

	commandTotal    *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec

	historyChars    prometheus.Gauge
	historyMessages prometheus.Gauge

	notificationsTotal      *prometheus.CounterVec
	transcriptWriteDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			cyclesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tradebrain_cycles_total",
					Help: "Total agent cycles by outcome.",
				},
				[]string{"outcome"},
			),
			commandTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tradebrain_command_total",
					Help: "Total dispatched commands by command and status.",
				},
				[]string{"command", "status"},
			),
			commandDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tradebrain_command_duration_seconds",
					Help:    "Command dispatch duration in seconds by command.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"command"},
			),
			llmRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tradebrain_llm_requests_total",
					Help: "Total language model requests by provider and status.",
				},
				[]string{"provider", "status"},
			),
			llmRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tradebrain_llm_request_duration_seconds",
					Help:    "Language model request duration in seconds by provider.",
					Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
				},
				[]string{"provider"},
			),
			historyChars: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "tradebrain_history_chars",
					Help: "Serialized size of the conversation history in characters.",
				},
			),
			historyMessages: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "tradebrain_history_messages",
					Help: "Number of messages in the conversation history.",
				},
			),
			notificationsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tradebrain_notifications_total",
					Help: "Total operator notifications by status.",
				},
				[]string{"status"},
			),
			transcriptWriteDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "tradebrain_transcript_write_duration_seconds",
					Help:    "Transcript append duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.cyclesTotal,
			m.commandTotal,
			m.commandDuration,
			m.llmRequestsTotal,
			m.llmRequestDuration,
			m.historyChars,
			m.historyMessages,
			m.notificationsTotal,
			m.transcriptWriteDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordCycle counts one finished cycle. Outcome is "ok", "error" or "terminal".
func RecordCycle(outcome string) {
	getMetrics().cyclesTotal.WithLabelValues(outcome).Inc()
}

func RecordCommand(command string, duration time.Duration, success bool) {
	m := getMetrics()
	m.commandTotal.WithLabelValues(command, statusLabel(success)).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func RecordLLMRequest(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.llmRequestsTotal.WithLabelValues(provider, statusLabel(success)).Inc()
	m.llmRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func SetHistorySize(chars, messages int) {
	m := getMetrics()
	m.historyChars.Set(float64(chars))
	m.historyMessages.Set(float64(messages))
}

func RecordNotification(success bool) {
	getMetrics().notificationsTotal.WithLabelValues(statusLabel(success)).Inc()
}

func RecordTranscriptWrite(duration time.Duration) {
	getMetrics().transcriptWriteDuration.Observe(duration.Seconds())
}
