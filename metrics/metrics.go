package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClientMetrics groups the counters/histograms tracked for a single outbound
// HTTP client (used by MonitorRequest), same shape as the teacher's.
type ClientMetrics struct {
	RetryCount      *prometheus.GaugeVec
	FailureCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// QueueMetrics tracks the task store / worker pool (§4.E, §4.F).
type QueueMetrics struct {
	TasksCreated     *prometheus.CounterVec
	TasksCompleted   *prometheus.CounterVec
	TasksFailed      *prometheus.CounterVec
	TasksCancelled   prometheus.Counter
	TasksInFlight    prometheus.Gauge
	TasksPending     prometheus.Gauge
	TaskDurationSec  *prometheus.HistogramVec
	TaskQueueWaitSec prometheus.Histogram
}

// Metrics is the full set exposed by this service.
type Metrics struct {
	Version string

	HTTPRequestsInFlight prometheus.Gauge
	HTTPRequestCount     *prometheus.CounterVec
	HTTPRequestDurationS *prometheus.HistogramVec

	UploadBytesTotal prometheus.Counter
	UploadRejected   *prometheus.CounterVec

	Queue QueueMetrics

	Webhook ClientMetrics
}

func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "media_cleaner_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		}),
		HTTPRequestCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "media_cleaner_http_requests_total",
			Help: "Count of HTTP requests by route and status",
		}, []string{"route", "status"}),
		HTTPRequestDurationS: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "media_cleaner_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		}, []string{"route"}),
		UploadBytesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "media_cleaner_upload_bytes_total",
			Help: "Total bytes accepted via /upload",
		}),
		UploadRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "media_cleaner_upload_rejected_total",
			Help: "Count of uploads rejected by admission rule",
		}, []string{"reason"}),
		Queue: QueueMetrics{
			TasksCreated: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "media_cleaner_tasks_created_total",
				Help: "Count of tasks created by kind",
			}, []string{"kind"}),
			TasksCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "media_cleaner_tasks_completed_total",
				Help: "Count of tasks that reached COMPLETED by kind",
			}, []string{"kind"}),
			TasksFailed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "media_cleaner_tasks_failed_total",
				Help: "Count of tasks that reached FAILED by kind",
			}, []string{"kind"}),
			TasksCancelled: promauto.NewCounter(prometheus.CounterOpts{
				Name: "media_cleaner_tasks_cancelled_total",
				Help: "Count of tasks that reached CANCELLED",
			}),
			TasksInFlight: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "media_cleaner_tasks_processing",
				Help: "Number of tasks currently PROCESSING",
			}),
			TasksPending: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "media_cleaner_tasks_pending",
				Help: "Number of tasks currently PENDING",
			}),
			TaskDurationSec: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "media_cleaner_task_duration_seconds",
				Help:    "Wall-clock time from PROCESSING to a terminal status, by kind",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14),
			}, []string{"kind"}),
			TaskQueueWaitSec: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "media_cleaner_task_queue_wait_seconds",
				Help:    "Time a task spent PENDING before being claimed",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			}),
		},
		Webhook: ClientMetrics{
			RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "media_cleaner_webhook_retries",
				Help: "Most recent retry count for the completion webhook, by host",
			}, []string{"host"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "media_cleaner_webhook_failures_total",
				Help: "Count of failed webhook deliveries, by host and status",
			}, []string{"host", "status"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name: "media_cleaner_webhook_request_duration_seconds",
				Help: "Webhook delivery duration in seconds, by host",
			}, []string{"host"}),
		},
	}
}

var Metrics = NewMetrics()
