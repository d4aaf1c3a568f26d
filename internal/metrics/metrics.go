// Package metrics holds the Prometheus collectors for sitework. They register with
// the default registry and are served by the API at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TaskMutations counts task writes by operation and outcome (ok, invalid, forbidden,
// not_found, conflict, unavailable, error).
var TaskMutations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sitework",
	Name:      "task_mutations_total",
	Help:      "Task mutations by operation and outcome.",
}, []string{"op", "outcome"})

var TaskListLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "sitework",
	Name:      "task_list_seconds",
	Help:      "Time to build a role-scoped task list.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
}, []string{"role"})

// NotificationsEnqueued counts outbox inserts; failures are logged and swallowed.
var NotificationsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sitework",
	Name:      "notifications_enqueued_total",
	Help:      "Notifications written to the outbox, by result.",
}, []string{"result"})

// NotificationDeliveries counts delivery attempts by sender and result (delivered, retry, exhausted).
var NotificationDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sitework",
	Name:      "notification_deliveries_total",
	Help:      "Notification delivery attempts.",
}, []string{"sender", "result"})

var NotificationsPending = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sitework",
	Name:      "notifications_due",
	Help:      "Due notifications picked up by the last dispatcher poll.",
})

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sitework",
	Name:      "http_requests_total",
	Help:      "HTTP requests by method and status code.",
}, []string{"method", "code"})

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
