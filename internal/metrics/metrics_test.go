package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegistered(t *testing.T) {
	TaskMutations.WithLabelValues("assign", "ok").Inc()
	TaskListLatency.WithLabelValues("contractor").Observe(0.01)
	NotificationsEnqueued.WithLabelValues("ok").Inc()
	NotificationDeliveries.WithLabelValues("log", "delivered").Inc()
	NotificationsPending.Set(2)
	HTTPRequests.WithLabelValues("GET", "200").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"sitework_task_mutations_total",
		"sitework_task_list_seconds",
		"sitework_notifications_enqueued_total",
		"sitework_notification_deliveries_total",
		"sitework_notifications_due",
		"sitework_http_requests_total",
	} {
		assert.True(t, names[want], want)
	}
}

func TestCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(TaskMutations.WithLabelValues("review", "conflict"))
	TaskMutations.WithLabelValues("review", "conflict").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(TaskMutations.WithLabelValues("review", "conflict")))
}

func TestHandlerServesText(t *testing.T) {
	NotificationsPending.Set(1)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "sitework_notifications_due"))
}
