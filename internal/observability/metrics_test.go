package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsPipelineCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncMessagePublished("created_tasks")
	metrics.IncMessageAcked("created_tasks")
	metrics.IncMessageRequeued("formed_tasks")
	metrics.IncStageMessage("Former", "unresolvable")
	metrics.ObserveBatchDuration("former", 30*time.Millisecond)
	metrics.IncNotificationSent("EMAIL")
	metrics.IncNotificationFailed("email", "permanent_error")
	metrics.ObserveNotificationSendDuration("email", 120*time.Millisecond)

	if got := testutil.ToFloat64(metrics.messagesPublishedTotal.WithLabelValues("created_tasks")); got != 1 {
		t.Fatalf("broker_messages_published_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.messagesAckedTotal.WithLabelValues("created_tasks")); got != 1 {
		t.Fatalf("broker_messages_acked_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.messagesRequeuedTotal.WithLabelValues("formed_tasks")); got != 1 {
		t.Fatalf("broker_messages_requeued_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.stageMessagesTotal.WithLabelValues("former", "unresolvable")); got != 1 {
		t.Fatalf("stage_messages_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.notificationsSentTotal.WithLabelValues("email")); got != 1 {
		t.Fatalf("notifications_sent_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.notificationsFailedTotal.WithLabelValues("email", "permanent_error")); got != 1 {
		t.Fatalf("notifications_failed_total = %v, want 1", got)
	}
}

func TestMetricsNilReceiver(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncMessagePublished("created_tasks")
	metrics.IncStageMessage("sender", "sent")
	metrics.ObserveBatchDuration("sender", time.Second)
	if metrics.Handler() == nil {
		t.Fatal("Handler() should fall back to the default handler")
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
