package metrics

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestInitAndHandlerExposesMetrics(t *testing.T) {
	Init("scalemq_test", nil)

	SetQueueDepth("sock-1", "send", 3)
	SetQueueCapacity("sock-1", "send", 16)
	RecordPut("sock-1", "send", "ok")
	RecordGet("sock-1", "recv", "timedout")
	RecordKick("sock-1", "send", "can_get")
	RecordNotifierInvocation("sock-1", "send")
	RecordEventSubmitted("sock-1", "can_send")
	RecordEventDelivery("can_send", 2*time.Millisecond, 3)
	SetCircuitBreakerState("ep-1", 1)
	RecordCircuitBreakerTrip("ep-1", "open")
	RecordAdmission("sock-1", "allowed")

	h := Handler()
	if h == nil {
		t.Fatal("Handler returned nil after Init")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !contains(body, "scalemq_test_queue_depth") {
		t.Fatalf("expected queue_depth metric in output, got:\n%s", body)
	}
	if !contains(body, "scalemq_test_put_total") {
		t.Fatalf("expected put_total metric in output")
	}
}

func TestHandlerNilBeforeInit(t *testing.T) {
	global = nil
	if Handler() != nil {
		t.Fatal("Handler should be nil before Init")
	}
	// Record* calls must be no-ops, not panics, before Init.
	RecordPut("s", "send", "ok")
	SetQueueDepth("s", "send", 1)
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
