package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if workerStartsTotal == nil || workerExitsTotal == nil || logLinesTotal == nil ||
		overlayMessagesTotal == nil || streamSubscribers == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(workerStartsTotal.WithLabelValues("login"))
	ObserveWorkerStart("login")
	if val := testutil.ToFloat64(workerStartsTotal.WithLabelValues("login")); val != before+1 {
		t.Errorf("Expected worker starts to grow by 1, got %f -> %f", before, val)
	}

	beforeOverlay := testutil.ToFloat64(overlayMessagesTotal)
	ObserveOverlayMessage()
	ObserveOverlayMessage()
	if val := testutil.ToFloat64(overlayMessagesTotal); val != beforeOverlay+2 {
		t.Errorf("Expected overlay messages to grow by 2, got %f -> %f", beforeOverlay, val)
	}

	SetSubscribers("logs", 3)
	if val := testutil.ToFloat64(streamSubscribers.WithLabelValues("logs")); val != 3 {
		t.Errorf("Expected 3 log subscribers, got %f", val)
	}

	ObserveLogLine("err")
	if val := testutil.ToFloat64(logLinesTotal.WithLabelValues("err")); val < 1 {
		t.Errorf("Expected err log lines to be counted, got %f", val)
	}

	ObserveWorkerExit("signal")
	if val := testutil.ToFloat64(workerExitsTotal.WithLabelValues("signal")); val < 1 {
		t.Errorf("Expected signal exits to be counted, got %f", val)
	}
}
