package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOutboxMetricsBacklog(t *testing.T) {
	m := NewOutboxMetrics(prometheus.NewRegistry())

	m.RecordPublish("sent")
	m.RecordPublish("sent")
	m.SetBacklog(3, 90*time.Second)

	if got := counterValue(t, m.publishAttempts.WithLabelValues("sent")); got != 2 {
		t.Fatalf("unexpected sent attempts: got=%v want=2", got)
	}
	if got := gaugeValue(t, m.pendingRecords); got != 3 {
		t.Fatalf("unexpected pending: got=%v want=3", got)
	}
	if got := gaugeValue(t, m.oldestPendingAge); got != 90 {
		t.Fatalf("unexpected oldest age: got=%v want=90", got)
	}

	m.SetBacklog(0, -time.Second)
	if got := gaugeValue(t, m.oldestPendingAge); got != 0 {
		t.Fatalf("negative age must be clamped: got=%v", got)
	}
}

func TestCleanupMetrics(t *testing.T) {
	m := NewCleanupMetrics(prometheus.NewRegistry())

	m.AddDeleted(4)
	m.AddDeleted(-1)
	m.RecordRun(ResultOK, 4)
	m.RecordRun("error", 0)

	if got := counterValue(t, m.deleted); got != 4 {
		t.Fatalf("unexpected deleted: got=%v want=4", got)
	}
	if got := gaugeValue(t, m.lastDeleted); got != 4 {
		t.Fatalf("error run must not reset last deleted: got=%v", got)
	}
	if got := counterValue(t, m.runs.WithLabelValues("error")); got != 1 {
		t.Fatalf("unexpected error runs: got=%v want=1", got)
	}
}

func TestWorkerMetricsNilSafe(t *testing.T) {
	var outbox *OutboxMetrics
	var cleanup *CleanupMetrics

	outbox.RecordPublish("sent")
	outbox.SetBacklog(1, time.Second)
	cleanup.RecordRun(ResultOK, 1)
	cleanup.AddDeleted(1)
}
