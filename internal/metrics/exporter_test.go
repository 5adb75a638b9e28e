package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewExporter_ObserveRequest_IncrementsCounter(t *testing.T) {
	e := NewExporter("test_requests")
	e.ObserveRequest("/healthcheck", "200")

	if got := testutil.ToFloat64(e.requests.WithLabelValues("/healthcheck", "200")); got != 1 {
		t.Fatalf("expected 1 observation, got %v", got)
	}
}

func TestExporter_ObserveEpochGeneration_CountsFailures(t *testing.T) {
	e := NewExporter("test_epoch_gen")
	e.ObserveEpochGeneration(1.5, true)
	e.ObserveEpochGeneration(0.5, false)

	if got := testutil.ToFloat64(e.epochGenFail); got != 1 {
		t.Fatalf("expected 1 failure counted, got %v", got)
	}
}

func TestExporter_SetActiveEpoch(t *testing.T) {
	e := NewExporter("test_active_epoch")
	e.SetActiveEpoch(true)
	if got := testutil.ToFloat64(e.activeEpoch); got != 1 {
		t.Fatalf("expected gauge set to 1, got %v", got)
	}
	e.SetActiveEpoch(false)
	if got := testutil.ToFloat64(e.activeEpoch); got != 0 {
		t.Fatalf("expected gauge set to 0, got %v", got)
	}
}
