package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRerankWorkersRunning(t *testing.T) {
	running := 0
	ObserveWorkerPool(func() int { return running })

	if got := testutil.ToFloat64(RerankWorkersRunning); got != 0 {
		t.Errorf("no workers = %v, want 0", got)
	}
	running = 3
	if got := testutil.ToFloat64(RerankWorkersRunning); got != 3 {
		t.Errorf("three workers = %v, want 3", got)
	}
}
