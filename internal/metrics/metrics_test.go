package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLedgerCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedger(reg)

	m.TransferCompleted()
	m.TransferCompleted()
	m.TransferReplayed()
	m.TransferFailed("INSUFFICIENT_FUNDS")

	if got := testutil.ToFloat64(m.completed); got != 2 {
		t.Errorf("completed = %f, want 2", got)
	}
	if got := testutil.ToFloat64(m.replayed); got != 1 {
		t.Errorf("replayed = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.failed.WithLabelValues("INSUFFICIENT_FUNDS")); got != 1 {
		t.Errorf("failed{INSUFFICIENT_FUNDS} = %f, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 3 {
		t.Errorf("registered families = %d, want 3", len(families))
	}
}
