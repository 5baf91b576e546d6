// Package metrics exposes Prometheus counters for ledger operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Ledger implements domain.TransferObserver with Prometheus counters.
type Ledger struct {
	completed prometheus.Counter
	replayed  prometheus.Counter
	failed    *prometheus.CounterVec
}

// NewLedger registers the ledger counters on reg.
func NewLedger(reg prometheus.Registerer) *Ledger {
	m := &Ledger{
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_transfers_completed_total",
			Help: "Number of transfers that debited and credited successfully.",
		}),
		replayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_transfers_replayed_total",
			Help: "Number of transfer requests answered from a stored record.",
		}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transfers_failed_total",
			Help: "Number of transfers refused by a business rule, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.completed, m.replayed, m.failed)
	return m
}

// TransferCompleted counts a committed transfer.
func (m *Ledger) TransferCompleted() { m.completed.Inc() }

// TransferReplayed counts an idempotent replay.
func (m *Ledger) TransferReplayed() { m.replayed.Inc() }

// TransferFailed counts a recorded business-rule failure.
func (m *Ledger) TransferFailed(reason string) { m.failed.WithLabelValues(reason).Inc() }
