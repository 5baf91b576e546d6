package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pavelzar/paylink/internal/domain"
)

func TestNewTransferCompletedEvent(t *testing.T) {
	record := &domain.TransactionRecord{
		IdempotencyKey:       "evt-1",
		FromAccount:          uuid.New(),
		ToAccount:            uuid.New(),
		Amount:               1500,
		Status:               domain.RecordStatusCompleted,
		ResultingFromBalance: 8500,
		ResultingToBalance:   1500,
		Timestamp:            time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	event := NewTransferCompletedEvent(record)

	if event.EventType != "ledger.transfer.completed" {
		t.Errorf("EventType = %s", event.EventType)
	}
	if _, err := uuid.Parse(event.EventID); err != nil {
		t.Errorf("EventID %q is not a uuid: %v", event.EventID, err)
	}
	if event.FromAccount != record.FromAccount.String() {
		t.Errorf("FromAccount = %s, want %s", event.FromAccount, record.FromAccount)
	}
	if event.Amount != 1500 {
		t.Errorf("Amount = %d, want 1500", event.Amount)
	}
	if event.IdempotencyKey != "evt-1" {
		t.Errorf("IdempotencyKey = %s", event.IdempotencyKey)
	}
	if event.Status != "COMPLETED" {
		t.Errorf("Status = %s", event.Status)
	}
	if event.Timestamp != "2025-06-01T12:00:00Z" {
		t.Errorf("Timestamp = %s", event.Timestamp)
	}
	if _, err := time.Parse(time.RFC3339, event.EventTimestamp); err != nil {
		t.Errorf("EventTimestamp %q is not RFC3339: %v", event.EventTimestamp, err)
	}
}

func TestEventIDsAreUnique(t *testing.T) {
	record := &domain.TransactionRecord{
		IdempotencyKey: "evt-2",
		FromAccount:    uuid.New(),
		ToAccount:      uuid.New(),
		Amount:         1,
		Status:         domain.RecordStatusCompleted,
		Timestamp:      time.Now(),
	}
	a := NewTransferCompletedEvent(record)
	b := NewTransferCompletedEvent(record)
	if a.EventID == b.EventID {
		t.Error("two events for one record share an EventID")
	}
}

func TestEventJSONFieldNames(t *testing.T) {
	record := &domain.TransactionRecord{
		IdempotencyKey: "evt-3",
		FromAccount:    uuid.New(),
		ToAccount:      uuid.New(),
		Amount:         42,
		Status:         domain.RecordStatusCompleted,
		Timestamp:      time.Now(),
	}

	raw, err := json.Marshal(NewTransferCompletedEvent(record))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// Downstream consumers depend on these exact keys.
	for _, key := range []string{
		"eventId", "eventType", "eventTimestamp",
		"fromAccount", "toAccount", "amount",
		"idempotencyKey", "status", "timestamp",
	} {
		if _, ok := payload[key]; !ok {
			t.Errorf("payload missing %q: %s", key, raw)
		}
	}
}
