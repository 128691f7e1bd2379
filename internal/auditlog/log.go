// Package auditlog persists and queries the append-only evidence event log.
//
// Events live under (EVIDENCE_EVENT, evidenceId, transactionId) composite
// keys, so the log scans per evidence id and one logical transaction can
// append at most one event per item. Nothing ever updates or deletes an
// event; replaying a partition in timestamp order reconstructs the item's
// custody history.
package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/evidlock/custodyledger/internal/custody/model"
	"github.com/evidlock/custodyledger/internal/keyspace"
	"github.com/evidlock/custodyledger/internal/statestore"
)

// Log is the append-only audit event log.
type Log struct {
	store statestore.Store
}

// New creates a Log writing through the given store.
func New(store statestore.Store) *Log {
	return &Log{store: store}
}

// Append persists ev keyed by the transaction id and returns the event id.
// The stored event's transactionId and timestamp always come from tx,
// whatever the caller set on ev.
func (l *Log) Append(ctx context.Context, tx statestore.TxContext, ev model.EvidenceEvent) (string, error) {
	if ev.EvidenceID == "" {
		return "", fmt.Errorf("append event: empty evidence id")
	}
	ev.TransactionID = tx.ID
	ev.Timestamp = tx.At.UnixMilli()

	b, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	key := keyspace.Key(keyspace.TagEvidenceEvent, ev.EvidenceID, tx.ID)
	if err := l.store.Put(ctx, tx, key, b); err != nil {
		return "", fmt.Errorf("append event: %w", err)
	}
	return tx.ID, nil
}

// ListByEvidence returns every event recorded for evidenceID, ordered by
// timestamp ascending. The sort is stable, so equal timestamps keep key
// order. Unknown ids yield an empty slice.
func (l *Log) ListByEvidence(ctx context.Context, evidenceID string) ([]model.EvidenceEvent, error) {
	kvs, err := l.store.Scan(ctx, keyspace.Prefix(keyspace.TagEvidenceEvent, evidenceID))
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}

	events := make([]model.EvidenceEvent, 0, len(kvs))
	for _, kv := range kvs {
		var ev model.EvidenceEvent
		if err := json.Unmarshal(kv.Value, &ev); err != nil {
			return nil, fmt.Errorf("decode event at %q: %w", kv.Key, err)
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	return events, nil
}
