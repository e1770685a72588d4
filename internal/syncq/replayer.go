package syncq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/compassionsafe/portal/internal/store"
)

// Inserter is the one backend operation queue replay needs. The
// backend must tolerate duplicate delivery: a failed batch is resent
// in full on the next reconnect.
type Inserter interface {
	Insert(ctx context.Context, table string, row any) error
}

// QueuedWrite is the payload shape the offline UI enqueues.
type QueuedWrite struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// tables maps queued write types to backend tables.
var tables = map[string]string{
	"note": "offline_notes",
}

// BackendReplayer delivers queued writes as backend row inserts.
type BackendReplayer struct {
	Backend Inserter
}

func (r *BackendReplayer) Replay(ctx context.Context, entry store.QueueEntry) error {
	var w QueuedWrite
	if err := json.Unmarshal(entry.Payload, &w); err != nil {
		return fmt.Errorf("entry %d: decode payload: %w", entry.ID, err)
	}
	table, ok := tables[w.Type]
	if !ok {
		return fmt.Errorf("entry %d: unknown write type %q", entry.ID, w.Type)
	}
	row := map[string]any{
		"client_entry_id": entry.ID,
		"enqueued_at":     entry.EnqueuedAt,
		"data":            w.Data,
	}
	if err := r.Backend.Insert(ctx, table, row); err != nil {
		return fmt.Errorf("entry %d: %w", entry.ID, err)
	}
	return nil
}
