// Package syncq drains the offline sync queue when connectivity
// returns. Replay is all-or-nothing: the queue is cleared only after
// every entry delivered, so a failed attempt leaves everything in
// place for the next online transition. Queued backend operations must
// therefore be idempotent or tolerate duplicate delivery.
package syncq

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/compassionsafe/portal/internal/connectivity"
	"github.com/compassionsafe/portal/internal/store"
)

// ErrSyncDelivery means one or more queued entries failed replay; the
// queue was preserved in full.
var ErrSyncDelivery = errors.New("sync delivery failed")

// Replayer delivers one queued entry to the backend.
type Replayer interface {
	Replay(ctx context.Context, entry store.QueueEntry) error
}

// Queue is the slice of the durable store the coordinator needs.
// *store.Store satisfies it.
type Queue interface {
	QueueAll() ([]store.QueueEntry, error)
	QueueClear() error
}

// Coordinator watches connectivity and replays the queue on every
// offline→online edge, plus once at startup if already online.
type Coordinator struct {
	Queue    Queue
	Replayer Replayer
	Monitor  *connectivity.Monitor
	Log      zerolog.Logger
}

// SyncNow snapshots the queue once and attempts delivery. An empty
// queue is a no-op success. Note the snapshot/clear pair is two
// transactions: an entry pushed between them is lost with the clear.
// Accepted single-writer limitation.
func (c *Coordinator) SyncNow(ctx context.Context) error {
	entries, err := c.Queue.QueueAll()
	if err != nil {
		return fmt.Errorf("read sync queue: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	failed := 0
	for _, e := range entries {
		if err := c.Replayer.Replay(ctx, e); err != nil {
			// keep going so every wedged entry gets logged, but a
			// single failure already forfeits the clear
			failed++
			c.Log.Warn().Uint64("entry", e.ID).Err(err).Msg("replay failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d entries", ErrSyncDelivery, failed, len(entries))
	}
	if err := c.Queue.QueueClear(); err != nil {
		return fmt.Errorf("clear sync queue after delivery: %w", err)
	}
	c.Log.Info().Int("entries", len(entries)).Msg("sync queue drained")
	return nil
}

// Run blocks until ctx is done, syncing on each reconnect. Failures
// are logged, never fatal; the next online edge retries everything.
func (c *Coordinator) Run(ctx context.Context) {
	ch, cancel := c.Monitor.Subscribe()
	defer cancel()

	// snapshot arrives first; evaluate once if already online
	prev := <-ch
	if prev {
		if err := c.SyncNow(ctx); err != nil {
			c.Log.Warn().Err(err).Msg("startup sync failed")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-ch:
			if !ok {
				return
			}
			if online && !prev {
				if err := c.SyncNow(ctx); err != nil {
					c.Log.Warn().Err(err).Msg("reconnect sync failed")
				}
			}
			prev = online
		}
	}
}
