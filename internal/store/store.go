// Package store provides the durable local store backing the offline
// features: a general-purpose key-value cache and an append-only sync
// queue, both persisted in a single bbolt database file.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	// ErrStorageUnavailable means the database could not be opened at all.
	// Callers should degrade to a no-op cache rather than fail hard.
	ErrStorageUnavailable = errors.New("local storage unavailable")

	// ErrStorageWrite means a single write transaction aborted.
	ErrStorageWrite = errors.New("local storage write failed")
)

const (
	cacheBucket = "app-cache"
	queueBucket = "sync-queue"
)

// QueueEntry is one pending offline write. Entries are created by
// QueuePush, never mutated, and removed only by QueueClear.
type QueueEntry struct {
	ID         uint64          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Store is the on-disk cache + queue. One instance per deployment;
// Open is idempotent and creates both buckets if missing.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database at path and ensures both
// containers exist. Returns ErrStorageUnavailable if the file cannot
// be opened or the schema cannot be created.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(cacheBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(queueBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// CacheSet upserts value under key in a single transaction. The value
// must be JSON-serializable; it replaces any previous value.
func (s *Store) CacheSet(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: marshal %q: %v", ErrStorageWrite, key, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(cacheBucket)).Put([]byte(key), b)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return nil
}

// CacheGet looks up key and unmarshals the stored value into out.
// A missing key is not an error: it returns (false, nil).
func (s *Store) CacheGet(key string, out any) (bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(cacheBucket)).Get([]byte(key)); v != nil {
			raw = append(raw, v...)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode cached value %q: %w", key, err)
	}
	return true, nil
}

// QueuePush appends one entry, stamping it with the current time and
// the bucket's next auto-increment id. The assigned id is returned so
// callers may correlate.
func (s *Store) QueuePush(payload any) (uint64, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: marshal payload: %v", ErrStorageWrite, err)
	}
	var id uint64
	err = s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(queueBucket))
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		entry := QueueEntry{ID: seq, Payload: raw, EnqueuedAt: time.Now().UTC()}
		b, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		id = seq
		return bkt.Put(itob(seq), b)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return id, nil
}

// QueueAll returns every pending entry in insertion order (id
// ascending). An empty queue yields an empty slice, not an error.
func (s *Store) QueueAll() ([]QueueEntry, error) {
	var entries []QueueEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(queueBucket)).ForEach(func(_, v []byte) error {
			var e QueueEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode queue entry: %w", err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []QueueEntry{}
	}
	return entries, nil
}

// QueueClear atomically empties the whole queue. There is no per-entry
// removal; the bucket's sequence counter survives so ids keep rising.
func (s *Store) QueueClear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(queueBucket))
		c := bkt.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return nil
}

// itob keeps queue keys byte-sortable so cursor order is id order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
