package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// CachedResponse is one serialized request→response pair held inside a
// partition.
type CachedResponse struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// PartitionStore is the proxy's storage collaborator: named, isolated
// cache regions holding request-key → response pairs. The production
// implementation is bbolt-backed; tests use MemoryPartitions.
type PartitionStore interface {
	Get(partition, key string) (*CachedResponse, bool, error)
	Put(partition, key string, resp *CachedResponse) error
	Names() ([]string, error)
	Delete(partition string) error
}

// BoltPartitions stores each partition as one bbolt bucket.
type BoltPartitions struct {
	db *bolt.DB
}

// OpenBoltPartitions opens (or creates) the partition database at path.
func OpenBoltPartitions(path string) (*BoltPartitions, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open partition store: %w", err)
	}
	return &BoltPartitions{db: db}, nil
}

func (p *BoltPartitions) Close() error { return p.db.Close() }

func (p *BoltPartitions) Get(partition, key string) (*CachedResponse, bool, error) {
	var raw []byte
	err := p.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(partition))
		if bkt == nil {
			return nil
		}
		if v := bkt.Get([]byte(key)); v != nil {
			raw = append(raw, v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return nil, false, err
	}
	var resp CachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, fmt.Errorf("decode cached response %q: %w", key, err)
	}
	return &resp, true, nil
}

func (p *BoltPartitions) Put(partition, key string, resp *CachedResponse) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode cached response %q: %w", key, err)
	}
	return p.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(partition))
		if err != nil {
			return err
		}
		return bkt.Put([]byte(key), b)
	})
}

func (p *BoltPartitions) Names() ([]string, error) {
	var names []string
	err := p.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

func (p *BoltPartitions) Delete(partition string) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(partition)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(partition))
	})
}

// MemoryPartitions is an in-memory PartitionStore for tests and for
// degraded mode when local storage is unavailable.
type MemoryPartitions struct {
	mu   sync.RWMutex
	data map[string]map[string]*CachedResponse
}

func NewMemoryPartitions() *MemoryPartitions {
	return &MemoryPartitions{data: make(map[string]map[string]*CachedResponse)}
}

func (p *MemoryPartitions) Get(partition, key string) (*CachedResponse, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if part, ok := p.data[partition]; ok {
		if resp, ok := part[key]; ok {
			return resp, true, nil
		}
	}
	return nil, false, nil
}

func (p *MemoryPartitions) Put(partition, key string, resp *CachedResponse) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data[partition] == nil {
		p.data[partition] = make(map[string]*CachedResponse)
	}
	p.data[partition][key] = resp
	return nil
}

func (p *MemoryPartitions) Names() ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.data))
	for name := range p.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (p *MemoryPartitions) Delete(partition string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, partition)
	return nil
}
