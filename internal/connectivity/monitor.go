// Package connectivity tracks the environment's online/offline signal
// and fans it out to subscribers. The value is whatever the last
// transition event said, seeded with a snapshot at construction time;
// there is no active probing, so a host that is "online" per the OS but
// cannot reach the backend is still reported online.
package connectivity

import "sync"

// Monitor holds the current connectivity state and notifies
// subscribers on every transition.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[int]chan bool
	nextID int
}

// NewMonitor creates a monitor seeded with the initial snapshot.
func NewMonitor(initial bool) *Monitor {
	return &Monitor{online: initial, subs: make(map[int]chan bool)}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline applies an environment transition event. Repeated events
// with the same value are delivered anyway; consumers that care about
// edges (the sync coordinator does) detect them on their side.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = online
	for _, ch := range m.subs {
		select {
		case ch <- online:
		default:
			// subscriber is behind: evict its oldest buffered value so
			// the newest state is never the one lost
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
}

// Subscribe registers a consumer. The returned channel immediately
// yields the state as of subscription, then one value per transition.
// The cancel func must be called to release the subscription.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	ch := make(chan bool, 8)
	ch <- m.online
	m.subs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}
