// Package keys manages a pool of upstream API keys with round-robin rotation
// and per-key daily usage accounting. Providers enforce per-key quotas, so the
// service cycles through its keys as each one approaches its limit instead of
// burning a single key.
package keys

import (
	"errors"
	"fmt"
	"sync"
)

// ErrExhausted is returned by Acquire when every key in the pool has reached
// its usage limit. Callers see the exhausted state explicitly rather than
// silently reusing an over-limit key.
var ErrExhausted = errors.New("keys: all API keys have reached their usage limit")

// Manager tracks the active key index and per-key usage counts. All methods
// are safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	keys    []string
	limit   int
	usage   []int
	current int
}

// Stats is a point-in-time snapshot of the pool state.
type Stats struct {
	TotalKeys   int   `json:"total_keys"`
	CurrentKey  int   `json:"current_key_index"`
	UsageLimit  int   `json:"usage_limit"`
	UsageCounts []int `json:"usage_counts"`
}

// NewManager creates a Manager over the given keys. The usage limit applies
// per key per reset window (a day, by the scheduler's convention).
func NewManager(apiKeys []string, usageLimit int) (*Manager, error) {
	if len(apiKeys) == 0 {
		return nil, fmt.Errorf("keys: at least one API key is required")
	}
	if usageLimit <= 0 {
		return nil, fmt.Errorf("keys: usage limit must be positive, got %d", usageLimit)
	}
	return &Manager{
		keys:  apiKeys,
		limit: usageLimit,
		usage: make([]int, len(apiKeys)),
	}, nil
}

// Acquire returns the active key and counts the use. If the active key has
// reached its limit the manager rotates to the next key with headroom; if no
// such key exists it returns ErrExhausted.
func (m *Manager) Acquire() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.usage[m.current] >= m.limit {
		if !m.rotateLocked() {
			return "", ErrExhausted
		}
	}
	m.usage[m.current]++
	return m.keys[m.current], nil
}

// rotateLocked advances to the next key whose usage is below the limit.
// Returns false after a full cycle finds none.
func (m *Manager) rotateLocked() bool {
	start := m.current
	for {
		m.current = (m.current + 1) % len(m.keys)
		if m.usage[m.current] < m.limit {
			return true
		}
		if m.current == start {
			return false
		}
	}
}

// Reset clears all usage counters and returns to the first key. Intended to
// run on the provider's quota boundary, once a day.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.usage {
		m.usage[i] = 0
	}
	m.current = 0
}

// Stats returns a snapshot of the pool state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make([]int, len(m.usage))
	copy(counts, m.usage)
	return Stats{
		TotalKeys:   len(m.keys),
		CurrentKey:  m.current,
		UsageLimit:  m.limit,
		UsageCounts: counts,
	}
}
