// Package cache implements the editor's option-id cache: the persisted
// option ids of each item, remembered between syncs so a reconciliation
// does not have to re-read them. Memory keeps them in-process with a TTL;
// Redis shares them between replicas.
//
// A cache is an optimization only. Every failure degrades to a miss and
// the editor falls back to the store.
package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tbourn/go-form-builder/internal/editor"
)

// DefaultTTL bounds how long an id set is trusted.
const DefaultTTL = 5 * time.Minute

type entry struct {
	ids     []string
	expires time.Time
}

// Memory is an in-process editor.IDCache.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

var _ editor.IDCache = (*Memory)(nil)

// NewMemory returns a cache whose entries expire after ttl (DefaultTTL
// when ttl <= 0).
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, now: time.Now, entries: map[string]entry{}}
}

func (m *Memory) Get(_ context.Context, itemID string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[itemID]
	if !ok {
		return nil, false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, itemID)
		return nil, false
	}
	return slices.Clone(e.ids), true
}

func (m *Memory) Set(_ context.Context, itemID string, ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[itemID] = entry{ids: slices.Clone(ids), expires: m.now().Add(m.ttl)}
}

func (m *Memory) Invalidate(_ context.Context, itemID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, itemID)
}

// Len reports the number of entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
