// Package cache stores enrichment outcomes keyed by normalized fund name.
package cache

import (
	"context"
	"sync"
	"time"

	"mfetl/internal/enrichment/models"
)

type entry struct {
	fund      *models.EnrichedFund
	expiresAt time.Time
}

// Memory is an in-process TTL cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory creates an empty cache. now may be nil.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{entries: make(map[string]entry), now: now}
}

// Get returns the cached outcome for key. Expired entries are removed.
func (m *Memory) Get(_ context.Context, key string) (*models.EnrichedFund, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.fund, true, nil
}

// Set stores fund (possibly nil) under key for ttl. A non-positive ttl
// is a no-op.
func (m *Memory) Set(_ context.Context, key string, fund *models.EnrichedFund, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	m.entries[key] = entry{fund: fund, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// PurgeExpired drops every entry expired at now and reports how many.
func (m *Memory) PurgeExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
