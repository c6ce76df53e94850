// Package testhelpers provides shared test doubles, including an
// in-memory implementation of the cache store with controllable time.
package testhelpers

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/cache"
)

type memItem struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// MemStore is an in-memory cache.Store for tests. Expiry is evaluated
// against an internal clock that tests advance with Advance, so TTL
// behavior is testable without sleeping.
type MemStore struct {
	mu    sync.Mutex
	items map[string]memItem
	sets  map[string]map[string]struct{}
	now   time.Time
}

var _ cache.Store = (*MemStore)(nil)

// NewMemStore creates an empty store with the clock at the current time.
func NewMemStore() *MemStore {
	return &MemStore{
		items: make(map[string]memItem),
		sets:  make(map[string]map[string]struct{}),
		now:   time.Now().UTC(),
	}
}

// Advance moves the store's clock forward, expiring keys whose TTL has
// elapsed.
func (m *MemStore) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Len reports the number of live keys.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.items {
		if !m.expiredLocked(key) {
			n++
		}
	}
	return n
}

func (m *MemStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memItem{data: data, expiresAt: m.expiryLocked(ttl)}
	return nil
}

func (m *MemStore) Get(_ context.Context, key string, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok || m.expiredLocked(key) {
		return apperrors.ErrNotFound
	}
	return json.Unmarshal(item.data, dest)
}

func (m *MemStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.items, key)
		delete(m.sets, key)
	}
	return nil
}

func (m *MemStore) SetMulti(_ context.Context, entries []cache.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	staged := make(map[string]memItem, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("marshal value for %s: %w", e.Key, err)
		}
		staged[e.Key] = memItem{data: data, expiresAt: m.expiryLocked(e.TTL)}
	}
	for key, item := range staged {
		m.items[key] = item
	}
	return nil
}

func (m *MemStore) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.items {
		if m.expiredLocked(key) {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *MemStore) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok || m.expiredLocked(key) {
		return 0, apperrors.ErrNotFound
	}
	if item.expiresAt.IsZero() {
		return -1, nil
	}
	return item.expiresAt.Sub(m.now), nil
}

func (m *MemStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok || m.expiredLocked(key) {
		return apperrors.ErrNotFound
	}
	item.expiresAt = m.expiryLocked(ttl)
	m.items[key] = item
	return nil
}

func (m *MemStore) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

func (m *MemStore) SetAndIndex(_ context.Context, key string, value any, ttl time.Duration, setKey, member string, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memItem{data: data, expiresAt: m.expiryLocked(ttl)}
	set, ok := m.sets[setKey]
	if !ok {
		set = make(map[string]struct{})
		m.sets[setKey] = set
	}
	set[member] = struct{}{}
	return nil
}

func (m *MemStore) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

func (m *MemStore) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range members {
		delete(m.sets[key], member)
	}
	return nil
}

func (m *MemStore) Ping(context.Context) error { return nil }

func (m *MemStore) expiryLocked(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now.Add(ttl)
}

// expiredLocked removes and reports a key whose TTL has passed.
func (m *MemStore) expiredLocked(key string) bool {
	item, ok := m.items[key]
	if !ok {
		return true
	}
	if !item.expiresAt.IsZero() && !item.expiresAt.After(m.now) {
		delete(m.items, key)
		return true
	}
	return false
}
