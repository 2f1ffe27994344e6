package tier

import (
	"sort"
	"sync"
)

type memEntry struct {
	bytes []byte
	seq   uint64
}

// MemStore is an in-memory Store, mainly useful for testing and for
// deployments that do not need the cache to survive a restart.
type MemStore struct {
	mutex *sync.RWMutex
	seq   uint64
	db    map[string]map[string]memEntry
}

func NewMemStore() *MemStore {
	return &MemStore{
		mutex: &sync.RWMutex{},
		db:    make(map[string]map[string]memEntry),
	}
}

func (m *MemStore) Get(tier, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[tier][key]
	if !ok {
		return nil, false, nil
	}
	return entry.bytes, true, nil
}

func (m *MemStore) Put(tier, key string, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.put(tier, key, bytes)
	return nil
}

func (m *MemStore) PutAll(tier string, entries []Entry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, entry := range entries {
		m.put(tier, entry.Key, entry.Bytes)
	}
	return nil
}

// put must be called with the write lock held.
func (m *MemStore) put(tier, key string, bytes []byte) {
	entries, ok := m.db[tier]
	if !ok {
		entries = make(map[string]memEntry)
		m.db[tier] = entries
	}
	// a replaced entry gets a fresh sequence number and thereby moves to
	// the back of the tier
	m.seq++
	entries[key] = memEntry{bytes: bytes, seq: m.seq}
}

func (m *MemStore) Delete(tier, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db[tier], key)
	return nil
}

func (m *MemStore) Count(tier string) (int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.db[tier]), nil
}

func (m *MemStore) OldestKeys(tier string, n int) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	keys := make([]string, 0, len(m.db[tier]))
	for key := range m.db[tier] {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return m.db[tier][keys[i]].seq < m.db[tier][keys[j]].seq
	})
	if n < len(keys) {
		keys = keys[:n]
	}
	return keys, nil
}

func (m *MemStore) Tiers() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	tiers := make([]string, 0, len(m.db))
	for tier := range m.db {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)
	return tiers, nil
}

func (m *MemStore) Drop(tier string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, tier)
	return nil
}
