// Package memo is an in-process cache of entries and content, keyed by
// cache root.  It has no eviction policy; callers clear it whenever
// anything is removed from the cache.
package memo

import (
	"sync"

	"github.com/t7a/pitcache/index"
)

// Item is a memoized key lookup.
type Item struct {
	Entry *index.Entry
	Data  []byte
}

type Memo struct {
	mu      sync.RWMutex
	entries map[string]Item
	digests map[string][]byte
}

func New() *Memo {
	m := &Memo{}
	m.Clear()
	return m
}

func entryKey(root, key string) string {
	return "key:" + root + ":" + key
}

func digestKey(root, digest string) string {
	return "digest:" + root + ":" + digest
}

// Put remembers data under both entry's key and its digest.
func (m *Memo) Put(root string, entry *index.Entry, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entryKey(root, entry.Key)] = Item{Entry: entry, Data: data}
	m.digests[digestKey(root, entry.Integrity)] = data
}

// PutDigest remembers data under digest only.
func (m *Memo) PutDigest(root, digest string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.digests[digestKey(root, digest)] = data
}

func (m *Memo) Get(root, key string) (item Item, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok = m.entries[entryKey(root, key)]
	return
}

func (m *Memo) GetByDigest(root, digest string) (data []byte, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok = m.digests[digestKey(root, digest)]
	return
}

// Clear forgets everything, for every root.
func (m *Memo) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Item)
	m.digests = make(map[string][]byte)
}

// Len returns the number of memoized keys and digests.
func (m *Memo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries) + len(m.digests)
}
