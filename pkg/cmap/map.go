package cmap

import (
	"encoding/binary"
	"fmt"
	"iter"
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultShards is the shard count used when none is given.
const DefaultShards = 16

// Map is a hash map split into independently locked shards.
type Map[K comparable, V any] struct {
	shards []shard[K, V]
	mask   uint64
	hash   func(K) uint64
}

type shard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// New creates a map with n shards. n is rounded up to a power of two,
// and values below one select DefaultShards. A nil hash uses HashAny.
func New[K comparable, V any](n int, hash func(K) uint64) *Map[K, V] {
	if n < 1 {
		n = DefaultShards
	}
	size := 1
	for size < n {
		size <<= 1
	}
	if hash == nil {
		hash = HashAny[K]
	}

	shards := make([]shard[K, V], size)
	for i := range shards {
		shards[i].m = make(map[K]V)
	}
	return &Map[K, V]{shards: shards, mask: uint64(size - 1), hash: hash}
}

// HashInt64 hashes v as 8 big-endian bytes with murmur3.
func HashInt64(v int64) uint64 {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return murmur3.Sum64(b[:])
}

// HashAny hashes the formatted key with murmur3.
func HashAny[K comparable](key K) uint64 {
	if s, ok := any(key).(string); ok {
		return murmur3.Sum64([]byte(s))
	}
	return murmur3.Sum64(fmt.Append(nil, key))
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return &m.shards[m.hash(key)&m.mask]
}

// Shards returns the number of shards.
func (m *Map[K, V]) Shards() int {
	return len(m.shards)
}

// Load returns the value stored under key.
func (m *Map[K, V]) Load(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	v, ok := s.m[key]
	s.mu.RUnlock()
	return v, ok
}

// Contains reports whether key is present.
func (m *Map[K, V]) Contains(key K) bool {
	_, ok := m.Load(key)
	return ok
}

// Store sets the value for key.
func (m *Map[K, V]) Store(key K, v V) {
	s := m.shardFor(key)
	s.mu.Lock()
	s.m[key] = v
	s.mu.Unlock()
}

// StoreIfAbsent sets the value for key unless key is present, and
// reports whether it did.
func (m *Map[K, V]) StoreIfAbsent(key K, v V) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; ok {
		return false
	}
	s.m[key] = v
	return true
}

// Delete removes key.
func (m *Map[K, V]) Delete(key K) {
	s := m.shardFor(key)
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// DeleteFunc removes key if del returns true for its value, and reports
// whether it did. del runs under the shard lock and must not use the map.
func (m *Map[K, V]) DeleteFunc(key K, del func(V) bool) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok || !del(v) {
		return false
	}
	delete(s.m, key)
	return true
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// All yields every entry, one shard at a time. A shard is read-locked
// while its entries are yielded, so the loop body must not write to the
// map. Entries changed in other shards meanwhile may or may not be seen.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i := range m.shards {
			s := &m.shards[i]
			s.mu.RLock()
			for k, v := range s.m {
				if !yield(k, v) {
					s.mu.RUnlock()
					return
				}
			}
			s.mu.RUnlock()
		}
	}
}
