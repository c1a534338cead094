package contract

import (
	"sort"
	"sync"
)

// Entry is one key/value pair from a prefix scan.
type Entry struct {
	Key   string
	Value []byte
}

// State is the KV store the contract runs on. Get returns (nil, nil) for
// an absent key. ListPrefix returns entries in key order.
type State interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	ListPrefix(prefix string) ([]Entry, error)
	Close() error
}

// MemoryState keeps the ledger in a process-local map. Used by tests and
// single-node deployments without durability needs.
type MemoryState struct {
	mu sync.RWMutex
	kv map[string][]byte
}

var _ State = (*MemoryState)(nil)

func NewMemoryState() *MemoryState {
	return &MemoryState{kv: make(map[string][]byte)}
}

func (s *MemoryState) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.kv[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (s *MemoryState) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	s.kv[key] = stored
	return nil
}

func (s *MemoryState) ListPrefix(prefix string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []Entry
	for k, v := range s.kv {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out := make([]byte, len(v))
			copy(out, v)
			entries = append(entries, Entry{Key: k, Value: out})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (s *MemoryState) Close() error { return nil }
