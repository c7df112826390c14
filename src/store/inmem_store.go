package store

import (
	"errors"
	"sort"
	"sync"
)

var errInjected = errors.New("store: injected failure")

// InmemStore implements the Store interface with a plain map. It is used for
// tests and for dry runs where nothing should touch the disk.
type InmemStore struct {
	l      sync.RWMutex
	values map[string][]byte

	// FailSets counts down: while positive, every Set and Append fails.
	// Tests use it to exercise the callers' failure paths.
	FailSets int
}

// NewInmemStore instantiates an empty InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		values: make(map[string][]byte),
	}
}

// Get implements the Store interface.
func (s *InmemStore) Get(key string) ([]byte, error) {
	s.l.RLock()
	defer s.l.RUnlock()

	val, ok := s.values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}

	res := make([]byte, len(val))
	copy(res, val)

	return res, nil
}

// Set implements the Store interface.
func (s *InmemStore) Set(key string, value []byte) error {
	s.l.Lock()
	defer s.l.Unlock()

	if s.FailSets > 0 {
		s.FailSets--
		return retriesExhausted(key, errInjected)
	}

	val := make([]byte, len(value))
	copy(val, value)
	s.values[key] = val

	return nil
}

// Has implements the Store interface.
func (s *InmemStore) Has(key string) bool {
	s.l.RLock()
	defer s.l.RUnlock()

	_, ok := s.values[key]
	return ok
}

// Keys implements the Store interface.
func (s *InmemStore) Keys(prefix string) ([]string, error) {
	s.l.RLock()
	defer s.l.RUnlock()

	keys := []string{}
	for k := range s.values {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	return keys, nil
}

// Append implements the Store interface.
func (s *InmemStore) Append(key string, value []byte) error {
	s.l.Lock()
	defer s.l.Unlock()

	if s.FailSets > 0 {
		s.FailSets--
		return retriesExhausted(key, errInjected)
	}

	cur := s.values[key]
	line := make([]byte, 0, len(cur)+len(value)+1)
	line = append(line, cur...)
	line = append(line, value...)
	line = append(line, '\n')
	s.values[key] = line

	return nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
