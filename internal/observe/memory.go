// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package observe

import (
	"strings"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store backend of §4.5: a map guarded
// by a reader-writer lock, grounded on the shape of
// named-data-YaNFD's object.MemoryStore, adapted from a name-trie to
// the flat path\0identity keying §4.5 specifies (this store has no
// prefix-of-path query to optimize for, only prefix-of-key).
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Subscription)}
}

func (s *MemoryStore) Put(path string, identity []byte, token []byte) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(path, identity)
	sub := &Subscription{
		ResourcePath: path,
		PeerIdentity: append([]byte(nil), identity...),
		Token:        append([]byte(nil), token...),
		Seq:          0,
		CreatedAt:    time.Now(),
	}
	s.records[k] = sub
	out := *sub
	return &out, nil
}

func (s *MemoryStore) Delete(path string, identity []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key(path, identity))
	return nil
}

func (s *MemoryStore) DeleteAll(identity []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	suffix := "\x00" + string(identity)
	for k := range s.records {
		if strings.HasSuffix(k, suffix) {
			delete(s.records, k)
		}
	}
	return nil
}

func (s *MemoryStore) Iter(path string) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := path + "\x00"
	var out []Subscription
	for k, sub := range s.records {
		if strings.HasPrefix(k, prefix) {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (s *MemoryStore) BumpSeq(path string, identity []byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.records[key(path, identity)]
	if !ok {
		return 0, ErrUnavailable
	}
	sub.Seq = nextSeq(sub.Seq)
	return sub.Seq, nil
}

func (s *MemoryStore) Close() error { return nil }
