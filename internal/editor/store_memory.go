package editor

import (
	"context"
	"encoding/json"
	"sync"
)

// MemorySessionStore keeps sessions in process. Values are stored as JSON so
// callers never share state with the store.
type MemorySessionStore struct {
	mu    sync.Mutex
	items map[string][]byte
	locks map[string]*sync.Mutex
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{items: map[string][]byte{}, locks: map[string]*sync.Mutex{}}
}

func (m *MemorySessionStore) Get(ctx context.Context, id string) (Session, bool, error) {
	m.mu.Lock()
	raw, ok := m.items[id]
	m.mu.Unlock()
	if !ok {
		return Session{}, false, nil
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

func (m *MemorySessionStore) Put(ctx context.Context, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.ID] = raw
	return nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	// A held lock stays until its holder is done with it.
	if l, ok := m.locks[id]; ok && l.TryLock() {
		delete(m.locks, id)
		l.Unlock()
	}
	return nil
}

func (m *MemorySessionStore) Lock(ctx context.Context, id string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock, nil
}
