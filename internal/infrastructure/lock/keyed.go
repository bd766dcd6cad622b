package lock

import (
	"context"
	"sync"
)

// KeyedMutex is the single-process EntityLocker used when Redis is not
// configured.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	m.mu.Lock()
	entry, ok := m.locks[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		m.locks[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, entry, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { m.release(key, entry, true) })
		return nil
	}, nil
}

func (m *KeyedMutex) release(key string, entry *keyedEntry, held bool) {
	if held {
		<-entry.ch
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.locks, key)
	}
}
