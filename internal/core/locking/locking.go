// Package locking provides a keyed mutex used to serialize check-then-act
// sequences per user: attendance marks and device-binding mutation race
// under concurrent requests otherwise.
package locking

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex hands out one mutex per key. Entries are dropped once the
// last holder releases, so the map does not grow with the user base.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*lockEntry)}
}

func (k *KeyedMutex) Lock(key int64) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

func (k *KeyedMutex) Unlock(key int64) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		panic("locking: unlock of unheld key")
	}
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	entry.mu.Unlock()
}
