package cas

import (
	"slices"
	"sync"
)

// keyLock is the per-key state held in a lockTable. pins and reclaiming
// are only read or written while mu is held.
type keyLock struct {
	mu      sync.Mutex
	waiters int // goroutines holding or waiting for mu; guarded by lockTable.mu

	// pins counts in-flight uploads that produced or looked up this chunk
	// and have not committed yet. A pinned chunk is never reclaimed.
	pins int

	// reclaiming is non-nil while the chunk's bytes are being deleted;
	// it is closed when the deletion finishes.
	reclaiming chan struct{}
}

// lockTable hands out one mutex per key. Entries exist only while
// someone holds, waits for, or pins the key, so the table stays small.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*keyLock)}
}

// lock acquires the mutex for key and returns its state.
func (t *lockTable) lock(key string) *keyLock {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &keyLock{}
		t.locks[key] = l
	}
	l.waiters++
	t.mu.Unlock()

	l.mu.Lock()
	return l
}

// unlock releases the mutex for key, dropping the entry when it is idle.
func (t *lockTable) unlock(key string, l *keyLock) {
	t.mu.Lock()
	l.waiters--
	if l.waiters == 0 && l.pins == 0 && l.reclaiming == nil {
		delete(t.locks, key)
	}
	t.mu.Unlock()
	l.mu.Unlock()
}

// lockAll locks the distinct keys in sorted order, so that two callers
// locking overlapping sets cannot deadlock.
func (t *lockTable) lockAll(keys []string) map[string]*keyLock {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make(map[string]*keyLock, len(sorted))
	for _, k := range sorted {
		held[k] = t.lock(k)
	}
	return held
}

func (t *lockTable) unlockAll(held map[string]*keyLock) {
	for k, l := range held {
		t.unlock(k, l)
	}
}

// size returns the number of live entries.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
