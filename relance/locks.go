// ABOUTME: Per-dossier locking for the tick orchestrator
// ABOUTME: Serializes evaluate, materialize and dispatch for one dossier across goroutines

package relance

import (
	"sync"

	"github.com/google/uuid"
)

type dossierLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu      sync.Mutex
	waiters int
}

func newDossierLocks() *dossierLocks {
	return &dossierLocks{locks: make(map[uuid.UUID]*lockEntry)}
}

// Lock blocks until the dossier is free and returns its unlock function.
// Entries are dropped once nobody holds or waits for them.
func (l *dossierLocks) Lock(id uuid.UUID) func() {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.waiters++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.waiters--
		if e.waiters == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
