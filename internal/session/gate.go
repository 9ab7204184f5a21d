package session

import "sync"

// sessionGate serializes event handling per session while leaving
// unrelated sessions fully parallel. Each live session owns one mutex;
// acquire blocks until the holder releases it. The entry is dropped at
// teardown, so a waiter that wakes after the session ended must
// re-check the registry before touching state.
type sessionGate struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionGate() *sessionGate {
	return &sessionGate{locks: make(map[string]*sync.Mutex)}
}

func (g *sessionGate) add(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.locks[id]; !ok {
		g.locks[id] = &sync.Mutex{}
	}
}

// acquire locks the session's mutex and returns the unlock function.
// ok is false when the session has no gate entry, meaning it never
// existed or has already been torn down.
func (g *sessionGate) acquire(id string) (unlock func(), ok bool) {
	g.mu.Lock()
	l, ok := g.locks[id]
	g.mu.Unlock()
	if !ok {
		return nil, false
	}
	l.Lock()
	return l.Unlock, true
}

func (g *sessionGate) drop(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.locks, id)
}
