package service

import (
	"sync"
)

// runGuard ensures only one run writes a given output path at a time.
type runGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

// TryLock marks path as being written. Returns false if a run already holds it.
func (g *runGuard) TryLock(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[path]; ok {
		return false
	}
	g.running[path] = struct{}{}
	return true
}

// Unlock releases path. Must be called after TryLock returns true.
func (g *runGuard) Unlock(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, path)
}
