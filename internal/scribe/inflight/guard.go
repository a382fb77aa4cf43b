// Package inflight tracks the paths that currently have a pipeline running.
package inflight

import (
	"path/filepath"
	"sort"
	"sync"
)

// Guard is a mutex-protected set of paths. The zero value is not usable; call New.
type Guard struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// New creates an empty Guard.
func New() *Guard {
	return &Guard{paths: make(map[string]struct{})}
}

// TryAcquire adds path to the set. It returns false if path is already held.
func (g *Guard) TryAcquire(path string) bool {
	key := filepath.Clean(path)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.paths[key]; held {
		return false
	}
	g.paths[key] = struct{}{}
	return true
}

// Release removes path from the set. Releasing a path that is not held is a no-op.
func (g *Guard) Release(path string) {
	key := filepath.Clean(path)

	g.mu.Lock()
	delete(g.paths, key)
	g.mu.Unlock()
}

// Held reports whether path is in the set.
func (g *Guard) Held(path string) bool {
	key := filepath.Clean(path)

	g.mu.Lock()
	defer g.mu.Unlock()

	_, held := g.paths[key]
	return held
}

// Len returns the number of held paths.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.paths)
}

// Paths returns the held paths in sorted order.
func (g *Guard) Paths() []string {
	g.mu.Lock()
	out := make([]string, 0, len(g.paths))
	for p := range g.paths {
		out = append(out, p)
	}
	g.mu.Unlock()

	sort.Strings(out)
	return out
}
