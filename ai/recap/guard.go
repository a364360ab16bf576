package recap

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// inflight admits one run per document at a time.
type inflight struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  *semaphore.Weighted
	refs int
}

func newInflight() *inflight {
	return &inflight{slots: make(map[string]*slot)}
}

// acquire returns a release func, or false when id already has a run in flight.
func (g *inflight) acquire(id string) (func(), bool) {
	g.mu.Lock()
	s, ok := g.slots[id]
	if !ok {
		s = &slot{sem: semaphore.NewWeighted(1)}
		g.slots[id] = s
	}
	if !s.sem.TryAcquire(1) {
		g.mu.Unlock()
		return nil, false
	}
	s.refs++
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			s.sem.Release(1)
			s.refs--
			if s.refs == 0 {
				delete(g.slots, id)
			}
		})
	}, true
}

// busy reports whether id has a run in flight.
func (g *inflight) busy(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.slots[id]
	return ok
}
