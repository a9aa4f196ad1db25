package session

import (
	"sync"

	"github.com/kasuwa/accbot/internal/domain"
)

// Arena owns the live controllers, indexed by submitter id. Entries are
// removed explicitly when a controller reaches a terminal state, so the map
// cannot accumulate orphans across the process lifetime.
type Arena struct {
	mu          sync.Mutex
	deps        Deps
	controllers map[int64]*Controller
}

// NewArena builds an empty arena; deps are handed to every new controller.
func NewArena(deps Deps) *Arena {
	return &Arena{
		deps:        deps,
		controllers: make(map[int64]*Controller),
	}
}

// Begin creates a fresh controller for the submitter. When a non-terminal
// controller already exists it is returned with domain.ErrBusy instead of
// racing two attempts on one submitter.
func (a *Arena) Begin(submitterID int64) (*Controller, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.controllers[submitterID]; ok {
		if !existing.State().Terminal() {
			return existing, domain.ErrBusy
		}
	}
	c := NewController(submitterID, a.deps)
	a.controllers[submitterID] = c
	return c, nil
}

// Get returns the submitter's live controller if one exists.
func (a *Arena) Get(submitterID int64) (*Controller, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.controllers[submitterID]
	return c, ok
}

// Remove drops the submitter's controller from the arena.
func (a *Arena) Remove(submitterID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.controllers, submitterID)
}

// Controllers snapshots the current set for the sweep.
func (a *Arena) Controllers() []*Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Controller, 0, len(a.controllers))
	for _, c := range a.controllers {
		out = append(out, c)
	}
	return out
}

// Len reports how many controllers are registered.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.controllers)
}
