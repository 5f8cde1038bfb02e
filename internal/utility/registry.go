package utility

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Canvas is the drawing surface a utility writes into. The ws hub
// provides one backed by a room so utility output flows through the
// same write path as user pixels.
type Canvas interface {
	Width() int
	Height() int
	Draw(x, y int, color string)
}

// Utility computes decorative canvas content (contribution graphs, stat
// bars and the like). Run should return promptly when ctx is cancelled.
type Utility interface {
	ID() string
	Describe() string
	Run(ctx context.Context, canvas Canvas) error
}

// Registry holds the installed utilities and at most one running
// instance per room; executing a new utility cancels the previous one.
type Registry struct {
	log zerolog.Logger

	mu      sync.Mutex
	byID    map[string]Utility
	order   []string
	running map[string]*runHandle // keyed by room id
}

type runHandle struct {
	cancel context.CancelFunc
}

// NewRegistry returns an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log:     log,
		byID:    make(map[string]Utility),
		running: make(map[string]*runHandle),
	}
}

// Register installs a utility; a duplicate id replaces the previous one.
func (r *Registry) Register(u Utility) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[u.ID()]; !ok {
		r.order = append(r.order, u.ID())
	}
	r.byID[u.ID()] = u
}

// Info describes an installed utility.
type Info struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// List returns installed utilities in registration order.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	infos := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		infos = append(infos, Info{ID: id, Description: r.byID[id].Describe()})
	}
	return infos
}

// Execute starts the named utility against canvas for roomID, stopping
// any utility already running there. done is called with the utility's
// result once it settles.
func (r *Registry) Execute(ctx context.Context, roomID, utilityID string, canvas Canvas, done func(err error)) error {
	r.mu.Lock()
	u, ok := r.byID[utilityID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("unknown utility %q", utilityID)
	}
	if prev, running := r.running[roomID]; running {
		prev.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	h := &runHandle{cancel: cancel}
	r.running[roomID] = h
	r.mu.Unlock()

	go func() {
		err := u.Run(runCtx, canvas)
		r.mu.Lock()
		if r.running[roomID] == h {
			delete(r.running, roomID)
		}
		r.mu.Unlock()
		if err != nil && runCtx.Err() == nil {
			r.log.Warn().Err(err).Str("utility", utilityID).Str("room", roomID).Msg("utility failed")
		}
		if done != nil {
			done(err)
		}
	}()
	return nil
}

// Stop cancels the utility running for roomID, if any.
func (r *Registry) Stop(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.running[roomID]
	if ok {
		h.cancel()
		delete(r.running, roomID)
	}
	return ok
}
