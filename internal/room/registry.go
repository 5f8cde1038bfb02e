package room

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/coreman2200/pixelwall/internal/pixel"
)

// ErrUnknownRoom is returned by SetActiveRoom for an id with no state.
var ErrUnknownRoom = errors.New("unknown room")

// Registry tracks every room, which one is mirrored to hardware, and
// the gate serializing hardware writes. Rooms are created lazily on
// first reference and never evicted; unbounded growth is an accepted
// limitation of the design.
type Registry struct {
	hw     Flusher
	store  Store
	size   int
	delays Delays
	log    zerolog.Logger

	// runCtx bounds the lifetime of lazily-started room loops.
	runCtx context.Context

	mu     sync.Mutex
	rooms  map[string]*Room
	active string

	// hwGate serializes every hardware write: room flushes and the
	// full-display clear during an active-room switch. At most one
	// in-flight write exists globally because the display is a single
	// shared resource.
	hwGate sync.Mutex
}

// NewRegistry builds a registry for canvases of size cells. Room loops
// started by Get stop when ctx is cancelled.
func NewRegistry(ctx context.Context, hw Flusher, st Store, size int, delays Delays, log zerolog.Logger) *Registry {
	return &Registry{
		hw:     hw,
		store:  st,
		size:   size,
		delays: delays.withDefaults(),
		log:    log,
		runCtx: ctx,
		rooms:  make(map[string]*Room),
	}
}

// Get returns the room for id, creating it on first reference. A new
// room loads its persisted cells (all-unset on absence or corruption)
// and starts its sync loop parked in the inactive branch.
func (g *Registry) Get(ctx context.Context, id string) *Room {
	g.mu.Lock()
	if rm, ok := g.rooms[id]; ok {
		g.mu.Unlock()
		return rm
	}
	g.mu.Unlock()

	cells := pixel.NewCells(g.size)
	if g.store != nil {
		if loaded, err := g.store.LoadCells(ctx, id, g.size); err != nil {
			g.log.Warn().Err(err).Str("room", id).Msg("load failed; starting blank")
		} else {
			cells = loaded
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if rm, ok := g.rooms[id]; ok {
		// Lost the creation race; the winner's state stands.
		return rm
	}
	rm := newRoom(id, cells, g)
	g.rooms[id] = rm
	go rm.Run(g.runCtx)
	g.log.Info().Str("room", id).Msg("room created")
	return rm
}

// IsActive reports whether id is the room mirrored to hardware.
func (g *Registry) IsActive(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active == id
}

// ActiveRoom returns the active room id, empty when none.
func (g *Registry) ActiveRoom() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// SetActiveRoom repoints the hardware mirror. Switching to the already
// active room succeeds with no hardware traffic. An unknown id fails
// with no side effects. Otherwise the display is cleared, the pointer
// repointed, and the new room fully re-marked dirty — all under the
// hardware gate so no room's flush can interleave with the switch.
func (g *Registry) SetActiveRoom(ctx context.Context, id string) error {
	g.mu.Lock()
	if g.active == id {
		g.mu.Unlock()
		return nil
	}
	rm, ok := g.rooms[id]
	if !ok {
		g.mu.Unlock()
		return ErrUnknownRoom
	}
	g.mu.Unlock()

	g.hwGate.Lock()
	defer g.hwGate.Unlock()
	if err := g.hw.Clear(ctx); err != nil {
		// The full repaint below covers whatever the clear left behind.
		g.log.Warn().Err(err).Msg("display clear failed during switch")
	}
	g.mu.Lock()
	g.active = id
	g.mu.Unlock()
	rm.MarkAllDirty()
	g.log.Info().Str("room", id).Msg("active room switched")
	return nil
}

// Info describes one room for the admin surface.
type Info struct {
	ID          string `json:"id"`
	Connections int    `json:"connections"`
	Active      bool   `json:"active"`
}

// ListRooms returns every known room: active first, then by descending
// connection count, then id for a stable order.
func (g *Registry) ListRooms() []Info {
	g.mu.Lock()
	infos := make([]Info, 0, len(g.rooms))
	for id, rm := range g.rooms {
		infos = append(infos, Info{ID: id, Connections: len(rm.conns), Active: id == g.active})
	}
	g.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Active != infos[j].Active {
			return infos[i].Active
		}
		if infos[i].Connections != infos[j].Connections {
			return infos[i].Connections > infos[j].Connections
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}
