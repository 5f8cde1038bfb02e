package room

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/pixelwall/internal/pixel"
)

// Flusher delivers drained batches to the hardware. *wled.Client
// implements it.
type Flusher interface {
	Flush(ctx context.Context, writes []pixel.Write) error
	Clear(ctx context.Context) error
	// Transport reports the path used by the last flush so the loop can
	// pick its retry delay.
	TransportIsHTTP() bool
}

// Store persists cell arrays per room id. store.Store implements it.
type Store interface {
	SaveCells(ctx context.Context, roomID string, cells []pixel.Cell) error
	LoadCells(ctx context.Context, roomID string, n int) ([]pixel.Cell, error)
}

// Delays tune the sync loop cadence.
type Delays struct {
	Idle      time.Duration // recheck interval while inactive or clean
	WSRetry   time.Duration // wake delay after a WebSocket flush
	HTTPRetry time.Duration // wake delay after an HTTP flush
}

func (d Delays) withDefaults() Delays {
	if d.Idle == 0 {
		d.Idle = 250 * time.Millisecond
	}
	if d.WSRetry == 0 {
		d.WSRetry = 150 * time.Millisecond
	}
	if d.HTTPRetry == 0 {
		d.HTTPRetry = time.Second
	}
	return d
}

// Room owns one canvas: its cell array, dirty set, and sync loop. All
// room state is guarded by the registry mutex so registry-wide
// operations (switching, listing) see a consistent view; the room's
// own loop is the sole drainer of its dirty set.
type Room struct {
	ID string

	reg    *Registry
	log    zerolog.Logger
	delays Delays

	// guarded by reg.mu
	cells []pixel.Cell
	dirty map[int]struct{}
	conns map[string]struct{}
}

func newRoom(id string, cells []pixel.Cell, reg *Registry) *Room {
	return &Room{
		ID:     id,
		reg:    reg,
		log:    reg.log.With().Str("room", id).Logger(),
		delays: reg.delays,
		cells:  cells,
		dirty:  make(map[int]struct{}),
		conns:  make(map[string]struct{}),
	}
}

// Apply normalizes and applies a batch of writes, marking touched cells
// dirty. Writes with an out-of-range index are dropped individually;
// the rest of the batch proceeds. The accepted writes are returned in
// input order for broadcasting, and the new state is persisted.
func (r *Room) Apply(ctx context.Context, writes []pixel.Write) []pixel.Write {
	r.reg.mu.Lock()
	accepted := make([]pixel.Write, 0, len(writes))
	for _, w := range writes {
		if w.Index < 0 || w.Index >= len(r.cells) {
			r.log.Debug().Int("index", w.Index).Msg("dropping out-of-range write")
			continue
		}
		color := pixel.NormalizeLoose(w.Color)
		r.cells[w.Index] = pixel.Cell{Color: color, Set: true}
		r.dirty[w.Index] = struct{}{}
		accepted = append(accepted, pixel.Write{Index: w.Index, Color: color})
	}
	snapshot := append([]pixel.Cell(nil), r.cells...)
	r.reg.mu.Unlock()

	if len(accepted) > 0 {
		r.persist(ctx, snapshot)
	}
	return accepted
}

// ClearCells resets every cell to unset and marks the whole canvas
// dirty so the blank state reaches hardware on the next tick.
func (r *Room) ClearCells(ctx context.Context) {
	r.reg.mu.Lock()
	r.cells = pixel.NewCells(len(r.cells))
	for i := range r.cells {
		r.dirty[i] = struct{}{}
	}
	snapshot := append([]pixel.Cell(nil), r.cells...)
	r.reg.mu.Unlock()
	r.persist(ctx, snapshot)
}

// MarkAllDirty schedules a full repaint from authoritative state.
func (r *Room) MarkAllDirty() {
	r.reg.mu.Lock()
	for i := range r.cells {
		r.dirty[i] = struct{}{}
	}
	r.reg.mu.Unlock()
}

// Snapshot copies the current cell array, for fullState broadcasts.
func (r *Room) Snapshot() []pixel.Cell {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	return append([]pixel.Cell(nil), r.cells...)
}

// AddConn registers a subscriber connection id and returns the count.
func (r *Room) AddConn(id string) int {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	r.conns[id] = struct{}{}
	return len(r.conns)
}

// RemoveConn unregisters a subscriber and returns the count.
func (r *Room) RemoveConn(id string) int {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	delete(r.conns, id)
	return len(r.conns)
}

// Connections returns the subscriber count.
func (r *Room) Connections() int {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	return len(r.conns)
}

func (r *Room) persist(ctx context.Context, cells []pixel.Cell) {
	if r.reg.store == nil {
		return
	}
	if err := r.reg.store.SaveCells(ctx, r.ID, cells); err != nil {
		r.log.Warn().Err(err).Msg("persist failed")
	}
}

// Run is the room's cooperative sync loop. Each iteration computes its
// next wake delay; iterations never overlap and a hardware send always
// settles before the next tick. Errors are absorbed so the loop cannot
// fall out of its scheduling cycle.
func (r *Room) Run(ctx context.Context) {
	for {
		delay := r.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// tick runs one Idle/Draining/Sending/Waiting cycle and returns the
// delay before the next one.
func (r *Room) tick(ctx context.Context) time.Duration {
	if !r.reg.IsActive(r.ID) {
		// Parked: inactive rooms keep their loop alive so activation
		// needs no new machinery, but they never touch hardware.
		return r.delays.Idle
	}
	batch := r.drain()
	if len(batch) == 0 {
		return r.delays.Idle
	}
	return r.flushBatch(ctx, batch)
}

// flushBatch delivers one drained batch under the hardware gate. The
// active check runs again once the gate is held: an active-room switch
// may have cleared the display between drain and acquisition, and a
// stale batch must not paint over the new room. A batch that lost the
// mirror goes back to the dirty set for the room's next activation.
func (r *Room) flushBatch(ctx context.Context, batch []pixel.Write) time.Duration {
	// Cancellation stops future ticks, never an in-flight send: a chunk
	// already handed to hardware settles before the loop can advance.
	sendCtx := context.WithoutCancel(ctx)
	r.reg.hwGate.Lock()
	if !r.reg.IsActive(r.ID) {
		r.reg.hwGate.Unlock()
		r.requeue(batch)
		return r.delays.Idle
	}
	err := r.reg.hw.Flush(sendCtx, batch)
	httpUsed := r.reg.hw.TransportIsHTTP()
	r.reg.hwGate.Unlock()

	if err != nil {
		r.log.Warn().Err(err).Int("pixels", len(batch)).Msg("hardware flush failed")
	}
	if httpUsed {
		return r.delays.HTTPRetry
	}
	return r.delays.WSRetry
}

func (r *Room) requeue(batch []pixel.Write) {
	r.reg.mu.Lock()
	for _, w := range batch {
		r.dirty[w.Index] = struct{}{}
	}
	r.reg.mu.Unlock()
}

// drain atomically snapshots and clears the dirty set, resolving each
// index to its current cell color. Writes between ticks coalesce here:
// a cell touched any number of times flushes once with its final value.
// Unset cells drain as black.
func (r *Room) drain() []pixel.Write {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	if len(r.dirty) == 0 {
		return nil
	}
	idxs := make([]int, 0, len(r.dirty))
	for i := range r.dirty {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	r.dirty = make(map[int]struct{})

	batch := make([]pixel.Write, 0, len(idxs))
	for _, i := range idxs {
		color := "000000"
		if r.cells[i].Set {
			color = r.cells[i].Color
		}
		batch = append(batch, pixel.Write{Index: i, Color: color})
	}
	return batch
}
