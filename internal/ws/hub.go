package ws

import (
	"context"
	"encoding/json"
	mathrand "math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/coreman2200/pixelwall/internal/grid"
	"github.com/coreman2200/pixelwall/internal/pixel"
	"github.com/coreman2200/pixelwall/internal/room"
	"github.com/coreman2200/pixelwall/internal/utility"
)

const writeTimeout = 200 * time.Millisecond

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

func newConnID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Hub owns the browser-facing WebSocket connections, fanning inbound
// producer messages into rooms and broadcasting state back to each
// room's subscribers.
type Hub struct {
	reg    *room.Registry
	mapper grid.Mapper
	util   *utility.Registry
	log    zerolog.Logger

	mu      sync.Mutex
	clients map[string]map[*client]bool // room id -> connections
}

type client struct {
	id   string
	conn *websocket.Conn
}

// NewHub wires the hub to the room registry and utility registry.
func NewHub(reg *room.Registry, mapper grid.Mapper, util *utility.Registry, log zerolog.Logger) *Hub {
	return &Hub{
		reg:     reg,
		mapper:  mapper,
		util:    util,
		log:     log,
		clients: make(map[string]map[*client]bool),
	}
}

// HandleRoom upgrades the connection and services one subscriber. The
// room is created lazily on first reference.
func (h *Hub) HandleRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room")
	if roomID == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx := r.Context()
	rm := h.reg.Get(ctx, roomID)
	c := &client{id: newConnID(), conn: conn}

	h.mu.Lock()
	if h.clients[roomID] == nil {
		h.clients[roomID] = make(map[*client]bool)
	}
	h.clients[roomID][c] = true
	h.mu.Unlock()
	count := rm.AddConn(c.id)

	h.send(c, newFullState(rm.Snapshot()))
	h.Broadcast(roomID, userCountMsg{Type: "userCount", Count: count})
	h.log.Debug().Str("room", roomID).Str("conn", c.id).Msg("subscriber joined")

	defer func() {
		h.mu.Lock()
		delete(h.clients[roomID], c)
		h.mu.Unlock()
		conn.Close()
		left := rm.RemoveConn(c.id)
		h.Broadcast(roomID, userCountMsg{Type: "userCount", Count: left})
		h.log.Debug().Str("room", roomID).Str("conn", c.id).Msg("subscriber left")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Debug().Err(err).Str("room", roomID).Msg("dropping malformed message")
			continue
		}
		h.dispatch(ctx, roomID, rm, msg)
	}
}

func (h *Hub) dispatch(ctx context.Context, roomID string, rm *room.Room, msg inbound) {
	switch msg.Type {
	case "draw":
		h.applyPixels(ctx, roomID, rm, []inboundPixel{{X: msg.X, Y: msg.Y, Color: msg.Color}})
	case "batchDraw":
		h.applyPixels(ctx, roomID, rm, msg.Pixels)
	case "clear":
		rm.ClearCells(ctx)
		h.Broadcast(roomID, newFullState(rm.Snapshot()))
	case "executeUtility":
		if err := h.ExecuteUtility(context.Background(), roomID, msg.UtilityID); err != nil {
			h.Broadcast(roomID, utilityResultMsg{
				Type: "utilityResult", UtilityID: msg.UtilityID, OK: false, Error: err.Error(),
			})
		}
	case "stopUtility":
		h.util.Stop(roomID)
		h.Broadcast(roomID, utilityResultMsg{Type: "utilityResult", OK: true})
	default:
		// Unknown message types are ignored.
	}
}

// applyPixels maps coordinates, applies the surviving writes, and
// broadcasts one gridUpdate per accepted cell. A bad coordinate or
// color skips that pixel only.
func (h *Hub) applyPixels(ctx context.Context, roomID string, rm *room.Room, pixels []inboundPixel) {
	writes := make([]pixel.Write, 0, len(pixels))
	for _, p := range pixels {
		color, ok := decodeColor(p.Color)
		if !ok {
			continue
		}
		idx, err := h.mapper.Index(p.X, p.Y)
		if err != nil {
			continue
		}
		writes = append(writes, pixel.Write{Index: idx, Color: color})
	}
	for _, w := range rm.Apply(ctx, writes) {
		h.Broadcast(roomID, gridUpdateMsg{Type: "gridUpdate", Index: w.Index, Color: w.Color})
	}
}

// ExecuteUtility starts utilityID against roomID's canvas and
// broadcasts a utilityResult to the room's subscribers when it settles.
// The returned error covers launch failures only (unknown utility).
func (h *Hub) ExecuteUtility(ctx context.Context, roomID, utilityID string) error {
	rm := h.reg.Get(ctx, roomID)
	canvas := &roomCanvas{hub: h, roomID: roomID, rm: rm}
	return h.util.Execute(context.Background(), roomID, utilityID, canvas, func(err error) {
		res := utilityResultMsg{Type: "utilityResult", UtilityID: utilityID, OK: err == nil}
		if err != nil {
			res.Error = err.Error()
		}
		h.Broadcast(roomID, res)
	})
}

// StopUtility cancels the utility running for roomID, if any.
func (h *Hub) StopUtility(roomID string) bool {
	return h.util.Stop(roomID)
}

// Broadcast sends msg to every subscriber of roomID. Slow consumers hit
// the write deadline and are dropped on their next read.
func (h *Hub) Broadcast(roomID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal broadcast")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[roomID] {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Debug().Err(err).Str("conn", c.id).Msg("broadcast write")
		}
	}
}

func (h *Hub) send(c *client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}

// roomCanvas adapts a room to the utility.Canvas surface so utility
// output follows the same write path as user pixels.
type roomCanvas struct {
	hub    *Hub
	roomID string
	rm     *room.Room
}

func (c *roomCanvas) Width() int  { return c.hub.mapper.Width }
func (c *roomCanvas) Height() int { return c.hub.mapper.Height }

func (c *roomCanvas) Draw(x, y int, color string) {
	idx, err := c.hub.mapper.Index(x, y)
	if err != nil {
		return
	}
	for _, w := range c.rm.Apply(context.Background(), []pixel.Write{{Index: idx, Color: color}}) {
		c.hub.Broadcast(c.roomID, gridUpdateMsg{Type: "gridUpdate", Index: w.Index, Color: w.Color})
	}
}
