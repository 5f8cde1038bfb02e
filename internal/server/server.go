package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/pixelwall/internal/room"
	"github.com/coreman2200/pixelwall/internal/utility"
	"github.com/coreman2200/pixelwall/internal/ws"
)

// Server exposes the subscriber WebSocket endpoint and the admin
// surface over one mux.
type Server struct {
	reg         *room.Registry
	hub         *ws.Hub
	util        *utility.Registry
	adminSecret string
	startTime   time.Time
	log         zerolog.Logger
}

// New assembles the HTTP surface.
func New(reg *room.Registry, hub *ws.Hub, util *utility.Registry, adminSecret string, log zerolog.Logger) *Server {
	return &Server{
		reg:         reg,
		hub:         hub,
		util:        util,
		adminSecret: adminSecret,
		startTime:   time.Now(),
		log:         log,
	}
}

// Routes returns the full route table.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{room}", s.hub.HandleRoom)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /admin/rooms", s.admin(s.handleListRooms))
	mux.HandleFunc("POST /admin/rooms/active", s.admin(s.handleSetActive))
	mux.HandleFunc("GET /admin/utilities", s.admin(s.handleListUtilities))
	mux.HandleFunc("POST /admin/utilities/execute", s.admin(s.handleExecuteUtility))
	mux.HandleFunc("POST /admin/utilities/stop", s.admin(s.handleStopUtility))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_s":    time.Since(s.startTime).Seconds(),
		"rooms":       len(s.reg.ListRooms()),
		"active_room": s.reg.ActiveRoom(),
	})
}

// admin gates a handler behind the shared-secret cookie. Missing and
// wrong secrets get the same 401 body, and an unset secret locks the
// surface entirely rather than matching an empty cookie.
func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("admin_secret")
		if s.adminSecret == "" || err != nil ||
			subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(s.adminSecret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rooms": s.reg.ListRooms()})
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing room id"})
		return
	}
	if err := s.reg.SetActiveRoom(r.Context(), req.ID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, room.ErrUnknownRoom) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	s.log.Info().Str("room", req.ID).Msg("admin switched active room")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "active": req.ID})
}

func (s *Server) handleListUtilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"utilities": s.util.List()})
}

func (s *Server) handleExecuteUtility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UtilityID string `json:"utilityId"`
		Room      string `json:"room"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UtilityID == "" || req.Room == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing utilityId or room"})
		return
	}
	if err := s.hub.ExecuteUtility(r.Context(), req.Room, req.UtilityID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStopUtility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Room string `json:"room"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Room == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing room"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "stopped": s.hub.StopUtility(req.Room)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
