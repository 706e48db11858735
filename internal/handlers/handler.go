package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/huddle/internal/hub"
	"github.com/eldtechnologies/huddle/internal/registry"
	"github.com/eldtechnologies/huddle/internal/room"
	"github.com/eldtechnologies/huddle/internal/store"
	"github.com/eldtechnologies/huddle/internal/ws"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	directory  store.RoomDirectory
	mirror     *store.HistoryMirror
	hub        *hub.Hub
	rooms      *room.Store
	sessions   *registry.Registry
	dispatcher ws.Handler
	logger     zerolog.Logger
}

// Options holds the handler dependencies.
type Options struct {
	Directory  store.RoomDirectory
	Mirror     *store.HistoryMirror
	Hub        *hub.Hub
	Rooms      *room.Store
	Sessions   *registry.Registry
	Dispatcher ws.Handler
	Logger     zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(opts Options) *Handler {
	return &Handler{
		directory:  opts.Directory,
		mirror:     opts.Mirror,
		hub:        opts.Hub,
		rooms:      opts.Rooms,
		sessions:   opts.Sessions,
		dispatcher: opts.Dispatcher,
		logger:     opts.Logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
