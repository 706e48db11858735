package handlers

import (
	"net/http"
)

// StatsResponse represents the stats endpoint response.
type StatsResponse struct {
	LiveRooms     int   `json:"live_rooms"`
	Sessions      int   `json:"sessions"`
	Connections   int   `json:"connections"`
	RoomsCreated  int64 `json:"rooms_created"`
	TotalMessages int64 `json:"total_messages"`
}

// Stats handles the stats endpoint: live relay state plus directory totals.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		LiveRooms:   h.rooms.Count(),
		Sessions:    h.sessions.Count(),
		Connections: h.hub.Count(),
	}

	if h.directory != nil {
		if count, err := h.directory.CountRooms(r.Context()); err == nil {
			resp.RoomsCreated = count
		}
		if sum, err := h.directory.SumMessageCount(r.Context()); err == nil {
			resp.TotalMessages = sum
		}
	}

	h.JSON(w, http.StatusOK, resp)
}
