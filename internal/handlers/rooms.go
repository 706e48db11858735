package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/eldtechnologies/huddle/internal/crypto"
)

const (
	maxUsernameLen = 32
	minPasscodeLen = 6
)

// CreateRoomRequest represents the room creation request.
type CreateRoomRequest struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Passcode string `json:"passcode,omitempty"` // Shared secret for private rooms
}

// CreateRoomResponse represents the room creation response.
type CreateRoomResponse struct {
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// VerifyRoomRequest represents the room verification request.
type VerifyRoomRequest struct {
	RoomID   string `json:"room_id"`
	Passcode string `json:"passcode,omitempty"`
}

// VerifyRoomResponse represents the room verification response.
type VerifyRoomResponse struct {
	Exists bool `json:"exists"`
}

// CreateRoom handles room creation.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Username = sanitizeUsername(req.Username)
	if req.Username == "" || req.Avatar == "" {
		h.Error(w, http.StatusBadRequest, "Username and avatar are required")
		return
	}

	var passcodeHash string
	isPrivate := req.Passcode != ""
	if isPrivate {
		if len(req.Passcode) < minPasscodeLen {
			h.Error(w, http.StatusBadRequest, "passcode must be at least 6 characters")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Passcode), bcrypt.DefaultCost)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to hash passcode")
			return
		}
		passcodeHash = string(hash)
	}

	// Room IDs are short; retry the insert on the rare collision.
	var roomID string
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		roomID = crypto.NewRoomID()
		_, err = h.directory.CreateRoom(r.Context(), roomID, isPrivate, passcodeHash)
		if err == nil {
			break
		}
	}
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	h.logger.Info().Str("room", roomID).Bool("private", isPrivate).Msg("room created")

	h.JSON(w, http.StatusOK, CreateRoomResponse{
		RoomID:   roomID,
		Username: req.Username,
		Avatar:   req.Avatar,
	})
}

// VerifyRoom handles room existence (and passcode) checks before a
// client navigates into the chat view.
func (h *Handler) VerifyRoom(w http.ResponseWriter, r *http.Request) {
	var req VerifyRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	roomID := strings.ToUpper(strings.TrimSpace(req.RoomID))
	if roomID == "" {
		h.Error(w, http.StatusBadRequest, "room_id is required")
		return
	}

	info, err := h.directory.GetRoom(r.Context(), roomID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if info == nil {
		h.JSON(w, http.StatusNotFound, VerifyRoomResponse{Exists: false})
		return
	}

	if info.IsPrivate {
		if req.Passcode == "" {
			h.Error(w, http.StatusForbidden, "passcode required for private rooms")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(info.PasscodeHash), []byte(req.Passcode)); err != nil {
			h.Error(w, http.StatusForbidden, "invalid passcode")
			return
		}
	}

	h.JSON(w, http.StatusOK, VerifyRoomResponse{Exists: true})
}

// sanitizeUsername trims and limits a username, removing control
// characters. The length cap lands on a rune boundary so multibyte names
// never truncate mid-rune.
func sanitizeUsername(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if len(name) > maxUsernameLen {
		cut := maxUsernameLen
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}

	return name
}
