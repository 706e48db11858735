package models

import "time"

// Identity is the display identity a client asserts at join time.
// It is not authenticated beyond what the join request claims.
type Identity struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// Session binds one live connection to one identity within one room.
type Session struct {
	ConnID   string    `json:"conn_id"`
	RoomID   string    `json:"room_id"`
	Identity Identity  `json:"identity"`
	JoinedAt time.Time `json:"joined_at"`
}
