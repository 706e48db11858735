package models

import "time"

// RoomInfo is the durable room metadata held in the room directory.
// Live room state (members, history, key) lives in the room store.
type RoomInfo struct {
	ID           string    `json:"id"`
	IsPrivate    bool      `json:"is_private"`
	PasscodeHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	MessageCount int64     `json:"message_count"`
}
