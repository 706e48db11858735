package models

import "time"

// DisplayTimeFormat is the wall-clock format sent to clients. Timestamps
// are advisory display state only; Seq is the ordering authority.
const DisplayTimeFormat = "15:04"

// Message is a relayed chat message as held in room history.
// Ciphertext is the base64 AEAD wire format; plaintext is never stored.
type Message struct {
	ID         string    `json:"id"` // ULID
	Seq        uint64    `json:"seq"`
	Sender     Identity  `json:"sender"`
	Ciphertext string    `json:"ciphertext"`
	Timestamp  time.Time `json:"ts"`
}
