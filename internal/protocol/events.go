package protocol

import (
	"encoding/json"

	"github.com/eldtechnologies/huddle/internal/models"
)

// Inbound event names.
const (
	EventJoinChat    = "join_chat"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
)

// Outbound event names.
const (
	EventRoomKey            = "room_key"
	EventJoinedSuccessfully = "joined_successfully"
	EventMessageHistory     = "message_history"
	EventNewMessage         = "new_message"
	EventUserJoined         = "user_joined"
	EventUserLeft           = "user_left"
	EventUserListUpdate     = "user_list_update"
	EventUserTyping         = "user_typing"
	EventError              = "error"
)

// Envelope is one frame on the wire in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds a wire frame for an outbound event.
func Encode(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// JoinChat is the join_chat payload.
type JoinChat struct {
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// SendMessage is the send_message payload.
type SendMessage struct {
	Message string `json:"message"`
}

// Typing is the inbound typing payload.
type Typing struct {
	IsTyping bool `json:"is_typing"`
}

// RoomKey carries the room's key. Informational: the server performs all
// encryption and decryption in this design.
type RoomKey struct {
	EncryptionKey string `json:"encryption_key"`
}

// ChatMessage is one delivered message, in history replays and
// new_message broadcasts. Message is plaintext, decrypted at delivery;
// renderers must escape it.
type ChatMessage struct {
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	Message   string `json:"message"`
	Seq       uint64 `json:"seq"`
	Timestamp string `json:"timestamp"`
}

// MessageHistory is the replay sent to a newly joined member.
type MessageHistory struct {
	Messages []ChatMessage `json:"messages"`
}

// UserEvent is the user_joined / user_left payload.
type UserEvent struct {
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	Timestamp string `json:"timestamp"`
}

// UserListUpdate is the full roster snapshot.
type UserListUpdate struct {
	Users []models.Identity `json:"users"`
	Count int               `json:"count"`
}

// UserTyping is the outbound typing notification.
type UserTyping struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	IsTyping bool   `json:"is_typing"`
}

// ErrorEvent is the scoped error payload.
type ErrorEvent struct {
	Message string `json:"message"`
}
