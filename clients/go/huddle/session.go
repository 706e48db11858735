package huddle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// Event names on the chat socket.
const (
	EventJoinChat    = "join_chat"
	EventSendMessage = "send_message"
	EventTyping      = "typing"

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

// Event is one frame received from the server.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChatMessage is one delivered message.
type ChatMessage struct {
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	Message   string `json:"message"`
	Seq       uint64 `json:"seq"`
	Timestamp string `json:"timestamp"`
}

// MessageHistory is the replay received after joining.
type MessageHistory struct {
	Messages []ChatMessage `json:"messages"`
}

// User identifies a room member.
type User struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// UserEvent is a user_joined or user_left notification.
type UserEvent struct {
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	Timestamp string `json:"timestamp"`
}

// UserListUpdate is the full roster snapshot.
type UserListUpdate struct {
	Users []User `json:"users"`
	Count int    `json:"count"`
}

// UserTyping is a typing notification for another member.
type UserTyping struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	IsTyping bool   `json:"is_typing"`
}

// ErrorEvent is a server-side rejection scoped to this connection.
type ErrorEvent struct {
	Message string `json:"message"`
}

// Session is one live websocket connection to the relay.
type Session struct {
	conn *websocket.Conn
}

// Connect dials the relay's websocket endpoint.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	endpoint, err := c.wsURL()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return &Session{conn: conn}, nil
}

// Join enters a room. The server answers with room_key, message_history,
// user_list_update, and joined_successfully frames, in that order.
func (s *Session) Join(roomID, username, avatar string) error {
	return s.emit(EventJoinChat, map[string]string{
		"room_id":  roomID,
		"username": username,
		"avatar":   avatar,
	})
}

// Send submits a chat message. The server broadcasts it back, sender
// included, carrying the assigned sequence number.
func (s *Session) Send(message string) error {
	return s.emit(EventSendMessage, map[string]string{"message": message})
}

// Typing reports the local typing state.
func (s *Session) Typing(isTyping bool) error {
	return s.emit(EventTyping, map[string]bool{"is_typing": isTyping})
}

// Next blocks until the next server frame arrives.
func (s *Session) Next() (*Event, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Close closes the websocket connection.
func (s *Session) Close() error {
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

func (s *Session) emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.conn.WriteJSON(Event{Event: event, Data: data})
}
