// Package protocol is the relay's front door: it routes inbound events
// through an explicit dispatch table and fans handler output back out to
// connections. Handler failures produce a scoped error event on the
// originating connection only.
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/huddle/internal/hub"
	"github.com/eldtechnologies/huddle/internal/metrics"
	"github.com/eldtechnologies/huddle/internal/models"
	"github.com/eldtechnologies/huddle/internal/presence"
	"github.com/eldtechnologies/huddle/internal/registry"
	"github.com/eldtechnologies/huddle/internal/relay"
	"github.com/eldtechnologies/huddle/internal/room"
	"github.com/eldtechnologies/huddle/internal/store"
	"github.com/eldtechnologies/huddle/internal/typing"
)

const maxUsernameLen = 32

type handlerFunc func(ctx context.Context, connID string, data json.RawMessage) error

// Dispatcher wires the session registry, room store, relay, typing
// aggregator, and presence broadcaster behind the event table.
type Dispatcher struct {
	hub       *hub.Hub
	sessions  *registry.Registry
	rooms     *room.Store
	relay     *relay.Relay
	typing    *typing.Aggregator
	presence  *presence.Broadcaster
	directory store.RoomDirectory // optional, nil-safe

	replayLimit int
	logger      zerolog.Logger
	handlers    map[string]handlerFunc
}

// Options configures a Dispatcher.
type Options struct {
	Hub         *hub.Hub
	Sessions    *registry.Registry
	Rooms       *room.Store
	Relay       *relay.Relay
	Directory   store.RoomDirectory
	TypingTTL   time.Duration
	ReplayLimit int
	Logger      zerolog.Logger
}

// New creates a dispatcher and the typing/presence components it feeds.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		hub:         opts.Hub,
		sessions:    opts.Sessions,
		rooms:       opts.Rooms,
		relay:       opts.Relay,
		directory:   opts.Directory,
		replayLimit: opts.ReplayLimit,
		logger:      opts.Logger,
	}
	d.typing = typing.New(opts.TypingTTL, d.notifyTyping)
	d.presence = presence.New(opts.Rooms, d)

	d.handlers = map[string]handlerFunc{
		EventJoinChat:    d.handleJoin,
		EventSendMessage: d.handleSend,
		EventTyping:      d.handleTyping,
	}
	return d
}

// Typing returns the typing aggregator so the process can run its sweep.
func (d *Dispatcher) Typing() *typing.Aggregator {
	return d.typing
}

// Handle routes one inbound frame from a connection.
func (d *Dispatcher) Handle(ctx context.Context, conn hub.Connection, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		d.sendError(conn.ID(), "invalid frame")
		return
	}

	handler, ok := d.handlers[env.Event]
	if !ok {
		d.sendError(conn.ID(), "unknown event")
		return
	}

	if err := handler(ctx, conn.ID(), env.Data); err != nil {
		d.logger.Debug().
			Err(err).
			Str("conn", conn.ID()).
			Str("event", env.Event).
			Msg("handler rejected event")
	}
}

// Disconnected applies Leave semantics for a closed connection. Abrupt
// disconnects and explicit leaves are the same path.
func (d *Dispatcher) Disconnected(conn hub.Connection) {
	d.hub.Unregister(conn.ID())

	sess := d.sessions.Leave(conn.ID())
	if sess == nil {
		return
	}
	d.typing.Clear(sess.RoomID, sess.ConnID)
	d.presence.MemberLeft(sess)

	d.logger.Info().
		Str("conn", sess.ConnID).
		Str("room", sess.RoomID).
		Str("username", sess.Identity.Username).
		Msg("member left")
}

func (d *Dispatcher) handleJoin(ctx context.Context, connID string, data json.RawMessage) error {
	var req JoinChat
	if err := json.Unmarshal(data, &req); err != nil {
		d.sendError(connID, "invalid join payload")
		return err
	}

	roomID := strings.ToUpper(strings.TrimSpace(req.RoomID))
	username := sanitizeUsername(req.Username)
	if roomID == "" || username == "" || req.Avatar == "" {
		d.sendError(connID, "Username and avatar are required")
		return errors.New("missing join fields")
	}

	// Join is strict against the directory: rooms are created through the
	// HTTP API, not implicitly by joining.
	if d.directory != nil {
		info, err := d.directory.GetRoom(ctx, roomID)
		if err != nil {
			d.sendError(connID, "Invalid room ID")
			return err
		}
		if info == nil {
			d.sendError(connID, "Invalid room ID")
			return errors.New("room not found")
		}
	}

	identity := models.Identity{Username: username, Avatar: req.Avatar}
	joined, err := d.sessions.Join(ctx, connID, roomID, identity, d.replayLimit)
	if err != nil {
		if errors.Is(err, registry.ErrDuplicateJoin) {
			d.sendError(connID, "Already joined a room")
		} else {
			d.sendError(connID, "Join failed")
		}
		return err
	}

	if d.directory != nil {
		if err := d.directory.UpdateRoomActivity(ctx, roomID); err != nil {
			d.logger.Warn().Err(err).Str("room", roomID).Msg("activity update failed")
		}
	}

	d.send(connID, EventRoomKey, RoomKey{EncryptionKey: joined.Room.Cipher().KeyBase64()})
	d.send(connID, EventMessageHistory, d.replayHistory(joined.Room, joined.Replay))

	d.presence.MemberJoined(joined.Session)
	d.send(connID, EventJoinedSuccessfully, nil)

	d.logger.Info().
		Str("conn", connID).
		Str("room", roomID).
		Str("username", username).
		Msg("member joined")
	return nil
}

// replayHistory decrypts the snapshot captured at membership
// registration for a new member. Entries whose ciphertext fails
// authentication are skipped.
func (d *Dispatcher) replayHistory(r *room.Room, snapshot []models.Message) MessageHistory {
	messages := make([]ChatMessage, 0, len(snapshot))
	for _, msg := range snapshot {
		plaintext, err := d.relay.Deliver(r, msg)
		if err != nil {
			continue
		}
		messages = append(messages, chatMessage(msg, plaintext))
	}
	metrics.HistoryReplayed.Add(float64(len(messages)))
	return MessageHistory{Messages: messages}
}

func (d *Dispatcher) handleSend(ctx context.Context, connID string, data json.RawMessage) error {
	var req SendMessage
	if err := json.Unmarshal(data, &req); err != nil {
		d.sendError(connID, "invalid message payload")
		return err
	}

	acc, err := d.relay.Submit(ctx, connID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, relay.ErrNotAMember):
			d.sendError(connID, "Not authenticated")
		case errors.Is(err, relay.ErrEmptyMessage):
			d.sendError(connID, "Message is empty")
		case errors.Is(err, relay.ErrMessageTooLarge):
			d.sendError(connID, "Message too large")
		default:
			d.sendError(connID, "Message rejected")
		}
		return err
	}

	// Every recipient captured with the sequence assignment gets the
	// broadcast, sender included, so the sender's view reflects
	// server-assigned ordering rather than a local echo. A member who
	// joined after the capture gets the message in its replay instead.
	// Decryption happens per delivery.
	for _, memberID := range acc.Recipients {
		plaintext, err := d.relay.Deliver(acc.Room, acc.Message)
		if err != nil {
			continue
		}
		d.send(memberID, EventNewMessage, chatMessage(acc.Message, plaintext))
	}
	return nil
}

func (d *Dispatcher) handleTyping(ctx context.Context, connID string, data json.RawMessage) error {
	var req Typing
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}

	sess, err := d.sessions.Lookup(connID)
	if err != nil {
		// Typing from a connection with no session is ignored, as the
		// signal is purely advisory.
		return nil
	}

	d.typing.SetTyping(sess.RoomID, sess.ConnID, sess.Identity, req.IsTyping)
	return nil
}

// notifyTyping is the typing.Notifier: one outbound user_typing per
// observable state change, to everyone but the typist.
func (d *Dispatcher) notifyTyping(roomID, connID string, identity models.Identity, isTyping bool) {
	d.broadcast(roomID, connID, EventUserTyping, UserTyping{
		Username: identity.Username,
		Avatar:   identity.Avatar,
		IsTyping: isTyping,
	})
}

// RosterUpdate implements presence.Emitter.
func (d *Dispatcher) RosterUpdate(roomID string, users []models.Identity, count int) {
	d.broadcast(roomID, "", EventUserListUpdate, UserListUpdate{Users: users, Count: count})
}

// UserJoined implements presence.Emitter.
func (d *Dispatcher) UserJoined(roomID, joinerConnID string, identity models.Identity, at time.Time) {
	d.broadcast(roomID, joinerConnID, EventUserJoined, UserEvent{
		Username:  identity.Username,
		Avatar:    identity.Avatar,
		Timestamp: at.Format(models.DisplayTimeFormat),
	})
}

// UserLeft implements presence.Emitter.
func (d *Dispatcher) UserLeft(roomID string, identity models.Identity, at time.Time) {
	d.broadcast(roomID, "", EventUserLeft, UserEvent{
		Username:  identity.Username,
		Avatar:    identity.Avatar,
		Timestamp: at.Format(models.DisplayTimeFormat),
	})
}

// broadcast fans one event out to a room's members, skipping except.
func (d *Dispatcher) broadcast(roomID, except, event string, payload any) {
	r, ok := d.rooms.Get(roomID)
	if !ok {
		return
	}
	frame, err := Encode(event, payload)
	if err != nil {
		d.logger.Error().Err(err).Str("event", event).Msg("encode failed")
		return
	}
	for _, connID := range r.MemberConnIDs() {
		if connID == except {
			continue
		}
		if !d.hub.Send(connID, frame) {
			metrics.DeliveryFailures.WithLabelValues("send").Inc()
		}
	}
}

// send delivers one event to one connection.
func (d *Dispatcher) send(connID, event string, payload any) {
	frame, err := Encode(event, payload)
	if err != nil {
		d.logger.Error().Err(err).Str("event", event).Msg("encode failed")
		return
	}
	if !d.hub.Send(connID, frame) {
		metrics.DeliveryFailures.WithLabelValues("send").Inc()
	}
}

func (d *Dispatcher) sendError(connID, message string) {
	d.send(connID, EventError, ErrorEvent{Message: message})
}

func chatMessage(msg models.Message, plaintext string) ChatMessage {
	return ChatMessage{
		Username:  msg.Sender.Username,
		Avatar:    msg.Sender.Avatar,
		Message:   plaintext,
		Seq:       msg.Seq,
		Timestamp: msg.Timestamp.Format(models.DisplayTimeFormat),
	}
}

// sanitizeUsername trims, strips control characters, and caps length on
// a rune boundary so multibyte names never truncate mid-rune.
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
