// Package relay validates, encrypts, stores, and prepares chat messages
// for broadcast. History holds ciphertext only; plaintext exists at the
// edges: on submission before sealing and at delivery after opening.
package relay

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/huddle/internal/crypto"
	"github.com/eldtechnologies/huddle/internal/metrics"
	"github.com/eldtechnologies/huddle/internal/models"
	"github.com/eldtechnologies/huddle/internal/registry"
	"github.com/eldtechnologies/huddle/internal/room"
	"github.com/eldtechnologies/huddle/internal/store"
)

var (
	// ErrNotAMember is returned when the submitting connection has no
	// session. Non-fatal to the connection.
	ErrNotAMember = errors.New("connection is not a room member")

	// ErrEmptyMessage is returned when the plaintext trims to empty.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLarge is returned when the plaintext exceeds the
	// configured maximum size.
	ErrMessageTooLarge = errors.New("message too large")
)

// Relay accepts plaintext from members and turns it into ordered,
// encrypted room history.
type Relay struct {
	sessions  *registry.Registry
	rooms     *room.Store
	directory store.RoomDirectory // optional, nil-safe
	maxBytes  int
	logger    zerolog.Logger
}

// New creates a relay.
func New(sessions *registry.Registry, rooms *room.Store, directory store.RoomDirectory, maxBytes int, logger zerolog.Logger) *Relay {
	if maxBytes <= 0 {
		maxBytes = 4096
	}
	return &Relay{
		sessions:  sessions,
		rooms:     rooms,
		directory: directory,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// Accepted is the result of a successful Submit: the stored message, the
// room it belongs to, and the recipients captured in the same critical
// section as the sequence assignment. Fan-out goes to exactly these
// connections; a member joining afterwards sees the message in its
// replay snapshot instead.
type Accepted struct {
	Message    models.Message
	Room       *room.Room
	Recipients []string
}

// Submit validates and accepts one message from a connection. On success
// the returned message has its room-unique sequence number assigned and
// its ciphertext appended to history, ready for fan-out.
func (rl *Relay) Submit(ctx context.Context, connID, plaintext string) (Accepted, error) {
	sess, err := rl.sessions.Lookup(connID)
	if err != nil {
		return Accepted{}, ErrNotAMember
	}

	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return Accepted{}, ErrEmptyMessage
	}
	if len(plaintext) > rl.maxBytes {
		return Accepted{}, ErrMessageTooLarge
	}

	r, ok := rl.rooms.Get(sess.RoomID)
	if !ok {
		// Session exists but its room is gone: the membership invariant
		// is broken for this connection.
		return Accepted{}, ErrNotAMember
	}

	// Encryption happens outside the room lock; sequence assignment,
	// the history append, and the recipient capture are atomic inside
	// AppendHistory.
	ciphertext, err := r.Cipher().Encrypt(plaintext)
	if err != nil {
		return Accepted{}, err
	}

	msg, recipients := rl.rooms.AppendHistory(ctx, r, sess.Identity, ciphertext)
	metrics.MessagesRelayed.Inc()

	if rl.directory != nil {
		if err := rl.directory.IncrementMessageCount(ctx, sess.RoomID); err != nil {
			rl.logger.Warn().Err(err).Str("room", sess.RoomID).Msg("message count update failed")
		}
	}

	return Accepted{Message: msg, Room: r, Recipients: recipients}, nil
}

// Deliver decrypts a stored message for one recipient. A ciphertext that
// fails authentication is fatal to this single delivery only; it is
// logged, skipped, and never retried.
func (rl *Relay) Deliver(r *room.Room, msg models.Message) (string, error) {
	plaintext, err := r.Cipher().Decrypt(msg.Ciphertext)
	if err != nil {
		reason := "internal"
		if crypto.IsCryptoError(err) {
			reason = "decrypt"
		}
		metrics.DeliveryFailures.WithLabelValues(reason).Inc()
		rl.logger.Error().
			Err(err).
			Str("room", r.ID).
			Str("msg_id", msg.ID).
			Uint64("seq", msg.Seq).
			Msg("delivery skipped")
		return "", err
	}
	return plaintext, nil
}
