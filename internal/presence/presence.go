// Package presence derives roster events from membership changes. It
// favors full roster snapshots over diffs so clients reconstruct state
// trivially and missed events cannot drift.
package presence

import (
	"time"

	"github.com/eldtechnologies/huddle/internal/models"
	"github.com/eldtechnologies/huddle/internal/room"
)

// Emitter fans presence events out to connections. Implemented by the
// dispatcher.
type Emitter interface {
	// RosterUpdate goes to every member of the room.
	RosterUpdate(roomID string, users []models.Identity, count int)
	// UserJoined goes to every member except the joiner.
	UserJoined(roomID, joinerConnID string, identity models.Identity, at time.Time)
	// UserLeft goes to every remaining member.
	UserLeft(roomID string, identity models.Identity, at time.Time)
}

// Broadcaster computes and emits presence events.
type Broadcaster struct {
	rooms *room.Store
	emit  Emitter
}

// New creates a broadcaster over the given room store.
func New(rooms *room.Store, emit Emitter) *Broadcaster {
	return &Broadcaster{rooms: rooms, emit: emit}
}

// MemberJoined emits the one-shot join event and a fresh roster snapshot
// after a session has been registered.
func (b *Broadcaster) MemberJoined(sess *models.Session) {
	r, ok := b.rooms.Get(sess.RoomID)
	if !ok {
		return
	}
	b.emit.UserJoined(sess.RoomID, sess.ConnID, sess.Identity, time.Now())
	roster := r.Roster()
	b.emit.RosterUpdate(sess.RoomID, roster, len(roster))
}

// MemberLeft emits the one-shot leave event and a fresh roster snapshot
// after a session has been deregistered. The room may already be gone if
// the leaver was its last member and no grace period applies.
func (b *Broadcaster) MemberLeft(sess *models.Session) {
	b.emit.UserLeft(sess.RoomID, sess.Identity, time.Now())

	r, ok := b.rooms.Get(sess.RoomID)
	if !ok {
		return
	}
	roster := r.Roster()
	b.emit.RosterUpdate(sess.RoomID, roster, len(roster))
}
