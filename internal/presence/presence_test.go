package presence

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/huddle/internal/models"
	"github.com/eldtechnologies/huddle/internal/room"
)

type emitted struct {
	kind   string // "roster", "joined", "left"
	roomID string
	except string
	user   string
	users  []models.Identity
	count  int
}

type fakeEmitter struct {
	events []emitted
}

func (f *fakeEmitter) RosterUpdate(roomID string, users []models.Identity, count int) {
	f.events = append(f.events, emitted{kind: "roster", roomID: roomID, users: users, count: count})
}

func (f *fakeEmitter) UserJoined(roomID, joinerConnID string, identity models.Identity, at time.Time) {
	f.events = append(f.events, emitted{kind: "joined", roomID: roomID, except: joinerConnID, user: identity.Username})
}

func (f *fakeEmitter) UserLeft(roomID string, identity models.Identity, at time.Time) {
	f.events = append(f.events, emitted{kind: "left", roomID: roomID, user: identity.Username})
}

func setup(t *testing.T) (*Broadcaster, *room.Store, *fakeEmitter) {
	t.Helper()
	rooms := room.NewStore(room.Options{HistoryLimit: 10, Logger: zerolog.Nop()})
	emitter := &fakeEmitter{}
	return New(rooms, emitter), rooms, emitter
}

func member(rooms *room.Store, connID, roomID, username string) *models.Session {
	r, _ := rooms.GetOrCreate(context.Background(), roomID)
	sess := &models.Session{
		ConnID:   connID,
		RoomID:   roomID,
		Identity: models.Identity{Username: username, Avatar: "🦊"},
		JoinedAt: time.Now(),
	}
	r.AddMember(sess, 0)
	return sess
}

func TestMemberJoinedEmitsOneShotAndRoster(t *testing.T) {
	b, rooms, emitter := setup(t)

	alice := member(rooms, "conn-1", "R1", "alice")
	b.MemberJoined(alice)

	require.Len(t, emitter.events, 2)

	assert.Equal(t, "joined", emitter.events[0].kind)
	assert.Equal(t, "conn-1", emitter.events[0].except)
	assert.Equal(t, "alice", emitter.events[0].user)

	roster := emitter.events[1]
	assert.Equal(t, "roster", roster.kind)
	assert.Equal(t, 1, roster.count)

	bob := member(rooms, "conn-2", "R1", "bob")
	b.MemberJoined(bob)

	require.Len(t, emitter.events, 4)
	roster = emitter.events[3]
	assert.Equal(t, 2, roster.count)
	// Join order is stable.
	assert.Equal(t, "alice", roster.users[0].Username)
	assert.Equal(t, "bob", roster.users[1].Username)
}

func TestMemberLeftEmitsOneShotAndRoster(t *testing.T) {
	b, rooms, emitter := setup(t)

	member(rooms, "conn-1", "R1", "alice")
	bob := member(rooms, "conn-2", "R1", "bob")

	r, _ := rooms.Get("R1")
	r.RemoveMember("conn-2")
	b.MemberLeft(bob)

	require.Len(t, emitter.events, 2)
	assert.Equal(t, "left", emitter.events[0].kind)
	assert.Equal(t, "bob", emitter.events[0].user)

	roster := emitter.events[1]
	assert.Equal(t, 1, roster.count)
	assert.Equal(t, "alice", roster.users[0].Username)
}

func TestMemberLeftAfterRoomGone(t *testing.T) {
	b, rooms, emitter := setup(t)

	alice := member(rooms, "conn-1", "R1", "alice")
	rooms.RemoveMember("R1", "conn-1") // no grace period: room torn down

	b.MemberLeft(alice)

	// Only the one-shot; no roster for a dead room.
	require.Len(t, emitter.events, 1)
	assert.Equal(t, "left", emitter.events[0].kind)
}
