package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/huddle/internal/models"
)

type notification struct {
	roomID   string
	connID   string
	username string
	isTyping bool
}

type recorder struct {
	mu    sync.Mutex
	notes []notification
}

func (r *recorder) notify(roomID, connID string, identity models.Identity, isTyping bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, notification{roomID, connID, identity.Username, isTyping})
}

func (r *recorder) all() []notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification(nil), r.notes...)
}

var alice = models.Identity{Username: "alice", Avatar: "🦊"}

func TestTypingCoalesced(t *testing.T) {
	rec := &recorder{}
	a := New(time.Second, rec.notify)

	a.SetTyping("R1", "conn-1", alice, true)
	a.SetTyping("R1", "conn-1", alice, true)
	a.SetTyping("R1", "conn-1", alice, true)

	notes := rec.all()
	require.Len(t, notes, 1)
	assert.True(t, notes[0].isTyping)
	assert.Equal(t, "R1", notes[0].roomID)
}

func TestExplicitStopEmitsOnce(t *testing.T) {
	rec := &recorder{}
	a := New(time.Second, rec.notify)

	a.SetTyping("R1", "conn-1", alice, true)
	a.SetTyping("R1", "conn-1", alice, false)
	a.SetTyping("R1", "conn-1", alice, false)

	notes := rec.all()
	require.Len(t, notes, 2)
	assert.True(t, notes[0].isTyping)
	assert.False(t, notes[1].isTyping)
}

func TestStopWithoutStartIsSilent(t *testing.T) {
	rec := &recorder{}
	a := New(time.Second, rec.notify)

	a.SetTyping("R1", "conn-1", alice, false)
	assert.Empty(t, rec.all())
}

func TestExpiryEmitsExactlyOneStop(t *testing.T) {
	rec := &recorder{}
	a := New(time.Second, rec.notify)

	a.SetTyping("R1", "conn-1", alice, true)

	// Not yet expired.
	a.sweep(time.Now())
	require.Len(t, rec.all(), 1)

	a.sweep(time.Now().Add(2 * time.Second))
	notes := rec.all()
	require.Len(t, notes, 2)
	assert.False(t, notes[1].isTyping)

	// Expired entry is gone; a second sweep stays quiet.
	a.sweep(time.Now().Add(4 * time.Second))
	assert.Len(t, rec.all(), 2)
}

func TestRefreshExtendsDeadline(t *testing.T) {
	rec := &recorder{}
	a := New(time.Second, rec.notify)

	a.SetTyping("R1", "conn-1", alice, true)
	base := time.Now()

	// Refresh just before the original deadline.
	a.SetTyping("R1", "conn-1", alice, true)
	a.sweep(base.Add(900 * time.Millisecond))

	// Still typing: only the initial notification so far.
	assert.Len(t, rec.all(), 1)
}

func TestClearForcesImplicitStop(t *testing.T) {
	rec := &recorder{}
	a := New(time.Second, rec.notify)

	a.SetTyping("R1", "conn-1", alice, true)
	a.Clear("R1", "conn-1")

	notes := rec.all()
	require.Len(t, notes, 2)
	assert.False(t, notes[1].isTyping)

	// Clearing an idle connection emits nothing.
	a.Clear("R1", "conn-1")
	assert.Len(t, rec.all(), 2)
}

func TestRoomsIndependent(t *testing.T) {
	rec := &recorder{}
	a := New(time.Second, rec.notify)

	bob := models.Identity{Username: "bob", Avatar: "🐻"}
	a.SetTyping("R1", "conn-1", alice, true)
	a.SetTyping("R2", "conn-2", bob, true)

	require.Len(t, a.Typing("R1"), 1)
	require.Len(t, a.Typing("R2"), 1)

	a.Clear("R1", "conn-1")
	assert.Empty(t, a.Typing("R1"))
	assert.Len(t, a.Typing("R2"), 1)
}
