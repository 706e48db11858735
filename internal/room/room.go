package room

import (
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/huddle/internal/crypto"
	"github.com/eldtechnologies/huddle/internal/models"
)

// Room is the live state of one chat room. All mutating operations are
// serialized by the room's own mutex; rooms never contend with each other.
type Room struct {
	ID string

	mu      sync.Mutex
	cipher  *crypto.RoomCipher // immutable once set
	members []*models.Session  // join order
	byConn  map[string]*models.Session
	history []models.Message
	lastSeq uint64
	limit   int

	// Pending empty-room teardown. The generation counter invalidates a
	// timer callback that already fired but lost the race against a
	// rejoin; Stop() alone cannot cancel a fired timer.
	teardown    *time.Timer
	teardownGen uint64
}

func newRoom(id string, cipher *crypto.RoomCipher, limit int) *Room {
	return &Room{
		ID:     id,
		cipher: cipher,
		byConn: make(map[string]*models.Session),
		limit:  limit,
	}
}

// Cipher returns the room's cipher. The key is created exactly once at
// room materialization and never rotated.
func (r *Room) Cipher() *crypto.RoomCipher {
	return r.cipher
}

// AddMember registers a session, preserving join order, and returns the
// history snapshot for the joiner's replay. Membership registration and
// the snapshot are one atomic step: a message appended afterwards reaches
// the joiner through broadcast, never through both broadcast and replay.
// Replaces any stale session with the same connection ID.
func (r *Room) AddMember(sess *models.Session, replayLimit int) []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelTeardownLocked()

	if _, ok := r.byConn[sess.ConnID]; ok {
		r.removeLocked(sess.ConnID)
	}
	r.byConn[sess.ConnID] = sess
	r.members = append(r.members, sess)

	return r.snapshotLocked(replayLimit)
}

func (r *Room) cancelTeardownLocked() {
	if r.teardown == nil {
		return
	}
	r.teardown.Stop()
	r.teardown = nil
	r.teardownGen++
}

// RemoveMember deregisters a session and returns the remaining member
// count. No-op (returning the current count) if the connection is not a
// member.
func (r *Room) RemoveMember(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(connID)
	return len(r.members)
}

func (r *Room) removeLocked(connID string) {
	if _, ok := r.byConn[connID]; !ok {
		return
	}
	delete(r.byConn, connID)
	for i, s := range r.members {
		if s.ConnID == connID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
}

// MemberCount returns the current number of members.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// MemberConnIDs returns the connection IDs of all members in join order.
func (r *Room) MemberConnIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, len(r.members))
	for i, s := range r.members {
		ids[i] = s.ConnID
	}
	return ids
}

// Roster returns the member identities in join order.
func (r *Room) Roster() []models.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	roster := make([]models.Identity, len(r.members))
	for i, s := range r.members {
		roster[i] = s.Identity
	}
	return roster
}

// append assigns the next sequence number, appends a message evicting
// the oldest entry at capacity, and captures the recipient connection
// IDs. All three happen under one lock acquisition: a member is either
// in the recipient list or sees the message in a later replay snapshot,
// never both.
func (r *Room) append(sender models.Identity, ciphertext string) (models.Message, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastSeq++
	msg := models.Message{
		ID:         ulid.Make().String(),
		Seq:        r.lastSeq,
		Sender:     sender,
		Ciphertext: ciphertext,
		Timestamp:  time.Now(),
	}

	if n := len(r.history); n > 0 && msg.Seq != r.history[n-1].Seq+1 {
		// A sequence gap is a programming error, fatal to this room.
		panic(fmt.Sprintf("room %s: sequence gap: %d after %d", r.ID, msg.Seq, r.history[n-1].Seq))
	}

	if len(r.history) >= r.limit {
		r.history = r.history[1:]
	}
	r.history = append(r.history, msg)

	recipients := make([]string, len(r.members))
	for i, s := range r.members {
		recipients[i] = s.ConnID
	}
	return msg, recipients
}

// SnapshotHistory returns a consistent point-in-time copy of the newest
// limit messages, oldest first. A limit <= 0 returns the full window.
func (r *Room) SnapshotHistory(limit int) []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(limit)
}

func (r *Room) snapshotLocked(limit int) []models.Message {
	n := len(r.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	snapshot := make([]models.Message, limit)
	copy(snapshot, r.history[n-limit:])
	return snapshot
}

// seed installs mirrored history at materialization, before the room has
// members, and resumes the sequence counter from the mirrored window.
func (r *Room) seed(history []models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(history) == 0 {
		return
	}
	if len(history) > r.limit {
		history = history[len(history)-r.limit:]
	}
	r.history = append(r.history[:0], history...)
	r.lastSeq = history[len(history)-1].Seq
}
