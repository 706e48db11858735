// Package registry owns the binding between live connections and room
// sessions. Exactly one session exists per connection; a connection
// belongs to at most one room at a time.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eldtechnologies/huddle/internal/models"
	"github.com/eldtechnologies/huddle/internal/room"
)

var (
	// ErrDuplicateJoin is returned when a connection that already has a
	// session attempts to join. Terminal for that connection.
	ErrDuplicateJoin = errors.New("connection already joined a room")

	// ErrNotFound is returned by Lookup for connections with no session.
	ErrNotFound = errors.New("no session for connection")
)

// Registry maps connection IDs to sessions and keeps room membership in
// the room store in step with session lifecycle.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	rooms    *room.Store
}

// New creates a registry backed by the given room store.
func New(rooms *room.Store) *Registry {
	return &Registry{
		sessions: make(map[string]*models.Session),
		rooms:    rooms,
	}
}

// Joined is the result of a successful Join: the session, the live room,
// and the history snapshot captured atomically with membership
// registration. Messages appended after the snapshot reach the joiner
// through broadcast only.
type Joined struct {
	Session *models.Session
	Room    *room.Room
	Replay  []models.Message
}

// Join creates a session for a connection and registers it as a member
// of the room, materializing the room on first join. Fails with
// ErrDuplicateJoin if the connection already has a session.
func (r *Registry) Join(ctx context.Context, connID, roomID string, identity models.Identity, replayLimit int) (*Joined, error) {
	r.mu.Lock()
	if _, ok := r.sessions[connID]; ok {
		r.mu.Unlock()
		return nil, ErrDuplicateJoin
	}
	sess := &models.Session{
		ConnID:   connID,
		RoomID:   roomID,
		Identity: identity,
		JoinedAt: time.Now(),
	}
	r.sessions[connID] = sess
	r.mu.Unlock()

	rm, err := r.rooms.GetOrCreate(ctx, roomID)
	if err != nil {
		r.mu.Lock()
		delete(r.sessions, connID)
		r.mu.Unlock()
		return nil, err
	}
	replay := rm.AddMember(sess, replayLimit)

	return &Joined{Session: sess, Room: rm, Replay: replay}, nil
}

// Leave destroys a connection's session and deregisters its room
// membership. No-op returning nil if the connection has no session.
// Abrupt disconnects take exactly this path.
func (r *Registry) Leave(connID string) *models.Session {
	r.mu.Lock()
	sess, ok := r.sessions[connID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.sessions, connID)
	r.mu.Unlock()

	r.rooms.RemoveMember(sess.RoomID, connID)
	return sess
}

// Lookup returns the session for a connection, or ErrNotFound.
func (r *Registry) Lookup(connID string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
