package room

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/huddle/internal/crypto"
	"github.com/eldtechnologies/huddle/internal/metrics"
	"github.com/eldtechnologies/huddle/internal/models"
	"github.com/eldtechnologies/huddle/internal/store"
)

// Store owns all live room state. Operations on different rooms proceed
// independently; the store lock guards only the room map itself.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	masterSecret []byte // empty means random per-room keys
	historyLimit int
	gracePeriod  time.Duration
	mirror       *store.HistoryMirror // optional, nil-safe
	logger       zerolog.Logger
}

// Options configures a Store.
type Options struct {
	// MasterSecret, when set, derives per-room keys with HKDF so keys are
	// stable across restarts. Empty generates a random key per room.
	MasterSecret []byte
	HistoryLimit int
	// GracePeriod is how long an empty room's state is retained to
	// tolerate reconnect races before teardown.
	GracePeriod time.Duration
	Mirror      *store.HistoryMirror
	Logger      zerolog.Logger
}

// NewStore creates an empty room store.
func NewStore(opts Options) *Store {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 100
	}
	return &Store{
		rooms:        make(map[string]*Room),
		masterSecret: opts.MasterSecret,
		historyLimit: opts.HistoryLimit,
		gracePeriod:  opts.GracePeriod,
		mirror:       opts.Mirror,
		logger:       opts.Logger,
	}
}

// GetOrCreate returns the live room for an ID, materializing it on first
// join. The encryption key is created exactly once per room lifetime; a
// pending empty-room teardown is cancelled.
func (s *Store) GetOrCreate(ctx context.Context, roomID string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rooms[roomID]; ok {
		// Bump the generation even when no timer is pending: a teardown
		// decided concurrently must not delete a room just handed out.
		r.mu.Lock()
		r.cancelTeardownLocked()
		r.teardownGen++
		r.mu.Unlock()
		return r, nil
	}

	key, err := s.roomKey(roomID)
	if err != nil {
		return nil, err
	}
	cipher, err := crypto.NewRoomCipher(key)
	if err != nil {
		return nil, err
	}

	r := newRoom(roomID, cipher, s.historyLimit)

	if s.mirror != nil {
		history, err := s.mirror.Load(ctx, roomID, s.historyLimit)
		if err != nil {
			s.logger.Warn().Err(err).Str("room", roomID).Msg("history mirror load failed")
		} else {
			r.seed(history)
		}
	}

	s.rooms[roomID] = r
	metrics.RoomsActive.Inc()
	s.logger.Info().Str("room", roomID).Msg("room materialized")

	return r, nil
}

func (s *Store) roomKey(roomID string) ([]byte, error) {
	if len(s.masterSecret) > 0 {
		return crypto.DeriveRoomKey(s.masterSecret, roomID)
	}
	return crypto.GenerateKey()
}

// Get returns the live room for an ID, if any.
func (s *Store) Get(roomID string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	return r, ok
}

// RemoveMember deregisters a session from its room. When the last member
// leaves, teardown is scheduled after the grace period so a quick
// reconnect reuses the room's key and history.
func (s *Store) RemoveMember(roomID, connID string) {
	r, ok := s.Get(roomID)
	if !ok {
		return
	}

	r.mu.Lock()
	r.removeLocked(connID)
	if len(r.members) > 0 {
		r.mu.Unlock()
		return
	}

	if s.gracePeriod <= 0 {
		gen := r.teardownGen
		r.mu.Unlock()
		s.tearDown(roomID, r, gen)
		return
	}

	if r.teardown == nil {
		r.teardownGen++
		gen := r.teardownGen
		r.teardown = time.AfterFunc(s.gracePeriod, func() {
			s.tearDown(roomID, r, gen)
		})
	}
	r.mu.Unlock()
}

// tearDown removes an empty room. The generation must match the one
// observed when teardown was decided: GetOrCreate and AddMember bump it,
// so a callback that fired before a rejoin but ran after it aborts here.
func (s *Store) tearDown(roomID string, r *Room, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rooms[roomID]
	if !ok || current != r {
		return
	}

	r.mu.Lock()
	if r.teardownGen != gen || len(r.members) > 0 {
		r.mu.Unlock()
		return
	}
	r.teardown = nil
	r.mu.Unlock()

	delete(s.rooms, roomID)
	metrics.RoomsActive.Dec()
	s.logger.Info().Str("room", roomID).Msg("empty room torn down")
}

// AppendHistory appends a message to a room's bounded history, assigning
// its sequence number and capturing the recipient list in the same
// critical section, then mirrors the ciphertext best-effort.
func (s *Store) AppendHistory(ctx context.Context, r *Room, sender models.Identity, ciphertext string) (models.Message, []string) {
	msg, recipients := r.append(sender, ciphertext)

	// Mirror writes stay outside the room lock; a mirror failure never
	// blocks relay.
	if s.mirror != nil {
		if err := s.mirror.Append(ctx, r.ID, msg, s.historyLimit); err != nil {
			s.logger.Warn().Err(err).Str("room", r.ID).Msg("history mirror append failed")
		}
	}

	return msg, recipients
}

// Count returns the number of live rooms.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
