// Package typing aggregates ephemeral "who is typing" state per room.
// The server is the authority: each entry carries an expiry deadline
// refreshed by client signals and enforced by a periodic sweep, so a
// client that vanishes mid-keystroke still goes quiet after the window.
package typing

import (
	"context"
	"sync"
	"time"

	"github.com/eldtechnologies/huddle/internal/metrics"
	"github.com/eldtechnologies/huddle/internal/models"
)

const sweepInterval = 250 * time.Millisecond

// Notifier receives one notification per observable state change.
// Refreshes while already typing are coalesced and never re-notify.
type Notifier func(roomID, connID string, identity models.Identity, isTyping bool)

type entry struct {
	identity models.Identity
	deadline time.Time
}

// Aggregator tracks typing state for all rooms.
type Aggregator struct {
	mu     sync.Mutex
	rooms  map[string]map[string]*entry // roomID -> connID -> entry
	ttl    time.Duration
	notify Notifier

	stop chan struct{}
	once sync.Once
}

// New creates an aggregator. ttl is the debounce window after the last
// typing signal before the state expires.
func New(ttl time.Duration, notify Notifier) *Aggregator {
	return &Aggregator{
		rooms:  make(map[string]map[string]*entry),
		ttl:    ttl,
		notify: notify,
		stop:   make(chan struct{}),
	}
}

// SetTyping records a typing signal for a room member. A true signal
// while already typing only refreshes the deadline; transitions emit
// exactly one notification.
func (a *Aggregator) SetTyping(roomID, connID string, identity models.Identity, isTyping bool) {
	a.mu.Lock()

	conns := a.rooms[roomID]

	if isTyping {
		if conns == nil {
			conns = make(map[string]*entry)
			a.rooms[roomID] = conns
		}
		if e, ok := conns[connID]; ok {
			// Already typing: refresh only, no re-emit.
			e.deadline = time.Now().Add(a.ttl)
			a.mu.Unlock()
			return
		}
		conns[connID] = &entry{identity: identity, deadline: time.Now().Add(a.ttl)}
		a.mu.Unlock()

		metrics.TypingNotifications.Inc()
		a.notify(roomID, connID, identity, true)
		return
	}

	if conns == nil {
		a.mu.Unlock()
		return
	}
	if _, ok := conns[connID]; !ok {
		a.mu.Unlock()
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(a.rooms, roomID)
	}
	a.mu.Unlock()

	metrics.TypingNotifications.Inc()
	a.notify(roomID, connID, identity, false)
}

// Clear forces an implicit not-typing transition for a connection, used
// when a member leaves its room.
func (a *Aggregator) Clear(roomID, connID string) {
	a.mu.Lock()
	conns := a.rooms[roomID]
	if conns == nil {
		a.mu.Unlock()
		return
	}
	e, ok := conns[connID]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(a.rooms, roomID)
	}
	a.mu.Unlock()

	metrics.TypingNotifications.Inc()
	a.notify(roomID, connID, e.identity, false)
}

// Typing returns the identities currently typing in a room.
func (a *Aggregator) Typing(roomID string) []models.Identity {
	a.mu.Lock()
	defer a.mu.Unlock()

	conns := a.rooms[roomID]
	out := make([]models.Identity, 0, len(conns))
	for _, e := range conns {
		out = append(out, e.identity)
	}
	return out
}

// Start runs the expiry sweep until ctx is cancelled or Stop is called.
func (a *Aggregator) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stop:
				return
			case now := <-ticker.C:
				a.sweep(now)
			}
		}
	}()
}

// Stop halts the expiry sweep.
func (a *Aggregator) Stop() {
	a.once.Do(func() { close(a.stop) })
}

type expired struct {
	roomID   string
	connID   string
	identity models.Identity
}

func (a *Aggregator) sweep(now time.Time) {
	a.mu.Lock()
	var fired []expired
	for roomID, conns := range a.rooms {
		for connID, e := range conns {
			if now.Before(e.deadline) {
				continue
			}
			delete(conns, connID)
			fired = append(fired, expired{roomID: roomID, connID: connID, identity: e.identity})
		}
		if len(conns) == 0 {
			delete(a.rooms, roomID)
		}
	}
	a.mu.Unlock()

	// Notify outside the lock; expiry is one transition, one notification.
	for _, f := range fired {
		metrics.TypingNotifications.Inc()
		a.notify(f.roomID, f.connID, f.identity, false)
	}
}
