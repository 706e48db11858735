package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/huddle/internal/hub"
	"github.com/eldtechnologies/huddle/internal/models"
	"github.com/eldtechnologies/huddle/internal/registry"
	"github.com/eldtechnologies/huddle/internal/relay"
	"github.com/eldtechnologies/huddle/internal/room"
	"github.com/eldtechnologies/huddle/internal/store"
)

type mockConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, data)
	return nil
}

func (m *mockConn) Close() error { return nil }

func (m *mockConn) snapshot() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	copy(out, m.frames)
	return out
}

// events returns the event names received so far, in order.
func (m *mockConn) events() []string {
	frames := m.snapshot()
	names := make([]string, 0, len(frames))
	for _, f := range frames {
		var env Envelope
		if err := json.Unmarshal(f, &env); err != nil {
			names = append(names, "<bad frame>")
			continue
		}
		names = append(names, env.Event)
	}
	return names
}

// payloads decodes every received frame carrying the named event.
func payloads[T any](t *testing.T, m *mockConn, event string) []T {
	t.Helper()
	var out []T
	for _, f := range m.snapshot() {
		var env Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		if env.Event != event {
			continue
		}
		var p T
		require.NoError(t, json.Unmarshal(env.Data, &p))
		out = append(out, p)
	}
	return out
}

func (m *mockConn) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = nil
}

// stubDirectory is an in-memory RoomDirectory for join validation.
type stubDirectory struct {
	rooms map[string]*models.RoomInfo
}

func newStubDirectory(ids ...string) *stubDirectory {
	d := &stubDirectory{rooms: make(map[string]*models.RoomInfo)}
	for _, id := range ids {
		d.rooms[id] = &models.RoomInfo{ID: id, CreatedAt: time.Now()}
	}
	return d
}

func (d *stubDirectory) Close()                         {}
func (d *stubDirectory) Ping(ctx context.Context) error { return nil }

func (d *stubDirectory) CreateRoom(ctx context.Context, id string, isPrivate bool, passcodeHash string) (*models.RoomInfo, error) {
	if _, ok := d.rooms[id]; ok {
		return nil, fmt.Errorf("room %s exists", id)
	}
	info := &models.RoomInfo{ID: id, IsPrivate: isPrivate, PasscodeHash: passcodeHash, CreatedAt: time.Now()}
	d.rooms[id] = info
	return info, nil
}

func (d *stubDirectory) GetRoom(ctx context.Context, id string) (*models.RoomInfo, error) {
	return d.rooms[id], nil
}

func (d *stubDirectory) UpdateRoomActivity(ctx context.Context, id string) error    { return nil }
func (d *stubDirectory) IncrementMessageCount(ctx context.Context, id string) error { return nil }
func (d *stubDirectory) CountRooms(ctx context.Context) (int64, error) {
	return int64(len(d.rooms)), nil
}
func (d *stubDirectory) SumMessageCount(ctx context.Context) (int64, error) { return 0, nil }

type testStack struct {
	dispatcher *Dispatcher
	hub        *hub.Hub
	sessions   *registry.Registry
	rooms      *room.Store
}

func newTestStack(t *testing.T, directory store.RoomDirectory) *testStack {
	t.Helper()
	rooms := room.NewStore(room.Options{HistoryLimit: 100, Logger: zerolog.Nop()})
	sessions := registry.New(rooms)
	h := hub.New()
	rl := relay.New(sessions, rooms, directory, 4096, zerolog.Nop())

	d := New(Options{
		Hub:         h,
		Sessions:    sessions,
		Rooms:       rooms,
		Relay:       rl,
		Directory:   directory,
		TypingTTL:   time.Second,
		ReplayLimit: 50,
		Logger:      zerolog.Nop(),
	})
	return &testStack{dispatcher: d, hub: h, sessions: sessions, rooms: rooms}
}

func (s *testStack) connect(id string) *mockConn {
	conn := &mockConn{id: id}
	s.hub.Register(conn)
	return conn
}

func frame(t *testing.T, event string, payload any) []byte {
	t.Helper()
	b, err := Encode(event, payload)
	require.NoError(t, err)
	return b
}

func joinRoom(t *testing.T, s *testStack, conn *mockConn, roomID, username string) {
	t.Helper()
	s.dispatcher.Handle(context.Background(), conn, frame(t, EventJoinChat, JoinChat{
		RoomID:   roomID,
		Username: username,
		Avatar:   "🦊",
	}))
	require.Contains(t, conn.events(), EventJoinedSuccessfully, "join failed: %v", conn.events())
}

func TestJoinSendsKeyHistoryRosterAndAck(t *testing.T) {
	s := newTestStack(t, newStubDirectory("R1TEST00"))
	alice := s.connect("conn-alice")

	joinRoom(t, s, alice, "R1TEST00", "Alice")

	assert.Equal(t, []string{
		EventRoomKey,
		EventMessageHistory,
		EventUserListUpdate,
		EventJoinedSuccessfully,
	}, alice.events())

	keys := payloads[RoomKey](t, alice, EventRoomKey)
	require.Len(t, keys, 1)
	assert.NotEmpty(t, keys[0].EncryptionKey)

	history := payloads[MessageHistory](t, alice, EventMessageHistory)
	require.Len(t, history, 1)
	assert.Empty(t, history[0].Messages)

	rosters := payloads[UserListUpdate](t, alice, EventUserListUpdate)
	require.Len(t, rosters, 1)
	assert.Equal(t, 1, rosters[0].Count)
	require.Len(t, rosters[0].Users, 1)
	assert.Equal(t, "Alice", rosters[0].Users[0].Username)
}

func TestSecondJoinerNotifiesExistingMembers(t *testing.T) {
	s := newTestStack(t, newStubDirectory("R1TEST00"))
	alice := s.connect("conn-alice")
	bob := s.connect("conn-bob")

	joinRoom(t, s, alice, "R1TEST00", "Alice")
	alice.reset()

	joinRoom(t, s, bob, "R1TEST00", "Bob")

	// Alice sees Bob arrive; she does not get his key or history replay.
	joined := payloads[UserEvent](t, alice, EventUserJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "Bob", joined[0].Username)
	assert.NotContains(t, alice.events(), EventRoomKey)

	// Both receive the new roster, in join order.
	for _, conn := range []*mockConn{alice, bob} {
		rosters := payloads[UserListUpdate](t, conn, EventUserListUpdate)
		require.NotEmpty(t, rosters, "no roster on %s", conn.id)
		last := rosters[len(rosters)-1]
		assert.Equal(t, 2, last.Count)
		require.Len(t, last.Users, 2)
		assert.Equal(t, "Alice", last.Users[0].Username)
		assert.Equal(t, "Bob", last.Users[1].Username)
	}

	// Bob never sees a user_joined for himself.
	assert.Empty(t, payloads[UserEvent](t, bob, EventUserJoined))
}

func TestSendBroadcastsToAllMembersIncludingSender(t *testing.T) {
	s := newTestStack(t, newStubDirectory("R1TEST00"))
	alice := s.connect("conn-alice")
	bob := s.connect("conn-bob")
	joinRoom(t, s, alice, "R1TEST00", "Alice")
	joinRoom(t, s, bob, "R1TEST00", "Bob")
	alice.reset()
	bob.reset()

	s.dispatcher.Handle(context.Background(), alice, frame(t, EventSendMessage, SendMessage{Message: "hi"}))

	for _, conn := range []*mockConn{alice, bob} {
		msgs := payloads[ChatMessage](t, conn, EventNewMessage)
		require.Len(t, msgs, 1, "on %s", conn.id)
		assert.Equal(t, "Alice", msgs[0].Username)
		assert.Equal(t, "hi", msgs[0].Message)
		assert.Equal(t, uint64(1), msgs[0].Seq)
		assert.NotEmpty(t, msgs[0].Timestamp)
	}
}

func TestLateJoinerReceivesHistoryReplay(t *testing.T) {
	s := newTestStack(t, newStubDirectory("R1TEST00"))
	alice := s.connect("conn-alice")
	joinRoom(t, s, alice, "R1TEST00", "Alice")

	for i := 1; i <= 3; i++ {
		s.dispatcher.Handle(context.Background(), alice, frame(t, EventSendMessage, SendMessage{Message: fmt.Sprintf("msg %d", i)}))
	}

	bob := s.connect("conn-bob")
	joinRoom(t, s, bob, "R1TEST00", "Bob")

	history := payloads[MessageHistory](t, bob, EventMessageHistory)
	require.Len(t, history, 1)
	msgs := history[0].Messages
	require.Len(t, msgs, 3)
	for i, msg := range msgs {
		assert.Equal(t, uint64(i+1), msg.Seq)
		assert.Equal(t, fmt.Sprintf("msg %d", i+1), msg.Message)
		assert.Equal(t, "Alice", msg.Username)
	}
}

func TestTypingExcludesTypist(t *testing.T) {
	s := newTestStack(t, newStubDirectory("R1TEST00"))
	alice := s.connect("conn-alice")
	bob := s.connect("conn-bob")
	joinRoom(t, s, alice, "R1TEST00", "Alice")
	joinRoom(t, s, bob, "R1TEST00", "Bob")
	alice.reset()
	bob.reset()

	s.dispatcher.Handle(context.Background(), bob, frame(t, EventTyping, Typing{IsTyping: true}))

	typed := payloads[UserTyping](t, alice, EventUserTyping)
	require.Len(t, typed, 1)
	assert.Equal(t, "Bob", typed[0].Username)
	assert.True(t, typed[0].IsTyping)

	assert.Empty(t, payloads[UserTyping](t, bob, EventUserTyping))

	// Refreshing an active typing state does not re-broadcast.
	s.dispatcher.Handle(context.Background(), bob, frame(t, EventTyping, Typing{IsTyping: true}))
	assert.Len(t, payloads[UserTyping](t, alice, EventUserTyping), 1)
}

func TestDisconnectNotifiesRoomAndClearsTyping(t *testing.T) {
	s := newTestStack(t, newStubDirectory("R1TEST00"))
	alice := s.connect("conn-alice")
	bob := s.connect("conn-bob")
	joinRoom(t, s, alice, "R1TEST00", "Alice")
	joinRoom(t, s, bob, "R1TEST00", "Bob")

	s.dispatcher.Handle(context.Background(), bob, frame(t, EventTyping, Typing{IsTyping: true}))
	alice.reset()

	s.dispatcher.Disconnected(bob)

	// Alice sees the typing indicator drop, then the departure.
	typed := payloads[UserTyping](t, alice, EventUserTyping)
	require.Len(t, typed, 1)
	assert.Equal(t, "Bob", typed[0].Username)
	assert.False(t, typed[0].IsTyping)

	left := payloads[UserEvent](t, alice, EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "Bob", left[0].Username)

	rosters := payloads[UserListUpdate](t, alice, EventUserListUpdate)
	require.Len(t, rosters, 1)
	assert.Equal(t, 1, rosters[0].Count)

	// Bob's session and connection are gone.
	_, err := s.sessions.Lookup("conn-bob")
	assert.Error(t, err)
	assert.Equal(t, 1, s.hub.Count())
}

func TestDisconnectWithoutSessionIsQuiet(t *testing.T) {
	s := newTestStack(t, newStubDirectory("R1TEST00"))
	conn := s.connect("conn-1")

	s.dispatcher.Disconnected(conn)
	assert.Equal(t, 0, s.hub.Count())
}

func TestJoinUnknownRoomRejected(t *testing.T) {
	s := newTestStack(t, newStubDirectory("R1TEST00"))
	conn := s.connect("conn-1")

	s.dispatcher.Handle(context.Background(), conn, frame(t, EventJoinChat, JoinChat{
		RoomID:   "NOPE0000",
		Username: "Alice",
		Avatar:   "🦊",
	}))

	errs := payloads[ErrorEvent](t, conn, EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Invalid room ID", errs[0].Message)
	assert.NotContains(t, conn.events(), EventJoinedSuccessfully)
	assert.Equal(t, 0, s.rooms.Count())
}

func TestJoinCanonicalizesRoomID(t *testing.T) {
	s := newTestStack(t, newStubDirectory("R1TEST00"))
	conn := s.connect("conn-1")

	joinRoom(t, s, conn, "r1test00", "Alice")

	sess, err := s.sessions.Lookup("conn-1")
	require.NoError(t, err)
	assert.Equal(t, "R1TEST00", sess.RoomID)
}

func TestDuplicateJoinRejected(t *testing.T) {
	s := newTestStack(t, newStubDirectory("R1TEST00", "R2TEST00"))
	conn := s.connect("conn-1")
	joinRoom(t, s, conn, "R1TEST00", "Alice")
	conn.reset()

	s.dispatcher.Handle(context.Background(), conn, frame(t, EventJoinChat, JoinChat{
		RoomID:   "R2TEST00",
		Username: "Alice",
		Avatar:   "🦊",
	}))

	errs := payloads[ErrorEvent](t, conn, EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Already joined a room", errs[0].Message)

	sess, err := s.sessions.Lookup("conn-1")
	require.NoError(t, err)
	assert.Equal(t, "R1TEST00", sess.RoomID)
}

func TestJoinRequiresUsernameAndAvatar(t *testing.T) {
	s := newTestStack(t, newStubDirectory("R1TEST00"))
	conn := s.connect("conn-1")

	s.dispatcher.Handle(context.Background(), conn, frame(t, EventJoinChat, JoinChat{
		RoomID: "R1TEST00",
	}))

	errs := payloads[ErrorEvent](t, conn, EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Username and avatar are required", errs[0].Message)
}

func TestSendWithoutJoinRejected(t *testing.T) {
	s := newTestStack(t, nil)
	conn := s.connect("conn-1")

	s.dispatcher.Handle(context.Background(), conn, frame(t, EventSendMessage, SendMessage{Message: "hi"}))

	errs := payloads[ErrorEvent](t, conn, EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Not authenticated", errs[0].Message)
}

func TestEmptyMessageRejected(t *testing.T) {
	s := newTestStack(t, newStubDirectory("R1TEST00"))
	conn := s.connect("conn-1")
	joinRoom(t, s, conn, "R1TEST00", "Alice")
	conn.reset()

	s.dispatcher.Handle(context.Background(), conn, frame(t, EventSendMessage, SendMessage{Message: "   "}))

	errs := payloads[ErrorEvent](t, conn, EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Message is empty", errs[0].Message)
}

func TestMalformedFrame(t *testing.T) {
	s := newTestStack(t, nil)
	conn := s.connect("conn-1")

	s.dispatcher.Handle(context.Background(), conn, []byte("not json"))

	errs := payloads[ErrorEvent](t, conn, EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "invalid frame", errs[0].Message)
}

func TestUnknownEvent(t *testing.T) {
	s := newTestStack(t, nil)
	conn := s.connect("conn-1")

	s.dispatcher.Handle(context.Background(), conn, frame(t, "drop_table", nil))

	errs := payloads[ErrorEvent](t, conn, EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "unknown event", errs[0].Message)
}

func TestTypingWithoutSessionIgnored(t *testing.T) {
	s := newTestStack(t, nil)
	conn := s.connect("conn-1")

	s.dispatcher.Handle(context.Background(), conn, frame(t, EventTyping, Typing{IsTyping: true}))
	assert.Empty(t, conn.snapshot())
}

func TestJoinDuringBroadcastDeliversEachMessageOnce(t *testing.T) {
	const total = 40

	s := newTestStack(t, newStubDirectory("R1TEST00"))
	alice := s.connect("conn-alice")
	joinRoom(t, s, alice, "R1TEST00", "Alice")

	frames := make([][]byte, total)
	for i := range frames {
		frames[i] = frame(t, EventSendMessage, SendMessage{Message: fmt.Sprintf("msg %d", i+1)})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, f := range frames {
			s.dispatcher.Handle(context.Background(), alice, f)
		}
	}()

	bob := s.connect("conn-bob")
	joinRoom(t, s, bob, "R1TEST00", "Bob")
	<-done

	history := payloads[MessageHistory](t, bob, EventMessageHistory)
	require.Len(t, history, 1)

	seen := make(map[uint64]int, total)
	var replayMax uint64
	for _, msg := range history[0].Messages {
		seen[msg.Seq]++
		if msg.Seq > replayMax {
			replayMax = msg.Seq
		}
	}
	for _, msg := range payloads[ChatMessage](t, bob, EventNewMessage) {
		assert.Greater(t, msg.Seq, replayMax, "live message predates the replay snapshot")
		seen[msg.Seq]++
	}

	require.Len(t, seen, total)
	for seq := uint64(1); seq <= total; seq++ {
		assert.Equal(t, 1, seen[seq], "seq %d", seq)
	}
}

func TestSanitizeUsernameKeepsRunesIntact(t *testing.T) {
	long := "a" + strings.Repeat("é", 30)
	got := sanitizeUsername(long)

	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxUsernameLen)
	assert.True(t, strings.HasPrefix(long, got))

	ascii := strings.Repeat("x", 40)
	assert.Equal(t, ascii[:maxUsernameLen], sanitizeUsername(ascii))
	assert.Equal(t, "Alice", sanitizeUsername("  Alice\n"))
}
