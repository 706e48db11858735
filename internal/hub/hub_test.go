package hub

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	id       string
	mu       sync.Mutex
	received [][]byte
	sendErr  error
	closed   bool
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func TestRegisterAndSend(t *testing.T) {
	h := New()
	conn := &mockConn{id: "c1"}
	h.Register(conn)

	require.True(t, h.Send("c1", []byte("hello")))
	require.Len(t, conn.received, 1)
	assert.Equal(t, "hello", string(conn.received[0]))
}

func TestSendUnknownConnection(t *testing.T) {
	h := New()
	assert.False(t, h.Send("ghost", []byte("hello")))
}

func TestSendFailure(t *testing.T) {
	h := New()
	conn := &mockConn{id: "c1", sendErr: errors.New("buffer full")}
	h.Register(conn)

	assert.False(t, h.Send("c1", []byte("hello")))
}

func TestUnregister(t *testing.T) {
	h := New()
	conn := &mockConn{id: "c1"}
	h.Register(conn)
	require.Equal(t, 1, h.Count())

	h.Unregister("c1")
	assert.Equal(t, 0, h.Count())
	assert.False(t, h.Send("c1", []byte("hello")))

	// Unregistering twice is a no-op.
	h.Unregister("c1")
}

func TestGet(t *testing.T) {
	h := New()
	conn := &mockConn{id: "c1"}
	h.Register(conn)

	got, ok := h.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ID())

	_, ok = h.Get("c2")
	assert.False(t, ok)
}
