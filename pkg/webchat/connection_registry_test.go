package webchat

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/topicchat/pkg/agents"
	"github.com/go-go-golems/topicchat/pkg/protocol"
	"github.com/go-go-golems/topicchat/pkg/session"
)

type stubConn struct {
	mu       sync.Mutex
	frames   [][]byte
	blockCh  chan struct{}
	closedCh chan struct{}
	failWith error
}

func newStubConn(blockWrites bool) *stubConn {
	blockCh := make(chan struct{})
	if !blockWrites {
		close(blockCh)
	}
	return &stubConn{blockCh: blockCh, closedCh: make(chan struct{})}
}

func (s *stubConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-s.closedCh:
		return errors.New("closed")
	case <-s.blockCh:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.frames = append(s.frames, append([]byte(nil), data...))
	return nil
}

func (s *stubConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closedCh:
	default:
		close(s.closedCh)
	}
	return nil
}

func (s *stubConn) SetWriteDeadline(_ time.Time) error {
	return nil
}

func (s *stubConn) closed() bool {
	select {
	case <-s.closedCh:
		return true
	default:
		return false
	}
}

func (s *stubConn) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		var env protocol.Envelope
		if err := json.Unmarshal(f, &env); err == nil {
			out = append(out, env.Type)
		}
	}
	return out
}

func newTestRegistry(t *testing.T, opts ...RegistryOption) *ConnectionRegistry {
	t.Helper()
	store := session.NewStore(agents.NewDefaultCatalog())
	return NewConnectionRegistry(store, opts...)
}

func TestRegistryRegisterCreatesEmptySession(t *testing.T) {
	reg := newTestRegistry(t)
	id, ctx := reg.Register(newStubConn(false))

	require.NotEmpty(t, id)
	require.NoError(t, ctx.Err())
	require.True(t, reg.Has(id))
	require.True(t, reg.Sessions().HasSession(id))
	require.Empty(t, reg.Sessions().ListTopics(id))
	require.Equal(t, 1, reg.Count())
}

func TestRegistryIDsAreUnique(t *testing.T) {
	ids := []string{"a", "a", "b"}
	i := 0
	reg := newTestRegistry(t, WithConnectionIDGenerator(func() string {
		id := ids[i]
		i++
		return id
	}))

	first, _ := reg.Register(newStubConn(false))
	second, _ := reg.Register(newStubConn(false))
	require.Equal(t, "a", first)
	require.Equal(t, "b", second)
}

func TestRegistrySkipsIDsWithExistingSession(t *testing.T) {
	ids := []string{"a", "b"}
	i := 0
	reg := newTestRegistry(t, WithConnectionIDGenerator(func() string {
		id := ids[i]
		i++
		return id
	}))
	reg.Sessions().CreateSession("a")

	id, _ := reg.Register(newStubConn(false))
	require.Equal(t, "b", id)
}

func TestRegistryUnregisterIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t)
	conn := newStubConn(false)
	id, ctx := reg.Register(conn)

	reg.Unregister(id)
	reg.Unregister(id)
	reg.Unregister("never-registered")

	require.False(t, reg.Has(id))
	require.False(t, reg.Sessions().HasSession(id))
	require.Error(t, ctx.Err())
	require.Eventually(t, conn.closed, time.Second, 10*time.Millisecond)
	require.Equal(t, 0, reg.Count())
}

func TestRegistrySendToAbsentIsSwallowed(t *testing.T) {
	reg := newTestRegistry(t)
	require.False(t, reg.SendTo("ghost", protocol.TopicList(nil)))
}

func TestRegistrySendToPreservesOrder(t *testing.T) {
	reg := newTestRegistry(t)
	conn := newStubConn(false)
	id, _ := reg.Register(conn)

	require.True(t, reg.SendTo(id, protocol.Connected(id)))
	require.True(t, reg.SendTo(id, protocol.MessageChunk("t1", "a")))
	require.True(t, reg.SendTo(id, protocol.MessageEnd("t1")))

	require.Eventually(t, func() bool { return len(conn.types()) == 3 }, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{protocol.TypeConnected, protocol.TypeMessageChunk, protocol.TypeMessageEnd}, conn.types())
}

func TestRegistryDropsOnFullBuffer(t *testing.T) {
	reg := newTestRegistry(t, WithSendBuffer(1), WithWriteTimeout(0))
	conn := newStubConn(true)
	id, _ := reg.Register(conn)

	reg.SendTo(id, protocol.MessageChunk("t", "one"))
	reg.SendTo(id, protocol.MessageChunk("t", "two"))
	reg.SendTo(id, protocol.MessageChunk("t", "three"))

	require.Eventually(t, func() bool {
		return reg.Count() == 0
	}, time.Second, 10*time.Millisecond)
	require.False(t, reg.Sessions().HasSession(id))
}

func TestRegistryWriteFailureUnregisters(t *testing.T) {
	reg := newTestRegistry(t)
	conn := newStubConn(false)
	conn.failWith = errors.New("broken pipe")
	id, _ := reg.Register(conn)

	reg.SendTo(id, protocol.TopicList(nil))
	require.Eventually(t, func() bool { return !reg.Has(id) }, time.Second, 10*time.Millisecond)
}

func TestRegistrySendAndCloseFlushesFirst(t *testing.T) {
	reg := newTestRegistry(t)
	conn := newStubConn(false)
	id, _ := reg.Register(conn)

	reg.SendAndClose(id, protocol.Error(protocol.CodeInternalError, "boom", ""))

	require.Eventually(t, func() bool { return !reg.Has(id) }, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{protocol.TypeError}, conn.types())
	require.Eventually(t, conn.closed, time.Second, 10*time.Millisecond)
}

func TestRegistryBroadcast(t *testing.T) {
	reg := newTestRegistry(t)
	a, b := newStubConn(false), newStubConn(false)
	reg.Register(a)
	reg.Register(b)

	n := reg.Broadcast(protocol.Notification(protocol.NotificationPayload{ID: "n1", Message: "hi"}))
	require.Equal(t, 2, n)
	require.Eventually(t, func() bool {
		return len(a.types()) == 1 && len(b.types()) == 1
	}, time.Second, 10*time.Millisecond)

	reg.CloseAll()
	require.Equal(t, 0, reg.Count())
}
