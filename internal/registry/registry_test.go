package registry

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shravanasati/term-tac-toe/internal/apperror"
	"github.com/shravanasati/term-tac-toe/internal/event"
)

type readResult struct {
	ev  *event.Event
	err error
}

// fakeConn scripts the inbound side and records the outbound side of one
// socket.
type fakeConn struct {
	inbound chan readResult
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written []*event.Event
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan readResult, 16),
		closed:  make(chan struct{}),
	}
}

func (that *fakeConn) ReadEvent() (*event.Event, error) {
	select {
	case in := <-that.inbound:
		return in.ev, in.err
	case <-that.closed:
		return nil, io.EOF
	}
}

func (that *fakeConn) WriteEvent(ev *event.Event) error {
	select {
	case <-that.closed:
		return io.ErrClosedPipe
	default:
	}

	that.mu.Lock()
	defer that.mu.Unlock()
	that.written = append(that.written, ev)

	return nil
}

func (that *fakeConn) Close() error {
	that.once.Do(func() {
		close(that.closed)
	})

	return nil
}

func (that *fakeConn) isClosed() bool {
	select {
	case <-that.closed:
		return true
	default:
		return false
	}
}

func (that *fakeConn) writtenKinds() []event.Kind {
	that.mu.Lock()
	defer that.mu.Unlock()

	kinds := make([]event.Kind, 0, len(that.written))
	for _, ev := range that.written {
		kinds = append(kinds, ev.Kind)
	}

	return kinds
}

func newTestRegistry() *Registry {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	return ctx
}

func TestRegistry_RegisterRoom(t *testing.T) {
	reg := newTestRegistry()

	// When: a room is registered twice
	require.NoError(t, reg.RegisterRoom("AB12C9"))
	err := reg.RegisterRoom("AB12C9")

	// Then: the second registration is an invariant violation
	require.ErrorIs(t, err, apperror.ErrRoomAlreadyRegistered)
	assert.True(t, reg.HasRoom("AB12C9"))
}

func TestRegistry_Attach(t *testing.T) {
	t.Run("Accepts two sockets and rejects the third", func(t *testing.T) {
		reg := newTestRegistry()
		require.NoError(t, reg.RegisterRoom("AB12C9"))

		first, err := reg.Attach("AB12C9", newFakeConn())
		require.NoError(t, err)
		require.NotNil(t, first)

		_, err = reg.Attach("AB12C9", newFakeConn())
		require.NoError(t, err)

		// When: a third socket tries to attach
		third := newFakeConn()
		_, err = reg.Attach("AB12C9", third)

		// Then: it is rejected and closed
		require.ErrorIs(t, err, apperror.ErrRoomFull)
		assert.True(t, third.isClosed())
		assert.Equal(t, 2, reg.LiveConnections("AB12C9"))
	})

	t.Run("Rejects sockets for unknown rooms", func(t *testing.T) {
		reg := newTestRegistry()

		conn := newFakeConn()
		_, err := reg.Attach("ZZZZZZ", conn)

		require.ErrorIs(t, err, apperror.ErrRoomNotFound)
		assert.True(t, conn.isClosed())
	})
}

func TestRegistry_BindIdentity(t *testing.T) {
	t.Run("Is safe while the reader shuts down", func(t *testing.T) {
		ctx := testContext(t)
		reg := newTestRegistry()
		require.NoError(t, reg.RegisterRoom("AB12C9"))

		conn := newFakeConn()
		session, err := reg.Attach("AB12C9", conn)
		require.NoError(t, err)

		// When: the identity is bound while the socket dies under it
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			reg.BindIdentity("AB12C9", session, "alice")
		}()
		go func() {
			defer wg.Done()
			_ = conn.Close()
		}()
		wg.Wait()

		// Then: the name stuck and the consumer still gets the sentinel
		assert.Equal(t, "alice", session.Name())
		_, err = reg.Receive(ctx, "AB12C9", "alice")
		require.ErrorIs(t, err, apperror.ErrPeerLost)
	})
}

func TestRegistry_Receive(t *testing.T) {
	t.Run("Delivers events in receipt order", func(t *testing.T) {
		ctx := testContext(t)
		reg := newTestRegistry()
		require.NoError(t, reg.RegisterRoom("AB12C9"))

		conn := newFakeConn()
		session, err := reg.Attach("AB12C9", conn)
		require.NoError(t, err)
		reg.BindIdentity("AB12C9", session, "alice")

		conn.inbound <- readResult{ev: event.NewMove(1, "alice")}
		conn.inbound <- readResult{ev: event.NewMove(5, "alice")}

		first, err := reg.Receive(ctx, "AB12C9", "alice")
		require.NoError(t, err)
		second, err := reg.Receive(ctx, "AB12C9", "alice")
		require.NoError(t, err)

		firstMove, err := first.Move()
		require.NoError(t, err)
		secondMove, err := second.Move()
		require.NoError(t, err)
		assert.Equal(t, 1, firstMove.Position)
		assert.Equal(t, 5, secondMove.Position)
	})

	t.Run("Surfaces malformed events and keeps the stream alive", func(t *testing.T) {
		ctx := testContext(t)
		reg := newTestRegistry()
		require.NoError(t, reg.RegisterRoom("AB12C9"))

		conn := newFakeConn()
		session, err := reg.Attach("AB12C9", conn)
		require.NoError(t, err)
		reg.BindIdentity("AB12C9", session, "alice")

		conn.inbound <- readResult{err: apperror.ErrMalformedEvent}
		conn.inbound <- readResult{ev: event.NewQuit()}

		// When: the malformed frame is received
		_, err = reg.Receive(ctx, "AB12C9", "alice")

		// Then: the error is recoverable and the next event still arrives
		require.ErrorIs(t, err, apperror.ErrMalformedEvent)

		ev, err := reg.Receive(ctx, "AB12C9", "alice")
		require.NoError(t, err)
		assert.Equal(t, event.KindQuit, ev.Kind)
	})

	t.Run("Reports a lost peer after the stream ends", func(t *testing.T) {
		ctx := testContext(t)
		reg := newTestRegistry()
		require.NoError(t, reg.RegisterRoom("AB12C9"))

		conn := newFakeConn()
		session, err := reg.Attach("AB12C9", conn)
		require.NoError(t, err)
		reg.BindIdentity("AB12C9", session, "alice")

		// When: the socket dies
		require.NoError(t, conn.Close())

		// Then: the consumer is unblocked with the end-of-stream sentinel
		_, err = reg.Receive(ctx, "AB12C9", "alice")
		require.ErrorIs(t, err, apperror.ErrPeerLost)
	})

	t.Run("Fails for an unknown player", func(t *testing.T) {
		ctx := testContext(t)
		reg := newTestRegistry()
		require.NoError(t, reg.RegisterRoom("AB12C9"))

		_, err := reg.Receive(ctx, "AB12C9", "ghost")

		require.ErrorIs(t, err, apperror.ErrPlayerNotFound)
	})
}

func TestRegistry_SendAndBroadcast(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.RegisterRoom("AB12C9"))

	aliceConn := newFakeConn()
	aliceSession, err := reg.Attach("AB12C9", aliceConn)
	require.NoError(t, err)
	reg.BindIdentity("AB12C9", aliceSession, "alice")

	bobConn := newFakeConn()
	bobSession, err := reg.Attach("AB12C9", bobConn)
	require.NoError(t, err)
	reg.BindIdentity("AB12C9", bobSession, "bob")

	// When: a unicast and a broadcast are sent
	reg.Send("AB12C9", "alice", event.NewAskMove("alice"))
	reg.Broadcast("AB12C9", event.NewMessage("game starting"))

	// Then: each socket saw exactly the events addressed to it
	assert.Equal(t, []event.Kind{event.KindAskMove, event.KindMessage}, aliceConn.writtenKinds())
	assert.Equal(t, []event.Kind{event.KindMessage}, bobConn.writtenKinds())

	// And: sending to a missing player or room is a silent no-op
	reg.Send("AB12C9", "ghost", event.NewMessage("hello"))
	reg.Broadcast("ZZZZZZ", event.NewMessage("hello"))
}

func TestRegistry_Detach(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.RegisterRoom("AB12C9"))

	conn := newFakeConn()
	session, err := reg.Attach("AB12C9", conn)
	require.NoError(t, err)
	reg.BindIdentity("AB12C9", session, "alice")

	reg.Detach("AB12C9", session)

	assert.True(t, conn.isClosed())
	assert.Equal(t, 0, reg.LiveConnections("AB12C9"))

	// And: the slot is free again
	_, err = reg.Attach("AB12C9", newFakeConn())
	require.NoError(t, err)
}

func TestRegistry_TeardownRoom(t *testing.T) {
	reg := newTestRegistry()
	require.NoError(t, reg.RegisterRoom("AB12C9"))

	aliceConn := newFakeConn()
	_, err := reg.Attach("AB12C9", aliceConn)
	require.NoError(t, err)

	bobConn := newFakeConn()
	_, err = reg.Attach("AB12C9", bobConn)
	require.NoError(t, err)

	// When: the room is torn down twice
	reg.TeardownRoom("AB12C9")
	reg.TeardownRoom("AB12C9")

	// Then: both sockets are closed and the room is gone
	assert.True(t, aliceConn.isClosed())
	assert.True(t, bobConn.isClosed())
	assert.False(t, reg.HasRoom("AB12C9"))
	assert.Equal(t, 0, reg.LiveConnections("AB12C9"))
}
