package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shravanasati/term-tac-toe/internal/apperror"
	"github.com/shravanasati/term-tac-toe/internal/event"
)

// mailboxSize bounds a socket's inbound queue. A client that manages to
// keep this many undrained events ahead of its room loop gets backpressure
// on its reader instead of unbounded memory.
const mailboxSize = 64

// Conn is one attached socket. ReadEvent returns apperror.ErrMalformedEvent
// for payloads that fail decoding and any other error when the stream is
// gone for good.
type Conn interface {
	ReadEvent() (*event.Event, error)
	WriteEvent(ev *event.Event) error
	Close() error
}

// Inbound is one element of a session mailbox: either a decoded event or a
// recoverable decode error.
type Inbound struct {
	Event *event.Event
	Err   error
}

// Session is one socket attached to a room.
type Session struct {
	conn    Conn
	mailbox chan Inbound
	done    chan struct{}
	once    sync.Once

	// name is bound after the reader goroutine is already running, so it
	// gets its own lock instead of riding on the registry's.
	nameMu sync.Mutex
	name   string
}

// Name returns the identity bound to this session, "" before BindIdentity.
func (that *Session) Name() string {
	that.nameMu.Lock()
	defer that.nameMu.Unlock()

	return that.name
}

func (that *Session) setName(name string) {
	that.nameMu.Lock()
	defer that.nameMu.Unlock()

	that.name = name
}

func (that *Session) close() {
	that.once.Do(func() {
		close(that.done)
		_ = that.conn.Close()
	})
}

type roomEntry struct {
	sessions []*Session
}

// Registry multiplexes many sockets across many rooms: per room it tracks
// the attached sessions, their identities, and one inbound mailbox per
// socket fed by a dedicated reader goroutine. The room loop is the single
// consumer of any mailbox.
type Registry struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*roomEntry
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger.With("component", "registry"),
		rooms:  make(map[string]*roomEntry),
	}
}

// RegisterRoom creates an empty session set for the room. A duplicate
// registration is an invariant violation.
func (that *Registry) RegisterRoom(roomID string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.registerRoom(roomID)
}

func (that *Registry) registerRoom(roomID string) error {
	if _, ok := that.rooms[roomID]; ok {
		return fmt.Errorf("%w: %s", apperror.ErrRoomAlreadyRegistered, roomID)
	}

	that.rooms[roomID] = &roomEntry{}

	return nil
}

// EnsureRoom registers the room unless it already exists. The accept path
// uses this because two sockets may race to be the room's first.
func (that *Registry) EnsureRoom(roomID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.rooms[roomID]; !ok {
		_ = that.registerRoom(roomID)
	}
}

func (that *Registry) HasRoom(roomID string) bool {
	that.mu.RLock()
	defer that.mu.RUnlock()

	_, ok := that.rooms[roomID]

	return ok
}

// Attach accepts the socket into the room, creates its mailbox and starts
// its reader goroutine. A third socket is closed and rejected with
// apperror.ErrRoomFull.
func (that *Registry) Attach(roomID string, conn Conn) (*Session, error) {
	that.mu.Lock()

	entry, ok := that.rooms[roomID]
	if !ok {
		that.mu.Unlock()
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", apperror.ErrRoomNotFound, roomID)
	}

	if len(entry.sessions) >= 2 {
		that.mu.Unlock()
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", apperror.ErrRoomFull, roomID)
	}

	session := &Session{
		conn:    conn,
		mailbox: make(chan Inbound, mailboxSize),
		done:    make(chan struct{}),
	}
	entry.sessions = append(entry.sessions, session)
	that.mu.Unlock()

	go that.readLoop(roomID, session)

	return session, nil
}

// readLoop decodes inbound frames into the session mailbox until the
// stream ends, then closes the mailbox so the consumer is never left
// blocked on a dead socket.
func (that *Registry) readLoop(roomID string, session *Session) {
	log := that.logger.With("method", "readLoop", "roomID", roomID)

	defer close(session.mailbox)

	for {
		ev, err := session.conn.ReadEvent()

		var in Inbound
		switch {
		case errors.Is(err, apperror.ErrMalformedEvent):
			in = Inbound{Err: err}
		case err != nil:
			log.Debug("inbound stream ended", "player", session.Name(), "error", err)
			return
		default:
			in = Inbound{Event: ev}
		}

		select {
		case session.mailbox <- in:
		case <-session.done:
			return
		}
	}
}

// BindIdentity associates a verified player name with an attached session.
// Idempotent for the same name.
func (that *Registry) BindIdentity(roomID string, session *Session, name string) {
	session.setName(name)
}

// Identities returns the bound player names of a room in attach order.
func (that *Registry) Identities(roomID string) []string {
	that.mu.RLock()
	defer that.mu.RUnlock()

	entry, ok := that.rooms[roomID]
	if !ok {
		return nil
	}

	names := make([]string, 0, len(entry.sessions))
	for _, session := range entry.sessions {
		if name := session.Name(); name != "" {
			names = append(names, name)
		}
	}

	return names
}

// LiveConnections reports how many sockets are currently attached.
func (that *Registry) LiveConnections(roomID string) int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	entry, ok := that.rooms[roomID]
	if !ok {
		return 0
	}

	return len(entry.sessions)
}

// Inbox exposes a player's mailbox for the room loop to select on. The
// channel closes when the peer is lost.
func (that *Registry) Inbox(roomID, name string) (<-chan Inbound, error) {
	session, err := that.findSession(roomID, name)
	if err != nil {
		return nil, err
	}

	return session.mailbox, nil
}

// Receive blocks on the player's mailbox until an event arrives, the peer
// is lost (apperror.ErrPeerLost) or the context ends.
func (that *Registry) Receive(ctx context.Context, roomID, name string) (*event.Event, error) {
	inbox, err := that.Inbox(roomID, name)
	if err != nil {
		return nil, err
	}

	select {
	case in, ok := <-inbox:
		if !ok {
			return nil, apperror.ErrPeerLost
		}
		if in.Err != nil {
			return nil, in.Err
		}
		return in.Event, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send delivers an event to one player, best effort. Races against
// disconnects are expected; a missing or closing session is a no-op.
func (that *Registry) Send(roomID, name string, ev *event.Event) {
	session, err := that.findSession(roomID, name)
	if err != nil {
		return
	}

	that.write(roomID, session, ev)
}

// Broadcast delivers an event to every attached socket of the room, best
// effort.
func (that *Registry) Broadcast(roomID string, ev *event.Event) {
	that.mu.RLock()
	entry, ok := that.rooms[roomID]
	if !ok {
		that.mu.RUnlock()
		return
	}
	sessions := append([]*Session{}, entry.sessions...)
	that.mu.RUnlock()

	for _, session := range sessions {
		that.write(roomID, session, ev)
	}
}

func (that *Registry) write(roomID string, session *Session, ev *event.Event) {
	if err := session.conn.WriteEvent(ev); err != nil {
		that.logger.Debug("failed to write event",
			"method", "write", "roomID", roomID, "player", session.Name(), "kind", ev.Kind, "error", err)
	}
}

// Detach removes the session from the room, stops its reader and closes
// the connection if still open.
func (that *Registry) Detach(roomID string, session *Session) {
	that.mu.Lock()

	if entry, ok := that.rooms[roomID]; ok {
		for i, attached := range entry.sessions {
			if attached == session {
				entry.sessions = append(entry.sessions[:i], entry.sessions[i+1:]...)
				break
			}
		}
	}
	that.mu.Unlock()

	session.close()
}

// TeardownRoom detaches and closes every socket and removes the room.
// Idempotent: the room loop's completion path and the reaper may race to
// tear down the same room.
func (that *Registry) TeardownRoom(roomID string) {
	that.mu.Lock()
	entry, ok := that.rooms[roomID]
	if !ok {
		that.mu.Unlock()
		return
	}
	delete(that.rooms, roomID)
	sessions := entry.sessions
	entry.sessions = nil
	that.mu.Unlock()

	for _, session := range sessions {
		session.close()
	}

	that.logger.Info("room torn down", "method", "TeardownRoom", "roomID", roomID)
}

func (that *Registry) findSession(roomID, name string) (*Session, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	entry, ok := that.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrRoomNotFound, roomID)
	}

	for _, session := range entry.sessions {
		if session.Name() == name {
			return session, nil
		}
	}

	return nil, fmt.Errorf("%w: %s in room %s", apperror.ErrPlayerNotFound, name, roomID)
}
