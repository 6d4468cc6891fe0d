package reaper

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shravanasati/term-tac-toe/internal/entity"
)

type fakeRoomRepo struct {
	mu    sync.Mutex
	rooms map[string]*entity.Room
}

func newFakeRoomRepo(rooms ...*entity.Room) *fakeRoomRepo {
	repo := &fakeRoomRepo{rooms: make(map[string]*entity.Room)}
	for _, room := range rooms {
		repo.rooms[room.ID] = room
	}

	return repo
}

func (that *fakeRoomRepo) ActiveRooms(_ context.Context) ([]*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	var active []*entity.Room
	for _, room := range that.rooms {
		if room.IsActive {
			active = append(active, room)
		}
	}

	return active, nil
}

func (that *fakeRoomRepo) MarkInactive(_ context.Context, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if room, ok := that.rooms[id]; ok {
		room.IsActive = false
	}

	return nil
}

func (that *fakeRoomRepo) isActive(id string) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, ok := that.rooms[id]

	return ok && room.IsActive
}

type fakeSessions struct {
	mu       sync.Mutex
	live     map[string]int
	tornDown []string
}

func newFakeSessions(live map[string]int) *fakeSessions {
	if live == nil {
		live = make(map[string]int)
	}

	return &fakeSessions{live: live}
}

func (that *fakeSessions) LiveConnections(roomID string) int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.live[roomID]
}

func (that *fakeSessions) TeardownRoom(roomID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.tornDown = append(that.tornDown, roomID)
}

func newTestReaper(repo *fakeRoomRepo, sessions *fakeSessions, interval, ttl time.Duration) *Reaper {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(logger, repo, sessions, interval, ttl)
}

func roomAged(id string, age time.Duration) *entity.Room {
	room := entity.NewRoom(id, 3)
	room.CreatedAt = time.Now().UTC().Add(-age)

	return room
}

func TestReaper_Sweep(t *testing.T) {
	t.Run("Reaps old rooms with no connections", func(t *testing.T) {
		repo := newFakeRoomRepo(
			roomAged("STALE1", 3*time.Hour),
			roomAged("FRESH1", time.Minute),
		)
		sessions := newFakeSessions(nil)

		// When: one sweep runs with a 2h TTL
		reaper := newTestReaper(repo, sessions, time.Minute, 2*time.Hour)
		reaper.Sweep(context.Background())

		// Then: only the stale room is retired
		assert.False(t, repo.isActive("STALE1"))
		assert.True(t, repo.isActive("FRESH1"))
		assert.Equal(t, []string{"STALE1"}, sessions.tornDown)
	})

	t.Run("Spares old rooms that still have live connections", func(t *testing.T) {
		repo := newFakeRoomRepo(roomAged("BUSY12", 3*time.Hour))
		sessions := newFakeSessions(map[string]int{"BUSY12": 2})

		reaper := newTestReaper(repo, sessions, time.Minute, 2*time.Hour)
		reaper.Sweep(context.Background())

		assert.True(t, repo.isActive("BUSY12"))
		assert.Empty(t, sessions.tornDown)
	})

	t.Run("Ignores rows already marked inactive", func(t *testing.T) {
		room := roomAged("GONE12", 3*time.Hour)
		room.IsActive = false
		repo := newFakeRoomRepo(room)
		sessions := newFakeSessions(nil)

		reaper := newTestReaper(repo, sessions, time.Minute, 2*time.Hour)
		reaper.Sweep(context.Background())

		assert.Empty(t, sessions.tornDown)
	})
}

func TestReaper_Run(t *testing.T) {
	repo := newFakeRoomRepo(roomAged("STALE1", 3*time.Hour))
	sessions := newFakeSessions(nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan struct{})
	reaper := newTestReaper(repo, sessions, 10*time.Millisecond, 2*time.Hour)
	go func() {
		defer close(done)
		reaper.Run(ctx)
	}()

	// Then: the ticker drives sweeps until the context ends
	require.Eventually(t, func() bool {
		return !repo.isActive("STALE1")
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop on context cancellation")
	}
}
