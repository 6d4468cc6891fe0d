package room

import (
	"context"
	"log/slog"
	"sync"
)

// Manager starts room loops and guarantees at most one loop per room. The
// second socket's accept path and a reconnect race may both ask to start
// the same room; only the first wins.
type Manager struct {
	logger     *slog.Logger
	loopLogger *slog.Logger
	registry   sessions
	rooms      roomRepo

	mu      sync.Mutex
	running map[string]struct{}
}

func NewManager(logger *slog.Logger, reg sessions, rooms roomRepo) *Manager {
	return &Manager{
		logger:     logger.With("component", "room-manager"),
		loopLogger: logger,
		registry:   reg,
		rooms:      rooms,
		running:    make(map[string]struct{}),
	}
}

// StartLoop spawns the room's loop goroutine unless one is already
// running. It returns immediately.
func (that *Manager) StartLoop(ctx context.Context, roomID string) {
	that.mu.Lock()
	if _, ok := that.running[roomID]; ok {
		that.mu.Unlock()
		return
	}
	that.running[roomID] = struct{}{}
	that.mu.Unlock()

	that.logger.Info("starting room loop", "method", "StartLoop", "roomID", roomID)

	go func() {
		defer func() {
			that.mu.Lock()
			delete(that.running, roomID)
			that.mu.Unlock()
		}()

		NewLoop(that.loopLogger, that.registry, that.rooms, roomID).Run(ctx)
	}()
}

// IsRunning reports whether the room currently has a live loop. The
// reaper uses this alongside live connection counts.
func (that *Manager) IsRunning(roomID string) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	_, ok := that.running[roomID]

	return ok
}
