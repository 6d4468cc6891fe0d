package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/shravanasati/term-tac-toe/internal/entity"
)

type roomRepo interface {
	ActiveRooms(ctx context.Context) ([]*entity.Room, error)
	MarkInactive(ctx context.Context, id string) error
}

type sessions interface {
	LiveConnections(roomID string) int
	TeardownRoom(roomID string)
}

// Reaper periodically retires stale rooms. A room is stale once it is
// older than the TTL and nobody is connected to it; rooms with live
// sockets are left alone no matter their age. Stale rows are marked
// inactive rather than deleted, so finished matchups stay on record.
type Reaper struct {
	logger   *slog.Logger
	rooms    roomRepo
	registry sessions

	interval time.Duration
	roomTTL  time.Duration
}

func New(logger *slog.Logger, rooms roomRepo, registry sessions, interval, roomTTL time.Duration) *Reaper {
	return &Reaper{
		logger:   logger.With("component", "reaper"),
		rooms:    rooms,
		registry: registry,
		interval: interval,
		roomTTL:  roomTTL,
	}
}

// Run sweeps on every tick until the context ends.
func (that *Reaper) Run(ctx context.Context) {
	log := that.logger.With("method", "Run")
	log.Info("reaper started", "interval", that.interval, "roomTTL", that.roomTTL)

	ticker := time.NewTicker(that.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			that.Sweep(ctx)
		case <-ctx.Done():
			log.Info("reaper stopped")
			return
		}
	}
}

// Sweep runs one pass over the active rooms and reaps the stale ones.
func (that *Reaper) Sweep(ctx context.Context) {
	log := that.logger.With("method", "Sweep")

	rooms, err := that.rooms.ActiveRooms(ctx)
	if err != nil {
		log.Error("failed to list active rooms", "error", err)
		return
	}

	reaped := 0
	for _, room := range rooms {
		if room.Age() <= that.roomTTL {
			continue
		}

		if that.registry.LiveConnections(room.ID) > 0 {
			log.Debug("skipping old room with live connections", "roomID", room.ID, "age", room.Age())
			continue
		}

		if err = that.rooms.MarkInactive(ctx, room.ID); err != nil {
			log.Error("failed to mark stale room inactive", "roomID", room.ID, "error", err)
			continue
		}

		// The registry side is usually already empty; teardown is
		// idempotent either way.
		that.registry.TeardownRoom(room.ID)
		reaped++

		log.Info("reaped stale room", "roomID", room.ID, "age", room.Age())
	}

	if reaped > 0 {
		log.Info("sweep finished", "reaped", reaped)
	}
}
