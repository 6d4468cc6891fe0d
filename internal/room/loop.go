package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"

	"github.com/shravanasati/term-tac-toe/internal/apperror"
	"github.com/shravanasati/term-tac-toe/internal/entity"
	"github.com/shravanasati/term-tac-toe/internal/event"
	"github.com/shravanasati/term-tac-toe/internal/game"
	"github.com/shravanasati/term-tac-toe/internal/registry"
)

// sessions is the slice of the session registry the loop drives.
type sessions interface {
	Identities(roomID string) []string
	Inbox(roomID, name string) (<-chan registry.Inbound, error)
	Send(roomID, name string, ev *event.Event)
	Broadcast(roomID string, ev *event.Event)
	TeardownRoom(roomID string)
}

type roomRepo interface {
	GetByID(ctx context.Context, id string) (*entity.Room, error)
	CreateOrUpdate(ctx context.Context, room *entity.Room) error
	DeleteByID(ctx context.Context, id string) error
}

// verdict is what one played game leaves the loop with.
type verdict int

const (
	stopRoom verdict = iota
	playAgain
)

// Loop owns one room end to end: it holds the only board instance, drives
// the strict turn cycle over the players' mailboxes, and walks the room
// through waiting → playing → finished → rematch voting until it tears the
// room down.
type Loop struct {
	logger   *slog.Logger
	registry sessions
	rooms    roomRepo

	roomID string
	room   *entity.Room

	board   *game.Board
	players [2]string
	inboxes [2]<-chan registry.Inbound
	markers map[string]game.Cell
	current string
}

func NewLoop(logger *slog.Logger, reg sessions, rooms roomRepo, roomID string) *Loop {
	return &Loop{
		logger:   logger.With("component", "room-loop", "roomID", roomID),
		registry: reg,
		rooms:    rooms,
		roomID:   roomID,
	}
}

// Run drives the room until it is finished, abandoned or broken. All
// failures stay inside this room: the loop notifies whoever is still
// reachable and tears the room down.
func (that *Loop) Run(ctx context.Context) {
	log := that.logger.With("method", "Run")

	defer func() {
		if r := recover(); r != nil {
			log.Error("room loop panicked", "panic", r)
			that.registry.Broadcast(that.roomID, event.NewMessage("internal error, closing the room"))
		}

		that.teardown(ctx)
	}()

	if err := that.setup(ctx); err != nil {
		log.Error("failed to set up room", "error", err)
		that.registry.Broadcast(that.roomID, event.NewMessage("failed to start the game, closing the room"))
		return
	}

	for {
		result, err := that.playGame(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Error("game aborted", "error", err)
			}
			return
		}

		if result == stopRoom {
			return
		}

		if err = that.resetForRematch(ctx); err != nil {
			log.Error("failed to reset for rematch", "error", err)
			return
		}
	}
}

// setup loads the persisted room, pins player slots and markers, picks the
// starter and announces the start of the game.
func (that *Loop) setup(ctx context.Context) error {
	room, err := that.rooms.GetByID(ctx, that.roomID)
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}

	if !room.IsFull() {
		return fmt.Errorf("%w: room %s is not full", apperror.ErrPlayerNotFound, that.roomID)
	}

	that.room = room
	that.players = [2]string{room.Player1, room.Player2}
	that.markers = map[string]game.Cell{
		room.Player1: game.MarkerA,
		room.Player2: game.MarkerB,
	}

	for i, name := range that.players {
		inbox, inboxErr := that.registry.Inbox(that.roomID, name)
		if inboxErr != nil {
			return fmt.Errorf("failed to find player mailbox: %w", inboxErr)
		}
		that.inboxes[i] = inbox
	}

	board, err := game.NewBoard(room.BoardSize)
	if err != nil {
		return fmt.Errorf("failed to create board: %w", err)
	}
	that.board = board

	// The very first game starts with a random player; rematches always
	// start with player slot 1.
	that.current = that.players[rand.Intn(2)]

	if err = that.persistState(ctx, entity.StatusPlaying, ""); err != nil {
		return err
	}

	that.registry.Broadcast(that.roomID, event.NewMessage("both players joined, the game is starting"))
	that.broadcastStatus()
	that.registry.Broadcast(that.roomID, event.NewBoard(that.board.Cells()))

	that.logger.Info("game started", "method", "setup", "players", that.players, "starter", that.current)

	return nil
}

// playGame runs one full game plus its rematch vote. It returns playAgain
// when both players voted yes.
func (that *Loop) playGame(ctx context.Context) (verdict, error) {
	for {
		that.registry.Broadcast(that.roomID, event.NewAskMove(that.current))

		advanced, done, err := that.awaitMove(ctx)
		if err != nil {
			return stopRoom, err
		}

		if done {
			return stopRoom, nil
		}

		if !advanced {
			// Illegal move: the same player is prompted again.
			continue
		}

		that.registry.Broadcast(that.roomID, event.NewBoard(that.board.Cells()))

		if result := that.board.CheckOutcome(); result.Victory {
			return that.finishGame(ctx, result)
		}

		if that.board.Full() {
			return that.finishGame(ctx, game.WinResult{})
		}

		that.current = that.room.Opponent(that.current)
		if err = that.persistState(ctx, entity.StatusPlaying, ""); err != nil {
			return stopRoom, err
		}
	}
}

// awaitMove consumes inbound events until the active player makes a legal
// move (advanced), someone quits or vanishes (done), or the context ends.
// Out-of-turn, malformed and unexpected events are answered with a
// rejection and do not advance state.
func (that *Loop) awaitMove(ctx context.Context) (advanced, done bool, err error) {
	log := that.logger.With("method", "awaitMove")

	for {
		in, from, err := that.nextInbound(ctx)
		if err != nil {
			return false, false, err
		}

		switch {
		case errors.Is(in.Err, apperror.ErrPeerLost):
			that.announceLeft(from)
			return false, true, nil

		case in.Err != nil:
			that.registry.Send(that.roomID, from, event.NewMessage("rejected: malformed event"))
			continue
		}

		switch in.Event.Kind {
		case event.KindQuit:
			that.announceLeft(from)
			return false, true, nil

		case event.KindMove:
			move, moveErr := in.Event.Move()
			if moveErr != nil {
				that.registry.Send(that.roomID, from, event.NewMessage("rejected: malformed event"))
				continue
			}

			if from != that.current || move.Marker != that.current {
				that.registry.Send(that.roomID, from, event.NewMessage("rejected: it's not your turn"))
				continue
			}

			if applyErr := that.board.Apply(move.Position, that.markers[from]); applyErr != nil {
				log.Debug("illegal move", "player", from, "position", move.Position, "error", applyErr)
				that.registry.Send(that.roomID, from, event.NewMessage("rejected: that cell can't be played, pick another one"))
				return false, false, nil
			}

			log.Debug("move accepted", "player", from, "position", move.Position)
			return true, false, nil

		default:
			that.registry.Send(that.roomID, from, event.NewMessage("rejected: unexpected event"))
		}
	}
}

// finishGame broadcasts the result and runs the rematch vote.
func (that *Loop) finishGame(ctx context.Context, result game.WinResult) (verdict, error) {
	winner := ""
	summary := "it's a draw, the board is full"
	if result.Victory {
		winner = that.playerByMarker(result.Winner)
		summary = winner + " wins the game!"
	}

	that.logger.Info("game finished", "method", "finishGame", "winner", winner)

	that.registry.Broadcast(that.roomID, event.NewResult(
		that.board.Cells(),
		event.NewOutcome(result, winner),
		summary,
	))

	if err := that.persistState(ctx, entity.StatusFinished, winner); err != nil {
		return stopRoom, err
	}

	return that.holdRematchVote(ctx, winner)
}

// holdRematchVote collects one vote per player. Any "no", quit or lost
// peer stops the room; two "yes" votes restart it.
func (that *Loop) holdRematchVote(ctx context.Context, winner string) (verdict, error) {
	if err := that.persistState(ctx, entity.StatusRematchVoting, winner); err != nil {
		return stopRoom, err
	}

	that.broadcastStatus()
	that.registry.Broadcast(that.roomID, event.NewMessage("play again? cast your rematch vote"))

	votes := make(map[string]bool, 2)

	for len(votes) < 2 {
		in, from, err := that.nextInbound(ctx)
		if err != nil {
			return stopRoom, err
		}

		switch {
		case errors.Is(in.Err, apperror.ErrPeerLost):
			that.announceLeft(from)
			return stopRoom, nil

		case in.Err != nil:
			that.registry.Send(that.roomID, from, event.NewMessage("rejected: malformed event"))
			continue
		}

		switch in.Event.Kind {
		case event.KindQuit:
			that.announceLeft(from)
			return stopRoom, nil

		case event.KindRematchVote:
			ballot, ballotErr := in.Event.RematchVote()
			if ballotErr != nil || ballot.Vote == nil {
				that.registry.Send(that.roomID, from, event.NewMessage("rejected: malformed event"))
				continue
			}

			votes[from] = *ballot.Vote
			that.registry.Broadcast(that.roomID, event.NewRematchVote(votes, len(votes) == 2))

			if !*ballot.Vote {
				that.registry.Broadcast(that.roomID, event.NewMessage(from+" declined the rematch"))
				return stopRoom, nil
			}

		default:
			that.registry.Send(that.roomID, from, event.NewMessage("rejected: unexpected event"))
		}
	}

	that.registry.Broadcast(that.roomID, event.NewMessage("rematch agreed, starting a new game"))

	return playAgain, nil
}

// resetForRematch starts a fresh board with the same two identities;
// player slot 1 always starts.
func (that *Loop) resetForRematch(ctx context.Context) error {
	board, err := game.NewBoard(that.room.BoardSize)
	if err != nil {
		return fmt.Errorf("failed to create board: %w", err)
	}

	that.board = board
	that.current = that.players[0]

	if err = that.persistState(ctx, entity.StatusPlaying, ""); err != nil {
		return err
	}

	that.broadcastStatus()
	that.registry.Broadcast(that.roomID, event.NewBoard(that.board.Cells()))

	that.logger.Info("rematch started", "method", "resetForRematch", "starter", that.current)

	return nil
}

// nextInbound blocks until either player produces an event, a mailbox
// closes, or the context ends. A closed mailbox surfaces as an
// apperror.ErrPeerLost inbound for that player.
func (that *Loop) nextInbound(ctx context.Context) (registry.Inbound, string, error) {
	select {
	case in, ok := <-that.inboxes[0]:
		if !ok {
			return registry.Inbound{Err: apperror.ErrPeerLost}, that.players[0], nil
		}
		return in, that.players[0], nil

	case in, ok := <-that.inboxes[1]:
		if !ok {
			return registry.Inbound{Err: apperror.ErrPeerLost}, that.players[1], nil
		}
		return in, that.players[1], nil

	case <-ctx.Done():
		return registry.Inbound{}, "", ctx.Err()
	}
}

func (that *Loop) announceLeft(name string) {
	that.logger.Info("player left", "method", "announceLeft", "player", name)
	that.registry.Broadcast(that.roomID, event.NewMessage(name+" left the game"))
}

func (that *Loop) broadcastStatus() {
	that.registry.Broadcast(that.roomID, event.NewRoomStatus(
		that.room.Status,
		that.room.Players(),
		that.room.CurrentTurn,
		that.room.Winner,
	))
}

// persistState mirrors the loop's authoritative state into the room row.
func (that *Loop) persistState(ctx context.Context, status, winner string) error {
	that.room.Status = status
	that.room.Winner = winner
	that.room.BoardState = boardState(that.board)

	that.room.CurrentTurn = that.current
	if status != entity.StatusPlaying {
		that.room.CurrentTurn = ""
	}

	if err := that.rooms.CreateOrUpdate(ctx, that.room); err != nil {
		return fmt.Errorf("failed to persist room state: %w", err)
	}

	return nil
}

// teardown closes the room everywhere. Both this path and the reaper's may
// run; the registry side is idempotent and a missing row is fine.
func (that *Loop) teardown(ctx context.Context) {
	log := that.logger.With("method", "teardown")

	that.registry.Broadcast(that.roomID, event.NewMessage("the room is closing, thanks for playing"))
	that.registry.TeardownRoom(that.roomID)

	// Shutdown cancels ctx before the loop gets here; the row cleanup
	// still has to go through.
	if err := that.rooms.DeleteByID(context.WithoutCancel(ctx), that.roomID); err != nil {
		log.Error("failed to delete room row", "error", err)
	}

	log.Info("room closed")
}

func (that *Loop) playerByMarker(marker game.Cell) string {
	for name, m := range that.markers {
		if m == marker {
			return name
		}
	}

	return ""
}

// boardState renders the board as one digit per cell for the room row.
func boardState(board *game.Board) string {
	var sb strings.Builder
	for _, cell := range board.Cells() {
		sb.WriteString(strconv.Itoa(int(cell)))
	}

	return sb.String()
}
