package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shravanasati/term-tac-toe/internal/apperror"
)

const (
	StatusWaiting       = "waiting"
	StatusPlaying       = "playing"
	StatusFinished      = "finished"
	StatusRematchVoting = "rematch_voting"
)

// RoomIDLength is the length of the short alphanumeric room code.
const RoomIDLength = 6

// Room is the persisted matchup row. Player slots fill in join order and
// are immutable afterwards; a rematch reuses the same two identities.
type Room struct {
	ID          string    `json:"id"`
	Player1     string    `json:"player1"`
	Player2     string    `json:"player2"`
	Status      string    `json:"status"`
	CurrentTurn string    `json:"current_turn"`
	Winner      string    `json:"winner"`
	BoardState  string    `json:"board_state"`
	BoardSize   int       `json:"board_size"`
	CreatedAt   time.Time `json:"created_at"`
	IsActive    bool      `json:"is_active"`
}

func NewRoom(id string, boardSize int) *Room {
	return &Room{
		ID:         id,
		Status:     StatusWaiting,
		BoardState: EmptyBoardState(boardSize),
		BoardSize:  boardSize,
		CreatedAt:  time.Now().UTC(),
		IsActive:   true,
	}
}

// EmptyBoardState is the persisted form of a blank N×N board: one digit
// per cell in position order.
func EmptyBoardState(boardSize int) string {
	return strings.Repeat("0", boardSize*boardSize)
}

// AddPlayer fills the first free slot with the given name.
func (that *Room) AddPlayer(name string) error {
	if that.HasPlayer(name) {
		return fmt.Errorf("%w: %s", apperror.ErrNameTaken, name)
	}

	switch {
	case that.Player1 == "":
		that.Player1 = name
	case that.Player2 == "":
		that.Player2 = name
	default:
		return fmt.Errorf("%w: room %s", apperror.ErrRoomFull, that.ID)
	}

	return nil
}

// Players returns the filled slots in slot order.
func (that *Room) Players() []string {
	players := make([]string, 0, 2)
	if that.Player1 != "" {
		players = append(players, that.Player1)
	}
	if that.Player2 != "" {
		players = append(players, that.Player2)
	}

	return players
}

func (that *Room) HasPlayer(name string) bool {
	return name != "" && (that.Player1 == name || that.Player2 == name)
}

func (that *Room) IsFull() bool {
	return that.Player1 != "" && that.Player2 != ""
}

// Opponent returns the other player's name, or "" if there is none.
func (that *Room) Opponent(name string) string {
	switch name {
	case that.Player1:
		return that.Player2
	case that.Player2:
		return that.Player1
	default:
		return ""
	}
}

func (that *Room) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Room) IsPlaying() bool {
	return that.Status == StatusPlaying
}

func (that *Room) IsFinished() bool {
	return that.Status == StatusFinished
}

func (that *Room) IsRematchVoting() bool {
	return that.Status == StatusRematchVoting
}

// Age reports how long ago the room row was created.
func (that *Room) Age() time.Duration {
	return time.Since(that.CreatedAt)
}

// TokenGrant binds one capability token to one identity within one room.
type TokenGrant struct {
	RoomID string `json:"room_id"`
	Player string `json:"player"`
}
