package event

import (
	"encoding/json"
	"fmt"

	"github.com/shravanasati/term-tac-toe/internal/apperror"
	"github.com/shravanasati/term-tac-toe/internal/game"
)

// Kind is the wire tag of an event. The set of kinds is closed; decoding
// anything else fails with apperror.ErrMalformedEvent.
type Kind string

const (
	KindMessage     Kind = "message"
	KindBoard       Kind = "board"
	KindMove        Kind = "move"
	KindResult      Kind = "result"
	KindQuit        Kind = "quit"
	KindAskMove     Kind = "ask_move"
	KindRoomStatus  Kind = "room_status"
	KindRematchVote Kind = "rematch_vote"
)

// Event is the envelope exchanged over the connection.
type Event struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type MessagePayload struct {
	Message string `json:"message"`
}

// BoardPayload carries the board as a flat array of N² cells in position
// order: 0 empty, 1 marker A, 2 marker B.
type BoardPayload struct {
	Board []int `json:"board"`
}

type AskMovePayload struct {
	Player string `json:"player"`
}

type MovePayload struct {
	Position int    `json:"position"`
	Marker   string `json:"marker"`
}

// Outcome is the structured result inside a result event. Coordinates are
// (row, col) pairs of the winning line, empty on a draw.
type Outcome struct {
	Victory     bool     `json:"victory"`
	Winner      string   `json:"winner,omitempty"`
	Coordinates [][2]int `json:"coordinates,omitempty"`
}

type ResultPayload struct {
	Board   []int   `json:"board"`
	Result  Outcome `json:"result"`
	Message string  `json:"message"`
}

type RoomStatusPayload struct {
	Status      string   `json:"status"`
	Players     []string `json:"players"`
	CurrentTurn string   `json:"current_turn"`
	Winner      string   `json:"winner"`
}

// RematchVotePayload is used in both directions: a client casts Vote, the
// server broadcasts the accumulated Votes map and AllVoted.
type RematchVotePayload struct {
	Vote     *bool           `json:"vote,omitempty"`
	Votes    map[string]bool `json:"votes,omitempty"`
	AllVoted bool            `json:"all_voted,omitempty"`
}

// Decode parses and validates a wire envelope. A missing kind, missing
// data, an unrecognized kind, or a payload that does not match the kind's
// schema all fail with apperror.ErrMalformedEvent.
func Decode(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("%w: invalid json envelope", apperror.ErrMalformedEvent)
	}

	if ev.Kind == "" || len(ev.Data) == 0 {
		return nil, fmt.Errorf("%w: missing kind or data", apperror.ErrMalformedEvent)
	}

	if err := ev.validate(); err != nil {
		return nil, err
	}

	return &ev, nil
}

// Encode serializes the envelope for the wire.
func (that *Event) Encode() ([]byte, error) {
	raw, err := json.Marshal(that)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return raw, nil
}

func (that *Event) validate() error {
	switch that.Kind {
	case KindMessage:
		var payload MessagePayload
		return that.decodeInto(&payload)
	case KindBoard:
		var payload BoardPayload
		if err := that.decodeInto(&payload); err != nil {
			return err
		}
		if payload.Board == nil {
			return fmt.Errorf("%w: board event without board", apperror.ErrMalformedEvent)
		}
		return nil
	case KindAskMove:
		var payload AskMovePayload
		if err := that.decodeInto(&payload); err != nil {
			return err
		}
		if payload.Player == "" {
			return fmt.Errorf("%w: ask_move event without player", apperror.ErrMalformedEvent)
		}
		return nil
	case KindMove:
		var payload MovePayload
		if err := that.decodeInto(&payload); err != nil {
			return err
		}
		if payload.Marker == "" {
			return fmt.Errorf("%w: move event without marker", apperror.ErrMalformedEvent)
		}
		return nil
	case KindResult:
		var payload ResultPayload
		if err := that.decodeInto(&payload); err != nil {
			return err
		}
		if payload.Board == nil {
			return fmt.Errorf("%w: result event without board", apperror.ErrMalformedEvent)
		}
		return nil
	case KindQuit:
		var payload struct{}
		return that.decodeInto(&payload)
	case KindRoomStatus:
		var payload RoomStatusPayload
		if err := that.decodeInto(&payload); err != nil {
			return err
		}
		if payload.Status == "" {
			return fmt.Errorf("%w: room_status event without status", apperror.ErrMalformedEvent)
		}
		return nil
	case KindRematchVote:
		var payload RematchVotePayload
		if err := that.decodeInto(&payload); err != nil {
			return err
		}
		if payload.Vote == nil && payload.Votes == nil {
			return fmt.Errorf("%w: rematch_vote event without vote or votes", apperror.ErrMalformedEvent)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", apperror.ErrMalformedEvent, that.Kind)
	}
}

func (that *Event) decodeInto(payload any) error {
	if err := json.Unmarshal(that.Data, payload); err != nil {
		return fmt.Errorf("%w: bad %s payload", apperror.ErrMalformedEvent, that.Kind)
	}

	return nil
}

// Message returns the message payload; fails unless the kind matches.
func (that *Event) Message() (*MessagePayload, error) {
	if that.Kind != KindMessage {
		return nil, fmt.Errorf("%w: got %s", apperror.ErrUnexpectedKind, that.Kind)
	}

	var payload MessagePayload
	if err := that.decodeInto(&payload); err != nil {
		return nil, err
	}

	return &payload, nil
}

func (that *Event) Board() (*BoardPayload, error) {
	if that.Kind != KindBoard {
		return nil, fmt.Errorf("%w: got %s", apperror.ErrUnexpectedKind, that.Kind)
	}

	var payload BoardPayload
	if err := that.decodeInto(&payload); err != nil {
		return nil, err
	}

	return &payload, nil
}

func (that *Event) AskMove() (*AskMovePayload, error) {
	if that.Kind != KindAskMove {
		return nil, fmt.Errorf("%w: got %s", apperror.ErrUnexpectedKind, that.Kind)
	}

	var payload AskMovePayload
	if err := that.decodeInto(&payload); err != nil {
		return nil, err
	}

	return &payload, nil
}

func (that *Event) Move() (*MovePayload, error) {
	if that.Kind != KindMove {
		return nil, fmt.Errorf("%w: got %s", apperror.ErrUnexpectedKind, that.Kind)
	}

	var payload MovePayload
	if err := that.decodeInto(&payload); err != nil {
		return nil, err
	}

	return &payload, nil
}

func (that *Event) Result() (*ResultPayload, error) {
	if that.Kind != KindResult {
		return nil, fmt.Errorf("%w: got %s", apperror.ErrUnexpectedKind, that.Kind)
	}

	var payload ResultPayload
	if err := that.decodeInto(&payload); err != nil {
		return nil, err
	}

	return &payload, nil
}

func (that *Event) RoomStatus() (*RoomStatusPayload, error) {
	if that.Kind != KindRoomStatus {
		return nil, fmt.Errorf("%w: got %s", apperror.ErrUnexpectedKind, that.Kind)
	}

	var payload RoomStatusPayload
	if err := that.decodeInto(&payload); err != nil {
		return nil, err
	}

	return &payload, nil
}

func (that *Event) RematchVote() (*RematchVotePayload, error) {
	if that.Kind != KindRematchVote {
		return nil, fmt.Errorf("%w: got %s", apperror.ErrUnexpectedKind, that.Kind)
	}

	var payload RematchVotePayload
	if err := that.decodeInto(&payload); err != nil {
		return nil, err
	}

	return &payload, nil
}

func NewMessage(message string) *Event {
	return newEvent(KindMessage, MessagePayload{Message: message})
}

func NewBoard(cells []game.Cell) *Event {
	return newEvent(KindBoard, BoardPayload{Board: flattenCells(cells)})
}

func NewAskMove(player string) *Event {
	return newEvent(KindAskMove, AskMovePayload{Player: player})
}

func NewMove(position int, marker string) *Event {
	return newEvent(KindMove, MovePayload{Position: position, Marker: marker})
}

func NewResult(cells []game.Cell, outcome Outcome, message string) *Event {
	return newEvent(KindResult, ResultPayload{
		Board:   flattenCells(cells),
		Result:  outcome,
		Message: message,
	})
}

func NewQuit() *Event {
	return newEvent(KindQuit, struct{}{})
}

func NewRoomStatus(status string, players []string, currentTurn, winner string) *Event {
	return newEvent(KindRoomStatus, RoomStatusPayload{
		Status:      status,
		Players:     players,
		CurrentTurn: currentTurn,
		Winner:      winner,
	})
}

// NewRematchVote is the server→client broadcast of the vote state.
func NewRematchVote(votes map[string]bool, allVoted bool) *Event {
	return newEvent(KindRematchVote, RematchVotePayload{Votes: votes, AllVoted: allVoted})
}

// NewRematchBallot is the client→server cast of a single vote.
func NewRematchBallot(vote bool) *Event {
	return newEvent(KindRematchVote, RematchVotePayload{Vote: &vote})
}

// NewOutcome converts a board scan result into its wire form, mapping the
// winning marker to the player's identity.
func NewOutcome(result game.WinResult, winner string) Outcome {
	outcome := Outcome{
		Victory: result.Victory,
		Winner:  winner,
	}

	for _, coordinate := range result.Coordinates {
		outcome.Coordinates = append(outcome.Coordinates, [2]int{coordinate.Row, coordinate.Col})
	}

	return outcome
}

func newEvent(kind Kind, payload any) *Event {
	return &Event{
		Kind: kind,
		Data: json.RawMessage(mustMarshal(payload)),
	}
}

func flattenCells(cells []game.Cell) []int {
	flat := make([]int, len(cells))
	for i, cell := range cells {
		flat[i] = int(cell)
	}

	return flat
}

func mustMarshal(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}

	return raw
}
