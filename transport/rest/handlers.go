package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shravanasati/term-tac-toe/internal/apperror"
	"github.com/shravanasati/term-tac-toe/internal/entity"
	"github.com/shravanasati/term-tac-toe/pkg/generate"
)

// roomIDAttempts bounds the retries on a room code collision.
const roomIDAttempts = 5

var playerNamePattern = regexp.MustCompile(`^[A-Za-z0-9]{1,50}$`)

type roomRepo interface {
	CreateOrUpdate(ctx context.Context, room *entity.Room) error
	GetByID(ctx context.Context, id string) (*entity.Room, error)
	AddPlayer(ctx context.Context, id, name string) (*entity.Room, error)
}

type tokenRepo interface {
	Issue(ctx context.Context, token string, grant *entity.TokenGrant, ttl time.Duration) error
}

type Handlers struct {
	logger *slog.Logger

	rooms  roomRepo
	tokens tokenRepo

	boardSize int
	tokenTTL  time.Duration
}

func NewHandlers(logger *slog.Logger, rooms roomRepo, tokens tokenRepo, boardSize int, tokenTTL time.Duration) *Handlers {
	return &Handlers{
		logger:    logger.With("component", "rest"),
		rooms:     rooms,
		tokens:    tokens,
		boardSize: boardSize,
		tokenTTL:  tokenTTL,
	}
}

type createRoomRequest struct {
	PlayerName string `json:"player_name"`
}

type joinRoomRequest struct {
	RoomID     string `json:"room_id"`
	PlayerName string `json:"player_name"`
}

// joinedRoomResponse is returned by both create and join: everything a
// client needs to open the websocket.
type joinedRoomResponse struct {
	RoomID            string `json:"room_id"`
	Player            string `json:"player"`
	Token             string `json:"token"`
	Status            string `json:"status"`
	WebsocketRedirect string `json:"websocket_redirect"`
}

type roomStatusResponse struct {
	RoomID      string   `json:"room_id"`
	Status      string   `json:"status"`
	Players     []string `json:"players"`
	CurrentTurn string   `json:"current_turn"`
	Winner      string   `json:"winner"`
	BoardState  string   `json:"board_state"`
	BoardSize   int      `json:"board_size"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (that *Handlers) PingHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

// CreateRoom opens a fresh room with the caller in player slot 1 and
// returns a capability token for the websocket handshake.
func (that *Handlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "CreateRoom")
	ctx := r.Context()

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		that.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !playerNamePattern.MatchString(req.PlayerName) {
		that.writeError(w, http.StatusBadRequest, apperror.ErrInvalidName.Error())
		return
	}

	room, err := that.newUniqueRoom(ctx)
	if err != nil {
		log.Error("failed to allocate room id", "error", err)
		that.writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	if err = room.AddPlayer(req.PlayerName); err != nil {
		that.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err = that.rooms.CreateOrUpdate(ctx, room); err != nil {
		log.Error("failed to save room", "error", err)
		that.writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	token, err := that.issueToken(ctx, room.ID, req.PlayerName)
	if err != nil {
		log.Error("failed to issue token", "roomID", room.ID, "error", err)
		that.writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	log.Info("room created", "roomID", room.ID, "player", req.PlayerName)

	that.writeJSON(w, http.StatusCreated, joinedRoomResponse{
		RoomID:            room.ID,
		Player:            req.PlayerName,
		Token:             token,
		Status:            room.Status,
		WebsocketRedirect: "/ws/" + room.ID,
	})
}

// JoinRoom puts the caller into the room's free slot.
func (that *Handlers) JoinRoom(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "JoinRoom")
	ctx := r.Context()

	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		that.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !playerNamePattern.MatchString(req.PlayerName) {
		that.writeError(w, http.StatusBadRequest, apperror.ErrInvalidName.Error())
		return
	}

	// The repository claims the slot atomically, so two racing joins can
	// never both take the last seat.
	room, err := that.rooms.AddPlayer(ctx, req.RoomID, req.PlayerName)
	switch {
	case errors.Is(err, apperror.ErrRoomNotFound):
		that.writeError(w, http.StatusNotFound, apperror.ErrRoomNotFound.Error())
		return
	case errors.Is(err, apperror.ErrNameTaken), errors.Is(err, apperror.ErrRoomFull):
		that.writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		log.Error("failed to join room", "roomID", req.RoomID, "error", err)
		that.writeError(w, http.StatusInternalServerError, "failed to join room")
		return
	}

	token, err := that.issueToken(ctx, room.ID, req.PlayerName)
	if err != nil {
		log.Error("failed to issue token", "roomID", room.ID, "error", err)
		that.writeError(w, http.StatusInternalServerError, "failed to join room")
		return
	}

	log.Info("player joined room", "roomID", room.ID, "player", req.PlayerName)

	that.writeJSON(w, http.StatusOK, joinedRoomResponse{
		RoomID:            room.ID,
		Player:            req.PlayerName,
		Token:             token,
		Status:            room.Status,
		WebsocketRedirect: "/ws/" + room.ID,
	})
}

// RoomStatus reports the persisted state of one room.
func (that *Handlers) RoomStatus(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "RoomStatus")
	ctx := r.Context()

	roomID := chi.URLParam(r, "roomID")

	room, err := that.rooms.GetByID(ctx, roomID)
	if errors.Is(err, apperror.ErrRoomNotFound) {
		that.writeError(w, http.StatusNotFound, apperror.ErrRoomNotFound.Error())
		return
	}
	if err != nil {
		log.Error("failed to get room", "roomID", roomID, "error", err)
		that.writeError(w, http.StatusInternalServerError, "failed to get room")
		return
	}

	that.writeJSON(w, http.StatusOK, roomStatusResponse{
		RoomID:      room.ID,
		Status:      room.Status,
		Players:     room.Players(),
		CurrentTurn: room.CurrentTurn,
		Winner:      room.Winner,
		BoardState:  room.BoardState,
		BoardSize:   room.BoardSize,
	})
}

// newUniqueRoom retries the short room code until it misses.
func (that *Handlers) newUniqueRoom(ctx context.Context) (*entity.Room, error) {
	for attempt := 0; attempt < roomIDAttempts; attempt++ {
		id := generate.RoomID()

		_, err := that.rooms.GetByID(ctx, id)
		if errors.Is(err, apperror.ErrRoomNotFound) {
			return entity.NewRoom(id, that.boardSize), nil
		}
		if err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("no free room id after %d attempts", roomIDAttempts)
}

func (that *Handlers) issueToken(ctx context.Context, roomID, player string) (string, error) {
	token := generate.Token()
	grant := &entity.TokenGrant{RoomID: roomID, Player: player}

	if err := that.tokens.Issue(ctx, token, grant, that.tokenTTL); err != nil {
		return "", err
	}

	return token, nil
}

func (that *Handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Error("failed to encode response", "method", "writeJSON", "error", err)
	}
}

func (that *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	that.writeJSON(w, status, errorResponse{Error: message})
}
