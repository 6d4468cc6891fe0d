package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/shravanasati/term-tac-toe/internal/apperror"
	"github.com/shravanasati/term-tac-toe/internal/entity"
	"github.com/shravanasati/term-tac-toe/internal/event"
	"github.com/shravanasati/term-tac-toe/internal/registry"
)

type tokenRepo interface {
	Verify(ctx context.Context, token string) (*entity.TokenGrant, error)
	Revoke(ctx context.Context, token string) error
}

type roomRepo interface {
	GetByID(ctx context.Context, id string) (*entity.Room, error)
}

type loopStarter interface {
	StartLoop(ctx context.Context, roomID string)
}

type Server struct {
	logger *slog.Logger

	registry *registry.Registry
	tokens   tokenRepo
	rooms    roomRepo
	manager  loopStarter

	upgrader websocket.Upgrader
}

func New(logger *slog.Logger, reg *registry.Registry, tokens tokenRepo, rooms roomRepo, manager loopStarter) *Server {
	return &Server{
		logger:   logger.With("component", "websocket"),
		registry: reg,
		tokens:   tokens,
		rooms:    rooms,
		manager:  manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Start - starts the WebSocket server. Room loops spawned by the accept
// path inherit appCtx, not the request context.
func (that *Server) Start(appCtx context.Context, port string) error {
	router := chi.NewRouter()
	router.Get("/ws/{roomID}", func(w http.ResponseWriter, r *http.Request) {
		that.handleSocket(appCtx, w, r)
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-appCtx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// handleSocket runs the join handshake: verify the capability token,
// upgrade, attach the socket under the granted identity, and start the
// room loop once both players are connected.
func (that *Server) handleSocket(appCtx context.Context, w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleSocket")

	roomID := chi.URLParam(r, "roomID")
	token := r.URL.Query().Get("token")

	grant, err := that.tokens.Verify(r.Context(), token)
	if errors.Is(err, apperror.ErrTokenInvalid) {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}
	if err != nil {
		log.Error("failed to verify token", "roomID", roomID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if grant.RoomID != roomID {
		http.Error(w, "token does not match room", http.StatusForbidden)
		return
	}

	room, err := that.rooms.GetByID(r.Context(), roomID)
	if errors.Is(err, apperror.ErrRoomNotFound) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error("failed to get room", "roomID", roomID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ws, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "roomID", roomID, "error", err)
		return
	}

	// Two sockets may race to be the room's first.
	that.registry.EnsureRoom(roomID)

	session, err := that.registry.Attach(roomID, NewConn(ws))
	if err != nil {
		log.Info("socket rejected", "roomID", roomID, "player", grant.Player, "error", err)
		return
	}

	that.registry.BindIdentity(roomID, session, grant.Player)

	// Tokens are single use; a lost connection needs a fresh join.
	if err = that.tokens.Revoke(appCtx, token); err != nil {
		log.Error("failed to revoke token", "roomID", roomID, "error", err)
	}

	log.Info("socket attached", "roomID", roomID, "player", grant.Player)

	if that.registry.LiveConnections(roomID) < 2 {
		that.registry.Send(roomID, grant.Player,
			event.NewMessage(fmt.Sprintf("welcome %s, waiting for an opponent to join room %s", grant.Player, roomID)))
		return
	}

	that.registry.Send(roomID, grant.Player,
		event.NewMessage(fmt.Sprintf("welcome %s, your opponent is already here", grant.Player)))

	if room.IsFull() {
		that.startWhenReady(appCtx, roomID)
	}
}

// startWhenReady spawns the room loop only once both sockets carry a bound
// identity. Attach and BindIdentity are two steps, so the peer's socket can
// be live but not yet identified; in that case the later binder starts the
// loop.
func (that *Server) startWhenReady(appCtx context.Context, roomID string) {
	if len(that.registry.Identities(roomID)) < 2 {
		return
	}

	that.manager.StartLoop(appCtx, roomID)
}
