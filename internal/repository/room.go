package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shravanasati/term-tac-toe/internal/apperror"
	"github.com/shravanasati/term-tac-toe/internal/entity"
)

type RoomRepository interface {
	CreateOrUpdate(ctx context.Context, room *entity.Room) error
	GetByID(ctx context.Context, id string) (*entity.Room, error)
	AddPlayer(ctx context.Context, id, name string) (*entity.Room, error)
	DeleteByID(ctx context.Context, id string) error
	MarkInactive(ctx context.Context, id string) error
	ActiveRooms(ctx context.Context) ([]*entity.Room, error)
}

type roomRepository struct {
	conn *sql.DB
}

func NewRoomRepository(conn *sql.DB) RoomRepository {
	return &roomRepository{
		conn: conn,
	}
}

func (that *roomRepository) CreateOrUpdate(ctx context.Context, room *entity.Room) error {
	query := `INSERT INTO rooms (id, player1, player2, status, current_turn, winner, board_state, board_size, created_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			player1 = excluded.player1,
			player2 = excluded.player2,
			status = excluded.status,
			current_turn = excluded.current_turn,
			winner = excluded.winner,
			board_state = excluded.board_state,
			board_size = excluded.board_size,
			is_active = excluded.is_active`

	_, err := that.conn.ExecContext(ctx, query,
		room.ID, room.Player1, room.Player2, room.Status, room.CurrentTurn,
		room.Winner, room.BoardState, room.BoardSize, room.CreatedAt, room.IsActive)
	if err != nil {
		return fmt.Errorf("can't save room: %w", err)
	}

	return nil
}

func (that *roomRepository) GetByID(ctx context.Context, id string) (*entity.Room, error) {
	query := `SELECT id, player1, player2, status, current_turn, winner, board_state, board_size, created_at, is_active
		FROM rooms WHERE id = ?`

	var room entity.Room

	err := that.conn.QueryRowContext(ctx, query, id).Scan(
		&room.ID, &room.Player1, &room.Player2, &room.Status, &room.CurrentTurn,
		&room.Winner, &room.BoardState, &room.BoardSize, &room.CreatedAt, &room.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperror.ErrRoomNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("can't find room: %w", err)
	}

	return &room, nil
}

// AddPlayer claims a free player slot with a conditional update, so two
// racing joins cannot both take the last seat. It returns the room as it
// looks after the claim.
func (that *roomRepository) AddPlayer(ctx context.Context, id, name string) (*entity.Room, error) {
	slots := []string{
		`UPDATE rooms SET player1 = ? WHERE id = ? AND player1 = '' AND player2 != ?`,
		`UPDATE rooms SET player2 = ? WHERE id = ? AND player2 = '' AND player1 != ?`,
	}

	for _, query := range slots {
		result, err := that.conn.ExecContext(ctx, query, name, id, name)
		if err != nil {
			return nil, fmt.Errorf("can't add player: %w", err)
		}

		claimed, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("can't add player: %w", err)
		}

		if claimed == 1 {
			return that.GetByID(ctx, id)
		}
	}

	room, err := that.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if room.HasPlayer(name) {
		return nil, fmt.Errorf("%w: %s", apperror.ErrNameTaken, name)
	}

	return nil, fmt.Errorf("%w: %s", apperror.ErrRoomFull, id)
}

func (that *roomRepository) DeleteByID(ctx context.Context, id string) error {
	query := `DELETE FROM rooms WHERE id = ?`

	_, err := that.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("can't delete room: %w", err)
	}

	return nil
}

// MarkInactive keeps the room row for the record but takes it out of every
// active-room scan.
func (that *roomRepository) MarkInactive(ctx context.Context, id string) error {
	query := `UPDATE rooms SET is_active = ? WHERE id = ?`

	_, err := that.conn.ExecContext(ctx, query, false, id)
	if err != nil {
		return fmt.Errorf("can't mark room inactive: %w", err)
	}

	return nil
}

// ActiveRooms returns every room row still marked active, oldest first.
func (that *roomRepository) ActiveRooms(ctx context.Context) ([]*entity.Room, error) {
	query := `SELECT id, player1, player2, status, current_turn, winner, board_state, board_size, created_at, is_active
		FROM rooms WHERE is_active = ? ORDER BY created_at`

	rows, err := that.conn.QueryContext(ctx, query, true)
	if err != nil {
		return nil, fmt.Errorf("can't list active rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*entity.Room
	for rows.Next() {
		var room entity.Room
		if err = rows.Scan(
			&room.ID, &room.Player1, &room.Player2, &room.Status, &room.CurrentTurn,
			&room.Winner, &room.BoardState, &room.BoardSize, &room.CreatedAt, &room.IsActive,
		); err != nil {
			return nil, fmt.Errorf("can't scan room row: %w", err)
		}
		rooms = append(rooms, &room)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("can't iterate room rows: %w", err)
	}

	return rooms, nil
}
