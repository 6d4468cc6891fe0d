package apperror

import "errors"

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrUnexpectedKind = errors.New("unexpected event kind")

	ErrBoardTooSmall = errors.New("board must be at least 3x3")
	ErrInvalidCell   = errors.New("invalid cell position")
	ErrCellOccupied  = errors.New("cell is already occupied")
	ErrNotYourTurn   = errors.New("it's not your turn")

	ErrPeerLost              = errors.New("peer connection lost")
	ErrRoomFull              = errors.New("room is already full")
	ErrRoomNotFound          = errors.New("room not found in registry")
	ErrRoomAlreadyRegistered = errors.New("room is already registered")
	ErrPlayerNotFound        = errors.New("player not found in room")

	ErrNameTaken   = errors.New("a player with the same name already exists in the room")
	ErrInvalidName = errors.New("player name may only contain letters and digits")

	ErrTokenInvalid = errors.New("token is unknown or expired")
)
