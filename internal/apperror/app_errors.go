package apperror

import "errors"

// Rejection categories. Every game-flow rejection wraps exactly one of them.
var (
	ErrIllegalMove          = errors.New("illegal move")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Illegal move causes.
var (
	ErrGameFinished = errors.New("game is already finished")
	ErrNotYourTurn  = errors.New("it's not your turn")
	ErrCellOccupied = errors.New("cell is already occupied")
	ErrInvalidCell  = errors.New("invalid cell index")
)

// Invalid configuration causes.
var (
	ErrNotAIMode   = errors.New("game is not in human vs AI mode")
	ErrNotAITurn   = errors.New("it's not the AI's turn")
	ErrUnknownMode = errors.New("unknown game mode")
	ErrInvalidMark = errors.New("invalid mark")
)

var ErrSessionNotFound = errors.New("session not found")
