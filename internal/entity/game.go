package entity

import (
	"fmt"
	"time"

	"github.com/rocketscienceinc/tictactoe-arena/internal/apperror"
)

const (
	StatusOngoing = "ongoing"
	StatusWon     = "won"
	StatusDraw    = "draw"
)

const (
	PlayerX Mark = "X"
	PlayerO Mark = "O"

	EmptyCell Mark = ""
)

const (
	ModeHumanVsHuman Mode = "pvp"
	ModeHumanVsAI    Mode = "pvai"
)

// Mark is the symbol placed in a cell. EmptyCell marks a free cell.
type Mark string

// Opponent returns the other player's mark.
func (that Mark) Opponent() Mark {
	if that == PlayerX {
		return PlayerO
	}
	return PlayerX
}

func (that Mark) IsPlayer() bool {
	return that == PlayerX || that == PlayerO
}

// ParseMark accepts "X" or "O".
func ParseMark(value string) (Mark, error) {
	mark := Mark(value)
	if !mark.IsPlayer() {
		return EmptyCell, fmt.Errorf("%w: %w: %q", apperror.ErrInvalidConfiguration, apperror.ErrInvalidMark, value)
	}

	return mark, nil
}

type Mode string

// ParseMode accepts "pvp" or "pvai".
func ParseMode(value string) (Mode, error) {
	switch mode := Mode(value); mode {
	case ModeHumanVsHuman, ModeHumanVsAI:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %w: %q", apperror.ErrInvalidConfiguration, apperror.ErrUnknownMode, value)
	}
}

// ScoreBoard counts finished games for the lifetime of a session.
type ScoreBoard struct {
	X    int `json:"X"`
	O    int `json:"O"`
	Draw int `json:"draw"`
}

func (that *ScoreBoard) AddWin(mark Mark) {
	switch mark {
	case PlayerX:
		that.X++
	case PlayerO:
		that.O++
	}
}

// Game is the full state of one session. It is what gets stored and returned to clients.
type Game struct {
	ID      string           `json:"id"`
	Board   Board            `json:"board"`
	Turn    Mark             `json:"turn"`
	Status  string           `json:"status"`
	Winner  Mark             `json:"winner,omitempty"`
	Line    *Line            `json:"line,omitempty"`
	Mode    Mode             `json:"mode"`
	Players PlayerAssignment `json:"players"`
	Scores  ScoreBoard       `json:"scores"`

	// HumanOpens decides who opens the next game in HumanVsAI mode. It flips on every reset.
	HumanOpens bool `json:"human_opens"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewGame returns a human-vs-human game with X to move.
func NewGame(id string) *Game {
	now := time.Now().UTC()

	return &Game{
		ID:        id,
		Turn:      PlayerX,
		Status:    StatusOngoing,
		Mode:      ModeHumanVsHuman,
		Players:   NewPlayerAssignment(PlayerX),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (that *Game) IsOngoing() bool {
	return that.Status == StatusOngoing
}

func (that *Game) IsFinished() bool {
	return that.Status == StatusWon || that.Status == StatusDraw
}

func (that *Game) IsWithBot() bool {
	return that.Mode == ModeHumanVsAI
}

// IsBotTurn reports whether the mark to move belongs to the AI.
func (that *Game) IsBotTurn() bool {
	return that.IsWithBot() && that.Turn == that.Players.AI
}

// Clone returns a deep copy.
func (that *Game) Clone() *Game {
	clone := *that
	if that.Line != nil {
		line := *that.Line
		clone.Line = &line
	}

	return &clone
}
