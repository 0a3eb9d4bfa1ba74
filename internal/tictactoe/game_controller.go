package tictactoe

import (
	"fmt"
	"time"

	"github.com/rocketscienceinc/tictactoe-arena/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-arena/internal/entity"
)

type bot interface {
	ChooseMove(board entity.Board, botMark, humanMark entity.Mark) (int, error)
}

// Observer receives controller events synchronously, in emission order.
type Observer interface {
	Notify(event entity.Event)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(event entity.Event)

func (that ObserverFunc) Notify(event entity.Event) {
	that(event)
}

// GameController owns the state of one game session and applies commands to it.
// It is not safe for concurrent use.
type GameController struct {
	game      *entity.Game
	bot       bot
	observers []Observer
}

// NewGameController binds the controller to game. A nil game starts a fresh human vs human game.
func NewGameController(game *entity.Game, bot bot, observers ...Observer) *GameController {
	if game == nil {
		game = entity.NewGame("")
	}

	return &GameController{
		game:      game,
		bot:       bot,
		observers: observers,
	}
}

func (that *GameController) Subscribe(observer Observer) {
	that.observers = append(that.observers, observer)
}

// Snapshot returns a copy of the current state.
func (that *GameController) Snapshot() *entity.Game {
	return that.game.Clone()
}

// Reset starts a new game and keeps mode, symbols and scores.
func (that *GameController) Reset() {
	that.game.Board = entity.Board{}
	that.game.Status = entity.StatusOngoing
	that.game.Winner = entity.EmptyCell
	that.game.Line = nil

	if that.game.IsWithBot() {
		if that.game.HumanOpens {
			that.game.Turn = that.game.Players.Human
		} else {
			that.game.Turn = that.game.Players.AI
		}
		that.game.HumanOpens = !that.game.HumanOpens
	} else {
		that.game.Turn = that.game.Players.Human
	}

	that.touch()

	that.emit(entity.GameResetEvent(that.game.Turn, that.game.Scores))
	that.emit(entity.TurnChangedEvent(that.game.Turn))

	if that.game.IsBotTurn() {
		that.emit(entity.AITurnReadyEvent())
	}
}

func (that *GameController) ResetScores() {
	that.game.Scores = entity.ScoreBoard{}
	that.Reset()
}

func (that *GameController) SetMode(mode entity.Mode) error {
	if _, err := entity.ParseMode(string(mode)); err != nil {
		return err
	}

	that.game.Mode = mode
	if mode == entity.ModeHumanVsAI {
		that.game.HumanOpens = true
	}

	that.Reset()

	return nil
}

// ChooseSymbol gives mark to the human and the other mark to the AI.
func (that *GameController) ChooseSymbol(mark entity.Mark) error {
	if !mark.IsPlayer() {
		return fmt.Errorf("%w: %w: %q", apperror.ErrInvalidConfiguration, apperror.ErrInvalidMark, mark)
	}

	that.game.Players = entity.NewPlayerAssignment(mark)
	that.Reset()

	return nil
}

// AttemptMove places the current mark on cell for a human player.
func (that *GameController) AttemptMove(cell int) (*entity.Game, error) {
	if err := that.validateMove(cell); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrIllegalMove, err)
	}

	if that.game.IsBotTurn() {
		return nil, fmt.Errorf("%w: %w", apperror.ErrIllegalMove, apperror.ErrNotYourTurn)
	}

	that.applyMove(cell)

	return that.Snapshot(), nil
}

// RequestAIMove lets the bot play. Preconditions are checked on every call.
func (that *GameController) RequestAIMove() (*entity.Game, error) {
	switch {
	case !that.game.IsWithBot():
		return nil, fmt.Errorf("%w: %w", apperror.ErrInvalidConfiguration, apperror.ErrNotAIMode)
	case !that.game.IsOngoing():
		return nil, fmt.Errorf("%w: %w", apperror.ErrInvalidConfiguration, apperror.ErrGameFinished)
	case !that.game.IsBotTurn():
		return nil, fmt.Errorf("%w: %w", apperror.ErrInvalidConfiguration, apperror.ErrNotAITurn)
	}

	cell, err := that.bot.ChooseMove(that.game.Board, that.game.Players.AI, that.game.Players.Human)
	if err != nil {
		return nil, fmt.Errorf("bot failed to choose a move: %w", err)
	}

	if err = that.validateMove(cell); err != nil {
		return nil, fmt.Errorf("%w: bot chose cell %d: %w", apperror.ErrIllegalMove, cell, err)
	}

	that.applyMove(cell)

	return that.Snapshot(), nil
}

// validateMove - checks if the move is valid.
func (that *GameController) validateMove(cell int) error {
	if !that.game.IsOngoing() {
		return apperror.ErrGameFinished
	}

	if !entity.InRange(cell) {
		return fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	if that.game.Board[cell] != entity.EmptyCell {
		return apperror.ErrCellOccupied
	}

	return nil
}

// applyMove - writes the mark and settles the outcome. The move must already be validated.
func (that *GameController) applyMove(cell int) {
	mark := that.game.Turn
	that.game.Board[cell] = mark
	that.touch()

	that.emit(entity.MoveAppliedEvent(cell, mark))

	if line, winner, ok := that.game.Board.WinningLine(); ok {
		that.game.Status = entity.StatusWon
		that.game.Winner = winner
		that.game.Line = &line
		that.game.Scores.AddWin(winner)

		that.emit(entity.WonEvent(winner, line, that.game.Scores))
		return
	}

	if that.game.Board.IsFull() {
		that.game.Status = entity.StatusDraw
		that.game.Scores.Draw++

		that.emit(entity.DrawEvent(that.game.Scores))
		return
	}

	that.game.Turn = mark.Opponent()
	that.emit(entity.TurnChangedEvent(that.game.Turn))

	if that.game.IsBotTurn() {
		that.emit(entity.AITurnReadyEvent())
	}
}

func (that *GameController) touch() {
	that.game.UpdatedAt = time.Now().UTC()
}

func (that *GameController) emit(event entity.Event) {
	for _, observer := range that.observers {
		observer.Notify(event)
	}
}
