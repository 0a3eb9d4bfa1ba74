package service

import (
	"errors"
	"time"

	"golang.org/x/exp/rand"

	"github.com/rocketscienceinc/tictactoe-arena/internal/entity"
)

var ErrNoAvailableMoves = errors.New("no available moves")

type BotService interface {
	ChooseMove(board entity.Board, botMark, humanMark entity.Mark) (int, error)
}

// botService picks moves by fixed priority: win, block, center, corner, side, first free cell.
// It looks one move ahead only.
type botService struct {
	rand *rand.Rand
}

// NewBotService uses rnd for corner and side tie-breaks. A nil rnd is seeded from the clock.
func NewBotService(rnd *rand.Rand) BotService {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	}

	return &botService{
		rand: rnd,
	}
}

func (that *botService) ChooseMove(board entity.Board, botMark, humanMark entity.Mark) (int, error) {
	availableCells := board.EmptyCells()
	if len(availableCells) == 0 {
		return 0, ErrNoAvailableMoves
	}

	if cell, ok := findCompletingCell(board, availableCells, botMark); ok {
		return cell, nil
	}

	if cell, ok := findCompletingCell(board, availableCells, humanMark); ok {
		return cell, nil
	}

	if board.IsEmptyAt(entity.CenterCell) {
		return entity.CenterCell, nil
	}

	if cell, ok := that.pickRandom(board, entity.CornerCells[:]); ok {
		return cell, nil
	}

	if cell, ok := that.pickRandom(board, entity.SideCells[:]); ok {
		return cell, nil
	}

	return availableCells[0], nil
}

// findCompletingCell returns the lowest free cell where mark would finish a line.
func findCompletingCell(board entity.Board, availableCells []int, mark entity.Mark) (int, bool) {
	for _, cell := range availableCells {
		if board.CompletesLine(cell, mark) {
			return cell, true
		}
	}

	return 0, false
}

func (that *botService) pickRandom(board entity.Board, candidates []int) (int, bool) {
	free := make([]int, 0, len(candidates))
	for _, cell := range candidates {
		if board.IsEmptyAt(cell) {
			free = append(free, cell)
		}
	}

	if len(free) == 0 {
		return 0, false
	}

	return free[that.rand.Intn(len(free))], true
}
