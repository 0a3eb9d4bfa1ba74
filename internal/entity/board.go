package entity

// Line is a winning triple of cell indices.
type Line [3]int

const (
	BoardSize  = 9
	CenterCell = 4
)

// WinCombos is scanned in this order: rows, columns, diagonals.
var WinCombos = [8]Line{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

var (
	CornerCells = [4]int{0, 2, 6, 8}
	SideCells   = [4]int{1, 3, 5, 7}
)

// Board holds the cells in row-major order.
type Board [BoardSize]Mark

// WinningLine returns the first completed line in WinCombos order.
func (that Board) WinningLine() (Line, Mark, bool) {
	for _, combo := range WinCombos {
		a, b, c := that[combo[0]], that[combo[1]], that[combo[2]]
		if a != EmptyCell && a == b && b == c {
			return combo, a, true
		}
	}

	return Line{}, EmptyCell, false
}

func (that Board) IsFull() bool {
	for _, cell := range that {
		if cell == EmptyCell {
			return false
		}
	}

	return true
}

// EmptyCells returns free indices in ascending order.
func (that Board) EmptyCells() []int {
	cells := make([]int, 0, len(that))
	for i, cell := range that {
		if cell == EmptyCell {
			cells = append(cells, i)
		}
	}

	return cells
}

func (that Board) IsEmptyAt(cell int) bool {
	return InRange(cell) && that[cell] == EmptyCell
}

// CompletesLine reports whether placing mark at cell would finish a line.
func (that Board) CompletesLine(cell int, mark Mark) bool {
	if !that.IsEmptyAt(cell) {
		return false
	}

	that[cell] = mark
	_, winner, ok := that.WinningLine()

	return ok && winner == mark
}

func InRange(cell int) bool {
	return cell >= 0 && cell < BoardSize
}
