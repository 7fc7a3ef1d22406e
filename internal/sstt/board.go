package sstt

// Mark is the content of a single cell.
type Mark string

const (
	MarkX    Mark = "x"
	MarkO    Mark = "o"
	MarkNone Mark = ""
)

// Grid is a 3x3 board in row-major order (index = row*3 + col).
type Grid [9]Mark

// SuperGrid is the nine sub-boards of a super game, row-major like Grid.
type SuperGrid [9]Grid

// Outcome is the result of evaluating a board.
type Outcome struct {
	Winner Mark
	Draw   bool
}

// The 8 winning lines: 3 rows, 3 columns, 2 diagonals.
var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Evaluate checks a single 3x3 grid for a winner or a draw.
func Evaluate(g Grid) Outcome {
	for _, line := range lines {
		m := g[line[0]]
		if m != MarkNone && g[line[1]] == m && g[line[2]] == m {
			return Outcome{Winner: m}
		}
	}
	if g.Full() {
		return Outcome{Draw: true}
	}
	return Outcome{}
}

// Full reports whether every cell is occupied.
func (g Grid) Full() bool {
	for _, m := range g {
		if m == MarkNone {
			return false
		}
	}
	return true
}

// Decided reports whether the grid is won or can no longer be played in.
func (g Grid) Decided() bool {
	out := Evaluate(g)
	return out.Winner != MarkNone || out.Draw
}

// EvaluateSuper evaluates the composite board. Each sub-board is reduced to a
// meta-grid cell: the winner's mark if won, empty otherwise. A drawn sub-board
// stays empty forever, so it permanently blocks every line through that cell.
// The overall game is a draw once all nine sub-boards are decided with no line
// on the meta-grid.
func EvaluateSuper(sg SuperGrid) Outcome {
	var meta Grid
	allDecided := true
	for i, sub := range sg {
		out := Evaluate(sub)
		meta[i] = out.Winner
		if out.Winner == MarkNone && !out.Draw {
			allDecided = false
		}
	}

	for _, line := range lines {
		m := meta[line[0]]
		if m != MarkNone && meta[line[1]] == m && meta[line[2]] == m {
			return Outcome{Winner: m}
		}
	}

	if allDecided {
		return Outcome{Draw: true}
	}
	return Outcome{}
}

// Opponent returns the other player's mark.
func Opponent(m Mark) Mark {
	if m == MarkX {
		return MarkO
	}
	return MarkX
}
