package sstt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func gridFrom(cells map[int]Mark) Grid {
	var g Grid
	for i, m := range cells {
		g[i] = m
	}
	return g
}

func TestEvaluate_AllWinningLines(t *testing.T) {
	assert := assert.New(t)

	winningLines := [8][3]int{
		{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
		{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
		{0, 4, 8}, {2, 4, 6}, // diagonals
	}

	for _, mark := range []Mark{MarkX, MarkO} {
		for _, line := range winningLines {
			g := gridFrom(map[int]Mark{line[0]: mark, line[1]: mark, line[2]: mark})
			out := Evaluate(g)
			assert.Equal(mark, out.Winner, "line %v should be won by %s", line, mark)
			assert.False(out.Draw)
		}
	}
}

func TestEvaluate_FullGridDraw(t *testing.T) {
	assert := assert.New(t)

	// x o x
	// x o o
	// o x x
	g := Grid{MarkX, MarkO, MarkX, MarkX, MarkO, MarkO, MarkO, MarkX, MarkX}

	out := Evaluate(g)

	assert.Equal(MarkNone, out.Winner)
	assert.True(out.Draw)
}

func TestEvaluate_InProgress(t *testing.T) {
	assert := assert.New(t)

	g := gridFrom(map[int]Mark{0: MarkX, 4: MarkO})

	out := Evaluate(g)

	assert.Equal(MarkNone, out.Winner)
	assert.False(out.Draw)
}

func TestEvaluate_EmptyGrid(t *testing.T) {
	out := Evaluate(Grid{})
	if out.Winner != MarkNone || out.Draw {
		t.Errorf("empty grid should be undecided, got %+v", out)
	}
}

func TestGrid_Decided(t *testing.T) {
	assert := assert.New(t)

	assert.False(Grid{}.Decided())
	assert.True(gridFrom(map[int]Mark{0: MarkX, 1: MarkX, 2: MarkX}).Decided())

	drawn := Grid{MarkX, MarkO, MarkX, MarkX, MarkO, MarkO, MarkO, MarkX, MarkX}
	assert.True(drawn.Decided())
}

func TestEvaluateSuper_WinnerAcrossSubBoards(t *testing.T) {
	assert := assert.New(t)

	won := gridFrom(map[int]Mark{0: MarkX, 1: MarkX, 2: MarkX})

	var sg SuperGrid
	sg[0] = won
	sg[4] = won
	sg[8] = won

	out := EvaluateSuper(sg)

	assert.Equal(MarkX, out.Winner)
	assert.False(out.Draw)
}

func TestEvaluateSuper_DrawnSubBoardBlocksLine(t *testing.T) {
	assert := assert.New(t)

	wonX := gridFrom(map[int]Mark{0: MarkX, 1: MarkX, 2: MarkX})
	drawn := Grid{MarkX, MarkO, MarkX, MarkX, MarkO, MarkO, MarkO, MarkX, MarkX}

	// X owns sub-boards 0 and 8, but the centre is drawn: the diagonal
	// through it must never complete for either side.
	var sg SuperGrid
	sg[0] = wonX
	sg[4] = drawn
	sg[8] = wonX

	out := EvaluateSuper(sg)

	assert.Equal(MarkNone, out.Winner)
	assert.False(out.Draw)
}

func TestEvaluateSuper_AllDecidedNoLineIsDraw(t *testing.T) {
	assert := assert.New(t)

	wonX := gridFrom(map[int]Mark{0: MarkX, 1: MarkX, 2: MarkX})
	wonO := gridFrom(map[int]Mark{0: MarkO, 1: MarkO, 2: MarkO})
	drawn := Grid{MarkX, MarkO, MarkX, MarkX, MarkO, MarkO, MarkO, MarkX, MarkX}

	// x o x
	// o - o   (- drawn)
	// o x x  ... arranged so no meta line completes
	sg := SuperGrid{wonX, wonO, wonX, wonO, drawn, wonO, wonO, wonX, wonX}

	out := EvaluateSuper(sg)

	assert.Equal(MarkNone, out.Winner)
	assert.True(out.Draw)
}

func TestOpponent(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(MarkO, Opponent(MarkX))
	assert.Equal(MarkX, Opponent(MarkO))
}
