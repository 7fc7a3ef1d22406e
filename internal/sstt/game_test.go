package sstt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	alice = Player{UserID: "u1", Username: "alice"}
	bob   = Player{UserID: "u2", Username: "bob"}
)

func newTestGame(t *testing.T, mode Mode) *Game {
	t.Helper()
	g, err := NewGame("g1", mode, alice, bob)
	if err != nil {
		t.Fatalf("NewGame failed: %v", err)
	}
	return g
}

func TestNewGame_Defaults(t *testing.T) {
	assert := assert.New(t)

	g := newTestGame(t, ModeSuper)

	assert.Equal(MarkX, g.Current)
	assert.Equal(FreeField, g.ActiveField)
	assert.False(g.Finished)
	assert.Equal(MarkNone, g.Winner)
	assert.Empty(g.Moves)
	assert.False(g.StartedAt.IsZero())
}

func TestNewGame_UnsupportedModes(t *testing.T) {
	assert := assert.New(t)

	for _, mode := range []Mode{ModeMeta, ModeUltimate} {
		_, err := NewGame("g1", mode, alice, bob)
		assert.Error(err)
		assert.Contains(err.Error(), "UNSUPPORTED_MODE")
	}

	_, err := NewGame("g1", Mode("bogus"), alice, bob)
	assert.Error(err)
	assert.Contains(err.Error(), "INVALID_MODE")
}

func TestPlayerMark(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, ModeNormal)

	assert.Equal(MarkX, g.PlayerMark("u1"))
	assert.Equal(MarkO, g.PlayerMark("u2"))
	assert.Equal(MarkNone, g.PlayerMark("u3"))
}

func TestApplyMove_TurnAlternation(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, ModeNormal)

	// Cells chosen so nobody completes a line.
	cells := []int{0, 1, 2, 4, 3, 5, 7, 6}
	expected := []Mark{MarkX, MarkO, MarkX, MarkO, MarkX, MarkO, MarkX, MarkO}

	for i, cell := range cells {
		assert.Equal(expected[i], g.Current, "before move %d", i)
		res := g.ApplyMove(g.Current, FreeField, cell)
		assert.True(res.Success, "move %d: %s", i, res.Message)
	}
	assert.Equal(len(cells), len(g.Moves))
}

func TestApplyMove_WrongTurnRejected(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, ModeNormal)

	res := g.ApplyMove(MarkO, FreeField, 0)

	assert.False(res.Success)
	assert.Contains(res.Message, "NOT_YOUR_TURN")
	assert.Empty(g.Moves)
	assert.Equal(MarkX, g.Current)
}

func TestApplyMove_OccupiedCellRejected(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, ModeNormal)

	assert.True(g.ApplyMove(MarkX, FreeField, 4).Success)
	res := g.ApplyMove(MarkO, FreeField, 4)

	assert.False(res.Success)
	assert.Contains(res.Message, "CELL_OCCUPIED")
	assert.Equal(1, len(g.Moves))
	assert.Equal(MarkO, g.Current)
}

func TestApplyMove_NormalWin(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, ModeNormal)

	// X takes the top row, O scatters.
	moves := []struct {
		mark Mark
		cell int
	}{
		{MarkX, 0}, {MarkO, 4}, {MarkX, 1}, {MarkO, 8}, {MarkX, 2},
	}

	for _, mv := range moves {
		res := g.ApplyMove(mv.mark, FreeField, mv.cell)
		assert.True(res.Success, res.Message)
	}

	assert.True(g.Finished)
	assert.Equal(MarkX, g.Winner)
	assert.Equal(ReasonWin, g.Reason)
	assert.NotNil(g.WinnerPlayer())
	assert.Equal("alice", g.WinnerPlayer().Username)
	assert.False(g.FinishedAt.IsZero())
}

func TestApplyMove_NormalDraw(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, ModeNormal)

	// x o x / x o o / o x x : full with no line
	seq := []struct {
		mark Mark
		cell int
	}{
		{MarkX, 0}, {MarkO, 1}, {MarkX, 2},
		{MarkO, 4}, {MarkX, 3}, {MarkO, 5},
		{MarkX, 7}, {MarkO, 6}, {MarkX, 8},
	}

	for _, mv := range seq {
		res := g.ApplyMove(mv.mark, FreeField, mv.cell)
		assert.True(res.Success, res.Message)
	}

	assert.True(g.Finished)
	assert.Equal(MarkNone, g.Winner)
	assert.Equal(ReasonDraw, g.Reason)
	assert.Nil(g.WinnerPlayer())
}

func TestApplyMove_FinishedGameImmutable(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, ModeNormal)

	for _, mv := range []struct {
		mark Mark
		cell int
	}{{MarkX, 0}, {MarkO, 4}, {MarkX, 1}, {MarkO, 8}, {MarkX, 2}} {
		g.ApplyMove(mv.mark, FreeField, mv.cell)
	}
	assert.True(g.Finished)
	movesBefore := len(g.Moves)

	res := g.ApplyMove(MarkO, FreeField, 5)

	assert.False(res.Success)
	assert.Contains(res.Message, "GAME_FINISHED")
	assert.Equal(movesBefore, len(g.Moves))
}

func TestApplyMove_SuperActiveFieldFollowsCell(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, ModeSuper)

	// First move is free; playing cell 4 of field 4 sends O to field 4.
	res := g.ApplyMove(MarkX, 4, 4)
	assert.True(res.Success, res.Message)
	assert.Equal(4, g.ActiveField)
	assert.Equal(MarkO, g.Current)

	// O must play field 4 now.
	res = g.ApplyMove(MarkO, 3, 0)
	assert.False(res.Success)
	assert.Contains(res.Message, "WRONG_FIELD")

	// Playing cell 7 of field 4 sends X to field 7.
	res = g.ApplyMove(MarkO, 4, 7)
	assert.True(res.Success, res.Message)
	assert.Equal(7, g.ActiveField)
}

func TestApplyMove_SuperDecidedTargetFreesChoice(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, ModeSuper)

	// X builds the middle column of field 0; O keeps landing on cell 0 of
	// other fields, which bounces X straight back to field 0.
	seq := []struct {
		mark        Mark
		field, cell int
	}{
		{MarkX, 0, 1}, // O -> field 1
		{MarkO, 1, 0}, // X -> field 0
		{MarkX, 0, 4}, // O -> field 4
		{MarkO, 4, 0}, // X -> field 0
	}
	for i, mv := range seq {
		res := g.ApplyMove(mv.mark, mv.field, mv.cell)
		assert.True(res.Success, "move %d: %s", i, res.Message)
	}

	// X completes cells 1-4-7 of field 0 while it is the forced target.
	assert.Equal(0, g.ActiveField)
	res := g.ApplyMove(MarkX, 0, 7)
	assert.True(res.Success, res.Message)
	assert.True(g.Fields[0].Decided())
	assert.Equal(MarkX, Evaluate(g.Fields[0]).Winner)
	assert.False(g.Finished)

	// The winning move landed on cell 7, so O is still constrained to the
	// undecided field 7.
	assert.Equal(7, g.ActiveField)

	// O aims at field 0 (cell 0), which is decided: the constraint releases
	// and X gets free choice.
	res = g.ApplyMove(MarkO, 7, 0)
	assert.True(res.Success, res.Message)
	assert.Equal(FreeField, g.ActiveField)

	// Free choice still excludes decided fields.
	res = g.ApplyMove(MarkX, 0, 2)
	assert.False(res.Success)
	assert.Contains(res.Message, "FIELD_DECIDED")

	res = g.ApplyMove(MarkX, 8, 8)
	assert.True(res.Success, res.Message)
	assert.Equal(8, g.ActiveField)
}

func TestForfeit(t *testing.T) {
	assert := assert.New(t)
	g := newTestGame(t, ModeSuper)

	g.ApplyMove(MarkX, 4, 4)
	g.Forfeit(MarkO)

	assert.True(g.Finished)
	assert.Equal(MarkX, g.Winner)
	assert.Equal(ReasonForfeit, g.Reason)

	// Absorbing: a second forfeit by the other side changes nothing.
	g.Forfeit(MarkX)
	assert.Equal(MarkX, g.Winner)
	assert.Equal(ReasonForfeit, g.Reason)
}
