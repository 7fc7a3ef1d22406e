package sstt

import (
	"fmt"
	"time"
)

type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeSuper    Mode = "super"
	ModeMeta     Mode = "meta"
	ModeUltimate Mode = "ultimate"
)

// FreeField means the current player may play in any undecided sub-board.
const FreeField = -1

// Player identifies one side of a match. Display data only, the socket stays
// outside this package.
type Player struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Move is one entry of the authoritative move history. Field is the sub-board
// index in super mode and FreeField in normal mode; Cell is the cell index
// within that board.
type Move struct {
	Player    Mark      `json:"player"`
	Field     int       `json:"field"`
	Cell      int       `json:"cell"`
	Timestamp time.Time `json:"timestamp"`
}

// MoveResult mirrors the request/response shape of move execution: either the
// move was applied, or Message carries the rejection reason and the game is
// untouched.
type MoveResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Game is one in-progress or finished match. All mutation goes through
// ApplyMove and Forfeit; callers serialize access per lobby.
type Game struct {
	ID          string    `json:"gameId"`
	Mode        Mode      `json:"mode"`
	PlayerX     Player    `json:"playerX"`
	PlayerO     Player    `json:"playerO"`
	Moves       []Move    `json:"moves"`
	Current     Mark      `json:"curr"`
	ActiveField int       `json:"activeField"`
	Finished    bool      `json:"finished"`
	Winner      Mark      `json:"winner"`
	Reason      string    `json:"reason,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`

	Board  Grid      `json:"board"`
	Fields SuperGrid `json:"fields"`
}

const (
	ReasonWin     = "win"
	ReasonDraw    = "draw"
	ReasonForfeit = "forfeit"
)

// NewGame starts a match. X is the lobby creator, O the joiner; X moves first.
func NewGame(id string, mode Mode, playerX, playerO Player) (*Game, error) {
	switch mode {
	case ModeNormal, ModeSuper:
	case ModeMeta, ModeUltimate:
		return nil, fmt.Errorf("UNSUPPORTED_MODE: Mode '%s' is not playable yet", mode)
	default:
		return nil, fmt.Errorf("INVALID_MODE: Unknown game mode '%s'", mode)
	}

	return &Game{
		ID:          id,
		Mode:        mode,
		PlayerX:     playerX,
		PlayerO:     playerO,
		Moves:       []Move{},
		Current:     MarkX,
		ActiveField: FreeField,
		StartedAt:   time.Now(),
	}, nil
}

// PlayerMark returns the mark assigned to a user, or MarkNone if the user is
// not a participant.
func (g *Game) PlayerMark(userID string) Mark {
	switch userID {
	case g.PlayerX.UserID:
		return MarkX
	case g.PlayerO.UserID:
		return MarkO
	}
	return MarkNone
}

// WinnerPlayer returns the winning player, or nil for a draw or an unfinished
// game.
func (g *Game) WinnerPlayer() *Player {
	if !g.Finished || g.Winner == MarkNone {
		return nil
	}
	if g.Winner == MarkX {
		return &g.PlayerX
	}
	return &g.PlayerO
}

// ApplyMove validates and applies one move. On rejection the game state is
// unchanged and Message names the reason.
func (g *Game) ApplyMove(player Mark, field, cell int) MoveResult {
	if g.Finished {
		return reject("GAME_FINISHED: Game is already over")
	}
	if player != g.Current {
		return reject("NOT_YOUR_TURN: It is %s's turn", g.Current)
	}
	if cell < 0 || cell > 8 {
		return reject("INVALID_CELL: Cell index out of range")
	}

	switch g.Mode {
	case ModeNormal:
		if g.Board[cell] != MarkNone {
			return reject("CELL_OCCUPIED: Cell is already taken")
		}
		g.Board[cell] = player
		g.record(player, FreeField, cell)
		g.settle(Evaluate(g.Board))

	case ModeSuper:
		if field < 0 || field > 8 {
			return reject("INVALID_FIELD: Sub-board index out of range")
		}
		if g.ActiveField != FreeField && field != g.ActiveField {
			return reject("WRONG_FIELD: You must play in sub-board %d", g.ActiveField)
		}
		if g.Fields[field].Decided() {
			return reject("FIELD_DECIDED: Sub-board %d is already decided", field)
		}
		if g.Fields[field][cell] != MarkNone {
			return reject("CELL_OCCUPIED: Cell is already taken")
		}
		g.Fields[field][cell] = player
		g.record(player, field, cell)
		g.settle(EvaluateSuper(g.Fields))
		if !g.Finished {
			// Send the opponent to the board matching the cell just played,
			// unless that board can no longer be played in.
			g.ActiveField = cell
			if g.Fields[cell].Decided() {
				g.ActiveField = FreeField
			}
		}
	}

	if !g.Finished {
		g.Current = Opponent(g.Current)
	}
	return MoveResult{Success: true}
}

// Forfeit ends the match in favour of the opponent. No-op on a finished game.
func (g *Game) Forfeit(player Mark) {
	if g.Finished {
		return
	}
	g.Finished = true
	g.Winner = Opponent(player)
	g.Reason = ReasonForfeit
	g.FinishedAt = time.Now()
}

func (g *Game) record(player Mark, field, cell int) {
	g.Moves = append(g.Moves, Move{
		Player:    player,
		Field:     field,
		Cell:      cell,
		Timestamp: time.Now(),
	})
}

// settle moves the game into its terminal state the instant the board reports
// a winner or a draw. Evaluation runs after every move, never batched.
func (g *Game) settle(out Outcome) {
	if out.Winner == MarkNone && !out.Draw {
		return
	}
	g.Finished = true
	g.Winner = out.Winner
	g.FinishedAt = time.Now()
	if out.Draw {
		g.Reason = ReasonDraw
	} else {
		g.Reason = ReasonWin
	}
}

func reject(format string, args ...any) MoveResult {
	return MoveResult{Success: false, Message: fmt.Sprintf(format, args...)}
}
