package server

import (
	"time"

	"sstt-server/internal/sstt"
)

// ============================================================================
// ERROR / WARN
// ============================================================================
// tygo:generate
type ErrorPayload struct {
	Error string `json:"error"`
}

// tygo:generate
type WarnPayload struct {
	Message string `json:"message"`
}

// ============================================================================
// CHAT (global_chat, lobby_chat)
// ============================================================================
// tygo:generate
type GlobalChatPayload struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

// tygo:generate
type LobbyChatPayload struct {
	User      string `json:"user"`
	LobbyName string `json:"lobbyName"`
	Message   string `json:"message"`
}

// ============================================================================
// LOBBY MEMBERSHIP (lobby_create, lobby_join, lobby_leave, lobby_kick)
// ============================================================================
// tygo:generate
type LobbyRequest struct {
	LobbyName string `json:"lobbyName"`
}

// tygo:generate
type LobbyKickRequest struct {
	LobbyName string `json:"lobbyName"`
	Target    string `json:"target"`
}

// tygo:generate
type LobbyResponse struct {
	Success   bool   `json:"success"`
	LobbyName string `json:"lobbyName,omitempty"`
	Error     string `json:"error,omitempty"`
}

// tygo:generate
type LobbyKickedPayload struct {
	LobbyName string `json:"lobbyName"`
}

// ============================================================================
// LOBBY LIST (lobby_list push)
// ============================================================================
// tygo:generate
type LobbySummary struct {
	Name string `json:"name"`
}

// tygo:generate
type LobbyListPayload struct {
	Lobbies []LobbySummary `json:"lobbies"`
}

// ============================================================================
// GAME (game_start, game_move, game_state, game_end)
// ============================================================================
// tygo:generate
type GameStartRequest struct {
	LobbyName string `json:"lobbyName"`
	Mode      string `json:"mode"`
}

// MovePayload carries board coordinates as [row, col] pairs the way the web
// client sends them. SuperField is required in super mode and absent in
// normal mode.
// tygo:generate
type MovePayload struct {
	Position   [2]int  `json:"position"`
	SuperField *[2]int `json:"super_field,omitempty"`
}

// tygo:generate
type GameMoveRequest struct {
	LobbyName string      `json:"lobbyName"`
	Move      MovePayload `json:"move"`
}

// tygo:generate
type GameMovePayload struct {
	User      string      `json:"user"`
	LobbyName string      `json:"lobbyName"`
	Move      MovePayload `json:"move"`
}

// tygo:generate
type GameStatePayload struct {
	LobbyName string     `json:"lobbyName"`
	State     *sstt.Game `json:"state"`
}

// tygo:generate
type GameEndPayload struct {
	GameID    string    `json:"gameId"`
	LobbyName string    `json:"lobbyName"`
	Winner    string    `json:"winner,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
