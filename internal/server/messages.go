package server

import "encoding/json"

// Message types a client may send.
const (
	TypePing        = "ping"
	TypeGlobalChat  = "global_chat"
	TypeLobbyCreate = "lobby_create"
	TypeLobbyJoin   = "lobby_join"
	TypeLobbyLeave  = "lobby_leave"
	TypeLobbyKick   = "lobby_kick"
	TypeLobbyChat   = "lobby_chat"
	TypeLobbyList   = "lobby_list"
	TypeGameStart   = "game_start"
	TypeGameMove    = "game_move"
	TypeGameState   = "game_state"
	TypeGameEnd     = "game_end"
)

// Server-only outbound types.
const (
	TypePong        = "pong"
	TypeLobbyKicked = "lobby_kicked"
	TypeWarn        = "warn"
	TypeError       = "error"
)

type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	// Token is an optional per-message credential override for stateless
	// clients; the steady state carries it once in the handshake.
	Token string `json:"token,omitempty"`
}

type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
