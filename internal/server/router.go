package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"sstt-server/internal/auth"
	"sstt-server/internal/sstt"
)

// outbound is one envelope addressed to one connection. Handlers return
// these instead of writing to sockets, so the dispatch core is testable
// without a transport and every response set derives from a single atomic
// state transition.
type outbound struct {
	ConnID string
	Msg    ServerMessage
}

// FinishedGameStore is the persistence collaborator: completed games are
// handed off once, fire-and-forget.
type FinishedGameStore interface {
	SaveFinishedGame(ctx context.Context, game *sstt.Game, lobbyName string) error
}

type handlerFunc func(ctx context.Context, connID string, payload json.RawMessage) []outbound

// Router parses inbound envelopes, authenticates per message type, and
// dispatches to the lobby registry and game state machine.
type Router struct {
	lobbies  *LobbyManager
	conns    *ConnectionManager
	verifier auth.Verifier
	store    FinishedGameStore // nil disables persistence

	handlers     map[string]handlerFunc
	authRequired map[string]bool
}

func NewRouter(lobbies *LobbyManager, conns *ConnectionManager, verifier auth.Verifier, store FinishedGameStore) *Router {
	r := &Router{
		lobbies:  lobbies,
		conns:    conns,
		verifier: verifier,
		store:    store,
	}

	r.handlers = map[string]handlerFunc{
		TypePing:        r.handlePing,
		TypeGlobalChat:  r.handleGlobalChat,
		TypeLobbyCreate: r.handleLobbyCreate,
		TypeLobbyJoin:   r.handleLobbyJoin,
		TypeLobbyLeave:  r.handleLobbyLeave,
		TypeLobbyKick:   r.handleLobbyKick,
		TypeLobbyChat:   r.handleLobbyChat,
		TypeLobbyList:   r.handleLobbyList,
		TypeGameStart:   r.handleGameStart,
		TypeGameMove:    r.handleGameMove,
		TypeGameState:   r.handleGameState,
		TypeGameEnd:     r.handleGameEnd,
	}

	// Every mutating message type requires an authenticated session.
	r.authRequired = map[string]bool{
		TypeGlobalChat:  true,
		TypeLobbyCreate: true,
		TypeLobbyJoin:   true,
		TypeLobbyLeave:  true,
		TypeLobbyKick:   true,
		TypeLobbyChat:   true,
		TypeGameStart:   true,
		TypeGameMove:    true,
		TypeGameEnd:     true,
	}

	return r
}

// HandleConnect authenticates the handshake credential. An invalid or
// expired credential gets a warn envelope but the connection stays open; a
// valid one binds the identity and immediately pushes the joinable list.
func (r *Router) HandleConnect(ctx context.Context, connID, credential string) []outbound {
	if credential == "" {
		return []outbound{r.warnTo(connID, "Missing credential")}
	}

	res := r.verifier.Verify(ctx, credential)
	if !res.Valid {
		if res.Expired {
			return []outbound{r.warnTo(connID, "Invalid or expired token")}
		}
		return []outbound{r.warnTo(connID, "Invalid token")}
	}

	r.conns.SetIdentity(connID, res.Identity)
	return []outbound{{connID, ServerMessage{
		Type:    TypeLobbyList,
		Payload: LobbyListPayload{Lobbies: r.lobbies.ListJoinable()},
	}}}
}

// HandleMessage processes one inbound frame. Every error is recovered here
// and converted to a response envelope; nothing propagates past a single
// message.
func (r *Router) HandleMessage(ctx context.Context, connID string, data []byte) []outbound {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return []outbound{r.errorTo(connID, "Invalid JSON")}
	}

	// Optional per-message credential override for stateless clients.
	if msg.Token != "" {
		res := r.verifier.Verify(ctx, msg.Token)
		if !res.Valid {
			return []outbound{r.warnTo(connID, "Invalid or expired token")}
		}
		r.conns.SetIdentity(connID, res.Identity)
	}

	handler, ok := r.handlers[msg.Type]
	if !ok {
		return []outbound{r.warnTo(connID, "Invalid message type")}
	}

	if r.authRequired[msg.Type] && r.conns.Identity(connID) == nil {
		return []outbound{r.errorTo(connID, "AUTH_REQUIRED: This message type requires authentication")}
	}

	return handler(ctx, connID, msg.Payload)
}

// HandleDisconnect treats a closed socket as an implicit leave of whatever
// lobby the session was in.
func (r *Router) HandleDisconnect(ctx context.Context, connID string) []outbound {
	departures := r.lobbies.RemoveConnection(connID)
	if len(departures) == 0 {
		return nil
	}

	var out []outbound
	for lobbyName, res := range departures {
		out = append(out, r.departureEvents(ctx, lobbyName, res)...)
	}
	return append(out, r.broadcastLobbyList()...)
}

func (r *Router) handlePing(ctx context.Context, connID string, payload json.RawMessage) []outbound {
	return []outbound{{connID, ServerMessage{Type: TypePong, Payload: struct{}{}}}}
}

func (r *Router) handleGlobalChat(ctx context.Context, connID string, payload json.RawMessage) []outbound {
	var req GlobalChatPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return []outbound{r.errorTo(connID, "Invalid global_chat payload")}
	}

	// The author is the verified identity, never the client-supplied name.
	identity := r.conns.Identity(connID)
	broadcast := GlobalChatPayload{User: identity.Username, Message: req.Message}

	var out []outbound
	for _, id := range r.conns.AllConnectionIDs() {
		out = append(out, outbound{id, ServerMessage{Type: TypeGlobalChat, Payload: broadcast}})
	}
	return out
}

func (r *Router) handleLobbyCreate(ctx context.Context, connID string, payload json.RawMessage) []outbound {
	var req LobbyRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return []outbound{r.errorTo(connID, "Invalid lobby_create payload")}
	}

	if current := r.conns.CurrentLobby(connID); current != "" {
		return []outbound{r.lobbyFailure(connID, TypeLobbyCreate, "ALREADY_IN_LOBBY: Leave your current lobby first")}
	}

	identity := r.conns.Identity(connID)
	err := r.lobbies.CreateLobby(req.LobbyName, LobbyPlayer{
		ConnID:   connID,
		UserID:   identity.UserID,
		Username: identity.Username,
	})
	if err != nil {
		return []outbound{r.lobbyFailure(connID, TypeLobbyCreate, err.Error())}
	}

	r.conns.SetCurrentLobby(connID, req.LobbyName)

	out := []outbound{{connID, ServerMessage{
		Type:    TypeLobbyCreate,
		Payload: LobbyResponse{Success: true, LobbyName: req.LobbyName},
	}}}
	return append(out, r.broadcastLobbyList()...)
}

func (r *Router) handleLobbyJoin(ctx context.Context, connID string, payload json.RawMessage) []outbound {
	var req LobbyRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return []outbound{r.errorTo(connID, "Invalid lobby_join payload")}
	}

	if current := r.conns.CurrentLobby(connID); current != "" {
		return []outbound{r.lobbyFailure(connID, TypeLobbyJoin, "ALREADY_IN_LOBBY: Leave your current lobby first")}
	}

	identity := r.conns.Identity(connID)
	members, err := r.lobbies.JoinLobby(req.LobbyName, LobbyPlayer{
		ConnID:   connID,
		UserID:   identity.UserID,
		Username: identity.Username,
	})
	if err != nil {
		return []outbound{r.lobbyFailure(connID, TypeLobbyJoin, err.Error())}
	}

	r.conns.SetCurrentLobby(connID, req.LobbyName)

	// Everyone in the lobby, joiner included, sees the join succeed.
	resp := ServerMessage{Type: TypeLobbyJoin, Payload: LobbyResponse{Success: true, LobbyName: req.LobbyName}}
	var out []outbound
	for _, m := range members {
		out = append(out, outbound{m.ConnID, resp})
	}
	return append(out, r.broadcastLobbyList()...)
}

func (r *Router) handleLobbyLeave(ctx context.Context, connID string, payload json.RawMessage) []outbound {
	var req LobbyRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return []outbound{r.errorTo(connID, "Invalid lobby_leave payload")}
	}

	res, err := r.lobbies.LeaveLobby(req.LobbyName, connID)
	if err != nil {
		return []outbound{r.lobbyFailure(connID, TypeLobbyLeave, err.Error())}
	}

	out := []outbound{{connID, ServerMessage{
		Type:    TypeLobbyLeave,
		Payload: LobbyResponse{Success: true, LobbyName: req.LobbyName},
	}}}

	if !res.WasMember {
		// Leaving a lobby you are not in is a no-op.
		return out
	}

	r.conns.SetCurrentLobby(connID, "")
	out = append(out, r.departureEvents(ctx, req.LobbyName, res)...)
	if res.Forfeited != nil {
		out = append(out, outbound{connID, gameEndMessage(req.LobbyName, res.Forfeited)})
	}
	return append(out, r.broadcastLobbyList()...)
}

func (r *Router) handleLobbyKick(ctx context.Context, connID string, payload json.RawMessage) []outbound {
	var req LobbyKickRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return []outbound{r.errorTo(connID, "Invalid lobby_kick payload")}
	}

	kicked, res, err := r.lobbies.KickPlayer(req.LobbyName, connID, req.Target)
	if err != nil {
		return []outbound{r.lobbyFailure(connID, TypeLobbyKick, err.Error())}
	}

	r.conns.SetCurrentLobby(kicked.ConnID, "")

	out := []outbound{
		{connID, ServerMessage{Type: TypeLobbyKick, Payload: LobbyResponse{Success: true, LobbyName: req.LobbyName}}},
		{kicked.ConnID, ServerMessage{Type: TypeLobbyKicked, Payload: LobbyKickedPayload{LobbyName: req.LobbyName}}},
	}
	if res.Forfeited != nil {
		r.persistFinished(res.Forfeited, req.LobbyName)
		end := gameEndMessage(req.LobbyName, res.Forfeited)
		out = append(out, outbound{kicked.ConnID, end})
		for _, m := range res.Remaining {
			out = append(out, outbound{m.ConnID, end})
		}
	}
	return append(out, r.broadcastLobbyList()...)
}

func (r *Router) handleLobbyChat(ctx context.Context, connID string, payload json.RawMessage) []outbound {
	var req LobbyChatPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return []outbound{r.errorTo(connID, "Invalid lobby_chat payload")}
	}

	identity := r.conns.Identity(connID)
	members, err := r.lobbies.AppendChat(req.LobbyName, identity.Username, req.Message)
	if err != nil {
		return []outbound{r.errorTo(connID, err.Error())}
	}

	broadcast := LobbyChatPayload{User: identity.Username, LobbyName: req.LobbyName, Message: req.Message}
	var out []outbound
	for _, m := range members {
		out = append(out, outbound{m.ConnID, ServerMessage{Type: TypeLobbyChat, Payload: broadcast}})
	}
	return out
}

func (r *Router) handleLobbyList(ctx context.Context, connID string, payload json.RawMessage) []outbound {
	return []outbound{{connID, ServerMessage{
		Type:    TypeLobbyList,
		Payload: LobbyListPayload{Lobbies: r.lobbies.ListJoinable()},
	}}}
}

func (r *Router) handleGameStart(ctx context.Context, connID string, payload json.RawMessage) []outbound {
	var req GameStartRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return []outbound{r.errorTo(connID, "Invalid game_start payload")}
	}

	mode := sstt.Mode(req.Mode)
	if req.Mode == "" {
		mode = sstt.ModeSuper
	}

	state, members, err := r.lobbies.StartGame(req.LobbyName, connID, mode)
	if err != nil {
		return []outbound{r.lobbyFailure(connID, TypeGameStart, err.Error())}
	}

	// Start notification first, then the initial state.
	var out []outbound
	for _, m := range members {
		out = append(out, outbound{m.ConnID, ServerMessage{
			Type:    TypeGameStart,
			Payload: LobbyResponse{Success: true, LobbyName: req.LobbyName},
		}})
	}
	for _, m := range members {
		out = append(out, outbound{m.ConnID, ServerMessage{
			Type:    TypeGameState,
			Payload: GameStatePayload{LobbyName: req.LobbyName, State: state},
		}})
	}
	return append(out, r.broadcastLobbyList()...)
}

func (r *Router) handleGameMove(ctx context.Context, connID string, payload json.RawMessage) []outbound {
	var req GameMoveRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return []outbound{r.errorTo(connID, "Invalid game_move payload")}
	}

	field, cell, err := decodeMove(req.Move)
	if err != nil {
		return []outbound{r.errorTo(connID, err.Error())}
	}

	result, state, members, err := r.lobbies.ApplyMove(req.LobbyName, connID, field, cell)
	if err != nil {
		return []outbound{r.errorTo(connID, err.Error())}
	}
	if !result.Success {
		return []outbound{r.errorTo(connID, result.Message)}
	}

	identity := r.conns.Identity(connID)
	moveMsg := ServerMessage{Type: TypeGameMove, Payload: GameMovePayload{
		User:      identity.Username,
		LobbyName: req.LobbyName,
		Move:      req.Move,
	}}
	stateMsg := ServerMessage{Type: TypeGameState, Payload: GameStatePayload{
		LobbyName: req.LobbyName,
		State:     state,
	}}

	var out []outbound
	for _, m := range members {
		out = append(out, outbound{m.ConnID, moveMsg})
	}
	for _, m := range members {
		out = append(out, outbound{m.ConnID, stateMsg})
	}

	if state.Finished {
		r.persistFinished(state, req.LobbyName)

		end := gameEndMessage(req.LobbyName, state)
		for _, m := range members {
			out = append(out, outbound{m.ConnID, end})
		}

		// Terminal games tear the lobby down immediately.
		if _, _, err := r.lobbies.EndGame(req.LobbyName, connID); err != nil {
			log.Printf("Failed to tear down lobby %s after game end: %v", req.LobbyName, err)
		}
		for _, m := range members {
			r.conns.SetCurrentLobby(m.ConnID, "")
		}
		out = append(out, r.broadcastLobbyList()...)
	}

	return out
}

func (r *Router) handleGameState(ctx context.Context, connID string, payload json.RawMessage) []outbound {
	var req LobbyRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return []outbound{r.errorTo(connID, "Invalid game_state payload")}
	}

	state, err := r.lobbies.GameState(req.LobbyName)
	if err != nil {
		return []outbound{r.errorTo(connID, err.Error())}
	}

	return []outbound{{connID, ServerMessage{
		Type:    TypeGameState,
		Payload: GameStatePayload{LobbyName: req.LobbyName, State: state},
	}}}
}

func (r *Router) handleGameEnd(ctx context.Context, connID string, payload json.RawMessage) []outbound {
	var req LobbyRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return []outbound{r.errorTo(connID, "Invalid game_end payload")}
	}

	final, members, err := r.lobbies.EndGame(req.LobbyName, connID)
	if err != nil {
		return []outbound{r.errorTo(connID, err.Error())}
	}

	r.persistFinished(final, req.LobbyName)

	end := gameEndMessage(req.LobbyName, final)
	var out []outbound
	for _, m := range members {
		out = append(out, outbound{m.ConnID, end})
		r.conns.SetCurrentLobby(m.ConnID, "")
	}
	return append(out, r.broadcastLobbyList()...)
}

// departureEvents notifies the remaining members of a membership change and
// persists a forfeited game if the leaver abandoned one.
func (r *Router) departureEvents(ctx context.Context, lobbyName string, res LeaveResult) []outbound {
	var out []outbound
	if res.Forfeited != nil {
		r.persistFinished(res.Forfeited, lobbyName)
		end := gameEndMessage(lobbyName, res.Forfeited)
		for _, m := range res.Remaining {
			out = append(out, outbound{m.ConnID, end})
		}
	}
	for _, m := range res.Remaining {
		out = append(out, outbound{m.ConnID, ServerMessage{
			Type:    TypeLobbyKicked,
			Payload: LobbyKickedPayload{LobbyName: lobbyName},
		}})
	}
	return out
}

// broadcastLobbyList computes the joinable list once, after the mutation, and
// addresses it to every live connection.
func (r *Router) broadcastLobbyList() []outbound {
	msg := ServerMessage{
		Type:    TypeLobbyList,
		Payload: LobbyListPayload{Lobbies: r.lobbies.ListJoinable()},
	}

	var out []outbound
	for _, id := range r.conns.AllConnectionIDs() {
		out = append(out, outbound{id, msg})
	}
	return out
}

// persistFinished hands a terminal game to the store. Failures are logged,
// never retried, and never roll back the in-memory transition.
func (r *Router) persistFinished(game *sstt.Game, lobbyName string) {
	if r.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.store.SaveFinishedGame(ctx, game, lobbyName); err != nil {
			log.Printf("Failed to persist finished game %s: %v", game.ID, err)
		}
	}()
}

func gameEndMessage(lobbyName string, game *sstt.Game) ServerMessage {
	winner := ""
	if wp := game.WinnerPlayer(); wp != nil {
		winner = wp.Username
	}
	return ServerMessage{Type: TypeGameEnd, Payload: GameEndPayload{
		GameID:    game.ID,
		LobbyName: lobbyName,
		Winner:    winner,
		Reason:    game.Reason,
		Timestamp: game.FinishedAt,
	}}
}

// decodeMove turns the wire [row, col] pairs into board indices, rejecting
// anything out of range before it reaches the state machine.
func decodeMove(mv MovePayload) (field, cell int, err error) {
	if !inGridRange(mv.Position) {
		return 0, 0, errInvalidMove
	}
	cell = mv.Position[0]*3 + mv.Position[1]

	field = sstt.FreeField
	if mv.SuperField != nil {
		if !inGridRange(*mv.SuperField) {
			return 0, 0, errInvalidMove
		}
		field = (*mv.SuperField)[0]*3 + (*mv.SuperField)[1]
	}
	return field, cell, nil
}

func inGridRange(pair [2]int) bool {
	return pair[0] >= 0 && pair[0] <= 2 && pair[1] >= 0 && pair[1] <= 2
}

var errInvalidMove = errors.New("INVALID_MOVE_PAYLOAD: Move coordinates must be in range 0-2")

func (r *Router) errorTo(connID, message string) outbound {
	return outbound{connID, ServerMessage{Type: TypeError, Payload: ErrorPayload{Error: message}}}
}

func (r *Router) warnTo(connID, message string) outbound {
	return outbound{connID, ServerMessage{Type: TypeWarn, Payload: WarnPayload{Message: message}}}
}

// lobbyFailure is the typed success:false response on the originating
// message type; nobody else is notified.
func (r *Router) lobbyFailure(connID, msgType, reason string) outbound {
	return outbound{connID, ServerMessage{Type: msgType, Payload: LobbyResponse{Success: false, Error: reason}}}
}
