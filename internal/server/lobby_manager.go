package server

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sstt-server/internal/sstt"
)

// LobbyPlayer is a lobby's reference to a connected player. Lobbies never
// hold socket handles; the connection id is resolved to a send capability at
// broadcast time.
type LobbyPlayer struct {
	ConnID   string
	UserID   string
	Username string
}

type ChatEntry struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Lobby struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Players   []LobbyPlayer
	Chat      []ChatEntry
	Game      *sstt.Game

	mu sync.Mutex
}

// LobbyManager owns every Lobby and Game. All mutation happens behind the
// registry lock plus the per-lobby lock, so mutations on one lobby are
// serialized while independent lobbies proceed in parallel.
type LobbyManager struct {
	lobbies map[string]*Lobby
	mu      sync.RWMutex
}

func NewLobbyManager() *LobbyManager {
	return &LobbyManager{
		lobbies: make(map[string]*Lobby),
	}
}

// LeaveResult describes what a leave (explicit or disconnect) did, so the
// router knows who to notify.
type LeaveResult struct {
	WasMember bool
	Deleted   bool
	Remaining []LobbyPlayer
	// Forfeited is the terminal game snapshot when the leaver abandoned an
	// in-progress match.
	Forfeited *sstt.Game
}

func (lm *LobbyManager) CreateLobby(name string, creator LobbyPlayer) error {
	if err := validateLobbyName(name); err != nil {
		return err
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if _, exists := lm.lobbies[name]; exists {
		return errors.New("DUPLICATE_LOBBY: Lobby already exists")
	}

	lm.lobbies[name] = &Lobby{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
		Players:   []LobbyPlayer{creator},
		Chat:      []ChatEntry{},
	}

	return nil
}

func (lm *LobbyManager) JoinLobby(name string, player LobbyPlayer) ([]LobbyPlayer, error) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	lobby, exists := lm.lobbies[name]
	if !exists {
		return nil, errors.New("LOBBY_NOT_FOUND: Lobby does not exist")
	}

	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	if len(lobby.Players) >= 2 {
		return nil, errors.New("LOBBY_FULL: Lobby is full (2/2 players)")
	}
	if lobby.Game != nil {
		return nil, errors.New("GAME_IN_PROGRESS: Cannot join while a game is active")
	}
	for _, p := range lobby.Players {
		if p.ConnID == player.ConnID {
			return nil, errors.New("ALREADY_MEMBER: You are already in this lobby")
		}
	}

	lobby.Players = append(lobby.Players, player)
	return membersLocked(lobby), nil
}

// LeaveLobby removes the session from the lobby. Calling it for a session
// that is not a member is a no-op.
func (lm *LobbyManager) LeaveLobby(name, connID string) (LeaveResult, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lobby, exists := lm.lobbies[name]
	if !exists {
		return LeaveResult{}, errors.New("LOBBY_NOT_FOUND: Lobby does not exist")
	}

	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	res := lm.removePlayerLocked(lobby, connID)
	return res, nil
}

// KickPlayer removes target from the lobby. Only the creator (first player)
// may kick.
func (lm *LobbyManager) KickPlayer(name, byConnID, target string) (LobbyPlayer, LeaveResult, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lobby, exists := lm.lobbies[name]
	if !exists {
		return LobbyPlayer{}, LeaveResult{}, errors.New("LOBBY_NOT_FOUND: Lobby does not exist")
	}

	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	if len(lobby.Players) == 0 || lobby.Players[0].ConnID != byConnID {
		return LobbyPlayer{}, LeaveResult{}, errors.New("NOT_CREATOR: Only the lobby creator can kick players")
	}

	for _, p := range lobby.Players {
		if p.Username == target && p.ConnID != byConnID {
			res := lm.removePlayerLocked(lobby, p.ConnID)
			return p, res, nil
		}
	}

	return LobbyPlayer{}, LeaveResult{}, errors.New("TARGET_NOT_FOUND: No such player in this lobby")
}

// AppendChat records a lobby chat line and returns the members to fan out to.
func (lm *LobbyManager) AppendChat(name, author, text string) ([]LobbyPlayer, error) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	lobby, exists := lm.lobbies[name]
	if !exists {
		return nil, errors.New("LOBBY_NOT_FOUND: Lobby does not exist")
	}

	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	lobby.Chat = append(lobby.Chat, ChatEntry{
		Author:    author,
		Text:      text,
		Timestamp: time.Now(),
	})

	return membersLocked(lobby), nil
}

// ListJoinable returns lobbies with exactly one player and no active game,
// oldest first for deterministic output.
func (lm *LobbyManager) ListJoinable() []LobbySummary {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	type entry struct {
		name    string
		created time.Time
	}
	var entries []entry
	for _, lobby := range lm.lobbies {
		lobby.mu.Lock()
		if len(lobby.Players) == 1 && lobby.Game == nil {
			entries = append(entries, entry{lobby.Name, lobby.CreatedAt})
		}
		lobby.mu.Unlock()
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].created.Equal(entries[j].created) {
			return entries[i].name < entries[j].name
		}
		return entries[i].created.Before(entries[j].created)
	})

	summaries := make([]LobbySummary, 0, len(entries))
	for _, e := range entries {
		summaries = append(summaries, LobbySummary{Name: e.name})
	}
	return summaries
}

// StartGame begins a match once the lobby has exactly two players. The
// creator plays X, the joiner plays O.
func (lm *LobbyManager) StartGame(name, connID string, mode sstt.Mode) (*sstt.Game, []LobbyPlayer, error) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	lobby, exists := lm.lobbies[name]
	if !exists {
		return nil, nil, errors.New("LOBBY_NOT_FOUND: Lobby does not exist")
	}

	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	if !isMemberLocked(lobby, connID) {
		return nil, nil, errors.New("NOT_MEMBER: You are not in this lobby")
	}
	if lobby.Game != nil {
		return nil, nil, errors.New("GAME_IN_PROGRESS: A game is already active")
	}
	if len(lobby.Players) != 2 {
		return nil, nil, errors.New("NOT_ENOUGH_PLAYERS: Need exactly 2 players to start")
	}

	game, err := sstt.NewGame(
		uuid.New().String(),
		mode,
		sstt.Player{UserID: lobby.Players[0].UserID, Username: lobby.Players[0].Username},
		sstt.Player{UserID: lobby.Players[1].UserID, Username: lobby.Players[1].Username},
	)
	if err != nil {
		return nil, nil, err
	}

	lobby.Game = game
	return snapshot(game), membersLocked(lobby), nil
}

// ApplyMove runs one move through the game state machine. The returned
// snapshot reflects the state after the move; on a rejected move it is nil
// and the result carries the reason.
func (lm *LobbyManager) ApplyMove(name, connID string, field, cell int) (sstt.MoveResult, *sstt.Game, []LobbyPlayer, error) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	lobby, exists := lm.lobbies[name]
	if !exists {
		return sstt.MoveResult{}, nil, nil, errors.New("LOBBY_NOT_FOUND: Lobby does not exist")
	}

	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	if lobby.Game == nil {
		return sstt.MoveResult{}, nil, nil, errors.New("GAME_NOT_STARTED: No active game in this lobby")
	}

	player := lm.playerLocked(lobby, connID)
	if player == nil {
		return sstt.MoveResult{}, nil, nil, errors.New("NOT_MEMBER: You are not in this lobby")
	}

	mark := lobby.Game.PlayerMark(player.UserID)
	if mark == sstt.MarkNone {
		return sstt.MoveResult{}, nil, nil, errors.New("NOT_PARTICIPANT: You are not playing in this game")
	}

	result := lobby.Game.ApplyMove(mark, field, cell)
	if !result.Success {
		return result, nil, nil, nil
	}

	return result, snapshot(lobby.Game), membersLocked(lobby), nil
}

// GameState returns the current game snapshot for a lobby.
func (lm *LobbyManager) GameState(name string) (*sstt.Game, error) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	lobby, exists := lm.lobbies[name]
	if !exists {
		return nil, errors.New("LOBBY_NOT_FOUND: Lobby does not exist")
	}

	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	if lobby.Game == nil {
		return nil, errors.New("GAME_NOT_STARTED: No active game in this lobby")
	}
	return snapshot(lobby.Game), nil
}

// EndGame terminates the lobby's game. An in-progress game counts as a
// forfeit by the requester; a finished game is simply detached. The lobby is
// torn down either way.
func (lm *LobbyManager) EndGame(name, connID string) (*sstt.Game, []LobbyPlayer, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lobby, exists := lm.lobbies[name]
	if !exists {
		return nil, nil, errors.New("LOBBY_NOT_FOUND: Lobby does not exist")
	}

	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	if lobby.Game == nil {
		return nil, nil, errors.New("GAME_NOT_STARTED: No active game in this lobby")
	}

	player := lm.playerLocked(lobby, connID)
	if player == nil {
		return nil, nil, errors.New("NOT_MEMBER: You are not in this lobby")
	}

	if !lobby.Game.Finished {
		mark := lobby.Game.PlayerMark(player.UserID)
		if mark == sstt.MarkNone {
			return nil, nil, errors.New("NOT_PARTICIPANT: You are not playing in this game")
		}
		lobby.Game.Forfeit(mark)
	}

	final := snapshot(lobby.Game)
	members := membersLocked(lobby)
	lobby.Game = nil
	delete(lm.lobbies, name)

	return final, members, nil
}

// RemoveConnection handles a closed socket: the session is removed from any
// lobby it is in, exactly as an explicit leave.
func (lm *LobbyManager) RemoveConnection(connID string) map[string]LeaveResult {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	results := make(map[string]LeaveResult)
	for name, lobby := range lm.lobbies {
		lobby.mu.Lock()
		if isMemberLocked(lobby, connID) {
			results[name] = lm.removePlayerLocked(lobby, connID)
		}
		lobby.mu.Unlock()
	}
	return results
}

// removePlayerLocked takes the session out of the lobby, forfeiting any
// in-progress game and deleting the lobby once it is empty. Caller holds both
// the registry write lock and the lobby lock.
func (lm *LobbyManager) removePlayerLocked(lobby *Lobby, connID string) LeaveResult {
	idx := -1
	for i, p := range lobby.Players {
		if p.ConnID == connID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return LeaveResult{}
	}

	leaver := lobby.Players[idx]
	lobby.Players = append(lobby.Players[:idx], lobby.Players[idx+1:]...)

	res := LeaveResult{WasMember: true, Remaining: membersLocked(lobby)}

	if lobby.Game != nil && !lobby.Game.Finished {
		if mark := lobby.Game.PlayerMark(leaver.UserID); mark != sstt.MarkNone {
			lobby.Game.Forfeit(mark)
			res.Forfeited = snapshot(lobby.Game)
			lobby.Game = nil
		}
	}

	if len(lobby.Players) == 0 {
		delete(lm.lobbies, lobby.Name)
		res.Deleted = true
	}

	return res
}

func (lm *LobbyManager) playerLocked(lobby *Lobby, connID string) *LobbyPlayer {
	for i := range lobby.Players {
		if lobby.Players[i].ConnID == connID {
			return &lobby.Players[i]
		}
	}
	return nil
}

func isMemberLocked(lobby *Lobby, connID string) bool {
	for _, p := range lobby.Players {
		if p.ConnID == connID {
			return true
		}
	}
	return false
}

func membersLocked(lobby *Lobby) []LobbyPlayer {
	members := make([]LobbyPlayer, len(lobby.Players))
	copy(members, lobby.Players)
	return members
}

// snapshot deep-copies a game so broadcasts never race with later moves.
func snapshot(g *sstt.Game) *sstt.Game {
	cp := *g
	cp.Moves = make([]sstt.Move, len(g.Moves))
	copy(cp.Moves, g.Moves)
	return &cp
}

func validateLobbyName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errors.New("LOBBY_NAME_INVALID: Lobby name cannot be empty")
	}
	if trimmed != name {
		return errors.New("LOBBY_NAME_INVALID: Lobby name cannot start or end with whitespace")
	}
	if len(name) > 32 {
		return errors.New("LOBBY_NAME_INVALID: Lobby name too long (max 32 characters)")
	}
	return nil
}
