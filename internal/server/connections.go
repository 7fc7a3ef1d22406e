package server

import (
	"sync"

	"github.com/coder/websocket"

	"sstt-server/internal/auth"
)

// ConnectionManager is the arena of live sessions, keyed by the opaque
// connection id minted at accept time. Lobbies store connection ids only;
// the socket itself is looked up here at send time.
type ConnectionManager struct {
	connections map[string]*websocket.Conn
	identities  map[string]*auth.Identity
	lobbies     map[string]string // connectionID → current lobby name
	mu          sync.RWMutex
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*websocket.Conn),
		identities:  make(map[string]*auth.Identity),
		lobbies:     make(map[string]string),
	}
}

func (cm *ConnectionManager) AddConnection(id string, conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[id] = conn
}

func (cm *ConnectionManager) RemoveConnection(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.connections, id)
	delete(cm.identities, id)
	delete(cm.lobbies, id)
}

// SetIdentity binds a verified identity to the connection. It is set once on
// a successful verification and never downgraded by later failed overrides.
func (cm *ConnectionManager) SetIdentity(id string, identity *auth.Identity) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.identities[id] = identity
}

// Identity returns the connection's identity, or nil while unauthenticated.
func (cm *ConnectionManager) Identity(id string) *auth.Identity {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.identities[id]
}

func (cm *ConnectionManager) SetCurrentLobby(id, lobbyName string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if lobbyName == "" {
		delete(cm.lobbies, id)
		return
	}
	cm.lobbies[id] = lobbyName
}

func (cm *ConnectionManager) CurrentLobby(id string) string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.lobbies[id]
}

func (cm *ConnectionManager) GetConnection(id string) *websocket.Conn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.connections[id]
}

// AllConnectionIDs returns the ids of every live connection, for system-wide
// broadcasts such as the joinable-lobby list.
func (cm *ConnectionManager) AllConnectionIDs() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	ids := make([]string, 0, len(cm.connections))
	for id := range cm.connections {
		ids = append(ids, id)
	}
	return ids
}
