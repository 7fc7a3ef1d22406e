package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/coder/websocket"
	_ "github.com/joho/godotenv/autoload"

	"sstt-server/internal/auth"
)

type Server struct {
	port int

	lobbyManager      *LobbyManager
	connectionManager *ConnectionManager
	rateLimiter       *RateLimiter
	router            *Router
	gameStore         *GameStore
	sessions          *auth.RedisSessions
}

// NewServer wires the registry, router, verifier and stores from the
// environment and returns both the coordinator and the http.Server hosting
// it.
func NewServer() (*Server, *http.Server) {
	port, _ := strconv.Atoi(os.Getenv("PORT"))
	if port == 0 {
		port = 8080
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	// Session-revocation store is optional; without it tokens are trusted
	// until expiry.
	var sessions *auth.RedisSessions
	var sessionStore auth.SessionStore
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		var err error
		sessions, err = auth.NewRedisSessions(redisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		sessionStore = sessions
		log.Println("Session revocation check enabled")
	}

	verifier := auth.NewJWTVerifier([]byte(secret), sessionStore)

	// Persistence is optional; without it finished games are discarded.
	var gameStore *GameStore
	var finishedStore FinishedGameStore
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var err error
		gameStore, err = NewGameStore(ctx, databaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize game store: %v", err)
		}
		finishedStore = gameStore
		log.Println("Finished-game persistence enabled")
	}

	lobbyManager := NewLobbyManager()
	connectionManager := NewConnectionManager()

	s := &Server{
		port:              port,
		lobbyManager:      lobbyManager,
		connectionManager: connectionManager,
		rateLimiter:       NewRateLimiter(20, time.Second),
		router:            NewRouter(lobbyManager, connectionManager, verifier, finishedStore),
		gameStore:         gameStore,
		sessions:          sessions,
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, httpServer
}

// Shutdown tells every client the server is going away, closes the sockets,
// and releases the store connections.
func (s *Server) Shutdown(ctx context.Context) error {
	ids := s.connectionManager.AllConnectionIDs()

	var notices []outbound
	for _, id := range ids {
		notices = append(notices, outbound{id, ServerMessage{
			Type:    TypeWarn,
			Payload: WarnPayload{Message: "Server shutting down"},
		}})
	}
	s.deliver(notices)

	for _, id := range ids {
		if conn := s.connectionManager.GetConnection(id); conn != nil {
			conn.Close(websocket.StatusGoingAway, "Server shutting down")
		}
		s.connectionManager.RemoveConnection(id)
	}

	if s.gameStore != nil {
		s.gameStore.Close()
	}
	if s.sessions != nil {
		if err := s.sessions.Close(); err != nil {
			log.Printf("Failed to close redis client: %v", err)
		}
	}

	return nil
}
