package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler)

	mux.HandleFunc("/websocket", s.websocketHandler)

	// Wrap the mux with CORS middleware
	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // Replace "*" with specific origins if needed
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, Sec-WebSocket-Protocol")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":      "up",
		"connections": len(s.connectionManager.AllConnectionIDs()),
		"persistence": s.gameStore != nil,
	}
	data, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "Failed to marshal health check response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	// The bearer credential rides in the subprotocol field of the handshake;
	// echo it back so the negotiation succeeds.
	credential := r.Header.Get("Sec-WebSocket-Protocol")

	opts := &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // TODO: make environment-specific
	}
	if credential != "" {
		opts.Subprotocols = []string{credential}
	}

	socket, err := websocket.Accept(w, r, opts)
	if err != nil {
		http.Error(w, "Failed to open websocket", http.StatusInternalServerError)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()

	connectionID := uuid.New().String()
	log.Printf("New connection: %s", connectionID)
	s.connectionManager.AddConnection(connectionID, socket)

	defer func() {
		s.connectionManager.RemoveConnection(connectionID)
		s.rateLimiter.RemoveConnection(connectionID)
		log.Printf("Connection closed: %s", connectionID)

		// A closed socket is an implicit lobby leave.
		s.deliver(s.router.HandleDisconnect(context.Background(), connectionID))
	}()

	s.deliver(s.router.HandleConnect(ctx, connectionID, credential))

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			log.Printf("Connection %s read error: %v", connectionID, err)
			return
		}

		if msgType != websocket.MessageText {
			log.Printf("Non-text input from %s", connectionID)
			continue
		}

		if !s.rateLimiter.Allow(connectionID) {
			log.Printf("Rate limit exceeded for %s", connectionID)
			s.deliver([]outbound{{connectionID, ServerMessage{
				Type:    TypeError,
				Payload: ErrorPayload{Error: "RATE_LIMITED: Too many messages, slow down"},
			}}})
			continue
		}

		s.deliver(s.router.HandleMessage(ctx, connectionID, data))
	}
}

// deliver writes each envelope to its recipient. A failed or missing socket
// never aborts delivery to the remaining recipients.
func (s *Server) deliver(out []outbound) {
	for _, o := range out {
		conn := s.connectionManager.GetConnection(o.ConnID)
		if conn == nil {
			continue
		}

		data, err := json.Marshal(o.Msg)
		if err != nil {
			log.Printf("Marshal error for %s message: %v", o.Msg.Type, err)
			continue
		}

		// Use background context for broadcasts
		if err := conn.Write(context.Background(), websocket.MessageText, data); err != nil {
			log.Printf("Failed to send %s to %s: %v", o.Msg.Type, o.ConnID, err)
		}
	}
}
