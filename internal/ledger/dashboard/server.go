// Package dashboard streams the sync state to WebSocket clients.
//
// The dashboard only observes: it subscribes to the engine's publisher and
// never changes state itself.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	gosync "sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	ledgersync "github.com/batabung/batabung/internal/ledger/sync"
	"github.com/batabung/batabung/internal/logger"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeSyncState carries a publisher transition.
	MessageTypeSyncState MessageType = "sync_state"
	// MessageTypeSyncReport carries the outcome of a sync run.
	MessageTypeSyncReport MessageType = "sync_report"
	// MessageTypeCounts carries per-status record counts.
	MessageTypeCounts MessageType = "counts"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ReportData is the payload of a sync_report message.
type ReportData struct {
	Report *ledgersync.Report `json:"report,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// Server manages WebSocket connections and broadcasts dashboard messages
type Server struct {
	addr     string
	pub      *ledgersync.Publisher
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu gosync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup

	log zerolog.Logger
}

// Config holds server configuration
type Config struct {
	// Addr to listen on. Default 127.0.0.1:8765; use port 0 for any free port.
	Addr   string
	Logger *zerolog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{Addr: "127.0.0.1:8765"}
}

// NewServer creates a dashboard server reporting pub's state.
func NewServer(pub *ledgersync.Publisher, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      config.Addr,
		pub:       pub,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		log:       logger.OrDefault(config.Logger, "dashboard"),
	}
}

// Handler returns the HTTP routes, mostly for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start begins serving and broadcasting. It returns once listening.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info().Str("addr", ln.Addr().String()).Msg("dashboard listening")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	s.log.Info().Msg("dashboard stopped")
	return nil
}

// Broadcast queues a message for every connected client. It never blocks;
// when the queue is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.log.Warn().Str("type", string(msg.Type)).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastData marshals data and broadcasts it as typ.
func (s *Server) BroadcastData(typ MessageType, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", typ, err)
	}
	s.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: raw})
	return nil
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.log.Error().Err(err).Msg("failed to marshal message")
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.log.Debug().Err(err).Msg("failed to send to client")
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) stateMessage() Message {
	var state ledgersync.State
	if s.pub != nil {
		state = s.pub.Current()
	}
	raw, _ := json.Marshal(state)
	return Message{Type: MessageTypeSyncState, Timestamp: time.Now(), Data: raw}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// The current state goes out before the client joins the broadcast set
	// so it always arrives first.
	welcome, _ := json.Marshal(s.stateMessage())
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	err = conn.Write(ctx, websocket.MessageText, welcome)
	cancel()
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()
	s.log.Debug().Int("clients", clientCount).Msg("client connected")

	go s.readLoop(conn)
}

// readLoop keeps the connection alive and notices disconnects.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; !exists {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.log.Debug().Int("clients", clientCount).Msg("client disconnected")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	var state ledgersync.State
	if s.pub != nil {
		state = s.pub.Current()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(state)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>batabung sync</title>
</head>
<body>
    <h1>batabung sync dashboard</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Current state: <a href="/state">/state</a></p>
    <p>Health check: <a href="/health">/health</a></p>
</body>
</html>`, r.Host)
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
