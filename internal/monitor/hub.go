// Package monitor streams sync activity to WebSocket clients.
//
// The API mounts a Hub at /monitor/ws; a Handler registered as the engine's
// Observer turns every served pull and push into a broadcast message.
package monitor

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType defines the type of monitor message
type MessageType string

const (
	// MessageTypeWelcome is sent once to every new client
	MessageTypeWelcome MessageType = "welcome"

	// MessageTypePull indicates a pull was served
	MessageTypePull MessageType = "pull"

	// MessageTypePush indicates a push batch was applied
	MessageTypePush MessageType = "push"
)

// Message represents a monitor broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// WelcomeData describes the server to a new client
type WelcomeData struct {
	Version string   `json:"version"`
	Tables  []string `json:"tables"`
	Clients int      `json:"clients"`
}

// Config holds hub configuration
type Config struct {
	// Version is reported in the welcome message
	Version string

	// Tables returns the registered table names for the welcome message
	Tables func() []string

	// BufferSize of the broadcast queue (default: 100)
	BufferSize int

	// WriteTimeout per client write (default: 5s)
	WriteTimeout time.Duration

	// Logger for hub activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BufferSize:   100,
		WriteTimeout: 5 * time.Second,
	}
}

// Hub manages WebSocket connections and broadcasts monitor messages.
// It implements http.Handler for the upgrade endpoint.
type Hub struct {
	config *Config

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewHub creates a hub and starts its broadcast loop. Call Close when done.
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[monitor] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		config:    config,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, config.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}

	h.wg.Add(1)
	go h.broadcastLoop()

	return h
}

// Close disconnects all clients and stops the broadcast loop.
func (h *Hub) Close() error {
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()

	h.wg.Wait()
	return nil
}

// Broadcast queues a message for all connected clients. It never blocks; a
// full queue drops the message.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	default:
		h.logger.Println("WARNING: broadcast queue full, dropping message")
	}
}

// ClientCount returns the current number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg := <-h.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now().UTC()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			h.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				clients = append(clients, conn)
			}
			h.clientsMu.RUnlock()

			for _, conn := range clients {
				if err := h.write(conn, data); err != nil {
					h.logger.Printf("Failed to send to client: %v", err)
					h.removeClient(conn)
				}
			}
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(h.ctx, h.config.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// ServeHTTP upgrades the request to a WebSocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	clientCount := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Printf("Client connected (total: %d)", clientCount)

	welcome := WelcomeData{Version: h.config.Version, Clients: clientCount}
	if h.config.Tables != nil {
		welcome.Tables = h.config.Tables()
	}
	payload, _ := json.Marshal(welcome)
	data, _ := json.Marshal(Message{
		Type:      MessageTypeWelcome,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	})
	if err := h.write(conn, data); err != nil {
		h.removeClient(conn)
		return
	}

	go h.readLoop(conn)
}

// readLoop drains client frames until the connection closes.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, exists := h.clients[conn]; exists {
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		h.clientsMu.Unlock()
	}
}
