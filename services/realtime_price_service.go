package services

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"crypto_backend_project/models"

	"github.com/gorilla/websocket"
)

// Constants for the realtime stream
const (
	MaxWebSocketClients   = 100
	WebSocketWriteTimeout = 10 * time.Second
	WebSocketPingInterval = 30 * time.Second
)

// PriceStreamMessage is one frame pushed to connected clients after a
// steady-mode collection run
type PriceStreamMessage struct {
	Type   string               `json:"type"`
	Assets []models.CryptoAsset `json:"assets"`
	Time   string               `json:"time"`
}

// streamClient represents one connected WebSocket client
type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// RealtimePriceService is a WebSocket hub that pushes the refreshed market
// snapshot to subscribers. The scheduler calls BroadcastSnapshot after every
// steady-mode sync; there is no per-client polling.
type RealtimePriceService struct {
	clients    map[*streamClient]bool
	broadcast  chan PriceStreamMessage
	register   chan *streamClient
	unregister chan *streamClient
	shutdown   chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewRealtimePriceService creates the hub and starts its event loop
func NewRealtimePriceService() *RealtimePriceService {
	s := &RealtimePriceService{
		clients:    make(map[*streamClient]bool),
		broadcast:  make(chan PriceStreamMessage, 16),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		shutdown:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	go s.run()
	return s
}

// Shutdown closes every client connection and stops the hub
func (s *RealtimePriceService) Shutdown() {
	close(s.shutdown)

	s.mu.Lock()
	for client := range s.clients {
		close(client.send)
		client.conn.Close()
	}
	s.clients = make(map[*streamClient]bool)
	s.mu.Unlock()
}

// BroadcastSnapshot queues one price frame for every connected client. Drops
// the frame when the hub buffer is full rather than blocking the scheduler.
func (s *RealtimePriceService) BroadcastSnapshot(assets []models.CryptoAsset) {
	msg := PriceStreamMessage{
		Type:   "prices",
		Assets: assets,
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	select {
	case s.broadcast <- msg:
	default:
		log.Println("Warning: realtime broadcast buffer full, dropping frame")
	}
}

// run is the hub event loop
func (s *RealtimePriceService) run() {
	for {
		select {
		case <-s.shutdown:
			return

		case client := <-s.register:
			s.mu.Lock()
			if len(s.clients) >= MaxWebSocketClients {
				s.mu.Unlock()
				client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"))
				client.conn.Close()
				continue
			}
			s.clients[client] = true
			count := len(s.clients)
			s.mu.Unlock()
			log.Printf("WebSocket client connected. Total clients: %d", count)

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
			count := len(s.clients)
			s.mu.Unlock()
			log.Printf("WebSocket client disconnected. Total clients: %d", count)

		case message := <-s.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				log.Printf("Error marshaling price frame: %v", err)
				continue
			}

			s.mu.Lock()
			for client := range s.clients {
				select {
				case client.send <- data:
				default:
					delete(s.clients, client)
					close(client.send)
				}
			}
			s.mu.Unlock()
		}
	}
}

// HandleWebSocket upgrades one HTTP request into a stream subscription
func (s *RealtimePriceService) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	atCapacity := len(s.clients) >= MaxWebSocketClients
	s.mu.RUnlock()
	if atCapacity {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan []byte, 64),
	}
	s.register <- client

	go client.writePump()
	go client.readPump(s)
}

// writePump writes queued frames and pings to the connection
func (c *streamClient) writePump() {
	ticker := time.NewTicker(WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection until the client goes away. The unregister
// send races process shutdown; once the hub loop has exited nothing receives,
// so the shutdown channel unblocks the handoff.
func (c *streamClient) readPump(s *RealtimePriceService) {
	defer func() {
		select {
		case s.unregister <- c:
		case <-s.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
