package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/binary-souls/agentic-network/internal/events"
)

// EventStreamer fans the node's event bus out to WebSocket and SSE clients
// so an operator can watch auctions and trust updates live.
type EventStreamer struct {
	bus        *events.Bus
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *log.Logger
}

func NewEventStreamer(bus *events.Bus) *EventStreamer {
	return &EventStreamer{
		bus:        bus,
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // operator tooling binds to localhost
			},
		},
		logger: log.New(log.Writer(), "[STREAM] ", log.LstdFlags),
	}
}

// Run pumps bus events to every connected client until the bus subscription
// is torn down.
func (es *EventStreamer) Run() {
	feed := es.bus.Subscribe()
	defer es.bus.Unsubscribe(feed)
	for {
		select {
		case client := <-es.register:
			es.mu.Lock()
			es.clients[client] = true
			total := len(es.clients)
			es.mu.Unlock()
			es.logger.Printf("📡 client connected (total: %d)", total)

		case client := <-es.unregister:
			es.mu.Lock()
			if _, ok := es.clients[client]; ok {
				delete(es.clients, client)
				client.Close()
			}
			total := len(es.clients)
			es.mu.Unlock()
			es.logger.Printf("📡 client disconnected (total: %d)", total)

		case event, ok := <-feed:
			if !ok {
				return
			}
			es.mu.Lock()
			for client := range es.clients {
				if err := client.WriteJSON(event); err != nil {
					client.Close()
					delete(es.clients, client)
				}
			}
			es.mu.Unlock()
		}
	}
}

// HandleWebSocket upgrades the connection and registers it with the hub.
func (es *EventStreamer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := es.upgrader.Upgrade(w, r, nil)
	if err != nil {
		es.logger.Printf("upgrade error: %v", err)
		return
	}
	es.register <- conn

	go func() {
		defer func() { es.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// HandleSSE streams events as Server-Sent Events for clients that cannot
// speak WebSocket.
func (es *EventStreamer) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	feed := es.bus.Subscribe()
	defer es.bus.Unsubscribe(feed)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-feed:
			if !ok {
				return
			}
			payload, err := event.SSEFormat()
			if err != nil {
				continue
			}
			if _, err := w.Write(payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
