// Package server exposes the trading core over a websocket hub. Clients send
// inbound operations as {"event": ..., "data": ...} frames and receive the
// engine's outbound events on the same connection.
package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Envelope is the wire frame for both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hub fans outbound events out to every connected client.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	log     zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		log:     log,
	}
}

// Emit marshals the payload and broadcasts it to all clients. Connections
// that fail to write are dropped.
func (h *Hub) Emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("marshal outbound event")
		return
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("marshal envelope")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[conn] {
		conn.Close()
		delete(h.clients, conn)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handler upgrades HTTP requests to websocket connections and feeds inbound
// frames to the gateway. Each connection gets its own read loop; all
// mutations still serialize inside the engine.
func (h *Hub) Handler(gw *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		h.add(conn)
		h.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("client connected")

		go func() {
			defer func() {
				h.remove(conn)
				h.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("client disconnected")
			}()
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var env Envelope
				if err := json.Unmarshal(msg, &env); err != nil {
					h.log.Warn().Err(err).Msg("bad inbound frame")
					continue
				}
				gw.Dispatch(env)
			}
		}()
	}
}
