package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"siwatt-backend/internal/eventbus"

	"github.com/gorilla/websocket"
)

// --- WebSocket Hub ---

type hub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	mutex      sync.Mutex
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub() *hub {
	return &hub{
		broadcast:  make(chan []byte),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		clients:    make(map[*wsClient]bool),
	}
}

func (h *hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 256),
	}

	s.hub.register <- client

	go func() {
		defer func() {
			s.hub.unregister <- client
			conn.Close()
		}()
		for {
			message, ok := <-client.send
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			w.Close()
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

type broadcastMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type wsSample struct {
	DeviceID   int64     `json:"device_id"`
	DeviceCode string    `json:"device_code"`
	Timestamp  time.Time `json:"timestamp"`
	Voltage    float64   `json:"voltage"`
	Current    float64   `json:"current"`
	Power      float64   `json:"power"`
	Energy     float64   `json:"energy"`
	Frequency  float64   `json:"frequency"`
	PF         float64   `json:"pf"`
}

// consumeBus forwards processed samples from the worker's event bus to
// every connected websocket client.
func (s *Server) consumeBus(bus *eventbus.Bus) {
	ch := make(chan eventbus.Event, 256)
	bus.Subscribe(eventbus.EventRealtime, ch)
	for evt := range ch {
		payload := wsSample{
			DeviceID:   evt.DeviceID,
			DeviceCode: evt.DeviceCode,
			Timestamp:  evt.Timestamp,
			Voltage:    evt.Sample.Voltage,
			Current:    evt.Sample.Current,
			Power:      evt.Sample.Power,
			Energy:     evt.Sample.Energy,
			Frequency:  evt.Sample.Frequency,
			PF:         evt.Sample.PF,
		}
		msg := broadcastMessage{Type: "realtime", Payload: payload}
		data, _ := json.Marshal(msg)
		s.hub.broadcast <- data
	}
}
