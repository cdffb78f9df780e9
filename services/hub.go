package services

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub fans attempt events out to instructors watching a quiz.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
}

type Client struct {
	hub          *Hub
	id           string
	socket       *websocket.Conn
	send         chan []byte
	quizID       uint
	instructorID uint
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Event types pushed to quiz rooms.
const (
	EventAttemptStarted   = "attempt_started"
	EventAttemptSubmitted = "attempt_submitted"
)

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			slog.Debug("client registered", "client_id", client.id, "quiz_id", client.quizID, "instructor_id", client.instructorID, "total", total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mutex.Unlock()
			slog.Debug("client unregistered", "client_id", client.id, "quiz_id", client.quizID, "total", total)
		}
	}
}

// BroadcastToQuiz sends an event to every client watching quizID.
func (h *Hub) BroadcastToQuiz(quizID uint, messageType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		slog.Error("failed to marshal hub message", "type", messageType, "err", err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	delivered := 0
	for client := range h.clients {
		if client.quizID != quizID {
			continue
		}
		select {
		case client.send <- data:
			delivered++
		default:
			slog.Warn("client send buffer full, dropping connection", "client_id", client.id, "quiz_id", quizID)
			close(client.send)
			delete(h.clients, client)
		}
	}
	slog.Debug("broadcast", "type", messageType, "quiz_id", quizID, "delivered", delivered)
}

// Watchers returns the instructors connected to the quiz room.
func (h *Hub) Watchers(quizID uint) []uint {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var ids []uint
	for client := range h.clients {
		if client.quizID == quizID {
			ids = append(ids, client.instructorID)
		}
	}
	return ids
}

func (h *Hub) RegisterClient(conn *websocket.Conn, quizID, instructorID uint) *Client {
	client := &Client{
		hub:          h,
		id:           uuid.NewString(),
		socket:       conn,
		send:         make(chan []byte, 256),
		quizID:       quizID,
		instructorID: instructorID,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// readPump only handles control frames and pings; the feed is one-way.
func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	c.socket.SetReadLimit(4096)
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "client_id", c.id, "err", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Debug("ignoring malformed client message", "client_id", c.id, "err", err)
			continue
		}
		if msg.Type == "ping" {
			data, _ := json.Marshal(Message{Type: "pong", Payload: "pong"})
			c.hub.mutex.RLock()
			if c.hub.clients[c] {
				select {
				case c.send <- data:
				default:
				}
			}
			c.hub.mutex.RUnlock()
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
