package chat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message is one chat frame relayed between the two parties of a
// conversation. Nothing here is persisted.
type Message struct {
	SenderID   string    `json:"senderId"`
	SenderRole string    `json:"senderRole"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sentAt"`
}

type inbound struct {
	Body string `json:"body"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
	sendBuffer     = 16
)

// Hub fans frames out to everyone else in the same room. A room is one
// (property, customer) conversation, so in practice two clients.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	log   *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		log:   log,
	}
}

func (h *Hub) join(c *Client) {
	h.mu.Lock()

	room, ok := h.rooms[c.room]

	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.room] = room
	}

	room[c] = struct{}{}

	h.mu.Unlock()
}

func (h *Hub) leave(c *Client) {
	h.mu.Lock()

	if room, ok := h.rooms[c.room]; ok {
		delete(room, c)

		if len(room) == 0 {
			delete(h.rooms, c.room)
		}
	}

	h.mu.Unlock()
}

// broadcast delivers to every other member of the room; a member whose send
// buffer is full is dropped rather than allowed to stall the room.
func (h *Hub) broadcast(from *Client, msg Message) {
	h.mu.RLock()

	var stalled []*Client

	for c := range h.rooms[from.room] {
		if c == from {
			continue
		}

		select {
		case c.send <- msg:
		default:
			stalled = append(stalled, c)
		}
	}

	h.mu.RUnlock()

	for _, c := range stalled {
		h.log.Warn("chat: dropping stalled client", "room", c.room, "user_id", c.userID)
		c.close()
	}
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[room])
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	room   string
	userID string
	role   string

	send      chan Message
	closeOnce sync.Once
}

// Serve registers the connection and runs both pumps; it returns when the
// peer goes away.
func (h *Hub) Serve(conn *websocket.Conn, room, userID, role string) {
	c := &Client{
		hub:    h,
		conn:   conn,
		room:   room,
		userID: userID,
		role:   role,
		send:   make(chan Message, sendBuffer),
	}

	h.join(c)

	go c.writePump()
	c.readPump()
}

// close leaves the room before closing the channel; once the client is out
// of the room no broadcast can touch c.send, so the close cannot race a send.
func (c *Client) close() {
	c.hub.leave(c)
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func (c *Client) readPump() {
	defer func() {
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inbound

		err := c.conn.ReadJSON(&in)

		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("chat: read error", "error", err, "room", c.room)
			}
			return
		}

		if in.Body == "" {
			continue
		}

		c.hub.broadcast(c, Message{
			SenderID:   c.userID,
			SenderRole: c.role,
			Body:       in.Body,
			SentAt:     time.Now().UTC(),
		})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
