package roomserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tOgg1/roomline/internal/chatapi"
	"github.com/tOgg1/roomline/internal/logging"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
	pongWait         = 90 * time.Second
	pingPeriod       = 30 * time.Second
)

// client is one push subscriber. RoomID 0 receives every room.
type client struct {
	ID     string
	RoomID int64

	conn   *websocket.Conn
	logger zerolog.Logger

	mu   sync.RWMutex
	send chan []byte
}

// trySend queues data without blocking. Slow clients lose messages.
func (c *client) trySend(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.send == nil {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn().Msg("client send buffer full, dropping frame")
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send != nil {
		close(c.send)
		c.send = nil
	}
}

// Hub fans push frames out to connected clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	logger  zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
		logger:  logging.Component("hub"),
	}
}

func (h *Hub) register(conn *websocket.Conn, roomID int64) *client {
	id := uuid.NewString()
	c := &client{
		ID:     id,
		RoomID: roomID,
		conn:   conn,
		logger: logging.WithClient(id, roomID),
		send:   make(chan []byte, clientSendBuffer),
	}
	h.mu.Lock()
	h.clients[id] = c
	total := len(h.clients)
	h.mu.Unlock()

	c.logger.Info().Int("clients", total).Msg("client connected")
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	delete(h.clients, c.ID)
	h.mu.Unlock()

	if ok {
		c.close()
		c.logger.Info().Msg("client disconnected")
	}
}

// Broadcast sends frame to every client subscribed to roomID and returns how many
// accepted it.
func (h *Hub) Broadcast(roomID int64, frame chatapi.Frame) int {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode push frame")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, c := range h.clients {
		if c.RoomID != 0 && c.RoomID != roomID {
			continue
		}
		if c.trySend(data) {
			delivered++
		}
	}
	return delivered
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
		_ = c.conn.Close()
	}
}

// serve runs the pumps of c until the connection ends.
func (h *Hub) serve(c *client) {
	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(64 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("client read error")
			}
			return
		}
		var frame chatapi.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debug().Err(err).Msg("ignoring malformed frame")
			continue
		}
		if frame.Type == chatapi.FrameHeartbeat {
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	c.mu.RLock()
	send := c.send
	c.mu.RUnlock()
	if send == nil {
		return
	}

	for {
		select {
		case data, ok := <-send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
