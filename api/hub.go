package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pricefuse/engine"
	"pricefuse/internal/metrics"
	"pricefuse/logger"
	"pricefuse/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The stream is consumed by dashboards served from other origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// liveFrame wraps a composite update for the push stream so clients can
// dispatch on the frame type when more stream kinds are added.
type liveFrame struct {
	Type string `json:"type"`
	models.CompositeUpdate
}

type client struct {
	conn *websocket.Conn
	send chan liveFrame
}

// hub fans engine updates out to every connected websocket client. Each
// client gets a buffered send channel and a client that stops draining it is
// dropped rather than allowed to stall the stream for everyone else.
type hub struct {
	engine *engine.Engine
	log    *logger.Log
	buffer int

	mu      sync.Mutex
	clients map[*client]struct{}
}

func newHub(eng *engine.Engine, buffer int, log *logger.Log) *hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &hub{
		engine:  eng,
		log:     log,
		buffer:  buffer,
		clients: make(map[*client]struct{}),
	}
}

// run subscribes to the engine and broadcasts every update until the context
// is cancelled, then disconnects all clients.
func (h *hub) run(ctx context.Context) {
	updates, cancel := h.engine.Subscribe(h.buffer)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case update, ok := <-updates:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(liveFrame{Type: "composite", CompositeUpdate: update})
		}
	}
}

func (h *hub) add(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan liveFrame, h.buffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// remove detaches a client and closes its send channel exactly once, no
// matter how many teardown paths race to it.
func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *hub) broadcast(frame liveFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			delete(h.clients, c)
			close(c.send)
			metrics.EmitDropMetric(h.log, metrics.DropMetricStream, "", "", "", "push")
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// handleLive upgrades the connection and hands it to the hub. The write pump
// owns the connection from here on; the read pump only services control
// frames so disconnects are noticed.
func (s *Server) handleLive(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithComponent("api").WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := s.hub.add(conn)
	go client.writePump(s.hub)
	go client.readPump(s.hub)
}

func (c *client) writePump(h *hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

func (c *client) readPump(h *hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
