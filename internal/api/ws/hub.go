package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/drowsiness-alarm/internal/logger"
)

const (
	// defaultSendBuf is the per-client outbound queue size.
	defaultSendBuf = 32
	// defaultBroadcastBuf is the hub inbound queue size.
	defaultBroadcastBuf = 128

	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// Hub tracks connected clients and fans broadcasts out to them. Clients
// that cannot keep up are disconnected. Only Run mutates the client set.
type Hub struct {
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

// HubConfig sizes the hub queues. Zero values select defaults.
type HubConfig struct {
	SendBuf      int
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run to start it.
func NewHub(cfg HubConfig) *Hub {
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = defaultSendBuf
	}

	if cfg.BroadcastBuf <= 0 {
		cfg.BroadcastBuf = defaultBroadcastBuf
	}

	return &Hub{
		broadcast:  make(chan []byte, cfg.BroadcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		sendBuf:    cfg.SendBuf,
	}
}

// Run processes hub events until ctx is canceled, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	ctx = logger.WithName(ctx, "ws.hub")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()

			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()

			logger.InfoKV(ctx, "Observer connected", "remote_addr", c.remoteAddr, "clients", n)
		case c := <-h.unregister:
			h.removeClient(ctx, c, "unregister")
		case msg := <-h.broadcast:
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(ctx, c, "slow_client")
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// BroadcastBytes enqueues a serialized frame. It never blocks and drops the
// frame when the hub queue is full.
func (h *Hub) BroadcastBytes(ctx context.Context, msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		logger.WarnKV(ctx, "Observer broadcast queue full, dropping message", "bytes", len(msg))
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}

		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(ctx context.Context, c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}

	if c.conn != nil {
		_ = c.conn.Close()
	}

	// Closing send stops the write pump.
	close(c.send)

	logger.InfoKV(ctx, "Observer disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

// Client is one websocket connection with its own outbound queue.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
}

// newClient creates a client with a queue sized by the hub.
func newClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, hub.sendBuf),
		remoteAddr: remoteAddr,
	}
}

// writePump writes queued messages and pings. It exits on write error or
// when the hub closes send.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logClosed(ctx, "write", c.remoteAddr, err)

				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logClosed(ctx, "ping", c.remoteAddr, err)

				return
			}
		}
	}
}

// readPump discards client messages to detect disconnects and handle
// control frames, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			logClosed(ctx, "read", c.remoteAddr, err)

			select {
			case c.hub.unregister <- c:
			case <-c.hub.done:
			}

			return
		}
	}
}

func logClosed(ctx context.Context, op, remoteAddr string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		logger.DebugKV(ctx, "Observer connection closed", "op", op, "remote_addr", remoteAddr, "code", ce.Code)

		return
	}

	logger.DebugKV(ctx, "Observer connection failed", "op", op, "remote_addr", remoteAddr, "error", err)
}
