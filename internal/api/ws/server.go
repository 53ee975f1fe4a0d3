// Package ws streams monitor snapshots to websocket observers.
//
// Every message is a JSON text frame {type, ts, data}. A client receives
// "state_init" with the current snapshot on connect, then one "snapshot"
// per processed frame. Clients whose queue fills up are disconnected.
package ws

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/oshokin/drowsiness-alarm/internal/logger"
	"github.com/oshokin/drowsiness-alarm/internal/service/monitor"
)

// Path is where the snapshot feed is served.
const Path = "/ws"

// SnapshotFunc returns the current snapshot for new clients.
type SnapshotFunc func() monitor.Snapshot

// Server upgrades HTTP requests and feeds clients from its hub. It is a monitor.Observer.
type Server struct {
	hub      *Hub
	current  SnapshotFunc
	upgrader websocket.Upgrader
}

// NewServer creates the feed. Call Run to start the hub.
func NewServer(current SnapshotFunc, cfg HubConfig) *Server {
	return &Server{
		hub:     NewHub(cfg),
		current: current,
		upgrader: websocket.Upgrader{
			// The feed is read-only and served on a local address.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Hub returns the underlying hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run runs the hub until ctx is canceled.
func (s *Server) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

// Handler returns the HTTP handler serving the feed at Path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleWS)

	return mux
}

// Publish broadcasts a snapshot. It never blocks the detection loop.
func (s *Server) Publish(ctx context.Context, snapshot monitor.Snapshot) {
	msg, err := encode(TypeSnapshot, snapshot)
	if err != nil {
		logger.ErrorKV(ctx, "Unable to encode snapshot", "error", err)

		return
	}

	s.hub.BroadcastBytes(ctx, msg)
}

// handleWS upgrades the connection, queues state_init, then registers the client.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithName(r.Context(), "ws")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnKV(ctx, "Websocket upgrade failed", "error", err)

		return
	}

	client := newClient(s.hub, conn, r.RemoteAddr)

	// Queued before registering so it always precedes broadcasts.
	msg, err := encode(TypeStateInit, s.current())
	if err != nil {
		logger.ErrorKV(ctx, "Unable to encode initial state", "error", err)

		_ = conn.Close()

		return
	}

	client.send <- msg

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		_ = conn.Close()

		return
	}

	// The pumps outlive the request; the hub and connection errors end them.
	pumpCtx := context.WithoutCancel(ctx)

	go client.writePump(pumpCtx)
	go client.readPump(pumpCtx)
}
