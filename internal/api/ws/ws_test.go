package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/drowsiness-alarm/internal/domain/drowsiness"
	"github.com/oshokin/drowsiness-alarm/internal/service/monitor"
)

const waitFor = 2 * time.Second

func runHub(t *testing.T, hub *Hub) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return cancel
}

// testClient has no connection; the hub tolerates that.
func testClient(hub *Hub, name string, buf int) *Client {
	return &Client{hub: hub, send: make(chan []byte, buf), remoteAddr: name}
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	t.Parallel()

	hub := NewHub(HubConfig{SendBuf: 4, BroadcastBuf: 8})
	runHub(t, hub)

	c1, c2 := testClient(hub, "c1", 4), testClient(hub, "c2", 4)
	hub.register <- c1
	hub.register <- c2
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, waitFor, time.Millisecond)

	msg := []byte(`{"type":"snapshot"}`)
	hub.broadcast <- msg

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			require.Equal(t, msg, got)
		case <-time.After(waitFor):
			t.Fatalf("%s did not receive the broadcast", c.remoteAddr)
		}
	}
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	t.Parallel()

	hub := NewHub(HubConfig{SendBuf: 1, BroadcastBuf: 8})
	runHub(t, hub)

	slow, fast := testClient(hub, "slow", 1), testClient(hub, "fast", 8)
	hub.register <- slow
	hub.register <- fast
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, waitFor, time.Millisecond)

	hub.broadcast <- []byte("1")
	hub.broadcast <- []byte("2")

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, waitFor, time.Millisecond)

	hub.mu.Lock()
	_, stillThere := hub.clients[fast]
	hub.mu.Unlock()
	require.True(t, stillThere)

	// The evicted client's queue is closed after the buffered message.
	require.Equal(t, []byte("1"), <-slow.send)

	_, open := <-slow.send
	require.False(t, open)
}

func TestHub_BroadcastBytesDropsWhenFull(t *testing.T) {
	t.Parallel()

	hub := NewHub(HubConfig{BroadcastBuf: 1})

	hub.BroadcastBytes(context.Background(), []byte("1"))
	hub.BroadcastBytes(context.Background(), []byte("2"))

	require.Len(t, hub.broadcast, 1)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (Envelope, SnapshotData) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(raw, &envelope))

	var data SnapshotData
	require.NoError(t, json.Unmarshal(envelope.Data, &data))

	return envelope, data
}

func TestServer_Feed(t *testing.T) {
	t.Parallel()

	current := monitor.Snapshot{Running: true, Muted: true, State: drowsiness.Awake}
	server := NewServer(func() monitor.Snapshot { return current }, HubConfig{})
	stop := runHub(t, server.Hub())

	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + Path

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	_ = resp.Body.Close()

	t.Cleanup(func() { _ = conn.Close() })

	envelope, data := readEnvelope(t, conn)
	require.Equal(t, TypeStateInit, envelope.Type)
	require.Nil(t, envelope.Ts)
	require.True(t, data.Running)
	require.True(t, data.Muted)
	require.Equal(t, "awake", data.State)

	require.Eventually(t, func() bool { return server.Hub().Clients() == 1 }, waitFor, time.Millisecond)

	sessionID := uuid.New()
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	server.Publish(context.Background(), monitor.Snapshot{
		Running:      true,
		State:        drowsiness.Alarmed,
		Openness:     drowsiness.Openness{Left: 0.1, Right: 0.2, Average: 0.15},
		ScorePresent: true,
		Closed:       12,
		SessionID:    sessionID,
		Signal:       drowsiness.Pulse,
		FrameSeq:     40,
		At:           at,
		Stats:        monitor.Stats{Ticks: 40, Alarms: 1},
	})

	envelope, data = readEnvelope(t, conn)
	require.Equal(t, TypeSnapshot, envelope.Type)
	require.NotNil(t, envelope.Ts)
	require.True(t, at.Equal(*envelope.Ts))
	require.Equal(t, "alarmed", data.State)
	require.NotNil(t, data.EAR)
	require.InDelta(t, 0.15, *data.EAR, 1e-12)
	require.Equal(t, 12, data.ClosedFrames)
	require.Equal(t, sessionID.String(), data.SessionID)
	require.Equal(t, uint64(40), data.Stats.Ticks)

	// Stopping the hub closes the feed.
	stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}

func TestNewSnapshotData_WithoutFace(t *testing.T) {
	t.Parallel()

	data := NewSnapshotData(monitor.Snapshot{State: drowsiness.Closing, Closed: 3})

	require.False(t, data.FacePresent)
	require.Nil(t, data.EAR)
	require.Nil(t, data.LeftEAR)
	require.Empty(t, data.SessionID)
	require.Equal(t, "closing", data.State)

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NotContains(t, string(raw), `"ear"`)
}
