package integration

import (
	"context"
	"fmt"
	"image/color"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/drowsiness-alarm/internal/api/ws"
	"github.com/oshokin/drowsiness-alarm/internal/config"
	"github.com/oshokin/drowsiness-alarm/internal/domain/control"
	"github.com/oshokin/drowsiness-alarm/internal/domain/landmark"
	"github.com/oshokin/drowsiness-alarm/internal/domain/landmark/landmarktest"
	"github.com/oshokin/drowsiness-alarm/internal/provider/worker"
	"github.com/oshokin/drowsiness-alarm/internal/service/common"
	"github.com/oshokin/drowsiness-alarm/internal/service/server"
)

// Dark frames stand for closed eyes, bright ones for open eyes.
const (
	closedEAR = 0.1
	openEAR   = 0.4
)

// TestHelperWorker is not a real test: it is the landmark worker the daemon
// spawns by re-running the test binary.
func TestHelperWorker(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_WORKER") != "1" {
		t.Skip("helper process")
	}

	for {
		var req worker.Request
		if err := worker.ReadMessage(os.Stdin, &req); err != nil {
			os.Exit(0)
		}

		ear := openEAR
		if len(req.Pixels) > 0 && req.Pixels[0] < 128 {
			ear = closedEAR
		}

		resp := worker.Response{
			Seq:   req.Seq,
			Faces: [][]landmark.Point{landmarktest.Points(ear)},
		}

		if err := worker.WriteMessage(os.Stdout, resp); err != nil {
			os.Exit(1)
		}
	}
}

// reserveAddr returns a free loopback address.
func reserveAddr(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}

// writeFrames writes closed dark frames followed by open bright ones.
func writeFrames(t *testing.T, closed, open int) string {
	t.Helper()

	dir := t.TempDir()

	for i := range closed + open {
		fill := color.NRGBA{R: 240, G: 240, B: 240, A: 255}
		if i < closed {
			fill = color.NRGBA{R: 10, G: 10, B: 10, A: 255}
		}

		path := filepath.Join(dir, fmt.Sprintf("frame-%03d.png", i))
		require.NoError(t, imaging.Save(imaging.New(8, 8, fill), path))
	}

	return dir
}

type daemon struct {
	controlAddr string
	wsAddr      string
	cfgPath     string
	settings    string
}

func newDaemon(t *testing.T) *daemon {
	t.Helper()

	d := &daemon{
		controlAddr: reserveAddr(t),
		wsAddr:      reserveAddr(t),
		cfgPath:     filepath.Join(t.TempDir(), "drowsiness-alarm.yaml"),
		settings:    filepath.Join(t.TempDir(), "settings.json"),
	}

	require.NoError(t, config.Save(d.cfgPath, &config.Config{
		ControlAddress:  d.controlAddr,
		ObserverAddress: d.wsAddr,
		SettingsFile:    d.settings,
		Timeout:         3 * time.Second,
		Source: config.Source{
			ImagesDir: writeFrames(t, 12, 8),
			FPS:       40,
			Loop:      true,
		},
		Provider: config.Provider{
			Command: os.Args[0],
			Args:    []string{"-test.run=^TestHelperWorker$"},
			Env:     []string{"GO_WANT_HELPER_WORKER=1"},
		},
		Alarm: config.Alarm{Player: "true"},
		Log:   config.Log{Level: "error"},
	}))

	return d
}

// start runs the daemon until the returned stop function is called.
func (d *daemon) start(t *testing.T) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- server.Run(ctx, &server.Options{ConfigPath: d.cfgPath})
	}()

	return func() {
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("daemon did not stop")
		}
	}
}

func dial(t *testing.T, addr string) *common.Client {
	t.Helper()

	c, err := common.Dial(context.Background(), addr, common.WithCallTimeout(time.Second))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = c.Close()
	})

	return c
}

func waitStatus(t *testing.T, c *common.Client, cond func(*control.Status) bool) *control.Status {
	t.Helper()

	var last *control.Status

	require.Eventually(t, func() bool {
		status, err := c.Status(context.Background())
		if err != nil {
			return false
		}

		last = status

		return cond(status)
	}, 10*time.Second, 25*time.Millisecond)

	return last
}

// TestDaemon_AlarmAndControl runs the real daemon over a replayed directory and
// drives it through the control API.
func TestDaemon_AlarmAndControl(t *testing.T) {
	t.Parallel()

	d := newDaemon(t)
	stop := d.start(t)
	c := dial(t, d.controlAddr)
	actor := &control.Actor{Hostname: "truck-07", Username: "driver"}
	ctx := context.Background()

	// Monitoring is on by default and the dark run raises an alarm.
	status := waitStatus(t, c, func(s *control.Status) bool { return s.Running && s.Alarms > 0 })
	require.True(t, status.Settings.Monitoring)

	status, err := c.SetMuted(ctx, actor, true)
	require.NoError(t, err)
	require.True(t, status.Settings.Muted)
	require.Equal(t, actor, status.Settings.LastActor)

	status, err = c.SetMonitoring(ctx, actor, false)
	require.NoError(t, err)
	require.False(t, status.Running)
	require.Equal(t, "awake", status.State)
	require.Empty(t, status.SessionID)

	stop()

	_, err = os.Stat(d.settings)
	require.NoError(t, err)

	// Switches survive a restart.
	stop = d.start(t)
	defer stop()

	status = waitStatus(t, c, func(*control.Status) bool { return true })
	require.False(t, status.Running)
	require.False(t, status.Settings.Monitoring)
	require.True(t, status.Settings.Muted)
	require.Equal(t, actor, status.Settings.LastActor)

	status, err = c.SetMonitoring(ctx, actor, true)
	require.NoError(t, err)
	require.True(t, status.Running)
}

// TestDaemon_WebsocketFeed checks that observers get state_init then per-frame snapshots.
func TestDaemon_WebsocketFeed(t *testing.T) {
	t.Parallel()

	d := newDaemon(t)
	stop := d.start(t)

	defer stop()

	waitStatus(t, dial(t, d.controlAddr), func(s *control.Status) bool { return s.Running })

	var (
		conn *websocket.Conn
		err  error
	)

	require.Eventually(t, func() bool {
		conn, _, err = websocket.DefaultDialer.Dial("ws://"+d.wsAddr+ws.Path, nil) //nolint:bodyclose // Closed with conn.
		return err == nil
	}, 5*time.Second, 25*time.Millisecond)

	defer func() {
		_ = conn.Close()
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var envelope ws.Envelope

	require.NoError(t, conn.ReadJSON(&envelope))
	require.Equal(t, ws.TypeStateInit, envelope.Type)

	require.NoError(t, conn.ReadJSON(&envelope))
	require.Equal(t, ws.TypeSnapshot, envelope.Type)
	require.NotNil(t, envelope.Ts)
	require.NotEmpty(t, envelope.Data)
}
