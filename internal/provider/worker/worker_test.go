package worker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/drowsiness-alarm/internal/config"
	"github.com/oshokin/drowsiness-alarm/internal/domain/drowsiness"
	"github.com/oshokin/drowsiness-alarm/internal/domain/frame"
	"github.com/oshokin/drowsiness-alarm/internal/domain/landmark"
	"github.com/oshokin/drowsiness-alarm/internal/domain/landmark/landmarktest"
	"github.com/oshokin/drowsiness-alarm/internal/logger"
)

// Frame widths select the helper worker's behavior.
const (
	helperNoFace = iota
	helperOneFace
	helperTwoFaces
	helperFailure
	helperCrash
	helperHang
	helperWrongSeq
	helperAnswerThenExit
)

// TestHelperWorker is not a real test: it is the worker process the other
// tests spawn by re-running the test binary.
func TestHelperWorker(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_WORKER") != "1" {
		t.Skip("helper process")
	}

	for {
		var req Request
		if err := ReadMessage(os.Stdin, &req); err != nil {
			os.Exit(0)
		}

		fmt.Fprintf(os.Stderr, "[INFO] frame %d\n", req.Seq)

		resp := Response{Seq: req.Seq}

		switch req.Width {
		case helperNoFace:
		case helperOneFace:
			resp.Faces = [][]landmark.Point{landmarktest.Points(0.1)}
		case helperTwoFaces:
			resp.Faces = [][]landmark.Point{landmarktest.Points(0.1), landmarktest.Points(0.4)}
		case helperFailure:
			fmt.Fprintln(os.Stderr, "[ERROR] model not loaded")

			resp.Error = "model not loaded"
		case helperCrash:
			os.Exit(3)
		case helperHang:
			select {}
		case helperWrongSeq:
			resp.Seq++
		case helperAnswerThenExit:
			resp.Faces = [][]landmark.Point{landmarktest.Points(0.4)}
		}

		if err := WriteMessage(os.Stdout, resp); err != nil {
			os.Exit(1)
		}

		if req.Width == helperAnswerThenExit {
			os.Exit(0)
		}
	}
}

func newHelperWorker(t *testing.T) *Worker {
	t.Helper()

	w, err := New(config.Provider{
		Command: os.Args[0],
		Args:    []string{"-test.run=^TestHelperWorker$"},
		Env:     []string{"GO_WANT_HELPER_WORKER=1"},
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = w.Close()
	})

	return w
}

func helperFrame(seq uint64, behavior int) *frame.Frame {
	return &frame.Frame{Seq: seq, Timestamp: time.Now(), Width: behavior, Height: 1}
}

func (w *Worker) pid() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.proc == nil {
		return 0
	}

	return w.proc.cmd.Process.Pid
}

func TestNew_RequiresCommand(t *testing.T) {
	t.Parallel()

	_, err := New(config.Provider{})
	require.ErrorIs(t, err, errCommandRequired)
}

func TestNew_RejectsUnknownLogLevel(t *testing.T) {
	t.Parallel()

	_, err := New(config.Provider{Command: "worker", LogLevel: "loud"})
	require.ErrorIs(t, err, logger.ErrUnknownLevel)

	_, err = New(config.Provider{Command: "worker", LogLevel: "warn"})
	require.NoError(t, err)
}

func TestWorker_Detect(t *testing.T) {
	t.Parallel()

	w := newHelperWorker(t)
	ctx := context.Background()

	require.NoError(t, w.Start(ctx))

	pid := w.pid()
	require.NotZero(t, pid)

	sets, err := w.Detect(ctx, helperFrame(1, helperNoFace))
	require.NoError(t, err)
	require.Empty(t, sets)

	sets, err = w.Detect(ctx, helperFrame(2, helperOneFace))
	require.NoError(t, err)
	require.Len(t, sets, 1)

	openness, err := drowsiness.Measure(&sets[0])
	require.NoError(t, err)
	require.InDelta(t, 0.1, openness.Average, 1e-9)

	sets, err = w.Detect(ctx, helperFrame(3, helperTwoFaces))
	require.NoError(t, err)
	require.Len(t, sets, 2)

	require.Equal(t, pid, w.pid())
}

func TestWorker_ReportedErrorKeepsProcess(t *testing.T) {
	t.Parallel()

	w := newHelperWorker(t)
	ctx := context.Background()

	_, err := w.Detect(ctx, helperFrame(1, helperFailure))
	require.ErrorIs(t, err, ErrWorker)

	pid := w.pid()
	require.NotZero(t, pid)

	_, err = w.Detect(ctx, helperFrame(2, helperOneFace))
	require.NoError(t, err)
	require.Equal(t, pid, w.pid())
}

func TestWorker_RestartsAfterFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		behavior int
	}{
		{name: "crash", behavior: helperCrash},
		{name: "wrong sequence", behavior: helperWrongSeq},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := newHelperWorker(t)
			ctx := context.Background()

			_, err := w.Detect(ctx, helperFrame(1, tt.behavior))
			require.Error(t, err)

			sets, err := w.Detect(ctx, helperFrame(2, helperOneFace))
			require.NoError(t, err)
			require.Len(t, sets, 1)
		})
	}
}

func TestWorker_AnswerBeforeExitIsKept(t *testing.T) {
	t.Parallel()

	w := newHelperWorker(t)
	ctx := context.Background()

	require.NoError(t, w.Start(ctx))

	pid := w.pid()

	sets, err := w.Detect(ctx, helperFrame(1, helperAnswerThenExit))
	require.NoError(t, err)
	require.Len(t, sets, 1)

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()

		select {
		case <-w.proc.exited:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	sets, err = w.Detect(ctx, helperFrame(2, helperOneFace))
	require.NoError(t, err)
	require.Len(t, sets, 1)
	require.NotEqual(t, pid, w.pid())
}

func TestWorker_CancelKillsHungProcess(t *testing.T) {
	t.Parallel()

	w := newHelperWorker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := w.Detect(ctx, helperFrame(1, helperHang))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, w.pid())

	sets, err := w.Detect(context.Background(), helperFrame(2, helperOneFace))
	require.NoError(t, err)
	require.Len(t, sets, 1)
}

func TestWorker_Close(t *testing.T) {
	t.Parallel()

	w := newHelperWorker(t)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Close())

	_, err := w.Detect(context.Background(), helperFrame(1, helperOneFace))
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, w.Start(context.Background()), ErrClosed)
	require.NoError(t, w.Close())
}

func TestResponse_Sets(t *testing.T) {
	t.Parallel()

	req := Request{Seq: 5}

	resp := Response{Seq: 5, Faces: [][]landmark.Point{landmarktest.Points(0.2)[:10]}}
	_, err := resp.Sets(req)
	require.ErrorIs(t, err, landmark.ErrMalformed)

	resp = Response{Seq: 4}
	_, err = resp.Sets(req)
	require.ErrorIs(t, err, errOutOfSequence)

	resp = Response{Seq: 5, Error: "boom"}
	_, err = resp.Sets(req)
	require.ErrorIs(t, err, ErrWorker)
}

func TestStderrLogger_SplitsLines(t *testing.T) {
	t.Parallel()

	s := newStderrLogger(context.Background())

	n, err := s.Write([]byte("[INFO] first\n[WARN] sec"))
	require.NoError(t, err)
	require.Equal(t, 23, n)
	require.Equal(t, "[WARN] sec", s.pending.String())

	_, err = s.Write([]byte("ond\n"))
	require.NoError(t, err)
	require.Zero(t, s.pending.Len())
}

func TestStderrLogger_OwnLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	base := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(&buf),
		zapcore.InfoLevel,
	)).Sugar()
	ctx := logger.ToContext(context.Background(), base)

	quiet, err := logger.WithLevelName(ctx, "error")
	require.NoError(t, err)

	_, err = newStderrLogger(quiet).Write([]byte("[WARN] slow frame\n[ERROR] camera lost\n"))
	require.NoError(t, err)
	require.NotContains(t, buf.String(), "slow frame")
	require.Contains(t, buf.String(), "camera lost")

	buf.Reset()

	noisy, err := logger.WithLevelName(ctx, "debug")
	require.NoError(t, err)

	_, err = newStderrLogger(noisy).Write([]byte("[INFO] frame 12\n"))
	require.NoError(t, err)
	require.Contains(t, buf.String(), "frame 12")
}

func TestIsStaleWorker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		executable string
		cmdline    []string
		worker     string
		args       []string
		want       bool
	}{
		{
			name:       "other executable",
			executable: "bash",
			cmdline:    []string{"bash"},
			worker:     "python3",
			want:       false,
		},
		{
			name:       "same executable without args",
			executable: "python3",
			cmdline:    []string{"python3", "notebook.py"},
			worker:     "python3",
			want:       true,
		},
		{
			name:       "interpreter running another script",
			executable: "python3",
			cmdline:    []string{"python3", "notebook.py"},
			worker:     "python3",
			args:       []string{"landmarks.py"},
			want:       false,
		},
		{
			name:       "interpreter running the worker",
			executable: "python3",
			cmdline:    []string{"/usr/bin/python3", "-u", "landmarks.py"},
			worker:     "python3",
			args:       []string{"landmarks.py"},
			want:       true,
		},
		{
			name:       "shebang script",
			executable: "landmarks.py",
			cmdline:    []string{"python3", "./landmarks.py", "--model", "fm.task"},
			worker:     "landmarks.py",
			args:       []string{"--model", "fm.task"},
			want:       true,
		},
		{
			name:       "unreadable command line",
			executable: "python3",
			worker:     "python3",
			args:       []string{"landmarks.py"},
			want:       false,
		},
		{
			name:       "truncated executable name",
			executable: "landmark-worker",
			cmdline:    []string{"landmark-worker-gpu"},
			worker:     "landmark-worker-gpu",
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.want, isStaleWorker(tt.executable, tt.cmdline, tt.worker, tt.args))
		})
	}
}

func TestTerminateStaleWorkers_SparesOtherArguments(t *testing.T) {
	t.Parallel()

	if runtime.GOOS != "linux" {
		t.Skip("command lines are read from /proc")
	}

	start := func(arg string) *exec.Cmd {
		cmd := exec.Command("sleep", arg)
		require.NoError(t, cmd.Start())

		t.Cleanup(func() {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
		})

		return cmd
	}

	staleArg := strconv.Itoa(500000 + os.Getpid())
	stale := start(staleArg)
	bystander := start(strconv.Itoa(600000 + os.Getpid()))

	require.Equal(t, []string{"sleep", staleArg}, commandLine(stale.Process.Pid))

	require.NoError(t, terminateStaleWorkers(context.Background(), "sleep", []string{staleArg}))

	err := stale.Wait()
	require.Error(t, err)

	// The bystander is still alive: signal 0 succeeds.
	require.NoError(t, bystander.Process.Signal(syscall.Signal(0)))
}
