package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/oshokin/drowsiness-alarm/internal/config"
	"github.com/oshokin/drowsiness-alarm/internal/domain/frame"
	"github.com/oshokin/drowsiness-alarm/internal/domain/landmark"
	"github.com/oshokin/drowsiness-alarm/internal/logger"
)

var (
	// ErrClosed is returned by Detect after Close.
	ErrClosed = errors.New("landmark worker closed")
	// errWorkerExited is returned when the process dies mid-exchange.
	errWorkerExited = errors.New("landmark worker exited")
	// errCommandRequired is returned when no worker command is configured.
	errCommandRequired = errors.New("provider command must be provided")
)

// Worker is a landmark provider backed by an external process speaking
// length-prefixed msgpack over stdin and stdout. The process is started on
// first use and restarted after any failed exchange.
type Worker struct {
	cfg config.Provider

	mu     sync.Mutex
	proc   *process
	closed bool
}

// process is one running worker instance.
type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	// pipe is the read end of stdout. It is owned by us, not by cmd, so that
	// a response written right before the process exits can still be read.
	pipe   *os.File
	stdout *bufio.Reader
	exited chan struct{}
}

// exchange is the outcome of one request/response round trip.
type exchange struct {
	resp Response
	err  error
}

// New creates a worker for cfg. No process is started until Detect or Start.
func New(cfg config.Provider) (*Worker, error) {
	if cfg.Command == "" {
		return nil, errCommandRequired
	}

	if _, err := logger.WithLevelName(context.Background(), cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("provider log level: %w", err)
	}

	return &Worker{cfg: cfg}, nil
}

// Start kills stale workers left by a previous daemon when configured and
// spawns the process eagerly, so that model loading happens before the first frame.
func (w *Worker) Start(ctx context.Context) error {
	ctx = logger.WithName(ctx, "worker")

	if w.cfg.KillStale {
		name := w.cfg.StaleExecutable
		if name == "" {
			name = filepath.Base(w.cfg.Command)
		}

		if err := terminateStaleWorkers(ctx, name, w.cfg.Args); err != nil {
			logger.WarnKV(ctx, "Unable to terminate stale workers", "executable", name, "error", err)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	_, err := w.ensure(ctx)

	return err
}

// Detect sends f to the worker and returns the detected faces. Cancelling ctx
// kills the process; the next call starts a fresh one.
func (w *Worker) Detect(ctx context.Context, f *frame.Frame) ([]landmark.Set, error) {
	ctx = logger.WithName(ctx, "worker")

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}

	p, err := w.ensure(ctx)
	if err != nil {
		return nil, err
	}

	req := NewRequest(f)
	result := make(chan exchange, 1)

	go func() {
		var resp Response

		err := WriteMessage(p.stdin, req)
		if err == nil {
			err = ReadMessage(p.stdout, &resp)
		}

		result <- exchange{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		w.discard(ctx, "detection canceled")

		return nil, ctx.Err()
	case r := <-result:
		return w.complete(ctx, req, r)
	case <-p.exited:
		// The pipe still holds whatever the process wrote before exiting.
		select {
		case <-ctx.Done():
			w.discard(ctx, "detection canceled")

			return nil, ctx.Err()
		case r := <-result:
			if r.err != nil {
				w.discard(ctx, "process exited")

				return nil, fmt.Errorf("%w: %w", errWorkerExited, r.err)
			}

			return w.complete(ctx, req, r)
		}
	}
}

// complete turns a finished exchange into landmark sets. Must be called with mu held.
func (w *Worker) complete(ctx context.Context, req Request, r exchange) ([]landmark.Set, error) {
	if r.err != nil {
		w.discard(ctx, "broken stream")

		return nil, r.err
	}

	sets, err := r.resp.Sets(req)
	if err != nil && !errors.Is(err, ErrWorker) {
		w.discard(ctx, "invalid response")
	}

	return sets, err
}

// Close stops the worker process. Detect fails afterwards.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true

	if w.proc == nil {
		return nil
	}

	p := w.proc
	w.proc = nil

	p.release()
	<-p.exited

	return nil
}

// ensure returns the running process, spawning one if needed. Must be called with mu held.
func (w *Worker) ensure(ctx context.Context) (*process, error) {
	if w.proc != nil {
		select {
		case <-w.proc.exited:
			w.proc.release()
			w.proc = nil
		default:
			return w.proc, nil
		}
	}

	p, err := w.spawn(ctx)
	if err != nil {
		return nil, err
	}

	w.proc = p

	return p, nil
}

// spawn starts the worker process.
func (w *Worker) spawn(ctx context.Context) (*process, error) {
	//nolint:gosec // The command comes from the operator's configuration.
	cmd := exec.Command(w.cfg.Command, w.cfg.Args...)
	cmd.Env = append(os.Environ(), w.cfg.Env...)

	stderrCtx, err := logger.WithLevelName(ctx, w.cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("provider log level: %w", err)
	}

	cmd.Stderr = newStderrLogger(stderrCtx)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open worker stdin: %w", err)
	}

	pipe, stdout, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()

		return nil, fmt.Errorf("open worker stdout: %w", err)
	}

	cmd.Stdout = stdout

	err = cmd.Start()
	// The child holds its own copy of the write end.
	_ = stdout.Close()

	if err != nil {
		_ = stdin.Close()
		_ = pipe.Close()

		return nil, fmt.Errorf("start worker %q: %w", w.cfg.Command, err)
	}

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		pipe:   pipe,
		stdout: bufio.NewReader(pipe),
		exited: make(chan struct{}),
	}

	logger.InfoKV(ctx, "Landmark worker started", "pid", cmd.Process.Pid, "command", w.cfg.Command)

	go func() {
		defer close(p.exited)

		if err := cmd.Wait(); err != nil {
			logger.DebugKV(ctx, "Landmark worker exited", "pid", cmd.Process.Pid, "error", err)
		}
	}()

	return p, nil
}

// discard kills the current process. Must be called with mu held.
func (w *Worker) discard(ctx context.Context, reason string) {
	if w.proc == nil {
		return
	}

	logger.WarnKV(ctx, "Restarting landmark worker", "pid", w.proc.cmd.Process.Pid, "reason", reason)

	w.proc.release()
	w.proc = nil
}

// release asks the process to exit by closing stdin, kills it and closes stdout.
func (p *process) release() {
	_ = p.stdin.Close()
	_ = p.cmd.Process.Kill()
	_ = p.pipe.Close()
}
