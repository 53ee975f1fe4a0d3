package worker

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/drowsiness-alarm/internal/logger"
)

// commLength is how much of an executable name Linux keeps in /proc/<pid>/stat.
const commLength = 15

// terminateStaleWorkers kills every process other than this one that
// isStaleWorker recognises as a worker started with name and args.
func terminateStaleWorkers(ctx context.Context, name string, args []string) error {
	processList, err := ps.Processes()
	if err != nil {
		return err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if !isStaleWorker(process.Executable(), commandLine(process.Pid()), name, args) {
			continue
		}

		var runningProcess *os.Process

		runningProcess, err = os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		if err = runningProcess.Kill(); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Terminated stale landmark worker", "pid", process.Pid(), "executable", name)
	}

	return nil
}

// isStaleWorker reports whether a process with the given executable and
// command line was started as name with args: the command line must end with
// args. cmdline is nil when it could not be read; such a process only matches
// when args is empty.
func isStaleWorker(executable string, cmdline []string, name string, args []string) bool {
	if executable != name && (len(executable) != commLength || !strings.HasPrefix(name, executable)) {
		return false
	}

	if len(args) == 0 {
		return true
	}

	// Shebang scripts and interpreter flags put extra words before args.
	if len(cmdline) <= len(args) {
		return false
	}

	return slices.Equal(cmdline[len(cmdline)-len(args):], args)
}

// commandLine returns the arguments of pid, or nil where /proc is unavailable.
func commandLine(pid int) []string {
	raw, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "cmdline"))
	if err != nil || len(raw) == 0 {
		return nil
	}

	return strings.Split(strings.TrimSuffix(string(raw), "\x00"), "\x00")
}

// stderrLogger forwards worker stderr to the logger line by line, mapping
// the usual "[LEVEL]" markers to log levels.
type stderrLogger struct {
	ctx context.Context //nolint:containedctx // Carries the logger for an exec.Cmd writer.

	mu      sync.Mutex
	pending bytes.Buffer
}

func newStderrLogger(ctx context.Context) *stderrLogger {
	return &stderrLogger{ctx: logger.WithName(ctx, "stderr")}
}

// Write logs every complete line in p and keeps the remainder.
func (s *stderrLogger) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending.Write(p)

	for {
		line, err := s.pending.ReadString('\n')
		if err != nil {
			// Incomplete line: put it back for the next write.
			rest := []byte(line)
			s.pending.Reset()
			s.pending.Write(rest)

			break
		}

		s.log(strings.TrimRight(line, "\r\n"))
	}

	return len(p), nil
}

func (s *stderrLogger) log(line string) {
	if line == "" {
		return
	}

	switch {
	case containsAny(line, "[ERROR]", "[CRITICAL]", "[FATAL]"):
		logger.ErrorKV(s.ctx, "Landmark worker error", "log", line)
	case containsAny(line, "[WARNING]", "[WARN]"):
		logger.WarnKV(s.ctx, "Landmark worker warning", "log", line)
	default:
		logger.DebugKV(s.ctx, "Landmark worker log", "log", line)
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, substr := range substrs {
		if strings.Contains(s, substr) {
			return true
		}
	}

	return false
}
