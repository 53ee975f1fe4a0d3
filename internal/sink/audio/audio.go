// Package audio plays the alarm tone through an external player command.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/oshokin/drowsiness-alarm/internal/config"
	"github.com/oshokin/drowsiness-alarm/internal/domain/drowsiness"
	"github.com/oshokin/drowsiness-alarm/internal/logger"
)

var (
	// ErrUnsupportedOS indicates there is no default player for the current OS.
	ErrUnsupportedOS = errors.New("unsupported operating system")
	// errSoundFileRequired is returned when the default player has nothing to play.
	errSoundFileRequired = errors.New("alarm sound file must be provided")
)

// Player starts the configured command on StartAlarm and Pulse and kills it
// on StopAlarm. By default at most one tone is in flight and signals arriving
// while it plays are absorbed. With overlap every signal starts its own tone.
type Player struct {
	name    string
	args    []string
	overlap bool

	mu sync.Mutex
	// tones maps each started player process to the channel closed when it exits.
	tones map[*exec.Cmd]chan struct{}
}

// New builds a player from cfg. An empty cfg.Player selects the built-in
// player of the current OS:
// - Linux:   `paplay <sound_file>`
// - macOS:   `afplay <sound_file>`
// - Windows: PowerShell's Media.SoundPlayer.
func New(cfg config.Alarm) (*Player, error) {
	name, args, err := playerCommand(runtime.GOOS, cfg.Player, cfg.SoundFile)
	if err != nil {
		return nil, err
	}

	return &Player{
		name:    name,
		args:    args,
		overlap: cfg.Overlap,
		tones:   make(map[*exec.Cmd]chan struct{}),
	}, nil
}

// playerCommand resolves the command line for goos.
func playerCommand(goos, player, soundFile string) (string, []string, error) {
	if fields := strings.Fields(player); len(fields) > 0 {
		args := fields[1:]
		if soundFile != "" {
			args = append(args, soundFile)
		}

		return fields[0], args, nil
	}

	if soundFile == "" {
		return "", nil, errSoundFileRequired
	}

	osName := strings.ToLower(goos)

	switch {
	case strings.Contains(osName, "linux"):
		return "paplay", []string{soundFile}, nil
	case strings.Contains(osName, "darwin"):
		return "afplay", []string{soundFile}, nil
	case strings.Contains(osName, "windows"):
		script := fmt.Sprintf("(New-Object Media.SoundPlayer '%s').PlaySync()", strings.ReplaceAll(soundFile, "'", "''"))

		return "powershell.exe", []string{"-NoProfile", "-Command", script}, nil
	default:
		return "", nil, fmt.Errorf("no default alarm player for %s: %w", goos, ErrUnsupportedOS)
	}
}

// Emit plays or silences the tone.
func (p *Player) Emit(ctx context.Context, action drowsiness.Action) error {
	switch action.Signal {
	case drowsiness.StartAlarm, drowsiness.Pulse:
		return p.play(logger.WithName(ctx, "audio"))
	case drowsiness.StopAlarm:
		p.Silence()
	case drowsiness.NoOp:
	}

	return nil
}

// Playing reports whether a tone is in flight.
func (p *Player) Playing() bool {
	return p.Tones() > 0
}

// Tones returns the number of tones in flight.
func (p *Player) Tones() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pruneLocked()

	return len(p.tones)
}

// Silence kills every tone in flight and waits for them to exit.
func (p *Player) Silence() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for cmd, done := range p.tones {
		_ = cmd.Process.Kill()
		<-done

		delete(p.tones, cmd)
	}
}

// play starts a tone unless one is running and overlapping is off.
func (p *Player) play(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pruneLocked()

	if !p.overlap && len(p.tones) > 0 {
		return nil
	}

	// The tone is stopped by Silence, not by the tick context.
	cmd := exec.Command(p.name, p.args...) //nolint:gosec,noctx // Command comes from the operator's configuration.
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start alarm player %q: %w", p.name, err)
	}

	done := make(chan struct{})
	p.tones[cmd] = done

	go func() {
		defer close(done)

		if err := cmd.Wait(); err != nil {
			logger.DebugKV(ctx, "Alarm player exited", "error", err)
		}
	}()

	return nil
}

// pruneLocked forgets tones that finished on their own. Must be called with mu held.
func (p *Player) pruneLocked() {
	for cmd, done := range p.tones {
		select {
		case <-done:
			delete(p.tones, cmd)
		default:
		}
	}
}
