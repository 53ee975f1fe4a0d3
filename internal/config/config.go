package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the drowsiness monitor and its control clients.
type Config struct {
	// ControlAddress is the gRPC address of the control API.
	ControlAddress string `yaml:"control_addr"`
	// ObserverAddress is the HTTP address serving the websocket snapshot feed.
	// Empty disables the feed.
	ObserverAddress string `yaml:"ws_addr"`
	// SettingsFile is the path to the JSON file storing monitoring/mute settings.
	SettingsFile string `yaml:"settings_file"`
	// Timeout is the duration for network operations and RPC calls.
	Timeout time.Duration `yaml:"timeout"`
	// Detection holds the decision engine thresholds.
	Detection Detection `yaml:"detection"`
	// Source describes where frames come from.
	Source Source `yaml:"source"`
	// Provider describes the landmark worker process.
	Provider Provider `yaml:"provider"`
	// Alarm configures the local audible sink.
	Alarm Alarm `yaml:"alarm"`
	// MQTT configures the broker sink. Empty broker disables it.
	MQTT MQTT `yaml:"mqtt"`
	// Log configures the global logger.
	Log Log `yaml:"log"`
}

// Detection holds the eye-closure thresholds.
type Detection struct {
	// EARThreshold is the eye aspect ratio below which a frame counts as closed.
	EARThreshold float64 `yaml:"ear_threshold"`
	// FrameThreshold is the number of consecutive closed frames that raises the alarm.
	FrameThreshold int `yaml:"frame_threshold"`
	// ReleaseFrames is the number of consecutive open or faceless frames that clears the alarm.
	ReleaseFrames int `yaml:"release_frames"`
	// HoldOnFaceLoss keeps the alarm raised while no face is visible.
	HoldOnFaceLoss bool `yaml:"hold_on_face_loss"`
}

// Source configures the frame source.
type Source struct {
	// ImagesDir is the directory replayed as a looping frame stream.
	ImagesDir string `yaml:"images_dir"`
	// FPS is the frame opportunity rate.
	FPS float64 `yaml:"fps"`
	// MaxWidth downsizes frames wider than this before inference. Zero keeps the original size.
	MaxWidth int `yaml:"max_width"`
	// Loop restarts the directory after the last image instead of ending the session.
	Loop bool `yaml:"loop"`
}

// Provider configures the external landmark worker.
type Provider struct {
	// Command is the worker executable.
	Command string `yaml:"command"`
	// Args are passed to Command.
	Args []string `yaml:"args"`
	// Env is appended to the daemon environment for the worker.
	Env []string `yaml:"env"`
	// KillStale terminates leftover workers on start. A process is a leftover
	// worker when its executable is StaleExecutable and, where the command line
	// can be read (Linux), its command line also ends with Args.
	//
	// Beware of interpreters: with command "python3" and no args, every python3
	// process of the host matches. Set Args or a dedicated StaleExecutable.
	KillStale bool `yaml:"kill_stale"`
	// StaleExecutable is the executable name matched by KillStale. Empty means
	// the base name of Command.
	StaleExecutable string `yaml:"stale_executable"`
	// LogLevel filters the worker's relayed stderr independently of log.level.
	// Empty follows the global level.
	LogLevel string `yaml:"log_level"`
}

// Alarm configures the audible sink.
type Alarm struct {
	// Player is the command that plays SoundFile once. Empty disables audio.
	Player string `yaml:"player"`
	// SoundFile is passed as the last argument to Player.
	SoundFile string `yaml:"sound_file"`
	// Muted is the initial mute state when no persisted settings exist.
	Muted bool `yaml:"muted"`
	// Overlap starts a new tone on every StartAlarm and Pulse even while earlier
	// ones still play. Off keeps at most one tone in flight.
	Overlap bool `yaml:"overlap"`
}

// MQTT configures the broker sink.
type MQTT struct {
	// Broker is host:port of the broker.
	Broker string `yaml:"broker"`
	// ClientID identifies this monitor on the broker.
	ClientID string `yaml:"client_id"`
	// Topic is the prefix under which alarm and session events are published.
	Topic string `yaml:"topic"`
	// QoS is the MQTT quality of service for published events.
	QoS byte `yaml:"qos"`
}

// Log configures the global logger.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is console or json.
	Format string `yaml:"format"`
}

const (
	// DefaultConfigFilename is the default filename for monitor settings.
	DefaultConfigFilename = "drowsiness-alarm.yaml"

	// DefaultSettingsFilename is the default filename for persisted control settings.
	DefaultSettingsFilename = "drowsiness-alarm-settings.json"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// DefaultEARThreshold is the eye aspect ratio separating open from closed eyes.
	DefaultEARThreshold = 0.25

	// DefaultFrameThreshold is the closed-frame run length that raises the alarm.
	DefaultFrameThreshold = 10

	// DefaultReleaseFrames clears the alarm on the first open or faceless frame.
	DefaultReleaseFrames = 1

	// DefaultFPS is the frame opportunity rate of the directory source.
	DefaultFPS = 15

	// DefaultMQTTTopic is the topic prefix for published events.
	DefaultMQTTTopic = "drowsiness"

	// envPrefix prefixes every environment override.
	envPrefix = "DROWSY_"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errControlAddressRequired is returned when the control address is missing.
	errControlAddressRequired = errors.New("control address must be provided")
	// errInvalidThreshold is returned for out-of-range detection thresholds.
	errInvalidThreshold = errors.New("invalid detection threshold")
	// errInvalidQoS is returned for MQTT QoS outside 0..2.
	errInvalidQoS = errors.New("mqtt qos must be 0, 1 or 2")
)

// Load reads configuration from the provided path, applies DROWSY_* environment
// overrides (optionally sourced from a .env file) and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	// A missing .env file is normal; the process environment is used as is.
	_ = godotenv.Load() //nolint:errcheck // Optional file.

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes Config to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and fills defaults.
//
//nolint:cyclop // Linear list of field checks.
func Validate(cfg *Config) error {
	if cfg.ControlAddress == "" {
		return errControlAddressRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.ControlAddress); err != nil {
		return fmt.Errorf("invalid control address: %w", err)
	}

	if cfg.ObserverAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", cfg.ObserverAddress); err != nil {
			return fmt.Errorf("invalid websocket address: %w", err)
		}
	}

	// Set default timeout if not specified
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.SettingsFile == "" {
		cfg.SettingsFile = DefaultSettingsFilename
	}

	if err := cfg.Detection.validate(); err != nil {
		return err
	}

	if cfg.Source.FPS <= 0 {
		cfg.Source.FPS = DefaultFPS
	}

	if cfg.Source.MaxWidth < 0 {
		return fmt.Errorf("%w: source max_width must not be negative", errInvalidThreshold)
	}

	if cfg.MQTT.QoS > 2 {
		return errInvalidQoS
	}

	if cfg.MQTT.Broker != "" && cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = DefaultMQTTTopic
	}

	return nil
}

// validate fills detection defaults and rejects impossible values.
func (d *Detection) validate() error {
	if d.EARThreshold == 0 {
		d.EARThreshold = DefaultEARThreshold
	}

	if d.EARThreshold < 0 || d.EARThreshold >= 1 {
		return fmt.Errorf("%w: ear_threshold %v outside (0, 1)", errInvalidThreshold, d.EARThreshold)
	}

	if d.FrameThreshold == 0 {
		d.FrameThreshold = DefaultFrameThreshold
	}

	if d.FrameThreshold < 1 {
		return fmt.Errorf("%w: frame_threshold %d", errInvalidThreshold, d.FrameThreshold)
	}

	if d.ReleaseFrames == 0 {
		d.ReleaseFrames = DefaultReleaseFrames
	}

	if d.ReleaseFrames < 1 {
		return fmt.Errorf("%w: release_frames %d", errInvalidThreshold, d.ReleaseFrames)
	}

	return nil
}

// applyEnv overrides fields from DROWSY_* variables found by lookup.
//
//nolint:cyclop // One branch per supported variable.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	str("CONTROL_ADDR", &cfg.ControlAddress)
	str("WS_ADDR", &cfg.ObserverAddress)
	str("SETTINGS_FILE", &cfg.SettingsFile)
	str("IMAGES_DIR", &cfg.Source.ImagesDir)
	str("PROVIDER_COMMAND", &cfg.Provider.Command)
	str("MQTT_BROKER", &cfg.MQTT.Broker)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if v, ok := lookup(envPrefix + "EAR_THRESHOLD"); ok && v != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("parse %sEAR_THRESHOLD: %w", envPrefix, err)
		}

		cfg.Detection.EARThreshold = parsed
	}

	if v, ok := lookup(envPrefix + "FRAME_THRESHOLD"); ok && v != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %sFRAME_THRESHOLD: %w", envPrefix, err)
		}

		cfg.Detection.FrameThreshold = parsed
	}

	if v, ok := lookup(envPrefix + "MUTED"); ok && v != "" {
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %sMUTED: %w", envPrefix, err)
		}

		cfg.Alarm.Muted = parsed
	}

	return nil
}
