package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/drowsiness-alarm/internal/config"
	"github.com/oshokin/drowsiness-alarm/internal/domain/control"
	pb "github.com/oshokin/drowsiness-alarm/internal/pb/v1"
)

// Repository defines persistence operations for the control settings.
type Repository interface {
	Load(ctx context.Context) (*control.Settings, error)
	Save(ctx context.Context, settings *control.Settings) error
}

// FileRepository persists the settings to a JSON file on disk.
// JSON is produced and consumed via protojson over the same struct layout
// the control API replies with.
type FileRepository struct {
	// path is the filesystem location of the JSON settings file.
	path string
	// mu protects concurrent access to the settings file.
	mu sync.Mutex
}

// ErrNotFound is returned when the settings file does not exist yet.
var ErrNotFound = errors.New("settings not found")

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the settings from disk.
func (r *FileRepository) Load(_ context.Context) (*control.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read settings file: %w", err)
	}

	var stored structpb.Struct
	if err = protojson.Unmarshal(contents, &stored); err != nil {
		return nil, fmt.Errorf("decode settings file: %w", err)
	}

	return pb.SettingsFromStruct(&stored)
}

// Save writes the settings to disk atomically: a temporary file is written
// next to the target and renamed over it.
func (r *FileRepository) Save(_ context.Context, settings *control.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := pb.SettingsToStruct(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	data, err := protojson.MarshalOptions{Multiline: true, EmitUnpopulated: true}.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp := r.path + ".tmp"
	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}

	if err = os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("replace settings file: %w", err)
	}

	return nil
}
