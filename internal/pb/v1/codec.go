package v1

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/drowsiness-alarm/internal/domain/control"
)

// ActorMetadataKey carries the calling actor as user@host.
const ActorMetadataKey = "x-actor"

var (
	// ErrMalformed is returned when a struct does not match the expected layout.
	ErrMalformed = errors.New("malformed message")
	// ErrActorMissing is returned when the request metadata carries no actor.
	ErrActorMissing = errors.New("actor metadata is missing")
)

// Struct field names.
const (
	fieldTimestamp    = "timestamp"
	fieldLastActor    = "last_actor"
	fieldHostname     = "hostname"
	fieldUsername     = "username"
	fieldMonitoring   = "monitoring"
	fieldMuted        = "muted"
	fieldSettings     = "settings"
	fieldRunning      = "running"
	fieldState        = "state"
	fieldFacePresent  = "face_present"
	fieldEAR          = "ear"
	fieldClosedFrames = "closed_frames"
	fieldSessionID    = "session_id"
	fieldTicks        = "ticks"
	fieldAlarms       = "alarms"
)

// AppendActor attaches actor to the outgoing metadata of ctx.
func AppendActor(ctx context.Context, actor *control.Actor) context.Context {
	return metadata.AppendToOutgoingContext(ctx, ActorMetadataKey, actor.String())
}

// ActorFromContext extracts the actor from incoming request metadata.
func ActorFromContext(ctx context.Context) (*control.Actor, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, ErrActorMissing
	}

	values := md.Get(ActorMetadataKey)
	if len(values) == 0 {
		return nil, ErrActorMissing
	}

	return control.ParseActor(values[0])
}

// SettingsToStruct encodes settings.
func SettingsToStruct(settings *control.Settings) (*structpb.Struct, error) {
	return structpb.NewStruct(settingsFields(settings))
}

// SettingsFromStruct decodes settings.
func SettingsFromStruct(s *structpb.Struct) (*control.Settings, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: settings are empty", ErrMalformed)
	}

	fields := s.GetFields()
	settings := &control.Settings{
		Monitoring: fields[fieldMonitoring].GetBoolValue(),
		Muted:      fields[fieldMuted].GetBoolValue(),
	}

	if raw := fields[fieldTimestamp].GetStringValue(); raw != "" {
		timestamp, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp: %w", ErrMalformed, err)
		}

		settings.Timestamp = timestamp
	}

	if actor := fields[fieldLastActor].GetStructValue(); actor != nil {
		settings.LastActor = &control.Actor{
			Hostname: actor.GetFields()[fieldHostname].GetStringValue(),
			Username: actor.GetFields()[fieldUsername].GetStringValue(),
		}
	}

	return settings, nil
}

// StatusToStruct encodes status.
func StatusToStruct(status *control.Status) (*structpb.Struct, error) {
	fields := map[string]any{
		fieldRunning:      status.Running,
		fieldState:        status.State,
		fieldFacePresent:  status.FacePresent,
		fieldClosedFrames: status.ClosedFrames,
		fieldTicks:        status.Ticks,
		fieldAlarms:       status.Alarms,
	}

	if status.FacePresent {
		fields[fieldEAR] = status.EAR
	}

	if status.SessionID != "" {
		fields[fieldSessionID] = status.SessionID
	}

	if status.Settings != nil {
		fields[fieldSettings] = settingsFields(status.Settings)
	}

	return structpb.NewStruct(fields)
}

// StatusFromStruct decodes status.
func StatusFromStruct(s *structpb.Struct) (*control.Status, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: status is empty", ErrMalformed)
	}

	fields := s.GetFields()
	status := &control.Status{
		Running:      fields[fieldRunning].GetBoolValue(),
		State:        fields[fieldState].GetStringValue(),
		FacePresent:  fields[fieldFacePresent].GetBoolValue(),
		EAR:          fields[fieldEAR].GetNumberValue(),
		ClosedFrames: int(fields[fieldClosedFrames].GetNumberValue()),
		SessionID:    fields[fieldSessionID].GetStringValue(),
		Ticks:        uint64(fields[fieldTicks].GetNumberValue()),
		Alarms:       uint64(fields[fieldAlarms].GetNumberValue()),
	}

	if settings := fields[fieldSettings].GetStructValue(); settings != nil {
		decoded, err := SettingsFromStruct(settings)
		if err != nil {
			return nil, err
		}

		status.Settings = decoded
	}

	return status, nil
}

func settingsFields(settings *control.Settings) map[string]any {
	fields := map[string]any{
		fieldMonitoring: settings.Monitoring,
		fieldMuted:      settings.Muted,
	}

	if !settings.Timestamp.IsZero() {
		fields[fieldTimestamp] = settings.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	if settings.LastActor != nil {
		fields[fieldLastActor] = map[string]any{
			fieldHostname: settings.LastActor.Hostname,
			fieldUsername: settings.LastActor.Username,
		}
	}

	return fields
}
