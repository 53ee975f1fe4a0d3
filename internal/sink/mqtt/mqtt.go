// Package mqtt publishes alarm events and finished session summaries to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/drowsiness-alarm/internal/config"
	"github.com/oshokin/drowsiness-alarm/internal/domain/drowsiness"
	"github.com/oshokin/drowsiness-alarm/internal/logger"
)

const (
	// AlarmTopic is appended to the configured prefix for alarm start/stop events.
	AlarmTopic = "alarm"
	// SessionTopic is appended to the configured prefix for session summaries.
	SessionTopic = "session"

	// disconnectQuiesce is the grace period in milliseconds for in-flight messages on Close.
	disconnectQuiesce = 250
)

var (
	// errTimeout is returned when the broker does not acknowledge in time.
	errTimeout = errors.New("mqtt operation timed out")
	// errNotConnected is returned when publishing while the client is offline.
	errNotConnected = errors.New("mqtt not connected")
)

// AlarmEvent is published on StartAlarm and StopAlarm.
type AlarmEvent struct {
	Event     string    `json:"event"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
	Pulses    int       `json:"pulses"`
}

// SessionSummary describes a finished alarm session.
type SessionSummary struct {
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	DurationMS int64     `json:"duration_ms"`
	Pulses     int       `json:"pulses"`
	MinEAR     float64   `json:"min_ear"`
	IsDrowsy   bool      `json:"is_drowsy"`
	Severity   string    `json:"severity"`
}

// Sink publishes alarm events. Pulses stay local and are not published.
type Sink struct {
	client  paho.Client
	topic   string
	qos     byte
	timeout time.Duration
}

// New wraps a connected client.
func New(client paho.Client, topic string, qos byte, timeout time.Duration) *Sink {
	return &Sink{
		client:  client,
		topic:   topic,
		qos:     qos,
		timeout: timeout,
	}
}

// Connect dials the broker from cfg with automatic reconnects.
func Connect(ctx context.Context, cfg config.MQTT, timeout time.Duration) (*Sink, error) {
	ctx = logger.WithName(ctx, "mqtt")

	opts := paho.NewClientOptions()
	opts.AddBroker("tcp://" + cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(paho.Client) {
		logger.InfoKV(ctx, "MQTT connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}

	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.WarnKV(ctx, "MQTT connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}

	client := paho.NewClient(opts)

	logger.InfoKV(ctx, "Connecting to MQTT broker", "broker", cfg.Broker)

	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, errTimeout)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}

	return New(client, cfg.Topic, cfg.QoS, timeout), nil
}

// Emit publishes StartAlarm and StopAlarm events, and a session summary on StopAlarm.
func (s *Sink) Emit(ctx context.Context, action drowsiness.Action) error {
	if action.Session == nil {
		return nil
	}

	var event string

	switch action.Signal {
	case drowsiness.StartAlarm:
		event = "start"
	case drowsiness.StopAlarm:
		event = "stop"
	case drowsiness.NoOp, drowsiness.Pulse:
		return nil
	}

	session := action.Session

	err := s.publish(AlarmTopic, AlarmEvent{
		Event:     event,
		SessionID: session.ID.String(),
		At:        time.Now().UTC(),
		Pulses:    session.Pulses,
	})
	if err != nil {
		return err
	}

	if action.Signal != drowsiness.StopAlarm {
		return nil
	}

	if err = s.publish(SessionTopic, Summarize(session)); err != nil {
		return err
	}

	logger.DebugKV(logger.WithName(ctx, "mqtt"), "Session summary published", "session_id", session.ID.String())

	return nil
}

// Close disconnects from the broker.
func (s *Sink) Close() {
	if s.client.IsConnected() {
		s.client.Disconnect(disconnectQuiesce)
	}
}

// Summarize converts a finished session to its published form.
func Summarize(session *drowsiness.Session) SessionSummary {
	duration := session.Duration(session.EndedAt)

	return SessionSummary{
		SessionID:  session.ID.String(),
		StartedAt:  session.StartedAt.UTC(),
		EndedAt:    session.EndedAt.UTC(),
		DurationMS: duration.Milliseconds(),
		Pulses:     session.Pulses,
		MinEAR:     session.MinScore,
		IsDrowsy:   session.Severity != drowsiness.SeverityNone,
		Severity:   string(session.Severity),
	}
}

// publish sends v as JSON to the topic under the configured prefix.
func (s *Sink) publish(suffix string, v any) error {
	if !s.client.IsConnected() {
		return errNotConnected
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", suffix, err)
	}

	topic := s.topic + "/" + suffix

	token := s.client.Publish(topic, s.qos, false, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("publish to %s: %w", topic, errTimeout)
	}

	if err = token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	return nil
}
