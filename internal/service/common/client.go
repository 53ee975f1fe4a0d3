//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/drowsiness-alarm/internal/config"
	"github.com/oshokin/drowsiness-alarm/internal/domain/control"
	pb "github.com/oshokin/drowsiness-alarm/internal/pb/v1"
)

// Client wraps the gRPC MonitorService client with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the daemon.
	conn *grpc.ClientConn
	// api is the MonitorService client interface.
	api pb.MonitorServiceClient

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errActorRequired is returned when an actor is not provided but is required for the operation.
	errActorRequired = errors.New("actor must be provided")
)

// Dial establishes a gRPC connection to the daemon.
// Note: this uses insecure transport credentials; the control address is
// expected to be local or on a trusted network.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial drowsiness monitor: %w", err)
	}

	client := &Client{
		conn:        conn,
		api:         pb.NewMonitorServiceClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Status retrieves the live daemon status.
func (c *Client) Status(ctx context.Context) (*control.Status, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.GetStatus(callCtx, new(emptypb.Empty))
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}

	return pb.StatusFromStruct(resp)
}

// SetMonitoring starts or stops the detection loop on behalf of actor.
func (c *Client) SetMonitoring(ctx context.Context, actor *control.Actor, enabled bool) (*control.Status, error) {
	if actor == nil {
		return nil, errActorRequired
	}

	return c.set(ctx, actor, enabled, "set monitoring", c.api.SetMonitoring)
}

// SetMuted toggles alarm emission on behalf of actor.
func (c *Client) SetMuted(ctx context.Context, actor *control.Actor, muted bool) (*control.Status, error) {
	if actor == nil {
		return nil, errActorRequired
	}

	return c.set(ctx, actor, muted, "set mute", c.api.SetMuted)
}

// set performs one switch call.
func (c *Client) set(
	ctx context.Context,
	actor *control.Actor,
	value bool,
	op string,
	call func(context.Context, *wrapperspb.BoolValue, ...grpc.CallOption) (*structpb.Struct, error),
) (*control.Status, error) {
	callCtx, cancel := c.callContext(pb.AppendActor(ctx, actor))
	defer cancel()

	resp, err := call(callCtx, wrapperspb.Bool(value))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return pb.StatusFromStruct(resp)
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
