// Package v1 declares the drowsiness.v1.MonitorService gRPC contract.
//
// The service is described by hand over protobuf well-known types: switches
// travel as google.protobuf.BoolValue, replies as google.protobuf.Struct and
// the calling actor as "x-actor" request metadata. Codecs between the
// structs and the control domain live in codec.go.
package v1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "drowsiness.v1.MonitorService"

	// SetMonitoringMethod starts or stops the detection loop.
	SetMonitoringMethod = "/" + ServiceName + "/SetMonitoring"
	// SetMutedMethod toggles alarm emission.
	SetMutedMethod = "/" + ServiceName + "/SetMuted"
	// GetStatusMethod reads the live status.
	GetStatusMethod = "/" + ServiceName + "/GetStatus"
)

// MonitorServiceServer is the server API for MonitorService.
type MonitorServiceServer interface {
	SetMonitoring(ctx context.Context, req *wrapperspb.BoolValue) (*structpb.Struct, error)
	SetMuted(ctx context.Context, req *wrapperspb.BoolValue) (*structpb.Struct, error)
	GetStatus(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// UnimplementedMonitorServiceServer can be embedded to have forward compatible implementations.
type UnimplementedMonitorServiceServer struct{}

// SetMonitoring returns Unimplemented.
func (UnimplementedMonitorServiceServer) SetMonitoring(context.Context, *wrapperspb.BoolValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SetMonitoring not implemented")
}

// SetMuted returns Unimplemented.
func (UnimplementedMonitorServiceServer) SetMuted(context.Context, *wrapperspb.BoolValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SetMuted not implemented")
}

// GetStatus returns Unimplemented.
func (UnimplementedMonitorServiceServer) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStatus not implemented")
}

// MonitorServiceDesc is the grpc.ServiceDesc for MonitorService.
//
//nolint:gochecknoglobals // Service descriptors are package-level by gRPC convention.
var MonitorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MonitorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SetMonitoring", Handler: setMonitoringHandler},
		{MethodName: "SetMuted", Handler: setMutedHandler},
		{MethodName: "GetStatus", Handler: getStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "drowsiness/v1/monitor.proto",
}

// RegisterMonitorServiceServer registers srv on s.
func RegisterMonitorServiceServer(s grpc.ServiceRegistrar, srv MonitorServiceServer) {
	s.RegisterService(&MonitorServiceDesc, srv)
}

func setMonitoringHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(wrapperspb.BoolValue)
	if err := dec(in); err != nil {
		return nil, err
	}

	api := srv.(MonitorServiceServer) //nolint:forcetypeassert // Guaranteed by HandlerType.
	if interceptor == nil {
		return api.SetMonitoring(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SetMonitoringMethod}

	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return api.SetMonitoring(ctx, req.(*wrapperspb.BoolValue)) //nolint:forcetypeassert // Decoded above.
	})
}

func setMutedHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(wrapperspb.BoolValue)
	if err := dec(in); err != nil {
		return nil, err
	}

	api := srv.(MonitorServiceServer) //nolint:forcetypeassert // Guaranteed by HandlerType.
	if interceptor == nil {
		return api.SetMuted(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SetMutedMethod}

	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return api.SetMuted(ctx, req.(*wrapperspb.BoolValue)) //nolint:forcetypeassert // Decoded above.
	})
}

func getStatusHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	api := srv.(MonitorServiceServer) //nolint:forcetypeassert // Guaranteed by HandlerType.
	if interceptor == nil {
		return api.GetStatus(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetStatusMethod}

	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return api.GetStatus(ctx, req.(*emptypb.Empty)) //nolint:forcetypeassert // Decoded above.
	})
}

// MonitorServiceClient is the client API for MonitorService.
type MonitorServiceClient interface {
	SetMonitoring(ctx context.Context, in *wrapperspb.BoolValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	SetMuted(ctx context.Context, in *wrapperspb.BoolValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type monitorServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewMonitorServiceClient creates a client over cc.
//
//nolint:ireturn // Mirrors generated gRPC constructors.
func NewMonitorServiceClient(cc grpc.ClientConnInterface) MonitorServiceClient {
	return &monitorServiceClient{cc: cc}
}

func (c *monitorServiceClient) SetMonitoring(
	ctx context.Context,
	in *wrapperspb.BoolValue,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SetMonitoringMethod, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *monitorServiceClient) SetMuted(
	ctx context.Context,
	in *wrapperspb.BoolValue,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SetMutedMethod, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *monitorServiceClient) GetStatus(
	ctx context.Context,
	in *emptypb.Empty,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetStatusMethod, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}
