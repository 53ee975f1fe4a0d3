package monitor

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/drowsiness-alarm/internal/domain/control"
	"github.com/oshokin/drowsiness-alarm/internal/logger"
	pb "github.com/oshokin/drowsiness-alarm/internal/pb/v1"
)

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	SetMonitoring(ctx context.Context, actor *control.Actor, enabled bool) (*control.Status, error)
	SetMuted(ctx context.Context, actor *control.Actor, muted bool) (*control.Status, error)
	Status(ctx context.Context) *control.Status
}

// Server implements the MonitorService gRPC API.
type Server struct {
	pb.UnimplementedMonitorServiceServer

	// service provides the business logic for control operations.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// SetMonitoring starts or stops the detection loop.
func (s *Server) SetMonitoring(ctx context.Context, req *wrapperspb.BoolValue) (*structpb.Struct, error) {
	actor, err := requestActor(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := s.service.SetMonitoring(ctx, actor, req.GetValue())
	if err != nil {
		logger.ErrorKV(ctx, "Unable to switch monitoring", "actor", actor.String(), "error", err)

		return nil, status.Error(codes.Internal, "unable to switch monitoring")
	}

	return toProtoStatus(result)
}

// SetMuted toggles alarm emission.
func (s *Server) SetMuted(ctx context.Context, req *wrapperspb.BoolValue) (*structpb.Struct, error) {
	actor, err := requestActor(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := s.service.SetMuted(ctx, actor, req.GetValue())
	if err != nil {
		logger.ErrorKV(ctx, "Unable to switch mute", "actor", actor.String(), "error", err)

		return nil, status.Error(codes.Internal, "unable to switch mute")
	}

	return toProtoStatus(result)
}

// GetStatus returns the live status.
func (s *Server) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toProtoStatus(s.service.Status(ctx))
}

// requestActor validates a switch request and extracts its actor.
func requestActor(ctx context.Context, req *wrapperspb.BoolValue) (*control.Actor, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	actor, err := pb.ActorFromContext(ctx)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "actor is required: %v", err)
	}

	return actor, nil
}

// toProtoStatus converts a control.Status to its protobuf struct.
func toProtoStatus(st *control.Status) (*structpb.Struct, error) {
	if st == nil {
		return new(structpb.Struct), nil
	}

	result, err := pb.StatusToStruct(st)
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode status")
	}

	return result, nil
}
