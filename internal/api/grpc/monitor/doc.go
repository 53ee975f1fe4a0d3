// Package monitor implements the gRPC transport for the drowsiness control service.
//
// It adapts control domain types to protobuf structs and exposes a server that
// calls into a provided business-service interface.
package monitor
