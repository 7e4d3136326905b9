// Package grpcapi implements PluginService, the gRPC counterpart of the
// admin HTTP API's plugin endpoints: list what's discovered, invoke one by
// name, and stream its run's events back to the caller. It is the Go
// counterpart of the teacher's internal/core/services/grpc package, built
// against capgate's own plugin loader and event log instead of the
// teacher's device-report ingestion stream.
//
// This file imports api/proto's generated package, produced by running
//
//	protoc --go_out=. --go-grpc_out=. api/proto/capgate.proto
//
// against api/proto/capgate.proto. That generated code is not checked in
// here; building this package requires running codegen first.
package grpcapi

import (
	"context"
	"fmt"
	"time"

	capgate_grpc "github.com/nexusdevtools/capgate/api/proto"
	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/core/runctx"
	"google.golang.org/grpc"
)

// Server implements capgate_grpc.PluginServiceServer.
type Server struct {
	capgate_grpc.UnimplementedPluginServiceServer

	plugins ports.PluginLoader
	events  ports.EventLog
	rc      *runctx.RunContext
}

// NewServer returns a *grpc.Server with PluginService registered against
// the given plugin loader, event log, and run context.
func NewServer(plugins ports.PluginLoader, events ports.EventLog, rc *runctx.RunContext) *grpc.Server {
	s := grpc.NewServer()
	capgate_grpc.RegisterPluginServiceServer(s, &Server{plugins: plugins, events: events, rc: rc})
	return s
}

func (s *Server) ListPlugins(ctx context.Context, req *capgate_grpc.ListPluginsRequest) (*capgate_grpc.ListPluginsResponse, error) {
	infos := s.plugins.List()
	resp := &capgate_grpc.ListPluginsResponse{Plugins: make([]*capgate_grpc.PluginDescriptor, 0, len(infos))}
	for _, info := range infos {
		resp.Plugins = append(resp.Plugins, &capgate_grpc.PluginDescriptor{
			Name:        info.Name,
			Description: info.Description,
			EntryPoint:  info.EntryPoint,
		})
	}
	return resp, nil
}

func (s *Server) Invoke(ctx context.Context, req *capgate_grpc.InvokeRequest) (*capgate_grpc.InvokeResponse, error) {
	ok, err := s.plugins.Invoke(ctx, req.PluginName, s.rc, req.Args)
	if err != nil {
		return &capgate_grpc.InvokeResponse{Accepted: false, Error: err.Error()}, nil
	}
	return &capgate_grpc.InvokeResponse{Accepted: ok}, nil
}

func (s *Server) StreamEvents(req *capgate_grpc.StreamEventsRequest, stream capgate_grpc.PluginService_StreamEventsServer) error {
	ctx := stream.Context()
	afterID := req.AfterEventId

	for {
		events, err := s.events.Since(ctx, req.RunId, afterID)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := stream.Send(toWireEvent(ev)); err != nil {
				return err
			}
			afterID = ev.ID
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func toWireEvent(ev domain.Event) *capgate_grpc.WorkflowEvent {
	fields := make(map[string]string, len(ev.Fields))
	for k, v := range ev.Fields {
		fields[k] = toFieldString(v)
	}
	return &capgate_grpc.WorkflowEvent{
		Id:        ev.ID,
		RunId:     ev.RunID,
		UnixTime:  ev.Time.Unix(),
		Component: ev.Component,
		Kind:      ev.Kind,
		Message:   ev.Message,
		Fields:    fields,
	}
}

func toFieldString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
