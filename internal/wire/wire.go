// Package wire describes the agent's gRPC service. Messages are
// google.protobuf.Struct values so no generated code is required; the
// helpers here convert them to and from agent types.
package wire

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/antonkrylov/logwise/internal/agent"
)

const ServiceName = "logwise.v1.AgentService"

const (
	runMethod    = "/" + ServiceName + "/Run"
	statusMethod = "/" + ServiceName + "/Status"
	resetMethod  = "/" + ServiceName + "/Reset"
)

// Status is the agent's health report, shared by the HTTP and gRPC surfaces.
type Status struct {
	State     string    `json:"state"`
	Cwd       string    `json:"cwd"`
	Pid       int       `json:"pid"`
	Restarts  int       `json:"restarts"`
	StartedAt time.Time `json:"started_at"`
}

func StatusFrom(st agent.Status) Status {
	return Status{
		State:     st.State.String(),
		Cwd:       st.Cwd,
		Pid:       st.Pid,
		Restarts:  st.Restarts,
		StartedAt: st.StartedAt.UTC(),
	}
}

// AgentServer is implemented by the agent and registered with RegisterAgentServer.
type AgentServer interface {
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterAgentServer(s grpc.ServiceRegistrar, srv AgentServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: unaryHandler(runMethod, AgentServer.Run)},
		{MethodName: "Status", Handler: unaryHandler(statusMethod, AgentServer.Status)},
		{MethodName: "Reset", Handler: unaryHandler(resetMethod, AgentServer.Reset)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "logwise/v1/agent.proto",
}

type unaryFunc func(AgentServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryFunc) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AgentServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AgentServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AgentClient calls the agent over an established connection.
type AgentClient struct {
	cc grpc.ClientConnInterface
}

func NewAgentClient(cc grpc.ClientConnInterface) *AgentClient {
	return &AgentClient{cc: cc}
}

func (c *AgentClient) Run(ctx context.Context, command string, opts ...grpc.CallOption) (agent.Result, error) {
	in, err := structpb.NewStruct(map[string]any{"command": command})
	if err != nil {
		return agent.Result{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, runMethod, in, out, opts...); err != nil {
		return agent.Result{}, err
	}
	return ResultFromStruct(out), nil
}

func (c *AgentClient) Status(ctx context.Context, opts ...grpc.CallOption) (Status, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, statusMethod, &structpb.Struct{}, out, opts...); err != nil {
		return Status{}, err
	}
	return StatusFromStruct(out), nil
}

func (c *AgentClient) Reset(ctx context.Context, opts ...grpc.CallOption) (Status, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, resetMethod, &structpb.Struct{}, out, opts...); err != nil {
		return Status{}, err
	}
	return StatusFromStruct(out), nil
}

// CommandFrom extracts the command field of a Run request.
func CommandFrom(in *structpb.Struct) string {
	return in.GetFields()["command"].GetStringValue()
}

func ResultToStruct(r agent.Result) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"exit_code": r.ExitCode,
		"stdout":    r.Stdout,
		"stderr":    r.Stderr,
		"cwd":       r.Cwd,
	})
}

func ResultFromStruct(s *structpb.Struct) agent.Result {
	f := s.GetFields()
	return agent.Result{
		ExitCode: int(f["exit_code"].GetNumberValue()),
		Stdout:   f["stdout"].GetStringValue(),
		Stderr:   f["stderr"].GetStringValue(),
		Cwd:      f["cwd"].GetStringValue(),
	}
}

func StatusToStruct(st Status) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(map[string]any{
		"state":      st.State,
		"cwd":        st.Cwd,
		"pid":        st.Pid,
		"restarts":   st.Restarts,
		"started_at": st.StartedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("encode status: %w", err)
	}
	return s, nil
}

func StatusFromStruct(s *structpb.Struct) Status {
	f := s.GetFields()
	st := Status{
		State:    f["state"].GetStringValue(),
		Cwd:      f["cwd"].GetStringValue(),
		Pid:      int(f["pid"].GetNumberValue()),
		Restarts: int(f["restarts"].GetNumberValue()),
	}
	st.StartedAt, _ = time.Parse(time.RFC3339Nano, f["started_at"].GetStringValue())
	return st
}
