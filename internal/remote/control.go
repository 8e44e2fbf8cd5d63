package remote

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/antonkrylov/logwise/internal/agent"
	"github.com/antonkrylov/logwise/internal/wire"
)

type agentService struct {
	exec *agent.Executor
	log  *slog.Logger
}

var _ wire.AgentServer = (*agentService)(nil)

func (s *agentService) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	cmd := wire.CommandFrom(in)
	exec, err := s.exec.Execute(ctx, cmd)
	if err != nil {
		return nil, grpcError(err)
	}
	return wire.ResultToStruct(exec.Result)
}

func (s *agentService) Status(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return wire.StatusToStruct(wire.StatusFrom(s.exec.Session().Status()))
}

func (s *agentService) Reset(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	sess := s.exec.Session()
	if err := sess.Reset(ctx); err != nil {
		s.log.Error("reset failed", "err", err)
		return nil, grpcError(err)
	}
	return wire.StatusToStruct(wire.StatusFrom(sess.Status()))
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, agent.ErrEmptyCommand):
		return status.Error(codes.InvalidArgument, "No command provided")
	case errors.Is(err, agent.ErrInvalidCommand):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Unavailable, err.Error())
	}
}
