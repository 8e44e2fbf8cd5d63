package client

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/antonkrylov/logwise/internal/agent"
	"github.com/antonkrylov/logwise/internal/history"
	"github.com/antonkrylov/logwise/internal/wire"
)

type GRPCAgent struct {
	addr    string
	timeout time.Duration
	conn    *grpc.ClientConn
	client  *wire.AgentClient
}

// DialGRPC does not block; connection problems surface on the first call.
func DialGRPC(addr string, timeout time.Duration, dialOptions ...grpc.DialOption) (*GRPCAgent, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.UseCompressor(gzip.Name)),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			// Be conservative: the agent enforces a 20s MinTime and answers
			// aggressive pings with GOAWAY "too_many_pings".
			Time:                5 * time.Minute,
			Timeout:             20 * time.Second,
			PermitWithoutStream: false,
		}),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff: backoff.Config{
				BaseDelay:  250 * time.Millisecond,
				Multiplier: 1.6,
				Jitter:     0.2,
				MaxDelay:   5 * time.Second,
			},
			MinConnectTimeout: 10 * time.Second,
		}),
	}
	opts = append(opts, dialOptions...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &GRPCAgent{addr: addr, timeout: timeout, conn: conn, client: wire.NewAgentClient(conn)}, nil
}

func (a *GRPCAgent) Run(ctx context.Context, command string) agent.Result {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	res, err := a.client.Run(ctx, command)
	if err == nil {
		return res
	}
	st := status.Convert(err)
	switch {
	case st.Code() == codes.Unavailable && a.conn.GetState() != connectivity.Ready:
		return connectionFailure(a.addr)
	case st.Code() == codes.Unavailable, st.Code() == codes.InvalidArgument:
		// The agent answered: a session fault or a bad request.
		return agent.Result{ExitCode: -1, Stderr: st.Message(), Cwd: "/"}
	default:
		return transportFailure(err)
	}
}

func (a *GRPCAgent) Status(ctx context.Context) (wire.Status, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	return a.client.Status(ctx)
}

func (a *GRPCAgent) Reset(ctx context.Context) (wire.Status, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	return a.client.Reset(ctx)
}

func (a *GRPCAgent) History(context.Context, int) ([]history.Entry, error) {
	return nil, ErrNoHistory
}

func (a *GRPCAgent) Close() error { return a.conn.Close() }

func (a *GRPCAgent) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}
