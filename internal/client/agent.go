package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/antonkrylov/logwise/internal/agent"
	"github.com/antonkrylov/logwise/internal/history"
	"github.com/antonkrylov/logwise/internal/wire"
)

// ErrNoHistory is returned by transports that do not serve history.
var ErrNoHistory = errors.New("history is only served over http")

// Agent is a remote command agent.
type Agent interface {
	// Run never fails: transport problems come back as a synthesized
	// result with exit code -1.
	Run(ctx context.Context, command string) agent.Result
	Status(ctx context.Context) (wire.Status, error)
	Reset(ctx context.Context) (wire.Status, error)
	History(ctx context.Context, limit int) ([]history.Entry, error)
	Close() error
}

func New(conn *Connection) (Agent, error) {
	switch conn.Transport {
	case TransportGRPC:
		return DialGRPC(conn.AgentAddr, conn.Timeout)
	case TransportHTTP, "":
		return NewHTTP(conn.AgentAddr, conn.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", conn.Transport)
	}
}

func connectionFailure(addr string) agent.Result {
	return agent.Result{
		ExitCode: -1,
		Stderr: fmt.Sprintf("[Logwise ERROR] cannot connect to Runner Agent at %s.\n"+
			"please ensure logwise-agent is already running in the target terminal", addr),
		Cwd: "/",
	}
}

func transportFailure(err error) agent.Result {
	return agent.Result{
		ExitCode: -1,
		Stderr:   fmt.Sprintf("[Logwise CORE ERROR] fail to send command to Agent: %v", err),
		Cwd:      "/",
	}
}
