package client

import (
	"fmt"
	"os"
	"strings"
	"time"

	cliconfig "github.com/antonkrylov/logwise/internal/cli/config"
)

const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"

	DefaultAgentAddr = "127.0.0.1:9090"
	// DefaultTimeout outlasts the agent's own command timeout so a slow
	// command is reported by the agent rather than cut off here.
	DefaultTimeout = 1810 * time.Second
)

type Connection struct {
	AgentAddr   string
	Transport   string
	Timeout     time.Duration
	ConfigPath  string
	ContextName string
	Config      *cliconfig.Config
	Context     *cliconfig.Context
}

// ResolveConnection applies, in order of precedence:
// 1) flags (agentAddr, transport, timeout, contextName)
// 2) config file values
// 3) environment (LOGWISE_AGENT_ADDR, LOGWISE_TRANSPORT)
// 4) defaults (127.0.0.1:9090 over http, 1810s)
func ResolveConnection(configPath, contextName, agentAddr, transport string, timeout time.Duration) (*Connection, error) {
	conn := &Connection{
		ConfigPath:  configPath,
		ContextName: contextName,
		AgentAddr:   agentAddr,
		Transport:   strings.ToLower(strings.TrimSpace(transport)),
		Timeout:     timeout,
	}

	if conn.ConfigPath != "" {
		cfg, err := cliconfig.Load(conn.ConfigPath)
		if err != nil {
			return nil, err
		}
		conn.Config = cfg
	}

	if conn.Config != nil {
		ctx, _, err := conn.Config.Resolve(conn.ContextName)
		if err != nil {
			return nil, err
		}
		conn.Context = ctx
	}

	if conn.Context != nil {
		if conn.AgentAddr == "" {
			conn.AgentAddr = conn.Context.Server
		}
		if conn.Transport == "" {
			conn.Transport = strings.ToLower(conn.Context.Transport)
		}
	}

	if conn.Timeout == 0 {
		conn.Timeout = conn.Context.Timeout()
	}
	if conn.Timeout == 0 {
		conn.Timeout = DefaultTimeout
	}

	if conn.AgentAddr == "" {
		conn.AgentAddr = os.Getenv("LOGWISE_AGENT_ADDR")
		if conn.AgentAddr == "" {
			conn.AgentAddr = DefaultAgentAddr
		}
	}
	if conn.Transport == "" {
		conn.Transport = strings.ToLower(os.Getenv("LOGWISE_TRANSPORT"))
		if conn.Transport == "" {
			conn.Transport = TransportHTTP
		}
	}

	switch conn.Transport {
	case TransportHTTP, TransportGRPC:
	default:
		return nil, fmt.Errorf("unknown transport %q (want http or grpc)", conn.Transport)
	}
	return conn, nil
}
