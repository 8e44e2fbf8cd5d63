package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/antonkrylov/logwise/internal/agent"
	"github.com/antonkrylov/logwise/internal/history"
	"github.com/antonkrylov/logwise/internal/wire"
)

type Config struct {
	ListenAddr     string
	GRPCListenAddr string

	Executor *agent.Executor
	History  *history.Store

	RequestsPerMin   int
	Burst            int
	DisableRateLimit bool

	Version string
	Logger  *slog.Logger
}

// Server exposes one executor over HTTP and, when GRPCListenAddr is set, gRPC.
type Server struct {
	cfg Config

	httpServer   *http.Server
	httpListener net.Listener

	grpcServer   *grpc.Server
	grpcListener net.Listener
	health       *health.Server

	cancel   context.CancelFunc
	stopOnce sync.Once
}

func New(cfg Config) (*Server, error) {
	if cfg.Executor == nil {
		return nil, errors.New("remote: executor is required")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:9090"
	}
	if cfg.RequestsPerMin == 0 {
		cfg.RequestsPerMin = 600
	}
	if cfg.Burst == 0 {
		cfg.Burst = 60
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Server{cfg: cfg}, nil
}

func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.httpListener = lis

	s.httpServer = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	if s.cfg.GRPCListenAddr != "" {
		glis, err := net.Listen("tcp", s.cfg.GRPCListenAddr)
		if err != nil {
			_ = lis.Close()
			s.cancel()
			return fmt.Errorf("listen %s: %w", s.cfg.GRPCListenAddr, err)
		}
		s.grpcListener = glis
		s.grpcServer = s.newGRPCServer()
		go func() {
			if err := s.grpcServer.Serve(glis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				s.cfg.Logger.Error("grpc server", "err", err)
			}
		}()
		s.cfg.Logger.Info("grpc listening", "addr", glis.Addr().String())
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	go func() {
		if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Logger.Error("http server", "err", err)
		}
	}()
	s.cfg.Logger.Info("agent listening", "addr", lis.Addr().String(), "version", s.cfg.Version)
	return nil
}

func (s *Server) newGRPCServer() *grpc.Server {
	gs := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    60 * time.Second,
			Timeout: 20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	wire.RegisterAgentServer(gs, &agentService{exec: s.cfg.Executor, log: s.cfg.Logger})

	s.health = health.NewServer()
	s.health.SetServingStatus(wire.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, s.health)

	reflection.Register(gs)
	return gs
}

// Addr is the bound HTTP address.
func (s *Server) Addr() net.Addr {
	if s.httpListener == nil {
		return nil
	}
	return s.httpListener.Addr()
}

func (s *Server) GRPCAddr() net.Addr {
	if s.grpcListener == nil {
		return nil
	}
	return s.grpcListener.Addr()
}

// Stop drains in-flight requests. A command still running in the shell is
// abandoned after five seconds.
func (s *Server) Stop() {
	s.stopOnce.Do(s.stop)
}

func (s *Server) stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		done := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.grpcServer.Stop()
		}
	}
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			_ = s.httpServer.Close()
		}
	}
}
