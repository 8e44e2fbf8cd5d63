package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/antonkrylov/logwise/internal/agent"
	"github.com/antonkrylov/logwise/internal/config"
	"github.com/antonkrylov/logwise/internal/history"
	"github.com/antonkrylov/logwise/internal/remote"
	"github.com/antonkrylov/logwise/internal/tracing"
)

var version = "dev"

func main() {
	var (
		configPath = flag.String("config", "", "agent YAML config file (LOGWISE_CONFIG)")
		listen     = flag.String("listen", "", "HTTP listen address (default 127.0.0.1:9090)")
		grpcListen = flag.String("grpc-listen", "", "optional gRPC listen address")
		workdir    = flag.String("workdir", "", "starting directory of the shell")
		timeout    = flag.Duration("timeout", 0, "per-command timeout (default 30m)")
		recovery   = flag.String("recovery", "", "what to do with a broken or timed-out shell: restart|refuse")
		historyDB  = flag.String("history-db", "", "sqlite file for execution history")
		natsURL    = flag.String("nats-url", "", "mirror history to NATS JetStream at this URL")
		trace      = flag.Bool("trace", false, "print OpenTelemetry spans to stderr")
		logJSON    = flag.Bool("log-json", false, "emit logs as JSON")
		logLevel   = flag.String("log-level", "info", "log level: debug|info|warn|error")
		verbose    = flag.Bool("verbose", false, "enable verbose debug logging (same as -log-level=debug)")
	)
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "logwise-agent (%s)\n\n", version)
		fmt.Fprintf(out, "Runs one persistent bash session and serves it over HTTP.\n\n")
		fmt.Fprintf(out, "Usage:\n  %s [flags]\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := newLogger(*logLevel, *verbose, *logJSON)

	if *configPath == "" {
		*configPath = os.Getenv("LOGWISE_CONFIG")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	applyFlag(&cfg.Listen, *listen)
	applyFlag(&cfg.GRPCListen, *grpcListen)
	applyFlag(&cfg.Workdir, *workdir)
	applyFlag(&cfg.Recovery, *recovery)
	applyFlag(&cfg.History.SQLitePath, *historyDB)
	applyFlag(&cfg.History.JetStream.URL, *natsURL)
	if *timeout > 0 {
		cfg.CommandTimeout = *timeout
	}
	if *trace {
		cfg.Tracing.Enabled = true
		if cfg.Tracing.Exporter == "" {
			cfg.Tracing.Exporter = "stdout"
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		logger.Error("tracing init", "err", err)
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	store, err := history.New(ctx, cfg.HistoryOptions(logger))
	if err != nil {
		logger.Error("history init", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	sess, err := agent.NewSession(cfg.SessionConfig(logger))
	if err != nil {
		logger.Error("session init", "err", err)
		os.Exit(1)
	}
	if err := sess.Start(ctx); err != nil {
		// The agent is useless without a shell.
		logger.Error("shell startup", "err", err, "shell", cfg.Shell)
		os.Exit(1)
	}
	defer sess.Close()

	exec, err := agent.NewExecutor(agent.ExecutorConfig{
		Session:  sess,
		Filter:   agent.NewFilter(cfg.Rules()),
		Timeout:  cfg.CommandTimeout,
		Recorder: store,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("executor init", "err", err)
		os.Exit(1)
	}

	srv, err := remote.New(remote.Config{
		ListenAddr:       cfg.Listen,
		GRPCListenAddr:   cfg.GRPCListen,
		Executor:         exec,
		History:          store,
		RequestsPerMin:   cfg.RateLimit.RequestsPerMin,
		Burst:            cfg.RateLimit.Burst,
		DisableRateLimit: cfg.RateLimit.Disabled,
		Version:          version,
		Logger:           logger,
	})
	if err != nil {
		logger.Error("server init", "err", err)
		os.Exit(1)
	}
	if err := srv.Start(ctx); err != nil {
		logger.Error("server start", "err", err)
		os.Exit(1)
	}
	st := sess.Status()
	logger.Info("agent ready",
		"addr", srv.Addr().String(),
		"pid", st.Pid,
		"cwd", st.Cwd,
		"timeout", cfg.CommandTimeout,
		"recovery", cfg.Recovery,
	)

	<-ctx.Done()
	logger.Info("shutting down agent")
	srv.Stop()
}

func applyFlag(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func newLogger(logLevel string, verbose, logJSON bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else {
		switch l := strings.ToLower(strings.TrimSpace(logLevel)); l {
		case "debug":
			level = slog.LevelDebug
		case "info", "":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			log.Printf("unknown -log-level=%q (expected debug|info|warn|error); defaulting to info", logLevel)
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if logJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
