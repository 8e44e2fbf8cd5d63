package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	cliconfig "github.com/antonkrylov/logwise/internal/cli/config"
	"github.com/antonkrylov/logwise/internal/client"
	"github.com/antonkrylov/logwise/internal/frontend"
	"github.com/antonkrylov/logwise/internal/llm"
)

func main() {
	var (
		configPath  string
		contextName string
		agentAddr   string
		transport   string
		timeout     time.Duration
		noLLM       bool
		logFile     string
	)
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "Usage:\n  %s [flags]\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	defaultConfig := os.Getenv("LOGWISE_CONFIG")
	if defaultConfig == "" {
		defaultConfig = cliconfig.DefaultConfigPath()
	}
	flag.StringVar(&configPath, "config", defaultConfig, "path to logwise config file")
	flag.StringVar(&contextName, "context", "", "context name within the config")
	flag.StringVar(&agentAddr, "agent-addr", "", "agent address host:port (overrides config)")
	flag.StringVar(&transport, "transport", "", "agent transport: http or grpc")
	flag.DurationVar(&timeout, "timeout", 0, "client timeout; defaults to config or 1810s")
	flag.BoolVar(&noLLM, "no-llm", false, "show the detected error snippet without asking the model")
	flag.StringVar(&logFile, "log-file", "", "write diagnostics to this file (the terminal is owned by the UI)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "log file:", err)
			os.Exit(1)
		}
		defer f.Close()
		logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	conn, err := client.ResolveConnection(configPath, contextName, agentAddr, transport, timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	a, err := client.New(conn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agent:", err)
		os.Exit(1)
	}
	defer a.Close()

	llmCfg := llm.FromEnv()
	if noLLM {
		llmCfg.Enabled = false
	}
	ex, err := frontend.NewExplainer(llmCfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "llm:", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := frontend.NewRunner(a, ex, frontend.NewHistory(frontend.MaxHistory))
	m := newModel(ctx, cancel, a, runner, conn.AgentAddr)
	logger.Info("tui started", "agent", conn.AgentAddr, "transport", conn.Transport, "llm", llmCfg.Enabled)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
