package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/antonkrylov/logwise/internal/classify"
	cliconfig "github.com/antonkrylov/logwise/internal/cli/config"
	"github.com/antonkrylov/logwise/internal/client"
	"github.com/antonkrylov/logwise/internal/frontend"
	"github.com/antonkrylov/logwise/internal/llm"
)

const usageExamples = `  logwise run "<command>"        # execute a command on the agent and explain the result
  cat file.log | logwise         # explain a log piped on stdin

Example:
  logwise run "ls /no_such_dir"
  python train.py 2>&1 | logwise`

type rootOptions struct {
	agentAddr   string
	transport   string
	timeout     time.Duration
	configPath  string
	contextName string
	noLLM       bool

	conn *client.Connection

	stdin      io.Reader
	stdinIsTTY func() bool
	logger     *slog.Logger
}

func (r *rootOptions) prepare() error {
	resolved, err := client.ResolveConnection(r.configPath, r.contextName, r.agentAddr, r.transport, r.timeout)
	if err != nil {
		return err
	}
	r.conn = resolved
	return nil
}

func (r *rootOptions) agent() (client.Agent, error) {
	return client.New(r.conn)
}

func (r *rootOptions) llmConfig() llm.Config {
	cfg := llm.FromEnv()
	if r.noLLM {
		cfg.Enabled = false
	}
	return cfg
}

func (r *rootOptions) explainer() (llm.Explainer, error) {
	return frontend.NewExplainer(r.llmConfig(), r.logger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := &rootOptions{
		stdin:      os.Stdin,
		stdinIsTTY: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		logger:     slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
	if err := newRootCmd(opts).ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "logwise",
		Short:         "Run commands on a logwise agent and explain what went wrong",
		Example:       usageExamples,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.stdinIsTTY() {
				return cmd.Help()
			}
			return analyzeReader(cmd, opts, opts.stdin)
		},
	}
	defaultConfig := os.Getenv("LOGWISE_CONFIG")
	if defaultConfig == "" {
		defaultConfig = cliconfig.DefaultConfigPath()
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "path to logwise config file (default $HOME/.logwise/config)")
	rootCmd.PersistentFlags().StringVar(&opts.contextName, "context", "", "context name within the config (overrides currentContext)")
	rootCmd.PersistentFlags().StringVar(&opts.agentAddr, "agent-addr", "", "agent address host:port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.transport, "transport", "", "agent transport: http or grpc (default http)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "client timeout; defaults to config or 1810s")
	rootCmd.PersistentFlags().BoolVar(&opts.noLLM, "no-llm", false, "print the detected error snippet without asking the model")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return opts.prepare()
	}

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newAnalyzeCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newResetCmd(opts))
	rootCmd.AddCommand(newDoctorCmd(opts))
	return rootCmd
}

func newRunCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <command...>",
		Short: "Execute a command on the agent and explain the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.agent()
			if err != nil {
				return err
			}
			defer a.Close()
			ex, err := root.explainer()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			command := strings.Join(args, " ")
			fmt.Fprintf(out, "\n[Run] Executing command: %s\n\n", command)

			r := frontend.NewRunner(a, ex, nil)
			run, err := r.Run(cmd.Context(), command)
			if err != nil {
				return err
			}
			if run.Result.Stdout != "" {
				fmt.Fprint(out, ensureNewline(run.Result.Stdout))
			}
			if run.Result.Stderr != "" {
				fmt.Fprint(out, ensureNewline(run.Result.Stderr))
			}
			fmt.Fprint(out, "[Logwise] Analyzing...\n\n")
			explain(cmd, run.Snippet, func(emit func(string)) error {
				return r.Explain(cmd.Context(), run.Snippet, emit)
			})
			fmt.Fprint(out, "\n\n[Done]\n")
			return nil
		},
	}
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [file]",
		Short: "Explain the error in a log file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || args[0] == "-" {
				return analyzeReader(cmd, root, root.stdin)
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return analyzeReader(cmd, root, f)
		},
	}
}

func analyzeReader(cmd *cobra.Command, root *rootOptions, in io.Reader) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	ex, err := root.explainer()
	if err != nil {
		return err
	}
	r := frontend.NewRunner(nil, ex, nil)
	snippet := classify.FromText(string(data))
	explain(cmd, snippet, func(emit func(string)) error {
		return r.Explain(cmd.Context(), snippet, emit)
	})
	fmt.Fprint(cmd.OutOrStdout(), "\n\n[Done]\n")
	return nil
}

// explain streams an analysis to stdout. Model failures are reported on
// stderr and never fail the command; the snippet is printed instead so the
// user still sees what was detected.
func explain(cmd *cobra.Command, snippet string, stream func(emit func(string)) error) {
	out, errw := cmd.OutOrStdout(), cmd.ErrOrStderr()
	p := newAnalysisPrinter(out, errw, isTerminal(errw))
	p.Start("analyzing")
	err := stream(p.Write)
	wrote := p.Close()
	if wrote && !p.EndsWithNewline() {
		fmt.Fprintln(out)
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	fmt.Fprintf(errw, "[Logwise ERROR] analysis failed: %v\n", err)
	if snippet != "" && !wrote {
		fmt.Fprintln(out, snippet)
	}
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List commands recently executed by the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.agent()
			if err != nil {
				return err
			}
			defer a.Close()
			entries, err := a.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tEXIT\tOUTCOME\tDURATION\tCWD\tCOMMAND")
			for _, e := range entries {
				id := e.ID
				if len(id) > 8 {
					id = id[:8]
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					id,
					e.StartedAt.Local().Format(time.DateTime),
					e.ExitCode,
					e.Outcome,
					e.CompletedAt.Sub(e.StartedAt).Truncate(time.Millisecond),
					e.Cwd,
					e.Command,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of executions to list (0 = all kept)")
	return cmd
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the agent's shell session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.agent()
			if err != nil {
				return err
			}
			defer a.Close()
			st, err := a.Status(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st.State, st.Cwd, st.Pid, st.Restarts, st.StartedAt)
			return nil
		},
	}
}

func newResetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restart the agent's shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.agent()
			if err != nil {
				return err
			}
			defer a.Close()
			st, err := a.Reset(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st.State, st.Cwd, st.Pid, st.Restarts, st.StartedAt)
			return nil
		},
	}
}

func printStatus(w io.Writer, state, cwd string, pid, restarts int, started time.Time) {
	fmt.Fprintf(w, "state=%s\n", state)
	fmt.Fprintf(w, "cwd=%s\n", cwd)
	fmt.Fprintf(w, "pid=%d\n", pid)
	fmt.Fprintf(w, "restarts=%d\n", restarts)
	if !started.IsZero() {
		fmt.Fprintf(w, "started_at=%s\n", started.Format(time.RFC3339))
	}
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
