package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Print local diagnostic information for troubleshooting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			exe, _ := os.Executable()
			exe = strings.TrimSpace(exe)
			look, _ := exec.LookPath("logwise")
			look = strings.TrimSpace(look)

			fmt.Fprintf(out, "logwise_executable=%s\n", exe)
			if look != "" {
				fmt.Fprintf(out, "logwise_on_path=%s\n", look)
			}
			if exe != "" && look != "" {
				absExe, _ := filepath.EvalSymlinks(exe)
				absLook, _ := filepath.EvalSymlinks(look)
				if absExe != "" && absLook != "" && absExe != absLook {
					fmt.Fprintln(out, "warning=you_are_not_running_the_same_logwise_as_on_PATH (adjust PATH or call the intended binary explicitly)")
				}
			}

			conn := root.conn
			fmt.Fprintf(out, "config_path=%s\n", conn.ConfigPath)
			if conn.Config == nil {
				fmt.Fprintln(out, "config_present=false")
			} else {
				fmt.Fprintln(out, "config_present=true")
				fmt.Fprintf(out, "current_context=%s\n", strings.TrimSpace(conn.Config.CurrentContext))
				for _, name := range conn.Config.Names() {
					c := conn.Config.Contexts[name]
					fmt.Fprintf(out, "context=%s server=%s transport=%s timeout=%d\n",
						name, strings.TrimSpace(c.Server), strings.TrimSpace(c.Transport), c.TimeoutSeconds)
				}
			}
			fmt.Fprintf(out, "agent_addr=%s\n", conn.AgentAddr)
			fmt.Fprintf(out, "transport=%s\n", conn.Transport)
			fmt.Fprintf(out, "timeout=%s\n", conn.Timeout)

			llmCfg := root.llmConfig()
			fmt.Fprintf(out, "llm_enabled=%t\n", llmCfg.Enabled)
			if llmCfg.Enabled {
				fmt.Fprintf(out, "llm_provider=%s\n", llmCfg.Provider)
				fmt.Fprintf(out, "llm_base_url=%s\n", llmCfg.BaseURL)
				fmt.Fprintf(out, "llm_model=%s\n", llmCfg.Model)
				if err := llmCfg.Validate(); err != nil {
					fmt.Fprintf(out, "llm_error=%s\n", err.Error())
				}
			}

			a, err := root.agent()
			if err != nil {
				fmt.Fprintf(out, "agent_error=%s\n", err.Error())
				return nil
			}
			defer a.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			st, err := a.Status(ctx)
			if err != nil {
				fmt.Fprintln(out, "agent_reachable=false")
				fmt.Fprintf(out, "agent_error=%s\n", err.Error())
				return nil
			}
			fmt.Fprintln(out, "agent_reachable=true")
			fmt.Fprintf(out, "agent_state=%s\n", st.State)
			fmt.Fprintf(out, "agent_cwd=%s\n", st.Cwd)
			return nil
		},
	}
	return cmd
}
