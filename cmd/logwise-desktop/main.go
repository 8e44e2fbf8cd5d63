package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	cliconfig "github.com/antonkrylov/logwise/internal/cli/config"
	"github.com/antonkrylov/logwise/internal/client"
	"github.com/antonkrylov/logwise/internal/frontend"
	"github.com/antonkrylov/logwise/internal/history"
	"github.com/antonkrylov/logwise/internal/llm"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	a := app.NewWithID("logwise.desktop")
	w := a.NewWindow("logwise")
	w.Resize(fyne.NewSize(1080, 760))

	configPathEntry := widget.NewEntry()
	if v := strings.TrimSpace(os.Getenv("LOGWISE_CONFIG")); v != "" {
		configPathEntry.SetText(v)
	} else {
		configPathEntry.SetText(cliconfig.DefaultConfigPath())
	}
	contextSelect := widget.NewSelect(nil, func(_ string) {})
	agentAddrEntry := widget.NewEntry()
	agentAddrEntry.SetPlaceHolder(client.DefaultAgentAddr)
	transportSelect := widget.NewSelect([]string{client.TransportHTTP, client.TransportGRPC}, func(_ string) {})
	timeoutEntry := widget.NewEntry()
	timeoutEntry.SetPlaceHolder("0s (use config/default)")
	noLLMCheck := widget.NewCheck("Skip model", func(bool) {})

	statusData := binding.NewString()
	_ = statusData.Set("Not connected")
	status := widget.NewLabelWithData(statusData)

	cwdData := binding.NewString()
	_ = cwdData.Set(promptLine(frontend.InitialCwd))
	cwdLabel := widget.NewLabelWithData(cwdData)
	cwdLabel.TextStyle = fyne.TextStyle{Monospace: true}

	stdout := newLogPane(512 * 1024)
	stderr := newLogPane(512 * 1024)
	analysis := newLogPane(256 * 1024)
	analysisTitle := binding.NewString()
	_ = analysisTitle.Set(verdict(""))
	logAnalysis := newLogPane(256 * 1024)

	hist := frontend.NewHistory(frontend.MaxHistory)

	type connState struct {
		agent  client.Agent
		runner *frontend.Runner
		addr   string
		cancel context.CancelFunc
		ctx    context.Context
	}
	var stMu sync.Mutex
	var st *connState

	current := func() *connState {
		stMu.Lock()
		defer stMu.Unlock()
		return st
	}

	disconnect := func() {
		stMu.Lock()
		defer stMu.Unlock()
		if st == nil {
			return
		}
		st.cancel()
		_ = st.agent.Close()
		st = nil
	}

	loadConfig := func() {
		cfg, err := cliconfig.Load(strings.TrimSpace(configPathEntry.Text))
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		contexts := cfg.Names()
		contextSelect.Options = contexts
		if cfg != nil && cfg.CurrentContext != "" {
			contextSelect.SetSelected(cfg.CurrentContext)
		} else if len(contexts) > 0 && contextSelect.Selected == "" {
			contextSelect.SetSelected(contexts[0])
		}
		contextSelect.Refresh()
	}

	parseTimeout := func() (time.Duration, error) {
		raw := strings.TrimSpace(timeoutEntry.Text)
		if raw == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid timeout %q: %w", raw, err)
		}
		return d, nil
	}

	connect := func() {
		disconnect()

		timeout, err := parseTimeout()
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		resolved, err := client.ResolveConnection(
			strings.TrimSpace(configPathEntry.Text),
			strings.TrimSpace(contextSelect.Selected),
			strings.TrimSpace(agentAddrEntry.Text),
			transportSelect.Selected,
			timeout,
		)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		ag, err := client.New(resolved)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		llmCfg := llm.FromEnv()
		if noLLMCheck.Checked {
			llmCfg.Enabled = false
		}
		ex, err := frontend.NewExplainer(llmCfg, logger)
		if err != nil {
			_ = ag.Close()
			dialog.ShowError(err, w)
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		stMu.Lock()
		st = &connState{
			agent:  ag,
			runner: frontend.NewRunner(ag, ex, hist),
			addr:   resolved.AgentAddr,
			cancel: cancel,
			ctx:    ctx,
		}
		stMu.Unlock()
		_ = statusData.Set(fmt.Sprintf("Connected to %s over %s", resolved.AgentAddr, resolved.Transport))

		go func() {
			pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
			defer cancelPing()
			s, err := ag.Status(pingCtx)
			if err != nil {
				_ = statusData.Set(fmt.Sprintf("Agent at %s unreachable: %v", resolved.AgentAddr, err))
				return
			}
			_ = statusData.Set(fmt.Sprintf("Connected to %s: shell %s in %s", resolved.AgentAddr, s.State, s.Cwd))
		}()
	}

	commandEntry := widget.NewEntry()
	commandEntry.SetPlaceHolder("type a command")
	commandSelect := widget.NewSelect(hist.Options(), func(sel string) {
		if sel == frontend.CustomCommand {
			commandEntry.SetText("")
			commandEntry.Enable()
			return
		}
		commandEntry.SetText(sel)
		commandEntry.Disable()
	})
	commandSelect.SetSelected(frontend.CustomCommand)

	var runBtn *widget.Button
	runCommand := func() {
		cur := current()
		if cur == nil {
			dialog.ShowError(errors.New("connect to an agent first"), w)
			return
		}
		command := strings.TrimSpace(commandEntry.Text)
		if command == "" {
			dialog.ShowInformation("Warning", "Command is empty. Please enter a command.", w)
			return
		}

		runBtn.Disable()
		stdout.set("")
		stderr.set("")
		analysis.set("")
		_ = analysisTitle.Set(verdict(""))
		_ = statusData.Set("Running: " + command)

		go func() {
			defer fyne.Do(runBtn.Enable)

			run, err := cur.runner.Run(cur.ctx, command)
			if err != nil {
				_ = statusData.Set(err.Error())
				return
			}
			stdout.set(run.Result.Stdout)
			stderr.set(run.Result.Stderr)
			_ = cwdData.Set(promptLine(cur.runner.Cwd()))
			_ = statusData.Set(fmt.Sprintf("Exit code %d, analyzing...", run.Result.ExitCode))
			fyne.Do(func() {
				commandSelect.Options = hist.Options()
				commandSelect.Refresh()
			})

			err = cur.runner.Explain(cur.ctx, run.Snippet, analysis.appendLine)
			_ = analysisTitle.Set(verdict(analysis.String()))
			if err != nil && !errors.Is(err, context.Canceled) {
				if analysis.String() == "" {
					analysis.set(run.Snippet + "\n")
				}
				analysis.appendLine("\n[Logwise ERROR] analysis failed: " + err.Error())
			}
			_ = statusData.Set(fmt.Sprintf("Done (exit code %d)", run.Result.ExitCode))
		}()
	}
	runBtn = widget.NewButton("Run", runCommand)
	commandEntry.OnSubmitted = func(string) { runCommand() }

	logTextEntry := widget.NewMultiLineEntry()
	logTextEntry.SetPlaceHolder("paste a log or traceback")
	logTextEntry.Wrapping = fyne.TextWrapWord
	var analyzeBtn *widget.Button
	analyzeText := func() {
		cur := current()
		if cur == nil {
			dialog.ShowError(errors.New("connect to an agent first"), w)
			return
		}
		text := logTextEntry.Text
		if strings.TrimSpace(text) == "" {
			dialog.ShowInformation("Warning", "Nothing to analyze. Paste a log first.", w)
			return
		}
		analyzeBtn.Disable()
		logAnalysis.set("")
		go func() {
			defer fyne.Do(analyzeBtn.Enable)
			if _, err := cur.runner.ExplainText(cur.ctx, text, logAnalysis.appendLine); err != nil && !errors.Is(err, context.Canceled) {
				logAnalysis.appendLine("\n[Logwise ERROR] analysis failed: " + err.Error())
			}
		}()
	}
	analyzeBtn = widget.NewButton("Analyze", analyzeText)

	var histMu sync.Mutex
	var entries []history.Entry
	historyList := widget.NewList(
		func() int {
			histMu.Lock()
			defer histMu.Unlock()
			return len(entries)
		},
		func() fyne.CanvasObject { return widget.NewLabel("loading") },
		func(i widget.ListItemID, obj fyne.CanvasObject) {
			lbl := obj.(*widget.Label)
			histMu.Lock()
			defer histMu.Unlock()
			if i < 0 || i >= len(entries) {
				lbl.SetText("")
				return
			}
			e := entries[i]
			lbl.SetText(fmt.Sprintf("%s exit=%d %s %s $ %s",
				e.StartedAt.Local().Format("15:04:05"), e.ExitCode, e.Outcome, e.Cwd, e.Command))
		},
	)
	historyList.OnSelected = func(id widget.ListItemID) {
		histMu.Lock()
		var cmd string
		if id >= 0 && id < len(entries) {
			cmd = entries[id].Command
		}
		histMu.Unlock()
		if cmd != "" {
			commandSelect.SetSelected(frontend.CustomCommand)
			commandEntry.SetText(cmd)
		}
	}
	refreshHistory := func() {
		cur := current()
		if cur == nil {
			dialog.ShowError(errors.New("connect to an agent first"), w)
			return
		}
		go func() {
			list, err := cur.agent.History(cur.ctx, 50)
			if err != nil {
				_ = statusData.Set("History: " + err.Error())
				return
			}
			// Newest first.
			for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
				list[i], list[j] = list[j], list[i]
			}
			histMu.Lock()
			entries = list
			histMu.Unlock()
			fyne.Do(historyList.Refresh)
		}()
	}

	resetShell := func() {
		cur := current()
		if cur == nil {
			dialog.ShowError(errors.New("connect to an agent first"), w)
			return
		}
		go func() {
			s, err := cur.agent.Reset(cur.ctx)
			if err != nil {
				_ = statusData.Set("Reset failed: " + err.Error())
				return
			}
			_ = statusData.Set(fmt.Sprintf("Shell restarted (pid %d, %d restarts) in %s", s.Pid, s.Restarts, s.Cwd))
		}()
	}

	settings := container.NewGridWithColumns(2,
		container.NewBorder(nil, nil, widget.NewLabel("Config path"), nil, configPathEntry),
		container.NewBorder(nil, nil, widget.NewButton("Reload contexts", loadConfig), nil, layout.NewSpacer()),
		container.NewBorder(nil, nil, widget.NewLabel("Context"), nil, contextSelect),
		container.NewBorder(nil, nil, widget.NewLabel("Agent addr override"), nil, agentAddrEntry),
		container.NewBorder(nil, nil, widget.NewLabel("Transport"), nil, transportSelect),
		container.NewBorder(nil, nil, widget.NewLabel("Timeout"), nil, timeoutEntry),
		container.NewBorder(nil, nil, noLLMCheck, nil, layout.NewSpacer()),
		container.NewHBox(
			widget.NewButton("Connect", connect),
			widget.NewButton("Reset shell", resetShell),
		),
	)

	outputTabs := container.NewAppTabs(
		container.NewTabItem("stdout", stdout.scroll),
		container.NewTabItem("stderr", stderr.scroll),
	)
	analysisCard := container.NewBorder(widget.NewLabelWithData(analysisTitle), nil, nil, nil, analysis.scroll)
	runPanel := container.NewBorder(
		container.NewVBox(
			cwdLabel,
			container.NewBorder(nil, nil, widget.NewLabel("Command"), nil, commandSelect),
			container.NewBorder(nil, nil, nil, runBtn, commandEntry),
		),
		nil, nil, nil,
		container.NewVSplit(outputTabs, analysisCard),
	)
	analyzePanel := container.NewBorder(
		nil, nil, nil, nil,
		container.NewVSplit(
			container.NewBorder(nil, analyzeBtn, nil, nil, logTextEntry),
			logAnalysis.scroll,
		),
	)
	historyPanel := container.NewBorder(widget.NewButton("Refresh history", refreshHistory), nil, nil, nil, historyList)

	tabs := container.NewAppTabs(
		container.NewTabItem("Run command", runPanel),
		container.NewTabItem("Analyze log text", analyzePanel),
		container.NewTabItem("Agent history", historyPanel),
	)

	w.SetContent(container.NewBorder(
		container.NewVBox(settings, widget.NewSeparator()),
		status,
		nil,
		nil,
		tabs,
	))

	loadConfig()
	w.SetCloseIntercept(func() {
		disconnect()
		w.Close()
	})
	w.ShowAndRun()
}
