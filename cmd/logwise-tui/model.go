package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/antonkrylov/logwise/internal/client"
	"github.com/antonkrylov/logwise/internal/frontend"
)

const helpText = "[help] Ctrl+S run | Ctrl+P palette | Esc close palette/quit | /analyze <log text> | /status | /reset | /clear | /compact\n"

type runResultMsg struct {
	run frontend.Run
	err error
}

type analysisChunkMsg struct {
	text string
}

type analysisDoneMsg struct {
	err error
}

type textMsg struct {
	text string
}

type errMsg struct {
	err error
}

type model struct {
	ctx    context.Context
	cancel context.CancelFunc

	agent  client.Agent
	runner *frontend.Runner
	addr   string

	viewport viewport.Model
	composer textarea.Model
	status   string
	busy     bool

	scrollback *scrollback

	analysis     <-chan tea.Msg
	analysisLive string

	paletteOpen bool
	palette     list.Model
}

type paletteItem struct {
	title string
	desc  string

	insert string
	action func(*model) tea.Cmd
}

func (i paletteItem) Title() string       { return i.title }
func (i paletteItem) Description() string { return i.desc }
func (i paletteItem) FilterValue() string { return i.title + " " + i.desc }

func newModel(ctx context.Context, cancel context.CancelFunc, a client.Agent, runner *frontend.Runner, addr string) model {
	ta := textarea.New()
	ta.Placeholder = "Type a command… (Ctrl+S run • Ctrl+P palette)"
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.Prompt = "$ "
	ta.SetHeight(3)
	ta.SetWidth(80)

	vp := viewport.New(0, 0)
	vp.SetContent("")

	pal := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	pal.SetShowHelp(false)
	pal.Title = "Commands"

	m := model{
		ctx:        ctx,
		cancel:     cancel,
		agent:      a,
		runner:     runner,
		addr:       addr,
		viewport:   vp,
		composer:   ta,
		status:     "ready",
		scrollback: newScrollback(5000, 1<<20),
		palette:    pal,
	}
	m.refreshPalette()
	return m
}

func (m *model) refreshPalette() {
	var items []list.Item
	for _, c := range m.runner.History().Recent() {
		items = append(items, paletteItem{title: c, desc: "recent", insert: c})
	}
	for _, c := range frontend.Presets {
		items = append(items, paletteItem{title: c, desc: "preset", insert: c})
	}
	items = append(items,
		paletteItem{title: "/analyze", desc: "explain a pasted log: /analyze <text>", insert: "/analyze "},
		paletteItem{title: "/status", desc: "show the agent's shell state", action: func(m *model) tea.Cmd { return m.statusCmd(false) }},
		paletteItem{title: "/reset", desc: "restart the agent's shell", action: func(m *model) tea.Cmd { return m.statusCmd(true) }},
		paletteItem{title: "/compact", desc: "compact scrollback (local)", action: func(m *model) tea.Cmd {
			m.scrollback.Compact(minInt(500, m.scrollback.maxLines))
			m.renderScrollback()
			return nil
		}},
		paletteItem{title: "/help", desc: "show keybindings", action: func(m *model) tea.Cmd {
			m.append(helpText)
			return nil
		}},
	)
	m.palette.SetItems(items)
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.statusCmd(false))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch t := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = t.Width
		m.composer.SetWidth(t.Width - 2)
		m.viewport.Height = t.Height - 1 - m.composer.Height()
		if m.viewport.Height < 1 {
			m.viewport.Height = 1
		}
		m.palette.SetWidth(minInt(80, t.Width-4))
		m.palette.SetHeight(minInt(16, maxInt(6, t.Height/2)))
		m.viewport.YPosition = 0
		m.renderScrollback()
		return m, nil
	case tea.KeyMsg:
		switch t.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit
		case "esc":
			if m.paletteOpen {
				m.paletteOpen = false
				return m, nil
			}
			m.cancel()
			return m, tea.Quit
		case "ctrl+p":
			m.paletteOpen = !m.paletteOpen
			return m, nil
		case "ctrl+s", "alt+enter":
			return m.submit()
		}
	case runResultMsg:
		if t.err != nil {
			m.busy = false
			m.status = "warning: " + t.err.Error()
			return m, nil
		}
		res := t.run.Result
		if res.Stdout != "" {
			m.append(ensureNewline(res.Stdout))
		}
		if res.Stderr != "" {
			m.append(ensureNewline(res.Stderr))
		}
		m.status = fmt.Sprintf("exit %d", res.ExitCode)
		m.refreshPalette()
		m.append("[Logwise] Analyzing...\n")
		return m.startAnalysis(func(ctx context.Context, emit func(string)) error {
			return m.runner.Explain(ctx, t.run.Snippet, emit)
		})
	case analysisChunkMsg:
		m.analysisLive += t.text
		m.renderScrollback()
		return m, waitAnalysis(m.analysis)
	case analysisDoneMsg:
		live := m.analysisLive
		m.analysisLive = ""
		m.analysis = nil
		m.busy = false
		if live != "" {
			m.append(ensureNewline(live))
		}
		if t.err != nil {
			m.append("[Logwise ERROR] analysis failed: " + t.err.Error() + "\n")
		}
		m.append("[Done]\n\n")
		return m, nil
	case textMsg:
		m.append(t.text)
		return m, nil
	case errMsg:
		m.status = "error: " + t.err.Error()
		m.append(m.status + "\n")
		return m, nil
	}

	if m.paletteOpen {
		var c tea.Cmd
		m.palette, c = m.palette.Update(msg)
		if km, ok := msg.(tea.KeyMsg); ok && km.String() == "enter" {
			if it, ok := m.palette.SelectedItem().(paletteItem); ok {
				m.paletteOpen = false
				if it.action != nil {
					return m, it.action(&m)
				}
				if it.insert != "" {
					m.composer.SetValue(it.insert)
				}
				return m, nil
			}
		}
		return m, c
	}
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

func (m model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.composer.Value())
	if m.busy {
		m.status = "busy: wait for the current command"
		return m, nil
	}
	m.composer.SetValue("")
	switch {
	case line == "":
		m.status = "warning: command is empty, please enter a command"
		return m, nil
	case line == "/help":
		m.append(helpText)
		return m, nil
	case line == "/clear":
		m.scrollback.Clear()
		m.renderScrollback()
		return m, nil
	case line == "/compact":
		m.scrollback.Compact(minInt(500, m.scrollback.maxLines))
		m.renderScrollback()
		return m, nil
	case line == "/status":
		return m, m.statusCmd(false)
	case line == "/reset":
		return m, m.statusCmd(true)
	case strings.HasPrefix(line, "/analyze"):
		text := strings.TrimSpace(strings.TrimPrefix(line, "/analyze"))
		if text == "" {
			m.status = "warning: nothing to analyze"
			return m, nil
		}
		m.busy = true
		m.append("[Logwise] Analyzing log text...\n")
		return m.startAnalysis(func(ctx context.Context, emit func(string)) error {
			_, err := m.runner.ExplainText(ctx, text, emit)
			return err
		})
	}

	m.busy = true
	m.status = "running"
	m.append(fmt.Sprintf("[Run] (%s) $ %s\n", m.runner.Cwd(), line))
	runner, ctx := m.runner, m.ctx
	return m, func() tea.Msg {
		run, err := runner.Run(ctx, line)
		return runResultMsg{run: run, err: err}
	}
}

// startAnalysis runs stream in the background and feeds its fragments back
// into Update one message at a time.
func (m model) startAnalysis(stream func(context.Context, func(string)) error) (tea.Model, tea.Cmd) {
	ch := make(chan tea.Msg, 16)
	ctx := m.ctx
	go func() {
		defer close(ch)
		err := stream(ctx, func(s string) {
			select {
			case ch <- analysisChunkMsg{text: s}:
			case <-ctx.Done():
			}
		})
		select {
		case ch <- analysisDoneMsg{err: err}:
		case <-ctx.Done():
		}
	}()
	m.busy = true
	m.analysis = ch
	return m, waitAnalysis(ch)
}

func waitAnalysis(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		if ch == nil {
			return nil
		}
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m model) statusCmd(reset bool) tea.Cmd {
	a, ctx := m.agent, m.ctx
	return func() tea.Msg {
		op, call := "status", a.Status
		if reset {
			op, call = "reset", a.Reset
		}
		st, err := call(ctx)
		if err != nil {
			return errMsg{err: fmt.Errorf("%s: %w", op, err)}
		}
		return textMsg{text: fmt.Sprintf("[%s] state=%s cwd=%s pid=%d restarts=%d\n", op, st.State, st.Cwd, st.Pid, st.Restarts)}
	}
}

func (m model) View() string {
	keptLines, _, droppedLines, _ := m.scrollback.Stats()
	header := fmt.Sprintf("logwise %s | (Runner Agent) %s $ | %s | %dL(+%d) | Ctrl+S run • Ctrl+P palette\n",
		m.addr, m.runner.Cwd(), m.status, keptLines, droppedLines)
	out := header + m.viewport.View() + "\n" + m.composer.View()
	if m.paletteOpen {
		out += "\n\n" + m.palette.View()
	}
	return out
}

func (m *model) append(s string) {
	m.scrollback.Append(s)
	m.renderScrollback()
}

func (m *model) renderScrollback() {
	wasAtBottom := m.viewport.AtBottom()
	content := m.scrollback.Content()
	content += m.analysisLive
	m.viewport.SetContent(content)
	if wasAtBottom {
		m.viewport.GotoBottom()
	}
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
