package history

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/antonkrylov/logwise/internal/agent"
)

// Entry is the stored form of one agent execution.
type Entry struct {
	ID          string        `json:"id"`
	Command     string        `json:"command"`
	ExitCode    int           `json:"exit_code"`
	Stdout      string        `json:"stdout"`
	Stderr      string        `json:"stderr"`
	Cwd         string        `json:"cwd"`
	Outcome     agent.Outcome `json:"outcome"`
	Rule        string        `json:"rule,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
}

func FromExecution(e *agent.Execution) Entry {
	entry := Entry{
		ID:          e.ID,
		Command:     e.Command,
		ExitCode:    e.Result.ExitCode,
		Stdout:      e.Result.Stdout,
		Stderr:      e.Result.Stderr,
		Cwd:         e.Result.Cwd,
		Outcome:     e.Outcome,
		StartedAt:   e.StartedAt.UTC(),
		CompletedAt: e.CompletedAt.UTC(),
	}
	if e.Rule != nil {
		entry.Rule = e.Rule.String()
	}
	return entry
}

func (e Entry) Result() agent.Result {
	return agent.Result{ExitCode: e.ExitCode, Stdout: e.Stdout, Stderr: e.Stderr, Cwd: e.Cwd}
}

func (e Entry) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":           e.ID,
		"command":      e.Command,
		"exit_code":    e.ExitCode,
		"stdout":       e.Stdout,
		"stderr":       e.Stderr,
		"cwd":          e.Cwd,
		"outcome":      string(e.Outcome),
		"rule":         e.Rule,
		"started_at":   e.StartedAt.Format(time.RFC3339Nano),
		"completed_at": e.CompletedAt.Format(time.RFC3339Nano),
	})
}

func entryFromStruct(s *structpb.Struct) (Entry, error) {
	f := s.GetFields()
	str := func(k string) string { return f[k].GetStringValue() }
	e := Entry{
		ID:       str("id"),
		Command:  str("command"),
		ExitCode: int(f["exit_code"].GetNumberValue()),
		Stdout:   str("stdout"),
		Stderr:   str("stderr"),
		Cwd:      str("cwd"),
		Outcome:  agent.Outcome(str("outcome")),
		Rule:     str("rule"),
	}
	if e.ID == "" {
		return Entry{}, fmt.Errorf("history entry without id")
	}
	var err error
	if e.StartedAt, err = time.Parse(time.RFC3339Nano, str("started_at")); err != nil {
		return Entry{}, fmt.Errorf("started_at: %w", err)
	}
	if e.CompletedAt, err = time.Parse(time.RFC3339Nano, str("completed_at")); err != nil {
		return Entry{}, fmt.Errorf("completed_at: %w", err)
	}
	return e, nil
}
