package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antonkrylov/logwise/internal/agent"
)

func TestLoadAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: 127.0.0.1:9999
command_timeout: 90s
recovery: refuse
blacklist:
  exact: [exit]
  prefix: []
history:
  sqlite_path: /tmp/history.db
  jetstream:
    url: nats://127.0.0.1:4222
tracing:
  enabled: true
  exporter: stdout
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	require.Equal(t, "127.0.0.1:9999", cfg.Listen)
	require.Equal(t, 90*time.Second, cfg.CommandTimeout)
	require.Equal(t, "refuse", cfg.Recovery)
	require.Equal(t, "/tmp/history.db", cfg.History.SQLitePath)
	require.Equal(t, "logwise", cfg.History.JetStream.SubjectPrefix)
	require.Equal(t, DefaultHistoryLimit, cfg.History.Limit)
	require.True(t, cfg.Tracing.Enabled)

	rules := cfg.Rules()
	f := agent.NewFilter(rules)
	_, blocked := f.Check("exit")
	require.True(t, blocked)
	_, blocked = f.Check("sudo ls")
	require.False(t, blocked, "empty prefix list disables prefix rules")
	_, blocked = f.Check("python")
	require.True(t, blocked, "missing list keeps defaults")

	sc := cfg.SessionConfig(nil)
	require.Equal(t, agent.RecoveryRefuse, sc.Recovery)
	require.Equal(t, "/bin/bash", sc.Shell)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)
}

func TestApplyEnvOnlyFillsUnset(t *testing.T) {
	env := map[string]string{
		"LOGWISE_LISTEN":          "0.0.0.0:1",
		"LOGWISE_TOKEN":           "__ENV_TOKEN__",
		"LOGWISE_COMMAND_TIMEOUT": "120",
		"LOGWISE_NATS_URL":        "nats://example:4222",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := &Config{Listen: "127.0.0.1:2"}
	cfg.ApplyEnv(lookup)

	require.Equal(t, "127.0.0.1:2", cfg.Listen)
	require.Equal(t, "__ENV_TOKEN__", cfg.Token)
	require.Equal(t, 120*time.Second, cfg.CommandTimeout)
	require.Equal(t, "nats://example:4222", cfg.History.JetStream.URL)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := &Config{}
		c.SetDefaults()
		return c
	}

	c := base()
	c.Recovery = "sometimes"
	require.Error(t, c.Validate())

	c = base()
	c.Token = "bad'token'value"
	require.Error(t, c.Validate())

	c = base()
	c.GRPCListen = c.Listen
	require.Error(t, c.Validate())

	c = base()
	c.Workdir = filepath.Join(t.TempDir(), "missing")
	require.Error(t, c.Validate())

	require.NoError(t, base().Validate())
}

func TestHistoryOptions(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	opts := c.HistoryOptions(nil)
	require.Equal(t, DefaultHistoryLimit, opts.Limit)
	require.Nil(t, opts.SQLite)
	require.Nil(t, opts.JetStream)

	c.History.SQLitePath = "/var/lib/logwise/history.db"
	c.History.JetStream.URL = "nats://127.0.0.1:4222"
	opts = c.HistoryOptions(nil)
	require.Equal(t, "/var/lib/logwise/history.db", opts.SQLite.Path)
	require.Equal(t, 4096, opts.SQLite.CompressOver)
	require.Equal(t, "logwise_history", opts.JetStream.Stream)
	require.Equal(t, "logwise", opts.JetStream.SubjectPrefix)
}
