package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/antonkrylov/logwise/internal/agent"
	"github.com/antonkrylov/logwise/internal/history"
	"github.com/antonkrylov/logwise/internal/tracing"
)

const (
	DefaultListen       = "127.0.0.1:9090"
	DefaultHistoryLimit = 500
)

// Config is the agent's configuration file. Zero values are filled in by
// SetDefaults.
type Config struct {
	Listen         string        `yaml:"listen"`
	GRPCListen     string        `yaml:"grpc_listen"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	StartupTimeout time.Duration `yaml:"startup_timeout"`
	Token          string        `yaml:"token"`
	Shell          string        `yaml:"shell"`
	ShellArgs      []string      `yaml:"shell_args"`
	Workdir        string        `yaml:"workdir"`
	Recovery       string        `yaml:"recovery"`

	RateLimit RateLimit      `yaml:"rate_limit"`
	Blacklist Blacklist      `yaml:"blacklist"`
	History   History        `yaml:"history"`
	Tracing   tracing.Config `yaml:"tracing"`
}

type RateLimit struct {
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
	Disabled       bool `yaml:"disabled"`
}

// Blacklist overrides the built-in rule lists. A nil list keeps the default;
// an explicit empty list disables that class of rule.
type Blacklist struct {
	Exact    []string `yaml:"exact"`
	Prefix   []string `yaml:"prefix"`
	BareREPL []string `yaml:"bare_repl"`
}

type History struct {
	Limit        int       `yaml:"limit"`
	SQLitePath   string    `yaml:"sqlite_path"`
	CompressOver int       `yaml:"compress_over"`
	JetStream    JetStream `yaml:"jetstream"`
}

type JetStream struct {
	URL           string `yaml:"url"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Stream        string `yaml:"stream"`
}

// Load reads a YAML config file. An empty path yields an empty config.
func Load(path string) (*Config, error) {
	var cfg Config
	path = strings.TrimSpace(path)
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %s does not exist", path)
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv fills unset fields from LOGWISE_* environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(target *string, key string) {
		if *target != "" {
			return
		}
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	dur := func(target *time.Duration, key string) {
		if *target != 0 {
			return
		}
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		if d, err := parseDuration(v); err == nil {
			*target = d
		}
	}
	str(&c.Listen, "LOGWISE_LISTEN")
	str(&c.GRPCListen, "LOGWISE_GRPC_LISTEN")
	str(&c.Token, "LOGWISE_TOKEN")
	str(&c.Shell, "LOGWISE_SHELL")
	str(&c.Workdir, "LOGWISE_WORKDIR")
	str(&c.Recovery, "LOGWISE_RECOVERY")
	str(&c.History.SQLitePath, "LOGWISE_HISTORY_DB")
	str(&c.History.JetStream.URL, "LOGWISE_NATS_URL")
	str(&c.History.JetStream.User, "LOGWISE_NATS_USER")
	str(&c.History.JetStream.Password, "LOGWISE_NATS_PASS")
	dur(&c.CommandTimeout, "LOGWISE_COMMAND_TIMEOUT")
}

// parseDuration accepts Go durations ("30m") and bare seconds ("1800").
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = agent.DefaultCommandTimeout
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 10 * time.Second
	}
	if c.Shell == "" {
		c.Shell = "/bin/bash"
	}
	if c.ShellArgs == nil {
		c.ShellArgs = append([]string(nil), agent.DefaultShellArgs...)
	}
	if c.Recovery == "" {
		c.Recovery = string(agent.RecoveryRestart)
	}
	if c.RateLimit.RequestsPerMin <= 0 {
		c.RateLimit.RequestsPerMin = 600
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 60
	}
	if c.History.Limit <= 0 {
		c.History.Limit = DefaultHistoryLimit
	}
	if c.History.CompressOver <= 0 {
		c.History.CompressOver = 4096
	}
	if c.History.JetStream.SubjectPrefix == "" {
		c.History.JetStream.SubjectPrefix = "logwise"
	}
	if c.History.JetStream.Stream == "" {
		c.History.JetStream.Stream = "logwise_history"
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("listen address is required")
	}
	if c.GRPCListen != "" && c.GRPCListen == c.Listen {
		return errors.New("grpc_listen must differ from listen")
	}
	if _, err := agent.ParseRecoveryPolicy(c.Recovery); err != nil {
		return err
	}
	if c.Token != "" {
		if err := agent.ValidateToken(c.Token); err != nil {
			return err
		}
	}
	if c.Workdir != "" {
		fi, err := os.Stat(c.Workdir)
		if err != nil {
			return fmt.Errorf("workdir: %w", err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("workdir %s is not a directory", c.Workdir)
		}
	}
	return nil
}

// Rules returns the ordered blacklist, falling back to the built-in lists.
func (c *Config) Rules() []agent.Rule {
	exact, prefix, repl := c.Blacklist.Exact, c.Blacklist.Prefix, c.Blacklist.BareREPL
	if exact == nil {
		exact = agent.DefaultExact
	}
	if prefix == nil {
		prefix = agent.DefaultPrefixes
	}
	if repl == nil {
		repl = agent.DefaultREPLs
	}
	return agent.RulesFrom(exact, prefix, repl)
}

func (c *Config) SessionConfig(logger *slog.Logger) agent.SessionConfig {
	recovery, _ := agent.ParseRecoveryPolicy(c.Recovery)
	return agent.SessionConfig{
		Shell:          c.Shell,
		Args:           c.ShellArgs,
		Dir:            c.Workdir,
		Token:          c.Token,
		StartupTimeout: c.StartupTimeout,
		Recovery:       recovery,
		Logger:         logger,
	}
}

// HistoryOptions maps the history section onto store options. Backends
// without an address are left out.
func (c *Config) HistoryOptions(logger *slog.Logger) *history.Options {
	opts := &history.Options{Logger: logger, Limit: c.History.Limit}
	if c.History.SQLitePath != "" {
		opts.SQLite = &history.SQLiteOptions{
			Path:         c.History.SQLitePath,
			CompressOver: c.History.CompressOver,
		}
	}
	if js := c.History.JetStream; js.URL != "" {
		opts.JetStream = &history.JetStreamOptions{
			URL:           js.URL,
			User:          js.User,
			Password:      js.Password,
			SubjectPrefix: js.SubjectPrefix,
			Stream:        js.Stream,
		}
	}
	return opts
}
