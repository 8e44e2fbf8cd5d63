package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config lists the agents a front end can talk to, one named context each.
type Config struct {
	CurrentContext string              `yaml:"currentContext"`
	Contexts       map[string]*Context `yaml:"contexts"`
}

// Context describes how to reach one agent.
type Context struct {
	Server         string `yaml:"server"`
	Transport      string `yaml:"transport,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

var (
	ErrContextNotFound = errors.New("context not found")
	ErrInvalidContext  = errors.New("invalid context")
)

// Validate checks the fields a connection needs. An empty transport means
// the client default.
func (c *Context) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: empty entry", ErrInvalidContext)
	}
	if strings.TrimSpace(c.Server) == "" {
		return fmt.Errorf("%w: server is required", ErrInvalidContext)
	}
	switch strings.ToLower(strings.TrimSpace(c.Transport)) {
	case "", "http", "grpc":
	default:
		return fmt.Errorf("%w: transport %q (want http or grpc)", ErrInvalidContext, c.Transport)
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: timeoutSeconds must not be negative", ErrInvalidContext)
	}
	return nil
}

// Timeout is the configured client timeout, zero when unset.
func (c *Context) Timeout() time.Duration {
	if c == nil || c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Names returns the context names in sorted order.
func (c *Config) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Validate checks every context and that currentContext, when set, exists.
func (c *Config) Validate() error {
	for _, name := range c.Names() {
		if err := c.Contexts[name].Validate(); err != nil {
			return fmt.Errorf("context %s: %w", name, err)
		}
	}
	if cur := strings.TrimSpace(c.CurrentContext); cur != "" {
		if _, ok := c.Contexts[cur]; !ok {
			return fmt.Errorf("currentContext: %w: %s", ErrContextNotFound, cur)
		}
	}
	return nil
}

// Load reads and validates the file at path. A missing file or an empty
// path yields (nil, nil) so callers fall back to flags and environment.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	full, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", full, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", full, err)
	}
	return cfg, nil
}

// Save validates the config and replaces the file at path through a
// temporary file in the same directory.
func (c *Config) Save(path string) error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is required")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	full, err := ExpandPath(path)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), full)
}

// Resolve returns the named context, or the current one when name is empty.
// A config without a current context resolves to nothing.
func (c *Config) Resolve(name string) (*Context, string, error) {
	if c == nil {
		return nil, "", nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(c.CurrentContext)
	}
	if name == "" {
		return nil, "", nil
	}
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, name, fmt.Errorf("%w: %s", ErrContextNotFound, name)
	}
	return ctx, name, nil
}

// ExpandPath resolves a leading ~ and makes path absolute.
func ExpandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return filepath.Abs(path)
}
