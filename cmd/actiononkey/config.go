package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
//
// It is loaded exactly once at startup, either from a YAML file or from the
// KEY=VALUE file format used by existing device packages (see
// legacy_config.go). Flags may override a handful of fields afterwards.
type Config struct {
	// Name is the display name used as the notification application name.
	Name string `yaml:"name"`

	// Device is the input event device to watch, e.g. /dev/input/event2.
	Device string `yaml:"device"`

	// Grab requests exclusive access to the device (EVIOCGRAB).
	Grab bool `yaml:"grab,omitempty"`

	// Executor selects how action commands run: "queued" or "direct".
	Executor string `yaml:"executor"`

	// Shell is the interpreter invoked as `<shell> -c <command>`.
	Shell string `yaml:"shell"`

	Notifications NotificationsConfig `yaml:"notifications"`

	Actions []ActionConfig `yaml:"actions"`

	IPC IPCConfig `yaml:"ipc"`

	HTTP HTTPConfig `yaml:"http"`

	Logging LoggingConfig `yaml:"logging"`
}

type NotificationsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Backend string `yaml:"backend"` // "dbus" or "beeep"
}

// ActionConfig is one key mapping as written in the config file.
type ActionConfig struct {
	KeyCode *int   `yaml:"key_code"`
	Command string `yaml:"command"`
	Title   string `yaml:"title"`
	Message string `yaml:"message,omitempty"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"` // empty disables the IPC server
}

type HTTPConfig struct {
	Listen string `yaml:"listen"` // empty disables the trigger feed
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Executor kinds
const (
	ExecutorQueued = "queued"
	ExecutorDirect = "direct"
)

// Notification backends
const (
	NotifyBackendDBus  = "dbus"
	NotifyBackendBeeep = "beeep"
)

// DefaultConfig returns a Config with every optional field populated.
func DefaultConfig() Config {
	return Config{
		Name:     defaultName,
		Executor: ExecutorQueued,
		Shell:    defaultShell,
		Notifications: NotificationsConfig{
			Enabled: true,
			Backend: NotifyBackendDBus,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads path as YAML when it has a .yaml/.yml extension and as a
// KEY=VALUE file otherwise. Any failure wraps ErrConfigLoad.
func LoadConfig(path string) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadConfigFile(path)
	default:
		return LoadLegacyConfigFile(path)
	}
}

// LoadConfigFile reads and parses a YAML config file.
// Unknown fields are rejected via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, fmt.Errorf("%w: config path is empty", ErrConfigLoad)
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("%w: read config file: %w", ErrConfigLoad, err)
	}
	return parseConfigYAML(b)
}

func parseConfigYAML(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode config yaml: %w", ErrConfigLoad, err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: decode config yaml: unexpected trailing document", ErrConfigLoad)
	}

	return cfg, nil
}

// FlagOverrides holds flag values that take precedence over the config file.
// A nil pointer means the flag was not set.
type FlagOverrides struct {
	Device        *string
	Grab          *bool
	Executor      *string
	Shell         *string
	IPCSocketPath *string
	HTTPListen    *string
	LogLevel      *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Device != nil {
		cfg.Device = *o.Device
	}
	if o.Grab != nil {
		cfg.Grab = *o.Grab
	}
	if o.Executor != nil {
		cfg.Executor = *o.Executor
	}
	if o.Shell != nil {
		cfg.Shell = *o.Shell
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPListen != nil {
		cfg.HTTP.Listen = *o.HTTPListen
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants. Errors wrap ErrConfigLoad.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigLoad, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.Device == "" {
		return errors.New("device must not be empty")
	}
	if c.Executor == "" {
		c.Executor = ExecutorQueued
	}
	if c.Executor != ExecutorQueued && c.Executor != ExecutorDirect {
		return fmt.Errorf("executor must be %q or %q", ExecutorQueued, ExecutorDirect)
	}
	if c.Shell == "" {
		return errors.New("shell must not be empty")
	}
	if c.Notifications.Backend == "" {
		c.Notifications.Backend = NotifyBackendDBus
	}
	if c.Notifications.Backend != NotifyBackendDBus && c.Notifications.Backend != NotifyBackendBeeep {
		return fmt.Errorf("notifications.backend must be %q or %q", NotifyBackendDBus, NotifyBackendBeeep)
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	if len(c.Actions) == 0 {
		return errors.New("at least one action must be configured")
	}
	seen := make(map[int]int, len(c.Actions))
	for i, a := range c.Actions {
		if a.KeyCode == nil {
			return fmt.Errorf("actions[%d].key_code is missing", i)
		}
		code := *a.KeyCode
		if code <= 0 || code > 0xffff {
			return fmt.Errorf("actions[%d].key_code %d is out of range", i, code)
		}
		if prev, dup := seen[code]; dup {
			return fmt.Errorf("actions[%d].key_code %d duplicates actions[%d]", i, code, prev)
		}
		seen[code] = i
		if strings.TrimSpace(a.Command) == "" {
			return fmt.Errorf("actions[%d].command must not be empty", i)
		}
		if strings.TrimSpace(a.Title) == "" {
			return fmt.Errorf("actions[%d].title must not be empty", i)
		}
		for field, v := range map[string]string{"command": a.Command, "title": a.Title, "message": a.Message} {
			if len(v) > maxConfigValueLen {
				return fmt.Errorf("actions[%d].%s is longer than %d bytes", i, field, maxConfigValueLen)
			}
		}
	}
	return nil
}

// ActionTable builds the immutable lookup table from a validated config.
func (c *Config) ActionTable() (*ActionTable, error) {
	m := make(map[uint16]Action, len(c.Actions))
	for _, a := range c.Actions {
		if a.KeyCode == nil {
			return nil, fmt.Errorf("%w: action without key code", ErrConfigLoad)
		}
		m[uint16(*a.KeyCode)] = Action{
			Command:             a.Command,
			NotificationTitle:   a.Title,
			NotificationMessage: a.Message,
		}
	}
	return NewActionTable(m)
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && p[1] == '/' {
		return filepath.Join(home, p[2:])
	}
	return p
}
