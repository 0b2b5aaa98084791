// Package config loads runtime configuration from file, environment, and
// defaults via viper. When a config file is given, the Loader watches it and
// re-reads the whole Config on change, handing the result to callbacks
// registered with OnChange; the Loader itself applies no value to running
// components.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	// ClaudeExecutable is the path to the CLI assistant binary.
	ClaudeExecutable string `mapstructure:"claude_executable"`

	// DefaultPolicy names the permission policy new Executors start with.
	DefaultPolicy string `mapstructure:"default_policy"`

	// MaxConcurrentExecutors is the configured limit on live Executors
	// (default 5). It is loaded and defaulted here; the command surface does
	// not read or enforce it.
	MaxConcurrentExecutors int `mapstructure:"max_concurrent_executors"`

	// ClaudeModel selects the model passed to every spawned CLI session
	// (claude.WithModel). Empty leaves internal/claude's default model
	// (defaultOptions) in place, which is still passed to the CLI as --model.
	ClaudeModel string `mapstructure:"claude_model"`

	// SystemPrompt overrides the CLI's default system prompt for every
	// spawned session (claude.WithSystemPrompt). Empty leaves it unset.
	SystemPrompt string `mapstructure:"system_prompt"`

	// MaxTurns caps the number of agentic turns per session
	// (claude.WithMaxTurns). Zero means no cap.
	MaxTurns int `mapstructure:"max_turns"`

	// Effort sets the CLI's reasoning effort level (claude.WithEffort):
	// "low", "medium", or "high". Empty leaves the CLI's own default.
	Effort string `mapstructure:"effort"`

	// Thinking controls extended thinking mode (claude.WithThinking):
	// "adaptive", "disabled", or "enabled". Empty leaves internal/claude's
	// default mode (defaultOptions), which is still passed as --thinking.
	Thinking string `mapstructure:"thinking"`

	// FallbackModel is used when ClaudeModel is unavailable
	// (claude.WithFallbackModel). Empty disables fallback.
	FallbackModel string `mapstructure:"fallback_model"`

	// MaxBudgetUSD caps the cost of a single session (claude.WithMaxBudgetUSD).
	// Zero means no cap.
	MaxBudgetUSD float64 `mapstructure:"max_budget_usd"`

	Timeouts  Timeouts  `mapstructure:"timeouts"`
	Logging   Logging   `mapstructure:"logging"`
	Command   Command   `mapstructure:"command_surface"`
}

// Timeouts collects every named timeout in spec §4 and §5.
type Timeouts struct {
	Init     time.Duration `mapstructure:"init"`
	Prompt   time.Duration `mapstructure:"prompt"`
	Shutdown time.Duration `mapstructure:"shutdown"`
	Stale    time.Duration `mapstructure:"stale"`
	Cancel   time.Duration `mapstructure:"cancel"`
}

// Logging mirrors logging.Config's mapstructure tags so it can be bound by viper.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Command configures the HTTP+WebSocket command surface.
type Command struct {
	BindAddr string `mapstructure:"bind_addr"`
}

func defaults() Config {
	return Config{
		ClaudeExecutable:       "claude",
		DefaultPolicy:          "standard",
		MaxConcurrentExecutors: 5,
		Timeouts: Timeouts{
			Init:     30 * time.Second,
			Prompt:   5 * time.Minute,
			Shutdown: 5 * time.Second,
			Stale:    60 * time.Second,
			Cancel:   3 * time.Second,
		},
		Logging: Logging{Level: "info", Format: "console"},
		Command: Command{BindAddr: "127.0.0.1:8787"},
	}
}

// Loader owns a viper instance and the last successfully parsed Config. With
// a config file it watches the file via fsnotify and re-parses the whole
// Config on every change.
type Loader struct {
	v *viper.Viper

	mu      sync.RWMutex
	current Config

	onChange []func(Config)
}

// NewLoader builds a Loader. path may be empty, in which case only
// environment variables (prefixed ACP_) and built-in defaults apply.
func NewLoader(path string) (*Loader, error) {
	v := viper.New()
	v.SetEnvPrefix("ACP")
	v.AutomaticEnv()

	d := defaults()
	v.SetDefault("claude_executable", d.ClaudeExecutable)
	v.SetDefault("default_policy", d.DefaultPolicy)
	v.SetDefault("max_concurrent_executors", d.MaxConcurrentExecutors)
	v.SetDefault("claude_model", d.ClaudeModel)
	v.SetDefault("system_prompt", d.SystemPrompt)
	v.SetDefault("max_turns", d.MaxTurns)
	v.SetDefault("effort", d.Effort)
	v.SetDefault("thinking", d.Thinking)
	v.SetDefault("fallback_model", d.FallbackModel)
	v.SetDefault("max_budget_usd", d.MaxBudgetUSD)
	v.SetDefault("timeouts.init", d.Timeouts.Init)
	v.SetDefault("timeouts.prompt", d.Timeouts.Prompt)
	v.SetDefault("timeouts.shutdown", d.Timeouts.Shutdown)
	v.SetDefault("timeouts.stale", d.Timeouts.Stale)
	v.SetDefault("timeouts.cancel", d.Timeouts.Cancel)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("command_surface.bind_addr", d.Command.BindAddr)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	l := &Loader{v: v}
	if err := l.reload(); err != nil {
		return nil, err
	}

	if path != "" {
		v.OnConfigChange(func(fsnotify.Event) {
			if err := l.reload(); err == nil {
				l.notify()
			}
		})
		v.WatchConfig()
	}

	return l, nil
}

func (l *Loader) reload() error {
	var c Config
	if err := l.v.Unmarshal(&c); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}
	l.mu.Lock()
	l.current = c
	l.mu.Unlock()
	return nil
}

func (l *Loader) notify() {
	l.mu.RLock()
	c := l.current
	cbs := append([]func(Config){}, l.onChange...)
	l.mu.RUnlock()
	for _, cb := range cbs {
		cb(c)
	}
}

// Current returns a snapshot of the configuration.
func (l *Loader) Current() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the watched file changes and
// reparses successfully, with the full new Config. The Loader pushes no field
// into running components itself; only what a callback applies changes.
func (l *Loader) OnChange(fn func(Config)) {
	l.mu.Lock()
	l.onChange = append(l.onChange, fn)
	l.mu.Unlock()
}
