package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/marcelocantos/pipex/internal/rules"
)

// EnvPrefix prefixes every environment override, e.g. PIPEX_LOG_LEVEL.
const EnvPrefix = "pipex"

// Config holds the global pipex configuration.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Audit  AuditConfig  `yaml:"audit"`
	Rules  RulesConfig  `yaml:"rules"`
	Daemon DaemonConfig `yaml:"daemon"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
	Output string `yaml:"output"` // stderr, stdout or a file path
}

// DaemonConfig controls daemon behavior.
type DaemonConfig struct {
	// Enabled: true routes every chain through the daemon, as if --remote
	// were given. nil and false run chains in-process.
	Enabled     *bool  `yaml:"enabled"`
	IdleTimeout string `yaml:"idle_timeout" split_words:"true"`
	MetricsAddr string `yaml:"metrics_addr" split_words:"true"` // empty disables /metrics
	RuntimeDir  string `yaml:"runtime_dir" split_words:"true"`  // socket and pid file; empty picks a default
}

// Remote reports whether chains should run through the daemon by default.
func (d *DaemonConfig) Remote() bool {
	return d.Enabled != nil && *d.Enabled
}

// DefaultIdleTimeout is used when no idle_timeout is configured.
const DefaultIdleTimeout = 5 * time.Minute

// IdleTimeoutDuration parses the configured idle timeout or returns the default.
func (d *DaemonConfig) IdleTimeoutDuration() time.Duration {
	if d.IdleTimeout != "" {
		dur, err := time.ParseDuration(d.IdleTimeout)
		if err == nil {
			return dur
		}
	}
	return DefaultIdleTimeout
}

// AuditConfig controls audit log settings.
type AuditConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// RulesConfig holds the config-driven guard rules.
type RulesConfig struct {
	Deny       []string                       `yaml:"deny"`                           // program name globs
	PolicyFile string                         `yaml:"policy_file" split_words:"true"` // reviewed allow/deny entries
	Programs   map[string]rules.ExeRuleConfig `yaml:"programs" ignored:"true"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
			Output: "stderr",
		},
		Audit: AuditConfig{
			Path: filepath.Join(home, ".local", "share", "pipex", "audit.jsonl"),
		},
		Rules: RulesConfig{
			PolicyFile: filepath.Join(home, ".config", "pipex", "policy.yaml"),
		},
	}
}

// Load reads the config from the standard location (~/.config/pipex/config.yaml)
// and applies PIPEX_* environment overrides. If the file doesn't exist, the
// defaults are used.
func Load() (*Config, error) {
	if _, err := os.UserHomeDir(); err != nil {
		cfg := DefaultConfig()
		return cfg, applyEnv(cfg)
	}
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config from the given path, then applies environment
// overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.Audit.Path = expandHome(cfg.Audit.Path)
	cfg.Rules.PolicyFile = expandHome(cfg.Rules.PolicyFile)
	cfg.Daemon.RuntimeDir = expandHome(cfg.Daemon.RuntimeDir)

	return cfg, nil
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, path[1:])
}

func applyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// DefaultRules returns the default argument-level rules.
func DefaultRules() map[string]rules.ExeRuleConfig {
	return map[string]rules.ExeRuleConfig{
		"git": {
			Subcommands: map[string]rules.SubRuleConfig{
				"push":  {RejectFlags: []string{"--force", "-f", "--force-with-lease"}},
				"reset": {RejectFlags: []string{"--hard"}},
			},
		},
	}
}

// RuleSet compiles the configured rules. Hardcoded safety rules are always
// included. Programmatic default rules (like git checkout .) are added as
// config rules so they can be bypassed with --retry.
func (c *Config) RuleSet() (*rules.RuleSet, error) {
	rs := rules.NewRuleSet(rules.Hardcoded()...)
	progRules := c.Rules.Programs
	if progRules == nil {
		progRules = DefaultRules()
	}
	for name, r := range progRules {
		for _, fn := range rules.CompileExeRule(name, r) {
			rs.AddConfig(fn)
		}
	}
	if len(c.Rules.Deny) > 0 {
		deny, err := rules.CompileDeny(c.Rules.Deny)
		if err != nil {
			return nil, fmt.Errorf("rules: %w", err)
		}
		rs.AddConfig(deny)
	}
	if c.Rules.PolicyFile != "" {
		ps, err := rules.LoadPolicies(c.Rules.PolicyFile)
		if err != nil {
			return nil, err
		}
		if err := rs.AddPolicies(ps...); err != nil {
			return nil, err
		}
	}
	// Programmatic default rules that can't be expressed in YAML config.
	rs.AddConfig(rules.CheckGitCheckoutAll)
	return rs, nil
}

// ConfigPath returns the standard config file path.
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pipex", "config.yaml")
}
