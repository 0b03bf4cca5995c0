package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  format: json
audit:
  path: ~/pipex-audit.jsonl
daemon:
  idle_timeout: 30s
  metrics_addr: 127.0.0.1:9310
rules:
  deny: [sudo, "mkfs.*"]
  programs:
    make:
      reject_flags: [-j]
`), 0o644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "stderr", cfg.Log.Output)
	assert.Equal(t, 30*time.Second, cfg.Daemon.IdleTimeoutDuration())
	assert.Equal(t, "127.0.0.1:9310", cfg.Daemon.MetricsAddr)
	assert.Equal(t, []string{"sudo", "mkfs.*"}, cfg.Rules.Deny)
	assert.Equal(t, []string{"-j"}, cfg.Rules.Programs["make"].RejectFlags)

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "pipex-audit.jsonl"), cfg.Audit.Path)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: [unclosed"), 0o644))
	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	t.Setenv("PIPEX_LOG_LEVEL", "trace")
	t.Setenv("PIPEX_AUDIT_PATH", "/var/tmp/audit.jsonl")
	t.Setenv("PIPEX_DAEMON_IDLE_TIMEOUT", "1m")
	t.Setenv("PIPEX_DAEMON_ENABLED", "false")
	t.Setenv("PIPEX_RULES_DENY", "sudo,dd")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "trace", cfg.Log.Level)
	assert.Equal(t, "/var/tmp/audit.jsonl", cfg.Audit.Path)
	assert.Equal(t, time.Minute, cfg.Daemon.IdleTimeoutDuration())
	require.NotNil(t, cfg.Daemon.Enabled)
	assert.False(t, *cfg.Daemon.Enabled)
	assert.False(t, cfg.Daemon.Remote())
	assert.Equal(t, []string{"sudo", "dd"}, cfg.Rules.Deny)
}

func TestBadEnvOverride(t *testing.T) {
	t.Setenv("PIPEX_AUDIT_DISABLED", "not-a-bool")
	_, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestIdleTimeoutDefault(t *testing.T) {
	d := DaemonConfig{IdleTimeout: "bogus"}
	assert.Equal(t, DefaultIdleTimeout, d.IdleTimeoutDuration())
}

func TestRuleSet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules.PolicyFile = filepath.Join(t.TempDir(), "absent.yaml")
	cfg.Rules.Deny = []string{"sudo"}

	rs, err := cfg.RuleSet()
	require.NoError(t, err)
	assert.Error(t, rs.Check("sudo", nil, false))
	assert.NoError(t, rs.Check("sudo", nil, true))
	assert.Error(t, rs.Check("git", []string{"push", "--force"}, false))
	assert.Error(t, rs.Check("git", []string{"checkout", "."}, false))
	assert.Error(t, rs.Check("rm", []string{"-rf", "/"}, true))
	assert.NoError(t, rs.Check("cat", []string{"file"}, false))

	cfg.Rules.Deny = []string{"[bad"}
	_, err = cfg.RuleSet()
	assert.Error(t, err)
}

func TestDaemonRemote(t *testing.T) {
	var d DaemonConfig
	assert.False(t, d.Remote())
	on := true
	d.Enabled = &on
	assert.True(t, d.Remote())
}

func TestRuleSetPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`policies:
  - id: allow-force-push-scratch
    match: {program: git, subcmd: push, args_glob: ["scratch/**"]}
    decision: allow
    approved: true
  - id: no-curl
    match: {program: curl}
    decision: deny
    reasoning: network access goes through the proxy
    approved: true
`), 0o644))

	cfg := DefaultConfig()
	cfg.Rules.PolicyFile = path
	rs, err := cfg.RuleSet()
	require.NoError(t, err)
	assert.NoError(t, rs.Check("git", []string{"push", "--force", "scratch/wip"}, false))
	assert.Error(t, rs.Check("git", []string{"push", "--force", "main"}, false))
	assert.ErrorContains(t, rs.Check("curl", []string{"example.com"}, false), "proxy")

	require.NoError(t, os.WriteFile(path, []byte("policies:\n  - id: x\n    match: {program: ls}\n    decision: maybe\n"), 0o644))
	_, err = cfg.RuleSet()
	assert.Error(t, err)
}
