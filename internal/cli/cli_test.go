//go:build unix

package cli

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelocantos/pipex/internal/audit"
	"github.com/marcelocantos/pipex/internal/ipc"
	"github.com/marcelocantos/pipex/internal/pipeline"
	"github.com/marcelocantos/pipex/internal/rules"
)

func requireTools(t *testing.T, tools ...string) {
	t.Helper()
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not available: %v", tool, err)
		}
	}
}

type testEnv struct {
	Env
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	path   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := audit.NewLogger(path)
	require.NoError(t, err)

	rs := rules.NewRuleSet(rules.Hardcoded()...)
	deny, err := rules.CompileDeny([]string{"shutdown"})
	require.NoError(t, err)
	rs.AddConfig(deny)

	te := &testEnv{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}, path: path}
	te.Env = Env{
		Rules:  rs,
		Audit:  logger,
		Log:    zerolog.Nop(),
		Stdin:  strings.NewReader(""),
		Stdout: te.stdout,
		Stderr: te.stderr,
	}
	return te
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func writeChain(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunChainDecisiveStatus(t *testing.T) {
	requireTools(t, "echo", "tr", "false")
	env := newTestEnv(t)

	code := RunChain(testContext(t), env.Env, []pipeline.Command{
		{Argv: []string{"echo", "hello"}},
		{Argv: []string{"tr", "a-z", "A-Z"}},
	}, Flags{})
	assert.Equal(t, 0, code)
	assert.Equal(t, "HELLO\n", env.stdout.String())
	assert.Empty(t, env.stderr.String())

	code = RunChain(testContext(t), env.Env, []pipeline.Command{
		{Argv: []string{"echo", "x"}},
		{Argv: []string{"false"}},
	}, Flags{})
	assert.Equal(t, 1, code)
	assert.Empty(t, env.stderr.String(), "a failing last command is not reported")
}

func TestRunChainRejected(t *testing.T) {
	env := newTestEnv(t)

	code := RunChain(testContext(t), env.Env, []pipeline.Command{
		{Argv: []string{"echo", "x"}},
		{Argv: []string{"/sbin/shutdown", "now"}},
	}, Flags{})
	assert.Equal(t, ipc.ExitCallFailed, code)
	assert.Contains(t, env.stderr.String(), "pipex: ")
	assert.Contains(t, env.stderr.String(), "command 2")
}

func TestRunChainRetryBypassesConfigRules(t *testing.T) {
	requireTools(t, "true")
	env := newTestEnv(t)
	deny, err := rules.CompileDeny([]string{"true"})
	require.NoError(t, err)
	env.Rules.AddConfig(deny)

	cmds := []pipeline.Command{{Argv: []string{"true"}}}
	assert.Equal(t, ipc.ExitCallFailed, RunChain(testContext(t), env.Env, cmds, Flags{}))
	assert.Equal(t, 0, RunChain(testContext(t), env.Env, cmds, Flags{Retry: true}))
}

func TestRunChainStatus(t *testing.T) {
	requireTools(t, "true")
	env := newTestEnv(t)

	code := RunChain(testContext(t), env.Env, []pipeline.Command{
		{Argv: []string{"true"}},
		{Argv: []string{"pipex-no-such-program"}},
	}, Flags{Status: true})
	assert.Equal(t, pipeline.ExitExecFailed, code)

	lines := strings.Split(strings.TrimSpace(env.stderr.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "[0] true pid="), lines[0])
	assert.Contains(t, lines[0], "exit=0")
	assert.True(t, strings.HasPrefix(lines[1], "[1] pipex-no-such-program pid=0 exit=127"), lines[1])
	assert.Contains(t, lines[1], "exec failed")
}

func TestRunChainAudited(t *testing.T) {
	requireTools(t, "echo", "cat")
	env := newTestEnv(t)

	RunChain(testContext(t), env.Env, []pipeline.Command{
		{Argv: []string{"echo", "x"}},
		{Argv: []string{"cat"}},
	}, Flags{Retry: true})

	entries, err := audit.Tail(env.path, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "echo x | cat", e.Chain)
	assert.Equal(t, "cli", e.Origin)
	assert.True(t, e.Retry)
	assert.Equal(t, []int{0, 0}, e.ExitCodes)
	assert.Len(t, e.Pids, 2)
	require.NoError(t, audit.Verify(env.path))
}

func TestRunChainWithoutAudit(t *testing.T) {
	requireTools(t, "true")
	env := newTestEnv(t)
	env.Audit = nil
	env.Rules = nil

	assert.Equal(t, 0, RunChain(testContext(t), env.Env,
		[]pipeline.Command{{Argv: []string{"true"}}}, Flags{}))
}

func TestRunFile(t *testing.T) {
	requireTools(t, "sort", "uniq")
	env := newTestEnv(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(in, []byte("b\na\nb\n"), 0o644))

	path := writeChain(t, "chain.yaml", `commands:
  - argv: [sort]
    input_file: `+in+`
  - argv: [uniq]
    output_file: `+out+`
`)
	assert.Equal(t, 0, RunFile(testContext(t), env.Env, path, Flags{}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(data))
	assert.Empty(t, env.stdout.String())
}

func TestRunFileStarlark(t *testing.T) {
	requireTools(t, "echo", "wc")
	env := newTestEnv(t)

	path := writeChain(t, "chain.star", `chain = [cmd("echo", "one two three"), cmd("wc", "-w")]`)
	assert.Equal(t, 0, RunFile(testContext(t), env.Env, path, Flags{}))
	assert.Equal(t, "3", strings.TrimSpace(env.stdout.String()))
}

func TestRunFileErrors(t *testing.T) {
	env := newTestEnv(t)

	code := RunFile(testContext(t), env.Env, filepath.Join(t.TempDir(), "missing.yaml"), Flags{})
	assert.Equal(t, ipc.ExitCallFailed, code)
	assert.Contains(t, env.stderr.String(), "pipex: ")

	env.stderr.Reset()
	code = RunFile(testContext(t), env.Env, writeChain(t, "chain.txt", "echo"), Flags{})
	assert.Equal(t, ipc.ExitCallFailed, code)
	assert.Contains(t, env.stderr.String(), "unknown format")

	env.stderr.Reset()
	code = RunFile(testContext(t), env.Env, writeChain(t, "chain.yaml", "commands: []\n"), Flags{})
	assert.Equal(t, ipc.ExitCallFailed, code)
	assert.Contains(t, env.stderr.String(), pipeline.ErrEmptyChain.Error())
}

func TestParseFlags(t *testing.T) {
	f, rest := ParseFlags([]string{"--status", "--retry", "chain.yaml", "--retry"})
	assert.Equal(t, Flags{Retry: true, Status: true}, f)
	assert.Equal(t, []string{"chain.yaml", "--retry"}, rest)

	f, rest = ParseFlags(nil)
	assert.Equal(t, Flags{}, f)
	assert.Empty(t, rest)
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, []ipc.ProcessStatus{
		{Program: "yes", Pid: 10, ExitCode: 141, Signal: 13, Duration: 1.25},
		{Program: "head", Pid: 11, ExitCode: 0, Duration: 0.5},
	})
	assert.Equal(t,
		"[0] yes pid=10 exit=141 signal=SIGPIPE 1.2ms\n[1] head pid=11 exit=0 0.5ms\n",
		buf.String())
}

func TestRunAudit(t *testing.T) {
	requireTools(t, "true")
	env := newTestEnv(t)
	for range 3 {
		RunChain(testContext(t), env.Env, []pipeline.Command{{Argv: []string{"true"}}}, Flags{})
	}

	var buf bytes.Buffer
	assert.Equal(t, 0, RunAudit(&buf, env.path, []string{"verify"}))
	assert.Contains(t, buf.String(), "verified")

	buf.Reset()
	assert.Equal(t, 0, RunAudit(&buf, env.path, []string{"show", "2"}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "2 "), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "exit=0 cli true"), lines[1])

	buf.Reset()
	assert.Equal(t, 0, RunAudit(&buf, env.path, []string{"tail", "1"}))
	assert.Contains(t, buf.String(), `"seq": 3`)

	buf.Reset()
	assert.Equal(t, 1, RunAudit(&buf, env.path, []string{"tail", "x"}))
	assert.Equal(t, 1, RunAudit(&buf, env.path, []string{"bogus"}))
	assert.Equal(t, 1, RunAudit(&buf, env.path, nil))
}

func TestRunHelp(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, 0, RunHelp(&buf))
	assert.Contains(t, buf.String(), "pipex --remote")
	assert.Contains(t, buf.String(), "input_file")
}
