package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelocantos/pipex/internal/pipeline"
)

func TestCompileDeny(t *testing.T) {
	fn, err := CompileDeny([]string{"sudo", "mkfs.*", "{dd,shred}"})
	require.NoError(t, err)

	assert.Error(t, fn("sudo", nil))
	assert.Error(t, fn("mkfs.ext4", nil))
	assert.Error(t, fn("dd", []string{"if=/dev/zero"}))
	assert.Error(t, fn("shred", nil))
	assert.NoError(t, fn("cat", nil))
	assert.NoError(t, fn("mkfs", nil))
}

func TestCompileDenyBadPattern(t *testing.T) {
	_, err := CompileDeny([]string{"[unterminated"})
	assert.Error(t, err)
}

func TestCheckChain(t *testing.T) {
	rs := NewRuleSet(Hardcoded()...)
	deny, err := CompileDeny([]string{"sudo"})
	require.NoError(t, err)
	rs.AddConfig(deny)

	ok := []pipeline.Command{
		{Argv: []string{"cat", "a.txt"}},
		{Argv: []string{"/usr/bin/wc", "-l"}},
	}
	assert.NoError(t, rs.CheckChain(ok, false))

	denied := []pipeline.Command{
		{Argv: []string{"echo", "x"}},
		{Argv: []string{"/usr/bin/sudo", "tee", "/etc/passwd"}},
	}
	err = rs.CheckChain(denied, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command 2")
	assert.NoError(t, rs.CheckChain(denied, true))

	catastrophic := []pipeline.Command{{Argv: []string{"/bin/rm", "-rf", "/"}}}
	assert.Error(t, rs.CheckChain(catastrophic, true))
}

func TestGuardRejectsThroughExecutor(t *testing.T) {
	rs := NewRuleSet(Hardcoded()...)
	e := pipeline.New(pipeline.WithGuard(rs.Guard(false)))

	_, err := e.Run(t.Context(), []pipeline.Command{{Argv: []string{"rm", "-r", "~"}}})
	assert.ErrorIs(t, err, pipeline.ErrRejected)
}

func TestExecutable(t *testing.T) {
	assert.Equal(t, "git", Executable("/usr/bin/git"))
	assert.Equal(t, "git", Executable("git"))
	assert.Equal(t, "tool", Executable("./bin/tool"))
}
