package ipc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimePaths(t *testing.T) {
	p, err := RuntimePaths("/run/custom")
	require.NoError(t, err)
	assert.Equal(t, "/run/custom/daemon.sock", p.Socket())
	assert.Equal(t, "/run/custom/daemon.pid", p.Pid())

	xdg := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", xdg)
	p, err = RuntimePaths("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(xdg, "pipex"), p.Dir)

	home := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("HOME", home)
	p, err = RuntimePaths("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local", "share", "pipex"), p.Dir)
}
