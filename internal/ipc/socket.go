package ipc

import (
	"os"
	"path/filepath"
)

// Paths locates the daemon's runtime files.
type Paths struct {
	Dir string
}

// RuntimePaths resolves the daemon's runtime directory. An explicit dir wins;
// otherwise $XDG_RUNTIME_DIR/pipex/ is preferred, falling back to
// ~/.local/share/pipex/.
func RuntimePaths(dir string) (Paths, error) {
	if dir != "" {
		return Paths{Dir: dir}, nil
	}
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return Paths{Dir: filepath.Join(xdg, "pipex")}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, err
	}
	return Paths{Dir: filepath.Join(home, ".local", "share", "pipex")}, nil
}

// Socket is the daemon's listening socket.
func (p Paths) Socket() string { return filepath.Join(p.Dir, "daemon.sock") }

// Pid holds the daemon's pid while it runs, and its lock.
func (p Paths) Pid() string { return filepath.Join(p.Dir, "daemon.pid") }
