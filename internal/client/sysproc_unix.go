//go:build unix

package client

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr detaches the daemon from the caller's session so it
// outlives the terminal that started it.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
