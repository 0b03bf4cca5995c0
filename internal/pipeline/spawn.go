// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/marcelocantos/pipex/internal/pipe"
)

// SpawnRequest describes one process to create.
type SpawnRequest struct {
	Index int
	Argv  []string
	Dir   string
	Env   []string // nil inherits the parent's environment
	Stdio *pipe.Stdio
}

// Status is how a process terminated.
type Status struct {
	ExitCode int
	Signal   syscall.Signal
}

// Process is a created child.
type Process interface {
	Pid() int
	Signal(sig os.Signal) error
	Wait() (Status, error)
}

// Spawner creates processes. The child must receive exactly the streams in
// req.Stdio and no other descriptor of the parent.
type Spawner interface {
	Spawn(ctx context.Context, req SpawnRequest) (Process, error)
}

// ExecSpawner creates processes with os/exec. Descriptors in Stdio are
// duplicated onto the child's standard streams; every other descriptor the
// parent holds is close-on-exec and never reaches the child.
type ExecSpawner struct{}

var _ Spawner = ExecSpawner{}

func (ExecSpawner) Spawn(ctx context.Context, req SpawnRequest) (Process, error) {
	cmd := exec.CommandContext(ctx, req.Argv[0], req.Argv[1:]...) //nolint:gosec // running caller-supplied programs is the point
	cmd.Dir = req.Dir
	cmd.Env = req.Env
	cmd.Stdin = req.Stdio.Stdin
	cmd.Stdout = req.Stdio.Stdout
	cmd.Stderr = req.Stdio.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

// Wait reaps the child. A non-zero exit is a status, not an error; errors are
// reserved for failures of the wait itself or of stream copying.
func (p *execProcess) Wait() (Status, error) {
	err := p.cmd.Wait()
	st := statusOf(p.cmd.ProcessState)
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return st, err
	}
	return st, nil
}

func statusOf(ps *os.ProcessState) Status {
	if ps == nil {
		return Status{ExitCode: -1}
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Status{ExitCode: 128 + int(ws.Signal()), Signal: ws.Signal()}
	}
	return Status{ExitCode: ps.ExitCode()}
}
