// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/marcelocantos/pipex/internal/pipe"
)

// Option configures an Executor.
type Option func(*Executor)

// Guard inspects a chain before anything is created. A non-nil error rejects
// the chain.
type Guard func(cmds []Command) error

// WithStdin sets the stdin of the first command when it has no input file.
// Pass an *os.File to hand the descriptor over directly.
func WithStdin(r io.Reader) Option {
	return func(e *Executor) { e.stdin = r }
}

// WithStdout sets the stdout of the last command when it has no output file.
func WithStdout(w io.Writer) Option {
	return func(e *Executor) { e.stdout = w }
}

// WithStderr sets the stderr shared by every command.
func WithStderr(w io.Writer) Option {
	return func(e *Executor) { e.stderr = w }
}

// WithDir sets the working directory of every command.
func WithDir(dir string) Option {
	return func(e *Executor) { e.dir = dir }
}

// WithEnv sets the environment of every command (KEY=VALUE entries).
func WithEnv(env []string) Option {
	return func(e *Executor) { e.env = env }
}

// WithLogger sets the logger used for spawn and reap events.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithGuard installs a check that runs before any link or process exists.
func WithGuard(g Guard) Option {
	return func(e *Executor) { e.guard = g }
}

// WithSpawner replaces the process factory.
func WithSpawner(s Spawner) Option {
	return func(e *Executor) { e.spawner = s }
}

// WithLinkFactory replaces the pipe factory.
func WithLinkFactory(fn func() (*pipe.Link, error)) Option {
	return func(e *Executor) { e.newLink = fn }
}
