// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcelocantos/pipex/internal/pipe"
)

// Executor runs chains of commands connected stdout to stdin.
type Executor struct {
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	dir     string
	env     []string
	log     zerolog.Logger
	guard   Guard
	spawner Spawner
	newLink func() (*pipe.Link, error)
}

// New returns an Executor wired to the parent's own standard streams.
func New(opts ...Option) *Executor {
	e := &Executor{
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		log:     zerolog.Nop(),
		spawner: ExecSpawner{},
		newLink: pipe.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes cmds as cmds[0] | cmds[1] | ... and waits for every process.
func (e *Executor) Run(ctx context.Context, cmds []Command) (*ChainResult, error) {
	r, err := e.Start(ctx, cmds)
	if err != nil {
		return nil, err
	}
	return r.Wait()
}

// Start validates cmds, creates the links between them and spawns every
// process. It returns as soon as the processes exist. If spawning stops
// part way, the returned Running still owns the processes already created
// and Wait reports the failure.
func (e *Executor) Start(ctx context.Context, cmds []Command) (*Running, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.validate(cmds); err != nil {
		return nil, err
	}

	n := len(cmds)
	links := make([]*pipe.Link, 0, n-1)
	for i := 0; i < n-1; i++ {
		l, err := e.newLink()
		if err != nil {
			closeAll(links)
			if !errors.Is(err, ErrResourceExhausted) {
				err = fmt.Errorf("%w: %w", ErrResourceExhausted, err)
			}
			return nil, fmt.Errorf("link %d: %w", i, err)
		}
		links = append(links, l)
	}

	r := &Running{
		log:       e.log,
		begin:     time.Now(),
		procs:     make([]Process, 0, n),
		results:   make([]ProcessResult, 0, n),
		spawnedAt: make([]time.Time, 0, n),
		done:      make(chan struct{}),
	}
	stderr := sharedWriter(e.stderr)
	for _, slot := range Plan(n) {
		if r.startErr != nil {
			r.results = append(r.results, ProcessResult{
				Index:    slot.Index,
				Argv:     cmds[slot.Index].Argv,
				ExitCode: -1,
				Err:      ErrSpawnFailed,
			})
			r.procs = append(r.procs, nil)
			r.spawnedAt = append(r.spawnedAt, time.Time{})
			continue
		}
		res, proc, err := e.spawnSlot(ctx, cmds[slot.Index], slot, links, stderr)
		r.results = append(r.results, res)
		r.procs = append(r.procs, proc)
		r.spawnedAt = append(r.spawnedAt, time.Now())
		if err != nil {
			e.log.Warn().Err(err).Int("index", slot.Index).Msg("spawning stopped")
			r.startErr = fmt.Errorf("position %d: %w", slot.Index, err)
		}
	}

	// Children hold their own copies now. Dropping every parent copy is what
	// lets readers see EOF and writers see EPIPE.
	if err := closeAll(links); err != nil {
		e.log.Warn().Err(err).Msg("closing links")
	}
	go r.reap()
	return r, nil
}

// sharedWriter guards w when os/exec would copy into it from one goroutine
// per child. Files are handed to children directly and need no lock.
func sharedWriter(w io.Writer) io.Writer {
	if _, ok := w.(*os.File); ok || w == nil {
		return w
	}
	return &lockedWriter{w: w}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (e *Executor) validate(cmds []Command) error {
	if len(cmds) == 0 {
		return ErrEmptyChain
	}
	for i, c := range cmds {
		if len(c.Argv) == 0 || c.Argv[0] == "" {
			return fmt.Errorf("%w: position %d has no program", ErrInvalidCommand, i)
		}
	}
	if e.guard != nil {
		if err := e.guard(cmds); err != nil {
			return fmt.Errorf("%w: %w", ErrRejected, err)
		}
	}
	return nil
}

// spawnSlot wires one position and creates its process. A non-nil error
// means spawning must stop; redirection and exec failures only mark the
// position's result.
func (e *Executor) spawnSlot(ctx context.Context, cmd Command, s Slot, links []*pipe.Link, stderr io.Writer) (ProcessResult, Process, error) {
	res := ProcessResult{Index: s.Index, Argv: cmd.Argv}
	stdio := &pipe.Stdio{Stdin: e.stdin, Stdout: e.stdout, Stderr: stderr}
	defer func() {
		if err := releaseSlot(stdio, s, links); err != nil {
			e.log.Warn().Err(err).Int("index", s.Index).Msg("releasing descriptors")
		}
	}()

	if err := e.wireInput(cmd, s, links, stdio); err != nil {
		res.ExitCode = ExitRedirectionFailed
		res.Err = fmt.Errorf("%w: %w", ErrRedirectionFailed, err)
		e.log.Debug().Err(res.Err).Int("index", s.Index).Msg("input redirection")
		return res, nil, nil
	}
	if err := e.wireOutput(cmd, s, links, stdio); err != nil {
		res.ExitCode = ExitRedirectionFailed
		res.Err = fmt.Errorf("%w: %w", ErrRedirectionFailed, err)
		e.log.Debug().Err(res.Err).Int("index", s.Index).Msg("output redirection")
		return res, nil, nil
	}

	proc, err := e.spawner.Spawn(ctx, SpawnRequest{
		Index: s.Index,
		Argv:  cmd.Argv,
		Dir:   e.dir,
		Env:   e.env,
		Stdio: stdio,
	})
	if err != nil {
		err = classifyStart(err)
		res.Err = err
		if errors.Is(err, ErrSpawnFailed) {
			res.ExitCode = -1
			return res, nil, err
		}
		res.ExitCode = ExitExecFailed
		e.log.Debug().Err(err).Int("index", s.Index).Str("exe", cmd.Argv[0]).Msg("exec")
		return res, nil, nil
	}
	res.Pid = proc.Pid()
	e.log.Debug().Int("index", s.Index).Int("pid", res.Pid).Strs("argv", cmd.Argv).Msg("spawned")
	return res, proc, nil
}

func (e *Executor) wireInput(cmd Command, s Slot, links []*pipe.Link, stdio *pipe.Stdio) error {
	if !s.First() {
		if cmd.InputFile != "" {
			e.log.Debug().Int("index", s.Index).Str("file", cmd.InputFile).Msg("input redirect ignored off the first command")
		}
		f, err := links[s.In].TakeReadEnd()
		if err != nil {
			return fmt.Errorf("link %d: %w", s.In, err)
		}
		return stdio.DuplicateOnto(f, pipe.Stdin)
	}
	if cmd.InputFile == "" {
		return nil
	}
	f, err := os.Open(e.resolve(cmd.InputFile))
	if err != nil {
		return err
	}
	return stdio.DuplicateOnto(f, pipe.Stdin)
}

func (e *Executor) wireOutput(cmd Command, s Slot, links []*pipe.Link, stdio *pipe.Stdio) error {
	if !s.Last() {
		if cmd.OutputFile != "" {
			e.log.Debug().Int("index", s.Index).Str("file", cmd.OutputFile).Msg("output redirect ignored off the last command")
		}
		f, err := links[s.Out].TakeWriteEnd()
		if err != nil {
			return fmt.Errorf("link %d: %w", s.Out, err)
		}
		return stdio.DuplicateOnto(f, pipe.Stdout)
	}
	if cmd.OutputFile == "" {
		return nil
	}
	f, err := os.OpenFile(e.resolve(cmd.OutputFile), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return err
	}
	return stdio.DuplicateOnto(f, pipe.Stdout)
}

// resolve interprets a redirect path the way the child would: relative to
// its working directory.
func (e *Executor) resolve(name string) string {
	if e.dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(e.dir, name)
}

// releaseSlot drops the parent's copies of everything handed to one
// position, whether or not a process was created for it.
func releaseSlot(stdio *pipe.Stdio, s Slot, links []*pipe.Link) error {
	errs := []error{stdio.Release()}
	if !s.First() {
		errs = append(errs, links[s.In].CloseReadEnd())
	}
	if !s.Last() {
		errs = append(errs, links[s.Out].CloseWriteEnd())
	}
	return errors.Join(errs...)
}

func closeAll(links []*pipe.Link) error {
	var errs []error
	for _, l := range links {
		errs = append(errs, l.Close())
	}
	return errors.Join(errs...)
}

// Running is a started chain. Its processes are reaped in the background
// from the moment Start returns.
type Running struct {
	log       zerolog.Logger
	begin     time.Time
	procs     []Process // nil where no process was created
	results   []ProcessResult
	spawnedAt []time.Time
	startErr  error

	done   chan struct{}
	result *ChainResult
}

// Pids returns the identities of the processes created, in chain order.
func (r *Running) Pids() []int {
	var pids []int
	for _, p := range r.procs {
		if p != nil {
			pids = append(pids, p.Pid())
		}
	}
	return pids
}

// Signal delivers sig to every process of the chain. Processes that have
// already exited are skipped.
func (r *Running) Signal(sig os.Signal) error {
	var errs []error
	for _, p := range r.procs {
		if p == nil {
			continue
		}
		if err := p.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("pid %d: %w", p.Pid(), err))
		}
	}
	return errors.Join(errs...)
}

// Done is closed once every process of the chain has been reaped.
func (r *Running) Done() <-chan struct{} { return r.done }

// Poll reports without blocking whether every process has finished.
func (r *Running) Poll() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Wait blocks until every process is reaped and returns the chain's result.
// It may be called more than once; later calls return the same result.
func (r *Running) Wait() (*ChainResult, error) {
	<-r.done
	return r.result, r.startErr
}

func (r *Running) reap() {
	defer close(r.done)
	var wg sync.WaitGroup
	for i, p := range r.procs {
		if p == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := p.Wait()
			res := &r.results[i]
			res.ExitCode = st.ExitCode
			res.Signal = st.Signal
			res.Duration = time.Since(r.spawnedAt[i])
			if err != nil {
				res.Err = err
			}
			ev := r.log.Debug().Int("index", i).Int("pid", res.Pid).Int("exit", res.ExitCode)
			if st.Signal != 0 {
				ev = ev.Str("signal", st.Signal.String())
			}
			ev.Msg("reaped")
		}()
	}
	wg.Wait()

	r.result = &ChainResult{
		Processes: r.results,
		Duration:  time.Since(r.begin),
	}
}

// Run executes cmds with a default Executor configured by opts.
func Run(ctx context.Context, cmds []Command, opts ...Option) (*ChainResult, error) {
	return New(opts...).Run(ctx, cmds)
}
