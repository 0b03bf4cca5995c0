package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcelocantos/pipex/internal/audit"
	"github.com/marcelocantos/pipex/internal/chainfile"
	"github.com/marcelocantos/pipex/internal/ipc"
	"github.com/marcelocantos/pipex/internal/pipeline"
	"github.com/marcelocantos/pipex/internal/rules"
)

// Env is what a chain run needs from the process that hosts it.
type Env struct {
	Rules  *rules.RuleSet // nil disables the guard
	Audit  *audit.Logger  // nil disables auditing
	Log    zerolog.Logger
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	RuntimeDir string // daemon runtime directory for remote runs; empty picks the default
}

// Flags are the per-invocation switches shared by local and remote runs.
type Flags struct {
	Retry  bool // bypass config rules (hardcoded rules still apply)
	Status bool // print per-process statuses to stderr
}

// RunFile loads a chain file and runs it in this process: pipex <chainfile>
func RunFile(ctx context.Context, env Env, path string, flags Flags) int {
	cmds, err := chainfile.Load(path)
	if err != nil {
		fmt.Fprintf(env.Stderr, "pipex: %v\n", err)
		return ipc.ExitCallFailed
	}
	return RunChain(ctx, env, cmds, flags)
}

// RunChain runs cmds as one pipeline and returns the decisive exit status,
// or ipc.ExitCallFailed if the chain could not be run as a whole.
func RunChain(ctx context.Context, env Env, cmds []pipeline.Command, flags Flags) int {
	opts := []pipeline.Option{
		pipeline.WithStdin(env.Stdin),
		pipeline.WithStdout(env.Stdout),
		pipeline.WithStderr(env.Stderr),
		pipeline.WithLogger(env.Log),
	}
	if env.Rules != nil {
		opts = append(opts, pipeline.WithGuard(env.Rules.Guard(flags.Retry)))
	}

	start := time.Now()
	res, err := pipeline.New(opts...).Run(ctx, cmds)
	duration := time.Since(start)

	exit := ipc.NewExitResult(res, err)
	if flags.Status {
		printStatus(env.Stderr, exit.Processes)
	}
	logAudit(env, cmds, res, err, duration, flags.Retry)
	return resolveError(env.Stderr, exit)
}

// resolveError reports call-level failures on stderr. A non-zero status from
// the last command is propagated silently; its own stderr output is
// sufficient.
func resolveError(stderr io.Writer, exit ipc.ExitResult) int {
	if exit.Error != "" {
		fmt.Fprintf(stderr, "pipex: %s\n", exit.Error)
	}
	return exit.Code
}

func logAudit(env Env, cmds []pipeline.Command, res *pipeline.ChainResult, err error, duration time.Duration, retry bool) {
	if env.Audit == nil {
		return
	}
	cwd, _ := os.Getwd()
	// Best-effort: the chain has already run.
	if _, aerr := env.Audit.Log(audit.Record{
		Commands: cmds,
		Result:   res,
		Err:      err,
		Duration: duration,
		Cwd:      cwd,
		Origin:   "cli",
		Retry:    retry,
	}); aerr != nil {
		env.Log.Warn().Err(aerr).Msg("audit")
	}
}
