package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/marcelocantos/pipex/internal/chainfile"
	"github.com/marcelocantos/pipex/internal/client"
	"github.com/marcelocantos/pipex/internal/ipc"
)

// RunRemote runs a chain file through the daemon, starting one if none is
// listening: pipex --remote <chainfile>. The daemon does the auditing.
func RunRemote(ctx context.Context, env Env, selfPath, path string, flags Flags) int {
	cmds, err := chainfile.Load(path)
	if err != nil {
		fmt.Fprintf(env.Stderr, "pipex: %v\n", err)
		return ipc.ExitCallFailed
	}

	conn, err := client.ConnectOrSpawn(ctx, selfPath, env.RuntimeDir)
	if err != nil {
		fmt.Fprintf(env.Stderr, "pipex: daemon: %v\n", err)
		return ipc.ExitCallFailed
	}
	defer conn.Close()

	sigs, stop := client.ForwardSignals()
	defer stop()

	cwd, _ := os.Getwd()
	req := &ipc.Request{
		Commands: cmds,
		Cwd:      cwd,
		Retry:    flags.Retry,
		Env:      ipc.CaptureEnv(),
	}
	exit, err := client.Relay(ctx, conn, req, env.Stdin, env.Stdout, env.Stderr, sigs)
	if err != nil {
		fmt.Fprintf(env.Stderr, "pipex: daemon: %v\n", err)
		return ipc.ExitCallFailed
	}
	if flags.Status {
		printStatus(env.Stderr, exit.Processes)
	}
	return resolveError(env.Stderr, exit)
}
