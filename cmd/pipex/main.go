package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marcelocantos/pipex/internal/audit"
	"github.com/marcelocantos/pipex/internal/cli"
	"github.com/marcelocantos/pipex/internal/config"
	"github.com/marcelocantos/pipex/internal/daemon"
	"github.com/marcelocantos/pipex/internal/ipc"
	"github.com/marcelocantos/pipex/internal/logging"
	"github.com/marcelocantos/pipex/internal/mcpserver"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		cli.RunHelp(os.Stderr)
		return 1
	}

	switch os.Args[1] {
	case "--help", "-h":
		return cli.RunHelp(os.Stdout)
	case "--version":
		fmt.Printf("pipex %s\n", version)
		return 0
	}

	// Load config.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipex: config: %v\n", err)
		return ipc.ExitCallFailed
	}

	if os.Args[1] == "--audit" {
		return cli.RunAudit(os.Stdout, cfg.Audit.Path, os.Args[2:])
	}

	// MCP owns stdout.
	if os.Args[1] == "--mcp" && cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}

	log, closer, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipex: log: %v\n", err)
		return ipc.ExitCallFailed
	}
	defer closer.Close()

	rs, err := cfg.RuleSet()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipex: rules: %v\n", err)
		return ipc.ExitCallFailed
	}

	// Set up audit logger.
	var auditLog *audit.Logger
	if !cfg.Audit.Disabled {
		auditLog, err = audit.NewLogger(cfg.Audit.Path)
		if err != nil {
			// Continue without audit logging.
			log.Warn().Err(err).Str("path", cfg.Audit.Path).Msg("audit disabled")
			auditLog = nil
		}
	}

	switch os.Args[1] {
	case "--daemon":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := daemon.New(cfg, rs, auditLog, log).Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "pipex: daemon: %v\n", err)
			return 1
		}
		return 0

	case "--mcp":
		if err := mcpserver.New(version, rs, auditLog, log).ServeStdio(); err != nil {
			fmt.Fprintf(os.Stderr, "pipex: mcp: %v\n", err)
			return 1
		}
		return 0
	}

	args := os.Args[1:]
	remote := cfg.Daemon.Remote()
	if args[0] == "--remote" {
		remote = true
		args = args[1:]
	}
	flags, args := cli.ParseFlags(args)
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "pipex: expected exactly one chain file (see pipex --help)")
		return ipc.ExitCallFailed
	}

	env := cli.Env{
		Rules:  rs,
		Audit:  auditLog,
		Log:    log,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,

		RuntimeDir: cfg.Daemon.RuntimeDir,
	}

	if remote {
		// Signals are relayed to the daemon rather than cancelling the call.
		self, err := os.Executable()
		if err != nil {
			fmt.Fprintf(os.Stderr, "pipex: %v\n", err)
			return ipc.ExitCallFailed
		}
		return cli.RunRemote(context.Background(), env, self, args[0], flags)
	}

	// Interrupts reach the children through the terminal's process group;
	// cancellation reaps whatever ignores them.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cli.RunFile(ctx, env, args[0], flags)
}
