// Package mcpserver exposes chain execution as an MCP tool over stdio.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/marcelocantos/pipex/internal/audit"
	"github.com/marcelocantos/pipex/internal/chainfile"
	"github.com/marcelocantos/pipex/internal/ipc"
	"github.com/marcelocantos/pipex/internal/pipeline"
	"github.com/marcelocantos/pipex/internal/rules"
)

const toolName = "run_chain"

// Result is the JSON body of a successful run_chain call.
type Result struct {
	ipc.ExitResult
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// Server runs chains on behalf of an MCP client.
type Server struct {
	rules *rules.RuleSet // nil disables the guard
	audit *audit.Logger  // nil disables auditing
	log   zerolog.Logger
	mcp   *server.MCPServer
}

// New creates a server advertising the run_chain tool.
func New(version string, rs *rules.RuleSet, auditLog *audit.Logger, log zerolog.Logger) *Server {
	s := &Server{rules: rs, audit: auditLog, log: log}
	s.mcp = server.NewMCPServer("pipex", version, server.WithToolCapabilities(false))
	s.mcp.AddTool(mcp.NewTool(toolName,
		mcp.WithDescription("Run a chain of commands connected stdout to stdin, "+
			"like cmd1 | cmd2 | ... | cmdN. input_file applies to the first command "+
			"and output_file to the last. Returns every command's pid and exit status "+
			"plus the chain's captured stdout and stderr."),
		mcp.WithString("chain",
			mcp.Required(),
			mcp.Description(`The chain. YAML/JSON: {"commands": [{"argv": ["sort"], "input_file": "in.txt"}, {"argv": ["uniq", "-c"]}]}. `+
				`Starlark: chain = [cmd("sort", stdin="in.txt"), cmd("uniq", "-c")]`),
		),
		mcp.WithString("format",
			mcp.Enum("yaml", "starlark"),
			mcp.Description("Chain notation; yaml also accepts JSON. Default yaml."),
		),
		mcp.WithString("stdin",
			mcp.Description("Data fed to the first command when it has no input_file."),
		),
		mcp.WithString("cwd",
			mcp.Description("Working directory for every command. Default: the server's."),
		),
		mcp.WithBoolean("retry",
			mcp.Description("Bypass configured rules after the user has approved the chain."),
		),
	), s.handleRunChain)
	return s
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves MCP on the process's stdin and stdout until the client
// disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleRunChain(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("chain")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cmds, err := decode(req.GetString("format", "yaml"), src)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	retry := req.GetBool("retry", false)

	cwd := req.GetString("cwd", "")
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	var stdout, stderr bytes.Buffer
	opts := []pipeline.Option{
		pipeline.WithStdin(strings.NewReader(req.GetString("stdin", ""))),
		pipeline.WithStdout(&stdout),
		pipeline.WithStderr(&stderr),
		pipeline.WithDir(cwd),
		pipeline.WithLogger(s.log),
	}
	if s.rules != nil {
		opts = append(opts, pipeline.WithGuard(s.rules.Guard(retry)))
	}

	start := time.Now()
	res, runErr := pipeline.New(opts...).Run(ctx, cmds)
	duration := time.Since(start)
	s.logAudit(cmds, res, runErr, duration, cwd, retry)

	if runErr != nil && res == nil {
		return mcp.NewToolResultError(runErr.Error()), nil
	}
	out := Result{
		ExitResult: ipc.NewExitResult(res, runErr),
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	if runErr != nil {
		return mcp.NewToolResultError(string(data)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func decode(format, src string) ([]pipeline.Command, error) {
	switch format {
	case "", "yaml", "json":
		return chainfile.Decode([]byte(src))
	case "starlark", "star":
		return chainfile.Eval("chain.star", []byte(src))
	default:
		return nil, fmt.Errorf("%w: %q", chainfile.ErrUnknownFormat, format)
	}
}

func (s *Server) logAudit(cmds []pipeline.Command, res *pipeline.ChainResult, err error, d time.Duration, cwd string, retry bool) {
	if s.audit == nil {
		return
	}
	if _, aerr := s.audit.Log(audit.Record{
		Commands: cmds,
		Result:   res,
		Err:      err,
		Duration: d,
		Cwd:      cwd,
		Origin:   "mcp",
		Retry:    retry,
	}); aerr != nil {
		s.log.Warn().Err(aerr).Msg("audit")
	}
}
