package audit

import (
	"time"

	"github.com/marcelocantos/pipex/internal/pipeline"
)

// Entry represents a single audit log record.
type Entry struct {
	Seq       uint64    `json:"seq"`
	Time      time.Time `json:"ts"`
	PrevHash  string    `json:"prev_hash"`
	RunID     string    `json:"run_id"`
	Chain     string    `json:"chain"`            // rendered chain, cmd1 | cmd2 ...
	Programs  []string  `json:"programs"`         // argv[0] of each command
	Pids      []int     `json:"pids"`             // 0 where no process was created
	ExitCodes []int     `json:"exit_codes"`       // per command, in chain order
	ExitCode  int       `json:"exit_code"`        // decisive status (last command)
	Origin    string    `json:"origin,omitempty"` // cli, daemon, mcp
	Retry     bool      `json:"retry,omitempty"`  // true if --retry was used
	Error     string    `json:"error,omitempty"`  // call-level error
	Duration  float64   `json:"duration_ms"`      // execution time in milliseconds
	Cwd       string    `json:"cwd"`              // working directory
	Hash      string    `json:"hash"`             // SHA-256 of this entry (with hash field empty)
}

// Record is what a caller knows about one run.
type Record struct {
	Commands []pipeline.Command
	Result   *pipeline.ChainResult // nil if the chain never started
	Err      error
	Duration time.Duration
	Cwd      string
	Origin   string
	Retry    bool
}

func (r Record) fill(e *Entry) {
	e.Chain = pipeline.Describe(r.Commands)
	e.Programs = make([]string, len(r.Commands))
	for i, c := range r.Commands {
		if len(c.Argv) > 0 {
			e.Programs[i] = c.Argv[0]
		}
	}
	e.ExitCode = -1
	if r.Result != nil {
		e.ExitCode = r.Result.ExitCode()
		e.ExitCodes = r.Result.ExitCodes()
		e.Pids = make([]int, len(r.Result.Processes))
		for i, p := range r.Result.Processes {
			e.Pids[i] = p.Pid
		}
	}
	if r.Err != nil {
		e.Error = r.Err.Error()
	}
	e.Duration = float64(r.Duration.Microseconds()) / 1000.0
	e.Cwd = r.Cwd
	e.Origin = r.Origin
	e.Retry = r.Retry
}
