// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"strings"
	"syscall"
	"time"

	"github.com/marcelocantos/pipex/internal/pipe"
)

// Command is one fully resolved element of a chain.
type Command struct {
	Argv       []string `json:"argv" yaml:"argv"`                                   // executable followed by its arguments
	InputFile  string   `json:"input_file,omitempty" yaml:"input_file,omitempty"`   // stdin redirect, honoured on the first command only
	OutputFile string   `json:"output_file,omitempty" yaml:"output_file,omitempty"` // stdout redirect, honoured on the last command only
}

// String renders the command the way a shell user would read it.
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(c.Argv, " "))
	if c.InputFile != "" {
		b.WriteString(" < ")
		b.WriteString(c.InputFile)
	}
	if c.OutputFile != "" {
		b.WriteString(" > ")
		b.WriteString(c.OutputFile)
	}
	return b.String()
}

// Describe renders a whole chain, for logs and audit entries.
func Describe(cmds []Command) string {
	parts := make([]string, len(cmds))
	for i, c := range cmds {
		parts[i] = c.String()
	}
	return strings.Join(parts, " | ")
}

// Slot is the wiring of one chain position: the link whose read end becomes
// its stdin and the link whose write end becomes its stdout. -1 means none.
type Slot struct {
	Index int
	In    int
	Out   int
}

// Plan computes the slots of an n-command chain. Link i connects command i
// to command i+1, so slot i reads link i-1 and writes link i.
func Plan(n int) []Slot {
	slots := make([]Slot, n)
	for i := range slots {
		s := Slot{Index: i, In: i - 1, Out: i}
		if i == n-1 {
			s.Out = -1
		}
		slots[i] = s
	}
	return slots
}

// First reports whether the slot heads the chain.
func (s Slot) First() bool { return s.In < 0 }

// Last reports whether the slot ends the chain.
func (s Slot) Last() bool { return s.Out < 0 }

// Owns reports whether the process at this slot holds the given end of the
// given link. Every other end of every link must be closed in that process.
func (s Slot) Owns(link int, e pipe.End) bool {
	switch e {
	case pipe.ReadEnd:
		return link == s.In
	case pipe.WriteEnd:
		return link == s.Out
	}
	return false
}

// ProcessResult is the outcome of one chain position.
type ProcessResult struct {
	Index    int
	Argv     []string
	Pid      int            // 0 if no process was created
	ExitCode int            // 128+signal for signalled processes
	Signal   syscall.Signal // 0 unless terminated by a signal
	Duration time.Duration
	Err      error // why the position failed outside the program itself
}

// Executable returns argv[0].
func (p ProcessResult) Executable() string {
	if len(p.Argv) == 0 {
		return ""
	}
	return p.Argv[0]
}

// Started reports whether a process was created for this position.
func (p ProcessResult) Started() bool { return p.Pid != 0 }

// ChainResult holds every position's outcome, in chain order.
type ChainResult struct {
	Processes []ProcessResult
	Duration  time.Duration
}

// Last returns the decisive result: the last position's.
func (r *ChainResult) Last() ProcessResult {
	if r == nil || len(r.Processes) == 0 {
		return ProcessResult{ExitCode: -1}
	}
	return r.Processes[len(r.Processes)-1]
}

// ExitCode is the chain's exit status, which is the last command's.
func (r *ChainResult) ExitCode() int {
	return r.Last().ExitCode
}

// Success reports whether the last command exited with status 0.
func (r *ChainResult) Success() bool {
	last := r.Last()
	return last.Started() && last.ExitCode == 0 && last.Err == nil
}

// Pids returns the identities of every process that was created.
func (r *ChainResult) Pids() []int {
	var pids []int
	for _, p := range r.Processes {
		if p.Started() {
			pids = append(pids, p.Pid)
		}
	}
	return pids
}

// ExitCodes returns every position's exit status in chain order.
func (r *ChainResult) ExitCodes() []int {
	codes := make([]int, len(r.Processes))
	for i, p := range r.Processes {
		codes[i] = p.ExitCode
	}
	return codes
}
