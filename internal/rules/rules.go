package rules

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/marcelocantos/pipex/internal/pipeline"
)

// CheckFunc validates one command of a chain. exe is the base name of the
// program and args are the arguments after it. Returns a non-nil error to
// block execution.
type CheckFunc func(exe string, args []string) error

// RuleSet holds an ordered list of validation rules. Hardcoded rules run first
// and cannot be removed. Config rules are appended after.
type RuleSet struct {
	hardcoded []CheckFunc
	policies  []Policy
	config    []CheckFunc
}

// NewRuleSet creates a RuleSet with the given hardcoded rules.
func NewRuleSet(hardcoded ...CheckFunc) *RuleSet {
	return &RuleSet{hardcoded: hardcoded}
}

// AddConfig appends a config-driven rule.
func (rs *RuleSet) AddConfig(fn CheckFunc) {
	rs.config = append(rs.config, fn)
}

// Check runs all rules against the given program and args.
// Hardcoded rules always run first. When retry is true, policies and config
// rules are skipped (the user has explicitly approved the operation).
func (rs *RuleSet) Check(exe string, args []string, retry bool) error {
	for _, fn := range rs.hardcoded {
		if err := fn(exe, args); err != nil {
			return err
		}
	}
	if retry {
		return nil
	}
	if p, ok := rs.matchPolicy(exe, args); ok {
		if p.Decision == "deny" {
			return fmt.Errorf("denied by policy %q: %s", p.ID, p.Reasoning)
		}
		return nil
	}
	for _, fn := range rs.config {
		if err := fn(exe, args); err != nil {
			return err
		}
	}
	return nil
}

// CheckChain runs Check on every command, reporting the first that fails.
func (rs *RuleSet) CheckChain(cmds []pipeline.Command, retry bool) error {
	for i, c := range cmds {
		if len(c.Argv) == 0 {
			continue
		}
		if err := rs.Check(Executable(c.Argv[0]), c.Argv[1:], retry); err != nil {
			return fmt.Errorf("command %d (%s): %w", i+1, c.Argv[0], err)
		}
	}
	return nil
}

// Guard adapts the rule set to an executor guard.
func (rs *RuleSet) Guard(retry bool) pipeline.Guard {
	return func(cmds []pipeline.Command) error {
		return rs.CheckChain(cmds, retry)
	}
}

// Executable reduces a program path to the name rules are keyed by.
func Executable(argv0 string) string {
	return filepath.Base(argv0)
}

// hasAnyFlag checks whether any element in args matches one of the given flags.
// It handles:
//   - Exact match: "-f" matches "-f"
//   - Combined short flags: "-rf" matches "-r" and "-f"
//   - Short flag with value: "-j4" matches "-j"
//   - Long flag with =: "--flag=value" matches "--flag"
func hasAnyFlag(args []string, flags ...string) bool {
	for _, arg := range args {
		if arg == "" || arg[0] != '-' {
			continue
		}
		for _, flag := range flags {
			if arg == flag {
				return true
			}
			// Short flag: "-j" matches "-j4" (value suffix) and "-rf" (combined)
			if len(flag) == 2 && flag[0] == '-' && flag[1] != '-' &&
				len(arg) > 2 && arg[0] == '-' && arg[1] != '-' {
				if strings.ContainsRune(arg[1:], rune(flag[1])) {
					return true
				}
			}
			// Long flag with =: "--force" matches "--force=yes"
			if len(flag) > 2 && flag[0:2] == "--" && strings.HasPrefix(arg, flag+"=") {
				return true
			}
		}
	}
	return false
}
