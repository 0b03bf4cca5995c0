package rules

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// ExeRuleConfig represents one program's rules from YAML config.
type ExeRuleConfig struct {
	RejectFlags []string                 `yaml:"reject_flags"`
	Subcommands map[string]SubRuleConfig `yaml:"subcommands"`
}

// SubRuleConfig represents rules for a specific subcommand.
type SubRuleConfig struct {
	RejectFlags []string `yaml:"reject_flags"`
}

// CompileExeRule turns a single program's config into CheckFuncs.
func CompileExeRule(exeName string, cfg ExeRuleConfig) []CheckFunc {
	var fns []CheckFunc

	// Top-level reject_flags for the whole program.
	if len(cfg.RejectFlags) > 0 {
		flags := cfg.RejectFlags
		name := exeName
		fns = append(fns, func(exe string, args []string) error {
			if exe != name {
				return nil
			}
			if hasAnyFlag(args, flags...) {
				return fmt.Errorf("rejected flag (config rule); rerun with --retry to allow %s", name)
			}
			return nil
		})
	}

	for subcmd, subRule := range cfg.Subcommands {
		if len(subRule.RejectFlags) > 0 {
			flags := subRule.RejectFlags
			name := exeName
			sub := subcmd
			fns = append(fns, func(exe string, args []string) error {
				if exe != name || len(args) == 0 || args[0] != sub {
					return nil
				}
				if hasAnyFlag(args[1:], flags...) {
					return fmt.Errorf("%s: rejected flag (config rule); rerun with --retry to allow %s %s", sub, name, sub)
				}
				return nil
			})
		}
	}

	return fns
}

// CompileDeny builds a rule rejecting every program whose name matches one
// of the glob patterns. Patterns use doublestar syntax ("*", "**", "{a,b}").
func CompileDeny(patterns []string) (CheckFunc, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("deny pattern %q: %w", p, doublestar.ErrBadPattern)
		}
	}
	pats := append([]string(nil), patterns...)
	return func(exe string, _ []string) error {
		for _, p := range pats {
			if ok, _ := doublestar.Match(p, exe); ok {
				return fmt.Errorf("%s is denied by pattern %q (config rule)", exe, p)
			}
		}
		return nil
	}, nil
}
