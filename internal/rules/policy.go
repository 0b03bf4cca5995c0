package rules

import (
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Policy is a reviewed allow/deny decision for commands matching Match.
type Policy struct {
	ID          string      `yaml:"id"`
	Description string      `yaml:"description"`
	Match       MatchPolicy `yaml:"match"`
	Decision    string      `yaml:"decision"`  // "allow" or "deny"
	Reasoning   string      `yaml:"reasoning"` // shown when the policy denies
	Approved    bool        `yaml:"approved"`  // unapproved entries are ignored
}

// MatchPolicy defines what a policy matches against. Every field that is
// set must hold.
type MatchPolicy struct {
	Program  string   `yaml:"program"`
	Subcmd   string   `yaml:"subcmd,omitempty"`
	HasFlags []string `yaml:"has_flags,omitempty"` // at least one present
	NoFlags  []string `yaml:"no_flags,omitempty"`  // none present
	ArgsGlob []string `yaml:"args_glob,omitempty"` // every positional arg matches one
}

type policyFile struct {
	Policies []Policy `yaml:"policies"`
}

// LoadPolicies reads policy entries from YAML. A missing file yields no
// policies and no error.
func LoadPolicies(path string) ([]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read policy: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if err := validatePolicies(pf.Policies); err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return pf.Policies, nil
}

func validatePolicies(ps []Policy) error {
	for i, p := range ps {
		if p.ID == "" {
			return fmt.Errorf("entry %d: missing id", i)
		}
		if p.Match.Program == "" {
			return fmt.Errorf("entry %q: match.program is required", p.ID)
		}
		switch p.Decision {
		case "allow", "deny":
		default:
			return fmt.Errorf("entry %q: invalid decision %q (want allow or deny)", p.ID, p.Decision)
		}
		for _, g := range p.Match.ArgsGlob {
			if !doublestar.ValidatePattern(g) {
				return fmt.Errorf("entry %q: bad args_glob %q", p.ID, g)
			}
		}
	}
	return nil
}

// AddPolicies appends policy entries. Policies are consulted after the
// hardcoded rules and before the config rules; the first approved entry that
// matches decides. A matching allow skips the config rules for that command.
func (rs *RuleSet) AddPolicies(ps ...Policy) error {
	if err := validatePolicies(ps); err != nil {
		return err
	}
	rs.policies = append(rs.policies, ps...)
	return nil
}

// matchPolicy returns the first approved policy matching exe and args.
func (rs *RuleSet) matchPolicy(exe string, args []string) (Policy, bool) {
	for _, p := range rs.policies {
		if p.Approved && p.Match.matches(exe, args) {
			return p, true
		}
	}
	return Policy{}, false
}

func (m *MatchPolicy) matches(exe string, args []string) bool {
	if exe != m.Program {
		return false
	}

	rest := args
	if m.Subcmd != "" {
		if len(args) == 0 || args[0] != m.Subcmd {
			return false
		}
		rest = args[1:]
	}

	if len(m.HasFlags) > 0 && !hasAnyFlag(rest, m.HasFlags...) {
		return false
	}
	if len(m.NoFlags) > 0 && hasAnyFlag(rest, m.NoFlags...) {
		return false
	}

	if len(m.ArgsGlob) > 0 {
		positional := positionalArgs(rest)
		if len(positional) == 0 {
			return false
		}
		for _, arg := range positional {
			if !matchAnyGlob(arg, m.ArgsGlob) {
				return false
			}
		}
	}
	return true
}

// positionalArgs returns the non-flag arguments; everything after "--" is
// positional.
func positionalArgs(args []string) []string {
	var pos []string
	pastDashes := false
	for _, arg := range args {
		if arg == "--" && !pastDashes {
			pastDashes = true
			continue
		}
		if !pastDashes && strings.HasPrefix(arg, "-") {
			continue
		}
		pos = append(pos, arg)
	}
	return pos
}

func matchAnyGlob(s string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, s); ok {
			return true
		}
	}
	return false
}
