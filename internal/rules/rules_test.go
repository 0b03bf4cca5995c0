package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasAnyFlag(t *testing.T) {
	tests := []struct {
		args  []string
		flags []string
		want  bool
	}{
		{[]string{"-f"}, []string{"-f"}, true},
		{[]string{"--force"}, []string{"--force"}, true},
		{[]string{"-v"}, []string{"-f"}, false},

		// Combined short flags.
		{[]string{"-rf"}, []string{"-r"}, true},
		{[]string{"-rf"}, []string{"-f"}, true},
		{[]string{"-rf"}, []string{"-x"}, false},

		// Short flag with a value.
		{[]string{"-j4"}, []string{"-j"}, true},
		{[]string{"-j4"}, []string{"-k"}, false},

		// Long flag with =.
		{[]string{"--force=yes"}, []string{"--force"}, true},
		{[]string{"--forceful"}, []string{"--force"}, false},
		{[]string{"--verbose"}, []string{"--force"}, false},

		// Operands are skipped.
		{[]string{"/tmp/file"}, []string{"-f"}, false},
		{[]string{""}, []string{"-f"}, false},
		{[]string{"file.txt", "-r", "dir/"}, []string{"-r"}, true},
		{[]string{"file.txt", "-r", "dir/"}, []string{"-f", "--force"}, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, hasAnyFlag(tt.args, tt.flags...), "hasAnyFlag(%q, %q)", tt.args, tt.flags)
	}
}

func TestRuleSetCheckOrder(t *testing.T) {
	errHardcoded := errors.New("hardcoded block")
	errConfig := errors.New("config block")
	blockExe := func(name string, err error) CheckFunc {
		return func(exe string, _ []string) error {
			if exe == name {
				return err
			}
			return nil
		}
	}

	rs := NewRuleSet(blockExe("rm", errHardcoded))
	rs.AddConfig(blockExe("rm", errConfig))
	rs.AddConfig(blockExe("make", errConfig))

	tests := []struct {
		name  string
		exe   string
		retry bool
		want  error
	}{
		{"hardcoded fires first", "rm", false, errHardcoded},
		{"retry does not skip hardcoded", "rm", true, errHardcoded},
		{"config fires when hardcoded passes", "make", false, errConfig},
		{"retry skips config", "make", true, nil},
		{"all pass", "grep", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rs.Check(tt.exe, nil, tt.retry)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	assert.NoError(t, NewRuleSet().Check("grep", []string{"-r", "TODO"}, false))
}
