package chainfile

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/marcelocantos/pipex/internal/pipeline"
)

// Eval runs a Starlark chain script and returns the commands it assigned to
// the global chain. Each element is either the result of cmd(...) or a list
// of strings used as argv.
func Eval(filename string, src []byte) ([]pipeline.Command, error) {
	thread := &starlark.Thread{
		Name:  "chain",
		Print: func(*starlark.Thread, string) {},
	}
	predeclared := starlark.StringDict{
		"cmd": starlark.NewBuiltin("cmd", cmdBuiltin),
	}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, filename, src, predeclared)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return nil, fmt.Errorf("%s: %s", filename, evalErr.Backtrace())
		}
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	v, ok := globals["chain"]
	if !ok {
		return nil, fmt.Errorf("%s: script does not assign chain", filename)
	}
	iter, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("%s: chain is a %s, want a list", filename, v.Type())
	}

	var cmds []pipeline.Command
	it := iter.Iterate()
	defer it.Done()
	var elem starlark.Value
	for i := 0; it.Next(&elem); i++ {
		c, err := toCommand(elem)
		if err != nil {
			return nil, fmt.Errorf("%s: chain[%d]: %w", filename, i, err)
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

func toCommand(v starlark.Value) (pipeline.Command, error) {
	switch v := v.(type) {
	case *commandValue:
		return v.cmd, nil
	case starlark.Iterable:
		argv, err := stringList(v)
		if err != nil {
			return pipeline.Command{}, err
		}
		return pipeline.Command{Argv: argv}, nil
	}
	return pipeline.Command{}, fmt.Errorf("got %s, want cmd(...) or a list of strings", v.Type())
}

func stringList(v starlark.Iterable) ([]string, error) {
	var out []string
	it := v.Iterate()
	defer it.Done()
	var elem starlark.Value
	for it.Next(&elem) {
		s, ok := starlark.AsString(elem)
		if !ok {
			return nil, fmt.Errorf("argument %s is a %s, want string", elem, elem.Type())
		}
		out = append(out, s)
	}
	return out, nil
}

// cmd(*argv, stdin=None, stdout=None)
func cmdBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: missing program", b.Name())
	}
	argv, err := stringList(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	c := pipeline.Command{Argv: argv}
	for _, kv := range kwargs {
		key, _ := starlark.AsString(kv[0])
		var dst *string
		switch key {
		case "stdin":
			dst = &c.InputFile
		case "stdout":
			dst = &c.OutputFile
		default:
			return nil, fmt.Errorf("%s: unexpected keyword argument %s", b.Name(), key)
		}
		if kv[1] == starlark.None {
			continue
		}
		s, ok := starlark.AsString(kv[1])
		if !ok {
			return nil, fmt.Errorf("%s: %s must be a string, got %s", b.Name(), key, kv[1].Type())
		}
		*dst = s
	}
	return &commandValue{cmd: c}, nil
}

// commandValue is the Starlark value produced by cmd(...).
type commandValue struct {
	cmd    pipeline.Command
	frozen bool
}

var _ starlark.Value = (*commandValue)(nil)

func (c *commandValue) String() string        { return "cmd(" + c.cmd.String() + ")" }
func (c *commandValue) Type() string          { return "cmd" }
func (c *commandValue) Freeze()               { c.frozen = true }
func (c *commandValue) Truth() starlark.Bool  { return starlark.True }
func (c *commandValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: cmd") }
