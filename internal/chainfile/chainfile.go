// Package chainfile loads chains of already resolved commands from files.
//
// Two sources are understood. YAML or JSON documents hold either
//
//	commands:
//	  - argv: [cat]
//	    input_file: in.txt
//	  - argv: [wc, -l]
//
// or the bare list. Starlark scripts (.star) build the list with the
// predeclared cmd(*argv, stdin=None, stdout=None) and assign it to chain.
package chainfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/marcelocantos/pipex/internal/pipeline"
)

// ErrUnknownFormat is returned for files whose extension names no known
// chain source.
var ErrUnknownFormat = errors.New("chainfile: unknown format")

type document struct {
	Commands []pipeline.Command `yaml:"commands"`
}

// Load reads the chain stored at path, choosing the decoder by extension.
func Load(path string) ([]pipeline.Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		cmds, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return cmds, nil
	case ".star":
		return Eval(path, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Decode parses a YAML or JSON chain document.
func Decode(data []byte) ([]pipeline.Command, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse chain: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, errors.New("parse chain: empty document")
	}

	node := root.Content[0]
	var cmds []pipeline.Command
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&cmds); err != nil {
			return nil, fmt.Errorf("parse chain: %w", err)
		}
	case yaml.MappingNode:
		var doc document
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse chain: %w", err)
		}
		cmds = doc.Commands
	default:
		return nil, fmt.Errorf("parse chain: line %d: want a list of commands or a commands: key", node.Line)
	}
	return cmds, nil
}
