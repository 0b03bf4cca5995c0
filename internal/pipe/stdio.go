// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipe

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/atomic"
)

// Stream is one of a process's designated standard streams.
type Stream int

const (
	Stdin Stream = iota
	Stdout
)

func (s Stream) String() string {
	switch s {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	default:
		return fmt.Sprintf("stream(%d)", int(s))
	}
}

// Stdio is the stream table of a process about to be created. Streams left
// unset by DuplicateOnto keep whatever the caller put there, usually the
// parent's own.
type Stdio struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	originals []*os.File
	released  atomic.Bool
}

// DuplicateOnto installs f as the target stream. The child receives its own
// copy of the descriptor when it is created; f itself is the original and is
// closed by Release.
func (s *Stdio) DuplicateOnto(f *os.File, target Stream) error {
	switch target {
	case Stdin:
		s.Stdin = f
	case Stdout:
		s.Stdout = f
	default:
		return fmt.Errorf("pipe: cannot duplicate onto %s", target)
	}
	s.originals = append(s.originals, f)
	return nil
}

// Release closes every original descriptor. It is safe to call more than
// once and after the originals were closed elsewhere.
func (s *Stdio) Release() error {
	if !s.released.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	for _, f := range s.originals {
		if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
