// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipe

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"go.uber.org/atomic"
)

var (
	// ErrResourceExhausted reports that the OS could not allocate the
	// descriptors for a new pipe.
	ErrResourceExhausted = errors.New("pipe: descriptors exhausted")

	// ErrAlreadyConsumed is returned when an end is taken twice.
	ErrAlreadyConsumed = errors.New("pipe: end already taken")

	// ErrClosed is returned when taking an end that was already closed.
	ErrClosed = errors.New("pipe: end closed")
)

// End identifies one side of a Link.
type End int

const (
	ReadEnd End = iota
	WriteEnd
)

func (e End) String() string {
	switch e {
	case ReadEnd:
		return "read"
	case WriteEnd:
		return "write"
	default:
		return fmt.Sprintf("end(%d)", int(e))
	}
}

// Link is a unidirectional byte channel between two processes.
type Link struct {
	ends [2]end
}

type end struct {
	f      *os.File
	taken  atomic.Bool
	closed atomic.Bool
}

// New allocates one kernel pipe. Both descriptors are close-on-exec, so a
// child only ever receives an end that is passed to it explicitly.
func New() (*Link, error) {
	r, w, err := osPipe()
	if err != nil {
		if isExhausted(err) {
			return nil, fmt.Errorf("%w: %w", ErrResourceExhausted, err)
		}
		return nil, fmt.Errorf("pipe: %w", err)
	}
	l := &Link{}
	l.ends[ReadEnd].f = r
	l.ends[WriteEnd].f = w
	return l, nil
}

// TakeReadEnd yields the read end. The caller owns it from then on; the
// Link still closes it on CloseReadEnd or Close if the caller has not.
func (l *Link) TakeReadEnd() (*os.File, error) {
	return l.ends[ReadEnd].take()
}

// TakeWriteEnd yields the write end.
func (l *Link) TakeWriteEnd() (*os.File, error) {
	return l.ends[WriteEnd].take()
}

// CloseReadEnd closes the read end. Closing an end twice is a no-op.
func (l *Link) CloseReadEnd() error {
	return l.ends[ReadEnd].close()
}

// CloseWriteEnd closes the write end. Closing an end twice is a no-op.
func (l *Link) CloseWriteEnd() error {
	return l.ends[WriteEnd].close()
}

// Close closes both ends.
func (l *Link) Close() error {
	return errors.Join(l.CloseWriteEnd(), l.CloseReadEnd())
}

// Closed reports whether the given end has been closed through the Link.
func (l *Link) Closed(e End) bool {
	return l.ends[e].closed.Load()
}

func (e *end) take() (*os.File, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if !e.taken.CompareAndSwap(false, true) {
		return nil, ErrAlreadyConsumed
	}
	return e.f, nil
}

func (e *end) close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	// The owner of a taken end may have closed it already.
	if err := e.f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

func isExhausted(err error) bool {
	return errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ENOMEM)
}
