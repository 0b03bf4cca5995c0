// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/marcelocantos/pipex/internal/pipe"
)

// Call-level errors are returned by Start, Run and Wait. Position-level
// errors (redirection, exec) are only ever found in ProcessResult.Err.
var (
	ErrEmptyChain        = errors.New("empty chain")
	ErrInvalidCommand    = errors.New("invalid command")
	ErrRejected          = errors.New("chain rejected")
	ErrResourceExhausted = pipe.ErrResourceExhausted
	ErrRedirectionFailed = errors.New("redirection failed")
	ErrExecFailed        = errors.New("exec failed")
	ErrSpawnFailed       = errors.New("spawn failed")
)

// Exit statuses reported for positions whose program never ran. They follow
// the shell conventions for "cannot redirect" and "command not found".
const (
	ExitRedirectionFailed = 125
	ExitExecFailed        = 127
)

// classifyStart separates failures of the program image (missing, not
// executable) from failures to create a process at all.
func classifyStart(err error) error {
	switch {
	case errors.Is(err, syscall.EAGAIN),
		errors.Is(err, syscall.ENOMEM),
		errors.Is(err, syscall.EMFILE),
		errors.Is(err, syscall.ENFILE),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	default:
		return fmt.Errorf("%w: %w", ErrExecFailed, err)
	}
}
