// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipe

import (
	"os"

	"golang.org/x/sys/unix"
)

func osPipe() (r, w *os.File, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, nil, os.NewSyscallError("pipe2", err)
	}
	return os.NewFile(uintptr(fds[0]), "|0"), os.NewFile(uintptr(fds[1]), "|1"), nil
}
