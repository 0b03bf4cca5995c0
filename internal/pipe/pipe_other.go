// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package pipe

import "os"

// os.Pipe marks both descriptors close-on-exec under syscall.ForkLock.
func osPipe() (r, w *os.File, err error) {
	return os.Pipe()
}
