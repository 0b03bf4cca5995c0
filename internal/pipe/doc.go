// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package pipe models the channels between the processes of a chain.
//
// A Link is one kernel pipe. Its two ends are handed out at most once and
// closed independently; every close is idempotent, because a chain only
// stays free of deadlocks if each unused end is closed in every process,
// and several code paths race to do so.
//
// A Stdio is the standard stream table a child process starts with. Ends
// are installed onto it with DuplicateOnto, and the originals are released
// by the parent as soon as the child holds its own copies.
package pipe
