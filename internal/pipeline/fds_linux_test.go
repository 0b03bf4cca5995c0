// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const helperEnv = "PIPEX_TEST_HELPER"

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "fds" {
		os.Exit(fdHelper())
	}
	os.Exit(m.Run())
}

// fdHelper is a chain member: it copies stdin to stdout and then reports
// how many pipes it holds beyond its standard streams. It only finishes
// once every writer of its stdin is gone.
func fdHelper() int {
	if _, err := io.Copy(os.Stdout, os.Stdin); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("extra-pipes %d\n", countPipes(3))
	return 0
}

// countPipes counts open FIFO descriptors numbered from lowest upwards.
func countPipes(lowest int) int {
	n := 0
	for fd := lowest; fd < 1024; fd++ {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			continue
		}
		if st.Mode&unix.S_IFMT == unix.S_IFIFO {
			n++
		}
	}
	return n
}

func TestChildrenHoldOnlyTheirOwnEnds(t *testing.T) {
	self, err := os.Executable()
	require.NoError(t, err)
	env := append(os.Environ(), helperEnv+"=fds")

	for _, n := range []int{1, 2, 4} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			cmds := make([]Command, n)
			for i := range cmds {
				cmds[i] = Command{Argv: []string{self}}
			}
			var out, errOut bytes.Buffer
			res, err := New(
				WithEnv(env),
				WithStdin(strings.NewReader("payload\n")),
				WithStdout(&out),
				WithStderr(&errOut),
			).Run(testContext(t), cmds)
			require.NoError(t, err, errOut.String())
			require.Equal(t, make([]int, n), res.ExitCodes(), errOut.String())

			sc := bufio.NewScanner(&out)
			require.True(t, sc.Scan())
			assert.Equal(t, "payload", sc.Text())
			lines := 0
			for sc.Scan() {
				assert.Equal(t, "extra-pipes 0", sc.Text())
				lines++
			}
			assert.Equal(t, n, lines)
		})
	}
}

func TestParentReleasesEveryEnd(t *testing.T) {
	requireTools(t, "cat", "true")
	before := countPipes(0)

	for range 5 {
		_, err := New(WithStdin(strings.NewReader("x")), WithStdout(io.Discard)).Run(testContext(t), []Command{
			{Argv: []string{"cat"}},
			{Argv: []string{"cat"}},
			{Argv: []string{"/nonexistent/program"}},
			{Argv: []string{"true"}},
		})
		require.NoError(t, err)
	}

	assert.Equal(t, before, countPipes(0))
}
