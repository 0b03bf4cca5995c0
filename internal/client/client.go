package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/marcelocantos/pipex/internal/ipc"
)

// Relay sends a chain to the daemon and relays stdin/stdout/stderr. Signals
// received on sigs (which may be nil) are forwarded to the chain.
// Returns the daemon's exit frame.
func Relay(ctx context.Context, conn net.Conn, req *ipc.Request,
	stdin io.Reader, stdout, stderr io.Writer, sigs <-chan os.Signal) (ipc.ExitResult, error) {

	failed := ipc.ExitResult{Code: ipc.ExitCallFailed}
	if err := ipc.WriteJSON(conn, ipc.TagRequest, req); err != nil {
		return failed, fmt.Errorf("send request: %w", err)
	}

	// Unblock the frame reader if the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// Stdin pump goroutine: reads from stdin, sends StdinData frames,
	// sends StdinEOF when done. It is not waited for: a terminal stdin
	// may never reach EOF, and the daemon stops reading once the chain
	// exits.
	var connMu sync.Mutex
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := stdin.Read(buf)
			if n > 0 {
				connMu.Lock()
				writeErr := ipc.WriteFrame(conn, ipc.TagStdinData, buf[:n])
				connMu.Unlock()
				if writeErr != nil {
					return
				}
			}
			if err != nil {
				connMu.Lock()
				ipc.WriteFrame(conn, ipc.TagStdinEOF, nil)
				connMu.Unlock()
				return
			}
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-sigs:
				if !ok {
					return
				}
				msg := ipc.SignalMsg{Signal: signalName(sig)}
				connMu.Lock()
				ipc.WriteJSON(conn, ipc.TagSignal, msg)
				connMu.Unlock()
			}
		}
	}()

	// Demux loop: reads daemon frames, dispatches to stdout/stderr,
	// returns on Exit frame.
	var exitResult ipc.ExitResult
	for {
		tag, payload, err := ipc.ReadFrame(conn)
		if err != nil {
			if ctx.Err() != nil {
				return failed, ctx.Err()
			}
			return failed, fmt.Errorf("read daemon frame: %w", err)
		}
		switch tag {
		case ipc.TagStdoutData:
			stdout.Write(payload)
		case ipc.TagStderrData:
			stderr.Write(payload)
		case ipc.TagExit:
			if err := json.Unmarshal(payload, &exitResult); err != nil {
				return failed, fmt.Errorf("unmarshal exit: %w", err)
			}
			return exitResult, nil
		}
	}
}

// Connect attempts to connect to a running daemon. dir overrides the
// runtime directory; empty picks the default.
func Connect(dir string) (net.Conn, error) {
	paths, err := ipc.RuntimePaths(dir)
	if err != nil {
		return nil, err
	}
	return net.Dial("unix", paths.Socket())
}

// ConnectOrSpawn tries to connect to an existing daemon. If none is
// running, it spawns one as a detached child and retries with backoff.
func ConnectOrSpawn(ctx context.Context, selfPath, dir string) (net.Conn, error) {
	if conn, err := Connect(dir); err == nil {
		return conn, nil
	}

	// Spawn daemon.
	cmd := exec.Command(selfPath, "--daemon")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if dir != "" {
		cmd.Env = append(os.Environ(), "PIPEX_DAEMON_RUNTIME_DIR="+dir)
	}
	setSysProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn daemon: %w", err)
	}
	cmd.Process.Release()

	// Backoff retry.
	delays := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		500 * time.Millisecond,
	}
	for _, d := range delays {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
		if conn, err := Connect(dir); err == nil {
			return conn, nil
		}
	}
	return nil, fmt.Errorf("daemon did not start within timeout")
}
