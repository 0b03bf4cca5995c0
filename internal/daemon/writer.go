package daemon

import (
	"io"
	"sync"

	"github.com/marcelocantos/pipex/internal/ipc"
)

// frameWriter turns a chain's output stream into tagged IPC frames. stdout
// and stderr writers share one connection and one mutex. After the first
// failed write every later write fails the same way, so the chain's copy
// goroutine stops and the children see EPIPE.
type frameWriter struct {
	mu    *sync.Mutex
	w     io.Writer
	tag   byte
	limit int
	err   error
}

func newFrameWriter(w io.Writer, mu *sync.Mutex, tag byte) *frameWriter {
	return &frameWriter{mu: mu, w: w, tag: tag, limit: ipc.MaxFrameSize}
}

func (fw *frameWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.err != nil {
		return 0, fw.err
	}
	written := 0
	for len(p) > 0 {
		chunk := p[:min(len(p), fw.limit)]
		if err := ipc.WriteFrame(fw.w, fw.tag, chunk); err != nil {
			fw.err = err
			return written, err
		}
		written += len(chunk)
		p = p[len(chunk):]
	}
	return written, nil
}
