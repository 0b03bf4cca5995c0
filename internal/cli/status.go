package cli

import (
	"fmt"
	"io"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/marcelocantos/pipex/internal/ipc"
)

// printStatus writes one line per chain position:
//
//	[0] cat pid=4121 exit=0 1.2ms
//	[1] wc pid=0 exit=127 0.0ms exec failed: ...
func printStatus(w io.Writer, procs []ipc.ProcessStatus) {
	for i, p := range procs {
		var b strings.Builder
		fmt.Fprintf(&b, "[%d] %s pid=%d exit=%d", i, p.Program, p.Pid, p.ExitCode)
		if p.Signal != 0 {
			fmt.Fprintf(&b, " signal=%s", signalName(p.Signal))
		}
		fmt.Fprintf(&b, " %.1fms", p.Duration)
		if p.Error != "" {
			b.WriteString(" ")
			b.WriteString(p.Error)
		}
		fmt.Fprintln(w, b.String())
	}
}

func signalName(signo int) string {
	if name := unix.SignalName(syscall.Signal(signo)); name != "" {
		return name
	}
	return fmt.Sprintf("%d", signo)
}
