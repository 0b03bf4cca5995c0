package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/marcelocantos/pipex/internal/audit"
)

const defaultTail = 20

// RunAudit handles pipex --audit.
func RunAudit(w io.Writer, logPath string, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(w, "usage: pipex --audit <verify|show|tail> [n]")
		return 1
	}

	n := defaultTail
	if len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v <= 0 {
			fmt.Fprintf(w, "pipex --audit: bad count %q\n", args[1])
			return 1
		}
		n = v
	}

	switch args[0] {
	case "verify":
		count, err := audit.VerifyCount(logPath)
		if err != nil {
			fmt.Fprintf(w, "audit verification FAILED: %v\n", err)
			return 1
		}
		fmt.Fprintf(w, "audit log integrity verified (%d entries)\n", count)
		return 0

	case "show", "tail":
		entries, err := audit.Tail(logPath, n)
		if err != nil {
			fmt.Fprintf(w, "pipex --audit: %v\n", err)
			return 1
		}
		if len(entries) == 0 {
			fmt.Fprintln(w, "no audit entries")
			return 0
		}
		for _, e := range entries {
			if args[0] == "show" {
				fmt.Fprintf(w, "%d %s exit=%d %s %s\n",
					e.Seq, e.Time.Format("2006-01-02T15:04:05"), e.ExitCode, e.Origin, e.Chain)
				continue
			}
			data, _ := json.MarshalIndent(e, "", "  ")
			fmt.Fprintf(w, "%s\n", data)
		}
		return 0

	default:
		fmt.Fprintf(w, "pipex --audit: unknown subcommand %q\n", args[0])
		return 1
	}
}
