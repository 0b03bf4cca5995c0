package cli

import (
	"fmt"
	"io"
)

// RunHelp shows general usage.
func RunHelp(w io.Writer) int {
	fmt.Fprintln(w, "pipex: run a chain of commands connected stdout to stdin")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  pipex [--retry] [--status] <chainfile>   run a chain in this process")
	fmt.Fprintln(w, "  pipex --remote [--retry] [--status] <chainfile>")
	fmt.Fprintln(w, "                                          run a chain through the daemon")
	fmt.Fprintln(w, "  pipex --daemon                          serve chains on a unix socket")
	fmt.Fprintln(w, "  pipex --mcp                             serve the run_chain tool over MCP stdio")
	fmt.Fprintln(w, "  pipex --audit <verify|show|tail>        audit log operations")
	fmt.Fprintln(w, "  pipex --help                            show this help")
	fmt.Fprintln(w, "  pipex --version                         show version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "chain files:")
	fmt.Fprintln(w, "  .yaml .yml .json   commands: [{argv: [...], input_file: ..., output_file: ...}]")
	fmt.Fprintln(w, "  .star              chain = [cmd(\"sort\", stdin=\"in.txt\"), cmd(\"uniq\", \"-c\")]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "input_file applies to the first command, output_file to the last.")
	fmt.Fprintln(w, "exit status: the last command's; 2 if the chain could not be run.")
	return 0
}

// ParseFlags strips leading --retry and --status switches from args.
func ParseFlags(args []string) (Flags, []string) {
	var f Flags
	for len(args) > 0 {
		switch args[0] {
		case "--retry":
			f.Retry = true
		case "--status":
			f.Status = true
		default:
			return f, args
		}
		args = args[1:]
	}
	return f, args
}
