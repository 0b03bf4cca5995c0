package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Hardcoded returns the built-in safety rules that are always enforced
// regardless of configuration or --retry. They block permanently
// catastrophic operations.
func Hardcoded() []CheckFunc {
	return []CheckFunc{
		checkRmCatastrophic,
		checkDiskWrite,
	}
}

// blockDevices are the whole-disk nodes a chain must never write to.
var blockDevices = []string{
	"/dev/sd*", "/dev/hd*", "/dev/vd*", "/dev/xvd*",
	"/dev/nvme*", "/dev/mmcblk*", "/dev/disk*", "/dev/rdisk*",
}

func permanentlyBlocked(what string, arg string) error {
	return fmt.Errorf("refusing to %s %q. This operation is permanently blocked", what, arg)
}

// CheckGitCheckoutAll blocks "git checkout ." and "git checkout -- ."
// which silently discard all uncommitted changes. This is a default config
// rule (not hardcoded) so it can be bypassed with --retry.
func CheckGitCheckoutAll(exe string, args []string) error {
	if exe != "git" || len(args) == 0 || args[0] != "checkout" {
		return nil
	}
	for _, arg := range positionalArgs(args[1:]) {
		if filepath.Clean(arg) == "." {
			return fmt.Errorf("checkout: refusing to discard all changes (config rule); rerun with --retry to allow it")
		}
	}
	return nil
}

// checkRmCatastrophic blocks recursive removal of root, home, or the
// current or parent directory. No shell expands arguments here, so "~" and
// "$HOME" only ever arrive literally or already resolved.
func checkRmCatastrophic(exe string, args []string) error {
	if exe != "rm" {
		return nil
	}
	if hasAnyFlag(args, "--no-preserve-root") {
		return permanentlyBlocked("remove with", "--no-preserve-root")
	}
	if !hasAnyFlag(args, "-r", "-R", "--recursive") {
		return nil
	}
	home, _ := os.UserHomeDir()
	for _, arg := range positionalArgs(args) {
		cleaned := filepath.Clean(arg)
		switch {
		case cleaned == "/", cleaned == ".", cleaned == "..":
		case arg == "~", strings.HasPrefix(arg, "~/") && filepath.Clean(arg[1:]) == "/":
		case home != "" && cleaned == filepath.Clean(home):
		default:
			continue
		}
		return permanentlyBlocked("recursively remove", arg)
	}
	return nil
}

// checkDiskWrite blocks formatting filesystems and dd onto a whole disk.
func checkDiskWrite(exe string, args []string) error {
	if matchAnyGlob(exe, []string{"mkfs", "mkfs.*"}) {
		return permanentlyBlocked("run", exe)
	}
	if exe != "dd" {
		return nil
	}
	for _, arg := range args {
		dst, ok := strings.CutPrefix(arg, "of=")
		if !ok {
			continue
		}
		if matchAnyGlob(filepath.Clean(dst), blockDevices) {
			return permanentlyBlocked("write to", dst)
		}
	}
	return nil
}
