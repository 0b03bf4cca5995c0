package ipc

import (
	"os"
	"sort"
	"strings"
)

// curatedEnvKeys lists environment variables propagated from client to daemon.
var curatedEnvKeys = []string{
	"HOME", "PATH", "USER", "SHELL", "TERM",
	"LANG", "GOPATH", "GOROOT",
}

// curatedEnvPrefixes lists prefixes for additional propagated variables.
var curatedEnvPrefixes = []string{
	"LC_",
}

// CaptureEnv builds a curated environment map from the current process.
func CaptureEnv() map[string]string {
	env := make(map[string]string)
	for _, key := range curatedEnvKeys {
		if val, ok := os.LookupEnv(key); ok {
			env[key] = val
		}
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		for _, prefix := range curatedEnvPrefixes {
			if strings.HasPrefix(k, prefix) {
				env[k] = v
			}
		}
	}
	return env
}

// Environ flattens env into KEY=VALUE entries sorted by key, the form a
// process environment takes.
func Environ(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + env[k]
	}
	return out
}
