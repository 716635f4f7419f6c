package provider

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// interpreters run a script given as their first positional argument.
var interpreters = map[string]bool{
	"node":    true,
	"nodejs":  true,
	"python":  true,
	"python3": true,
	"deno":    true,
	"bun":     true,
	"ruby":    true,
}

// valueOptions take the following argument as their value, so that
// argument is never the script.
var valueOptions = map[string]bool{
	"-r":                    true,
	"--require":             true,
	"--import":              true,
	"--loader":              true,
	"--experimental-loader": true,
	"-W":                    true,
	"-X":                    true,
	"-I":                    true,
}

// resolveCommand finds command on PATH, or checks it directly when it
// contains a path separator.
func resolveCommand(command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", errors.New("empty command")
	}
	return exec.LookPath(command)
}

// checkModule fails when command is an interpreter and its script argument
// does not exist. Without it such providers spawn and then hang or exit
// before the handshake.
func checkModule(command string, args []string) error {
	base := strings.TrimSuffix(filepath.Base(command), ".exe")
	if !interpreters[base] {
		return nil
	}

	script := scriptArg(args)
	if script == "" {
		return nil
	}
	if _, err := os.Stat(script); err != nil {
		return fmt.Errorf("%s: %w", script, err)
	}
	return nil
}

// scriptArg returns the first positional argument, or "" when the
// interpreter runs a module or inline code instead of a file.
func scriptArg(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-m" || arg == "-c" || arg == "-e" || arg == "--eval":
			return ""
		case arg == "run":
			continue
		case valueOptions[arg]:
			i++
			continue
		case strings.HasPrefix(arg, "-"):
			continue
		default:
			return arg
		}
	}
	return ""
}

// buildEnv returns the parent environment with overrides appended. exec
// keeps the last value for duplicate keys.
func buildEnv(overrides map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
