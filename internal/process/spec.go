package process

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/loykin/bringup/internal/logger"
)

// Spec describes one managed service. It is built once from configuration
// and never mutated afterwards.
type Spec struct {
	Name    string        `json:"name"`
	Command string        `json:"command"`           // executable, or a shell command line when Args is empty
	Args    []string      `json:"args,omitempty"`    // explicit argv; bypasses shell parsing
	WorkDir string        `json:"workdir,omitempty"` // optional working dir
	Host    string        `json:"host,omitempty"`    // informational bind host
	Port    int           `json:"port,omitempty"`    // bind port, used for reclamation and status display only
	Env     []string      `json:"env,omitempty"`     // per-service extra env
	Log     logger.Config `json:"log"`               // stdout/stderr capture
}

// Validate reports configuration errors that must abort before any launch.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("service requires a name")
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("service %s requires a command", s.Name)
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("service %s: port %d out of range", s.Name, s.Port)
	}
	return nil
}

// BuildCommand constructs the *exec.Cmd for this spec. With explicit Args
// the command runs directly. A bare Command string avoids invoking a shell
// when not necessary, and respects an explicit shell invocation already
// present (e.g. "sh -c 'echo hi'") without double-wrapping it.
func (s *Spec) BuildCommand() *exec.Cmd {
	if len(s.Args) > 0 {
		// #nosec G204
		return exec.Command(s.Command, s.Args...)
	}
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		return getTrueCommand()
	}
	// An explicit shell prefix is honored without adding another layer.
	if after, ok := parseExplicitShell(cmdStr); ok {
		return getShellCommand(after)
	}
	// Metacharacters require a shell.
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return getShellCommand(cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>"
// at the start of cmdStr and returns the argument after "-c" verbatim so its
// quoting survives. One pair of outer quotes is stripped so the shell sees
// the actual script.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return after, true
		}
	}
	return "", false
}
