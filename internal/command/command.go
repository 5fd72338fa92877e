// Package command turns user-supplied command strings into executable form.
//
// Three forms are accepted:
//   - "prog, arg1, arg2" is split on commas into an exact argv (no shell).
//   - "prog" with no spaces runs the program with no arguments.
//   - anything else containing a space is handed to `sh -c` verbatim.
package command

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCommandSpec is returned when a comma-separated command list is malformed.
var ErrInvalidCommandSpec = errors.New("invalid command list")

// Prepared is a command ready to execute. It is either Exec or Shell.
type Prepared interface {
	fmt.Stringer
	prepared()
}

// Exec runs Program directly with Args.
type Exec struct {
	Program string
	Args    []string
}

// Shell runs Command through the system shell.
type Shell struct {
	Command string
}

func (Exec) prepared()  {}
func (Shell) prepared() {}

func (e Exec) String() string {
	if len(e.Args) == 0 {
		return e.Program
	}
	return e.Program + " " + strings.Join(e.Args, " ")
}

func (s Shell) String() string {
	return s.Command
}

// Prepare parses a raw command string.
func Prepare(raw string) (Prepared, error) {
	switch {
	case strings.Contains(raw, ","):
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) == 0 || parts[0] == "" {
			return nil, fmt.Errorf("%w: `%s`", ErrInvalidCommandSpec, raw)
		}
		for _, p := range parts {
			if strings.Contains(p, " ") {
				return nil, fmt.Errorf("%w: `%s`", ErrInvalidCommandSpec, raw)
			}
		}
		return Exec{Program: parts[0], Args: parts[1:]}, nil

	case !strings.Contains(raw, " "):
		return Exec{Program: raw, Args: []string{}}, nil

	default:
		return Shell{Command: raw}, nil
	}
}
