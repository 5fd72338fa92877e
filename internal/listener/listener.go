package listener

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/ned/internal/command"
)

// Usage is the one-line usage text reported for a missing argument list.
const Usage = "usage: ned REGEX COMMAND [REGEX COMMAND ...]"

var (
	// ErrArgParse is returned when the argument list is not a non-empty list of pairs.
	ErrArgParse = errors.New("invalid arguments")

	// ErrRegexCompile is returned when a listener pattern is not a valid regular expression.
	ErrRegexCompile = errors.New("invalid pattern")
)

// Listener pairs a compiled event-name pattern with the command it triggers.
type Listener struct {
	Pattern string
	Matcher *regexp.Regexp
	Command command.Prepared
}

// Matches reports whether the event name matches the listener's pattern.
// The pattern is unanchored: it matches anywhere in the name.
func (l Listener) Matches(name string) bool {
	return l.Matcher.MatchString(name)
}

// Compile validates args as consecutive (pattern, command) pairs and returns
// the listeners in declaration order.
func Compile(args []string) ([]Listener, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrArgParse, Usage)
	}
	if len(args)%2 != 0 {
		return nil, fmt.Errorf("%w: expected pairs of REGEX COMMAND, got odd number of arguments", ErrArgParse)
	}

	listeners := make([]Listener, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		pattern, raw := args[i], args[i+1]

		matcher, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w `%s`: %v", ErrRegexCompile, pattern, err)
		}

		cmd, err := command.Prepare(raw)
		if err != nil {
			return nil, err
		}

		listeners = append(listeners, Listener{
			Pattern: pattern,
			Matcher: matcher,
			Command: cmd,
		})
	}

	return listeners, nil
}

// Fingerprint returns a stable BLAKE3 digest of the ordered listener set.
func Fingerprint(listeners []Listener) string {
	h := blake3.New()
	for _, l := range listeners {
		// NUL-separated so "a","bc" and "ab","c" hash differently.
		fmt.Fprintf(h, "%s\x00%T\x00%s\x00", l.Pattern, l.Command, l.Command)
	}
	return "blake3:" + hex.EncodeToString(h.Sum(nil))
}
