package secret

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrUnavailable is returned when no secret is configured and prompting is
// not possible.
var ErrUnavailable = errors.New("secret: not configured")

// Source resolves the admin JWT secret from an environment variable or, when
// allowed, by prompting the operator. The first result is cached.
type Source struct {
	envVar string
	prompt bool
	lookup func(string) (string, bool)
	stdin  *os.File
	stderr io.Writer

	once  sync.Once
	value string
	err   error
}

// NewSource checks envVar and optionally falls back to a terminal prompt.
func NewSource(envVar string, prompt bool) *Source {
	return &Source{
		envVar: strings.TrimSpace(envVar),
		prompt: prompt,
		lookup: os.LookupEnv,
		stdin:  os.Stdin,
		stderr: os.Stderr,
	}
}

// Get returns the secret. Whitespace-only values are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := s.lookup(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = strings.TrimSpace(value)
				return
			}
		}
		if !s.prompt || s.stdin == nil || !term.IsTerminal(int(s.stdin.Fd())) {
			if s.envVar != "" {
				s.err = fmt.Errorf("%w: set %s", ErrUnavailable, s.envVar)
			} else {
				s.err = ErrUnavailable
			}
			return
		}

		fmt.Fprint(s.stderr, "Enter admin JWT secret: ")
		raw, err := term.ReadPassword(int(s.stdin.Fd()))
		fmt.Fprintln(s.stderr)
		if err != nil {
			s.err = fmt.Errorf("read secret: %w", err)
			return
		}
		if strings.TrimSpace(string(raw)) == "" {
			s.err = errors.New("admin JWT secret cannot be empty")
			return
		}
		s.value = strings.TrimSpace(string(raw))
	})
	return s.value, s.err
}
