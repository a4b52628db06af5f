package mdmsdk

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PasswordSource resolves a password at the moment the connect handshake
// needs it. This keeps interactive prompts and piped input out of the core:
// Connect only sees a resolved string.
type PasswordSource interface {
	Password() (string, error)
}

// StaticPassword is a PasswordSource for an already-known password.
type StaticPassword string

func (s StaticPassword) Password() (string, error) {
	return string(s), nil
}

// Test seams, replaced in tests to avoid touching the terminal or process
// stdin.
var (
	readPassword         = term.ReadPassword
	stdin        io.Reader = os.Stdin
)

// PromptPassword returns a PasswordSource that prompts on the terminal and
// reads the password without echo.
func PromptPassword(prompt string) PasswordSource {
	return &promptSource{prompt: prompt, out: os.Stderr}
}

type promptSource struct {
	prompt string
	out    io.Writer
}

func (p *promptSource) Password() (string, error) {
	if _, err := fmt.Fprint(p.out, p.prompt); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// StdinLinePassword returns a PasswordSource that reads line n (1-based) of
// the process's standard input, for callers that pipe credentials in.
func StdinLinePassword(line int) PasswordSource {
	return &stdinLineSource{line: line}
}

type stdinLineSource struct {
	line int
}

func (s *stdinLineSource) Password() (string, error) {
	if s.line < 1 {
		return "", &InvalidArgumentError{Message: fmt.Sprintf("stdin line must be >= 1, got %d", s.line)}
	}

	scanner := bufio.NewScanner(stdin)
	for n := 1; scanner.Scan(); n++ {
		if n == s.line {
			return strings.TrimRight(scanner.Text(), "\r"), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return "", fmt.Errorf("stdin ended before line %d", s.line)
}
