package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter reads answers from the command's input. When the input is a
// terminal, secrets are read without echo.
type prompter struct {
	in  io.Reader
	out io.Writer

	scanner *bufio.Scanner
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, out: out, scanner: bufio.NewScanner(in)}
}

func (p *prompter) terminalFd() (int, bool) {
	f, ok := p.in.(*os.File)
	if !ok {
		return 0, false
	}

	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

// line prompts for a single line of visible input.
func (p *prompter) line(label string) (string, error) {
	if _, tty := p.terminalFd(); tty {
		fmt.Fprintf(p.out, "%s: ", label)
	}

	if p.scanner.Scan() {
		return strings.TrimSpace(p.scanner.Text()), nil
	}
	if err := p.scanner.Err(); err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}

	return "", errors.New("no input received on stdin")
}

// secret prompts for hidden input on a terminal and falls back to reading a
// line from piped input.
func (p *prompter) secret(label string) (string, error) {
	fd, tty := p.terminalFd()
	if !tty {
		return p.line(label)
	}

	fmt.Fprintf(p.out, "%s: ", label)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}

	return strings.TrimSpace(string(raw)), nil
}
