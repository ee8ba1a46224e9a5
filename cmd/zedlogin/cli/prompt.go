package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/majorcontext/zedlogin/internal/account"
)

// passwordPrompter asks for a password when the provider shows a login form
// for an account without one. Input is hidden on a terminal; piped input is
// read one line per prompt.
type passwordPrompter struct {
	in  *os.File
	out io.Writer

	mu     sync.Mutex
	reader *bufio.Reader
}

func newPasswordPrompter() *passwordPrompter {
	return &passwordPrompter{in: os.Stdin, out: os.Stderr}
}

func (p *passwordPrompter) Prompt(_ context.Context, acct account.Account) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "GitHub password for %s: ", acct.Username)

	fd := int(p.in.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	if p.reader == nil {
		p.reader = bufio.NewReader(p.in)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
