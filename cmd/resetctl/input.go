package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// prompter reads passwords without echo from a terminal, or line by line when
// input is piped.
type prompter struct {
	out    io.Writer
	reader *bufio.Reader
	fd     int
	tty    bool
}

func newPrompter(out io.Writer, in io.Reader) *prompter {
	p := &prompter{out: out, reader: bufio.NewReader(in), fd: -1}
	if f, ok := in.(*os.File); ok {
		p.fd = int(f.Fd())
		p.tty = isTerminal(p.fd)
	}
	return p
}

// Password prints prompt and reads one password.
func (p *prompter) Password(prompt string) (string, error) {
	if !p.tty {
		line, err := p.reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	if _, err := fmt.Fprint(p.out, prompt); err != nil {
		return "", err
	}
	pw, err := readPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
