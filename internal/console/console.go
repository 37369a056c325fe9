// Package console reads user input lines, with in-line editing and history
// when stdin is a terminal.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Reader reads one line of input after showing prompt. It returns io.EOF once
// input is exhausted or the user ends the session.
type Reader interface {
	ReadLine(prompt string) (string, error)
}

// ContextReader is a Reader whose blocking read can be abandoned when ctx is
// done.
type ContextReader interface {
	Reader
	ReadLineContext(ctx context.Context, prompt string) (string, error)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// New returns an editing reader when in is a terminal on a supported
// platform, and a plain line reader otherwise.
func New(in *os.File, out io.Writer) Reader {
	if IsTerminal(in) {
		if r := newTerminalReader(in, out); r != nil {
			return r
		}
	}
	return NewPlain(in, out)
}

// Plain reads newline-terminated lines without echo control.
type Plain struct {
	r   *bufio.Reader
	out io.Writer

	inflight chan plainResult
}

type plainResult struct {
	line string
	err  error
}

func NewPlain(in io.Reader, out io.Writer) *Plain {
	return &Plain{r: bufio.NewReader(in), out: out}
}

// ReadLine returns a final unterminated line as-is; the following call
// reports io.EOF.
func (p *Plain) ReadLine(prompt string) (string, error) {
	if _, err := fmt.Fprint(p.out, prompt); err != nil {
		return "", err
	}
	s, err := p.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && s != "" {
			return trimTrailingNewline(s), nil
		}
		return "", err
	}
	return trimTrailingNewline(s), nil
}

// ReadLineContext is ReadLine that returns ctx.Err() once ctx is done. A read
// abandoned that way keeps running, and the next call receives its line
// without printing the prompt again.
func (p *Plain) ReadLineContext(ctx context.Context, prompt string) (string, error) {
	if p.inflight == nil {
		ch := make(chan plainResult, 1)
		go func() {
			line, err := p.ReadLine(prompt)
			ch <- plainResult{line, err}
		}()
		p.inflight = ch
	}
	select {
	case res := <-p.inflight:
		p.inflight = nil
		return res.line, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func trimTrailingNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '\r' {
		s = s[:len(s)-1]
	}
	return s
}
