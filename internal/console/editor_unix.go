//go:build linux || darwin || freebsd

package console

import (
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Editor reads lines from a terminal in raw mode with cursor movement,
// word editing and in-memory history.
type Editor struct {
	fd      int
	in      byteQueue
	out     io.Writer
	history []string
}

func newTerminalReader(in *os.File, out io.Writer) Reader {
	return &Editor{fd: int(in.Fd()), in: byteQueue{r: in}, out: out}
}

func (e *Editor) ReadLine(prompt string) (string, error) {
	oldState, err := unix.IoctlGetTermios(e.fd, ioctlGetTermios)
	if err != nil {
		return "", err
	}
	raw := *oldState
	raw.Lflag &^= unix.ICANON | unix.ECHO | unix.ISIG
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(e.fd, ioctlSetTermios, &raw); err != nil {
		return "", err
	}
	defer func() {
		_ = unix.IoctlSetTermios(e.fd, ioctlSetTermios, oldState)
	}()

	st := newLineState(prompt, e.out, e.history)
	if _, err := io.WriteString(e.out, prompt); err != nil {
		return "", err
	}

	line, err := e.in.readLine(st)
	if err == nil && strings.TrimSpace(line) != "" {
		e.history = append(e.history, line)
	}
	return line, err
}
