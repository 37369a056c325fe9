package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"
)

func feedAll(t *testing.T, st *lineState, input string) (string, error) {
	t.Helper()
	for i := 0; i < len(input); i++ {
		done, line, err := st.feed(input[i])
		if done {
			return line, err
		}
	}
	t.Fatalf("input %q did not complete a line", input)
	return "", nil
}

func TestLineStateEditing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello\r", "hello"},
		{"multibyte", "héllo 世界\n", "héllo 世界"},
		{"backspace removes whole cluster", "ab世\x7f\r", "ab"},
		{"insert after left arrow", "ac\x1b[Db\r", "abc"},
		{"home then insert", "bc\x01a\r", "abc"},
		{"ctrl-w deletes word", "foo bar\x17baz\r", "foo baz"},
		{"ctrl-u clears to start", "junk\x15ok\r", "ok"},
		{"delete key", "abc\x1b[H\x1b[3~\r", "bc"},
		{"word left", "one two\x1b[1;5DX\r", "one Xtwo"},
		{"cursor over multibyte", "a世b\x1b[D\x1b[D\x7f\r", "世b"},
		{"invalid lead ignored", "a\xffb\r", "ab"},
		{"broken sequence restarts", "a\xe4b\r", "ab"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := newLineState("> ", io.Discard, nil)
			got, err := feedAll(t, st, tc.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestLineStateHistory(t *testing.T) {
	t.Parallel()

	history := []string{"first", "second"}

	st := newLineState("> ", io.Discard, history)
	got, _ := feedAll(t, st, "\x1b[A\x1b[A\r")
	if got != "first" {
		t.Fatalf("two ups: got %q want first", got)
	}

	st = newLineState("> ", io.Discard, history)
	got, _ = feedAll(t, st, "dr\x1b[A\x1b[B\r")
	if got != "dr" {
		t.Fatalf("up then down should restore draft: got %q", got)
	}
}

func TestLineStateEOF(t *testing.T) {
	t.Parallel()

	st := newLineState("> ", io.Discard, nil)
	if _, err := feedAll(t, st, "\x04"); !errors.Is(err, io.EOF) {
		t.Fatalf("ctrl-d on empty line should be EOF, got %v", err)
	}

	st = newLineState("> ", io.Discard, nil)
	got, err := feedAll(t, st, "ab\x04\r")
	if err != nil || got != "ab" {
		t.Fatalf("ctrl-d on non-empty line is ignored: got %q %v", got, err)
	}

	st = newLineState("> ", io.Discard, nil)
	if _, err := feedAll(t, st, "abc\x03"); !errors.Is(err, io.EOF) {
		t.Fatalf("ctrl-c should be EOF, got %v", err)
	}
}

func TestLineStateRedraw(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	st := newLineState("USER: ", &out, nil)
	if _, err := feedAll(t, st, "hi\r"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "\rUSER: hi\x1b[K") {
		t.Fatalf("expected redraw of prompt and line, got %q", out.String())
	}
	if !strings.HasSuffix(out.String(), "\r\n") {
		t.Fatalf("expected line to end with CRLF, got %q", out.String())
	}
}

func TestByteQueueKeepsPastedLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		r    io.Reader
	}{
		{"single read", strings.NewReader("hello\nwörld\r/exit\n")},
		{"byte at a time", iotest.OneByteReader(strings.NewReader("hello\nwörld\r/exit\n"))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := &byteQueue{r: tc.r}
			for i, want := range []string{"hello", "wörld", "/exit"} {
				got, err := q.readLine(newLineState("> ", io.Discard, nil))
				if err != nil {
					t.Fatalf("line %d: unexpected error: %v", i, err)
				}
				if got != want {
					t.Fatalf("line %d: got %q want %q", i, got, want)
				}
			}
			if _, err := q.readLine(newLineState("> ", io.Discard, nil)); !errors.Is(err, io.EOF) {
				t.Fatalf("expected EOF, got %v", err)
			}
		})
	}
}

func TestPlainReader(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	r := NewPlain(strings.NewReader("hello\r\n/exit\nlast"), &out)

	want := []string{"hello", "/exit", "last"}
	for i, w := range want {
		got, err := r.ReadLine("USER: ")
		if err != nil {
			t.Fatalf("line %d: unexpected error: %v", i, err)
		}
		if got != w {
			t.Fatalf("line %d: got %q want %q", i, got, w)
		}
	}
	if _, err := r.ReadLine("USER: "); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	if got := strings.Count(out.String(), "USER: "); got != 4 {
		t.Fatalf("expected prompt printed 4 times, got %d", got)
	}
}

func TestPlainReadLineContext(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()
	var out bytes.Buffer
	r := NewPlain(pr, &out)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.ReadLineContext(ctx, "USER: "); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	go func() { _, _ = io.WriteString(pw, "late\n") }()
	got, err := r.ReadLineContext(context.Background(), "USER: ")
	if err != nil || got != "late" {
		t.Fatalf("abandoned read should deliver its line, got %q %v", got, err)
	}
	if out.String() != "USER: " {
		t.Fatalf("prompt should be printed once, got %q", out.String())
	}
}
