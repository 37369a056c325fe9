package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/samcharles93/mlcchat/internal/textseg"
)

// lineState is the editing state of one line being typed in raw mode. The
// line is held as UTF-8 clusters so cursor moves and deletes never split a
// character.
type lineState struct {
	prompt string
	out    io.Writer

	line    []string
	cursor  int
	pending []byte
	need    int

	escState int
	escBuf   strings.Builder

	history  []string
	histPos  int
	browsing bool
	draft    []string
}

func newLineState(prompt string, out io.Writer, history []string) *lineState {
	return &lineState{
		prompt:  prompt,
		out:     out,
		line:    make([]string, 0, 64),
		history: history,
		histPos: len(history),
	}
}

func (s *lineState) text() string {
	return strings.Join(s.line, "")
}

func (s *lineState) redraw() {
	fmt.Fprintf(s.out, "\r%s%s\x1b[K", s.prompt, s.text())
	if s.cursor < len(s.line) {
		fmt.Fprintf(s.out, "\r%s%s", s.prompt, strings.Join(s.line[:s.cursor], ""))
	}
}

func (s *lineState) setLine(clusters []string) {
	s.line = append(s.line[:0], clusters...)
	s.cursor = len(s.line)
	s.redraw()
}

func isSpace(c string) bool {
	return c == " " || c == "\t"
}

func (s *lineState) wordLeft(from int) int {
	for from > 0 && isSpace(s.line[from-1]) {
		from--
	}
	for from > 0 && !isSpace(s.line[from-1]) {
		from--
	}
	return from
}

func (s *lineState) wordRight(from int) int {
	for from < len(s.line) && isSpace(s.line[from]) {
		from++
	}
	for from < len(s.line) && !isSpace(s.line[from]) {
		from++
	}
	return from
}

func (s *lineState) deleteRange(start, end int) {
	if start >= end {
		return
	}
	s.line = append(s.line[:start], s.line[end:]...)
	s.cursor = start
	s.redraw()
}

func (s *lineState) insert(c string) {
	s.line = append(s.line, "")
	copy(s.line[s.cursor+1:], s.line[s.cursor:])
	s.line[s.cursor] = c
	s.cursor++
	s.redraw()
}

func (s *lineState) historyUp() {
	if len(s.history) == 0 {
		return
	}
	if !s.browsing {
		s.draft = append([]string(nil), s.line...)
		s.browsing = true
		s.histPos = len(s.history)
	}
	if s.histPos > 0 {
		s.histPos--
		s.setLine(splitOrRaw(s.history[s.histPos]))
	}
}

func (s *lineState) historyDown() {
	if !s.browsing {
		return
	}
	if s.histPos < len(s.history)-1 {
		s.histPos++
		s.setLine(splitOrRaw(s.history[s.histPos]))
		return
	}
	s.histPos = len(s.history)
	s.browsing = false
	s.setLine(s.draft)
}

func splitOrRaw(line string) []string {
	clusters, err := textseg.Segment(line)
	if err != nil {
		return []string{line}
	}
	return clusters
}

func (s *lineState) handleCSI(seq string) {
	switch seq {
	case "A":
		s.historyUp()
	case "B":
		s.historyDown()
	case "D":
		if s.cursor > 0 {
			s.cursor--
			s.redraw()
		}
	case "C":
		if s.cursor < len(s.line) {
			s.cursor++
			s.redraw()
		}
	case "H":
		s.cursor = 0
		s.redraw()
	case "F":
		s.cursor = len(s.line)
		s.redraw()
	case "3~":
		if s.cursor < len(s.line) {
			s.deleteRange(s.cursor, s.cursor+1)
		}
	case "1;5D", "5D":
		s.cursor = s.wordLeft(s.cursor)
		s.redraw()
	case "1;5C", "5C":
		s.cursor = s.wordRight(s.cursor)
		s.redraw()
	case "3;5~":
		s.deleteRange(s.cursor, s.wordRight(s.cursor))
	}
}

// feed consumes one input byte. done reports that the line is complete;
// err is io.EOF when the user ended input.
func (s *lineState) feed(b byte) (done bool, line string, err error) {
	if s.escState != 0 {
		switch s.escState {
		case 1:
			s.escState = 0
			switch b {
			case '[':
				s.escState = 2
				s.escBuf.Reset()
			case 'b', 'B':
				s.cursor = s.wordLeft(s.cursor)
				s.redraw()
			case 'f', 'F':
				s.cursor = s.wordRight(s.cursor)
				s.redraw()
			case 127:
				s.deleteRange(s.wordLeft(s.cursor), s.cursor)
			}
		case 2:
			s.escBuf.WriteByte(b)
			if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
				s.handleCSI(s.escBuf.String())
				s.escState = 0
			}
		}
		return false, "", nil
	}

	if s.need > 0 {
		if !textseg.IsContinuation(b) {
			s.pending, s.need = s.pending[:0], 0
			return s.feed(b)
		}
		s.pending = append(s.pending, b)
		if len(s.pending) == s.need {
			c := string(s.pending)
			s.pending, s.need = s.pending[:0], 0
			s.insert(c)
		}
		return false, "", nil
	}

	switch b {
	case 27:
		s.escState = 1
	case '\r', '\n':
		fmt.Fprint(s.out, "\r\n")
		return true, s.text(), nil
	case 3: // Ctrl+C
		fmt.Fprint(s.out, "^C\r\n")
		return true, "", io.EOF
	case 4: // Ctrl+D
		if len(s.line) == 0 {
			fmt.Fprint(s.out, "\r\n")
			return true, "", io.EOF
		}
	case 127, 8:
		if s.cursor > 0 {
			s.deleteRange(s.cursor-1, s.cursor)
		}
	case 1: // Ctrl+A
		s.cursor = 0
		s.redraw()
	case 5: // Ctrl+E
		s.cursor = len(s.line)
		s.redraw()
	case 21: // Ctrl+U
		s.deleteRange(0, s.cursor)
	case 23: // Ctrl+W
		s.deleteRange(s.wordLeft(s.cursor), s.cursor)
	default:
		if b < 32 {
			break
		}
		switch n := textseg.SequenceLength(b); n {
		case 0:
		case 1:
			s.insert(string(b))
		default:
			s.pending = append(s.pending[:0], b)
			s.need = n
		}
	}
	return false, "", nil
}

// byteQueue feeds raw input to a lineState. Bytes read past the end of a
// line stay queued for the next line, so pasted multi-line input is kept.
type byteQueue struct {
	r    io.Reader
	tail []byte
	buf  [256]byte
}

func (q *byteQueue) readLine(st *lineState) (string, error) {
	for {
		for len(q.tail) > 0 {
			b := q.tail[0]
			q.tail = q.tail[1:]
			if done, line, err := st.feed(b); done {
				return line, err
			}
		}
		n, err := q.r.Read(q.buf[:])
		if n > 0 {
			q.tail = q.buf[:n]
			continue
		}
		if err != nil {
			return "", err
		}
	}
}
