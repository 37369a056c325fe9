// Package render redraws a growing message on a terminal, touching only the
// clusters that changed since the previous draw.
package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/samcharles93/mlcchat/internal/textseg"
)

// EraseMode selects how many columns an erased cluster occupies.
type EraseMode string

const (
	// EraseCluster erases one column per cluster regardless of display width.
	EraseCluster EraseMode = "cluster"
	// EraseWidth erases the display width of each cluster.
	EraseWidth EraseMode = "width"
)

// StreamMode selects when generated text reaches the terminal.
type StreamMode string

const (
	StreamTypewriter StreamMode = "typewriter"
	StreamQuiet      StreamMode = "quiet"
)

const eraseSeq = "\b \b"

func ParseEraseMode(s string) (EraseMode, error) {
	switch m := EraseMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", EraseCluster:
		return EraseCluster, nil
	case EraseWidth:
		return EraseWidth, nil
	default:
		return "", fmt.Errorf("unknown erase mode %q (expected cluster or width)", s)
	}
}

func ParseStreamMode(s string) (StreamMode, error) {
	switch m := StreamMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", StreamTypewriter:
		return StreamTypewriter, nil
	case StreamQuiet:
		return StreamQuiet, nil
	default:
		return "", fmt.Errorf("unknown stream mode %q (expected typewriter or quiet)", s)
	}
}

// Plan is the edit that turns one rendered cluster sequence into another.
type Plan struct {
	Keep  int
	Erase []string
	Print []string
}

// Diff keeps the common leading run of prev and cur, erases the rest of prev
// and prints the rest of cur.
func Diff(prev, cur []string) Plan {
	k := textseg.CommonPrefix(prev, cur)
	return Plan{
		Keep:  k,
		Erase: prev[k:],
		Print: cur[k:],
	}
}

// Encode renders p as terminal output.
func (p Plan) Encode(mode EraseMode) string {
	var b strings.Builder
	for _, c := range p.Erase {
		cols := 1
		if mode == EraseWidth {
			cols = max(runewidth.StringWidth(c), 1)
		}
		for range cols {
			b.WriteString(eraseSeq)
		}
	}
	for _, c := range p.Print {
		b.WriteString(c)
	}
	return b.String()
}

// Redrawer tracks what is on screen and emits the minimal update for each new
// message. It is not safe for concurrent use.
type Redrawer struct {
	out  *bufio.Writer
	mode EraseMode
	prev []string
}

func NewRedrawer(w io.Writer, mode EraseMode) *Redrawer {
	return &Redrawer{
		out:  bufio.NewWriterSize(w, 4096),
		mode: mode,
	}
}

// Update redraws so the screen shows msg. Malformed UTF-8 leaves the screen
// and the recorded state untouched.
func (r *Redrawer) Update(msg string) error {
	cur, err := textseg.Segment(msg)
	if err != nil {
		return fmt.Errorf("render message: %w", err)
	}
	plan := Diff(r.prev, cur)
	if _, err := r.out.WriteString(plan.Encode(r.mode)); err != nil {
		return err
	}
	if err := r.out.Flush(); err != nil {
		return err
	}
	r.prev = cur
	return nil
}

// Reset forgets the rendered text, e.g. at the start of a new reply.
func (r *Redrawer) Reset() {
	r.prev = nil
}

// Rendered returns the clusters currently on screen.
func (r *Redrawer) Rendered() []string {
	return r.prev
}
