// Package textseg splits UTF-8 text into whole character clusters so that
// incremental terminal output never prints or erases half a character.
package textseg

import (
	"errors"
	"fmt"
)

// ErrInvalidUTF8 is wrapped by every segmentation failure.
var ErrInvalidUTF8 = errors.New("invalid utf-8 string")

// InvalidError reports the byte offset of the sequence that could not be segmented.
type InvalidError struct {
	Offset int
	Lead   byte
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid utf-8 string: bad sequence at byte %d (lead 0x%02x)", e.Offset, e.Lead)
}

func (e *InvalidError) Unwrap() error { return ErrInvalidUTF8 }

// SequenceLength returns the encoded length implied by a lead byte, or 0 if b
// cannot start a sequence.
func SequenceLength(b byte) int {
	switch {
	case b&0x80 == 0x00:
		return 1
	case b&0xE0 == 0xC0:
		return 2
	case b&0xF0 == 0xE0:
		return 3
	case b&0xF8 == 0xF0:
		return 4
	default:
		return 0
	}
}

// IsContinuation reports whether b matches 10xxxxxx.
func IsContinuation(b byte) bool {
	return b&0xC0 == 0x80
}

// Segment splits s into clusters of one encoded character each.
// Only lead and continuation bit patterns are checked; overlong forms pass.
func Segment(s string) ([]string, error) {
	out := make([]string, 0, len(s))
	for pos := 0; pos < len(s); {
		n := SequenceLength(s[pos])
		if n == 0 || pos+n > len(s) {
			return nil, &InvalidError{Offset: pos, Lead: s[pos]}
		}
		for i := 1; i < n; i++ {
			if !IsContinuation(s[pos+i]) {
				return nil, &InvalidError{Offset: pos, Lead: s[pos]}
			}
		}
		out = append(out, s[pos:pos+n])
		pos += n
	}
	return out, nil
}

// CommonPrefix returns the number of leading clusters a and b share.
func CommonPrefix(a, b []string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
