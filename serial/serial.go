// Package serial implements the whitespace-delimited token format shared by
// every IR serialiser in the compiler. The format is the external contract:
// it is bit-exact across runs for identical inputs.
package serial

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Missing is the sentinel token written for absent optional values and for
// gap layout bits.
const Missing = "_"

// Writer emits space-separated tokens on an underlying io.Writer. Errors are
// sticky; check Err once after writing.
type Writer struct {
	w       io.Writer
	err     error
	lineLen int
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Err returns the first error encountered while writing.
func (w *Writer) Err() error {
	return w.err
}

// WriteToken writes a single token. The token must not contain whitespace.
func (w *Writer) WriteToken(tok string) {
	if w.err != nil {
		return
	}
	if strings.ContainsAny(tok, " \t\n") || tok == "" {
		w.err = fmt.Errorf("serial: invalid token %q", tok)
		return
	}
	if w.lineLen > 0 {
		if _, w.err = io.WriteString(w.w, " "); w.err != nil {
			return
		}
	}
	if _, w.err = io.WriteString(w.w, tok); w.err == nil {
		w.lineLen += len(tok)
	}
}

// WriteInt writes an integer token.
func (w *Writer) WriteInt(v int) {
	w.WriteToken(strconv.Itoa(v))
}

// WriteFloat writes a float token with full round-trip precision.
func (w *Writer) WriteFloat(v float64) {
	w.WriteToken(strconv.FormatFloat(v, 'g', -1, 64))
}

// WriteInts writes a length-prefixed list of integers.
func (w *Writer) WriteInts(vs []int) {
	w.WriteInt(len(vs))
	for _, v := range vs {
		w.WriteInt(v)
	}
}

// WriteOptionalInt writes v, or the Missing sentinel when ok is false.
func (w *Writer) WriteOptionalInt(v int, ok bool) {
	if ok {
		w.WriteInt(v)
	} else {
		w.WriteToken(Missing)
	}
}

// EndLine terminates the current record.
func (w *Writer) EndLine() {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.w, "\n")
	w.lineLen = 0
}

// Scanner consumes space-separated tokens from an underlying reader. Errors
// are sticky; check Err once after reading.
type Scanner struct {
	s      *bufio.Scanner
	peeked string
	hasTok bool
	err    error
}

// NewScanner returns a Scanner over r.
func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1<<24)
	s.Split(bufio.ScanWords)
	return &Scanner{s: s}
}

// Err returns the first error encountered while reading.
func (s *Scanner) Err() error {
	return s.err
}

// More reports whether another token is available.
func (s *Scanner) More() bool {
	if s.err != nil {
		return false
	}
	if s.hasTok {
		return true
	}
	if !s.s.Scan() {
		if err := s.s.Err(); err != nil {
			s.err = err
		}
		return false
	}
	s.peeked = s.s.Text()
	s.hasTok = true
	return true
}

// Token returns the next token.
func (s *Scanner) Token() string {
	if !s.More() {
		if s.err == nil {
			s.err = io.ErrUnexpectedEOF
		}
		return ""
	}
	s.hasTok = false
	return s.peeked
}

// Int reads an integer token.
func (s *Scanner) Int() int {
	tok := s.Token()
	if s.err != nil {
		return 0
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		s.err = fmt.Errorf("serial: expected integer, got %q", tok)
		return 0
	}
	return v
}

// Float reads a float token.
func (s *Scanner) Float() float64 {
	tok := s.Token()
	if s.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		s.err = fmt.Errorf("serial: expected float, got %q", tok)
		return 0
	}
	return v
}

// Ints reads a length-prefixed list of integers.
func (s *Scanner) Ints() []int {
	n := s.Int()
	if s.err != nil || n < 0 {
		return nil
	}
	vs := make([]int, 0, n)
	for i := 0; i < n; i++ {
		vs = append(vs, s.Int())
	}
	return vs
}

// OptionalInt reads either an integer or the Missing sentinel.
func (s *Scanner) OptionalInt() (int, bool) {
	tok := s.Token()
	if s.err != nil || tok == Missing {
		return 0, false
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		s.err = fmt.Errorf("serial: expected integer or %q, got %q", Missing, tok)
		return 0, false
	}
	return v, true
}
