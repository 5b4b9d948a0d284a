// Package plate normalizes raw OCR text into canonical plate numbers.
//
// Validation is a pure function: it strips separators, repairs characters
// that are illegal for their position using known OCR confusions, and accepts
// the first grammar, in priority order, whose layout the repaired text fits.
package plate

import (
	"fmt"
	"strings"
)

// Result is an accepted plate.
type Result struct {
	Text string // canonical form, groups joined by a single space
	Kind Kind
}

// Validate returns the canonical text and grammar kind for raw, or an error
// wrapping ErrRejected.
func Validate(raw string) (Result, error) {
	s := normalize(raw)
	if s == "" {
		return Result{}, fmt.Errorf("%w: empty text", ErrRejected)
	}

	lengthOK := false
	for _, g := range grammars {
		if g.length() != len(s) {
			continue
		}
		lengthOK = true
		if text, ok := g.correct(s); ok {
			return Result{Text: text, Kind: g.kind}, nil
		}
	}
	if !lengthOK {
		return Result{}, fmt.Errorf("%w: length %d matches no grammar", ErrRejected, len(s))
	}
	return Result{}, fmt.Errorf("%w: %q matches no grammar", ErrRejected, s)
}

// normalize uppercases and drops dashes, underscores and whitespace.
func normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(raw) {
		switch r {
		case '-', '_', ' ', '\t', '\n', '\r', '\v', '\f':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// correct lays s over the grammar, repairing only characters that are
// illegal for their slot. s must already have the grammar's length.
func (g grammar) correct(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s) + len(g.groups))
	pos := 0
	for i, gr := range g.groups {
		if i > 0 {
			b.WriteByte(' ')
		}
		for j := 0; j < gr.size; j++ {
			c, ok := fit(s[pos], gr.class)
			if !ok {
				return "", false
			}
			b.WriteByte(c)
			pos++
		}
	}
	return b.String(), true
}

func fit(c byte, cl class) (byte, bool) {
	switch cl {
	case digit:
		if isDigit(c) {
			return c, true
		}
		d, ok := toDigit[c]
		return d, ok
	case letter:
		if isLetter(c) {
			return c, true
		}
		l, ok := toLetter[c]
		return l, ok
	}
	return 0, false
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c >= 'A' && c <= 'Z' }
