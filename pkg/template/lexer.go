package template

import "strings"

// The lexer splits template source into alternating plain and code segments.
// Segment 0 is always plain text (possibly empty) and so is the last one, so
// a split always has an odd length.

// Delimiters is the pair of markers surrounding a code region.
type Delimiters struct {
	Open  string
	Close string
}

// DefaultDelimiters are the markers used when none are configured.
var DefaultDelimiters = Delimiters{Open: "{{", Close: "}}"}

func (d Delimiters) valid() bool {
	return d.Open != "" && d.Close != ""
}

type lexer struct {
	src   string
	i     int
	n     int
	delim Delimiters
}

func newLexer(src string, d Delimiters) *lexer {
	return &lexer{src: src, n: len(src), delim: d}
}

// openAt reports whether an open delimiter starts at i. A delimiter directly
// preceded by its own first character does not count, so "{{{" opens at the
// first brace only.
func (l *lexer) openAt(i int) bool {
	if !strings.HasPrefix(l.src[i:], l.delim.Open) {
		return false
	}
	return i == 0 || l.src[i-1] != l.delim.Open[0]
}

// closeAt reports whether a close delimiter starts at i and is not directly
// followed by its own last character.
func (l *lexer) closeAt(i int) bool {
	if !strings.HasPrefix(l.src[i:], l.delim.Close) {
		return false
	}
	end := i + len(l.delim.Close)
	return end == l.n || l.src[end] != l.delim.Close[len(l.delim.Close)-1]
}

// scanClose returns the offset just past the first valid close delimiter at or
// after i, or -1 when the tag is never terminated.
func (l *lexer) scanClose(i int) int {
	for ; i < l.n; i++ {
		if l.closeAt(i) {
			return i + len(l.delim.Close)
		}
	}
	return -1
}

func (l *lexer) split() []string {
	var out []string
	plainStart := 0
	for l.i < l.n {
		if !l.openAt(l.i) {
			l.i++
			continue
		}
		end := l.scanClose(l.i + len(l.delim.Open))
		if end < 0 {
			// unterminated: everything left is plain text
			break
		}
		out = append(out, l.src[plainStart:l.i], l.src[l.i:end])
		l.i = end
		plainStart = end
	}
	return append(out, l.src[plainStart:])
}

// SplitTags normalizes tabs to four spaces and splits text into alternating
// plain and code segments. Code segments keep their delimiters.
func SplitTags(text string, d Delimiters) []string {
	if !d.valid() {
		d = DefaultDelimiters
	}
	text = strings.ReplaceAll(text, "\t", "    ")
	return newLexer(text, d).split()
}
