// Package lexer provides the byte cursor shared by the line-oriented
// parsers. Input is decoded text; identifiers and keywords are ASCII.
// Both "\n" and "\r\n" end a line.
package lexer

import (
	"strconv"
	"strings"
)

// Lexer walks a source string, tracking the current line.
type Lexer struct {
	src  string
	pos  int
	line int
}

// Mark is a saved cursor position.
type Mark struct {
	pos  int
	line int
}

// New returns a lexer positioned at the first byte of src.
func New(src string) *Lexer {
	return &Lexer{src: src, line: 1}
}

// Pos returns the byte offset of the cursor.
func (l *Lexer) Pos() int { return l.pos }

// Line returns the 1-based line of the cursor.
func (l *Lexer) Line() int { return l.line }

// EOF reports whether the input is exhausted.
func (l *Lexer) EOF() bool { return l.pos >= len(l.src) }

// Peek returns the current byte, or 0 at end of input.
func (l *Lexer) Peek() byte {
	if l.EOF() {
		return 0
	}
	return l.src[l.pos]
}

// Save records the cursor.
func (l *Lexer) Save() Mark { return Mark{l.pos, l.line} }

// Restore moves the cursor back to m.
func (l *Lexer) Restore(m Mark) { l.pos, l.line = m.pos, m.line }

// Slice returns the source between a saved mark and the cursor.
func (l *Lexer) Slice(from Mark) string { return l.src[from.pos:l.pos] }

// Between returns src[from:to].
func (l *Lexer) Between(from, to int) string { return l.src[from:to] }

// IsBlank reports a space, tab or carriage return not followed by a newline
// terminator handled elsewhere.
func IsBlank(c byte) bool { return c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v' }

// IsIdentStart reports a byte that may start an identifier.
func IsIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// IsIdentChar reports a byte that may continue an identifier.
func IsIdentChar(c byte) bool {
	return IsIdentStart(c) || (c >= '0' && c <= '9')
}

// SkipBlanks skips spaces and tabs on the current line.
func (l *Lexer) SkipBlanks() {
	for !l.EOF() && IsBlank(l.src[l.pos]) {
		if l.src[l.pos] == '\r' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '\n' {
			return
		}
		l.pos++
	}
}

// AtLineEnd reports a newline (or end of input) after optional blanks,
// without consuming anything.
func (l *Lexer) AtLineEnd() bool {
	m := l.Save()
	defer l.Restore(m)
	return l.EatLineEnd()
}

// EatLineEnd consumes optional blanks and a line terminator. At end of input
// it succeeds without consuming a terminator.
func (l *Lexer) EatLineEnd() bool {
	m := l.Save()
	l.SkipBlanks()
	switch {
	case l.EOF():
		return true
	case strings.HasPrefix(l.src[l.pos:], "\r\n"):
		l.pos += 2
	case l.src[l.pos] == '\n':
		l.pos++
	default:
		l.Restore(m)
		return false
	}
	l.line++
	return true
}

// SkipLine moves past the next line terminator.
func (l *Lexer) SkipLine() {
	l.RestOfLine()
	l.EatLineEnd()
}

// RestOfLine returns the text up to the line terminator, trimmed of
// trailing blanks, and leaves the cursor on the terminator.
func (l *Lexer) RestOfLine() string {
	start := l.pos
	for !l.EOF() && l.src[l.pos] != '\n' {
		l.pos++
	}
	end := l.pos
	if end > start && l.src[end-1] == '\r' {
		l.pos--
		end--
	}
	return strings.TrimRight(l.src[start:end], " \t\r")
}

// PeekRestOfLine returns RestOfLine without moving.
func (l *Lexer) PeekRestOfLine() string {
	m := l.Save()
	defer l.Restore(m)
	return l.RestOfLine()
}

// Eat consumes c if it is the current byte.
func (l *Lexer) Eat(c byte) bool {
	if l.Peek() == c && !l.EOF() {
		l.pos++
		return true
	}
	return false
}

// EatString consumes s if the input continues with it.
func (l *Lexer) EatString(s string) bool {
	if strings.HasPrefix(l.src[l.pos:], s) {
		l.advance(len(s))
		return true
	}
	return false
}

// HasPrefix reports whether the input continues with s.
func (l *Lexer) HasPrefix(s string) bool {
	return strings.HasPrefix(l.src[l.pos:], s)
}

// PeekKeyword reports whether the input continues with kw as a whole word.
func (l *Lexer) PeekKeyword(kw string) bool {
	if !strings.HasPrefix(l.src[l.pos:], kw) {
		return false
	}
	next := l.pos + len(kw)
	return next >= len(l.src) || !IsIdentChar(l.src[next])
}

// EatKeyword consumes kw if it is a whole word at the cursor.
func (l *Lexer) EatKeyword(kw string) bool {
	if l.PeekKeyword(kw) {
		l.pos += len(kw)
		return true
	}
	return false
}

// Identifier consumes and returns an identifier, or "" when none starts at
// the cursor.
func (l *Lexer) Identifier() string {
	if l.EOF() || !IsIdentStart(l.src[l.pos]) {
		return ""
	}
	start := l.pos
	for !l.EOF() && IsIdentChar(l.src[l.pos]) {
		l.pos++
	}
	return l.src[start:l.pos]
}

// Token consumes a run of non-blank bytes, stopping before a "//" comment.
func (l *Lexer) Token() string {
	start := l.pos
	for !l.EOF() {
		c := l.src[l.pos]
		if IsBlank(c) || c == '\n' || strings.HasPrefix(l.src[l.pos:], "//") {
			break
		}
		l.pos++
	}
	return l.src[start:l.pos]
}

// Integer consumes an optionally signed decimal integer.
func (l *Lexer) Integer() (int64, bool) {
	m := l.Save()
	start := l.pos
	if l.Peek() == '-' || l.Peek() == '+' {
		l.pos++
	}
	digits := l.pos
	for !l.EOF() && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
		l.pos++
	}
	if l.pos == digits {
		l.Restore(m)
		return 0, false
	}
	n, err := strconv.ParseInt(l.src[start:l.pos], 10, 64)
	if err != nil {
		l.Restore(m)
		return 0, false
	}
	return n, true
}

// Until consumes input up to (not including) the first byte in stops on the
// current line and returns it. found is false when the line ended first.
func (l *Lexer) Until(stops string) (text string, found bool) {
	start := l.pos
	for !l.EOF() {
		c := l.src[l.pos]
		if c == '\n' {
			break
		}
		if strings.IndexByte(stops, c) >= 0 {
			return l.src[start:l.pos], true
		}
		l.pos++
	}
	return l.src[start:l.pos], false
}

// SkipPast consumes input through the first occurrence of s, across lines.
// It reports false, leaving the cursor at end of input, when s is missing.
func (l *Lexer) SkipPast(s string) bool {
	i := strings.Index(l.src[l.pos:], s)
	if i < 0 {
		l.advance(len(l.src) - l.pos)
		return false
	}
	l.advance(i + len(s))
	return true
}

// SkipComment consumes a "(* ... *)" comment starting at the cursor.
// It reports whether a comment was present and whether it was closed.
func (l *Lexer) SkipComment() (present, closed bool) {
	if !l.HasPrefix("(*") {
		return false, false
	}
	l.pos += 2
	return true, l.SkipPast("*)")
}

func (l *Lexer) advance(n int) {
	l.line += strings.Count(l.src[l.pos:l.pos+n], "\n")
	l.pos += n
}

// Advance moves the cursor n bytes forward, counting lines.
func (l *Lexer) Advance(n int) {
	if l.pos+n > len(l.src) {
		n = len(l.src) - l.pos
	}
	l.advance(n)
}

// Rest returns the unconsumed input.
func (l *Lexer) Rest() string { return l.src[l.pos:] }
