// Package project re-embeds the current content of linked library files
// into the <lib> elements of a PLC project document (.ppjs or .plcprj).
package project

import (
	"fmt"
	"strings"

	"github.com/conneroisu/plctool/internal/errors"
)

// Edit replaces the bytes [Start, End) of a document with Text.
type Edit struct {
	Start int
	End   int
	Text  string
}

// Document is an immutable source text plus an ordered list of
// non-overlapping edits.
type Document struct {
	src   string
	edits []Edit
}

// NewDocument wraps src.
func NewDocument(src string) *Document {
	return &Document{src: src}
}

// Source returns the unedited text.
func (d *Document) Source() string { return d.src }

// Edits returns a copy of the recorded edits.
func (d *Document) Edits() []Edit {
	return append([]Edit(nil), d.edits...)
}

// Replace records an edit. Edits must be added in source order.
func (d *Document) Replace(e Edit) error {
	if e.Start < 0 || e.End < e.Start || e.End > len(d.src) {
		return errors.NewInternalError(errors.CodeInvalidProject,
			fmt.Sprintf("edit [%d,%d) outside document of %d bytes", e.Start, e.End, len(d.src)), nil)
	}
	if n := len(d.edits); n > 0 && e.Start < d.edits[n-1].End {
		return errors.NewInternalError(errors.CodeInvalidProject,
			fmt.Sprintf("edit [%d,%d) overlaps or precedes [%d,%d)", e.Start, e.End, d.edits[n-1].Start, d.edits[n-1].End), nil)
	}
	d.edits = append(d.edits, e)
	return nil
}

// String interleaves the untouched source segments with the replacements.
func (d *Document) String() string {
	if len(d.edits) == 0 {
		return d.src
	}
	var b strings.Builder
	b.Grow(len(d.src))
	pos := 0
	for _, e := range d.edits {
		b.WriteString(d.src[pos:e.Start])
		b.WriteString(e.Text)
		pos = e.End
	}
	b.WriteString(d.src[pos:])
	return b.String()
}
