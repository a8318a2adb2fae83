package project

import (
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/conneroisu/plctool/internal/errors"
)

const (
	librariesTag = "libraries"
	libraryTag   = "lib"
)

// LibraryRef is one <lib> element of the <libraries> section.
type LibraryRef struct {
	// Name is the declared path, relative to the project directory.
	Name string
	Link bool
	// FullXML is nil when the attribute is absent.
	FullXML *bool
	Line    int
	// Start and End delimit the element content.
	Start       int
	End         int
	SelfClosing bool
}

// Path resolves the reference against the project directory. Windows
// separators in the declared name are accepted.
func (r LibraryRef) Path(projectDir string) string {
	name := filepath.FromSlash(strings.ReplaceAll(r.Name, `\`, "/"))
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(projectDir, name)
}

// newDecoder reads already decoded text: the physical encoding has been
// handled, so any declared encoding is ignored.
func newDecoder(content string) *xml.Decoder {
	dec := xml.NewDecoder(strings.NewReader(content))
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	return dec
}

func malformed(source string, dec *xml.Decoder, err error) error {
	line, _ := dec.InputPos()
	return errors.NewParseError(errors.CodeInvalidProject, fmt.Sprintf("malformed XML: %v", err)).
		WithLocation(source, line, 0)
}

func attr(start xml.StartElement, name string) (string, bool) {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Scan finds the <lib> elements of the <libraries> section of a project.
// The whole document must be well formed.
func Scan(content, source string) ([]LibraryRef, error) {
	dec := newDecoder(content)

	var (
		refs        []LibraryRef
		cur         *LibraryRef
		found       bool
		inLibraries bool
	)
	for {
		before := int(dec.InputOffset())
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, malformed(source, dec, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == librariesTag && !found:
				found, inLibraries = true, true
			case t.Name.Local == libraryTag && inLibraries:
				line, _ := dec.InputPos()
				if cur != nil {
					return nil, errors.NewParseError(errors.CodeInvalidProject, "Unexpected nested <lib>").
						WithLocation(source, line, 0)
				}
				start := int(dec.InputOffset())
				ref := LibraryRef{Line: line, Start: start, SelfClosing: strings.HasSuffix(content[:start], "/>")}
				ref.Name, _ = attr(t, "name")
				link, _ := attr(t, "link")
				ref.Link = link == "true"
				if v, ok := attr(t, "fullXml"); ok {
					full := strings.EqualFold(v, "true")
					ref.FullXML = &full
				}
				cur = &ref
			}

		case xml.EndElement:
			switch {
			case t.Name.Local == libraryTag && cur != nil:
				cur.End = before
				if cur.SelfClosing {
					cur.End = cur.Start
				}
				refs = append(refs, *cur)
				cur = nil
			case t.Name.Local == librariesTag && inLibraries && cur == nil:
				inLibraries = false
			}
		}
	}

	if !found {
		return nil, errors.NewParseError(errors.CodeInvalidProject, "Invalid project (<libraries> not found)").
			WithLocation(source, 1, 0)
	}
	return refs, nil
}

// IsWrapped reports a library descriptor document, whose payload is the
// content of its <lib> element.
func IsWrapped(path, content string) bool {
	if strings.EqualFold(filepath.Ext(path), ".plclib") {
		return true
	}
	head := content
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(head, "<plcLibrary")
}

// Payload returns the content of the first <lib> element of a library
// descriptor.
func Payload(content, source string) (string, error) {
	dec := newDecoder(content)

	start := -1
	startLine := 1
	for {
		before := int(dec.InputOffset())
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", malformed(source, dec, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != libraryTag {
				continue
			}
			if start >= 0 {
				line, _ := dec.InputPos()
				return "", errors.NewParseError(errors.CodeInvalidProject, "Invalid plclib (unexpected nested <lib>)").
					WithLocation(source, line, 0)
			}
			start = int(dec.InputOffset())
			startLine, _ = dec.InputPos()
			if strings.HasSuffix(content[:start], "/>") {
				return "", nil
			}
		case xml.EndElement:
			if t.Name.Local == libraryTag && start >= 0 {
				return content[start:before], nil
			}
		}
	}

	if start < 0 {
		return "", errors.NewParseError(errors.CodeInvalidProject, "Invalid plclib (<lib> not found)").
			WithLocation(source, 1, 0)
	}
	return "", errors.NewParseError(errors.CodeInvalidProject, "Invalid plclib (unclosed <lib>)").
		WithLocation(source, startLine, 0)
}
