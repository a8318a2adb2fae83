// Package textcodec detects, decodes and re-encodes the text encodings found
// in PLC engineering files: UTF-8 with or without a byte-order mark and
// UTF-16 in either byte order.
//
// Decoded text is always a Go (UTF-8) string without the byte-order mark.
// Encoding the decoded text with the detected Encoding reproduces the
// original bytes exactly.
package textcodec

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/conneroisu/plctool/internal/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding is the physical encoding of a text file.
type Encoding int

const (
	UTF8 Encoding = iota
	UTF8BOM
	UTF16LE
	UTF16BE
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// String returns the canonical name of the encoding.
func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "utf-8"
	case UTF8BOM:
		return "utf-8-bom"
	case UTF16LE:
		return "utf-16le"
	case UTF16BE:
		return "utf-16be"
	default:
		return "unknown"
	}
}

// MarshalText lets reports print the encoding by name.
func (e Encoding) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// BOM returns the byte-order mark written in front of encoded text.
func (e Encoding) BOM() []byte {
	switch e {
	case UTF8BOM:
		return bomUTF8
	case UTF16LE:
		return bomUTF16LE
	case UTF16BE:
		return bomUTF16BE
	default:
		return nil
	}
}

// ParseEncoding accepts the names used on the command line and in config.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf-8", "utf8":
		return UTF8, nil
	case "utf-8-bom", "utf-8-sig", "utf8bom":
		return UTF8BOM, nil
	case "utf-16", "utf-16le", "utf16", "utf16le":
		return UTF16LE, nil
	case "utf-16be", "utf16be":
		return UTF16BE, nil
	default:
		return UTF8, errors.NewConfigError(errors.CodeConfig, fmt.Sprintf("unknown encoding %q", name))
	}
}

// Detect inspects the byte-order mark; without one the bytes are assumed to
// be UTF-8.
func Detect(b []byte) Encoding {
	switch {
	case bytes.HasPrefix(b, bomUTF8):
		return UTF8BOM
	case bytes.HasPrefix(b, bomUTF16LE):
		return UTF16LE
	case bytes.HasPrefix(b, bomUTF16BE):
		return UTF16BE
	default:
		return UTF8
	}
}

func utf16Of(e Encoding) encoding.Encoding {
	if e == UTF16BE {
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}
	return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
}

// Decode converts b, which must be in encoding e, to a string. A leading
// byte-order mark matching e is dropped. Malformed input is an error.
func Decode(b []byte, e Encoding) (string, error) {
	b = bytes.TrimPrefix(b, e.BOM())

	switch e {
	case UTF8, UTF8BOM:
		if !utf8.Valid(b) {
			return "", errors.NewEncodingError(
				fmt.Sprintf("invalid UTF-8 sequence at byte %d", firstInvalidUTF8(b)), nil)
		}
		return string(b), nil

	case UTF16LE, UTF16BE:
		if err := validateUTF16(b, e == UTF16BE); err != nil {
			return "", err
		}
		out, _, err := transform.Bytes(utf16Of(e).NewDecoder(), b)
		if err != nil {
			return "", errors.NewEncodingError("cannot decode "+e.String(), err)
		}
		return string(out), nil

	default:
		return "", errors.NewEncodingError(fmt.Sprintf("unsupported encoding %d", int(e)), nil)
	}
}

// Encode converts s to encoding e, byte-order mark included.
func Encode(s string, e Encoding) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, errors.NewEncodingError("text to encode is not valid UTF-8", nil)
	}

	switch e {
	case UTF8:
		return []byte(s), nil

	case UTF8BOM:
		out := make([]byte, 0, len(bomUTF8)+len(s))
		out = append(out, bomUTF8...)
		return append(out, s...), nil

	case UTF16LE, UTF16BE:
		body, _, err := transform.Bytes(utf16Of(e).NewEncoder(), []byte(s))
		if err != nil {
			return nil, errors.NewEncodingError("cannot encode "+e.String(), err)
		}
		return append(append([]byte{}, e.BOM()...), body...), nil

	default:
		return nil, errors.NewEncodingError(fmt.Sprintf("unsupported encoding %d", int(e)), nil)
	}
}

// Text is a decoded file together with the encoding it was stored in.
type Text struct {
	Content  string
	Encoding Encoding
}

// DecodeBytes detects the encoding of b and decodes it.
func DecodeBytes(b []byte) (Text, error) {
	enc := Detect(b)
	s, err := Decode(b, enc)
	if err != nil {
		return Text{}, err
	}
	return Text{Content: s, Encoding: enc}, nil
}

// ReadFile reads and decodes path.
func ReadFile(path string) (Text, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Text{}, errors.NewIOError(errors.CodeIO, "cannot read file", err).WithLocation(path, 0, 0)
	}
	t, err := DecodeBytes(b)
	if err != nil {
		return Text{}, errors.EnhanceError(err, "textcodec", path, 0)
	}
	return t, nil
}

// WriteFile encodes content and writes it to path through a temporary file
// in the same directory, so a failure leaves nothing behind. Missing parent
// directories are created.
func WriteFile(path, content string, e Encoding) error {
	b, err := Encode(content, e)
	if err != nil {
		return errors.EnhanceError(err, "textcodec", path, 0)
	}
	return writeAtomic(path, b)
}

func writeAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewIOError(errors.CodeIO, "cannot create output directory", err).WithLocation(dir, 0, 0)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.NewIOError(errors.CodeIO, "cannot create file", err).WithLocation(path, 0, 0)
	}
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		return errors.NewIOError(errors.CodeIO, "cannot write file", err).WithLocation(path, 0, 0)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewIOError(errors.CodeIO, "cannot write file", err).WithLocation(path, 0, 0)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.NewIOError(errors.CodeIO, "cannot write file", err).WithLocation(path, 0, 0)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.NewIOError(errors.CodeIO, "cannot replace file", err).WithLocation(path, 0, 0)
	}
	tmp = nil
	return nil
}

func firstInvalidUTF8(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(b)
}

// validateUTF16 rejects odd lengths and unpaired surrogates, which the
// x/text decoder would silently replace with U+FFFD.
func validateUTF16(b []byte, bigEndian bool) error {
	if len(b)%2 != 0 {
		return errors.NewEncodingError(fmt.Sprintf("odd UTF-16 byte count %d", len(b)), nil)
	}

	unit := func(i int) uint16 {
		if bigEndian {
			return uint16(b[i])<<8 | uint16(b[i+1])
		}
		return uint16(b[i+1])<<8 | uint16(b[i])
	}

	for i := 0; i < len(b); i += 2 {
		u := unit(i)
		switch {
		case u >= 0xD800 && u <= 0xDBFF:
			if i+2 >= len(b) {
				return errors.NewEncodingError(fmt.Sprintf("truncated UTF-16 surrogate pair at byte %d", i), nil)
			}
			if next := unit(i + 2); next < 0xDC00 || next > 0xDFFF {
				return errors.NewEncodingError(fmt.Sprintf("unpaired UTF-16 high surrogate at byte %d", i), nil)
			}
			i += 2
		case u >= 0xDC00 && u <= 0xDFFF:
			return errors.NewEncodingError(fmt.Sprintf("unpaired UTF-16 low surrogate at byte %d", i), nil)
		}
	}
	return nil
}
