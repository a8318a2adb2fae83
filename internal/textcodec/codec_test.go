package textcodec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/conneroisu/plctool/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  Encoding
	}{
		{"empty", nil, UTF8},
		{"plain ascii", []byte("<xml/>"), UTF8},
		{"utf-8 bom", []byte{0xEF, 0xBB, 0xBF, 'a'}, UTF8BOM},
		{"utf-16 le", []byte{0xFF, 0xFE, 'a', 0}, UTF16LE},
		{"utf-16 be", []byte{0xFE, 0xFF, 0, 'a'}, UTF16BE},
		{"truncated bom", []byte{0xEF, 0xBB}, UTF8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.input))
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	text := "<lib name=\"défvar\">\r\n\tπ := 3.14; 🙂\n</lib>"

	for _, enc := range []Encoding{UTF8, UTF8BOM, UTF16LE, UTF16BE} {
		t.Run(enc.String(), func(t *testing.T) {
			b, err := Encode(text, enc)
			require.NoError(t, err)
			assert.Equal(t, enc, Detect(b), "encoded bytes should carry a detectable mark")

			got, err := Decode(b, enc)
			require.NoError(t, err)
			assert.Equal(t, text, got)

			decoded, err := DecodeBytes(b)
			require.NoError(t, err)
			assert.Equal(t, enc, decoded.Encoding)
			assert.Equal(t, text, decoded.Content)
		})
	}
}

func TestEncodeUTF16Layout(t *testing.T) {
	b, err := Encode("A", UTF16LE)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFE, 'A', 0}, b)

	b, err = Encode("A", UTF16BE)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFE, 0xFF, 0, 'A'}, b)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		enc   Encoding
	}{
		{"invalid utf-8", []byte{'a', 0xC3, 0x28}, UTF8},
		{"invalid utf-8 after bom", []byte{0xEF, 0xBB, 0xBF, 0xFF}, UTF8BOM},
		{"odd utf-16 length", []byte{0xFF, 0xFE, 'a', 0, 'b'}, UTF16LE},
		{"unpaired high surrogate", []byte{0xFF, 0xFE, 0x3D, 0xD8, 'a', 0}, UTF16LE},
		{"lone low surrogate", []byte{0xFE, 0xFF, 0xDC, 0x00}, UTF16BE},
		{"truncated pair", []byte{0xFF, 0xFE, 0x3D, 0xD8}, UTF16LE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input, tt.enc)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeEncoding))
		})
	}
}

func TestParseEncoding(t *testing.T) {
	tests := map[string]Encoding{
		"utf-8":     UTF8,
		"UTF-8-BOM": UTF8BOM,
		"utf-8-sig": UTF8BOM,
		"utf-16":    UTF16LE,
		"utf-16be":  UTF16BE,
	}
	for name, want := range tests {
		got, err := ParseEncoding(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseEncoding("latin1")
	assert.Error(t, err)
}

func TestReadWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.ppjs")

	require.NoError(t, WriteFile(path, "<plcProject/>\n", UTF16LE))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFE}, raw[:2])

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, UTF16LE, got.Encoding)
	assert.Equal(t, "<plcProject/>\n", got.Content)

	_, err = ReadFile(filepath.Join(dir, "missing.ppjs"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeIO))
}

func TestWriteFileReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.pll")

	require.NoError(t, WriteFile(path, "first", UTF8))
	require.NoError(t, WriteFile(path, "second", UTF8BOM))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Content)
	assert.Equal(t, UTF8BOM, got.Encoding)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	err = WriteFile(filepath.Join(dir, "bad.pll"), "\xff", UTF8)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeEncoding))
	_, statErr := os.Stat(filepath.Join(dir, "bad.pll"))
	assert.True(t, os.IsNotExist(statErr))
}
