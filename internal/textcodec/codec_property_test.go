//go:build property

package textcodec

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestCodecProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	encodings := gen.OneConstOf(UTF8, UTF8BOM, UTF16LE, UTF16BE)

	properties.Property("decode inverts encode", prop.ForAll(
		func(s string, enc Encoding) bool {
			b, err := Encode(s, enc)
			if err != nil {
				return false
			}
			got, err := Decode(b, enc)
			return err == nil && got == s
		},
		gen.UnicodeString(gen.UnicodeChar()),
		encodings,
	))

	properties.Property("encoded text is detected as its encoding", prop.ForAll(
		func(s string, enc Encoding) bool {
			b, err := Encode(s, enc)
			if err != nil {
				return false
			}
			return enc == UTF8 || Detect(b) == enc
		},
		gen.AlphaString(),
		encodings,
	))

	properties.TestingRun(t)
}
