package convert

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conneroisu/plctool/internal/errors"
	"github.com/conneroisu/plctool/internal/plc"
	"github.com/conneroisu/plctool/internal/plclib"
	"github.com/conneroisu/plctool/internal/pll"
	"github.com/conneroisu/plctool/internal/testutils"
	"github.com/conneroisu/plctool/internal/textcodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const duplicatePLL = `	VAR_GLOBAL
	A : INT;
	A : BOOL;
	END_VAR
`

func run(inputs []string, output string, opts Options) []errors.Outcome {
	return Run(context.Background(), inputs, output, opts)
}

func TestConvertHeaderWritesBothFormats(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	in := testutils.WriteFile(t, dir, "machine.h", testutils.SampleHeader, textcodec.UTF8)
	out := filepath.Join(dir, "out")

	outcomes := run([]string{in}, out, Options{NoTimestamp: true})
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.Empty(t, outcomes[0].Issues)
	assert.Equal(t, []string{filepath.Join(out, "machine.pll"), filepath.Join(out, "machine.plclib")}, outcomes[0].Outputs)

	src := testutils.ReadFile(t, filepath.Join(out, "machine.pll")).Content
	lib, err := pll.Parse(src, pll.Options{})
	require.NoError(t, err)
	assert.Equal(t, "machine", lib.Name)
	assert.Equal(t, 1, lib.CountVariables(plc.SetVariables))
	assert.Contains(t, src, "Speed AT %MD500.10 : DINT;")
	assert.Contains(t, src, "MAX_SPEED : DINT := 3000;")

	xml := testutils.ReadFile(t, filepath.Join(out, "machine.plclib")).Content
	assert.Contains(t, xml, `<lib version="1.0.0" name="machine" fullXml="true">`)
	assert.Contains(t, xml, `<GlobalVars name="Header_Constants" id=`)
}

func TestConvertPLLToPLCLib(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	in := testutils.WriteFile(t, dir, "sample.pll", testutils.SamplePLL, textcodec.UTF8BOM)
	out := filepath.Join(dir, "out") + string(filepath.Separator)

	seed := uint64(42)
	opts := Options{
		NoTimestamp: true,
		Author:      "plctool",
		PLCLib:      plclib.Options{Indent: plclib.IndentSpaces(2), SchemaVersion: plclib.SchemaVersion{Major: 2, Minor: 9}, IDSeed: seed},
	}
	outcomes := run([]string{in}, out, opts)
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)

	text := testutils.ReadFile(t, filepath.Join(out, "sample.plclib"))
	assert.Equal(t, textcodec.UTF8, text.Encoding)
	assert.Contains(t, text.Content, `<plcLibrary schemaVersion="2.9">`)
	assert.Contains(t, text.Content, `      <folder name="sample" id="42">`)
	assert.Contains(t, text.Content, `<!-- author="plctool" -->`)
	testutils.AssertNoFile(t, filepath.Join(out, "sample.pll"))
}

func TestConvertSingleOutputFile(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	in := testutils.WriteFile(t, dir, "sample.pll", testutils.SamplePLL, textcodec.UTF16LE)
	out := filepath.Join(dir, "formatted", "renamed.pll")
	now := func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	outcomes := run([]string{in}, out, Options{Now: now, Sort: true})
	require.NoError(t, outcomes[0].Err)

	text := testutils.ReadFile(t, out)
	assert.Equal(t, textcodec.UTF16LE, text.Encoding, "pll output follows the input encoding")
	assert.Contains(t, text.Content, "\tdate: 2024-01-02 03:04:05\n")
	assert.Less(t, strings.Index(text.Content, "Label"), strings.Index(text.Content, "Speed"), "sorted by name")

	utf8 := textcodec.UTF8
	out2 := filepath.Join(dir, "formatted", "utf8.pll")
	outcomes = run([]string{in}, out2, Options{NoTimestamp: true, Encoding: &utf8})
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, textcodec.UTF8, testutils.ReadFile(t, out2).Encoding)
}

func TestConvertBatchFatals(t *testing.T) {
	t.Run("output in input directory", func(t *testing.T) {
		dir := testutils.CreateTempProject(t)
		in := testutils.WriteFile(t, dir, "a.pll", testutils.SamplePLL, textcodec.UTF8)

		outcomes := run([]string{in}, dir, Options{})
		require.Len(t, outcomes, 1)
		assert.True(t, errors.HasCode(outcomes[0].Err, errors.CodeOutputInInputDir))
		testutils.AssertNoFile(t, filepath.Join(dir, "a.plclib"))
	})

	t.Run("output links to input directory", func(t *testing.T) {
		dir := testutils.CreateTempProject(t)
		in := testutils.WriteFile(t, dir, "src/a.pll", testutils.SamplePLL, textcodec.UTF8)
		link := filepath.Join(dir, "out")
		if err := os.Symlink(filepath.Join(dir, "src"), link); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}

		outcomes := run([]string{in}, link, Options{})
		require.Len(t, outcomes, 1)
		assert.True(t, errors.HasCode(outcomes[0].Err, errors.CodeOutputInInputDir))
		testutils.AssertNoFile(t, filepath.Join(dir, "src", "a.plclib"))
	})

	t.Run("output file links to input", func(t *testing.T) {
		dir := testutils.CreateTempProject(t)
		in := testutils.WriteFile(t, dir, "a.pll", testutils.SamplePLL, textcodec.UTF8)
		link := filepath.Join(dir, "b.pll")
		if err := os.Symlink(in, link); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}

		outcomes := run([]string{in}, link, Options{Force: true})
		assert.True(t, errors.HasCode(outcomes[0].Err, errors.CodeOutputIsInput))
	})

	t.Run("name clash", func(t *testing.T) {
		dir := testutils.CreateTempProject(t)
		a := testutils.WriteFile(t, dir, "one/lib.pll", testutils.SamplePLL, textcodec.UTF8)
		b := testutils.WriteFile(t, dir, "two/lib.h", testutils.SampleHeader, textcodec.UTF8)

		outcomes := run([]string{a, b}, filepath.Join(dir, "out"), Options{})
		require.Len(t, outcomes, 2)
		for _, o := range outcomes {
			assert.True(t, errors.HasCode(o.Err, errors.CodeNameClash))
		}
		assert.Equal(t, errors.StatusFatal, errors.StatusOf(outcomes))
	})

	t.Run("many inputs into one file", func(t *testing.T) {
		dir := testutils.CreateTempProject(t)
		a := testutils.WriteFile(t, dir, "a.pll", testutils.SamplePLL, textcodec.UTF8)
		b := testutils.WriteFile(t, dir, "b.pll", testutils.SamplePLL, textcodec.UTF8)

		outcomes := run([]string{a, b}, filepath.Join(dir, "out", "all.plclib"), Options{})
		for _, o := range outcomes {
			assert.True(t, errors.HasCode(o.Err, errors.CodeConfig))
		}
	})

	t.Run("output is input", func(t *testing.T) {
		dir := testutils.CreateTempProject(t)
		in := testutils.WriteFile(t, dir, "a.pll", testutils.SamplePLL, textcodec.UTF8)

		outcomes := run([]string{in}, in, Options{Force: true})
		assert.True(t, errors.HasCode(outcomes[0].Err, errors.CodeOutputIsInput))
	})

	t.Run("target mismatch", func(t *testing.T) {
		dir := testutils.CreateTempProject(t)
		in := testutils.WriteFile(t, dir, "a.pll", testutils.SamplePLL, textcodec.UTF8)

		outcomes := run([]string{in}, filepath.Join(dir, "out", "a.pll"), Options{Target: TargetPLCLib})
		assert.True(t, errors.HasCode(outcomes[0].Err, errors.CodeConfig))
	})
}

func TestConvertUnitFatalsDoNotStopSiblings(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	dup := testutils.WriteFile(t, dir, "src/dup.pll", duplicatePLL, textcodec.UTF8)
	odd := testutils.WriteFile(t, dir, "src/notes.txt", "hello", textcodec.UTF8)
	good := testutils.WriteFile(t, dir, "src/good.pll", testutils.SamplePLL, textcodec.UTF8)
	out := filepath.Join(dir, "out")

	outcomes := run([]string{dup, odd, good}, out, Options{NoTimestamp: true})
	require.Len(t, outcomes, 3)

	assert.True(t, errors.HasCode(outcomes[0].Err, errors.CodeDuplicateSymbol))
	testutils.AssertNoFile(t, filepath.Join(out, "dup.plclib"))

	assert.True(t, errors.HasCode(outcomes[1].Err, errors.CodeUnsupportedInput))

	require.NoError(t, outcomes[2].Err)
	assert.FileExists(t, filepath.Join(out, "good.plclib"))
	assert.Equal(t, errors.StatusFatal, errors.StatusOf(outcomes))
}

func TestConvertFailedWriteLeavesNoOutputs(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	in := testutils.WriteFile(t, dir, "src/regs.h", testutils.SampleHeader, textcodec.UTF8)
	out := filepath.Join(dir, "out")
	// A directory where the .plclib belongs makes the second write fail.
	testutils.WriteFile(t, out, "regs.plclib/keep.txt", "x", textcodec.UTF8)

	outcomes := run([]string{in}, out, Options{Force: true, NoTimestamp: true})
	require.Len(t, outcomes, 1)
	unit := outcomes[0]
	require.Error(t, unit.Err)
	assert.True(t, errors.HasCode(unit.Err, errors.CodeIO), unit.Err.Error())
	assert.Empty(t, unit.Outputs)
	testutils.AssertNoFile(t, filepath.Join(out, "regs.pll"))
}

func TestConvertExistingOutput(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	in := testutils.WriteFile(t, dir, "src/a.pll", testutils.SamplePLL, textcodec.UTF8)
	out := filepath.Join(dir, "out")
	testutils.WriteFile(t, out, "a.plclib", "old", textcodec.UTF8)
	testutils.WriteFile(t, out, "stale.pll", "old", textcodec.UTF8)
	testutils.WriteFile(t, out, "old.log", "old", textcodec.UTF8)
	testutils.WriteFile(t, out, "readme.txt", "keep", textcodec.UTF8)
	testutils.WriteFile(t, out, ".hidden", "keep", textcodec.UTF8)

	outcomes := run([]string{in}, out, Options{})
	require.Len(t, outcomes, 1)
	assert.True(t, errors.HasCode(outcomes[0].Err, errors.CodeOutputExists))
	assert.Equal(t, "old", testutils.ReadFile(t, filepath.Join(out, "a.plclib")).Content)

	outcomes = run([]string{in}, out, Options{Force: true, NoTimestamp: true})
	require.Len(t, outcomes, 2)
	assert.Equal(t, out, outcomes[0].Unit)
	require.Len(t, outcomes[0].Issues, 1)
	assert.Contains(t, outcomes[0].Issues[0].Message, "readme.txt")
	require.NoError(t, outcomes[1].Err)

	testutils.AssertNoFile(t, filepath.Join(out, "stale.pll"))
	testutils.AssertNoFile(t, filepath.Join(out, "old.log"))
	assert.FileExists(t, filepath.Join(out, "readme.txt"))
	assert.FileExists(t, filepath.Join(out, ".hidden"))
	assert.Contains(t, testutils.ReadFile(t, filepath.Join(out, "a.plclib")).Content, "<plcLibrary")
}

func TestConvertIssues(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	in := testutils.WriteFile(t, dir, "src/empty.h", "#define NAME \"x\"\n", textcodec.UTF8)
	out := filepath.Join(dir, "out")

	outcomes := run([]string{in}, out, Options{NoTimestamp: true, IssueLog: true})
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, errors.StatusCompletedWithIssues, outcomes[0].Status())

	messages := make([]string, 0, len(outcomes[0].Issues))
	for _, issue := range outcomes[0].Issues {
		messages = append(messages, issue.Message)
	}
	assert.Contains(t, messages, "No exportable defines found in "+in)
	assert.Contains(t, messages, "empty.h generated an empty library")

	logPath := filepath.Join(out, "empty.h.log")
	assert.Contains(t, outcomes[0].Outputs, logPath)
	log := testutils.ReadFile(t, logPath).Content
	assert.Contains(t, log, "[Parse log of "+in+"]\n")
	assert.Contains(t, log, "[!] ")

	outcomes = run([]string{in}, filepath.Join(dir, "strict"), Options{Strict: true})
	assert.True(t, errors.HasCode(outcomes[0].Err, errors.CodeParse))
}

func TestConvertCancelled(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	in := testutils.WriteFile(t, dir, "src/a.pll", testutils.SamplePLL, textcodec.UTF8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := Run(ctx, []string{in}, filepath.Join(dir, "out"), Options{})
	require.Error(t, outcomes[0].Err)
	testutils.AssertNoFile(t, filepath.Join(dir, "out", "a.plclib"))
}

func TestConvertIsFast(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	var inputs []string
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		inputs = append(inputs, testutils.WriteFile(t, dir, "src/"+name+".pll", testutils.SamplePLL, textcodec.UTF8))
	}

	start := time.Now()
	outcomes := run(inputs, filepath.Join(dir, "out"), Options{NoTimestamp: true})
	elapsed := time.Since(start)

	assert.Equal(t, errors.StatusSuccess, errors.StatusOf(outcomes))
	assert.Less(t, elapsed, 2*time.Second)
}

func TestParseTarget(t *testing.T) {
	for in, want := range map[string]Target{"": TargetAuto, "plclib": TargetPLCLib, ".PLL": TargetPLL} {
		got, err := ParseTarget(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseTarget("xml")
	assert.Error(t, err)
}

func TestRunWithoutInputs(t *testing.T) {
	assert.Empty(t, run(nil, t.TempDir(), Options{}))
}
