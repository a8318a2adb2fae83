package project

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conneroisu/plctool/internal/errors"
	"github.com/conneroisu/plctool/internal/testutils"
	"github.com/conneroisu/plctool/internal/textcodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoLibsProject = "<plcProject>\n" +
	"    <libraries>\n" +
	"        <lib link=\"true\" name=\"pll1.pll\"><![CDATA[prev]]></lib>\n" +
	"        <lib link=\"true\" name=\"pll2.pll\"></lib>\n" +
	"    </libraries>\n" +
	"</plcProject>\n"

func runUpdate(t *testing.T, project, output string, opts Options) errors.Outcome {
	t.Helper()
	return Update(context.Background(), project, output, opts)
}

func TestDocument(t *testing.T) {
	doc := NewDocument("0123456789")
	require.NoError(t, doc.Replace(Edit{Start: 1, End: 3, Text: "ab"}))
	require.NoError(t, doc.Replace(Edit{Start: 5, End: 5, Text: "--"}))
	require.NoError(t, doc.Replace(Edit{Start: 8, End: 10, Text: ""}))

	assert.Equal(t, "0ab34--567", doc.String())
	assert.Equal(t, "0123456789", doc.Source())
	assert.Len(t, doc.Edits(), 3)

	assert.Error(t, doc.Replace(Edit{Start: 4, End: 6}), "out of order")
	assert.Error(t, doc.Replace(Edit{Start: 9, End: 11}), "out of range")
	assert.Equal(t, "0123456789", NewDocument("0123456789").String())
}

func TestScan(t *testing.T) {
	src := `<?xml version="1.0" encoding="UTF-16"?>
<plcProject>
  <lib name="outside.pll" link="true">x</lib>
  <libraries>
    <lib link="true" name="a.pll" fullXml="false">old</lib>
    <lib name="b.plclib"/>
    <lib link="true" name="sub\c.pll"></lib>
  </libraries>
</plcProject>
`
	refs, err := Scan(src, "p.ppjs")
	require.NoError(t, err)
	require.Len(t, refs, 3)

	a := refs[0]
	assert.Equal(t, "a.pll", a.Name)
	assert.True(t, a.Link)
	require.NotNil(t, a.FullXML)
	assert.False(t, *a.FullXML)
	assert.Equal(t, "old", src[a.Start:a.End])
	assert.Equal(t, 5, a.Line)

	b := refs[1]
	assert.False(t, b.Link)
	assert.Nil(t, b.FullXML)
	assert.True(t, b.SelfClosing)
	assert.Equal(t, b.Start, b.End)

	c := refs[2]
	assert.Equal(t, c.Start, c.End)
	assert.False(t, c.SelfClosing)
	assert.Equal(t, filepath.Join("dir", "sub", "c.pll"), c.Path("dir"))
}

func TestScanFatal(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no libraries", "<plcProject></plcProject>", "<libraries> not found"},
		{"nested lib", "<p><libraries><lib link=\"true\" name=\"a\"><lib></lib></lib></libraries></p>", "nested <lib>"},
		{"unclosed", "<foo>", "malformed XML"},
		{"mismatched", "<p><libraries></p>", "malformed XML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Scan(tt.src, "p.ppjs")
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeInvalidProject))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPayload(t *testing.T) {
	got, err := Payload("<?xml version=\"1.0\"?>\n<plcLibrary>\n\t<lib name=\"x\">\n\t\t<descr>d</descr>\n\t</lib>\n</plcLibrary>\n", "x.plclib")
	require.NoError(t, err)
	assert.Equal(t, "\n\t\t<descr>d</descr>\n\t", got)

	_, err = Payload("<lib><lib>forbidden nested</lib></lib>", "bad.plclib")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected nested <lib>")

	_, err = Payload("<plcLibrary></plcLibrary>", "empty.plclib")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "<lib> not found")
}

func TestUpdateSimple(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	testutils.WriteFile(t, dir, "pll1.pll", "abc", textcodec.UTF8)
	testutils.WriteFile(t, dir, "pll2.pll", "def", textcodec.UTF8BOM)
	prj := testutils.WriteFile(t, dir, "prj.ppjs", twoLibsProject, textcodec.UTF8BOM)
	out := filepath.Join(dir, "out", "prj.ppjs")

	outcome := runUpdate(t, prj, out, Options{})
	require.NoError(t, outcome.Err)
	assert.Empty(t, outcome.Issues)
	assert.Equal(t, errors.StatusSuccess, outcome.Status())

	want := "<plcProject>\n" +
		"    <libraries>\n" +
		"        <lib link=\"true\" name=\"pll1.pll\"><![CDATA[abc]]></lib>\n" +
		"        <lib link=\"true\" name=\"pll2.pll\"><![CDATA[def]]></lib>\n" +
		"    </libraries>\n" +
		"</plcProject>\n"
	text := testutils.ReadFile(t, out)
	assert.Equal(t, want, text.Content)
	assert.Equal(t, textcodec.UTF8BOM, text.Encoding)
	testutils.AssertFilePermissions(t, out, 0o644)
}

func TestUpdateUTF16Project(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	testutils.WriteFile(t, dir, "libs/motion.pll", "FUNCTION F : INT\n\t{ CODE:ST }\nF := 1;\nEND_FUNCTION\n", textcodec.UTF16LE)
	prj := testutils.WriteFile(t, dir, "machine.ppjs",
		"<?xml version=\"1.0\" encoding=\"UTF-16\"?>\n"+
			"<plcProject>\n <sources>\n  <libraries>\n"+
			"   <lib version=\"1.0\" name=\"libs\\motion.pll\" link=\"true\"><![CDATA[stale]]></lib>\n"+
			"  </libraries>\n </sources>\n</plcProject>\n", textcodec.UTF16LE)
	out := filepath.Join(dir, "machine-updated.ppjs")

	outcome := runUpdate(t, prj, out, Options{})
	require.NoError(t, outcome.Err)

	text := testutils.ReadFile(t, out)
	assert.Equal(t, textcodec.UTF16LE, text.Encoding)
	assert.Contains(t, text.Content, "link=\"true\"><![CDATA[FUNCTION F : INT\n\t{ CODE:ST }\nF := 1;\nEND_FUNCTION\n]]></lib>")
	assert.True(t, strings.HasPrefix(text.Content, "<?xml version=\"1.0\" encoding=\"UTF-16\"?>"))
}

func TestUpdatePlclibTarget(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	testutils.WriteFile(t, dir, "lib.plclib",
		"<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<plcLibrary schemaVersion=\"2.8\">\n\t<lib version=\"1\" name=\"lib\" fullXml=\"true\">\n\t\t<descr>d</descr>\n\t</lib>\n</plcLibrary>\n",
		textcodec.UTF8)
	prj := testutils.WriteFile(t, dir, "p.plcprj",
		"<plcProject>\n<libraries>\n"+
			"<lib link=\"true\" name=\"lib.plclib\"><old/></lib>\n"+
			"<lib link=\"true\" name=\"lib.plclib\" fullXml=\"false\"></lib>\n"+
			"</libraries>\n</plcProject>\n", textcodec.UTF8)
	out := filepath.Join(dir, "p-out.plcprj")

	outcome := runUpdate(t, prj, out, Options{})
	require.NoError(t, outcome.Err)

	text := testutils.ReadFile(t, out)
	assert.Contains(t, text.Content, "<lib link=\"true\" name=\"lib.plclib\">\n\t\t<descr>d</descr>\n\t</lib>\n")
	assert.Contains(t, text.Content, "fullXml=\"false\"><![CDATA[\n\t\t<descr>d</descr>\n\t]]></lib>\n")
	assert.Equal(t, textcodec.UTF8, text.Encoding)
}

func TestUpdateIssues(t *testing.T) {
	t.Run("no libraries", func(t *testing.T) {
		dir := testutils.CreateTempProject(t)
		src := "<plcProject>\n<libraries>\n</libraries>\n</plcProject>\n"
		prj := testutils.WriteFile(t, dir, "nolibs.ppjs", src, textcodec.UTF8)
		out := filepath.Join(dir, "out.ppjs")

		outcome := runUpdate(t, prj, out, Options{})
		require.NoError(t, outcome.Err)
		require.Len(t, outcome.Issues, 1)
		assert.Equal(t, "No libraries found", outcome.Issues[0].Message)
		assert.Equal(t, errors.StatusCompletedWithIssues, outcome.Status())
		assert.Equal(t, src, testutils.ReadFile(t, out).Content)
	})

	t.Run("missing library", func(t *testing.T) {
		dir := testutils.CreateTempProject(t)
		testutils.WriteFile(t, dir, "existing.pll", "content", textcodec.UTF8)
		prj := testutils.WriteFile(t, dir, "p.ppjs",
			"<plcProject>\n"+
				"    <libraries>\n"+
				"        <lib link=\"true\" name=\"existing.pll\"></lib>\n"+
				"        <lib link=\"true\" name=\"not-existing.pll\"><![CDATA[keep]]></lib>\n"+
				"    </libraries>\n"+
				"</plcProject>\n", textcodec.UTF8)
		out := filepath.Join(dir, "out.ppjs")

		outcome := runUpdate(t, prj, out, Options{})
		require.NoError(t, outcome.Err)
		require.Len(t, outcome.Issues, 1)
		assert.Contains(t, outcome.Issues[0].Message, "not-existing.pll")
		assert.Equal(t, 4, outcome.Issues[0].Line)

		content := testutils.ReadFile(t, out).Content
		assert.Contains(t, content, "name=\"existing.pll\"><![CDATA[content]]></lib>")
		assert.Contains(t, content, "name=\"not-existing.pll\"><![CDATA[keep]]></lib>")
	})

	t.Run("skipped references", func(t *testing.T) {
		dir := testutils.CreateTempProject(t)
		testutils.WriteFile(t, dir, "a.pll", "A", textcodec.UTF8)
		testutils.WriteFile(t, dir, "notes.txt", "N", textcodec.UTF8)
		prj := testutils.WriteFile(t, dir, "p.ppjs",
			"<p><libraries>"+
				"<lib name=\"a.pll\">x</lib>"+
				"<lib link=\"true\">y</lib>"+
				"<lib link=\"true\" name=\"a.pll\"/>"+
				"<lib link=\"true\" name=\"notes.txt\"></lib>"+
				"</libraries></p>", textcodec.UTF8)
		out := filepath.Join(dir, "out.ppjs")

		outcome := runUpdate(t, prj, out, Options{})
		require.NoError(t, outcome.Err)
		require.Len(t, outcome.Issues, 4)
		assert.Equal(t,
			"<p><libraries><lib name=\"a.pll\">x</lib><lib link=\"true\">y</lib><lib link=\"true\" name=\"a.pll\"/>"+
				"<lib link=\"true\" name=\"notes.txt\"><![CDATA[N]]></lib></libraries></p>",
			testutils.ReadFile(t, out).Content)
	})
}

func TestUpdateFatal(t *testing.T) {
	tests := []struct {
		name    string
		project string
		libs    map[string]string
		code    string
	}{
		{name: "empty project", project: "", code: errors.CodeEmptyInput},
		{name: "ill formed project", project: "<foo>", code: errors.CodeInvalidProject},
		{
			name:    "ill formed library",
			project: "<plcProject>\n<libraries>\n<lib link=\"true\" name=\"bad.plclib\"></lib>\n</libraries>\n</plcProject>\n",
			libs:    map[string]string{"bad.plclib": "<lib><lib>forbidden nested</lib></lib>"},
			code:    errors.CodeInvalidProject,
		},
		{
			name:    "undecodable library",
			project: "<plcProject>\n<libraries>\n<lib link=\"true\" name=\"bad.pll\"></lib>\n</libraries>\n</plcProject>\n",
			libs:    map[string]string{"bad.pll": "\xff\xfe\x00"},
			code:    errors.CodeEncoding,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutils.CreateTempProject(t)
			for name, content := range tt.libs {
				require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
			}
			prj := testutils.WriteFile(t, dir, "p.ppjs", tt.project, textcodec.UTF8)
			out := filepath.Join(dir, "out.ppjs")

			outcome := runUpdate(t, prj, out, Options{})
			require.Error(t, outcome.Err)
			assert.True(t, errors.HasCode(outcome.Err, tt.code), "got %v", outcome.Err)
			assert.Equal(t, errors.StatusFatal, outcome.Status())
			testutils.AssertNoFile(t, out)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			for _, e := range entries {
				assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover %s", e.Name())
			}
		})
	}
}

func TestUpdateOutputChecks(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	prj := testutils.WriteFile(t, dir, "p.ppjs", "<p><libraries></libraries></p>", textcodec.UTF8)

	outcome := runUpdate(t, prj, prj, Options{Force: true})
	assert.True(t, errors.HasCode(outcome.Err, errors.CodeOutputIsInput))

	outcome = runUpdate(t, prj, filepath.Join(dir, ".", "p.ppjs"), Options{})
	assert.True(t, errors.HasCode(outcome.Err, errors.CodeOutputIsInput))

	existing := testutils.WriteFile(t, dir, "existing.ppjs", "old", textcodec.UTF8)
	outcome = runUpdate(t, prj, existing, Options{})
	assert.True(t, errors.HasCode(outcome.Err, errors.CodeOutputExists))
	assert.Equal(t, "old", testutils.ReadFile(t, existing).Content)

	outcome = runUpdate(t, prj, existing, Options{Force: true})
	require.NoError(t, outcome.Err)
	assert.Equal(t, "<p><libraries></libraries></p>", testutils.ReadFile(t, existing).Content)

	outcome = runUpdate(t, prj, "", Options{})
	assert.True(t, errors.HasCode(outcome.Err, errors.CodeConfig))
}

func TestUpdateIsIdempotent(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	testutils.WriteFile(t, dir, "pll1.pll", "a ]]> b", textcodec.UTF8)
	testutils.WriteFile(t, dir, "pll2.pll", "def", textcodec.UTF8)
	prj := testutils.WriteFile(t, dir, "prj.ppjs", twoLibsProject, textcodec.UTF16BE)
	first := filepath.Join(dir, "first.ppjs")
	second := filepath.Join(dir, "second.ppjs")

	require.NoError(t, runUpdate(t, prj, first, Options{}).Err)
	require.NoError(t, runUpdate(t, first, second, Options{}).Err)

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, testutils.ReadFile(t, first).Content, "<![CDATA[a ]]]]><![CDATA[> b]]>")
}

func TestLinkedPaths(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	prj := testutils.WriteFile(t, dir, "prj.ppjs", twoLibsProject, textcodec.UTF8)

	paths, err := LinkedPaths(prj)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "pll1.pll"), filepath.Join(dir, "pll2.pll")}, paths)
}
