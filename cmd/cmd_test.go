package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/conneroisu/plctool/internal/config"
	"github.com/conneroisu/plctool/internal/errors"
	"github.com/conneroisu/plctool/internal/testutils"
	"github.com/conneroisu/plctool/internal/textcodec"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const linkedProject = `<plcProject>
	<libraries>
		<lib link="true" name="libs/motion.pll"></lib>
	</libraries>
</plcProject>
`

// execute runs a fresh command tree and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func exitStatus(t *testing.T, err error) errors.Status {
	t.Helper()
	if err == nil {
		return errors.StatusSuccess
	}
	var exit *errors.ExitError
	require.True(t, stderrors.As(err, &exit), "unexpected error: %v", err)
	return exit.Status
}

func TestKeyValues(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr string
	}{
		{name: "flags and values", args: []string{"sort,plclib-indent:2"}, want: "plclib-indent:2,sort"},
		{name: "repeated flag", args: []string{"strict", "no-timestamp", "plclib-schemaver:3.0"}, want: "no-timestamp,plclib-schemaver:3.0,strict"},
		{name: "blank items", args: []string{" sort , ,"}, want: "sort"},
		{name: "unknown key", args: []string{"colour"}, wantErr: "unknown option"},
		{name: "missing value", args: []string{"plclib-indent"}, wantErr: "needs a value"},
		{name: "unexpected value", args: []string{"sort:yes"}, wantErr: "takes no value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var kv KeyValues
			var err error
			for _, arg := range tt.args {
				if err = kv.Set(arg); err != nil {
					break
				}
			}
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, kv.String())
			assert.Equal(t, "keyvals", kv.Type())
		})
	}
}

func TestKeyValuesApplyTo(t *testing.T) {
	kv := KeyValues{}
	require.NoError(t, kv.Set("no-timestamp,sort,strict,plclib-schemaver:2.9,plclib-indent:4"))

	c := config.Default()
	require.NoError(t, kv.ApplyTo(c))
	assert.False(t, c.PLCLib.Timestamp)
	assert.True(t, c.Convert.Sort)
	assert.True(t, c.Convert.Strict)
	assert.Equal(t, "2.9", c.PLCLib.SchemaVersion)
	assert.Equal(t, 4, c.PLCLib.Indent)

	for _, bad := range []string{"plclib-indent:x", "plclib-indent:99", "plclib-schemaver:2"} {
		kv := KeyValues{}
		require.NoError(t, kv.Set(bad))
		assert.Error(t, kv.ApplyTo(config.Default()), bad)
	}
}

func TestConvertCommand(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	in := testutils.WriteFile(t, dir, "machine.h", testutils.SampleHeader, textcodec.UTF8)
	out := filepath.Join(dir, "out")

	stdout, err := execute(t, "convert", in, "-o", out, "-p", "no-timestamp", "-r", "json")
	require.NoError(t, err)

	var report Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, "convert", report.Command)
	assert.Equal(t, "success", report.Status)
	assert.Equal(t, 0, report.ExitCode)
	require.Len(t, report.Units, 1)
	assert.Equal(t, []string{filepath.Join(out, "machine.pll"), filepath.Join(out, "machine.plclib")}, report.Units[0].Outputs)

	pll := testutils.ReadFile(t, filepath.Join(out, "machine.pll")).Content
	assert.NotContains(t, pll, "date:")
}

func TestConvertCommandTargetAndEncoding(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	in := testutils.WriteFile(t, dir, "machine.h", testutils.SampleHeader, textcodec.UTF8)
	out := filepath.Join(dir, "out") + string(filepath.Separator)

	_, err := execute(t, "convert", in, "-o", out, "-t", "pll", "--encoding", "utf-16le", "-q")
	require.NoError(t, err)

	assert.Equal(t, textcodec.UTF16LE, testutils.ReadFile(t, filepath.Join(out, "machine.pll")).Encoding)
	testutils.AssertNoFile(t, filepath.Join(out, "machine.plclib"))
}

func TestConvertCommandWithIssues(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	in := testutils.WriteFile(t, dir, "empty.h", "#define aaa bbb // not exported\n", textcodec.UTF8)

	stdout, err := execute(t, "convert", in, "-o", filepath.Join(dir, "out"), "-r", "yaml")
	assert.Equal(t, errors.StatusCompletedWithIssues, exitStatus(t, err))

	var report Report
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, "completed-with-issues", report.Status)
	assert.Equal(t, 1, report.ExitCode)
	require.Len(t, report.Units, 1)
	assert.NotEmpty(t, report.Units[0].Issues)
}

func TestConvertCommandFatal(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	in := testutils.WriteFile(t, dir, "sample.pll", testutils.SamplePLL, textcodec.UTF8)

	stdout, err := execute(t, "convert", in, "-o", dir)
	assert.Equal(t, errors.StatusFatal, exitStatus(t, err))
	assert.Contains(t, stdout, "[FATAL] "+in)
	assert.Contains(t, stdout, "convert: fatal (1 unit(s))")
}

func TestConvertCommandUsageErrors(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	in := testutils.WriteFile(t, dir, "sample.pll", testutils.SamplePLL, textcodec.UTF8)
	out := filepath.Join(dir, "out")

	tests := []struct {
		name string
		args []string
	}{
		{"no inputs", []string{"convert", "-o", out}},
		{"no output", []string{"convert", in}},
		{"report format", []string{"convert", in, "-o", out, "-r", "xml"}},
		{"encoding", []string{"convert", in, "-o", out, "--encoding", "latin-1"}},
		{"target", []string{"convert", in, "-o", out, "-t", "json"}},
		{"option", []string{"convert", in, "-o", out, "-p", "colour"}},
		{"quiet and verbose", []string{"convert", in, "-o", out, "-q", "-v"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			var exit *errors.ExitError
			assert.False(t, stderrors.As(err, &exit), "usage errors are not run statuses")
		})
	}
	testutils.AssertNoFile(t, out)
}

func TestConfigFile(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	in := testutils.WriteFile(t, dir, "sample.pll", testutils.SamplePLL, textcodec.UTF8)
	out := filepath.Join(dir, "out")
	cfgPath := filepath.Join(dir, "custom.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("plclib:\n  indent: 2\n  timestamp: false\nconvert:\n  target: plclib\n"), 0o644))

	_, err := execute(t, "--config", cfgPath, "convert", in, "-o", out)
	require.NoError(t, err)

	content := testutils.ReadFile(t, filepath.Join(out, "sample.plclib")).Content
	assert.Contains(t, content, "\n  <")
	assert.NotContains(t, content, "\n\t<")
}

func TestConfigFileFromEnvironment(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	in := testutils.WriteFile(t, dir, "sample.pll", testutils.SamplePLL, textcodec.UTF8)
	cfgPath := filepath.Join(dir, "env.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("convert:\n  target: json\n"), 0o644))
	t.Setenv("PLCTOOL_CONFIG_FILE", cfgPath)

	_, err := execute(t, "convert", in, "-o", filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfig))
}

func TestMissingConfigFile(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yml"), "version")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfig))
}

func TestUpdateCommand(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	testutils.WriteFile(t, dir, "libs/motion.pll", "abc", textcodec.UTF8)
	prj := testutils.WriteFile(t, dir, "machine.ppjs", linkedProject, textcodec.UTF8BOM)
	out := filepath.Join(dir, "build", "machine.ppjs")

	stdout, err := execute(t, "update", prj, "-o", out, "-r", "toml")
	require.NoError(t, err)

	var report Report
	_, err = toml.Decode(stdout, &report)
	require.NoError(t, err)
	assert.Equal(t, "update", report.Command)
	assert.Equal(t, "success", report.Status)
	require.Len(t, report.Units, 1)
	assert.Equal(t, []string{out}, report.Units[0].Outputs)

	text := testutils.ReadFile(t, out)
	assert.Equal(t, textcodec.UTF8BOM, text.Encoding)
	assert.Contains(t, text.Content, `name="libs/motion.pll"><![CDATA[abc]]></lib>`)

	// The output now exists
	_, err = execute(t, "update", prj, "-o", out)
	assert.Equal(t, errors.StatusFatal, exitStatus(t, err))

	_, err = execute(t, "update", prj, "-o", out, "--force")
	require.NoError(t, err)
}

func TestUpdateCommandUsageErrors(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	prj := testutils.WriteFile(t, dir, "machine.ppjs", linkedProject, textcodec.UTF8)

	_, err := execute(t, "update", prj)
	assert.Error(t, err)

	_, err = execute(t, "update", filepath.Join(dir, "missing.ppjs"), "-o", filepath.Join(dir, "out.ppjs"))
	assert.Error(t, err)

	_, err = execute(t, "update", dir, "-o", filepath.Join(dir, "out.ppjs"))
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	stdout, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")

	stdout, err = execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(stdout, "\n"))

	_, err = execute(t, "version", "--format", "xml")
	assert.Error(t, err)
}

func TestWriteTextReport(t *testing.T) {
	outcomes := []errors.Outcome{
		{Unit: "a.h", Outputs: []string{"out/a.pll"}},
		{Unit: "b.h", Issues: []errors.Issue{{Source: "b.h", Line: 3, Message: "Skipping define"}}},
	}
	report := newReport("convert", outcomes)

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "text", report, &StandardFlags{Verbose: true}))
	assert.Equal(t, "[OK] a.h\n"+
		"  -> out/a.pll\n"+
		"[ISSUES] b.h\n"+
		"  [!] b.h:3: Skipping define\n"+
		"convert: completed-with-issues (2 unit(s))\n", buf.String())

	buf.Reset()
	require.NoError(t, writeReport(&buf, "text", newReport("convert", outcomes[:1]), &StandardFlags{Quiet: true}))
	assert.Empty(t, buf.String())

	assert.Error(t, writeReport(&buf, "csv", report, nil))
}

func TestNewLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "plctool.log")
	log, closeLog, err := newLogger(config.LogConfig{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	log.Info(context.Background(), "hello", "unit", "a.pll")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)

	_, _, err = newLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestWatchProject(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	lib := testutils.WriteFile(t, dir, "libs/motion.pll", "first", textcodec.UTF8)
	prj := testutils.WriteFile(t, dir, "machine.ppjs", linkedProject, textcodec.UTF8)
	out := filepath.Join(dir, "machine.synced.ppjs")

	outcomes := make(chan errors.Outcome, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- watchProject(ctx, prj, out, watchOptions{
			Debounce: 30 * time.Millisecond,
			Report:   func(o errors.Outcome) { outcomes <- o },
		})
	}()

	next := func() errors.Outcome {
		select {
		case o := <-outcomes:
			return o
		case <-time.After(5 * time.Second):
			t.Fatal("no update within 5s")
			return errors.Outcome{}
		}
	}

	require.NoError(t, next().Err)
	assert.Contains(t, testutils.ReadFile(t, out).Content, "<![CDATA[first]]>")

	// Let the watcher settle before changing the library
	time.Sleep(100 * time.Millisecond)
	testutils.WriteFile(t, dir, "libs/motion.pll", "second", textcodec.UTF8)

	require.NoError(t, next().Err, "the watch owns its output after the first run")
	assert.Contains(t, testutils.ReadFile(t, out).Content, "<![CDATA[second]]>")
	assert.FileExists(t, lib)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
