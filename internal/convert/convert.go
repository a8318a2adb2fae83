// Package convert runs the convert pipeline over a batch of header and PLC
// library source files: parse each input into a library model and write it
// in the requested formats.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/plctool/internal/errors"
	"github.com/conneroisu/plctool/internal/header"
	"github.com/conneroisu/plctool/internal/logging"
	"github.com/conneroisu/plctool/internal/plc"
	"github.com/conneroisu/plctool/internal/plclib"
	"github.com/conneroisu/plctool/internal/pll"
	"github.com/conneroisu/plctool/internal/textcodec"
)

// Target is an output format.
type Target string

const (
	// TargetAuto writes .plclib for .pll inputs and both formats for headers.
	TargetAuto   Target = ""
	TargetPLCLib Target = "plclib"
	TargetPLL    Target = "pll"
)

// Ext is the file extension of the target.
func (t Target) Ext() string { return "." + string(t) }

// ParseTarget accepts "plclib", "pll" or the empty string.
func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimPrefix(s, "."))); t {
	case TargetAuto, TargetPLCLib, TargetPLL:
		return t, nil
	}
	return "", errors.NewConfigError(errors.CodeConfig, fmt.Sprintf("unknown target %q (expected plclib or pll)", s))
}

// Clearable lists the extensions removed from a forced output directory.
var Clearable = []string{".pll", ".plclib", ".log"}

// Options controls a batch.
type Options struct {
	Target Target
	// Force overwrites existing outputs and clears stale generated files
	// from an output directory.
	Force  bool
	Strict bool
	Sort   bool

	NoTimestamp bool
	Now         func() time.Time
	Author      string
	PLCLib      plclib.Options
	// Encoding overrides the encoding of .pll outputs, which otherwise
	// follow their input.
	Encoding *textcodec.Encoding
	// IssueLog writes <input>.log next to the outputs of a unit with issues.
	IssueLog bool

	Logger logging.Logger
}

type inputKind int

const (
	kindUnknown inputKind = iota
	kindHeader
	kindPLL
)

func kindOf(path string) inputKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".h":
		return kindHeader
	case ".pll":
		return kindPLL
	}
	return kindUnknown
}

type job struct {
	input   string
	kind    inputKind
	outputs []outputFile
}

type outputFile struct {
	path   string
	target Target
}

// Run converts every input and returns one outcome per input, preceded by
// an outcome for the output directory when preparing it raised issues. A
// fatal problem of one input never stops its siblings; a problem with the
// batch as a whole is reported on every input.
func Run(ctx context.Context, inputs []string, output string, opts Options) []errors.Outcome {
	log := logging.OrNop(opts.Logger).WithComponent("convert")
	c := &converter{opts: opts, log: log}

	jobs, dirMode, err := c.plan(inputs, output)
	if err != nil {
		log.Error(ctx, err, "batch rejected", "inputs", len(inputs), "output", output)
		outcomes := make([]errors.Outcome, len(inputs))
		for i, in := range inputs {
			outcomes[i] = errors.Outcome{Unit: in, Err: err}
		}
		return outcomes
	}

	var outcomes []errors.Outcome
	if dirMode {
		prep := c.prepareDir(ctx, output)
		if prep.Err != nil {
			for _, j := range jobs {
				outcomes = append(outcomes, errors.Outcome{Unit: j.input, Err: prep.Err})
			}
			return outcomes
		}
		if len(prep.Issues) > 0 {
			outcomes = append(outcomes, prep)
		}
	}

	for _, j := range jobs {
		outcomes = append(outcomes, c.convert(ctx, j, dirMode, output))
	}
	return outcomes
}

type converter struct {
	opts Options
	log  logging.Logger
}

func isDirOutput(output string) bool {
	if strings.HasSuffix(output, string(filepath.Separator)) || strings.HasSuffix(output, "/") {
		return true
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return true
	}
	switch strings.ToLower(filepath.Ext(output)) {
	case ".pll", ".plclib":
		return false
	}
	return true
}

// plan checks the batch as a whole and maps inputs to output files.
func (c *converter) plan(inputs []string, output string) ([]job, bool, error) {
	if len(inputs) == 0 {
		return nil, false, errors.NewConfigError(errors.CodeConfig, "no input files")
	}
	if output == "" {
		return nil, false, errors.NewConfigError(errors.CodeConfig, "Output directory not given")
	}
	outAbs, err := filepath.Abs(output)
	if err != nil {
		return nil, false, errors.WrapIO(err, "cannot resolve output path")
	}

	stems := make(map[string]string, len(inputs))
	for _, in := range inputs {
		key := strings.ToLower(stem(in))
		if prev, dup := stems[key]; dup {
			return nil, false, errors.NewValidationError(errors.CodeNameClash,
				fmt.Sprintf("inputs %q and %q map to the same output name", prev, in))
		}
		stems[key] = in
	}

	dirMode := isDirOutput(output)
	if !dirMode && len(inputs) > 1 {
		return nil, false, errors.NewConfigError(errors.CodeConfig,
			fmt.Sprintf("Combine into single file %s not supported", output))
	}
	if dirMode {
		if info, err := os.Stat(output); err == nil && !info.IsDir() {
			return nil, false, errors.NewValidationError(errors.CodeOutputExists,
				fmt.Sprintf("Output should be a directory: %s", output))
		}
	}

	jobs := make([]job, 0, len(inputs))
	for _, in := range inputs {
		inAbs, err := filepath.Abs(in)
		if err != nil {
			return nil, false, errors.WrapIO(err, "cannot resolve input path")
		}
		j := job{input: in, kind: kindOf(in)}

		if dirMode {
			if sameFile(filepath.Dir(inAbs), outAbs) {
				return nil, false, errors.NewValidationError(errors.CodeOutputInInputDir,
					fmt.Sprintf("Output directory %q collides with the directory of %q", output, in))
			}
			for _, t := range c.targets(j.kind) {
				j.outputs = append(j.outputs, outputFile{path: filepath.Join(output, stem(in)+t.Ext()), target: t})
			}
		} else {
			if sameFile(inAbs, outAbs) {
				return nil, false, errors.NewValidationError(errors.CodeOutputIsInput,
					fmt.Sprintf("Output file %q collides with original file", output))
			}
			t := Target(strings.ToLower(strings.TrimPrefix(filepath.Ext(output), ".")))
			if c.opts.Target != TargetAuto && c.opts.Target != t {
				return nil, false, errors.NewConfigError(errors.CodeConfig,
					fmt.Sprintf("output %q does not match target %s", output, c.opts.Target))
			}
			j.outputs = []outputFile{{path: output, target: t}}
		}
		jobs = append(jobs, j)
	}
	return jobs, dirMode, nil
}

// sameFile reports whether a and b resolve to the same file, following
// symlinks. Paths that cannot be stat'ed are compared as cleaned strings.
func sameFile(a, b string) bool {
	ai, aerr := os.Stat(a)
	bi, berr := os.Stat(b)
	if aerr == nil && berr == nil {
		return os.SameFile(ai, bi)
	}
	return filepath.Clean(a) == filepath.Clean(b)
}

func (c *converter) targets(k inputKind) []Target {
	if c.opts.Target != TargetAuto {
		return []Target{c.opts.Target}
	}
	if k == kindHeader {
		return []Target{TargetPLL, TargetPLCLib}
	}
	return []Target{TargetPLCLib}
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// prepareDir creates the output directory, or clears stale generated files
// from it with Force.
func (c *converter) prepareDir(ctx context.Context, dir string) errors.Outcome {
	out := errors.Outcome{Unit: dir}
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		c.log.Debug(ctx, "creating output directory", "dir", dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			out.Err = errors.NewIOError(errors.CodeIO, "cannot create output directory", err).WithLocation(dir, 0, 0)
		}
		return out
	case err != nil:
		out.Err = errors.NewIOError(errors.CodeIO, "cannot access output directory", err).WithLocation(dir, 0, 0)
		return out
	case !info.IsDir():
		out.Err = errors.NewValidationError(errors.CodeOutputExists, fmt.Sprintf("Output should be a directory: %s", dir))
		return out
	case !c.opts.Force:
		return out
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		out.Err = errors.NewIOError(errors.CodeIO, "cannot list output directory", err).WithLocation(dir, 0, 0)
		return out
	}
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if clearable(e.Name()) {
			if err := os.Remove(path); err != nil {
				out.Err = errors.NewIOError(errors.CodeIO, "cannot clear output directory", err).WithLocation(path, 0, 0)
				return out
			}
			removed++
			continue
		}
		if !strings.HasPrefix(e.Name(), ".") {
			out.Issues = append(out.Issues, errors.Issue{Source: dir, Message: "Uncleared file in output dir: " + path})
		}
	}
	if removed > 0 {
		c.log.Info(ctx, "cleared output directory", "dir", dir, "removed", removed)
	}
	return out
}

func clearable(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, c := range Clearable {
		if ext == c {
			return true
		}
	}
	return false
}

func (c *converter) convert(ctx context.Context, j job, dirMode bool, output string) errors.Outcome {
	log := c.log.With("input", j.input)
	issues := errors.NewIssueCollector()
	outcome := errors.Outcome{Unit: j.input}

	perf := logging.StartOperation(log, "convert "+filepath.Base(j.input))
	written, err := c.run(ctx, j, issues, log)
	perf.EndWithError(ctx, err)

	outcome.Issues = issues.Issues()
	outcome.Outputs = written
	outcome.Err = err
	for _, issue := range outcome.Issues {
		log.Warn(ctx, nil, issue.Message, "file", issue.Source, "line", issue.Line)
	}

	if c.opts.IssueLog && err == nil && len(outcome.Issues) > 0 {
		dir := output
		if !dirMode {
			dir = filepath.Dir(output)
		}
		path, logErr := c.writeIssueLog(dir, j.input, outcome.Issues)
		if logErr != nil {
			log.Warn(ctx, logErr, "cannot write issue log")
		} else {
			outcome.Outputs = append(outcome.Outputs, path)
		}
	}
	return outcome
}

func (c *converter) run(ctx context.Context, j job, issues *errors.IssueCollector, log logging.Logger) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeIO, "conversion cancelled")
	}
	if j.kind == kindUnknown {
		return nil, errors.NewValidationError(errors.CodeUnsupportedInput,
			fmt.Sprintf("Unhandled file type %s", filepath.Base(j.input))).WithLocation(j.input, 0, 0)
	}
	if !c.opts.Force {
		for _, o := range j.outputs {
			if _, err := os.Stat(o.path); err == nil {
				return nil, errors.NewValidationError(errors.CodeOutputExists,
					fmt.Sprintf("output %q already exists (use --force to overwrite)", o.path))
			}
		}
	}

	text, err := textcodec.ReadFile(j.input)
	if err != nil {
		return nil, err
	}

	lib, err := c.parse(text.Content, j, issues, log)
	if err != nil {
		return nil, err
	}
	if c.opts.Sort {
		lib.Sort()
	}
	if lib.IsEmpty() {
		issues.Addf(j.input, 0, "%s generated an empty library", filepath.Base(j.input))
	}
	log.Debug(ctx, "parsed", "summary", lib.Summary())

	// Render everything before writing anything.
	rendered := make([]string, len(j.outputs))
	for i, o := range j.outputs {
		if rendered[i], err = c.render(lib, o.target); err != nil {
			return nil, errors.EnhanceError(err, "convert", j.input, 0)
		}
	}

	// A unit writes all of its outputs or none of them.
	var written []string
	for i, o := range j.outputs {
		enc := textcodec.UTF8
		if o.target == TargetPLL {
			enc = text.Encoding
			if c.opts.Encoding != nil {
				enc = *c.opts.Encoding
			}
		}
		if err := textcodec.WriteFile(o.path, rendered[i], enc); err != nil {
			c.discard(ctx, written, log)
			return nil, err
		}
		log.Info(ctx, "written", "output", o.path, "target", string(o.target))
		written = append(written, o.path)
	}
	return written, nil
}

// discard removes the outputs a failed unit already wrote.
func (c *converter) discard(ctx context.Context, paths []string, log logging.Logger) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn(ctx, err, "cannot remove partial output", "output", path)
			continue
		}
		log.Debug(ctx, "removed partial output", "output", path)
	}
}

func (c *converter) parse(src string, j job, issues *errors.IssueCollector, log logging.Logger) (*plc.Library, error) {
	if j.kind == kindHeader {
		return header.Parse(src, header.Options{FilePath: j.input, Strict: c.opts.Strict, Issues: issues, Logger: log})
	}
	return pll.Parse(src, pll.Options{FilePath: j.input, Strict: c.opts.Strict, Issues: issues, Logger: log})
}

func (c *converter) render(lib *plc.Library, t Target) (string, error) {
	var buf bytes.Buffer
	switch t {
	case TargetPLL:
		err := pll.Write(&buf, lib, pll.WriteOptions{NoTimestamp: c.opts.NoTimestamp, Now: c.opts.Now, Author: c.opts.Author})
		return buf.String(), err
	case TargetPLCLib:
		opts := c.opts.PLCLib
		opts.NoTimestamp = c.opts.NoTimestamp
		opts.Now = c.opts.Now
		opts.Author = c.opts.Author
		_, err := plclib.Write(&buf, lib, opts)
		return buf.String(), err
	}
	return "", errors.NewConfigError(errors.CodeConfig, fmt.Sprintf("unknown target %q", t))
}

// writeIssueLog records the issues of one input in dir/<input base>.log.
func (c *converter) writeIssueLog(dir, input string, issues []errors.Issue) (string, error) {
	now := time.Now
	if c.opts.Now != nil {
		now = c.opts.Now
	}
	var b strings.Builder
	b.WriteString(now().Format(pll.TimestampLayout) + "\n")
	b.WriteString("[Parse log of " + input + "]\n")
	for _, issue := range issues {
		b.WriteString("[!] " + issue.String() + "\n")
	}
	path := filepath.Join(dir, filepath.Base(input)+".log")
	return path, textcodec.WriteFile(path, b.String(), textcodec.UTF8)
}
