package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/plctool/internal/errors"
	"github.com/conneroisu/plctool/internal/logging"
	"github.com/conneroisu/plctool/internal/textcodec"
)

// Options controls Update.
type Options struct {
	// Force allows replacing an existing output file.
	Force  bool
	Logger logging.Logger
}

// Sync rewrites the <lib> contents of a decoded project document. Problems
// that leave a reference untouched are recorded in issues.
func Sync(ctx context.Context, content, projectPath string, issues *errors.IssueCollector, log logging.Logger) (*Document, error) {
	log = logging.OrNop(log)
	refs, err := Scan(content, projectPath)
	if err != nil {
		return nil, err
	}

	doc := NewDocument(content)
	if len(refs) == 0 {
		issues.Addf(projectPath, 0, "No libraries found")
		return doc, nil
	}

	dir := filepath.Dir(projectPath)
	for _, ref := range refs {
		switch {
		case !ref.Link:
			issues.Addf(projectPath, ref.Line, "Skipping library (need link=\"true\")")
			continue
		case ref.Name == "":
			issues.Addf(projectPath, ref.Line, "Skipping unnamed library (expected name=\"...\")")
			continue
		case ref.SelfClosing:
			issues.Addf(projectPath, ref.Line, "Skipping self-closed library %q", ref.Name)
			continue
		}

		path := ref.Path(dir)
		text, err := embed(ref, path, issues, projectPath)
		if err != nil {
			return nil, err
		}
		if text == nil {
			continue
		}
		if err := doc.Replace(Edit{Start: ref.Start, End: ref.End, Text: *text}); err != nil {
			return nil, err
		}
		log.Debug(ctx, "library embedded", "library", ref.Name, "path", path, "bytes", len(*text))
	}
	return doc, nil
}

// embed returns the replacement content of ref, or nil when the target is
// missing.
func embed(ref LibraryRef, path string, issues *errors.IssueCollector, projectPath string) (*string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			issues.Addf(projectPath, ref.Line, "Skipping broken linked library (name=%q path=%q)", ref.Name, path)
			return nil, nil
		}
		return nil, errors.NewIOError(errors.CodeIO, "cannot access linked library", err).WithLocation(path, 0, 0)
	}

	lib, err := textcodec.ReadFile(path)
	if err != nil {
		return nil, err
	}

	wrapped := IsWrapped(path, lib.Content)
	if !wrapped && !strings.EqualFold(filepath.Ext(path), ".pll") {
		issues.Addf(projectPath, ref.Line, "Unrecognized library (name=%q)", ref.Name)
	}

	payload := lib.Content
	if wrapped {
		if payload, err = Payload(lib.Content, path); err != nil {
			return nil, err
		}
	}

	full := wrapped
	if ref.FullXML != nil {
		full = *ref.FullXML
	}
	if !full {
		payload = "<![CDATA[" + strings.ReplaceAll(payload, "]]>", "]]]]><![CDATA[>") + "]]>"
	}
	return &payload, nil
}

// LinkedPaths returns the resolved paths of the linked libraries of a
// project.
func LinkedPaths(projectPath string) ([]string, error) {
	text, err := textcodec.ReadFile(projectPath)
	if err != nil {
		return nil, err
	}
	refs, err := Scan(text.Content, projectPath)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(projectPath)
	var paths []string
	for _, ref := range refs {
		if ref.Link && ref.Name != "" {
			paths = append(paths, ref.Path(dir))
		}
	}
	return paths, nil
}

// Update writes to outputPath a copy of the project at projectPath whose
// linked libraries carry the current content of their files. The output
// keeps the physical encoding of the project.
func Update(ctx context.Context, projectPath, outputPath string, opts Options) errors.Outcome {
	log := logging.OrNop(opts.Logger).WithComponent("project")
	outcome := errors.Outcome{Unit: projectPath}
	issues := errors.NewIssueCollector()

	perf := logging.StartOperation(log, "update "+filepath.Base(projectPath))
	err := update(ctx, projectPath, outputPath, opts, issues, log)
	perf.EndWithError(ctx, err)

	outcome.Issues = issues.Issues()
	outcome.Err = err
	if err == nil {
		outcome.Outputs = []string{outputPath}
	}
	for _, issue := range outcome.Issues {
		log.Warn(ctx, nil, issue.Message, "file", issue.Source, "line", issue.Line)
	}
	return outcome
}

func update(ctx context.Context, projectPath, outputPath string, opts Options, issues *errors.IssueCollector, log logging.Logger) error {
	if err := checkOutput(projectPath, outputPath, opts.Force); err != nil {
		return err
	}

	text, err := textcodec.ReadFile(projectPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text.Content) == "" {
		return errors.NewParseError(errors.CodeEmptyInput, "No data to parse (empty file?)").WithLocation(projectPath, 0, 0)
	}

	doc, err := Sync(ctx, text.Content, projectPath, issues, log)
	if err != nil {
		return err
	}

	if err := textcodec.WriteFile(outputPath, doc.String(), text.Encoding); err != nil {
		return err
	}
	log.Info(ctx, "project updated", "project", projectPath, "output", outputPath,
		"libraries", len(doc.Edits()), "encoding", text.Encoding.String())
	return nil
}

func checkOutput(projectPath, outputPath string, force bool) error {
	if outputPath == "" {
		return errors.NewConfigError(errors.CodeConfig, "no output file specified")
	}
	in, err := filepath.Abs(projectPath)
	if err != nil {
		return errors.WrapIO(err, "cannot resolve project path")
	}
	out, err := filepath.Abs(outputPath)
	if err != nil {
		return errors.WrapIO(err, "cannot resolve output path")
	}
	if in == out {
		return errors.NewValidationError(errors.CodeOutputIsInput,
			fmt.Sprintf("Specified output %q collides with original file", outputPath))
	}

	outInfo, err := os.Stat(outputPath)
	switch {
	case err == nil:
		if inInfo, err := os.Stat(projectPath); err == nil && os.SameFile(inInfo, outInfo) {
			return errors.NewValidationError(errors.CodeOutputIsInput,
				fmt.Sprintf("Specified output %q collides with original file", outputPath))
		}
		if outInfo.IsDir() {
			return errors.NewValidationError(errors.CodeOutputExists,
				fmt.Sprintf("output %q is a directory", outputPath))
		}
		if !force {
			return errors.NewValidationError(errors.CodeOutputExists,
				fmt.Sprintf("output %q already exists (use --force to overwrite)", outputPath))
		}
	case !os.IsNotExist(err):
		return errors.NewIOError(errors.CodeIO, "cannot access output", err).WithLocation(outputPath, 0, 0)
	}
	return nil
}
