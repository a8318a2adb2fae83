package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/conneroisu/plctool/internal/errors"
	"gopkg.in/yaml.v3"
)

var reportFormats = []string{"text", "json", "yaml", "toml"}

// Report is the machine-readable summary of a run.
type Report struct {
	Command  string       `json:"command" yaml:"command" toml:"command"`
	Status   string       `json:"status" yaml:"status" toml:"status"`
	ExitCode int          `json:"exit_code" yaml:"exit_code" toml:"exit_code"`
	Units    []UnitReport `json:"units" yaml:"units" toml:"units"`
}

// UnitReport is the outcome of one input or project within a Report.
type UnitReport struct {
	Unit    string         `json:"unit" yaml:"unit" toml:"unit"`
	Status  string         `json:"status" yaml:"status" toml:"status"`
	Outputs []string       `json:"outputs,omitempty" yaml:"outputs,omitempty" toml:"outputs,omitempty"`
	Issues  []errors.Issue `json:"issues,omitempty" yaml:"issues,omitempty" toml:"issues,omitempty"`
	Error   string         `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
}

func newReport(command string, outcomes []errors.Outcome) Report {
	status := errors.StatusOf(outcomes)
	r := Report{
		Command:  command,
		Status:   status.String(),
		ExitCode: status.ExitCode(),
		Units:    make([]UnitReport, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		u := UnitReport{
			Unit:    o.Unit,
			Status:  o.Status().String(),
			Outputs: o.Outputs,
			Issues:  o.Issues,
		}
		if o.Err != nil {
			u.Error = o.Err.Error()
		}
		r.Units = append(r.Units, u)
	}
	return r
}

// writeReport renders r in format. Text output honours quiet and verbose;
// the structured formats always carry everything.
func writeReport(w io.Writer, format string, r Report, flags *StandardFlags) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "toml":
		return toml.NewEncoder(w).Encode(r)
	case "text", "":
		return writeTextReport(w, r, flags)
	}
	return ValidateReportFormat(format)
}

func writeTextReport(w io.Writer, r Report, flags *StandardFlags) error {
	quiet := flags != nil && flags.Quiet
	verbose := flags != nil && flags.Verbose

	for _, u := range r.Units {
		switch {
		case u.Error != "":
			fmt.Fprintf(w, "[FATAL] %s: %s\n", u.Unit, u.Error)
		case len(u.Issues) > 0:
			if !quiet {
				fmt.Fprintf(w, "[ISSUES] %s\n", u.Unit)
			}
		case verbose:
			fmt.Fprintf(w, "[OK] %s\n", u.Unit)
		}
		if !quiet {
			for _, issue := range u.Issues {
				fmt.Fprintf(w, "  [!] %s\n", issue)
			}
		}
		if verbose {
			for _, out := range u.Outputs {
				fmt.Fprintf(w, "  -> %s\n", out)
			}
		}
	}
	if !quiet || r.ExitCode != 0 {
		_, err := fmt.Fprintf(w, "%s: %s (%d unit(s))\n", r.Command, r.Status, len(r.Units))
		return err
	}
	return nil
}
