package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/conneroisu/plctool/internal/config"
	"github.com/conneroisu/plctool/internal/logging"
	"github.com/conneroisu/plctool/internal/textcodec"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// StandardFlags provides consistent flag definitions across commands
type StandardFlags struct {
	// Run flags
	Output  string    `flag:"output,o" desc:"Output file or directory"`
	Force   bool      `flag:"force,F" desc:"Overwrite existing output"`
	Options KeyValues `flag:"options,p" desc:"Options as key:value,key"`

	// Report flags
	Report  string `flag:"report,r" desc:"Report format (text|json|yaml|toml)" default:"text"`
	Verbose bool   `flag:"verbose,v" desc:"Enable verbose output" default:"false"`
	Quiet   bool   `flag:"quiet,q" desc:"Suppress output" default:"false"`
}

// AddStandardFlags adds standard flags to a command
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{Options: KeyValues{}}

	for _, flagType := range flagTypes {
		switch flagType {
		case "run":
			addRunFlags(cmd, flags)
		case "report":
			addReportFlags(cmd, flags)
		}
	}

	return flags
}

func addRunFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "", "Output file or directory")
	cmd.Flags().BoolVarP(&flags.Force, "force", "F", false, "Overwrite existing output")
	cmd.Flags().VarP(&flags.Options, "options", "p", "Options as key:value,key ("+strings.Join(optionNames(), ", ")+")")
}

func addReportFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.Report, "report", "r", "text", "Report format (text|json|yaml|toml)")
	cmd.Flags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable verbose output")
	cmd.Flags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress output")
	AddFlagValidation(cmd.Flags(), "report", ValidateReportFormat)
}

// ValidateFlags validates flag combinations and values
func (f *StandardFlags) ValidateFlags() error {
	if err := ValidateReportFormat(f.Report); err != nil {
		return err
	}
	if f.Quiet && f.Verbose {
		return fmt.Errorf("cannot specify both --quiet and --verbose")
	}
	return nil
}

// Apply layers the flags the user set on top of the loaded configuration.
// Force is copied into both run sections; each command reads its own.
func (f *StandardFlags) Apply(cmd *cobra.Command, c *config.Config) error {
	if flag := cmd.Flags().Lookup("force"); flag != nil && flag.Changed {
		c.Convert.Force = f.Force
		c.Update.Force = f.Force
	}
	return f.Options.ApplyTo(c)
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(flags *pflag.FlagSet, flagName string, validator func(string) error) {
	flag := flags.Lookup(flagName)
	if flag == nil {
		return
	}

	originalSet := flag.Value.Set

	flag.Value = &validatingValue{
		Value:       flag.Value,
		validator:   validator,
		originalSet: originalSet,
	}
}

type validatingValue struct {
	pflag.Value
	validator   func(string) error
	originalSet func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.originalSet(val)
}

// ValidateReportFormat accepts the report formats writeReport knows.
func ValidateReportFormat(format string) error {
	for _, valid := range reportFormats {
		if format == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid report format %s, must be one of: %s",
		format, strings.Join(reportFormats, ", "))
}

func ValidateLogLevel(level string) error {
	_, err := logging.ParseLevel(level)
	return err
}

func ValidateEncoding(name string) error {
	_, err := textcodec.ParseEncoding(name)
	return err
}

// File existence validation helper
func ValidateFileExists(filename string) error {
	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", filename)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", filename)
	}
	return nil
}
