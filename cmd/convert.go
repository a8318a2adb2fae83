package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/conneroisu/plctool/internal/config"
	"github.com/conneroisu/plctool/internal/convert"
	"github.com/conneroisu/plctool/internal/errors"
	"github.com/spf13/cobra"
)

func newConvertCmd() *cobra.Command {
	var (
		flags    *StandardFlags
		target   string
		strict   bool
		encoding string
	)

	cmd := &cobra.Command{
		Use:     "convert <inputs...>",
		Aliases: []string{"c"},
		Short:   "Convert headers and .pll libraries",
		Long: `Convert C headers into .pll and .plclib libraries and .pll libraries into
.plclib descriptors.

The output is a directory unless it names a single .pll or .plclib file.
Each input is converted independently: a fatal problem with one input does
not stop the others.

Options (--options/-p key:value,key):
  no-timestamp            omit creation dates
  sort                    sort declarations by name
  strict                  treat recoverable parse problems as fatal
  plclib-schemaver:2.8    schema version written to .plclib files
  plclib-indent:2         indent .plclib files with spaces instead of tabs

Examples:
  plctool convert registers.h -o out/
  plctool convert a.pll b.pll -o out/ -t plclib -F
  plctool convert motion.pll -o motion.plclib -p no-timestamp -r json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.ValidateFlags(); err != nil {
				return err
			}
			if err := flags.Apply(cmd, cfg); err != nil {
				return err
			}
			if cmd.Flags().Changed("target") {
				cfg.Convert.Target = target
			}
			if cmd.Flags().Changed("strict") {
				cfg.Convert.Strict = strict
			}
			if cmd.Flags().Changed("encoding") {
				cfg.Convert.Encoding = encoding
			}
			if flags.Output == "" {
				return fmt.Errorf("an output directory or file is required (-o)")
			}

			opts, err := convertOptions(cfg)
			if err != nil {
				return err
			}
			inputs, err := absPaths(args)
			if err != nil {
				return err
			}

			outcomes := convert.Run(cmd.Context(), inputs, flags.Output, opts)
			report := newReport("convert", outcomes)
			if err := writeReport(cmd.OutOrStdout(), flags.Report, report, flags); err != nil {
				return err
			}
			return statusError(errors.StatusOf(outcomes))
		},
	}

	flags = AddStandardFlags(cmd, "run", "report")
	cmd.Flags().StringVarP(&target, "target", "t", "", "Output format (plclib|pll); default picks by input type")
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat recoverable parse problems as fatal")
	cmd.Flags().StringVar(&encoding, "encoding", "", "Encoding of .pll outputs (utf-8, utf-8-bom, utf-16le, utf-16be)")
	AddFlagValidation(cmd.Flags(), "encoding", ValidateEncoding)
	return cmd
}

// convertOptions maps the configuration onto the converter.
func convertOptions(c *config.Config) (convert.Options, error) {
	target, err := convert.ParseTarget(c.Convert.Target)
	if err != nil {
		return convert.Options{}, err
	}
	plclibOpts, err := c.PLCLibOptions()
	if err != nil {
		return convert.Options{}, err
	}
	enc, err := c.OutputEncoding()
	if err != nil {
		return convert.Options{}, err
	}
	return convert.Options{
		Target:      target,
		Force:       c.Convert.Force,
		Strict:      c.Convert.Strict,
		Sort:        c.Convert.Sort,
		NoTimestamp: !c.PLCLib.Timestamp,
		Author:      c.PLCLib.Author,
		PLCLib:      plclibOpts,
		Encoding:    enc,
		IssueLog:    c.Convert.IssueLog,
		Logger:      logger,
	}, nil
}

func absPaths(paths []string) ([]string, error) {
	out := make([]string, len(paths))
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, errors.WrapIO(err, "cannot resolve "+p)
		}
		out[i] = abs
	}
	return out, nil
}
