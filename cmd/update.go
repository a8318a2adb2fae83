package cmd

import (
	"fmt"

	"github.com/conneroisu/plctool/internal/errors"
	"github.com/conneroisu/plctool/internal/project"
	"github.com/spf13/cobra"
)

func newUpdateCmd() *cobra.Command {
	var flags *StandardFlags

	cmd := &cobra.Command{
		Use:     "update <project>",
		Aliases: []string{"u"},
		Short:   "Embed the current content of linked libraries into a project",
		Long: `Write a copy of a project file whose linked libraries (<lib link="true">)
carry the current content of the library files they name. Everything else
in the project is kept byte for byte, including its encoding.

Examples:
  plctool update machine.ppjs -o build/machine.ppjs
  plctool update machine.plcprj -o machine.synced.plcprj -F -r yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.ValidateFlags(); err != nil {
				return err
			}
			if err := flags.Apply(cmd, cfg); err != nil {
				return err
			}
			if flags.Output == "" {
				return fmt.Errorf("an output file is required (-o)")
			}
			if err := ValidateFileExists(args[0]); err != nil {
				return err
			}
			paths, err := absPaths([]string{args[0], flags.Output})
			if err != nil {
				return err
			}

			outcome := project.Update(cmd.Context(), paths[0], paths[1], project.Options{
				Force:  cfg.Update.Force,
				Logger: logger,
			})
			outcomes := []errors.Outcome{outcome}
			if err := writeReport(cmd.OutOrStdout(), flags.Report, newReport("update", outcomes), flags); err != nil {
				return err
			}
			return statusError(outcome.Status())
		},
	}

	flags = AddStandardFlags(cmd, "run", "report")
	return cmd
}
