// Package cmd provides the command-line interface for plctool.
//
// Configuration System:
//
//	Settings come from several sources, highest priority first:
//	1. Command-line flags (--force, --options, --log-level, ...)
//	2. Individual environment variables (PLCTOOL_PLCLIB_INDENT, ...)
//	3. The configuration file: --config, else PLCTOOL_CONFIG_FILE, else
//	   .plctool.yml in the current directory
//	4. Built-in defaults
package cmd

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/conneroisu/plctool/internal/config"
	"github.com/conneroisu/plctool/internal/errors"
	"github.com/conneroisu/plctool/internal/logging"
	"github.com/conneroisu/plctool/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// configErr holds a failure to read an explicitly named config file.
	configErr error

	cfg      *config.Config
	logger   logging.Logger
	closeLog func() error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "plctool",
		Short: "Convert and synchronize PLC library artifacts",
		Long: `plctool converts between PLC library formats and keeps project files in
sync with the libraries they link.

Supported conversions:
  header (.h)   -> .pll and .plclib
  .pll          -> .plclib
  .pll/.plclib  -> embedded into a project (.ppjs, .plcprj)

Quick Start:
  plctool convert registers.h -o out/
  plctool convert motion.pll -o motion.plclib -p sort,plclib-indent:2
  plctool update machine.ppjs -o build/machine.ppjs
  plctool watch machine.ppjs -o build/machine.ppjs

Exit status is 0 on success, 1 when the run completed with issues and 2 on
a fatal error.`,
		Version:           version.Get().Short(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if closeLog != nil {
				return closeLog()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .plctool.yml, can also use PLCTOOL_CONFIG_FILE env var)")
	root.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "text", "log format (text, json)")
	root.PersistentFlags().String("log-file", "", "also write the log to this file")
	AddFlagValidation(root.PersistentFlags(), "log-level", ValidateLogLevel)
	_ = viper.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", root.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("log.file", root.PersistentFlags().Lookup("log-file"))

	root.AddCommand(newConvertCmd(), newUpdateCmd(), newWatchCmd(), newVersionCmd())
	return root
}

// Execute runs the root command. Status errors from a completed run are
// returned silently; anything else is printed to stderr first.
func Execute() error {
	err := rootCmd.Execute()
	var exit *errors.ExitError
	if err != nil && !stderrors.As(err, &exit) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig points viper at the configuration file and the environment.
//
// Configuration file priority (highest to lowest):
//  1. --config flag
//  2. PLCTOOL_CONFIG_FILE environment variable
//  3. .plctool.yml in the current directory
//
// A missing default file is fine; a named file that cannot be read is an
// error reported before the command runs.
func initConfig() {
	configErr = nil
	named := true
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		named = false
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".plctool")
	}

	config.BindEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if named || !stderrors.As(err, &notFound) {
			configErr = errors.WrapConfig(err, "cannot read configuration file")
		}
	}
}

// setup loads the configuration and builds the logger for every command.
func setup(cmd *cobra.Command, _ []string) error {
	if configErr != nil {
		return configErr
	}
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	cfg = loaded

	log, closer, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	logger, closeLog = log, closer
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug(cmd.Context(), "Using config file", "path", used)
	}
	return nil
}

// newLogger builds the console logger and, when a log file is configured,
// tees into it.
func newLogger(lc config.LogConfig) (logging.Logger, func() error, error) {
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return nil, nil, errors.WrapConfig(err, "invalid log level")
	}
	lcfg := logging.DefaultConfig()
	lcfg.Level = level
	lcfg.Format = lc.Format

	console := logging.NewLogger(lcfg)
	if lc.File == "" {
		return console, func() error { return nil }, nil
	}

	file, err := logging.NewFileLogger(lcfg, lc.File)
	if err != nil {
		return nil, nil, errors.WrapIO(err, "cannot open log file")
	}
	return logging.NewMultiLogger(console, file), file.Close, nil
}

// statusError turns a non-success run into the error main maps to an exit
// code.
func statusError(status errors.Status) error {
	if status == errors.StatusSuccess {
		return nil
	}
	return &errors.ExitError{Status: status}
}
