// Package config provides configuration management for plctool using Viper
// for flexible configuration loading from files, environment variables, and
// command-line flags.
//
// The configuration file is .plctool.yml in the working directory, or the
// file named by PLCTOOL_CONFIG_FILE or --config. Every key can be overridden
// by an environment variable with the PLCTOOL_ prefix, dots replaced by
// underscores (PLCTOOL_PLCLIB_INDENT=2).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/conneroisu/plctool/internal/errors"
	"github.com/conneroisu/plctool/internal/logging"
	"github.com/conneroisu/plctool/internal/plclib"
	"github.com/conneroisu/plctool/internal/textcodec"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PLCTOOL"

// FileName is the configuration file looked up in the working directory.
const FileName = ".plctool.yml"

type Config struct {
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Convert ConvertConfig `yaml:"convert" mapstructure:"convert"`
	PLCLib  PLCLibConfig  `yaml:"plclib" mapstructure:"plclib"`
	Update  UpdateConfig  `yaml:"update" mapstructure:"update"`
	Watch   WatchConfig   `yaml:"watch" mapstructure:"watch"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	// File tees the log to a file when set.
	File string `yaml:"file" mapstructure:"file"`
}

type ConvertConfig struct {
	// Target is plclib, pll, or empty to pick by input type.
	Target string `yaml:"target" mapstructure:"target"`
	// Encoding overrides the encoding of .pll outputs.
	Encoding string `yaml:"encoding" mapstructure:"encoding"`
	Strict   bool   `yaml:"strict" mapstructure:"strict"`
	Sort     bool   `yaml:"sort" mapstructure:"sort"`
	Force    bool   `yaml:"force" mapstructure:"force"`
	IssueLog bool   `yaml:"issue_log" mapstructure:"issue_log"`
}

type PLCLibConfig struct {
	// Indent is the number of spaces per level; 0 indents with tabs.
	Indent        int    `yaml:"indent" mapstructure:"indent"`
	SchemaVersion string `yaml:"schema_version" mapstructure:"schema_version"`
	Timestamp     bool   `yaml:"timestamp" mapstructure:"timestamp"`
	Author        string `yaml:"author" mapstructure:"author"`
}

type UpdateConfig struct {
	Force bool `yaml:"force" mapstructure:"force"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// Keys lists every configuration key.
var Keys = []string{
	"log.level", "log.format", "log.file",
	"convert.target", "convert.encoding", "convert.strict", "convert.sort", "convert.force", "convert.issue_log",
	"plclib.indent", "plclib.schema_version", "plclib.timestamp", "plclib.author",
	"update.force",
	"watch.debounce",
}

// BindEnv makes every key overridable by a PLCTOOL_ environment variable.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	for _, key := range Keys {
		_ = viper.BindEnv(key)
	}
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Convert: ConvertConfig{
			IssueLog: true,
		},
		PLCLib: PLCLibConfig{
			SchemaVersion: plclib.DefaultSchemaVersion.String(),
			Timestamp:     true,
		},
		Watch: WatchConfig{Debounce: 300 * time.Millisecond},
	}
}

func Load() (*Config, error) {
	config := Default()
	if err := viper.Unmarshal(config); err != nil {
		return nil, errors.WrapConfig(err, "cannot decode configuration")
	}

	// Handle booleans set via viper (workaround for viper bool handling of
	// environment strings)
	for key, dst := range map[string]*bool{
		"convert.strict":    &config.Convert.Strict,
		"convert.sort":      &config.Convert.Sort,
		"convert.force":     &config.Convert.Force,
		"convert.issue_log": &config.Convert.IssueLog,
		"plclib.timestamp":  &config.PLCLib.Timestamp,
		"update.force":      &config.Update.Force,
	} {
		if viper.IsSet(key) {
			*dst = viper.GetBool(key)
		}
	}

	// Empty strings from the environment fall back to the defaults
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
	if config.PLCLib.SchemaVersion == "" {
		config.PLCLib.SchemaVersion = plclib.DefaultSchemaVersion.String()
	}

	// Validate configuration values
	if err := validateConfig(config); err != nil {
		return nil, errors.WrapConfig(err, "invalid configuration")
	}

	return config, nil
}

// validateConfig validates configuration values
func validateConfig(config *Config) error {
	if _, err := logging.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	switch strings.ToLower(config.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log config: unknown format %q (expected text or json)", config.Log.Format)
	}

	switch strings.ToLower(strings.TrimPrefix(config.Convert.Target, ".")) {
	case "", "plclib", "pll":
	default:
		return fmt.Errorf("convert config: unknown target %q (expected plclib or pll)", config.Convert.Target)
	}
	if config.Convert.Encoding != "" {
		if _, err := textcodec.ParseEncoding(config.Convert.Encoding); err != nil {
			return fmt.Errorf("convert config: %w", err)
		}
	}

	if config.PLCLib.Indent < 0 || config.PLCLib.Indent > 16 {
		return fmt.Errorf("plclib config: indent %d is not in valid range 0-16", config.PLCLib.Indent)
	}
	if _, err := plclib.ParseSchemaVersion(config.PLCLib.SchemaVersion); err != nil {
		return fmt.Errorf("plclib config: %w", err)
	}

	if config.Watch.Debounce < 0 {
		return fmt.Errorf("watch config: negative debounce %s", config.Watch.Debounce)
	}

	return nil
}

// PLCLibOptions returns the writer options the configuration selects.
func (c *Config) PLCLibOptions() (plclib.Options, error) {
	version, err := plclib.ParseSchemaVersion(c.PLCLib.SchemaVersion)
	if err != nil {
		return plclib.Options{}, err
	}
	return plclib.Options{
		Indent:        plclib.IndentSpaces(c.PLCLib.Indent),
		SchemaVersion: version,
		NoTimestamp:   !c.PLCLib.Timestamp,
		Author:        c.PLCLib.Author,
	}, nil
}

// OutputEncoding returns the configured .pll output encoding, or nil to
// follow the input.
func (c *Config) OutputEncoding() (*textcodec.Encoding, error) {
	if c.Convert.Encoding == "" {
		return nil, nil
	}
	enc, err := textcodec.ParseEncoding(c.Convert.Encoding)
	if err != nil {
		return nil, err
	}
	return &enc, nil
}
