package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var ErrFilterModeConflict = errors.New("include and exclude flags are mutually exclusive")

// Config captures all options required to run a conversion.
type Config struct {
	InputDir       string
	OutputPath     string
	Recursive      bool
	Patterns       []string
	IncludeHeader  []string
	IncludeBody    []string
	ExcludeHeader  []string
	ExcludeBody    []string
	SkipDuplicates bool
	Verify         bool
	NoProgress     bool
	LogLevel       string
	LogDir         string
	ConfigFile     string
}

// fileConfig mirrors the flags that may be preset from a TOML file.
type fileConfig struct {
	Recursive      *bool    `toml:"recursive"`
	Patterns       []string `toml:"patterns"`
	IncludeHeader  []string `toml:"include_header"`
	IncludeBody    []string `toml:"include_body"`
	ExcludeHeader  []string `toml:"exclude_header"`
	ExcludeBody    []string `toml:"exclude_body"`
	SkipDuplicates *bool    `toml:"skip_duplicates"`
	Verify         *bool    `toml:"verify"`
	NoProgress     *bool    `toml:"no_progress"`
	LogLevel       string   `toml:"log_level"`
	LogDir         string   `toml:"log_dir"`
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.BoolP("recursive", "r", false, "Collect .eml files from all subdirectories")
	flags.StringArray("pattern", []string{"*.eml"}, "Case-insensitive file name glob selecting input files (repeatable)")
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")
	flags.Bool("skip-duplicates", false, "Skip messages whose content was already written during this run")
	flags.Bool("verify", false, "Re-read the archive after writing and compare the message count")
	flags.Bool("no-progress", false, "Disable the progress bar")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for an additional log file")
	flags.String("config", "", "TOML file with defaults for the flags above")

	return cmd.MarkFlagFilename("config", "toml")
}

// LoadConfig converts the positional arguments and parsed Cobra flags into
// a Config. Values from --config apply to every flag not set explicitly.
func LoadConfig(cmd *cobra.Command, args []string) (Config, error) {
	if len(args) != 2 {
		return Config{}, fmt.Errorf("expected <input-folder> <output-file>, got %d arguments", len(args))
	}
	flags := cmd.Flags()

	var (
		cfg Config
		err error
	)
	cfg.InputDir = strings.TrimSpace(args[0])
	cfg.OutputPath = strings.TrimSpace(args[1])

	if cfg.Recursive, err = flags.GetBool("recursive"); err != nil {
		return Config{}, err
	}
	if cfg.Patterns, err = flags.GetStringArray("pattern"); err != nil {
		return Config{}, err
	}
	if cfg.IncludeHeader, err = flags.GetStringArray("include-header"); err != nil {
		return Config{}, err
	}
	if cfg.IncludeBody, err = flags.GetStringArray("include-body"); err != nil {
		return Config{}, err
	}
	if cfg.ExcludeHeader, err = flags.GetStringArray("exclude-header"); err != nil {
		return Config{}, err
	}
	if cfg.ExcludeBody, err = flags.GetStringArray("exclude-body"); err != nil {
		return Config{}, err
	}
	if cfg.SkipDuplicates, err = flags.GetBool("skip-duplicates"); err != nil {
		return Config{}, err
	}
	if cfg.Verify, err = flags.GetBool("verify"); err != nil {
		return Config{}, err
	}
	if cfg.NoProgress, err = flags.GetBool("no-progress"); err != nil {
		return Config{}, err
	}
	if cfg.LogLevel, err = flags.GetString("log-level"); err != nil {
		return Config{}, err
	}
	if cfg.LogDir, err = flags.GetString("log-dir"); err != nil {
		return Config{}, err
	}
	if cfg.ConfigFile, err = flags.GetString("config"); err != nil {
		return Config{}, err
	}

	if cfg.ConfigFile != "" {
		if err := applyFile(&cfg, cfg.ConfigFile, flags); err != nil {
			return Config{}, err
		}
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if cfg.LogDir != "" {
		cfg.LogDir = filepath.Clean(cfg.LogDir)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string, flags *pflag.FlagSet) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %s: unknown key %q", path, undecoded[0].String())
	}

	setBool := func(name string, dst *bool, v *bool) {
		if v != nil && !flags.Changed(name) {
			*dst = *v
		}
	}
	setStrings := func(name string, dst *[]string, v []string) {
		if len(v) > 0 && !flags.Changed(name) {
			*dst = v
		}
	}
	setString := func(name string, dst *string, v string) {
		if v != "" && !flags.Changed(name) {
			*dst = v
		}
	}

	setBool("recursive", &cfg.Recursive, fc.Recursive)
	setStrings("pattern", &cfg.Patterns, fc.Patterns)
	setStrings("include-header", &cfg.IncludeHeader, fc.IncludeHeader)
	setStrings("include-body", &cfg.IncludeBody, fc.IncludeBody)
	setStrings("exclude-header", &cfg.ExcludeHeader, fc.ExcludeHeader)
	setStrings("exclude-body", &cfg.ExcludeBody, fc.ExcludeBody)
	setBool("skip-duplicates", &cfg.SkipDuplicates, fc.SkipDuplicates)
	setBool("verify", &cfg.Verify, fc.Verify)
	setBool("no-progress", &cfg.NoProgress, fc.NoProgress)
	setString("log-level", &cfg.LogLevel, fc.LogLevel)
	setString("log-dir", &cfg.LogDir, fc.LogDir)
	return nil
}

func validateConfig(cfg Config) error {
	if cfg.InputDir == "" {
		return fmt.Errorf("input folder is required")
	}
	if cfg.OutputPath == "" {
		return fmt.Errorf("output file is required")
	}
	includeActive := len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return ErrFilterModeConflict
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}
