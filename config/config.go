package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-search/decoder"
	"github.com/dhcgn/mbox-search/filter"
	"github.com/dhcgn/mbox-search/index"
)

// Config captures the options shared by every subcommand.
type Config struct {
	LogLevel    string
	LogDir      string
	IndexSuffix string
	LabelHeader string
}

// RegisterFlags attaches the global flags to the root command.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (logs additionally go to stderr)")
	flags.String("index-suffix", index.DefaultSuffix, "Suffix of the index directory next to the mailbox file")
	flags.String("label-header", decoder.DefaultLabelHeader, "Header carrying comma-separated message labels")
}

// RegisterFilterFlags attaches the regex filter flags to commands that scan
// mailbox files.
func RegisterFilterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")
}

// LoadConfig converts the parsed Cobra flags into a Config struct with validation.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}
	indexSuffix, err := flags.GetString("index-suffix")
	if err != nil {
		return Config{}, err
	}
	labelHeader, err := flags.GetString("label-header")
	if err != nil {
		return Config{}, err
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	cfg := Config{
		LogLevel:    logLevel,
		LogDir:      logDir,
		IndexSuffix: indexSuffix,
		LabelHeader: labelHeader,
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFilterOptions reads the filter flags from a command.
func LoadFilterOptions(cmd *cobra.Command) (filter.Options, error) {
	flags := cmd.Flags()

	includeHeader, err := flags.GetStringArray("include-header")
	if err != nil {
		return filter.Options{}, err
	}
	includeBody, err := flags.GetStringArray("include-body")
	if err != nil {
		return filter.Options{}, err
	}
	excludeHeader, err := flags.GetStringArray("exclude-header")
	if err != nil {
		return filter.Options{}, err
	}
	excludeBody, err := flags.GetStringArray("exclude-body")
	if err != nil {
		return filter.Options{}, err
	}

	return filter.Options{
		IncludeHeader: includeHeader,
		IncludeBody:   includeBody,
		ExcludeHeader: excludeHeader,
		ExcludeBody:   excludeBody,
	}, nil
}

func validateConfig(cfg Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}
	if strings.TrimSpace(cfg.IndexSuffix) == "" {
		return fmt.Errorf("--index-suffix must not be empty")
	}
	if strings.ContainsAny(cfg.IndexSuffix, "/\\") {
		return fmt.Errorf("--index-suffix must not contain path separators")
	}
	if strings.TrimSpace(cfg.LabelHeader) == "" {
		return fmt.Errorf("--label-header must not be empty")
	}
	return nil
}
