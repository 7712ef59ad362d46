// Package cmd wires the CLI subcommands together.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-search/config"
	"github.com/dhcgn/mbox-search/index"
)

var (
	cfg        config.Config
	logger     *slog.Logger
	logCleanup = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "mbox-search",
	Short: "Index and search mbox mail archives",
	Long: `mbox-search builds a full-text index next to an mbox archive and runs
fielded boolean queries against it, including label filters, date ranges
and byte-exact export of the original raw messages.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(cmd)
		if err != nil {
			return err
		}
		logger, logCleanup, err = setupLogger(cfg)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logCleanup()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	config.RegisterFlags(rootCmd)
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("mbox-search-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = file.Close

		writer := io.MultiWriter(os.Stderr, file)
		return slog.New(slog.NewTextHandler(writer, opts)), cleanup, nil
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts)), cleanup, nil
}

// indexDirFromArgs resolves the index directory for an already built index:
// the argument either is the index directory itself or the mailbox file it
// sits next to.
func indexDirFromArgs(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path
	}
	return index.DirFor(path, cfg.IndexSuffix)
}
