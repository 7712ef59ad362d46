package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-search/config"
	"github.com/dhcgn/mbox-search/display"
	"github.com/dhcgn/mbox-search/filter"
	"github.com/dhcgn/mbox-search/index"
	"github.com/dhcgn/mbox-search/indexer"
	"github.com/dhcgn/mbox-search/progress"
	"github.com/dhcgn/mbox-search/stats"
)

var indexCmd = &cobra.Command{
	Use:   "index <mbox-file> [mbox-file...]",
	Short: "Build a full-text index for one or more mbox files",
	Long: `Builds a fresh index, replacing any previous one. With a single mailbox
file the index directory defaults to "<file>.<suffix>" next to it; with
several files, or to choose the location yourself, pass --out.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().String("out", "", "Index directory (default: <mbox-file>.<suffix>)")
	config.RegisterFilterFlags(indexCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	out, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	if out == "" {
		if len(args) > 1 {
			return fmt.Errorf("--out is required when indexing more than one mailbox file")
		}
		out = index.DirFor(args[0], cfg.IndexSuffix)
	}

	filterOpts, err := config.LoadFilterOptions(cmd)
	if err != nil {
		return err
	}
	var msgFilter *filter.Filter
	if filterOpts.Active() {
		msgFilter, err = filter.New(filterOpts)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ix, err := indexer.New(args, indexer.Options{
		IndexDir:    out,
		LabelHeader: cfg.LabelHeader,
		Filter:      msgFilter,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("building index", "out", out, "files", len(args))
	if err := ix.Start(ctx); err != nil {
		return err
	}

	bar := progress.New(cfg.LogLevel)
	collector := stats.NewCollector()
	collectorEvents := make(chan stats.Event, 16)
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		collector.Run(context.Background(), collectorEvents)
	}()
	for evt := range ix.Events() {
		bar.Update(evt)
		collectorEvents <- evt
	}
	close(collectorEvents)
	<-collectorDone
	summary := collector.Snapshot()
	bar.Stop(summary)

	if err := ix.Wait(); err != nil {
		return err
	}
	logger.Info("index ready", summary.LogAttrs()...)
	display.SuccessMsg("Indexed %d messages into %s", summary.Messages, out)
	return nil
}
