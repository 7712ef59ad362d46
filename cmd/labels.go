package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-search/display"
	"github.com/dhcgn/mbox-search/query"
)

var labelsCmd = &cobra.Command{
	Use:   "labels <mbox-file|index-dir>",
	Short: "List the labels aggregated at index time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := query.Open(indexDirFromArgs(args[0]), logger)
		if err != nil {
			return err
		}
		defer engine.Close()

		sorted, err := engine.Labels()
		if err != nil {
			return err
		}
		if len(sorted) == 0 {
			fmt.Println("No labels in this archive.")
			return nil
		}
		counts, err := engine.LabelCounts()
		if err != nil {
			return err
		}
		display.Header(fmt.Sprintf("%d label(s)", len(sorted)))
		display.LabelCounts(sorted, counts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(labelsCmd)
}
