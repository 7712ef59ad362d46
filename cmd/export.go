package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-search/display"
	"github.com/dhcgn/mbox-search/query"
)

var exportCmd = &cobra.Command{
	Use:   "export <mbox-file|index-dir> <doc-key>",
	Short: "Write the raw bytes of an indexed message to a file",
	Long: `Reads the message back out of the original mailbox file using the byte
extents recorded at index time. The export fails when the mailbox file
changed since the index was built.`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("out", "", "Output file (default: <doc-key>.eml)")
	exportCmd.Flags().String("mailbox-dir", "", "Directory holding the mailbox files (default: next to the index)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	out, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	mailboxDir, err := cmd.Flags().GetString("mailbox-dir")
	if err != nil {
		return err
	}

	indexDir := indexDirFromArgs(args[0])
	docKey := args[1]

	engine, err := query.Open(indexDir, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	rec, err := engine.Get(docKey)
	if err != nil {
		return err
	}

	if mailboxDir == "" {
		mailboxDir = filepath.Dir(indexDir)
	}
	raw, err := engine.ExtractMessage(filepath.Join(mailboxDir, rec.MboxFile), *rec)
	if err != nil {
		return err
	}

	if out == "" {
		out = strings.ReplaceAll(docKey, ":", "-") + ".eml"
	}
	if err := os.WriteFile(out, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	logger.Info("message exported", "docKey", docKey, "out", out, "bytes", len(raw))
	display.SuccessMsg("Wrote %d bytes to %s", len(raw), out)
	return nil
}
