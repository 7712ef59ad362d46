package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-search/config"
	"github.com/dhcgn/mbox-search/filter"
	"github.com/dhcgn/mbox-search/mbox"
	"github.com/dhcgn/mbox-search/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats <mbox-file>",
	Short: "Analyse an mbox file and show header statistics",
	Long: `Reads the mailbox file once and tallies the most frequent values of the
interesting headers, including the label header. Useful for sizing up an
archive and for tuning filter patterns before building an index.`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringP("output", "o", "", "Directory for CSV reports (empty skips reports)")
	statsCmd.Flags().IntP("top", "t", 10, "Number of top items to display per header")
	config.RegisterFilterFlags(statsCmd)
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	mboxPath := args[0]

	reportDir, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	topN, err := cmd.Flags().GetInt("top")
	if err != nil {
		return err
	}
	filterOpts, err := config.LoadFilterOptions(cmd)
	if err != nil {
		return err
	}
	f, err := filter.New(filterOpts)
	if err != nil {
		return fmt.Errorf("create filter: %w", err)
	}

	headersToTrack := []string{"From", "To", "Subject", cfg.LabelHeader}
	counter := make(map[string]map[string]int)
	for _, h := range headersToTrack {
		counter[h] = make(map[string]int)
	}

	fmt.Println("Analyzing mbox file:", mboxPath)

	messageCount := 0
	skippedCount := 0
	err = mbox.Read(mboxPath, func(m *mbox.MboxMessage) error {
		if !f.Allows([]byte(formatHeaders(m.Headers)), m.Body) {
			skippedCount++
			return nil
		}
		messageCount++
		for _, headerName := range headersToTrack {
			if value := m.Headers.Get(headerName); value != "" {
				counter[headerName][value]++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error reading mbox file: %w", err)
	}

	totalMessages := messageCount + skippedCount
	var filterPercent float64
	if totalMessages > 0 {
		filterPercent = float64(skippedCount) / float64(totalMessages) * 100
	}
	fmt.Printf("Processed %d messages (skipped %d by filters, %.2f%%)\n\n", messageCount, skippedCount, filterPercent)

	if filterOpts.Active() {
		fmt.Println("Filter hits:")
		printFilterHits(f.Hits())
		fmt.Println()
	}

	for _, header := range headersToTrack {
		fmt.Printf("Top %d %s:\n", topN, header)
		stats.PrettyPrintTop(counter[header], topN)
		fmt.Println()
	}

	if reportDir != "" {
		if err := saveCSVReports(counter, headersToTrack, reportDir, 1000); err != nil {
			return fmt.Errorf("error saving CSV reports: %w", err)
		}
		fmt.Printf("Reports saved to directory: %s\n", reportDir)
	}
	return nil
}

func saveCSVReports(counter map[string]map[string]int, headers []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, header := range headers {
		counts := counter[header]

		filename := fmt.Sprintf("report_%s.csv", normalizeHeaderName(header))
		filePath := filepath.Join(dir, filename)

		file, err := os.Create(filePath)
		if err != nil {
			return err
		}

		writer := csv.NewWriter(file)
		if err := writer.Write([]string{"Value", "Count"}); err != nil {
			file.Close()
			return err
		}

		type pair struct {
			Key   string
			Value int
		}
		var pairs []pair
		for k, v := range counts {
			pairs = append(pairs, pair{k, v})
		}
		sort.Slice(pairs, func(i, j int) bool {
			return pairs[i].Value > pairs[j].Value
		})

		for i := 0; i < limit && i < len(pairs); i++ {
			record := []string{
				pairs[i].Key,
				strconv.Itoa(pairs[i].Value),
			}
			if err := writer.Write(record); err != nil {
				file.Close()
				return err
			}
		}

		writer.Flush()
		file.Close()

		if err := writer.Error(); err != nil {
			return err
		}
	}

	return nil
}

func normalizeHeaderName(header string) string {
	name := strings.ToLower(header)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}

func formatHeaders(headers map[string][]string) string {
	var sb strings.Builder
	for key, values := range headers {
		for _, value := range values {
			sb.WriteString(key)
			sb.WriteString(": ")
			sb.WriteString(value)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func printFilterHits(hits map[string]int) {
	type pair struct {
		Pattern string
		Count   int
	}
	var pairs []pair
	for pattern, count := range hits {
		pairs = append(pairs, pair{pattern, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Count != pairs[j].Count {
			return pairs[i].Count > pairs[j].Count
		}
		return pairs[i].Pattern < pairs[j].Pattern
	})
	for _, p := range pairs {
		fmt.Printf("  %s: %d hits\n", p.Pattern, p.Count)
	}
}
