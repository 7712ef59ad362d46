package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-search/display"
	"github.com/dhcgn/mbox-search/model"
	"github.com/dhcgn/mbox-search/query"
)

var searchCmd = &cobra.Command{
	Use:   "search <mbox-file|index-dir> <query>",
	Short: "Run a query against an index",
	Long: `Runs a query against a previously built index. Bare terms match any of
subject, body, sender and recipients; "field:value" restricts a term,
double quotes form phrases, a trailing '*' is a prefix query, and
uppercase AND / OR / NOT (or a leading '-') combine terms. Date ranges
use date:[2021-01-01 TO 2021-06-30].`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Int("limit", 50, "Maximum number of results")
	searchCmd.Flags().StringSlice("fields", nil, "Default fields for bare terms (subject, body, sender, recipients)")
	searchCmd.Flags().StringSlice("label", nil, "Require these labels")
	searchCmd.Flags().StringSlice("not-label", nil, "Reject messages carrying these labels")
	searchCmd.Flags().String("highlight", "body", "Field to extract highlight fragments from, empty disables")
	searchCmd.Flags().Int("fragments", 2, "Highlight fragments per result")
	searchCmd.Flags().Bool("json", false, "Emit results as JSON")
	rootCmd.AddCommand(searchCmd)
}

// jsonResult is the machine-readable form of one hit.
type jsonResult struct {
	DocKey     string     `json:"doc_key"`
	MboxFile   string     `json:"mbox_file"`
	MessageID  string     `json:"message_id,omitempty"`
	Subject    string     `json:"subject"`
	Sender     string     `json:"sender"`
	Recipients string     `json:"recipients"`
	Date       *time.Time `json:"date,omitempty"`
	Labels     []string   `json:"labels,omitempty"`
	ByteStart  int64      `json:"byte_start"`
	ByteEnd    int64      `json:"byte_end"`
	Score      float64    `json:"score"`
	Fragments  []string   `json:"fragments,omitempty"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	fields, err := flags.GetStringSlice("fields")
	if err != nil {
		return err
	}
	includeLabels, err := flags.GetStringSlice("label")
	if err != nil {
		return err
	}
	excludeLabels, err := flags.GetStringSlice("not-label")
	if err != nil {
		return err
	}
	highlightField, err := flags.GetString("highlight")
	if err != nil {
		return err
	}
	fragments, err := flags.GetInt("fragments")
	if err != nil {
		return err
	}
	asJSON, err := flags.GetBool("json")
	if err != nil {
		return err
	}

	engine, err := query.Open(indexDirFromArgs(args[0]), logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	q := strings.Join(args[1:], " ")
	results, err := engine.Search(q, limit, fields, query.Filters{
		IncludeLabels: includeLabels,
		ExcludeLabels: excludeLabels,
	})
	if err != nil {
		return err
	}

	if asJSON {
		return printJSON(engine, results, q, highlightField, fragments)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	display.Header(fmt.Sprintf("%d result(s) for %q", len(results), q))
	for i, rec := range results {
		display.Result(i+1, rec)
		if highlightField != "" {
			frags, err := engine.Highlights(rec.DocKey, q, highlightField, fragments)
			if err == nil {
				display.Fragments(frags)
			}
		}
		fmt.Println()
	}
	return nil
}

func printJSON(engine *query.Engine, results []model.ResultRecord, q, highlightField string, fragments int) error {
	out := make([]jsonResult, 0, len(results))
	for _, rec := range results {
		jr := jsonResult{
			DocKey:     rec.DocKey,
			MboxFile:   rec.MboxFile,
			MessageID:  rec.MessageID,
			Subject:    rec.Subject,
			Sender:     rec.Sender,
			Recipients: rec.Recipients,
			Date:       rec.Date,
			Labels:     rec.Labels(),
			ByteStart:  rec.ByteStart,
			ByteEnd:    rec.ByteEnd,
			Score:      rec.Score,
		}
		if highlightField != "" {
			if frags, err := engine.Highlights(rec.DocKey, q, highlightField, fragments); err == nil {
				jr.Fragments = frags
			}
		}
		out = append(out, jr)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
