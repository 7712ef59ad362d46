package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-search/display"
	"github.com/dhcgn/mbox-search/query"
)

var replCmd = &cobra.Command{
	Use:   "repl <mbox-file|index-dir>",
	Short: "Interactively query an index",
	Long: `Opens the index and reads queries from stdin, one per line. Besides
queries the prompt accepts :labels, :limit N, :help and :quit.`,
	Args: cobra.ExactArgs(1),
	RunE: runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	engine, err := query.Open(indexDirFromArgs(args[0]), logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	limit := 20
	fmt.Printf("Searching %s. Type :help for commands.\n", engine.Dir())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ":") {
			if quit := replCommand(engine, line, &limit); quit {
				return nil
			}
			continue
		}

		results, err := engine.Search(line, limit, nil, query.Filters{})
		if err != nil {
			var syntaxErr *query.SyntaxError
			if errors.As(err, &syntaxErr) {
				display.ErrorMsg("%v", syntaxErr)
				continue
			}
			return err
		}
		if len(results) == 0 {
			fmt.Println("No results.")
			continue
		}
		for i, rec := range results {
			display.Result(i+1, rec)
			if frags, err := engine.Highlights(rec.DocKey, line, "body", 1); err == nil {
				display.Fragments(frags)
			}
		}
	}
}

// replCommand handles a colon command, returning true on :quit.
func replCommand(engine *query.Engine, line string, limit *int) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q", ":exit":
		return true
	case ":labels":
		sorted, err := engine.Labels()
		if err != nil {
			display.ErrorMsg("%v", err)
			return false
		}
		if len(sorted) == 0 {
			fmt.Println("No labels in this archive.")
			return false
		}
		counts, err := engine.LabelCounts()
		if err != nil {
			display.ErrorMsg("%v", err)
			return false
		}
		display.LabelCounts(sorted, counts)
	case ":limit":
		if len(fields) != 2 {
			fmt.Printf("Result limit is %d. Use :limit N to change it.\n", *limit)
			return false
		}
		var n int
		if _, err := fmt.Sscanf(fields[1], "%d", &n); err != nil || n <= 0 {
			display.ErrorMsg("limit must be a positive number")
			return false
		}
		*limit = n
	case ":help":
		fmt.Println("Enter a query, or one of:")
		fmt.Println("  :labels    list the labels in this archive")
		fmt.Println("  :limit N   change the result limit")
		fmt.Println("  :quit      leave the prompt")
	default:
		display.ErrorMsg("unknown command %s, try :help", fields[0])
	}
	return false
}
