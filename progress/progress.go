package progress

import (
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/mbox-search/stats"
)

// Bar renders index-build progress. The percentage tracks the current
// mailbox file; status lines and warnings print above the bar.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	file    string
	mu      sync.Mutex
	enabled bool
	started time.Time
}

// New creates a progress bar when logLevel is "info"; other levels keep the
// terminal quiet and structured logging takes over.
func New(logLevel string) *Bar {
	bar := &Bar{
		enabled: logLevel == "info",
		started: time.Now(),
	}
	if bar.enabled {
		pb, _ := pterm.DefaultProgressbar.
			WithTotal(100).
			WithTitle("Indexing").
			Start()
		bar.pb = pb
	}
	return bar
}

// Update reacts to one indexer event.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeStatus:
		if evt.Text != "" {
			b.pb.UpdateTitle(evt.Text)
		}
	case stats.EventTypeProgress:
		if evt.File != "" && evt.File != b.file {
			b.file = evt.File
			b.pb.Current = evt.Percent
		} else if evt.Percent > b.pb.Current {
			b.pb.Current = evt.Percent
		}
		b.pb.UpdateTitle("Indexing " + b.file)
	case stats.EventTypeWarning:
		if evt.Err != nil {
			pterm.Warning.Printf("Warning: %v\n", evt.Err)
		}
	}
}

// Stop finalises the bar and prints the run summary.
func (b *Bar) Stop(summary stats.Summary) {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < 100 {
		b.pb.Current = 100
	}
	b.pb.Stop()

	pterm.Println()
	pterm.DefaultSection.Println("Index Summary")
	pterm.Info.Printf("Duration: %v\n", time.Since(b.started).Round(time.Millisecond))
	pterm.Info.Printf("Files: %d\n", summary.Files)
	pterm.Info.Printf("Messages indexed: %d\n", summary.Messages)
	pterm.Info.Printf("Skipped by filter: %d\n", summary.Skipped)
	pterm.Info.Printf("Warnings: %d\n", summary.Warnings)
	if summary.LastWarning != nil {
		pterm.Warning.Printf("Last warning: %v\n", summary.LastWarning)
	}
}
