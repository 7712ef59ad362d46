package stats

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeProgress EventType = "progress"
	EventTypeIndexed  EventType = "indexed"
	EventTypeSkipped  EventType = "skipped"
	EventTypeWarning  EventType = "warning"
)

// Event is emitted by the indexer while it works through the mailbox files.
// Progress events carry a percentage per file; the final event uses the file
// name "done" with Percent 100.
type Event struct {
	Type      EventType
	File      string
	Percent   int
	Processed int
	Text      string
	Err       error
}

type Summary struct {
	Files       int
	Messages    int
	Skipped     int
	Warnings    int
	LastWarning error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"files", s.Files,
		"messages", s.Messages,
		"skipped", s.Skipped,
		"warnings", s.Warnings,
	}
	if s.LastWarning != nil {
		attrs = append(attrs, "lastWarning", s.LastWarning.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	files   map[string]bool
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{files: make(map[string]bool)}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.Apply(evt)
		}
	}
}

func (c *Collector) Apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeIndexed:
		c.summary.Messages++
		c.trackFile(evt.File)
	case EventTypeSkipped:
		c.summary.Skipped++
		c.trackFile(evt.File)
	case EventTypeWarning:
		c.summary.Warnings++
		if evt.Err != nil {
			c.summary.LastWarning = evt.Err
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

func (c *Collector) trackFile(file string) {
	if file == "" || file == "done" || c.files[file] {
		return
	}
	c.files[file] = true
	c.summary.Files++
}

// PrettyPrintTop prints the top N most frequent items in a map.
func PrettyPrintTop(m map[string]int, limit int) {
	type pair struct {
		Key   string
		Value int
	}

	var pairs []pair
	for k, v := range m {
		pairs = append(pairs, pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Value > pairs[j].Value
	})

	for i := 0; i < limit && i < len(pairs); i++ {
		fmt.Printf("%d. %s (%d)\n", i+1, pairs[i].Key, pairs[i].Value)
	}
}
