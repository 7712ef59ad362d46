// Package labels aggregates per-label message counts over one indexing run
// and persists them next to the index so later sessions can rebuild label
// filter state without re-scanning the mailbox.
package labels

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileName is the aggregate side file written into the index directory.
const FileName = "aggregate_labels.json"

// Aggregator accumulates label counts for a single indexing run. Labels seen
// in multiple source files contribute one count per file occurrence; there is
// no cross-file deduplication.
type Aggregator struct {
	counts map[string]int
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{counts: make(map[string]int)}
}

// Add tallies every label of one message.
func (a *Aggregator) Add(labels []string) {
	for _, label := range labels {
		a.counts[label]++
	}
}

// Counts returns a copy of the accumulated mapping.
func (a *Aggregator) Counts() map[string]int {
	out := make(map[string]int, len(a.counts))
	for label, n := range a.counts {
		out[label] = n
	}
	return out
}

// Save writes the aggregate counts into dir. Nothing is written when no
// label was seen, matching the absent-file contract of Load.
func (a *Aggregator) Save(dir string) error {
	if len(a.counts) == 0 {
		return nil
	}
	data, err := json.MarshalIndent(a.counts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode aggregate labels: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write aggregate labels: %w", err)
	}
	return nil
}

// Load reads the aggregate counts from dir. A missing side file yields an
// empty mapping, not an error.
func Load(dir string) (map[string]int, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read aggregate labels: %w", err)
	}
	counts := make(map[string]int)
	if err := json.Unmarshal(data, &counts); err != nil {
		return nil, fmt.Errorf("parse aggregate labels: %w", err)
	}
	return counts, nil
}

// Sorted returns the labels of a counts mapping sorted case-insensitively,
// with a byte-order tiebreak for labels differing only in case.
func Sorted(counts map[string]int) []string {
	out := make([]string, 0, len(counts))
	for label := range counts {
		out = append(out, label)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := strings.ToLower(out[i]), strings.ToLower(out[j])
		if li != lj {
			return li < lj
		}
		return out[i] < out[j]
	})
	return out
}
