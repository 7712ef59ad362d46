// Package indexer drives a full index build: it scans the mailbox files,
// decodes every message, aggregates labels and writes the documents into a
// fresh index directory, reporting progress through an event channel.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dhcgn/mbox-search/decoder"
	"github.com/dhcgn/mbox-search/filter"
	"github.com/dhcgn/mbox-search/index"
	"github.com/dhcgn/mbox-search/labels"
	"github.com/dhcgn/mbox-search/mbox"
	"github.com/dhcgn/mbox-search/model"
	"github.com/dhcgn/mbox-search/stats"
)

var ErrRunInProgress = errors.New("index run already in progress")

// Options configures a run.
type Options struct {
	// IndexDir is the directory the index is written to. Required.
	IndexDir string
	// LabelHeader names the header carrying label lists. Empty uses the
	// decoder default.
	LabelHeader string
	// Filter, when set, is applied to raw messages before decoding.
	Filter *filter.Filter
	// OnMessage, when set, observes every decoded message that is indexed.
	OnMessage func(model.RawMessageRecord, model.DecodedMessage)
}

type Indexer struct {
	paths  []string
	opts   Options
	logger *slog.Logger

	events  chan stats.Event
	running atomic.Bool

	wg  sync.WaitGroup
	err error
}

func New(paths []string, opts Options, logger *slog.Logger) (*Indexer, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no mailbox files given")
	}
	if opts.IndexDir == "" {
		return nil, fmt.Errorf("index directory is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		paths:  paths,
		opts:   opts,
		logger: logger,
		events: make(chan stats.Event, 128),
	}, nil
}

// Events returns the run's event stream. The channel closes when the run
// finishes.
func (ix *Indexer) Events() <-chan stats.Event {
	return ix.events
}

func (ix *Indexer) Running() bool {
	return ix.running.Load()
}

// Start launches the run in the background. Only one run per Indexer.
func (ix *Indexer) Start(ctx context.Context) error {
	if !ix.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		defer close(ix.events)
		defer ix.running.Store(false)
		ix.err = ix.run(ctx)
	}()
	return nil
}

// Wait blocks until the run finishes and returns its error.
func (ix *Indexer) Wait() error {
	ix.wg.Wait()
	return ix.err
}

func (ix *Indexer) emit(ctx context.Context, evt stats.Event) {
	select {
	case <-ctx.Done():
	case ix.events <- evt:
	}
}

func (ix *Indexer) run(ctx context.Context) error {
	started := time.Now()
	ix.emit(ctx, stats.Event{Type: stats.EventTypeStatus, Text: "Preparing index directory…"})

	store, err := index.Create(ix.opts.IndexDir)
	if err != nil {
		return err
	}
	defer store.Close()

	writer, err := store.NewWriter()
	if err != nil {
		return err
	}

	agg := labels.NewAggregator()
	dec := decoder.New(ix.opts.LabelHeader, ix.logger)
	manifest := &index.Manifest{CreatedAt: time.Now().UTC()}

	total := 0
	for _, path := range ix.paths {
		base := filepath.Base(path)
		info, err := os.Stat(path)
		if err != nil {
			statErr := fmt.Errorf("mailbox file %s: %w", base, err)
			ix.logger.Warn("skipping mailbox file", "file", base, "err", err)
			ix.emit(ctx, stats.Event{Type: stats.EventTypeWarning, File: base, Err: statErr})
			continue
		}
		ix.emit(ctx, stats.Event{Type: stats.EventTypeStatus, File: base, Text: "Indexing " + base + "…"})

		processed, err := ix.indexFile(ctx, path, info.Size(), dec, agg, writer)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// Keep what was written so far.
				if commitErr := writer.Commit(); commitErr != nil {
					ix.logger.Warn("partial commit failed", "err", commitErr)
				}
				return err
			}
			scanErr := fmt.Errorf("index %s: %w", base, err)
			ix.logger.Warn("mailbox file failed, continuing", "file", base, "err", err)
			ix.emit(ctx, stats.Event{Type: stats.EventTypeWarning, File: base, Err: scanErr})
			continue
		}
		total += processed
		ix.emit(ctx, stats.Event{Type: stats.EventTypeProgress, File: base, Percent: 100, Processed: processed})
		manifest.Sources = append(manifest.Sources, index.SourceInfo{
			File:     base,
			Size:     info.Size(),
			ModTime:  info.ModTime().UTC(),
			Messages: processed,
		})
	}

	ix.emit(ctx, stats.Event{Type: stats.EventTypeStatus, Text: "Finalising index…"})
	if err := writer.Commit(); err != nil {
		return err
	}
	if err := agg.Save(ix.opts.IndexDir); err != nil {
		return err
	}
	if err := manifest.Save(ix.opts.IndexDir); err != nil {
		return err
	}

	ix.emit(ctx, stats.Event{Type: stats.EventTypeProgress, File: "done", Percent: 100, Processed: total})
	ix.emit(ctx, stats.Event{Type: stats.EventTypeStatus, Text: "All mailbox files indexed."})
	ix.logger.Info("index build finished",
		"dir", ix.opts.IndexDir, "files", len(manifest.Sources), "messages", total,
		"duration", time.Since(started).Round(time.Millisecond))
	return nil
}

func (ix *Indexer) indexFile(ctx context.Context, path string, size int64, dec *decoder.Decoder, agg *labels.Aggregator, writer *index.Writer) (int, error) {
	base := filepath.Base(path)
	processed := 0
	lastPercent := -1

	err := mbox.Scan(ctx, path, func(rec model.RawMessageRecord, raw []byte) error {
		if ix.opts.Filter != nil {
			header, body := filter.SplitRawMessage(raw)
			if !ix.opts.Filter.Allows(header, body) {
				ix.emit(ctx, stats.Event{Type: stats.EventTypeSkipped, File: base})
				return nil
			}
		}

		msg := dec.Decode(raw)
		agg.Add(msg.Labels)
		if ix.opts.OnMessage != nil {
			ix.opts.OnMessage(rec, msg)
		}

		if err := writer.Add(buildDocument(rec, msg)); err != nil {
			return err
		}
		processed++
		ix.emit(ctx, stats.Event{Type: stats.EventTypeIndexed, File: base})

		if percent := progressPercent(rec.ByteStart, size); percent != lastPercent {
			lastPercent = percent
			ix.emit(ctx, stats.Event{
				Type: stats.EventTypeProgress, File: base,
				Percent: percent, Processed: processed,
			})
		}
		return nil
	})
	if err != nil {
		return processed, err
	}
	return processed, nil
}

func buildDocument(rec model.RawMessageRecord, msg model.DecodedMessage) index.Document {
	doc := index.Document{
		DocKey:     rec.DocKey(),
		MboxFile:   filepath.Base(rec.SourceFile),
		MessageID:  msg.MessageID,
		Subject:    msg.Subject,
		Sender:     msg.Sender,
		Recipients: msg.Recipients,
		DateRaw:    msg.DateRaw,
		Body:       msg.Body,
		ByteStart:  rec.ByteStart,
		ByteEnd:    rec.ByteEnd,
	}
	if msg.Date != nil {
		unix := msg.Date.Unix()
		doc.DateUnix = &unix
	}
	if len(msg.Labels) > 0 {
		doc.LabelsCSV = strings.Join(msg.Labels, ",")
		doc.LabelsNorm = strings.ToLower(doc.LabelsCSV)
	}
	return doc
}

// progressPercent approximates completion from the message's start offset.
func progressPercent(offset, size int64) int {
	if size <= 0 {
		return 100
	}
	percent := int(offset * 100 / size)
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return percent
}
