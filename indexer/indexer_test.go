package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mbox-search/decoder"
	"github.com/dhcgn/mbox-search/filter"
	"github.com/dhcgn/mbox-search/index"
	"github.com/dhcgn/mbox-search/labels"
	"github.com/dhcgn/mbox-search/model"
	"github.com/dhcgn/mbox-search/query"
	"github.com/dhcgn/mbox-search/stats"
)

func message(from, subject, label, body string) string {
	msg := "From " + from + " Thu Jan  1 00:00:00 2024\n" +
		"From: " + from + "\n" +
		"Subject: " + subject + "\n"
	if label != "" {
		msg += "X-Gmail-Labels: " + label + "\n"
	}
	return msg + "Date: Thu, 15 Feb 2024 10:00:00 +0000\n\n" + body + "\n\n"
}

func writeArchive(t *testing.T, name string, msgs ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	var content string
	for _, m := range msgs {
		content += m
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runIndexer(t *testing.T, paths []string, opts Options) []stats.Event {
	t.Helper()
	ix, err := New(paths, opts, nil)
	require.NoError(t, err)
	require.NoError(t, ix.Start(context.Background()))

	var events []stats.Event
	for evt := range ix.Events() {
		events = append(events, evt)
	}
	require.NoError(t, ix.Wait())
	return events
}

func TestRun_IndexesAllMessages(t *testing.T) {
	archive := writeArchive(t, "mail.mbox",
		message("alice@example.com", "First", "Work", "hello world"),
		message("bob@example.com", "Second", "Work,Personal", "quarterly numbers"),
		message("carol@example.com", "Third", "", "no labels here"),
	)
	dir := index.DirFor(archive, "")

	events := runIndexer(t, []string{archive}, Options{IndexDir: dir})

	collector := stats.NewCollector()
	for _, evt := range events {
		collector.Apply(evt)
	}
	summary := collector.Snapshot()
	assert.Equal(t, 3, summary.Messages)
	assert.Equal(t, 1, summary.Files)
	assert.Equal(t, 0, summary.Warnings)

	engine, err := query.Open(dir, nil)
	require.NoError(t, err)
	defer engine.Close()

	results, err := engine.Search("quarterly", 10, nil, query.Filters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Second", results[0].Subject)

	counts, err := labels.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Work": 2, "Personal": 1}, counts)
}

func TestRun_DistinctDocKeys(t *testing.T) {
	archive := writeArchive(t, "mail.mbox",
		message("a@example.com", "One", "", "x"),
		message("a@example.com", "One", "", "x"),
	)
	dir := index.DirFor(archive, "")

	seen := map[string]bool{}
	runIndexer(t, []string{archive}, Options{
		IndexDir: dir,
		OnMessage: func(rec model.RawMessageRecord, _ model.DecodedMessage) {
			seen[rec.DocKey()] = true
		},
	})
	assert.Len(t, seen, 2)
}

func TestRun_ProgressEventsEndAtHundred(t *testing.T) {
	archive := writeArchive(t, "mail.mbox",
		message("a@example.com", "One", "", "x"),
		message("b@example.com", "Two", "", "y"),
	)
	events := runIndexer(t, []string{archive}, Options{IndexDir: index.DirFor(archive, "")})

	last := -1
	final := stats.Event{}
	for _, evt := range events {
		if evt.Type != stats.EventTypeProgress {
			continue
		}
		if evt.File == filepath.Base(archive) {
			assert.GreaterOrEqual(t, evt.Percent, last, "progress must not go backwards")
			last = evt.Percent
		}
		final = evt
	}
	assert.Equal(t, "done", final.File)
	assert.Equal(t, 100, final.Percent)
	assert.Equal(t, 2, final.Processed)
}

func TestRun_MissingFileWarnsAndContinues(t *testing.T) {
	archive := writeArchive(t, "mail.mbox",
		message("a@example.com", "One", "", "x"),
	)
	missing := filepath.Join(filepath.Dir(archive), "gone.mbox")
	dir := filepath.Join(t.TempDir(), "out.mboxidx")

	events := runIndexer(t, []string{missing, archive}, Options{IndexDir: dir})

	collector := stats.NewCollector()
	for _, evt := range events {
		collector.Apply(evt)
	}
	summary := collector.Snapshot()
	assert.Equal(t, 1, summary.Warnings)
	assert.Equal(t, 1, summary.Messages)
}

func TestRun_UnreadableFileWarnsAndContinues(t *testing.T) {
	// A directory passes the stat check but fails when scanned; the run
	// must report it and still index the remaining files.
	bad := filepath.Join(t.TempDir(), "bad.mbox")
	require.NoError(t, os.Mkdir(bad, 0o755))
	archive := writeArchive(t, "mail.mbox",
		message("a@example.com", "One", "", "x"),
	)
	dir := filepath.Join(t.TempDir(), "out.mboxidx")

	events := runIndexer(t, []string{bad, archive}, Options{IndexDir: dir})

	collector := stats.NewCollector()
	for _, evt := range events {
		collector.Apply(evt)
	}
	summary := collector.Snapshot()
	assert.Equal(t, 1, summary.Warnings)
	assert.Equal(t, 1, summary.Messages)
	require.Error(t, summary.LastWarning)

	engine, err := query.Open(dir, nil)
	require.NoError(t, err)
	defer engine.Close()

	results, err := engine.Search("one", 10, nil, query.Filters{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRun_FilterSkips(t *testing.T) {
	archive := writeArchive(t, "mail.mbox",
		message("a@example.com", "keep me", "", "x"),
		message("spammer@example.com", "lottery win", "", "y"),
	)
	dir := index.DirFor(archive, "")

	f, err := filter.New(filter.Options{ExcludeHeader: []string{"lottery"}})
	require.NoError(t, err)

	events := runIndexer(t, []string{archive}, Options{IndexDir: dir, Filter: f})

	collector := stats.NewCollector()
	for _, evt := range events {
		collector.Apply(evt)
	}
	summary := collector.Snapshot()
	assert.Equal(t, 1, summary.Messages)
	assert.Equal(t, 1, summary.Skipped)
}

func TestRun_RebuildReplacesIndex(t *testing.T) {
	archive := writeArchive(t, "mail.mbox",
		message("a@example.com", "One", "Work", "x"),
	)
	dir := index.DirFor(archive, "")

	runIndexer(t, []string{archive}, Options{IndexDir: dir})
	first, err := labels.Load(dir)
	require.NoError(t, err)

	runIndexer(t, []string{archive}, Options{IndexDir: dir})
	second, err := labels.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	engine, err := query.Open(dir, nil)
	require.NoError(t, err)
	defer engine.Close()

	results, err := engine.Search("one", 10, nil, query.Filters{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRun_ManifestWritten(t *testing.T) {
	archive := writeArchive(t, "mail.mbox",
		message("a@example.com", "One", "", "x"),
		message("b@example.com", "Two", "", "y"),
	)
	dir := index.DirFor(archive, "")

	runIndexer(t, []string{archive}, Options{IndexDir: dir})

	m, err := index.LoadManifest(dir)
	require.NoError(t, err)
	require.NotNil(t, m)
	src, ok := m.Source("mail.mbox")
	require.True(t, ok)
	assert.Equal(t, 2, src.Messages)

	info, err := os.Stat(archive)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), src.Size)
}

func TestRun_ExportRoundTrip(t *testing.T) {
	archive := writeArchive(t, "mail.mbox",
		message("a@example.com", "First", "", "alpha body"),
		message("b@example.com", "Second", "", "beta body"),
	)
	dir := index.DirFor(archive, "")

	runIndexer(t, []string{archive}, Options{IndexDir: dir})

	engine, err := query.Open(dir, nil)
	require.NoError(t, err)
	defer engine.Close()

	rec, err := engine.Get("mail.mbox:1")
	require.NoError(t, err)

	raw, err := engine.ExtractMessage(archive, *rec)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject: Second")
	assert.Contains(t, string(raw), "beta body")
	assert.NotContains(t, string(raw), "alpha body")

	// The extracted bytes re-decode to what was indexed.
	redecoded := decoder.New("", nil).Decode(raw)
	assert.Equal(t, rec.Subject, redecoded.Subject)
	assert.Equal(t, rec.Sender, redecoded.Sender)
}

func TestRun_Cancellation(t *testing.T) {
	var msgs []string
	for i := 0; i < 50; i++ {
		msgs = append(msgs, message("a@example.com", fmt.Sprintf("Msg %d", i), "", "body"))
	}
	archive := writeArchive(t, "mail.mbox", msgs...)
	dir := index.DirFor(archive, "")

	ctx, cancel := context.WithCancel(context.Background())
	ix, err := New([]string{archive}, Options{
		IndexDir: dir,
		OnMessage: func(model.RawMessageRecord, model.DecodedMessage) {
			cancel()
		},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, ix.Start(ctx))

	for range ix.Events() {
	}
	assert.ErrorIs(t, ix.Wait(), context.Canceled)
}

func TestStart_OnlyOnce(t *testing.T) {
	archive := writeArchive(t, "mail.mbox",
		message("a@example.com", "One", "", "x"),
	)
	release := make(chan struct{})
	ix, err := New([]string{archive}, Options{
		IndexDir: index.DirFor(archive, ""),
		OnMessage: func(model.RawMessageRecord, model.DecodedMessage) {
			<-release
		},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, ix.Start(context.Background()))

	assert.ErrorIs(t, ix.Start(context.Background()), ErrRunInProgress)
	close(release)

	for range ix.Events() {
	}
	require.NoError(t, ix.Wait())
}
