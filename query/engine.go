package query

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dhcgn/mbox-search/index"
	"github.com/dhcgn/mbox-search/labels"
	"github.com/dhcgn/mbox-search/mbox"
	"github.com/dhcgn/mbox-search/model"
)

// ErrNotInIndex is returned when a document key has no entry.
var ErrNotInIndex = errors.New("document not in index")

// Filters narrow a search beyond the query string itself.
type Filters struct {
	// Exact maps field names (file, id, key) to required values.
	Exact map[string]string
	// IncludeLabels requires every listed label; ExcludeLabels rejects
	// documents carrying any of them.
	IncludeLabels []string
	ExcludeLabels []string
}

func (f Filters) empty() bool {
	return len(f.Exact) == 0 && len(f.IncludeLabels) == 0 && len(f.ExcludeLabels) == 0
}

// Engine runs searches against an opened index.
type Engine struct {
	store    *index.Store
	manifest *index.Manifest
	logger   *slog.Logger
}

// Open opens the index directory for querying.
func Open(dir string, logger *slog.Logger) (*Engine, error) {
	store, err := index.Open(dir)
	if err != nil {
		return nil, err
	}
	manifest, err := index.LoadManifest(dir)
	if err != nil {
		store.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, manifest: manifest, logger: logger}, nil
}

func (e *Engine) Close() error {
	return e.store.Close()
}

// Dir returns the index directory the engine reads from.
func (e *Engine) Dir() string {
	return e.store.Dir()
}

const resultColumns = `d.doc_key, d.mbox_file, d.message_id, d.subject, d.sender,
	d.recipients, d.date_raw, d.date_unix, d.body, d.labels_csv, d.byte_start, d.byte_end`

// Search parses and runs a query, returning up to limit results ordered by
// relevance. fields overrides the default fields for bare terms; a blank
// query with no filters returns no results.
func (e *Engine) Search(q string, limit int, fields []string, filters Filters) ([]model.ResultRecord, error) {
	root, err := Parse(q)
	if err != nil {
		return nil, err
	}
	if root == nil && filters.empty() {
		return []model.ResultRecord{}, nil
	}
	if limit <= 0 {
		limit = 50
	}

	var conds []string
	var args []any
	var ftsExprs []string
	if root != nil {
		compiled, err := compile(root, q, fields)
		if err != nil {
			return nil, err
		}
		conds = append(conds, compiled.cond)
		args = append(args, compiled.args...)
		ftsExprs = compiled.ftsExprs
	}
	filterCond, filterArgs, err := compileFilters(filters)
	if err != nil {
		return nil, err
	}
	conds = append(conds, filterCond...)
	args = append(args, filterArgs...)

	var sb strings.Builder
	sb.WriteString("SELECT " + resultColumns + ", ")
	rankArgs := make([]any, 0, 1)
	if len(ftsExprs) > 0 {
		sb.WriteString("COALESCE(f.rank, 0) FROM documents d ")
		sb.WriteString("LEFT JOIN (SELECT rowid, rank FROM documents_fts WHERE documents_fts MATCH ?) f ON f.rowid = d.id")
		rankArgs = append(rankArgs, strings.Join(ftsExprs, " OR "))
	} else {
		sb.WriteString("0 FROM documents d")
	}
	sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	if len(ftsExprs) > 0 {
		sb.WriteString(" ORDER BY COALESCE(f.rank, 0) ASC, d.id ASC")
	} else {
		sb.WriteString(" ORDER BY d.id ASC")
	}
	sb.WriteString(" LIMIT ?")

	queryArgs := append(rankArgs, args...)
	queryArgs = append(queryArgs, limit)

	rows, err := e.store.DB().Query(sb.String(), queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("run search: %w", err)
	}
	defer rows.Close()

	results := []model.ResultRecord{}
	for rows.Next() {
		rec, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	e.logger.Debug("search finished", "query", q, "results", len(results))
	return results, nil
}

// Get looks a single document up by its key.
func (e *Engine) Get(docKey string) (*model.ResultRecord, error) {
	row := e.store.DB().QueryRow(
		"SELECT "+resultColumns+", 0 FROM documents d WHERE d.doc_key = ?", docKey)
	rec, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotInIndex, docKey)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Labels returns the label names aggregated at index time, sorted
// case-insensitively.
func (e *Engine) Labels() ([]string, error) {
	counts, err := labels.Load(e.store.Dir())
	if err != nil {
		return nil, err
	}
	return labels.Sorted(counts), nil
}

// LabelCounts returns the per-label message counts written at index time.
func (e *Engine) LabelCounts() (map[string]int, error) {
	return labels.Load(e.store.Dir())
}

// ExtractMessage reads the raw message bytes for a result from its source
// mailbox file under mailboxDir, verifying against the manifest that the
// file has not changed since indexing.
func (e *Engine) ExtractMessage(mboxPath string, rec model.ResultRecord) ([]byte, error) {
	if e.manifest != nil {
		if src, ok := e.manifest.Source(rec.MboxFile); ok {
			info, err := os.Stat(mboxPath)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", mbox.ErrNotFound, mboxPath)
			}
			if info.Size() != src.Size {
				return nil, fmt.Errorf("%w: %s changed since indexing", mbox.ErrStaleExtents, rec.MboxFile)
			}
		}
	}
	return mbox.Extract(mboxPath, rec.ByteStart, rec.ByteEnd)
}

func compileFilters(filters Filters) ([]string, []any, error) {
	var conds []string
	var args []any
	for field, value := range filters.Exact {
		cond, a, err := (&compiler{}).term(termNode{field: strings.ToLower(field), value: value}, true)
		if err != nil {
			return nil, nil, fmt.Errorf("filter %s: %w", field, err)
		}
		conds = append(conds, cond)
		args = append(args, a...)
	}
	for _, label := range filters.IncludeLabels {
		cond, a, err := labelMatch(termNode{field: "labels", value: label})
		if err != nil {
			return nil, nil, err
		}
		conds = append(conds, cond)
		args = append(args, a...)
	}
	for _, label := range filters.ExcludeLabels {
		cond, a, err := labelMatch(termNode{field: "labels", value: label})
		if err != nil {
			return nil, nil, err
		}
		conds = append(conds, "NOT ("+cond+")")
		args = append(args, a...)
	}
	return conds, args, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (model.ResultRecord, error) {
	var rec model.ResultRecord
	var dateUnix sql.NullInt64
	err := row.Scan(&rec.DocKey, &rec.MboxFile, &rec.MessageID, &rec.Subject,
		&rec.Sender, &rec.Recipients, &rec.DateRaw, &dateUnix, &rec.Body,
		&rec.LabelsCSV, &rec.ByteStart, &rec.ByteEnd, &rec.Score)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan result: %w", err)
	}
	if dateUnix.Valid {
		t := time.Unix(dateUnix.Int64, 0).UTC()
		rec.Date = &t
	}
	return rec, nil
}
