// Package index provides the on-disk SQLite store that holds decoded
// messages and their full-text index. An index lives in a sibling directory
// of the mailbox path, named "<mailbox>.<suffix>".
package index

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	// DefaultSuffix is appended to the mailbox path to form the index
	// directory name.
	DefaultSuffix = "mboxidx"

	// DBFileName is the SQLite database inside the index directory.
	DBFileName = "index.db"
)

// ErrIndexMissing is returned when the index directory or its database does
// not exist.
var ErrIndexMissing = errors.New("index not found")

// Schema holds documents plus an external-content FTS5 table over the
// searchable fields. FTS rows are maintained manually alongside each insert.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          INTEGER PRIMARY KEY,
	doc_key     TEXT NOT NULL UNIQUE,
	mbox_file   TEXT NOT NULL,
	message_id  TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL DEFAULT '',
	sender      TEXT NOT NULL DEFAULT '',
	recipients  TEXT NOT NULL DEFAULT '',
	date_raw    TEXT NOT NULL DEFAULT '',
	date_unix   INTEGER,
	body        TEXT NOT NULL DEFAULT '',
	labels_csv  TEXT NOT NULL DEFAULT '',
	labels_norm TEXT NOT NULL DEFAULT '',
	byte_start  INTEGER NOT NULL,
	byte_end    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_mbox_file ON documents(mbox_file);
CREATE INDEX IF NOT EXISTS idx_documents_message_id ON documents(message_id);
CREATE INDEX IF NOT EXISTS idx_documents_date_unix ON documents(date_unix);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
	subject, body, sender, recipients,
	content='documents', content_rowid='id',
	tokenize='porter unicode61'
);
`

// Document is a row in the documents table.
type Document struct {
	DocKey     string
	MboxFile   string
	MessageID  string
	Subject    string
	Sender     string
	Recipients string
	DateRaw    string
	DateUnix   *int64
	Body       string
	LabelsCSV  string
	LabelsNorm string
	ByteStart  int64
	ByteEnd    int64
}

// Store wraps the index database.
type Store struct {
	conn *sql.DB
	dir  string
}

// DirFor returns the index directory for a mailbox path.
func DirFor(mboxPath, suffix string) string {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return mboxPath + "." + suffix
}

// Create builds a fresh index directory, removing any previous index.
func Create(dir string) (*Store, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("remove old index %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory %s: %w", dir, err)
	}
	return open(dir, true)
}

// Open opens an existing index directory.
func Open(dir string) (*Store, error) {
	if _, err := os.Stat(filepath.Join(dir, DBFileName)); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrIndexMissing, dir)
		}
		return nil, fmt.Errorf("stat index %s: %w", dir, err)
	}
	return open(dir, false)
}

func open(dir string, initSchema bool) (*Store, error) {
	dbPath := filepath.Join(dir, DBFileName)
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if initSchema {
		if _, err := conn.Exec(Schema); err != nil {
			conn.Close()
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
	}
	return &Store{conn: conn, dir: dir}, nil
}

// DB exposes the underlying connection for read queries.
func (s *Store) DB() *sql.DB {
	return s.conn
}

// Dir returns the index directory.
func (s *Store) Dir() string {
	return s.dir
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Writer batches document inserts into a single transaction.
type Writer struct {
	tx     *sql.Tx
	insDoc *sql.Stmt
	insFTS *sql.Stmt
	count  int
	done   bool
}

// NewWriter begins the insert transaction.
func (s *Store) NewWriter() (*Writer, error) {
	tx, err := s.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	insDoc, err := tx.Prepare(`INSERT INTO documents
		(doc_key, mbox_file, message_id, subject, sender, recipients,
		 date_raw, date_unix, body, labels_csv, labels_norm, byte_start, byte_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("prepare document insert: %w", err)
	}
	insFTS, err := tx.Prepare(`INSERT INTO documents_fts
		(rowid, subject, body, sender, recipients) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("prepare fts insert: %w", err)
	}
	return &Writer{tx: tx, insDoc: insDoc, insFTS: insFTS}, nil
}

// Add inserts one document and its full-text row.
func (w *Writer) Add(doc Document) error {
	res, err := w.insDoc.Exec(
		doc.DocKey, doc.MboxFile, doc.MessageID, doc.Subject, doc.Sender,
		doc.Recipients, doc.DateRaw, doc.DateUnix, doc.Body,
		doc.LabelsCSV, doc.LabelsNorm, doc.ByteStart, doc.ByteEnd)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.DocKey, err)
	}
	rowid, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("document rowid %s: %w", doc.DocKey, err)
	}
	if _, err := w.insFTS.Exec(rowid, doc.Subject, doc.Body, doc.Sender, doc.Recipients); err != nil {
		return fmt.Errorf("insert fts row %s: %w", doc.DocKey, err)
	}
	w.count++
	return nil
}

// Count returns the number of documents added so far.
func (w *Writer) Count() int {
	return w.count
}

// Commit finishes the transaction. Safe to call once.
func (w *Writer) Commit() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("commit index: %w", err)
	}
	return nil
}
