package model

import (
	"path/filepath"
	"strings"
	"time"
)

// RawMessageRecord locates a single message inside an mbox file by its exact
// byte extents. ByteStart points at the first byte of the "From " separator
// line, ByteEnd at the first byte past the message.
type RawMessageRecord struct {
	SourceFile  string
	ByteStart   int64
	ByteEnd     int64
	SequenceKey string
}

// DocKey returns the globally unique document key for this record,
// "<basename>:<sequence>".
func (r RawMessageRecord) DocKey() string {
	return filepath.Base(r.SourceFile) + ":" + r.SequenceKey
}

// DecodedMessage is the structured form of a raw message. Fields degrade to
// empty values on decode failures, they are never missing.
type DecodedMessage struct {
	Subject    string
	Sender     string
	Recipients string
	DateRaw    string
	Date       *time.Time
	Body       string
	MessageID  string
	Labels     []string
}

// ResultRecord is one search hit carrying every stored field plus the byte
// extents needed to re-extract the original message.
type ResultRecord struct {
	DocKey     string
	MboxFile   string
	MessageID  string
	Subject    string
	Sender     string
	Recipients string
	DateRaw    string
	Date       *time.Time
	Body       string
	LabelsCSV  string
	ByteStart  int64
	ByteEnd    int64
	Score      float64
}

// Labels splits LabelsCSV back into individual labels.
func (r ResultRecord) Labels() []string {
	if r.LabelsCSV == "" {
		return nil
	}
	return strings.Split(r.LabelsCSV, ",")
}
