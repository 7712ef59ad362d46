// Package mbox reads single-file mbox archives. The scanner reports exact
// byte extents for every message so the original bytes can be re-extracted
// later; because of that it never rewrites message content (no mboxrd
// unescaping). What the file holds is what callers get.
package mbox

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dhcgn/mbox-search/model"
)

var (
	// ErrNotFound reports a missing mailbox file.
	ErrNotFound = errors.New("mailbox file not found")
	// ErrStaleExtents reports stored byte extents that no longer match the
	// current mailbox file contents.
	ErrStaleExtents = errors.New("stale extents")
)

// maxLineBytes bounds a single mbox line, guarding against files with no
// newlines at all. Scanning such a file fails; callers treat that as a
// per-file problem and move on. Variable so tests can lower it.
var maxLineBytes = 64 << 20

var fromPrefix = []byte("From ")

// ScanFunc receives one message per call: its record with byte extents and
// the raw message bytes without the leading "From " separator line. The raw
// slice is owned by the callee.
type ScanFunc func(rec model.RawMessageRecord, raw []byte) error

// Scan streams the mbox file at path in file order, calling fn for every
// message. A "From " line at the start of the file or following a blank line
// begins a new message; "From " lines elsewhere belong to the message body.
// Extents include the separator line. Cancellation is observed between
// messages. A missing file yields ErrNotFound.
func Scan(ctx context.Context, path string, fn ScanFunc) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	return scan(ctx, file, path, fn)
}

func scan(ctx context.Context, r io.Reader, path string, fn ScanFunc) error {
	br := bufio.NewReaderSize(r, 256<<10)

	var (
		offset    int64
		prevBlank = true // start-of-file counts as a message boundary
		started   bool
		start     int64
		body      bytes.Buffer
		seq       int
	)

	flush := func(end int64) error {
		raw := make([]byte, body.Len())
		copy(raw, body.Bytes())
		body.Reset()
		rec := model.RawMessageRecord{
			SourceFile:  path,
			ByteStart:   start,
			ByteEnd:     end,
			SequenceKey: strconv.Itoa(seq),
		}
		seq++
		return fn(rec, raw)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	for {
		line, err := readLine(br)
		if len(line) > 0 {
			lineStart := offset
			offset += int64(len(line))

			if prevBlank && bytes.HasPrefix(line, fromPrefix) {
				if started {
					if err := flush(lineStart); err != nil {
						return err
					}
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				started = true
				start = lineStart
			} else if started {
				body.Write(line)
			}
			prevBlank = isBlank(line)
		}

		if err != nil {
			if err == io.EOF {
				if started {
					return flush(offset)
				}
				return nil
			}
			return fmt.Errorf("read mbox: %w", err)
		}
	}
}

// readLine returns the next line including its terminator.
func readLine(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadBytes('\n')
	if len(line) > maxLineBytes {
		return nil, fmt.Errorf("mbox line exceeds %d bytes", maxLineBytes)
	}
	return line, err
}

func isBlank(line []byte) bool {
	trimmed := bytes.TrimRight(line, "\r\n")
	return len(trimmed) == 0
}
