package mbox

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Extract re-reads the exact byte range [start, end) of an mbox file and
// returns the message as standalone bytes with the leading "From " separator
// line stripped. It fails with ErrStaleExtents if the file is shorter than
// end or if the range no longer begins with a separator line, so callers
// never receive shifted or truncated data.
func Extract(path string, start, end int64) ([]byte, error) {
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: invalid range [%d, %d)", ErrStaleExtents, start, end)
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat mbox: %w", err)
	}
	if info.Size() < end {
		return nil, fmt.Errorf("%w: %s is %d bytes, extents end at %d",
			ErrStaleExtents, filepath.Base(path), info.Size(), end)
	}

	raw := make([]byte, end-start)
	if _, err := file.ReadAt(raw, start); err != nil {
		return nil, fmt.Errorf("read extents: %w", err)
	}

	if !bytes.HasPrefix(raw, fromPrefix) {
		return nil, fmt.Errorf("%w: %s no longer has a separator at offset %d",
			ErrStaleExtents, filepath.Base(path), start)
	}

	return StripFromLine(raw), nil
}

// StripFromLine removes a leading mbox "From " separator line, if present,
// leaving an independently parseable RFC 5322 message.
func StripFromLine(raw []byte) []byte {
	if bytes.HasPrefix(raw, fromPrefix) {
		if i := bytes.IndexByte(raw, '\n'); i >= 0 {
			return raw[i+1:]
		}
	}
	return raw
}
