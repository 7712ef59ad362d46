package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestFileName records what the index was built from.
const ManifestFileName = "manifest.json"

// SourceInfo captures the state of one mailbox file at index time, used to
// detect stale byte extents before exporting raw messages.
type SourceInfo struct {
	File     string    `json:"file"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Messages int       `json:"messages"`
}

type Manifest struct {
	CreatedAt time.Time    `json:"created_at"`
	Sources   []SourceInfo `json:"sources"`
}

// Source returns the recorded info for a mailbox file base name.
func (m *Manifest) Source(file string) (SourceInfo, bool) {
	for _, src := range m.Sources {
		if src.File == file {
			return src, true
		}
	}
	return SourceInfo{}, false
}

// Save writes the manifest into the index directory.
func (m *Manifest) Save(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')
	path := filepath.Join(dir, ManifestFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// LoadManifest reads the manifest from an index directory. A missing file
// returns a nil manifest without error.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
