package labels

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestAggregator_AddAndCounts(t *testing.T) {
	agg := NewAggregator()
	agg.Add([]string{"Work", "Personal"})
	agg.Add([]string{"Work"})
	agg.Add(nil)

	counts := agg.Counts()
	if counts["Work"] != 2 {
		t.Errorf("Work = %d, want 2", counts["Work"])
	}
	if counts["Personal"] != 1 {
		t.Errorf("Personal = %d, want 1", counts["Personal"])
	}

	// Counts returns a copy.
	counts["Work"] = 99
	if agg.Counts()["Work"] != 2 {
		t.Error("Counts() must not expose internal state")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	agg := NewAggregator()
	agg.Add([]string{"Inbox", "Archived"})

	if err := agg.Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	counts, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(counts, map[string]int{"Inbox": 1, "Archived": 1}) {
		t.Errorf("Load() = %v", counts)
	}
}

func TestSave_SkipsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := NewAggregator().Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); !os.IsNotExist(err) {
		t.Error("empty aggregate must not write a file")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	counts, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(counts) != 0 {
		t.Errorf("Load() = %v, want empty", counts)
	}
}

func TestSorted(t *testing.T) {
	counts := map[string]int{"beta": 1, "Alpha": 2, "alpha": 3, "Gamma": 1}
	got := Sorted(counts)
	want := []string{"Alpha", "alpha", "beta", "Gamma"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Sorted() = %v, want %v", got, want)
	}
}
