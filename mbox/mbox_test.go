package mbox

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestRead(t *testing.T) {
	path := writeMbox(t, sampleMbox)

	var subjects []string
	err := Read(path, func(m *MboxMessage) error {
		subjects = append(subjects, m.Headers.Get("Subject"))
		return nil
	})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(subjects) != 2 || subjects[0] != "First" || subjects[1] != "Second" {
		t.Errorf("subjects = %v", subjects)
	}
}

func TestRead_MissingFile(t *testing.T) {
	err := Read(filepath.Join(t.TempDir(), "nope.mbox"), func(*MboxMessage) error {
		t.Fatal("callback must not run")
		return nil
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRead_CallbackError(t *testing.T) {
	path := writeMbox(t, sampleMbox)

	wantErr := errors.New("stop")
	err := Read(path, func(*MboxMessage) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}
