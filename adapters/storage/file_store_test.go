package storage

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestFileStore_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "audio")
	store := NewFileStore(dir, zaptest.NewLogger(t))

	path, err := store.Save([]byte("ID3-data"), "part0.mp3")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if path != filepath.Join(dir, "part0.mp3") {
		t.Errorf("path = %s", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "ID3-data" {
		t.Errorf("content = %q", got)
	}

	// empty clips are still written
	if _, err := store.Save(nil, "part1.mp3"); err != nil {
		t.Errorf("Save(empty) error = %v", err)
	}
}

func TestFileStore_InvalidName(t *testing.T) {
	store := NewFileStore(t.TempDir(), zaptest.NewLogger(t))
	for _, name := range []string{"", "../escape.mp3", "sub/part.mp3"} {
		if _, err := store.Save([]byte("x"), name); err == nil {
			t.Errorf("Save(%q) expected error", name)
		}
	}
}

func TestNewFileStore_DefaultDir(t *testing.T) {
	if got := NewFileStore("", zaptest.NewLogger(t)).Dir(); got != "audio" {
		t.Errorf("Dir() = %s, want audio", got)
	}
}
