package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/voicerelay/adapters/storage"
	"github.com/satriahrh/voicerelay/internal/frame"
)

func TestReceiver_SavesPartsInOrder(t *testing.T) {
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)
	var out bytes.Buffer
	rec := newReceiver(storage.NewFileStore(dir, logger), "opus", &out, logger)

	var stream []byte
	for _, f := range []frame.Frame{
		{Query: "Hi", Text: "Hello!\n\n", Audio: []byte("a0")},
		{Query: "Hi", Text: "Bye", Audio: []byte("a1")},
		{Query: "Hi", Text: "", Audio: nil},
	} {
		var err error
		if stream, err = frame.AppendFrame(stream, f); err != nil {
			t.Fatal(err)
		}
	}

	if err := frame.Decode(context.Background(), bytes.NewReader(stream), rec.handle); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if rec.Text() != "Hello!\n\nBye" || rec.query != "Hi" || rec.parts != 3 {
		t.Errorf("receiver = %q %q %d", rec.Text(), rec.query, rec.parts)
	}
	if len(rec.saved) != 2 {
		t.Fatalf("saved = %v, want 2 files", rec.saved)
	}
	got, err := os.ReadFile(filepath.Join(dir, "part1.opus"))
	if err != nil || string(got) != "a1" {
		t.Errorf("part1.opus = %q, %v", got, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "part2.opus")); !os.IsNotExist(err) {
		t.Errorf("empty part should not be written, stat err = %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("Assistant: Hello!")) {
		t.Errorf("output = %q", out.String())
	}
}

func TestReceiver_TruncatedStream(t *testing.T) {
	logger := zaptest.NewLogger(t)
	rec := newReceiver(storage.NewFileStore(t.TempDir(), logger), "", &bytes.Buffer{}, logger)

	stream, err := frame.Marshal(frame.Frame{Query: "q", Text: "t", Audio: []byte("audio")})
	if err != nil {
		t.Fatal(err)
	}
	err = frame.Decode(context.Background(), bytes.NewReader(stream[:len(stream)-2]), rec.handle)
	if !errors.Is(err, frame.ErrTruncated) {
		t.Errorf("Decode() error = %v, want ErrTruncated", err)
	}
	if rec.parts != 0 {
		t.Errorf("parts = %d, want 0", rec.parts)
	}
}
