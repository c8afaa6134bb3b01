package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/voicerelay/domain/repositories"
)

func TestOpenAISpeechToText_TranscribeAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "audio.ogg" || string(data) != "OggS" {
			t.Errorf("file = %s (%q)", header.Filename, data)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":" What time is it? "}`)
	}))
	defer srv.Close()

	s, err := NewOpenAISpeechToText(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	text, err := s.TranscribeAudio(context.Background(), []byte("OggS"), repositories.AudioConfig{Format: "ogg", Language: "en-US"})
	if err != nil {
		t.Fatalf("TranscribeAudio() error = %v", err)
	}
	if text != "What time is it?" {
		t.Errorf("TranscribeAudio() = %q", text)
	}
}

func TestOpenAISpeechToText_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid file format", http.StatusBadRequest)
	}))
	defer srv.Close()

	s, _ := NewOpenAISpeechToText(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, zaptest.NewLogger(t))
	_, err := s.TranscribeAudio(context.Background(), []byte("x"), repositories.AudioConfig{})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("TranscribeAudio() error = %v, want status 400", err)
	}
}

func TestMockSpeechToText(t *testing.T) {
	m := NewMockSpeechToText(zaptest.NewLogger(t))
	if _, err := m.TranscribeAudio(context.Background(), nil, repositories.AudioConfig{}); err == nil {
		t.Error("expected error for empty audio")
	}
	text, err := m.TranscribeAudio(context.Background(), []byte("abc"), repositories.AudioConfig{})
	if err != nil || text == "" {
		t.Errorf("TranscribeAudio() = %q, %v", text, err)
	}
	m.Transcript = "fixed"
	if text, _ := m.TranscribeAudio(context.Background(), []byte("abc"), repositories.AudioConfig{}); text != "fixed" {
		t.Errorf("TranscribeAudio() = %q, want fixed", text)
	}
}
