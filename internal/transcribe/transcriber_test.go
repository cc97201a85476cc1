package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/chatcord/internal/upstream"
)

func newTestTranscriber(t *testing.T, handler http.HandlerFunc) (*Transcriber, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	httpClient, err := upstream.NewHTTPClient(5*time.Second, "")
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	client := upstream.NewOpenAI(upstream.Options{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/",
		HTTPClient: httpClient,
	})

	dir := t.TempDir()
	return New(client, Config{TempDir: dir}, nil), dir
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected staged audio to be removed, found %d files", len(entries))
	}
}

func TestTranscribe_Success(t *testing.T) {
	tr, dir := newTestTranscriber(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Expected multipart body: %v", err)
		}
		if got := r.FormValue("model"); got != DefaultModel {
			t.Errorf("Expected model %s, got %s", DefaultModel, got)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("Expected verbose_json, got %s", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Expected file part: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "RIFFfake" {
				t.Errorf("Unexpected file content %q", data)
			}
			if header.Filename != "note.wav" {
				t.Errorf("Expected filename note.wav, got %s", header.Filename)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"task":"transcribe","language":"en","duration":1.2,"text":" hello there ","segments":[]}`)
	})

	text, err := tr.Transcribe(context.Background(), strings.NewReader("RIFFfake"), "note.wav")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello there" {
		t.Errorf("Expected 'hello there', got %q", text)
	}
	assertEmptyDir(t, dir)
}

func TestTranscribe_Non200(t *testing.T) {
	tr, dir := newTestTranscriber(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"boom"}}`)
	})

	_, err := tr.Transcribe(context.Background(), strings.NewReader("data"), "clip.mp3")
	var terr *TranscriptionError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected TranscriptionError, got %v", err)
	}
	if terr.Reason != upstream.ReasonStatus || terr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected non-200/500, got %s/%d", terr.Reason, terr.StatusCode)
	}
	assertEmptyDir(t, dir)
}

func TestTranscribe_EmptyText(t *testing.T) {
	tr, dir := newTestTranscriber(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":""}`)
	})

	_, err := tr.Transcribe(context.Background(), strings.NewReader("data"), "clip.ogg")
	var terr *TranscriptionError
	if !errors.As(err, &terr) || terr.Reason != upstream.ReasonMalformed {
		t.Errorf("Expected malformed TranscriptionError, got %v", err)
	}
	assertEmptyDir(t, dir)
}

func TestTranscribe_Timeout(t *testing.T) {
	release := make(chan struct{})
	tr, dir := newTestTranscriber(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	tr.cfg.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := tr.Transcribe(context.Background(), strings.NewReader("data"), "clip.wav")
	var terr *TranscriptionError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected TranscriptionError, got %v", err)
	}
	if terr.Reason != upstream.ReasonTimeout {
		t.Errorf("Expected timeout reason, got %s", terr.Reason)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("Expected bounded call, took %v", time.Since(start))
	}
	assertEmptyDir(t, dir)
}

func TestTranscribe_MalformedBody(t *testing.T) {
	tr, dir := newTestTranscriber(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `<html>gateway hiccup</html>`)
	})

	_, err := tr.Transcribe(context.Background(), strings.NewReader("data"), "clip.wav")
	var terr *TranscriptionError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected TranscriptionError, got %v", err)
	}
	if terr.Reason != upstream.ReasonMalformed || terr.StatusCode != 0 {
		t.Errorf("Expected malformed-response, got %s/%d", terr.Reason, terr.StatusCode)
	}
	assertEmptyDir(t, dir)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk gone")
}

func TestTranscribe_StageFailure(t *testing.T) {
	tr, dir := newTestTranscriber(t, func(http.ResponseWriter, *http.Request) {
		t.Error("Upstream must not be called when staging fails")
	})

	_, err := tr.Transcribe(context.Background(), failingReader{}, "clip.m4a")
	var terr *TranscriptionError
	if !errors.As(err, &terr) || terr.Reason != ReasonLocalIO {
		t.Errorf("Expected local-io TranscriptionError, got %v", err)
	}
	assertEmptyDir(t, dir)
}

func TestIsAudioFile(t *testing.T) {
	tests := map[string]bool{
		"a.mp3":      true,
		"b.WAV":      true,
		"c.m4a":      true,
		"voice.ogg":  true,
		"image.png":  false,
		"noext":      false,
		"mp3":        false,
		"clip.ogg.x": false,
	}
	for name, want := range tests {
		if got := IsAudioFile(name); got != want {
			t.Errorf("IsAudioFile(%q): expected %v, got %v", name, want, got)
		}
	}
}
