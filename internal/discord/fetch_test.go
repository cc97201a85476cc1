package discord

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), 5*time.Second)

	body, err := f.Fetch(context.Background(), srv.URL+"/note.ogg")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	data, _ := io.ReadAll(body)
	_ = body.Close()
	if string(data) != "audio-bytes" {
		t.Errorf("Expected audio-bytes, got %q", data)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("Expected error for 404")
	}
}

func TestFetcher_RejectsOversizedAttachment(t *testing.T) {
	const size = MaxAttachmentBytes + 1024
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sized.ogg" {
			w.Header().Set("Content-Length", strconv.Itoa(size))
		}
		_, _ = io.CopyN(w, zeros{}, size)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), 30*time.Second)

	if _, err := f.Fetch(context.Background(), srv.URL+"/sized.ogg"); !errors.Is(err, ErrAttachmentTooLarge) {
		t.Errorf("Expected ErrAttachmentTooLarge from declared length, got %v", err)
	}

	body, err := f.Fetch(context.Background(), srv.URL+"/chunked.ogg")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer body.Close()
	n, err := io.Copy(io.Discard, body)
	if !errors.Is(err, ErrAttachmentTooLarge) {
		t.Errorf("Expected ErrAttachmentTooLarge while reading, got %v", err)
	}
	if n > MaxAttachmentBytes {
		t.Errorf("Expected at most %d bytes, got %d", MaxAttachmentBytes, n)
	}
}

func TestFetcher_ExactLimitIsAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.CopyN(w, zeros{}, MaxAttachmentBytes)
	}))
	defer srv.Close()

	body, err := NewFetcher(srv.Client(), 30*time.Second).Fetch(context.Background(), srv.URL+"/full.ogg")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer body.Close()
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		t.Errorf("Expected no error at the limit, got %v", err)
	}
	if n != MaxAttachmentBytes {
		t.Errorf("Expected %d bytes, got %d", MaxAttachmentBytes, n)
	}
}
