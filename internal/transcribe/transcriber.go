// Package transcribe converts uploaded audio into text through an
// OpenAI-compatible speech-to-text endpoint.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/chatcord/internal/upstream"
	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultModel is the speech-to-text model used when none is configured.
const DefaultModel = "whisper-large-v3"

// audioExtensions lists attachment suffixes treated as voice input.
var audioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg"}

// IsAudioFile reports whether filename has a supported audio extension.
func IsAudioFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range audioExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Config configures a Transcriber.
type Config struct {
	Model   string
	Timeout time.Duration
	TempDir string
}

// Transcriber uploads audio and returns the recognized text.
type Transcriber struct {
	client openai.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a Transcriber.
func New(client openai.Client, cfg Config, logger *slog.Logger) *Transcriber {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{client: client, cfg: cfg, logger: logger}
}

// Transcribe stages audio in a scratch file, submits it, and returns the
// transcript. The scratch file is removed before returning on every path.
// Failures return *TranscriptionError.
func (t *Transcriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe")
	defer span.End()
	span.SetAttributes(attribute.String("filename", filename), attribute.String("model", t.cfg.Model))

	fail := func(terr *TranscriptionError) (string, error) {
		span.RecordError(terr)
		span.SetStatus(codes.Error, terr.Error())
		t.logger.Error("Transcription failed",
			"filename", filename,
			"reason", terr.Reason,
			"status", terr.StatusCode,
			"error", terr.Err)
		return "", terr
	}

	path, err := t.stage(audio, filename)
	if err != nil {
		return fail(&TranscriptionError{Reason: ReasonLocalIO, Err: err})
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			t.logger.Warn("Failed to remove staged audio", "path", path, "error", rmErr)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return fail(&TranscriptionError{Reason: ReasonLocalIO, Err: fmt.Errorf("open staged audio: %w", err)})
	}
	defer func() { _ = f.Close() }()

	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	res, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:           openai.File(f, filepath.Base(filename), ""),
		Model:          openai.AudioModel(t.cfg.Model),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		reason, status := upstream.Classify(err)
		return fail(&TranscriptionError{Reason: reason, StatusCode: status, Err: err})
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return fail(&TranscriptionError{Reason: upstream.ReasonMalformed, Err: errors.New("response has no text")})
	}

	span.SetAttributes(attribute.Int("transcript_chars", len(text)))
	return text, nil
}

// stage copies audio into a uniquely named file that keeps the original
// extension so the endpoint can detect the container format.
func (t *Transcriber) stage(audio io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	path := filepath.Join(t.cfg.TempDir, "stt-"+uuid.NewString()+ext)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", fmt.Errorf("create staged audio: %w", err)
	}
	if _, err := io.Copy(f, audio); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write staged audio: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close staged audio: %w", err)
	}
	return path, nil
}
