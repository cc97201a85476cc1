package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// Words per minute for the two synthesis speeds.
const (
	NormalWPM = 175
	SlowWPM   = 120
)

// Espeak synthesizes speech with a local espeak-ng process.
type Espeak struct {
	Binary  string
	TempDir string
}

// NewEspeak returns a synthesizer that runs binary and writes WAV files
// into tempDir.
func NewEspeak(binary, tempDir string) *Espeak {
	if binary == "" {
		binary = "espeak-ng"
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Espeak{Binary: binary, TempDir: tempDir}
}

// Synthesize renders text to a fresh WAV file.
func (e *Espeak) Synthesize(ctx context.Context, text string, slow bool) (Audio, error) {
	wpm := NormalWPM
	if slow {
		wpm = SlowWPM
	}
	path := filepath.Join(e.TempDir, "tts-"+uuid.NewString()+".wav")

	cmd := exec.CommandContext(ctx, e.Binary, "-s", strconv.Itoa(wpm), "-w", path, "--stdin")
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(path)
		return Audio{}, fmt.Errorf("run %s: %w: %s", e.Binary, err, strings.TrimSpace(stderr.String()))
	}

	dur, err := probeWAV(path)
	if err != nil {
		_ = os.Remove(path)
		return Audio{}, err
	}
	return Audio{Path: path, Duration: dur}, nil
}

func probeWAV(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open synthesized audio: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, errors.New("synthesized audio is not a valid WAV file")
	}
	dur, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("read WAV duration: %w", err)
	}
	return dur, nil
}
