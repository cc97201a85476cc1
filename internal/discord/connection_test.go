package discord

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/chatcord/internal/voice"
)

type fakeSink struct {
	mu           sync.Mutex
	speaking     []bool
	disconnected bool
}

func (s *fakeSink) Speaking(b bool) error {
	s.mu.Lock()
	s.speaking = append(s.speaking, b)
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) Disconnect() error {
	s.mu.Lock()
	s.disconnected = true
	s.mu.Unlock()
	return nil
}

func staticEncoder(stream []byte) encoderFunc {
	return func(context.Context, string) (io.ReadCloser, func() error, error) {
		return io.NopCloser(bytes.NewReader(stream)), func() error { return nil }, nil
	}
}

func opusStream(t *testing.T, frames int) []byte {
	packets := make([][]byte, frames)
	for i := range packets {
		packets[i] = []byte{byte(i), 0, 0}
	}
	return encodeOpus(t, packets...)
}

func TestVoiceConn_PlaySendsAudioFrames(t *testing.T) {
	sink := &fakeSink{}
	opus := make(chan []byte, 16)
	c := newVoiceConn(sink, opus, staticEncoder(opusStream(t, 3)), nil)

	pb, err := c.Play("speech.wav")
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	select {
	case <-pb.Done():
	case <-time.After(time.Second):
		t.Fatal("Playback did not finish")
	}
	if pb.Err() != nil {
		t.Errorf("Unexpected playback error: %v", pb.Err())
	}
	if len(opus) != 3 {
		t.Errorf("Expected 3 frames without headers, got %d", len(opus))
	}
	if c.IsPlaying() {
		t.Error("Expected not playing after completion")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.speaking) != 2 || !sink.speaking[0] || sink.speaking[1] {
		t.Errorf("Expected speaking on then off, got %v", sink.speaking)
	}
}

func TestVoiceConn_StopInterrupts(t *testing.T) {
	sink := &fakeSink{}
	opus := make(chan []byte) // never drained
	c := newVoiceConn(sink, opus, staticEncoder(opusStream(t, 5)), nil)

	pb, err := c.Play("speech.wav")
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if !c.IsPlaying() {
		t.Error("Expected playing")
	}

	c.Stop()
	select {
	case <-pb.Done():
	default:
		t.Fatal("Stop returned before playback ended")
	}
	if !errors.Is(pb.Err(), voice.ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", pb.Err())
	}
	if c.IsPlaying() {
		t.Error("Expected not playing after Stop")
	}
}

func TestVoiceConn_EncoderFailure(t *testing.T) {
	failing := func(context.Context, string) (io.ReadCloser, func() error, error) {
		return nil, nil, errors.New("no ffmpeg")
	}
	c := newVoiceConn(&fakeSink{}, make(chan []byte), failing, nil)
	if _, err := c.Play("x.wav"); err == nil {
		t.Error("Expected error when encoder cannot start")
	}
	if c.IsPlaying() {
		t.Error("Expected not playing")
	}
}

func TestVoiceConn_Disconnect(t *testing.T) {
	sink := &fakeSink{}
	c := newVoiceConn(sink, make(chan []byte), staticEncoder(opusStream(t, 2)), nil)
	if _, err := c.Play("x.wav"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if !sink.disconnected {
		t.Error("Expected sink disconnected")
	}
}
