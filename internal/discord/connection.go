package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/chatcord/internal/voice"
	"github.com/bwmarrin/discordgo"
)

// opusFrameTimeout bounds how long a single frame may wait on the voice
// socket before playback is abandoned.
const opusFrameTimeout = 2 * time.Second

// voiceSink is the subset of *discordgo.VoiceConnection used for playback.
type voiceSink interface {
	Speaking(bool) error
	Disconnect() error
}

// encoderFunc produces an Ogg/Opus stream for the file at path.
type encoderFunc func(ctx context.Context, path string) (io.ReadCloser, func() error, error)

// VoiceConn streams audio files into a joined voice channel.
type VoiceConn struct {
	sink    voiceSink
	opus    chan<- []byte
	encode  encoderFunc
	logger  *slog.Logger
	playing atomic.Bool

	mu      sync.Mutex
	current *playback
}

var _ voice.Connection = (*VoiceConn)(nil)

// NewVoiceConn wraps a discordgo voice connection. Audio files are
// transcoded to Opus with the given ffmpeg binary.
func NewVoiceConn(vc *discordgo.VoiceConnection, ffmpeg string, logger *slog.Logger) *VoiceConn {
	return newVoiceConn(vc, vc.OpusSend, ffmpegEncoder(ffmpeg), logger)
}

func newVoiceConn(sink voiceSink, opus chan<- []byte, encode encoderFunc, logger *slog.Logger) *VoiceConn {
	if logger == nil {
		logger = slog.Default()
	}
	return &VoiceConn{sink: sink, opus: opus, encode: encode, logger: logger}
}

type playback struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (p *playback) Done() <-chan struct{} { return p.done }
func (p *playback) Err() error            { return p.err }

// Play starts streaming path and returns immediately.
func (c *VoiceConn) Play(path string) (voice.Playback, error) {
	ctx, cancel := context.WithCancel(context.Background())
	stream, wait, err := c.encode(ctx, path)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start encoder: %w", err)
	}

	pb := &playback{cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.current = pb
	c.mu.Unlock()
	c.playing.Store(true)

	go c.stream(ctx, pb, stream, wait)
	return pb, nil
}

func (c *VoiceConn) stream(ctx context.Context, pb *playback, stream io.ReadCloser, wait func() error) {
	defer close(pb.done)
	defer pb.cancel()
	defer c.playing.Store(false)

	if err := c.sink.Speaking(true); err != nil {
		c.logger.Warn("Failed to set speaking state", "error", err)
	}
	defer func() {
		if err := c.sink.Speaking(false); err != nil {
			c.logger.Debug("Failed to clear speaking state", "error", err)
		}
	}()

	pb.err = c.sendPackets(ctx, NewOggPacketReader(stream))
	_ = stream.Close()
	if waitErr := wait(); waitErr != nil && pb.err == nil && ctx.Err() == nil {
		pb.err = fmt.Errorf("encoder exited: %w", waitErr)
	}
}

func (c *VoiceConn) sendPackets(ctx context.Context, packets *OggPacketReader) error {
	timer := time.NewTimer(opusFrameTimeout)
	defer timer.Stop()

	for {
		p, err := packets.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return voice.ErrStopped
			}
			return fmt.Errorf("read opus stream: %w", err)
		}
		timer.Reset(opusFrameTimeout)
		select {
		case c.opus <- p:
		case <-ctx.Done():
			return voice.ErrStopped
		case <-timer.C:
			return errors.New("voice socket not accepting audio")
		}
	}
}

// IsPlaying reports whether a file is being streamed.
func (c *VoiceConn) IsPlaying() bool {
	return c.playing.Load()
}

// Stop interrupts the current playback and waits for it to end.
func (c *VoiceConn) Stop() {
	c.mu.Lock()
	pb := c.current
	c.current = nil
	c.mu.Unlock()
	if pb == nil {
		return
	}
	pb.cancel()
	<-pb.done
}

// Disconnect stops playback and leaves the channel.
func (c *VoiceConn) Disconnect() error {
	c.Stop()
	return c.sink.Disconnect()
}

// ffmpegEncoder transcodes any input ffmpeg understands into 48kHz stereo
// Ogg/Opus with 20ms frames, the format the voice gateway expects.
func ffmpegEncoder(binary string) encoderFunc {
	return func(ctx context.Context, path string) (io.ReadCloser, func() error, error) {
		cmd := exec.CommandContext(ctx, binary,
			"-hide_banner", "-loglevel", "error",
			"-i", path,
			"-ac", "2", "-ar", "48000",
			"-c:a", "libopus", "-b:a", "64k", "-frame_duration", "20",
			"-f", "ogg", "pipe:1",
		)
		out, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, nil, err
		}
		return out, cmd.Wait, nil
	}
}
