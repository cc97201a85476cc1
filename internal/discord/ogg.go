package discord

import (
	"bytes"
	"io"

	"github.com/jonas747/ogg"
)

var (
	opusHeadSig = []byte("OpusHead")
	opusTagsSig = []byte("OpusTags")
)

// OggPacketReader yields the Opus audio packets of an Ogg stream. Header
// packets and empty packets are skipped.
type OggPacketReader struct {
	dec *ogg.PacketDecoder
}

// NewOggPacketReader reads Ogg pages from r.
func NewOggPacketReader(r io.Reader) *OggPacketReader {
	return &OggPacketReader{dec: ogg.NewPacketDecoder(ogg.NewDecoder(r))}
}

// Next returns the next audio packet, or io.EOF when the stream ends.
func (o *OggPacketReader) Next() ([]byte, error) {
	for {
		p, _, err := o.dec.Decode()
		if err != nil {
			return nil, err
		}
		if len(p) == 0 || isOpusHeader(p) {
			continue
		}
		return p, nil
	}
}

// isOpusHeader reports whether p is one of the two Opus header packets.
func isOpusHeader(p []byte) bool {
	return bytes.HasPrefix(p, opusHeadSig) || bytes.HasPrefix(p, opusTagsSig)
}
