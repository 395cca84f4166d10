// Package compression wraps zstd for artifact payloads.
package compression

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ErrSizeMismatch is returned when a decoded payload does not have the
// length recorded next to it.
var ErrSizeMismatch = errors.New("decoded size mismatch")

// maxPrealloc bounds the buffer reserved up front from an untrusted size.
const maxPrealloc = 256 << 20

// Level selects the encoder speed/ratio trade-off. LevelNone disables
// compression on write; decoding is always available.
type Level int

const (
	LevelNone Level = iota
	LevelFastest
	LevelDefault
	LevelBetter
)

// Compressor encodes and decodes payloads. EncodeAll and DecodeAll on the
// underlying zstd coders are safe for concurrent use, so one Compressor can be
// shared by every cache operation.
type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	level   Level
}

func NewCompressor(level Level) (*Compressor, error) {
	var encoderLevel zstd.EncoderLevel
	switch level {
	case LevelNone:
	case LevelFastest:
		encoderLevel = zstd.SpeedFastest
	case LevelDefault:
		encoderLevel = zstd.SpeedDefault
	case LevelBetter:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		return nil, fmt.Errorf("unknown compression level %d", level)
	}

	c := &Compressor{level: level}

	if level != LevelNone {
		encoder, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(encoderLevel),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			return nil, err
		}
		c.encoder = encoder
	}

	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, err
	}
	c.decoder = decoder

	return c, nil
}

// Enabled reports whether Compress will try to shrink payloads.
func (c *Compressor) Enabled() bool {
	return c.encoder != nil
}

// Compress returns the encoded payload and true, or the input and false when
// compression is off, the payload is tiny, or encoding does not save space.
func (c *Compressor) Compress(data []byte) ([]byte, bool) {
	if c.encoder == nil || len(data) < 128 {
		return data, false
	}

	compressed := c.encoder.EncodeAll(data, make([]byte, 0, len(data)))

	if len(compressed) >= len(data) {
		return data, false
	}

	return compressed, true
}

// Decompress decodes data that must expand to exactly size bytes.
func (c *Compressor) Decompress(data []byte, size uint64) ([]byte, error) {
	hint := size
	if hint > maxPrealloc {
		hint = 0
	}
	decompressed, err := c.decoder.DecodeAll(data, make([]byte, 0, hint))
	if err != nil {
		return nil, err
	}
	if uint64(len(decompressed)) != size {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSizeMismatch, len(decompressed), size)
	}

	return decompressed, nil
}

func (c *Compressor) Close() error {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}
