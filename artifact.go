package modcache

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/aweris/modcache/internal/compression"
)

// Container layout, all integers big-endian:
//
//	magic        [4]byte "MCAF"
//	version      uint16
//	flags        uint16
//	backendLen   uint16
//	backend      [backendLen]byte
//	rawSize      uint64
//	storedSize   uint64
//	payload      [storedSize]byte
const (
	artifactMagic   = "MCAF"
	artifactVersion = 1

	flagCompressed uint16 = 1 << 0
	knownFlags            = flagCompressed

	fixedHeaderSize = 4 + 2 + 2 + 2
	sizeFieldsSize  = 8 + 8
)

// Artifact is the serializable form of a compiled module. Payload is opaque
// to the cache.
type Artifact struct {
	Backend Backend
	Payload []byte
}

// ArtifactHeader describes a serialized artifact without decoding its
// payload.
type ArtifactHeader struct {
	Version    uint16
	Backend    Backend
	Compressed bool
	RawSize    uint64
	StoredSize uint64
}

var defaultCompressor = sync.OnceValues(func() (*compression.Compressor, error) {
	return compression.NewCompressor(compression.LevelNone)
})

// Serialize encodes a without compression.
func (a *Artifact) Serialize() ([]byte, error) {
	c, err := defaultCompressor()
	if err != nil {
		return nil, err
	}
	return serializeArtifact(a, c)
}

// DeserializeArtifact decodes data produced by Serialize or by a compressing
// cache. The returned artifact does not alias data.
func DeserializeArtifact(data []byte) (*Artifact, error) {
	c, err := defaultCompressor()
	if err != nil {
		return nil, err
	}
	return deserializeArtifact(data, c)
}

// ReadArtifactHeader parses and validates the container header of data.
func ReadArtifactHeader(data []byte) (ArtifactHeader, error) {
	h, _, err := parseHeader(data)
	return h, err
}

func serializeArtifact(a *Artifact, c *compression.Compressor) ([]byte, error) {
	if err := a.Backend.Validate(); err != nil {
		return nil, fmt.Errorf("serialize artifact: %w", err)
	}

	stored, compressed := c.Compress(a.Payload)
	var flags uint16
	if compressed {
		flags |= flagCompressed
	}

	size := fixedHeaderSize + len(a.Backend) + sizeFieldsSize + len(stored)
	buf := make([]byte, 0, size)
	buf = append(buf, artifactMagic...)
	buf = binary.BigEndian.AppendUint16(buf, artifactVersion)
	buf = binary.BigEndian.AppendUint16(buf, flags)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(a.Backend)))
	buf = append(buf, string(a.Backend)...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(a.Payload)))
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(stored)))
	buf = append(buf, stored...)
	return buf, nil
}

func deserializeArtifact(data []byte, c *compression.Compressor) (*Artifact, error) {
	h, stored, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if h.Compressed {
		payload, err = c.Decompress(stored, h.RawSize)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress payload: %w", ErrCorrupted, err)
		}
	} else {
		payload = make([]byte, len(stored))
		copy(payload, stored)
	}

	return &Artifact{Backend: h.Backend, Payload: payload}, nil
}

// parseHeader validates the container structure and returns the header and
// the stored payload bytes, which alias data.
func parseHeader(data []byte) (ArtifactHeader, []byte, error) {
	var h ArtifactHeader

	if len(data) < fixedHeaderSize {
		return h, nil, corrupted("truncated header (%d bytes)", len(data))
	}
	if string(data[:4]) != artifactMagic {
		return h, nil, corrupted("bad magic %q", data[:4])
	}

	h.Version = binary.BigEndian.Uint16(data[4:6])
	if h.Version != artifactVersion {
		return h, nil, corrupted("unsupported format version %d", h.Version)
	}

	flags := binary.BigEndian.Uint16(data[6:8])
	if flags&^knownFlags != 0 {
		return h, nil, corrupted("unknown flags %#x", flags)
	}
	h.Compressed = flags&flagCompressed != 0

	backendLen := int(binary.BigEndian.Uint16(data[8:10]))
	rest := data[fixedHeaderSize:]
	if len(rest) < backendLen+sizeFieldsSize {
		return h, nil, corrupted("truncated header (%d bytes)", len(data))
	}

	h.Backend = Backend(rest[:backendLen])
	if err := h.Backend.Validate(); err != nil {
		return h, nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	rest = rest[backendLen:]

	h.RawSize = binary.BigEndian.Uint64(rest[0:8])
	h.StoredSize = binary.BigEndian.Uint64(rest[8:16])
	rest = rest[sizeFieldsSize:]

	if uint64(len(rest)) != h.StoredSize {
		return h, nil, corrupted("payload is %d bytes, header says %d", len(rest), h.StoredSize)
	}
	if !h.Compressed && h.RawSize != h.StoredSize {
		return h, nil, corrupted("uncompressed payload size %d does not match raw size %d", h.StoredSize, h.RawSize)
	}

	return h, rest, nil
}

func corrupted(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrCorrupted, fmt.Errorf(format, args...))
}
