package modcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DigestSize is the length in bytes of a Digest.
const DigestSize = sha256.Size

// Digest identifies the raw input a module was compiled from. It is the only
// cache key; equal inputs always produce equal digests.
type Digest [DigestSize]byte

// Generate computes the digest of data.
func Generate(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// Encode returns the lowercase hex form used as the artifact file name.
func (d Digest) Encode() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) String() string { return d.Encode() }

// ParseDigest decodes the output of Encode.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != hex.EncodedLen(DigestSize) {
		return d, fmt.Errorf("invalid digest %q: want %d hex characters", s, hex.EncodedLen(DigestSize))
	}
	for i := 0; i < len(s); i++ {
		if c := s[i]; !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return d, fmt.Errorf("invalid digest %q: not lowercase hex", s)
		}
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("invalid digest %q: %w", s, err)
	}
	return d, nil
}
