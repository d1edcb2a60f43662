// Package compress implements the segment codec's compressed-block
// encoding: identity passthrough or an LZ4-class byte compressor.
package compress

import (
	"fmt"

	"github.com/pierrec/lz4/v4"

	"github.com/ndrandal/flox-replay/internal/floxfmt"
)

// Codec compresses and decompresses compressed-block payloads for one
// CompressionType. Encode returns a nil slice on failure rather than an
// error, matching the source's empty-vector failure sentinel; Decode
// returns an error since a short/corrupt block is a structural problem
// the caller must diagnose.
type Codec interface {
	Type() floxfmt.CompressionType
	MaxCompressedSize(originalSize int) int
	Encode(src []byte) []byte
	Decode(src []byte, originalSize int) ([]byte, error)
}

// ForType returns the Codec for t, or an error if t is unknown.
func ForType(t floxfmt.CompressionType) (Codec, error) {
	switch t {
	case floxfmt.CompressionNone:
		return identityCodec{}, nil
	case floxfmt.CompressionLZ4:
		return lz4Codec{}, nil
	default:
		return nil, fmt.Errorf("compress: unknown compression type %d", uint8(t))
	}
}

type identityCodec struct{}

func (identityCodec) Type() floxfmt.CompressionType { return floxfmt.CompressionNone }

func (identityCodec) MaxCompressedSize(originalSize int) int { return originalSize }

func (identityCodec) Encode(src []byte) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

func (identityCodec) Decode(src []byte, originalSize int) ([]byte, error) {
	if len(src) != originalSize {
		return nil, fmt.Errorf("compress: identity size mismatch: got %d, want %d", len(src), originalSize)
	}
	out := make([]byte, originalSize)
	copy(out, src)
	return out, nil
}

type lz4Codec struct{}

func (lz4Codec) Type() floxfmt.CompressionType { return floxfmt.CompressionLZ4 }

func (lz4Codec) MaxCompressedSize(originalSize int) int {
	return lz4.CompressBlockBound(originalSize) + 1 // +1 for the stored/compressed tag byte
}

// Block tags, prefixed to the encoded bytes so Decode knows whether the
// body is an lz4 block or stored raw.
const (
	blockTagStored     = 0
	blockTagCompressed = 1
)

// Encode compresses src, prefixed with a tag byte. pierrec/lz4's
// CompressBlock returns n==0 for destination-too-small *and* for
// incompressible input (its documented store-raw signal); since dst is
// always sized via CompressBlockBound, a 0 here means src didn't
// compress, not that encoding failed, so the block is stored raw
// instead of failing the whole flush.
func (c lz4Codec) Encode(src []byte) []byte {
	if len(src) == 0 {
		return []byte{}
	}
	bound := lz4.CompressBlockBound(len(src))
	dst := make([]byte, 1+bound)
	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(src, dst[1:])
	if err != nil || n == 0 {
		out := make([]byte, 1+len(src))
		out[0] = blockTagStored
		copy(out[1:], src)
		return out
	}
	dst[0] = blockTagCompressed
	return dst[:1+n]
}

func (lz4Codec) Decode(src []byte, originalSize int) ([]byte, error) {
	if originalSize == 0 {
		return []byte{}, nil
	}
	if len(src) == 0 {
		return nil, fmt.Errorf("compress: lz4 decode: empty block for non-empty original")
	}
	tag, body := src[0], src[1:]
	switch tag {
	case blockTagStored:
		if len(body) != originalSize {
			return nil, fmt.Errorf("compress: stored block size mismatch: got %d, want %d", len(body), originalSize)
		}
		out := make([]byte, originalSize)
		copy(out, body)
		return out, nil
	case blockTagCompressed:
		dst := make([]byte, originalSize)
		n, err := lz4.UncompressBlock(body, dst)
		if err != nil {
			return nil, fmt.Errorf("compress: lz4 decode: %w", err)
		}
		if n != originalSize {
			return nil, fmt.Errorf("compress: lz4 decoded size mismatch: got %d, want %d", n, originalSize)
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("compress: unknown block tag %d", tag)
	}
}

// Available reports whether a given compression type can be used by this
// build. Identity is always available; LZ4 is available whenever this
// package is linked in, which it always is here — but the check is kept
// as a named function so callers mirror the source's isCompressionAvailable
// gate rather than assuming.
func Available(t floxfmt.CompressionType) bool {
	switch t {
	case floxfmt.CompressionNone, floxfmt.CompressionLZ4:
		return true
	default:
		return false
	}
}
