package compress

import (
	"bytes"
	"testing"

	"github.com/ndrandal/flox-replay/internal/floxfmt"
)

func TestIdentityRoundTrip(t *testing.T) {
	c, err := ForType(floxfmt.CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	src := []byte("hello world")
	enc := c.Encode(src)
	dec, err := c.Decode(enc, len(src))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, src) {
		t.Fatalf("got %q, want %q", dec, src)
	}
}

func TestLZ4RoundTrip(t *testing.T) {
	c, err := ForType(floxfmt.CompressionLZ4)
	if err != nil {
		t.Fatal(err)
	}
	src := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 50)
	enc := c.Encode(src)
	if enc == nil {
		t.Fatal("expected non-nil compressed output")
	}
	dec, err := c.Decode(enc, len(src))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, src) {
		t.Fatal("lz4 round trip mismatch")
	}
}

func TestLZ4EmptyInput(t *testing.T) {
	c, _ := ForType(floxfmt.CompressionLZ4)
	enc := c.Encode(nil)
	if len(enc) != 0 {
		t.Fatalf("expected empty output for empty input, got %d bytes", len(enc))
	}
	dec, err := c.Decode(enc, 0)
	if err != nil || len(dec) != 0 {
		t.Fatalf("expected empty decode, got %v, %v", dec, err)
	}
}

func TestUnknownCompressionType(t *testing.T) {
	if _, err := ForType(floxfmt.CompressionType(99)); err == nil {
		t.Fatal("expected error for unknown compression type")
	}
}

// TestLZ4IncompressibleRoundTrip covers small/high-entropy input, where
// CompressBlock legitimately returns n==0 (not compressible) rather than
// failing. Encode must fall back to storing the block raw instead of
// returning nil.
func TestLZ4IncompressibleRoundTrip(t *testing.T) {
	c, err := ForType(floxfmt.CompressionLZ4)
	if err != nil {
		t.Fatal(err)
	}
	src := []byte{0x4f, 0x19, 0xd2, 0xaa, 0x7c, 0x01, 0xe8, 0x33}
	enc := c.Encode(src)
	if enc == nil {
		t.Fatal("expected non-nil output for incompressible input, not a failure sentinel")
	}
	dec, err := c.Decode(enc, len(src))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, src) {
		t.Fatal("incompressible round trip mismatch")
	}
}
