package floxfmt

import "testing"

func TestSegmentHeaderRoundTrip(t *testing.T) {
	h := NewSegmentHeader(1_700_000_000_000_000_000, 3)
	h.Flags = FlagHasIndex | FlagCompressed
	h.FirstEventNs = 1
	h.LastEventNs = 2
	h.EventCount = 100
	h.SymbolCount = 4
	h.IndexOffset = 4096
	h.Compression = uint8(CompressionLZ4)

	buf := make([]byte, SegmentHeaderSize)
	h.Encode(buf)
	got := DecodeSegmentHeader(buf)

	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
	if !got.IsValid() {
		t.Fatal("expected valid header")
	}
	if !got.HasIndex() {
		t.Fatal("expected HasIndex")
	}
	if !got.IsCompressed() {
		t.Fatal("expected IsCompressed")
	}
	if got.CompressionType() != CompressionLZ4 {
		t.Fatalf("expected LZ4, got %v", got.CompressionType())
	}
}

func TestFrameHeaderRoundTrip(t *testing.T) {
	f := FrameHeader{Size: 48, CRC32: 0xdeadbeef, Kind: uint8(KindTrade), RecVersion: 1, Flags: 0}
	buf := make([]byte, FrameHeaderSize)
	f.Encode(buf)
	got := DecodeFrameHeader(buf)
	if got != f {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestTradeRecordRoundTrip(t *testing.T) {
	tr := TradeRecord{
		ExchangeTsNs: 1_000_000_000,
		RecvTsNs:     1_000_000_100,
		PriceRaw:     50_000_000_000,
		QtyRaw:       1_000_000,
		TradeID:      12345,
		SymbolID:     1,
		Side:         uint8(SideBuy),
		Instrument:   0,
		ExchangeID:   7,
	}
	buf := make([]byte, TradeRecordSize)
	tr.Encode(buf)
	got := DecodeTradeRecord(buf)
	if got != tr {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, tr)
	}
}

func TestBookRecordRoundTrip(t *testing.T) {
	h := BookRecordHeader{
		ExchangeTsNs: 1, RecvTsNs: 2, Seq: 3, SymbolID: 9,
		BidCount: 2, AskCount: 1, Type: uint8(KindBookSnapshot), Instrument: 0, ExchangeID: 5,
	}
	buf := make([]byte, BookRecordHeaderSize)
	h.Encode(buf)
	got := DecodeBookRecordHeader(buf)
	h._pad = 0
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}

	lvl := BookLevel{PriceRaw: 100, QtyRaw: 200}
	lbuf := make([]byte, BookLevelSize)
	lvl.Encode(lbuf)
	if DecodeBookLevel(lbuf) != lvl {
		t.Fatal("book level round trip mismatch")
	}

	if BookRecordSize(2, 1) != BookRecordHeaderSize+3*BookLevelSize {
		t.Fatal("unexpected book record size")
	}
}

func TestIndexStructsRoundTrip(t *testing.T) {
	e := IndexEntry{TimestampNs: 123, FileOffset: 456}
	buf := make([]byte, IndexEntrySize)
	e.Encode(buf)
	if DecodeIndexEntry(buf) != e {
		t.Fatal("index entry round trip mismatch")
	}

	ih := SegmentIndexHeader{Magic: IndexMagic, Version: IndexVersion, Interval: 1000, EntryCount: 10, CRC32: 1, FirstTsNs: 1, LastTsNs: 2}
	ibuf := make([]byte, SegmentIndexHeaderSize)
	ih.Encode(ibuf)
	got := DecodeSegmentIndexHeader(ibuf)
	if got != ih {
		t.Fatalf("index header round trip mismatch: got %+v want %+v", got, ih)
	}
	if !got.IsValid() {
		t.Fatal("expected valid index header")
	}
}

func TestGlobalIndexStructsRoundTrip(t *testing.T) {
	gh := GlobalIndexHeader{
		Magic: GlobalIndexMagic, Version: GlobalIndexVersion, CreatedNs: 1,
		FirstEventNs: 2, LastEventNs: 3, SegmentCount: 4, CRC32: 5,
		TotalEvents: 6, StringTableOffset: 7,
	}
	buf := make([]byte, GlobalIndexHeaderSize)
	gh.Encode(buf)
	got := DecodeGlobalIndexHeader(buf)
	if got != gh {
		t.Fatalf("global index header mismatch: got %+v want %+v", got, gh)
	}
	if !got.IsValid() {
		t.Fatal("expected valid global index header")
	}

	gs := GlobalIndexSegment{FirstEventNs: 1, LastEventNs: 2, EventCount: 3, Flags: 0, FileSize: 4, FilenameOffset: 5}
	gsbuf := make([]byte, GlobalIndexSegmentSize)
	gs.Encode(gsbuf)
	if DecodeGlobalIndexSegment(gsbuf) != gs {
		t.Fatal("global index segment round trip mismatch")
	}
}

func TestCompressedBlockHeaderRoundTrip(t *testing.T) {
	b := CompressedBlockHeader{Magic: BlockMagic, CompressedSize: 10, OriginalSize: 20, EventCount: 3, Flags: 0}
	buf := make([]byte, CompressedBlockHeaderSize)
	b.Encode(buf)
	got := DecodeCompressedBlockHeader(buf)
	if got != b {
		t.Fatalf("block header round trip mismatch: got %+v want %+v", got, b)
	}
	if !got.IsValid() {
		t.Fatal("expected valid block header")
	}
}

func TestCRC32KnownValue(t *testing.T) {
	// "123456789" has a well-known CRC-32/ISO-HDLC (== reversed 0xEDB88320,
	// init/final 0xFFFFFFFF) check value of 0xCBF43926.
	got := CRC32([]byte("123456789"))
	if got != 0xCBF43926 {
		t.Fatalf("CRC32 = %#x, want 0xcbf43926", got)
	}
}
