// Package floxfmt defines the on-disk binary layout for segment files:
// fixed-size little-endian structs plus the CRC32 variant used to verify
// frame payloads.
package floxfmt

import "fmt"

const (
	Magic        uint32 = 0x584F4C46 // "FLOX"
	FormatVersion uint16 = 1

	BlockMagic uint32 = 0x4B4C4246 // "FBLK"

	IndexMagic   uint32 = 0x58444E49 // "INDX"
	IndexVersion uint16 = 1

	GlobalIndexMagic   uint32 = 0x58444947 // "GIDX"
	GlobalIndexVersion uint16 = 1

	DefaultIndexInterval uint16 = 1000

	MaxFrameSize      uint32 = 10 << 20  // 10 MiB
	MaxCompressedSize uint32 = 100 << 20 // 100 MiB
	MaxOriginalSize   uint32 = 100 << 20 // 100 MiB
)

// SegmentFlags are the bits stored in SegmentHeader.Flags.
const (
	FlagHasIndex uint8 = 0x01
	FlagCompressed uint8 = 0x02
	FlagEncrypted  uint8 = 0x04
)

// EventKind discriminates the payload a FrameHeader introduces.
type EventKind uint8

const (
	KindTrade        EventKind = 1
	KindBookSnapshot EventKind = 2
	KindBookDelta    EventKind = 3
)

func (k EventKind) String() string {
	switch k {
	case KindTrade:
		return "trade"
	case KindBookSnapshot:
		return "book_snapshot"
	case KindBookDelta:
		return "book_delta"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// CompressionType identifies the codec used for a segment's blocks.
type CompressionType uint8

const (
	CompressionNone CompressionType = 0
	CompressionLZ4  CompressionType = 1
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// Side is the aggressor/resting side of a trade.
type Side uint8

const (
	SideBuy  Side = 1
	SideSell Side = 2
)

// SegmentHeader is the first 64 bytes of every segment file.
type SegmentHeader struct {
	Magic         uint32
	Version       uint16
	Flags         uint8
	ExchangeID    uint8
	CreatedNs     int64
	FirstEventNs  int64
	LastEventNs   int64
	EventCount    uint32
	SymbolCount   uint32
	IndexOffset   uint64
	Compression   uint8
	_reserved     [15]byte
}

const SegmentHeaderSize = 64

// NewSegmentHeader returns a header with magic/version set and the given
// creation time, ready to be written as a placeholder before any frames
// are known.
func NewSegmentHeader(createdNs int64, exchangeID uint8) SegmentHeader {
	return SegmentHeader{
		Magic:      Magic,
		Version:    FormatVersion,
		ExchangeID: exchangeID,
		CreatedNs:  createdNs,
	}
}

func (h *SegmentHeader) IsValid() bool {
	return h.Magic == Magic && h.Version == FormatVersion
}

func (h *SegmentHeader) HasIndex() bool {
	return h.Flags&FlagHasIndex != 0 && h.IndexOffset > 0
}

func (h *SegmentHeader) IsCompressed() bool {
	return h.Flags&FlagCompressed != 0
}

func (h *SegmentHeader) CompressionType() CompressionType {
	return CompressionType(h.Compression)
}

// FrameHeader precedes every event payload in an uncompressed segment, or
// every frame inside a decompressed block.
type FrameHeader struct {
	Size       uint32
	CRC32      uint32
	Kind       uint8
	RecVersion uint8
	Flags      uint16
}

const FrameHeaderSize = 12

// TradeRecord is the fixed-size payload of a Trade frame.
type TradeRecord struct {
	ExchangeTsNs int64
	RecvTsNs     int64
	PriceRaw     int64
	QtyRaw       int64
	TradeID      uint64
	SymbolID     uint32
	Side         uint8
	Instrument   uint8
	ExchangeID   uint16
}

const TradeRecordSize = 48

// BookLevel is one (price, qty) point in a book snapshot or delta.
type BookLevel struct {
	PriceRaw int64
	QtyRaw   int64
}

const BookLevelSize = 16

// BookRecordHeader precedes BidCount+AskCount BookLevel entries.
type BookRecordHeader struct {
	ExchangeTsNs int64
	RecvTsNs     int64
	Seq          int64
	SymbolID     uint32
	BidCount     uint16
	AskCount     uint16
	Type         uint8 // KindBookSnapshot or KindBookDelta
	Instrument   uint8
	ExchangeID   uint16
	_pad         uint32
}

const BookRecordHeaderSize = 40

// BookRecordSize returns the total payload size for a book record with the
// given level counts.
func BookRecordSize(bidCount, askCount uint16) int {
	return BookRecordHeaderSize + int(bidCount+askCount)*BookLevelSize
}

// CompressedBlockHeader precedes a run of compressed frames in a
// compressed segment.
type CompressedBlockHeader struct {
	Magic          uint32
	CompressedSize uint32
	OriginalSize   uint32
	EventCount     uint16
	Flags          uint16
}

const CompressedBlockHeaderSize = 16

func (h *CompressedBlockHeader) IsValid() bool {
	return h.Magic == BlockMagic
}

// IndexEntry is one sparse-index checkpoint.
type IndexEntry struct {
	TimestampNs int64
	FileOffset  uint64
}

const IndexEntrySize = 16

// SegmentIndexHeader precedes a segment's index entries.
type SegmentIndexHeader struct {
	Magic       uint32
	Version     uint16
	Interval    uint16
	EntryCount  uint32
	CRC32       uint32
	FirstTsNs   int64
	LastTsNs    int64
}

const SegmentIndexHeaderSize = 32

func (h *SegmentIndexHeader) IsValid() bool {
	return h.Magic == IndexMagic && h.Version == IndexVersion
}

// GlobalIndexHeader precedes a dataset-wide index.floxidx file.
type GlobalIndexHeader struct {
	Magic             uint32
	Version           uint16
	Flags             uint16
	CreatedNs         int64
	FirstEventNs      int64
	LastEventNs       int64
	SegmentCount      uint32
	CRC32             uint32
	TotalEvents       uint64
	StringTableOffset uint64
	_reserved         [8]byte
}

const GlobalIndexHeaderSize = 64

func (h *GlobalIndexHeader) IsValid() bool {
	return h.Magic == GlobalIndexMagic && h.Version == GlobalIndexVersion
}

// GlobalIndexSegment is one per-segment summary record in the global index.
type GlobalIndexSegment struct {
	FirstEventNs   int64
	LastEventNs    int64
	EventCount     uint32
	Flags          uint32
	FileSize       uint64
	FilenameOffset uint64
	_reserved      uint64
}

const GlobalIndexSegmentSize = 48

// ManifestMagic and friends are used by internal/manifest.
const (
	ManifestMagic   uint32 = 0x464D414E // "NAMF"
	ManifestVersion uint8  = 1
)
