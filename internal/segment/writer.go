// Package segment implements the segment writer, streaming iterator, and
// memory-mapped reader over a single .floxlog file.
package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ndrandal/flox-replay/internal/compress"
	"github.com/ndrandal/flox-replay/internal/floxfmt"
)

// RotationNameFunc names the segment that rotation (or the very first
// segment, absent OutputFilename) should open next. It receives the
// dataset directory and a zero-based segment number.
type RotationNameFunc func(dir string, segmentNumber int) string

// WriterConfig configures a Writer. Zero value is usable: unbounded
// segment size (no rotation), no compression, no index.
type WriterConfig struct {
	OutputDir       string
	OutputFilename  string // used for segment 0 only, if set
	RotationName    RotationNameFunc
	MaxSegmentBytes uint64 // 0 = never rotate
	Compression     floxfmt.CompressionType
	CreateIndex     bool
	IndexInterval   uint16 // 0 defaults to floxfmt.DefaultIndexInterval
	SyncOnRotate    bool
	ExchangeID      uint8
}

func (c WriterConfig) indexInterval() uint16 {
	if c.IndexInterval == 0 {
		return floxfmt.DefaultIndexInterval
	}
	return c.IndexInterval
}

// Writer appends trade and book frames to a rotating sequence of segment
// files. All public methods are safe for concurrent use (single-writer
// contract still applies at the directory level, per SPEC_FULL.md's
// concurrency model — the mutex only protects this process's own state).
type Writer struct {
	cfg   WriterConfig
	codec compress.Codec

	mu             sync.Mutex
	file           *os.File
	path           string
	segmentNumber  int
	header         floxfmt.SegmentHeader
	size           uint64
	symbols        map[uint32]struct{}
	indexEntries   []floxfmt.IndexEntry
	eventsSinceIdx uint16

	pendingBlock     []byte
	pendingFirstTs   int64
	pendingCount     uint16

	// SegmentsWritten counts segments sealed over this writer's lifetime,
	// for rotation-test assertions and operator logging.
	SegmentsWritten int
}

// NewWriter validates cfg and returns a Writer with no segment open yet;
// the first WriteTrade/WriteBook call opens segment 0.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("segment: OutputDir is required")
	}
	codec, err := compress.ForType(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	return &Writer{cfg: cfg, codec: codec, symbols: make(map[uint32]struct{})}, nil
}

// WriteTrade serializes tr as a Trade frame.
func (w *Writer) WriteTrade(tr floxfmt.TradeRecord) error {
	payload := make([]byte, floxfmt.TradeRecordSize)
	tr.Encode(payload)
	return w.writeEvent(tr.ExchangeTsNs, tr.SymbolID, floxfmt.KindTrade, payload)
}

// WriteBook serializes hdr plus the bid/ask levels as a single frame.
// hdr.Type must already be set to KindBookSnapshot or KindBookDelta.
func (w *Writer) WriteBook(hdr floxfmt.BookRecordHeader, bids, asks []floxfmt.BookLevel) error {
	hdr.BidCount = uint16(len(bids))
	hdr.AskCount = uint16(len(asks))
	size := floxfmt.BookRecordSize(hdr.BidCount, hdr.AskCount)
	payload := make([]byte, size)
	hdr.Encode(payload[:floxfmt.BookRecordHeaderSize])
	off := floxfmt.BookRecordHeaderSize
	for _, lvl := range bids {
		lvl.Encode(payload[off : off+floxfmt.BookLevelSize])
		off += floxfmt.BookLevelSize
	}
	for _, lvl := range asks {
		lvl.Encode(payload[off : off+floxfmt.BookLevelSize])
		off += floxfmt.BookLevelSize
	}
	return w.writeEvent(hdr.ExchangeTsNs, hdr.SymbolID, floxfmt.EventKind(hdr.Type), payload)
}

func (w *Writer) writeEvent(ts int64, symbolID uint32, kind floxfmt.EventKind, payload []byte) error {
	if uint32(len(payload)) > floxfmt.MaxFrameSize {
		return fmt.Errorf("segment: frame size %d exceeds max %d", len(payload), floxfmt.MaxFrameSize)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		if err := w.open(); err != nil {
			return err
		}
	}

	frameHdr := floxfmt.FrameHeader{
		Size:       uint32(len(payload)),
		CRC32:      floxfmt.CRC32(payload),
		Kind:       uint8(kind),
		RecVersion: 1,
	}
	frame := make([]byte, floxfmt.FrameHeaderSize+len(payload))
	frameHdr.Encode(frame[:floxfmt.FrameHeaderSize])
	copy(frame[floxfmt.FrameHeaderSize:], payload)

	if w.cfg.Compression == floxfmt.CompressionNone {
		if err := w.maybeRotate(uint64(len(frame))); err != nil {
			return err
		}
		off := w.size
		if err := w.writeAt(frame); err != nil {
			return err
		}
		w.recordIndexEntry(ts, off)
	} else {
		if w.pendingCount == 0 {
			w.pendingFirstTs = ts
		}
		w.pendingBlock = append(w.pendingBlock, frame...)
		w.pendingCount++
		if w.pendingCount >= w.cfg.indexInterval() {
			if err := w.flushBlock(); err != nil {
				return err
			}
		}
	}

	w.symbols[symbolID] = struct{}{}
	w.header.EventCount++
	if w.header.EventCount == 1 || ts < w.header.FirstEventNs {
		w.header.FirstEventNs = ts
	}
	if ts > w.header.LastEventNs {
		w.header.LastEventNs = ts
	}
	return nil
}

// recordIndexEntry samples a (ts, offset) checkpoint every IndexInterval
// events, always including the first.
func (w *Writer) recordIndexEntry(ts int64, offset uint64) {
	if !w.cfg.CreateIndex {
		return
	}
	if w.eventsSinceIdx == 0 {
		w.indexEntries = append(w.indexEntries, floxfmt.IndexEntry{TimestampNs: ts, FileOffset: offset})
	}
	w.eventsSinceIdx++
	if w.eventsSinceIdx >= w.cfg.indexInterval() {
		w.eventsSinceIdx = 0
	}
}

// flushBlock compresses and writes the pending frame buffer as one block,
// recording an index entry at the block's start offset. Rotation is
// checked before the block is appended, per §4.3: rotation happens before
// starting a new block, not mid-block.
func (w *Writer) flushBlock() error {
	if w.pendingCount == 0 {
		return nil
	}
	compressed := w.codec.Encode(w.pendingBlock)
	if compressed == nil {
		return fmt.Errorf("segment: compression failed for block of %d events", w.pendingCount)
	}

	blockHdr := floxfmt.CompressedBlockHeader{
		Magic:          floxfmt.BlockMagic,
		CompressedSize: uint32(len(compressed)),
		OriginalSize:   uint32(len(w.pendingBlock)),
		EventCount:     w.pendingCount,
	}
	block := make([]byte, floxfmt.CompressedBlockHeaderSize+len(compressed))
	blockHdr.Encode(block[:floxfmt.CompressedBlockHeaderSize])
	copy(block[floxfmt.CompressedBlockHeaderSize:], compressed)

	if err := w.maybeRotate(uint64(len(block))); err != nil {
		return err
	}

	off := w.size
	if err := w.writeAt(block); err != nil {
		return err
	}
	if w.cfg.CreateIndex {
		w.indexEntries = append(w.indexEntries, floxfmt.IndexEntry{TimestampNs: w.pendingFirstTs, FileOffset: off})
	}

	w.pendingBlock = w.pendingBlock[:0]
	w.pendingCount = 0
	w.pendingFirstTs = 0
	return nil
}

func (w *Writer) writeAt(b []byte) error {
	n, err := w.file.Write(b)
	if err != nil {
		return fmt.Errorf("segment: write: %w", err)
	}
	if n != len(b) {
		return fmt.Errorf("segment: short write: wrote %d of %d bytes", n, len(b))
	}
	w.size += uint64(n)
	return nil
}

// maybeRotate seals the current segment and opens the next one if adding
// extra bytes would exceed MaxSegmentBytes. A frame is never split across
// segments.
func (w *Writer) maybeRotate(extra uint64) error {
	if w.cfg.MaxSegmentBytes == 0 {
		return nil
	}
	if w.size == 0 || w.size+extra <= w.cfg.MaxSegmentBytes {
		return nil
	}
	if err := w.sealCurrent(); err != nil {
		return err
	}
	return w.open()
}

func (w *Writer) open() error {
	path := w.nextPath()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("segment: open %s: %w", path, err)
	}
	w.file = f
	w.path = path
	w.header = floxfmt.NewSegmentHeader(time.Now().UnixNano(), w.cfg.ExchangeID)
	w.header.Compression = uint8(w.cfg.Compression)
	if w.cfg.Compression != floxfmt.CompressionNone {
		w.header.Flags |= floxfmt.FlagCompressed
	}
	w.size = 0
	w.symbols = make(map[uint32]struct{})
	w.indexEntries = nil
	w.eventsSinceIdx = 0
	w.pendingBlock = w.pendingBlock[:0]
	w.pendingCount = 0

	placeholder := make([]byte, floxfmt.SegmentHeaderSize)
	w.header.Encode(placeholder)
	return w.writeAt(placeholder)
}

func (w *Writer) nextPath() string {
	if w.segmentNumber == 0 && w.cfg.OutputFilename != "" {
		return filepath.Join(w.cfg.OutputDir, w.cfg.OutputFilename)
	}
	if w.cfg.RotationName != nil {
		return filepath.Join(w.cfg.OutputDir, w.cfg.RotationName(w.cfg.OutputDir, w.segmentNumber))
	}
	return filepath.Join(w.cfg.OutputDir, fmt.Sprintf("%d.floxlog", time.Now().UnixNano()))
}

// sealCurrent flushes any pending block, writes the index region, and
// rewrites the summary header with final stats. It leaves w.file closed
// and w.segmentNumber advanced.
func (w *Writer) sealCurrent() error {
	if w.file == nil {
		return nil
	}
	if w.cfg.Compression != floxfmt.CompressionNone && w.pendingCount > 0 {
		if err := w.flushBlock(); err != nil {
			return err
		}
	}

	if w.cfg.CreateIndex && len(w.indexEntries) > 0 {
		if err := w.writeIndex(); err != nil {
			return err
		}
	}

	w.header.SymbolCount = uint32(len(w.symbols))
	headerBytes := make([]byte, floxfmt.SegmentHeaderSize)
	w.header.Encode(headerBytes)
	if _, err := w.file.WriteAt(headerBytes, 0); err != nil {
		return fmt.Errorf("segment: rewrite header: %w", err)
	}

	if w.cfg.SyncOnRotate {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("segment: fsync: %w", err)
		}
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("segment: close: %w", err)
	}
	w.file = nil
	w.segmentNumber++
	w.SegmentsWritten++
	return nil
}

func (w *Writer) writeIndex() error {
	indexOffset := w.size

	entriesBuf := make([]byte, len(w.indexEntries)*floxfmt.IndexEntrySize)
	for i, e := range w.indexEntries {
		e.Encode(entriesBuf[i*floxfmt.IndexEntrySize : (i+1)*floxfmt.IndexEntrySize])
	}

	idxHdr := floxfmt.SegmentIndexHeader{
		Magic:      floxfmt.IndexMagic,
		Version:    floxfmt.IndexVersion,
		Interval:   w.cfg.indexInterval(),
		EntryCount: uint32(len(w.indexEntries)),
		CRC32:      floxfmt.CRC32(entriesBuf),
		FirstTsNs:  w.indexEntries[0].TimestampNs,
		LastTsNs:   w.indexEntries[len(w.indexEntries)-1].TimestampNs,
	}
	hdrBuf := make([]byte, floxfmt.SegmentIndexHeaderSize)
	idxHdr.Encode(hdrBuf)

	if err := w.writeAt(hdrBuf); err != nil {
		return err
	}
	if err := w.writeAt(entriesBuf); err != nil {
		return err
	}

	w.header.IndexOffset = indexOffset
	w.header.Flags |= floxfmt.FlagHasIndex
	return nil
}

// Flush fsyncs the open segment without sealing it.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("segment: flush: %w", err)
	}
	return nil
}

// Close seals the current segment, if any. Safe to call multiple times.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sealCurrent()
}

// Path returns the path of the currently open segment, or "" if none.
func (w *Writer) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// RotateNow seals the current segment and opens the next one immediately,
// regardless of MaxSegmentBytes, for callers that rotate on a criterion
// other than byte size (e.g. event count).
func (w *Writer) RotateNow() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.sealCurrent(); err != nil {
		return err
	}
	return w.open()
}
