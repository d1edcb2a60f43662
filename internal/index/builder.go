// Package index builds and removes per-segment sparse indexes, and
// aggregates per-segment summary headers into a dataset-wide global index.
package index

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ndrandal/flox-replay/internal/compress"
	"github.com/ndrandal/flox-replay/internal/floxfmt"
)

// BuilderConfig tunes BuildForSegment.
type BuilderConfig struct {
	IndexInterval  uint16
	VerifyCRC      bool
	BackupOriginal bool
}

func (c BuilderConfig) interval() uint16 {
	if c.IndexInterval == 0 {
		return floxfmt.DefaultIndexInterval
	}
	return c.IndexInterval
}

// BuildResult reports what BuildForSegment did.
type BuildResult struct {
	Success             bool
	Error               string
	EventsScanned       uint32
	IndexEntriesCreated uint32
}

// BuildForSegment walks every frame in path (decompressing blocks as
// needed), decides index entries by the configured interval, and
// rewrites the file in place: appends the index region at the current
// data end and rewrites the summary header with updated first/last
// timestamps, event count, index offset, and the HasIndex flag.
func BuildForSegment(path string, cfg BuilderConfig) BuildResult {
	header, entries, eventCount, firstTs, lastTs, err := scanForIndex(path, cfg)
	if err != nil {
		return BuildResult{Error: err.Error()}
	}
	if eventCount == 0 {
		return BuildResult{Success: true, Error: "no events to index"}
	}

	if cfg.BackupOriginal {
		if err := copyFile(path, path+".bak"); err != nil {
			return BuildResult{Error: fmt.Sprintf("backup: %v", err)}
		}
	}

	dataEnd := header.IndexOffset
	if !header.HasIndex() {
		fi, err := os.Stat(path)
		if err != nil {
			return BuildResult{Error: err.Error()}
		}
		dataEnd = uint64(fi.Size())
	}

	if err := writeIndexRegion(path, dataEnd, header, entries, firstTs, lastTs, eventCount, cfg.interval()); err != nil {
		return BuildResult{Error: err.Error()}
	}

	return BuildResult{Success: true, EventsScanned: eventCount, IndexEntriesCreated: uint32(len(entries))}
}

func scanForIndex(path string, cfg BuilderConfig) (floxfmt.SegmentHeader, []floxfmt.IndexEntry, uint32, int64, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return floxfmt.SegmentHeader{}, nil, 0, 0, 0, fmt.Errorf("index: open %s: %w", path, err)
	}
	defer f.Close()

	hdrBuf := make([]byte, floxfmt.SegmentHeaderSize)
	if _, err := io.ReadFull(f, hdrBuf); err != nil {
		return floxfmt.SegmentHeader{}, nil, 0, 0, 0, fmt.Errorf("index: read header: %w", err)
	}
	header := floxfmt.DecodeSegmentHeader(hdrBuf)
	if !header.IsValid() {
		return floxfmt.SegmentHeader{}, nil, 0, 0, 0, fmt.Errorf("index: %s: invalid magic/version", path)
	}

	var dataEnd int64
	if header.HasIndex() {
		dataEnd = int64(header.IndexOffset)
	} else {
		fi, err := f.Stat()
		if err != nil {
			return floxfmt.SegmentHeader{}, nil, 0, 0, 0, err
		}
		dataEnd = fi.Size()
	}

	r := bufio.NewReader(f)
	s := &indexScan{interval: cfg.interval()}

	var err2 error
	if header.IsCompressed() {
		err2 = s.scanCompressed(r, header.CompressionType(), dataEnd)
	} else {
		err2 = s.scanUncompressed(r, cfg, dataEnd)
	}
	if err2 != nil {
		return floxfmt.SegmentHeader{}, nil, 0, 0, 0, err2
	}

	return header, s.entries, s.eventCount, s.firstTs, s.lastTs, nil
}

// indexScan accumulates index entries across either an uncompressed
// frame stream or a compressed block stream.
type indexScan struct {
	interval    uint16
	entries     []floxfmt.IndexEntry
	eventCount  uint32
	eventsSince uint16
	firstTs     int64
	lastTs      int64
}

func (s *indexScan) record(ts int64, offset uint64) {
	if s.eventCount == 0 {
		s.firstTs = ts
	}
	s.lastTs = ts
	if len(s.entries) == 0 || s.eventsSince >= s.interval {
		s.entries = append(s.entries, floxfmt.IndexEntry{TimestampNs: ts, FileOffset: offset})
		s.eventsSince = 0
	}
	s.eventCount++
	s.eventsSince++
}

func (s *indexScan) scanUncompressed(r *bufio.Reader, cfg BuilderConfig, dataEnd int64) error {
	pos := int64(floxfmt.SegmentHeaderSize)

	for pos < dataEnd {
		frameOffset := pos
		fhBuf := make([]byte, floxfmt.FrameHeaderSize)
		if _, err := io.ReadFull(r, fhBuf); err != nil {
			break // EOF, matches source's tolerant break
		}
		fh := floxfmt.DecodeFrameHeader(fhBuf)
		if fh.Size > floxfmt.MaxFrameSize {
			return fmt.Errorf("index: frame size too large at offset %d", frameOffset)
		}
		payload := make([]byte, fh.Size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return fmt.Errorf("index: read payload at offset %d: %w", frameOffset, err)
		}
		pos += int64(floxfmt.FrameHeaderSize) + int64(fh.Size)

		if cfg.VerifyCRC && floxfmt.CRC32(payload) != fh.CRC32 {
			return fmt.Errorf("index: CRC mismatch at offset %d", frameOffset)
		}

		ts := extractTimestamp(floxfmt.EventKind(fh.Kind), payload)
		s.record(ts, uint64(frameOffset))
	}
	return nil
}

func (s *indexScan) scanCompressed(r *bufio.Reader, compType floxfmt.CompressionType, dataEnd int64) error {
	codec, err := compress.ForType(compType)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}

	pos := int64(floxfmt.SegmentHeaderSize)

	for pos < dataEnd {
		blockOffset := pos
		bhBuf := make([]byte, floxfmt.CompressedBlockHeaderSize)
		if _, err := io.ReadFull(r, bhBuf); err != nil {
			break // EOF, matches the uncompressed path's tolerant break
		}
		bh := floxfmt.DecodeCompressedBlockHeader(bhBuf)
		if !bh.IsValid() {
			return fmt.Errorf("index: invalid block magic at offset %d", blockOffset)
		}
		if bh.CompressedSize > floxfmt.MaxCompressedSize || bh.OriginalSize > floxfmt.MaxOriginalSize {
			return fmt.Errorf("index: block size exceeds sanity ceiling at offset %d", blockOffset)
		}

		compressed := make([]byte, bh.CompressedSize)
		if _, err := io.ReadFull(r, compressed); err != nil {
			return fmt.Errorf("index: read block body at offset %d: %w", blockOffset, err)
		}
		pos += int64(floxfmt.CompressedBlockHeaderSize) + int64(bh.CompressedSize)

		raw, err := codec.Decode(compressed, int(bh.OriginalSize))
		if err != nil {
			return fmt.Errorf("index: block decompress at offset %d: %w", blockOffset, err)
		}

		off := 0
		for off+floxfmt.FrameHeaderSize <= len(raw) {
			fh := floxfmt.DecodeFrameHeader(raw[off : off+floxfmt.FrameHeaderSize])
			off += floxfmt.FrameHeaderSize
			if off+int(fh.Size) > len(raw) {
				return fmt.Errorf("index: truncated frame inside block at offset %d", blockOffset)
			}
			payload := raw[off : off+int(fh.Size)]
			off += int(fh.Size)
			if floxfmt.CRC32(payload) != fh.CRC32 {
				return fmt.Errorf("index: frame CRC mismatch inside block at offset %d", blockOffset)
			}

			ts := extractTimestamp(floxfmt.EventKind(fh.Kind), payload)
			// Entries point at the compressed block's own offset: a
			// frame inside a block isn't independently seekable, so the
			// reader locating this entry must decompress the whole
			// block and scan forward from its first frame.
			s.record(ts, uint64(blockOffset))
		}
	}
	return nil
}

func extractTimestamp(kind floxfmt.EventKind, payload []byte) int64 {
	switch kind {
	case floxfmt.KindTrade:
		if len(payload) >= floxfmt.TradeRecordSize {
			return floxfmt.DecodeTradeRecord(payload).ExchangeTsNs
		}
	default:
		if len(payload) >= floxfmt.BookRecordHeaderSize {
			return floxfmt.DecodeBookRecordHeader(payload).ExchangeTsNs
		}
	}
	return 0
}

func writeIndexRegion(path string, dataEnd uint64, header floxfmt.SegmentHeader, entries []floxfmt.IndexEntry, firstTs, lastTs int64, eventCount uint32, interval uint16) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("index: reopen for write: %w", err)
	}
	defer f.Close()

	entriesBuf := make([]byte, len(entries)*floxfmt.IndexEntrySize)
	for i, e := range entries {
		e.Encode(entriesBuf[i*floxfmt.IndexEntrySize : (i+1)*floxfmt.IndexEntrySize])
	}

	idxHdr := floxfmt.SegmentIndexHeader{
		Magic:      floxfmt.IndexMagic,
		Version:    floxfmt.IndexVersion,
		Interval:   interval,
		EntryCount: uint32(len(entries)),
		FirstTsNs:  firstTs,
		LastTsNs:   lastTs,
		CRC32:      floxfmt.CRC32(entriesBuf),
	}
	idxHdrBuf := make([]byte, floxfmt.SegmentIndexHeaderSize)
	idxHdr.Encode(idxHdrBuf)

	if _, err := f.WriteAt(idxHdrBuf, int64(dataEnd)); err != nil {
		return fmt.Errorf("index: write index header: %w", err)
	}
	if _, err := f.WriteAt(entriesBuf, int64(dataEnd)+floxfmt.SegmentIndexHeaderSize); err != nil {
		return fmt.Errorf("index: write index entries: %w", err)
	}

	header.IndexOffset = dataEnd
	header.Flags |= floxfmt.FlagHasIndex
	header.FirstEventNs = firstTs
	header.LastEventNs = lastTs
	header.EventCount = eventCount

	hdrBuf := make([]byte, floxfmt.SegmentHeaderSize)
	header.Encode(hdrBuf)
	if _, err := f.WriteAt(hdrBuf, 0); err != nil {
		return fmt.Errorf("index: rewrite summary header: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// BuildForDirectory runs BuildForSegment over every *.floxlog file in dir.
func BuildForDirectory(dir string, cfg BuilderConfig) ([]BuildResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var results []BuildResult
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".floxlog" {
			continue
		}
		results = append(results, BuildForSegment(filepath.Join(dir, e.Name()), cfg))
	}
	return results, nil
}

// HasIndex reports whether path's summary header claims an index.
func HasIndex(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, floxfmt.SegmentHeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return false
	}
	hdr := floxfmt.DecodeSegmentHeader(buf)
	return hdr.IsValid() && hdr.HasIndex()
}

// RemoveIndex truncates path at its index offset and clears the
// HasIndex flag. A no-op (returns nil) if there is no index.
func RemoveIndex(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("index: open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, floxfmt.SegmentHeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return fmt.Errorf("index: read header: %w", err)
	}
	hdr := floxfmt.DecodeSegmentHeader(buf)
	if !hdr.IsValid() {
		return fmt.Errorf("index: %s: invalid magic/version", path)
	}
	if !hdr.HasIndex() {
		return nil
	}

	newSize := int64(hdr.IndexOffset)
	hdr.IndexOffset = 0
	hdr.Flags &^= floxfmt.FlagHasIndex

	hdrBuf := make([]byte, floxfmt.SegmentHeaderSize)
	hdr.Encode(hdrBuf)
	if _, err := f.WriteAt(hdrBuf, 0); err != nil {
		return fmt.Errorf("index: rewrite header: %w", err)
	}
	return f.Truncate(newSize)
}
