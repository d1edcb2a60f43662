// Package validate scans segments for structural corruption and
// produces a typed issue report, with an optional best-effort repairer.
package validate

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ndrandal/flox-replay/internal/compress"
	"github.com/ndrandal/flox-replay/internal/floxfmt"
)

// IssueType enumerates every structural defect the validator can
// observe.
type IssueType int

const (
	InvalidMagic IssueType = iota
	InvalidVersion
	InvalidFlags
	HeaderCorrupted

	FrameCRCMismatch
	FrameSizeTooLarge
	FrameTypeUnknown
	FrameTruncated

	BlockMagicInvalid
	BlockDecompressionFailed
	BlockSizeMismatch

	IndexCRCMismatch
	IndexMagicInvalid
	IndexOutOfBounds
	IndexNotSorted

	TimestampOutOfOrder
	TimestampJumpTooLarge
	EventCountMismatch
	FileTruncated

	FileNotFound
	FileReadError
)

func (t IssueType) String() string {
	names := [...]string{
		"invalid_magic", "invalid_version", "invalid_flags", "header_corrupted",
		"frame_crc_mismatch", "frame_size_too_large", "frame_type_unknown", "frame_truncated",
		"block_magic_invalid", "block_decompression_failed", "block_size_mismatch",
		"index_crc_mismatch", "index_magic_invalid", "index_out_of_bounds", "index_not_sorted",
		"timestamp_out_of_order", "timestamp_jump_too_large", "event_count_mismatch", "file_truncated",
		"file_not_found", "file_read_error",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("issue(%d)", int(t))
}

// IssueSeverity ranks an issue's impact.
type IssueSeverity int

const (
	Info IssueSeverity = iota
	Warning
	Error
	Critical
)

func (s IssueSeverity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Issue is one validator finding.
type Issue struct {
	Type        IssueType
	Severity    IssueSeverity
	Message     string
	FileOffset  uint64
	EventIndex  uint64
	TimestampNs int64
}

// SegmentResult is the full report for one segment file.
type SegmentResult struct {
	Path   string
	Valid  bool
	Issues []Issue

	HeaderValid        bool
	ReportedEventCount uint32
	ReportedFirstTs    int64
	ReportedLastTs     int64
	IsCompressed       bool
	CompressionType    floxfmt.CompressionType

	ActualEventCount uint32
	ActualFirstTs    int64
	ActualLastTs     int64
	BytesScanned     uint64

	HasIndex        bool
	IndexValid      bool
	IndexEntryCount uint32

	TradesFound        uint32
	BookUpdatesFound   uint32
	CRCErrors          uint32
	TimestampAnomalies uint32
}

// HasErrors reports whether any issue is Error or Critical severity.
func (r SegmentResult) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == Error || i.Severity == Critical {
			return true
		}
	}
	return false
}

// HasCritical reports whether any issue is Critical severity.
func (r SegmentResult) HasCritical() bool {
	for _, i := range r.Issues {
		if i.Severity == Critical {
			return true
		}
	}
	return false
}

// Config tunes validation policy.
type Config struct {
	VerifyCRC          bool
	VerifyTimestamps   bool
	VerifyIndex        bool
	ScanAllEvents      bool
	StopOnFirstError   bool
	MaxTimestampJumpNs int64
}

// DefaultConfig matches the spec's defaults: verify everything, scan
// every event, don't stop early, and tolerate jumps up to one hour.
func DefaultConfig() Config {
	return Config{
		VerifyCRC:          true,
		VerifyTimestamps:   true,
		VerifyIndex:        true,
		ScanAllEvents:      true,
		StopOnFirstError:   false,
		MaxTimestampJumpNs: 3600 * 1_000_000_000,
	}
}

// SegmentValidator scans one segment at a time.
type SegmentValidator struct {
	cfg Config
}

func NewSegmentValidator(cfg Config) *SegmentValidator { return &SegmentValidator{cfg: cfg} }

// Validate scans path and returns a structured result. It never returns
// a Go error: every failure mode becomes an Issue in the result.
func (v *SegmentValidator) Validate(path string) SegmentResult {
	result := SegmentResult{Path: path, Valid: true}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			v.addIssue(&result, FileNotFound, Critical, err.Error(), 0)
		} else {
			v.addIssue(&result, FileReadError, Critical, err.Error(), 0)
		}
		result.Valid = false
		return result
	}
	defer f.Close()

	if !v.validateHeader(f, &result) {
		result.Valid = !result.HasCritical()
		return result
	}

	if v.cfg.ScanAllEvents {
		if result.IsCompressed {
			v.validateEventsCompressed(f, &result)
		} else {
			v.validateEventsUncompressed(f, &result)
		}
	}

	if v.cfg.VerifyIndex && result.HasIndex {
		v.validateIndex(f, &result)
	}

	if result.ActualEventCount != result.ReportedEventCount {
		v.addIssue(&result, EventCountMismatch, Warning,
			fmt.Sprintf("header reports %d events, scan found %d", result.ReportedEventCount, result.ActualEventCount), 0)
	}

	result.Valid = !result.HasCritical()
	return result
}

func (v *SegmentValidator) addIssue(r *SegmentResult, t IssueType, sev IssueSeverity, msg string, offset uint64) {
	r.Issues = append(r.Issues, Issue{Type: t, Severity: sev, Message: msg, FileOffset: offset})
}

func (v *SegmentValidator) validateHeader(f *os.File, result *SegmentResult) bool {
	buf := make([]byte, floxfmt.SegmentHeaderSize)
	n, err := io.ReadFull(f, buf)
	if err != nil {
		if n == 0 {
			v.addIssue(result, FileTruncated, Critical, "empty file", 0)
		} else {
			v.addIssue(result, HeaderCorrupted, Critical, err.Error(), 0)
		}
		return false
	}
	hdr := floxfmt.DecodeSegmentHeader(buf)
	if hdr.Magic != floxfmt.Magic {
		v.addIssue(result, InvalidMagic, Critical, "magic mismatch", 0)
		return false
	}
	if hdr.Version != floxfmt.FormatVersion {
		v.addIssue(result, InvalidVersion, Critical, fmt.Sprintf("version %d unsupported", hdr.Version), 0)
		return false
	}

	result.HeaderValid = true
	result.ReportedEventCount = hdr.EventCount
	result.ReportedFirstTs = hdr.FirstEventNs
	result.ReportedLastTs = hdr.LastEventNs
	result.IsCompressed = hdr.IsCompressed()
	result.CompressionType = hdr.CompressionType()
	result.HasIndex = hdr.HasIndex()
	return true
}

func (v *SegmentValidator) validateEventsUncompressed(f *os.File, result *SegmentResult) {
	dataEnd := int64(-1)
	if result.HasIndex {
		buf := make([]byte, floxfmt.SegmentHeaderSize)
		f.ReadAt(buf, 0) //nolint:errcheck // already validated above
		hdr := floxfmt.DecodeSegmentHeader(buf)
		dataEnd = int64(hdr.IndexOffset)
	} else if fi, err := f.Stat(); err == nil {
		dataEnd = fi.Size()
	}

	f.Seek(floxfmt.SegmentHeaderSize, io.SeekStart)
	r := bufio.NewReader(f)
	pos := int64(floxfmt.SegmentHeaderSize)
	var lastTs int64
	var eventIndex uint64

	for dataEnd < 0 || pos < dataEnd {
		frameOffset := pos
		fhBuf := make([]byte, floxfmt.FrameHeaderSize)
		if _, err := io.ReadFull(r, fhBuf); err != nil {
			if err != io.EOF {
				v.addIssue(result, FrameTruncated, Error, err.Error(), uint64(frameOffset))
			}
			break
		}
		fh := floxfmt.DecodeFrameHeader(fhBuf)
		if fh.Size > floxfmt.MaxFrameSize {
			v.addIssue(result, FrameSizeTooLarge, Critical, fmt.Sprintf("frame size %d", fh.Size), uint64(frameOffset))
			if v.cfg.StopOnFirstError {
				return
			}
			break
		}
		payload := make([]byte, fh.Size)
		if _, err := io.ReadFull(r, payload); err != nil {
			v.addIssue(result, FrameTruncated, Critical, err.Error(), uint64(frameOffset))
			break
		}
		pos += int64(floxfmt.FrameHeaderSize) + int64(fh.Size)
		result.BytesScanned = uint64(pos - floxfmt.SegmentHeaderSize)

		if v.cfg.VerifyCRC && floxfmt.CRC32(payload) != fh.CRC32 {
			result.CRCErrors++
			v.addIssue(result, FrameCRCMismatch, Error, "CRC mismatch", uint64(frameOffset))
			if v.cfg.StopOnFirstError {
				return
			}
		}

		ts := v.checkEvent(result, floxfmt.EventKind(fh.Kind), payload, &lastTs, eventIndex, frameOffset)
		result.ActualLastTs = ts
		if result.ActualEventCount == 0 {
			result.ActualFirstTs = ts
		}
		result.ActualEventCount++
		eventIndex++
	}
}

func (v *SegmentValidator) validateEventsCompressed(f *os.File, result *SegmentResult) {
	codec, err := compress.ForType(result.CompressionType)
	if err != nil {
		v.addIssue(result, BlockDecompressionFailed, Critical, err.Error(), 0)
		return
	}

	dataEnd := int64(-1)
	if result.HasIndex {
		buf := make([]byte, floxfmt.SegmentHeaderSize)
		f.ReadAt(buf, 0) //nolint:errcheck
		hdr := floxfmt.DecodeSegmentHeader(buf)
		dataEnd = int64(hdr.IndexOffset)
	} else if fi, err := f.Stat(); err == nil {
		dataEnd = fi.Size()
	}

	f.Seek(floxfmt.SegmentHeaderSize, io.SeekStart)
	r := bufio.NewReader(f)
	pos := int64(floxfmt.SegmentHeaderSize)
	var lastTs int64
	var eventIndex uint64

	for dataEnd < 0 || pos < dataEnd {
		blockOffset := pos
		bhBuf := make([]byte, floxfmt.CompressedBlockHeaderSize)
		if _, err := io.ReadFull(r, bhBuf); err != nil {
			break
		}
		bh := floxfmt.DecodeCompressedBlockHeader(bhBuf)
		if !bh.IsValid() {
			v.addIssue(result, BlockMagicInvalid, Critical, "bad block magic", uint64(blockOffset))
			if v.cfg.StopOnFirstError {
				return
			}
			break
		}
		compressed := make([]byte, bh.CompressedSize)
		if _, err := io.ReadFull(r, compressed); err != nil {
			v.addIssue(result, FrameTruncated, Critical, err.Error(), uint64(blockOffset))
			break
		}
		pos += int64(floxfmt.CompressedBlockHeaderSize) + int64(bh.CompressedSize)
		result.BytesScanned = uint64(pos - floxfmt.SegmentHeaderSize)

		raw, err := codec.Decode(compressed, int(bh.OriginalSize))
		if err != nil {
			v.addIssue(result, BlockDecompressionFailed, Critical, err.Error(), uint64(blockOffset))
			if v.cfg.StopOnFirstError {
				return
			}
			continue
		}

		off := 0
		for off+floxfmt.FrameHeaderSize <= len(raw) {
			fh := floxfmt.DecodeFrameHeader(raw[off : off+floxfmt.FrameHeaderSize])
			off += floxfmt.FrameHeaderSize
			if off+int(fh.Size) > len(raw) {
				v.addIssue(result, FrameTruncated, Error, "truncated frame inside block", uint64(blockOffset))
				break
			}
			payload := raw[off : off+int(fh.Size)]
			off += int(fh.Size)

			if v.cfg.VerifyCRC && floxfmt.CRC32(payload) != fh.CRC32 {
				result.CRCErrors++
				v.addIssue(result, FrameCRCMismatch, Error, "CRC mismatch inside block", uint64(blockOffset))
			}

			ts := v.checkEvent(result, floxfmt.EventKind(fh.Kind), payload, &lastTs, eventIndex, blockOffset)
			result.ActualLastTs = ts
			if result.ActualEventCount == 0 {
				result.ActualFirstTs = ts
			}
			result.ActualEventCount++
			eventIndex++
		}
	}
}

func (v *SegmentValidator) checkEvent(result *SegmentResult, kind floxfmt.EventKind, payload []byte, lastTs *int64, eventIndex uint64, offset int64) int64 {
	var ts int64
	switch kind {
	case floxfmt.KindTrade:
		result.TradesFound++
		if len(payload) >= floxfmt.TradeRecordSize {
			ts = floxfmt.DecodeTradeRecord(payload).ExchangeTsNs
		}
	case floxfmt.KindBookSnapshot, floxfmt.KindBookDelta:
		result.BookUpdatesFound++
		if len(payload) >= floxfmt.BookRecordHeaderSize {
			ts = floxfmt.DecodeBookRecordHeader(payload).ExchangeTsNs
		}
	default:
		v.addIssue(result, FrameTypeUnknown, Warning, fmt.Sprintf("unknown kind %d", uint8(kind)), uint64(offset))
	}

	if v.cfg.VerifyTimestamps && eventIndex > 0 {
		if ts < *lastTs {
			result.TimestampAnomalies++
			v.addIssue(result, TimestampOutOfOrder, Warning, fmt.Sprintf("ts %d after %d", ts, *lastTs), uint64(offset))
		} else if ts-*lastTs > v.cfg.MaxTimestampJumpNs {
			result.TimestampAnomalies++
			v.addIssue(result, TimestampJumpTooLarge, Warning, fmt.Sprintf("jump of %dns", ts-*lastTs), uint64(offset))
		}
	}
	*lastTs = ts
	return ts
}

func (v *SegmentValidator) validateIndex(f *os.File, result *SegmentResult) {
	buf := make([]byte, floxfmt.SegmentHeaderSize)
	f.ReadAt(buf, 0) //nolint:errcheck
	hdr := floxfmt.DecodeSegmentHeader(buf)

	idxHdrBuf := make([]byte, floxfmt.SegmentIndexHeaderSize)
	if _, err := f.ReadAt(idxHdrBuf, int64(hdr.IndexOffset)); err != nil {
		v.addIssue(result, IndexOutOfBounds, Error, err.Error(), hdr.IndexOffset)
		return
	}
	idxHdr := floxfmt.DecodeSegmentIndexHeader(idxHdrBuf)
	if !idxHdr.IsValid() {
		v.addIssue(result, IndexMagicInvalid, Error, "bad index magic/version", hdr.IndexOffset)
		return
	}
	result.IndexEntryCount = idxHdr.EntryCount

	entriesBuf := make([]byte, int(idxHdr.EntryCount)*floxfmt.IndexEntrySize)
	entriesOff := int64(hdr.IndexOffset) + floxfmt.SegmentIndexHeaderSize
	if _, err := f.ReadAt(entriesBuf, entriesOff); err != nil {
		v.addIssue(result, IndexOutOfBounds, Error, err.Error(), uint64(entriesOff))
		return
	}
	if floxfmt.CRC32(entriesBuf) != idxHdr.CRC32 {
		v.addIssue(result, IndexCRCMismatch, Error, "index CRC mismatch", uint64(entriesOff))
		return
	}

	var lastTs int64
	sorted := true
	for i := 0; i < int(idxHdr.EntryCount); i++ {
		e := floxfmt.DecodeIndexEntry(entriesBuf[i*floxfmt.IndexEntrySize : (i+1)*floxfmt.IndexEntrySize])
		if i > 0 && e.TimestampNs < lastTs {
			sorted = false
		}
		lastTs = e.TimestampNs
	}
	if !sorted {
		v.addIssue(result, IndexNotSorted, Warning, "index entries not monotonic", hdr.IndexOffset)
	}
	result.IndexValid = true
}

// IsValidSegment is a convenience check: valid header and no Error/Critical issues.
func IsValidSegment(path string) bool {
	r := NewSegmentValidator(DefaultConfig()).Validate(path)
	return r.Valid && !r.HasErrors()
}

// DatasetResult aggregates per-segment results across a directory.
type DatasetResult struct {
	DataDir           string
	Valid             bool
	Segments          []SegmentResult
	TotalSegments     uint32
	ValidSegments     uint32
	CorruptedSegments uint32
	TotalEvents       uint64
	TotalBytes        uint64
	FirstTimestamp    int64
	LastTimestamp     int64
	TotalErrors       uint32
	TotalWarnings     uint32
}

// DatasetValidator runs SegmentValidator over every segment in a directory.
type DatasetValidator struct {
	cfg Config
}

func NewDatasetValidator(cfg Config) *DatasetValidator { return &DatasetValidator{cfg: cfg} }

func (v *DatasetValidator) Validate(dataDir string) DatasetResult {
	result := DatasetResult{DataDir: dataDir, Valid: true}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		result.Valid = false
		return result
	}

	sv := NewSegmentValidator(v.cfg)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".floxlog" {
			continue
		}
		segResult := sv.Validate(filepath.Join(dataDir, e.Name()))
		result.Segments = append(result.Segments, segResult)
		result.TotalSegments++
		if segResult.Valid {
			result.ValidSegments++
		} else {
			result.CorruptedSegments++
			result.Valid = false
		}
		result.TotalEvents += uint64(segResult.ActualEventCount)
		for _, issue := range segResult.Issues {
			switch issue.Severity {
			case Error, Critical:
				result.TotalErrors++
			case Warning:
				result.TotalWarnings++
			}
		}
		if result.TotalSegments == 1 || segResult.ActualFirstTs < result.FirstTimestamp {
			result.FirstTimestamp = segResult.ActualFirstTs
		}
		if segResult.ActualLastTs > result.LastTimestamp {
			result.LastTimestamp = segResult.ActualLastTs
		}
		if fi, err := os.Stat(filepath.Join(dataDir, e.Name())); err == nil {
			result.TotalBytes += uint64(fi.Size())
		}
	}

	return result
}

// IsValidDataset is a convenience check over DatasetValidator.
func IsValidDataset(dataDir string) bool {
	return NewDatasetValidator(DefaultConfig()).Validate(dataDir).Valid
}
