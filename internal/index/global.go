package index

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ndrandal/flox-replay/internal/floxfmt"
)

// GlobalBuildResult reports what BuildGlobal did.
type GlobalBuildResult struct {
	Success         bool
	Error           string
	SegmentsIndexed uint32
	TotalEvents     uint64
}

// GlobalSegment pairs a GlobalIndexSegment record with its filename, as
// returned by LoadGlobal (the wire format stores names in a trailing
// string table, not inline).
type GlobalSegment struct {
	floxfmt.GlobalIndexSegment
	Filename string
}

// BuildGlobal aggregates every *.floxlog summary header in dataDir into a
// dataset-wide index.floxidx at outputPath (defaults to
// "<dataDir>/index.floxidx" when empty).
func BuildGlobal(dataDir, outputPath string) GlobalBuildResult {
	if outputPath == "" {
		outputPath = filepath.Join(dataDir, "index.floxidx")
	}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return GlobalBuildResult{Error: err.Error()}
	}

	type segWithName struct {
		name string
		rec  floxfmt.GlobalIndexSegment
	}
	var segs []segWithName
	var firstNs, lastNs int64
	var totalEvents uint64

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".floxlog" {
			continue
		}
		path := filepath.Join(dataDir, e.Name())
		hdr, size, err := readHeaderAndSize(path)
		if err != nil {
			return GlobalBuildResult{Error: err.Error()}
		}
		var flags uint32
		if hdr.IsCompressed() {
			flags |= uint32(floxfmt.FlagCompressed)
		}
		if hdr.HasIndex() {
			flags |= uint32(floxfmt.FlagHasIndex)
		}
		segs = append(segs, segWithName{
			name: e.Name(),
			rec: floxfmt.GlobalIndexSegment{
				FirstEventNs: hdr.FirstEventNs,
				LastEventNs:  hdr.LastEventNs,
				EventCount:   hdr.EventCount,
				Flags:        flags,
				FileSize:     uint64(size),
			},
		})
		totalEvents += uint64(hdr.EventCount)
		if len(segs) == 1 || hdr.FirstEventNs < firstNs {
			firstNs = hdr.FirstEventNs
		}
		if hdr.LastEventNs > lastNs {
			lastNs = hdr.LastEventNs
		}
	}

	sort.Slice(segs, func(i, j int) bool { return segs[i].rec.FirstEventNs < segs[j].rec.FirstEventNs })

	var stringTable bytes.Buffer
	segRecords := make([]floxfmt.GlobalIndexSegment, len(segs))
	for i, s := range segs {
		s.rec.FilenameOffset = uint64(stringTable.Len())
		segRecords[i] = s.rec
		stringTable.WriteString(s.name)
		stringTable.WriteByte(0)
	}

	segBuf := make([]byte, len(segRecords)*floxfmt.GlobalIndexSegmentSize)
	for i, s := range segRecords {
		s.Encode(segBuf[i*floxfmt.GlobalIndexSegmentSize : (i+1)*floxfmt.GlobalIndexSegmentSize])
	}

	header := floxfmt.GlobalIndexHeader{
		Magic:             floxfmt.GlobalIndexMagic,
		Version:           floxfmt.GlobalIndexVersion,
		FirstEventNs:      firstNs,
		LastEventNs:       lastNs,
		SegmentCount:      uint32(len(segRecords)),
		CRC32:             floxfmt.CRC32(segBuf),
		TotalEvents:       totalEvents,
		StringTableOffset: floxfmt.GlobalIndexHeaderSize + uint64(len(segBuf)),
	}
	hdrBuf := make([]byte, floxfmt.GlobalIndexHeaderSize)
	header.Encode(hdrBuf)

	f, err := os.Create(outputPath)
	if err != nil {
		return GlobalBuildResult{Error: err.Error()}
	}
	defer f.Close()
	if _, err := f.Write(hdrBuf); err != nil {
		return GlobalBuildResult{Error: err.Error()}
	}
	if _, err := f.Write(segBuf); err != nil {
		return GlobalBuildResult{Error: err.Error()}
	}
	if _, err := f.Write(stringTable.Bytes()); err != nil {
		return GlobalBuildResult{Error: err.Error()}
	}

	return GlobalBuildResult{Success: true, SegmentsIndexed: uint32(len(segRecords)), TotalEvents: totalEvents}
}

func readHeaderAndSize(path string) (floxfmt.SegmentHeader, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return floxfmt.SegmentHeader{}, 0, fmt.Errorf("index: open %s: %w", path, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return floxfmt.SegmentHeader{}, 0, err
	}
	buf := make([]byte, floxfmt.SegmentHeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return floxfmt.SegmentHeader{}, 0, fmt.Errorf("index: read header %s: %w", path, err)
	}
	hdr := floxfmt.DecodeSegmentHeader(buf)
	if !hdr.IsValid() {
		return floxfmt.SegmentHeader{}, 0, fmt.Errorf("index: %s: invalid magic/version", path)
	}
	return hdr, fi.Size(), nil
}

// LoadGlobal reads and validates a global index.floxidx file, resolving
// each record's filename from the trailing string table.
func LoadGlobal(indexPath string) ([]GlobalSegment, error) {
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("index: read %s: %w", indexPath, err)
	}
	if len(data) < floxfmt.GlobalIndexHeaderSize {
		return nil, fmt.Errorf("index: %s: too small to hold a header", indexPath)
	}
	header := floxfmt.DecodeGlobalIndexHeader(data[:floxfmt.GlobalIndexHeaderSize])
	if !header.IsValid() {
		return nil, fmt.Errorf("index: %s: invalid magic/version", indexPath)
	}

	segBufLen := int(header.SegmentCount) * floxfmt.GlobalIndexSegmentSize
	segStart := floxfmt.GlobalIndexHeaderSize
	segEnd := segStart + segBufLen
	if segEnd > len(data) {
		return nil, fmt.Errorf("index: %s: segment records out of bounds", indexPath)
	}
	segBuf := data[segStart:segEnd]
	if floxfmt.CRC32(segBuf) != header.CRC32 {
		return nil, fmt.Errorf("index: %s: CRC mismatch", indexPath)
	}

	stringTable := data[header.StringTableOffset:]

	out := make([]GlobalSegment, header.SegmentCount)
	for i := range out {
		rec := floxfmt.DecodeGlobalIndexSegment(segBuf[i*floxfmt.GlobalIndexSegmentSize : (i+1)*floxfmt.GlobalIndexSegmentSize])
		out[i] = GlobalSegment{GlobalIndexSegment: rec, Filename: readCString(stringTable, rec.FilenameOffset)}
	}
	return out, nil
}

func readCString(buf []byte, offset uint64) string {
	if offset >= uint64(len(buf)) {
		return ""
	}
	end := offset
	for end < uint64(len(buf)) && buf[end] != 0 {
		end++
	}
	return string(buf[offset:end])
}
