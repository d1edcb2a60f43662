package segment

import (
	"fmt"
	"os"
	"sort"
	"syscall"

	"github.com/ndrandal/flox-replay/internal/event"
	"github.com/ndrandal/flox-replay/internal/floxfmt"
)

// MmapReader maps an uncompressed segment file read-only and walks its
// frames by pointer advance instead of buffered I/O. Compressed segments
// are rejected — callers fall back to Iterator for those, per §4.5.
//
// No library in the example pack maps files directly (see DESIGN.md); this
// is the one component in the repository built straight on syscall.Mmap.
type MmapReader struct {
	file   *os.File
	data   []byte
	header floxfmt.SegmentHeader

	dataStart int64
	dataEnd   int64
	pos       int64

	index       []floxfmt.IndexEntry
	indexLoaded bool
}

// OpenMmap maps path read-only for random-access frame walking.
func OpenMmap(path string) (*MmapReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("segment: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment: stat %s: %w", path, err)
	}
	if fi.Size() < floxfmt.SegmentHeaderSize {
		f.Close()
		return nil, fmt.Errorf("segment: %s: too small to hold a header", path)
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment: mmap %s: %w", path, err)
	}

	hdr := floxfmt.DecodeSegmentHeader(data[:floxfmt.SegmentHeaderSize])
	if !hdr.IsValid() {
		syscall.Munmap(data)
		f.Close()
		return nil, fmt.Errorf("segment: %s: invalid magic/version", path)
	}
	if hdr.IsCompressed() {
		syscall.Munmap(data)
		f.Close()
		return nil, fmt.Errorf("segment: %s: compressed segments are not mappable, use Iterator", path)
	}

	dataEnd := int64(len(data))
	if hdr.HasIndex() {
		dataEnd = int64(hdr.IndexOffset)
	}

	return &MmapReader{
		file:      f,
		data:      data,
		header:    hdr,
		dataStart: floxfmt.SegmentHeaderSize,
		dataEnd:   dataEnd,
		pos:       floxfmt.SegmentHeaderSize,
	}, nil
}

func (m *MmapReader) Header() floxfmt.SegmentHeader { return m.header }

// Close unmaps the file and releases the handle.
func (m *MmapReader) Close() error {
	if err := syscall.Munmap(m.data); err != nil {
		m.file.Close()
		return fmt.Errorf("segment: munmap: %w", err)
	}
	return m.file.Close()
}

// Next advances the read pointer by one frame and returns its decoded
// event, or (zero, false, nil) at the data boundary.
func (m *MmapReader) Next() (event.Event, bool, error) {
	if m.pos >= m.dataEnd {
		return event.Event{}, false, nil
	}
	if m.pos+floxfmt.FrameHeaderSize > int64(len(m.data)) {
		return event.Event{}, false, fmt.Errorf("segment: truncated frame header at offset %d", m.pos)
	}
	// Frame headers are 12 bytes and break natural 8-byte alignment, so
	// fields are copied out field-by-field rather than cast in place.
	fh := floxfmt.DecodeFrameHeader(m.data[m.pos : m.pos+floxfmt.FrameHeaderSize])
	if fh.Size > floxfmt.MaxFrameSize {
		return event.Event{}, false, fmt.Errorf("segment: frame size %d exceeds max %d", fh.Size, floxfmt.MaxFrameSize)
	}

	payloadStart := m.pos + floxfmt.FrameHeaderSize
	payloadEnd := payloadStart + int64(fh.Size)
	if payloadEnd > int64(len(m.data)) {
		return event.Event{}, false, fmt.Errorf("segment: truncated frame payload at offset %d", m.pos)
	}
	payload := m.data[payloadStart:payloadEnd]
	if floxfmt.CRC32(payload) != fh.CRC32 {
		return event.Event{}, false, fmt.Errorf("segment: frame CRC mismatch at offset %d", m.pos)
	}

	ev, err := decodeFramePayload(floxfmt.EventKind(fh.Kind), payload)
	if err != nil {
		return event.Event{}, false, err
	}
	m.pos = payloadEnd
	return ev, true, nil
}

// LoadIndex reads the index region out of the mapping.
func (m *MmapReader) LoadIndex() error {
	if m.indexLoaded {
		return nil
	}
	if !m.header.HasIndex() {
		return fmt.Errorf("segment: no index present")
	}
	off := int64(m.header.IndexOffset)
	if off+floxfmt.SegmentIndexHeaderSize > int64(len(m.data)) {
		return fmt.Errorf("segment: index header out of bounds")
	}
	idxHdr := floxfmt.DecodeSegmentIndexHeader(m.data[off : off+floxfmt.SegmentIndexHeaderSize])
	if !idxHdr.IsValid() {
		return fmt.Errorf("segment: invalid index magic/version")
	}

	entriesOff := off + floxfmt.SegmentIndexHeaderSize
	entriesLen := int64(idxHdr.EntryCount) * floxfmt.IndexEntrySize
	if entriesOff+entriesLen > int64(len(m.data)) {
		return fmt.Errorf("segment: index entries out of bounds")
	}
	entriesBuf := m.data[entriesOff : entriesOff+entriesLen]
	if floxfmt.CRC32(entriesBuf) != idxHdr.CRC32 {
		return fmt.Errorf("segment: index CRC mismatch")
	}

	entries := make([]floxfmt.IndexEntry, idxHdr.EntryCount)
	for i := range entries {
		entries[i] = floxfmt.DecodeIndexEntry(entriesBuf[i*floxfmt.IndexEntrySize : (i+1)*floxfmt.IndexEntrySize])
	}
	m.index = entries
	m.indexLoaded = true
	m.pos = m.dataStart
	return nil
}

// SeekToTimestamp repositions the read pointer at the largest index entry
// with ts <= target, or the data start if none.
func (m *MmapReader) SeekToTimestamp(target int64) error {
	if !m.indexLoaded {
		return fmt.Errorf("segment: index not loaded")
	}
	if len(m.index) == 0 {
		m.pos = m.dataStart
		return nil
	}
	n := sort.Search(len(m.index), func(i int) bool {
		return m.index[i].TimestampNs > target
	})
	if n == 0 {
		m.pos = m.dataStart
		return nil
	}
	m.pos = int64(m.index[n-1].FileOffset)
	return nil
}
