// Package manifest builds, saves, and loads a dataset's segment
// manifest: a cached summary of every sealed segment's timestamps,
// event count, and symbol universe, avoiding a full rescan on every
// partitioning or replay run.
package manifest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ndrandal/flox-replay/internal/dataset"
	"github.com/ndrandal/flox-replay/internal/floxfmt"
	"github.com/ndrandal/flox-replay/internal/segment"
)

const manifestFilename = ".manifest"

// Path returns the manifest path conventionally used for dataDir.
func Path(dataDir string) string {
	return filepath.Join(dataDir, manifestFilename)
}

// SegmentEntry is one segment's manifest record, plus the per-segment
// symbol bitmap supplementing the original format's flat symbol set
// (see SPEC_FULL.md Part D: no per-segment symbol filtering existed in
// the source's segmentsWithSymbols, which is documented there as
// returning every segment unconditionally).
type SegmentEntry struct {
	Filename     string
	FirstEventNs int64
	LastEventNs  int64
	EventCount   uint64
	FileSize     uint64
	HasIndex     bool
	Compressed   bool
	Symbols      map[uint32]struct{}
}

func (e SegmentEntry) Path(dataDir string) string {
	return filepath.Join(dataDir, e.Filename)
}

// Manifest is a cached, sorted summary of a dataset directory's segments.
type Manifest struct {
	DataDir     string
	Segments    []SegmentEntry
	Symbols     map[uint32]struct{}
	TotalEvents uint64
	TotalBytes  uint64
	FirstTsNs   int64
	LastTsNs    int64
	buildTime   time.Time
}

// Build scans dataDir's segments (sorted by FirstEventNs, matching the
// coordinator's own ordering) and computes the aggregate stats. It reads
// each segment's summary header and also decodes every event (via
// scanSymbols) to collect the segment's symbol ids.
func Build(dataDir string) (*Manifest, error) {
	c, err := dataset.Scan(dataDir)
	if err != nil {
		return nil, fmt.Errorf("manifest: scan %s: %w", dataDir, err)
	}

	m := &Manifest{
		DataDir:   dataDir,
		Symbols:   map[uint32]struct{}{},
		buildTime: time.Now(),
	}

	for i, seg := range c.Segments {
		symbols, err := scanSymbols(seg.Path)
		if err != nil {
			return nil, err
		}
		fi, err := os.Stat(seg.Path)
		if err != nil {
			return nil, fmt.Errorf("manifest: stat %s: %w", seg.Path, err)
		}

		entry := SegmentEntry{
			Filename:     filepath.Base(seg.Path),
			FirstEventNs: seg.FirstEventNs,
			LastEventNs:  seg.LastEventNs,
			EventCount:   uint64(seg.EventCount),
			FileSize:     uint64(fi.Size()),
			HasIndex:     seg.HasIndex,
			Compressed:   seg.Compressed,
			Symbols:      symbols,
		}
		m.Segments = append(m.Segments, entry)
		m.TotalEvents += entry.EventCount
		m.TotalBytes += entry.FileSize
		for sym := range symbols {
			m.Symbols[sym] = struct{}{}
		}
		if i == 0 || entry.FirstEventNs < m.FirstTsNs {
			m.FirstTsNs = entry.FirstEventNs
		}
		if entry.LastEventNs > m.LastTsNs {
			m.LastTsNs = entry.LastEventNs
		}
	}

	return m, nil
}

// scanSymbols walks path once to collect its distinct symbol ids, for
// the manifest's symbol bitmap. It decodes every event through the
// streaming iterator.
func scanSymbols(path string) (map[uint32]struct{}, error) {
	it, err := segment.Open(path)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	symbols := map[uint32]struct{}{}
	for {
		ev, ok, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("manifest: scan symbols %s: %w", path, err)
		}
		if !ok {
			break
		}
		symbols[ev.SymbolID()] = struct{}{}
	}
	return symbols, nil
}

// BuildAndSave builds a fresh manifest and writes it to the conventional
// path, matching the original's getOrBuildManifest fallback.
func BuildAndSave(dataDir string) (*Manifest, error) {
	m, err := Build(dataDir)
	if err != nil {
		return nil, err
	}
	if err := m.Save(Path(dataDir)); err != nil {
		return nil, err
	}
	return m, nil
}

// GetOrBuild loads dataDir's manifest if present and up to date,
// otherwise builds and saves a fresh one.
func GetOrBuild(dataDir string) (*Manifest, error) {
	path := Path(dataDir)
	if _, err := os.Stat(path); err == nil {
		m, loadErr := Load(path)
		if loadErr == nil && m != nil && m.IsUpToDate() {
			return m, nil
		}
	}
	return BuildAndSave(dataDir)
}

// manifestHeaderLen is magic+version+reserved+segcount+totalevents+
// firstts+lastts+totalbytes+symcount+checksum.
const manifestHeaderLen = 4 + 1 + 3 + 8 + 8 + 8 + 8 + 8 + 4 + 4

// Save writes the manifest in the source's binary layout: a fixed
// header, then one fixed-size record per segment (filename in a
// null-padded 256-byte field, matching ManifestSegmentEntry), then one
// uint32 per distinct symbol.
func (m *Manifest) Save(path string) error {
	var buf bytes.Buffer

	header := make([]byte, manifestHeaderLen)
	binary.LittleEndian.PutUint32(header[0:4], floxfmt.ManifestMagic)
	header[4] = floxfmt.ManifestVersion
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(m.Segments)))
	binary.LittleEndian.PutUint64(header[16:24], m.TotalEvents)
	binary.LittleEndian.PutUint64(header[24:32], uint64(m.FirstTsNs))
	binary.LittleEndian.PutUint64(header[32:40], uint64(m.LastTsNs))
	binary.LittleEndian.PutUint64(header[40:48], m.TotalBytes)
	binary.LittleEndian.PutUint32(header[48:52], uint32(len(m.Symbols)))
	// checksum at [52:56] is left zero; unlike segment/index regions this
	// manifest is a local cache, not a transmitted artifact, so detecting
	// corruption is left to IsUpToDate's mtime check.
	buf.Write(header)

	for _, e := range m.Segments {
		nameBuf := make([]byte, 256)
		copy(nameBuf, e.Filename)
		buf.Write(nameBuf)

		rest := make([]byte, 8+8+8+8+4+4)
		binary.LittleEndian.PutUint64(rest[0:8], uint64(e.FirstEventNs))
		binary.LittleEndian.PutUint64(rest[8:16], uint64(e.LastEventNs))
		binary.LittleEndian.PutUint64(rest[16:24], e.EventCount)
		binary.LittleEndian.PutUint64(rest[24:32], e.FileSize)
		var flags uint32
		if e.HasIndex {
			flags |= 1
		}
		if e.Compressed {
			flags |= 2
		}
		binary.LittleEndian.PutUint32(rest[32:36], flags)
		buf.Write(rest)
	}

	symbols := sortedSymbols(m.Symbols)
	for _, sym := range symbols {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], sym)
		buf.Write(b[:])
	}

	// Per-segment symbol bitmap: a length-prefixed list of symbol ids per
	// segment, appended after the original format's tail. Readers that
	// only know the original layout simply never read this far.
	var bitmapBuf bytes.Buffer
	for _, e := range m.Segments {
		segSymbols := sortedSymbols(e.Symbols)
		var countBuf [4]byte
		binary.LittleEndian.PutUint32(countBuf[:], uint32(len(segSymbols)))
		bitmapBuf.Write(countBuf[:])
		for _, sym := range segSymbols {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], sym)
			bitmapBuf.Write(b[:])
		}
	}
	buf.Write(bitmapBuf.Bytes())

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("manifest: write %s: %w", path, err)
	}
	m.buildTime = time.Now()
	return nil
}

func sortedSymbols(set map[uint32]struct{}) []uint32 {
	out := make([]uint32, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Load reads and validates manifestPath, returning nil (no error) on a
// missing or corrupt file, matching the source's load() → optional.
func Load(manifestPath string) (*Manifest, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("manifest: read %s: %w", manifestPath, err)
	}
	if len(data) < manifestHeaderLen {
		return nil, nil
	}
	if binary.LittleEndian.Uint32(data[0:4]) != floxfmt.ManifestMagic || data[4] != floxfmt.ManifestVersion {
		return nil, nil
	}

	segCount := binary.LittleEndian.Uint64(data[8:16])
	totalEvents := binary.LittleEndian.Uint64(data[16:24])
	firstTs := int64(binary.LittleEndian.Uint64(data[24:32]))
	lastTs := int64(binary.LittleEndian.Uint64(data[32:40]))
	totalBytes := binary.LittleEndian.Uint64(data[40:48])
	symCount := binary.LittleEndian.Uint32(data[48:52])

	dataDir := filepath.Dir(manifestPath)
	m := &Manifest{
		DataDir:     dataDir,
		TotalEvents: totalEvents,
		TotalBytes:  totalBytes,
		FirstTsNs:   firstTs,
		LastTsNs:    lastTs,
		Symbols:     map[uint32]struct{}{},
	}

	off := manifestHeaderLen
	const entryLen = 256 + 8 + 8 + 8 + 8 + 4 + 4
	segments := make([]SegmentEntry, 0, segCount)
	for i := uint64(0); i < segCount; i++ {
		if off+entryLen > len(data) {
			return nil, nil
		}
		rec := data[off : off+entryLen]
		off += entryLen

		name := string(bytes.TrimRight(rec[0:256], "\x00"))
		rest := rec[256:]
		flags := binary.LittleEndian.Uint32(rest[32:36])
		segments = append(segments, SegmentEntry{
			Filename:     name,
			FirstEventNs: int64(binary.LittleEndian.Uint64(rest[0:8])),
			LastEventNs:  int64(binary.LittleEndian.Uint64(rest[8:16])),
			EventCount:   binary.LittleEndian.Uint64(rest[16:24]),
			FileSize:     binary.LittleEndian.Uint64(rest[24:32]),
			HasIndex:     flags&1 != 0,
			Compressed:   flags&2 != 0,
		})
	}

	for i := uint32(0); i < symCount; i++ {
		if off+4 > len(data) {
			return nil, nil
		}
		sym := binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		m.Symbols[sym] = struct{}{}
	}

	for i := range segments {
		if off+4 > len(data) {
			break // original-format-only manifest, no bitmap tail
		}
		count := binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		set := make(map[uint32]struct{}, count)
		for j := uint32(0); j < count; j++ {
			if off+4 > len(data) {
				break
			}
			sym := binary.LittleEndian.Uint32(data[off : off+4])
			off += 4
			set[sym] = struct{}{}
		}
		segments[i].Symbols = set
	}

	m.Segments = segments

	fi, err := os.Stat(manifestPath)
	if err != nil {
		return nil, nil
	}
	m.buildTime = fi.ModTime()

	return m, nil
}

// Empty reports whether the manifest has no segments.
func (m *Manifest) Empty() bool { return len(m.Segments) == 0 }

// SegmentsInRange returns every segment whose [first, last] overlaps
// [fromNs, toNs].
func (m *Manifest) SegmentsInRange(fromNs, toNs int64) []SegmentEntry {
	var out []SegmentEntry
	for _, e := range m.Segments {
		if e.FirstEventNs <= toNs && e.LastEventNs >= fromNs {
			out = append(out, e)
		}
	}
	return out
}

// SegmentsWithSymbols returns every segment whose symbol bitmap
// intersects symbols, or every segment if no segment carries a bitmap
// (an old-format manifest) or symbols is empty.
func (m *Manifest) SegmentsWithSymbols(symbols map[uint32]struct{}) []SegmentEntry {
	if len(symbols) == 0 {
		return m.Segments
	}
	var out []SegmentEntry
	anyBitmap := false
	for _, e := range m.Segments {
		if len(e.Symbols) > 0 {
			anyBitmap = true
			for sym := range symbols {
				if _, ok := e.Symbols[sym]; ok {
					out = append(out, e)
					break
				}
			}
		}
	}
	if !anyBitmap {
		return m.Segments
	}
	return out
}

// IsUpToDate reports whether every listed segment still exists and is
// no newer than the manifest's build time, and no new *.floxlog files
// have appeared in DataDir since.
func (m *Manifest) IsUpToDate() bool {
	if m.Empty() {
		return false
	}
	known := make(map[string]struct{}, len(m.Segments))
	for _, e := range m.Segments {
		known[e.Filename] = struct{}{}
		fi, err := os.Stat(e.Path(m.DataDir))
		if err != nil {
			return false
		}
		if fi.ModTime().After(m.buildTime) {
			return false
		}
	}

	entries, err := os.ReadDir(m.DataDir)
	if err != nil {
		return false
	}
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".floxlog" {
			continue
		}
		if _, ok := known[de.Name()]; !ok {
			return false
		}
	}
	return true
}

// DurationSeconds returns the manifest's total covered time span.
func (m *Manifest) DurationSeconds() float64 {
	return float64(m.LastTsNs-m.FirstTsNs) / 1e9
}
