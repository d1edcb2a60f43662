// Package dataset implements the multi-segment coordinator and the
// parallel reader: both operate over a directory of sealed .floxlog
// segments rather than a single file.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ndrandal/flox-replay/internal/event"
	"github.com/ndrandal/flox-replay/internal/filter"
	"github.com/ndrandal/flox-replay/internal/floxfmt"
	"github.com/ndrandal/flox-replay/internal/segment"
)

// SegmentInfo is the summary-header-only metadata the coordinator keeps
// resident for each segment; no file handle is held at rest.
type SegmentInfo struct {
	Path         string
	FirstEventNs int64
	LastEventNs  int64
	EventCount   uint32
	HasIndex     bool
	IndexOffset  uint64
	Compressed   bool
}

// Coordinator enumerates a dataset directory's segments, sorted by first
// timestamp, and iterates across them applying a shared filter.
type Coordinator struct {
	Dir      string
	Segments []SegmentInfo
}

// Scan opens dir, reads each *.floxlog file's summary header only, and
// returns a Coordinator with segments sorted by FirstEventNs ascending.
func Scan(dir string) (*Coordinator, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("dataset: read dir %s: %w", dir, err)
	}

	var segments []SegmentInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".floxlog" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := readSegmentInfo(path)
		if err != nil {
			return nil, err
		}
		segments = append(segments, info)
	}
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].FirstEventNs < segments[j].FirstEventNs
	})

	return &Coordinator{Dir: dir, Segments: segments}, nil
}

func readSegmentInfo(path string) (SegmentInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return SegmentInfo{}, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, floxfmt.SegmentHeaderSize)
	if _, err := f.Read(buf); err != nil {
		return SegmentInfo{}, fmt.Errorf("dataset: read header %s: %w", path, err)
	}
	hdr := floxfmt.DecodeSegmentHeader(buf)
	if !hdr.IsValid() {
		return SegmentInfo{}, fmt.Errorf("dataset: %s: invalid magic/version", path)
	}

	return SegmentInfo{
		Path:         path,
		FirstEventNs: hdr.FirstEventNs,
		LastEventNs:  hdr.LastEventNs,
		EventCount:   hdr.EventCount,
		HasIndex:     hdr.HasIndex(),
		IndexOffset:  hdr.IndexOffset,
		Compressed:   hdr.IsCompressed(),
	}, nil
}

// EventCallback receives one filtered event at a time; returning false
// stops iteration at the next event boundary.
type EventCallback func(event.Event) bool

// ForEach iterates every segment in order, applying f (nil = no filter)
// and delivering passing events to cb until cb returns false or segments
// are exhausted.
func (c *Coordinator) ForEach(f *filter.Filter, cb EventCallback) error {
	for _, seg := range c.Segments {
		stop, err := c.forEachInSegment(seg, f, cb)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

func (c *Coordinator) forEachInSegment(seg SegmentInfo, f *filter.Filter, cb EventCallback) (stop bool, err error) {
	it, err := segment.Open(seg.Path)
	if err != nil {
		return false, err
	}
	defer it.Close()

	for {
		ev, ok, err := it.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if f != nil && f.ExceedsTo(ev.Timestamp()) {
			return false, nil
		}
		if f != nil && !f.Passes(ev) {
			continue
		}
		if !cb(ev) {
			return true, nil
		}
	}
}

// ForEachFrom binary-searches for the first segment that could contain
// startTs, seeks into it via its index (if present) plus a linear skip,
// and iterates forward across the remaining segments in order.
func (c *Coordinator) ForEachFrom(startTs int64, f *filter.Filter, cb EventCallback) error {
	startIdx := sort.Search(len(c.Segments), func(i int) bool {
		return c.Segments[i].LastEventNs >= startTs
	})

	for i := startIdx; i < len(c.Segments); i++ {
		seg := c.Segments[i]
		var stop bool
		var err error
		if i == startIdx {
			stop, err = c.forEachFromInSegment(seg, startTs, f, cb)
		} else {
			stop, err = c.forEachInSegment(seg, f, cb)
		}
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

func (c *Coordinator) forEachFromInSegment(seg SegmentInfo, startTs int64, f *filter.Filter, cb EventCallback) (stop bool, err error) {
	it, err := segment.Open(seg.Path)
	if err != nil {
		return false, err
	}
	defer it.Close()

	if seg.HasIndex {
		if err := it.LoadIndex(); err != nil {
			return false, err
		}
		if err := it.SeekToTimestamp(startTs); err != nil {
			return false, err
		}
	}

	for {
		ev, ok, err := it.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if ev.Timestamp() < startTs {
			continue // linear skip to the true start, per §4.6
		}
		if f != nil && f.ExceedsTo(ev.Timestamp()) {
			return false, nil
		}
		if f != nil && !f.Passes(ev) {
			continue
		}
		if !cb(ev) {
			return true, nil
		}
	}
}

// Summary aggregates first/last timestamp and total event count across
// every segment.
type Summary struct {
	TotalEvents  uint64
	FirstEventNs int64
	LastEventNs  int64
	SegmentCount int
}

func (c *Coordinator) Summary() Summary {
	var s Summary
	s.SegmentCount = len(c.Segments)
	for i, seg := range c.Segments {
		s.TotalEvents += uint64(seg.EventCount)
		if i == 0 || seg.FirstEventNs < s.FirstEventNs {
			s.FirstEventNs = seg.FirstEventNs
		}
		if seg.LastEventNs > s.LastEventNs {
			s.LastEventNs = seg.LastEventNs
		}
	}
	return s
}
