package manifest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// CalendarUnit names a partitionByCalendar slice width.
type CalendarUnit int

const (
	CalendarHour CalendarUnit = iota
	CalendarDay
	CalendarWeek
	CalendarMonth
)

func (u CalendarUnit) nanos() int64 {
	const ns = int64(1_000_000_000)
	switch u {
	case CalendarHour:
		return 3600 * ns
	case CalendarWeek:
		return 7 * 24 * 3600 * ns
	case CalendarMonth:
		return 30 * 24 * 3600 * ns // approximate, as in the source
	default:
		return 24 * 3600 * ns
	}
}

// Partition is one time- or symbol-scoped slice of a dataset, with the
// segments and (estimated) stats needed to run a backtest over it.
type Partition struct {
	PartitionID     uint32
	FromNs          int64
	ToNs            int64
	WarmupFromNs    int64
	Segments        []SegmentEntry
	Symbols         map[uint32]struct{}
	EstimatedEvents uint64
	EstimatedBytes  uint64
}

func (p Partition) WarmupDuration() int64    { return p.FromNs - p.WarmupFromNs }
func (p Partition) ProcessingDuration() int64 { return p.ToNs - p.FromNs }
func (p Partition) TotalDuration() int64      { return p.ToNs - p.WarmupFromNs }
func (p Partition) HasWarmup() bool           { return p.WarmupFromNs < p.FromNs }
func (p Partition) HasSymbolFilter() bool     { return len(p.Symbols) > 0 }

// Partitioner slices a manifest's dataset into partitions for parallel
// backtesting, by time, calendar unit, event count, or symbol.
type Partitioner struct {
	m *Manifest
}

// NewPartitioner wraps an already-built manifest.
func NewPartitioner(m *Manifest) *Partitioner { return &Partitioner{m: m} }

// NewPartitionerForDir loads or builds dataDir's manifest and wraps it.
func NewPartitionerForDir(dataDir string) (*Partitioner, error) {
	m, err := GetOrBuild(dataDir)
	if err != nil {
		return nil, err
	}
	return &Partitioner{m: m}, nil
}

func (p *Partitioner) Manifest() *Manifest { return p.m }

func (p *Partitioner) TotalDuration() int64 {
	return p.m.LastTsNs - p.m.FirstTsNs
}

// PartitionByTime splits [first_ts, last_ts] into numPartitions
// equal-duration slices, each with warmupFromNs = max(first_ts, from -
// warmupNs).
func (p *Partitioner) PartitionByTime(numPartitions uint32, warmupNs int64) []Partition {
	if numPartitions == 0 || p.m.Empty() {
		return nil
	}
	first, last := p.m.FirstTsNs, p.m.LastTsNs
	sliceDuration := (last - first) / int64(numPartitions)

	out := make([]Partition, 0, numPartitions)
	for i := uint32(0); i < numPartitions; i++ {
		part := Partition{PartitionID: i, FromNs: first + int64(i)*sliceDuration}
		if i == numPartitions-1 {
			part.ToNs = last
		} else {
			part.ToNs = first + int64(i+1)*sliceDuration
		}
		part.WarmupFromNs = maxI64(first, part.FromNs-warmupNs)
		p.assignSegments(&part)
		p.estimateStats(&part)
		out = append(out, part)
	}
	return out
}

// PartitionByDuration produces fixed-width slices of sliceDurationNs
// until the dataset is covered.
func (p *Partitioner) PartitionByDuration(sliceDurationNs, warmupNs int64) []Partition {
	if sliceDurationNs <= 0 || p.m.Empty() {
		return nil
	}
	first, last := p.m.FirstTsNs, p.m.LastTsNs

	var out []Partition
	current := first
	var id uint32
	for current < last {
		part := Partition{PartitionID: id, FromNs: current, ToNs: minI64(current+sliceDurationNs, last)}
		part.WarmupFromNs = maxI64(first, part.FromNs-warmupNs)
		p.assignSegments(&part)
		p.estimateStats(&part)
		out = append(out, part)
		id++
		current += sliceDurationNs
	}
	return out
}

// PartitionByCalendar is a thin wrapper over PartitionByDuration.
func (p *Partitioner) PartitionByCalendar(unit CalendarUnit, warmupNs int64) []Partition {
	return p.PartitionByDuration(unit.nanos(), warmupNs)
}

// PartitionBySymbol distributes the symbol universe across
// numPartitions partitions; each partition spans the whole dataset's
// time range and lists every segment (symbol filtering applies at read
// time via the segment entries' bitmap).
func (p *Partitioner) PartitionBySymbol(numPartitions uint32) []Partition {
	if numPartitions == 0 || p.m.Empty() || len(p.m.Symbols) == 0 {
		return nil
	}
	all := sortedSymbols(p.m.Symbols)
	perPartition := (uint32(len(all)) + numPartitions - 1) / numPartitions

	var out []Partition
	for i := uint32(0); i < numPartitions; i++ {
		start := i * perPartition
		end := minU32(start+perPartition, uint32(len(all)))
		if start >= end {
			continue
		}
		part := Partition{
			PartitionID:  i,
			FromNs:       p.m.FirstTsNs,
			ToNs:         p.m.LastTsNs,
			WarmupFromNs: p.m.FirstTsNs,
			Symbols:      map[uint32]struct{}{},
			Segments:     p.m.Segments,
		}
		for _, s := range all[start:end] {
			part.Symbols[s] = struct{}{}
		}
		p.estimateStats(&part)
		out = append(out, part)
	}
	return out
}

// PartitionPerSymbol returns one partition per known symbol.
func (p *Partitioner) PartitionPerSymbol() []Partition {
	all := sortedSymbols(p.m.Symbols)
	out := make([]Partition, 0, len(all))
	for i, sym := range all {
		part := Partition{
			PartitionID:  uint32(i),
			FromNs:       p.m.FirstTsNs,
			ToNs:         p.m.LastTsNs,
			WarmupFromNs: p.m.FirstTsNs,
			Symbols:      map[uint32]struct{}{sym: {}},
			Segments:     p.m.Segments,
		}
		if len(all) > 0 {
			part.EstimatedEvents = p.m.TotalEvents / uint64(len(all))
			part.EstimatedBytes = p.m.TotalBytes / uint64(len(all))
		}
		out = append(out, part)
	}
	return out
}

// PartitionByEventCount walks segments in order, breaking a new
// partition whenever the running total would meet or exceed
// total/numPartitions (except the final partition, which absorbs the
// remainder).
func (p *Partitioner) PartitionByEventCount(numPartitions uint32) []Partition {
	if numPartitions == 0 || p.m.Empty() {
		return nil
	}
	eventsPerPartition := p.m.TotalEvents / uint64(numPartitions)

	var out []Partition
	segs := p.m.Segments
	var current uint64
	segStart := 0
	var id uint32

	for i := range segs {
		current += segs[i].EventCount
		isLast := i == len(segs)-1
		thresholdReached := current >= eventsPerPartition
		isLastPartition := id == numPartitions-1

		if (thresholdReached && !isLastPartition) || isLast {
			part := Partition{
				PartitionID:  id,
				FromNs:       segs[segStart].FirstEventNs,
				ToNs:         segs[i].LastEventNs,
				WarmupFromNs: segs[segStart].FirstEventNs,
			}
			for j := segStart; j <= i; j++ {
				part.Segments = append(part.Segments, segs[j])
				part.EstimatedEvents += segs[j].EventCount
			}
			out = append(out, part)
			id++
			segStart = i + 1
			current = 0
		}
	}
	return out
}

// CreatePartition builds a single ad hoc partition over [fromNs, toNs]
// with warmupNs lookback and an optional symbol restriction.
func (p *Partitioner) CreatePartition(fromNs, toNs, warmupNs int64, symbols map[uint32]struct{}) Partition {
	part := Partition{FromNs: fromNs, ToNs: toNs, WarmupFromNs: fromNs - warmupNs, Symbols: symbols}
	p.assignSegments(&part)
	p.estimateStats(&part)
	return part
}

func (p *Partitioner) assignSegments(part *Partition) {
	part.Segments = p.m.SegmentsInRange(part.WarmupFromNs, part.ToNs)
}

// EstimateEventsInRange pro-rates each overlapping segment's event
// count by the fraction of its own span that falls in [fromNs, toNs].
func (p *Partitioner) EstimateEventsInRange(fromNs, toNs int64) uint64 {
	var total uint64
	for _, seg := range p.m.Segments {
		if seg.FirstEventNs <= toNs && seg.LastEventNs >= fromNs {
			duration := seg.LastEventNs - seg.FirstEventNs
			if duration > 0 {
				start := maxI64(fromNs, seg.FirstEventNs)
				end := minI64(toNs, seg.LastEventNs)
				ratio := float64(end-start) / float64(duration)
				total += uint64(float64(seg.EventCount) * ratio)
			} else {
				total += seg.EventCount
			}
		}
	}
	return total
}

func (p *Partitioner) estimateStats(part *Partition) {
	part.EstimatedEvents = p.EstimateEventsInRange(part.WarmupFromNs, part.ToNs)
	part.EstimatedBytes = 0
	for _, seg := range part.Segments {
		if fi, err := os.Stat(seg.Path(p.m.DataDir)); err == nil {
			part.EstimatedBytes += uint64(fi.Size())
		}
	}
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// SerializePartition produces the length-prefixed binary form used for
// cross-process partition dispatch.
func SerializePartition(p Partition) []byte {
	var buf bytes.Buffer
	var scratch [8]byte

	binary.LittleEndian.PutUint32(scratch[:4], p.PartitionID)
	buf.Write(scratch[:4])
	binary.LittleEndian.PutUint64(scratch[:8], uint64(p.FromNs))
	buf.Write(scratch[:8])
	binary.LittleEndian.PutUint64(scratch[:8], uint64(p.ToNs))
	buf.Write(scratch[:8])
	binary.LittleEndian.PutUint64(scratch[:8], uint64(p.WarmupFromNs))
	buf.Write(scratch[:8])
	binary.LittleEndian.PutUint64(scratch[:8], p.EstimatedEvents)
	buf.Write(scratch[:8])
	binary.LittleEndian.PutUint64(scratch[:8], p.EstimatedBytes)
	buf.Write(scratch[:8])

	symbols := sortedSymbols(p.Symbols)
	binary.LittleEndian.PutUint32(scratch[:4], uint32(len(symbols)))
	buf.Write(scratch[:4])
	for _, s := range symbols {
		binary.LittleEndian.PutUint32(scratch[:4], s)
		buf.Write(scratch[:4])
	}

	binary.LittleEndian.PutUint32(scratch[:4], uint32(len(p.Segments)))
	buf.Write(scratch[:4])
	for _, seg := range p.Segments {
		name := []byte(seg.Filename)
		binary.LittleEndian.PutUint32(scratch[:4], uint32(len(name)))
		buf.Write(scratch[:4])
		buf.Write(name)
		binary.LittleEndian.PutUint64(scratch[:8], uint64(seg.FirstEventNs))
		buf.Write(scratch[:8])
		binary.LittleEndian.PutUint64(scratch[:8], uint64(seg.LastEventNs))
		buf.Write(scratch[:8])
		binary.LittleEndian.PutUint64(scratch[:8], seg.EventCount)
		buf.Write(scratch[:8])
	}

	return buf.Bytes()
}

// DeserializePartition parses SerializePartition's output, returning an
// error on any truncation.
func DeserializePartition(data []byte) (Partition, error) {
	r := bytes.NewReader(data)
	var p Partition

	readU32 := func() (uint32, error) {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint32(b[:]), nil
	}
	readU64 := func() (uint64, error) {
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(b[:]), nil
	}

	var err error
	if p.PartitionID, err = readU32(); err != nil {
		return Partition{}, fmt.Errorf("manifest: deserialize partition: %w", err)
	}
	var v uint64
	if v, err = readU64(); err != nil {
		return Partition{}, err
	}
	p.FromNs = int64(v)
	if v, err = readU64(); err != nil {
		return Partition{}, err
	}
	p.ToNs = int64(v)
	if v, err = readU64(); err != nil {
		return Partition{}, err
	}
	p.WarmupFromNs = int64(v)
	if p.EstimatedEvents, err = readU64(); err != nil {
		return Partition{}, err
	}
	if p.EstimatedBytes, err = readU64(); err != nil {
		return Partition{}, err
	}

	symCount, err := readU32()
	if err != nil {
		return Partition{}, err
	}
	if symCount > 0 {
		p.Symbols = make(map[uint32]struct{}, symCount)
		for i := uint32(0); i < symCount; i++ {
			sym, err := readU32()
			if err != nil {
				return Partition{}, err
			}
			p.Symbols[sym] = struct{}{}
		}
	}

	segCount, err := readU32()
	if err != nil {
		return Partition{}, err
	}
	p.Segments = make([]SegmentEntry, 0, segCount)
	for i := uint32(0); i < segCount; i++ {
		nameLen, err := readU32()
		if err != nil {
			return Partition{}, err
		}
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBuf); err != nil {
			return Partition{}, err
		}
		seg := SegmentEntry{Filename: string(nameBuf)}
		if v, err = readU64(); err != nil {
			return Partition{}, err
		}
		seg.FirstEventNs = int64(v)
		if v, err = readU64(); err != nil {
			return Partition{}, err
		}
		seg.LastEventNs = int64(v)
		if seg.EventCount, err = readU64(); err != nil {
			return Partition{}, err
		}
		p.Segments = append(p.Segments, seg)
	}

	return p, nil
}

// PartitionToJSON renders p as JSON for operator-facing tooling. It carries
// the same partition-level fields as the binary form, but lists each
// segment by filename and event count only, without its time range.
func PartitionToJSON(p Partition) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "{\n  \"partition_id\": %d,\n", p.PartitionID)
	fmt.Fprintf(&buf, "  \"from_ns\": %d,\n", p.FromNs)
	fmt.Fprintf(&buf, "  \"to_ns\": %d,\n", p.ToNs)
	fmt.Fprintf(&buf, "  \"warmup_from_ns\": %d,\n", p.WarmupFromNs)
	fmt.Fprintf(&buf, "  \"estimated_events\": %d,\n", p.EstimatedEvents)
	fmt.Fprintf(&buf, "  \"estimated_bytes\": %d,\n", p.EstimatedBytes)

	buf.WriteString("  \"symbols\": [")
	symbols := sortedSymbols(p.Symbols)
	for i, s := range symbols {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%d", s)
	}
	buf.WriteString("],\n")

	buf.WriteString("  \"segments\": [\n")
	for i, seg := range p.Segments {
		fmt.Fprintf(&buf, "    {\"filename\": %q, \"events\": %d}", seg.Filename, seg.EventCount)
		if i < len(p.Segments)-1 {
			buf.WriteString(",")
		}
		buf.WriteString("\n")
	}
	buf.WriteString("  ]\n}")

	return buf.String()
}
