// Package segmentops implements the batch operations over segment files
// that the CLI tool exposes directly: merge, split, filter, export,
// recompress, and the extractSymbols/extractTimeRange convenience
// wrappers over filter.
package segmentops

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ndrandal/flox-replay/internal/event"
	"github.com/ndrandal/flox-replay/internal/floxfmt"
	"github.com/ndrandal/flox-replay/internal/segment"
)

// ProgressCallback reports (eventsProcessed, totalEventsEstimate); total
// may be 0 if unknown.
type ProgressCallback func(processed, total uint64)

// MergeConfig configures Merge.
type MergeConfig struct {
	OutputDir       string
	OutputName      string
	CreateIndex     bool
	IndexInterval   uint16
	Compression     floxfmt.CompressionType
	SortByTimestamp bool
	MaxOutputSize   uint64
}

type MergeResult struct {
	Success        bool
	OutputPath     string
	SegmentsMerged uint32
	EventsWritten  uint64
	BytesWritten   uint64
	Errors         []string
}

// Merge concatenates inputPaths' events into one or more output
// segments (rotating if MaxOutputSize is set), optionally merge-sorting
// by timestamp across inputs.
func Merge(inputPaths []string, cfg MergeConfig) MergeResult {
	return MergeWithProgress(inputPaths, cfg, nil)
}

func MergeWithProgress(inputPaths []string, cfg MergeConfig, progress ProgressCallback) MergeResult {
	result := MergeResult{}
	if len(inputPaths) == 0 {
		result.Errors = append(result.Errors, "no input segments")
		return result
	}

	w, err := segment.NewWriter(segment.WriterConfig{
		OutputDir:       cfg.OutputDir,
		OutputFilename:  cfg.OutputName,
		MaxSegmentBytes: cfg.MaxOutputSize,
		Compression:     cfg.Compression,
		CreateIndex:     cfg.CreateIndex,
		IndexInterval:   cfg.IndexInterval,
	})
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	var writeErr error
	if cfg.SortByTimestamp {
		writeErr = mergeSorted(inputPaths, w, &result, progress)
	} else {
		writeErr = mergeConcat(inputPaths, w, &result, progress)
	}
	if writeErr != nil {
		result.Errors = append(result.Errors, writeErr.Error())
	}
	if err := w.Close(); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	result.SegmentsMerged = uint32(len(inputPaths))
	result.OutputPath = filepath.Join(cfg.OutputDir, cfg.OutputName)
	result.Success = len(result.Errors) == 0
	return result
}

// MergeDirectory merges every .floxlog file in dir, in name order.
func MergeDirectory(dir string, cfg MergeConfig) MergeResult {
	paths, err := listSegments(dir)
	if err != nil {
		return MergeResult{Errors: []string{err.Error()}}
	}
	return Merge(paths, cfg)
}

func mergeConcat(paths []string, w *segment.Writer, result *MergeResult, progress ProgressCallback) error {
	var processed uint64
	for _, p := range paths {
		it, err := segment.Open(p)
		if err != nil {
			return fmt.Errorf("open %s: %w", p, err)
		}
		for {
			ev, ok, err := it.Next()
			if err != nil {
				it.Close()
				return fmt.Errorf("read %s: %w", p, err)
			}
			if !ok {
				break
			}
			if err := writeEvent(w, ev); err != nil {
				it.Close()
				return err
			}
			result.EventsWritten++
			processed++
			if progress != nil {
				progress(processed, 0)
			}
		}
		it.Close()
	}
	return nil
}

type mergeHeapItem struct {
	ev     event.Event
	srcIdx int
}

type mergeHeap []mergeHeapItem

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return h[i].ev.Timestamp() < h[j].ev.Timestamp() }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(mergeHeapItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergeSorted reads every input fully into memory and performs a k-way
// merge by timestamp. Segment files in this domain are bounded (§6's
// size budget), so this trades memory for simplicity the same way the
// parallel reader's sorted path does.
func mergeSorted(paths []string, w *segment.Writer, result *MergeResult, progress ProgressCallback) error {
	all := make([][]event.Event, len(paths))
	for i, p := range paths {
		events, err := readAll(p)
		if err != nil {
			return err
		}
		all[i] = events
	}

	positions := make([]int, len(paths))
	h := make(mergeHeap, 0, len(paths))
	for i, events := range all {
		if len(events) > 0 {
			h = append(h, mergeHeapItem{ev: events[0], srcIdx: i})
			positions[i] = 1
		}
	}
	sort.Sort(h)

	var processed uint64
	for len(h) > 0 {
		sort.Sort(h)
		top := h[0]
		h = h[1:]
		if err := writeEvent(w, top.ev); err != nil {
			return err
		}
		result.EventsWritten++
		processed++
		if progress != nil {
			progress(processed, 0)
		}
		idx := top.srcIdx
		if positions[idx] < len(all[idx]) {
			h = append(h, mergeHeapItem{ev: all[idx][positions[idx]], srcIdx: idx})
			positions[idx]++
		}
	}
	return nil
}

func readAll(path string) ([]event.Event, error) {
	it, err := segment.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer it.Close()
	var events []event.Event
	for {
		ev, ok, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if !ok {
			break
		}
		events = append(events, ev)
	}
	return events, nil
}

func writeEvent(w *segment.Writer, ev event.Event) error {
	switch ev.Kind {
	case floxfmt.KindTrade:
		tr := ev.Trade
		return w.WriteTrade(floxfmt.TradeRecord{
			ExchangeTsNs: tr.ExchangeTsNs, RecvTsNs: tr.RecvTsNs,
			PriceRaw: tr.PriceRaw, QtyRaw: tr.QtyRaw, TradeID: tr.TradeID,
			SymbolID: tr.SymbolID, Side: uint8(tr.Side),
			Instrument: tr.Instrument, ExchangeID: tr.ExchangeID,
		})
	case floxfmt.KindBookSnapshot, floxfmt.KindBookDelta:
		b := ev.Book
		hdr := floxfmt.BookRecordHeader{
			ExchangeTsNs: b.ExchangeTsNs, RecvTsNs: b.RecvTsNs, Seq: b.Seq,
			SymbolID: b.SymbolID, Type: uint8(b.Subkind),
			Instrument: b.Instrument, ExchangeID: b.ExchangeID,
		}
		return w.WriteBook(hdr, b.Bids, b.Asks)
	default:
		return fmt.Errorf("segmentops: unknown event kind %d", ev.Kind)
	}
}

// SplitMode selects how Split partitions a segment's events.
type SplitMode int

const (
	SplitByTime SplitMode = iota
	SplitByEventCount
	SplitBySize
	SplitBySymbol
)

type SplitConfig struct {
	OutputDir     string
	Mode          SplitMode
	TimeIntervalNs int64
	EventsPerFile  uint64
	BytesPerFile   uint64
	CreateIndex    bool
	IndexInterval  uint16
	Compression    floxfmt.CompressionType
}

func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		TimeIntervalNs: 3600 * 1_000_000_000,
		EventsPerFile:  1_000_000,
		BytesPerFile:   256 << 20,
		CreateIndex:    true,
	}
}

type SplitResult struct {
	Success         bool
	OutputPaths     []string
	SegmentsCreated uint32
	EventsWritten   uint64
	Errors          []string
}

// Split reads inputPath once and fans its events out across one or more
// output segments according to cfg.Mode. ByEventCount and BySize use the
// writer's own rotation (a frame is never split across segments); ByTime
// and BySymbol bucket into independently named output files since their
// boundaries aren't a simple byte/event threshold.
func Split(inputPath string, cfg SplitConfig) SplitResult {
	switch cfg.Mode {
	case SplitByEventCount, SplitBySize:
		return splitByRotation(inputPath, cfg)
	default:
		return splitByBucket(inputPath, cfg)
	}
}

func splitByRotation(inputPath string, cfg SplitConfig) SplitResult {
	result := SplitResult{}
	it, err := segment.Open(inputPath)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	defer it.Close()

	wcfg := segment.WriterConfig{
		OutputDir:     cfg.OutputDir,
		CreateIndex:   cfg.CreateIndex,
		IndexInterval: cfg.IndexInterval,
		Compression:   cfg.Compression,
		RotationName: func(dir string, n int) string {
			return fmt.Sprintf("split_%06d.floxlog", n)
		},
	}
	if cfg.Mode == SplitBySize {
		bytesPerFile := cfg.BytesPerFile
		if bytesPerFile == 0 {
			bytesPerFile = DefaultSplitConfig().BytesPerFile
		}
		wcfg.MaxSegmentBytes = bytesPerFile
	}

	w, err := segment.NewWriter(wcfg)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	perFile := cfg.EventsPerFile
	if perFile == 0 {
		perFile = DefaultSplitConfig().EventsPerFile
	}
	var eventsInCurrent uint64

	for {
		ev, ok, err := it.Next()
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			break
		}
		if !ok {
			break
		}
		if cfg.Mode == SplitByEventCount && eventsInCurrent >= perFile {
			if err := w.RotateNow(); err != nil {
				result.Errors = append(result.Errors, err.Error())
				break
			}
			eventsInCurrent = 0
		}
		if err := writeEvent(w, ev); err != nil {
			result.Errors = append(result.Errors, err.Error())
			break
		}
		result.EventsWritten++
		eventsInCurrent++
	}

	if err := w.Close(); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	result.SegmentsCreated = uint32(w.SegmentsWritten)
	result.Success = len(result.Errors) == 0
	return result
}

func splitByBucket(inputPath string, cfg SplitConfig) SplitResult {
	result := SplitResult{}
	it, err := segment.Open(inputPath)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	defer it.Close()

	writers := map[string]*segment.Writer{}
	order := []string{}

	getWriter := func(key string) (*segment.Writer, error) {
		if w, ok := writers[key]; ok {
			return w, nil
		}
		w, err := segment.NewWriter(segment.WriterConfig{
			OutputDir:      cfg.OutputDir,
			OutputFilename: key,
			CreateIndex:    cfg.CreateIndex,
			IndexInterval:  cfg.IndexInterval,
			Compression:    cfg.Compression,
		})
		if err != nil {
			return nil, err
		}
		writers[key] = w
		order = append(order, key)
		return w, nil
	}

	var firstTs int64 = -1

	for {
		ev, ok, err := it.Next()
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			break
		}
		if !ok {
			break
		}
		if firstTs < 0 {
			firstTs = ev.Timestamp()
		}

		var key string
		switch cfg.Mode {
		case SplitByTime:
			interval := cfg.TimeIntervalNs
			if interval <= 0 {
				interval = DefaultSplitConfig().TimeIntervalNs
			}
			bucket := (ev.Timestamp() - firstTs) / interval
			key = fmt.Sprintf("split_%06d.floxlog", bucket)
		case SplitBySymbol:
			key = fmt.Sprintf("symbol_%d.floxlog", ev.SymbolID())
		default:
			key = "split_000000.floxlog"
		}

		w, err := getWriter(key)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			break
		}
		if err := writeEvent(w, ev); err != nil {
			result.Errors = append(result.Errors, err.Error())
			break
		}
		result.EventsWritten++
	}

	for _, key := range order {
		w := writers[key]
		if err := w.Close(); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.OutputPaths = append(result.OutputPaths, filepath.Join(cfg.OutputDir, key))
	}
	result.SegmentsCreated = uint32(len(order))
	result.Success = len(result.Errors) == 0
	return result
}

// SplitDirectory runs Split over every segment in dir.
func SplitDirectory(dir string, cfg SplitConfig) ([]SplitResult, error) {
	paths, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	results := make([]SplitResult, 0, len(paths))
	for _, p := range paths {
		results = append(results, Split(p, cfg))
	}
	return results, nil
}

// ExportFormat selects Export's output encoding.
type ExportFormat int

const (
	ExportCSV ExportFormat = iota
	ExportJSON
	ExportJSONLines
)

type ExportConfig struct {
	OutputPath    string
	Format        ExportFormat
	FromNs        *int64
	ToNs          *int64
	Symbols       map[uint32]struct{}
	TradesOnly    bool
	BooksOnly     bool
	Delimiter     rune
	IncludeHeader bool
	PrettyPrint   bool
}

func DefaultExportConfig() ExportConfig {
	return ExportConfig{Format: ExportCSV, Delimiter: ',', IncludeHeader: true}
}

type ExportResult struct {
	Success       bool
	OutputPath    string
	EventsExported uint64
	BytesWritten  uint64
	Errors        []string
}

// Export streams inputPath's events through an optional time/symbol
// filter into CSV, JSON array, or JSON-lines form.
func Export(inputPath string, cfg ExportConfig) ExportResult {
	return ExportWithProgress(inputPath, cfg, nil)
}

func ExportWithProgress(inputPath string, cfg ExportConfig, progress ProgressCallback) ExportResult {
	result := ExportResult{OutputPath: cfg.OutputPath}

	it, err := segment.Open(inputPath)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	defer it.Close()

	out, err := os.Create(cfg.OutputPath)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	defer out.Close()

	switch cfg.Format {
	case ExportCSV:
		err = exportCSV(it, out, cfg, &result, progress)
	case ExportJSON:
		err = exportJSON(it, out, cfg, &result, progress, false)
	case ExportJSONLines:
		err = exportJSON(it, out, cfg, &result, progress, true)
	default:
		err = fmt.Errorf("segmentops: unknown export format %d", cfg.Format)
	}
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	result.Success = len(result.Errors) == 0
	return result
}

// ExportDirectory exports every segment in dir to one output file per
// segment, named after the segment with cfg.Format's extension.
func ExportDirectory(dir string, cfg ExportConfig) ([]ExportResult, error) {
	paths, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	results := make([]ExportResult, 0, len(paths))
	for _, p := range paths {
		perFile := cfg
		perFile.OutputPath = filepath.Join(cfg.OutputPath, strings.TrimSuffix(filepath.Base(p), ".floxlog")+extensionFor(cfg.Format))
		results = append(results, Export(p, perFile))
	}
	return results, nil
}

func extensionFor(f ExportFormat) string {
	switch f {
	case ExportCSV:
		return ".csv"
	case ExportJSONLines:
		return ".jsonl"
	default:
		return ".json"
	}
}

func passesExport(ev event.Event, cfg ExportConfig) bool {
	ts := ev.Timestamp()
	if cfg.FromNs != nil && ts < *cfg.FromNs {
		return false
	}
	if cfg.ToNs != nil && ts > *cfg.ToNs {
		return false
	}
	if len(cfg.Symbols) > 0 {
		if _, ok := cfg.Symbols[ev.SymbolID()]; !ok {
			return false
		}
	}
	if cfg.TradesOnly && ev.Kind != floxfmt.KindTrade {
		return false
	}
	if cfg.BooksOnly && ev.Kind == floxfmt.KindTrade {
		return false
	}
	return true
}

func exportCSV(it *segment.Iterator, out *os.File, cfg ExportConfig, result *ExportResult, progress ProgressCallback) error {
	bw := bufio.NewWriter(out)
	defer bw.Flush()
	w := csv.NewWriter(bw)
	delim := cfg.Delimiter
	if delim == 0 {
		delim = ','
	}
	w.Comma = delim
	defer w.Flush()

	if cfg.IncludeHeader {
		if err := w.Write([]string{"type", "timestamp_ns", "symbol_id", "price", "qty", "side", "trade_id", "bid_count", "ask_count"}); err != nil {
			return err
		}
	}

	var processed uint64
	for {
		ev, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if !passesExport(ev, cfg) {
			continue
		}
		if err := w.Write(csvRow(ev)); err != nil {
			return err
		}
		result.EventsExported++
		processed++
		if progress != nil {
			progress(processed, 0)
		}
	}
	return nil
}

func csvRow(ev event.Event) []string {
	switch ev.Kind {
	case floxfmt.KindTrade:
		t := ev.Trade
		return []string{
			"trade", strconv.FormatInt(t.ExchangeTsNs, 10),
			strconv.FormatUint(uint64(t.SymbolID), 10), strconv.FormatInt(t.PriceRaw, 10),
			strconv.FormatInt(t.QtyRaw, 10), strconv.Itoa(int(t.Side)),
			strconv.FormatUint(t.TradeID, 10), "0", "0",
		}
	default:
		b := ev.Book
		typeStr := "book_snapshot"
		if ev.Kind == floxfmt.KindBookDelta {
			typeStr = "book_delta"
		}
		return []string{
			typeStr, strconv.FormatInt(b.ExchangeTsNs, 10),
			strconv.FormatUint(uint64(b.SymbolID), 10), "0", "0", "0", "0",
			strconv.Itoa(len(b.Bids)), strconv.Itoa(len(b.Asks)),
		}
	}
}

// exportRecord is the JSON projection of one event, used for both the
// JSON-array and JSON-lines formats.
type exportRecord struct {
	Kind         string             `json:"kind"`
	ExchangeTsNs int64              `json:"exchange_ts_ns"`
	RecvTsNs     int64              `json:"recv_ts_ns"`
	SymbolID     uint32             `json:"symbol_id"`
	PriceRaw     *int64             `json:"price_raw,omitempty"`
	QtyRaw       *int64             `json:"qty_raw,omitempty"`
	TradeID      *uint64            `json:"trade_id,omitempty"`
	Side         *uint8             `json:"side,omitempty"`
	Bids         []floxfmt.BookLevel `json:"bids,omitempty"`
	Asks         []floxfmt.BookLevel `json:"asks,omitempty"`
}

func toExportRecord(ev event.Event) exportRecord {
	if ev.Kind == floxfmt.KindTrade {
		t := ev.Trade
		side := uint8(t.Side)
		return exportRecord{
			Kind: "trade", ExchangeTsNs: t.ExchangeTsNs, RecvTsNs: t.RecvTsNs, SymbolID: t.SymbolID,
			PriceRaw: &t.PriceRaw, QtyRaw: &t.QtyRaw, TradeID: &t.TradeID, Side: &side,
		}
	}
	b := ev.Book
	return exportRecord{
		Kind: ev.Kind.String(), ExchangeTsNs: b.ExchangeTsNs, RecvTsNs: b.RecvTsNs, SymbolID: b.SymbolID,
		Bids: b.Bids, Asks: b.Asks,
	}
}

func exportJSON(it *segment.Iterator, out *os.File, cfg ExportConfig, result *ExportResult, progress ProgressCallback, lines bool) error {
	bw := bufio.NewWriter(out)
	defer bw.Flush()

	enc := json.NewEncoder(bw)
	if cfg.PrettyPrint {
		enc.SetIndent("", "  ")
	}

	if !lines {
		if _, err := bw.WriteString("[\n"); err != nil {
			return err
		}
	}

	var processed uint64
	first := true
	for {
		ev, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if !passesExport(ev, cfg) {
			continue
		}
		rec := toExportRecord(ev)
		if lines {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		} else {
			if !first {
				if _, err := bw.WriteString(",\n"); err != nil {
					return err
				}
			}
			first = false
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if _, err := bw.Write(data); err != nil {
				return err
			}
		}
		result.EventsExported++
		processed++
		if progress != nil {
			progress(processed, 0)
		}
	}

	if !lines {
		if _, err := bw.WriteString("\n]\n"); err != nil {
			return err
		}
	}
	return nil
}

// Recompress rewrites inputPath into outputPath under a different
// compression type, preserving event order and index presence.
func Recompress(inputPath, outputPath string, newCompression floxfmt.CompressionType) error {
	it, err := segment.Open(inputPath)
	if err != nil {
		return fmt.Errorf("segmentops: open %s: %w", inputPath, err)
	}
	defer it.Close()

	dir, name := filepath.Split(outputPath)
	w, err := segment.NewWriter(segment.WriterConfig{
		OutputDir:      dir,
		OutputFilename: name,
		Compression:    newCompression,
		CreateIndex:    it.Header().HasIndex(),
	})
	if err != nil {
		return fmt.Errorf("segmentops: %w", err)
	}
	for {
		ev, ok, err := it.Next()
		if err != nil {
			w.Close()
			return fmt.Errorf("segmentops: read: %w", err)
		}
		if !ok {
			break
		}
		if err := writeEvent(w, ev); err != nil {
			w.Close()
			return fmt.Errorf("segmentops: write: %w", err)
		}
	}
	return w.Close()
}

// Predicate decides whether an event survives Filter.
type Predicate func(event.Event) bool

// Filter streams inputPath's events through pred, writing the survivors
// to a new segment under outCfg. Returns the number of events written.
func Filter(inputPath, outputDir, outputName string, pred Predicate, outCfg segment.WriterConfig) (uint64, error) {
	it, err := segment.Open(inputPath)
	if err != nil {
		return 0, fmt.Errorf("segmentops: open %s: %w", inputPath, err)
	}
	defer it.Close()

	outCfg.OutputDir = outputDir
	outCfg.OutputFilename = outputName
	w, err := segment.NewWriter(outCfg)
	if err != nil {
		return 0, fmt.Errorf("segmentops: %w", err)
	}

	var n uint64
	for {
		ev, ok, err := it.Next()
		if err != nil {
			w.Close()
			return n, fmt.Errorf("segmentops: read: %w", err)
		}
		if !ok {
			break
		}
		if !pred(ev) {
			continue
		}
		if err := writeEvent(w, ev); err != nil {
			w.Close()
			return n, fmt.Errorf("segmentops: write: %w", err)
		}
		n++
	}
	return n, w.Close()
}

// ExtractSymbols is Filter specialized to a symbol allow-list, matching
// SegmentOps::extractSymbols rather than asking callers to build their
// own predicate for the common case.
func ExtractSymbols(inputPath, outputDir, outputName string, symbols map[uint32]struct{}, outCfg segment.WriterConfig) (uint64, error) {
	return Filter(inputPath, outputDir, outputName, func(ev event.Event) bool {
		_, ok := symbols[ev.SymbolID()]
		return ok
	}, outCfg)
}

// ExtractTimeRange is Filter specialized to an inclusive time window,
// matching SegmentOps::extractTimeRange.
func ExtractTimeRange(inputPath, outputDir, outputName string, fromNs, toNs int64, outCfg segment.WriterConfig) (uint64, error) {
	return Filter(inputPath, outputDir, outputName, func(ev event.Event) bool {
		ts := ev.Timestamp()
		return ts >= fromNs && ts <= toNs
	}, outCfg)
}

// QuickMerge merges every segment in inputDir into outputDir/merged.floxlog.
func QuickMerge(inputDir, outputDir string) MergeResult {
	return MergeDirectory(inputDir, MergeConfig{OutputDir: outputDir, OutputName: "merged.floxlog", CreateIndex: true, SortByTimestamp: true})
}

// QuickExportCSV exports inputPath to outputPath as CSV with defaults.
func QuickExportCSV(inputPath, outputPath string) ExportResult {
	cfg := DefaultExportConfig()
	cfg.OutputPath = outputPath
	return Export(inputPath, cfg)
}

// QuickSplitByHour splits inputPath into hourly segments under outputDir.
func QuickSplitByHour(inputPath, outputDir string) SplitResult {
	cfg := DefaultSplitConfig()
	cfg.OutputDir = outputDir
	cfg.Mode = SplitByTime
	return Split(inputPath, cfg)
}

func listSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("segmentops: read dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".floxlog") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

