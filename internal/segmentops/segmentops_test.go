package segmentops

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ndrandal/flox-replay/internal/floxfmt"
	"github.com/ndrandal/flox-replay/internal/segment"
)

func writeTrades(t *testing.T, dir, name string, n int, startNs, stepNs int64, symbolID uint32) string {
	t.Helper()
	w, err := segment.NewWriter(segment.WriterConfig{OutputDir: dir, OutputFilename: name})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		if err := w.WriteTrade(floxfmt.TradeRecord{ExchangeTsNs: startNs + int64(i)*stepNs, SymbolID: symbolID, TradeID: uint64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return filepath.Join(dir, name)
}

func countEvents(t *testing.T, path string) int {
	t.Helper()
	it, err := segment.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	n := 0
	for {
		_, ok, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		n++
	}
	return n
}

func TestMergeSortedAcrossSegments(t *testing.T) {
	dir := t.TempDir()
	a := writeTrades(t, dir, "a.floxlog", 50, 1_000_000_000, 1_000_000, 1)
	b := writeTrades(t, dir, "b.floxlog", 50, 0, 1_000_000, 1)

	outDir := t.TempDir()
	result := Merge([]string{a, b}, MergeConfig{OutputDir: outDir, OutputName: "merged.floxlog", SortByTimestamp: true, CreateIndex: true})
	if !result.Success {
		t.Fatalf("merge failed: %+v", result.Errors)
	}
	if result.EventsWritten != 100 {
		t.Fatalf("events written = %d, want 100", result.EventsWritten)
	}

	it, err := segment.Open(result.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	var lastTs int64 = -1
	count := 0
	for {
		ev, ok, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		if ev.Timestamp() < lastTs {
			t.Fatalf("merged output not sorted: %d after %d", ev.Timestamp(), lastTs)
		}
		lastTs = ev.Timestamp()
		count++
	}
	if count != 100 {
		t.Fatalf("read back %d events, want 100", count)
	}
}

func TestSplitByEventCount(t *testing.T) {
	dir := t.TempDir()
	path := writeTrades(t, dir, "a.floxlog", 250, 0, 1_000_000, 1)

	outDir := t.TempDir()
	cfg := DefaultSplitConfig()
	cfg.OutputDir = outDir
	cfg.Mode = SplitByEventCount
	cfg.EventsPerFile = 100

	result := Split(path, cfg)
	if !result.Success {
		t.Fatalf("split failed: %+v", result.Errors)
	}
	if result.SegmentsCreated != 3 {
		t.Fatalf("segments created = %d, want 3", result.SegmentsCreated)
	}
	if result.EventsWritten != 250 {
		t.Fatalf("events written = %d, want 250", result.EventsWritten)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".floxlog") {
			total += countEvents(t, filepath.Join(outDir, e.Name()))
		}
	}
	if total != 250 {
		t.Fatalf("total events across split files = %d, want 250", total)
	}
}

func TestSplitBySymbol(t *testing.T) {
	dir := t.TempDir()
	w, err := segment.NewWriter(segment.WriterConfig{OutputDir: dir, OutputFilename: "mixed.floxlog"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		sym := uint32(1)
		if i%3 == 0 {
			sym = 2
		}
		if err := w.WriteTrade(floxfmt.TradeRecord{ExchangeTsNs: int64(i) * 1_000_000, SymbolID: sym}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	cfg := DefaultSplitConfig()
	cfg.OutputDir = outDir
	cfg.Mode = SplitBySymbol
	result := Split(filepath.Join(dir, "mixed.floxlog"), cfg)
	if !result.Success {
		t.Fatalf("split failed: %+v", result.Errors)
	}
	if result.SegmentsCreated != 2 {
		t.Fatalf("segments created = %d, want 2", result.SegmentsCreated)
	}
}

func TestExportCSV(t *testing.T) {
	dir := t.TempDir()
	path := writeTrades(t, dir, "a.floxlog", 10, 0, 1_000_000, 7)

	outPath := filepath.Join(t.TempDir(), "out.csv")
	result := QuickExportCSV(path, outPath)
	if !result.Success {
		t.Fatalf("export failed: %+v", result.Errors)
	}
	if result.EventsExported != 10 {
		t.Fatalf("events exported = %d, want 10", result.EventsExported)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 11 { // header + 10 rows
		t.Fatalf("csv line count = %d, want 11", len(lines))
	}

	wantHeader := "type,timestamp_ns,symbol_id,price,qty,side,trade_id,bid_count,ask_count"
	if lines[0] != wantHeader {
		t.Fatalf("csv header = %q, want %q", lines[0], wantHeader)
	}

	cols := strings.Split(lines[1], ",")
	if len(cols) != 9 {
		t.Fatalf("got %d columns, want 9: %v", len(cols), cols)
	}
	if cols[0] != "trade" {
		t.Fatalf("type column = %q, want %q", cols[0], "trade")
	}
	if cols[7] != "0" || cols[8] != "0" {
		t.Fatalf("trade row bid_count/ask_count = %q,%q, want 0,0", cols[7], cols[8])
	}
}

func TestExportJSONLines(t *testing.T) {
	dir := t.TempDir()
	path := writeTrades(t, dir, "a.floxlog", 5, 0, 1_000_000, 3)

	outPath := filepath.Join(t.TempDir(), "out.jsonl")
	cfg := DefaultExportConfig()
	cfg.OutputPath = outPath
	cfg.Format = ExportJSONLines
	result := Export(path, cfg)
	if !result.Success {
		t.Fatalf("export failed: %+v", result.Errors)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 5 {
		t.Fatalf("jsonl line count = %d, want 5", len(lines))
	}
}

func TestExtractTimeRange(t *testing.T) {
	dir := t.TempDir()
	path := writeTrades(t, dir, "a.floxlog", 100, 0, 1_000_000, 1)

	outDir := t.TempDir()
	n, err := ExtractTimeRange(path, outDir, "range.floxlog", 10_000_000, 20_000_000, segment.WriterConfig{CreateIndex: true})
	if err != nil {
		t.Fatal(err)
	}
	if n != 11 {
		t.Fatalf("extracted = %d, want 11", n)
	}
	if got := countEvents(t, filepath.Join(outDir, "range.floxlog")); got != 11 {
		t.Fatalf("read back %d events, want 11", got)
	}
}

func TestExtractSymbols(t *testing.T) {
	dir := t.TempDir()
	w, err := segment.NewWriter(segment.WriterConfig{OutputDir: dir, OutputFilename: "mixed.floxlog"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		sym := uint32(i % 4)
		if err := w.WriteTrade(floxfmt.TradeRecord{ExchangeTsNs: int64(i) * 1_000_000, SymbolID: sym}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	n, err := ExtractSymbols(filepath.Join(dir, "mixed.floxlog"), outDir, "sym.floxlog", map[uint32]struct{}{1: {}}, segment.WriterConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("extracted = %d, want 5", n)
	}
}

func TestRecompress(t *testing.T) {
	dir := t.TempDir()
	path := writeTrades(t, dir, "a.floxlog", 40, 0, 1_000_000, 2)

	outPath := filepath.Join(t.TempDir(), "compressed.floxlog")
	if err := Recompress(path, outPath, floxfmt.CompressionLZ4); err != nil {
		t.Fatal(err)
	}
	if got := countEvents(t, outPath); got != 40 {
		t.Fatalf("recompressed event count = %d, want 40", got)
	}
}
