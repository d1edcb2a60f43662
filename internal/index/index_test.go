package index

import (
	"testing"

	"github.com/ndrandal/flox-replay/internal/floxfmt"
	"github.com/ndrandal/flox-replay/internal/segment"
)

func writeUnindexed(t *testing.T, dir, name string, n int) string {
	t.Helper()
	w, err := segment.NewWriter(segment.WriterConfig{OutputDir: dir, OutputFilename: name})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		if err := w.WriteTrade(floxfmt.TradeRecord{ExchangeTsNs: int64(i+1) * 1_000_000, SymbolID: 1, TradeID: uint64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return dir + "/" + name
}

func writeCompressed(t *testing.T, dir, name string, n int) string {
	t.Helper()
	w, err := segment.NewWriter(segment.WriterConfig{
		OutputDir: dir, OutputFilename: name, Compression: floxfmt.CompressionLZ4,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		if err := w.WriteTrade(floxfmt.TradeRecord{ExchangeTsNs: int64(i+1) * 1_000_000, SymbolID: 1, TradeID: uint64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return dir + "/" + name
}

func TestBuildForSegmentCompressed(t *testing.T) {
	dir := t.TempDir()
	path := writeCompressed(t, dir, "0.floxlog", 500)

	res := BuildForSegment(path, BuilderConfig{IndexInterval: 50, VerifyCRC: true})
	if !res.Success {
		t.Fatalf("build failed: %s", res.Error)
	}
	if res.EventsScanned != 500 {
		t.Fatalf("scanned = %d, want 500", res.EventsScanned)
	}
	if res.IndexEntriesCreated == 0 {
		t.Fatal("expected at least one index entry")
	}

	if !HasIndex(path) {
		t.Fatal("expected HasIndex true after build")
	}

	it, err := segment.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	if err := it.LoadIndex(); err != nil {
		t.Fatal(err)
	}
	if err := it.SeekToTimestamp(250_000_000); err != nil {
		t.Fatal(err)
	}
	ev, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("expected event after seek, ok=%v err=%v", ok, err)
	}
	if ev.Timestamp() > 250_000_000 {
		t.Fatalf("seek landed past target: %d", ev.Timestamp())
	}
}

func TestBuildForSegment(t *testing.T) {
	dir := t.TempDir()
	path := writeUnindexed(t, dir, "0.floxlog", 500)

	res := BuildForSegment(path, BuilderConfig{IndexInterval: 50, VerifyCRC: true})
	if !res.Success {
		t.Fatalf("build failed: %s", res.Error)
	}
	if res.EventsScanned != 500 {
		t.Fatalf("scanned = %d, want 500", res.EventsScanned)
	}
	if res.IndexEntriesCreated != 10 {
		t.Fatalf("entries = %d, want 10", res.IndexEntriesCreated)
	}

	if !HasIndex(path) {
		t.Fatal("expected HasIndex true after build")
	}

	it, err := segment.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	if err := it.LoadIndex(); err != nil {
		t.Fatal(err)
	}
	if err := it.SeekToTimestamp(250_000_000); err != nil {
		t.Fatal(err)
	}
	ev, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("expected event after seek, ok=%v err=%v", ok, err)
	}
	if ev.Timestamp() > 250_000_000 {
		t.Fatalf("seek landed past target: %d", ev.Timestamp())
	}
}

func TestRemoveIndex(t *testing.T) {
	dir := t.TempDir()
	path := writeUnindexed(t, dir, "0.floxlog", 100)
	res := BuildForSegment(path, BuilderConfig{IndexInterval: 10, VerifyCRC: true})
	if !res.Success {
		t.Fatalf("build failed: %s", res.Error)
	}
	if !HasIndex(path) {
		t.Fatal("expected index present")
	}
	if err := RemoveIndex(path); err != nil {
		t.Fatal(err)
	}
	if HasIndex(path) {
		t.Fatal("expected index removed")
	}

	it, err := segment.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	count := 0
	for {
		_, ok, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != 100 {
		t.Fatalf("count after remove-index = %d, want 100", count)
	}
}

func TestBuildGlobal(t *testing.T) {
	dir := t.TempDir()
	writeUnindexed(t, dir, "a.floxlog", 10)
	writeUnindexed(t, dir, "b.floxlog", 20)

	res := BuildGlobal(dir, "")
	if !res.Success {
		t.Fatalf("build global failed: %s", res.Error)
	}
	if res.SegmentsIndexed != 2 {
		t.Fatalf("segments = %d, want 2", res.SegmentsIndexed)
	}
	if res.TotalEvents != 30 {
		t.Fatalf("total events = %d, want 30", res.TotalEvents)
	}

	segs, err := LoadGlobal(dir + "/index.floxidx")
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 2 {
		t.Fatalf("loaded %d segments, want 2", len(segs))
	}
	names := map[string]bool{}
	for _, s := range segs {
		names[s.Filename] = true
	}
	if !names["a.floxlog"] || !names["b.floxlog"] {
		t.Fatalf("missing expected filenames, got %+v", segs)
	}
}

func TestBuildForDirectory(t *testing.T) {
	dir := t.TempDir()
	writeUnindexed(t, dir, "0.floxlog", 5)
	writeUnindexed(t, dir, "1.floxlog", 5)

	results, err := BuildForDirectory(dir, BuilderConfig{IndexInterval: 2, VerifyCRC: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if !r.Success {
			t.Fatalf("build failed: %s", r.Error)
		}
	}
}

func TestBuildForDirectoryMissing(t *testing.T) {
	results, err := BuildForDirectory("/nonexistent/path/xyz", BuilderConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if results != nil {
		t.Fatalf("expected nil results for missing dir, got %v", results)
	}
}
