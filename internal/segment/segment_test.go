package segment

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/ndrandal/flox-replay/internal/floxfmt"
)

func TestSingleTradeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(WriterConfig{OutputDir: dir, OutputFilename: "0.floxlog"})
	if err != nil {
		t.Fatal(err)
	}
	tr := floxfmt.TradeRecord{
		ExchangeTsNs: 1_000_000_000,
		RecvTsNs:     1_000_000_100,
		PriceRaw:     50_000_000_000,
		QtyRaw:       1_000_000,
		TradeID:      12345,
		SymbolID:     1,
		Side:         1,
	}
	if err := w.WriteTrade(tr); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	it, err := Open(dir + "/0.floxlog")
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	ev, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("expected one event, got ok=%v err=%v", ok, err)
	}
	if ev.Trade == nil {
		t.Fatal("expected trade event")
	}
	if *ev.Trade != (asEventTrade(tr)) {
		t.Fatalf("got %+v, want %+v", *ev.Trade, asEventTrade(tr))
	}

	_, ok, err = it.Next()
	if ok || err != nil {
		t.Fatalf("expected end of stream, got ok=%v err=%v", ok, err)
	}

	hdr := it.Header()
	if hdr.EventCount != 1 {
		t.Fatalf("event_count = %d, want 1", hdr.EventCount)
	}
	if hdr.FirstEventNs != 1_000_000_000 || hdr.LastEventNs != 1_000_000_000 {
		t.Fatalf("first/last = %d/%d, want 1_000_000_000 both", hdr.FirstEventNs, hdr.LastEventNs)
	}
}

func asEventTrade(tr floxfmt.TradeRecord) struct {
	ExchangeTsNs int64
	RecvTsNs     int64
	PriceRaw     int64
	QtyRaw       int64
	TradeID      uint64
	SymbolID     uint32
	Side         floxfmt.Side
	Instrument   uint8
	ExchangeID   uint16
} {
	return struct {
		ExchangeTsNs int64
		RecvTsNs     int64
		PriceRaw     int64
		QtyRaw       int64
		TradeID      uint64
		SymbolID     uint32
		Side         floxfmt.Side
		Instrument   uint8
		ExchangeID   uint16
	}{tr.ExchangeTsNs, tr.RecvTsNs, tr.PriceRaw, tr.QtyRaw, tr.TradeID, tr.SymbolID, floxfmt.Side(tr.Side), tr.Instrument, tr.ExchangeID}
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(WriterConfig{OutputDir: dir, MaxSegmentBytes: 2048})
	if err != nil {
		t.Fatal(err)
	}
	const n = 100
	for i := 0; i < n; i++ {
		tr := floxfmt.TradeRecord{ExchangeTsNs: int64(i) * 1_000_000, SymbolID: 1, TradeID: uint64(i)}
		if err := w.WriteTrade(tr); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if w.SegmentsWritten <= 1 {
		t.Fatalf("expected more than one segment, got %d", w.SegmentsWritten)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var paths []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".floxlog" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	count := 0
	var lastTs int64 = -1
	for _, p := range paths {
		it, err := Open(p)
		if err != nil {
			t.Fatal(err)
		}
		for {
			ev, ok, err := it.Next()
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				break
			}
			ts := ev.Timestamp()
			if ts < lastTs {
				t.Fatalf("out of order: %d after %d", ts, lastTs)
			}
			lastTs = ts
			count++
		}
		it.Close()
	}
	if count != n {
		t.Fatalf("count = %d, want %d", count, n)
	}
}

func TestIndexSeek(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(WriterConfig{OutputDir: dir, OutputFilename: "0.floxlog", CreateIndex: true, IndexInterval: 100})
	if err != nil {
		t.Fatal(err)
	}
	const n = 1000
	for i := 0; i < n; i++ {
		tr := floxfmt.TradeRecord{ExchangeTsNs: int64(i+1) * 1_000_000_000, SymbolID: 1, TradeID: uint64(i)}
		if err := w.WriteTrade(tr); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	it, err := Open(dir + "/0.floxlog")
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	if err := it.LoadIndex(); err != nil {
		t.Fatal(err)
	}

	target := int64(500) * 1_000_000_000
	if err := it.SeekToTimestamp(target); err != nil {
		t.Fatal(err)
	}

	var first *int64
	count := 0
	for {
		ev, ok, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		ts := ev.Timestamp()
		if ts < target {
			continue // linear skip, as spec requires for compressed seeks; harmless here too
		}
		if first == nil {
			v := ts
			first = &v
		}
		count++
	}
	if first == nil || *first < target {
		t.Fatalf("first delivered timestamp %v should be >= target %d", first, target)
	}
	if count < 500 || count > 510 {
		t.Fatalf("count = %d, want between 500 and 510", count)
	}
}

func TestMmapReader(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(WriterConfig{OutputDir: dir, OutputFilename: "0.floxlog", CreateIndex: true, IndexInterval: 10})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		if err := w.WriteTrade(floxfmt.TradeRecord{ExchangeTsNs: int64(i) * 1000, SymbolID: 2}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	m, err := OpenMmap(dir + "/0.floxlog")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	count := 0
	for {
		_, ok, err := m.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != 50 {
		t.Fatalf("count = %d, want 50", count)
	}
}

func TestMmapRejectsCompressed(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(WriterConfig{OutputDir: dir, OutputFilename: "0.floxlog", Compression: floxfmt.CompressionLZ4, IndexInterval: 10})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteTrade(floxfmt.TradeRecord{ExchangeTsNs: 1}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenMmap(dir + "/0.floxlog"); err == nil {
		t.Fatal("expected error opening compressed segment for mmap")
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(WriterConfig{OutputDir: dir, OutputFilename: "0.floxlog", Compression: floxfmt.CompressionLZ4, CreateIndex: true, IndexInterval: 16})
	if err != nil {
		t.Fatal(err)
	}
	const n = 64
	for i := 0; i < n; i++ {
		if err := w.WriteTrade(floxfmt.TradeRecord{ExchangeTsNs: int64(i), SymbolID: 1, TradeID: uint64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	it, err := Open(dir + "/0.floxlog")
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	count := 0
	for {
		ev, ok, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		if ev.Trade.TradeID != uint64(count) {
			t.Fatalf("event %d has trade id %d", count, ev.Trade.TradeID)
		}
		count++
	}
	if count != n {
		t.Fatalf("count = %d, want %d", count, n)
	}
}
