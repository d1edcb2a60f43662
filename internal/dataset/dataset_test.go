package dataset

import (
	"context"
	"testing"

	"github.com/ndrandal/flox-replay/internal/event"
	"github.com/ndrandal/flox-replay/internal/filter"
	"github.com/ndrandal/flox-replay/internal/floxfmt"
	"github.com/ndrandal/flox-replay/internal/segment"
)

func writeTrades(t *testing.T, dir, name string, n int, tsFn func(i int) int64) {
	t.Helper()
	w, err := segment.NewWriter(segment.WriterConfig{OutputDir: dir, OutputFilename: name})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		tr := floxfmt.TradeRecord{ExchangeTsNs: tsFn(i), SymbolID: 1, TradeID: uint64(i)}
		if err := w.WriteTrade(tr); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

// TestCoordinatorTimeRangeFilter covers a single-segment dataset of 1000
// trades at 1ms spacing, filtered to [500_000_000, 700_000_000] inclusive
// on both ends, which must yield exactly 201 events.
func TestCoordinatorTimeRangeFilter(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, dir, "0.floxlog", 1000, func(i int) int64 { return int64(i) * 1_000_000 })

	c, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}

	from := int64(500_000_000)
	to := int64(700_000_000)
	f := filter.New().WithTimeRange(&from, &to)

	count := 0
	if err := c.ForEach(&f, func(ev event.Event) bool {
		count++
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if count != 201 {
		t.Fatalf("count = %d, want 201", count)
	}
}

func TestCoordinatorForEachFrom(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, dir, "0.floxlog", 200, func(i int) int64 { return int64(i) * 1_000_000 })

	c, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}

	var firstTs int64 = -1
	count := 0
	if err := c.ForEachFrom(100_000_000, nil, func(ev event.Event) bool {
		if firstTs < 0 {
			firstTs = ev.Timestamp()
		}
		count++
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if firstTs != 100_000_000 {
		t.Fatalf("firstTs = %d, want 100_000_000", firstTs)
	}
	if count != 100 {
		t.Fatalf("count = %d, want 100", count)
	}
}

// TestParallelSortedMerge writes two segments with disjoint, reversed
// time ranges (segment "a-later" covers the later range but sorts first by
// name, so sort_output must reorder it behind segment "b-earlier") and asserts
// the merged output is globally monotonic non-decreasing.
func TestParallelSortedMerge(t *testing.T) {
	dir := t.TempDir()
	// Segment covering the later time range, named so directory order
	// would visit it first if the coordinator didn't sort by timestamp.
	writeTrades(t, dir, "a-later.floxlog", 50, func(i int) int64 { return int64(1000+i) * 1_000_000 })
	writeTrades(t, dir, "b-earlier.floxlog", 50, func(i int) int64 { return int64(i) * 1_000_000 })

	c, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}

	pr := NewParallelReader(c, ParallelReaderConfig{SortOutput: true})

	var lastTs int64 = -1
	count := 0
	if err := pr.ForEach(context.Background(), func(ev event.Event) bool {
		ts := ev.Timestamp()
		if ts < lastTs {
			t.Fatalf("out of order: %d after %d", ts, lastTs)
		}
		lastTs = ts
		count++
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if count != 100 {
		t.Fatalf("count = %d, want 100", count)
	}
}

func TestParallelUnorderedCoversAll(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, dir, "0.floxlog", 30, func(i int) int64 { return int64(i) * 1_000_000 })
	writeTrades(t, dir, "1.floxlog", 30, func(i int) int64 { return int64(1000+i) * 1_000_000 })

	c, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	pr := NewParallelReader(c, ParallelReaderConfig{SortOutput: false})

	count := 0
	if err := pr.ForEach(context.Background(), func(ev event.Event) bool {
		count++
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if count != 60 {
		t.Fatalf("count = %d, want 60", count)
	}
}

func TestParallelBatch(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, dir, "0.floxlog", 10, func(i int) int64 { return int64(i) * 1_000_000 })
	writeTrades(t, dir, "1.floxlog", 20, func(i int) int64 { return int64(1000+i) * 1_000_000 })

	c, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	pr := NewParallelReader(c, ParallelReaderConfig{})

	total := 0
	if err := pr.ForEachBatch(context.Background(), func(path string, events []event.Event) bool {
		total += len(events)
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if total != 30 {
		t.Fatalf("total = %d, want 30", total)
	}
}
