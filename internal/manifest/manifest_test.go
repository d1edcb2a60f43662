package manifest

import (
	"testing"

	"github.com/ndrandal/flox-replay/internal/floxfmt"
	"github.com/ndrandal/flox-replay/internal/segment"
)

func writeTrades(t *testing.T, dir, name string, symbolID uint32, n int, start int64) {
	t.Helper()
	w, err := segment.NewWriter(segment.WriterConfig{OutputDir: dir, OutputFilename: name})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		if err := w.WriteTrade(floxfmt.TradeRecord{ExchangeTsNs: start + int64(i)*1_000_000, SymbolID: symbolID, TradeID: uint64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBuildSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, dir, "a.floxlog", 1, 100, 0)
	writeTrades(t, dir, "b.floxlog", 2, 50, 1_000_000_000)

	m, err := Build(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(m.Segments))
	}
	if m.TotalEvents != 150 {
		t.Fatalf("total events = %d, want 150", m.TotalEvents)
	}
	if len(m.Symbols) != 2 {
		t.Fatalf("symbols = %d, want 2", len(m.Symbols))
	}

	path := Path(dir)
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil {
		t.Fatal("expected non-nil manifest")
	}
	if loaded.TotalEvents != 150 {
		t.Fatalf("loaded total events = %d, want 150", loaded.TotalEvents)
	}
	if len(loaded.Segments) != 2 {
		t.Fatalf("loaded segments = %d, want 2", len(loaded.Segments))
	}
	if len(loaded.Segments[0].Symbols) == 0 && len(loaded.Segments[1].Symbols) == 0 {
		t.Fatal("expected per-segment symbol bitmap to survive round trip")
	}
}

func TestIsUpToDate(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, dir, "a.floxlog", 1, 10, 0)

	m, err := BuildAndSave(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !m.IsUpToDate() {
		t.Fatal("freshly built manifest should be up to date")
	}

	writeTrades(t, dir, "b.floxlog", 2, 10, 0)
	if m.IsUpToDate() {
		t.Fatal("expected stale manifest after new segment appears")
	}
}

func TestGetOrBuild(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, dir, "a.floxlog", 1, 10, 0)

	m1, err := GetOrBuild(dir)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := GetOrBuild(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m1.TotalEvents != m2.TotalEvents {
		t.Fatalf("mismatched totals across GetOrBuild calls: %d vs %d", m1.TotalEvents, m2.TotalEvents)
	}
}

func TestPartitionByTime(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, dir, "a.floxlog", 1, 1000, 0)

	m, err := Build(dir)
	if err != nil {
		t.Fatal(err)
	}
	parts := NewPartitioner(m).PartitionByTime(4, 0)
	if len(parts) != 4 {
		t.Fatalf("partitions = %d, want 4", len(parts))
	}
	if parts[0].FromNs != m.FirstTsNs {
		t.Fatalf("first partition FromNs = %d, want %d", parts[0].FromNs, m.FirstTsNs)
	}
	if parts[3].ToNs != m.LastTsNs {
		t.Fatalf("last partition ToNs = %d, want %d", parts[3].ToNs, m.LastTsNs)
	}
	for i := 1; i < len(parts); i++ {
		if parts[i].FromNs != parts[i-1].ToNs {
			t.Fatalf("partitions not contiguous at %d: %d != %d", i, parts[i].FromNs, parts[i-1].ToNs)
		}
	}
}

func TestPartitionByEventCount(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, dir, "a.floxlog", 1, 300, 0)
	writeTrades(t, dir, "b.floxlog", 1, 300, 1_000_000_000)
	writeTrades(t, dir, "c.floxlog", 1, 400, 2_000_000_000)

	m, err := Build(dir)
	if err != nil {
		t.Fatal(err)
	}
	parts := NewPartitioner(m).PartitionByEventCount(3)
	var total uint64
	for _, p := range parts {
		total += p.EstimatedEvents
	}
	if total != 1000 {
		t.Fatalf("total estimated events across partitions = %d, want 1000", total)
	}
}

func TestPartitionPerSymbol(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, dir, "a.floxlog", 1, 10, 0)
	writeTrades(t, dir, "b.floxlog", 2, 10, 0)
	writeTrades(t, dir, "c.floxlog", 3, 10, 0)

	m, err := Build(dir)
	if err != nil {
		t.Fatal(err)
	}
	parts := NewPartitioner(m).PartitionPerSymbol()
	if len(parts) != 3 {
		t.Fatalf("partitions = %d, want 3", len(parts))
	}
	for _, p := range parts {
		if len(p.Symbols) != 1 {
			t.Fatalf("expected exactly one symbol per partition, got %d", len(p.Symbols))
		}
	}
}

func TestSerializeDeserializePartition(t *testing.T) {
	p := Partition{
		PartitionID:     7,
		FromNs:          100,
		ToNs:            200,
		WarmupFromNs:    50,
		EstimatedEvents: 42,
		EstimatedBytes:  4096,
		Symbols:         map[uint32]struct{}{1: {}, 2: {}},
		Segments: []SegmentEntry{
			{Filename: "a.floxlog", FirstEventNs: 100, LastEventNs: 150, EventCount: 20},
		},
	}
	data := SerializePartition(p)
	got, err := DeserializePartition(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.PartitionID != p.PartitionID || got.FromNs != p.FromNs || got.ToNs != p.ToNs {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, p)
	}
	if len(got.Symbols) != 2 {
		t.Fatalf("symbols = %d, want 2", len(got.Symbols))
	}
	if len(got.Segments) != 1 || got.Segments[0].Filename != "a.floxlog" {
		t.Fatalf("segments mismatch: %+v", got.Segments)
	}
}
