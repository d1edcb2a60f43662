package replay

import (
	"context"
	"testing"
	"time"

	"github.com/ndrandal/flox-replay/internal/event"
	"github.com/ndrandal/flox-replay/internal/floxfmt"
	"github.com/ndrandal/flox-replay/internal/segment"
)

func writeTrades(t *testing.T, dir, name string, n int, startNs, stepNs int64, symbolID uint32) {
	t.Helper()
	w, err := segment.NewWriter(segment.WriterConfig{OutputDir: dir, OutputFilename: name, CreateIndex: true, IndexInterval: 10})
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
}

type recordingStrategy struct {
	trades []event.Trade
	books  []event.Book
}

func (r *recordingStrategy) OnTrade(tr event.Trade)    { r.trades = append(r.trades, tr) }
func (r *recordingStrategy) OnBookUpdate(b event.Book) { r.books = append(r.books, b) }

func TestSpeedParsing(t *testing.T) {
	cases := map[string]float64{
		"unlimited": 0,
		"realtime":  1.0,
		"1x":        1.0,
		"4x":        4.0,
		"2.5":       2.5,
	}
	for input, want := range cases {
		got, err := ParseSpeed(input)
		if err != nil {
			t.Fatalf("ParseSpeed(%q): %v", input, err)
		}
		if got.Value() != want {
			t.Fatalf("ParseSpeed(%q) = %v, want %v", input, got.Value(), want)
		}
	}
}

func TestRunNonInteractive(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, dir, "0.floxlog", 100, 0, 1_000_000, 1)

	strat := &recordingStrategy{}
	result, err := Run(context.Background(), Config{DataDir: dir, Speed: Unlimited(), Strategy: strat})
	if err != nil {
		t.Fatal(err)
	}
	if result.EventsProcessed != 100 {
		t.Fatalf("events processed = %d, want 100", result.EventsProcessed)
	}
	if result.TradesProcessed != 100 {
		t.Fatalf("trades processed = %d, want 100", result.TradesProcessed)
	}
	if len(strat.trades) != 100 {
		t.Fatalf("strategy saw %d trades, want 100", len(strat.trades))
	}
}

func TestRunRespectsTimeRangeFilter(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, dir, "0.floxlog", 1000, 0, 1_000_000, 1)

	from := int64(500_000_000)
	to := int64(700_000_000)
	result, err := Run(context.Background(), Config{DataDir: dir, Speed: Unlimited(), FromNs: &from, ToNs: &to})
	if err != nil {
		t.Fatal(err)
	}
	if result.EventsProcessed != 201 {
		t.Fatalf("events processed = %d, want 201", result.EventsProcessed)
	}
}

func TestDriverStepAdvancesOneEvent(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, dir, "0.floxlog", 10, 0, 1_000_000, 1)

	strat := &recordingStrategy{}
	d, err := NewDriver(Config{DataDir: dir, Speed: Unlimited(), Strategy: strat})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	d.Step()
	if len(strat.trades) != 1 {
		t.Fatalf("after one Step, strategy saw %d trades, want 1", len(strat.trades))
	}
	d.Step()
	if len(strat.trades) != 2 {
		t.Fatalf("after two Steps, strategy saw %d trades, want 2", len(strat.trades))
	}
}

func TestDriverBreakpointAfterEvents(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, dir, "0.floxlog", 100, 0, 1_000_000, 1)

	d, err := NewDriver(Config{DataDir: dir, Speed: Unlimited()})
	if err != nil {
		t.Fatal(err)
	}
	d.AddBreakpoint(AfterNEvents(10))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	d.Resume()
	deadline := time.Now().Add(2 * time.Second)
	for d.Counts().EventsProcessed < 10 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if d.Counts().EventsProcessed != 10 {
		t.Fatalf("events processed at breakpoint = %d, want 10", d.Counts().EventsProcessed)
	}
}

func TestDriverRunsToFinish(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, dir, "0.floxlog", 20, 0, 1_000_000, 1)

	d, err := NewDriver(Config{DataDir: dir, Speed: Unlimited()})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	d.Resume()
	deadline := time.Now().Add(2 * time.Second)
	for !d.IsFinished() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !d.IsFinished() {
		t.Fatal("expected driver to finish")
	}
	if d.Counts().EventsProcessed != 20 {
		t.Fatalf("events processed = %d, want 20", d.Counts().EventsProcessed)
	}
}
