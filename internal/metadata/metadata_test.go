package metadata

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := New("rec-001")
	m.Exchange = "binance"
	m.ExchangeType = "spot"
	m.InstrumentType = "perp"
	m.HasTrades = true
	m.HasBookSnapshots = true
	m.BookDepth = 20
	m.Symbols = []SymbolInfo{
		{SymbolID: 1, Name: "BTC-USDT", BaseAsset: "BTC", QuoteAsset: "USDT", PricePrecision: 2, QtyPrecision: 6},
	}
	m.Custom["region"] = "us-east-1"

	if err := m.Save(dir); err != nil {
		t.Fatal(err)
	}

	got, ok, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected metadata file to be found")
	}
	if got.Exchange != "binance" || got.InstrumentType != "perp" {
		t.Fatalf("unexpected metadata: %+v", got)
	}
	if len(got.Symbols) != 1 || got.Symbols[0].Name != "BTC-USDT" {
		t.Fatalf("unexpected symbols: %+v", got.Symbols)
	}
	if got.Custom["region"] != "us-east-1" {
		t.Fatalf("custom field not preserved: %+v", got.Custom)
	}
	if got.PriceScale != defaultScale || got.QtyScale != defaultScale {
		t.Fatalf("scales = %d, %d, want default %d", got.PriceScale, got.QtyScale, defaultScale)
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, ok, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected ok=false for missing file")
	}
}

func TestLoadFillsDefaultScalesWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	raw := `{"recording_id": "rec-002", "exchange": "coinbase"}`
	if err := os.WriteFile(filepath.Join(dir, metadataFilename), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	got, ok, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected file to load")
	}
	if got.PriceScale != defaultScale {
		t.Fatalf("price_scale = %d, want default %d", got.PriceScale, defaultScale)
	}
	if got.QtyScale != defaultScale {
		t.Fatalf("qty_scale = %d, want default %d", got.QtyScale, defaultScale)
	}
}

func TestLoadIgnoresUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	raw := `{
		"recording_id": "rec-003",
		"exchange": "kraken",
		"price_scale": 1000000,
		"qty_scale": 1000000,
		"some_future_field": {"nested": true},
		"another_unknown": 42
	}`
	if err := os.WriteFile(filepath.Join(dir, metadataFilename), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	got, ok, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error parsing file with unknown keys: %v", err)
	}
	if !ok {
		t.Fatal("expected file to load")
	}
	if got.Exchange != "kraken" {
		t.Fatalf("exchange = %q, want kraken", got.Exchange)
	}
	if got.PriceScale != 1_000_000 {
		t.Fatalf("price_scale = %d, want 1000000 (explicit non-zero value preserved)", got.PriceScale)
	}
}

func TestSymbolByID(t *testing.T) {
	m := New("rec-004")
	m.Symbols = []SymbolInfo{
		{SymbolID: 7, Name: "ETH-USDT"},
	}
	s, ok := m.SymbolByID(7)
	if !ok || s.Name != "ETH-USDT" {
		t.Fatalf("SymbolByID(7) = %+v, %v", s, ok)
	}
	if _, ok := m.SymbolByID(99); ok {
		t.Fatal("expected SymbolByID(99) to miss")
	}
}
