package validate

import (
	"os"
	"testing"

	"github.com/ndrandal/flox-replay/internal/floxfmt"
	"github.com/ndrandal/flox-replay/internal/segment"
)

func writeClean(t *testing.T, dir, name string, n int) string {
	t.Helper()
	w, err := segment.NewWriter(segment.WriterConfig{OutputDir: dir, OutputFilename: name, CreateIndex: true, IndexInterval: 10})
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

func TestValidateCleanSegment(t *testing.T) {
	dir := t.TempDir()
	path := writeClean(t, dir, "0.floxlog", 100)

	result := NewSegmentValidator(DefaultConfig()).Validate(path)
	if !result.Valid {
		t.Fatalf("expected valid, issues: %+v", result.Issues)
	}
	if result.ActualEventCount != 100 {
		t.Fatalf("actual event count = %d, want 100", result.ActualEventCount)
	}
	if result.TradesFound != 100 {
		t.Fatalf("trades found = %d, want 100", result.TradesFound)
	}
	if !result.IndexValid {
		t.Fatal("expected index valid")
	}
}

func TestValidateMissingFile(t *testing.T) {
	result := NewSegmentValidator(DefaultConfig()).Validate("/nonexistent/0.floxlog")
	if result.Valid {
		t.Fatal("expected invalid for missing file")
	}
	if !result.HasCritical() {
		t.Fatal("expected a critical issue for missing file")
	}
}

func TestValidateBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.floxlog"
	if err := os.WriteFile(path, make([]byte, 64), 0o644); err != nil {
		t.Fatal(err)
	}
	result := NewSegmentValidator(DefaultConfig()).Validate(path)
	if result.Valid {
		t.Fatal("expected invalid for bad magic")
	}
	found := false
	for _, issue := range result.Issues {
		if issue.Type == InvalidMagic {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected InvalidMagic issue, got %+v", result.Issues)
	}
}

func TestValidateCorruptedCRC(t *testing.T) {
	dir := t.TempDir()
	path := writeClean(t, dir, "0.floxlog", 10)

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	// Flip a byte inside the first frame's payload (well past the 64-byte
	// summary header and 12-byte frame header).
	if _, err := f.WriteAt([]byte{0xFF}, 100); err != nil {
		t.Fatal(err)
	}
	f.Close()

	result := NewSegmentValidator(DefaultConfig()).Validate(path)
	if result.CRCErrors == 0 {
		t.Fatal("expected at least one CRC error")
	}
	if !result.HasErrors() {
		t.Fatal("expected HasErrors true")
	}
}

func TestDatasetValidator(t *testing.T) {
	dir := t.TempDir()
	writeClean(t, dir, "0.floxlog", 20)
	writeClean(t, dir, "1.floxlog", 30)

	result := NewDatasetValidator(DefaultConfig()).Validate(dir)
	if !result.Valid {
		t.Fatalf("expected dataset valid, segments: %+v", result.Segments)
	}
	if result.TotalSegments != 2 {
		t.Fatalf("total segments = %d, want 2", result.TotalSegments)
	}
	if result.TotalEvents != 50 {
		t.Fatalf("total events = %d, want 50", result.TotalEvents)
	}
}

func TestRepairFixesHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeClean(t, dir, "0.floxlog", 50)

	// Corrupt the header's event count directly to simulate drift between
	// the summary header and the actual frame count.
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, floxfmt.SegmentHeaderSize)
	f.ReadAt(buf, 0)
	hdr := floxfmt.DecodeSegmentHeader(buf)
	hdr.EventCount = 999
	out := make([]byte, floxfmt.SegmentHeaderSize)
	hdr.Encode(out)
	f.WriteAt(out, 0)
	f.Close()

	repairer := NewSegmentRepairer(DefaultConfig(), DefaultRepairConfig())
	result := repairer.Repair(path)
	if !result.Success {
		t.Fatalf("repair failed: %+v", result.Errors)
	}
	if !result.BackupCreated {
		t.Fatal("expected backup created")
	}

	revalidated := NewSegmentValidator(DefaultConfig()).Validate(path)
	if revalidated.ReportedEventCount != 50 {
		t.Fatalf("reported event count after repair = %d, want 50", revalidated.ReportedEventCount)
	}
}
