// Package metadata reads and writes the human-readable sidecar that
// describes a recording: which symbols it covers, whether it carries
// trades and/or book snapshots/deltas, and the fixed-point scales used
// to encode prices and quantities in the segment files next to it.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const metadataFilename = "metadata.json"

// defaultScale is the fixed-point scale assumed when price_scale or
// qty_scale is absent or zero, matching the segment writer's own
// default raw-unit convention.
const defaultScale = 100_000_000

// SymbolInfo describes one instrument covered by a recording.
type SymbolInfo struct {
	SymbolID       uint32 `json:"symbol_id"`
	Name           string `json:"name"`
	BaseAsset      string `json:"base_asset"`
	QuoteAsset     string `json:"quote_asset"`
	PricePrecision int8   `json:"price_precision"`
	QtyPrecision   int8   `json:"qty_precision"`
}

// RecordingMetadata is the full contents of metadata.json.
type RecordingMetadata struct {
	RecordingID      string            `json:"recording_id"`
	Description      string            `json:"description"`
	Exchange         string            `json:"exchange"`
	ExchangeType     string            `json:"exchange_type"`
	InstrumentType   string            `json:"instrument_type"`
	ConnectorVersion string            `json:"connector_version"`
	Symbols          []SymbolInfo      `json:"symbols"`
	HasTrades        bool              `json:"has_trades"`
	HasBookSnapshots bool              `json:"has_book_snapshots"`
	HasBookDeltas    bool              `json:"has_book_deltas"`
	BookDepth        uint16            `json:"book_depth"`
	RecordingStart   string            `json:"recording_start"`
	RecordingEnd     string            `json:"recording_end"`
	PriceScale       int64             `json:"price_scale"`
	QtyScale         int64             `json:"qty_scale"`
	Hostname         string            `json:"hostname"`
	Timezone         string            `json:"timezone"`
	FloxVersion      string            `json:"flox_version"`
	Custom           map[string]string `json:"custom,omitempty"`
}

// New returns a RecordingMetadata with the documented defaults filled
// in, ready for a caller to populate fields on.
func New(recordingID string) RecordingMetadata {
	return RecordingMetadata{
		RecordingID: recordingID,
		PriceScale:  defaultScale,
		QtyScale:    defaultScale,
		Custom:      map[string]string{},
	}
}

// MetadataPath returns the conventional sidecar path for a dataset
// directory.
func MetadataPath(dataDir string) string {
	return filepath.Join(dataDir, metadataFilename)
}

// Save writes m as indented JSON to dataDir/metadata.json.
func (m RecordingMetadata) Save(dataDir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("metadata: marshal: %w", err)
	}
	data = append(data, '\n')
	path := MetadataPath(dataDir)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("metadata: write %s: %w", path, err)
	}
	return nil
}

// Load reads dataDir/metadata.json, if present, applying the same
// lenient defaulting the recording side uses: unknown JSON keys are
// ignored (encoding/json already does this), and a zero price_scale or
// qty_scale is treated as absent and defaulted to 1e8. ok is false
// only when the file does not exist; a malformed file is an error.
func Load(dataDir string) (meta RecordingMetadata, ok bool, err error) {
	path := MetadataPath(dataDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RecordingMetadata{}, false, nil
		}
		return RecordingMetadata{}, false, fmt.Errorf("metadata: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return RecordingMetadata{}, false, fmt.Errorf("metadata: parse %s: %w", path, err)
	}
	if meta.PriceScale == 0 {
		meta.PriceScale = defaultScale
	}
	if meta.QtyScale == 0 {
		meta.QtyScale = defaultScale
	}
	return meta, true, nil
}

// SymbolByID returns the SymbolInfo with the given id, if present.
func (m RecordingMetadata) SymbolByID(id uint32) (SymbolInfo, bool) {
	for _, s := range m.Symbols {
		if s.SymbolID == id {
			return s, true
		}
	}
	return SymbolInfo{}, false
}
