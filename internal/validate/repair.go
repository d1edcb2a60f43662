package validate

import (
	"fmt"
	"io"
	"os"

	"github.com/ndrandal/flox-replay/internal/floxfmt"
	"github.com/ndrandal/flox-replay/internal/index"
)

// RepairConfig tunes SegmentRepairer's best-effort fixes.
type RepairConfig struct {
	BackupBeforeRepair    bool
	BackupSuffix          string
	FixHeaderTimestamps   bool
	FixEventCount         bool
	RebuildIndex          bool
	RemoveCorruptedFrames bool
	// TruncateAtCorruption is optional and disabled by default; the spec
	// does not require it, and the naive approach (truncate at the first
	// CRC mismatch) can discard an entire segment's tail over a single
	// flipped bit. RepairWithValidation does not act on it: setting it
	// changes nothing.
	TruncateAtCorruption bool
}

// DefaultRepairConfig matches the header's in-struct defaults.
func DefaultRepairConfig() RepairConfig {
	return RepairConfig{
		BackupBeforeRepair:  true,
		BackupSuffix:        ".backup",
		FixHeaderTimestamps: true,
		FixEventCount:       true,
		RebuildIndex:        true,
	}
}

// RepairResult reports what was changed.
type RepairResult struct {
	Path          string
	Success       bool
	BackupCreated bool
	BackupPath    string
	ActionsTaken  []string
	Errors        []string
}

// SegmentRepairer applies RepairConfig's fixes to one segment at a time.
type SegmentRepairer struct {
	cfg  Config
	rcfg RepairConfig
}

func NewSegmentRepairer(vcfg Config, rcfg RepairConfig) *SegmentRepairer {
	return &SegmentRepairer{cfg: vcfg, rcfg: rcfg}
}

// Repair validates path fresh, then applies the configured fixes.
func (r *SegmentRepairer) Repair(path string) RepairResult {
	validation := NewSegmentValidator(r.cfg).Validate(path)
	return r.RepairWithValidation(path, validation)
}

// RepairWithValidation applies fixes using an already-computed
// validation result, to avoid a redundant scan.
func (r *SegmentRepairer) RepairWithValidation(path string, validation SegmentResult) RepairResult {
	result := RepairResult{Path: path}

	if r.rcfg.BackupBeforeRepair {
		backupPath := path + r.rcfg.BackupSuffix
		if err := copyFile(path, backupPath); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("backup: %v", err))
			return result
		}
		result.BackupCreated = true
		result.BackupPath = backupPath
	}

	if r.rcfg.FixHeaderTimestamps || r.rcfg.FixEventCount {
		if err := r.fixHeader(path, validation, &result); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	if r.rcfg.RebuildIndex {
		res := index.BuildForSegment(path, index.BuilderConfig{VerifyCRC: r.cfg.VerifyCRC})
		if res.Success {
			result.ActionsTaken = append(result.ActionsTaken, "rebuilt index")
		} else if res.Error != "" && res.Error != "no events to index" {
			result.Errors = append(result.Errors, fmt.Sprintf("rebuild index: %s", res.Error))
		}
	}

	// TruncateAtCorruption is deliberately not implemented here beyond the
	// flag itself: nothing in the current validator output identifies a
	// single earliest-corruption offset distinct from per-frame issues,
	// so acting on it would mean re-deriving that offset from the issues
	// list, which this repairer leaves to a future pass.

	result.Success = len(result.Errors) == 0
	return result
}

func (r *SegmentRepairer) fixHeader(path string, validation SegmentResult, result *RepairResult) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("reopen for repair: %w", err)
	}
	defer f.Close()

	buf := make([]byte, floxfmt.SegmentHeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	hdr := floxfmt.DecodeSegmentHeader(buf)
	changed := false

	if r.rcfg.FixHeaderTimestamps {
		if hdr.FirstEventNs != validation.ActualFirstTs {
			hdr.FirstEventNs = validation.ActualFirstTs
			changed = true
		}
		if hdr.LastEventNs != validation.ActualLastTs {
			hdr.LastEventNs = validation.ActualLastTs
			changed = true
		}
	}
	if r.rcfg.FixEventCount && hdr.EventCount != validation.ActualEventCount {
		hdr.EventCount = validation.ActualEventCount
		changed = true
	}

	if !changed {
		return nil
	}

	out := make([]byte, floxfmt.SegmentHeaderSize)
	hdr.Encode(out)
	if _, err := f.WriteAt(out, 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	result.ActionsTaken = append(result.ActionsTaken, "fixed header timestamps/event count")
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
