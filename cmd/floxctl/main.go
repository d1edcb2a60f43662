// Command floxctl is the offline maintenance tool for recorded datasets:
// validate, repair, (re)index, merge, split, export, inspect, and
// partition segment files without running a live replay.
//
// Usage:
//
//	floxctl validate <data-dir>
//	floxctl repair <segment-file>
//	floxctl index <data-dir>
//	floxctl merge <data-dir> <output-dir>
//	floxctl split -by time|count|size|symbol <segment-file> <output-dir>
//	floxctl export -format csv|json|jsonlines <segment-file> <output-path>
//	floxctl inspect <data-dir>
//	floxctl partition -n 4 <data-dir>
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ndrandal/flox-replay/internal/floxfmt"
	"github.com/ndrandal/flox-replay/internal/index"
	"github.com/ndrandal/flox-replay/internal/manifest"
	"github.com/ndrandal/flox-replay/internal/segmentops"
	"github.com/ndrandal/flox-replay/internal/validate"
)

func main() {
	log.SetFlags(log.Ltime)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "validate":
		err = runValidate(args)
	case "repair":
		err = runRepair(args)
	case "index":
		err = runIndex(args)
	case "merge":
		err = runMerge(args)
	case "split":
		err = runSplit(args)
	case "export":
		err = runExport(args)
	case "inspect":
		err = runInspect(args)
	case "partition":
		err = runPartition(args)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: floxctl <validate|repair|index|merge|split|export|inspect|partition> ...")
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: floxctl validate <data-dir>")
	}
	dataDir := fs.Arg(0)

	result := validate.NewDatasetValidator(validate.DefaultConfig()).Validate(dataDir)
	fmt.Printf("%s: %d/%d segments valid, %d errors, %d warnings\n",
		dataDir, result.ValidSegments, result.TotalSegments, result.TotalErrors, result.TotalWarnings)
	for _, seg := range result.Segments {
		if seg.Valid {
			continue
		}
		fmt.Printf("  %s: INVALID\n", seg.Path)
		for _, issue := range seg.Issues {
			fmt.Printf("    [%s] %s: %s\n", issue.Severity, issue.Type, issue.Message)
		}
	}
	if !result.Valid {
		os.Exit(1)
	}
	return nil
}

func runRepair(args []string) error {
	fs := flag.NewFlagSet("repair", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: floxctl repair <segment-file>")
	}
	path := fs.Arg(0)

	result := validate.NewSegmentRepairer(validate.DefaultConfig(), validate.DefaultRepairConfig()).Repair(path)
	fmt.Printf("%s: success=%v backup=%v actions=%v\n", path, result.Success, result.BackupPath, result.ActionsTaken)
	if len(result.Errors) > 0 {
		return fmt.Errorf("repair reported errors: %v", result.Errors)
	}
	return nil
}

func runIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	interval := fs.Uint("interval", uint(floxfmt.DefaultIndexInterval), "events between index entries")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: floxctl index <data-dir>")
	}
	dataDir := fs.Arg(0)

	results, err := index.BuildForDirectory(dataDir, index.BuilderConfig{IndexInterval: uint16(*interval)})
	if err != nil {
		return err
	}
	for _, r := range results {
		if !r.Success {
			fmt.Printf("failed: %s\n", r.Error)
			continue
		}
		fmt.Printf("scanned=%d index_entries=%d\n", r.EventsScanned, r.IndexEntriesCreated)
	}
	return nil
}

func runMerge(args []string) error {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	sorted := fs.Bool("sorted", true, "merge-sort by timestamp instead of concatenating")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: floxctl merge <data-dir> <output-dir>")
	}

	result := segmentops.MergeDirectory(fs.Arg(0), segmentops.MergeConfig{
		OutputDir:       fs.Arg(1),
		OutputName:      "merged.floxlog",
		SortByTimestamp: *sorted,
	})
	if !result.Success {
		return fmt.Errorf("merge failed: %v", result.Errors)
	}
	fmt.Printf("merged %d segments, %d events into %s\n", result.SegmentsMerged, result.EventsWritten, result.OutputPath)
	return nil
}

func runSplit(args []string) error {
	fs := flag.NewFlagSet("split", flag.ExitOnError)
	by := fs.String("by", "time", "split mode: time, count, size, symbol")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: floxctl split -by time|count|size|symbol <segment-file> <output-dir>")
	}

	cfg := segmentops.DefaultSplitConfig()
	cfg.OutputDir = fs.Arg(1)
	switch *by {
	case "time":
		cfg.Mode = segmentops.SplitByTime
	case "count":
		cfg.Mode = segmentops.SplitByEventCount
	case "size":
		cfg.Mode = segmentops.SplitBySize
	case "symbol":
		cfg.Mode = segmentops.SplitBySymbol
	default:
		return fmt.Errorf("unknown split mode %q", *by)
	}

	result := segmentops.Split(fs.Arg(0), cfg)
	if !result.Success {
		return fmt.Errorf("split failed: %v", result.Errors)
	}
	fmt.Printf("split into %d segments (%d events)\n", result.SegmentsCreated, result.EventsWritten)
	return nil
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "csv", "export format: csv, json, jsonlines")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: floxctl export -format csv|json|jsonlines <segment-file> <output-path>")
	}

	cfg := segmentops.DefaultExportConfig()
	cfg.OutputPath = fs.Arg(1)
	switch *format {
	case "csv":
		cfg.Format = segmentops.ExportCSV
	case "json":
		cfg.Format = segmentops.ExportJSON
	case "jsonlines":
		cfg.Format = segmentops.ExportJSONLines
	default:
		return fmt.Errorf("unknown export format %q", *format)
	}

	result := segmentops.Export(fs.Arg(0), cfg)
	if !result.Success {
		return fmt.Errorf("export failed: %v", result.Errors)
	}
	fmt.Printf("exported %d events to %s\n", result.EventsExported, cfg.OutputPath)
	return nil
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print as JSON")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: floxctl inspect <data-dir>")
	}
	dataDir := fs.Arg(0)

	m, err := manifest.GetOrBuild(dataDir)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}

	fmt.Printf("%s: %d segments, %d events, %d bytes, %d symbols\n",
		dataDir, len(m.Segments), m.TotalEvents, m.TotalBytes, len(m.Symbols))
	fmt.Printf("span: [%d, %d] (%.1fs)\n", m.FirstTsNs, m.LastTsNs, m.DurationSeconds())
	for _, seg := range m.Segments {
		fmt.Printf("  %-30s events=%-8d bytes=%-10d [%d, %d]\n",
			seg.Filename, seg.EventCount, seg.FileSize, seg.FirstEventNs, seg.LastEventNs)
	}
	return nil
}

func runPartition(args []string) error {
	fs := flag.NewFlagSet("partition", flag.ExitOnError)
	n := fs.Uint("n", 4, "number of partitions")
	warmupNs := fs.Int64("warmup-ns", 0, "warmup duration to prepend to each partition")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: floxctl partition -n 4 <data-dir>")
	}

	p, err := manifest.NewPartitionerForDir(fs.Arg(0))
	if err != nil {
		return err
	}

	for _, part := range p.PartitionByTime(uint32(*n), *warmupNs) {
		fmt.Println(manifest.PartitionToJSON(part))
	}
	return nil
}
