package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/ndrandal/flox-replay/internal/floxfmt"
)

// Config holds every tunable the recording, replay, and archive tiers
// read at startup.
type Config struct {
	// Dataset
	DataDir         string
	MaxSegmentBytes uint64
	IndexInterval   int
	Compression     floxfmt.CompressionType

	// Replay
	ReplaySpeed string // parsed with replay.ParseSpeed

	// Live control/tail surface
	WSPort int
	Host   string

	// Catalog (Mongo-backed dataset registry)
	MongoURI string

	// S3 cold-storage archiver (opt-in: only active when S3Bucket is set)
	S3Bucket             string
	S3Region             string
	S3Prefix             string
	ArchiveIntervalHours int
	ArchiveAfterHours    int

	// Manifest/index maintenance
	ManifestRebuildInterval time.Duration
}

func Load() *Config {
	c := &Config{}

	flag.StringVar(&c.DataDir, "data-dir", envStr("FLOX_DATA_DIR", "./data"), "dataset directory containing segment files")
	flag.Uint64Var(&c.MaxSegmentBytes, "max-segment-bytes", envUint64("FLOX_MAX_SEGMENT_BYTES", 256<<20), "rotate to a new segment after this many bytes (0 = never)")
	flag.IntVar(&c.IndexInterval, "index-interval", envInt("FLOX_INDEX_INTERVAL", int(floxfmt.DefaultIndexInterval)), "events between sparse index entries")
	flag.StringVar(&c.ReplaySpeed, "replay-speed", envStr("FLOX_REPLAY_SPEED", "unlimited"), "replay pacing: unlimited, realtime, or a multiplier like 4x")

	compression := flag.String("compression", envStr("FLOX_COMPRESSION", "none"), "segment block compression: none or lz4")

	flag.IntVar(&c.WSPort, "port", envInt("FLOX_PORT", 8100), "live control/tail WebSocket server port")
	flag.StringVar(&c.Host, "host", envStr("FLOX_HOST", "0.0.0.0"), "listen host")

	flag.StringVar(&c.MongoURI, "mongo-uri", envStr("MONGO_URI", "mongodb://localhost:27017/floxcatalog"), "MongoDB connection URI for the dataset catalog")

	flag.StringVar(&c.S3Bucket, "s3-bucket", envStr("S3_BUCKET", ""), "S3 bucket for segment archival (empty = disabled)")
	flag.StringVar(&c.S3Region, "s3-region", envStr("S3_REGION", "us-east-1"), "AWS region for S3")
	flag.StringVar(&c.S3Prefix, "s3-prefix", envStr("S3_PREFIX", "flox-replay"), "S3 key prefix for archived segments")
	flag.IntVar(&c.ArchiveIntervalHours, "archive-interval", envInt("ARCHIVE_INTERVAL_HOURS", 6), "hours between archive runs")
	flag.IntVar(&c.ArchiveAfterHours, "archive-after", envInt("ARCHIVE_AFTER_HOURS", 24), "archive segments sealed longer ago than this many hours")

	flag.Parse()

	switch *compression {
	case "lz4":
		c.Compression = floxfmt.CompressionLZ4
	default:
		c.Compression = floxfmt.CompressionNone
	}

	c.ManifestRebuildInterval = 30 * time.Second

	return c
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envUint64(key string, def uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
