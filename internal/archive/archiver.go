// Package archive periodically pushes sealed segment files to S3 cold
// storage, pruning local copies once uploaded so the working dataset
// directory stays within a size budget.
package archive

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ndrandal/flox-replay/internal/manifest"
)

// Archiver uploads sealed segment files older than maxAge to S3,
// deleting local copies once confirmed uploaded, and keeps local
// (un-archived) segment storage under maxBytes by pruning whatever
// has already been archived, oldest first.
type Archiver struct {
	client   *s3.Client
	bucket   string
	prefix   string
	dir      string
	maxBytes int64
	interval time.Duration
	maxAge   time.Duration
}

// New creates a new Archiver. maxGB bounds local segment storage;
// intervalHours/afterHours set the cadence and the sealed-segment age
// threshold before a segment becomes eligible for upload.
func New(client *s3.Client, bucket, prefix, dir string, maxGB, intervalHours, afterHours int) *Archiver {
	return &Archiver{
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		dir:      dir,
		maxBytes: int64(maxGB) * 1 << 30,
		interval: time.Duration(intervalHours) * time.Hour,
		maxAge:   time.Duration(afterHours) * time.Hour,
	}
}

// Run starts the periodic archive loop. Blocks until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	log.Printf("segment archiver: dir=%s bucket=%s prefix=%s interval=%v age=%v",
		a.dir, a.bucket, a.prefix, a.interval, a.maxAge)

	a.cycle(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cycle(ctx)
		}
	}
}

func (a *Archiver) cycle(ctx context.Context) {
	m, err := manifest.Build(a.dir)
	if err != nil {
		log.Printf("segment archiver: build manifest: %v", err)
		return
	}

	cutoff := time.Now().Add(-a.maxAge)

	// Never archive the newest segment: it may still be the live
	// writer's active segment even if its mtime looks old (e.g. a
	// quiet market).
	eligible := m.Segments
	if len(eligible) > 0 {
		eligible = eligible[:len(eligible)-1]
	}

	for _, seg := range eligible {
		path := seg.Path(a.dir)
		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		if fi.ModTime().After(cutoff) {
			continue
		}
		if err := a.uploadSegment(ctx, seg.Filename, path); err != nil {
			log.Printf("segment archiver: upload %s: %v", seg.Filename, err)
			continue
		}
		log.Printf("segment archiver: archived %s (%d bytes)", seg.Filename, fi.Size())
	}

	a.rotate()
}

func (a *Archiver) uploadSegment(ctx context.Context, filename, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	key := filepath.ToSlash(filepath.Join(a.prefix, filename))
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}

	marker := path + ".archived"
	return os.WriteFile(marker, []byte(time.Now().UTC().Format(time.RFC3339)), 0o644)
}

// rotate deletes the oldest archived segments (those with a .archived
// marker) until local segment storage is under maxBytes. Segments not
// yet confirmed uploaded are never pruned.
func (a *Archiver) rotate() {
	type entry struct {
		segPath string
		size    int64
	}

	var archived []entry
	var total int64

	filepath.Walk(a.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if filepath.Ext(path) == ".archived" {
			return nil
		}
		total += info.Size()
		if _, statErr := os.Stat(path + ".archived"); statErr == nil {
			archived = append(archived, entry{segPath: path, size: info.Size()})
		}
		return nil
	})

	if total <= a.maxBytes {
		return
	}

	sort.Slice(archived, func(i, j int) bool { return archived[i].segPath < archived[j].segPath })

	for _, e := range archived {
		if total <= a.maxBytes {
			break
		}
		if err := os.Remove(e.segPath); err != nil {
			log.Printf("segment archiver: remove %s: %v", e.segPath, err)
			continue
		}
		os.Remove(e.segPath + ".archived")
		total -= e.size
		log.Printf("segment archiver: pruned local copy of %s (%d bytes)", e.segPath, e.size)
	}
}
