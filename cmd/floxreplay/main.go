// Command floxreplay is the online composition root: it wires a replay
// driver over a dataset directory to an optional live control/tail
// WebSocket surface, an optional dataset catalog, and an optional S3
// cold-storage archiver, then runs until signaled.
//
// Usage:
//
//	floxreplay -data-dir ./data -replay-speed realtime -port 8100
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ndrandal/flox-replay/internal/archive"
	"github.com/ndrandal/flox-replay/internal/catalog"
	"github.com/ndrandal/flox-replay/internal/config"
	"github.com/ndrandal/flox-replay/internal/liveapi"
	"github.com/ndrandal/flox-replay/internal/manifest"
	"github.com/ndrandal/flox-replay/internal/replay"
)

func main() {
	cfg := config.Load()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("flox-replay starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	speed, err := replay.ParseSpeed(cfg.ReplaySpeed)
	if err != nil {
		log.Fatalf("invalid replay speed: %v", err)
	}

	mgr := liveapi.NewManager(256)

	driver, err := replay.NewDriver(replay.Config{
		DataDir:  cfg.DataDir,
		Speed:    speed,
		Strategy: mgr,
	})
	if err != nil {
		log.Fatalf("failed to open dataset %s: %v", cfg.DataDir, err)
	}
	mgr.SetDriver(driver)
	driver.Start(ctx)
	driver.Resume()
	log.Printf("replay driver running over %s at %s", cfg.DataDir, cfg.ReplaySpeed)

	// Dataset catalog (opt-in: only active when a Mongo URI resolves)
	var store *catalog.Store
	if cfg.MongoURI != "" {
		store, err = catalog.NewStore(ctx, cfg.MongoURI)
		if err != nil {
			log.Printf("warning: catalog connection failed, continuing without it: %v", err)
		} else {
			defer store.Close(context.Background())
			if err := store.Migrate(ctx); err != nil {
				log.Printf("warning: catalog migration failed: %v", err)
			} else if m, err := manifest.GetOrBuild(cfg.DataDir); err == nil {
				if err := store.Upsert(ctx, cfg.DataDir, "", m); err != nil {
					log.Printf("warning: catalog upsert failed: %v", err)
				}
				go runManifestRefresh(ctx, store, cfg)
			}
		}
	}

	// S3 cold-storage archiver (opt-in: only active when a bucket is set)
	if cfg.S3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
		if err != nil {
			log.Printf("warning: archiver disabled, failed to load AWS config: %v", err)
		} else {
			client := s3.NewFromConfig(awsCfg)
			archiver := archive.New(client, cfg.S3Bucket, cfg.S3Prefix, cfg.DataDir,
				0, cfg.ArchiveIntervalHours, cfg.ArchiveAfterHours)
			go archiver.Run(ctx)
			log.Printf("segment archiver running, uploading sealed segments older than %dh to s3://%s/%s",
				cfg.ArchiveAfterHours, cfg.S3Bucket, cfg.S3Prefix)
		}
	}

	mux := http.NewServeMux()
	liveapi.NewServer(mgr).Register(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.WSPort)
	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		liveapi.NewServer(mgr).Shutdown(shutdownCtx)
		driver.Stop()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("live control/tail server listening on ws://%s/replay", addr)
	log.Printf("health check: http://%s/health", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// runManifestRefresh periodically rebuilds the dataset's manifest and
// pushes the refreshed summary into the catalog, so catalog readers see
// an up to date segment/event count while the dataset is still being
// appended to.
func runManifestRefresh(ctx context.Context, store *catalog.Store, cfg *config.Config) {
	ticker := time.NewTicker(cfg.ManifestRebuildInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m, err := manifest.BuildAndSave(cfg.DataDir)
			if err != nil {
				log.Printf("manifest refresh failed: %v", err)
				continue
			}
			if err := store.Upsert(ctx, cfg.DataDir, "", m); err != nil {
				log.Printf("catalog upsert failed: %v", err)
			}
		}
	}
}
