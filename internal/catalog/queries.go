package catalog

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ndrandal/flox-replay/internal/manifest"
)

// DatasetDoc is the catalog's record of one dataset directory, cached
// from its last-built manifest so an operator can browse available
// datasets without rescanning every directory on disk.
type DatasetDoc struct {
	Name          string    `bson:"name"`
	Path          string    `bson:"path"`
	Exchange      string    `bson:"exchange,omitempty"`
	SegmentCount  int       `bson:"segment_count"`
	TotalEvents   uint64    `bson:"total_events"`
	TotalBytes    uint64    `bson:"total_bytes"`
	FirstTsNs     int64     `bson:"first_ts_ns"`
	LastTsNs      int64     `bson:"last_ts_ns"`
	SymbolCount   int       `bson:"symbol_count"`
	LastIndexedAt time.Time `bson:"last_indexed_at"`
}

func datasetFromManifest(name, exchange string, m *manifest.Manifest) DatasetDoc {
	return DatasetDoc{
		Name:          name,
		Path:          m.DataDir,
		Exchange:      exchange,
		SegmentCount:  len(m.Segments),
		TotalEvents:   m.TotalEvents,
		TotalBytes:    m.TotalBytes,
		FirstTsNs:     m.FirstTsNs,
		LastTsNs:      m.LastTsNs,
		SymbolCount:   len(m.Symbols),
		LastIndexedAt: time.Now().UTC(),
	}
}

// Upsert records or refreshes a dataset's catalog entry from a freshly
// built manifest.
func (s *Store) Upsert(ctx context.Context, name, exchange string, m *manifest.Manifest) error {
	doc := datasetFromManifest(name, exchange, m)
	_, err := s.db.Collection("datasets").UpdateOne(ctx,
		bson.M{"name": name},
		bson.M{"$set": doc},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("catalog: upsert dataset %s: %w", name, err)
	}
	return nil
}

// Get looks up a dataset by name.
func (s *Store) Get(ctx context.Context, name string) (DatasetDoc, error) {
	var doc DatasetDoc
	err := s.db.Collection("datasets").FindOne(ctx, bson.M{"name": name}).Decode(&doc)
	if err != nil {
		return DatasetDoc{}, fmt.Errorf("catalog: get dataset %s: %w", name, err)
	}
	return doc, nil
}

// List returns every known dataset, optionally restricted to an
// exchange, sorted by name.
func (s *Store) List(ctx context.Context, exchange string) ([]DatasetDoc, error) {
	filter := bson.M{}
	if exchange != "" {
		filter["exchange"] = exchange
	}
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})

	cur, err := s.db.Collection("datasets").Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("catalog: list datasets: %w", err)
	}
	defer cur.Close(ctx)

	var docs []DatasetDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("catalog: decode datasets: %w", err)
	}
	return docs, nil
}

// Remove deletes a dataset's catalog entry. It does not touch the
// underlying directory or its segment files.
func (s *Store) Remove(ctx context.Context, name string) error {
	_, err := s.db.Collection("datasets").DeleteOne(ctx, bson.M{"name": name})
	if err != nil && err != mongo.ErrNoDocuments {
		return fmt.Errorf("catalog: remove dataset %s: %w", name, err)
	}
	return nil
}

// FindByTimeRange returns datasets whose recorded span overlaps
// [fromNs, toNs], the same time-only filter convention every other
// consumer in this module uses.
func (s *Store) FindByTimeRange(ctx context.Context, fromNs, toNs int64) ([]DatasetDoc, error) {
	filter := bson.M{
		"first_ts_ns": bson.M{"$lte": toNs},
		"last_ts_ns":  bson.M{"$gte": fromNs},
	}
	opts := options.Find().SetSort(bson.D{{Key: "first_ts_ns", Value: 1}})

	cur, err := s.db.Collection("datasets").Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("catalog: find by time range: %w", err)
	}
	defer cur.Close(ctx)

	var docs []DatasetDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("catalog: decode datasets: %w", err)
	}
	return docs, nil
}
