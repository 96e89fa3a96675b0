package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/annbench/benchmark"
	"github.com/hupe1980/annbench/blobstore"
	miniostore "github.com/hupe1980/annbench/blobstore/minio"
	s3store "github.com/hupe1980/annbench/blobstore/s3"
)

// openStore returns the snapshot store selected by cfg.
func openStore(ctx context.Context, cfg benchmark.StoreConfig) (blobstore.Store, error) {
	switch cfg.Kind {
	case "", "file":
		root := cfg.Path
		if root == "" {
			root = "."
		}
		return blobstore.NewLocalStore(root), nil
	case "s3":
		if cfg.Bucket == "" {
			return nil, errors.New("store kind s3 requires a bucket")
		}
		return s3store.NewStoreFromEnv(ctx, cfg.Bucket, cfg.Prefix)
	case "minio":
		if cfg.Bucket == "" || cfg.Endpoint == "" {
			return nil, errors.New("store kind minio requires an endpoint and a bucket")
		}
		client, err := miniostore.Dial(cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.Secure)
		if err != nil {
			return nil, err
		}
		return miniostore.NewStore(client, cfg.Bucket, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}

// bucketEnsurer is implemented by stores that can create their bucket.
type bucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

// openCatalog returns the version catalog, or nil when none is configured.
func openCatalog(ctx context.Context, cfg benchmark.StoreConfig) (*s3store.Catalog, error) {
	if cfg.CatalogTable == "" {
		return nil, nil
	}
	if cfg.Kind != "s3" {
		return nil, fmt.Errorf("catalogTable requires store kind s3, got %q", cfg.Kind)
	}
	return s3store.NewCatalogFromEnv(ctx, cfg.CatalogTable)
}
