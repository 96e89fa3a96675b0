// Package minio stores index snapshots with the MinIO client.
//
// It works with MinIO and other S3-compatible servers (Ceph, Garage, SeaweedFS)
// and needs no AWS SDK.
//
// # Basic Usage
//
//	client, err := minioblob.Dial("localhost:9000", "minioadmin", "minioadmin", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "my-bucket", "indexes/")
//	if err := store.EnsureBucket(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	err = idx.SaveTo(ctx, store, "glove-100.annb")
package minio
