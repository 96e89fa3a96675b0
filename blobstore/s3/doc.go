// Package s3 stores index snapshots in Amazon S3.
//
// Uploads stream through the SDK's multipart upload manager. A Catalog backed
// by DynamoDB conditional writes records which snapshot is current for a named
// index, giving readers an atomic pointer that S3 alone does not provide.
package s3
