// Package persistence serializes built HNSW indexes.
//
// A snapshot is a fixed-size little-endian FileHeader followed by the body,
// optionally compressed with zstd or lz4. The body ends with a CRC32 (IEEE) of
// its uncompressed bytes, so corruption is detected regardless of compression.
//
// Body layout:
//
//	vectors   Count*Dimension float32
//	labels    Count uint64
//	per node  layers uint16, then per layer: degree uint16, degree*uint32 ids
//	checksum  uint32
package persistence
