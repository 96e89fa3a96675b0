// Package model defines the identity and result types shared by the index,
// its storage layers and the benchmark harness.
//
// # Identity Types
//
//   - ID: dense internal identifier assigned at insertion (uint32)
//   - Label: caller-supplied identifier reported in query results (uint64)
//
// Internal IDs never leave the index; every public result is expressed in labels.
package model
