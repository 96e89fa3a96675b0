package model

import "fmt"

// ID is the dense, internal identifier of an indexed vector.
// IDs are assigned sequentially from 0 and are stable for the lifetime of the index.
type ID uint32

// Label is the caller-supplied identifier associated 1:1 with an ID.
type Label uint64

// Candidate is an internal search hit.
type Candidate struct {
	ID       ID
	Distance float32
}

// Result is a search hit expressed in caller terms.
type Result struct {
	Label    Label
	Distance float32
}

// String returns a string representation of the Result.
func (r Result) String() string {
	return fmt.Sprintf("Result(%d:%g)", r.Label, r.Distance)
}

// Labels extracts the labels of results, preserving order.
func Labels(results []Result) []Label {
	out := make([]Label, len(results))
	for i, r := range results {
		out[i] = r.Label
	}
	return out
}
