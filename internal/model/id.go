package model

import "github.com/oklog/ulid/v2"

// NewID returns a fresh ULID for task and worker ids. ULIDs sort by
// creation time, which keeps id-ordered scans roughly chronological.
func NewID() string {
	return ulid.Make().String()
}
