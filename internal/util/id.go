package util

import "github.com/google/uuid"

// NewID returns a client-generated identifier. All entities use this one
// scheme, so nothing downstream distinguishes persisted from not-yet-persisted
// records.
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
