package store

import "time"

// BoardSummary is the listing projection: enough for the boards index
// without deserializing the element payload.
type BoardSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	AIGenerated bool      `json:"aiGenerated"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
