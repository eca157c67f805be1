// Package search indexes board summaries for the travel app's home screen.
// Meilisearch is the primary backend; when it is down, callers fall back to
// the persistence store's ILIKE listing.
package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxBoards = "wanderboard_boards"

// BoardDocument is the indexed projection of a board.
type BoardDocument struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Themes      []string `json:"themes"`
	Activities  []string `json:"activities"`
	AIGenerated bool     `json:"aiGenerated"`
	UpdatedAt   int64    `json:"updatedAt"`
}

// Meili wraps the Meilisearch client with a background health monitor so an
// index outage degrades search instead of failing requests.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))
	m := &Meili{client: client, done: make(chan struct{})}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxBoards, PrimaryKey: "id"}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxBoards, err)
	}
	index := m.client.Index(idxBoards)
	searchable := []string{"title", "description", "themes", "activities"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs: %v", err)
	}
	sortable := []string{"updatedAt"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		log.Printf("search: update sortable attrs: %v", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// IndexBoard upserts one board document. Indexing is best-effort; failures
// are logged and the board remains findable through the store fallback.
func (m *Meili) IndexBoard(doc BoardDocument) {
	if !m.healthy.Load() {
		return
	}
	if _, err := m.client.Index(idxBoards).AddDocuments([]BoardDocument{doc}, nil); err != nil {
		log.Printf("search: index board %s: %v", doc.ID, err)
	}
}

// RemoveBoard deletes a board document.
func (m *Meili) RemoveBoard(id string) {
	if !m.healthy.Load() {
		return
	}
	if _, err := m.client.Index(idxBoards).DeleteDocument(id, nil); err != nil {
		log.Printf("search: remove board %s: %v", id, err)
	}
}

// Search returns matching board ids, best match first.
func (m *Meili) Search(query string, limit int) ([]string, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("search index unavailable")
	}
	result, err := m.client.Index(idxBoards).Search(query, &meili.SearchRequest{Limit: int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("search boards: %w", err)
	}
	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if id := decodeString(hit, "id"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// decodeString extracts a string field from a search hit. Hit values arrive
// as raw JSON.
func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}
