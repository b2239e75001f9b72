package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxChunks = "counsel_document_chunks"

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the chunk index.
// An unreachable server leaves the client unhealthy; the health loop keeps
// probing and reconfigures on recovery.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		slog.Warn("search: meilisearch unavailable", "url", url, "error", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxChunks,
		PrimaryKey: "id",
	}); err != nil {
		slog.Debug("search: create index (may already exist)", "index", idxChunks, "error", err)
	}

	index := m.client.Index(idxChunks)
	filterable := []interface{}{"draftId", "category", "fileName"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		slog.Warn("search: update filterable attrs", "index", idxChunks, "error", err)
	}
	searchable := []string{"content", "fileName", "category"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		slog.Warn("search: update searchable attrs", "index", idxChunks, "error", err)
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
				slog.Info("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the chunk index filtered to the draft.
func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit <= 0 {
		limit = defaultLimit
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:         idxChunks,
			Query:            q.Text,
			Limit:            limit,
			Filter:           []string{fmt.Sprintf("draftId = %d", q.DraftID)},
			ShowRankingScore: true,
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		DocumentID: decodeString(hit, "id"),
		FileName:   decodeString(hit, "fileName"),
		Category:   decodeString(hit, "category"),
		Content:    firstNonBlank(decodeFormattedString(hit, "content"), decodeString(hit, "content")),
		Score:      decodeFloat(hit, "_rankingScore"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFloat(hit meili.Hit, key string) float64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	return 0
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	value, _ := formatted[key].(string)
	return strings.TrimSpace(value)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexChunk adds or updates a chunk in the search index.
func (m *Meili) IndexChunk(c ChunkRecord) error {
	_, err := m.client.Index(idxChunks).AddDocuments([]ChunkRecord{c}, nil)
	return err
}

// IndexChunks bulk-indexes chunks.
func (m *Meili) IndexChunks(chunks []ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	_, err := m.client.Index(idxChunks).AddDocuments(chunks, nil)
	return err
}
