package search

import "context"

// Result is one ranked excerpt of a document uploaded to a draft.
type Result struct {
	DocumentID string  `json:"documentId"`
	FileName   string  `json:"fileName"`
	Category   string  `json:"category"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// Query describes a retrieval request scoped to one draft's documents.
type Query struct {
	DraftID int64
	Text    string
	Limit   int
}

// Response is the envelope returned to callers of Service.Search.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a ranked search over document chunks.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push document chunks into a search index.
type Indexer interface {
	IndexChunk(c ChunkRecord) error
	IndexChunks(chunks []ChunkRecord) error
}

// ChunkRecord is the data we index for a document chunk.
type ChunkRecord struct {
	ID         string `json:"id"`
	DraftID    int64  `json:"draftId"`
	FileName   string `json:"fileName"`
	Category   string `json:"category"`
	ChunkIndex int    `json:"chunkIndex"`
	Content    string `json:"content"`
}

const defaultLimit = 5
