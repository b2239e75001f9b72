package search

import (
	"context"
	"log/slog"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili Searcher
	pgfts Searcher
	index Indexer
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	s := &Service{}
	if pgfts != nil {
		s.pgfts = pgfts
	}
	if meili != nil {
		s.meili = meili
		s.index = meili
	}
	return s
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS. A
// failing fallback yields an empty response; retrieval never fails a turn.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		slog.Warn("search: meilisearch error, falling back to pgfts", "draft_id", q.DraftID, "error", err)
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		slog.Error("search: pgfts error", "draft_id", q.DraftID, "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexChunk indexes a chunk (fire-and-forget to Meilisearch). PG FTS picks
// the chunk up from its generated column without extra work.
func (s *Service) IndexChunk(c ChunkRecord) {
	if s.index == nil || s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.index.IndexChunk(c); err != nil {
			slog.Error("search: index chunk", "chunk_id", c.ID, "draft_id", c.DraftID, "error", err)
		}
	}()
}

// ReindexAllFromPG pushes every stored chunk into Meilisearch. Called at
// startup so an empty or rebuilt index catches up with Postgres.
func (s *Service) ReindexAllFromPG(ctx context.Context, loader interface {
	LoadAllRecords(context.Context) ([]ChunkRecord, error)
}) {
	if s.index == nil || s.meili == nil || !s.meili.Healthy() || loader == nil {
		return
	}
	chunks, err := loader.LoadAllRecords(ctx)
	if err != nil {
		slog.Error("search: reindex load failed", "error", err)
		return
	}
	if err := s.index.IndexChunks(chunks); err != nil {
		slog.Error("search: reindex chunks", "count", len(chunks), "error", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
