package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. Postgres being down takes the whole service down with it.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks the draft's chunks against an OR query of the text's terms,
// so long conversational queries still match partially.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	tsQuery := orQuery(q.Text)
	if tsQuery == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM document_chunks
		WHERE draft_id = $1 AND fts @@ to_tsquery('english', $2)
	`, q.DraftID, tsQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, file_name, category,
			ts_headline('english', content, to_tsquery('english', $2), 'MaxFragments=2,MaxWords=60'),
			ts_rank(fts, to_tsquery('english', $2), 32) AS rank
		FROM document_chunks
		WHERE draft_id = $1 AND fts @@ to_tsquery('english', $2)
		ORDER BY rank DESC, created_at ASC
		LIMIT %d`, limit), q.DraftID, tsQuery)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.DocumentID, &r.FileName, &r.Category, &r.Content, &r.Score); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all chunks for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ChunkRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, draft_id, file_name, category, chunk_index, content
		FROM document_chunks
	`)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]ChunkRecord, 0)
	for rows.Next() {
		var c ChunkRecord
		if err := rows.Scan(&c.ID, &c.DraftID, &c.FileName, &c.Category, &c.ChunkIndex, &c.Content); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

// orQuery turns free text into a to_tsquery expression joining its distinct
// terms with OR. Terms are reduced to letters and digits so user text can
// never inject tsquery operators.
func orQuery(text string) string {
	seen := make(map[string]struct{})
	var terms []string
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(field)) < 3 {
			continue
		}
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		terms = append(terms, field)
		if len(terms) == 64 {
			break
		}
	}
	return strings.Join(terms, " | ")
}
