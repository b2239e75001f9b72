package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"counsel/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertMessage appends a message to the draft log. ID and CreatedAt are
// assigned when empty and the stored row is returned.
func (s *PostgresStore) InsertMessage(ctx context.Context, item Message) (Message, error) {
	if item.ID == "" {
		item.ID = util.NewID("msg")
	}
	metadata, err := encodeMetadata(item.Metadata)
	if err != nil {
		return Message{}, err
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, draft_id, role, content, generation_id, section_type, metadata)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7::jsonb)
		RETURNING created_at
	`, item.ID, item.DraftID, item.Role, item.Content, item.GenerationID, item.SectionType, metadata).Scan(&item.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return item, nil
}

// ListMessages returns the messages matching filter in createdAt order.
func (s *PostgresStore) ListMessages(ctx context.Context, filter MessageFilter) ([]Message, error) {
	clauses := []string{"draft_id = $1"}
	args := []any{filter.DraftID}
	argN := 2

	if filter.TopLevelOnly {
		clauses = append(clauses, "generation_id IS NULL")
	} else if filter.GenerationID != "" {
		clauses = append(clauses, fmt.Sprintf("generation_id = $%d", argN))
		args = append(args, filter.GenerationID)
		argN++
	}
	if filter.SectionType != "" {
		clauses = append(clauses, fmt.Sprintf("section_type = $%d", argN))
		args = append(args, filter.SectionType)
		argN++
	}

	query := fmt.Sprintf(`
		SELECT id, draft_id, role, content, COALESCE(generation_id, ''), COALESCE(section_type, ''), COALESCE(metadata::text, '{}'), created_at
		FROM messages
		WHERE %s
		ORDER BY created_at ASC, seq ASC
	`, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		var metadata string
		if err := rows.Scan(&item.ID, &item.DraftID, &item.Role, &item.Content, &item.GenerationID, &item.SectionType, &metadata, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		item.Metadata, err = decodeMetadata(metadata)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

// InsertSection stores a finished section. An existing section with the
// same draft and order is replaced.
func (s *PostgresStore) InsertSection(ctx context.Context, item Section) (Section, error) {
	if item.ID == "" {
		item.ID = util.NewID("sec")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sections (id, draft_id, section_type, title, content, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (draft_id, sort_order) DO UPDATE
			SET section_type=EXCLUDED.section_type, title=EXCLUDED.title, content=EXCLUDED.content, created_at=NOW()
		RETURNING id, created_at
	`, item.ID, item.DraftID, item.SectionType, item.Title, item.Content, item.Order).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return Section{}, fmt.Errorf("insert section: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListSections(ctx context.Context, draftID int64) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, draft_id, section_type, title, content, sort_order, created_at
		FROM sections
		WHERE draft_id=$1
		ORDER BY sort_order ASC
	`, draftID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	items := make([]Section, 0)
	for rows.Next() {
		var item Section
		if err := rows.Scan(&item.ID, &item.DraftID, &item.SectionType, &item.Title, &item.Content, &item.Order, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertDocumentChunk(ctx context.Context, item DocumentChunk) (DocumentChunk, error) {
	if item.ID == "" {
		item.ID = util.NewID("chk")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO document_chunks (id, draft_id, file_name, category, chunk_index, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, item.ID, item.DraftID, item.FileName, item.Category, item.ChunkIndex, item.Content).Scan(&item.CreatedAt)
	if err != nil {
		return DocumentChunk{}, fmt.Errorf("insert document chunk: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListDocumentChunks(ctx context.Context, draftID int64) ([]DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, draft_id, file_name, category, chunk_index, content, created_at
		FROM document_chunks
		WHERE draft_id=$1
		ORDER BY file_name ASC, chunk_index ASC
	`, draftID)
	if err != nil {
		return nil, fmt.Errorf("list document chunks: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentChunk, 0)
	for rows.Next() {
		var item DocumentChunk
		if err := rows.Scan(&item.ID, &item.DraftID, &item.FileName, &item.Category, &item.ChunkIndex, &item.Content, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document chunk: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document chunks: %w", err)
	}
	return items, nil
}

func encodeMetadata(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal message metadata: %w", err)
	}
	return string(payload), nil
}

func decodeMetadata(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" || raw == "{}" || raw == "null" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, fmt.Errorf("unmarshal message metadata: %w", err)
	}
	return metadata, nil
}
