package app

import (
	"time"

	"counsel/api/internal/store"
)

type messagePayload struct {
	ID           string         `json:"id"`
	DraftID      int64          `json:"draftId"`
	Role         string         `json:"role"`
	Content      string         `json:"content"`
	GenerationID string         `json:"generationId,omitempty"`
	SectionType  string         `json:"sectionType,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type sectionView struct {
	ID          string    `json:"id"`
	DraftID     int64     `json:"draftId"`
	SectionType string    `json:"sectionType"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"createdAt"`
}

func messagesPayload(items []store.Message) []messagePayload {
	out := make([]messagePayload, 0, len(items))
	for _, m := range items {
		out = append(out, messagePayload{
			ID:           m.ID,
			DraftID:      m.DraftID,
			Role:         m.Role,
			Content:      m.Content,
			GenerationID: m.GenerationID,
			SectionType:  m.SectionType,
			Metadata:     m.Metadata,
			CreatedAt:    m.CreatedAt,
		})
	}
	return out
}

func sectionPayload(s store.Section) sectionView {
	return sectionView{
		ID:          s.ID,
		DraftID:     s.DraftID,
		SectionType: s.SectionType,
		Title:       s.Title,
		Content:     s.Content,
		Order:       s.Order,
		CreatedAt:   s.CreatedAt,
	}
}

func sectionsPayload(items []store.Section) []sectionView {
	out := make([]sectionView, 0, len(items))
	for _, s := range items {
		out = append(out, sectionPayload(s))
	}
	return out
}
