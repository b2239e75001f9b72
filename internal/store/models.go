package store

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a draft's append-only conversation log. Section
// drafting threads carry a GenerationID and SectionType; the top-level
// conversation leaves both empty.
type Message struct {
	ID           string
	DraftID      int64
	Role         string
	Content      string
	GenerationID string
	SectionType  string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// MessageFilter selects messages of one draft. TopLevelOnly excludes every
// message that belongs to a section drafting thread.
type MessageFilter struct {
	DraftID      int64
	GenerationID string
	SectionType  string
	TopLevelOnly bool
	Limit        int
}

// Section is a finished opinion section. Order is unique per draft.
type Section struct {
	ID          string
	DraftID     int64
	SectionType string
	Title       string
	Content     string
	Order       int
	CreatedAt   time.Time
}

// DocumentChunk is the indexed text of a document uploaded to a draft.
type DocumentChunk struct {
	ID         string
	DraftID    int64
	FileName   string
	Category   string
	ChunkIndex int
	Content    string
	CreatedAt  time.Time
}
