package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openIntegrationStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("COUNSEL_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("COUNSEL_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

func TestMessageLogFiltersByThread(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()

	inputs := []Message{
		{DraftID: 42, Role: RoleUser, Content: "We sold a rental property in 2023."},
		{DraftID: 42, Role: RoleAssistant, Content: "When was it acquired?", Metadata: map[string]any{"stage": "interview"}},
		{DraftID: 42, Role: RoleAssistant, Content: "Who is the taxpayer?", GenerationID: "gen-1", SectionType: "facts"},
		{DraftID: 42, Role: RoleUser, Content: "An individual resident.", GenerationID: "gen-1", SectionType: "facts"},
		{DraftID: 7, Role: RoleUser, Content: "Another draft."},
	}
	for _, input := range inputs {
		if _, err := s.InsertMessage(ctx, input); err != nil {
			t.Fatalf("InsertMessage() error = %v", err)
		}
	}

	topLevel, err := s.ListMessages(ctx, MessageFilter{DraftID: 42, TopLevelOnly: true})
	if err != nil {
		t.Fatalf("ListMessages(top level) error = %v", err)
	}
	if len(topLevel) != 2 {
		t.Fatalf("expected 2 top-level messages, got %d", len(topLevel))
	}
	if topLevel[1].Metadata["stage"] != "interview" {
		t.Fatalf("expected metadata to round-trip, got %#v", topLevel[1].Metadata)
	}

	thread, err := s.ListMessages(ctx, MessageFilter{DraftID: 42, GenerationID: "gen-1", SectionType: "facts"})
	if err != nil {
		t.Fatalf("ListMessages(thread) error = %v", err)
	}
	if len(thread) != 2 || thread[0].Role != RoleAssistant || thread[1].Role != RoleUser {
		t.Fatalf("unexpected thread ordering: %#v", thread)
	}
}

func TestSectionsListedInOrder(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()

	for _, section := range []Section{
		{DraftID: 42, SectionType: "issue", Title: "Issue", Content: "Whether...", Order: 2},
		{DraftID: 42, SectionType: "facts", Title: "Facts", Content: "The taxpayer...", Order: 1},
	} {
		if _, err := s.InsertSection(ctx, section); err != nil {
			t.Fatalf("InsertSection() error = %v", err)
		}
	}
	if _, err := s.InsertSection(ctx, Section{DraftID: 42, SectionType: "facts", Title: "Facts (revised)", Content: "Revised", Order: 1}); err != nil {
		t.Fatalf("InsertSection(replace) error = %v", err)
	}

	sections, err := s.ListSections(ctx, 42)
	if err != nil {
		t.Fatalf("ListSections() error = %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0].Order != 1 || sections[0].Title != "Facts (revised)" || sections[1].SectionType != "issue" {
		t.Fatalf("unexpected sections: %#v", sections)
	}
}
