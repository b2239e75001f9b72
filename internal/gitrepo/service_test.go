package gitrepo

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestSectionHistoryLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	history, err := svc.History(5, 10)
	if err != nil {
		t.Fatalf("History() on missing repo error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(history))
	}

	facts := SectionFile{SectionType: "facts", Title: "Statement of Facts", Content: "The client sold shares.", Order: 1}
	first, err := svc.CommitSection(5, facts, "Counsel", "Add facts section")
	if err != nil {
		t.Fatalf("CommitSection() error = %v", err)
	}
	if first.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "draft-5", contentFile)); err != nil {
		t.Fatalf("content file missing: %v", err)
	}

	issue := SectionFile{SectionType: "issue", Title: "Issue Presented", Content: "Is the gain excluded?", Order: 2}
	if _, err := svc.CommitSection(5, issue, "Counsel", "Add issue section"); err != nil {
		t.Fatalf("CommitSection() error = %v", err)
	}

	revised := facts
	revised.Content = "The client sold qualified shares in 2024."
	third, err := svc.CommitSection(5, revised, "Counsel", "Revise facts section")
	if err != nil {
		t.Fatalf("CommitSection() error = %v", err)
	}

	history, err = svc.History(5, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 commits, got %d", len(history))
	}
	if history[0].Hash != third.Hash {
		t.Fatalf("expected newest commit first, got %s want %s", history[0].Hash, third.Hash)
	}
	if !strings.HasPrefix(history[2].Message, "Add facts section") {
		t.Fatalf("unexpected oldest message %q", history[2].Message)
	}

	limited, err := svc.History(5, 1)
	if err != nil {
		t.Fatalf("History(limit=1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(limited))
	}

	head, err := svc.ContentAt(5, third.Hash)
	if err != nil {
		t.Fatalf("ContentAt() error = %v", err)
	}
	if len(head.Sections) != 2 || head.Sections[0].Content != revised.Content || head.Sections[1].Order != 2 {
		t.Fatalf("unexpected head content: %+v", head)
	}

	original, err := svc.ContentAt(5, first.Hash)
	if err != nil {
		t.Fatalf("ContentAt(first) error = %v", err)
	}
	if len(original.Sections) != 1 || original.Sections[0].Content != facts.Content {
		t.Fatalf("unexpected original content: %+v", original)
	}
}

func TestCommitSectionUnchangedIsNoop(t *testing.T) {
	svc := New(t.TempDir())
	section := SectionFile{SectionType: "law", Title: "Applicable Law", Content: "Section 1202.", Order: 3}

	first, err := svc.CommitSection(1, section, "Counsel", "Add law")
	if err != nil {
		t.Fatalf("CommitSection() error = %v", err)
	}
	again, err := svc.CommitSection(1, section, "Counsel", "Add law again")
	if err != nil {
		t.Fatalf("CommitSection() error = %v", err)
	}
	if again.Hash != first.Hash {
		t.Fatalf("expected no new commit, got %s after %s", again.Hash, first.Hash)
	}
	history, err := svc.History(1, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(history))
	}
}

func TestConcurrentCommitsAreSerialized(t *testing.T) {
	svc := New(t.TempDir())
	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func(order int) {
			defer wg.Done()
			_, err := svc.CommitSection(9, SectionFile{SectionType: "custom", Title: "Part", Content: "text", Order: order}, "Counsel", "Add part")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("CommitSection() error = %v", err)
		}
	}
	history, err := svc.History(9, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 commits, got %d", len(history))
	}
}

func TestUpsertSectionKeepsOrder(t *testing.T) {
	content := Content{Sections: []SectionFile{{Order: 3, Title: "c"}, {Order: 1, Title: "a"}}}
	got := upsertSection(content, SectionFile{Order: 2, Title: "b"})
	titles := []string{}
	for _, s := range got.Sections {
		titles = append(titles, s.Title)
	}
	if strings.Join(titles, ",") != "a,b,c" {
		t.Fatalf("unexpected order %v", titles)
	}
	if len(content.Sections) != 2 {
		t.Fatal("input content must not be modified")
	}
}

func TestSanitizeEmail(t *testing.T) {
	if got := sanitizeEmail("Tax Counsel_1"); got != "Tax.Counsel.1" {
		t.Fatalf("sanitizeEmail() = %q", got)
	}
	if got := sanitizeEmail("@@"); got != "user" {
		t.Fatalf("sanitizeEmail() = %q", got)
	}
}
