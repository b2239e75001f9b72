package export

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"time"
)

// SectionSource returns the stored sections of a draft, ordered by Order.
type SectionSource interface {
	Sections(ctx context.Context, draftID int64) ([]Section, error)
}

// SectionSourceFunc adapts a function to SectionSource.
type SectionSourceFunc func(ctx context.Context, draftID int64) ([]Section, error)

func (f SectionSourceFunc) Sections(ctx context.Context, draftID int64) ([]Section, error) {
	return f(ctx, draftID)
}

type objectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

const presignExpiry = 24 * time.Hour

// Service renders a draft's opinion in the requested format.
type Service struct {
	sections SectionSource
	objects  objectStore
	now      func() time.Time
}

// NewService creates an export service. objects may be nil, in which case
// uploads are skipped.
func NewService(sections SectionSource, objects objectStore) *Service {
	return &Service{sections: sections, objects: objects, now: time.Now}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	sections, err := s.sections.Sections(ctx, req.DraftID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	if len(sections) == 0 {
		return nil, ErrContentUnavailable
	}

	title := req.Title
	if title == "" {
		title = fmt.Sprintf("Tax Opinion %d", req.DraftID)
	}

	var result *Result
	switch req.Format {
	case FormatMarkdown:
		result = &Result{
			Data:     []byte(RenderMarkdown(title, sections)),
			Filename: sanitizeFilename(title) + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}
	case FormatHTML, FormatPDF, FormatDOCX:
		html, err := RenderOpinionHTML(s.templateData(title, sections))
		if err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
		switch req.Format {
		case FormatPDF:
			result, err = exportPDF(ctx, html, title)
		case FormatDOCX:
			result, err = exportDOCX(ctx, html, title)
		default:
			result = &Result{
				Data:     []byte(html),
				Filename: sanitizeFilename(title) + ".html",
				MimeType: "text/html; charset=utf-8",
			}
		}
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrUnsupportedFormat
	}

	if req.Upload && s.objects != nil {
		key := fmt.Sprintf("drafts/%d/%d-%s", req.DraftID, s.now().Unix(), result.Filename)
		if err := s.objects.Put(ctx, key, result.Data, result.MimeType); err != nil {
			return nil, fmt.Errorf("upload export: %w", err)
		}
		url, err := s.objects.PresignedURL(ctx, key, presignExpiry)
		if err != nil {
			return nil, fmt.Errorf("presign export: %w", err)
		}
		result.URL = url
		slog.Info("export uploaded", "draft_id", req.DraftID, "key", key, "format", string(req.Format))
	}
	return result, nil
}

func (s *Service) templateData(title string, sections []Section) TemplateData {
	data := TemplateData{
		Title:       title,
		GeneratedAt: s.now(),
		Sections:    make([]TemplateSection, 0, len(sections)),
	}
	for _, sec := range sections {
		data.Sections = append(data.Sections, TemplateSection{
			Title:       sec.Title,
			Order:       sec.Order,
			ContentHTML: template.HTML(TextToHTML(sec.Content)),
		})
	}
	return data
}
