package export

import "errors"

// Format represents an export format.
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
)

// ParseFormat maps a query value onto a Format. Empty means HTML.
func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case "":
		return FormatHTML, nil
	case FormatHTML, FormatMarkdown, FormatPDF, FormatDOCX:
		return Format(raw), nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Request describes what to export.
type Request struct {
	DraftID int64
	Format  Format
	Title   string
	// Upload stores the artifact in object storage when one is configured.
	Upload bool
}

// Section is one opinion section to render.
type Section struct {
	SectionType string
	Title       string
	Content     string
	Order       int
}

// Result contains the exported file data.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	// URL is a presigned download link, set only for uploaded artifacts.
	URL string
}

var (
	ErrContentUnavailable    = errors.New("opinion has no sections to export")
	ErrUnsupportedFormat     = errors.New("unsupported export format")
	ErrPDFDependencyMissing  = errors.New("pdf export dependency missing")
	ErrDOCXDependencyMissing = errors.New("docx export dependency missing")
)
