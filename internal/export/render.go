package export

import (
	"html"
	"strings"
)

// TextToHTML renders generated section text as HTML. Blank lines separate
// paragraphs, lines starting with "- " or "* " become list items and lines
// starting with "#" become subheadings.
func TextToHTML(text string) string {
	var b strings.Builder
	var paragraph []string
	inList := false

	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(paragraph, "<br>"))
		b.WriteString("</p>")
		paragraph = nil
	}
	closeList := func() {
		if inList {
			b.WriteString("</ul>")
			inList = false
		}
	}

	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			flushParagraph()
			closeList()
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			flushParagraph()
			if !inList {
				b.WriteString("<ul>")
				inList = true
			}
			b.WriteString("<li>")
			b.WriteString(html.EscapeString(strings.TrimSpace(line[2:])))
			b.WriteString("</li>")
		case strings.HasPrefix(line, "#"):
			flushParagraph()
			closeList()
			b.WriteString("<h3>")
			b.WriteString(html.EscapeString(strings.TrimSpace(strings.TrimLeft(line, "#"))))
			b.WriteString("</h3>")
		default:
			closeList()
			paragraph = append(paragraph, html.EscapeString(line))
		}
	}
	flushParagraph()
	closeList()
	return b.String()
}

// RenderMarkdown renders the opinion as a Markdown document.
func RenderMarkdown(title string, sections []Section) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(title)
	b.WriteString("\n")
	for _, sec := range sections {
		b.WriteString("\n## ")
		b.WriteString(sec.Title)
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(sec.Content))
		b.WriteString("\n")
	}
	return b.String()
}
