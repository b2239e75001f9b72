package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var opinionTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"upper": strings.ToUpper,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/opinion.html")
	if err != nil {
		opinionTemplate = template.Must(template.New("opinion").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	opinionTemplate = template.Must(template.New("opinion").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for opinion template rendering
type TemplateData struct {
	Title       string
	GeneratedAt time.Time
	Sections    []TemplateSection
}

// TemplateSection holds one rendered section
type TemplateSection struct {
	Title       string
	Order       int
	ContentHTML template.HTML
}

// RenderOpinionHTML renders the opinion template with provided data
func RenderOpinionHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := opinionTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{range .Sections}}<h2>{{.Title}}</h2>{{.ContentHTML}}{{end}}
</body>
</html>`
