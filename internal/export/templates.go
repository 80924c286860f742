package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var documentTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(layout)
	},
}).Parse(documentLayout))

type TemplateData struct {
	Title     string
	Type      string
	Status    string
	Author    string
	UpdatedAt time.Time
	Pages     []TemplatePage
}

// TemplatePage content is already sanitized HTML produced by ingestion or the editor.
type TemplatePage struct {
	Number  int
	Title   string
	Content template.HTML
}

func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const documentLayout = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .page { page-break-after: always; }
    .page:last-child { page-break-after: auto; }
    .page-title { font-size: 0.8em; color: #999; text-transform: uppercase; }
    table { border-collapse: collapse; }
    td { border: 1px solid #ccc; padding: 4px 8px; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{if .Type}}{{.Type | lower}}{{end}}{{if .Status}} | {{.Status}}{{end}}{{if .Author}} | {{.Author}}{{end}}{{with formatDate .UpdatedAt "Jan 2, 2006"}} | {{.}}{{end}}</div>
  {{range .Pages}}
  <section class="page" id="page-{{.Number}}">
    <div class="page-title">{{.Title}}</div>
    {{.Content}}
  </section>
  {{end}}
</body>
</html>`
