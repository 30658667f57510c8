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
		return t.Format(layout)
	},
}).Parse(documentTemplateHTML))

// RenderDocumentHTML renders the export template for a document.
func RenderDocumentHTML(doc Document) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const documentTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #1f2937; }
    h1 { border-bottom: 2px solid #5b21b6; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .summary { font-size: 1.05em; color: #374151; }
    .section { margin: 1.5rem 0; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.WorkspaceName}}{{if .Author}} | {{.Author}}{{end}}{{if not .UpdatedAt.IsZero}} | {{formatDate .UpdatedAt "Jan 2, 2006"}}{{end}}</div>
  {{if .Summary}}<p class="summary">{{.Summary}}</p>{{end}}
  {{range .Sections}}
  <div class="section">
    <h2>{{.Heading}}</h2>
    <p>{{.Body}}</p>
  </div>
  {{end}}
</body>
</html>`
