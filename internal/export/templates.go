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

var resumeTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/resume.html")
	if err != nil {
		// Fallback to built-in template if file not found
		resumeTemplate = template.Must(template.New("resume").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	resumeTemplate = template.Must(template.New("resume").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for resume template rendering
type TemplateData struct {
	Title      string
	Name       string
	Headline   string
	Email      string
	Phone      string
	Location   string
	Website    string
	Summary    string
	Experience []experienceEntry
	Education  []educationEntry
	Skills     []string
	Projects   []projectEntry
	Extras     []ExtraSection
	UpdatedAt  time.Time
	VersionSeq int
}

// ExtraSection is an unknown content section rendered generically.
type ExtraSection struct {
	Name string
	Body string
}

// RenderResumeHTML renders the resume template with provided data
func RenderResumeHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := resumeTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 760px; margin: 2rem auto; }
    h1 { margin-bottom: 0; }
    h2 { border-bottom: 1px solid #333; padding-bottom: 0.2rem; }
    .contact { color: #555; font-size: 0.9em; }
    .entry { margin-bottom: 0.8rem; }
    .dates { color: #777; float: right; }
  </style>
</head>
<body>
  <h1>{{if .Name}}{{.Name}}{{else}}{{.Title}}{{end}}</h1>
  {{if .Headline}}<p>{{.Headline}}</p>{{end}}
  <p class="contact">{{.Email}}{{if .Phone}} | {{.Phone}}{{end}}{{if .Location}} | {{.Location}}{{end}}{{if .Website}} | {{.Website}}{{end}}</p>
  {{if .Summary}}<h2>Summary</h2><p>{{.Summary}}</p>{{end}}
  {{if .Experience}}<h2>Experience</h2>
  {{range .Experience}}<div class="entry"><span class="dates">{{.Start}}{{if .End}} – {{.End}}{{end}}</span><strong>{{.Role}}</strong>, {{.Company}}
  {{if .Highlights}}<ul>{{range .Highlights}}<li>{{.}}</li>{{end}}</ul>{{end}}</div>{{end}}{{end}}
  {{if .Education}}<h2>Education</h2>
  {{range .Education}}<div class="entry"><span class="dates">{{.Start}}{{if .End}} – {{.End}}{{end}}</span><strong>{{.Degree}}</strong>, {{.School}}</div>{{end}}{{end}}
  {{if .Skills}}<h2>Skills</h2><p>{{range $i, $s := .Skills}}{{if $i}}, {{end}}{{$s}}{{end}}</p>{{end}}
  {{if .Projects}}<h2>Projects</h2>
  {{range .Projects}}<div class="entry"><strong>{{.Name}}</strong>{{if .URL}} ({{.URL}}){{end}}{{if .Description}} — {{.Description}}{{end}}</div>{{end}}{{end}}
  {{range .Extras}}<h2>{{.Name}}</h2><p>{{.Body}}</p>{{end}}
</body>
</html>`
