package dashboard

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcMap = template.FuncMap{
	"formatTime": func(t interface{}) string {
		switch v := t.(type) {
		case time.Time:
			if v.IsZero() {
				return "-"
			}
			return v.Local().Format("2006-01-02 15:04:05")
		case *time.Time:
			if v == nil {
				return "-"
			}
			return v.Local().Format("2006-01-02 15:04:05")
		}
		return "-"
	},
	"statusClass": func(s tasks.Status) string {
		return "status-" + strings.ReplaceAll(strings.ToLower(string(s)), " ", "-")
	},
	"join": strings.Join,
}

// Render renders a page inside the shared layout. The page is rendered to a
// buffer first so template errors never produce half a page.
func Render(w io.Writer, templateName string, data interface{}) error {
	tmpl, err := template.New("layout.html").Funcs(funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+templateName)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return err
	}
	_, err = buf.WriteTo(w)
	return err
}
