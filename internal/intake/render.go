package intake

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"io"

	"github.com/gabrielmiguelok/liveintake/pkg/core"
	"github.com/gabrielmiguelok/liveintake/pkg/forms"
	"github.com/gabrielmiguelok/liveintake/pkg/router"
	"github.com/gabrielmiguelok/liveintake/pkg/wizard"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("intake").Funcs(template.FuncMap{
	"counterText": func(f *forms.Field) string {
		_, c := wizard.LimitText(f.Value, f.MaxLength)
		return c.Text()
	},
	"counterLevel": func(f *forms.Field) string {
		_, c := wizard.LimitText(f.Value, f.MaxLength)
		if c.Level == wizard.CounterNormal {
			return ""
		}
		return string(c.Level)
	},
}).ParseFS(templateFS, "templates/*.html"))

type formData struct {
	Name         string
	Title        string
	Progress     string
	View         wizard.ViewState
	Steps        []stepData
	Submitted    bool
	SubmissionID string
}

type stepData struct {
	Number      int
	Title       string
	Description string
	Visible     bool
	Indicator   wizard.Indicator
	Fields      []*forms.Field
	Repeatable  bool
	EntryLabel  string
	Entries     []entryData
}

type entryData struct {
	wizard.Entry
	Name        *forms.Field
	Description *forms.Field
}

// Render renders the whole form in its current state.
func (l *LiveForm) Render(ctx context.Context) core.Renderer {
	return core.RendererFunc(func(ctx context.Context, w io.Writer) error {
		return templates.ExecuteTemplate(w, "form", l.formData())
	})
}

func (l *LiveForm) formData() formData {
	def := l.cfg.Definition
	view := wizard.ViewFor(l.nav.State())

	data := formData{
		Name:         l.form.Name,
		Title:        def.Title,
		Progress:     progressValue(view.Progress),
		View:         view,
		Submitted:    l.submitted,
		SubmissionID: l.submissionID,
	}

	for i, sd := range def.Steps {
		n := i + 1
		step := stepData{
			Number:      n,
			Title:       sd.Title,
			Description: sd.Description,
			Visible:     view.Visible(n),
			Indicator:   view.Indicators[i],
		}
		for _, fd := range sd.Fields {
			if f := l.form.ByName(fd.Name); f != nil {
				step.Fields = append(step.Fields, f)
			}
		}
		if sd.Repeatable != nil && l.pages != nil {
			step.Repeatable = true
			step.EntryLabel = sd.Repeatable.Label
			for _, e := range l.pages.Entries() {
				step.Entries = append(step.Entries, l.entryData(e))
			}
		}
		data.Steps = append(data.Steps, step)
	}
	return data
}

func (l *LiveForm) entryData(e wizard.Entry) entryData {
	return entryData{
		Entry:       e,
		Name:        l.form.ByID(e.NameID),
		Description: l.form.ByID(e.DescriptionID),
	}
}

type layoutData struct {
	Title      string
	Nonce      string
	SocketPath string
	Script     string
	Body       template.HTML
}

// Layout wraps the form markup into the page shell. script is the URL of
// the client script.
func Layout(title, script string) router.Layout {
	return func(ctx context.Context, w io.Writer, body core.Renderer) error {
		var buf bytes.Buffer
		if err := body.Render(ctx, &buf); err != nil {
			return err
		}

		data := layoutData{
			Title:  title,
			Nonce:  router.GetCSPNonce(ctx),
			Script: script,
			// Markup rendered by the form template is already escaped.
			Body: template.HTML(buf.String()),
		}
		if route := router.RouteFromContext(ctx); route != nil {
			data.SocketPath = route.SocketPath
		}
		return templates.ExecuteTemplate(w, "layout", data)
	}
}
