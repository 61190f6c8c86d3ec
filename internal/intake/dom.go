package intake

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/gabrielmiguelok/liveintake/pkg/forms"
	"github.com/gabrielmiguelok/liveintake/pkg/js"
	"github.com/gabrielmiguelok/liveintake/pkg/logging"
	"github.com/gabrielmiguelok/liveintake/pkg/wizard"
)

// dom translates wizard callbacks into DOM commands. It implements
// wizard.View, wizard.Notifier and wizard.PageView.
type dom struct {
	l *LiveForm
}

func (d dom) exec(cmds ...js.Command) {
	if d.l.quiet {
		return
	}
	if s := d.l.Socket(); s != nil {
		s.Exec(cmds...)
	}
}

func stepID(n int) string      { return "step-" + strconv.Itoa(n) }
func indicatorID(n int) string { return "indicator-" + strconv.Itoa(n) }
func entryID(localID int) string {
	return "page-entry-" + strconv.Itoa(localID)
}

// Refresh shows the current step and updates progress, indicators and
// the navigation buttons.
func (d dom) Refresh(v wizard.ViewState) {
	cmds := make(js.Commands, 0, 4*v.Total+5)
	for n := 1; n <= v.Total; n++ {
		step := js.ID(stepID(n))
		if v.Visible(n) {
			cmds = append(cmds, js.JS.Show(step), js.JS.AddClass(step, "active"))
		} else {
			cmds = append(cmds, js.JS.Hide(step), js.JS.RemoveClass(step, "active"))
		}

		ind := js.ID(indicatorID(n))
		cmds = append(cmds, js.JS.RemoveClass(ind, "active completed"))
		if marking := v.Indicators[n-1]; marking != wizard.IndicatorNone {
			cmds = append(cmds, js.JS.AddClass(ind, string(marking)))
		}
	}

	cmds = append(cmds,
		js.JS.SetProp(js.ID("progress-bar"), "value", progressValue(v.Progress)),
		js.JS.SetProp(js.ID("btn-prev"), "disabled", v.BackDisabled),
		toggle(js.ID("btn-next"), v.ShowNext),
		toggle(js.ID("btn-submit"), v.ShowSubmit),
	)
	if v.ScrollTop {
		cmds = append(cmds, js.JS.ScrollTop())
	}
	d.exec(cmds...)
}

// Notify raises a blocking notice and focuses the offending control.
func (d dom) Notify(n wizard.Notice) {
	switch n.Kind {
	case wizard.NoticeRequiredField, wizard.NoticeRequiredChoice, wizard.NoticeInvalidField:
		step := 0
		if d.l.nav != nil {
			step = d.l.nav.Current()
		}
		d.l.cfg.Metrics.ValidationFailed(strconv.Itoa(step), string(n.Kind))
	}

	cmds := js.Commands{js.JS.Alert(n.Message)}
	if n.FieldID != "" {
		cmds = append(cmds, js.JS.Focus(js.ID(n.FieldID)))
	}
	d.exec(cmds...)
}

// PageAdded appends the entry markup and scrolls it into view.
func (d dom) PageAdded(e wizard.Entry) {
	if d.l.quiet {
		return
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "entry", d.l.entryData(e)); err != nil {
		d.l.log.Error("render page entry", logging.Int("local_id", e.LocalID), logging.Err(err))
		return
	}
	d.exec(
		js.JS.Insert(js.ID("pages-list"), buf.String()),
		js.JS.ScrollIntoView(js.ID(entryID(e.LocalID))),
	)
}

// PageRemoving starts the fade-out transition.
func (d dom) PageRemoving(e wizard.Entry) {
	d.exec(js.JS.AddClass(js.ID(entryID(e.LocalID)), "removing"))
}

// PageRemoved detaches the entry.
func (d dom) PageRemoved(e wizard.Entry) {
	d.exec(js.JS.Remove(js.ID(entryID(e.LocalID))))
}

// PageRenumbered updates the heading and the submitted names. Control
// ids stay as they are.
func (d dom) PageRenumbered(e wizard.Entry) {
	d.exec(
		js.JS.SetText(js.ID("page-label-"+strconv.Itoa(e.LocalID)), e.Label),
		js.JS.SetAttr(js.ID(e.NameID), "name", e.NameField),
		js.JS.SetAttr(js.ID(e.DescriptionID), "name", e.DescriptionField),
	)
}

// syncFields writes the server-side values of fields back to their
// controls.
func (d dom) syncFields(fields []*forms.Field) {
	var cmds js.Commands
	for _, f := range fields {
		switch {
		case f.Type.IsChoice():
			for _, opt := range f.Options {
				cmds = append(cmds, js.JS.SetProp(js.ID(opt.ID), "checked", opt.Selected))
			}
		default:
			cmds = append(cmds, js.JS.SetProp(js.ID(f.ID), "value", f.Value))
		}
		if f.Type == forms.FieldEmail {
			cmds = append(cmds, js.JS.SetValidity(js.ID(f.ID), f.Validity))
		}
		if f.Type == forms.FieldTextarea && f.MaxLength > 0 {
			_, c := wizard.LimitText(f.Value, f.MaxLength)
			cmds = append(cmds, counterCommands(f.ID, c)...)
		}
	}
	d.exec(cmds...)
}

// syncReveals shows or hides the groups of reveal targets.
func (d dom) syncReveals(changes []wizard.RevealChange) {
	var cmds js.Commands
	for _, c := range changes {
		group := js.ID(c.Field.ID + "-group")
		if c.Shown {
			cmds = append(cmds, js.JS.Show(group))
			continue
		}
		cmds = append(cmds, js.JS.Hide(group))
		if c.Cleared {
			cmds = append(cmds, js.JS.SetProp(js.ID(c.Field.ID), "value", ""))
		}
	}
	d.exec(cmds...)
}

// feedback sets the error or success border of a control. FeedbackNone
// leaves the current state alone.
func (d dom) feedback(id string, fb wizard.Feedback) {
	if fb == wizard.FeedbackNone {
		return
	}
	target := js.ID(id)
	d.exec(
		js.JS.RemoveClass(target, "error success"),
		js.JS.AddClass(target, string(fb)),
	)
}

func counterCommands(fieldID string, c wizard.Counter) js.Commands {
	counter := js.ID(fieldID + "-counter")
	cmds := js.Commands{
		js.JS.SetText(counter, c.Text()),
		js.JS.RemoveClass(counter, "warning exceeded"),
	}
	if c.Level != wizard.CounterNormal {
		cmds = append(cmds, js.JS.AddClass(counter, string(c.Level)))
	}
	return cmds
}

func toggle(selector string, show bool) js.Command {
	if show {
		return js.JS.Show(selector)
	}
	return js.JS.Hide(selector)
}

func progressValue(p float64) string {
	return fmt.Sprintf("%.2f", p)
}
