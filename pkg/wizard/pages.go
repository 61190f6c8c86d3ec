package wizard

import (
	"fmt"
	"time"

	"github.com/gabrielmiguelok/liveintake/pkg/forms"
)

// RemoveDelay is how long a removed entry stays on screen while it fades
// out before it is detached.
const RemoveDelay = 300 * time.Millisecond

// Entry is one repeatable sub-record. LocalID and the control ids never
// change; Position and the submitted names follow the display order.
type Entry struct {
	LocalID  int
	Position int

	NameID        string
	DescriptionID string

	NameField        string
	DescriptionField string
	Label            string

	// Removing is set once the entry started fading out.
	Removing bool
}

// PageView renders page list changes.
type PageView interface {
	PageAdded(e Entry)
	PageRemoving(e Entry)
	PageRemoved(e Entry)
	PageRenumbered(e Entry)
}

// Scheduler runs f once after d. Implementations must run f on the goroutine
// that owns the PageList.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

// PageList manages the ordered repeatable entries of a form and mirrors
// them as fields of the live form.
type PageList struct {
	def   RepeatableDef
	step  int
	form  *forms.Form
	view  PageView
	sched Scheduler
	delay time.Duration

	nextID  int
	entries []*Entry
}

// NewPageList creates an empty list. Call Init to create the first entry.
func NewPageList(def RepeatableDef, step int, form *forms.Form, view PageView, sched Scheduler) *PageList {
	return &PageList{
		def:   def,
		step:  step,
		form:  form,
		view:  view,
		sched: sched,
		delay: RemoveDelay,
	}
}

// SetRemoveDelay overrides RemoveDelay.
func (p *PageList) SetRemoveDelay(d time.Duration) {
	p.delay = d
}

// Init creates the initial entry if the list is empty.
func (p *PageList) Init() {
	if len(p.entries) == 0 {
		p.Add()
	}
}

// Add appends a new entry and its fields.
func (p *PageList) Add() Entry {
	p.nextID++
	e := &Entry{
		LocalID:       p.nextID,
		NameID:        fmt.Sprintf("%sName%d", p.def.IDPrefix, p.nextID),
		DescriptionID: fmt.Sprintf("%sDescription%d", p.def.IDPrefix, p.nextID),
	}
	p.position(e, len(p.entries)+1)
	p.entries = append(p.entries, e)

	p.form.Add(
		forms.NewField(e.NameField, forms.FieldText, p.def.Label+" Name",
			forms.WithID(e.NameID),
			forms.WithStep(p.step),
			forms.WithRequired(),
			forms.WithPlaceholder("e.g., Home, About, Contact"),
		),
		forms.NewField(e.DescriptionField, forms.FieldTextarea, p.def.Label+" Description",
			forms.WithID(e.DescriptionID),
			forms.WithStep(p.step),
			forms.WithRows(3),
			forms.WithMaxLength(DefaultTextLimit),
			forms.WithPlaceholder("Describe the purpose and content of this page..."),
		),
	)

	if p.view != nil {
		p.view.PageAdded(*e)
	}
	return *e
}

// Remove starts removing the entry with localID. The entry fades out and is
// detached after the remove delay. Unknown entries and entries already
// being removed are ignored.
func (p *PageList) Remove(localID int) bool {
	e := p.find(localID)
	if e == nil || e.Removing {
		return false
	}

	e.Removing = true
	if p.view != nil {
		p.view.PageRemoving(*e)
	}

	if p.sched == nil || p.delay <= 0 {
		p.Detach(localID)
		return true
	}
	p.sched.AfterFunc(p.delay, func() { p.Detach(localID) })
	return true
}

// Detach drops the entry with localID and renumbers the rest. Detaching an
// entry that is already gone is a no-op.
func (p *PageList) Detach(localID int) bool {
	idx := -1
	for i, e := range p.entries {
		if e.LocalID == localID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	e := p.entries[idx]
	p.entries = append(p.entries[:idx], p.entries[idx+1:]...)
	p.form.Remove(e.NameID)
	p.form.Remove(e.DescriptionID)

	if p.view != nil {
		p.view.PageRemoved(*e)
	}
	p.Renumber()
	return true
}

// Renumber assigns contiguous positions in display order and renames the
// submitted fields to match. Control ids are left alone.
func (p *PageList) Renumber() {
	for i, e := range p.entries {
		p.position(e, i+1)
		p.form.Rename(e.NameID, e.NameField)
		p.form.Rename(e.DescriptionID, e.DescriptionField)
		if p.view != nil {
			p.view.PageRenumbered(*e)
		}
	}
}

// Entries returns a copy of the entries in display order.
func (p *PageList) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	for i, e := range p.entries {
		out[i] = *e
	}
	return out
}

// Len returns the number of entries, fading ones included.
func (p *PageList) Len() int {
	return len(p.entries)
}

// Entry returns the entry with localID.
func (p *PageList) Entry(localID int) (Entry, bool) {
	e := p.find(localID)
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

func (p *PageList) find(localID int) *Entry {
	for _, e := range p.entries {
		if e.LocalID == localID {
			return e
		}
	}
	return nil
}

func (p *PageList) position(e *Entry, pos int) {
	e.Position = pos
	e.NameField = fmt.Sprintf("%s[%d][name]", p.def.Name, pos)
	e.DescriptionField = fmt.Sprintf("%s[%d][description]", p.def.Name, pos)
	e.Label = fmt.Sprintf("%s %d", p.def.Label, pos)
}
