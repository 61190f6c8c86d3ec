package wizard

import "github.com/gabrielmiguelok/liveintake/pkg/forms"

// Reveal shows field Show while option Value of group When is checked.
type Reveal struct {
	When  string `yaml:"when"`
	Value string `yaml:"value"`
	Show  string `yaml:"show"`
}

// RevealChange is a visibility change made by ApplyReveals.
type RevealChange struct {
	Field   *forms.Field
	Shown   bool
	Cleared bool
}

// ApplyReveals brings every reveal target in line with its trigger. Hidden
// targets lose their value.
func ApplyReveals(reveals []Reveal, form *forms.Form) []RevealChange {
	var changes []RevealChange
	for _, r := range reveals {
		trigger := form.ByName(r.When)
		target := form.ByName(r.Show)
		if trigger == nil || target == nil {
			continue
		}

		opt := trigger.Option(r.Value)
		on := opt != nil && opt.Selected

		switch {
		case on && target.Hidden:
			target.Hidden = false
			changes = append(changes, RevealChange{Field: target, Shown: true})
		case !on && (!target.Hidden || target.Value != ""):
			target.Hidden = true
			cleared := target.Value != ""
			target.Value = ""
			changes = append(changes, RevealChange{Field: target, Cleared: cleared})
		}
	}
	return changes
}
