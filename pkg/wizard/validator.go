package wizard

import (
	"github.com/gabrielmiguelok/liveintake/pkg/forms"
)

// NoticeKind classifies user-facing notices.
type NoticeKind string

const (
	NoticeRequiredField  NoticeKind = "required_field"
	NoticeRequiredChoice NoticeKind = "required_choice"
	NoticeInvalidField   NoticeKind = "invalid_field"
	NoticeSubmitFailed   NoticeKind = "submit_failed"
)

// RequiredFieldMessage is shown when a required field of a step is blank.
const RequiredFieldMessage = "Please fill in all required fields before proceeding."

// Notice is a blocking message for the user. FieldID names the control to
// focus, if any.
type Notice struct {
	Kind    NoticeKind
	Message string
	FieldID string
}

// Notifier surfaces notices to the user.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) { f(n) }

// StepValidator checks the required fields of a step of a live form.
// Validation is fail-fast: only the first problem is reported.
type StepValidator struct {
	def      *Definition
	form     *forms.Form
	notifier Notifier
}

// NewStepValidator creates a validator for form laid out by def.
func NewStepValidator(def *Definition, form *forms.Form, notifier Notifier) *StepValidator {
	if notifier == nil {
		notifier = NotifierFunc(func(Notice) {})
	}
	return &StepValidator{def: def, form: form, notifier: notifier}
}

// Validate reports whether step may be left going forward.
func (v *StepValidator) Validate(step int) bool {
	if n, ok := v.required(step); !ok {
		v.notifier.Notify(n)
		return false
	}
	return true
}

// Complete checks every step in order, including the value rules of the
// fields (email shape, length, patterns). It reports the first step that
// fails and the notice for it without raising the notice, so the caller
// can show that step first. step is 0 when the form is complete.
func (v *StepValidator) Complete() (step int, n Notice) {
	for s := 1; s <= v.def.TotalSteps(); s++ {
		if n, ok := v.required(s); !ok {
			return s, n
		}
		if n, ok := v.values(s); !ok {
			return s, n
		}
	}
	return 0, Notice{}
}

func (v *StepValidator) required(step int) (Notice, bool) {
	required := forms.RequiredValidator{}
	for _, f := range v.form.InStep(step) {
		if !f.Required || f.Hidden || f.Type.IsChoice() {
			continue
		}
		if required.Validate(f.Value) != nil {
			return Notice{
				Kind:    NoticeRequiredField,
				Message: RequiredFieldMessage,
				FieldID: f.ID,
			}, false
		}
	}

	sd, ok := v.def.Step(step)
	if !ok || sd.RequireChoice == nil {
		return Notice{}, true
	}
	return v.choice(sd.RequireChoice)
}

func (v *StepValidator) values(step int) (Notice, bool) {
	for _, f := range v.form.InStep(step) {
		if f.Hidden || f.Type.IsChoice() {
			continue
		}
		if problems := f.Problems(); len(problems) > 0 {
			return Notice{Kind: NoticeInvalidField, Message: problems[0], FieldID: f.ID}, false
		}
	}
	return Notice{}, true
}

// RequireChoice reports whether the named group has a selection, raising
// message otherwise.
func (v *StepValidator) RequireChoice(field, message string) bool {
	if n, ok := v.choice(&ChoiceRule{Field: field, Message: message}); !ok {
		v.notifier.Notify(n)
		return false
	}
	return true
}

func (v *StepValidator) choice(rule *ChoiceRule) (Notice, bool) {
	f := v.form.ByName(rule.Field)
	if f != nil && len(f.Selected()) > 0 {
		return Notice{}, true
	}

	n := Notice{Kind: NoticeRequiredChoice, Message: rule.Message}
	if f != nil && len(f.Options) > 0 {
		n.FieldID = f.Options[0].ID
	}
	return n, false
}
