package forms

// FieldType identifies the type of form field.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldTel      FieldType = "tel"
	FieldURL      FieldType = "url"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
	FieldRadio    FieldType = "radio"
	FieldHidden   FieldType = "hidden"
)

// Known reports whether t is one of the supported field types.
func (t FieldType) Known() bool {
	switch t {
	case FieldText, FieldEmail, FieldTel, FieldURL, FieldNumber, FieldDate,
		FieldTextarea, FieldSelect, FieldCheckbox, FieldRadio, FieldHidden:
		return true
	}
	return false
}

// IsChoice reports whether the field renders as a group of checkbox or
// radio inputs sharing one name.
func (t FieldType) IsChoice() bool {
	return t == FieldCheckbox || t == FieldRadio
}

// Field is one named control of a live form. Choice fields (checkbox and
// radio groups) keep their state on Options; every other type keeps it in
// Value.
type Field struct {
	// ID addresses the control in the rendered page. It never changes
	// once the field is added to a form.
	ID string

	// Name is the submitted field name. Repeatable entries rename their
	// fields when positions shift.
	Name string

	Type        FieldType
	Label       string
	Placeholder string
	Help        string

	// Step is the 1-based form step the field belongs to.
	Step int

	Required bool

	// Multiple marks a field whose value is always captured as a list.
	Multiple bool

	// Hidden fields are present but not shown (conditional reveals).
	Hidden bool

	MaxLength int
	Rows      int

	Options []Option

	// Value is the current value of non-choice fields.
	Value string

	// Validity is the custom validity message set on the control, empty
	// when the control is valid.
	Validity string

	Validators []Validator

	Attrs map[string]string
}

// Option represents one input of a choice group or one select option.
type Option struct {
	ID       string
	Value    string
	Label    string
	Selected bool
}

// FieldOption is a function that configures a field.
type FieldOption func(*Field)

// NewField creates a new field. The ID defaults to the name.
func NewField(name string, fieldType FieldType, label string, opts ...FieldOption) *Field {
	field := &Field{
		ID:    name,
		Name:  name,
		Type:  fieldType,
		Label: label,
		Attrs: make(map[string]string),
	}

	for _, opt := range opts {
		opt(field)
	}

	if fieldType == FieldEmail {
		field.Validators = append(field.Validators, EmailValidator{})
	}
	if field.MaxLength > 0 {
		field.Validators = append(field.Validators, MaxLengthValidator{Max: field.MaxLength})
	}

	return field
}

// WithID overrides the control id.
func WithID(id string) FieldOption {
	return func(f *Field) {
		f.ID = id
	}
}

// WithRequired marks the field as required.
func WithRequired() FieldOption {
	return func(f *Field) {
		f.Required = true
	}
}

// WithPlaceholder sets the placeholder text.
func WithPlaceholder(placeholder string) FieldOption {
	return func(f *Field) {
		f.Placeholder = placeholder
	}
}

// WithHelp sets the help text.
func WithHelp(help string) FieldOption {
	return func(f *Field) {
		f.Help = help
	}
}

// WithStep assigns the field to a form step.
func WithStep(step int) FieldOption {
	return func(f *Field) {
		f.Step = step
	}
}

// WithMultiple marks the field as multi-valued.
func WithMultiple() FieldOption {
	return func(f *Field) {
		f.Multiple = true
	}
}

// WithHidden hides the field until it is revealed.
func WithHidden() FieldOption {
	return func(f *Field) {
		f.Hidden = true
	}
}

// WithMaxLength limits the value length.
func WithMaxLength(n int) FieldOption {
	return func(f *Field) {
		f.MaxLength = n
	}
}

// WithRows sets the textarea height.
func WithRows(n int) FieldOption {
	return func(f *Field) {
		f.Rows = n
	}
}

// WithOptions sets the choice or select options.
func WithOptions(options ...Option) FieldOption {
	return func(f *Field) {
		f.Options = options
	}
}

// WithValidator adds a validator.
func WithValidator(v Validator) FieldOption {
	return func(f *Field) {
		f.Validators = append(f.Validators, v)
	}
}

// WithAttr sets an HTML attribute.
func WithAttr(key, value string) FieldOption {
	return func(f *Field) {
		f.Attrs[key] = value
	}
}

// Option returns the option with the given value, or nil.
func (f *Field) Option(value string) *Option {
	for i := range f.Options {
		if f.Options[i].Value == value {
			return &f.Options[i]
		}
	}
	return nil
}

// OptionByID returns the option rendered with the given input id, or nil.
func (f *Field) OptionByID(id string) *Option {
	for i := range f.Options {
		if f.Options[i].ID == id {
			return &f.Options[i]
		}
	}
	return nil
}

// Selected returns the values of the selected options in option order.
func (f *Field) Selected() []string {
	var values []string
	for _, opt := range f.Options {
		if opt.Selected {
			values = append(values, opt.Value)
		}
	}
	return values
}

// SetChecked checks or unchecks the option with the given value. Checking a
// radio option unchecks its siblings. It reports whether the option exists.
func (f *Field) SetChecked(value string, checked bool) bool {
	opt := f.Option(value)
	if opt == nil {
		return false
	}
	if checked && f.Type == FieldRadio {
		for i := range f.Options {
			f.Options[i].Selected = false
		}
	}
	opt.Selected = checked
	return true
}

// Clear empties the value and deselects every option.
func (f *Field) Clear() {
	f.Value = ""
	f.Validity = ""
	for i := range f.Options {
		f.Options[i].Selected = false
	}
}

// Problems runs the field validators against the current value and returns
// the messages of the failing ones.
func (f *Field) Problems() []string {
	var problems []string
	for _, v := range f.Validators {
		if err := v.Validate(f.Value); err != nil {
			problems = append(problems, v.Message())
		}
	}
	return problems
}
