package wizard

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"

	"github.com/gabrielmiguelok/liveintake/pkg/forms"
)

// DefaultStorageKey is the durable record key used when a definition does
// not name one.
const DefaultStorageKey = "projectFormData"

// DefaultTextLimit is the character limit applied to textareas without an
// explicit max_length.
const DefaultTextLimit = 1000

// ErrInvalidDefinition wraps every definition loading problem.
var ErrInvalidDefinition = errors.New("invalid form definition")

//go:embed definitions/project.yaml
var projectDefinition []byte

// Definition is the static structure of a multi-step form.
type Definition struct {
	Title      string    `yaml:"title"`
	StorageKey string    `yaml:"storage_key"`
	Action     string    `yaml:"action"`
	Steps      []StepDef `yaml:"steps"`
	Reveals    []Reveal  `yaml:"reveals"`
}

// StepDef describes one step of the form.
type StepDef struct {
	Title         string         `yaml:"title"`
	Description   string         `yaml:"description"`
	Fields        []FieldDef     `yaml:"fields"`
	RequireChoice *ChoiceRule    `yaml:"require_choice"`
	Repeatable    *RepeatableDef `yaml:"repeatable"`
}

// FieldDef describes one static field.
type FieldDef struct {
	Name        string      `yaml:"name"`
	ID          string      `yaml:"id"`
	Label       string      `yaml:"label"`
	Type        string      `yaml:"type"`
	Placeholder string      `yaml:"placeholder"`
	Help        string      `yaml:"help"`
	Required    bool        `yaml:"required"`
	Multiple    bool        `yaml:"multiple"`
	MaxLength   int         `yaml:"max_length"`
	Rows        int         `yaml:"rows"`
	Options     []OptionDef `yaml:"options"`

	// Pattern must match the whole value, as the HTML pattern attribute
	// does. Empty values are left to Required.
	Pattern        string `yaml:"pattern"`
	PatternMessage string `yaml:"pattern_message"`

	// Attrs are extra control attributes, limited to AllowedAttrs.
	Attrs map[string]string `yaml:"attrs"`
}

// AllowedAttrs are the control attributes a definition may set.
var AllowedAttrs = map[string]bool{
	"autocomplete": true,
	"inputmode":    true,
	"spellcheck":   true,
}

func (f FieldDef) pattern() string {
	return "^(?:" + f.Pattern + ")$"
}

// OptionDef is one choice. A bare scalar in YAML is both value and label.
type OptionDef struct {
	Value string `yaml:"value"`
	Label string `yaml:"label"`
}

// UnmarshalYAML accepts either a scalar or a {value, label} mapping.
func (o *OptionDef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		o.Value = node.Value
		o.Label = node.Value
		return nil
	}
	type plain OptionDef
	return node.Decode((*plain)(o))
}

// ChoiceRule requires at least one selected option of a choice field before
// leaving the step. The rule is checked again on submit, with
// SubmitMessage when set.
type ChoiceRule struct {
	Field         string `yaml:"field"`
	Message       string `yaml:"message"`
	SubmitMessage string `yaml:"submit_message"`
}

// RepeatableDef declares the user-growable list of entries of a step.
type RepeatableDef struct {
	// Name prefixes submitted field names: <name>[<position>][name].
	Name string `yaml:"name"`
	// IDPrefix prefixes control ids: <prefix>Name<localID>.
	IDPrefix string `yaml:"id_prefix"`
	// Label prefixes the entry heading: "<label> <position>".
	Label string `yaml:"label"`
}

// DefaultDefinition returns the embedded seven-step project intake form.
func DefaultDefinition() *Definition {
	def, err := ParseDefinition(projectDefinition)
	if err != nil {
		panic(err)
	}
	return def
}

// LoadDefinition reads and validates a definition file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form definition %s: %w", path, err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// ParseDefinition parses a YAML definition, fills defaults and validates it.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	def.normalise()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func (d *Definition) normalise() {
	if d.StorageKey == "" {
		d.StorageKey = DefaultStorageKey
	}
	for i := range d.Steps {
		step := &d.Steps[i]
		for j := range step.Fields {
			f := &step.Fields[j]
			f.Name = strings.TrimSpace(f.Name)
			if f.Type == "" {
				f.Type = string(forms.FieldText)
			}
			if f.ID == "" {
				f.ID = f.Name
			}
			if f.Type == string(forms.FieldTextarea) && f.MaxLength == 0 {
				f.MaxLength = DefaultTextLimit
			}
		}
		if rule := step.RequireChoice; rule != nil && rule.SubmitMessage == "" {
			rule.SubmitMessage = rule.Message
		}
		if r := step.Repeatable; r != nil {
			if r.IDPrefix == "" {
				r.IDPrefix = strings.TrimSuffix(r.Name, "s")
			}
			if r.Label == "" {
				r.Label = "Entry"
			}
		}
	}
}

// Validate checks the structural rules of a definition.
func (d *Definition) Validate() error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalidDefinition)
	}

	fields := make(map[string]FieldDef)
	repeatable := 0
	for i, step := range d.Steps {
		n := i + 1
		stepFields := make(map[string]FieldDef)
		for _, f := range step.Fields {
			if f.Name == "" {
				return fmt.Errorf("%w: step %d has a field without a name", ErrInvalidDefinition, n)
			}
			if !forms.FieldType(f.Type).Known() {
				return fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidDefinition, f.Name, f.Type)
			}
			if _, dup := fields[f.Name]; dup {
				return fmt.Errorf("%w: duplicate field %q", ErrInvalidDefinition, f.Name)
			}
			if (forms.FieldType(f.Type).IsChoice() || f.Type == string(forms.FieldSelect)) && len(f.Options) == 0 {
				return fmt.Errorf("%w: field %q needs options", ErrInvalidDefinition, f.Name)
			}
			if f.Pattern != "" {
				if _, err := regexp.Compile(f.pattern()); err != nil {
					return fmt.Errorf("%w: field %q pattern: %w", ErrInvalidDefinition, f.Name, err)
				}
			}
			for attr := range f.Attrs {
				if !AllowedAttrs[attr] {
					return fmt.Errorf("%w: field %q sets unsupported attribute %q", ErrInvalidDefinition, f.Name, attr)
				}
			}
			fields[f.Name] = f
			stepFields[f.Name] = f
		}

		if rule := step.RequireChoice; rule != nil {
			f, ok := stepFields[rule.Field]
			if !ok || !forms.FieldType(f.Type).IsChoice() {
				return fmt.Errorf("%w: step %d requires a choice of %q, which is not a choice field of that step",
					ErrInvalidDefinition, n, rule.Field)
			}
		}

		if r := step.Repeatable; r != nil {
			repeatable++
			if r.Name == "" {
				return fmt.Errorf("%w: step %d repeatable list needs a name", ErrInvalidDefinition, n)
			}
		}
	}
	if repeatable > 1 {
		return fmt.Errorf("%w: only one repeatable step is supported", ErrInvalidDefinition)
	}

	for _, r := range d.Reveals {
		trigger, ok := fields[r.When]
		if !ok || !forms.FieldType(trigger.Type).IsChoice() {
			return fmt.Errorf("%w: reveal trigger %q is not a choice field", ErrInvalidDefinition, r.When)
		}
		if _, ok := fields[r.Show]; !ok {
			return fmt.Errorf("%w: reveal target %q does not exist", ErrInvalidDefinition, r.Show)
		}
	}

	return nil
}

// TotalSteps returns the number of steps.
func (d *Definition) TotalSteps() int {
	return len(d.Steps)
}

// Step returns the 1-based step definition.
func (d *Definition) Step(n int) (StepDef, bool) {
	if n < 1 || n > len(d.Steps) {
		return StepDef{}, false
	}
	return d.Steps[n-1], true
}

// RepeatableStep returns the step holding the repeatable list, or 0.
func (d *Definition) RepeatableStep() (int, *RepeatableDef) {
	for i, step := range d.Steps {
		if step.Repeatable != nil {
			return i + 1, step.Repeatable
		}
	}
	return 0, nil
}

// ChoiceRules returns the require_choice rules of every step in order.
func (d *Definition) ChoiceRules() []ChoiceRule {
	var rules []ChoiceRule
	for _, step := range d.Steps {
		if step.RequireChoice != nil {
			rules = append(rules, *step.RequireChoice)
		}
	}
	return rules
}

// MultiValued returns the names of fields captured as lists.
func (d *Definition) MultiValued() []string {
	var names []string
	for _, step := range d.Steps {
		for _, f := range step.Fields {
			if f.Multiple {
				names = append(names, f.Name)
			}
		}
	}
	return names
}

// BuildForm creates the live form for the static fields of the definition.
// Reveal targets start hidden. Repeatable entries are added by a PageList.
func (d *Definition) BuildForm() *forms.Form {
	form := forms.NewForm(slug.Make(d.Title))
	form.Action = d.Action

	hidden := make(map[string]bool)
	for _, r := range d.Reveals {
		hidden[r.Show] = true
	}

	for i, step := range d.Steps {
		for _, fd := range step.Fields {
			opts := []forms.FieldOption{
				forms.WithID(fd.ID),
				forms.WithStep(i + 1),
				forms.WithPlaceholder(fd.Placeholder),
				forms.WithHelp(fd.Help),
				forms.WithMaxLength(fd.MaxLength),
				forms.WithRows(fd.Rows),
				forms.WithOptions(buildOptions(fd)...),
			}
			if fd.Required {
				opts = append(opts, forms.WithRequired())
			}
			if fd.Multiple {
				opts = append(opts, forms.WithMultiple())
			}
			if hidden[fd.Name] {
				opts = append(opts, forms.WithHidden())
			}
			if fd.Pattern != "" {
				opts = append(opts,
					forms.WithValidator(forms.Pattern(fd.pattern(), fd.PatternMessage)),
					forms.WithAttr("pattern", fd.Pattern),
				)
			}
			for attr, value := range fd.Attrs {
				opts = append(opts, forms.WithAttr(attr, value))
			}
			form.Add(forms.NewField(fd.Name, forms.FieldType(fd.Type), fd.Label, opts...))
		}
	}

	return form
}

func buildOptions(fd FieldDef) []forms.Option {
	options := make([]forms.Option, 0, len(fd.Options))
	for _, o := range fd.Options {
		opt := forms.Option{Value: o.Value, Label: o.Label}
		if forms.FieldType(fd.Type).IsChoice() {
			opt.ID = slug.Make(fd.ID + "-" + o.Value)
		}
		options = append(options, opt)
	}
	return options
}
