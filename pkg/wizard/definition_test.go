package wizard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/liveintake/pkg/forms"
)

func TestDefaultDefinition(t *testing.T) {
	def := DefaultDefinition()

	assert.Equal(t, 7, def.TotalSteps())
	assert.Equal(t, DefaultStorageKey, def.StorageKey)

	step, rep := def.RepeatableStep()
	assert.Equal(t, 3, step)
	require.NotNil(t, rep)
	assert.Equal(t, "pages", rep.Name)
	assert.Equal(t, "page", rep.IDPrefix)

	assert.ElementsMatch(t, []string{"designStyle", "features", "cms", "integrations"}, def.MultiValued())

	_, ok := def.Step(8)
	assert.False(t, ok)

	rules := def.ChoiceRules()
	require.Len(t, rules, 1)
	assert.Equal(t, "designStyle", rules[0].Field)
	assert.Equal(t, "Please select at least one design style.", rules[0].SubmitMessage)
}

func TestParseDefinition_SubmitMessageDefaultsToMessage(t *testing.T) {
	def, err := ParseDefinition([]byte(`
title: Mini
steps:
  - title: Pick
    require_choice: { field: colour, message: Pick one. }
    fields:
      - name: colour
        type: radio
        options: [red, blue]
`))
	require.NoError(t, err)
	assert.Equal(t, "Pick one.", def.ChoiceRules()[0].SubmitMessage)
}

func TestDefinition_BuildForm(t *testing.T) {
	form := DefaultDefinition().BuildForm()

	email := form.ByName("email")
	require.NotNil(t, email)
	assert.Equal(t, forms.FieldEmail, email.Type)
	assert.Equal(t, 1, email.Step)

	notes := form.ByName("projectDescription")
	require.NotNil(t, notes)
	assert.Equal(t, DefaultTextLimit, notes.MaxLength)

	cms := form.ByName("cms")
	require.NotNil(t, cms)
	assert.Equal(t, "cms-other", cms.Option("other").ID)

	assert.True(t, form.ByName("cmsOther").Hidden)
	assert.True(t, form.ByName("integrationsOther").Hidden)
	assert.False(t, form.ByName("company").Hidden)

	hear := form.ByName("hearAbout")
	require.NotNil(t, hear)
	assert.NotNil(t, hear.Option("other"), "scalar options are accepted")
}

func TestDefinition_PatternAndAttrs(t *testing.T) {
	def, err := ParseDefinition([]byte(`
steps:
  - fields:
      - name: postcode
        pattern: "[A-Z]{1,2}[0-9][A-Z0-9]? ?[0-9][A-Z]{2}"
        pattern_message: Please enter a UK postcode
        attrs:
          autocomplete: postal-code
`))
	require.NoError(t, err)

	f := def.BuildForm().ByName("postcode")
	require.NotNil(t, f)
	assert.Equal(t, "postal-code", f.Attrs["autocomplete"])
	assert.Equal(t, "[A-Z]{1,2}[0-9][A-Z0-9]? ?[0-9][A-Z]{2}", f.Attrs["pattern"])

	f.Value = "SW1A 1AA"
	assert.Empty(t, f.Problems())
	f.Value = "xSW1A 1AAx"
	assert.Equal(t, []string{"Please enter a UK postcode"}, f.Problems(), "the pattern matches the whole value")
	f.Value = ""
	assert.Empty(t, f.Problems())
}

func TestParseDefinition_Rejects(t *testing.T) {
	cases := map[string]string{
		"no steps":   `title: x`,
		"bad type":   "steps:\n  - fields:\n      - {name: a, type: slider}\n",
		"duplicate":  "steps:\n  - fields:\n      - {name: a}\n  - fields:\n      - {name: a}\n",
		"no options": "steps:\n  - fields:\n      - {name: a, type: select}\n",
		"choice not in step": `
steps:
  - require_choice: {field: style}
    fields:
      - {name: a}
  - fields:
      - {name: style, type: checkbox, options: [x]}
`,
		"two repeatables": `
steps:
  - repeatable: {name: pages}
  - repeatable: {name: rooms}
`,
		"reveal target": `
steps:
  - fields:
      - {name: cms, type: checkbox, options: [other]}
reveals:
  - {when: cms, value: other, show: nowhere}
`,
		"bad pattern": "steps:\n  - fields:\n      - {name: a, pattern: \"(\"}\n",
		"unsafe attr": "steps:\n  - fields:\n      - {name: a, attrs: {onfocus: steal()}}\n",
		"not yaml":    "steps: [",
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}

func TestLoadDefinition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "form.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
title: Small
steps:
  - title: One
    fields:
      - {name: notes, type: textarea, max_length: 50}
`), 0o644))

	def, err := LoadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultStorageKey, def.StorageKey)
	assert.Equal(t, 50, def.Steps[0].Fields[0].MaxLength)

	_, err = LoadDefinition(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
