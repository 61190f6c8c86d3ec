package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestForm() *Form {
	return NewForm("project").Add(
		NewField("fullName", FieldText, "Name", WithRequired(), WithStep(1)),
		NewField("email", FieldEmail, "Email", WithStep(1)),
		NewField("designStyle", FieldCheckbox, "Style", WithStep(2), WithMultiple(), WithOptions(
			Option{ID: "designStyle-modern", Value: "modern"},
			Option{ID: "designStyle-classic", Value: "classic"},
		)),
		NewField("budget", FieldRadio, "Budget", WithStep(2), WithOptions(
			Option{Value: "small"},
			Option{Value: "large"},
		)),
	)
}

func TestForm_Lookup(t *testing.T) {
	f := newTestForm()

	require.NotNil(t, f.ByName("email"))
	assert.Nil(t, f.ByName("missing"))
	assert.Len(t, f.InStep(2), 2)
	assert.Len(t, f.Fields(), 4)
}

func TestForm_RenameKeepsID(t *testing.T) {
	f := NewForm("pages").Add(NewField("pages[2][name]", FieldText, "Page", WithID("pageName7")))

	require.True(t, f.Rename("pageName7", "pages[1][name]"))

	field := f.ByID("pageName7")
	require.NotNil(t, field)
	assert.Equal(t, "pages[1][name]", field.Name)
	assert.Nil(t, f.ByName("pages[2][name]"))
	assert.False(t, f.Rename("pageName8", "x"))
}

func TestForm_Remove(t *testing.T) {
	f := newTestForm()

	assert.True(t, f.Remove("email"))
	assert.False(t, f.Remove("email"))
	assert.Nil(t, f.ByID("email"))
}

func TestField_RadioSelectionIsExclusive(t *testing.T) {
	f := newTestForm()
	budget := f.ByName("budget")

	require.True(t, budget.SetChecked("small", true))
	require.True(t, budget.SetChecked("large", true))
	assert.Equal(t, []string{"large"}, budget.Selected())
	assert.False(t, budget.SetChecked("huge", true))
}

func TestForm_Values(t *testing.T) {
	f := newTestForm()
	f.ByName("fullName").Value = "Ada"
	f.ByName("designStyle").SetChecked("modern", true)
	f.ByName("designStyle").SetChecked("classic", true)

	values := f.Values()
	assert.Equal(t, "Ada", values.Get("fullName"))
	assert.Equal(t, []string{""}, values["email"])
	assert.Equal(t, []string{"modern", "classic"}, values["designStyle"])
	_, ok := values["budget"]
	assert.False(t, ok, "unselected radio group is not submitted")
}

func TestForm_Reset(t *testing.T) {
	f := newTestForm()
	f.ByName("fullName").Value = "Ada"
	f.ByName("designStyle").SetChecked("modern", true)

	f.Reset()

	assert.Empty(t, f.ByName("fullName").Value)
	assert.Empty(t, f.ByName("designStyle").Selected())
}

func TestEmailValidator(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"", true},
		{"ada@example.com", true},
		{"a@b.c", true},
		{"ada@example", false},
		{"ada example@x.com", false},
		{"@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			err := EmailValidator{}.Validate(tt.value)
			assert.Equal(t, tt.valid, err == nil)
		})
	}
}

func TestField_Problems(t *testing.T) {
	field := NewField("notes", FieldTextarea, "Notes", WithMaxLength(3))
	field.Value = "abcd"

	assert.Equal(t, []string{"Must be at most 3 characters"}, field.Problems())

	field.Value = "abc"
	assert.Empty(t, field.Problems())
}
