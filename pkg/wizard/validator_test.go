package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noticeRecorder struct {
	notices []Notice
}

func (r *noticeRecorder) Notify(n Notice) { r.notices = append(r.notices, n) }

func (r *noticeRecorder) last() Notice {
	if len(r.notices) == 0 {
		return Notice{}
	}
	return r.notices[len(r.notices)-1]
}

func TestStepValidator_RequiredFieldsFailFast(t *testing.T) {
	def := DefaultDefinition()
	form := def.BuildForm()
	rec := &noticeRecorder{}
	v := NewStepValidator(def, form, rec)

	assert.False(t, v.Validate(1))
	require.Len(t, rec.notices, 1, "validation reports only the first problem")
	assert.Equal(t, Notice{Kind: NoticeRequiredField, Message: RequiredFieldMessage, FieldID: "fullName"}, rec.last())

	form.ByName("fullName").Value = "Ada Lovelace"
	form.ByName("email").Value = "   "
	assert.False(t, v.Validate(1), "whitespace is not a value")
	assert.Equal(t, "email", rec.last().FieldID)

	form.ByName("email").Value = "ada@example.com"
	form.ByName("phone").Value = "07123 456789"
	rec.notices = nil
	assert.True(t, v.Validate(1))
	assert.Empty(t, rec.notices, "success has no side effects")
}

func TestStepValidator_RequiredChoice(t *testing.T) {
	def := DefaultDefinition()
	form := def.BuildForm()
	rec := &noticeRecorder{}
	v := NewStepValidator(def, form, rec)

	assert.False(t, v.Validate(4))
	assert.Equal(t, NoticeRequiredChoice, rec.last().Kind)
	assert.Equal(t, "Please select a design style before proceeding.", rec.last().Message)
	assert.Equal(t, form.ByName("designStyle").Options[0].ID, rec.last().FieldID)

	require.True(t, form.ByName("designStyle").SetChecked("bold", true))
	assert.True(t, v.Validate(4))
}

func TestStepValidator_Complete(t *testing.T) {
	def := DefaultDefinition()
	form := def.BuildForm()
	rec := &noticeRecorder{}
	v := NewStepValidator(def, form, rec)

	step, n := v.Complete()
	assert.Equal(t, 1, step)
	assert.Equal(t, Notice{Kind: NoticeRequiredField, Message: RequiredFieldMessage, FieldID: "fullName"}, n)

	for name, value := range map[string]string{
		"fullName":           "Ada Lovelace",
		"email":              "ada@",
		"phone":              "07123 456789",
		"projectName":        "Engine",
		"projectType":        "new-website",
		"projectDescription": "Analytical",
		"timeline":           "asap",
		"budget":             "2k-5k",
	} {
		form.ByName(name).Value = value
	}

	step, n = v.Complete()
	assert.Equal(t, 1, step)
	assert.Equal(t, Notice{Kind: NoticeInvalidField, Message: InvalidEmailMessage, FieldID: "email"}, n)

	form.ByName("email").Value = "ada@example.com"
	step, n = v.Complete()
	assert.Equal(t, 4, step)
	assert.Equal(t, NoticeRequiredChoice, n.Kind)

	require.True(t, form.ByName("designStyle").SetChecked("modern", true))
	step, _ = v.Complete()
	assert.Zero(t, step)
	assert.Empty(t, rec.notices, "Complete leaves raising the notice to the caller")
}

func TestStepValidator_SkipsHiddenFields(t *testing.T) {
	def := DefaultDefinition()
	form := def.BuildForm()
	other := form.ByName("cmsOther")
	require.True(t, other.Hidden)
	other.Required = true

	v := NewStepValidator(def, form, nil)
	assert.True(t, v.Validate(5))

	other.Hidden = false
	assert.False(t, v.Validate(5))
}

func TestNavigator_BlockedUntilStepIsFilled(t *testing.T) {
	def := DefaultDefinition()
	form := def.BuildForm()
	rec := &noticeRecorder{}
	nav, err := NewNavigator(def.TotalSteps(), NewStepValidator(def, form, rec), nil)
	require.NoError(t, err)

	assert.False(t, nav.Advance())
	assert.Equal(t, 1, nav.Current())

	form.ByName("fullName").Value = "Ada Lovelace"
	form.ByName("email").Value = "ada@example.com"
	form.ByName("phone").Value = "07123 456789"
	assert.True(t, nav.Advance())
	assert.Equal(t, 2, nav.Current())
}
