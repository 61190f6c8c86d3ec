package wizard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"0712", "0712"},
		{"07123", "07123"},
		{"071234", "07123 4"},
		{"07123456789", "07123 456789"},
		{"+44 (0)7123-456-789", "44071 234567"},
		{"071234567890123", "07123 456789"},
		{"07123 456789", "07123 456789"},
		{"abc", ""},
	}
	for _, tt := range tests {
		if got := FormatPhone(tt.in); got != tt.want {
			t.Errorf("FormatPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLimitText(t *testing.T) {
	v, c := LimitText("hello", 10)
	assert.Equal(t, "hello", v)
	assert.Equal(t, CounterNormal, c.Level)
	assert.Equal(t, "5 / 10 characters", c.Text())

	_, c = LimitText("123456789", 10)
	assert.Equal(t, CounterNormal, c.Level, "exactly 90% does not warn")

	_, c = LimitText(strings.Repeat("x", 951), 1000)
	assert.Equal(t, CounterWarning, c.Level)

	v, c = LimitText("ünïcødé!", 5)
	assert.Equal(t, "ünïcø", v)
	assert.Equal(t, Counter{Length: 5, Max: 5, Level: CounterExceeded}, c)
}

func TestRequiredFeedback(t *testing.T) {
	assert.Equal(t, FeedbackError, RequiredFeedback("  ", true))
	assert.Equal(t, FeedbackNone, RequiredFeedback("", false))
	assert.Equal(t, FeedbackSuccess, RequiredFeedback("x", false))
	assert.Equal(t, FeedbackSuccess, RequiredFeedback("x", true))
}

func TestCheckEmail(t *testing.T) {
	fb, msg := CheckEmail("")
	assert.Equal(t, FeedbackNone, fb)
	assert.Empty(t, msg)

	fb, msg = CheckEmail("ada@example")
	assert.Equal(t, FeedbackError, fb)
	assert.Equal(t, InvalidEmailMessage, msg)

	fb, msg = CheckEmail("ada@example.com")
	assert.Equal(t, FeedbackSuccess, fb)
	assert.Empty(t, msg)
}

func TestApplyReveals(t *testing.T) {
	def := DefaultDefinition()
	form := def.BuildForm()
	cms := form.ByName("cms")
	other := form.ByName("cmsOther")

	assert.Empty(t, ApplyReveals(def.Reveals, form))

	require.True(t, cms.SetChecked("other", true))
	changes := ApplyReveals(def.Reveals, form)
	require.Len(t, changes, 1)
	assert.Same(t, other, changes[0].Field)
	assert.True(t, changes[0].Shown)
	assert.False(t, other.Hidden)

	other.Value = "Ghost"
	require.True(t, cms.SetChecked("other", false))
	changes = ApplyReveals(def.Reveals, form)
	require.Len(t, changes, 1)
	assert.False(t, changes[0].Shown)
	assert.True(t, changes[0].Cleared)
	assert.True(t, other.Hidden)
	assert.Empty(t, other.Value)
}
