package wizard

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gabrielmiguelok/liveintake/pkg/forms"
)

// MaxPhoneDigits is the length of a UK phone number.
const MaxPhoneDigits = 11

// InvalidEmailMessage is set as the custom validity of a malformed email.
const InvalidEmailMessage = "Please enter a valid email address"

// FormatPhone keeps the digits of value, caps them at MaxPhoneDigits and
// splits them as "XXXXX XXXXXX".
func FormatPhone(value string) string {
	var b strings.Builder
	digits := 0
	for _, r := range value {
		if r < '0' || r > '9' {
			continue
		}
		if digits == MaxPhoneDigits {
			break
		}
		if digits == 5 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
		digits++
	}
	return b.String()
}

// CounterLevel is the colouring of a character counter.
type CounterLevel string

const (
	CounterNormal   CounterLevel = "normal"
	CounterWarning  CounterLevel = "warning"
	CounterExceeded CounterLevel = "exceeded"
)

// Counter is the state of a textarea character counter.
type Counter struct {
	Length int
	Max    int
	Level  CounterLevel
}

// Text renders the counter.
func (c Counter) Text() string {
	return fmt.Sprintf("%d / %d characters", c.Length, c.Max)
}

// LimitText truncates value to max characters and returns the counter.
// Above 90% of max the counter warns.
func LimitText(value string, max int) (string, Counter) {
	n := utf8.RuneCountInString(value)
	if n > max {
		runes := []rune(value)
		return string(runes[:max]), Counter{Length: max, Max: max, Level: CounterExceeded}
	}

	c := Counter{Length: n, Max: max, Level: CounterNormal}
	if float64(n) > float64(max)*0.9 {
		c.Level = CounterWarning
	}
	return value, c
}

// Feedback is the border state of a control.
type Feedback string

const (
	FeedbackNone    Feedback = ""
	FeedbackError   Feedback = "error"
	FeedbackSuccess Feedback = "success"
)

// RequiredFeedback returns the state of a required control. On blur an
// empty value is an error; while typing only a non-empty value changes the
// state.
func RequiredFeedback(value string, blur bool) Feedback {
	if strings.TrimSpace(value) != "" {
		return FeedbackSuccess
	}
	if blur {
		return FeedbackError
	}
	return FeedbackNone
}

// CheckEmail returns the feedback and the custom validity message for an
// email value on blur.
func CheckEmail(value string) (Feedback, string) {
	switch {
	case value == "":
		return FeedbackNone, ""
	case !forms.ValidEmail(value):
		return FeedbackError, InvalidEmailMessage
	default:
		return FeedbackSuccess, ""
	}
}
