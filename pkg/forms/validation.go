package forms

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validator validates a field value.
type Validator interface {
	// Validate checks if the value is valid.
	Validate(value string) error

	// Message returns the user-facing error message.
	Message() string
}

// RequiredValidator validates that a field is not blank.
type RequiredValidator struct{}

func (v RequiredValidator) Validate(value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New("required")
	}
	return nil
}

func (v RequiredValidator) Message() string {
	return "This field is required"
}

// EmailValidator validates the loose address shape accepted by the intake
// form: something, an @, something, a dot, something, no whitespace.
type EmailValidator struct{}

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func (v EmailValidator) Validate(value string) error {
	if value == "" {
		return nil // Skip if empty (use Required for that)
	}
	if !emailRegex.MatchString(value) {
		return errors.New("invalid email")
	}
	return nil
}

func (v EmailValidator) Message() string {
	return "Please enter a valid email address"
}

// MaxLengthValidator validates maximum string length in characters.
type MaxLengthValidator struct {
	Max int
}

func (v MaxLengthValidator) Validate(value string) error {
	if utf8.RuneCountInString(value) > v.Max {
		return fmt.Errorf("too long (max %d)", v.Max)
	}
	return nil
}

func (v MaxLengthValidator) Message() string {
	return fmt.Sprintf("Must be at most %d characters", v.Max)
}

// PatternValidator validates against a regex pattern.
type PatternValidator struct {
	Pattern *regexp.Regexp
	Msg     string
}

func (v PatternValidator) Validate(value string) error {
	if value == "" {
		return nil
	}
	if !v.Pattern.MatchString(value) {
		return errors.New("pattern mismatch")
	}
	return nil
}

func (v PatternValidator) Message() string {
	if v.Msg != "" {
		return v.Msg
	}
	return "Invalid format"
}

// ValidEmail reports whether value has the accepted email shape.
func ValidEmail(value string) bool {
	return emailRegex.MatchString(value)
}

// Pattern returns a pattern validator. It panics if the pattern does not
// compile.
func Pattern(pattern string, msg ...string) Validator {
	v := PatternValidator{Pattern: regexp.MustCompile(pattern)}
	if len(msg) > 0 {
		v.Msg = msg[0]
	}
	return v
}
