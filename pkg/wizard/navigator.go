// Package wizard holds the state of a multi-step form: step navigation,
// per-step validation, the repeatable page list, snapshot persistence and
// the small field formatters. Nothing in it renders; callers plug in views.
package wizard

import (
	"errors"
	"fmt"
)

// ErrInvalidStep is returned for step counts or indices out of range.
var ErrInvalidStep = errors.New("invalid step")

// StepState holds the current step and the constant step count.
// The zero value is not valid; use NewStepState.
type StepState struct {
	current int
	total   int
}

// NewStepState starts at step 1 of total.
func NewStepState(total int) (StepState, error) {
	if total < 1 {
		return StepState{}, fmt.Errorf("%w: total %d", ErrInvalidStep, total)
	}
	return StepState{current: 1, total: total}, nil
}

// Current returns the 1-based current step.
func (s StepState) Current() int { return s.current }

// Total returns the step count.
func (s StepState) Total() int { return s.total }

// First reports whether the current step is the first one.
func (s StepState) First() bool { return s.current == 1 }

// Last reports whether the current step is the last one.
func (s StepState) Last() bool { return s.current == s.total }

// Indicator is the marking of one step indicator.
type Indicator string

const (
	IndicatorNone      Indicator = ""
	IndicatorActive    Indicator = "active"
	IndicatorCompleted Indicator = "completed"
)

// ViewState is everything the rendering side needs after a transition.
type ViewState struct {
	Step  int
	Total int

	// Progress is the progress bar width in percent.
	Progress float64

	Indicators []Indicator

	BackDisabled bool
	ShowNext     bool
	ShowSubmit   bool

	// ScrollTop asks for a smooth scroll to the top of the form.
	ScrollTop bool
}

// Visible reports whether the 1-based step is the visible one.
func (v ViewState) Visible(step int) bool {
	return step == v.Step
}

// ViewFor computes the view of a step state.
func ViewFor(s StepState) ViewState {
	indicators := make([]Indicator, s.total)
	for i := range indicators {
		switch step := i + 1; {
		case step < s.current:
			indicators[i] = IndicatorCompleted
		case step == s.current:
			indicators[i] = IndicatorActive
		}
	}

	return ViewState{
		Step:         s.current,
		Total:        s.total,
		Progress:     float64(s.current) / float64(s.total) * 100,
		Indicators:   indicators,
		BackDisabled: s.First(),
		ShowNext:     !s.Last(),
		ShowSubmit:   s.Last(),
		ScrollTop:    true,
	}
}

// StepChecker decides whether a step may be left going forward.
type StepChecker interface {
	Validate(step int) bool
}

// View receives the view state after every transition.
type View interface {
	Refresh(ViewState)
}

// ViewFunc adapts a function to View.
type ViewFunc func(ViewState)

// Refresh calls f(v).
func (f ViewFunc) Refresh(v ViewState) { f(v) }

// Navigator moves a StepState forward and backward and refreshes the view.
type Navigator struct {
	state     StepState
	validator StepChecker
	view      View
}

// NewNavigator creates a navigator at step 1. A nil validator accepts every
// step and a nil view discards refreshes.
func NewNavigator(total int, validator StepChecker, view View) (*Navigator, error) {
	state, err := NewStepState(total)
	if err != nil {
		return nil, err
	}
	if view == nil {
		view = ViewFunc(func(ViewState) {})
	}
	return &Navigator{state: state, validator: validator, view: view}, nil
}

// State returns a copy of the current state.
func (n *Navigator) State() StepState {
	return n.state
}

// Current returns the current step.
func (n *Navigator) Current() int {
	return n.state.current
}

// Advance validates the current step and moves forward. It reports whether
// the step changed.
func (n *Navigator) Advance() bool {
	if n.validator != nil && !n.validator.Validate(n.state.current) {
		return false
	}
	if n.state.current >= n.state.total {
		return false
	}
	n.state.current++
	n.Refresh()
	return true
}

// Retreat moves back one step without validation.
func (n *Navigator) Retreat() bool {
	if n.state.current <= 1 {
		return false
	}
	n.state.current--
	n.Refresh()
	return true
}

// JumpTo revisits a completed or the current step. Steps ahead of the
// current one are never reachable this way.
func (n *Navigator) JumpTo(step int) bool {
	if step < 1 || step > n.state.current {
		return false
	}
	n.state.current = step
	n.Refresh()
	return true
}

// Refresh pushes the current view state.
func (n *Navigator) Refresh() {
	n.view.Refresh(ViewFor(n.state))
}
