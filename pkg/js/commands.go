// Package js provides DOM commands executed by the intake client.
// The server sends them in "exec" messages; the client applies them in
// order without a server roundtrip.
package js

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Command is one DOM operation on the elements matched by Target.
type Command struct {
	Op     string         `json:"op" msgpack:"op"`
	Target string         `json:"to,omitempty" msgpack:"to,omitempty"`
	Args   map[string]any `json:"args,omitempty" msgpack:"args,omitempty"`
}

// ToJS returns the equivalent client call, for logs and tests.
func (c Command) ToJS() string {
	if len(c.Args) == 0 {
		return fmt.Sprintf(`intake.%s(%q)`, c.Op, c.Target)
	}
	args, _ := json.Marshal(c.Args)
	return fmt.Sprintf(`intake.%s(%q,%s)`, c.Op, c.Target, args)
}

// String implements fmt.Stringer.
func (c Command) String() string {
	return c.ToJS()
}

// Commands holds a sequence of commands.
type Commands []Command

// ToJS returns the JavaScript for all commands.
func (cs Commands) ToJS() string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, c.ToJS())
	}
	return strings.Join(parts, ";")
}

// String implements fmt.Stringer.
func (cs Commands) String() string {
	return cs.ToJS()
}

// Find returns the commands with the given op.
func (cs Commands) Find(op string) Commands {
	var out Commands
	for _, c := range cs {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Operation names understood by the client.
const (
	OpShow           = "show"
	OpHide           = "hide"
	OpAddClass       = "addClass"
	OpRemoveClass    = "removeClass"
	OpSetAttr        = "setAttr"
	OpRemoveAttr     = "removeAttr"
	OpSetProp        = "setProp"
	OpSetText        = "setText"
	OpSetStyle       = "setStyle"
	OpValidity       = "setValidity"
	OpInsert         = "insert"
	OpRemove         = "remove"
	OpFocus          = "focus"
	OpScrollIntoView = "scrollIntoView"
	OpScrollTop      = "scrollTop"
	OpAlert          = "alert"
	OpConfirm        = "confirm"
	OpPush           = "push"
)

// JS is the namespace for DOM commands.
var JS = jsNamespace{}

type jsNamespace struct{}

// Show shows an element.
func (jsNamespace) Show(selector string, opts ...ShowOption) Command {
	config := showConfig{time: 200}
	for _, opt := range opts {
		opt(&config)
	}

	cmd := Command{Op: OpShow, Target: selector}
	if config.transition != "" {
		cmd.Args = map[string]any{"transition": config.transition, "time": config.time}
	}
	return cmd
}

// Hide hides an element.
func (jsNamespace) Hide(selector string, opts ...ShowOption) Command {
	config := showConfig{time: 200}
	for _, opt := range opts {
		opt(&config)
	}

	cmd := Command{Op: OpHide, Target: selector}
	if config.transition != "" {
		cmd.Args = map[string]any{"transition": config.transition, "time": config.time}
	}
	return cmd
}

// AddClass adds CSS class(es) to an element.
func (jsNamespace) AddClass(selector, class string) Command {
	return Command{Op: OpAddClass, Target: selector, Args: map[string]any{"class": class}}
}

// RemoveClass removes CSS class(es) from an element.
func (jsNamespace) RemoveClass(selector, class string) Command {
	return Command{Op: OpRemoveClass, Target: selector, Args: map[string]any{"class": class}}
}

// SetAttr sets an attribute on an element.
func (jsNamespace) SetAttr(selector, attr, value string) Command {
	return Command{Op: OpSetAttr, Target: selector, Args: map[string]any{"attr": attr, "value": value}}
}

// RemoveAttr removes an attribute from an element.
func (jsNamespace) RemoveAttr(selector, attr string) Command {
	return Command{Op: OpRemoveAttr, Target: selector, Args: map[string]any{"attr": attr}}
}

// SetProp sets a DOM property such as value, checked or disabled.
func (jsNamespace) SetProp(selector, prop string, value any) Command {
	return Command{Op: OpSetProp, Target: selector, Args: map[string]any{"prop": prop, "value": value}}
}

// SetText replaces the text content of an element.
func (jsNamespace) SetText(selector, text string) Command {
	return Command{Op: OpSetText, Target: selector, Args: map[string]any{"text": text}}
}

// SetStyle sets one inline style property. An empty value removes it.
func (jsNamespace) SetStyle(selector, prop, value string) Command {
	return Command{Op: OpSetStyle, Target: selector, Args: map[string]any{"prop": prop, "value": value}}
}

// SetValidity sets the custom validity message of a control. An empty
// message marks it valid.
func (jsNamespace) SetValidity(selector, message string) Command {
	return Command{Op: OpValidity, Target: selector, Args: map[string]any{"message": message}}
}

// Insert inserts html at the end of the element.
func (jsNamespace) Insert(selector, html string) Command {
	return Command{Op: OpInsert, Target: selector, Args: map[string]any{"html": html}}
}

// Remove detaches an element.
func (jsNamespace) Remove(selector string) Command {
	return Command{Op: OpRemove, Target: selector}
}

// Focus sets focus on an element.
func (jsNamespace) Focus(selector string) Command {
	return Command{Op: OpFocus, Target: selector}
}

// ScrollIntoView smoothly scrolls the nearest edge of an element into view.
func (jsNamespace) ScrollIntoView(selector string) Command {
	return Command{Op: OpScrollIntoView, Target: selector, Args: map[string]any{"block": "nearest"}}
}

// ScrollTop smoothly scrolls the window to the top.
func (jsNamespace) ScrollTop() Command {
	return Command{Op: OpScrollTop, Target: "window"}
}

// Alert shows a blocking notice.
func (jsNamespace) Alert(message string) Command {
	return Command{Op: OpAlert, Args: map[string]any{"message": message}}
}

// Confirm asks a yes/no question and pushes yes or no back to the server.
func (jsNamespace) Confirm(message, yes, no string) Command {
	return Command{Op: OpConfirm, Args: map[string]any{"message": message, "yes": yes, "no": no}}
}

// Push sends an event to the server.
func (jsNamespace) Push(event string, value map[string]any) Command {
	return Command{Op: OpPush, Args: map[string]any{"event": event, "value": value}}
}

// Option types

type showConfig struct {
	transition string
	time       int
}

// ShowOption configures Show and Hide.
type ShowOption func(*showConfig)

// Transition animates the change with a CSS transition class.
func Transition(name string) ShowOption {
	return func(c *showConfig) {
		c.transition = name
	}
}

// Time sets the transition duration in milliseconds.
func Time(ms int) ShowOption {
	return func(c *showConfig) {
		c.time = ms
	}
}

// Common transitions
const (
	TransitionFadeIn   = "fade-in"
	TransitionFadeOut  = "fade-out"
	TransitionSlideIn  = "slide-in"
	TransitionSlideOut = "slide-out"
)

// ID returns the selector of an element id.
func ID(id string) string {
	return "#" + id
}
