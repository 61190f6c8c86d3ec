package wizard

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gabrielmiguelok/liveintake/pkg/forms"
)

// Value is a snapshot value: a single string or an ordered list.
type Value struct {
	Scalar string
	List   []string
	IsList bool
}

// Scalar makes a single-string value.
func Scalar(s string) Value {
	return Value{Scalar: s}
}

// List makes a list value. A nil list still encodes as [].
func List(values ...string) Value {
	if values == nil {
		values = []string{}
	}
	return Value{List: values, IsList: true}
}

// Values returns the value as a list.
func (v Value) Values() []string {
	if v.IsList {
		return v.List
	}
	return []string{v.Scalar}
}

// MarshalJSON encodes a string or an array of strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsList {
		list := v.List
		if list == nil {
			list = []string{}
		}
		return json.Marshal(list)
	}
	return json.Marshal(v.Scalar)
}

// UnmarshalJSON accepts a string or an array of strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*v = List(list...)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = Scalar(s)
	return nil
}

// Snapshot maps field names to captured values.
type Snapshot map[string]Value

// Capture reads every named field of form. Multiple fields always become
// lists. A single-choice group contributes its last selected value and is
// left out when nothing is selected.
func Capture(form *forms.Form) Snapshot {
	snap := make(Snapshot)
	for _, f := range form.Fields() {
		if f.Name == "" {
			continue
		}
		switch {
		case f.Multiple && f.Type.IsChoice():
			snap[f.Name] = List(f.Selected()...)
		case f.Multiple:
			if f.Value == "" {
				snap[f.Name] = List()
			} else {
				snap[f.Name] = List(f.Value)
			}
		case f.Type.IsChoice():
			if sel := f.Selected(); len(sel) > 0 {
				snap[f.Name] = Scalar(sel[len(sel)-1])
			}
		default:
			snap[f.Name] = Scalar(f.Value)
		}
	}
	return snap
}

// DecodeSnapshot parses a stored record. Keys with an unexpected shape are
// skipped and reported in the second return value; only a record that is
// not a JSON object is an error.
func DecodeSnapshot(data []byte) (Snapshot, []string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if raw == nil {
		return nil, nil, fmt.Errorf("decode snapshot: not an object")
	}

	snap := make(Snapshot, len(raw))
	var skipped []string
	for key, msg := range raw {
		var v Value
		if err := json.Unmarshal(msg, &v); err != nil {
			skipped = append(skipped, key)
			continue
		}
		snap[key] = v
	}
	return snap, skipped, nil
}

// Apply writes snap into form and returns the fields it changed, in form
// order. Choice groups get each stored value that names an option checked;
// other fields are overwritten. Missing fields, values without a matching
// option and shape mismatches are skipped.
func Apply(form *forms.Form, snap Snapshot) []*forms.Field {
	var changed []*forms.Field
	for _, f := range form.Fields() {
		v, ok := snap[f.Name]
		if !ok {
			continue
		}

		if f.Type.IsChoice() {
			touched := false
			for _, value := range v.Values() {
				opt := f.Option(value)
				if opt == nil || opt.Selected {
					continue
				}
				f.SetChecked(value, true)
				touched = true
			}
			if touched {
				changed = append(changed, f)
			}
			continue
		}

		value := v.Scalar
		if v.IsList {
			if !f.Multiple || len(v.List) > 1 {
				continue
			}
			value = ""
			if len(v.List) == 1 {
				value = v.List[0]
			}
		}
		if f.Type == forms.FieldSelect && f.Option(value) == nil {
			continue
		}
		if f.Value != value {
			f.Value = value
			changed = append(changed, f)
		}
	}
	return changed
}
