// Package forms models the live state of an HTML form on the server: an
// ordered set of named controls, their values and their submitted encoding.
package forms

import (
	"net/url"
	"sync"
)

// Form is the server-side mirror of a rendered form. Fields keep insertion
// order; several fields may not share a name.
type Form struct {
	// Name is the form identifier.
	Name string

	// Action is the form action URL.
	Action string

	fields []*Field
	mu     sync.RWMutex
}

// NewForm creates a new form.
func NewForm(name string) *Form {
	return &Form{
		Name:   name,
		fields: make([]*Field, 0),
	}
}

// Add appends fields to the form.
func (f *Form) Add(fields ...*Field) *Form {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields = append(f.fields, fields...)
	return f
}

// Remove detaches the field with the given id. It reports whether a field
// was removed.
func (f *Form) Remove(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, field := range f.fields {
		if field.ID == id {
			f.fields = append(f.fields[:i], f.fields[i+1:]...)
			return true
		}
	}
	return false
}

// Rename changes the submitted name of the field with the given id while
// keeping its id.
func (f *Form) Rename(id, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, field := range f.fields {
		if field.ID == id {
			field.Name = name
			return true
		}
	}
	return false
}

// ByID retrieves a field by control id.
func (f *Form) ByID(id string) *Field {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, field := range f.fields {
		if field.ID == id {
			return field
		}
	}
	return nil
}

// ByName retrieves a field by submitted name.
func (f *Form) ByName(name string) *Field {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, field := range f.fields {
		if field.Name == name {
			return field
		}
	}
	return nil
}

// Fields returns the fields in form order.
func (f *Form) Fields() []*Field {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make([]*Field, len(f.fields))
	copy(result, f.fields)
	return result
}

// InStep returns the fields of a step in form order.
func (f *Form) InStep(step int) []*Field {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var result []*Field
	for _, field := range f.fields {
		if field.Step == step {
			result = append(result, field)
		}
	}
	return result
}

// Values returns the form's native submission encoding: every non-choice
// field with its value, and one entry per selected option of choice fields.
func (f *Form) Values() url.Values {
	f.mu.RLock()
	defer f.mu.RUnlock()

	values := make(url.Values)
	for _, field := range f.fields {
		if field.Type.IsChoice() {
			for _, v := range field.Selected() {
				values.Add(field.Name, v)
			}
			continue
		}
		values.Add(field.Name, field.Value)
	}
	return values
}

// Reset clears every field.
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, field := range f.fields {
		field.Clear()
	}
}
