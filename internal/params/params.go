// Package params binds submitted values to template fields.
//
// Each field carries three independently indexed kinds of values: plain
// strings, functional prefixes and ontology term references. Indexes are
// dense per field and kind, and never reach the field's maximum cardinality.
package params

import (
	"errors"
	"fmt"
	"sort"

	"term-forge/internal/templates"
)

// ErrIndexOutOfRange is returned when a value index is negative, leaves a
// gap, or is not below the field's maximum cardinality.
var ErrIndexOutOfRange = errors.New("index out of range")

// TermRef references a term in a named ontology.
type TermRef struct {
	Ontology string `json:"ontology" yaml:"ontology"`
	ID       string `json:"id" yaml:"id"`
}

func (r TermRef) String() string {
	return r.Ontology + ":" + r.ID
}

// MultiValueMap maps (field, index) to a value. The zero value is ready to
// use.
type MultiValueMap[V any] struct {
	order  []string
	values map[string][]V
}

// Add stores value at index for field. An index equal to the current count
// appends; a lower index replaces.
func (m *MultiValueMap[V]) Add(value V, field *templates.Field, index int) error {
	count := m.Count(field.Name)
	switch {
	case index < 0:
		return fmt.Errorf("%w: %s[%d]", ErrIndexOutOfRange, field.Name, index)
	case !field.Cardinality.IsUnbounded() && index >= field.Cardinality.Max:
		return fmt.Errorf("%w: %s[%d] exceeds cardinality %s", ErrIndexOutOfRange, field.Name, index, field.Cardinality)
	case index > count:
		return fmt.Errorf("%w: %s[%d] leaves a gap after %d values", ErrIndexOutOfRange, field.Name, index, count)
	}

	if m.values == nil {
		m.values = make(map[string][]V)
	}
	if _, seen := m.values[field.Name]; !seen {
		m.order = append(m.order, field.Name)
	}
	if index == count {
		m.values[field.Name] = append(m.values[field.Name], value)
	} else {
		m.values[field.Name][index] = value
	}
	return nil
}

// Get returns the value at index for field.
func (m *MultiValueMap[V]) Get(field string, index int) (V, bool) {
	vs := m.values[field]
	if index < 0 || index >= len(vs) {
		var zero V
		return zero, false
	}
	return vs[index], true
}

// Count returns the number of values bound to field.
func (m *MultiValueMap[V]) Count(field string) int {
	return len(m.values[field])
}

// Values returns the values of field in index order.
func (m *MultiValueMap[V]) Values(field string) []V {
	return append([]V(nil), m.values[field]...)
}

// Fields returns the bound field names in first-insertion order.
func (m *MultiValueMap[V]) Fields() []string {
	return append([]string(nil), m.order...)
}

// Parameters is a bound parameter set for one template.
type Parameters struct {
	Strings  MultiValueMap[string]
	Prefixes MultiValueMap[string]
	Terms    MultiValueMap[TermRef]
}

// Submission holds raw, unchecked request values keyed by field name.
type Submission struct {
	Strings  map[string][]string  `json:"strings,omitempty" yaml:"strings,omitempty"`
	Prefixes map[string][]string  `json:"prefixes,omitempty" yaml:"prefixes,omitempty"`
	Terms    map[string][]TermRef `json:"terms,omitempty" yaml:"terms,omitempty"`
}

// FieldNames returns every field name used in the submission, sorted.
func (s Submission) FieldNames() []string {
	seen := make(map[string]bool)
	for name := range s.Strings {
		seen[name] = true
	}
	for name := range s.Prefixes {
		seen[name] = true
	}
	for name := range s.Terms {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bind adds every submitted value to a fresh parameter set in submission
// order. It fails on the first unknown field or out of range index.
func Bind(t *templates.Template, s Submission) (*Parameters, error) {
	for _, name := range s.FieldNames() {
		if _, err := t.Field(name); err != nil {
			return nil, err
		}
	}

	p := &Parameters{}
	for i := range t.Fields {
		f := &t.Fields[i]
		for idx, v := range s.Strings[f.Name] {
			if err := p.Strings.Add(v, f, idx); err != nil {
				return nil, err
			}
		}
		pf := prefixField(f)
		for idx, v := range s.Prefixes[f.Name] {
			if err := p.Prefixes.Add(v, pf, idx); err != nil {
				return nil, err
			}
		}
		for idx, v := range s.Terms[f.Name] {
			if err := p.Terms.Add(v, f, idx); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// prefixField bounds prefix selections by the number of declared prefixes
// rather than by the value cardinality.
func prefixField(f *templates.Field) *templates.Field {
	pf := *f
	pf.Cardinality = templates.AtLeast(0)
	if len(f.Prefixes) > 0 {
		pf.Cardinality = templates.Between(0, len(f.Prefixes))
	}
	return &pf
}
