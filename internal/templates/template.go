// Package templates describes term generation templates: a named rule plus
// the ordered schema of fields a caller fills in to generate new terms.
package templates

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownField is returned when a template has no field of that name.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidTemplate is returned for structurally invalid templates.
	ErrInvalidTemplate = errors.New("invalid template")
)

// Unbounded is the maximum of a cardinality without an upper limit.
const Unbounded = -1

// Cardinality is the permitted number of values for a field.
type Cardinality struct {
	Min int
	Max int
}

// Exactly returns a cardinality of n..n.
func Exactly(n int) Cardinality { return Cardinality{Min: n, Max: n} }

// Between returns a cardinality of min..max.
func Between(min, max int) Cardinality { return Cardinality{Min: min, Max: max} }

// AtLeast returns a cardinality of min..N.
func AtLeast(min int) Cardinality { return Cardinality{Min: min, Max: Unbounded} }

// IsUnbounded reports whether the cardinality has no upper limit.
func (c Cardinality) IsUnbounded() bool {
	return c.Max == Unbounded
}

// Fits reports whether count values satisfy the cardinality.
func (c Cardinality) Fits(count int) bool {
	return count >= c.Min && (c.IsUnbounded() || count <= c.Max)
}

// Validate checks 0 <= min <= max (or max unbounded).
func (c Cardinality) Validate() error {
	if c.Min < 0 {
		return fmt.Errorf("%w: negative minimum %d", ErrInvalidTemplate, c.Min)
	}
	if !c.IsUnbounded() && (c.Max < c.Min || c.Max == 0) {
		return fmt.Errorf("%w: cardinality %s", ErrInvalidTemplate, c)
	}
	return nil
}

// String renders the cardinality as "min..max", with N for unbounded.
func (c Cardinality) String() string {
	max := "N"
	if !c.IsUnbounded() {
		max = strconv.Itoa(c.Max)
	}
	return strconv.Itoa(c.Min) + ".." + max
}

// ParseCardinality reads the "min..max" form produced by String.
func ParseCardinality(s string) (Cardinality, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "..")
	if !ok {
		return Cardinality{}, fmt.Errorf("%w: cardinality %q is not min..max", ErrInvalidTemplate, s)
	}
	min, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return Cardinality{}, fmt.Errorf("%w: cardinality %q: %v", ErrInvalidTemplate, s, err)
	}
	hi = strings.TrimSpace(hi)
	if hi == "N" || hi == "n" || hi == "*" {
		return AtLeast(min), nil
	}
	max, err := strconv.Atoi(hi)
	if err != nil {
		return Cardinality{}, fmt.Errorf("%w: cardinality %q: %v", ErrInvalidTemplate, s, err)
	}
	return Between(min, max), nil
}

// OntologyRef names an ontology, optionally narrowed to a branch.
type OntologyRef struct {
	Name   string `yaml:"name"`
	Branch string `yaml:"branch,omitempty"`
}

func (r OntologyRef) String() string {
	if r.Branch == "" {
		return r.Name
	}
	return r.Name + "/" + r.Branch
}

// Field is one input slot of a template.
type Field struct {
	Name        string        `yaml:"name"`
	Required    bool          `yaml:"required,omitempty"`
	Cardinality Cardinality   `yaml:"cardinality"`
	Prefixes    []string      `yaml:"prefixes,omitempty"`
	Ontologies  []OntologyRef `yaml:"ontologies,omitempty"`
}

// HasOntologies reports whether the field takes ontology term values.
func (f *Field) HasOntologies() bool {
	return len(f.Ontologies) > 0
}

// AllowsOntology reports whether terms from the named ontology are valid
// values for the field. Branch restrictions need the graph and are checked
// by the validation package.
func (f *Field) AllowsOntology(name string) bool {
	for _, o := range f.Ontologies {
		if o.Name == name {
			return true
		}
	}
	return false
}

// AllowsPrefix reports whether p is one of the field's functional prefixes.
func (f *Field) AllowsPrefix(p string) bool {
	for _, allowed := range f.Prefixes {
		if allowed == p {
			return true
		}
	}
	return false
}

// Template is an immutable generation recipe.
type Template struct {
	Name        string        `yaml:"name"`
	DisplayName string        `yaml:"display_name,omitempty"`
	Description string        `yaml:"description,omitempty"`
	Hint        string        `yaml:"hint,omitempty"`
	Namespace   string        `yaml:"namespace,omitempty"`
	Rules       []string      `yaml:"rules"`
	Ontology    OntologyRef   `yaml:"ontology"`
	External    []OntologyRef `yaml:"external,omitempty"`
	Requires    []string      `yaml:"requires,omitempty"`
	Fields      []Field       `yaml:"fields"`
}

// Field looks up a field by name.
func (t *Template) Field(name string) (*Field, error) {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q in template %s", ErrUnknownField, name, t.Name)
}

// Validate checks the structural invariants of a template.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidTemplate)
	}
	if len(t.Rules) == 0 {
		return fmt.Errorf("%w: template %s has no rule", ErrInvalidTemplate, t.Name)
	}
	if t.Ontology.Name == "" {
		return fmt.Errorf("%w: template %s has no ontology", ErrInvalidTemplate, t.Name)
	}
	if len(t.Fields) == 0 {
		return fmt.Errorf("%w: template %s has no fields", ErrInvalidTemplate, t.Name)
	}
	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: template %s has an unnamed field", ErrInvalidTemplate, t.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: template %s repeats field %s", ErrInvalidTemplate, t.Name, f.Name)
		}
		seen[f.Name] = true
		if err := f.Cardinality.Validate(); err != nil {
			return fmt.Errorf("template %s field %s: %w", t.Name, f.Name, err)
		}
	}
	return nil
}

// RequiredFields returns the names of required fields in template order.
func (t *Template) RequiredFields() []string {
	var out []string
	for _, f := range t.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}
