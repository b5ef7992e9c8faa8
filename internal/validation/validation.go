// Package validation checks a parameter submission against its template
// before any term is generated.
package validation

import (
	"fmt"
	"strings"

	"term-forge/internal/ontology"
	"term-forge/internal/params"
	"term-forge/internal/templates"
)

// Kind classifies a validation error.
type Kind string

const (
	MissingRequiredField Kind = "missing_required_field"
	CardinalityViolation Kind = "cardinality_violation"
	InvalidSourceGraph   Kind = "invalid_source_graph"
	InvalidPrefix        Kind = "invalid_prefix"
	UnknownField         Kind = "unknown_field"
)

// Error is one problem found in a submission.
type Error struct {
	Kind     Kind   `json:"kind"`
	Template string `json:"template"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: field %s: %s", e.Template, e.Field, e.Message)
}

// Validate returns every problem found in s, in template field order followed
// by unknown fields. An empty result means the submission is valid. Validate
// never stops at the first problem.
func Validate(t *templates.Template, s params.Submission) []Error {
	var errs []Error
	add := func(kind Kind, field, format string, args ...interface{}) {
		errs = append(errs, Error{
			Kind:     kind,
			Template: t.Name,
			Field:    field,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	for i := range t.Fields {
		f := &t.Fields[i]
		count := len(s.Strings[f.Name])
		if f.HasOntologies() {
			count = len(s.Terms[f.Name])
		}

		switch {
		case count == 0 && f.Required:
			add(MissingRequiredField, f.Name, "a value is required")
		case !f.Cardinality.Fits(count):
			add(CardinalityViolation, f.Name, "%d values do not fit cardinality %s", count, f.Cardinality)
		}

		for _, ref := range s.Terms[f.Name] {
			if !f.AllowsOntology(ref.Ontology) {
				add(InvalidSourceGraph, f.Name, "term %s is from %s, allowed: %s", ref.ID, ref.Ontology, allowedGraphs(f))
			}
		}
		for _, p := range s.Prefixes[f.Name] {
			if !f.AllowsPrefix(p) {
				add(InvalidPrefix, f.Name, "prefix %q is not allowed", p)
			}
		}
	}

	for _, name := range s.FieldNames() {
		if _, err := t.Field(name); err != nil {
			add(UnknownField, name, "template has no such field")
		}
	}
	return errs
}

// ValidateGraph checks the term values of s against the graph the template
// runs on. A term must come from the graph or one of its imports, exist in
// it, and lie inside one of the branches its field allows. Terms already
// rejected by Validate for their ontology name are skipped. g must only be
// read from inside a managed task.
func ValidateGraph(t *templates.Template, s params.Submission, g *ontology.Graph) []Error {
	d := g.Descriptor()
	var errs []Error
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, Error{
			Kind:     InvalidSourceGraph,
			Template: t.Name,
			Field:    field,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	for i := range t.Fields {
		f := &t.Fields[i]
		for _, ref := range s.Terms[f.Name] {
			if !f.AllowsOntology(ref.Ontology) {
				continue
			}
			switch {
			case !d.Provides(ref.Ontology):
				add(f.Name, "ontology %s is not part of graph %s", ref.Ontology, d.Name)
			case !g.InBranch(ref.ID, ""):
				add(f.Name, "term %s is not in graph %s", ref.ID, d.Name)
			case !inAllowedBranch(f, ref, g):
				add(f.Name, "term %s is outside the allowed branches: %s", ref.ID, allowedGraphs(f))
			}
		}
	}
	return errs
}

// inAllowedBranch reports whether ref lies under the root of any branch f
// allows for its ontology. A branch the graph has no root for matches
// nothing.
func inAllowedBranch(f *templates.Field, ref params.TermRef, g *ontology.Graph) bool {
	d := g.Descriptor()
	for _, o := range f.Ontologies {
		if o.Name != ref.Ontology {
			continue
		}
		if o.Branch == "" {
			return true
		}
		if root, ok := d.BranchRoot(o.Branch); ok && g.InBranch(ref.ID, root) {
			return true
		}
	}
	return false
}

func allowedGraphs(f *templates.Field) string {
	if len(f.Ontologies) == 0 {
		return "none"
	}
	names := make([]string, 0, len(f.Ontologies))
	for _, o := range f.Ontologies {
		names = append(names, o.String())
	}
	return strings.Join(names, ", ")
}
