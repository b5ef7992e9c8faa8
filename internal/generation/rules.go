package generation

import (
	"errors"
	"fmt"

	"term-forge/internal/ontology"
	"term-forge/internal/params"
	"term-forge/internal/reasoner"
	"term-forge/internal/templates"
)

// ErrUnknownRule is returned when a template names a rule that is not in the
// rule table.
var ErrUnknownRule = errors.New("unknown rule")

// Rule produces candidates for one input. Rules read the graph through the
// context and must not change it.
type Rule func(rc *RuleContext) ([]Output, error)

// Rules maps rule identifiers to rules.
type Rules map[string]Rule

// RuleContext gives a rule access to its parameters and the graph snapshot.
type RuleContext struct {
	Template   *templates.Template
	Parameters *params.Parameters
	Graph      *ontology.Graph

	reasoner func() reasoner.Reasoner
}

// Strings returns the plain string values of a field.
func (rc *RuleContext) Strings(field string) []string {
	return rc.Parameters.Strings.Values(field)
}

// String returns the first string value of a field, or "".
func (rc *RuleContext) String(field string) string {
	v, _ := rc.Parameters.Strings.Get(field, 0)
	return v
}

// Prefixes returns the functional prefixes selected on a field.
func (rc *RuleContext) Prefixes(field string) []string {
	return rc.Parameters.Prefixes.Values(field)
}

// Terms returns live views of the terms bound to a field.
func (rc *RuleContext) Terms(field string) ([]ontology.OntologyTerm, error) {
	refs := rc.Parameters.Terms.Values(field)
	out := make([]ontology.OntologyTerm, 0, len(refs))
	for _, ref := range refs {
		gt, err := ontology.NewGraphTerm(rc.Graph, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		out = append(out, gt)
	}
	return out, nil
}

// SingleTerm returns the one term bound to a field.
func (rc *RuleContext) SingleTerm(field string) (ontology.OntologyTerm, error) {
	terms, err := rc.Terms(field)
	if err != nil {
		return nil, err
	}
	if len(terms) != 1 {
		return nil, fmt.Errorf("field %s: expected exactly one term, got %d", field, len(terms))
	}
	return terms[0], nil
}

// Reasoner returns a reasoner bound to the snapshot, created on first use
// and shared by every rule of the same generation call.
func (rc *RuleContext) Reasoner() reasoner.Reasoner {
	return rc.reasoner()
}

// Parents returns the direct superclasses the reasoner infers for e, or the
// genus when it infers none.
func (rc *RuleContext) Parents(e reasoner.Expression) []string {
	parents := rc.Reasoner().SuperClassesOf(e, true)
	if len(parents) == 0 {
		return []string{e.Genus}
	}
	return parents
}
