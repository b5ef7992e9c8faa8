// Package generation turns templates and bound parameters into candidate
// terms, evaluated against one graph snapshot.
package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"term-forge/internal/ontology"
	"term-forge/internal/params"
	"term-forge/internal/reasoner"
	"term-forge/internal/templates"
)

// Input is one template plus its bound parameters.
type Input struct {
	Template   *templates.Template
	Parameters *params.Parameters
}

// Output is a generated term candidate. ID is empty until the candidate is
// committed and receives a permanent identifier.
type Output struct {
	// Input is the index of the input this candidate was generated from.
	Input      int                  `json:"input"`
	Template   string               `json:"template"`
	ID         string               `json:"id,omitempty"`
	Label      string               `json:"label"`
	Namespace  string               `json:"namespace,omitempty"`
	Definition string               `json:"definition"`
	DefXRefs   []string             `json:"def_xrefs,omitempty"`
	Expression *reasoner.Expression `json:"expression,omitempty"`
	Synonyms   []string             `json:"synonyms,omitempty"`
	Comment    string               `json:"comment,omitempty"`
	Parents    []string             `json:"parents,omitempty"`
	Relations  []ontology.Relation  `json:"relations,omitempty"`
	Warnings   []ConsistencyWarning `json:"warnings,omitempty"`
}

// LogicalDefinition renders the candidate's class expression.
func (o *Output) LogicalDefinition() string {
	if o.Expression == nil {
		return ""
	}
	return o.Expression.String()
}

// Message describes the candidate for a reviewer.
func (o *Output) Message() string {
	var b strings.Builder
	id := o.ID
	if id == "" {
		id = "pending"
	}
	fmt.Fprintf(&b, "%s %q (template %s)", id, o.Label, o.Template)
	if o.Definition != "" {
		fmt.Fprintf(&b, "\n  def: %s", o.Definition)
	}
	if ld := o.LogicalDefinition(); ld != "" {
		fmt.Fprintf(&b, "\n  logical definition: %s", ld)
	}
	if len(o.Parents) > 0 {
		fmt.Fprintf(&b, "\n  is_a: %s", strings.Join(o.Parents, ", "))
	}
	for _, w := range o.Warnings {
		fmt.Fprintf(&b, "\n  warning: %s", w.Message)
	}
	return b.String()
}

// Error reports a failure to generate terms for one input.
type Error struct {
	Input    int    `json:"input"`
	Template string `json:"template"`
	Err      error  `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("template %s (input %d): %v", e.Template, e.Input, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON includes the cause as "message".
func (e *Error) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Input    int    `json:"input"`
		Template string `json:"template"`
		Message  string `json:"message"`
	}{e.Input, e.Template, msg})
}

// WarningKind classifies consistency warnings.
type WarningKind string

const (
	// WarnEquivalentClass: the logical definition matches an existing class.
	WarnEquivalentClass WarningKind = "equivalent_class"
	// WarnDuplicateLabel: the label is already used by an existing class.
	WarnDuplicateLabel WarningKind = "duplicate_label"
	// WarnInconsistent: the graph the candidate was checked against is
	// inconsistent.
	WarnInconsistent WarningKind = "inconsistent"
)

// ConsistencyWarning is attached to a candidate the reasoner has doubts
// about. The candidate is kept; the caller decides what to do with it.
type ConsistencyWarning struct {
	Kind    WarningKind `json:"kind"`
	TermID  string      `json:"term_id,omitempty"`
	Message string      `json:"message"`
}

// Result is the outcome of one generation call.
type Result struct {
	Outputs []Output
	Errors  []*Error
}
