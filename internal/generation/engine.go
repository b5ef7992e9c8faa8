package generation

import (
	"context"
	"fmt"
	"log/slog"

	"term-forge/internal/ontology"
	"term-forge/internal/reasoner"
	"term-forge/internal/taskmanager"
)

// Runner runs a task with exclusive access to a graph.
type Runner interface {
	RunManagedTask(ctx context.Context, task taskmanager.Task) error
}

// Engine evaluates template rules.
type Engine struct {
	rules   Rules
	factory reasoner.Factory
	logger  *slog.Logger
}

// NewEngine creates an engine. A nil factory uses the structural reasoner.
func NewEngine(rules Rules, factory reasoner.Factory, logger *slog.Logger) *Engine {
	if factory == nil {
		factory = reasoner.StructuralFactory{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{rules: rules, factory: factory, logger: logger}
}

// GenerateTerms evaluates every input inside a single managed task, so all
// inputs see the same graph. A failing input is reported in Result.Errors
// and does not affect the others. The returned error is only set when the
// task itself could not run.
func (e *Engine) GenerateTerms(ctx context.Context, runner Runner, inputs []Input) (*Result, error) {
	result := &Result{}
	err := runner.RunManagedTask(ctx, func(g *ontology.Graph) error {
		var r reasoner.Reasoner
		lazy := func() reasoner.Reasoner {
			if r == nil {
				r = e.factory.CreateReasoner(g)
			}
			return r
		}

		for i, in := range inputs {
			outs, err := e.generate(g, lazy, i, in)
			if err != nil {
				genErr := &Error{Input: i, Template: templateName(in), Err: err}
				e.logger.Warn("term generation failed", "template", genErr.Template, "input", i, "error", err)
				result.Errors = append(result.Errors, genErr)
				continue
			}
			result.Outputs = append(result.Outputs, outs...)
		}
		if len(result.Outputs) > 0 {
			checkConsistency(g, lazy(), result.Outputs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func templateName(in Input) string {
	if in.Template == nil {
		return ""
	}
	return in.Template.Name
}

func (e *Engine) generate(g *ontology.Graph, lazy func() reasoner.Reasoner, idx int, in Input) (outs []Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			outs, err = nil, fmt.Errorf("rule panicked: %v", r)
		}
	}()

	if in.Template == nil || in.Parameters == nil {
		return nil, fmt.Errorf("incomplete input")
	}
	rc := &RuleContext{Template: in.Template, Parameters: in.Parameters, Graph: g, reasoner: lazy}
	for _, name := range in.Template.Rules {
		rule, ok := e.rules[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRule, name)
		}
		generated, err := rule(rc)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		outs = append(outs, generated...)
	}
	applyOverrides(rc, idx, outs)
	return outs, nil
}

// applyOverrides fills in bookkeeping fields and the optional free-text
// fields templates commonly carry.
func applyOverrides(rc *RuleContext, idx int, outs []Output) {
	xrefs := rc.Strings("DefX_Ref")
	comment := rc.String("Comment")
	for i := range outs {
		o := &outs[i]
		o.Input = idx
		o.Template = rc.Template.Name
		o.ID = ""
		if o.Namespace == "" {
			o.Namespace = rc.Template.Namespace
		}
		o.DefXRefs = appendUnique(o.DefXRefs, xrefs...)
		if o.Comment == "" {
			o.Comment = comment
		}
	}
	if len(outs) == 1 {
		if name := rc.String("Name"); name != "" {
			outs[0].Label = name
		}
		if def := rc.String("Definition"); def != "" {
			outs[0].Definition = def
		}
	}
}

func appendUnique(dst []string, values ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range values {
		if v != "" && !seen[v] {
			seen[v] = true
			dst = append(dst, v)
		}
	}
	return dst
}

// checkConsistency attaches warnings to candidates that duplicate existing
// classes or each other, or that were generated from an inconsistent graph.
func checkConsistency(g *ontology.Graph, r reasoner.Reasoner, outs []Output) {
	consistency := r.IsConsistent()
	labels := make(map[string]int)
	for i := range outs {
		o := &outs[i]
		if !consistency.Consistent {
			o.Warnings = append(o.Warnings, ConsistencyWarning{
				Kind:    WarnInconsistent,
				Message: fmt.Sprintf("ontology %s is inconsistent: %s", g.Name(), consistency.Problems[0]),
			})
		}
		if o.Expression != nil {
			for _, id := range r.EquivalentClassesOf(*o.Expression) {
				o.Warnings = append(o.Warnings, ConsistencyWarning{
					Kind:    WarnEquivalentClass,
					TermID:  id,
					Message: fmt.Sprintf("logical definition is equivalent to existing class %s", describe(g, id)),
				})
			}
		}
		if id, ok := g.FindByLabel(o.Label); ok {
			o.Warnings = append(o.Warnings, ConsistencyWarning{
				Kind:    WarnDuplicateLabel,
				TermID:  id,
				Message: fmt.Sprintf("label %q is already used by %s", o.Label, id),
			})
		}
		if first, dup := labels[o.Label]; dup {
			o.Warnings = append(o.Warnings, ConsistencyWarning{
				Kind:    WarnDuplicateLabel,
				Message: fmt.Sprintf("label %q is also generated by input %d", o.Label, outs[first].Input),
			})
		} else {
			labels[o.Label] = i
		}
	}
}

func describe(g *ontology.Graph, id string) string {
	if t, ok := g.Term(id); ok && t.Label != "" {
		return fmt.Sprintf("%s (%s)", id, t.Label)
	}
	return id
}
