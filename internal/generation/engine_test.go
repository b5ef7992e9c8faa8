package generation_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"term-forge/internal/generation"
	"term-forge/internal/obo"
	"term-forge/internal/ontology"
	"term-forge/internal/ontology/ontologytest"
	"term-forge/internal/params"
	"term-forge/internal/taskmanager"
	"term-forge/internal/templates"
)

func newManager(t *testing.T) *taskmanager.Manager {
	t.Helper()
	src := ontology.SourceFunc(func(context.Context, ontology.Descriptor) (*ontology.Graph, error) {
		return ontologytest.Graph(t), nil
	})
	return taskmanager.New(ontologytest.Descriptor(), src, taskmanager.Options{})
}

func termField(name string, ontologies ...string) templates.Field {
	f := templates.Field{Name: name, Required: true, Cardinality: templates.Exactly(1)}
	for _, o := range ontologies {
		f.Ontologies = append(f.Ontologies, templates.OntologyRef{Name: o})
	}
	return f
}

func optional(name string) templates.Field {
	return templates.Field{Name: name, Cardinality: templates.AtLeast(0)}
}

func growthTemplate() *templates.Template {
	target := termField("target", "GO")
	target.Prefixes = []string{"regulation", "negative_regulation", "positive_regulation"}
	return &templates.Template{
		Name:      "X_growth",
		Namespace: "biological_process",
		Rules:     []string{"regulation_of"},
		Ontology:  templates.OntologyRef{Name: "GO"},
		Fields: []templates.Field{
			target, optional("Name"), optional("Definition"), optional("DefX_Ref"), optional("Comment"),
		},
	}
}

func responseTemplate() *templates.Template {
	return &templates.Template{
		Name:      "chemical_cellular_response_to",
		Namespace: "biological_process",
		Rules:     []string{"chemical_cellular_response_to"},
		Ontology:  templates.OntologyRef{Name: "GO"},
		External:  []templates.OntologyRef{{Name: "CHEBI"}},
		Fields:    []templates.Field{termField("target", "CHEBI")},
	}
}

func catabolismTemplate() *templates.Template {
	return &templates.Template{
		Name:      "catabolism_to",
		Namespace: "biological_process",
		Rules:     []string{"catabolism_to"},
		Ontology:  templates.OntologyRef{Name: "GO"},
		Fields:    []templates.Field{termField("source", "CHEBI"), termField("to", "CHEBI")},
	}
}

func input(t *testing.T, tmpl *templates.Template, s params.Submission) generation.Input {
	t.Helper()
	p, err := params.Bind(tmpl, s)
	require.NoError(t, err)
	return generation.Input{Template: tmpl, Parameters: p}
}

func terms(field string, refs ...params.TermRef) map[string][]params.TermRef {
	return map[string][]params.TermRef{field: refs}
}

func goTerm(id string) params.TermRef    { return params.TermRef{Ontology: "GO", ID: id} }
func chebiTerm(id string) params.TermRef { return params.TermRef{Ontology: "CHEBI", ID: id} }

func generate(t *testing.T, m *taskmanager.Manager, inputs ...generation.Input) *generation.Result {
	t.Helper()
	engine := generation.NewEngine(generation.BuiltinRules(), nil, nil)
	result, err := engine.GenerateTerms(context.Background(), m, inputs)
	require.NoError(t, err)
	return result
}

func TestGenerateTerms_RegulationOfGrowth(t *testing.T) {
	m := newManager(t)
	result := generate(t, m, input(t, growthTemplate(), params.Submission{
		Terms: terms("target", goTerm("GO:0016049")),
	}))

	require.Empty(t, result.Errors)
	require.Len(t, result.Outputs, 1)
	out := result.Outputs[0]
	assert.Equal(t, "regulation of cell growth", out.Label)
	assert.Equal(t, "Any process that modulates the frequency, rate or extent of cell growth.", out.Definition)
	assert.Equal(t, "GO:0065007 and regulates some GO:0016049", out.LogicalDefinition())
	assert.Equal(t, []string{"GO:0040008"}, out.Parents)
	assert.Equal(t, []ontology.Relation{{Target: "GO:0016049", Properties: []string{"regulates"}}}, out.Relations)
	assert.Equal(t, []string{generation.TermGenieXRef}, out.DefXRefs)
	assert.Equal(t, "biological_process", out.Namespace)
	assert.Equal(t, "X_growth", out.Template)
	assert.Empty(t, out.ID)
	assert.Empty(t, out.Warnings)
	assert.Contains(t, out.Message(), `pending "regulation of cell growth"`)
}

func TestGenerateTerms_PrefixesSelectVariants(t *testing.T) {
	result := generate(t, newManager(t), input(t, growthTemplate(), params.Submission{
		Terms:    terms("target", goTerm("GO:0016049")),
		Prefixes: map[string][]string{"target": {"positive_regulation", "negative_regulation"}},
	}))

	require.Len(t, result.Outputs, 2)
	assert.Equal(t, "negative regulation of cell growth", result.Outputs[0].Label)
	assert.Equal(t, "positive regulation of cell growth", result.Outputs[1].Label)
	assert.Equal(t, "GO:0065007 and positively_regulates some GO:0016049", result.Outputs[1].LogicalDefinition())
	assert.Equal(t, 0, result.Outputs[1].Input)
}

func TestGenerateTerms_WarnsAboutExistingClass(t *testing.T) {
	result := generate(t, newManager(t), input(t, growthTemplate(), params.Submission{
		Terms: terms("target", goTerm("GO:0040007")),
	}))

	require.Len(t, result.Outputs, 1)
	warnings := result.Outputs[0].Warnings
	require.Len(t, warnings, 2)
	assert.Equal(t, generation.WarnEquivalentClass, warnings[0].Kind)
	assert.Equal(t, "GO:0040008", warnings[0].TermID)
	assert.Equal(t, generation.WarnDuplicateLabel, warnings[1].Kind)
	assert.Contains(t, result.Outputs[0].Message(), "warning: logical definition is equivalent to existing class GO:0040008 (regulation of growth)")
}

func TestGenerateTerms_ChemicalRules(t *testing.T) {
	result := generate(t, newManager(t),
		input(t, responseTemplate(), params.Submission{Terms: terms("target", chebiTerm("CHEBI:17234"))}),
		input(t, catabolismTemplate(), params.Submission{Terms: map[string][]params.TermRef{
			"source": {chebiTerm("CHEBI:17234")},
			"to":     {chebiTerm("CHEBI:16236")},
		}}),
	)

	require.Empty(t, result.Errors)
	require.Len(t, result.Outputs, 2)

	response := result.Outputs[0]
	assert.Equal(t, "cellular response to glucose", response.Label)
	assert.Equal(t, "Any process that results in a change in state or activity of a cell (in terms of movement, "+
		"secretion, enzyme production, gene expression, etc.) as a result of a glucose stimulus.", response.Definition)
	assert.Equal(t, "GO:0070887 and has_input some CHEBI:17234", response.LogicalDefinition())
	assert.Equal(t, []string{"GO:0070887"}, response.Parents)

	catabolism := result.Outputs[1]
	assert.Equal(t, "glucose catabolic process to ethanol", catabolism.Label)
	assert.Equal(t, "GO:0009056 and has_input some CHEBI:17234 and has_output some CHEBI:16236", catabolism.LogicalDefinition())
	assert.Equal(t, 1, catabolism.Input)
}

func TestGenerateTerms_PartOf(t *testing.T) {
	tmpl := &templates.Template{
		Name:     "involved_in",
		Rules:    []string{"part_of"},
		Ontology: templates.OntologyRef{Name: "GO"},
		Fields:   []templates.Field{termField("part", "GO"), termField("whole", "GO")},
	}
	result := generate(t, newManager(t), input(t, tmpl, params.Submission{Terms: map[string][]params.TermRef{
		"part":  {goTerm("GO:0009056")},
		"whole": {goTerm("GO:0016049")},
	}}))

	require.Len(t, result.Outputs, 1)
	assert.Equal(t, "catabolic process involved in cell growth", result.Outputs[0].Label)
	assert.Equal(t, "A catabolic process that is part of cell growth.", result.Outputs[0].Definition)
	assert.Equal(t, []string{"GO:0009056"}, result.Outputs[0].Parents)
}

func TestGenerateTerms_MalformedInputIsIsolated(t *testing.T) {
	unknownRule := growthTemplate()
	unknownRule.Name = "broken_template"
	unknownRule.Rules = []string{"no_such_rule"}

	result := generate(t, newManager(t),
		input(t, growthTemplate(), params.Submission{Terms: terms("target", goTerm("GO:0016049"))}),
		input(t, unknownRule, params.Submission{Terms: terms("target", goTerm("GO:0016049"))}),
		input(t, responseTemplate(), params.Submission{Terms: terms("target", chebiTerm("CHEBI:15377"))}),
	)

	require.Len(t, result.Outputs, 2)
	assert.Equal(t, "regulation of cell growth", result.Outputs[0].Label)
	assert.Equal(t, "cellular response to water", result.Outputs[1].Label)
	assert.Equal(t, 2, result.Outputs[1].Input)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "broken_template", result.Errors[0].Template)
	assert.Equal(t, 1, result.Errors[0].Input)
	assert.ErrorIs(t, result.Errors[0], generation.ErrUnknownRule)
}

func TestGenerateTerms_UnknownTermAndPanic(t *testing.T) {
	m := newManager(t)
	rules := generation.BuiltinRules()
	rules["explode"] = func(*generation.RuleContext) ([]generation.Output, error) {
		panic("rule bug")
	}
	exploding := growthTemplate()
	exploding.Name = "exploding"
	exploding.Rules = []string{"explode"}

	engine := generation.NewEngine(rules, nil, nil)
	result, err := engine.GenerateTerms(context.Background(), m, []generation.Input{
		input(t, growthTemplate(), params.Submission{Terms: terms("target", goTerm("GO:9999999"))}),
		input(t, exploding, params.Submission{Terms: terms("target", goTerm("GO:0016049"))}),
		{Template: growthTemplate()},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Outputs)
	require.Len(t, result.Errors, 3)
	assert.ErrorIs(t, result.Errors[0], ontology.ErrUnknownTerm)
	assert.Contains(t, result.Errors[1].Error(), "rule panicked: rule bug")
	assert.Equal(t, "exploding", result.Errors[1].Template)
	assert.Equal(t, taskmanager.StateReady, m.State())
}

func TestGenerateTerms_Overrides(t *testing.T) {
	result := generate(t, newManager(t), input(t, growthTemplate(), params.Submission{
		Terms: terms("target", goTerm("GO:0016049")),
		Strings: map[string][]string{
			"Name":       {"cell growth regulation"},
			"Definition": {"Custom definition."},
			"DefX_Ref":   {"PMID:123", generation.TermGenieXRef},
			"Comment":    {"requested by curator"},
		},
	}))

	require.Len(t, result.Outputs, 1)
	out := result.Outputs[0]
	assert.Equal(t, "cell growth regulation", out.Label)
	assert.Equal(t, "Custom definition.", out.Definition)
	assert.Equal(t, []string{generation.TermGenieXRef, "PMID:123"}, out.DefXRefs)
	assert.Equal(t, "requested by curator", out.Comment)
}

func TestGenerateTerms_DuplicateWithinBatch(t *testing.T) {
	in := input(t, growthTemplate(), params.Submission{Terms: terms("target", goTerm("GO:0016049"))})
	result := generate(t, newManager(t), in, in)

	require.Len(t, result.Outputs, 2)
	assert.Empty(t, result.Outputs[0].Warnings)
	require.Len(t, result.Outputs[1].Warnings, 1)
	assert.Equal(t, "label \"regulation of cell growth\" is also generated by input 0", result.Outputs[1].Warnings[0].Message)
}

func TestGenerateTerms_ReadsLiveGraph(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.RunMutatingTask(context.Background(), func(g *ontology.Graph) error {
		f, _ := g.Frame("GO:0016049")
		f.Set(obo.TagName, "cell expansion")
		return g.Apply([]*obo.Frame{f})
	}))

	result := generate(t, m, input(t, growthTemplate(), params.Submission{Terms: terms("target", goTerm("GO:0016049"))}))
	require.Len(t, result.Outputs, 1)
	assert.Equal(t, "regulation of cell expansion", result.Outputs[0].Label)
}

func TestGenerateTerms_Deterministic(t *testing.T) {
	inputs := func() []generation.Input {
		return []generation.Input{
			input(t, growthTemplate(), params.Submission{
				Terms:    terms("target", goTerm("GO:0016049")),
				Prefixes: map[string][]string{"target": {"regulation", "negative_regulation", "positive_regulation"}},
			}),
			input(t, responseTemplate(), params.Submission{Terms: terms("target", chebiTerm("CHEBI:16236"))}),
		}
	}
	first := generate(t, newManager(t), inputs()...)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, generate(t, newManager(t), inputs()...))
	}
}

func TestGenerateTerms_TaskFailure(t *testing.T) {
	boom := errors.New("no such file")
	m := taskmanager.New(ontologytest.Descriptor(), ontology.SourceFunc(
		func(context.Context, ontology.Descriptor) (*ontology.Graph, error) { return nil, boom },
	), taskmanager.Options{})

	engine := generation.NewEngine(generation.BuiltinRules(), nil, nil)
	_, err := engine.GenerateTerms(context.Background(), m, nil)
	assert.ErrorIs(t, err, taskmanager.ErrOntologyFailed)
	assert.ErrorIs(t, err, boom)
}

func TestError_JSONCarriesMessage(t *testing.T) {
	err := &generation.Error{
		Input:    2,
		Template: "regulation_by",
		Err:      fmt.Errorf("rule regulation_of: %w", generation.ErrUnknownRule),
	}
	data, marshalErr := json.Marshal([]*generation.Error{err})
	require.NoError(t, marshalErr)
	assert.JSONEq(t, `[{"input": 2, "template": "regulation_by", "message": "rule regulation_of: unknown rule"}]`, string(data))

	data, marshalErr = json.Marshal(&generation.Error{Template: "broken"})
	require.NoError(t, marshalErr)
	assert.JSONEq(t, `{"input": 0, "template": "broken", "message": ""}`, string(data))
}
