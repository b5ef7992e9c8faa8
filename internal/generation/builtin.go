package generation

import (
	"fmt"
	"strings"

	"term-forge/internal/ontology"
	"term-forge/internal/reasoner"
)

// Classes and properties used by the built-in Gene Ontology rules.
const (
	BiologicalRegulation       = "GO:0065007"
	CatabolicProcess           = "GO:0009056"
	CellularResponseToChemical = "GO:0070887"

	PropRegulates           = "regulates"
	PropNegativelyRegulates = "negatively_regulates"
	PropPositivelyRegulates = "positively_regulates"
	PropHasInput            = "has_input"
	PropHasOutput           = "has_output"
	PropPartOf              = "part_of"

	// TermGenieXRef is added to the definition of every generated term.
	TermGenieXRef = "GOC:TermGenie"
)

// BuiltinRules returns the rule table shipped with the engine.
func BuiltinRules() Rules {
	return Rules{
		"regulation_of":                 regulationOf,
		"chemical_cellular_response_to": chemicalCellularResponseTo,
		"catabolism_to":                 catabolismTo,
		"part_of":                       partOf,
	}
}

type regulationVariant struct {
	prefix     string
	label      string
	property   string
	definition string
}

var regulationVariants = []regulationVariant{
	{"regulation", "regulation of %s", PropRegulates,
		"Any process that modulates the frequency, rate or extent of %s."},
	{"negative_regulation", "negative regulation of %s", PropNegativelyRegulates,
		"Any process that stops, prevents or reduces the frequency, rate or extent of %s."},
	{"positive_regulation", "positive regulation of %s", PropPositivelyRegulates,
		"Any process that activates or increases the frequency, rate or extent of %s."},
}

// regulationOf emits one candidate per selected prefix on "target", in a
// fixed order. Without a selected prefix only the plain regulation term is
// generated.
func regulationOf(rc *RuleContext) ([]Output, error) {
	target, err := rc.SingleTerm("target")
	if err != nil {
		return nil, err
	}
	selected := make(map[string]bool)
	for _, p := range rc.Prefixes("target") {
		selected[p] = true
	}
	if len(selected) == 0 {
		selected["regulation"] = true
	}
	for p := range selected {
		if !knownRegulationPrefix(p) {
			return nil, fmt.Errorf("unsupported prefix %q", p)
		}
	}

	var outs []Output
	for _, v := range regulationVariants {
		if !selected[v.prefix] {
			continue
		}
		expr := reasoner.Expression{
			Genus:       BiologicalRegulation,
			Differentia: []reasoner.Restriction{{Property: v.property, Filler: target.ID()}},
		}
		out := Output{
			Label:      fmt.Sprintf(v.label, target.Label()),
			Definition: fmt.Sprintf(v.definition, target.Label()),
			DefXRefs:   []string{TermGenieXRef},
			Expression: &expr,
			Parents:    rc.Parents(expr),
			Relations:  []ontology.Relation{{Target: target.ID(), Properties: []string{v.property}}},
		}
		for _, syn := range target.Synonyms() {
			out.Synonyms = append(out.Synonyms, fmt.Sprintf(v.label, syn))
		}
		outs = append(outs, out)
	}
	return outs, nil
}

func knownRegulationPrefix(p string) bool {
	for _, v := range regulationVariants {
		if v.prefix == p {
			return true
		}
	}
	return false
}

func chemicalCellularResponseTo(rc *RuleContext) ([]Output, error) {
	x, err := rc.SingleTerm("target")
	if err != nil {
		return nil, err
	}
	expr := reasoner.Expression{
		Genus:       CellularResponseToChemical,
		Differentia: []reasoner.Restriction{{Property: PropHasInput, Filler: x.ID()}},
	}
	return []Output{{
		Label: "cellular response to " + x.Label(),
		Definition: "Any process that results in a change in state or activity of a cell " +
			"(in terms of movement, secretion, enzyme production, gene expression, etc.) as a result of " +
			withArticle(x.Label()) + " stimulus.",
		DefXRefs:   []string{TermGenieXRef},
		Expression: &expr,
		Parents:    rc.Parents(expr),
		Relations:  []ontology.Relation{{Target: x.ID(), Properties: []string{PropHasInput}}},
	}}, nil
}

func catabolismTo(rc *RuleContext) ([]Output, error) {
	source, err := rc.SingleTerm("source")
	if err != nil {
		return nil, err
	}
	to, err := rc.SingleTerm("to")
	if err != nil {
		return nil, err
	}
	expr := reasoner.Expression{
		Genus: CatabolicProcess,
		Differentia: []reasoner.Restriction{
			{Property: PropHasInput, Filler: source.ID()},
			{Property: PropHasOutput, Filler: to.ID()},
		},
	}
	return []Output{{
		Label: source.Label() + " catabolic process to " + to.Label(),
		Definition: "The chemical reactions and pathways resulting in the breakdown of " +
			source.Label() + " to " + to.Label() + ".",
		DefXRefs:   []string{TermGenieXRef},
		Expression: &expr,
		Parents:    rc.Parents(expr),
		Relations: []ontology.Relation{
			{Target: source.ID(), Properties: []string{PropHasInput}},
			{Target: to.ID(), Properties: []string{PropHasOutput}},
		},
	}}, nil
}

// partOf generates "<part> involved in <whole>" terms.
func partOf(rc *RuleContext) ([]Output, error) {
	part, err := rc.SingleTerm("part")
	if err != nil {
		return nil, err
	}
	whole, err := rc.SingleTerm("whole")
	if err != nil {
		return nil, err
	}
	expr := reasoner.Expression{
		Genus:       part.ID(),
		Differentia: []reasoner.Restriction{{Property: PropPartOf, Filler: whole.ID()}},
	}
	return []Output{{
		Label:      part.Label() + " involved in " + whole.Label(),
		Definition: "A" + withArticle(part.Label())[1:] + " that is part of " + whole.Label() + ".",
		DefXRefs:   []string{TermGenieXRef},
		Expression: &expr,
		Parents:    rc.Parents(expr),
		Relations:  []ontology.Relation{{Target: whole.ID(), Properties: []string{PropPartOf}}},
	}}, nil
}

func withArticle(s string) string {
	if s != "" && strings.ContainsRune("aeiouAEIOU", rune(s[0])) {
		return "an " + s
	}
	return "a " + s
}
