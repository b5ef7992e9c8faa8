package reasoner

import (
	"fmt"
	"sort"
	"strings"

	"term-forge/internal/ontology"
)

// Restriction is an existential restriction "Property some Filler".
type Restriction struct {
	Property string `json:"property"`
	Filler   string `json:"filler"`
}

func (r Restriction) String() string {
	return r.Property + " some " + r.Filler
}

// Expression is a class expression in genus-differentia form.
type Expression struct {
	Genus       string        `json:"genus"`
	Differentia []Restriction `json:"differentia,omitempty"`
}

// Named returns the expression for a single named class.
func Named(id string) Expression {
	return Expression{Genus: id}
}

// IsNamed reports whether the expression is a plain class.
func (e Expression) IsNamed() bool {
	return len(e.Differentia) == 0
}

// String renders e as "GENUS and prop some FILLER and ...".
func (e Expression) String() string {
	parts := []string{e.Genus}
	for _, r := range e.Differentia {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, " and ")
}

// Equal compares genus and differentia, ignoring differentia order.
func (e Expression) Equal(other Expression) bool {
	if e.Genus != other.Genus || len(e.Differentia) != len(other.Differentia) {
		return false
	}
	a, b := e.sorted(), other.sorted()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (e Expression) sorted() []Restriction {
	rs := append([]Restriction(nil), e.Differentia...)
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Property != rs[j].Property {
			return rs[i].Property < rs[j].Property
		}
		return rs[i].Filler < rs[j].Filler
	})
	return rs
}

// IntersectionOf returns the intersection_of values that encode e.
func (e Expression) IntersectionOf() []string {
	out := []string{e.Genus}
	for _, r := range e.Differentia {
		out = append(out, r.Property+" "+r.Filler)
	}
	return out
}

// ParseExpression reads the String form, e.g.
// "GO:0065007 and regulates some GO:0040007".
func ParseExpression(s string) (Expression, error) {
	parts := strings.Split(strings.TrimSpace(s), " and ")
	genus := strings.TrimSpace(parts[0])
	if genus == "" || strings.Contains(genus, " ") {
		return Expression{}, fmt.Errorf("invalid class expression %q: missing genus", s)
	}
	e := Expression{Genus: genus}
	for _, p := range parts[1:] {
		prop, filler, ok := strings.Cut(strings.TrimSpace(p), " some ")
		if !ok || prop == "" || strings.TrimSpace(filler) == "" {
			return Expression{}, fmt.Errorf("invalid class expression %q: bad restriction %q", s, p)
		}
		e.Differentia = append(e.Differentia, Restriction{Property: prop, Filler: strings.TrimSpace(filler)})
	}
	return e, nil
}

// ExpressionOf returns the logical definition of a term, if it has one.
func ExpressionOf(t *ontology.Term) (Expression, bool) {
	var e Expression
	for _, r := range t.Intersection {
		if len(r.Properties) == 0 {
			if e.Genus != "" {
				return Expression{}, false
			}
			e.Genus = r.Target
			continue
		}
		e.Differentia = append(e.Differentia, Restriction{Property: strings.Join(r.Properties, " "), Filler: r.Target})
	}
	if e.Genus == "" {
		return Expression{}, false
	}
	return e, true
}
