// Package reasoner answers consistency and subsumption questions about one
// graph snapshot.
//
// A Reasoner is bound to the graph it was created from and indexes it at
// creation time. It must only be used inside the managed task that holds that
// graph, and must not be kept once the task returns.
package reasoner

import (
	"fmt"
	"sort"
	"strings"

	"term-forge/internal/ontology"
)

// Consistency is the result of a consistency check. Inconsistency is data,
// not an error.
type Consistency struct {
	Consistent    bool     `json:"consistent"`
	Unsatisfiable []string `json:"unsatisfiable,omitempty"`
	Problems      []string `json:"problems,omitempty"`
}

// Reasoner is a reasoning session over one graph snapshot. All results are
// sorted by id.
type Reasoner interface {
	IsConsistent() Consistency
	SubClassesOf(e Expression, direct bool) []string
	SuperClassesOf(e Expression, direct bool) []string
	EquivalentClassesOf(e Expression) []string
}

// Factory creates reasoners. Implementations must not reuse a reasoner across
// graph instances.
type Factory interface {
	CreateReasoner(g *ontology.Graph) Reasoner
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(g *ontology.Graph) Reasoner

// CreateReasoner implements Factory.
func (f FactoryFunc) CreateReasoner(g *ontology.Graph) Reasoner {
	return f(g)
}

// StructuralFactory creates reasoners that work on told subsumption: is_a
// edges, logical definition genera, relationship and intersection
// restrictions, and disjointness axioms.
type StructuralFactory struct{}

// CreateReasoner implements Factory.
func (StructuralFactory) CreateReasoner(g *ontology.Graph) Reasoner {
	return newStructural(g)
}

type structural struct {
	g         *ontology.Graph
	ids       []string
	subs      map[string][]string
	supers    map[string][]string
	ancestors map[string]map[string]bool
}

func newStructural(g *ontology.Graph) *structural {
	s := &structural{
		g:         g,
		subs:      make(map[string][]string),
		supers:    make(map[string][]string),
		ancestors: make(map[string]map[string]bool),
	}
	for _, t := range g.Terms() {
		s.ids = append(s.ids, t.ID)
		sups := g.SuperClasses(t.ID)
		s.supers[t.ID] = sups
		for _, p := range sups {
			s.subs[p] = append(s.subs[p], t.ID)
		}
	}
	return s
}

// ancestorSet returns id and all its transitive superclasses.
func (s *structural) ancestorSet(id string) map[string]bool {
	if set, ok := s.ancestors[id]; ok {
		return set
	}
	set := map[string]bool{id: true}
	queue := append([]string(nil), s.supers[id]...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if set[current] {
			continue
		}
		set[current] = true
		queue = append(queue, s.supers[current]...)
	}
	s.ancestors[id] = set
	return set
}

func (s *structural) isSub(id, ancestor string) bool {
	return s.ancestorSet(id)[ancestor]
}

func (s *structural) descendants(id string) map[string]bool {
	set := make(map[string]bool)
	queue := append([]string(nil), s.subs[id]...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if set[current] || current == id {
			continue
		}
		set[current] = true
		queue = append(queue, s.subs[current]...)
	}
	return set
}

// restrictions returns the told existential restrictions of a term.
func (s *structural) restrictions(id string) []Restriction {
	t, ok := s.g.Term(id)
	if !ok {
		return nil
	}
	var out []Restriction
	for _, rels := range [][]ontology.Relation{t.Relations, t.Intersection} {
		for _, r := range rels {
			if len(r.Properties) == 0 {
				continue
			}
			out = append(out, Restriction{Property: strings.Join(r.Properties, " "), Filler: r.Target})
		}
	}
	return out
}

// satisfies reports whether id, directly or by inheritance, has a
// restriction at least as specific as r.
func (s *structural) satisfies(id string, r Restriction) bool {
	for a := range s.ancestorSet(id) {
		for _, told := range s.restrictions(a) {
			if told.Property == r.Property && s.isSub(told.Filler, r.Filler) {
				return true
			}
		}
	}
	return false
}

func (s *structural) matches(id string, e Expression) bool {
	if !s.isSub(id, e.Genus) {
		return false
	}
	for _, r := range e.Differentia {
		if !s.satisfies(id, r) {
			return false
		}
	}
	return true
}

// entails reports whether every instance of e is an instance of def.
func (s *structural) entails(e, def Expression) bool {
	if !s.isSub(e.Genus, def.Genus) {
		return false
	}
	for _, want := range def.Differentia {
		found := false
		for _, have := range e.Differentia {
			if have.Property == want.Property && s.isSub(have.Filler, want.Filler) {
				found = true
				break
			}
		}
		if !found && !s.satisfies(e.Genus, want) {
			return false
		}
	}
	return true
}

func (s *structural) EquivalentClassesOf(e Expression) []string {
	if e.IsNamed() {
		if _, ok := s.g.Term(e.Genus); ok {
			return []string{e.Genus}
		}
		return nil
	}
	var out []string
	for _, id := range s.ids {
		t, _ := s.g.Term(id)
		if t.Obsolete {
			continue
		}
		if def, ok := ExpressionOf(t); ok && def.Equal(e) {
			out = append(out, id)
		}
	}
	return out
}

func (s *structural) SubClassesOf(e Expression, direct bool) []string {
	equivalent := toSet(s.EquivalentClassesOf(e))
	found := make(map[string]bool)
	for id := range s.descendants(e.Genus) {
		if equivalent[id] || !s.matches(id, e) {
			continue
		}
		found[id] = true
	}
	if direct {
		found = s.minimalSubs(found)
	}
	return sortedKeys(found)
}

func (s *structural) SuperClassesOf(e Expression, direct bool) []string {
	equivalent := toSet(s.EquivalentClassesOf(e))
	found := make(map[string]bool)
	addAll := func(id string) {
		for a := range s.ancestorSet(id) {
			if _, ok := s.g.Term(a); ok && !equivalent[a] {
				found[a] = true
			}
		}
	}

	if e.IsNamed() {
		addAll(e.Genus)
	} else {
		addAll(e.Genus)
		for _, id := range s.ids {
			t, _ := s.g.Term(id)
			if t.Obsolete {
				continue
			}
			def, ok := ExpressionOf(t)
			if !ok || equivalent[id] || def.IsNamed() {
				continue
			}
			if s.entails(e, def) {
				addAll(id)
			}
		}
	}
	if direct {
		found = s.minimalSupers(found)
	}
	return sortedKeys(found)
}

// minimalSupers keeps the most specific classes of a superclass set.
func (s *structural) minimalSupers(set map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for c := range set {
		specific := true
		for o := range set {
			if o != c && s.isSub(o, c) && !s.isSub(c, o) {
				specific = false
				break
			}
		}
		if specific {
			out[c] = true
		}
	}
	return out
}

// minimalSubs keeps the most general classes of a subclass set.
func (s *structural) minimalSubs(set map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for c := range set {
		general := true
		for o := range set {
			if o != c && s.isSub(c, o) && !s.isSub(o, c) {
				general = false
				break
			}
		}
		if general {
			out[c] = true
		}
	}
	return out
}

func (s *structural) IsConsistent() Consistency {
	unsat := make(map[string]bool)
	var problems []string

	for _, id := range s.ids {
		for _, sup := range s.supers[id] {
			if sup != id && s.isSub(sup, id) {
				problems = append(problems, fmt.Sprintf("subclass cycle through %s", id))
				break
			}
		}
	}

	for _, id := range s.ids {
		t, _ := s.g.Term(id)
		for _, other := range t.DisjointFrom {
			members := s.descendants(id)
			members[id] = true
			for m := range members {
				if s.isSub(m, other) && !unsat[m] {
					unsat[m] = true
					problems = append(problems, fmt.Sprintf("%s is a subclass of disjoint classes %s and %s", m, id, other))
				}
			}
		}
	}

	sort.Strings(problems)
	return Consistency{
		Consistent:    len(problems) == 0,
		Unsatisfiable: sortedKeys(unsat),
		Problems:      problems,
	}
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
