package ontology

import "fmt"

// OntologyTerm is a read view of a class used during term generation.
type OntologyTerm interface {
	ID() string
	Label() string
	Definition() string
	Synonyms() []string
	LogicalDefinition() string
	DefXRefs() []string
	Comment() string
	Relations() []Relation
}

// DefaultTerm is a detached, in-memory OntologyTerm.
type DefaultTerm struct {
	term Term
}

// NewDefaultTerm snapshots a term.
func NewDefaultTerm(t Term) DefaultTerm {
	t.DefXRefs = append([]string(nil), t.DefXRefs...)
	t.Synonyms = append([]string(nil), t.Synonyms...)
	t.Relations = append([]Relation(nil), t.Relations...)
	return DefaultTerm{term: t}
}

func (d DefaultTerm) ID() string                { return d.term.ID }
func (d DefaultTerm) Label() string             { return d.term.Label }
func (d DefaultTerm) Definition() string        { return d.term.Definition }
func (d DefaultTerm) Synonyms() []string        { return d.term.Synonyms }
func (d DefaultTerm) LogicalDefinition() string { return d.term.LogicalDefinition() }
func (d DefaultTerm) DefXRefs() []string        { return d.term.DefXRefs }
func (d DefaultTerm) Comment() string           { return d.term.Comment }
func (d DefaultTerm) Relations() []Relation     { return d.term.Relations }

func (d DefaultTerm) String() string {
	return fmt.Sprintf("%s (%s)", d.term.ID, d.term.Label)
}

// GraphTerm reads its values from the live graph on every call, so it
// always reflects the graph instance it is bound to.
type GraphTerm struct {
	graph *Graph
	id    string
}

// NewGraphTerm binds a view to id in g.
func NewGraphTerm(g *Graph, id string) (*GraphTerm, error) {
	if _, ok := g.Term(id); !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnknownTerm, id, g.Name())
	}
	return &GraphTerm{graph: g, id: id}, nil
}

func (gt *GraphTerm) term() *Term {
	if t, ok := gt.graph.Term(gt.id); ok {
		return t
	}
	return &Term{ID: gt.id}
}

func (gt *GraphTerm) ID() string                { return gt.id }
func (gt *GraphTerm) Label() string             { return gt.term().Label }
func (gt *GraphTerm) Definition() string        { return gt.term().Definition }
func (gt *GraphTerm) Synonyms() []string        { return gt.term().Synonyms }
func (gt *GraphTerm) LogicalDefinition() string { return gt.term().LogicalDefinition() }
func (gt *GraphTerm) DefXRefs() []string        { return gt.term().DefXRefs }
func (gt *GraphTerm) Comment() string           { return gt.term().Comment }
func (gt *GraphTerm) Relations() []Relation     { return gt.term().Relations }

func (gt *GraphTerm) String() string {
	return fmt.Sprintf("%s (%s)", gt.id, gt.Label())
}
