// Package ontology provides the in-memory ontology graph the generation and
// review pipeline operates on.
//
// A Graph is mutable and not safe for concurrent use. Outside of tests it is
// only ever touched from inside a task run by the task manager, which grants
// exclusive access to one graph instance at a time.
package ontology

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"term-forge/internal/obo"
)

var (
	// ErrUnknownTerm is returned when an identifier is not part of the graph.
	ErrUnknownTerm = errors.New("unknown term")
	// ErrDuplicateTerm is returned when adding an identifier twice.
	ErrDuplicateTerm = errors.New("duplicate term")
)

// PropertyIsA is the property name used for subclass relations.
const PropertyIsA = "is_a"

// Descriptor identifies an ontology and where it is loaded from.
type Descriptor struct {
	Name string
	// Branch and BranchID name an optional sub-region of the graph rooted
	// at the BranchID node.
	Branch   string
	BranchID string
	// Branches maps further branch names to their root ids.
	Branches map[string]string
	// Source is the locator of the main document.
	Source string
	// Support lists additional documents merged into the graph.
	Support []string
	// Imports names the ontologies whose terms the support documents
	// contribute, e.g. CHEBI merged into GO.
	Imports []string
}

// BranchRoot returns the root id of a named branch. Names are matched
// without regard to case.
func (d Descriptor) BranchRoot(branch string) (string, bool) {
	if branch == "" {
		return "", false
	}
	if d.BranchID != "" && strings.EqualFold(d.Branch, branch) {
		return d.BranchID, true
	}
	if root, ok := d.Branches[branch]; ok {
		return root, true
	}
	for name, root := range d.Branches {
		if strings.EqualFold(name, branch) {
			return root, true
		}
	}
	return "", false
}

// Provides reports whether terms of the named ontology live in the graph:
// the ontology itself or one of its imports.
func (d Descriptor) Provides(name string) bool {
	if name == d.Name {
		return true
	}
	for _, imp := range d.Imports {
		if imp == name {
			return true
		}
	}
	return false
}

// Relation is a directed edge between two terms. Properties is the ordered
// property chain; a genus in a logical definition has no properties.
type Relation struct {
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	Properties []string `json:"properties,omitempty"`
}

// String renders the relation as "<props> <target>".
func (r Relation) String() string {
	if len(r.Properties) == 0 {
		return r.Target
	}
	return strings.Join(r.Properties, " ") + " " + r.Target
}

// Term is a class in the graph.
type Term struct {
	ID           string
	Label        string
	Namespace    string
	Definition   string
	DefXRefs     []string
	Synonyms     []string
	Comment      string
	Parents      []string
	Relations    []Relation
	Intersection []Relation
	DisjointFrom []string
	Obsolete     bool
}

// LogicalDefinition renders the intersection as a class expression, e.g.
// "GO:0065007 and regulates some GO:0040007". Empty when the term has none.
func (t *Term) LogicalDefinition() string {
	if len(t.Intersection) == 0 {
		return ""
	}
	parts := make([]string, 0, len(t.Intersection))
	for _, r := range t.Intersection {
		if len(r.Properties) == 0 {
			parts = append(parts, r.Target)
			continue
		}
		parts = append(parts, strings.Join(r.Properties, " ")+" some "+r.Target)
	}
	return strings.Join(parts, " and ")
}

// Graph is an in-memory ontology.
type Graph struct {
	descriptor Descriptor
	terms      map[string]*Term
	frames     map[string]*obo.Frame
	ids        []string
	children   map[string][]string
	labels     map[string]string
}

// NewGraph creates an empty graph for the given descriptor.
func NewGraph(d Descriptor) *Graph {
	return &Graph{
		descriptor: d,
		terms:      make(map[string]*Term),
		frames:     make(map[string]*obo.Frame),
		children:   make(map[string][]string),
		labels:     make(map[string]string),
	}
}

// NewGraphFromDocument builds a graph from the [Term] frames of a document.
func NewGraphFromDocument(d Descriptor, doc *obo.Document) (*Graph, error) {
	g := NewGraph(d)
	for _, f := range doc.Frames {
		if f.Type != obo.FrameTypeTerm {
			continue
		}
		if err := g.AddFrame(f); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Name returns the unique ontology name.
func (g *Graph) Name() string {
	return g.descriptor.Name
}

// Descriptor returns the descriptor the graph was built from.
func (g *Graph) Descriptor() Descriptor {
	return g.descriptor
}

// Size returns the number of terms.
func (g *Graph) Size() int {
	return len(g.ids)
}

// AddFrame adds a new term built from a frame.
func (g *Graph) AddFrame(f *obo.Frame) error {
	if _, exists := g.terms[f.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTerm, f.ID)
	}
	g.put(f.Clone())
	return nil
}

// Apply adds or replaces terms from frames. It is the only structural
// mutation of a loaded graph.
func (g *Graph) Apply(frames []*obo.Frame) error {
	for _, f := range frames {
		if f.ID == "" {
			return fmt.Errorf("cannot apply frame without id")
		}
	}
	for _, f := range frames {
		if old, exists := g.terms[f.ID]; exists {
			g.unindex(old)
		}
		g.put(f.Clone())
	}
	return nil
}

func (g *Graph) put(f *obo.Frame) {
	t := TermFromFrame(f)
	if _, exists := g.terms[t.ID]; !exists {
		g.ids = append(g.ids, t.ID)
	}
	g.terms[t.ID] = t
	g.frames[t.ID] = f
	g.index(t)
}

func (g *Graph) index(t *Term) {
	for _, p := range t.Parents {
		g.children[p] = append(g.children[p], t.ID)
	}
	if t.Label != "" && !t.Obsolete {
		g.labels[strings.ToLower(t.Label)] = t.ID
	}
}

func (g *Graph) unindex(t *Term) {
	for _, p := range t.Parents {
		kids := g.children[p]
		for i, k := range kids {
			if k == t.ID {
				g.children[p] = append(kids[:i:i], kids[i+1:]...)
				break
			}
		}
	}
	if id, ok := g.labels[strings.ToLower(t.Label)]; ok && id == t.ID {
		delete(g.labels, strings.ToLower(t.Label))
	}
}

// Term returns the term with the given id.
func (g *Graph) Term(id string) (*Term, bool) {
	t, ok := g.terms[id]
	return t, ok
}

// Frame returns a copy of the canonical frame for id.
func (g *Graph) Frame(id string) (*obo.Frame, bool) {
	f, ok := g.frames[id]
	if !ok {
		return nil, false
	}
	return f.Clone(), true
}

// Terms returns all terms ordered by id.
func (g *Graph) Terms() []*Term {
	ids := append([]string(nil), g.ids...)
	sort.Strings(ids)
	out := make([]*Term, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.terms[id])
	}
	return out
}

// FindByLabel looks up a non-obsolete term by label, ignoring case.
func (g *Graph) FindByLabel(label string) (string, bool) {
	id, ok := g.labels[strings.ToLower(strings.TrimSpace(label))]
	return id, ok
}

// Children returns the direct is_a children of id, ordered by id.
func (g *Graph) Children(id string) []string {
	kids := append([]string(nil), g.children[id]...)
	sort.Strings(kids)
	return kids
}

// SuperClasses returns the told direct superclasses of id: is_a parents
// plus the genus of its logical definition.
func (g *Graph) SuperClasses(id string) []string {
	t, ok := g.terms[id]
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, p := range t.Parents {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, r := range t.Intersection {
		if len(r.Properties) == 0 && !seen[r.Target] {
			seen[r.Target] = true
			out = append(out, r.Target)
		}
	}
	return out
}

// Ancestors returns the transitive superclasses of id, ordered by id. The
// term itself is not included. Cycles are tolerated.
func (g *Graph) Ancestors(id string) []string {
	visited := map[string]bool{id: true}
	queue := g.SuperClasses(id)
	var out []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		out = append(out, current)
		queue = append(queue, g.SuperClasses(current)...)
	}
	sort.Strings(out)
	return out
}

// IsSubClassOf reports whether id equals ancestor or has it as a transitive
// superclass.
func (g *Graph) IsSubClassOf(id, ancestor string) bool {
	if id == ancestor {
		return true
	}
	for _, a := range g.Ancestors(id) {
		if a == ancestor {
			return true
		}
	}
	return false
}

// InBranch reports whether id belongs to the branch rooted at rootID. An
// empty root means the whole graph.
func (g *Graph) InBranch(id, rootID string) bool {
	if _, ok := g.terms[id]; !ok {
		return false
	}
	if rootID == "" {
		return true
	}
	return g.IsSubClassOf(id, rootID)
}

// TermFromFrame converts a [Term] frame into a graph term.
func TermFromFrame(f *obo.Frame) *Term {
	t := &Term{
		ID:           f.ID,
		Label:        f.Value(obo.TagName),
		Namespace:    f.Value(obo.TagNamespace),
		Comment:      f.Value(obo.TagComment),
		Parents:      f.Values(obo.TagIsA),
		DisjointFrom: f.Values(obo.TagDisjointFrom),
		Obsolete:     f.Value(obo.TagIsObsolete) == "true",
	}
	if def := f.First(obo.TagDef); def != nil {
		t.Definition = def.Value
		t.DefXRefs = append([]string(nil), def.Xrefs...)
	}
	t.Synonyms = f.Values(obo.TagSynonym)
	for _, v := range f.Values(obo.TagRelationship) {
		if r, ok := parseRelation(f.ID, v); ok {
			t.Relations = append(t.Relations, r)
		}
	}
	for _, v := range f.Values(obo.TagIntersectionOf) {
		if r, ok := parseRelation(f.ID, v); ok {
			t.Intersection = append(t.Intersection, r)
		}
	}
	return t
}

// parseRelation reads "target" or "prop target" values.
func parseRelation(source, value string) (Relation, bool) {
	fields := strings.Fields(value)
	switch len(fields) {
	case 0:
		return Relation{}, false
	case 1:
		return Relation{Source: source, Target: fields[0]}, true
	default:
		return Relation{
			Source:     source,
			Target:     fields[len(fields)-1],
			Properties: fields[:len(fields)-1],
		}, true
	}
}
