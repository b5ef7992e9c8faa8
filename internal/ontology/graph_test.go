package ontology_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"term-forge/internal/obo"
	"term-forge/internal/ontology"
	"term-forge/internal/ontology/ontologytest"
)

func TestGraph_Lookup(t *testing.T) {
	g := ontologytest.Graph(t)

	term, ok := g.Term("GO:0040008")
	require.True(t, ok)
	assert.Equal(t, "regulation of growth", term.Label)
	assert.Equal(t, []string{"GOC:go_curators"}, term.DefXRefs)
	assert.Equal(t, "GO:0065007 and regulates some GO:0040007", term.LogicalDefinition())
	require.Len(t, term.Relations, 1)
	assert.Equal(t, ontology.Relation{Source: "GO:0040008", Target: "GO:0040007", Properties: []string{"regulates"}}, term.Relations[0])

	id, ok := g.FindByLabel("Cell Growth")
	assert.True(t, ok)
	assert.Equal(t, "GO:0016049", id)

	_, ok = g.Term("GO:9999999")
	assert.False(t, ok)
}

func TestGraph_Hierarchy(t *testing.T) {
	g := ontologytest.Graph(t)

	assert.Equal(t, []string{"GO:0016049"}, g.Children("GO:0040007"))
	assert.Equal(t, []string{"GO:0008150"}, g.Ancestors("GO:0040007"))
	assert.Equal(t, []string{"GO:0008150", "GO:0040007"}, g.Ancestors("GO:0016049"))
	assert.True(t, g.IsSubClassOf("GO:0016049", "GO:0008150"))
	assert.False(t, g.IsSubClassOf("GO:0003824", "GO:0008150"))

	assert.True(t, g.InBranch("GO:0003824", "GO:0003674"))
	assert.False(t, g.InBranch("GO:0016049", "GO:0003674"))
	assert.True(t, g.InBranch("GO:0016049", ""))
	assert.False(t, g.InBranch("GO:9999999", ""))
}

func TestDescriptor_BranchesAndImports(t *testing.T) {
	d := ontologytest.Descriptor()
	d.Branch, d.BranchID = "process", "GO:0008150"

	root, ok := d.BranchRoot("process")
	assert.True(t, ok)
	assert.Equal(t, "GO:0008150", root)
	root, ok = d.BranchRoot("Molecular_Function")
	assert.True(t, ok)
	assert.Equal(t, "GO:0003674", root)
	_, ok = d.BranchRoot("anatomy")
	assert.False(t, ok)
	_, ok = d.BranchRoot("")
	assert.False(t, ok)

	assert.True(t, d.Provides("GO"))
	assert.True(t, d.Provides("CHEBI"))
	assert.False(t, d.Provides("UBERON"))
}

func TestGraph_Apply(t *testing.T) {
	g := ontologytest.Graph(t)
	before := g.Size()

	added := obo.NewFrame("GO:0001558")
	added.Set(obo.TagName, "regulation of cell growth")
	added.Add(obo.NewClause(obo.TagIsA, "GO:0040008"))

	changed, ok := g.Frame("GO:0016049")
	require.True(t, ok)
	changed.Set(obo.TagName, "cell growth renamed")

	require.NoError(t, g.Apply([]*obo.Frame{added, changed}))
	assert.Equal(t, before+1, g.Size())
	assert.Equal(t, []string{"GO:0001558"}, g.Children("GO:0040008"))

	_, ok = g.FindByLabel("cell growth")
	assert.False(t, ok)
	id, ok := g.FindByLabel("cell growth renamed")
	assert.True(t, ok)
	assert.Equal(t, "GO:0016049", id)
	assert.Equal(t, []string{"GO:0016049"}, g.Children("GO:0040007"))

	assert.Error(t, g.Apply([]*obo.Frame{{Type: obo.FrameTypeTerm}}))
}

func TestGraph_FrameIsCopy(t *testing.T) {
	g := ontologytest.Graph(t)
	f, ok := g.Frame("GO:0003824")
	require.True(t, ok)
	f.Set(obo.TagName, "mutated")

	term, _ := g.Term("GO:0003824")
	assert.Equal(t, "catalytic activity", term.Label)
}

func TestGraphTerm_ReadsLiveValues(t *testing.T) {
	g := ontologytest.Graph(t)
	gt, err := ontology.NewGraphTerm(g, "GO:0040007")
	require.NoError(t, err)
	assert.Equal(t, "growth", gt.Label())

	f, _ := g.Frame("GO:0040007")
	f.Set(obo.TagName, "organism growth")
	require.NoError(t, g.Apply([]*obo.Frame{f}))
	assert.Equal(t, "organism growth", gt.Label())

	snapshot := ontology.NewDefaultTerm(ontology.Term{ID: "X:1", Label: "fixed"})
	assert.Equal(t, "fixed", snapshot.Label())
	assert.Equal(t, "X:1", snapshot.ID())

	_, err = ontology.NewGraphTerm(g, "GO:0000000")
	assert.ErrorIs(t, err, ontology.ErrUnknownTerm)
}

func TestFileSource_LoadWithSupport(t *testing.T) {
	dir := t.TempDir()
	main := ontologytest.WriteFile(t, dir)
	support := filepath.Join(dir, "extra.obo")
	require.NoError(t, os.WriteFile(support, []byte(`[Term]
id: CHEBI:15377
name: water shadowed

[Term]
id: CHEBI:33290
name: food
`), 0o644))

	d := ontology.Descriptor{Name: "GO", Source: main, Support: []string{support}}
	g, err := ontology.FileSource{Workers: 2}.Load(context.Background(), d)
	require.NoError(t, err)

	water, _ := g.Term("CHEBI:15377")
	assert.Equal(t, "water", water.Label)
	_, ok := g.Term("CHEBI:33290")
	assert.True(t, ok)
	assert.Equal(t, "GO", g.Name())
}

func TestFileSource_LoadErrors(t *testing.T) {
	_, err := ontology.FileSource{}.Load(context.Background(), ontology.Descriptor{Name: "GO"})
	var loadErr *ontology.LoadError
	require.ErrorAs(t, err, &loadErr)

	_, err = ontology.FileSource{}.Load(context.Background(), ontology.Descriptor{
		Name:   "GO",
		Source: filepath.Join(t.TempDir(), "missing.obo"),
	})
	require.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
