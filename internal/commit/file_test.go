package commit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"term-forge/internal/generation"
	"term-forge/internal/obo"
	"term-forge/internal/ontology/ontologytest"
)

func readDoc(t *testing.T, path string) *obo.Document {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	doc, err := obo.Read(f)
	require.NoError(t, err)
	return doc
}

func TestFileCommitter_AddsTermsWithNewIDs(t *testing.T) {
	path := ontologytest.WriteFile(t, t.TempDir())
	g := ontologytest.Graph(t)
	e := newTestEngine(NewFileCommitter(path, "GO"))

	second := regulationOfCellGrowth()
	second.Label = "regulation of growth of cells"
	cs, err := e.PrepareAdditions(g, "curator", []generation.Output{regulationOfCellGrowth(), second})
	require.NoError(t, err)

	res, err := e.Commit(context.Background(), cs)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, cs.ID.String(), res.Reference)
	assert.Equal(t, map[string]string{"pending:0": "GO:0070888", "pending:1": "GO:0070889"}, res.AssignedIDs)

	doc := readDoc(t, path)
	added := doc.Frame("GO:0070888")
	require.NotNil(t, added)
	assert.Equal(t, "regulation of cell growth", added.Value(obo.TagName))
	assert.Equal(t, []string{"GO:0040008"}, added.Values(obo.TagIsA))
	assert.NotNil(t, doc.Frame("GO:0008150"))
	assert.Equal(t, "go", doc.HeaderValue("ontology"))
}

func TestFileCommitter_ObsoleteTwiceConflicts(t *testing.T) {
	path := ontologytest.WriteFile(t, t.TempDir())
	g := ontologytest.Graph(t)
	e := newTestEngine(NewFileCommitter(path, "GO"))

	cs, err := e.PrepareObsoletion(g, "curator", "GO:0003824", "merged")
	require.NoError(t, err)
	_, err = e.Commit(context.Background(), cs)
	require.NoError(t, err)

	frame := readDoc(t, path).Frame("GO:0003824")
	require.NotNil(t, frame)
	assert.Equal(t, "true", frame.Value(obo.TagIsObsolete))

	// The graph has not seen the first commit, so the same change is prepared again.
	cs, err = e.PrepareObsoletion(g, "curator", "GO:0003824", "merged")
	require.NoError(t, err)
	_, err = e.Commit(context.Background(), cs)
	var ce *CommitError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestFileCommitter_MissingFile(t *testing.T) {
	g := ontologytest.Graph(t)
	e := newTestEngine(NewFileCommitter(t.TempDir()+"/missing.obo", "GO"))
	cs, err := e.PrepareObsoletion(g, "curator", "GO:0003824", "merged")
	require.NoError(t, err)

	_, err = e.Commit(context.Background(), cs)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileCommitter_KeepsUntouchedStanzas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "go.obo")
	original := strings.Replace(ontologytest.MiniGO, "is_a: GO:0040007\n", "is_a: GO:0040007 ! growth\n", 1)
	original = strings.Replace(original, "ontology: go\n", "ontology: go\n! curated by hand\n", 1)
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))
	g := ontologytest.Graph(t)
	e := newTestEngine(NewFileCommitter(path, "GO"))

	cs, err := e.PrepareAdditions(g, "curator", []generation.Output{regulationOfCellGrowth()})
	require.NoError(t, err)
	_, err = e.Commit(context.Background(), cs)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), original), "existing text must be kept byte for byte")
	assert.Contains(t, string(data), "is_a: GO:0040007 ! growth\n")
	assert.Contains(t, string(data), "\n[Term]\nid: GO:0070888\nname: regulation of cell growth\n")

	cs, err = e.PrepareObsoletion(g, "curator", "GO:0003824", "merged")
	require.NoError(t, err)
	_, err = e.Commit(context.Background(), cs)
	require.NoError(t, err)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	end := strings.Index(original, "[Term]\nid: GO:0003824")
	assert.True(t, strings.HasPrefix(text, original[:end]), "stanzas before the obsoleted term must be kept")
	assert.Contains(t, text, original[strings.Index(original, "[Term]\nid: GO:0005575"):strings.Index(original, "[Term]\nid: CHEBI:24431")])
	assert.Contains(t, text, "is_obsolete: true")
	assert.Equal(t, 1, strings.Count(text, "id: GO:0003824\n"))
}
