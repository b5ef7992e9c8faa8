package commit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"term-forge/internal/obo"
)

func catalyticActivity() *obo.Frame {
	f := obo.NewFrame("GO:0003824")
	f.Add(obo.NewClause(obo.TagName, "catalytic activity"))
	f.Add(obo.Clause{Tag: obo.TagDef, Value: "catalytic activity", Xrefs: []string{"GOC:vw"}})
	f.Add(obo.NewClause(obo.TagIsA, "GO:0003674"))
	return f
}

func TestObsoleteHook_MarksDefinitionAndComment(t *testing.T) {
	f := catalyticActivity()
	GeneOntologyObsoleteHook(f, "merged into GO:0000001")

	assert.Equal(t, "OBSOLETE. catalytic activity", f.Value(obo.TagDef))
	assert.Equal(t, []string{"GOC:vw"}, f.First(obo.TagDef).Xrefs)
	assert.Equal(t, []string{"merged into GO:0000001"}, f.Values(obo.TagComment))
	assert.Equal(t, "true", f.Value(obo.TagIsObsolete))
	assert.False(t, f.Has(obo.TagIsA))
	assert.Equal(t, "obsolete catalytic activity", f.Value(obo.TagName))

	again := f.Clone()
	GeneOntologyObsoleteHook(again, "merged into GO:0000001")
	assert.Equal(t, f, again)
}

func TestObsoleteHook_KeepsExistingComment(t *testing.T) {
	f := catalyticActivity()
	f.Add(obo.NewClause(obo.TagComment, "Note that this term is a grouping term."))

	DefaultObsoleteHook(f, "merged into GO:0000001")
	assert.Equal(t, []string{"Note that this term is a grouping term."}, f.Values(obo.TagComment))
}

func TestObsoleteHook_Definitions(t *testing.T) {
	tests := []struct {
		name string
		def  *obo.Clause
		want string
	}{
		{"missing", nil, "OBSOLETE."},
		{"empty", &obo.Clause{Tag: obo.TagDef}, "OBSOLETE."},
		{"plain", &obo.Clause{Tag: obo.TagDef, Value: "A process."}, "OBSOLETE. A process."},
		{"already marked", &obo.Clause{Tag: obo.TagDef, Value: "OBSOLETE. A process."}, "OBSOLETE. A process."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := obo.NewFrame("GO:1")
			if tt.def != nil {
				f.Add(*tt.def)
			}
			DefaultObsoleteHook(f, "")
			require.Len(t, f.All(obo.TagDef), 1)
			assert.Equal(t, tt.want, f.Value(obo.TagDef))
			assert.False(t, f.Has(obo.TagComment))
		})
	}
}

func TestHooks_For(t *testing.T) {
	hooks := DefaultHooks()

	goFrame := catalyticActivity()
	hooks.For("GO")(goFrame, "")
	assert.Equal(t, "obsolete catalytic activity", goFrame.Value(obo.TagName))

	other := catalyticActivity()
	hooks.For("CL")(other, "")
	assert.Equal(t, "catalytic activity", other.Value(obo.TagName))
	assert.Equal(t, "OBSOLETE. catalytic activity", other.Value(obo.TagDef))
}
