// Package ontologytest provides a small Gene Ontology excerpt for tests.
package ontologytest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"term-forge/internal/obo"
	"term-forge/internal/ontology"
)

// MiniGO is a trimmed excerpt of GO with a few CHEBI classes merged in.
const MiniGO = `format-version: 1.2
ontology: go

[Term]
id: GO:0008150
name: biological_process
namespace: biological_process

[Term]
id: GO:0065007
name: biological regulation
namespace: biological_process
is_a: GO:0008150

[Term]
id: GO:0050789
name: regulation of biological process
namespace: biological_process
is_a: GO:0065007

[Term]
id: GO:0040007
name: growth
namespace: biological_process
def: "The increase in size or mass of an entire organism, a part of an organism or a cell." [GOC:bf, GOC:ma]
is_a: GO:0008150

[Term]
id: GO:0016049
name: cell growth
namespace: biological_process
def: "The process in which a cell irreversibly increases in size over time by accretion and biosynthetic production of matter similar to that already present." [GOC:ai]
is_a: GO:0040007

[Term]
id: GO:0040008
name: regulation of growth
namespace: biological_process
def: "Any process that modulates the frequency, rate or extent of growth." [GOC:go_curators]
is_a: GO:0050789
intersection_of: GO:0065007
intersection_of: regulates GO:0040007
relationship: regulates GO:0040007

[Term]
id: GO:0009056
name: catabolic process
namespace: biological_process
is_a: GO:0008150

[Term]
id: GO:0070887
name: cellular response to chemical stimulus
namespace: biological_process
is_a: GO:0008150

[Term]
id: GO:0003674
name: molecular_function
namespace: molecular_function
disjoint_from: GO:0008150

[Term]
id: GO:0003824
name: catalytic activity
namespace: molecular_function
def: "Catalysis of a biochemical reaction at physiological temperatures." [GOC:vw]
comment: Note that this term is a grouping term.
is_a: GO:0003674

[Term]
id: GO:0005575
name: cellular_component
namespace: cellular_component

[Term]
id: GO:0005634
name: nucleus
namespace: cellular_component
is_a: GO:0005575

[Term]
id: CHEBI:24431
name: chemical entity

[Term]
id: CHEBI:17234
name: glucose
def: "An aldohexose used as a source of energy." []
is_a: CHEBI:24431

[Term]
id: CHEBI:16236
name: ethanol
is_a: CHEBI:24431

[Term]
id: CHEBI:15377
name: water
is_a: CHEBI:24431
`

// Descriptor returns the descriptor used for MiniGO graphs.
func Descriptor() ontology.Descriptor {
	return ontology.Descriptor{
		Name:   "GO",
		Source: "mini-go.obo",
		Branches: map[string]string{
			"biological_process": "GO:0008150",
			"molecular_function": "GO:0003674",
			"cellular_component": "GO:0005575",
		},
		Imports: []string{"CHEBI"},
	}
}

// Graph parses MiniGO into a fresh graph.
func Graph(t testing.TB) *ontology.Graph {
	t.Helper()
	doc, err := obo.Read(strings.NewReader(MiniGO))
	require.NoError(t, err)
	g, err := ontology.NewGraphFromDocument(Descriptor(), doc)
	require.NoError(t, err)
	return g
}

// WriteFile writes MiniGO into dir and returns the path.
func WriteFile(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "go.obo")
	require.NoError(t, os.WriteFile(path, []byte(MiniGO), 0o644))
	return path
}
