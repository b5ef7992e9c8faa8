package commit

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"term-forge/internal/obo"
)

// Diff is the structural delta between the canonical frame of a term and the
// proposed one, together with a unified text rendering for reviewers.
type Diff struct {
	TermID         string         `json:"term_id"`
	Added          []obo.Clause   `json:"added,omitempty"`
	Removed        []obo.Clause   `json:"removed,omitempty"`
	Changed        []ClauseChange `json:"changed,omitempty"`
	ObsoleteReason string         `json:"obsolete_reason,omitempty"`
	Text           string         `json:"text"`
}

// ClauseChange is a single-valued clause present on both sides with
// different values.
type ClauseChange struct {
	Tag obo.Tag    `json:"tag"`
	Old obo.Clause `json:"old"`
	New obo.Clause `json:"new"`
}

func (c ClauseChange) String() string {
	return c.Old.String() + " => " + c.New.String()
}

// Empty reports whether the proposed frame equals the canonical one.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// ComputeDiff compares two frames clause by clause. A nil canonical frame
// means the term is new. Clause order within a frame is not significant.
func ComputeDiff(canonical, proposed *obo.Frame) (Diff, error) {
	d := Diff{TermID: proposed.ID}
	var before []obo.Clause
	if canonical != nil {
		before = canonical.Ordered()
	}
	after := proposed.Ordered()

	d.Added, d.Removed, d.Changed = pairChanges(subtract(after, before), subtract(before, after))

	from := ""
	if canonical != nil {
		from = canonical.Render()
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(from),
		B:        difflib.SplitLines(proposed.Render()),
		FromFile: "canonical/" + proposed.ID,
		ToFile:   "proposed/" + proposed.ID,
		Context:  3,
	})
	if err != nil {
		return Diff{}, fmt.Errorf("failed to render diff for %s: %w", proposed.ID, err)
	}
	d.Text = text
	return d, nil
}

// subtract returns the clauses of a that have no counterpart in b, counting
// repeated clauses.
func subtract(a, b []obo.Clause) []obo.Clause {
	counts := make(map[string]int, len(b))
	for _, c := range b {
		counts[c.String()]++
	}
	var out []obo.Clause
	for _, c := range a {
		key := c.String()
		if counts[key] > 0 {
			counts[key]--
			continue
		}
		out = append(out, c)
	}
	return out
}

// pairChanges moves single-valued tags found once among both the added and
// the removed clauses into changes, in canonical tag order.
func pairChanges(added, removed []obo.Clause) ([]obo.Clause, []obo.Clause, []ClauseChange) {
	count := func(cs []obo.Clause) map[obo.Tag]int {
		n := make(map[obo.Tag]int)
		for _, c := range cs {
			n[c.Tag]++
		}
		return n
	}
	addedTags, removedTags := count(added), count(removed)
	paired := func(tag obo.Tag) bool {
		return obo.IsSingleValued(tag) && addedTags[tag] == 1 && removedTags[tag] == 1
	}

	var changes []ClauseChange
	var keptAdded []obo.Clause
	for _, c := range added {
		if !paired(c.Tag) {
			keptAdded = append(keptAdded, c)
			continue
		}
		for _, old := range removed {
			if old.Tag == c.Tag {
				changes = append(changes, ClauseChange{Tag: c.Tag, Old: old, New: c})
				break
			}
		}
	}
	var keptRemoved []obo.Clause
	for _, c := range removed {
		if !paired(c.Tag) {
			keptRemoved = append(keptRemoved, c)
		}
	}
	return keptAdded, keptRemoved, changes
}
