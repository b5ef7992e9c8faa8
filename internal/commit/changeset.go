package commit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"term-forge/internal/generation"
	"term-forge/internal/obo"
)

// PendingPrefix marks ids of terms that have not been assigned a permanent
// identifier yet.
const PendingPrefix = "pending:"

// IsPending reports whether id is a placeholder.
func IsPending(id string) bool {
	return strings.HasPrefix(id, PendingPrefix)
}

// ChangeKind classifies a change.
type ChangeKind string

const (
	ChangeAdd      ChangeKind = "add"
	ChangeModify   ChangeKind = "modify"
	ChangeObsolete ChangeKind = "obsolete"
)

// Change is one term's proposed edit.
type Change struct {
	Kind  ChangeKind `json:"kind"`
	Frame *obo.Frame `json:"-"`
	Diff  Diff       `json:"diff"`
}

// TermID returns the id of the changed term, possibly a placeholder.
func (c Change) TermID() string {
	return c.Frame.ID
}

// ChangeSet is an ordered list of changes for one vocabulary.
type ChangeSet struct {
	ID         uuid.UUID `json:"id"`
	Vocabulary string    `json:"vocabulary"`
	Author     string    `json:"author"`
	CreatedAt  time.Time `json:"created_at"`
	Changes    []Change  `json:"changes"`
}

// Pending returns the placeholder ids in change order.
func (cs *ChangeSet) Pending() []string {
	var out []string
	for _, c := range cs.Changes {
		if IsPending(c.TermID()) {
			out = append(out, c.TermID())
		}
	}
	return out
}

// Resolve returns copies of the proposed frames with placeholders replaced
// by their assigned ids, including references from other frames of the set.
func (cs *ChangeSet) Resolve(assigned map[string]string) ([]*obo.Frame, error) {
	out := make([]*obo.Frame, 0, len(cs.Changes))
	for _, c := range cs.Changes {
		f := c.Frame.Clone()
		if IsPending(f.ID) {
			id, ok := assigned[f.ID]
			if !ok {
				return nil, fmt.Errorf("no id assigned to %s", f.ID)
			}
			f.ID = id
		}
		for i := range f.Clauses {
			f.Clauses[i].Value = replacePending(f.Clauses[i].Value, assigned)
		}
		out = append(out, f)
	}
	return out, nil
}

func replacePending(value string, assigned map[string]string) string {
	if !strings.Contains(value, PendingPrefix) {
		return value
	}
	fields := strings.Fields(value)
	for i, f := range fields {
		if id, ok := assigned[f]; ok {
			fields[i] = id
		}
	}
	return strings.Join(fields, " ")
}

// frameFromOutput builds the frame of a generated candidate.
func frameFromOutput(id, author string, created time.Time, o generation.Output) *obo.Frame {
	f := obo.NewFrame(id)
	f.Add(obo.NewClause(obo.TagName, o.Label))
	if o.Namespace != "" {
		f.Add(obo.NewClause(obo.TagNamespace, o.Namespace))
	}
	f.Add(obo.Clause{Tag: obo.TagDef, Value: o.Definition, Xrefs: append([]string{}, o.DefXRefs...)})
	if o.Comment != "" {
		f.Add(obo.NewClause(obo.TagComment, o.Comment))
	}
	for _, s := range o.Synonyms {
		f.Add(obo.Clause{Tag: obo.TagSynonym, Value: s, Qualifier: "EXACT", Xrefs: []string{generation.TermGenieXRef}})
	}
	for _, p := range o.Parents {
		f.Add(obo.NewClause(obo.TagIsA, p))
	}
	if o.Expression != nil && !o.Expression.IsNamed() {
		for _, v := range o.Expression.IntersectionOf() {
			f.Add(obo.NewClause(obo.TagIntersectionOf, v))
		}
	}
	for _, r := range o.Relations {
		for _, p := range r.Properties {
			f.Add(obo.NewClause(obo.TagRelationship, p+" "+r.Target))
		}
	}
	if author != "" {
		f.Add(obo.NewClause(obo.TagCreatedBy, author))
	}
	f.Add(obo.NewClause(obo.TagCreationDate, created.UTC().Format(time.RFC3339)))
	return f
}
