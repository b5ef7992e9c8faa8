// Package obo reads and writes OBO flat-file documents.
//
// A Frame is one stanza of an OBO document (for example a [Term] block) made
// of ordered, typed clauses. Frames are the unit the review pipeline edits,
// diffs and commits, and the unit the ontology loader turns into graph terms.
package obo

import (
	"fmt"
	"strings"
)

// Tag identifies the kind of a clause (the part before the colon).
type Tag string

const (
	TagID             Tag = "id"
	TagName           Tag = "name"
	TagNamespace      Tag = "namespace"
	TagDef            Tag = "def"
	TagComment        Tag = "comment"
	TagSynonym        Tag = "synonym"
	TagXref           Tag = "xref"
	TagIsA            Tag = "is_a"
	TagIntersectionOf Tag = "intersection_of"
	TagRelationship   Tag = "relationship"
	TagDisjointFrom   Tag = "disjoint_from"
	TagIsObsolete     Tag = "is_obsolete"
	TagReplacedBy     Tag = "replaced_by"
	TagConsider       Tag = "consider"
	TagCreatedBy      Tag = "created_by"
	TagCreationDate   Tag = "creation_date"
)

// FrameTypeTerm is the stanza type of class frames.
const FrameTypeTerm = "Term"

// tagOrder is the canonical serialization order. Tags not listed here are
// written after the known ones, in the order they were added.
var tagOrder = []Tag{
	TagName, TagNamespace, TagDef, TagComment, TagSynonym, TagXref,
	TagIsA, TagIntersectionOf, TagRelationship, TagDisjointFrom,
	TagIsObsolete, TagReplacedBy, TagConsider, TagCreatedBy, TagCreationDate,
}

// singleValued tags may appear at most once per frame.
var singleValued = map[Tag]bool{
	TagName:         true,
	TagNamespace:    true,
	TagDef:          true,
	TagComment:      true,
	TagIsObsolete:   true,
	TagCreatedBy:    true,
	TagCreationDate: true,
}

// IsSingleValued reports whether a frame carries at most one clause of tag.
func IsSingleValued(tag Tag) bool {
	return singleValued[tag]
}

// referenceTags carry an identifier optionally followed by "! label".
var referenceTags = map[Tag]bool{
	TagIsA:            true,
	TagIntersectionOf: true,
	TagRelationship:   true,
	TagDisjointFrom:   true,
	TagReplacedBy:     true,
	TagConsider:       true,
}

// Clause is a single tag/value line of a frame.
type Clause struct {
	Tag   Tag
	Value string
	// Qualifier holds the synonym scope (EXACT, BROAD, ...).
	Qualifier string
	// Xrefs holds the bracketed cross references of def and synonym clauses.
	Xrefs []string
}

// NewClause creates a clause with a plain value.
func NewClause(tag Tag, value string) Clause {
	return Clause{Tag: tag, Value: value}
}

// String renders the clause the way it appears in an OBO file.
func (c Clause) String() string {
	return string(c.Tag) + ": " + c.renderValue()
}

func (c Clause) renderValue() string {
	switch c.Tag {
	case TagDef:
		return quote(c.Value) + " " + renderXrefs(c.Xrefs)
	case TagSynonym:
		qualifier := c.Qualifier
		if qualifier == "" {
			qualifier = "RELATED"
		}
		return quote(c.Value) + " " + qualifier + " " + renderXrefs(c.Xrefs)
	default:
		return c.Value
	}
}

func (c Clause) clone() Clause {
	out := c
	if c.Xrefs != nil {
		out.Xrefs = append([]string(nil), c.Xrefs...)
	}
	return out
}

// Frame is one stanza of an OBO document.
type Frame struct {
	Type    string
	ID      string
	Clauses []Clause
}

// NewFrame creates an empty [Term] frame.
func NewFrame(id string) *Frame {
	return &Frame{Type: FrameTypeTerm, ID: id}
}

// First returns the first clause with the given tag, or nil.
func (f *Frame) First(tag Tag) *Clause {
	for i := range f.Clauses {
		if f.Clauses[i].Tag == tag {
			return &f.Clauses[i]
		}
	}
	return nil
}

// All returns copies of every clause with the given tag, in frame order.
func (f *Frame) All(tag Tag) []Clause {
	var out []Clause
	for _, c := range f.Clauses {
		if c.Tag == tag {
			out = append(out, c.clone())
		}
	}
	return out
}

// Values returns the values of every clause with the given tag.
func (f *Frame) Values(tag Tag) []string {
	var out []string
	for _, c := range f.Clauses {
		if c.Tag == tag {
			out = append(out, c.Value)
		}
	}
	return out
}

// Value returns the value of the first clause with the given tag.
func (f *Frame) Value(tag Tag) string {
	if c := f.First(tag); c != nil {
		return c.Value
	}
	return ""
}

// Has reports whether the frame carries a clause with the given tag.
func (f *Frame) Has(tag Tag) bool {
	return f.First(tag) != nil
}

// Add appends a clause.
func (f *Frame) Add(c Clause) {
	f.Clauses = append(f.Clauses, c)
}

// Set replaces the value of the first clause with the given tag, adding the
// clause when it is absent.
func (f *Frame) Set(tag Tag, value string) {
	if c := f.First(tag); c != nil {
		c.Value = value
		return
	}
	f.Add(NewClause(tag, value))
}

// Remove deletes every clause with the given tag and returns how many were
// removed.
func (f *Frame) Remove(tag Tag) int {
	kept := f.Clauses[:0]
	removed := 0
	for _, c := range f.Clauses {
		if c.Tag == tag {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	f.Clauses = kept
	return removed
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := &Frame{Type: f.Type, ID: f.ID, Clauses: make([]Clause, len(f.Clauses))}
	for i, c := range f.Clauses {
		out.Clauses[i] = c.clone()
	}
	return out
}

// Ordered returns the clauses in canonical serialization order. Clauses with
// the same tag keep their relative order.
func (f *Frame) Ordered() []Clause {
	out := make([]Clause, 0, len(f.Clauses))
	known := make(map[Tag]bool, len(tagOrder))
	for _, tag := range tagOrder {
		known[tag] = true
		for _, c := range f.Clauses {
			if c.Tag == tag {
				out = append(out, c)
			}
		}
	}
	for _, c := range f.Clauses {
		if !known[c.Tag] && c.Tag != TagID {
			out = append(out, c)
		}
	}
	return out
}

// Render returns the frame as an OBO stanza, without a trailing blank line.
func (f *Frame) Render() string {
	var b strings.Builder
	frameType := f.Type
	if frameType == "" {
		frameType = FrameTypeTerm
	}
	fmt.Fprintf(&b, "[%s]\n", frameType)
	fmt.Fprintf(&b, "id: %s\n", f.ID)
	for _, c := range f.Ordered() {
		b.WriteString(c.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func renderXrefs(xrefs []string) string {
	return "[" + strings.Join(xrefs, ", ") + "]"
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
