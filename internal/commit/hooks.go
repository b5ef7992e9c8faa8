// Package commit turns accepted candidates and obsoletion requests into
// ordered change sets, diffs them against the canonical frames and hands
// them to a Committer.
package commit

import (
	"strings"

	"term-forge/internal/obo"
)

// ObsoleteMarker starts the definition of every obsolete term.
const ObsoleteMarker = "OBSOLETE."

// ObsoleteHook rewrites a frame that is being made obsolete. Hooks must be
// idempotent, must leave a definition starting with ObsoleteMarker, and must
// add the reason as a comment only when the frame has none.
type ObsoleteHook func(f *obo.Frame, reason string)

// axiomTags are dropped from obsolete frames.
var axiomTags = []obo.Tag{obo.TagIsA, obo.TagIntersectionOf, obo.TagRelationship, obo.TagDisjointFrom}

// DefaultObsoleteHook flags the frame obsolete, removes its logical axioms,
// marks the definition and records the reason.
func DefaultObsoleteHook(f *obo.Frame, reason string) {
	f.Set(obo.TagIsObsolete, "true")
	for _, tag := range axiomTags {
		f.Remove(tag)
	}
	markDefinition(f)
	if !f.Has(obo.TagComment) && strings.TrimSpace(reason) != "" {
		f.Add(obo.NewClause(obo.TagComment, reason))
	}
}

// GeneOntologyObsoleteHook applies DefaultObsoleteHook and the GO naming
// convention of prefixing obsolete labels with "obsolete ".
func GeneOntologyObsoleteHook(f *obo.Frame, reason string) {
	DefaultObsoleteHook(f, reason)
	if name := f.Value(obo.TagName); name != "" && !strings.HasPrefix(name, "obsolete ") {
		f.Set(obo.TagName, "obsolete "+name)
	}
}

func markDefinition(f *obo.Frame) {
	def := f.First(obo.TagDef)
	if def == nil {
		f.Add(obo.NewClause(obo.TagDef, ObsoleteMarker))
		return
	}
	switch {
	case def.Value == "":
		def.Value = ObsoleteMarker
	case !strings.HasPrefix(def.Value, ObsoleteMarker):
		def.Value = ObsoleteMarker + " " + def.Value
	}
}

// Hooks selects the obsoletion hook for a vocabulary.
type Hooks map[string]ObsoleteHook

// DefaultHooks returns the hooks for the vocabularies with their own
// conventions.
func DefaultHooks() Hooks {
	return Hooks{"GO": GeneOntologyObsoleteHook}
}

// For returns the hook registered for vocabulary, or DefaultObsoleteHook.
func (h Hooks) For(vocabulary string) ObsoleteHook {
	if hook, ok := h[vocabulary]; ok && hook != nil {
		return hook
	}
	return DefaultObsoleteHook
}
