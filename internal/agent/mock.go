package agent

import (
	"context"
	"strings"

	"term-forge/internal/generation"
)

// MockReviewer gives rule-based hints without calling a model.
type MockReviewer struct{}

// Review implements Reviewer.
func (MockReviewer) Review(_ context.Context, out generation.Output) (*Review, error) {
	for _, w := range out.Warnings {
		if w.Kind == generation.WarnEquivalentClass {
			return &Review{Verdict: VerdictReject, Notes: "duplicates existing class " + w.TermID}, nil
		}
	}
	switch {
	case out.Definition == "":
		return &Review{Verdict: VerdictRevise, Notes: "definition is missing"}, nil
	case !strings.HasSuffix(out.Definition, "."):
		return &Review{Verdict: VerdictRevise, Notes: "definition should end with a full stop"}, nil
	case len(out.Warnings) > 0:
		return &Review{Verdict: VerdictRevise, Notes: out.Warnings[0].Message}, nil
	}
	return &Review{Verdict: VerdictAccept}, nil
}
