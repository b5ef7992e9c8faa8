package commit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"term-forge/internal/generation"
	"term-forge/internal/obo"
	"term-forge/internal/ontology"
)

// Options configures an Engine.
type Options struct {
	Hooks  Hooks
	Logger *slog.Logger
	// Now stamps creation dates; defaults to time.Now.
	Now func() time.Time
}

// Engine builds change sets and delegates them to a Committer. Preparing a
// change set only reads the graph it is given, so the engine holds no state
// between calls.
type Engine struct {
	committer Committer
	hooks     Hooks
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates an engine that commits through committer.
func NewEngine(committer Committer, opts Options) *Engine {
	e := &Engine{committer: committer, hooks: opts.Hooks, logger: opts.Logger, now: opts.Now}
	if e.hooks == nil {
		e.hooks = DefaultHooks()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func (e *Engine) newChangeSet(vocabulary, author string) *ChangeSet {
	return &ChangeSet{ID: uuid.New(), Vocabulary: vocabulary, Author: author, CreatedAt: e.now()}
}

// PrepareAdditions converts candidates into a change set. Candidates without
// an id are added under placeholder ids; candidates with an id modify the
// existing term.
func (e *Engine) PrepareAdditions(g *ontology.Graph, author string, outs []generation.Output) (*ChangeSet, error) {
	if len(outs) == 0 {
		return nil, ErrEmptyChangeSet
	}
	cs := e.newChangeSet(g.Name(), author)
	pending := 0
	for _, o := range outs {
		kind := ChangeAdd
		id := o.ID
		var canonical *obo.Frame
		if id == "" {
			id = fmt.Sprintf("%s%d", PendingPrefix, pending)
			pending++
		} else {
			f, ok := g.Frame(id)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ontology.ErrUnknownTerm, id)
			}
			canonical = f
			kind = ChangeModify
		}

		proposed := frameFromOutput(id, author, cs.CreatedAt, o)
		diff, err := ComputeDiff(canonical, proposed)
		if err != nil {
			return nil, err
		}
		cs.Changes = append(cs.Changes, Change{Kind: kind, Frame: proposed, Diff: diff})
	}
	return cs, nil
}

// PrepareObsoletion builds a single-change set that makes termID obsolete
// with the vocabulary's obsoletion hook. replacedBy terms must exist.
func (e *Engine) PrepareObsoletion(g *ontology.Graph, author, termID, reason string, replacedBy ...string) (*ChangeSet, error) {
	canonical, ok := g.Frame(termID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ontology.ErrUnknownTerm, termID)
	}
	proposed := canonical.Clone()
	e.hooks.For(g.Name())(proposed, reason)
	for _, r := range replacedBy {
		if _, ok := g.Term(r); !ok {
			return nil, fmt.Errorf("replacement %w: %s", ontology.ErrUnknownTerm, r)
		}
		if !containsValue(proposed.Values(obo.TagReplacedBy), r) {
			proposed.Add(obo.NewClause(obo.TagReplacedBy, r))
		}
	}

	diff, err := ComputeDiff(canonical, proposed)
	if err != nil {
		return nil, err
	}
	if diff.Empty() {
		return nil, fmt.Errorf("%w: %s is already obsolete", ErrNoChange, termID)
	}
	diff.ObsoleteReason = reason

	cs := e.newChangeSet(g.Name(), author)
	cs.Changes = []Change{{Kind: ChangeObsolete, Frame: proposed, Diff: diff}}
	return cs, nil
}

// Commit hands cs to the committer. Rejections are returned as *CommitError
// carrying the committer's error unchanged; nothing is retried.
func (e *Engine) Commit(ctx context.Context, cs *ChangeSet) (*Result, error) {
	if cs == nil || len(cs.Changes) == 0 {
		return nil, ErrEmptyChangeSet
	}
	start := time.Now()
	res, err := e.committer.Commit(ctx, cs)
	if err == nil && (res == nil || !res.Success) {
		err = errors.New("committer reported failure")
	}
	if err != nil {
		var ce *CommitError
		if !errors.As(err, &ce) {
			err = &CommitError{Vocabulary: cs.Vocabulary, ChangeSet: cs.ID.String(), Err: err}
		}
		e.logger.Error("commit rejected", "ontology", cs.Vocabulary, "changeset", cs.ID, "error", err)
		return nil, err
	}
	if missing := missingAssignments(cs, res); len(missing) > 0 {
		err := &CommitError{
			Vocabulary: cs.Vocabulary,
			ChangeSet:  cs.ID.String(),
			Err:        fmt.Errorf("committer did not assign ids to %v", missing),
		}
		e.logger.Error("commit incomplete", "ontology", cs.Vocabulary, "changeset", cs.ID, "error", err)
		return nil, err
	}
	e.logger.Info("change set committed", "ontology", cs.Vocabulary, "changeset", cs.ID,
		"reference", res.Reference, "changes", len(cs.Changes), "duration", time.Since(start))
	return res, nil
}

func missingAssignments(cs *ChangeSet, res *Result) []string {
	var missing []string
	for _, id := range cs.Pending() {
		if _, ok := res.AssignedIDs[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func containsValue(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
