package commit

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConflict is returned by committers when a change set collides with
	// the canonical source, e.g. obsoleting a term twice.
	ErrConflict = errors.New("conflicting change")
	// ErrEmptyChangeSet is returned when there is nothing to commit.
	ErrEmptyChangeSet = errors.New("empty change set")
	// ErrNoChange is returned when a requested edit leaves a term unchanged.
	ErrNoChange = errors.New("no change")
)

// Result is the outcome of a successful commit. AssignedIDs maps the
// placeholder id of every added term to its permanent id.
type Result struct {
	Success     bool              `json:"success"`
	Reference   string            `json:"reference"`
	AssignedIDs map[string]string `json:"assigned_ids,omitempty"`
}

// Committer persists change sets to the canonical source. Implementations
// serialize commits to the same vocabulary.
type Committer interface {
	Commit(ctx context.Context, cs *ChangeSet) (*Result, error)
}

// CommitError reports a change set the committer rejected.
type CommitError struct {
	Vocabulary string
	ChangeSet  string
	Err        error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit of change set %s to %s rejected: %v", e.ChangeSet, e.Vocabulary, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// ErrNoCommitter is returned by a Router for vocabularies it has no
// committer for.
var ErrNoCommitter = errors.New("no committer for vocabulary")

// Router dispatches change sets to the committer of their vocabulary.
type Router map[string]Committer

// Commit implements Committer.
func (r Router) Commit(ctx context.Context, cs *ChangeSet) (*Result, error) {
	c, ok := r[cs.Vocabulary]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCommitter, cs.Vocabulary)
	}
	return c.Commit(ctx, cs)
}
