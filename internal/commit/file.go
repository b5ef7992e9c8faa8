package commit

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"term-forge/internal/obo"
)

// FileCommitter writes change sets straight into an OBO file. New ids
// continue after the highest existing id with the configured prefix.
type FileCommitter struct {
	path   string
	prefix string

	mu sync.Mutex
}

// NewFileCommitter commits into the OBO file at path, allocating ids with
// prefix (e.g. "GO").
func NewFileCommitter(path, prefix string) *FileCommitter {
	return &FileCommitter{path: path, prefix: prefix}
}

// Commit implements Committer. Only the stanzas of changed terms are
// rewritten and new terms are appended; the file is replaced atomically.
func (fc *FileCommitter) Commit(ctx context.Context, cs *ChangeSet) (*Result, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, doc, err := fc.read()
	if err != nil {
		return nil, err
	}

	assigned := make(map[string]string)
	next := fc.highestID(doc) + 1
	for _, id := range cs.Pending() {
		assigned[id] = FormatID(fc.prefix, next)
		next++
	}
	frames, err := cs.Resolve(assigned)
	if err != nil {
		return nil, &CommitError{Vocabulary: cs.Vocabulary, ChangeSet: cs.ID.String(), Err: err}
	}

	for i, c := range cs.Changes {
		current := doc.Frame(frames[i].ID)
		switch c.Kind {
		case ChangeAdd:
			if current != nil {
				return nil, fc.conflict(cs, "term %s already exists", frames[i].ID)
			}
		case ChangeModify:
			if current == nil {
				return nil, fc.conflict(cs, "term %s does not exist", frames[i].ID)
			}
		case ChangeObsolete:
			if current == nil {
				return nil, fc.conflict(cs, "term %s does not exist", frames[i].ID)
			}
			if current.Value(obo.TagIsObsolete) == "true" {
				return nil, fc.conflict(cs, "term %s is already obsolete", frames[i].ID)
			}
		}
		doc.Put(frames[i])
	}

	if err := fc.write(obo.Splice(string(data), frames)); err != nil {
		return nil, err
	}
	return &Result{Success: true, Reference: cs.ID.String(), AssignedIDs: assigned}, nil
}

func (fc *FileCommitter) conflict(cs *ChangeSet, format string, args ...any) error {
	return &CommitError{
		Vocabulary: cs.Vocabulary,
		ChangeSet:  cs.ID.String(),
		Err:        fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...),
	}
}

func (fc *FileCommitter) highestID(doc *obo.Document) int64 {
	var max int64
	for _, f := range doc.Frames {
		if n, ok := ParseID(f.ID, fc.prefix); ok && n > max {
			max = n
		}
	}
	return max
}

func (fc *FileCommitter) read() ([]byte, *obo.Document, error) {
	data, err := os.ReadFile(fc.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", fc.path, err)
	}
	doc, err := obo.Read(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", fc.path, err)
	}
	return data, doc, nil
}

func (fc *FileCommitter) write(text string) error {
	tmp, err := os.CreateTemp(filepath.Dir(fc.path), ".termforge-*.obo")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), fc.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", fc.path, err)
	}
	return nil
}
