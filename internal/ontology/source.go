package ontology

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"term-forge/internal/obo"
)

// Source builds a fresh graph instance for a descriptor.
type Source interface {
	Load(ctx context.Context, d Descriptor) (*Graph, error)
}

// LoadError reports a failure to read or parse one document.
type LoadError struct {
	Locator string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Locator, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// FileSource loads OBO documents from the local filesystem. The main
// document and all support documents are parsed concurrently and merged in
// declaration order; terms from the main document win over support terms
// with the same id.
type FileSource struct {
	// Workers bounds concurrent document parsing; zero means unbounded.
	Workers int
}

// Load implements Source.
func (s FileSource) Load(ctx context.Context, d Descriptor) (*Graph, error) {
	if d.Source == "" {
		return nil, &LoadError{Locator: d.Name, Err: fmt.Errorf("no source configured")}
	}

	locators := append([]string{d.Source}, d.Support...)
	docs := make([]*obo.Document, len(locators))

	eg, ctx := errgroup.WithContext(ctx)
	if s.Workers > 0 {
		eg.SetLimit(s.Workers)
	}
	for i, loc := range locators {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			doc, err := readFile(loc)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	g, err := NewGraphFromDocument(d, docs[0])
	if err != nil {
		return nil, &LoadError{Locator: d.Source, Err: err}
	}
	for i, doc := range docs[1:] {
		for _, f := range doc.Frames {
			if f.Type != obo.FrameTypeTerm {
				continue
			}
			if _, exists := g.Term(f.ID); exists {
				continue
			}
			if err := g.AddFrame(f); err != nil {
				return nil, &LoadError{Locator: d.Support[i], Err: err}
			}
		}
	}
	return g, nil
}

func readFile(path string) (*obo.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Locator: path, Err: err}
	}
	defer f.Close()

	doc, err := obo.Read(f)
	if err != nil {
		return nil, &LoadError{Locator: path, Err: err}
	}
	return doc, nil
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, d Descriptor) (*Graph, error)

// Load implements Source.
func (f SourceFunc) Load(ctx context.Context, d Descriptor) (*Graph, error) {
	return f(ctx, d)
}
