// Package templatecache keeps the parsed templates of each ontology in
// memory, loading them on first use.
package templatecache

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"term-forge/internal/templates"
)

// ErrUnknownTemplate is returned when an ontology has no template with the
// requested name.
var ErrUnknownTemplate = errors.New("unknown template")

// Loader reads the templates configured for an ontology.
type Loader func(ontology string) ([]templates.Template, error)

// DirLoader loads "<dir>/<ontology>.yaml".
func DirLoader(dir string) Loader {
	return func(ontology string) ([]templates.Template, error) {
		return templates.LoadDir(dir, ontology)
	}
}

type entry struct {
	list   []templates.Template
	byName map[string]*templates.Template
}

// Cache is safe for concurrent use. Its lock is independent of any ontology
// task lock, so it can be invalidated from reload hooks.
type Cache struct {
	load   Loader
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a cache backed by load.
func New(load Loader, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{load: load, logger: logger, entries: make(map[string]*entry)}
}

func (c *Cache) get(ontology string) (*entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[ontology]; ok {
		return e, nil
	}
	list, err := c.load(ontology)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates for %s: %w", ontology, err)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	e := &entry{list: list, byName: make(map[string]*templates.Template, len(list))}
	for i := range e.list {
		e.byName[e.list[i].Name] = &e.list[i]
	}
	c.entries[ontology] = e
	c.logger.Debug("templates loaded", "ontology", ontology, "count", len(list))
	return e, nil
}

// Templates returns the templates of an ontology sorted by name. The slice
// is a copy; the templates themselves must be treated as read-only.
func (c *Cache) Templates(ontology string) ([]templates.Template, error) {
	e, err := c.get(ontology)
	if err != nil {
		return nil, err
	}
	return append([]templates.Template(nil), e.list...), nil
}

// Template looks up one template by name.
func (c *Cache) Template(ontology, name string) (*templates.Template, error) {
	e, err := c.get(ontology)
	if err != nil {
		return nil, err
	}
	t, ok := e.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s for ontology %s", ErrUnknownTemplate, name, ontology)
	}
	return t, nil
}

// Invalidate drops the cached templates of an ontology. It has the signature
// of a task manager reload hook.
func (c *Cache) Invalidate(ontology string) {
	c.mu.Lock()
	delete(c.entries, ontology)
	c.mu.Unlock()
	c.logger.Debug("templates invalidated", "ontology", ontology)
}
