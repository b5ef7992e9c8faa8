package templates

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// templateFile is the exchange form of a template set.
type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// MarshalYAML writes the cardinality as "min..max".
func (c Cardinality) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// UnmarshalYAML reads the "min..max" form.
func (c *Cardinality) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseCardinality(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ReadTemplates parses a template set and validates every template. The
// returned slice keeps document order.
func ReadTemplates(r io.Reader) ([]Template, error) {
	var file templateFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode templates: %w", err)
	}

	names := make(map[string]bool, len(file.Templates))
	for i := range file.Templates {
		t := &file.Templates[i]
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if names[t.Name] {
			return nil, fmt.Errorf("%w: duplicate template %s", ErrInvalidTemplate, t.Name)
		}
		names[t.Name] = true
	}
	return file.Templates, nil
}

// WriteTemplates serializes a template set in the given order.
func WriteTemplates(w io.Writer, ts []Template) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(templateFile{Templates: ts}); err != nil {
		return fmt.Errorf("failed to encode templates: %w", err)
	}
	return enc.Close()
}

// LoadFile reads a template set from a YAML file.
func LoadFile(path string) ([]Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ts, err := ReadTemplates(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ts, nil
}

// LoadDir reads the template set of one ontology from "<dir>/<ontology>.yaml".
// A missing file yields an empty set.
func LoadDir(dir, ontology string) ([]Template, error) {
	path := filepath.Join(dir, ontology+".yaml")
	ts, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return ts, err
}
