package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed assets
var assets embed.FS

// Assets returns the embedded default catalog, email templates and layouts.
// Templates live under "emails", layouts under "layouts".
func Assets() fs.FS {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

// CatalogFile is the name of the catalog inside Assets.
const CatalogFile = "catalog.yaml"

// Catalog is the YAML document the registry is built from.
type Catalog struct {
	Events []Entry `yaml:"events"`
}

// Entry declares one event.
type Entry struct {
	Variables map[string]Variable `yaml:"variables"`
	Event     string              `yaml:"event"`
	Template  string              `yaml:"template"`
	Subject   string              `yaml:"subject"`
	Layout    string              `yaml:"layout"`
	Tags      []string            `yaml:"tags"`
}

// Variable is one entry of a template contract.
type Variable struct {
	Type     Type `yaml:"type"`
	Required bool `yaml:"required"`
}

// ParseCatalog decodes a catalog. Unknown keys are rejected so typos in the
// catalog fail loudly.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidCatalog)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return &c, nil
}

// Load builds a registry from the catalog at path, or from the embedded
// default catalog when path is empty.
func Load(path string) (*Registry, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = fs.ReadFile(Assets(), CatalogFile)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("templates: read catalog: %w", err)
	}

	c, err := ParseCatalog(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return NewRegistry(c.Events)
}
