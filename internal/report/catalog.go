package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/tabexport/internal/export"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// ReportType identifies a system report known to the remote service.
type ReportType string

// Definition describes one report type.
type Definition struct {
	Type        ReportType       `yaml:"type" json:"type"`
	Title       string           `yaml:"title" json:"title"`
	Description string           `yaml:"description" json:"description,omitempty"`
	Headers     export.HeaderMap `yaml:"headers" json:"headers"`
}

// Catalog is the set of report types that may be requested.
type Catalog struct {
	mu    sync.RWMutex
	defs  map[ReportType]Definition
	order []ReportType
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{defs: make(map[ReportType]Definition)}
}

// Register adds a definition. It fails if the type is empty or already registered.
func (c *Catalog) Register(def Definition) error {
	if def.Type == "" {
		return fmt.Errorf("report definition has no type")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.defs[def.Type]; exists {
		return fmt.Errorf("report type already registered: %s", def.Type)
	}
	if def.Title == "" {
		def.Title = string(def.Type)
	}
	c.defs[def.Type] = def
	c.order = append(c.order, def.Type)
	return nil
}

// Get returns the definition for a report type.
func (c *Catalog) Get(t ReportType) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[t]
	return def, ok
}

// All returns every definition in registration order.
func (c *Catalog) All() []Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Definition, 0, len(c.order))
	for _, t := range c.order {
		out = append(out, c.defs[t])
	}
	return out
}

// Types returns the registered report types sorted by name.
func (c *Catalog) Types() []ReportType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ReportType, 0, len(c.defs))
	for t := range c.defs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type catalogFile struct {
	Reports []Definition `yaml:"reports"`
}

// LoadCatalog parses a YAML catalog.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse report catalog: %w", err)
	}

	c := NewCatalog()
	for _, def := range file.Reports {
		if err := c.Register(def); err != nil {
			return nil, fmt.Errorf("parse report catalog: %w", err)
		}
	}
	return c, nil
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(bytes.NewReader(builtinCatalog))
	if err != nil {
		panic(fmt.Sprintf("built-in report catalog: %v", err))
	}
	return c
}

// LoadCatalogFile loads a catalog from path, or the built-in catalog when
// path is empty.
func LoadCatalogFile(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}
