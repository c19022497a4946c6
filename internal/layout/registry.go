package layout

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/insightdelivered/statement-ledger/internal/models"
)

//go:embed layouts.yaml
var embeddedLayouts []byte

// HeaderSet is one known spreadsheet header vocabulary.
type HeaderSet struct {
	Name     string                    `yaml:"name" json:"name"`
	Columns  map[models.Field][]string `yaml:"columns" json:"columns"`
	Required []models.Field            `yaml:"required" json:"required"`
}

// Spreadsheets configures the spreadsheet and CSV variant.
type Spreadsheets struct {
	HeaderRows int         `yaml:"header_rows" json:"headerRows"`
	MinColumns int         `yaml:"min_columns" json:"minColumns"`
	Formats    []string    `yaml:"date_formats" json:"dateFormats,omitempty"`
	Headers    []HeaderSet `yaml:"headers" json:"headers"`
}

// file is the top-level YAML structure.
type file struct {
	Layouts      []Descriptor `yaml:"layouts"`
	Spreadsheets Spreadsheets `yaml:"spreadsheets"`
}

// Registry holds validated descriptors in evaluation order.
type Registry struct {
	layouts      []*Descriptor // highest priority first, YAML order on ties
	byName       map[string]*Descriptor
	spreadsheets Spreadsheets
}

// Parse builds a registry from YAML data.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse layouts YAML (check syntax, indentation, and field names): %w", err)
	}
	if len(f.Layouts) == 0 {
		return nil, fmt.Errorf("no layouts defined")
	}

	r := &Registry{byName: make(map[string]*Descriptor, len(f.Layouts))}
	for i := range f.Layouts {
		d := &f.Layouts[i]
		if err := d.Compile(); err != nil {
			return nil, fmt.Errorf("layout %d: %w", i, err)
		}
		key := strings.ToLower(d.Name)
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("layout %d: duplicate name %q", i, d.Name)
		}
		r.byName[key] = d
		r.layouts = append(r.layouts, d)
	}
	sort.SliceStable(r.layouts, func(i, j int) bool {
		return r.layouts[i].Priority > r.layouts[j].Priority
	})

	if err := f.Spreadsheets.validate(); err != nil {
		return nil, fmt.Errorf("spreadsheets: %w", err)
	}
	r.spreadsheets = f.Spreadsheets
	return r, nil
}

func (s *Spreadsheets) validate() error {
	if s.HeaderRows == 0 {
		s.HeaderRows = 30
	}
	if s.MinColumns == 0 {
		s.MinColumns = 3
	}
	for i, h := range s.Headers {
		if len(h.Required) == 0 {
			return fmt.Errorf("header set %d (%s): no required columns", i, h.Name)
		}
		for _, f := range h.Required {
			if len(h.Columns[f]) == 0 {
				return fmt.Errorf("header set %d (%s): required column %q has no terms", i, h.Name, f)
			}
		}
		for f := range h.Columns {
			if !f.Valid() {
				return fmt.Errorf("header set %d (%s): unknown field %q", i, h.Name, f)
			}
		}
	}
	return nil
}

// LoadEmbedded loads the layouts compiled into the binary.
func LoadEmbedded() (*Registry, error) {
	r, err := Parse(embeddedLayouts)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded layouts: %w", err)
	}
	return r, nil
}

// LoadFile loads layouts from a filesystem path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layouts file: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load layouts from %q: %w", path, err)
	}
	return r, nil
}

// Load returns the registry at path, or the embedded one when path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return LoadEmbedded()
	}
	return LoadFile(path)
}

// Lookup finds a descriptor by case-insensitive name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// All returns the descriptors in evaluation order.
func (r *Registry) All() []*Descriptor {
	out := make([]*Descriptor, len(r.layouts))
	copy(out, r.layouts)
	return out
}

// Names returns descriptor names in evaluation order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.layouts))
	for i, d := range r.layouts {
		names[i] = d.Name
	}
	return names
}

// Family returns the descriptors sharing family, in evaluation order.
func (r *Registry) Family(family string) []*Descriptor {
	if family == "" {
		return nil
	}
	var out []*Descriptor
	for _, d := range r.layouts {
		if d.Family == family {
			out = append(out, d)
		}
	}
	return out
}

// Spreadsheets returns the spreadsheet header vocabularies.
func (r *Registry) Spreadsheets() Spreadsheets {
	return r.spreadsheets
}
