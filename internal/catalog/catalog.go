// Package catalog holds the data-schema catalog: the ordered list of
// addressable data paths per category, with the human labels and synonyms
// the auto-mapper scores against. The catalog is versioned configuration;
// removing an entry silently invalidates existing mappings, so entries are
// only ever appended.
package catalog

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/lotworks/dealdocs/internal/docpath"
)

// Entry is one addressable data path with its display label and the synonym
// set used for auto-map scoring.
type Entry struct {
	Value    string   `yaml:"value" json:"value"`
	Label    string   `yaml:"label" json:"label"`
	Synonyms []string `yaml:"synonyms,omitempty" json:"synonyms,omitempty"`
}

// CategorySpec is the file form of one category's ordered entry list.
type CategorySpec struct {
	Name   string  `yaml:"name" json:"name"`
	Fields []Entry `yaml:"fields" json:"fields"`
}

// Catalog is an immutable, ordered data-schema catalog. Declaration order
// is significant: it is the final auto-map tie-break.
type Catalog struct {
	specs CategorySpecs
	flat  []Entry
}

// CategorySpecs is the ordered category list as loaded from file.
type CategorySpecs []CategorySpec

// New builds a Catalog from ordered category specs. Every entry value must
// parse as a data path; malformed entries are rejected so a bad catalog
// file fails loudly at startup rather than at mapping time.
func New(specs CategorySpecs) (*Catalog, error) {
	c := &Catalog{specs: specs}
	for _, cs := range specs {
		for _, e := range cs.Fields {
			if _, err := docpath.Parse(e.Value); err != nil {
				return nil, eris.Wrapf(err, "catalog: category %q entry %q", cs.Name, e.Label)
			}
			c.flat = append(c.flat, e)
		}
	}
	return c, nil
}

// All returns every entry in declaration order. Callers must not mutate the
// returned slice.
func (c *Catalog) All() []Entry {
	return c.flat
}

// Categories returns the ordered category specs, for UIs listing available
// data paths.
func (c *Catalog) Categories() CategorySpecs {
	return c.specs
}

// Len returns the total entry count.
func (c *Catalog) Len() int {
	return len(c.flat)
}

// LoadFromFile reads a YAML catalog override. The file carries an ordered
// `categories` list so declaration order survives the round trip.
func LoadFromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read file")
	}

	var doc struct {
		Categories CategorySpecs `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "catalog: unmarshal")
	}
	if len(doc.Categories) == 0 {
		return nil, eris.New("catalog: file has no categories")
	}

	return New(doc.Categories)
}
