package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overrides is the YAML shape accepted by LoadFile:
//
//	synonyms:
//	  company: ["contractor firm", "sub"]
//	  ironworkerNumber: ["book number"]
//	required: [displayName, type]
//
// Synonyms are appended to the built-in sets (normalized on load). When
// Required is present it replaces the built-in required flags.
type Overrides struct {
	Synonyms map[FieldKey][]string `yaml:"synonyms"`
	Required []FieldKey            `yaml:"required"`
}

// LoadFile returns the default catalog extended with the overrides in path.
// An empty path returns the default catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var ov Overrides
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}

	return Default().Apply(ov)
}

// Apply returns a copy of c with the overrides applied. Unknown field keys
// are rejected so a typo in the file does not silently do nothing.
func (c *Catalog) Apply(ov Overrides) (*Catalog, error) {
	fields := c.Fields()
	next := New(fields)

	for key, extra := range ov.Synonyms {
		i, ok := next.index[key]
		if !ok {
			return nil, fmt.Errorf("unknown catalog field %q", key)
		}
		seen := make(map[string]bool, len(fields[i].Synonyms))
		syns := append([]string(nil), fields[i].Synonyms...)
		for _, s := range syns {
			seen[s] = true
		}
		for _, s := range extra {
			n := NormalizeHeader(s)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			syns = append(syns, n)
		}
		fields[i].Synonyms = syns
	}

	if ov.Required != nil {
		want := make(map[FieldKey]bool, len(ov.Required))
		for _, key := range ov.Required {
			if !next.Has(key) {
				return nil, fmt.Errorf("unknown catalog field %q", key)
			}
			want[key] = true
		}
		for i := range fields {
			fields[i].Required = want[fields[i].Key]
		}
	}

	return next, nil
}
