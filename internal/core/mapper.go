package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/personimport/internal/catalog"
)

// Mapping assigns a file header to each mapped catalog field. Fields without
// an entry (or with an empty header) are unmapped.
type Mapping map[catalog.FieldKey]string

// InferMapping suggests a header for every catalog field it can recognise.
//
// Each field is resolved on its own: the first header (in header order) whose
// normalized form equals one of its synonyms, else the first header that
// contains one. Two fields may suggest the same header; the operator settles
// that when confirming the mapping. The result depends only on the inputs.
func InferMapping(cat *catalog.Catalog, headers []string) Mapping {
	norm := make([]string, len(headers))
	for i, h := range headers {
		norm[i] = catalog.NormalizeHeader(h)
	}

	m := make(Mapping)
	for _, f := range cat.Fields() {
		if i := matchHeader(norm, f.Synonyms); i >= 0 {
			m[f.Key] = headers[i]
		}
	}
	return m
}

// matchHeader returns the index of the header matching synonyms, exact
// matches first, or -1.
func matchHeader(norm, synonyms []string) int {
	for i, n := range norm {
		if n == "" {
			continue
		}
		for _, s := range synonyms {
			if n == s {
				return i
			}
		}
	}
	for i, n := range norm {
		if n == "" {
			continue
		}
		for _, s := range synonyms {
			if s != "" && strings.Contains(n, s) {
				return i
			}
		}
	}
	return -1
}

// Header returns the header mapped to key, or "".
func (m Mapping) Header(key catalog.FieldKey) string {
	return strings.TrimSpace(m[key])
}

// Missing returns the required fields that have no non-empty mapping, in
// catalog order.
func (m Mapping) Missing(cat *catalog.Catalog) []catalog.FieldKey {
	var missing []catalog.FieldKey
	for _, key := range cat.Required() {
		if m.Header(key) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// Clone returns an independent copy without empty entries.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

// Validate checks that every key is a catalog field and every header exists
// in headers. Empty headers are allowed and mean "unmapped".
func (m Mapping) Validate(cat *catalog.Catalog, headers []string) error {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	var problems []string
	for _, k := range keys {
		key := catalog.FieldKey(k)
		if !cat.Has(key) {
			problems = append(problems, fmt.Sprintf("unknown field %q", k))
			continue
		}
		if h := m[key]; h != "" && !present[h] {
			problems = append(problems, fmt.Sprintf("field %q: header %q not in file", k, h))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidMapping, strings.Join(problems, "; "))
	}
	return nil
}

// overlay returns m with every non-empty entry of over applied on top, keeping
// only headers present in the file.
func (m Mapping) overlay(over Mapping, headers []string) Mapping {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}

	out := m.Clone()
	for k, h := range over {
		if h != "" && present[h] {
			// Drop any other field that the inferred mapping gave this header.
			for ok, oh := range out {
				if oh == h && ok != k {
					delete(out, ok)
				}
			}
			out[k] = h
		}
	}
	return out
}
