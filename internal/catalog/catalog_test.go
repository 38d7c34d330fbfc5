package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Shape(t *testing.T) {
	c := Default()

	assert.Equal(t, 19, c.Len())
	assert.Equal(t, []FieldKey{FieldDisplayName}, c.Required())

	seen := make(map[FieldKey]bool)
	for _, f := range c.Fields() {
		assert.False(t, seen[f.Key], "duplicate key %s", f.Key)
		seen[f.Key] = true
		assert.NotEmpty(t, f.Label, "field %s has no label", f.Key)
		for _, s := range f.Synonyms {
			assert.Equal(t, NormalizeHeader(s), s, "synonym %q of %s is not normalized", s, f.Key)
		}
	}
}

func TestDefault_ReturnsIndependentCopies(t *testing.T) {
	a := Default()
	b := Default()

	fa := a.Fields()
	fa[0].Synonyms[0] = "mutated"

	fb, ok := b.Field(FieldType)
	require.True(t, ok)
	assert.Equal(t, "type", fb.Synonyms[0])
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"E-mail Address", "emailaddress"},
		{"  Primary_Phone ", "primaryphone"},
		{"Ironworker #", "ironworker"},
		{"Café", "café"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHeader(tt.in))
		})
	}
}

func TestApply(t *testing.T) {
	c, err := Default().Apply(Overrides{
		Synonyms: map[FieldKey][]string{
			FieldCompany: {"Contractor Firm", "company"},
		},
		Required: []FieldKey{FieldDisplayName, FieldType},
	})
	require.NoError(t, err)

	f, _ := c.Field(FieldCompany)
	assert.Contains(t, f.Synonyms, "contractorfirm")
	assert.Equal(t, 1, countOf(f.Synonyms, "company"))
	assert.Equal(t, []FieldKey{FieldType, FieldDisplayName}, c.Required())

	// The default catalog is untouched.
	orig, _ := Default().Field(FieldCompany)
	assert.NotContains(t, orig.Synonyms, "contractorfirm")
}

func TestApply_UnknownField(t *testing.T) {
	_, err := Default().Apply(Overrides{Synonyms: map[FieldKey][]string{"nope": {"x"}}})
	assert.Error(t, err)

	_, err = Default().Apply(Overrides{Required: []FieldKey{"nope"}})
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	body := "synonyms:\n  ironworkerNumber: [\"Book Number\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)

	f, _ := c.Field(FieldIronworkerNumber)
	assert.Contains(t, f.Synonyms, "booknumber")

	def, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Default().Len(), def.Len())

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func countOf(list []string, v string) int {
	n := 0
	for _, s := range list {
		if s == v {
			n++
		}
	}
	return n
}
