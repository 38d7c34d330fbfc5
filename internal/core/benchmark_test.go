package core

import (
	"fmt"
	"testing"

	"github.com/JonMunkholm/personimport/internal/catalog"
	"github.com/JonMunkholm/personimport/internal/tabular"
)

// ============================================================================
// Pipeline Benchmarks
// ============================================================================

// benchRaws builds n raw rows where every tenth row shares an email with the
// row before it.
func benchRaws(n int) []tabular.RawRow {
	raws := make([]tabular.RawRow, n)
	for i := range raws {
		id := i
		if i%10 == 9 {
			id = i - 1
		}
		raws[i] = tabular.RawRow{
			"Name":    fmt.Sprintf("Person %d", i),
			"Email":   fmt.Sprintf("person%d@example.com", id),
			"Phone":   fmt.Sprintf("555-%07d", i),
			"Company": "Acme Steel",
			"Type":    "ironworker",
			"Skills":  "welding, rigging; welding",
		}
	}
	return raws
}

var benchHeaders = []string{"Name", "Email", "Phone", "Company", "Type", "Skills"}

// BenchmarkInferMapping benchmarks header mapping inference.
func BenchmarkInferMapping(b *testing.B) {
	cat := catalog.Default()
	headers := []string{"Full Name", "E-mail Address", "Mobile", "Employer", "Person Type", "Trades", "IW #", "Local Union", "Notes"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		InferMapping(cat, headers)
	}
}

// BenchmarkNormalizeTable benchmarks normalization of a maximum size file.
func BenchmarkNormalizeTable(b *testing.B) {
	raws := benchRaws(DefaultMaxRows)
	m := InferMapping(catalog.Default(), benchHeaders)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NormalizeTable(raws, m)
	}
}

// BenchmarkRecomputeDedupeFlags benchmarks the full pass run after every edit.
func BenchmarkRecomputeDedupeFlags(b *testing.B) {
	rows := NormalizeTable(benchRaws(DefaultMaxRows), InferMapping(catalog.Default(), benchHeaders))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RecomputeDedupeFlags(rows)
	}
}

// BenchmarkAutoExclude benchmarks auto-exclusion over a file with duplicates.
func BenchmarkAutoExclude(b *testing.B) {
	rows := RecomputeDedupeFlags(NormalizeTable(benchRaws(DefaultMaxRows), InferMapping(catalog.Default(), benchHeaders)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		AutoExclude(rows)
	}
}
