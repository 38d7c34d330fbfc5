package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// AutoExcludedIssue is attached to rows excluded by AutoExclude.
const AutoExcludedIssue = "Auto-excluded duplicate"

// KeyKind identifies what a dedupe key was built from.
type KeyKind string

const (
	KeyPrimaryEmail     KeyKind = "primaryEmail"
	KeyIronworkerNumber KeyKind = "ironworkerNumber"
	KeyPrimaryPhone     KeyKind = "primaryPhone"
	KeyNameCompany      KeyKind = "nameCompany"
)

// keyKinds is the order issues are reported in.
var keyKinds = []KeyKind{KeyPrimaryEmail, KeyIronworkerNumber, KeyPrimaryPhone, KeyNameCompany}

// Label is the human-readable kind used in issue text.
func (k KeyKind) Label() string {
	switch k {
	case KeyPrimaryEmail:
		return "primary email"
	case KeyIronworkerNumber:
		return "ironworker number"
	case KeyPrimaryPhone:
		return "primary phone"
	case KeyNameCompany:
		return "name + company"
	default:
		return string(k)
	}
}

// Blocking reports whether duplicates of this kind must be resolved before
// preview.
func (k KeyKind) Blocking() bool {
	return k != KeyNameCompany
}

// DedupeKey is one identity value of a row.
type DedupeKey struct {
	Kind     KeyKind `json:"kind"`
	Value    string  `json:"value"`
	Blocking bool    `json:"blocking"`
}

// DuplicateGroup is a key carried by two or more included rows.
type DuplicateGroup struct {
	Key        DedupeKey `json:"key"`
	RowNumbers []int     `json:"rowNumbers"`
}

// RowKeys returns the dedupe keys of an included row. Excluded rows have none.
func RowKeys(r WorkingRow) []DedupeKey {
	if r.Excluded {
		return nil
	}

	var keys []DedupeKey
	if v := strings.ToLower(strings.TrimSpace(r.PrimaryEmail)); v != "" {
		keys = append(keys, DedupeKey{Kind: KeyPrimaryEmail, Value: v, Blocking: true})
	}
	if v := normalizeIronworker(r.IronworkerNumber); v != "" {
		keys = append(keys, DedupeKey{Kind: KeyIronworkerNumber, Value: v, Blocking: true})
	}
	if v := digitsOf(r.PrimaryPhone); len(v) >= MinPhoneDigits {
		keys = append(keys, DedupeKey{Kind: KeyPrimaryPhone, Value: v, Blocking: true})
	}
	name, company := foldText(r.DisplayName), foldText(r.Company)
	if name != "" && company != "" {
		keys = append(keys, DedupeKey{Kind: KeyNameCompany, Value: name + "|" + company})
	}
	return keys
}

func normalizeIronworker(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// foldText lower-cases s, strips diacritics and collapses whitespace, so
// "José  Núñez" and "jose nunez" compare equal.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// DuplicateGroups returns every key shared by two or more included rows,
// ordered by kind and then by lowest row number.
func DuplicateGroups(rows []WorkingRow) []DuplicateGroup {
	index := make(map[DedupeKey][]int)
	for _, r := range rows {
		for _, k := range RowKeys(r) {
			index[k] = append(index[k], r.RowNumber)
		}
	}

	var groups []DuplicateGroup
	for k, nums := range index {
		nums = sortedUnique(nums)
		if len(nums) < 2 {
			continue
		}
		groups = append(groups, DuplicateGroup{Key: k, RowNumbers: nums})
	}

	order := make(map[KeyKind]int, len(keyKinds))
	for i, k := range keyKinds {
		order[k] = i
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if order[a.Key.Kind] != order[b.Key.Kind] {
			return order[a.Key.Kind] < order[b.Key.Kind]
		}
		if a.RowNumbers[0] != b.RowNumbers[0] {
			return a.RowNumbers[0] < b.RowNumbers[0]
		}
		return a.Key.Value < b.Key.Value
	})
	return groups
}

// BlockingGroups returns the duplicate groups that prevent preview.
func BlockingGroups(rows []WorkingRow) []DuplicateGroup {
	var out []DuplicateGroup
	for _, g := range DuplicateGroups(rows) {
		if g.Key.Blocking {
			out = append(out, g)
		}
	}
	return out
}

// RecomputeDedupeFlags returns a copy of rows with every dedupe issue
// replaced by a fresh computation. Other issues are kept as they are. The
// input is not modified and applying it twice gives the same result.
func RecomputeDedupeFlags(rows []WorkingRow) []WorkingRow {
	out := cloneRows(rows)
	for i := range out {
		out[i].Issues = withoutSource(out[i].Issues, IssueDedupe)
	}

	pos := make(map[int]int, len(out))
	for i, r := range out {
		pos[r.RowNumber] = i
	}

	for _, g := range DuplicateGroups(out) {
		issue := Issue{Source: IssueDedupe, Text: groupText(g), Blocking: g.Key.Blocking}
		for _, n := range g.RowNumbers {
			i := pos[n]
			out[i].Issues = append(out[i].Issues, issue)
		}
	}
	return out
}

func groupText(g DuplicateGroup) string {
	nums := make([]string, len(g.RowNumbers))
	for i, n := range g.RowNumbers {
		nums[i] = strconv.Itoa(n)
	}
	list := strings.Join(nums, ", ")
	if g.Key.Blocking {
		return fmt.Sprintf("Duplicate %s within file (rows %s)", g.Key.Kind.Label(), list)
	}
	return fmt.Sprintf("Potential duplicate %s within file (rows %s)", g.Key.Kind.Label(), list)
}

// AutoExclude walks included rows in row-number order and excludes every row
// whose blocking key was already claimed by an earlier row. Name + company
// duplicates are never excluded. Flags are recomputed on the result.
func AutoExclude(rows []WorkingRow) []WorkingRow {
	out := cloneRows(rows)

	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return out[order[a]].RowNumber < out[order[b]].RowNumber
	})

	seen := make(map[DedupeKey]bool)
	for _, i := range order {
		r := &out[i]
		if r.Excluded {
			continue
		}

		var blocking []DedupeKey
		dup := false
		for _, k := range RowKeys(*r) {
			if !k.Blocking {
				continue
			}
			blocking = append(blocking, k)
			if seen[k] {
				dup = true
			}
		}

		if dup {
			r.Excluded = true
			r.Issues = append(withoutSource(r.Issues, IssueExclusion), Issue{Source: IssueExclusion, Text: AutoExcludedIssue})
			continue
		}
		for _, k := range blocking {
			seen[k] = true
		}
	}

	return RecomputeDedupeFlags(out)
}

func withoutSource(issues []Issue, src IssueSource) []Issue {
	out := issues[:0:0]
	for _, is := range issues {
		if is.Source != src {
			out = append(out, is)
		}
	}
	return out
}

func sortedUnique(nums []int) []int {
	sort.Ints(nums)
	out := nums[:0]
	for i, n := range nums {
		if i == 0 || n != nums[i-1] {
			out = append(out, n)
		}
	}
	return out
}
