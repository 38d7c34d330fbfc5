package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/JonMunkholm/personimport/internal/catalog"
	"github.com/JonMunkholm/personimport/internal/tabular"
)

// Normalizer advisory texts.
const (
	AdvisoryMissingName    = "Missing display name"
	AdvisoryMissingContact = "Missing contact: no primary email or primary phone"
	AdvisoryUnsplit        = "Possible unsplit multi-contact row"
	advisoryDerivedFormat  = "Derived from multi-contact row %d; review this derived row"
)

// personTypeSynonyms maps normalized text (lower-case letters and digits) to a
// canonical person type.
var personTypeSynonyms = map[string]PersonType{
	"internalstaff": PersonInternalStaff,
	"internal":      PersonInternalStaff,
	"staff":         PersonInternalStaff,
	"employee":      PersonInternalStaff,
	"office":        PersonInternalStaff,
	"officestaff":   PersonInternalStaff,
	"salaried":      PersonInternalStaff,
	"w2":            PersonInternalStaff,

	"internalunion": PersonInternalUnion,
	"union":         PersonInternalUnion,
	"unionmember":   PersonInternalUnion,
	"ironworker":    PersonInternalUnion,
	"field":         PersonInternalUnion,
	"fieldstaff":    PersonInternalUnion,
	"journeyman":    PersonInternalUnion,
	"apprentice":    PersonInternalUnion,
	"member":        PersonInternalUnion,

	"external":      PersonExternal,
	"contractor":    PersonExternal,
	"subcontractor": PersonExternal,
	"vendor":        PersonExternal,
	"supplier":      PersonExternal,
	"client":        PersonExternal,
	"customer":      PersonExternal,
	"contact":       PersonExternal,
	"other":         PersonExternal,
}

// personTypeWords is the sorted synonym list used for suggestions.
var personTypeWords = func() []string {
	words := make([]string, 0, len(personTypeSynonyms))
	for w := range personTypeSynonyms {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}()

// CanonicalPersonType maps free text onto a PersonType. Empty text is
// external. Unrecognized text is returned unchanged with ok=false.
func CanonicalPersonType(s string) (PersonType, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PersonExternal, true
	}
	if t, ok := personTypeSynonyms[catalog.NormalizeHeader(s)]; ok {
		return t, true
	}
	return PersonType(s), false
}

// suggestPersonType returns the canonical type closest to s, or "" when
// nothing is close. Abbreviations ("ext") are found by subsequence search,
// typos ("contracter") by edit distance.
func suggestPersonType(s string) PersonType {
	n := catalog.NormalizeHeader(s)
	if n == "" {
		return ""
	}

	ranks := fuzzy.RankFindNormalizedFold(n, personTypeWords)
	if len(ranks) > 0 {
		sort.Stable(ranks)
		return personTypeSynonyms[ranks[0].Target]
	}

	best, bestDist := "", 3
	for _, w := range personTypeWords {
		if d := fuzzy.LevenshteinDistance(n, w); d < bestDist {
			best, bestDist = w, d
		}
	}
	if best == "" {
		return ""
	}
	return personTypeSynonyms[best]
}

// RowAllocator hands out synthetic row numbers for derived rows. Numbers start
// above every real source row so they never collide.
type RowAllocator struct {
	next int
}

// NewRowAllocator returns an allocator whose first number is maxSourceRow+1.
func NewRowAllocator(maxSourceRow int) *RowAllocator {
	return &RowAllocator{next: maxSourceRow + 1}
}

// Next returns the next unused synthetic row number.
func (a *RowAllocator) Next() int {
	n := a.next
	a.next++
	return n
}

// NormalizeRow converts one raw row into one or more working rows.
//
// Usually one row comes back. A row whose display name lists several people
// with one email each is split; the first row keeps rowNumber and later rows
// take numbers from alloc.
func NormalizeRow(raw tabular.RawRow, m Mapping, rowNumber int, alloc *RowAllocator) []WorkingRow {
	text := func(key catalog.FieldKey) string {
		h := m.Header(key)
		if h == "" {
			return ""
		}
		return tabular.CleanCell(raw[h])
	}

	var issues []Issue
	advise := func(format string, args ...any) {
		issues = append(issues, Issue{Source: IssueNormalizer, Text: fmt.Sprintf(format, args...)})
	}

	// Person type.
	typeText := text(catalog.FieldType)
	ptype, ok := CanonicalPersonType(typeText)
	if !ok {
		if s := suggestPersonType(typeText); s != "" {
			advise("Unrecognized person type %q; did you mean %s?", typeText, s)
		} else {
			advise("Unrecognized person type %q", typeText)
		}
	}

	// Emails.
	emailsText := text(catalog.FieldEmails)
	primaryEmailText := text(catalog.FieldPrimaryEmail)
	extracted := extractEmails(emailsText + "\n" + primaryEmailText)
	emails := mergeEmails(explicitEmails(emailsText), extracted)

	primaryEmail := ""
	if p := strings.ToLower(primaryEmailText); isEmail(p) {
		primaryEmail = p
	} else if found := extractEmails(primaryEmailText); len(found) > 0 {
		primaryEmail = found[0]
	} else if len(emails) > 0 {
		primaryEmail = emails[0]
	}
	emails = putFirst(emails, primaryEmail, strings.ToLower)

	// Phones.
	phonesText := text(catalog.FieldPhones)
	primaryPhoneText := text(catalog.FieldPrimaryPhone)
	phones := mergePhones(explicitPhones(phonesText), extractPhones(phonesText+"\n"+primaryPhoneText))

	primaryPhone := ""
	if found := explicitPhones(primaryPhoneText); len(found) > 0 {
		primaryPhone = found[0]
	} else if len(phones) > 0 {
		primaryPhone = phones[0]
	}
	phones = putFirst(phones, primaryPhone, digitsOf)

	// Scalars.
	rating, ok := ParseRating(text(catalog.FieldRating))
	if !ok {
		advise("Rating %q is not a number between 0 and %d", text(catalog.FieldRating), MaxRating)
	}
	invite, ok := ParseBool(text(catalog.FieldSendInvite))
	if !ok {
		advise("Send invite value %q not recognized; treated as no", text(catalog.FieldSendInvite))
	}

	base := WorkingRow{
		ImportRow: ImportRow{
			RowNumber:        rowNumber,
			Type:             ptype,
			DisplayName:      text(catalog.FieldDisplayName),
			Title:            text(catalog.FieldTitle),
			Emails:           emails,
			PrimaryEmail:     primaryEmail,
			Phones:           phones,
			PrimaryPhone:     primaryPhone,
			Company:          text(catalog.FieldCompany),
			CompanyLocation:  text(catalog.FieldCompanyLocation),
			OrgLocation:      text(catalog.FieldOrgLocation),
			ReportsTo:        text(catalog.FieldReportsTo),
			IronworkerNumber: text(catalog.FieldIronworkerNumber),
			UnionLocal:       text(catalog.FieldUnionLocal),
			Skills:           dedupeFold(splitList(text(catalog.FieldSkills))),
			Tags:             dedupeFold(splitList(text(catalog.FieldTags))),
			Certifications:   dedupeFold(splitList(text(catalog.FieldCertifications))),
			Rating:           rating,
			Notes:            text(catalog.FieldNotes),
			SendInvite:       invite,
		},
		SourceRowNumber: rowNumber,
	}

	var rows []WorkingRow
	parts := splitNames(base.DisplayName)
	switch {
	case len(parts) > 1 && len(parts) == len(extracted):
		rows = splitContacts(base, issues, parts, extracted, alloc)
	case len(parts) > 1 && len(extracted) > 1:
		advise("%s (%d names, %d emails)", AdvisoryUnsplit, len(parts), len(extracted))
		base.Issues = issues
		rows = []WorkingRow{base}
	default:
		base.Issues = issues
		rows = []WorkingRow{base}
	}

	for i := range rows {
		rows[i].Issues = append(rows[i].Issues, contentIssues(rows[i].ImportRow)...)
	}
	return rows
}

// splitContacts emits one row per (name, email) pair.
func splitContacts(base WorkingRow, issues []Issue, names, emails []string, alloc *RowAllocator) []WorkingRow {
	rows := make([]WorkingRow, len(names))
	pairPhones := len(base.Phones) == len(names)

	for i, name := range names {
		r := base.clone()
		r.DisplayName = name
		r.Emails = []string{emails[i]}
		r.PrimaryEmail = emails[i]
		r.Issues = append([]Issue(nil), issues...)

		if i > 0 {
			r.RowNumber = alloc.Next()
			r.Derived = true
			if pairPhones {
				r.Phones = []string{base.Phones[i]}
				r.PrimaryPhone = base.Phones[i]
			} else {
				r.Phones = nil
				r.PrimaryPhone = ""
			}
			r.Issues = append(r.Issues, Issue{
				Source: IssueNormalizer,
				Text:   fmt.Sprintf(advisoryDerivedFormat, base.SourceRowNumber),
			})
		}
		rows[i] = r
	}
	return rows
}

// contentIssues returns the advisories that depend only on the row's current
// values. They are recomputed whenever a row is edited.
func contentIssues(row ImportRow) []Issue {
	var out []Issue
	if strings.TrimSpace(row.DisplayName) == "" {
		out = append(out, Issue{Source: IssueNormalizer, Text: AdvisoryMissingName})
	}
	if row.PrimaryEmail == "" && row.PrimaryPhone == "" {
		out = append(out, Issue{Source: IssueNormalizer, Text: AdvisoryMissingContact})
	}
	for _, ve := range ValidateRow(row) {
		out = append(out, Issue{Source: IssueNormalizer, Text: "Invalid " + ve.Error()})
	}
	return out
}

// NormalizeTable normalizes every raw row. Source rows are numbered from 1 in
// file order; derived rows are numbered after the last source row.
func NormalizeTable(raws []tabular.RawRow, m Mapping) []WorkingRow {
	alloc := NewRowAllocator(len(raws))
	rows := make([]WorkingRow, 0, len(raws))
	for i, raw := range raws {
		rows = append(rows, NormalizeRow(raw, m, i+1, alloc)...)
	}
	return rows
}
