// Package catalog defines the semantic person fields a tabular import can map
// columns onto, together with the header synonyms used to suggest a mapping.
//
// The catalog is static. Operators can extend the synonym sets (and the
// required flags) from a YAML file, see [LoadFile].
package catalog

import (
	"strings"
	"unicode"
)

// FieldKey identifies one semantic field of a person record.
type FieldKey string

const (
	FieldType             FieldKey = "type"
	FieldDisplayName      FieldKey = "displayName"
	FieldTitle            FieldKey = "title"
	FieldEmails           FieldKey = "emails"
	FieldPrimaryEmail     FieldKey = "primaryEmail"
	FieldPhones           FieldKey = "phones"
	FieldPrimaryPhone     FieldKey = "primaryPhone"
	FieldCompany          FieldKey = "company"
	FieldCompanyLocation  FieldKey = "companyLocation"
	FieldOrgLocation      FieldKey = "orgLocation"
	FieldReportsTo        FieldKey = "reportsTo"
	FieldIronworkerNumber FieldKey = "ironworkerNumber"
	FieldUnionLocal       FieldKey = "unionLocal"
	FieldSkills           FieldKey = "skills"
	FieldTags             FieldKey = "tags"
	FieldCertifications   FieldKey = "certifications"
	FieldRating           FieldKey = "rating"
	FieldNotes            FieldKey = "notes"
	FieldSendInvite       FieldKey = "sendInvite"
)

// Field describes one catalog entry.
type Field struct {
	Key      FieldKey `json:"key"`
	Label    string   `json:"label"`              // Column header used in the download template
	Required bool     `json:"required"`           // Must be mapped before rows can be reviewed
	Multi    bool     `json:"multi,omitempty"`    // Cell holds a delimited list
	Synonyms []string `json:"synonyms,omitempty"` // Normalized header synonyms
}

// Catalog is an ordered set of fields. Order drives mapping inference and
// the column order of the download template.
type Catalog struct {
	fields []Field
	index  map[FieldKey]int
}

var defaultFields = []Field{
	{Key: FieldType, Label: "Type", Synonyms: []string{"type", "persontype", "category", "kind", "classification", "employeetype"}},
	{Key: FieldDisplayName, Label: "Name", Required: true, Synonyms: []string{"name", "displayname", "fullname", "contactname", "employeename", "person"}},
	{Key: FieldTitle, Label: "Title", Synonyms: []string{"title", "jobtitle", "position"}},
	{Key: FieldEmails, Label: "Emails", Multi: true, Synonyms: []string{"emails", "email", "emailaddress", "emailaddresses", "mail"}},
	{Key: FieldPrimaryEmail, Label: "Primary Email", Synonyms: []string{"primaryemail", "mainemail", "workemail"}},
	{Key: FieldPhones, Label: "Phones", Multi: true, Synonyms: []string{"phones", "phone", "phonenumber", "phonenumbers", "mobile", "cell", "telephone"}},
	{Key: FieldPrimaryPhone, Label: "Primary Phone", Synonyms: []string{"primaryphone", "mainphone", "workphone"}},
	{Key: FieldCompany, Label: "Company", Synonyms: []string{"company", "companyname", "employer", "organization", "organisation"}},
	{Key: FieldCompanyLocation, Label: "Company Location", Synonyms: []string{"companylocation", "companybranch", "companyoffice", "companysite"}},
	{Key: FieldOrgLocation, Label: "Org Location", Synonyms: []string{"orglocation", "location", "office", "branch", "site"}},
	{Key: FieldReportsTo, Label: "Reports To", Synonyms: []string{"reportsto", "manager", "supervisor", "foreman"}},
	{Key: FieldIronworkerNumber, Label: "Ironworker Number", Synonyms: []string{"ironworkernumber", "ironworkerno", "iwnumber", "membernumber", "cardnumber"}},
	{Key: FieldUnionLocal, Label: "Union Local", Synonyms: []string{"unionlocal", "localunion", "local", "union"}},
	{Key: FieldSkills, Label: "Skills", Multi: true, Synonyms: []string{"skills", "skill", "trades", "trade"}},
	{Key: FieldTags, Label: "Tags", Multi: true, Synonyms: []string{"tags", "tag", "labels"}},
	{Key: FieldCertifications, Label: "Certifications", Multi: true, Synonyms: []string{"certifications", "certification", "certs", "licenses"}},
	{Key: FieldRating, Label: "Rating", Synonyms: []string{"rating", "score", "stars"}},
	{Key: FieldNotes, Label: "Notes", Synonyms: []string{"notes", "note", "comments", "comment", "remarks"}},
	{Key: FieldSendInvite, Label: "Send Invite", Synonyms: []string{"sendinvite", "invite", "inviteuser"}},
}

// Default returns a fresh copy of the built-in catalog.
func Default() *Catalog {
	fields := make([]Field, len(defaultFields))
	for i, f := range defaultFields {
		f.Synonyms = append([]string(nil), f.Synonyms...)
		fields[i] = f
	}
	return New(fields)
}

// New builds a catalog from fields in the given order.
func New(fields []Field) *Catalog {
	c := &Catalog{
		fields: fields,
		index:  make(map[FieldKey]int, len(fields)),
	}
	for i, f := range fields {
		c.index[f.Key] = i
	}
	return c
}

// Fields returns the catalog fields in order.
func (c *Catalog) Fields() []Field {
	out := make([]Field, len(c.fields))
	copy(out, c.fields)
	return out
}

// Field returns the field for key.
func (c *Catalog) Field(key FieldKey) (Field, bool) {
	i, ok := c.index[key]
	if !ok {
		return Field{}, false
	}
	return c.fields[i], true
}

// Has reports whether key is part of the catalog.
func (c *Catalog) Has(key FieldKey) bool {
	_, ok := c.index[key]
	return ok
}

// Required returns the keys of all required fields in catalog order.
func (c *Catalog) Required() []FieldKey {
	var keys []FieldKey
	for _, f := range c.fields {
		if f.Required {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// Labels returns the template column headers in catalog order.
func (c *Catalog) Labels() []string {
	labels := make([]string, len(c.fields))
	for i, f := range c.fields {
		labels[i] = f.Label
	}
	return labels
}

// Len returns the number of fields.
func (c *Catalog) Len() int {
	return len(c.fields)
}

// NormalizeHeader lower-cases s and strips everything that is not a letter or
// digit, so "E-mail Address" and "email_address" compare equal.
func NormalizeHeader(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
