package core

import (
	"context"
	"time"
)

// PersonType is the canonical category of a directory entry. Values outside
// the three constants below are carried through unchanged so the backend can
// report them.
type PersonType string

const (
	PersonInternalStaff PersonType = "internal_staff"
	PersonInternalUnion PersonType = "internal_union"
	PersonExternal      PersonType = "external"
)

// Canonical reports whether t is one of the known categories.
func (t PersonType) Canonical() bool {
	switch t {
	case PersonInternalStaff, PersonInternalUnion, PersonExternal:
		return true
	}
	return false
}

// ImportRow is a normalized person record as sent to the backend.
type ImportRow struct {
	RowNumber        int        `json:"rowNumber"`
	Type             PersonType `json:"type"`
	DisplayName      string     `json:"displayName" validate:"max=200"`
	Title            string     `json:"title,omitempty" validate:"max=200"`
	Emails           []string   `json:"emails,omitempty" validate:"dive,email"`
	PrimaryEmail     string     `json:"primaryEmail,omitempty" validate:"omitempty,email"`
	Phones           []string   `json:"phones,omitempty" validate:"dive,phone"`
	PrimaryPhone     string     `json:"primaryPhone,omitempty" validate:"omitempty,phone"`
	Company          string     `json:"company,omitempty" validate:"max=200"`
	CompanyLocation  string     `json:"companyLocation,omitempty" validate:"max=200"`
	OrgLocation      string     `json:"orgLocation,omitempty" validate:"max=200"`
	ReportsTo        string     `json:"reportsTo,omitempty" validate:"max=200"`
	IronworkerNumber string     `json:"ironworkerNumber,omitempty" validate:"max=50"`
	UnionLocal       string     `json:"unionLocal,omitempty" validate:"max=50"`
	Skills           []string   `json:"skills,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	Certifications   []string   `json:"certifications,omitempty"`
	Rating           *float64   `json:"rating,omitempty" validate:"omitempty,gte=0,lte=5"`
	Notes            string     `json:"notes,omitempty" validate:"max=4000"`
	SendInvite       bool       `json:"sendInvite"`
}

// IssueSource tags which pass produced an issue.
type IssueSource string

const (
	IssueNormalizer IssueSource = "normalizer"
	IssueDedupe     IssueSource = "dedupe"
	IssueExclusion  IssueSource = "exclusion"
)

// Issue is a row-level annotation. Only dedupe issues can block.
type Issue struct {
	Source   IssueSource `json:"source"`
	Text     string      `json:"text"`
	Blocking bool        `json:"blocking,omitempty"`
}

// WorkingRow is an ImportRow plus the session-only review state.
type WorkingRow struct {
	ImportRow
	SourceRowNumber int     `json:"sourceRowNumber"`
	Derived         bool    `json:"derived"`
	Excluded        bool    `json:"excluded"`
	Issues          []Issue `json:"issues"`
}

// HasBlockingIssue reports whether any issue on the row blocks preview.
func (r WorkingRow) HasBlockingIssue() bool {
	for _, is := range r.Issues {
		if is.Blocking {
			return true
		}
	}
	return false
}

// IssueTexts returns the issue texts in order.
func (r WorkingRow) IssueTexts() []string {
	out := make([]string, len(r.Issues))
	for i, is := range r.Issues {
		out[i] = is.Text
	}
	return out
}

func (r WorkingRow) clone() WorkingRow {
	c := r
	c.Emails = cloneStrings(r.Emails)
	c.Phones = cloneStrings(r.Phones)
	c.Skills = cloneStrings(r.Skills)
	c.Tags = cloneStrings(r.Tags)
	c.Certifications = cloneStrings(r.Certifications)
	if r.Rating != nil {
		v := *r.Rating
		c.Rating = &v
	}
	c.Issues = append([]Issue(nil), r.Issues...)
	return c
}

func cloneRows(rows []WorkingRow) []WorkingRow {
	out := make([]WorkingRow, len(rows))
	for i, r := range rows {
		out[i] = r.clone()
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// SuggestedAction is the backend's verdict for a previewed row.
type SuggestedAction string

const (
	SuggestCreate SuggestedAction = "create"
	SuggestUpdate SuggestedAction = "update"
	SuggestError  SuggestedAction = "error"
)

// MatchBasis names the identity the backend matched an existing person on.
type MatchBasis string

const (
	MatchEmail            MatchBasis = "email"
	MatchIronworkerNumber MatchBasis = "ironworker_number"
)

// PreviewRow is one row of the backend preview response.
type PreviewRow struct {
	RowNumber       int             `json:"rowNumber"`
	SuggestedAction SuggestedAction `json:"suggestedAction"`
	PersonID        string          `json:"personId,omitempty"`
	MatchBasis      MatchBasis      `json:"matchBasis,omitempty"`
	Errors          []string        `json:"errors,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
}

// Action is the operator's choice for a row at confirm time.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionSkip:
		return true
	}
	return false
}

// ConfirmRow is one row sent to the backend confirm call.
type ConfirmRow struct {
	ImportRow
	Action   Action `json:"action"`
	PersonID string `json:"personId,omitempty"`
}

// RowStatus is the per-row outcome of a confirm call.
type RowStatus string

const (
	StatusOK      RowStatus = "ok"
	StatusSkipped RowStatus = "skipped"
	StatusError   RowStatus = "error"
)

// ConfirmSummary holds the aggregate counts of a confirm call.
type ConfirmSummary struct {
	Processed      int `json:"processed"`
	Created        int `json:"created"`
	Updated        int `json:"updated"`
	Skipped        int `json:"skipped"`
	InvitesCreated int `json:"invitesCreated"`
	Errors         int `json:"errors"`
}

// ConfirmRowResult is the per-row outcome of a confirm call.
type ConfirmRowResult struct {
	RowNumber int       `json:"rowNumber"`
	Status    RowStatus `json:"status"`
	Message   string    `json:"message,omitempty"`
}

// ConfirmResult is the backend confirm response.
type ConfirmResult struct {
	Summary ConfirmSummary     `json:"summary"`
	Rows    []ConfirmRowResult `json:"rows"`
}

// Matcher is the backend matching/merge service. Implementations must not
// retry; a returned error means nothing was applied.
type Matcher interface {
	Preview(ctx context.Context, rows []ImportRow) ([]PreviewRow, error)
	Confirm(ctx context.Context, rows []ConfirmRow) (*ConfirmResult, error)
}

// ImportRun is the audit record of one confirmed import.
type ImportRun struct {
	ID          string             `json:"id"`
	SessionID   string             `json:"sessionId"`
	FileName    string             `json:"fileName"`
	TotalRows   int                `json:"totalRows"`
	Summary     ConfirmSummary     `json:"summary"`
	Rows        []ConfirmRowResult `json:"rows,omitempty"`
	IPAddress   string             `json:"ipAddress,omitempty"`
	UserAgent   string             `json:"userAgent,omitempty"`
	ConfirmedAt time.Time          `json:"confirmedAt"`
}

// MappingTemplate is a saved header mapping that can be reapplied to files
// with similar headers.
type MappingTemplate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Headers   []string  `json:"headers"`
	Mapping   Mapping   `json:"mapping"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TemplateMatch pairs a template with how well its headers match a file.
type TemplateMatch struct {
	Template   MappingTemplate `json:"template"`
	MatchScore float64         `json:"matchScore"`
}
