package core

// session.go implements the review session: the working row set of one
// uploaded file plus the phase it is in.
//
// Phases advance upload -> map -> review -> preview -> confirm_ready -> done.
// Each phase is a concrete state type holding only the data valid in it, so
// leaving a phase drops its data. Edits made while confirm-ready move the
// session back to review, which discards the preview.

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/personimport/internal/catalog"
	"github.com/JonMunkholm/personimport/internal/tabular"
)

var (
	ErrNoHeaders          = errors.New("file has no headers")
	ErrTooManyRows        = errors.New("too many rows")
	ErrInvalidMapping     = errors.New("invalid mapping")
	ErrRequiredUnmapped   = errors.New("required field not mapped")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrRowNotFound        = errors.New("row not found")
	ErrInvalidRow         = errors.New("invalid row")
	ErrInvalidAction      = errors.New("invalid action")
	ErrNoIncludedRows     = errors.New("no included rows")
	ErrBlockingDuplicates = errors.New("blocking duplicates")
	ErrPreviewTooLarge    = errors.New("preview too large")
	ErrCallInFlight       = errors.New("backend call in flight")
)

// Session row limits.
const (
	DefaultMaxRows        = 2000
	DefaultMaxPreviewRows = 1000
)

// ExcludedByOperatorIssue is attached to rows excluded by hand.
const ExcludedByOperatorIssue = "Excluded by operator"

// Phase names a session state.
type Phase string

const (
	PhaseUpload       Phase = "upload"
	PhaseMap          Phase = "map"
	PhaseReview       Phase = "review"
	PhasePreview      Phase = "preview"
	PhaseConfirmReady Phase = "confirm_ready"
	PhaseDone         Phase = "done"
)

type sessionState interface {
	phase() Phase
}

type uploadState struct{}

type mapState struct {
	mapping Mapping // draft, editable until confirmed
}

type reviewState struct{}

// previewState exists while the preview call is running.
type previewState struct {
	rowNumbers []int
	prev       sessionState // restored if the call fails
}

// confirmReadyState holds the outcome of the last successful preview. Only
// these row numbers may be confirmed.
type confirmReadyState struct {
	rowNumbers []int
	decisions  map[int]*RowDecision
}

type doneState struct {
	result *ConfirmResult
}

func (uploadState) phase() Phase       { return PhaseUpload }
func (mapState) phase() Phase          { return PhaseMap }
func (reviewState) phase() Phase       { return PhaseReview }
func (previewState) phase() Phase      { return PhasePreview }
func (confirmReadyState) phase() Phase { return PhaseConfirmReady }
func (doneState) phase() Phase         { return PhaseDone }

// SessionOptions bounds what a session accepts.
type SessionOptions struct {
	MaxRows        int
	MaxPreviewRows int
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.MaxRows <= 0 {
		o.MaxRows = DefaultMaxRows
	}
	if o.MaxPreviewRows <= 0 {
		o.MaxPreviewRows = DefaultMaxPreviewRows
	}
	return o
}

// Session is one file being imported. All methods are safe for concurrent
// use. The lock is released while a backend call runs; a busy flag keeps a
// second call (or an edit) from starting meanwhile.
type Session struct {
	ID        string
	FileName  string
	CreatedAt time.Time

	cat  *catalog.Catalog
	opts SessionOptions

	mu         sync.Mutex
	state      sessionState
	busy       bool
	lastActive time.Time

	headers []string
	raws    []tabular.RawRow
	mapping Mapping // last confirmed mapping
	rows    []WorkingRow
}

// NewSession returns a session in the upload phase.
func NewSession(id, fileName string, cat *catalog.Catalog, opts SessionOptions) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		FileName:   fileName,
		CreatedAt:  now,
		cat:        cat,
		opts:       opts.withDefaults(),
		state:      uploadState{},
		lastActive: now,
	}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.phase()
}

// LastActive returns when the session was last touched.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Busy reports whether a backend call is running.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// lock acquires the session and rejects the call if a backend call is
// running. On success the caller must unlock.
func (s *Session) lock() error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrCallInFlight
	}
	s.lastActive = time.Now()
	return nil
}

func (s *Session) transitionErr(op string) error {
	return fmt.Errorf("%w: cannot %s in %s phase", ErrInvalidTransition, op, s.state.phase())
}

// =============================================================================
// Upload and mapping
// =============================================================================

// Load takes a decoded file and moves to the map phase with an inferred
// mapping. saved, when non-nil, is laid over the inferred mapping for the
// headers the file has. Nothing is kept if the table is rejected.
func (s *Session) Load(t *tabular.Table, saved Mapping) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if _, ok := s.state.(uploadState); !ok {
		return s.transitionErr("load a file")
	}
	if t == nil || len(t.Headers) == 0 {
		return ErrNoHeaders
	}
	if len(t.Rows) > s.opts.MaxRows {
		return fmt.Errorf("%w: file has %d rows, limit is %d", ErrTooManyRows, len(t.Rows), s.opts.MaxRows)
	}

	m := InferMapping(s.cat, t.Headers)
	if saved != nil {
		m = m.overlay(saved, t.Headers)
	}

	s.headers = append([]string(nil), t.Headers...)
	s.raws = t.Rows
	s.state = mapState{mapping: m}
	return nil
}

// Headers returns the file headers in order.
func (s *Session) Headers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.headers...)
}

// RawRowCount returns how many data rows the file had.
func (s *Session) RawRowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.raws)
}

// Mapping returns the draft mapping in the map phase, else the confirmed one.
func (s *Session) Mapping() Mapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentMapping().Clone()
}

func (s *Session) currentMapping() Mapping {
	if st, ok := s.state.(mapState); ok {
		return st.mapping
	}
	return s.mapping
}

// MissingFields lists required fields the current mapping leaves unmapped.
func (s *Session) MissingFields() []catalog.FieldKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentMapping().Missing(s.cat)
}

// SetMapping replaces the draft mapping. Empty headers clear a field.
func (s *Session) SetMapping(m Mapping) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if _, ok := s.state.(mapState); !ok {
		return s.transitionErr("change the mapping")
	}
	if err := m.Validate(s.cat, s.headers); err != nil {
		return err
	}
	s.state = mapState{mapping: m.Clone()}
	return nil
}

// ConfirmMapping normalizes every row with the draft mapping and moves to
// review. Every required field must be mapped.
func (s *Session) ConfirmMapping() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	st, ok := s.state.(mapState)
	if !ok {
		return s.transitionErr("confirm the mapping")
	}
	if missing := st.mapping.Missing(s.cat); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, k := range missing {
			names[i] = string(k)
		}
		return fmt.Errorf("%w: %s", ErrRequiredUnmapped, strings.Join(names, ", "))
	}

	s.mapping = st.mapping.Clone()
	s.rows = RecomputeDedupeFlags(NormalizeTable(s.raws, s.mapping))
	s.state = reviewState{}
	return nil
}

// ReturnToMap goes back to mapping. Reviewed rows and any preview are
// discarded; confirming the mapping again rebuilds them from the file.
func (s *Session) ReturnToMap() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	switch s.state.(type) {
	case reviewState, confirmReadyState:
	default:
		return s.transitionErr("return to mapping")
	}
	s.rows = nil
	s.state = mapState{mapping: s.mapping.Clone()}
	return nil
}

// ReturnToReview drops the preview result.
func (s *Session) ReturnToReview() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if _, ok := s.state.(confirmReadyState); !ok {
		return s.transitionErr("return to review")
	}
	s.state = reviewState{}
	return nil
}

// =============================================================================
// Review edits
// =============================================================================

// editable checks the phase for a row edit.
func (s *Session) editable(op string) error {
	switch s.state.(type) {
	case reviewState, confirmReadyState:
		return nil
	default:
		return s.transitionErr(op)
	}
}

// invalidatePreview drops a preview result before an edit is applied.
func (s *Session) invalidatePreview() {
	if _, ok := s.state.(confirmReadyState); ok {
		s.state = reviewState{}
	}
}

func (s *Session) rowIndex(rowNumber int) (int, error) {
	for i, r := range s.rows {
		if r.RowNumber == rowNumber {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %d", ErrRowNotFound, rowNumber)
}

// EditRow replaces the values of a row. The row number cannot change. List
// values are cleaned the same way the normalizer cleans them, and the result
// must pass validation.
func (s *Session) EditRow(rowNumber int, edit ImportRow) (WorkingRow, error) {
	if err := s.lock(); err != nil {
		return WorkingRow{}, err
	}
	defer s.mu.Unlock()

	if err := s.editable("edit rows"); err != nil {
		return WorkingRow{}, err
	}
	i, err := s.rowIndex(rowNumber)
	if err != nil {
		return WorkingRow{}, err
	}

	row := cleanEdit(edit)
	row.RowNumber = rowNumber
	if verrs := ValidateRow(row); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for j, ve := range verrs {
			msgs[j] = ve.Error()
		}
		return WorkingRow{}, fmt.Errorf("%w: %s", ErrInvalidRow, strings.Join(msgs, "; "))
	}

	s.invalidatePreview()
	updated := s.rows[i].clone()
	updated.ImportRow = row
	updated.Issues = editIssues(updated)
	s.rows[i] = updated
	s.rows = RecomputeDedupeFlags(s.rows)
	return s.rows[i].clone(), nil
}

// cleanEdit applies normalizer cleanup to operator input.
func cleanEdit(in ImportRow) ImportRow {
	row := in
	row.Type, _ = CanonicalPersonType(string(in.Type))
	row.DisplayName = strings.TrimSpace(in.DisplayName)

	var emails []string
	for _, e := range in.Emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			emails = append(emails, e)
		}
	}
	row.Emails = dedupeExact(emails)
	row.PrimaryEmail = strings.ToLower(strings.TrimSpace(in.PrimaryEmail))
	if row.PrimaryEmail == "" && len(row.Emails) > 0 {
		row.PrimaryEmail = row.Emails[0]
	}
	row.Emails = putFirst(row.Emails, row.PrimaryEmail, strings.ToLower)

	var phones []string
	for _, p := range in.Phones {
		if p = strings.TrimSpace(p); p != "" {
			phones = append(phones, p)
		}
	}
	row.Phones = dedupeExact(phones)
	row.PrimaryPhone = strings.TrimSpace(in.PrimaryPhone)
	if row.PrimaryPhone == "" && len(row.Phones) > 0 {
		row.PrimaryPhone = row.Phones[0]
	}
	row.Phones = putFirst(row.Phones, row.PrimaryPhone, digitsOf)

	row.Skills = dedupeFold(trimAll(in.Skills))
	row.Tags = dedupeFold(trimAll(in.Tags))
	row.Certifications = dedupeFold(trimAll(in.Certifications))
	return row
}

func trimAll(list []string) []string {
	var out []string
	for _, v := range list {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// editIssues rebuilds the normalizer issues of an edited row from its new
// values. Issues about the original cell text no longer apply.
func editIssues(r WorkingRow) []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Source == IssueExclusion {
			out = append(out, is)
		}
	}
	if r.Derived {
		out = append(out, Issue{Source: IssueNormalizer, Text: fmt.Sprintf(advisoryDerivedFormat, r.SourceRowNumber)})
	}
	if !r.Type.Canonical() {
		out = append(out, Issue{Source: IssueNormalizer, Text: fmt.Sprintf("Unrecognized person type %q", r.Type)})
	}
	return append(out, contentIssues(r.ImportRow)...)
}

// SetExcluded includes or excludes a row.
func (s *Session) SetExcluded(rowNumber int, excluded bool) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := s.editable("change exclusion"); err != nil {
		return err
	}
	i, err := s.rowIndex(rowNumber)
	if err != nil {
		return err
	}

	s.invalidatePreview()
	r := s.rows[i].clone()
	r.Excluded = excluded
	r.Issues = withoutSource(r.Issues, IssueExclusion)
	if excluded {
		r.Issues = append(r.Issues, Issue{Source: IssueExclusion, Text: ExcludedByOperatorIssue})
	}
	s.rows[i] = r
	s.rows = RecomputeDedupeFlags(s.rows)
	return nil
}

// AutoExclude excludes later rows of every blocking duplicate group and
// returns how many rows it excluded.
func (s *Session) AutoExclude() (int, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	if err := s.editable("auto-exclude"); err != nil {
		return 0, err
	}
	s.invalidatePreview()

	before := 0
	for _, r := range s.rows {
		if r.Excluded {
			before++
		}
	}
	s.rows = AutoExclude(s.rows)
	after := 0
	for _, r := range s.rows {
		if r.Excluded {
			after++
		}
	}
	return after - before, nil
}

// =============================================================================
// Queries
// =============================================================================

// Rows returns a copy of the working rows in row-number order.
func (s *Session) Rows() []WorkingRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := cloneRows(s.rows)
	sort.SliceStable(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out
}

// Row returns one working row.
func (s *Session) Row(rowNumber int) (WorkingRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.rowIndex(rowNumber)
	if err != nil {
		return WorkingRow{}, err
	}
	return s.rows[i].clone(), nil
}

// ReviewSummary counts the rows of a session.
type ReviewSummary struct {
	Total          int `json:"total"`
	Included       int `json:"included"`
	Excluded       int `json:"excluded"`
	Derived        int `json:"derived"`
	WithIssues     int `json:"withIssues"`
	BlockingGroups int `json:"blockingGroups"`
}

// Summary returns row counts for the review screen.
func (s *Session) Summary() ReviewSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return summarize(s.rows)
}

func summarize(rows []WorkingRow) ReviewSummary {
	sum := ReviewSummary{Total: len(rows), BlockingGroups: len(BlockingGroups(rows))}
	for _, r := range rows {
		if r.Excluded {
			sum.Excluded++
		} else {
			sum.Included++
		}
		if r.Derived {
			sum.Derived++
		}
		if len(r.Issues) > 0 {
			sum.WithIssues++
		}
	}
	return sum
}

// DuplicateGroups returns the current duplicate groups among included rows.
func (s *Session) DuplicateGroups() []DuplicateGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return DuplicateGroups(s.rows)
}

// SessionView is a serializable snapshot of a session without its rows.
type SessionView struct {
	ID        string             `json:"id"`
	FileName  string             `json:"fileName"`
	Phase     Phase              `json:"phase"`
	Busy      bool               `json:"busy"`
	Headers   []string           `json:"headers"`
	Mapping   Mapping            `json:"mapping"`
	Missing   []catalog.FieldKey `json:"missing,omitempty"`
	Summary   ReviewSummary      `json:"summary"`
	Decisions []RowDecision      `json:"decisions,omitempty"`
	Result    *ConfirmResult     `json:"result,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

// View returns a snapshot for display.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.currentMapping()
	v := SessionView{
		ID:        s.ID,
		FileName:  s.FileName,
		Phase:     s.state.phase(),
		Busy:      s.busy,
		Headers:   append([]string(nil), s.headers...),
		Mapping:   m.Clone(),
		Missing:   m.Missing(s.cat),
		Summary:   summarize(s.rows),
		CreatedAt: s.CreatedAt,
	}
	switch st := s.state.(type) {
	case confirmReadyState:
		v.Decisions = st.list()
	case doneState:
		v.Result = st.result
	}
	return v
}
