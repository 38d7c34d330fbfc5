package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/personimport/internal/catalog"
	"github.com/JonMunkholm/personimport/internal/tabular"
)

// fakeMatcher records calls and answers from the configured functions. The
// defaults suggest create for every row and apply the chosen actions.
type fakeMatcher struct {
	mu           sync.Mutex
	previewCalls int
	confirmCalls int
	lastPreview  []ImportRow
	lastConfirm  []ConfirmRow

	previewFn func([]ImportRow) ([]PreviewRow, error)
	confirmFn func([]ConfirmRow) (*ConfirmResult, error)
}

func (f *fakeMatcher) Preview(ctx context.Context, rows []ImportRow) ([]PreviewRow, error) {
	f.mu.Lock()
	f.previewCalls++
	f.lastPreview = rows
	fn := f.previewFn
	f.mu.Unlock()

	if fn != nil {
		return fn(rows)
	}
	out := make([]PreviewRow, len(rows))
	for i, r := range rows {
		out[i] = PreviewRow{RowNumber: r.RowNumber, SuggestedAction: SuggestCreate}
	}
	return out, nil
}

func (f *fakeMatcher) Confirm(ctx context.Context, rows []ConfirmRow) (*ConfirmResult, error) {
	f.mu.Lock()
	f.confirmCalls++
	f.lastConfirm = rows
	fn := f.confirmFn
	f.mu.Unlock()

	if fn != nil {
		return fn(rows)
	}
	return applyActions(rows), nil
}

func (f *fakeMatcher) calls() (preview, confirm int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.previewCalls, f.confirmCalls
}

// applyActions mimics the backend: rows with an address at fail.com error out.
func applyActions(rows []ConfirmRow) *ConfirmResult {
	res := &ConfirmResult{}
	for _, r := range rows {
		res.Summary.Processed++
		rr := ConfirmRowResult{RowNumber: r.RowNumber, Status: StatusOK}
		switch {
		case r.Action == ActionSkip:
			res.Summary.Skipped++
			rr.Status = StatusSkipped
		case strings.HasSuffix(r.PrimaryEmail, "@fail.com"):
			res.Summary.Errors++
			rr.Status = StatusError
			rr.Message = "mailbox rejected"
		case r.Action == ActionCreate:
			res.Summary.Created++
			if r.SendInvite {
				res.Summary.InvitesCreated++
			}
		case r.Action == ActionUpdate:
			res.Summary.Updated++
		}
		res.Rows = append(res.Rows, rr)
	}
	return res
}

var sessionHeaders = []string{"Name", "Email", "Phone", "Notes"}

func newSession(t *testing.T, opts SessionOptions, raws ...tabular.RawRow) *Session {
	t.Helper()
	s := NewSession("s1", "people.csv", catalog.Default(), opts)
	require.NoError(t, s.Load(&tabular.Table{Headers: sessionHeaders, Rows: raws, Format: tabular.FormatCSV}, nil))
	return s
}

func reviewSession(t *testing.T, raws ...tabular.RawRow) *Session {
	t.Helper()
	s := newSession(t, SessionOptions{}, raws...)
	require.NoError(t, s.ConfirmMapping())
	require.Equal(t, PhaseReview, s.Phase())
	return s
}

func person(name, email string) tabular.RawRow {
	return tabular.RawRow{"Name": name, "Email": email}
}

// =============================================================================
// Upload and mapping
// =============================================================================

func TestSession_Load(t *testing.T) {
	s := newSession(t, SessionOptions{}, person("Ann", "ann@x.com"))

	assert.Equal(t, PhaseMap, s.Phase())
	assert.Equal(t, sessionHeaders, s.Headers())
	assert.Equal(t, "Name", s.Mapping()[catalog.FieldDisplayName])
	assert.Empty(t, s.MissingFields())
}

func TestSession_LoadRejects(t *testing.T) {
	t.Run("no headers", func(t *testing.T) {
		s := NewSession("s1", "empty.csv", catalog.Default(), SessionOptions{})
		err := s.Load(&tabular.Table{}, nil)
		assert.ErrorIs(t, err, ErrNoHeaders)
		assert.Equal(t, PhaseUpload, s.Phase())
	})

	t.Run("too many rows", func(t *testing.T) {
		s := NewSession("s1", "big.csv", catalog.Default(), SessionOptions{MaxRows: 2})
		raws := []tabular.RawRow{person("A", ""), person("B", ""), person("C", "")}
		err := s.Load(&tabular.Table{Headers: sessionHeaders, Rows: raws}, nil)
		assert.ErrorIs(t, err, ErrTooManyRows)
		assert.Equal(t, PhaseUpload, s.Phase())
		assert.Zero(t, s.RawRowCount())
	})
}

func TestSession_ConfirmMappingRequiresRequiredFields(t *testing.T) {
	s := newSession(t, SessionOptions{}, person("Ann", "ann@x.com"))

	require.NoError(t, s.SetMapping(Mapping{catalog.FieldEmails: "Email"}))
	assert.Equal(t, []catalog.FieldKey{catalog.FieldDisplayName}, s.MissingFields())

	err := s.ConfirmMapping()
	assert.ErrorIs(t, err, ErrRequiredUnmapped)
	assert.Equal(t, PhaseMap, s.Phase())

	err = s.SetMapping(Mapping{catalog.FieldDisplayName: "Full Name"})
	assert.ErrorIs(t, err, ErrInvalidMapping)

	require.NoError(t, s.SetMapping(Mapping{catalog.FieldDisplayName: "Name", catalog.FieldEmails: "Email"}))
	require.NoError(t, s.ConfirmMapping())
	assert.Equal(t, PhaseReview, s.Phase())
	assert.Len(t, s.Rows(), 1)
}

func TestSession_InvalidTransitions(t *testing.T) {
	s := newSession(t, SessionOptions{}, person("Ann", "ann@x.com"))
	m := &fakeMatcher{}

	_, err := s.RunPreview(context.Background(), m)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Confirm(context.Background(), m)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, s.SetExcluded(1, true), ErrInvalidTransition)
	assert.ErrorIs(t, s.ReturnToReview(), ErrInvalidTransition)

	preview, confirm := m.calls()
	assert.Zero(t, preview)
	assert.Zero(t, confirm)
}

func TestSession_ReturnToMapRebuildsRows(t *testing.T) {
	s := reviewSession(t, person("Ann", "ann@x.com"), person("Bob", "bob@x.com"))
	require.NoError(t, s.SetExcluded(2, true))

	require.NoError(t, s.ReturnToMap())
	assert.Equal(t, PhaseMap, s.Phase())
	assert.Empty(t, s.Rows())

	require.NoError(t, s.ConfirmMapping())
	rows := s.Rows()
	require.Len(t, rows, 2)
	assert.False(t, rows[1].Excluded, "review edits are discarded")
}

// =============================================================================
// Review edits
// =============================================================================

func TestSession_EditRow(t *testing.T) {
	s := reviewSession(t, person("Ann", "ann@x.com"), person("", ""))

	row, err := s.EditRow(2, ImportRow{
		RowNumber:    99, // ignored
		DisplayName:  "  Bob  ",
		Emails:       []string{"BOB@x.com", "bob@x.com", ""},
		PrimaryPhone: "555-222-3333",
		Type:         "vendor",
		Tags:         []string{"a", "A", " b "},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, row.RowNumber)
	assert.Equal(t, "Bob", row.DisplayName)
	assert.Equal(t, []string{"bob@x.com"}, row.Emails)
	assert.Equal(t, "bob@x.com", row.PrimaryEmail)
	assert.Equal(t, []string{"555-222-3333"}, row.Phones)
	assert.Equal(t, PersonExternal, row.Type)
	assert.Equal(t, []string{"a", "b"}, row.Tags)
	assert.Empty(t, row.Issues, "missing name and contact advisories are cleared")
}

func TestSession_EditRowRejectsInvalid(t *testing.T) {
	s := reviewSession(t, person("Ann", "ann@x.com"))

	_, err := s.EditRow(1, ImportRow{DisplayName: "Ann", PrimaryEmail: "not an email"})
	assert.ErrorIs(t, err, ErrInvalidRow)

	r, err := s.Row(1)
	require.NoError(t, err)
	assert.Equal(t, "ann@x.com", r.PrimaryEmail, "row unchanged")

	_, err = s.EditRow(42, ImportRow{DisplayName: "X"})
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestSession_EditReintroducesDuplicate(t *testing.T) {
	s := reviewSession(t, person("Ann", "ann@x.com"), person("Bob", "bob@x.com"))
	assert.Zero(t, s.Summary().BlockingGroups)

	_, err := s.EditRow(2, ImportRow{DisplayName: "Bob", PrimaryEmail: "ann@x.com"})
	require.NoError(t, err)

	assert.Equal(t, 1, s.Summary().BlockingGroups)
	r, _ := s.Row(1)
	assert.Contains(t, r.IssueTexts(), "Duplicate primary email within file (rows 1, 2)")
}

func TestSession_AutoExclude(t *testing.T) {
	s := reviewSession(t,
		person("Ann", "ann@x.com"),
		person("Ann Again", "ann@x.com"),
		person("Ann Third", "ANN@x.com"),
	)
	require.Equal(t, 1, s.Summary().BlockingGroups)

	n, err := s.AutoExclude()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sum := s.Summary()
	assert.Equal(t, 1, sum.Included)
	assert.Equal(t, 2, sum.Excluded)
	assert.Zero(t, sum.BlockingGroups)

	// Including a row again brings the duplicate back.
	require.NoError(t, s.SetExcluded(3, false))
	assert.Equal(t, 1, s.Summary().BlockingGroups)
	r, _ := s.Row(3)
	assert.NotContains(t, r.IssueTexts(), AutoExcludedIssue)
}

// =============================================================================
// Preview and confirm
// =============================================================================

func TestSession_PreviewGateFailsBeforeCall(t *testing.T) {
	s := reviewSession(t, person("Ann", "ann@x.com"), person("Bob", "ann@x.com"))
	m := &fakeMatcher{}

	_, err := s.RunPreview(context.Background(), m)

	assert.ErrorIs(t, err, ErrBlockingDuplicates)
	preview, _ := m.calls()
	assert.Zero(t, preview, "no network call made")
	assert.Equal(t, PhaseReview, s.Phase())
}

func TestSession_PreviewNeedsIncludedRows(t *testing.T) {
	s := reviewSession(t, person("Ann", "ann@x.com"))
	require.NoError(t, s.SetExcluded(1, true))
	m := &fakeMatcher{}

	_, err := s.RunPreview(context.Background(), m)

	assert.ErrorIs(t, err, ErrNoIncludedRows)
	preview, _ := m.calls()
	assert.Zero(t, preview)
}

func TestSession_PreviewTooLarge(t *testing.T) {
	s := newSession(t, SessionOptions{MaxPreviewRows: 1}, person("Ann", "ann@x.com"), person("Bob", "bob@x.com"))
	require.NoError(t, s.ConfirmMapping())
	m := &fakeMatcher{}

	_, err := s.RunPreview(context.Background(), m)

	assert.ErrorIs(t, err, ErrPreviewTooLarge)
	preview, _ := m.calls()
	assert.Zero(t, preview)
}

func TestSession_PreviewSendsIncludedRows(t *testing.T) {
	s := reviewSession(t, person("Ann; Bob", "ann@x.com; bob@x.com"), person("Cy", "cy@x.com"))
	require.NoError(t, s.SetExcluded(2, true))
	m := &fakeMatcher{}

	_, err := s.RunPreview(context.Background(), m)
	require.NoError(t, err)

	var numbers []int
	for _, r := range m.lastPreview {
		numbers = append(numbers, r.RowNumber)
	}
	assert.Equal(t, []int{1, 3}, numbers, "included rows in row-number order")
}

func TestSession_ConfirmDefaulting(t *testing.T) {
	s := reviewSession(t, person("Ann", "ann@x.com"), person("Bob", "bob@x.com"), person("Cy", "cy@x.com"))
	m := &fakeMatcher{
		previewFn: func(rows []ImportRow) ([]PreviewRow, error) {
			return []PreviewRow{
				{RowNumber: 1, SuggestedAction: SuggestUpdate, PersonID: "p-1", MatchBasis: MatchEmail},
				{RowNumber: 2, SuggestedAction: SuggestError, Errors: []string{"type not allowed"}},
				{RowNumber: 3, SuggestedAction: SuggestCreate},
				{RowNumber: 9, SuggestedAction: SuggestCreate}, // not sent, ignored
			}, nil
		},
	}

	decisions, err := s.RunPreview(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, PhaseConfirmReady, s.Phase())
	require.Len(t, decisions, 3)

	assert.Equal(t, ActionUpdate, decisions[0].Action)
	assert.Equal(t, "p-1", decisions[0].PersonID)
	assert.Equal(t, ActionSkip, decisions[1].Action)
	assert.Equal(t, ActionCreate, decisions[2].Action)

	res, err := s.Confirm(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, s.Phase())

	require.Len(t, m.lastConfirm, 3, "skipped rows are still sent")
	assert.Equal(t, ActionSkip, m.lastConfirm[1].Action)
	assert.Equal(t, "p-1", m.lastConfirm[0].PersonID)
	assert.Equal(t, ConfirmSummary{Processed: 3, Created: 1, Updated: 1, Skipped: 1}, res.Summary)

	got, ok := s.Result()
	assert.True(t, ok)
	assert.Equal(t, res, got)
}

func TestSession_MissingPreviewRow(t *testing.T) {
	s := reviewSession(t, person("Ann", "ann@x.com"), person("Bob", "bob@x.com"))
	m := &fakeMatcher{
		previewFn: func(rows []ImportRow) ([]PreviewRow, error) {
			return []PreviewRow{{RowNumber: 1, SuggestedAction: SuggestCreate}}, nil
		},
	}

	decisions, err := s.RunPreview(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, decisions, 2)

	assert.Equal(t, SuggestError, decisions[1].Preview.SuggestedAction)
	assert.Equal(t, []string{MissingPreviewError}, decisions[1].Preview.Errors)
	assert.Equal(t, ActionSkip, decisions[1].Action)
}

func TestSession_SetAction(t *testing.T) {
	s := reviewSession(t, person("Ann", "ann@x.com"), person("Bob", "bob@x.com"))
	m := &fakeMatcher{
		previewFn: func(rows []ImportRow) ([]PreviewRow, error) {
			return []PreviewRow{
				{RowNumber: 1, SuggestedAction: SuggestCreate},
				{RowNumber: 2, SuggestedAction: SuggestUpdate, PersonID: "p-2"},
			}, nil
		},
	}
	_, err := s.RunPreview(context.Background(), m)
	require.NoError(t, err)

	_, err = s.SetAction(1, ActionUpdate, "")
	assert.ErrorIs(t, err, ErrInvalidAction, "update needs a person id")

	d, err := s.SetAction(1, ActionUpdate, "p-9")
	require.NoError(t, err)
	assert.Equal(t, "p-9", d.PersonID)

	d, err = s.SetAction(2, ActionSkip, "p-2")
	require.NoError(t, err)
	assert.Empty(t, d.PersonID)

	d, err = s.SetAction(2, ActionUpdate, "")
	require.NoError(t, err)
	assert.Equal(t, "p-2", d.PersonID, "matched id used by default")

	_, err = s.SetAction(2, Action("merge"), "")
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = s.SetAction(5, ActionSkip, "")
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestSession_EditAfterPreviewRequiresNewPreview(t *testing.T) {
	s := reviewSession(t, person("Ann", "ann@x.com"), person("Bob", "bob@x.com"))
	m := &fakeMatcher{}
	_, err := s.RunPreview(context.Background(), m)
	require.NoError(t, err)

	// A rejected edit keeps the preview.
	_, err = s.EditRow(1, ImportRow{DisplayName: "Ann", PrimaryEmail: "bad"})
	require.ErrorIs(t, err, ErrInvalidRow)
	assert.Equal(t, PhaseConfirmReady, s.Phase())

	require.NoError(t, s.SetExcluded(2, true))
	assert.Equal(t, PhaseReview, s.Phase())
	assert.Empty(t, s.Decisions())

	_, err = s.Confirm(context.Background(), m)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.RunPreview(context.Background(), m)
	require.NoError(t, err)
	_, err = s.Confirm(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, m.lastConfirm, 1, "only the rows of the last preview are confirmed")
	assert.Equal(t, 1, m.lastConfirm[0].RowNumber)
}

func TestSession_ReturnToReviewDropsPreview(t *testing.T) {
	s := reviewSession(t, person("Ann", "ann@x.com"))
	_, err := s.RunPreview(context.Background(), &fakeMatcher{})
	require.NoError(t, err)

	require.NoError(t, s.ReturnToReview())
	assert.Equal(t, PhaseReview, s.Phase())
	assert.Empty(t, s.Decisions())
}

func TestSession_FailedCallLeavesState(t *testing.T) {
	s := reviewSession(t, person("Ann", "ann@x.com"))
	boom := errors.New("connection reset")
	m := &fakeMatcher{
		previewFn: func([]ImportRow) ([]PreviewRow, error) { return nil, boom },
	}

	_, err := s.RunPreview(context.Background(), m)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, PhaseReview, s.Phase())
	assert.False(t, s.Busy())

	m.previewFn = nil
	_, err = s.RunPreview(context.Background(), m)
	require.NoError(t, err, "manual retry works")
	require.Equal(t, PhaseConfirmReady, s.Phase())

	m.confirmFn = func([]ConfirmRow) (*ConfirmResult, error) { return nil, boom }
	_, err = s.Confirm(context.Background(), m)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, PhaseConfirmReady, s.Phase())
	assert.Len(t, s.Decisions(), 1, "preview result kept")
}

func TestSession_OneCallInFlight(t *testing.T) {
	s := reviewSession(t, person("Ann", "ann@x.com"))
	release := make(chan struct{})
	m := &fakeMatcher{
		previewFn: func(rows []ImportRow) ([]PreviewRow, error) {
			<-release
			return []PreviewRow{{RowNumber: 1, SuggestedAction: SuggestCreate}}, nil
		},
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.RunPreview(context.Background(), m)
		done <- err
	}()

	require.Eventually(t, s.Busy, time.Second, 5*time.Millisecond)
	assert.Equal(t, PhasePreview, s.Phase())

	_, err := s.RunPreview(context.Background(), m)
	assert.ErrorIs(t, err, ErrCallInFlight)
	_, err = s.EditRow(1, ImportRow{DisplayName: "Ann B"})
	assert.ErrorIs(t, err, ErrCallInFlight)
	assert.ErrorIs(t, s.SetExcluded(1, true), ErrCallInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, PhaseConfirmReady, s.Phase())
	preview, _ := m.calls()
	assert.Equal(t, 1, preview)
}

func TestSession_EndToEnd(t *testing.T) {
	s := newSession(t, SessionOptions{},
		tabular.RawRow{"Name": "Ann", "Email": "ann@x.com", "Phone": "555-100-0001"},
		tabular.RawRow{"Name": "Bob", "Email": "bob@x.com"},
		tabular.RawRow{"Notes": "call the office"}, // no name, no contact
		tabular.RawRow{"Name": "Cy", "Phone": "555-100-0004"},
		tabular.RawRow{"Name": "Dan", "Email": "dan@fail.com"},
	)
	require.NoError(t, s.ConfirmMapping())

	rows := s.Rows()
	require.Len(t, rows, 5)
	assert.Contains(t, rows[2].IssueTexts(), AdvisoryMissingName)
	assert.Contains(t, rows[2].IssueTexts(), AdvisoryMissingContact)
	assert.Zero(t, s.Summary().BlockingGroups, "advisories do not block")

	require.NoError(t, s.SetExcluded(3, true))

	m := &fakeMatcher{
		previewFn: func(rows []ImportRow) ([]PreviewRow, error) {
			out := make([]PreviewRow, len(rows))
			for i, r := range rows {
				out[i] = PreviewRow{RowNumber: r.RowNumber, SuggestedAction: SuggestCreate}
			}
			out[0] = PreviewRow{RowNumber: 1, SuggestedAction: SuggestUpdate, PersonID: "p-1", MatchBasis: MatchEmail}
			out[2] = PreviewRow{RowNumber: 4, SuggestedAction: SuggestError, Errors: []string{"needs an email"}}
			return out, nil
		},
	}

	decisions, err := s.RunPreview(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, decisions, 4)
	require.Len(t, m.lastPreview, 4)

	// Operator approves the defaults but creates row 4 anyway.
	_, err = s.SetAction(4, ActionCreate, "")
	require.NoError(t, err)

	res, err := s.Confirm(context.Background(), m)
	require.NoError(t, err)

	sum := res.Summary
	assert.Equal(t, 4, sum.Processed)
	assert.Equal(t, sum.Processed, sum.Created+sum.Updated+sum.Skipped+sum.Errors)
	assert.Equal(t, 2, sum.Created)
	assert.Equal(t, 1, sum.Updated)
	assert.Equal(t, 1, sum.Errors)
	assert.Len(t, res.Rows, 4)
}
