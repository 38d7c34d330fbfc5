package core

// coordinator.go packages included rows for the backend matcher and folds
// its responses back into the session.

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// MissingPreviewError is recorded for rows the preview response left out.
const MissingPreviewError = "No preview result returned for this row"

// RowDecision is the preview outcome of a row plus the action that will be
// sent at confirm time.
type RowDecision struct {
	RowNumber int        `json:"rowNumber"`
	Preview   PreviewRow `json:"preview"`
	Action    Action     `json:"action"`
	PersonID  string     `json:"personId,omitempty"`
}

func (st confirmReadyState) list() []RowDecision {
	out := make([]RowDecision, 0, len(st.rowNumbers))
	for _, n := range st.rowNumbers {
		out = append(out, *st.decisions[n])
	}
	return out
}

// DefaultDecision picks the initial action for a preview row: update when the
// backend matched an existing person, create when it suggests create, skip
// otherwise.
func DefaultDecision(p PreviewRow) (Action, string) {
	switch {
	case p.SuggestedAction == SuggestUpdate && p.PersonID != "":
		return ActionUpdate, p.PersonID
	case p.SuggestedAction == SuggestCreate:
		return ActionCreate, ""
	default:
		return ActionSkip, ""
	}
}

// previewPayload returns the included rows in row-number order with the
// session-only fields stripped.
func previewPayload(rows []WorkingRow) []ImportRow {
	var out []ImportRow
	for _, r := range rows {
		if !r.Excluded {
			out = append(out, r.clone().ImportRow)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out
}

// foldPreview builds the decisions for exactly rowNumbers. Response rows for
// other numbers are ignored; numbers without a response become errors.
func foldPreview(rowNumbers []int, resp []PreviewRow) map[int]*RowDecision {
	byRow := make(map[int]PreviewRow, len(resp))
	for _, p := range resp {
		if _, dup := byRow[p.RowNumber]; !dup {
			byRow[p.RowNumber] = p
		}
	}

	decisions := make(map[int]*RowDecision, len(rowNumbers))
	for _, n := range rowNumbers {
		p, ok := byRow[n]
		if !ok {
			p = PreviewRow{RowNumber: n, SuggestedAction: SuggestError, Errors: []string{MissingPreviewError}}
		}
		action, personID := DefaultDecision(p)
		decisions[n] = &RowDecision{RowNumber: n, Preview: p, Action: action, PersonID: personID}
	}
	return decisions
}

// RunPreview sends the included rows to the matcher and moves to
// confirm-ready. The duplicate gate and size limit are checked before any
// call is made. If the call fails the session is left as it was.
func (s *Session) RunPreview(ctx context.Context, m Matcher) ([]RowDecision, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}

	switch s.state.(type) {
	case reviewState, confirmReadyState:
	default:
		err := s.transitionErr("run preview")
		s.mu.Unlock()
		return nil, err
	}

	payload := previewPayload(s.rows)
	if len(payload) == 0 {
		s.mu.Unlock()
		return nil, ErrNoIncludedRows
	}
	if groups := BlockingGroups(s.rows); len(groups) > 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d group(s) must be resolved", ErrBlockingDuplicates, len(groups))
	}
	if len(payload) > s.opts.MaxPreviewRows {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d rows, limit is %d", ErrPreviewTooLarge, len(payload), s.opts.MaxPreviewRows)
	}

	rowNumbers := make([]int, len(payload))
	for i, r := range payload {
		rowNumbers[i] = r.RowNumber
	}

	prev := s.state
	s.state = previewState{rowNumbers: rowNumbers, prev: prev}
	s.busy = true
	s.mu.Unlock()

	resp, err := m.Preview(ctx, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.lastActive = time.Now()

	if err != nil {
		s.state = prev
		return nil, fmt.Errorf("preview: %w", err)
	}

	st := confirmReadyState{rowNumbers: rowNumbers, decisions: foldPreview(rowNumbers, resp)}
	s.state = st
	return st.list(), nil
}

// Decisions returns the preview outcome and chosen action per row. It is
// empty outside the confirm-ready phase.
func (s *Session) Decisions() []RowDecision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.state.(confirmReadyState); ok {
		return st.list()
	}
	return nil
}

// SetAction overrides the action for a previewed row. Update needs a person
// id; when none is given the one the backend matched is used.
func (s *Session) SetAction(rowNumber int, action Action, personID string) (RowDecision, error) {
	if err := s.lock(); err != nil {
		return RowDecision{}, err
	}
	defer s.mu.Unlock()

	st, ok := s.state.(confirmReadyState)
	if !ok {
		return RowDecision{}, s.transitionErr("choose actions")
	}
	d, ok := st.decisions[rowNumber]
	if !ok {
		return RowDecision{}, fmt.Errorf("%w: %d was not previewed", ErrRowNotFound, rowNumber)
	}
	if !action.Valid() {
		return RowDecision{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	if action == ActionUpdate {
		if personID == "" {
			personID = d.Preview.PersonID
		}
		if personID == "" {
			return RowDecision{}, fmt.Errorf("%w: update needs a person id", ErrInvalidAction)
		}
	} else {
		personID = ""
	}

	d.Action = action
	d.PersonID = personID
	return *d, nil
}

// confirmPayload pairs every previewed row with its decision. Skipped rows
// are sent too so the backend counts them.
func confirmPayload(rows []WorkingRow, st confirmReadyState) []ConfirmRow {
	byNumber := make(map[int]WorkingRow, len(rows))
	for _, r := range rows {
		byNumber[r.RowNumber] = r
	}

	out := make([]ConfirmRow, 0, len(st.rowNumbers))
	for _, n := range st.rowNumbers {
		d := st.decisions[n]
		out = append(out, ConfirmRow{
			ImportRow: byNumber[n].clone().ImportRow,
			Action:    d.Action,
			PersonID:  d.PersonID,
		})
	}
	return out
}

// Confirm commits the previewed rows with their chosen actions and moves to
// done. If the call fails the session stays confirm-ready.
func (s *Session) Confirm(ctx context.Context, m Matcher) (*ConfirmResult, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}

	st, ok := s.state.(confirmReadyState)
	if !ok {
		err := s.transitionErr("confirm")
		s.mu.Unlock()
		return nil, err
	}

	payload := confirmPayload(s.rows, st)
	s.busy = true
	s.mu.Unlock()

	result, err := m.Confirm(ctx, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.lastActive = time.Now()

	if err != nil {
		return nil, fmt.Errorf("confirm: %w", err)
	}
	if result == nil {
		result = &ConfirmResult{}
	}

	s.state = doneState{result: result}
	return result, nil
}

// Result returns the confirm result once the session is done.
func (s *Session) Result() (*ConfirmResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.state.(doneState); ok {
		return st.result, true
	}
	return nil, false
}
