package core

import (
	"context"
	"errors"
)

// ErrRunsDisabled is returned when no run store is configured.
var ErrRunsDisabled = errors.New("import history needs a database")

// ErrRunNotFound is returned by stores for unknown run ids.
var ErrRunNotFound = errors.New("import run not found")

// DefaultRunListLimit caps ListRuns when no limit is given.
const DefaultRunListLimit = 50

// ListRuns returns the most recent confirmed imports.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]ImportRun, error) {
	if s.runs == nil {
		return nil, ErrRunsDisabled
	}
	if limit <= 0 {
		limit = DefaultRunListLimit
	}
	return s.runs.ListRuns(ctx, limit)
}

// GetRun returns one confirmed import with its per-row results.
func (s *Service) GetRun(ctx context.Context, id string) (*ImportRun, error) {
	if s.runs == nil {
		return nil, ErrRunsDisabled
	}
	return s.runs.GetRun(ctx, id)
}
