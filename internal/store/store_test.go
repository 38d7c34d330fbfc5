package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/personimport/internal/catalog"
	"github.com/JonMunkholm/personimport/internal/core"
)

// openTestStore connects to TEST_DATABASE_URL and empties both tables.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, Options{URL: dsn, MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Migrate(ctx))
	_, err = s.pool.Exec(ctx, `TRUNCATE mapping_templates, import_runs`)
	require.NoError(t, err)
	return s
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestTemplates_CRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	headers := []string{"Name", "Email"}
	m := core.Mapping{catalog.FieldDisplayName: "Name", catalog.FieldEmails: "Email"}

	created, err := s.CreateTemplate(ctx, "Vendor list", headers, m)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, headers, created.Headers)
	assert.Equal(t, m, created.Mapping)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = s.CreateTemplate(ctx, "Vendor list", headers, m)
	require.Error(t, err)
	assert.Equal(t, "TPL003", core.MapError(err).Code)

	got, err := s.GetTemplate(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)

	m2 := core.Mapping{catalog.FieldDisplayName: "Full Name"}
	updated, err := s.UpdateTemplate(ctx, created.ID, "Vendor list v2", []string{"Full Name"}, m2)
	require.NoError(t, err)
	assert.Equal(t, "Vendor list v2", updated.Name)
	assert.Equal(t, m2, updated.Mapping)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	_, err = s.CreateTemplate(ctx, "Another", headers, m)
	require.NoError(t, err)

	list, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Another", list[0].Name)

	require.NoError(t, s.DeleteTemplate(ctx, created.ID))
	assert.ErrorIs(t, s.DeleteTemplate(ctx, created.ID), core.ErrTemplateNotFound)
	_, err = s.GetTemplate(ctx, created.ID)
	assert.ErrorIs(t, err, core.ErrTemplateNotFound)
}

func TestTemplates_InvalidID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetTemplate(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, core.ErrTemplateNotFound)
	_, err = s.UpdateTemplate(ctx, "not-a-uuid", "x", []string{"a"}, nil)
	assert.ErrorIs(t, err, core.ErrTemplateNotFound)
	assert.ErrorIs(t, s.DeleteTemplate(ctx, "not-a-uuid"), core.ErrTemplateNotFound)
}

func TestRuns_RecordGetListPurge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Microsecond)
	_, err := s.RecordRun(ctx, core.ImportRun{SessionID: "s-old", FileName: "old.csv", ConfirmedAt: old})
	require.NoError(t, err)

	rec, err := s.RecordRun(ctx, core.ImportRun{
		SessionID: "s-new",
		FileName:  "people.csv",
		TotalRows: 3,
		Summary:   core.ConfirmSummary{Processed: 3, Created: 1, Updated: 1, Errors: 1},
		Rows: []core.ConfirmRowResult{
			{RowNumber: 1, Status: core.StatusOK},
			{RowNumber: 2, Status: core.StatusOK},
			{RowNumber: 3, Status: core.StatusError, Message: "email taken"},
		},
		IPAddress: "10.0.0.1",
		UserAgent: "test",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)

	got, err := s.GetRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "people.csv", got.FileName)
	assert.Equal(t, rec.Summary, got.Summary)
	require.Len(t, got.Rows, 3)
	assert.Equal(t, "email taken", got.Rows[2].Message)

	list, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, rec.ID, list[0].ID, "newest first")
	assert.Empty(t, list[0].Rows, "list omits row results")

	n, err := s.PurgeRuns(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = s.GetRun(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, core.ErrRunNotFound)
}
