package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/jonmartinstorm/repospeiler/internal/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Store{DB: db}, mock
}

func TestUpsertRepoNeverTouchesStatus(t *testing.T) {
	s, mock := newMockStore(t)

	// ON CONFLICT-delen skal bare oppdatere kildefelter; status og
	// mirrored_location eies av speilmaskinen.
	mock.ExpectExec(`INSERT INTO repositories`).
		WithArgs(int64(1), "api", "acme/api", "acme", "acme", "https://kilde/acme/api.git",
			false, false, false, false, "discovered", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpsertRepo(context.Background(), models.Repository{
		ID:           1,
		Name:         "api",
		FullName:     "acme/api",
		Owner:        "acme",
		Organization: "acme",
		CloneURL:     "https://kilde/acme/api.git",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRepoByFullNameReturnsNilOnMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM repositories WHERE full_name`).
		WithArgs("acme/finnes-ikke").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo, err := s.GetRepoByFullName(context.Background(), "acme/finnes-ikke")
	require.NoError(t, err)
	require.Nil(t, repo)
}

func TestUpdateRepoStatus(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE repositories SET status`).
		WithArgs(int64(7), "failed", "kilden er nede").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateRepoStatus(context.Background(), 7, models.StatusFailed, "kilden er nede")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendJobItemIsIdempotent(t *testing.T) {
	s, mock := newMockStore(t)

	// Guarden NOT (… = ANY(completed_item_ids)) gjør at et item som
	// sjekkpunktes to ganger ikke telles dobbelt.
	mock.ExpectExec(`UPDATE mirror_jobs SET`).
		WithArgs("batch-1", "acme/api").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE mirror_jobs SET`).
		WithArgs("batch-1", "acme/api").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, s.AppendJobItem(ctx, "batch-1", "acme/api"))
	require.NoError(t, s.AppendJobItem(ctx, "batch-1", "acme/api"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListStaleJobsScansArrays(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"batch_id", "job_type", "item_ids", "completed_item_ids",
		"total_items", "completed_items", "in_progress", "error_message",
		"last_checkpoint", "started_at", "completed_at",
	}).AddRow("batch-1", "mirror", `{a/x,a/y}`, `{a/x}`, 2, 1, true, "", now, now, nil)

	mock.ExpectQuery(`SELECT .+ FROM mirror_jobs`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	jobs, err := s.ListStaleJobs(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, []string{"a/x", "a/y"}, []string(jobs[0].ItemIDs))
	require.Equal(t, []string{"a/x"}, []string(jobs[0].CompletedItemIDs))
	require.Equal(t, []string{"a/y"}, jobs[0].RemainingItemIDs())
}

func TestGetScheduleReturnsZeroTimesWhenUnknown(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT last_run, next_run FROM schedule_state`).
		WithArgs("ny-tenant").
		WillReturnRows(sqlmock.NewRows([]string{"last_run", "next_run"}))

	last, next, err := s.GetSchedule(context.Background(), "ny-tenant")
	require.NoError(t, err)
	require.True(t, last.IsZero())
	require.True(t, next.IsZero())
}

func TestSetMirroredLocationClearsError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE repositories SET status .+ mirrored_location .+ error_message = ''`).
		WithArgs(int64(3), "transferred", "mirrors/api").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.SetMirroredLocation(context.Background(), 3, models.StatusTransferred, "mirrors/api")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
