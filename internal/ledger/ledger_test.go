package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jonmartinstorm/repospeiler/internal/ledger"
	"github.com/jonmartinstorm/repospeiler/internal/mocks"
	"github.com/jonmartinstorm/repospeiler/internal/models"
)

func TestStartWritesFullItemList(t *testing.T) {
	store := &mocks.MockLedgerStore{}
	l := ledger.New(store)
	ctx := context.Background()

	var inserted models.MirrorJob
	store.On("InsertJob", ctx, mock.AnythingOfType("models.MirrorJob")).
		Run(func(args mock.Arguments) {
			inserted = args.Get(1).(models.MirrorJob)
		}).
		Return(nil)

	b, err := l.Start(ctx, models.JobTypeMirror, []string{"a/x", "a/y"})
	require.NoError(t, err)
	require.NotEmpty(t, b.ID)
	require.Equal(t, b.ID, inserted.BatchID)
	require.Equal(t, models.JobTypeMirror, inserted.JobType)
	require.Equal(t, []string{"a/x", "a/y"}, inserted.ItemIDs)
}

func TestRecoverResumesExactlyTheRemainingItems(t *testing.T) {
	store := &mocks.MockLedgerStore{}
	l := ledger.New(store)
	ctx := context.Background()

	job := models.MirrorJob{
		BatchID:          "batch-1",
		JobType:          models.JobTypeMirror,
		ItemIDs:          []string{"a", "b", "c", "d"},
		CompletedItemIDs: []string{"a", "c"},
		InProgress:       true,
	}
	store.On("ListStaleJobs", ctx, mock.AnythingOfType("time.Time")).
		Return([]models.MirrorJob{job}, nil)
	store.On("CloseJob", ctx, "batch-1").Return(nil)

	var resumed []string
	err := l.Recover(ctx, 10*time.Minute, func(_ context.Context, j models.MirrorJob, remaining []string) error {
		require.Equal(t, "batch-1", j.BatchID)
		resumed = remaining
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"b", "d"}, resumed)
	store.AssertCalled(t, "CloseJob", ctx, "batch-1")
}

func TestRecoverClosesFullyCompletedJobWithoutResume(t *testing.T) {
	store := &mocks.MockLedgerStore{}
	l := ledger.New(store)
	ctx := context.Background()

	job := models.MirrorJob{
		BatchID:          "batch-2",
		JobType:          models.JobTypeSync,
		ItemIDs:          []string{"a", "b"},
		CompletedItemIDs: []string{"a", "b"},
		InProgress:       true,
	}
	store.On("ListStaleJobs", ctx, mock.AnythingOfType("time.Time")).
		Return([]models.MirrorJob{job}, nil)
	store.On("CloseJob", ctx, "batch-2").Return(nil)

	err := l.Recover(ctx, 10*time.Minute, func(_ context.Context, _ models.MirrorJob, _ []string) error {
		t.Fatal("resume skal ikke kalles for en fullført batch")
		return nil
	})
	require.NoError(t, err)
	store.AssertCalled(t, "CloseJob", ctx, "batch-2")
}

func TestRecoverFailsCorruptJobsInsteadOfDroppingThem(t *testing.T) {
	store := &mocks.MockLedgerStore{}
	l := ledger.New(store)
	ctx := context.Background()

	corrupt := []models.MirrorJob{
		{BatchID: "tom", JobType: models.JobTypeMirror, ItemIDs: nil, InProgress: true},
		{BatchID: "ukjent-type", JobType: "vacuum", ItemIDs: []string{"a"}, InProgress: true},
		{BatchID: "utenfor", JobType: models.JobTypeMirror, ItemIDs: []string{"a"}, CompletedItemIDs: []string{"zzz"}, InProgress: true},
	}
	store.On("ListStaleJobs", ctx, mock.AnythingOfType("time.Time")).Return(corrupt, nil)
	store.On("FailJob", ctx, mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return(nil)

	err := l.Recover(ctx, time.Minute, func(_ context.Context, _ models.MirrorJob, _ []string) error {
		t.Fatal("resume skal ikke kalles for ødelagte poster")
		return nil
	})
	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "FailJob", 3)
}

func TestRecoverMarksJobFailedWhenResumeFails(t *testing.T) {
	store := &mocks.MockLedgerStore{}
	l := ledger.New(store)
	ctx := context.Background()

	job := models.MirrorJob{
		BatchID:    "batch-3",
		JobType:    models.JobTypeMirror,
		ItemIDs:    []string{"a"},
		InProgress: true,
	}
	store.On("ListStaleJobs", ctx, mock.AnythingOfType("time.Time")).
		Return([]models.MirrorJob{job}, nil)
	store.On("FailJob", ctx, "batch-3", mock.AnythingOfType("string")).Return(nil)

	err := l.Recover(ctx, time.Minute, func(_ context.Context, _ models.MirrorJob, _ []string) error {
		return errors.New("kilden er nede")
	})
	require.NoError(t, err)
	store.AssertCalled(t, "FailJob", ctx, "batch-3", "kilden er nede")
	store.AssertNotCalled(t, "CloseJob", ctx, "batch-3")
}

func TestItemDoneCheckpointsAgainstStore(t *testing.T) {
	store := &mocks.MockLedgerStore{}
	l := ledger.New(store)
	ctx := context.Background()

	store.On("InsertJob", ctx, mock.AnythingOfType("models.MirrorJob")).Return(nil)
	b, err := l.Start(ctx, models.JobTypeSync, []string{"a"})
	require.NoError(t, err)

	store.On("AppendJobItem", ctx, b.ID, "a").Return(nil)
	require.NoError(t, b.ItemDone(ctx, "a"))
	store.AssertCalled(t, "AppendJobItem", ctx, b.ID, "a")
}
