// Package mocks har håndskrevne testify-mocks for motorens
// avhengighetsgrensesnitt.
package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/jonmartinstorm/repospeiler/internal/models"
	"github.com/jonmartinstorm/repospeiler/internal/target"
)

// MockSource mocker kilde-klienten.
type MockSource struct {
	mock.Mock
}

func (m *MockSource) ListAllRepos(ctx context.Context, includeStarred, includeForks bool) ([]models.Repository, error) {
	args := m.Called(ctx, includeStarred, includeForks)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Repository), args.Error(1)
}

func (m *MockSource) ListOrgs(ctx context.Context) ([]models.Organization, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Organization), args.Error(1)
}

func (m *MockSource) ListReleases(ctx context.Context, owner, repo string) ([]models.Release, error) {
	args := m.Called(ctx, owner, repo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Release), args.Error(1)
}

func (m *MockSource) DownloadAsset(ctx context.Context, owner, repo string, assetID int64) (io.ReadCloser, error) {
	args := m.Called(ctx, owner, repo, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockSource) ListLabels(ctx context.Context, owner, repo string) ([]models.Label, error) {
	args := m.Called(ctx, owner, repo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Label), args.Error(1)
}

func (m *MockSource) ListMilestones(ctx context.Context, owner, repo string) ([]models.Milestone, error) {
	args := m.Called(ctx, owner, repo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Milestone), args.Error(1)
}

func (m *MockSource) ListIssues(ctx context.Context, owner, repo string) ([]models.Issue, error) {
	args := m.Called(ctx, owner, repo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Issue), args.Error(1)
}

func (m *MockSource) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]models.Comment, error) {
	args := m.Called(ctx, owner, repo, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Comment), args.Error(1)
}

func (m *MockSource) ListPullRequests(ctx context.Context, owner, repo string) ([]models.PullRequest, error) {
	args := m.Called(ctx, owner, repo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PullRequest), args.Error(1)
}

// MockTarget mocker target-klienten. Dekker både speilings- og
// oppryddingsmetodene.
type MockTarget struct {
	mock.Mock
}

func (m *MockTarget) GetOrg(ctx context.Context, name string) (*target.Org, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*target.Org), args.Error(1)
}

func (m *MockTarget) CreateOrg(ctx context.Context, name string) (*target.Org, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*target.Org), args.Error(1)
}

func (m *MockTarget) GetRepo(ctx context.Context, owner, name string) (*target.Repo, error) {
	args := m.Called(ctx, owner, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*target.Repo), args.Error(1)
}

func (m *MockTarget) MigrateRepo(ctx context.Context, opts target.MigrateOptions) (*target.Repo, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*target.Repo), args.Error(1)
}

func (m *MockTarget) SyncMirror(ctx context.Context, owner, name string) error {
	args := m.Called(ctx, owner, name)
	return args.Error(0)
}

func (m *MockTarget) ArchiveRepo(ctx context.Context, owner, name string) error {
	args := m.Called(ctx, owner, name)
	return args.Error(0)
}

func (m *MockTarget) DeleteRepo(ctx context.Context, owner, name string) error {
	args := m.Called(ctx, owner, name)
	return args.Error(0)
}

func (m *MockTarget) CreateLabel(ctx context.Context, owner, name, label, color, description string) error {
	args := m.Called(ctx, owner, name, label, color, description)
	return args.Error(0)
}

func (m *MockTarget) CreateMilestone(ctx context.Context, owner, name, title, description, state string, dueOn *time.Time) error {
	args := m.Called(ctx, owner, name, title, description, state, dueOn)
	return args.Error(0)
}

func (m *MockTarget) CreateIssue(ctx context.Context, owner, name, title, body string, closed bool) (int64, error) {
	args := m.Called(ctx, owner, name, title, body, closed)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTarget) CreateComment(ctx context.Context, owner, name string, issueIndex int64, body string) error {
	args := m.Called(ctx, owner, name, issueIndex, body)
	return args.Error(0)
}

func (m *MockTarget) CreateRelease(ctx context.Context, owner, name, tag, title, body string, draft, prerelease bool) (int64, error) {
	args := m.Called(ctx, owner, name, tag, title, body, draft, prerelease)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTarget) UploadReleaseAsset(ctx context.Context, owner, name string, releaseID int64, fileName string, data io.Reader) error {
	args := m.Called(ctx, owner, name, releaseID, fileName, data)
	return args.Error(0)
}

// MockStore mocker repo- og organisasjonsdelen av lagringslaget.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) UpsertRepo(ctx context.Context, r models.Repository) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockStore) ListReposByStatus(ctx context.Context, statuses ...models.RepoStatus) ([]models.Repository, error) {
	callArgs := make([]interface{}, 0, len(statuses)+1)
	callArgs = append(callArgs, ctx)
	for _, s := range statuses {
		callArgs = append(callArgs, s)
	}
	args := m.Called(callArgs...)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Repository), args.Error(1)
}

func (m *MockStore) GetReposByFullNames(ctx context.Context, fullNames []string) ([]models.Repository, error) {
	args := m.Called(ctx, fullNames)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Repository), args.Error(1)
}

func (m *MockStore) UpdateRepoStatus(ctx context.Context, id int64, status models.RepoStatus, errorMessage string) error {
	args := m.Called(ctx, id, status, errorMessage)
	return args.Error(0)
}

func (m *MockStore) SetMirroredLocation(ctx context.Context, id int64, status models.RepoStatus, location string) error {
	args := m.Called(ctx, id, status, location)
	return args.Error(0)
}

func (m *MockStore) DeleteRepo(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) GetOrg(ctx context.Context, name string) (*models.Organization, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Organization), args.Error(1)
}

func (m *MockStore) UpsertOrg(ctx context.Context, o models.Organization) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockStore) UpdateOrgStatus(ctx context.Context, name string, status models.RepoStatus) error {
	args := m.Called(ctx, name, status)
	return args.Error(0)
}

// MockLedgerStore mocker jobbdelen av lagringslaget.
type MockLedgerStore struct {
	mock.Mock
}

func (m *MockLedgerStore) InsertJob(ctx context.Context, j models.MirrorJob) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *MockLedgerStore) AppendJobItem(ctx context.Context, batchID, itemID string) error {
	args := m.Called(ctx, batchID, itemID)
	return args.Error(0)
}

func (m *MockLedgerStore) CloseJob(ctx context.Context, batchID string) error {
	args := m.Called(ctx, batchID)
	return args.Error(0)
}

func (m *MockLedgerStore) FailJob(ctx context.Context, batchID, message string) error {
	args := m.Called(ctx, batchID, message)
	return args.Error(0)
}

func (m *MockLedgerStore) ListStaleJobs(ctx context.Context, before time.Time) ([]models.MirrorJob, error) {
	args := m.Called(ctx, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MirrorJob), args.Error(1)
}

// MockScheduleStore mocker schedule-delen av lagringslaget.
type MockScheduleStore struct {
	mock.Mock
}

func (m *MockScheduleStore) GetSchedule(ctx context.Context, tenant string) (time.Time, time.Time, error) {
	args := m.Called(ctx, tenant)
	return args.Get(0).(time.Time), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockScheduleStore) SetSchedule(ctx context.Context, tenant string, lastRun, nextRun time.Time) error {
	args := m.Called(ctx, tenant, lastRun, nextRun)
	return args.Error(0)
}
