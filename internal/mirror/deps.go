package mirror

import (
	"context"
	"io"
	"time"

	"github.com/jonmartinstorm/repospeiler/internal/models"
	"github.com/jonmartinstorm/repospeiler/internal/target"
)

// SourceAPI er det motoren trenger fra kilde-klienten.
type SourceAPI interface {
	ListAllRepos(ctx context.Context, includeStarred, includeForks bool) ([]models.Repository, error)
	ListOrgs(ctx context.Context) ([]models.Organization, error)
	ListReleases(ctx context.Context, owner, repo string) ([]models.Release, error)
	DownloadAsset(ctx context.Context, owner, repo string, assetID int64) (io.ReadCloser, error)
	ListLabels(ctx context.Context, owner, repo string) ([]models.Label, error)
	ListMilestones(ctx context.Context, owner, repo string) ([]models.Milestone, error)
	ListIssues(ctx context.Context, owner, repo string) ([]models.Issue, error)
	ListIssueComments(ctx context.Context, owner, repo string, number int) ([]models.Comment, error)
	ListPullRequests(ctx context.Context, owner, repo string) ([]models.PullRequest, error)
}

// TargetAPI er det motoren trenger fra target-klienten.
type TargetAPI interface {
	GetOrg(ctx context.Context, name string) (*target.Org, error)
	CreateOrg(ctx context.Context, name string) (*target.Org, error)
	GetRepo(ctx context.Context, owner, name string) (*target.Repo, error)
	MigrateRepo(ctx context.Context, opts target.MigrateOptions) (*target.Repo, error)
	SyncMirror(ctx context.Context, owner, name string) error
	CreateLabel(ctx context.Context, owner, name, label, color, description string) error
	CreateMilestone(ctx context.Context, owner, name, title, description, state string, dueOn *time.Time) error
	CreateIssue(ctx context.Context, owner, name, title, body string, closed bool) (int64, error)
	CreateComment(ctx context.Context, owner, name string, issueIndex int64, body string) error
	CreateRelease(ctx context.Context, owner, name, tag, title, body string, draft, prerelease bool) (int64, error)
	UploadReleaseAsset(ctx context.Context, owner, name string, releaseID int64, fileName string, data io.Reader) error
}

// Store er persistensdelen motoren muterer. All mutasjon er enkeltrads
// statusoppdateringer.
type Store interface {
	UpsertRepo(ctx context.Context, r models.Repository) error
	ListReposByStatus(ctx context.Context, statuses ...models.RepoStatus) ([]models.Repository, error)
	GetReposByFullNames(ctx context.Context, fullNames []string) ([]models.Repository, error)
	UpdateRepoStatus(ctx context.Context, id int64, status models.RepoStatus, errorMessage string) error
	SetMirroredLocation(ctx context.Context, id int64, status models.RepoStatus, location string) error
	GetOrg(ctx context.Context, name string) (*models.Organization, error)
	UpsertOrg(ctx context.Context, o models.Organization) error
	UpdateOrgStatus(ctx context.Context, name string, status models.RepoStatus) error
}
