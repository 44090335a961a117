// Package source er klienten mot kilde-APIet (GitHub). Paginering
// håndteres her slik at resten av motoren bare ser ferdige lister, og
// alle feil klassifiseres inn i remote-taksonomien ved grensen.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"

	"github.com/jonmartinstorm/repospeiler/internal/config"
	"github.com/jonmartinstorm/repospeiler/internal/models"
	"github.com/jonmartinstorm/repospeiler/internal/remote"
)

const perPage = 100

type Client struct {
	gh   *github.Client
	user string
}

// NewClient bygger en klient fra konfigurasjonen: personlig token
// eller GitHub App, avhengig av hva som er satt.
func NewClient(cfg config.Config) (*Client, error) {
	if cfg.SourceAppID != 0 && cfg.SourceInstallID != 0 && cfg.SourceAppKeyPath != "" {
		itr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, cfg.SourceAppID, cfg.SourceInstallID, cfg.SourceAppKeyPath)
		if err != nil {
			return nil, fmt.Errorf("kunne ikke lese app-nøkkel: %w", err)
		}
		return &Client{
			gh:   github.NewClient(&http.Client{Transport: itr}),
			user: cfg.SourceUser,
		}, nil
	}

	if cfg.SourceToken == "" {
		return nil, &remote.ConfigurationError{Field: "GITHUB_TOKEN"}
	}
	return &Client{
		gh:   github.NewClient(nil).WithAuthToken(cfg.SourceToken),
		user: cfg.SourceUser,
	}, nil
}

// ListRepos henter alle repos for kilde-kontoen, paginert.
func (c *Client) ListRepos(ctx context.Context) ([]models.Repository, error) {
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Affiliation: "owner",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var all []models.Repository
	for {
		repos, resp, err := c.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, classify("kontoen "+c.user, err)
		}
		for _, r := range repos {
			all = append(all, convertRepo(r, false))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListAllRepos setter sammen hele repo-settet for kontoen: egne
// repos, alle organisasjonenes repos og eventuelt stjernemerkede.
// Duplikater (eget repo som også er stjernemerket) dedupliseres på
// fullt navn, der den stjernemerkede varianten vinner slik at
// Starred-flagget bevares.
func (c *Client) ListAllRepos(ctx context.Context, includeStarred, includeForks bool) ([]models.Repository, error) {
	repos, err := c.ListRepos(ctx)
	if err != nil {
		return nil, err
	}

	orgs, err := c.ListOrgs(ctx)
	if err != nil {
		return nil, err
	}
	for _, org := range orgs {
		orgRepos, err := c.ListOrgRepos(ctx, org.Name)
		if err != nil {
			return nil, err
		}
		repos = append(repos, orgRepos...)
	}

	if includeStarred {
		starred, err := c.ListStarred(ctx)
		if err != nil {
			return nil, err
		}
		repos = append(repos, starred...)
	}

	seen := make(map[string]int, len(repos))
	var all []models.Repository
	for _, r := range repos {
		if !includeForks && r.Fork && !r.Starred {
			continue
		}
		if idx, ok := seen[r.FullName]; ok {
			if r.Starred {
				all[idx] = r
			}
			continue
		}
		seen[r.FullName] = len(all)
		all = append(all, r)
	}
	return all, nil
}

// ListOrgs henter organisasjonene kontoen er medlem av.
func (c *Client) ListOrgs(ctx context.Context) ([]models.Organization, error) {
	opts := &github.ListOptions{PerPage: perPage}
	var all []models.Organization
	for {
		orgs, resp, err := c.gh.Organizations.List(ctx, "", opts)
		if err != nil {
			return nil, classify("organisasjoner for "+c.user, err)
		}
		for _, o := range orgs {
			all = append(all, models.Organization{Name: o.GetLogin()})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListOrgRepos henter alle repos i én kildeorganisasjon.
func (c *Client) ListOrgRepos(ctx context.Context, org string) ([]models.Repository, error) {
	opts := &github.RepositoryListByOrgOptions{
		Type:        "all",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var all []models.Repository
	for {
		repos, resp, err := c.gh.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, classify("organisasjonen "+org, err)
		}
		for _, r := range repos {
			all = append(all, convertRepo(r, false))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListStarred henter kontoens stjernemerkede repos.
func (c *Client) ListStarred(ctx context.Context) ([]models.Repository, error) {
	opts := &github.ActivityListStarredOptions{
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var all []models.Repository
	for {
		starred, resp, err := c.gh.Activity.ListStarred(ctx, "", opts)
		if err != nil {
			return nil, classify("stjernemerkede repos for "+c.user, err)
		}
		for _, s := range starred {
			all = append(all, convertRepo(s.GetRepository(), true))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListReleases henter releases med assets for ett repo.
func (c *Client) ListReleases(ctx context.Context, owner, repo string) ([]models.Release, error) {
	opts := &github.ListOptions{PerPage: perPage}
	var all []models.Release
	for {
		releases, resp, err := c.gh.Repositories.ListReleases(ctx, owner, repo, opts)
		if err != nil {
			return nil, classify(owner+"/"+repo, err)
		}
		for _, r := range releases {
			rel := models.Release{
				TagName:    r.GetTagName(),
				Name:       r.GetName(),
				Body:       r.GetBody(),
				Draft:      r.GetDraft(),
				Prerelease: r.GetPrerelease(),
			}
			for _, a := range r.Assets {
				rel.Assets = append(rel.Assets, models.ReleaseAsset{
					ID:          a.GetID(),
					Name:        a.GetName(),
					ContentType: a.GetContentType(),
					Size:        int64(a.GetSize()),
				})
			}
			all = append(all, rel)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// DownloadAsset strømmer rå bytes for ett release-asset.
func (c *Client) DownloadAsset(ctx context.Context, owner, repo string, assetID int64) (io.ReadCloser, error) {
	rc, _, err := c.gh.Repositories.DownloadReleaseAsset(ctx, owner, repo, assetID, http.DefaultClient)
	if err != nil {
		return nil, classify(fmt.Sprintf("asset %d i %s/%s", assetID, owner, repo), err)
	}
	return rc, nil
}

// ListLabels henter alle labels for ett repo.
func (c *Client) ListLabels(ctx context.Context, owner, repo string) ([]models.Label, error) {
	opts := &github.ListOptions{PerPage: perPage}
	var all []models.Label
	for {
		labels, resp, err := c.gh.Issues.ListLabels(ctx, owner, repo, opts)
		if err != nil {
			return nil, classify(owner+"/"+repo, err)
		}
		for _, l := range labels {
			all = append(all, models.Label{
				Name:        l.GetName(),
				Color:       l.GetColor(),
				Description: l.GetDescription(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListMilestones henter alle milepæler for ett repo.
func (c *Client) ListMilestones(ctx context.Context, owner, repo string) ([]models.Milestone, error) {
	opts := &github.MilestoneListOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var all []models.Milestone
	for {
		milestones, resp, err := c.gh.Issues.ListMilestones(ctx, owner, repo, opts)
		if err != nil {
			return nil, classify(owner+"/"+repo, err)
		}
		for _, m := range milestones {
			ms := models.Milestone{
				Title:       m.GetTitle(),
				Description: m.GetDescription(),
				State:       m.GetState(),
			}
			if m.DueOn != nil {
				due := m.DueOn.Time
				ms.DueOn = &due
			}
			all = append(all, ms)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListIssues henter issues (uten PR-er) for ett repo. Manglende body
// og assignees tolereres.
func (c *Client) ListIssues(ctx context.Context, owner, repo string) ([]models.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var all []models.Issue
	for {
		issues, resp, err := c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return nil, classify(owner+"/"+repo, err)
		}
		for _, is := range issues {
			if is.IsPullRequest() {
				continue
			}
			issue := models.Issue{
				Number:    is.GetNumber(),
				Title:     is.GetTitle(),
				Body:      is.GetBody(),
				State:     is.GetState(),
				Milestone: is.GetMilestone().GetTitle(),
				CreatedAt: is.GetCreatedAt().Time,
			}
			for _, l := range is.Labels {
				issue.Labels = append(issue.Labels, l.GetName())
			}
			all = append(all, issue)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return all, nil
}

// ListIssueComments henter kommentarene til én issue.
func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]models.Comment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var all []models.Comment
	for {
		comments, resp, err := c.gh.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, classify(fmt.Sprintf("issue #%d i %s/%s", number, owner, repo), err)
		}
		for _, cm := range comments {
			all = append(all, models.Comment{
				Body:      cm.GetBody(),
				Author:    cm.GetUser().GetLogin(),
				CreatedAt: cm.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListPullRequests henter PR-er for ett repo.
func (c *Client) ListPullRequests(ctx context.Context, owner, repo string) ([]models.PullRequest, error) {
	opts := &github.PullRequestListOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var all []models.PullRequest
	for {
		pulls, resp, err := c.gh.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, classify(owner+"/"+repo, err)
		}
		for _, pr := range pulls {
			pull := models.PullRequest{
				Number:    pr.GetNumber(),
				Title:     pr.GetTitle(),
				Body:      pr.GetBody(),
				State:     pr.GetState(),
				CreatedAt: pr.GetCreatedAt().Time,
			}
			for _, l := range pr.Labels {
				pull.Labels = append(pull.Labels, l.GetName())
			}
			all = append(all, pull)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func convertRepo(r *github.Repository, starred bool) models.Repository {
	repo := models.Repository{
		ID:       r.GetID(),
		Name:     r.GetName(),
		FullName: r.GetFullName(),
		Owner:    r.GetOwner().GetLogin(),
		CloneURL: r.GetCloneURL(),
		Private:  r.GetPrivate(),
		Fork:     r.GetFork(),
		Starred:  starred,
		Archived: r.GetArchived(),
		Status:   models.StatusDiscovered,
	}
	if r.GetOwner().GetType() == "Organization" {
		repo.Organization = r.GetOwner().GetLogin()
	}
	return repo
}

func classify(resource string, err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &remote.TransientError{Op: "kilde-API", Status: http.StatusTooManyRequests, Err: err}
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &remote.TransientError{Op: "kilde-API", Status: http.StatusTooManyRequests, Err: err}
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return remote.ClassifyStatus("kilde-API", resource, ghErr.Response.StatusCode, ghErr.Message)
	}
	// Nettverksfeil uten HTTP-svar regnes som forbigående.
	return &remote.TransientError{Op: "kilde-API", Err: err}
}
