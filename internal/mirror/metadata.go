package mirror

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jonmartinstorm/repospeiler/internal/batch"
	"github.com/jonmartinstorm/repospeiler/internal/models"
	"github.com/jonmartinstorm/repospeiler/internal/remote"
)

// mirrorMetadata kopierer releases, labels, milestones, issues og
// pull-requests til det ferdig overførte speilet. Komponentene er
// uavhengige av hverandre: feiler releases kopieres issues likevel, og
// ingen komponentfeil velter selve overføringen. Alt her logges i
// stedet for å returneres.
func (e *Engine) mirrorMetadata(ctx context.Context, repo models.Repository, owner string) {
	if !e.Cfg.MirrorReleases && !e.Cfg.MirrorIssues && !e.Cfg.MirrorPulls && !e.Cfg.MirrorMilestones {
		return
	}

	// Speilet må faktisk finnes før vi begynner å skrive metadata mot
	// det. Gjør vi ikke denne sjekken kan en slettet destinasjon gi en
	// lang hale av forvirrende 404-er per issue.
	existing, err := e.Target.GetRepo(ctx, owner, repo.Name)
	if err != nil || !existing.Mirror {
		perr := &remote.PreconditionError{
			Resource: owner + "/" + repo.Name,
			Err:      err,
		}
		slog.Error("Hopper over metadata, speilet er ikke på plass", "repo", repo.FullName, "error", perr)
		return
	}

	if e.Cfg.MirrorReleases {
		if err := e.mirrorReleases(ctx, repo, owner); err != nil {
			slog.Error("Release-speiling feilet", "repo", repo.FullName, "error", err)
		}
	}
	if e.Cfg.MirrorIssues {
		if err := e.mirrorIssues(ctx, repo, owner); err != nil {
			slog.Error("Issue-speiling feilet", "repo", repo.FullName, "error", err)
		}
	}
	if e.Cfg.MirrorPulls {
		if err := e.mirrorPullRequests(ctx, repo, owner); err != nil {
			slog.Error("Pull-request-speiling feilet", "repo", repo.FullName, "error", err)
		}
	}
	if e.Cfg.MirrorMilestones {
		if err := e.mirrorMilestones(ctx, repo, owner); err != nil {
			slog.Error("Milestone-speiling feilet", "repo", repo.FullName, "error", err)
		}
	}
}

func (e *Engine) mirrorReleases(ctx context.Context, repo models.Repository, owner string) error {
	releases, err := e.Source.ListReleases(ctx, repo.Owner, repo.Name)
	if err != nil {
		return err
	}

	op := func(ctx context.Context, rel models.Release) error {
		releaseID, err := e.Target.CreateRelease(ctx, owner, repo.Name, rel.TagName, rel.Name, rel.Body, rel.Draft, rel.Prerelease)
		if remote.IsConflict(err) {
			// Releasen finnes fra en tidligere kjøring; assets ble
			// lastet opp da.
			slog.Debug("Release finnes allerede", "repo", repo.FullName, "tag", rel.TagName)
			return nil
		}
		if err != nil {
			return err
		}
		for _, asset := range rel.Assets {
			body, err := e.Source.DownloadAsset(ctx, repo.Owner, repo.Name, asset.ID)
			if err != nil {
				return err
			}
			err = e.Target.UploadReleaseAsset(ctx, owner, repo.Name, releaseID, asset.Name, body)
			_ = body.Close()
			if err != nil {
				return err
			}
		}
		return nil
	}

	results := batch.Run(ctx, releases, op, batch.Options[models.Release]{
		Concurrency: e.Cfg.ReleaseConcurrency,
		MaxRetries:  e.Cfg.MaxRetries,
		Delay:       e.Cfg.DelayPolicy(),
		Retryable:   remote.IsTransient,
	})
	return firstError(results)
}

func (e *Engine) mirrorIssues(ctx context.Context, repo models.Repository, owner string) error {
	// Labels først, de er rene upserts og konflikter betyr bare at de
	// finnes fra før.
	labels, err := e.Source.ListLabels(ctx, repo.Owner, repo.Name)
	if err != nil {
		return err
	}
	for _, l := range labels {
		err := e.Target.CreateLabel(ctx, owner, repo.Name, l.Name, l.Color, l.Description)
		if err != nil && !remote.IsConflict(err) {
			return err
		}
	}

	issues, err := e.Source.ListIssues(ctx, repo.Owner, repo.Name)
	if err != nil {
		return err
	}

	op := func(ctx context.Context, issue models.Issue) error {
		index, err := e.Target.CreateIssue(ctx, owner, repo.Name, issue.Title, issue.Body, issue.State == "closed")
		if err != nil {
			return err
		}
		comments, err := e.Source.ListIssueComments(ctx, repo.Owner, repo.Name, issue.Number)
		if err != nil {
			return err
		}
		// Kommentarer skrives sekvensielt så rekkefølgen i tråden
		// bevares.
		for _, c := range comments {
			body := c.Body
			if c.Author != "" {
				body = "*Opprinnelig av @" + c.Author + " " + c.CreatedAt.Format("2006-01-02") + ":*\n\n" + body
			}
			if err := e.Target.CreateComment(ctx, owner, repo.Name, index, body); err != nil {
				return err
			}
		}
		return nil
	}

	results := batch.Run(ctx, issues, op, batch.Options[models.Issue]{
		Concurrency: e.Cfg.IssueConcurrency,
		MaxRetries:  e.Cfg.MaxRetries,
		Delay:       e.Cfg.DelayPolicy(),
		Retryable:   remote.IsTransient,
	})
	return firstError(results)
}

// mirrorPullRequests legger inn PR-ene som issues med en tydelig
// prefiks; target har ingen API-flate for å gjenskape ekte PR-er fra
// en annen instans.
func (e *Engine) mirrorPullRequests(ctx context.Context, repo models.Repository, owner string) error {
	pulls, err := e.Source.ListPullRequests(ctx, repo.Owner, repo.Name)
	if err != nil {
		return err
	}

	op := func(ctx context.Context, pr models.PullRequest) error {
		title := "[PR] " + pr.Title
		var body strings.Builder
		body.WriteString(pr.Body)
		if len(pr.Labels) > 0 {
			body.WriteString("\n\n*Labels: " + strings.Join(pr.Labels, ", ") + "*")
		}
		_, err := e.Target.CreateIssue(ctx, owner, repo.Name, title, body.String(), pr.State == "closed")
		return err
	}

	results := batch.Run(ctx, pulls, op, batch.Options[models.PullRequest]{
		Concurrency: e.Cfg.PullConcurrency,
		MaxRetries:  e.Cfg.MaxRetries,
		Delay:       e.Cfg.DelayPolicy(),
		Retryable:   remote.IsTransient,
	})
	return firstError(results)
}

func (e *Engine) mirrorMilestones(ctx context.Context, repo models.Repository, owner string) error {
	milestones, err := e.Source.ListMilestones(ctx, repo.Owner, repo.Name)
	if err != nil {
		return err
	}
	for _, m := range milestones {
		err := e.Target.CreateMilestone(ctx, owner, repo.Name, m.Title, m.Description, m.State, m.DueOn)
		if err != nil && !remote.IsConflict(err) {
			return err
		}
	}
	return nil
}

func firstError[T any](results []batch.Result[T]) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
