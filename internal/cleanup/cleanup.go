// Package cleanup finner og håndterer foreldreløse speil: repos som
// fortsatt ligger på target, men som ikke lenger finnes hos kilden.
//
// Sikkerhetsregelen her er absolutt: klarer vi ikke å lese kildens
// repo-sett (utløpt token, slettet konto) avbrytes hele kjøringen.
// En utilgjengelig konto skal aldri tolkes som «alle repos er borte».
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonmartinstorm/repospeiler/internal/config"
	"github.com/jonmartinstorm/repospeiler/internal/events"
	"github.com/jonmartinstorm/repospeiler/internal/models"
	"github.com/jonmartinstorm/repospeiler/internal/remote"
)

// SourceAPI er det oppryddingen trenger fra kilde-klienten.
type SourceAPI interface {
	ListAllRepos(ctx context.Context, includeStarred, includeForks bool) ([]models.Repository, error)
}

// TargetAPI er det oppryddingen trenger fra target-klienten.
type TargetAPI interface {
	ArchiveRepo(ctx context.Context, owner, name string) error
	DeleteRepo(ctx context.Context, owner, name string) error
}

// Store er persistensdelen oppryddingen leser og muterer.
type Store interface {
	ListReposByStatus(ctx context.Context, statuses ...models.RepoStatus) ([]models.Repository, error)
	UpdateRepoStatus(ctx context.Context, id int64, status models.RepoStatus, errorMessage string) error
	DeleteRepo(ctx context.Context, id int64) error
}

type Service struct {
	Cfg    config.Config
	Source SourceAPI
	Target TargetAPI
	Store  Store
	Events events.Emitter
}

func NewService(cfg config.Config, src SourceAPI, tgt TargetAPI, st Store, em events.Emitter) *Service {
	if em == nil {
		em = events.SlogEmitter{}
	}
	return &Service{Cfg: cfg, Source: src, Target: tgt, Store: st, Events: em}
}

// RunOnce kjører én full opprydding og returnerer antall foreldreløse
// speil som ble funnet.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	policy := s.Cfg.Cleanup

	sourceRepos, err := s.Source.ListAllRepos(ctx, s.Cfg.IncludeStarred, s.Cfg.IncludeForks)
	if err != nil {
		if remote.IsAccountInaccessible(err) {
			return 0, fmt.Errorf("kilde-kontoen er utilgjengelig, avbryter opprydding: %w", err)
		}
		return 0, fmt.Errorf("kunne ikke lese kildens repo-sett: %w", err)
	}

	exists := make(map[string]bool, len(sourceRepos))
	for _, r := range sourceRepos {
		exists[r.FullName] = true
	}

	mirrored, err := s.Store.ListReposByStatus(ctx,
		models.StatusTransferred, models.StatusSyncing, models.StatusSynced)
	if err != nil {
		return 0, err
	}

	orphans := 0
	for _, repo := range mirrored {
		if exists[repo.FullName] {
			continue
		}
		orphans++

		if s.isProtected(repo) {
			slog.Info("Foreldreløst speil er beskyttet, rører det ikke", "repo", repo.FullName)
			s.emit(ctx, events.TypeOrphanSkipped, repo, "beskyttet")
			continue
		}

		if err := s.handleOrphan(ctx, repo, policy); err != nil {
			// Én gjenstridig orphan stopper ikke resten av runden.
			slog.Error("Håndtering av foreldreløst speil feilet", "repo", repo.FullName, "error", err)
		}
	}

	slog.Info("Opprydding ferdig",
		"speilede", len(mirrored),
		"foreldreløse", orphans,
		"disposisjon", string(policy.Disposition),
		"dry_run", policy.DryRun)
	return orphans, nil
}

func (s *Service) handleOrphan(ctx context.Context, repo models.Repository, policy config.CleanupPolicy) error {
	owner, name, ok := splitLocation(repo.MirroredLocation)
	if !ok {
		return fmt.Errorf("ukjent mirrored_location %q for %s", repo.MirroredLocation, repo.FullName)
	}

	switch policy.Disposition {
	case config.DispositionArchive:
		if policy.DryRun {
			slog.Info("Dry-run: ville arkivert speilet", "repo", repo.FullName, "location", repo.MirroredLocation)
			s.emit(ctx, events.TypeOrphanSkipped, repo, "dry-run, ville arkivert")
			return nil
		}
		if err := s.Target.ArchiveRepo(ctx, owner, name); err != nil && !remote.IsNotFound(err) {
			return err
		}
		if err := s.Store.UpdateRepoStatus(ctx, repo.ID, models.StatusArchived, "kilden er borte"); err != nil {
			return err
		}
		s.emit(ctx, events.TypeOrphanArchived, repo, "")
		return nil

	case config.DispositionDelete:
		if policy.DryRun {
			slog.Info("Dry-run: ville slettet speilet", "repo", repo.FullName, "location", repo.MirroredLocation)
			s.emit(ctx, events.TypeOrphanSkipped, repo, "dry-run, ville slettet")
			return nil
		}
		if err := s.Target.DeleteRepo(ctx, owner, name); err != nil && !remote.IsNotFound(err) {
			return err
		}
		if err := s.Store.DeleteRepo(ctx, repo.ID); err != nil {
			return err
		}
		s.emit(ctx, events.TypeOrphanDeleted, repo, "")
		return nil

	default:
		slog.Info("Foreldreløst speil registrert", "repo", repo.FullName, "location", repo.MirroredLocation)
		s.emit(ctx, events.TypeOrphanSkipped, repo, "")
		return nil
	}
}

// isProtected matcher både kilde-navnet og plasseringen på target, så
// lista kan skrives fra begge perspektiver.
func (s *Service) isProtected(repo models.Repository) bool {
	for _, p := range s.Cfg.Cleanup.Protected {
		if p == repo.FullName || p == repo.MirroredLocation {
			return true
		}
	}
	return false
}

func (s *Service) emit(ctx context.Context, evType string, repo models.Repository, msg string) {
	s.Events.Emit(ctx, events.Stamp(events.Event{
		Type:    evType,
		Tenant:  s.Cfg.Name,
		Repo:    repo.FullName,
		Owner:   repo.MirroredLocation,
		Message: msg,
	}))
}

func splitLocation(location string) (owner, name string, ok bool) {
	parts := strings.SplitN(location, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
