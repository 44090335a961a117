// Package mirror er tilstandsmaskinen som driver ett repo eller én
// organisasjon gjennom oppretting, verifisering og metadata-speiling
// på target, med persistert status ved hver overgang.
//
// Overganger: discovered → transferring → transferred → (syncing →
// synced) → failed. archived settes bare av orphan-oppryddingen.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jonmartinstorm/repospeiler/internal/batch"
	"github.com/jonmartinstorm/repospeiler/internal/config"
	"github.com/jonmartinstorm/repospeiler/internal/events"
	"github.com/jonmartinstorm/repospeiler/internal/ledger"
	"github.com/jonmartinstorm/repospeiler/internal/models"
	"github.com/jonmartinstorm/repospeiler/internal/remote"
	"github.com/jonmartinstorm/repospeiler/internal/resolver"
	"github.com/jonmartinstorm/repospeiler/internal/target"
)

// Byttes ut i test for å slippe ekte ventetid.
var timeAfter = time.After

type Engine struct {
	Cfg    config.Config
	Source SourceAPI
	Target TargetAPI
	Store  Store
	Ledger *ledger.Ledger
	Events events.Emitter
}

func NewEngine(cfg config.Config, src SourceAPI, tgt TargetAPI, st Store, led *ledger.Ledger, em events.Emitter) *Engine {
	if em == nil {
		em = events.SlogEmitter{}
	}
	return &Engine{Cfg: cfg, Source: src, Target: tgt, Store: st, Ledger: led, Events: em}
}

// RunCycle er én full synk-syklus: discovery av nye kilde-repos,
// speiling av alt som venter (organisasjonsvis, så organisasjonens
// egen status følger repo-settet sitt), og re-synk av alt som allerede
// er overført.
func (e *Engine) RunCycle(ctx context.Context) error {
	if err := e.Discover(ctx); err != nil {
		return fmt.Errorf("discovery feilet: %w", err)
	}

	// transferring er med: et repo som ble stående i flukt etter en
	// krasj (og hvis ledger-post endte som failed under recovery) skal
	// plukkes opp igjen her. Trygt under single-flight-vakten.
	due, err := e.Store.ListReposByStatus(ctx,
		models.StatusDiscovered, models.StatusTransferring, models.StatusFailed)
	if err != nil {
		return err
	}

	personal, byOrg := groupByOrganization(due)
	orgNames := make([]string, 0, len(byOrg))
	for name := range byOrg {
		orgNames = append(orgNames, name)
	}
	sort.Strings(orgNames)
	for _, name := range orgNames {
		if err := e.MirrorOrg(ctx, models.Organization{Name: name}, byOrg[name]); err != nil {
			return err
		}
	}
	if err := e.runBatch(ctx, models.JobTypeMirror, personal); err != nil {
		return err
	}

	syncDue, err := e.Store.ListReposByStatus(ctx, models.StatusTransferred, models.StatusSynced)
	if err != nil {
		return err
	}
	return e.runBatch(ctx, models.JobTypeSync, syncDue)
}

func groupByOrganization(repos []models.Repository) (personal []models.Repository, byOrg map[string][]models.Repository) {
	byOrg = map[string][]models.Repository{}
	for _, r := range repos {
		if r.Organization == "" {
			personal = append(personal, r)
			continue
		}
		byOrg[r.Organization] = append(byOrg[r.Organization], r)
	}
	return personal, byOrg
}

// Discover henter dagens repo-sett fra kilden og setter inn nye som
// discovered. Kjente repos får bare kildefeltene oppdatert.
func (e *Engine) Discover(ctx context.Context) error {
	repos, err := e.Source.ListAllRepos(ctx, e.Cfg.IncludeStarred, e.Cfg.IncludeForks)
	if err != nil {
		return err
	}

	orgs, err := e.Source.ListOrgs(ctx)
	if err != nil {
		return err
	}
	counts := map[string]int{}
	for _, r := range repos {
		if r.Organization != "" {
			counts[r.Organization]++
		}
	}
	for _, o := range orgs {
		o.RepoCount = counts[o.Name]
		if err := e.Store.UpsertOrg(ctx, o); err != nil {
			return err
		}
	}

	slog.Info("Discovery ferdig", "antall_repos", len(repos), "antall_orgs", len(orgs))
	for _, r := range repos {
		if err := e.Store.UpsertRepo(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// runBatch kjører én ledger-ført batch over repos.
func (e *Engine) runBatch(ctx context.Context, jobType string, repos []models.Repository) error {
	if len(repos) == 0 {
		return nil
	}
	ids := make([]string, len(repos))
	for i, r := range repos {
		ids[i] = r.FullName
	}

	b, err := e.Ledger.Start(ctx, jobType, ids)
	if err != nil {
		return err
	}
	e.runWithLedger(ctx, b, jobType, repos)
	return b.Close(ctx)
}

// Resume kjører gjenværende items for en gjenopptatt ledger-post, mot
// samme operasjonstype, uten å røre allerede fullførte items.
func (e *Engine) Resume(ctx context.Context, job models.MirrorJob, remaining []string) error {
	repos, err := e.Store.GetReposByFullNames(ctx, remaining)
	if err != nil {
		return err
	}
	b := e.Ledger.Reopen(job.BatchID)
	e.runWithLedger(ctx, b, job.JobType, repos)
	return nil
}

func (e *Engine) runWithLedger(ctx context.Context, b *ledger.Batch, jobType string, repos []models.Repository) {
	op := e.MirrorRepo
	if jobType == models.JobTypeSync {
		op = e.SyncRepo
	}

	e.Events.Emit(ctx, events.Stamp(events.Event{
		Type: events.TypeJobStarted, Tenant: e.Cfg.Name, BatchID: b.ID, Total: len(repos),
	}))

	opts := batch.Options[models.Repository]{
		Concurrency: e.Cfg.RepoConcurrency,
		MaxRetries:  e.Cfg.MaxRetries,
		Delay:       e.Cfg.DelayPolicy(),
		Retryable:   remote.IsTransient,
		OnRetry: func(r models.Repository, err error, attempt int) {
			slog.Warn("Prøver repo på nytt", "repo", r.FullName, "forsøk", attempt, "error", err)
		},
		OnProgress: func(completed, total int, res batch.Result[models.Repository]) {
			// Sjekkpunkt og statusskriving skjer på en frakoblet
			// context: en shutdown midt i batchen skal la skrivingen
			// for items som alt er ferdige fullføre.
			wctx := context.WithoutCancel(ctx)

			// Ledger-sjekkpunktet skrives før itemet rapporteres
			// videre, slik at ledgeren aldri ligger bak det som er
			// meldt fullført.
			if err := b.ItemDone(wctx, res.Item.FullName); err != nil {
				slog.Error("Kunne ikke sjekkpunkte item", "batch_id", b.ID, "repo", res.Item.FullName, "error", err)
			}

			evType := events.TypeItemMirrored
			msg := ""
			if res.Err != nil {
				evType = events.TypeItemFailed
				msg = res.Err.Error()
				// Terminalt utfall for dette repoet. Maskinen prøver
				// aldri selv på nytt; neste due-syklus plukker det opp.
				if err := e.Store.UpdateRepoStatus(wctx, res.Item.ID, models.StatusFailed, msg); err != nil {
					slog.Error("Kunne ikke sette failed-status", "repo", res.Item.FullName, "error", err)
				}
			}
			e.Events.Emit(ctx, events.Stamp(events.Event{
				Type: evType, Tenant: e.Cfg.Name, Repo: res.Item.FullName,
				BatchID: b.ID, Completed: completed, Total: total, Message: msg,
			}))
		},
	}

	batch.Run(ctx, repos, op, opts)

	e.Events.Emit(ctx, events.Stamp(events.Event{
		Type: events.TypeJobCompleted, Tenant: e.Cfg.Name, BatchID: b.ID, Total: len(repos),
	}))
}

// MirrorRepo driver ett repo fra discovered til transferred.
// Operasjonen er idempotent: finnes repoet allerede som speil på
// riktig sted kortsluttes det til transferred uten nytt migrate-kall.
// Feil returneres uten at failed-status settes her; terminal
// markering gjøres av batch-laget når alle forsøk er brukt.
func (e *Engine) MirrorRepo(ctx context.Context, repo models.Repository) error {
	dest, err := e.resolveDestination(ctx, repo)
	if err != nil {
		return err
	}

	// Persisteres før fjernkallet, slik at en krasj midt i kallet er
	// synlig som «i flukt» og ikke stille borte.
	if err := e.Store.UpdateRepoStatus(ctx, repo.ID, models.StatusTransferring, ""); err != nil {
		return err
	}

	owner, fallbackMsg, err := e.ensureOwner(ctx, dest)
	if err != nil {
		return err
	}

	location := owner + "/" + repo.Name

	existing, err := e.Target.GetRepo(ctx, owner, repo.Name)
	switch {
	case err == nil && existing.Mirror:
		// Allerede speilet – idempotent kortslutning.
		slog.Debug("Repo finnes allerede som speil", "repo", repo.FullName, "location", location)
	case err == nil && !existing.Mirror:
		return &remote.ConflictError{
			Resource: location,
			Err:      errors.New("finnes på target men er ikke konfigurert som speil"),
		}
	case remote.IsNotFound(err):
		if merr := e.migrate(ctx, repo, owner); merr != nil {
			return merr
		}
	default:
		return err
	}

	if err := e.Store.SetMirroredLocation(ctx, repo.ID, models.StatusTransferred, location); err != nil {
		return err
	}
	if fallbackMsg != "" {
		if err := e.Store.UpdateRepoStatus(ctx, repo.ID, models.StatusTransferred, fallbackMsg); err != nil {
			return err
		}
	}

	// Metadata-komponentene er uavhengige: én komponents feil logges
	// og stopper verken søsknene eller overføringen.
	e.mirrorMetadata(ctx, repo, owner)

	return nil
}

func (e *Engine) migrate(ctx context.Context, repo models.Repository, owner string) error {
	cloneAddr := repo.CloneURL
	if repo.Private {
		// Private repos krever et statisk token i clone-adressen.
		// App-installasjonstokens er kortlevde og kan ikke bakes inn,
		// så uten GITHUB_TOKEN avvises repoet før migrate-kallet.
		if e.Cfg.SourceToken == "" {
			return &remote.ConfigurationError{Field: "GITHUB_TOKEN"}
		}
		withCreds, err := embedCredentials(repo.CloneURL, e.Cfg.SourceUser, e.Cfg.SourceToken)
		if err != nil {
			return err
		}
		cloneAddr = withCreds
	}

	_, err := e.Target.MigrateRepo(ctx, target.MigrateOptions{
		CloneAddr:      cloneAddr,
		RepoName:       repo.Name,
		RepoOwner:      owner,
		Mirror:         true,
		MirrorInterval: e.Cfg.MirrorInterval,
		Private:        repo.Private,
		Wiki:           e.Cfg.MirrorWiki,
		LFS:            e.Cfg.MirrorLFS,
	})
	if err == nil {
		return nil
	}

	// Migrate kan tape et kappløp mot en annen syklus. Finnes repoet
	// nå som speil er vi i mål likevel.
	if remote.IsConflict(err) {
		existing, gerr := e.Target.GetRepo(ctx, owner, repo.Name)
		if gerr == nil && existing.Mirror {
			return nil
		}
	}
	return err
}

// SyncRepo re-synker et allerede overført repo. Repoet må finnes på
// enten den registrerte mirrored_location eller den ferskt oppløste
// destinasjonen (plasseringen kan ha flyttet seg om strategi eller
// overstyring er endret); finnes det ingen av stedene feiler vi i
// stedet for å stille opprette på nytt.
func (e *Engine) SyncRepo(ctx context.Context, repo models.Repository) error {
	if err := e.Store.UpdateRepoStatus(ctx, repo.ID, models.StatusSyncing, ""); err != nil {
		return err
	}

	var candidates []string
	if repo.MirroredLocation != "" {
		candidates = append(candidates, repo.MirroredLocation)
	}
	if dest, err := e.resolveDestination(ctx, repo); err == nil {
		fresh := dest + "/" + repo.Name
		if fresh != repo.MirroredLocation {
			candidates = append(candidates, fresh)
		}
	}

	for _, location := range candidates {
		owner, name, ok := splitLocation(location)
		if !ok {
			continue
		}
		existing, err := e.Target.GetRepo(ctx, owner, name)
		if remote.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		if !existing.Mirror {
			continue
		}
		if err := e.Target.SyncMirror(ctx, owner, name); err != nil {
			return err
		}
		return e.Store.SetMirroredLocation(ctx, repo.ID, models.StatusSynced, location)
	}

	return &remote.NotFoundError{Resource: "speilet for " + repo.FullName}
}

// MirrorOrg speiler hele repo-settet til én kildeorganisasjon som én
// ledger-ført batch.
func (e *Engine) MirrorOrg(ctx context.Context, org models.Organization, repos []models.Repository) error {
	if err := e.Store.UpdateOrgStatus(ctx, org.Name, models.StatusTransferring); err != nil {
		return err
	}

	if err := e.runBatch(ctx, models.JobTypeMirror, repos); err != nil {
		_ = e.Store.UpdateOrgStatus(ctx, org.Name, models.StatusFailed)
		return err
	}

	return e.Store.UpdateOrgStatus(ctx, org.Name, models.StatusTransferred)
}

// resolveDestination slår opp eventuell organisasjonsoverstyring og
// lar resolveren avgjøre eier på target.
func (e *Engine) resolveDestination(ctx context.Context, repo models.Repository) (string, error) {
	orgOverride := ""
	if repo.Organization != "" {
		org, err := e.Store.GetOrg(ctx, repo.Organization)
		if err != nil {
			return "", err
		}
		if org != nil {
			orgOverride = org.DestinationOverride
		}
	}
	return resolver.Resolve(repo, orgOverride, e.Cfg.ResolverConfig())
}

// ensureOwner sørger for at destinasjonseieren finnes på target.
// Duplikat-konflikt ved oppretting (et kappløp) løses med avgrenset
// re-spørring; rettighetsavslag faller tilbake til den personlige
// target-kontoen og registrerer det i stedet for å avbryte.
func (e *Engine) ensureOwner(ctx context.Context, dest string) (owner, fallbackMsg string, err error) {
	if dest == e.Cfg.TargetUser {
		return dest, "", nil
	}

	if _, err := e.Target.GetOrg(ctx, dest); err == nil {
		return dest, "", nil
	} else if !remote.IsNotFound(err) {
		return "", "", err
	}

	_, err = e.Target.CreateOrg(ctx, dest)
	if err == nil {
		return dest, "", nil
	}

	if remote.IsConflict(err) {
		// Noen andre opprettet organisasjonen samtidig. Target kan
		// være eventuelt konsistent, så vi spør igjen med avgrensede
		// forsøk og konfigurert forsinkelse.
		delay := e.Cfg.DelayPolicy()
		for attempt := 1; attempt <= e.Cfg.MaxRetries+1; attempt++ {
			select {
			case <-ctx.Done():
				return "", "", ctx.Err()
			case <-timeAfter(delay(attempt)):
			}
			if _, gerr := e.Target.GetOrg(ctx, dest); gerr == nil {
				return dest, "", nil
			}
		}
		return "", "", err
	}

	if remote.IsPermission(err) {
		msg := fmt.Sprintf("organisasjonen %s kunne ikke opprettes (rettigheter); falt tilbake til %s", dest, e.Cfg.TargetUser)
		slog.Warn("Faller tilbake til personlig eier", "organisasjon", dest, "eier", e.Cfg.TargetUser, "error", err)
		e.Events.Emit(ctx, events.Stamp(events.Event{
			Type: events.TypeOrgFallback, Tenant: e.Cfg.Name, Owner: e.Cfg.TargetUser, Message: msg,
		}))
		return e.Cfg.TargetUser, msg, nil
	}

	return "", "", err
}

func embedCredentials(cloneURL, user, token string) (string, error) {
	u, err := url.Parse(cloneURL)
	if err != nil {
		return "", fmt.Errorf("ugyldig clone-URL %s: %w", cloneURL, err)
	}
	u.User = url.UserPassword(user, token)
	return u.String(), nil
}

func splitLocation(location string) (owner, name string, ok bool) {
	parts := strings.SplitN(location, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
