// Package store er den persisterte tilstanden: repos, organisasjoner,
// ledger-poster og schedule-tilstand i PostgreSQL. All mutasjon er
// enkeltrads statusoppdateringer nøklet på id – speilmaskinene per
// repo er uavhengige, så ingen kryssrads-transaksjoner trengs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/jonmartinstorm/repospeiler/internal/models"
)

type Store struct {
	DB *sql.DB
}

func NewStore(postgresdsn string) (*Store, error) {
	db, err := sql.Open("postgres", postgresdsn)
	if err != nil {
		slog.Error("Kunne ikke åpne PostgreSQL-database", "error", err)
		return nil, fmt.Errorf("kunne ikke åpne PostgreSQL-database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// ==== Repositories ====

// UpsertRepo setter inn et nytt repo fra discovery, eller oppdaterer
// kildefeltene for et kjent repo. Status og mirrored_location røres
// ikke ved oppdatering – de eies av speilmaskinen.
func (s *Store) UpsertRepo(ctx context.Context, r models.Repository) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO repositories
			(id, name, full_name, owner, organization, clone_url, private, fork, starred, archived, status, destination_override)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (full_name) DO UPDATE SET
			name = EXCLUDED.name,
			owner = EXCLUDED.owner,
			organization = EXCLUDED.organization,
			clone_url = EXCLUDED.clone_url,
			private = EXCLUDED.private,
			fork = EXCLUDED.fork,
			starred = EXCLUDED.starred,
			archived = EXCLUDED.archived`,
		r.ID, r.Name, r.FullName, r.Owner, r.Organization, r.CloneURL,
		r.Private, r.Fork, r.Starred, r.Archived, string(models.StatusDiscovered), r.DestinationOverride)
	if err != nil {
		return fmt.Errorf("UpsertRepo feilet for %s: %w", r.FullName, err)
	}
	return nil
}

const repoColumns = `id, name, full_name, owner, organization, clone_url, private, fork, starred, archived,
	status, mirrored_location, destination_override, error_message, last_mirrored`

func (s *Store) ListRepos(ctx context.Context) ([]models.Repository, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+repoColumns+` FROM repositories ORDER BY full_name`)
	if err != nil {
		return nil, fmt.Errorf("ListRepos feilet: %w", err)
	}
	return scanRepos(rows)
}

// ListReposByStatus henter repoene i de gitte statusene, f.eks.
// settet som er modent for en ny syklus.
func (s *Store) ListReposByStatus(ctx context.Context, statuses ...models.RepoStatus) ([]models.Repository, error) {
	strs := make([]string, len(statuses))
	for i, st := range statuses {
		strs[i] = string(st)
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+repoColumns+` FROM repositories WHERE status = ANY($1) ORDER BY full_name`,
		pq.Array(strs))
	if err != nil {
		return nil, fmt.Errorf("ListReposByStatus feilet: %w", err)
	}
	return scanRepos(rows)
}

func (s *Store) GetRepoByFullName(ctx context.Context, fullName string) (*models.Repository, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+repoColumns+` FROM repositories WHERE full_name = $1`, fullName)
	repo, err := scanRepo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetRepoByFullName feilet for %s: %w", fullName, err)
	}
	return &repo, nil
}

// GetReposByFullNames henter repos for recovery, i samme rekkefølge
// som navnelista der de finnes.
func (s *Store) GetReposByFullNames(ctx context.Context, fullNames []string) ([]models.Repository, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+repoColumns+` FROM repositories WHERE full_name = ANY($1)`, pq.Array(fullNames))
	if err != nil {
		return nil, fmt.Errorf("GetReposByFullNames feilet: %w", err)
	}
	repos, err := scanRepos(rows)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]models.Repository, len(repos))
	for _, r := range repos {
		byName[r.FullName] = r
	}
	ordered := make([]models.Repository, 0, len(fullNames))
	for _, name := range fullNames {
		if r, ok := byName[name]; ok {
			ordered = append(ordered, r)
		}
	}
	return ordered, nil
}

// UpdateRepoStatus er enkeltrads-overgangen speilmaskinen bruker.
func (s *Store) UpdateRepoStatus(ctx context.Context, id int64, status models.RepoStatus, errorMessage string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE repositories SET status = $2, error_message = $3 WHERE id = $1`,
		id, string(status), errorMessage)
	if err != nil {
		return fmt.Errorf("UpdateRepoStatus feilet for %d: %w", id, err)
	}
	return nil
}

// SetMirroredLocation oppdaterer mirrored_location sammen med
// overgangen til transferred/synced – aldri hver for seg.
func (s *Store) SetMirroredLocation(ctx context.Context, id int64, status models.RepoStatus, location string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE repositories SET status = $2, mirrored_location = $3, error_message = '', last_mirrored = now() WHERE id = $1`,
		id, string(status), location)
	if err != nil {
		return fmt.Errorf("SetMirroredLocation feilet for %d: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteRepo(ctx context.Context, id int64) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM repositories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteRepo feilet for %d: %w", id, err)
	}
	return nil
}

// ==== Organisasjoner ====

func (s *Store) UpsertOrg(ctx context.Context, o models.Organization) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO organizations (name, destination_override, status, repo_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET repo_count = EXCLUDED.repo_count`,
		o.Name, o.DestinationOverride, string(models.StatusDiscovered), o.RepoCount)
	if err != nil {
		return fmt.Errorf("UpsertOrg feilet for %s: %w", o.Name, err)
	}
	return nil
}

func (s *Store) GetOrg(ctx context.Context, name string) (*models.Organization, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT name, destination_override, status, repo_count FROM organizations WHERE name = $1`, name)
	var o models.Organization
	var status string
	err := row.Scan(&o.Name, &o.DestinationOverride, &status, &o.RepoCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetOrg feilet for %s: %w", name, err)
	}
	o.Status = models.RepoStatus(status)
	return &o, nil
}

func (s *Store) UpdateOrgStatus(ctx context.Context, name string, status models.RepoStatus) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE organizations SET status = $2 WHERE name = $1`, name, string(status))
	if err != nil {
		return fmt.Errorf("UpdateOrgStatus feilet for %s: %w", name, err)
	}
	return nil
}

// ==== Ledger (mirror_jobs) ====

func (s *Store) InsertJob(ctx context.Context, j models.MirrorJob) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO mirror_jobs (batch_id, job_type, item_ids, total_items, in_progress, last_checkpoint, started_at)
		VALUES ($1, $2, $3, $4, TRUE, now(), now())`,
		j.BatchID, j.JobType, pq.Array(j.ItemIDs), len(j.ItemIDs))
	if err != nil {
		return fmt.Errorf("InsertJob feilet for %s: %w", j.BatchID, err)
	}
	return nil
}

// AppendJobItem sjekkpunkter ett ferdig item. Skrives før itemet
// rapporteres videre, slik at en krasj etterlater en konsistent
// «N ferdig, resten venter»-post.
func (s *Store) AppendJobItem(ctx context.Context, batchID, itemID string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE mirror_jobs SET
			completed_item_ids = array_append(completed_item_ids, $2),
			completed_items = completed_items + 1,
			last_checkpoint = now()
		WHERE batch_id = $1 AND NOT ($2 = ANY(completed_item_ids))`,
		batchID, itemID)
	if err != nil {
		return fmt.Errorf("AppendJobItem feilet for %s/%s: %w", batchID, itemID, err)
	}
	return nil
}

func (s *Store) CloseJob(ctx context.Context, batchID string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE mirror_jobs SET in_progress = FALSE, completed_at = now() WHERE batch_id = $1`, batchID)
	if err != nil {
		return fmt.Errorf("CloseJob feilet for %s: %w", batchID, err)
	}
	return nil
}

func (s *Store) FailJob(ctx context.Context, batchID, message string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE mirror_jobs SET in_progress = FALSE, completed_at = now(), error_message = $2 WHERE batch_id = $1`,
		batchID, message)
	if err != nil {
		return fmt.Errorf("FailJob feilet for %s: %w", batchID, err)
	}
	return nil
}

// ListStaleJobs finner poster med in_progress=true hvor siste
// sjekkpunkt er eldre enn before – kandidater for recovery.
func (s *Store) ListStaleJobs(ctx context.Context, before time.Time) ([]models.MirrorJob, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT batch_id, job_type, item_ids, completed_item_ids, total_items, completed_items,
			in_progress, error_message, last_checkpoint, started_at, completed_at
		FROM mirror_jobs
		WHERE in_progress = TRUE AND last_checkpoint < $1
		ORDER BY started_at`, before)
	if err != nil {
		return nil, fmt.Errorf("ListStaleJobs feilet: %w", err)
	}
	defer closeRows(rows)

	var jobs []models.MirrorJob
	for rows.Next() {
		var j models.MirrorJob
		var itemIDs, completedIDs pq.StringArray
		var completedAt sql.NullTime
		if err := rows.Scan(&j.BatchID, &j.JobType, &itemIDs, &completedIDs, &j.TotalItems,
			&j.CompletedItems, &j.InProgress, &j.ErrorMessage, &j.LastCheckpoint, &j.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("ListStaleJobs scan feilet: %w", err)
		}
		j.ItemIDs = itemIDs
		j.CompletedItemIDs = completedIDs
		if completedAt.Valid {
			j.CompletedAt = &completedAt.Time
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ==== Schedule-tilstand ====

func (s *Store) GetSchedule(ctx context.Context, tenant string) (lastRun, nextRun time.Time, err error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT last_run, next_run FROM schedule_state WHERE tenant = $1`, tenant)
	var last, next sql.NullTime
	err = row.Scan(&last, &next)
	if err == sql.ErrNoRows {
		return time.Time{}, time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("GetSchedule feilet for %s: %w", tenant, err)
	}
	return last.Time, next.Time, nil
}

func (s *Store) SetSchedule(ctx context.Context, tenant string, lastRun, nextRun time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO schedule_state (tenant, last_run, next_run)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant) DO UPDATE SET last_run = EXCLUDED.last_run, next_run = EXCLUDED.next_run`,
		tenant, lastRun, nextRun)
	if err != nil {
		return fmt.Errorf("SetSchedule feilet for %s: %w", tenant, err)
	}
	return nil
}

// ==== Hjelpere ====

func scanRepos(rows *sql.Rows) ([]models.Repository, error) {
	defer closeRows(rows)
	var repos []models.Repository
	for rows.Next() {
		repo, err := scanRepo(rows)
		if err != nil {
			return nil, fmt.Errorf("repo-scan feilet: %w", err)
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRepo(row scanner) (models.Repository, error) {
	var r models.Repository
	var status string
	var lastMirrored sql.NullTime
	err := row.Scan(&r.ID, &r.Name, &r.FullName, &r.Owner, &r.Organization, &r.CloneURL,
		&r.Private, &r.Fork, &r.Starred, &r.Archived,
		&status, &r.MirroredLocation, &r.DestinationOverride, &r.ErrorMessage, &lastMirrored)
	if err != nil {
		return models.Repository{}, err
	}
	r.Status = models.RepoStatus(status)
	if lastMirrored.Valid {
		r.LastMirrored = &lastMirrored.Time
	}
	return r, nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Warn("Klarte ikke å lukke rows", "error", err)
	}
}
