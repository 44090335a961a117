// Package ledger fører regnskap over langvarige batch-operasjoner,
// slik at en avbrutt kjøring kan gjenopptas uten å gjøre om ferdige
// items eller miste ventende.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jonmartinstorm/repospeiler/internal/models"
)

// Store er ledger-delen av lagringslaget.
type Store interface {
	InsertJob(ctx context.Context, j models.MirrorJob) error
	AppendJobItem(ctx context.Context, batchID, itemID string) error
	CloseJob(ctx context.Context, batchID string) error
	FailJob(ctx context.Context, batchID, message string) error
	ListStaleJobs(ctx context.Context, before time.Time) ([]models.MirrorJob, error)
}

type Ledger struct {
	Store Store
}

func New(store Store) *Ledger {
	return &Ledger{Store: store}
}

// Batch er håndtaket for én pågående ledger-post.
type Batch struct {
	ID    string
	store Store
}

// Start skriver ledger-posten med hele item-lista og inProgress=true
// før første item kjøres.
func (l *Ledger) Start(ctx context.Context, jobType string, itemIDs []string) (*Batch, error) {
	job := models.MirrorJob{
		BatchID: uuid.NewString(),
		JobType: jobType,
		ItemIDs: itemIDs,
	}
	if err := l.Store.InsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("kunne ikke starte batch: %w", err)
	}
	return &Batch{ID: job.BatchID, store: l.Store}, nil
}

// ItemDone sjekkpunkter ett terminalt utfall (suksess eller oppbrukte
// forsøk). Må kalles før itemet rapporteres ferdig videre.
func (b *Batch) ItemDone(ctx context.Context, itemID string) error {
	return b.store.AppendJobItem(ctx, b.ID, itemID)
}

// Close lukker posten ved normal fullføring.
func (b *Batch) Close(ctx context.Context) error {
	return b.store.CloseJob(ctx, b.ID)
}

// Reopen gir et håndtak til en eksisterende ledger-post, for bruk
// under gjenopptak. Posten lukkes av Recover, ikke av håndtaket.
func (l *Ledger) Reopen(batchID string) *Batch {
	return &Batch{ID: batchID, store: l.Store}
}

// Resumer kjører de gjenværende items for en krasjet batch.
type Resumer func(ctx context.Context, job models.MirrorJob, remaining []string) error

// Recover finner poster med inProgress=true som er eldre enn
// terskelen, og sender nøyaktig itemIDs − completedItemIDs tilbake til
// riktig operasjon. Poster som ikke lar seg tolke markeres feilet –
// aldri stille droppet.
func (l *Ledger) Recover(ctx context.Context, threshold time.Duration, resume Resumer) error {
	stale, err := l.Store.ListStaleJobs(ctx, time.Now().Add(-threshold))
	if err != nil {
		return fmt.Errorf("kunne ikke lete etter avbrutte batcher: %w", err)
	}

	for _, job := range stale {
		if corrupt, reason := isCorrupt(job); corrupt {
			slog.Error("Ødelagt ledger-post markeres feilet", "batch_id", job.BatchID, "årsak", reason)
			if err := l.Store.FailJob(ctx, job.BatchID, "ødelagt ledger-post: "+reason); err != nil {
				return err
			}
			continue
		}

		remaining := job.RemainingItemIDs()
		if len(remaining) == 0 {
			// Alt var ferdig, bare lukkingen manglet.
			slog.Info("Batch var fullført men aldri lukket", "batch_id", job.BatchID)
			if err := l.Store.CloseJob(ctx, job.BatchID); err != nil {
				return err
			}
			continue
		}

		slog.Info("Gjenopptar avbrutt batch",
			"batch_id", job.BatchID,
			"type", job.JobType,
			"gjenstår", len(remaining),
			"ferdig", len(job.CompletedItemIDs))

		if err := resume(ctx, job, remaining); err != nil {
			slog.Error("Gjenopptak feilet", "batch_id", job.BatchID, "error", err)
			if ferr := l.Store.FailJob(ctx, job.BatchID, err.Error()); ferr != nil {
				return ferr
			}
			continue
		}
		if err := l.Store.CloseJob(ctx, job.BatchID); err != nil {
			return err
		}
	}
	return nil
}

func isCorrupt(job models.MirrorJob) (bool, string) {
	if len(job.ItemIDs) == 0 {
		return true, "tom item-liste"
	}
	if job.JobType != models.JobTypeMirror && job.JobType != models.JobTypeSync {
		return true, "ukjent jobbtype " + job.JobType
	}
	known := make(map[string]bool, len(job.ItemIDs))
	for _, id := range job.ItemIDs {
		known[id] = true
	}
	for _, id := range job.CompletedItemIDs {
		if !known[id] {
			return true, "fullført item utenfor item-lista: " + id
		}
	}
	return false, ""
}
