// Package events er sidekanalen for strukturerte hendelser fra
// motoren. Motoren sender på veldefinerte punkter (hver
// statusovergang, hvert batch-fremdriftskall) og bryr seg ikke om
// hvem som lytter.
package events

import (
	"context"
	"log/slog"
	"time"
)

const (
	TypeJobStarted     = "job-started"
	TypeJobCompleted   = "job-completed"
	TypeItemMirrored   = "item-mirrored"
	TypeItemFailed     = "item-failed"
	TypeOrgFallback    = "organization-fallback"
	TypeOrphanSkipped  = "orphan-skipped"
	TypeOrphanArchived = "orphan-archived"
	TypeOrphanDeleted  = "orphan-deleted"
)

type Event struct {
	Type      string
	Tenant    string
	Repo      string
	Owner     string
	BatchID   string
	Completed int
	Total     int
	Message   string
	Time      time.Time
}

type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// SlogEmitter er standard-sinken: alt havner i loggen.
type SlogEmitter struct{}

func (SlogEmitter) Emit(_ context.Context, ev Event) {
	slog.Info("hendelse",
		"type", ev.Type,
		"tenant", ev.Tenant,
		"repo", ev.Repo,
		"owner", ev.Owner,
		"batch_id", ev.BatchID,
		"fullført", ev.Completed,
		"totalt", ev.Total,
		"melding", ev.Message,
	)
}

// Multi sender samme hendelse til flere sinks.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, ev Event) {
	for _, e := range m {
		e.Emit(ctx, ev)
	}
}

// Stamp fyller inn tidspunkt hvis det mangler.
func Stamp(ev Event) Event {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	return ev
}
