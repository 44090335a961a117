// Engangskjøring av orphan-oppryddingen. Standard er dry-run; sett
// CLEANUP_DRYRUN=false for å faktisk røre speilene.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/jonmartinstorm/repospeiler/internal/cleanup"
	"github.com/jonmartinstorm/repospeiler/internal/config"
	"github.com/jonmartinstorm/repospeiler/internal/events"
	"github.com/jonmartinstorm/repospeiler/internal/logger"
	"github.com/jonmartinstorm/repospeiler/internal/source"
	"github.com/jonmartinstorm/repospeiler/internal/store"
	"github.com/jonmartinstorm/repospeiler/internal/target"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Ugyldig konfigurasjon", "error", err)
		os.Exit(1)
	}
	logger.SetupLogger()
	logger.SetDebug(cfg.Debug)

	st, err := store.NewStore(cfg.PostgresDSN)
	if err != nil {
		slog.Error("Kunne ikke koble til Postgres", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	src, err := source.NewClient(cfg)
	if err != nil {
		slog.Error("Kunne ikke bygge kilde-klient", "error", err)
		os.Exit(1)
	}
	tgt := target.NewClient(cfg.TargetURL, cfg.TargetToken)

	svc := cleanup.NewService(cfg, src, tgt, st, events.SlogEmitter{})
	orphans, err := svc.RunOnce(ctx)
	if err != nil {
		slog.Error("Opprydding feilet", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Ferdig!", "foreldreløse", orphans)
}
