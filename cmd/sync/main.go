// Engangskjøring av én full synk-syklus, for cron eller manuell bruk.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/jonmartinstorm/repospeiler/internal/config"
	"github.com/jonmartinstorm/repospeiler/internal/events"
	"github.com/jonmartinstorm/repospeiler/internal/ledger"
	"github.com/jonmartinstorm/repospeiler/internal/logger"
	"github.com/jonmartinstorm/repospeiler/internal/mirror"
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

	engine := mirror.NewEngine(cfg, src, tgt, st, ledger.New(st), events.SlogEmitter{})

	start := time.Now()
	if err := engine.Ledger.Recover(ctx, cfg.RecoveryThreshold, engine.Resume); err != nil {
		slog.Error("Gjenoppretting feilet", "error", err)
		os.Exit(1)
	}
	if err := engine.RunCycle(ctx); err != nil {
		slog.Error("Syklusen feilet", "error", err)
		os.Exit(1)
	}

	slog.Info("✅ Ferdig!", "varighet", time.Since(start).String())
}
