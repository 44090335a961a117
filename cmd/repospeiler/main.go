package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/jonmartinstorm/repospeiler/internal/cleanup"
	"github.com/jonmartinstorm/repospeiler/internal/config"
	"github.com/jonmartinstorm/repospeiler/internal/events"
	"github.com/jonmartinstorm/repospeiler/internal/ledger"
	"github.com/jonmartinstorm/repospeiler/internal/logger"
	"github.com/jonmartinstorm/repospeiler/internal/mirror"
	"github.com/jonmartinstorm/repospeiler/internal/scheduler"
	"github.com/jonmartinstorm/repospeiler/internal/source"
	"github.com/jonmartinstorm/repospeiler/internal/store"
	"github.com/jonmartinstorm/repospeiler/internal/target"
)

func main() {
	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	go func() {
		<-ctx.Done()
		slog.Info("SIGTERM mottatt – rydder opp...")
	}()

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
	if err := st.DB.PingContext(ctx); err != nil {
		slog.Error("Klarte ikke å nå databasen", "error", err)
		os.Exit(1)
	}

	src, err := source.NewClient(cfg)
	if err != nil {
		slog.Error("Kunne ikke bygge kilde-klient", "error", err)
		os.Exit(1)
	}
	tgt := target.NewClient(cfg.TargetURL, cfg.TargetToken)
	emitter := buildEmitter(ctx, cfg)

	engine := mirror.NewEngine(cfg, src, tgt, st, ledger.New(st), emitter)

	// Avbrutte batcher fra forrige kjøring gjenopptas før scheduleren
	// får starte nye.
	if err := engine.Ledger.Recover(ctx, cfg.RecoveryThreshold, engine.Resume); err != nil {
		slog.Error("Gjenoppretting feilet", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(st, []scheduler.Tenant{{Cfg: cfg, Runner: engine}})
	sched.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Cleanup.Enabled {
		svc := cleanup.NewService(cfg, src, tgt, st, emitter)
		g.Go(func() error {
			runCleanupLoop(gctx, svc, cfg.Cleanup.Interval)
			return nil
		})
	}

	slog.Info("🚀 repospeiler kjører", "tenant", cfg.Name)
	<-ctx.Done()
	sched.Stop()
	_ = g.Wait()
	slog.Info("✅ Ferdig, takk for nå")
}

func buildEmitter(ctx context.Context, cfg config.Config) events.Emitter {
	if cfg.BQProjectID == "" {
		return events.SlogEmitter{}
	}
	sink, err := events.NewBigQuerySink(ctx, cfg.BQProjectID, cfg.BQDataset, cfg.BQCredentials)
	if err != nil {
		// Eksporten er en sidekanal; motoren går videre uten.
		slog.Warn("BigQuery-eksport utilgjengelig, bruker bare logg", "error", err)
		return events.SlogEmitter{}
	}
	return events.Multi{events.SlogEmitter{}, sink}
}

func runCleanupLoop(ctx context.Context, svc *cleanup.Service, interval string) {
	ticker := time.NewTicker(scheduler.ParseInterval(interval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.RunOnce(ctx); err != nil {
				slog.Error("Opprydding feilet", "error", err)
			}
		}
	}
}
