// Package scheduler kjører synk-sykluser for hver tenant på fast
// intervall. Løkka er single-flight per tenant: en syklus som fortsatt
// går når neste tick kommer gjør at ticket hoppes over, aldri at to
// sykluser kjører i parallell.
package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jonmartinstorm/repospeiler/internal/config"
)

// DefaultInterval brukes når intervallet ikke lar seg tolke.
const DefaultInterval = 3600 * time.Second

// Runner er én full synk-syklus for en tenant.
type Runner interface {
	RunCycle(ctx context.Context) error
}

// ScheduleStore persisterer siste og neste kjøretid per tenant, slik
// at en omstart ikke nullstiller rytmen. Nulltid for nextRun betyr
// «aldri kjørt».
type ScheduleStore interface {
	GetSchedule(ctx context.Context, tenant string) (lastRun, nextRun time.Time, err error)
	SetSchedule(ctx context.Context, tenant string, lastRun, nextRun time.Time) error
}

// Tenant er én konfigurasjon med tilhørende motor.
type Tenant struct {
	Cfg    config.Config
	Runner Runner
}

type Scheduler struct {
	Store   ScheduleStore
	Tenants []Tenant

	// TickInterval er hvor ofte løkka sjekker om noen er due. Hver
	// tenant har sin egen neste kjøretid i schedule_state, så ticket
	// er bare en sjekk.
	TickInterval time.Duration

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
	stop    context.CancelFunc
	done    chan struct{}
}

func New(store ScheduleStore, tenants []Tenant) *Scheduler {
	return &Scheduler{
		Store:        store,
		Tenants:      tenants,
		TickInterval: 30 * time.Second,
		running:      make(map[string]bool),
	}
}

// ParseInterval tolker et intervall som enten en Go-duration ("8h",
// "90m") eller et rent sekundtall ("28800"). Uparserbar verdi gir
// standardintervallet med en advarsel, aldri feil.
func ParseInterval(raw string) time.Duration {
	if raw == "" {
		return DefaultInterval
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	slog.Warn("Kunne ikke tolke intervall, bruker standard", "intervall", raw, "standard", DefaultInterval)
	return DefaultInterval
}

// Start setter i gang løkka. Blokkerer ikke; Stop venter på at
// pågående sykluser fullfører.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.loop(ctx)
	}()
}

// Stop avbryter løkka og venter på både løkka og pågående sykluser.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	s.stop()
	<-s.done
	s.wg.Wait()
}

// IsRunning sier om en tenant har en syklus i flukt akkurat nå.
func (s *Scheduler) IsRunning(tenant string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[tenant]
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.TickInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	for _, t := range s.Tenants {
		if !t.Cfg.ScheduleEnabled {
			continue
		}
		if !t.Cfg.HasSourceCredentials() || !t.Cfg.HasTargetCredentials() {
			slog.Warn("Hopper over tenant uten fullstendige credentials", "tenant", t.Cfg.Name)
			continue
		}

		due, err := s.isDue(ctx, t.Cfg.Name, now)
		if err != nil {
			slog.Error("Kunne ikke lese schedule", "tenant", t.Cfg.Name, "error", err)
			continue
		}
		if !due {
			continue
		}

		if !s.tryAcquire(t.Cfg.Name) {
			slog.Info("Forrige syklus går fortsatt, hopper over tick", "tenant", t.Cfg.Name)
			continue
		}

		s.wg.Add(1)
		go func(t Tenant) {
			defer s.wg.Done()
			s.runTenant(ctx, t, now)
		}(t)
	}
}

func (s *Scheduler) isDue(ctx context.Context, tenant string, now time.Time) (bool, error) {
	_, nextRun, err := s.Store.GetSchedule(ctx, tenant)
	if err != nil {
		return false, err
	}
	if nextRun.IsZero() {
		return true, nil
	}
	return !now.Before(nextRun), nil
}

func (s *Scheduler) tryAcquire(tenant string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[tenant] {
		return false
	}
	s.running[tenant] = true
	return true
}

func (s *Scheduler) release(tenant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[tenant] = false
}

// runTenant kjører én syklus. Single-flight-flagget holdes til
// syklusen er ferdig, så et tick som kommer underveis hopper over
// tenanten i stedet for å starte en ny syklus oppå den gamle.
func (s *Scheduler) runTenant(ctx context.Context, t Tenant, started time.Time) {
	defer s.release(t.Cfg.Name)

	interval := ParseInterval(t.Cfg.ScheduleInterval)
	slog.Info("Starter syklus", "tenant", t.Cfg.Name, "intervall", interval)

	if err := t.Runner.RunCycle(ctx); err != nil {
		slog.Error("Syklus feilet", "tenant", t.Cfg.Name, "error", err)
	}

	// Neste kjøretid regnes fra start, ikke fra slutt, så lange
	// sykluser ikke forskyver rytmen.
	if err := s.Store.SetSchedule(ctx, t.Cfg.Name, started, started.Add(interval)); err != nil {
		slog.Error("Kunne ikke lagre schedule", "tenant", t.Cfg.Name, "error", err)
	}
}
