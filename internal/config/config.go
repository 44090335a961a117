package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jonmartinstorm/repospeiler/internal/batch"
	"github.com/jonmartinstorm/repospeiler/internal/resolver"
)

// Disposition er hva orphan-oppryddingen gjør med repos som er borte
// fra kilden.
type Disposition string

const (
	DispositionSkip    Disposition = "skip"
	DispositionArchive Disposition = "archive"
	DispositionDelete  Disposition = "delete"
)

// CleanupPolicy styrer orphan-oppryddingen. Delete utføres aldri i
// dry-run og aldri for navn på Protected-lista.
type CleanupPolicy struct {
	Enabled     bool
	Interval    string
	Disposition Disposition
	DryRun      bool
	Protected   []string
}

// Config er ett øyeblikksbilde av innstillingene for en tenant.
// Uforanderlig gjennom én motor-invokasjon; scheduleren leser den på
// nytt ved starten av hver tick.
type Config struct {
	Name string

	// Kilde (GitHub). Token eller GitHub App – motoren bryr seg bare
	// om at noe er satt.
	SourceToken      string
	SourceUser       string
	SourceAppID      int64
	SourceInstallID  int64
	SourceAppKeyPath string

	// Target (Gitea).
	TargetURL   string
	TargetToken string
	TargetUser  string

	// Strategi og destinasjoner.
	Strategy   resolver.Strategy
	StarredOrg string

	// Schedulering.
	ScheduleEnabled  bool
	ScheduleInterval string

	// Hva som speiles etter innholdsoverføringen.
	MirrorReleases   bool
	MirrorIssues     bool
	MirrorPulls      bool
	MirrorMilestones bool
	MirrorWiki       bool
	MirrorLFS        bool
	MirrorInterval   string // target sitt eget pull-intervall, f.eks "8h0m0s"
	IncludeStarred   bool
	IncludeForks     bool

	// Parallellitet og retry. Issue- og PR-speiling har egne knotter
	// fordi rate-grensene er ulike per endepunktklasse.
	RepoConcurrency    int
	IssueConcurrency   int
	PullConcurrency    int
	ReleaseConcurrency int
	MaxRetries         int
	RetryDelay         time.Duration
	RetryExponential   bool

	// Gjenoppretting av avbrutte batcher ved oppstart.
	RecoveryThreshold time.Duration

	Cleanup CleanupPolicy

	// Lagring og eksport.
	PostgresDSN   string
	BQProjectID   string
	BQDataset     string
	BQCredentials string

	Debug bool
}

// HasSourceCredentials sier om konfigurasjonen har nok til å nå
// kilde-APIet. En tenant med schedulering på men uten credentials
// hoppes over til credentials er på plass.
func (c Config) HasSourceCredentials() bool {
	return c.SourceToken != "" || (c.SourceAppID != 0 && c.SourceInstallID != 0 && c.SourceAppKeyPath != "")
}

func (c Config) HasTargetCredentials() bool {
	return c.TargetURL != "" && c.TargetToken != ""
}

// LoadConfig leser konfigurasjonen fra miljøet og validerer den.
func LoadConfig() (Config, error) {
	cfg := LoadConfigWithEnv(os.Getenv)
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigWithEnv leser fra en vilkårlig env-funksjon (for test).
func LoadConfigWithEnv(getenv func(string) string) Config {
	cfg := Config{
		Name:             envDefault(getenv, "TENANT_NAME", "default"),
		SourceToken:      getenv("GITHUB_TOKEN"),
		SourceUser:       getenv("SOURCE_USER"),
		SourceAppID:      envInt64(getenv, "SOURCE_APP_ID"),
		SourceInstallID:  envInt64(getenv, "SOURCE_INSTALLATION_ID"),
		SourceAppKeyPath: getenv("SOURCE_APP_KEY"),

		TargetURL:   strings.TrimRight(getenv("TARGET_URL"), "/"),
		TargetToken: getenv("TARGET_TOKEN"),
		TargetUser:  getenv("TARGET_USER"),

		Strategy:   ParseStrategy(getenv("MIRROR_STRATEGY"), getenv("SINGLE_ORG"), getenv("PERSONAL_ORG")),
		StarredOrg: envDefault(getenv, "STARRED_ORG", "starred"),

		ScheduleEnabled:  getenv("SCHEDULE_ENABLED") == "true",
		ScheduleInterval: envDefault(getenv, "SCHEDULE_INTERVAL", "8h"),

		MirrorReleases:   getenv("MIRROR_RELEASES") == "true",
		MirrorIssues:     getenv("MIRROR_ISSUES") == "true",
		MirrorPulls:      getenv("MIRROR_PULLS") == "true",
		MirrorMilestones: getenv("MIRROR_MILESTONES") == "true",
		MirrorWiki:       getenv("MIRROR_WIKI") != "false",
		MirrorLFS:        getenv("MIRROR_LFS") == "true",
		MirrorInterval:   envDefault(getenv, "MIRROR_INTERVAL", "8h0m0s"),
		IncludeStarred:   getenv("INCLUDE_STARRED") == "true",
		IncludeForks:     getenv("INCLUDE_FORKS") != "false",

		RepoConcurrency:    envIntDefault(getenv, "REPO_CONCURRENCY", 3),
		IssueConcurrency:   envIntDefault(getenv, "ISSUE_CONCURRENCY", 5),
		PullConcurrency:    envIntDefault(getenv, "PULL_CONCURRENCY", 3),
		ReleaseConcurrency: envIntDefault(getenv, "RELEASE_CONCURRENCY", 2),
		MaxRetries:         envIntDefault(getenv, "MAX_RETRIES", 2),
		RetryDelay:         envDurationDefault(getenv, "RETRY_DELAY", 2*time.Second),
		RetryExponential:   getenv("RETRY_EXPONENTIAL") == "true",

		RecoveryThreshold: envDurationDefault(getenv, "RECOVERY_THRESHOLD", 10*time.Minute),

		Cleanup: CleanupPolicy{
			Enabled:     getenv("CLEANUP_ENABLED") == "true",
			Interval:    envDefault(getenv, "CLEANUP_INTERVAL", "24h"),
			Disposition: ParseDisposition(getenv("CLEANUP_DISPOSITION")),
			DryRun:      getenv("CLEANUP_DRYRUN") != "false",
			Protected:   splitList(getenv("CLEANUP_PROTECTED")),
		},

		PostgresDSN:   getenv("POSTGRES_DSN"),
		BQProjectID:   getenv("BQ_PROJECT_ID"),
		BQDataset:     getenv("BQ_DATASET"),
		BQCredentials: getenv("BQ_CREDENTIALS"),

		Debug: getenv("REPOSPEILERDEBUG") == "true",
	}
	return cfg
}

// ParseStrategy oversetter strategistrengen til varianten resolveren
// konsumerer. Ukjent eller tom streng gir Preserve.
func ParseStrategy(name, singleOrg, personalOrg string) resolver.Strategy {
	switch name {
	case "single-org":
		return resolver.SingleOrg{Org: singleOrg}
	case "flat-user":
		return resolver.FlatUser{}
	case "mixed":
		return resolver.Mixed{PersonalOrg: personalOrg}
	default:
		return resolver.Preserve{}
	}
}

// ParseDisposition gir skip for alt som ikke er et kjent valg, slik at
// en skrivefeil aldri blir destruktiv.
func ParseDisposition(name string) Disposition {
	switch Disposition(name) {
	case DispositionArchive:
		return DispositionArchive
	case DispositionDelete:
		return DispositionDelete
	default:
		return DispositionSkip
	}
}

// ValidateConfig sjekker feltene motoren ikke kan stå uten.
func ValidateConfig(cfg Config) error {
	if !cfg.HasSourceCredentials() {
		return errors.New("GITHUB_TOKEN eller SOURCE_APP_ID/SOURCE_INSTALLATION_ID/SOURCE_APP_KEY må være satt")
	}
	if cfg.SourceUser == "" {
		return errors.New("SOURCE_USER må være satt")
	}
	if cfg.TargetURL == "" {
		return errors.New("TARGET_URL må være satt")
	}
	if cfg.TargetToken == "" {
		return errors.New("TARGET_TOKEN må være satt")
	}
	if cfg.TargetUser == "" {
		return errors.New("TARGET_USER må være satt")
	}
	if cfg.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN må være satt")
	}
	if s, ok := cfg.Strategy.(resolver.SingleOrg); ok && s.Org == "" {
		return errors.New("SINGLE_ORG må være satt for strategien single-org")
	}
	return nil
}

// ResolverConfig plukker ut delen resolveren trenger.
func (c Config) ResolverConfig() resolver.Config {
	return resolver.Config{
		Strategy:   c.Strategy,
		TargetUser: c.TargetUser,
		StarredOrg: c.StarredOrg,
	}
}

func envDefault(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func envIntDefault(getenv func(string) string, key string, def int) int {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envInt64(getenv func(string) string, key string) int64 {
	n, _ := strconv.ParseInt(getenv(key), 10, 64)
	return n
}

func envDurationDefault(getenv func(string) string, key string, def time.Duration) time.Duration {
	if v := getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// DelayPolicy bygger forsinkelsespolicyen batch-eksekutoren skal
// bruke, konstant eller eksponentiell etter konfigurasjon.
func (c Config) DelayPolicy() batch.DelayFunc {
	if c.RetryExponential {
		return batch.ExponentialDelay(c.RetryDelay, 30*time.Second)
	}
	return batch.ConstantDelay(c.RetryDelay)
}
