package models

import "time"

// RepoStatus er livssyklusen til et speilet repo. Overgangene er
// monotone innenfor én kjøring: et repo går aldri stille tilbake fra
// transferred/synced til discovered.
type RepoStatus string

const (
	StatusDiscovered   RepoStatus = "discovered"
	StatusTransferring RepoStatus = "transferring"
	StatusTransferred  RepoStatus = "transferred"
	StatusSyncing      RepoStatus = "syncing"
	StatusSynced       RepoStatus = "synced"
	StatusFailed       RepoStatus = "failed"
	StatusArchived     RepoStatus = "archived"
)

// Repository er den persisterte tilstanden for ett kilde-repo.
// MirroredLocation er siste kjente owner/navn på target – en cache som
// kan henge etter virkeligheten, og som bare oppdateres sammen med en
// overgang til transferred eller synced.
type Repository struct {
	ID                  int64
	Name                string
	FullName            string
	Owner               string
	Organization        string // tom for personlige repos
	CloneURL            string
	Private             bool
	Fork                bool
	Starred             bool
	Archived            bool
	Status              RepoStatus
	MirroredLocation    string
	DestinationOverride string
	ErrorMessage        string
	LastMirrored        *time.Time
}

type Organization struct {
	Name                string
	DestinationOverride string
	Status              RepoStatus
	RepoCount           int
}

// Jobbtyper for MirrorJob. Recovery bruker typen til å sende
// gjenværende items tilbake til riktig operasjon.
const (
	JobTypeMirror = "mirror"
	JobTypeSync   = "sync"
)

// MirrorJob er én ledger-post for en batch. Invariant:
// CompletedItemIDs ⊆ ItemIDs. Poster med InProgress=true som er eldre
// enn recovery-terskelen regnes som krasjet og skal gjenopptas eller
// markeres feilet nøyaktig én gang.
type MirrorJob struct {
	BatchID          string
	JobType          string
	ItemIDs          []string
	CompletedItemIDs []string
	TotalItems       int
	CompletedItems   int
	InProgress       bool
	ErrorMessage     string
	LastCheckpoint   time.Time
	StartedAt        time.Time
	CompletedAt      *time.Time
}

// RemainingItemIDs beregner ItemIDs − CompletedItemIDs med bevart
// rekkefølge.
func (j MirrorJob) RemainingItemIDs() []string {
	done := make(map[string]bool, len(j.CompletedItemIDs))
	for _, id := range j.CompletedItemIDs {
		done[id] = true
	}
	var remaining []string
	for _, id := range j.ItemIDs {
		if !done[id] {
			remaining = append(remaining, id)
		}
	}
	return remaining
}

// ==== Metadata fra kilde-APIet ====
// Feltene tåler delvis utfylte svar (manglende body, assignees osv.).

type Release struct {
	TagName    string
	Name       string
	Body       string
	Draft      bool
	Prerelease bool
	Assets     []ReleaseAsset
}

type ReleaseAsset struct {
	ID          int64
	Name        string
	ContentType string
	Size        int64
}

type Label struct {
	Name        string
	Color       string
	Description string
}

type Milestone struct {
	Title       string
	Description string
	State       string
	DueOn       *time.Time
}

type Issue struct {
	Number    int
	Title     string
	Body      string
	State     string
	Labels    []string
	Milestone string
	CreatedAt time.Time
}

type Comment struct {
	Body      string
	Author    string
	CreatedAt time.Time
}

// PullRequest speiles som issue på target (target-APIet har ingen
// migrering av PR-er på tvers av instanser).
type PullRequest struct {
	Number    int
	Title     string
	Body      string
	State     string
	Labels    []string
	CreatedAt time.Time
}
