// Package resolver avgjør hvilken eier et repo skal speiles til på
// target. Ren funksjon uten I/O: alt den trenger kommer inn som
// argumenter, og strategivalget er en lukket variant som bare dette
// pakken konsumerer.
package resolver

import (
	"github.com/jonmartinstorm/repospeiler/internal/models"
	"github.com/jonmartinstorm/repospeiler/internal/remote"
)

// Strategy er speilstrategien. Lukket sum-type: Preserve, SingleOrg,
// FlatUser eller Mixed.
type Strategy interface {
	strategy()
}

// Preserve speiler organisasjonsstrukturen fra kilden.
type Preserve struct{}

// SingleOrg samler alt under én konfigurert organisasjon.
type SingleOrg struct {
	Org string
}

// FlatUser legger alt flatt under target-kontoen.
type FlatUser struct{}

// Mixed beholder kildeorganisasjoner, men samler personlige repos i en
// egen organisasjon.
type Mixed struct {
	PersonalOrg string
}

func (Preserve) strategy()  {}
func (SingleOrg) strategy() {}
func (FlatUser) strategy()  {}
func (Mixed) strategy()     {}

// Config er det resolveren trenger av konfigurasjonen.
type Config struct {
	Strategy   Strategy
	TargetUser string
	StarredOrg string
}

// Resolve beregner eier på target for ett repo. Prioritet, høyest
// først, første treff vinner:
//
//  1. Stjernemerket repo → konfigurert starred-organisasjon (kan ikke
//     overstyres).
//  2. Eksplisitt destinasjon på repoet.
//  3. Destinasjonsoverstyring på kildeorganisasjonen.
//  4. Strategiens standard.
//
// Feiler bare når et påkrevd konfigurasjonsfelt mangler.
func Resolve(repo models.Repository, orgOverride string, cfg Config) (string, error) {
	if repo.Starred {
		if cfg.StarredOrg == "" {
			return "", &remote.ConfigurationError{Field: "STARRED_ORG"}
		}
		return cfg.StarredOrg, nil
	}

	if repo.DestinationOverride != "" {
		return repo.DestinationOverride, nil
	}

	if repo.Organization != "" && orgOverride != "" {
		return orgOverride, nil
	}

	switch s := cfg.Strategy.(type) {
	case Preserve:
		if repo.Organization != "" {
			return repo.Organization, nil
		}
		return targetUser(cfg)
	case SingleOrg:
		if s.Org == "" {
			return "", &remote.ConfigurationError{Field: "SINGLE_ORG"}
		}
		return s.Org, nil
	case FlatUser:
		return targetUser(cfg)
	case Mixed:
		if repo.Organization != "" {
			return repo.Organization, nil
		}
		if s.PersonalOrg == "" {
			return "", &remote.ConfigurationError{Field: "PERSONAL_ORG"}
		}
		return s.PersonalOrg, nil
	default:
		return "", &remote.ConfigurationError{Field: "MIRROR_STRATEGY"}
	}
}

func targetUser(cfg Config) (string, error) {
	if cfg.TargetUser == "" {
		return "", &remote.ConfigurationError{Field: "TARGET_USER"}
	}
	return cfg.TargetUser, nil
}
