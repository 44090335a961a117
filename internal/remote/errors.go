// Package remote definerer feiltaksonomien for kalla mot kilde- og
// target-APIene. Klientene klassifiserer HTTP-svar her, slik at
// resten av motoren forgrener på feiltype og aldri på substrenger i
// feilmeldinger.
package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// ConfigurationError betyr at et påkrevd konfigurasjonsfelt mangler.
// Fatalt for operasjonen, aldri retry.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("konfigurasjonsfeil: %s må være satt", e.Field)
}

// TransientError er nettverksfeil, 5xx eller rate-limit. Batch-
// eksekutoren prøver disse på nytt opp til sin grense.
type TransientError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("forbigående feil i %s (status %d): %v", e.Op, e.Status, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ConflictError er duplikat-organisasjon eller repo som allerede
// finnes som ikke-speil. Håndteres av egne gjenopprettingsstier.
type ConflictError struct {
	Resource string
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("konflikt på %s: %v", e.Resource, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// PreconditionError betyr at target-repoet mangler der metadata-
// speiling forventer at det finnes. Feiler bare den deloperasjonen.
type PreconditionError struct {
	Resource string
	Err      error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("forutsetning brutt: %s finnes ikke på target: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("forutsetning brutt: %s finnes ikke på target", e.Resource)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// NotFoundError betyr at ressursen ikke finnes der vi leter.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s ble ikke funnet", e.Resource)
}

// PermissionError betyr at target avviste operasjonen av
// rettighetsgrunner. Organisasjonsoppretting faller da tilbake til
// standard personlig eier i stedet for å avbryte.
type PermissionError struct {
	Resource string
	Err      error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("mangler rettigheter på %s: %v", e.Resource, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsAccountInaccessible fanger feilklassene som kan bety at hele
// kontoen er utilgjengelig (403/404 på kontonivå). Orphan-opprydding
// avbryter da hele kjøringen i stedet for å klassifisere alt som
// foreldreløst.
func IsAccountInaccessible(err error) bool {
	return IsNotFound(err) || IsPermission(err)
}

// ClassifyStatus oversetter en HTTP-status til taksonomien. Ukjente
// 4xx-koder blir stående som en vanlig feil uten retry.
func ClassifyStatus(op, resource string, status int, body string) error {
	base := fmt.Errorf("%s: status %d – %s", op, status, body)
	switch {
	case status == http.StatusNotFound:
		return &NotFoundError{Resource: resource}
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		return &ConflictError{Resource: resource, Err: base}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &PermissionError{Resource: resource, Err: base}
	case status == http.StatusTooManyRequests || status >= 500:
		return &TransientError{Op: op, Status: status, Err: base}
	default:
		return base
	}
}
