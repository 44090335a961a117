package remote

import (
	"fmt"
	"net/http"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
		name   string
	}{
		{http.StatusNotFound, IsNotFound, "404 er not-found"},
		{http.StatusConflict, IsConflict, "409 er konflikt"},
		{http.StatusUnprocessableEntity, IsConflict, "422 er konflikt"},
		{http.StatusUnauthorized, IsPermission, "401 er rettighetsfeil"},
		{http.StatusForbidden, IsPermission, "403 er rettighetsfeil"},
		{http.StatusTooManyRequests, IsTransient, "429 er forbigående"},
		{http.StatusInternalServerError, IsTransient, "500 er forbigående"},
		{http.StatusBadGateway, IsTransient, "502 er forbigående"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyStatus("test-API", "ressursen", tt.status, "body")
			if !tt.check(err) {
				t.Errorf("status %d feilklassifisert: %v", tt.status, err)
			}
		})
	}
}

func TestClassifyStatusUnknown4xxIsPlainError(t *testing.T) {
	err := ClassifyStatus("test-API", "ressursen", http.StatusTeapot, "kort og godt")
	if IsTransient(err) || IsConflict(err) || IsNotFound(err) || IsPermission(err) {
		t.Errorf("418 skal ikke klassifiseres: %v", err)
	}
}

func TestIsAccountInaccessible(t *testing.T) {
	if !IsAccountInaccessible(&NotFoundError{Resource: "kontoen"}) {
		t.Error("not-found skal regnes som utilgjengelig konto")
	}
	if !IsAccountInaccessible(&PermissionError{Resource: "kontoen"}) {
		t.Error("rettighetsfeil skal regnes som utilgjengelig konto")
	}
	if IsAccountInaccessible(&TransientError{Op: "x"}) {
		t.Error("forbigående feil skal ikke regnes som utilgjengelig konto")
	}
}

func TestTaxonomySurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("ytre kontekst: %w", &ConflictError{Resource: "org"})
	if !IsConflict(wrapped) {
		t.Error("klassifiseringen skal overleve fmt.Errorf-wrapping")
	}
}
