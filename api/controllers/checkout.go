package controllers

import (
	"net/http"
	"strings"

	"github.com/healthplusinnovation/storefront/api/middleware"
	"github.com/healthplusinnovation/storefront/api/responses"
	"github.com/healthplusinnovation/storefront/api/validators"
	checkoutsvc "github.com/healthplusinnovation/storefront/internal/checkout"
	pkgerrors "github.com/healthplusinnovation/storefront/pkg/errors"
	"github.com/healthplusinnovation/storefront/pkg/logger"
)

// checkoutRequest is left untagged so the form's own validation produces the field messages.
type checkoutRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Zip      string `json:"zip"`
	SourceID string `json:"source_id,omitempty"`
}

func (p checkoutRequest) toInput(idempotencyKey string) checkoutsvc.Input {
	return checkoutsvc.Input{
		Form: checkoutsvc.Form{
			Name:    p.Name,
			Email:   p.Email,
			Phone:   p.Phone,
			Address: p.Address,
			City:    p.City,
			Zip:     p.Zip,
		},
		SourceID:       p.SourceID,
		IdempotencyKey: idempotencyKey,
	}
}

// Checkout pays for the session's basket and returns the order confirmation.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := strings.TrimSpace(r.Header.Get(middleware.IdempotencyHeader))
		confirmation, err := svc.Checkout(r.Context(), middleware.SessionIDFromContext(r.Context()), payload.toInput(key))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, confirmation)
	}
}
