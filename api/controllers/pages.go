package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/healthplusinnovation/storefront/api/responses"
	"github.com/healthplusinnovation/storefront/internal/content"
	pkgerrors "github.com/healthplusinnovation/storefront/pkg/errors"
	"github.com/healthplusinnovation/storefront/pkg/logger"
)

type pageSource interface {
	Slugs() ([]string, error)
	Get(slug string) (content.Page, error)
}

func PagesList(pages pageSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pages == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "content unavailable"))
			return
		}
		slugs, err := pages.Slugs()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, slugs)
	}
}

// PageGet renders a policy page such as refund-policy or shipping.
func PageGet(pages pageSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pages == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "content unavailable"))
			return
		}
		page, err := pages.Get(chi.URLParam(r, "slug"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
