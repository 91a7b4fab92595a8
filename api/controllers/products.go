package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/healthplusinnovation/storefront/api/responses"
	"github.com/healthplusinnovation/storefront/internal/catalog"
	pkgerrors "github.com/healthplusinnovation/storefront/pkg/errors"
	"github.com/healthplusinnovation/storefront/pkg/logger"
)

type productLookup interface {
	Get(id string) (catalog.Product, error)
}

type productCatalog interface {
	productLookup
	List(category string) []catalog.Product
	Categories() []string
}

// ProductsList returns the catalog, optionally narrowed with ?category=.
func ProductsList(products productCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if products == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		category := strings.TrimSpace(r.URL.Query().Get("category"))
		responses.WriteSuccess(w, products.List(category))
	}
}

func ProductGet(products productCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if products == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		product, err := products.Get(strings.TrimSpace(chi.URLParam(r, "productId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

func CategoriesList(products productCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if products == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		responses.WriteSuccess(w, products.Categories())
	}
}
