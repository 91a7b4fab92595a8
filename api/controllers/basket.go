package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/healthplusinnovation/storefront/api/middleware"
	"github.com/healthplusinnovation/storefront/api/responses"
	"github.com/healthplusinnovation/storefront/api/validators"
	"github.com/healthplusinnovation/storefront/internal/basket"
	pkgerrors "github.com/healthplusinnovation/storefront/pkg/errors"
	"github.com/healthplusinnovation/storefront/pkg/logger"
)

type basketLine struct {
	basket.Line
	Subtotal decimal.Decimal `json:"subtotal"`
	Savings  decimal.Decimal `json:"savings"`
}

type basketResponse struct {
	Lines        []basketLine    `json:"lines"`
	CartTotal    decimal.Decimal `json:"cart_total"`
	CartCount    int             `json:"cart_count"`
	TotalSavings decimal.Decimal `json:"total_savings"`
}

func newBasketResponse(view basket.View) basketResponse {
	resp := basketResponse{
		Lines:        make([]basketLine, 0, len(view.Lines)),
		CartTotal:    view.CartTotal,
		CartCount:    view.CartCount,
		TotalSavings: view.TotalSavings,
	}
	for _, l := range view.Lines {
		resp.Lines = append(resp.Lines, basketLine{Line: l, Subtotal: l.Subtotal(), Savings: l.Savings()})
	}
	return resp
}

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	// Quantity defaults to 1; non-positive values leave the basket unchanged. The max tag
	// mirrors basket.MaxLineQuantity.
	Quantity *int `json:"quantity,omitempty" validate:"omitempty,max=999"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,max=999"`
}

// BasketGet returns the session's basket with its derived totals.
func BasketGet(svc basket.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "basket service unavailable"))
			return
		}
		view, err := svc.View(r.Context(), middleware.SessionIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBasketResponse(view))
	}
}

// BasketAddItem resolves the product from the catalog and adds it to the basket.
func BasketAddItem(svc basket.Service, products productLookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || products == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "basket service unavailable"))
			return
		}

		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := products.Get(strings.TrimSpace(payload.ProductID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quantity := 1
		if payload.Quantity != nil {
			quantity = *payload.Quantity
		}

		view, err := svc.Do(r.Context(), middleware.SessionIDFromContext(r.Context()), func(ctx context.Context, store *basket.Store) error {
			store.AddToCart(ctx, product, quantity)
			return nil
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBasketResponse(view))
	}
}

// BasketUpdateItem sets a line's quantity; zero or less removes the line.
func BasketUpdateItem(svc basket.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "basket service unavailable"))
			return
		}

		productID := strings.TrimSpace(chi.URLParam(r, "productId"))
		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Do(r.Context(), middleware.SessionIDFromContext(r.Context()), func(ctx context.Context, store *basket.Store) error {
			store.UpdateQuantity(ctx, productID, *payload.Quantity)
			return nil
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBasketResponse(view))
	}
}

func BasketRemoveItem(svc basket.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "basket service unavailable"))
			return
		}
		productID := strings.TrimSpace(chi.URLParam(r, "productId"))
		view, err := svc.Do(r.Context(), middleware.SessionIDFromContext(r.Context()), func(ctx context.Context, store *basket.Store) error {
			store.RemoveFromCart(ctx, productID)
			return nil
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBasketResponse(view))
	}
}

func BasketClear(svc basket.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "basket service unavailable"))
			return
		}
		view, err := svc.Do(r.Context(), middleware.SessionIDFromContext(r.Context()), func(ctx context.Context, store *basket.Store) error {
			store.ClearCart(ctx)
			return nil
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBasketResponse(view))
	}
}
