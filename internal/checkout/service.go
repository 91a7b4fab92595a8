package checkout

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/healthplusinnovation/storefront/internal/basket"
	"github.com/healthplusinnovation/storefront/pkg/config"
	"github.com/healthplusinnovation/storefront/pkg/enums"
	pkgerrors "github.com/healthplusinnovation/storefront/pkg/errors"
	"github.com/healthplusinnovation/storefront/pkg/logger"
	"github.com/healthplusinnovation/storefront/pkg/metrics"
)

var (
	hundred        = decimal.NewFromInt(100)
	maxAmountMinor = decimal.NewFromInt(math.MaxInt64)
)

// Input is a checkout submission.
type Input struct {
	Form Form
	// SourceID is the client-side payment token; the demo gateway ignores it.
	SourceID       string
	IdempotencyKey string
}

// Confirmation is returned once the payment succeeded and the basket was cleared.
type Confirmation struct {
	OrderNumber   string          `json:"order_number"`
	OrderRef      string          `json:"order_ref"`
	TransactionID string          `json:"transaction_id"`
	Gateway       string          `json:"gateway"`
	Demo          bool            `json:"demo"`
	Amount        decimal.Decimal `json:"amount"`
	AmountMinor   int64           `json:"amount_minor"`
	Currency      string          `json:"currency"`
	ItemCount     int             `json:"item_count"`
	Contact       Contact         `json:"contact"`
	Notices       []string        `json:"notices,omitempty"`
}

// Service runs the checkout flow against a session's basket.
type Service interface {
	Checkout(ctx context.Context, sessionID string, input Input) (*Confirmation, error)
}

type service struct {
	baskets     basket.Service
	gateway     Gateway
	currency    string
	label       string
	description string
	logg        *logger.Logger
	metrics     *metrics.CheckoutMetrics
	orderNumber func() string
}

// NewService builds the checkout service.
func NewService(baskets basket.Service, gateway Gateway, cfg config.CheckoutConfig, logg *logger.Logger, m *metrics.CheckoutMetrics) (Service, error) {
	if baskets == nil {
		return nil, fmt.Errorf("basket service required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := enums.CurrencyINR
	if strings.TrimSpace(cfg.Currency) != "" {
		parsed, err := enums.ParseCurrency(cfg.Currency)
		if err != nil {
			return nil, err
		}
		currency = parsed
	}
	return &service{
		baskets:     baskets,
		gateway:     gateway,
		currency:    currency.String(),
		label:       cfg.MerchantName,
		description: cfg.Description,
		logg:        logg,
		metrics:     m,
		orderNumber: randomOrderNumber,
	}, nil
}

// randomOrderNumber returns an 8-digit display reference. It is not an identifier of record.
func randomOrderNumber() string {
	return strconv.Itoa(10000000 + rand.Intn(90000000))
}

// MinorUnits converts a decimal amount to minor units, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// Checkout charges the session's basket total and clears the basket on success. The session
// lock is held for the whole flow, so the basket cannot change between pricing and clearing.
// A failed payment leaves the basket untouched.
func (s *service) Checkout(ctx context.Context, sessionID string, input Input) (*Confirmation, error) {
	form, err := input.Form.Validate()
	if err != nil {
		return nil, err
	}

	var confirmation *Confirmation
	_, err = s.baskets.Do(ctx, sessionID, func(ctx context.Context, store *basket.Store) error {
		view := store.Snapshot()
		if view.CartCount <= 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "basket is empty").
				WithDetails(map[string]string{"redirect": "/cart"})
		}
		amountMinor, err := chargeableAmount(view.CartTotal)
		if err != nil {
			return err
		}

		orderNumber := s.orderNumber()
		contact := Contact{Name: form.Name, Email: form.Email, Phone: form.Phone}
		req := PaymentRequest{
			AmountMinor:    amountMinor,
			Currency:       s.currency,
			Label:          s.label,
			Description:    s.description,
			Contact:        contact,
			SourceID:       strings.TrimSpace(input.SourceID),
			IdempotencyKey: input.IdempotencyKey,
			ReferenceID:    orderNumber,
		}

		ctx = s.logg.WithFields(ctx, map[string]any{
			"gateway":      s.gateway.Name(),
			"order_number": orderNumber,
			"amount_minor": req.AmountMinor,
			"currency":     req.Currency,
		})
		started := time.Now()
		receipt, err := s.gateway.Pay(ctx, req)
		s.metrics.ObservePayment(s.gateway.Name(), time.Since(started), err)
		if err != nil {
			s.logg.Warn(ctx, fmt.Sprintf("checkout payment failed: %v", err))
			return paymentError(err)
		}

		// The charge has settled; a cancelled request must not keep the paid basket in storage.
		store.ClearCart(context.WithoutCancel(ctx))
		s.logg.Info(s.logg.WithField(ctx, "transaction_id", receipt.TransactionID), "checkout completed")

		confirmation = &Confirmation{
			OrderNumber:   orderNumber,
			OrderRef:      "HPI-" + orderNumber,
			TransactionID: receipt.TransactionID,
			Gateway:       s.gateway.Name(),
			Demo:          s.gateway.Name() == "demo",
			Amount:        view.CartTotal,
			AmountMinor:   req.AmountMinor,
			Currency:      req.Currency,
			ItemCount:     view.CartCount,
			Contact:       contact,
			Notices:       receipt.Notices,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmation, nil
}

// chargeableAmount converts the basket total to minor units, rejecting totals that are not
// positive or that do not fit the gateway's int64 amount.
func chargeableAmount(total decimal.Decimal) (int64, error) {
	if !total.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeStateConflict, "basket total must be positive").
			WithDetails(map[string]string{"redirect": "/cart"})
	}
	if total.Mul(hundred).Round(0).GreaterThan(maxAmountMinor) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "basket total exceeds the payable limit").
			WithDetails(map[string]string{"redirect": "/cart"})
	}
	return MinorUnits(total), nil
}

func paymentError(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment could not be completed")
}
