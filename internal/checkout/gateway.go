package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	"github.com/healthplusinnovation/storefront/pkg/config"
	pkgerrors "github.com/healthplusinnovation/storefront/pkg/errors"
	"github.com/healthplusinnovation/storefront/pkg/logger"
	"github.com/healthplusinnovation/storefront/pkg/square"
)

// Contact is the buyer information prefilled into the payment widget.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// PaymentRequest is what the storefront hands to a payment gateway.
type PaymentRequest struct {
	// AmountMinor is the total in minor currency units.
	AmountMinor    int64
	Currency       string
	Label          string
	Description    string
	Contact        Contact
	SourceID       string
	IdempotencyKey string
	ReferenceID    string
}

// Receipt carries the gateway's opaque transaction identifier.
type Receipt struct {
	TransactionID string
	Notices       []string
}

// Gateway collects a payment. A nil error means the payment succeeded.
type Gateway interface {
	Name() string
	Pay(ctx context.Context, req PaymentRequest) (Receipt, error)
}

// Demo gateway notices.
const (
	DemoProcessingNotice = "Processing your order via HPI secure gateway..."
	DemoSettledNotice    = "Demo mode: no real payment was taken."
)

// DemoGateway simulates a successful payment after fixed delays. It never charges anyone and
// exists so the storefront works without gateway credentials.
type DemoGateway struct {
	noticeDelay time.Duration
	settleDelay time.Duration
	logg        *logger.Logger
}

func NewDemoGateway(cfg config.CheckoutConfig, logg *logger.Logger) *DemoGateway {
	return &DemoGateway{noticeDelay: cfg.DemoNoticeDelay, settleDelay: cfg.DemoSettleDelay, logg: logg}
}

func (d *DemoGateway) Name() string { return "demo" }

func (d *DemoGateway) Pay(ctx context.Context, req PaymentRequest) (Receipt, error) {
	if err := sleep(ctx, d.noticeDelay); err != nil {
		return Receipt{}, err
	}
	if d.logg != nil {
		d.logg.Info(d.logg.WithField(ctx, "reference_id", req.ReferenceID), DemoProcessingNotice)
	}
	if err := sleep(ctx, d.settleDelay); err != nil {
		return Receipt{}, err
	}
	return Receipt{
		TransactionID: "demo-" + uuid.NewString(),
		Notices:       []string{DemoProcessingNotice, DemoSettledNotice},
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type paymentCreator interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
}

// SquareGateway charges a card nonce produced by the Square Web Payments SDK in the browser.
type SquareGateway struct {
	payments paymentCreator
}

func NewSquareGateway(payments paymentCreator) (*SquareGateway, error) {
	if payments == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &SquareGateway{payments: payments}, nil
}

func (g *SquareGateway) Name() string { return "square" }

func (g *SquareGateway) Pay(ctx context.Context, req PaymentRequest) (Receipt, error) {
	if strings.TrimSpace(req.SourceID) == "" {
		return Receipt{}, pkgerrors.New(pkgerrors.CodeValidation, "payment source is required").
			WithDetails(map[string]string{"source_id": "is required"})
	}
	payment, err := g.payments.CreatePayment(ctx, square.PaymentCreateParams{
		AmountMinor:    req.AmountMinor,
		Currency:       req.Currency,
		SourceID:       req.SourceID,
		IdempotencyKey: req.IdempotencyKey,
		Note:           req.Description,
		ReferenceID:    req.ReferenceID,
		BuyerEmail:     req.Contact.Email,
		BuyerPhone:     req.Contact.Phone,
	})
	if err != nil {
		return Receipt{}, err
	}
	if payment == nil || payment.GetID() == nil {
		return Receipt{}, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment")
	}
	return Receipt{TransactionID: *payment.GetID()}, nil
}
