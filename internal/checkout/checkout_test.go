package checkout

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthplusinnovation/storefront/internal/basket"
	"github.com/healthplusinnovation/storefront/internal/catalog"
	"github.com/healthplusinnovation/storefront/pkg/config"
	pkgerrors "github.com/healthplusinnovation/storefront/pkg/errors"
	"github.com/healthplusinnovation/storefront/pkg/logger"
	"github.com/healthplusinnovation/storefront/pkg/square"
)

func validForm() Form {
	return Form{
		Name:    " City Hospital ",
		Email:   "procurement@cityhospital.in",
		Phone:   "+91 98765 43210",
		Address: "12 MG Road",
		City:    "Pune",
		Zip:     "411001",
	}
}

func testConfig() config.CheckoutConfig {
	return config.CheckoutConfig{
		Currency:     "inr",
		MerchantName: "Health Plus Innovation",
		Description:  "Healthcare Supply Order",
	}
}

type stubGateway struct {
	name    string
	err     error
	onPay   func()
	calls   int
	lastReq PaymentRequest
}

func (g *stubGateway) Name() string {
	if g.name == "" {
		return "stub"
	}
	return g.name
}

func (g *stubGateway) Pay(_ context.Context, req PaymentRequest) (Receipt, error) {
	g.calls++
	g.lastReq = req
	if g.onPay != nil {
		g.onPay()
	}
	if g.err != nil {
		return Receipt{}, g.err
	}
	return Receipt{TransactionID: "txn_123"}, nil
}

type fixture struct {
	baskets basket.Service
	gateway *stubGateway
	svc     Service
}

func newFixture(t *testing.T, gateway *stubGateway) fixture {
	t.Helper()
	return newFixtureWithStorage(t, gateway, basket.NewMemoryStorage(), time.Minute)
}

func newFixtureWithStorage(t *testing.T, gateway *stubGateway, storage basket.Storage, cacheTTL time.Duration) fixture {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: &bytes.Buffer{}})
	baskets, err := basket.NewService(basket.ServiceOptions{
		Storage:  storage,
		CacheTTL: cacheTTL,
		Logger:   logg,
	})
	require.NoError(t, err)
	t.Cleanup(baskets.Close)

	svc, err := NewService(baskets, gateway, testConfig(), logg, nil)
	require.NoError(t, err)
	svc.(*service).orderNumber = func() string { return "12345678" }
	return fixture{baskets: baskets, gateway: gateway, svc: svc}
}

func (f fixture) fill(t *testing.T, session string) {
	t.Helper()
	_, err := f.baskets.Do(context.Background(), session, func(ctx context.Context, s *basket.Store) error {
		s.AddToCart(ctx, catalog.Product{ID: "A", Name: "A", Price: decimal.RequireFromString("100.255"), MRP: decimal.NewFromInt(120)}, 2)
		s.AddToCart(ctx, catalog.Product{ID: "B", Name: "B", Price: decimal.NewFromInt(50), MRP: decimal.NewFromInt(50)}, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestFormValidateTrimsAndReportsFields(t *testing.T) {
	clean, err := validForm().Validate()
	require.NoError(t, err)
	assert.Equal(t, "City Hospital", clean.Name)

	_, err = Form{Name: "x", Email: "not-an-email", Phone: "  "}.Validate()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a valid email", details["email"])
	assert.Equal(t, "is required", details["phone"])
	assert.Equal(t, "is required", details["address"])
	assert.Equal(t, "is required", details["city"])
	assert.Equal(t, "is required", details["zip"])
}

func TestMinorUnitsRoundsHalfAwayFromZero(t *testing.T) {
	cases := map[string]int64{
		"250":      25000,
		"250.505":  25051,
		"250.504":  25050,
		"0.005":    1,
		"1999.999": 200000,
	}
	for in, want := range cases {
		assert.Equal(t, want, MinorUnits(decimal.RequireFromString(in)), in)
	}
}

func TestCheckoutChargesTotalAndClearsBasket(t *testing.T) {
	f := newFixture(t, &stubGateway{})
	f.fill(t, "s1")

	conf, err := f.svc.Checkout(context.Background(), "s1", Input{Form: validForm(), SourceID: " cnon:ok ", IdempotencyKey: "idem-1"})
	require.NoError(t, err)

	req := f.gateway.lastReq
	assert.Equal(t, int64(25051), req.AmountMinor)
	assert.Equal(t, "INR", req.Currency)
	assert.Equal(t, "Health Plus Innovation", req.Label)
	assert.Equal(t, "Healthcare Supply Order", req.Description)
	assert.Equal(t, Contact{Name: "City Hospital", Email: "procurement@cityhospital.in", Phone: "+91 98765 43210"}, req.Contact)
	assert.Equal(t, "cnon:ok", req.SourceID)
	assert.Equal(t, "idem-1", req.IdempotencyKey)

	assert.Equal(t, "txn_123", conf.TransactionID)
	assert.Equal(t, "HPI-12345678", conf.OrderRef)
	assert.Equal(t, 3, conf.ItemCount)
	assert.Equal(t, "250.51", conf.Amount.String())
	assert.False(t, conf.Demo)

	view, err := f.baskets.View(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.Zero(t, view.CartCount)
}

func TestCheckoutFailureLeavesBasketIntact(t *testing.T) {
	f := newFixture(t, &stubGateway{err: errors.New("widget unavailable")})
	f.fill(t, "s1")

	_, err := f.svc.Checkout(context.Background(), "s1", Input{Form: validForm()})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))

	view, err := f.baskets.View(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, view.CartCount)
}

func TestCheckoutKeepsTypedGatewayErrors(t *testing.T) {
	f := newFixture(t, &stubGateway{err: pkgerrors.New(pkgerrors.CodePayment, "card declined")})
	f.fill(t, "s1")

	_, err := f.svc.Checkout(context.Background(), "s1", Input{Form: validForm()})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePayment))
}

func TestCheckoutRejectsEmptyBasket(t *testing.T) {
	f := newFixture(t, &stubGateway{})

	_, err := f.svc.Checkout(context.Background(), "s1", Input{Form: validForm()})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Zero(t, f.gateway.calls)
}

// contextStorage fails writes whose context is already done, like a remote store would.
type contextStorage struct {
	*basket.MemoryStorage
}

func (c contextStorage) Save(ctx context.Context, scope, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MemoryStorage.Save(ctx, scope, key, data)
}

func TestCheckoutClearsBasketWhenRequestIsCancelledAfterCharge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gateway := &stubGateway{onPay: cancel}
	f := newFixtureWithStorage(t, gateway, contextStorage{basket.NewMemoryStorage()}, 0)
	f.fill(t, "s1")

	confirmation, err := f.svc.Checkout(ctx, "s1", Input{Form: validForm()})
	require.NoError(t, err)
	require.NotNil(t, confirmation)
	require.Error(t, ctx.Err())

	view, err := f.baskets.View(context.Background(), "s1")
	require.NoError(t, err)
	assert.Zero(t, view.CartCount, "paid basket must not be restored")
}

func TestCheckoutRejectsUnchargeableTotals(t *testing.T) {
	cases := map[string]struct {
		price decimal.Decimal
		code  pkgerrors.Code
	}{
		"zero total": {price: decimal.Zero, code: pkgerrors.CodeStateConflict},
		"oversized":  {price: decimal.RequireFromString("100000000000000000"), code: pkgerrors.CodeValidation},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, &stubGateway{})
			_, err := f.baskets.Do(context.Background(), "s1", func(ctx context.Context, s *basket.Store) error {
				s.AddToCart(ctx, catalog.Product{ID: "A", Name: "A", Price: tc.price, MRP: tc.price}, 1)
				return nil
			})
			require.NoError(t, err)

			_, err = f.svc.Checkout(context.Background(), "s1", Input{Form: validForm()})
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, tc.code))
			assert.Zero(t, f.gateway.calls)

			view, err := f.baskets.View(context.Background(), "s1")
			require.NoError(t, err)
			assert.Equal(t, 1, view.CartCount)
		})
	}
}

func TestCheckoutValidatesFormBeforePaying(t *testing.T) {
	f := newFixture(t, &stubGateway{})
	f.fill(t, "s1")

	_, err := f.svc.Checkout(context.Background(), "s1", Input{Form: Form{Name: "x"}})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Zero(t, f.gateway.calls)
}

func TestDemoGatewaySucceedsAfterDelays(t *testing.T) {
	g := NewDemoGateway(config.CheckoutConfig{DemoNoticeDelay: 5 * time.Millisecond, DemoSettleDelay: 10 * time.Millisecond}, nil)

	started := time.Now()
	receipt, err := g.Pay(context.Background(), PaymentRequest{AmountMinor: 100})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(started), 15*time.Millisecond)
	assert.True(t, strings.HasPrefix(receipt.TransactionID, "demo-"))
	assert.Equal(t, []string{DemoProcessingNotice, DemoSettledNotice}, receipt.Notices)
}

func TestDemoGatewayHonorsCancellation(t *testing.T) {
	g := NewDemoGateway(config.CheckoutConfig{DemoNoticeDelay: time.Second, DemoSettleDelay: 2 * time.Second}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.Pay(ctx, PaymentRequest{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDemoCheckoutIsFlagged(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: &bytes.Buffer{}})
	baskets, err := basket.NewService(basket.ServiceOptions{Storage: basket.NewMemoryStorage(), CacheTTL: time.Minute, Logger: logg})
	require.NoError(t, err)
	t.Cleanup(baskets.Close)
	svc, err := NewService(baskets, NewDemoGateway(config.CheckoutConfig{}, logg), testConfig(), logg, nil)
	require.NoError(t, err)

	fixture{baskets: baskets}.fill(t, "s1")
	conf, err := svc.Checkout(context.Background(), "s1", Input{Form: validForm()})
	require.NoError(t, err)
	assert.True(t, conf.Demo)
	assert.Len(t, conf.OrderNumber, 8)
	assert.NotEmpty(t, conf.Notices)
}

type fakePayments struct {
	params  square.PaymentCreateParams
	payment *sq.Payment
	err     error
}

func (f *fakePayments) CreatePayment(_ context.Context, params square.PaymentCreateParams) (*sq.Payment, error) {
	f.params = params
	return f.payment, f.err
}

func TestSquareGatewayMapsRequest(t *testing.T) {
	id := "pay_42"
	payments := &fakePayments{payment: &sq.Payment{ID: &id}}
	g, err := NewSquareGateway(payments)
	require.NoError(t, err)

	receipt, err := g.Pay(context.Background(), PaymentRequest{
		AmountMinor:    25000,
		Currency:       "INR",
		Description:    "Healthcare Supply Order",
		Contact:        Contact{Email: "a@b.in", Phone: "+911234567"},
		SourceID:       "cnon:ok",
		IdempotencyKey: "idem",
		ReferenceID:    "12345678",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay_42", receipt.TransactionID)
	assert.Equal(t, square.PaymentCreateParams{
		AmountMinor:    25000,
		Currency:       "INR",
		SourceID:       "cnon:ok",
		IdempotencyKey: "idem",
		Note:           "Healthcare Supply Order",
		ReferenceID:    "12345678",
		BuyerEmail:     "a@b.in",
		BuyerPhone:     "+911234567",
	}, payments.params)
}

func TestSquareGatewayRequiresSource(t *testing.T) {
	g, err := NewSquareGateway(&fakePayments{})
	require.NoError(t, err)

	_, err = g.Pay(context.Background(), PaymentRequest{AmountMinor: 100})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = NewSquareGateway(nil)
	require.Error(t, err)
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: &bytes.Buffer{}})
	baskets, err := basket.NewService(basket.ServiceOptions{Storage: basket.NewMemoryStorage(), Logger: logg})
	require.NoError(t, err)
	defer baskets.Close()

	_, err = NewService(nil, &stubGateway{}, testConfig(), logg, nil)
	assert.Error(t, err)
	_, err = NewService(baskets, nil, testConfig(), logg, nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Currency = "JPY"
	_, err = NewService(baskets, &stubGateway{}, cfg, logg, nil)
	assert.Error(t, err)

	cfg.Currency = ""
	_, err = NewService(baskets, &stubGateway{}, cfg, logg, nil)
	assert.NoError(t, err)
}
