package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/andrelucena/vitrine-backend/internal/cart"
	"github.com/andrelucena/vitrine-backend/internal/shipping"
	"github.com/andrelucena/vitrine-backend/pkg/commerce"
	pkgerrors "github.com/andrelucena/vitrine-backend/pkg/errors"
	"github.com/andrelucena/vitrine-backend/pkg/logger"
	"github.com/andrelucena/vitrine-backend/pkg/payment"
	"github.com/andrelucena/vitrine-backend/pkg/redis"
	"github.com/andrelucena/vitrine-backend/pkg/types"
	"github.com/shopspring/decimal"
)

type memoryStore struct {
	values map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (m *memoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.values[key] = value.(string)
	return nil
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryStore) CheckoutSessionKey(sessionID string) string {
	return "vitrine:checkout:" + sessionID
}

type fakeCarts struct {
	items      map[string][]types.CartItem
	clearCalls int
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{items: map[string][]types.CartItem{}}
}

func (f *fakeCarts) Get(ctx context.Context, cartID string) (*cart.Cart, error) {
	return &cart.Cart{ID: cartID, Items: f.items[cartID]}, nil
}

func (f *fakeCarts) AddItem(ctx context.Context, cartID string, item types.CartItem) (*cart.Cart, error) {
	f.items[cartID] = append(f.items[cartID], item)
	return f.Get(ctx, cartID)
}

func (f *fakeCarts) SetQuantity(ctx context.Context, cartID, lineKey string, quantity int) (*cart.Cart, error) {
	return f.Get(ctx, cartID)
}

func (f *fakeCarts) RemoveItem(ctx context.Context, cartID, lineKey string) (*cart.Cart, error) {
	return f.Get(ctx, cartID)
}

func (f *fakeCarts) Clear(ctx context.Context, cartID string) error {
	f.clearCalls++
	delete(f.items, cartID)
	return nil
}

type fakeQuoter struct {
	threshold decimal.Decimal
	quoteFn   func(ctx context.Context, req shipping.QuoteRequest) (*shipping.QuoteResult, error)
	calls     int
}

func (f *fakeQuoter) Quote(ctx context.Context, req shipping.QuoteRequest) (*shipping.QuoteResult, error) {
	f.calls++
	return f.quoteFn(ctx, req)
}

func (f *fakeQuoter) FreeShippingThreshold() decimal.Decimal {
	return f.threshold
}

type fakePayments struct {
	createFn    func(ctx context.Context, input payment.CreateOrderInput) (string, error)
	captureFn   func(ctx context.Context, providerOrderID string) (*payment.CaptureResult, error)
	createCalls int
}

func (f *fakePayments) CreateOrder(ctx context.Context, input payment.CreateOrderInput) (string, error) {
	f.createCalls++
	return f.createFn(ctx, input)
}

func (f *fakePayments) CaptureOrder(ctx context.Context, providerOrderID string) (*payment.CaptureResult, error) {
	return f.captureFn(ctx, providerOrderID)
}

type fakeOrders struct {
	submitFn    func(ctx context.Context, order commerce.OrderRequest) (*commerce.OrderConfirmation, error)
	submitCalls int
}

func (f *fakeOrders) SubmitOrder(ctx context.Context, order commerce.OrderRequest) (*commerce.OrderConfirmation, error) {
	f.submitCalls++
	return f.submitFn(ctx, order)
}

type fixture struct {
	svc      Service
	store    *memoryStore
	carts    *fakeCarts
	quoter   *fakeQuoter
	payments *fakePayments
	orders   *fakeOrders
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: newMemoryStore(),
		carts: newFakeCarts(),
		quoter: &fakeQuoter{
			threshold: decimal.RequireFromString("500.00"),
			quoteFn: func(ctx context.Context, req shipping.QuoteRequest) (*shipping.QuoteResult, error) {
				return &shipping.QuoteResult{
					Zone: "Grande São Paulo",
					Methods: []shipping.Quote{
						{ID: "flat_rate:2", Title: "Entrega padrão", Cost: decimal.RequireFromString("18.90"), DeliveryTime: "4 a 7 dias úteis"},
						{ID: "carrier:3", Title: "SEDEX", Cost: decimal.RequireFromString("24.00"), DeliveryTime: "1 a 3 dias úteis"},
					},
				}, nil
			},
		},
		payments: &fakePayments{
			createFn: func(ctx context.Context, input payment.CreateOrderInput) (string, error) {
				return "prov-123", nil
			},
			captureFn: func(ctx context.Context, providerOrderID string) (*payment.CaptureResult, error) {
				return &payment.CaptureResult{ProviderOrderID: providerOrderID, CaptureID: "cap-1", Status: "COMPLETED"}, nil
			},
		},
		orders: &fakeOrders{
			submitFn: func(ctx context.Context, order commerce.OrderRequest) (*commerce.OrderConfirmation, error) {
				return &commerce.OrderConfirmation{ID: "901", Number: "901", Status: "processing"}, nil
			},
		},
	}

	svc, err := NewService(f.store, f.carts, f.quoter, f.payments, f.orders, nil, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) seedCart(cartID string, items ...types.CartItem) {
	f.carts.items[cartID] = items
}

func lineItem(productID, price string, qty int) types.CartItem {
	return types.CartItem{
		ProductID: productID,
		Name:      productID,
		UnitPrice: decimal.RequireFromString(price),
		Quantity:  qty,
	}
}

func validAddress() *types.Address {
	return &types.Address{
		FirstName:  "Ana",
		LastName:   "Lima",
		Line1:      "Av. Paulista, 1000",
		City:       "São Paulo",
		State:      "SP",
		PostalCode: "01310-100",
		Country:    "BR",
		Email:      "ana@example.com",
	}
}

// advanceToShipping walks a fresh authenticated session through the
// address step.
func (f *fixture) advanceToShipping(t *testing.T) *Session {
	t.Helper()
	session, err := f.svc.Start(context.Background(), StartInput{CartID: "cart-1", CustomerID: "1523"})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	session, err = f.svc.Advance(context.Background(), session.ID, AdvanceInput{Billing: validAddress(), ShipToBilling: true})
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	return session
}

func (f *fixture) advanceToPayment(t *testing.T) *Session {
	t.Helper()
	session := f.advanceToShipping(t)
	session, err := f.svc.Advance(context.Background(), session.ID, AdvanceInput{SelectedQuoteID: session.Quotes[0].ID})
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if session.Step != StepPayment {
		t.Fatalf("expected payment step, got %s (%s)", session.Step, session.LastError)
	}
	return session
}

func TestStartAuthenticatedSkipsIdentify(t *testing.T) {
	f := newFixture(t)
	f.seedCart("cart-1", lineItem("p1", "120.00", 1))

	session, err := f.svc.Start(context.Background(), StartInput{CartID: "cart-1", CustomerID: "1523"})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if session.Step != StepAddress {
		t.Fatalf("expected address step for authenticated customer, got %s", session.Step)
	}
	if !session.Subtotal.Equal(decimal.RequireFromString("120.00")) {
		t.Fatalf("unexpected subtotal %s", session.Subtotal)
	}
}

func TestStartAnonymousBeginsAtIdentify(t *testing.T) {
	f := newFixture(t)
	f.seedCart("cart-1", lineItem("p1", "120.00", 1))

	session, err := f.svc.Start(context.Background(), StartInput{CartID: "cart-1"})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if session.Step != StepIdentify {
		t.Fatalf("expected identify step, got %s", session.Step)
	}

	// Without a customer the guard holds the wizard in place.
	session, err = f.svc.Advance(context.Background(), session.ID, AdvanceInput{})
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if session.Step != StepIdentify || session.LastError == "" {
		t.Fatalf("expected inline guard failure, got step %s error %q", session.Step, session.LastError)
	}

	session, err = f.svc.Advance(context.Background(), session.ID, AdvanceInput{CustomerID: "1523"})
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if session.Step != StepAddress {
		t.Fatalf("expected address step after identification, got %s", session.Step)
	}
}

func TestStartRejectsEmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Start(context.Background(), StartInput{CartID: "cart-1"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict for empty cart, got %v", err)
	}
}

func TestAdvanceAddressWithBlankFieldHoldsStep(t *testing.T) {
	f := newFixture(t)
	f.seedCart("cart-1", lineItem("p1", "120.00", 1))

	session, err := f.svc.Start(context.Background(), StartInput{CartID: "cart-1", CustomerID: "1523"})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	billing := validAddress()
	billing.City = ""
	session, err = f.svc.Advance(context.Background(), session.ID, AdvanceInput{Billing: billing, ShipToBilling: true})
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if session.Step != StepAddress {
		t.Fatalf("step must not change on guard failure, got %s", session.Step)
	}
	if session.LastError == "" {
		t.Fatal("expected inline error for missing city")
	}
}

func TestAdvanceAddressFetchesQuotes(t *testing.T) {
	f := newFixture(t)
	f.seedCart("cart-1", lineItem("p1", "120.00", 1), lineItem("p2", "80.00", 2))

	session := f.advanceToShipping(t)
	if session.Step != StepShipping {
		t.Fatalf("expected shipping step, got %s (%s)", session.Step, session.LastError)
	}
	if f.quoter.calls != 1 {
		t.Fatalf("expected one estimator call, got %d", f.quoter.calls)
	}
	if session.QuoteZone != "Grande São Paulo" || len(session.Quotes) != 2 {
		t.Fatalf("unexpected quote state %+v", session)
	}
	if session.FreeShipping {
		t.Fatal("free shipping must not trigger below the threshold")
	}
}

func TestFreeShippingThresholdSkipsEstimator(t *testing.T) {
	f := newFixture(t)
	f.seedCart("cart-1", lineItem("p1", "520.00", 1))

	session := f.advanceToShipping(t)
	if f.quoter.calls != 0 {
		t.Fatal("estimator must not be called at or above the threshold")
	}
	if !session.FreeShipping || !session.ShippingCost.IsZero() {
		t.Fatalf("expected synthesized free shipping, got %+v", session)
	}
	if len(session.Quotes) != 1 || session.Quotes[0].Title != "Frete grátis" {
		t.Fatalf("unexpected quotes %+v", session.Quotes)
	}

	session, err := f.svc.Advance(context.Background(), session.ID, AdvanceInput{})
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if session.Step != StepPayment {
		t.Fatalf("free shipping must bypass selection, got %s (%s)", session.Step, session.LastError)
	}
	if !session.Total.Equal(decimal.RequireFromString("520.00")) {
		t.Fatalf("expected total 520.00, got %s", session.Total)
	}
}

func TestAdvanceShippingRequiresSelection(t *testing.T) {
	f := newFixture(t)
	f.seedCart("cart-1", lineItem("p1", "120.00", 1))

	session := f.advanceToShipping(t)
	session, err := f.svc.Advance(context.Background(), session.ID, AdvanceInput{})
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if session.Step != StepShipping || session.LastError == "" {
		t.Fatalf("expected inline error without a selection, got step %s error %q", session.Step, session.LastError)
	}
}

func TestAdvanceShippingFreezesTotal(t *testing.T) {
	f := newFixture(t)
	f.seedCart("cart-1", lineItem("p1", "120.00", 1))

	session := f.advanceToPayment(t)
	if !session.TotalFrozen {
		t.Fatal("expected frozen total on payment entry")
	}
	if !session.Total.Equal(decimal.RequireFromString("138.90")) {
		t.Fatalf("expected total 138.90, got %s", session.Total)
	}

	// Payment step is read-only: no further wizard mutation until the
	// payment resolves or the customer steps back.
	_, err := f.svc.Advance(context.Background(), session.ID, AdvanceInput{Billing: validAddress()})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict while frozen, got %v", err)
	}
}

func TestFreezeSnapshotsCartItems(t *testing.T) {
	f := newFixture(t)
	f.seedCart("cart-1", lineItem("p1", "120.00", 1), lineItem("p2", "80.00", 2), lineItem("p3", "60.00", 1))

	session := f.advanceToPayment(t)
	if len(session.FrozenItems) != 3 {
		t.Fatalf("expected 3 frozen line items, got %d", len(session.FrozenItems))
	}
	frozenTotal := session.Total

	// Cart edits behind the frozen session must not change what is
	// charged or which lines land on the order.
	f.seedCart("cart-1", lineItem("p3", "60.00", 1))

	var submitted commerce.OrderRequest
	f.orders.submitFn = func(ctx context.Context, order commerce.OrderRequest) (*commerce.OrderConfirmation, error) {
		submitted = order
		return &commerce.OrderConfirmation{ID: "901", Number: "901", Status: "processing"}, nil
	}
	f.payments.createFn = func(ctx context.Context, input payment.CreateOrderInput) (string, error) {
		if !input.Amount.Equal(frozenTotal) {
			t.Fatalf("expected frozen amount %s, got %s", frozenTotal, input.Amount)
		}
		return "prov-123", nil
	}

	if _, err := f.svc.BeginPayment(context.Background(), session.ID); err != nil {
		t.Fatalf("BeginPayment returned error: %v", err)
	}
	session, err := f.svc.Capture(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}
	if !session.Completed {
		t.Fatalf("expected completed session, got %+v", session)
	}

	if len(submitted.LineItems) != 3 {
		t.Fatalf("order must carry the frozen lines, got %d", len(submitted.LineItems))
	}
	worth := decimal.Zero
	for _, line := range submitted.LineItems {
		worth = worth.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	if !worth.Add(session.ShippingCost).Equal(frozenTotal) {
		t.Fatalf("submitted order worth %s + shipping %s does not match charged total %s", worth, session.ShippingCost, frozenTotal)
	}
}

func TestCaptureSurvivesEmptiedCart(t *testing.T) {
	f := newFixture(t)
	f.seedCart("cart-1", lineItem("p1", "120.00", 1))

	session := f.advanceToPayment(t)
	if _, err := f.svc.BeginPayment(context.Background(), session.ID); err != nil {
		t.Fatalf("BeginPayment returned error: %v", err)
	}

	// An emptied cart after the freeze must not break order submission.
	delete(f.carts.items, "cart-1")

	session, err := f.svc.Capture(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}
	if !session.Completed || f.orders.submitCalls != 1 {
		t.Fatalf("expected completed session with submitted order, got %+v (submits=%d)", session, f.orders.submitCalls)
	}
}

func TestBackFromPaymentUnfreezes(t *testing.T) {
	f := newFixture(t)
	f.seedCart("cart-1", lineItem("p1", "120.00", 1))

	session := f.advanceToPayment(t)
	session, err := f.svc.Back(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Back returned error: %v", err)
	}
	if session.Step != StepShipping || session.TotalFrozen {
		t.Fatalf("expected unfrozen shipping step, got %+v", session)
	}
	if session.FrozenItems != nil {
		t.Fatal("stepping out of payment must discard the frozen lines")
	}
}

func TestBackFromFirstStepRejected(t *testing.T) {
	f := newFixture(t)
	f.seedCart("cart-1", lineItem("p1", "120.00", 1))

	session, err := f.svc.Start(context.Background(), StartInput{CartID: "cart-1"})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	_, err = f.svc.Back(context.Background(), session.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestBeginPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedCart("cart-1", lineItem("p1", "120.00", 1))
	f.payments.createFn = func(ctx context.Context, input payment.CreateOrderInput) (string, error) {
		if !input.Amount.Equal(decimal.RequireFromString("138.90")) {
			t.Fatalf("expected frozen amount 138.90, got %s", input.Amount)
		}
		return "prov-123", nil
	}

	session := f.advanceToPayment(t)
	session, err := f.svc.BeginPayment(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("BeginPayment returned error: %v", err)
	}
	if session.ProviderOrderID != "prov-123" {
		t.Fatalf("unexpected provider order %q", session.ProviderOrderID)
	}

	if _, err := f.svc.BeginPayment(context.Background(), session.ID); err != nil {
		t.Fatalf("repeat BeginPayment returned error: %v", err)
	}
	if f.payments.createCalls != 1 {
		t.Fatalf("expected a single provider order, got %d", f.payments.createCalls)
	}
}

func TestCaptureCompletesOnce(t *testing.T) {
	f := newFixture(t)
	f.seedCart("cart-1", lineItem("p1", "120.00", 1))

	session := f.advanceToPayment(t)
	if _, err := f.svc.BeginPayment(context.Background(), session.ID); err != nil {
		t.Fatalf("BeginPayment returned error: %v", err)
	}

	session, err := f.svc.Capture(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}
	if !session.Completed || session.Order == nil || session.Order.OrderID != "901" {
		t.Fatalf("expected completed session with order, got %+v", session)
	}
	if f.carts.clearCalls != 1 {
		t.Fatalf("expected cart cleared once, got %d", f.carts.clearCalls)
	}

	// A duplicate success event is a no-op returning the stored
	// confirmation.
	session, err = f.svc.Capture(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("repeat Capture returned error: %v", err)
	}
	if session.Order == nil || session.Order.CaptureID != "cap-1" {
		t.Fatalf("expected stored confirmation, got %+v", session.Order)
	}
	if f.orders.submitCalls != 1 || f.carts.clearCalls != 1 {
		t.Fatalf("duplicate capture must not resubmit or reclear (submits=%d clears=%d)", f.orders.submitCalls, f.carts.clearCalls)
	}
}

func TestCaptureRejectionKeepsPaymentStep(t *testing.T) {
	f := newFixture(t)
	f.seedCart("cart-1", lineItem("p1", "120.00", 1))
	f.payments.captureFn = func(ctx context.Context, providerOrderID string) (*payment.CaptureResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodePaymentRejected, "payment was rejected")
	}

	session := f.advanceToPayment(t)
	if _, err := f.svc.BeginPayment(context.Background(), session.ID); err != nil {
		t.Fatalf("BeginPayment returned error: %v", err)
	}

	session, err := f.svc.Capture(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Capture should surface rejection inline, got %v", err)
	}
	if session.Completed || session.Step != StepPayment {
		t.Fatalf("rejection must not complete or regress the wizard, got %+v", session)
	}
	if session.LastError == "" {
		t.Fatal("expected inline payment error")
	}
	if f.orders.submitCalls != 0 {
		t.Fatal("order must not be submitted after a rejected capture")
	}
}

func TestEmptyCartInvalidatesSession(t *testing.T) {
	f := newFixture(t)
	f.seedCart("cart-1", lineItem("p1", "120.00", 1))

	session, err := f.svc.Start(context.Background(), StartInput{CartID: "cart-1", CustomerID: "1523"})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	delete(f.carts.items, "cart-1")
	_, err = f.svc.Get(context.Background(), session.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict once cart empties, got %v", err)
	}
	if _, ok := f.store.values[f.store.CheckoutSessionKey(session.ID)]; ok {
		t.Fatal("stale session must be discarded")
	}
}

func TestStaleQuoteResponseDiscarded(t *testing.T) {
	f := newFixture(t)
	f.seedCart("cart-1", lineItem("p1", "120.00", 1))

	// While the first estimator call is in flight, a newer request bumps
	// the stored sequence; the in-flight result must lose.
	f.quoter.quoteFn = func(ctx context.Context, req shipping.QuoteRequest) (*shipping.QuoteResult, error) {
		key := ""
		for k := range f.store.values {
			key = k
		}
		var stored Session
		if err := json.Unmarshal([]byte(f.store.values[key]), &stored); err != nil {
			return nil, fmt.Errorf("unmarshal stored session: %w", err)
		}
		stored.QuoteSeq++
		stored.QuoteZone = "Interior"
		stored.Quotes = []shipping.Quote{{ID: "carrier:9", Title: "PAC", Cost: decimal.RequireFromString("31.00")}}
		raw, err := json.Marshal(&stored)
		if err != nil {
			return nil, err
		}
		f.store.values[key] = string(raw)

		return &shipping.QuoteResult{
			Zone:    "Grande São Paulo",
			Methods: []shipping.Quote{{ID: "flat_rate:2", Title: "Entrega padrão", Cost: decimal.RequireFromString("18.90")}},
		}, nil
	}

	session := f.advanceToShipping(t)
	if session.QuoteZone != "Interior" {
		t.Fatalf("stale response must not overwrite the fresher state, got zone %q", session.QuoteZone)
	}
	if len(session.Quotes) != 1 || session.Quotes[0].ID != "carrier:9" {
		t.Fatalf("unexpected quotes %+v", session.Quotes)
	}
}
