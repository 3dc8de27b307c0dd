package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/andrelucena/vitrine-backend/internal/cart"
	"github.com/andrelucena/vitrine-backend/internal/shipping"
	"github.com/andrelucena/vitrine-backend/pkg/commerce"
	pkgerrors "github.com/andrelucena/vitrine-backend/pkg/errors"
	"github.com/andrelucena/vitrine-backend/pkg/logger"
	"github.com/andrelucena/vitrine-backend/pkg/metrics"
	"github.com/andrelucena/vitrine-backend/pkg/payment"
	"github.com/andrelucena/vitrine-backend/pkg/redis"
	"github.com/andrelucena/vitrine-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// Abandoned checkouts expire well before the cart snapshot does.
	sessionTTL = 2 * time.Hour

	freeShippingQuoteID = "free_shipping"
	paymentMethodSlug   = "paypal"
)

// sessionStore is the slice of the Redis client the wizard uses.
type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	CheckoutSessionKey(sessionID string) string
}

// quoter prices shipping for a destination. The estimator degrades
// internally, so a non-nil error here means bad input, not a bad upstream.
type quoter interface {
	Quote(ctx context.Context, req shipping.QuoteRequest) (*shipping.QuoteResult, error)
	FreeShippingThreshold() decimal.Decimal
}

type paymentProvider interface {
	CreateOrder(ctx context.Context, input payment.CreateOrderInput) (string, error)
	CaptureOrder(ctx context.Context, providerOrderID string) (*payment.CaptureResult, error)
}

type orderSubmitter interface {
	SubmitOrder(ctx context.Context, order commerce.OrderRequest) (*commerce.OrderConfirmation, error)
}

// StartInput opens a checkout attempt over an existing cart.
type StartInput struct {
	CartID     string
	CustomerID string
}

// AdvanceInput carries the data the current step's guard needs.
type AdvanceInput struct {
	CustomerID      string
	Billing         *types.Address
	ShippingAddr    *types.Address
	ShipToBilling   bool
	SelectedQuoteID string
}

// Service drives the checkout wizard. Guard failures and rejected captures
// are recorded on the session as inline errors instead of failing the
// call; a non-nil error means the request itself could not be served.
type Service interface {
	Start(ctx context.Context, input StartInput) (*Session, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	Advance(ctx context.Context, sessionID string, input AdvanceInput) (*Session, error)
	Back(ctx context.Context, sessionID string) (*Session, error)
	RefreshQuotes(ctx context.Context, sessionID string) (*Session, error)
	BeginPayment(ctx context.Context, sessionID string) (*Session, error)
	Capture(ctx context.Context, sessionID string) (*Session, error)
}

type service struct {
	store     sessionStore
	carts     cart.Service
	estimator quoter
	payments  paymentProvider
	orders    orderSubmitter
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
}

// NewService builds the checkout service.
func NewService(store sessionStore, carts cart.Service, estimator quoter, payments paymentProvider, orders orderSubmitter, m *metrics.CheckoutMetrics, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("session store required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if estimator == nil {
		return nil, fmt.Errorf("shipping estimator required")
	}
	if payments == nil {
		return nil, fmt.Errorf("payment provider required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order submitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		store:     store,
		carts:     carts,
		estimator: estimator,
		payments:  payments,
		orders:    orders,
		metrics:   m,
		logg:      logg,
	}, nil
}

func (s *service) Start(ctx context.Context, input StartInput) (*Session, error) {
	cartID := strings.TrimSpace(input.CartID)
	if cartID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}

	snapshot, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if len(snapshot.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")
	}

	now := time.Now().UTC()
	session := &Session{
		ID:         uuid.NewString(),
		CartID:     cartID,
		CustomerID: strings.TrimSpace(input.CustomerID),
		Step:       StepIdentify,
		Subtotal:   snapshot.Subtotal(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	// An already authenticated customer skips straight to the address step.
	if session.CustomerID != "" {
		session.Step = StepAddress
	}

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition("start", session.Step.String())
	s.logg.Info(s.logg.WithSessionID(ctx, session.ID), "checkout session started")
	return session, nil
}

func (s *service) Get(ctx context.Context, sessionID string) (*Session, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.refreshCartState(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *service) Advance(ctx context.Context, sessionID string, input AdvanceInput) (*Session, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Completed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already completed")
	}
	if session.TotalFrozen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is in progress")
	}
	snapshot, err := s.refreshCartState(ctx, session)
	if err != nil {
		return nil, err
	}

	from := session.Step
	session.LastError = ""

	switch session.Step {
	case StepIdentify:
		customerID := strings.TrimSpace(input.CustomerID)
		if customerID == "" {
			customerID = session.CustomerID
		}
		if customerID == "" {
			return s.failGuard(ctx, session, "entre na sua conta para continuar")
		}
		session.CustomerID = customerID
		session.Step = StepAddress

	case StepAddress:
		if input.Billing != nil {
			session.Billing = input.Billing
		}
		session.ShipToBilling = input.ShipToBilling
		if input.ShippingAddr != nil {
			session.ShippingAddr = input.ShippingAddr
		}
		if session.ShipToBilling {
			session.ShippingAddr = nil
		}

		if session.Billing == nil {
			return s.failGuard(ctx, session, "informe o endereço de cobrança")
		}
		if missing := session.Billing.MissingFields(true); len(missing) > 0 {
			return s.failGuard(ctx, session, "campos obrigatórios ausentes: "+strings.Join(missing, ", "))
		}
		if !session.ShipToBilling {
			if session.ShippingAddr == nil {
				return s.failGuard(ctx, session, "informe o endereço de entrega")
			}
			if missing := session.ShippingAddr.MissingFields(false); len(missing) > 0 {
				return s.failGuard(ctx, session, "campos obrigatórios ausentes: "+strings.Join(missing, ", "))
			}
		}

		session.Step = StepShipping
		if err := s.issueQuotes(ctx, session); err != nil {
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeValidation {
				session.Step = StepAddress
				return s.failGuard(ctx, session, "CEP inválido")
			}
			return nil, err
		}

	case StepShipping:
		if input.SelectedQuoteID != "" {
			session.SelectedQuoteID = input.SelectedQuoteID
		}
		if session.FreeShipping {
			session.SelectedQuoteID = freeShippingQuoteID
			session.ShippingCost = decimal.Zero
		} else {
			quote := session.selectedQuote()
			if quote == nil {
				return s.failGuard(ctx, session, "selecione uma opção de frete")
			}
			session.ShippingCost = quote.Cost
		}

		session.Total = session.Subtotal.Add(session.ShippingCost)
		session.FrozenItems = append([]types.CartItem(nil), snapshot.Items...)
		session.TotalFrozen = true
		session.Step = StepPayment

	case StepPayment:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment must be completed through capture")

	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout session is in an unknown step")
	}

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(from.String(), session.Step.String())
	return session, nil
}

// Back is unguarded except from the first step. Stepping out of payment
// unfreezes the total and abandons any provider order already created.
func (s *service) Back(ctx context.Context, sessionID string) (*Session, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Completed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already completed")
	}
	if session.Step <= StepIdentify {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "already at the first step")
	}

	from := session.Step
	if session.Step == StepPayment {
		session.TotalFrozen = false
		session.FrozenItems = nil
		session.ProviderOrderID = ""
	}
	session.Step--
	session.LastError = ""

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(from.String(), session.Step.String())
	return session, nil
}

// RefreshQuotes reprices shipping after a destination change while the
// customer sits on the shipping step.
func (s *service) RefreshQuotes(ctx context.Context, sessionID string) (*Session, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Completed || session.TotalFrozen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shipping can no longer be repriced")
	}
	if session.Step != StepShipping {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "session is not on the shipping step")
	}
	if _, err := s.refreshCartState(ctx, session); err != nil {
		return nil, err
	}

	session.LastError = ""
	if err := s.issueQuotes(ctx, session); err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeValidation {
			return s.failGuard(ctx, session, "CEP inválido")
		}
		return nil, err
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// BeginPayment registers the frozen total with the payment provider.
// Calling it again while an order is already registered is a no-op.
func (s *service) BeginPayment(ctx context.Context, sessionID string) (*Session, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Completed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already completed")
	}
	if session.Step != StepPayment || !session.TotalFrozen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "session is not on the payment step")
	}
	if session.ProviderOrderID != "" {
		return session, nil
	}

	session.LastError = ""
	providerOrderID, err := s.payments.CreateOrder(ctx, payment.CreateOrderInput{
		Amount:    session.Total,
		Reference: session.ID,
	})
	if err != nil {
		return s.failPayment(ctx, session, err)
	}

	session.ProviderOrderID = providerOrderID
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Capture finalizes payment, submits the order from the frozen line items
// and clears the cart. A repeated call after success returns the stored
// confirmation without touching the cart again.
func (s *service) Capture(ctx context.Context, sessionID string) (*Session, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Completed {
		return session, nil
	}
	if session.Step != StepPayment || !session.TotalFrozen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "session is not on the payment step")
	}
	if session.ProviderOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has not been started")
	}

	session.LastError = ""
	result, err := s.payments.CaptureOrder(ctx, session.ProviderOrderID)
	if err != nil {
		s.metrics.IncCapture("rejected")
		return s.failPayment(ctx, session, err)
	}

	confirmation, err := s.orders.SubmitOrder(ctx, buildOrderRequest(session, result))
	if err != nil {
		// The customer was charged; this needs an operator, not a retry
		// loop against the platform.
		s.metrics.IncCapture("order_failed")
		s.logg.Error(s.logg.WithSessionID(ctx, session.ID), "captured payment but order submission failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment captured but order could not be registered")
	}

	if err := s.carts.Clear(ctx, session.CartID); err != nil {
		s.logg.Error(s.logg.WithSessionID(ctx, session.ID), "failed to clear cart after checkout", err)
	}

	session.Completed = true
	session.Order = &OrderSummary{
		OrderID:     confirmation.ID,
		OrderNumber: confirmation.Number,
		CaptureID:   result.CaptureID,
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}

	s.metrics.IncCapture("success")
	s.metrics.ObserveTransition(StepPayment.String(), "completed")
	s.logg.Info(s.logg.WithSessionID(ctx, session.ID), "checkout completed")
	return session, nil
}

// issueQuotes prices shipping for the session destination. Requests are
// tagged with a sequence number persisted before the estimator call; if a
// newer request lands while this one is in flight, the stale result is
// discarded and the fresher session state kept.
func (s *service) issueQuotes(ctx context.Context, session *Session) error {
	threshold := s.estimator.FreeShippingThreshold()
	if !threshold.IsZero() && session.Subtotal.GreaterThanOrEqual(threshold) {
		session.FreeShipping = true
		session.QuoteZone = ""
		session.Quotes = []shipping.Quote{
			{
				ID:           freeShippingQuoteID,
				Title:        "Frete grátis",
				Description:  "Sua compra atingiu o valor mínimo para frete grátis",
				Cost:         decimal.Zero,
				DeliveryTime: "5 a 10 dias úteis",
			},
		}
		session.SelectedQuoteID = freeShippingQuoteID
		session.ShippingCost = decimal.Zero
		return nil
	}

	destination := session.Billing
	if !session.ShipToBilling && session.ShippingAddr != nil {
		destination = session.ShippingAddr
	}
	if destination == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no destination address on session")
	}

	session.QuoteSeq++
	seq := session.QuoteSeq
	if err := s.save(ctx, session); err != nil {
		return err
	}

	snapshot, err := s.carts.Get(ctx, session.CartID)
	if err != nil {
		return err
	}
	items := make([]shipping.QuoteItem, 0, len(snapshot.Items))
	for _, item := range snapshot.Items {
		items = append(items, shipping.QuoteItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	result, err := s.estimator.Quote(ctx, shipping.QuoteRequest{
		PostalCode: destination.PostalCode,
		State:      destination.State,
		Country:    destination.Country,
		Items:      items,
		Subtotal:   session.Subtotal,
	})
	if err != nil {
		return err
	}

	latest, err := s.load(ctx, session.ID)
	if err != nil {
		return err
	}
	if latest.QuoteSeq != seq {
		// A fresher request won; keep its state.
		*session = *latest
		return nil
	}

	session.FreeShipping = false
	session.QuoteZone = result.Zone
	session.Quotes = result.Methods
	if session.selectedQuote() == nil {
		session.SelectedQuoteID = ""
		session.ShippingCost = decimal.Zero
	}
	return nil
}

// refreshCartState re-reads the cart backing the session and returns the
// snapshot. A cart emptied outside an active payment flow invalidates the
// whole attempt. Frozen and completed sessions are left untouched.
func (s *service) refreshCartState(ctx context.Context, session *Session) (*cart.Cart, error) {
	if session.Completed || session.TotalFrozen {
		return nil, nil
	}

	snapshot, err := s.carts.Get(ctx, session.CartID)
	if err != nil {
		return nil, err
	}
	if len(snapshot.Items) == 0 {
		if err := s.store.Del(ctx, s.store.CheckoutSessionKey(session.ID)); err != nil {
			s.logg.Error(s.logg.WithSessionID(ctx, session.ID), "failed to discard stale checkout session", err)
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")
	}
	session.Subtotal = snapshot.Subtotal()
	return snapshot, nil
}

// failGuard records an inline error and leaves the step unchanged.
func (s *service) failGuard(ctx context.Context, session *Session, message string) (*Session, error) {
	session.LastError = message
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// failPayment surfaces a provider rejection inline so the customer can
// retry capture without re-entering address data.
func (s *service) failPayment(ctx context.Context, session *Session, cause error) (*Session, error) {
	if typed := pkgerrors.As(cause); typed != nil && typed.Code() == pkgerrors.CodePaymentRejected {
		session.LastError = "pagamento recusado, tente novamente"
	} else {
		session.LastError = "não foi possível processar o pagamento"
	}
	s.logg.Warn(s.logg.WithSessionID(ctx, session.ID), "payment attempt failed: "+cause.Error())
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *service) load(ctx context.Context, sessionID string) (*Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	raw, err := s.store.Get(ctx, s.store.CheckoutSessionKey(sessionID))
	if err != nil {
		if err == redis.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load checkout session")
	}

	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "corrupt checkout session")
	}
	return &session, nil
}

func (s *service) save(ctx context.Context, session *Session) error {
	session.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(session)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to encode checkout session")
	}
	if err := s.store.Set(ctx, s.store.CheckoutSessionKey(session.ID), string(payload), sessionTTL); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to store checkout session")
	}
	return nil
}

func buildOrderRequest(session *Session, capture *payment.CaptureResult) commerce.OrderRequest {
	billing := session.Billing
	shippingAddr := billing
	if !session.ShipToBilling && session.ShippingAddr != nil {
		shippingAddr = session.ShippingAddr
	}

	lineItems := make([]commerce.OrderLineItem, 0, len(session.FrozenItems))
	for _, item := range session.FrozenItems {
		lineItems = append(lineItems, commerce.OrderLineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Size:      item.Size,
			Color:     item.Color,
		})
	}

	methodTitle := "Frete grátis"
	if quote := session.selectedQuote(); quote != nil {
		methodTitle = quote.Title
	}

	return commerce.OrderRequest{
		Billing:   billingPayload(billing),
		Shipping:  shippingPayload(shippingAddr),
		LineItems: lineItems,
		ShippingLines: []commerce.OrderShippingLine{
			{MethodID: session.SelectedQuoteID, MethodTitle: methodTitle, Total: session.ShippingCost},
		},
		PaymentMethod: paymentMethodSlug,
		TransactionID: capture.CaptureID,
		CustomerID:    session.CustomerID,
		SetPaid:       true,
	}
}

func billingPayload(addr *types.Address) commerce.BillingPayload {
	return commerce.BillingPayload{
		FirstName:  addr.FirstName,
		LastName:   addr.LastName,
		Company:    deref(addr.Company),
		Address1:   addr.Line1,
		Address2:   deref(addr.Line2),
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Email:      addr.Email,
		Phone:      addr.Phone,
	}
}

func shippingPayload(addr *types.Address) commerce.ShippingPayload {
	return commerce.ShippingPayload{
		FirstName:  addr.FirstName,
		LastName:   addr.LastName,
		Company:    deref(addr.Company),
		Address1:   addr.Line1,
		Address2:   deref(addr.Line2),
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
