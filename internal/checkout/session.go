package checkout

import (
	"time"

	"github.com/andrelucena/vitrine-backend/internal/shipping"
	"github.com/andrelucena/vitrine-backend/pkg/types"
	"github.com/shopspring/decimal"
)

// Step is the wizard position. Steps are ordered and linear.
type Step int

const (
	StepIdentify Step = 1
	StepAddress  Step = 2
	StepShipping Step = 3
	StepPayment  Step = 4
)

// String names the step for logs and payloads.
func (s Step) String() string {
	switch s {
	case StepIdentify:
		return "identify"
	case StepAddress:
		return "address"
	case StepShipping:
		return "shipping"
	case StepPayment:
		return "payment"
	default:
		return "unknown"
	}
}

// OrderSummary is the confirmation recorded once the order is placed.
type OrderSummary struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	CaptureID   string `json:"capture_id"`
}

// Session is one checkout attempt. It is stored as a JSON snapshot in
// Redis; decimal fields marshal as strings so amounts round-trip exactly.
type Session struct {
	ID         string `json:"id"`
	CartID     string `json:"cart_id"`
	CustomerID string `json:"customer_id,omitempty"`

	Step      Step `json:"step"`
	Completed bool `json:"completed"`

	Billing       *types.Address `json:"billing,omitempty"`
	ShippingAddr  *types.Address `json:"shipping,omitempty"`
	ShipToBilling bool           `json:"ship_to_billing"`

	// Quote state. QuoteSeq increases on every estimator request issued
	// for this session; a response is applied only while its tag is still
	// the latest, so a stale response never overwrites a fresher one.
	QuoteSeq        uint64           `json:"quote_seq"`
	QuoteZone       string           `json:"quote_zone,omitempty"`
	Quotes          []shipping.Quote `json:"quotes,omitempty"`
	SelectedQuoteID string           `json:"selected_quote_id,omitempty"`
	FreeShipping    bool             `json:"free_shipping"`

	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`

	// Total is only meaningful while TotalFrozen is set, which happens on
	// entry to the payment step. A frozen session rejects cart and address
	// mutation until payment resolves or the customer steps back.
	Total       decimal.Decimal `json:"total"`
	TotalFrozen bool            `json:"total_frozen"`

	// FrozenItems is the cart captured at the moment the total froze. The
	// submitted order is built from it, so cart edits made behind an
	// in-flight payment can never change what the customer is charged for.
	FrozenItems []types.CartItem `json:"frozen_items,omitempty"`

	ProviderOrderID string        `json:"provider_order_id,omitempty"`
	Order           *OrderSummary `json:"order,omitempty"`

	// LastError carries the most recent inline failure. Guard failures and
	// rejected captures land here instead of surfacing as call errors.
	LastError string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Session) selectedQuote() *shipping.Quote {
	for i := range s.Quotes {
		if s.Quotes[i].ID == s.SelectedQuoteID {
			return &s.Quotes[i]
		}
	}
	return nil
}
