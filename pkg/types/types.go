package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Address is the postal address shape shared by billing and shipping.
// Billing additionally carries email and phone.
type Address struct {
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Company    *string `json:"company,omitempty"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Email      string  `json:"email,omitempty"`
	Phone      string  `json:"phone,omitempty"`
}

// MissingFields reports which required address fields are blank. Email is
// only required when the address is used for billing.
func (a Address) MissingFields(requireEmail bool) []string {
	missing := []string{}
	check := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	check("first_name", a.FirstName)
	check("last_name", a.LastName)
	check("line1", a.Line1)
	check("city", a.City)
	check("state", a.State)
	check("postal_code", a.PostalCode)
	if requireEmail {
		check("email", a.Email)
	}
	return missing
}

// CartItem is one cart line. Two lines with the same product but a
// different size or color are distinct.
type CartItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	Image     string          `json:"image,omitempty"`
}

// LineKey returns the composite identity of the line.
func (i CartItem) LineKey() string {
	return i.ProductID + "|" + i.Size + "|" + i.Color
}

// LineTotal returns unit price times quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SuccessEnvelope wraps every 2xx payload.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope wraps every error payload.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// APIError is the machine-readable error body.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
