package commerce

import (
	"strings"

	pkgerrors "github.com/andrelucena/vitrine-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// LocationType classifies a zone location rule.
type LocationType string

const (
	LocationPostcode LocationType = "postcode"
	LocationState    LocationType = "state"
	LocationCountry  LocationType = "country"
)

// MethodKind classifies a configured rate method.
type MethodKind string

const (
	MethodFlatRate     MethodKind = "flat_rate"
	MethodFreeShipping MethodKind = "free_shipping"
	MethodLocalPickup  MethodKind = "local_pickup"
	MethodCarrier      MethodKind = "carrier"
)

// Location is one zone matching rule. Postcode codes may carry an
// inclusive range using the "01000...19999" syntax.
type Location struct {
	Type LocationType `json:"type"`
	Code string       `json:"code"`
}

// RateMethod is a normalized shipping method configured on a zone.
type RateMethod struct {
	ID          string           `json:"id"`
	Kind        MethodKind       `json:"kind"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Enabled     bool             `json:"enabled"`
	Cost        *decimal.Decimal `json:"cost,omitempty"`
	PerItem     bool             `json:"per_item"`
	Service     string           `json:"service,omitempty"`
}

// Zone is a named shipping region with ordered rate methods.
type Zone struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Default   bool         `json:"default"`
	Locations []Location   `json:"locations"`
	Methods   []RateMethod `json:"methods"`
}

// OrderLineItem is one purchased line on a submitted order.
type OrderLineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
}

// OrderShippingLine records the selected shipping method and its cost.
type OrderShippingLine struct {
	MethodID    string          `json:"method_id"`
	MethodTitle string          `json:"method_title"`
	Total       decimal.Decimal `json:"total"`
}

// OrderRequest is the finalized order posted to the platform.
type OrderRequest struct {
	Billing       BillingPayload      `json:"billing"`
	Shipping      ShippingPayload     `json:"shipping"`
	LineItems     []OrderLineItem     `json:"line_items"`
	ShippingLines []OrderShippingLine `json:"shipping_lines"`
	PaymentMethod string              `json:"payment_method"`
	TransactionID string              `json:"transaction_id,omitempty"`
	CustomerID    string              `json:"customer_id,omitempty"`
	SetPaid       bool                `json:"set_paid"`
}

// BillingPayload mirrors the billing shape the platform expects.
type BillingPayload struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Company    string `json:"company,omitempty"`
	Address1   string `json:"address_1"`
	Address2   string `json:"address_2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postcode"`
	Country    string `json:"country"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
}

// ShippingPayload mirrors the shipping shape the platform expects.
type ShippingPayload struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Company    string `json:"company,omitempty"`
	Address1   string `json:"address_1"`
	Address2   string `json:"address_2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postcode"`
	Country    string `json:"country"`
}

// OrderConfirmation is the created-order identity returned by the platform.
type OrderConfirmation struct {
	ID     string `json:"id"`
	Number string `json:"number"`
	Status string `json:"status"`
}

type rawCustomer struct {
	ID        any    `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type rawZone struct {
	ID        any    `json:"id"`
	Name      string `json:"name"`
	Default   bool   `json:"default"`
	Locations []struct {
		Type string `json:"type"`
		Code string `json:"code"`
	} `json:"locations"`
	Methods []struct {
		ID       any    `json:"id"`
		MethodID string `json:"method_id"`
		Title    string `json:"title"`
		Enabled  *bool  `json:"enabled"`
		Settings struct {
			Cost        string `json:"cost"`
			PerItem     string `json:"per_item"`
			Service     string `json:"service"`
			Description string `json:"description"`
		} `json:"settings"`
	} `json:"methods"`
}

// normalizeCustomer applies the boundary defaults once so internal code
// never re-checks optional fields.
func normalizeCustomer(raw rawCustomer) (*Customer, error) {
	id := asString(raw.ID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "customer response missing id")
	}
	return &Customer{
		ID:        id,
		Email:     strings.TrimSpace(raw.Email),
		FirstName: strings.TrimSpace(raw.FirstName),
		LastName:  strings.TrimSpace(raw.LastName),
	}, nil
}

func normalizeZone(raw rawZone) Zone {
	zone := Zone{
		ID:      asString(raw.ID),
		Name:    strings.TrimSpace(raw.Name),
		Default: raw.Default,
	}

	for _, loc := range raw.Locations {
		code := strings.TrimSpace(loc.Code)
		if code == "" {
			continue
		}
		zone.Locations = append(zone.Locations, Location{
			Type: normalizeLocationType(loc.Type),
			Code: code,
		})
	}

	for _, m := range raw.Methods {
		kind := MethodKind(strings.TrimSpace(strings.ToLower(m.MethodID)))
		if kind == "" {
			continue
		}

		method := RateMethod{
			ID:          asString(m.ID),
			Kind:        kind,
			Title:       strings.TrimSpace(m.Title),
			Description: strings.TrimSpace(m.Settings.Description),
			Enabled:     m.Enabled == nil || *m.Enabled,
			PerItem:     strings.EqualFold(m.Settings.PerItem, "yes"),
			Service:     strings.TrimSpace(strings.ToLower(m.Settings.Service)),
		}
		if method.ID == "" {
			method.ID = string(kind)
		}
		if cost := strings.TrimSpace(m.Settings.Cost); cost != "" {
			if parsed, err := decimal.NewFromString(cost); err == nil && !parsed.IsNegative() {
				method.Cost = &parsed
			}
		}
		zone.Methods = append(zone.Methods, method)
	}

	return zone
}

func normalizeLocationType(raw string) LocationType {
	switch LocationType(strings.TrimSpace(strings.ToLower(raw))) {
	case LocationState:
		return LocationState
	case LocationCountry:
		return LocationCountry
	default:
		return LocationPostcode
	}
}
