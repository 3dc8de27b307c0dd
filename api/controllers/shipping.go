package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/andrelucena/vitrine-backend/api/responses"
	"github.com/andrelucena/vitrine-backend/api/validators"
	shippingsvc "github.com/andrelucena/vitrine-backend/internal/shipping"
	pkgerrors "github.com/andrelucena/vitrine-backend/pkg/errors"
	"github.com/andrelucena/vitrine-backend/pkg/logger"
)

type quoteRequest struct {
	PostalCode string             `json:"postal_code" validate:"required,cep"`
	State      string             `json:"state" validate:"max=2"`
	Country    string             `json:"country" validate:"max=2"`
	Subtotal   decimal.Decimal    `json:"subtotal"`
	Items      []quoteItemPayload `json:"items" validate:"required,min=1,dive"`
}

type quoteItemPayload struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=99"`
}

// ShippingQuote prices delivery options for a destination without requiring
// a checkout session; the storefront uses it for the cart page estimator.
func ShippingQuote(svc shippingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		var body quoteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]shippingsvc.QuoteItem, len(body.Items))
		for i, item := range body.Items {
			items[i] = shippingsvc.QuoteItem{ProductID: item.ProductID, Quantity: item.Quantity}
		}

		result, err := svc.Quote(r.Context(), shippingsvc.QuoteRequest{
			PostalCode: body.PostalCode,
			State:      body.State,
			Country:    body.Country,
			Items:      items,
			Subtotal:   body.Subtotal,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
