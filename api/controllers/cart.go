package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/andrelucena/vitrine-backend/api/middleware"
	"github.com/andrelucena/vitrine-backend/api/responses"
	"github.com/andrelucena/vitrine-backend/api/validators"
	cartsvc "github.com/andrelucena/vitrine-backend/internal/cart"
	pkgerrors "github.com/andrelucena/vitrine-backend/pkg/errors"
	"github.com/andrelucena/vitrine-backend/pkg/logger"
	"github.com/andrelucena/vitrine-backend/pkg/types"
)

const cartIDHeader = "X-Cart-Id"

// resolveCartID picks the cart identity for the request. Authenticated
// shoppers always use their customer id so the cart follows them across
// devices; anonymous shoppers carry a client-generated id in a header.
func resolveCartID(r *http.Request) (string, error) {
	if customerID := middleware.CustomerIDFromContext(r.Context()); customerID != "" {
		return customerID, nil
	}
	if cartID := strings.TrimSpace(r.Header.Get(cartIDHeader)); cartID != "" {
		return cartID, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, "cart id required").
		WithDetails(map[string]string{"header": cartIDHeader})
}

type addItemRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Name      string          `json:"name" validate:"required,max=200"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" validate:"required,min=1,max=99"`
	Size      string          `json:"size" validate:"max=20"`
	Color     string          `json:"color" validate:"max=50"`
	Image     string          `json:"image" validate:"max=500"`
}

type setQuantityRequest struct {
	LineKey  string `json:"line_key" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0,max=99"`
}

// CartGet returns the current snapshot, an empty cart when none exists.
func CartGet(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		cartID, err := resolveCartID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.Get(r.Context(), cartID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cart)
	}
}

// CartAddItem merges the payload into the cart, summing quantities when the
// same product/size/color line already exists.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		cartID, err := resolveCartID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body addItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.AddItem(r.Context(), cartID, types.CartItem{
			ProductID: body.ProductID,
			Name:      validators.SanitizeString(body.Name, 200),
			UnitPrice: body.UnitPrice,
			Quantity:  body.Quantity,
			Size:      body.Size,
			Color:     body.Color,
			Image:     body.Image,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cart)
	}
}

// CartSetQuantity replaces a line's quantity; zero removes the line.
func CartSetQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		cartID, err := resolveCartID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body setQuantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.SetQuantity(r.Context(), cartID, body.LineKey, body.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cart)
	}
}

// CartRemoveItem drops a line identified by the line_key query parameter.
func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		cartID, err := resolveCartID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lineKey := strings.TrimSpace(r.URL.Query().Get("line_key"))
		if lineKey == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "line_key query parameter required"))
			return
		}

		cart, err := svc.RemoveItem(r.Context(), cartID, lineKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cart)
	}
}

// CartClear deletes the snapshot entirely.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		cartID, err := resolveCartID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Clear(r.Context(), cartID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "cleared"})
	}
}
