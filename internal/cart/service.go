package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/andrelucena/vitrine-backend/pkg/errors"
	"github.com/andrelucena/vitrine-backend/pkg/logger"
	"github.com/andrelucena/vitrine-backend/pkg/redis"
	"github.com/andrelucena/vitrine-backend/pkg/types"
	"github.com/shopspring/decimal"
)

const (
	// Idle carts expire instead of accumulating in Redis forever.
	cartTTL = 30 * 24 * time.Hour

	maxLineQuantity = 99
)

// snapshotStore is the slice of the Redis client the cart service uses.
type snapshotStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	CartKey(cartID string) string
}

// Cart is the stored snapshot. Line items keep their variant identity, so
// the same product in two sizes occupies two lines.
type Cart struct {
	ID        string           `json:"id"`
	Items     []types.CartItem `json:"items"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// TotalItems sums the quantities across all lines.
func (c *Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Subtotal sums line totals with exact decimal arithmetic.
func (c *Cart) Subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range c.Items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	return subtotal
}

// Service manages cart snapshots keyed by cart ID.
type Service interface {
	Get(ctx context.Context, cartID string) (*Cart, error)
	AddItem(ctx context.Context, cartID string, item types.CartItem) (*Cart, error)
	SetQuantity(ctx context.Context, cartID, lineKey string, quantity int) (*Cart, error)
	RemoveItem(ctx context.Context, cartID, lineKey string) (*Cart, error)
	Clear(ctx context.Context, cartID string) error
}

type service struct {
	store snapshotStore
	logg  *logger.Logger
}

// NewService builds a cart service backed by the provided snapshot store.
func NewService(store snapshotStore, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("snapshot store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{store: store, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, cartID string) (*Cart, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	return s.load(ctx, cartID)
}

func (s *service) AddItem(ctx context.Context, cartID string, item types.CartItem) (*Cart, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	if err := validateItem(item); err != nil {
		return nil, err
	}

	cart, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}

	key := item.LineKey()
	merged := false
	for i := range cart.Items {
		if cart.Items[i].LineKey() != key {
			continue
		}
		next := cart.Items[i].Quantity + item.Quantity
		if next > maxLineQuantity {
			next = maxLineQuantity
		}
		cart.Items[i].Quantity = next
		// Refresh display data so renamed or repriced products do not go
		// stale inside long-lived carts.
		cart.Items[i].Name = item.Name
		cart.Items[i].UnitPrice = item.UnitPrice
		cart.Items[i].Image = item.Image
		merged = true
		break
	}
	if !merged {
		cart.Items = append(cart.Items, item)
	}

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *service) SetQuantity(ctx context.Context, cartID, lineKey string, quantity int) (*Cart, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	if quantity > maxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity cannot exceed %d", maxLineQuantity))
	}

	cart, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}

	index := -1
	for i := range cart.Items {
		if cart.Items[i].LineKey() == lineKey {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}

	if quantity < 1 {
		cart.Items = append(cart.Items[:index], cart.Items[index+1:]...)
	} else {
		cart.Items[index].Quantity = quantity
	}

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *service) RemoveItem(ctx context.Context, cartID, lineKey string) (*Cart, error) {
	return s.SetQuantity(ctx, cartID, lineKey, 0)
}

func (s *service) Clear(ctx context.Context, cartID string) error {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	if err := s.store.Del(ctx, s.store.CartKey(cartID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to clear cart")
	}
	return nil
}

func (s *service) load(ctx context.Context, cartID string) (*Cart, error) {
	raw, err := s.store.Get(ctx, s.store.CartKey(cartID))
	if err != nil {
		if err == redis.Nil {
			return &Cart{ID: cartID}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load cart")
	}

	var cart Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		// A corrupt snapshot is unrecoverable; start the customer over
		// rather than wedging every cart call.
		s.logg.Warn(s.logg.WithField(ctx, "cart_id", cartID), "discarding corrupt cart snapshot")
		return &Cart{ID: cartID}, nil
	}
	cart.ID = cartID
	return &cart, nil
}

func (s *service) save(ctx context.Context, cart *Cart) error {
	cart.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(cart)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to encode cart")
	}
	if err := s.store.Set(ctx, s.store.CartKey(cart.ID), string(payload), cartTTL); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to store cart")
	}
	return nil
}

func validateItem(item types.CartItem) error {
	if strings.TrimSpace(item.ProductID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if item.Quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if item.Quantity > maxLineQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity cannot exceed %d", maxLineQuantity))
	}
	if item.UnitPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price must be non-negative")
	}
	return nil
}
