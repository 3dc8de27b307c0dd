package shipping

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/andrelucena/vitrine-backend/pkg/commerce"
	pkgerrors "github.com/andrelucena/vitrine-backend/pkg/errors"
	"github.com/andrelucena/vitrine-backend/pkg/logger"
	"github.com/andrelucena/vitrine-backend/pkg/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

const domesticCountry = "BR"

// zoneSource fetches the shipping zone configuration from the commerce
// platform. Zones are read on every quote so admin changes take effect
// without a restart.
type zoneSource interface {
	ShippingZones(ctx context.Context) ([]commerce.Zone, error)
}

// QuoteItem is one cart line flattened for shipping purposes.
type QuoteItem struct {
	ProductID string
	Quantity  int
}

// QuoteRequest carries everything the estimator needs to price a shipment.
// State and Country are optional; when the caller knows the full address
// (inside the checkout wizard) they improve zone matching.
type QuoteRequest struct {
	PostalCode string
	State      string
	Country    string
	Items      []QuoteItem
	Subtotal   decimal.Decimal
}

// Quote is a single priced shipping option.
type Quote struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Cost         decimal.Decimal `json:"cost"`
	DeliveryTime string          `json:"delivery_time"`
}

// QuoteResult is the estimator output. Methods is never empty.
type QuoteResult struct {
	Zone    string  `json:"zone"`
	Methods []Quote `json:"methods"`
}

// Config tunes the estimator thresholds and fallbacks. QuoteTimeout bounds
// the upstream zone fetch; zero disables the bound.
type Config struct {
	FreeShippingThreshold decimal.Decimal
	FallbackCost          decimal.Decimal
	PerItemSurcharge      decimal.Decimal
	QuoteTimeout          time.Duration
}

// Service prices shipping options for a destination and cart.
type Service interface {
	Quote(ctx context.Context, req QuoteRequest) (*QuoteResult, error)
	FreeShippingThreshold() decimal.Decimal
}

type service struct {
	zones   zoneSource
	cfg     Config
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
}

// NewService builds the shipping estimator.
func NewService(zones zoneSource, cfg Config, m *metrics.CheckoutMetrics, logg *logger.Logger) (Service, error) {
	if zones == nil {
		return nil, fmt.Errorf("zone source required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.FallbackCost.IsNegative() || cfg.PerItemSurcharge.IsNegative() || cfg.FreeShippingThreshold.IsNegative() {
		return nil, fmt.Errorf("shipping config values must be non-negative")
	}
	return &service{zones: zones, cfg: cfg, metrics: m, logg: logg}, nil
}

func (s *service) FreeShippingThreshold() decimal.Decimal {
	return s.cfg.FreeShippingThreshold
}

// Quote resolves the destination zone and prices every enabled method in
// it. Upstream failures and misconfigured methods degrade to the synthetic
// fallback quote instead of surfacing an error; a destination always gets
// at least one option.
func (s *service) Quote(ctx context.Context, req QuoteRequest) (*QuoteResult, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveQuoteDuration(time.Since(start))
	}()

	digits := digitsOnly(req.PostalCode)
	if digits == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "postal code is required")
	}
	if req.Subtotal.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subtotal must be non-negative")
	}

	zonesCtx := ctx
	if s.cfg.QuoteTimeout > 0 {
		var cancel context.CancelFunc
		zonesCtx, cancel = context.WithTimeout(ctx, s.cfg.QuoteTimeout)
		defer cancel()
	}
	zones, err := s.zones.ShippingZones(zonesCtx)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "shipping zones unavailable, using fallback quote")
		return s.fallbackResult(), nil
	}

	zone := resolveZone(zones, req, digits)
	if zone == nil {
		return s.fallbackResult(), nil
	}

	quotes, evalErr := s.evaluateMethods(zone, req, digits)
	if evalErr != nil {
		warnCtx := s.logg.WithFields(ctx, map[string]any{"zone": zone.Name, "error": evalErr.Error()})
		s.logg.Warn(warnCtx, "some shipping methods could not be priced")
	}
	if len(quotes) == 0 {
		result := s.fallbackResult()
		result.Zone = zone.Name
		return result, nil
	}

	return &QuoteResult{Zone: zone.Name, Methods: quotes}, nil
}

// resolveZone walks zones in configured order and returns the first whose
// location rules match the destination. The platform's default zone (no
// location rules) is kept as a last resort.
func resolveZone(zones []commerce.Zone, req QuoteRequest, digits string) *commerce.Zone {
	country := strings.ToUpper(strings.TrimSpace(req.Country))
	if country == "" {
		country = domesticCountry
	}
	state := strings.ToUpper(strings.TrimSpace(req.State))

	var fallback *commerce.Zone
	for i := range zones {
		zone := &zones[i]
		if zone.Default || len(zone.Locations) == 0 {
			if fallback == nil {
				fallback = zone
			}
			continue
		}
		for _, loc := range zone.Locations {
			if locationMatches(loc, digits, state, country) {
				return zone
			}
		}
	}
	return fallback
}

func locationMatches(loc commerce.Location, digits, state, country string) bool {
	switch loc.Type {
	case commerce.LocationPostcode:
		return postcodeMatches(loc.Code, digits)
	case commerce.LocationState:
		return state != "" && strings.EqualFold(loc.Code, state)
	case commerce.LocationCountry:
		return strings.EqualFold(loc.Code, country)
	default:
		return false
	}
}

// postcodeMatches handles both exact codes and "low...high" ranges. All
// comparison happens on the numeric digits so "01310-100" and "01310100"
// are the same destination.
func postcodeMatches(rule, digits string) bool {
	rule = strings.TrimSpace(rule)
	if low, high, ok := strings.Cut(rule, "..."); ok {
		lowN, errLow := strconv.ParseInt(digitsOnly(low), 10, 64)
		highN, errHigh := strconv.ParseInt(digitsOnly(high), 10, 64)
		value, errVal := strconv.ParseInt(digits, 10, 64)
		if errLow != nil || errHigh != nil || errVal != nil {
			return false
		}
		return value >= lowN && value <= highN
	}
	return digitsOnly(rule) == digits
}

func (s *service) evaluateMethods(zone *commerce.Zone, req QuoteRequest, digits string) ([]Quote, error) {
	totalQty := 0
	for _, item := range req.Items {
		if item.Quantity > 0 {
			totalQty += item.Quantity
		}
	}

	var quotes []Quote
	var errs error
	for _, method := range zone.Methods {
		if !method.Enabled {
			continue
		}
		quote, err := s.priceMethod(method, req, digits, totalQty)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("method %s: %w", method.ID, err))
			continue
		}
		if quote != nil {
			quotes = append(quotes, *quote)
		}
	}
	return quotes, errs
}

// priceMethod returns nil with no error when a method is validly excluded,
// such as free shipping below the threshold.
func (s *service) priceMethod(method commerce.RateMethod, req QuoteRequest, digits string, totalQty int) (*Quote, error) {
	quote := Quote{
		ID:          method.ID,
		Title:       method.Title,
		Description: method.Description,
	}

	switch method.Kind {
	case commerce.MethodFreeShipping:
		if s.cfg.FreeShippingThreshold.IsZero() || req.Subtotal.LessThan(s.cfg.FreeShippingThreshold) {
			return nil, nil
		}
		quote.Cost = decimal.Zero
		if quote.Title == "" {
			quote.Title = "Frete grátis"
		}
	case commerce.MethodLocalPickup:
		quote.Cost = decimal.Zero
		if quote.Title == "" {
			quote.Title = "Retirada na loja"
		}
	case commerce.MethodFlatRate:
		base := s.cfg.FallbackCost
		if method.Cost != nil {
			base = *method.Cost
		}
		if method.PerItem && totalQty > 0 {
			base = base.Mul(decimal.NewFromInt(int64(totalQty)))
		}
		quote.Cost = base.Round(2)
		if quote.Title == "" {
			quote.Title = "Entrega padrão"
		}
	case commerce.MethodCarrier:
		base := s.cfg.FallbackCost
		if method.Cost != nil {
			base = *method.Cost
		}
		_, multiplier := regionMultiplier(digits)
		surcharge := s.cfg.PerItemSurcharge.Mul(decimal.NewFromInt(int64(totalQty)))
		quote.Cost = base.Add(surcharge).Mul(multiplier).Round(2)
		if quote.Title == "" {
			quote.Title = carrierTitle(method.Service)
		}
	default:
		// Unknown kinds still ship: configured cost, or the fallback.
		base := s.cfg.FallbackCost
		if method.Cost != nil {
			base = *method.Cost
		}
		quote.Cost = base.Round(2)
		if quote.Title == "" {
			quote.Title = "Entrega padrão"
		}
	}

	if quote.Cost.IsNegative() {
		return nil, fmt.Errorf("computed negative cost %s", quote.Cost)
	}
	quote.DeliveryTime = deliveryEstimate(method)
	return &quote, nil
}

func (s *service) fallbackResult() *QuoteResult {
	s.metrics.IncQuoteFallback()
	return &QuoteResult{
		Methods: []Quote{
			{
				ID:           "flat_rate_fallback",
				Title:        "Entrega padrão",
				Description:  "Prazo estimado após a confirmação do pagamento",
				Cost:         s.cfg.FallbackCost.Round(2),
				DeliveryTime: "5 a 10 dias úteis",
			},
		},
	}
}

func carrierTitle(carrierService string) string {
	switch strings.ToLower(carrierService) {
	case "sedex":
		return "SEDEX"
	case "pac":
		return "PAC"
	default:
		return "Transportadora"
	}
}

func deliveryEstimate(method commerce.RateMethod) string {
	switch method.Kind {
	case commerce.MethodLocalPickup:
		return "Disponível em até 1 dia útil"
	case commerce.MethodCarrier:
		switch strings.ToLower(method.Service) {
		case "sedex":
			return "1 a 3 dias úteis"
		case "pac":
			return "4 a 9 dias úteis"
		default:
			return "3 a 8 dias úteis"
		}
	case commerce.MethodFlatRate:
		return "4 a 7 dias úteis"
	default:
		return "5 a 10 dias úteis"
	}
}
